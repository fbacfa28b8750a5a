package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
	"golang.org/x/sync/errgroup"

	"github.com/smallnest/researchchat/agent"
	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/extract"
	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/testparams"
)

// contentLimit is how much of the document each question writer sees.
const contentLimit = 2000

// ErrNoQuestions is returned when no question type produced questions.
var ErrNoQuestions = errors.New("no questions generated")

// Test is a generated test.
type Test struct {
	DocumentInfo DocumentInfo                           `json:"document_info"`
	Questions    map[testparams.QuestionType][]Question `json:"questions"`
	Failures     map[testparams.QuestionType]string     `json:"failures,omitempty"`
}

// DocumentInfo describes how a test was produced.
type DocumentInfo struct {
	AnalysisDate           time.Time                 `json:"analysis_date"`
	QuestionCount          int                       `json:"question_count"`
	QuestionTypes          []testparams.QuestionType `json:"question_types"`
	DifficultyDistribution map[string]int            `json:"difficulty_distribution"`
	StudentLevel           testparams.Level          `json:"student_level"`
	DuplicatesRemoved      int                       `json:"duplicates_removed"`
	ValidationStatus       string                    `json:"validation_status"`
}

// Count returns the number of generated questions.
func (t *Test) Count() int {
	n := 0
	for _, qs := range t.Questions {
		n += len(qs)
	}
	return n
}

// Generator writes test questions from a document, one agent per type.
type Generator struct {
	model       llms.Model
	pool        *agent.Pool
	logger      log.Logger
	maxRetries  int
	delay       time.Duration
	temperature float64
	maxTokens   int
	now         func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxRetries sets the attempt budget per question type.
func WithMaxRetries(n int) Option { return func(g *Generator) { g.maxRetries = n } }

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) Option { return func(g *Generator) { g.delay = d } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(g *Generator) { g.logger = l } }

// WithGeneration sets temperature and max tokens for the writers.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(g *Generator) {
		g.temperature = temperature
		g.maxTokens = maxTokens
	}
}

// NewGenerator creates a generator whose agents run on pool.
func NewGenerator(model llms.Model, pool *agent.Pool, opts ...Option) *Generator {
	g := &Generator{
		model:       model,
		pool:        pool,
		logger:      log.GetDefaultLogger(),
		maxRetries:  extract.DefaultMaxRetries,
		delay:       extract.DefaultRetryDelay,
		temperature: -1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate writes the questions params asks for. Question types are written
// concurrently and independently: a type that fails is recorded in
// Test.Failures and the others are kept. It fails only when no type
// produced any question.
func (g *Generator) Generate(ctx context.Context, document string, params testparams.Params, notifier event.Notifier) (*Test, error) {
	if notifier == nil {
		notifier = event.Discard
	}
	if strings.TrimSpace(document) == "" {
		return nil, agent.E(agent.KindPrecondition, "generate test", errors.New("empty document"))
	}
	counts := params.QuestionTypes
	if len(counts) == 0 {
		counts = Distribution(params.Total, testparams.MultipleChoice, testparams.OpenEnded)
	}
	params.QuestionTypes = counts
	requested := params.Requested()
	if len(requested) == 0 {
		return nil, agent.E(agent.KindPrecondition, "generate test", errors.New("no questions requested"))
	}

	notifier.Notify(event.New(event.WorkflowMessage, "TestCoordinator", "🚀 Soru üretim sistemi başlatılıyor",
		map[string]any{"parameters": params, "document_length": len(document)}))

	var (
		mu       sync.Mutex
		results  = make(map[testparams.QuestionType][]Question)
		failures = make(map[testparams.QuestionType]string)
		eg       errgroup.Group
	)
	for _, t := range requested {
		eg.Go(func() error {
			qs, err := g.generateType(ctx, document, t, counts[t], params, notifier)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				g.logger.Warn("generate %s questions: %v", t, err)
				failures[t] = err.Error()
				notifier.Notify(event.New(event.Error, writerName(t),
					fmt.Sprintf("❌ %s soruları oluşturulamadı: %v", t.Label(), err), nil))
				return nil
			}
			results[t] = qs
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		var errs []string
		for _, t := range requested {
			errs = append(errs, fmt.Sprintf("%s: %s", t, failures[t]))
		}
		return nil, agent.E(agent.KindMalformedOutput, "generate test",
			fmt.Errorf("%w: %s", ErrNoQuestions, strings.Join(errs, "; ")))
	}

	test := g.assemble(requested, results, failures, params)
	notifier.Notify(event.New(event.WorkflowMessage, "TestCoordinator", "✅ Soru üretimi tamamlandı!",
		map[string]any{"questions_generated": test.Count()}))
	return test, nil
}

func (g *Generator) generateType(ctx context.Context, document string, t testparams.QuestionType, count int, params testparams.Params, notifier event.Notifier) ([]Question, error) {
	policy := extract.Policy{
		MaxAttempts: g.maxRetries,
		Delay:       g.delay,
		Retryable: func(err error) bool {
			return agent.KindOf(err) != agent.KindTimeout
		},
		OnFailure: func(a extract.Attempt) {
			notifier.Notify(event.New(event.CrewProgress, writerName(t),
				fmt.Sprintf("❌ %s JSON hatası (deneme %d): %v", t.Label(), a.Number, a.Err), nil))
		},
	}
	return extract.Retry(ctx, policy, func(ctx context.Context, attempt int) ([]Question, error) {
		out, err := g.pool.DoWithRetry(ctx, func(ctx context.Context, scale float64) (string, error) {
			writer := g.writer(t)
			crew := &agent.Crew{
				Agents:   []*agent.Agent{writer},
				Tasks:    []*agent.Task{g.task(writer, document, t, count, params, attempt, scale)},
				Process:  agent.ProcessSequential,
				Notifier: notifier,
				Logger:   g.logger,
			}
			res, err := crew.Run(ctx)
			if err != nil {
				return "", err
			}
			return res.Output, nil
		})
		if err != nil {
			return nil, err
		}
		qs, err := ParseQuestions(out, t)
		if err != nil {
			return nil, err
		}
		if len(qs) > count {
			qs = qs[:count]
		}
		return qs, nil
	})
}

func (g *Generator) assemble(requested []testparams.QuestionType, results map[testparams.QuestionType][]Question, failures map[testparams.QuestionType]string, params testparams.Params) *Test {
	seen := make(map[string]bool)
	removed := 0
	dist := map[string]int{string(testparams.Easy): 0, string(testparams.Medium): 0, string(testparams.Hard): 0}

	questions := make(map[testparams.QuestionType][]Question, len(results))
	for _, t := range requested {
		qs, ok := results[t]
		if !ok {
			continue
		}
		kept := qs[:0:0]
		for _, q := range qs {
			key := normalize(q.Text)
			if seen[key] {
				removed++
				continue
			}
			seen[key] = true
			kept = append(kept, q)
			dist[difficultyKey(q.Difficulty, params.Difficulty)]++
		}
		questions[t] = kept
	}

	status := "completed"
	if len(failures) > 0 {
		status = "partial"
	}
	test := &Test{
		DocumentInfo: DocumentInfo{
			AnalysisDate:           g.now(),
			QuestionTypes:          requested,
			DifficultyDistribution: dist,
			StudentLevel:           params.Level,
			DuplicatesRemoved:      removed,
			ValidationStatus:       status,
		},
		Questions: questions,
	}
	if len(failures) > 0 {
		test.Failures = failures
	}
	test.DocumentInfo.QuestionCount = test.Count()
	return test
}

func difficultyKey(d string, fallback testparams.Difficulty) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "kolay", "easy":
		return string(testparams.Easy)
	case "orta", "medium":
		return string(testparams.Medium)
	case "zor", "hard":
		return string(testparams.Hard)
	}
	if fallback == "" {
		return string(testparams.Medium)
	}
	return string(fallback)
}

// Distribution splits total evenly across types, giving the remainder to
// the first types.
func Distribution(total int, types ...testparams.QuestionType) map[testparams.QuestionType]int {
	out := make(map[testparams.QuestionType]int, len(types))
	if len(types) == 0 || total <= 0 {
		return out
	}
	base, rem := total/len(types), total%len(types)
	for i, t := range types {
		n := base
		if i < rem {
			n++
		}
		out[t] = n
	}
	return out
}

func writerName(t testparams.QuestionType) string {
	switch t {
	case testparams.MultipleChoice:
		return "MultipleChoiceExpert"
	case testparams.OpenEnded:
		return "ClassicQuestionExpert"
	case testparams.FillBlank:
		return "FillBlankExpert"
	case testparams.TrueFalse:
		return "TrueFalseExpert"
	}
	return "QuestionWriter"
}

func (g *Generator) writer(t testparams.QuestionType) *agent.Agent {
	a := &agent.Agent{
		Name:        writerName(t),
		Tools:       []tools.Tool{ValidatorTool{Type: t}},
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	switch t {
	case testparams.MultipleChoice:
		a.Role = "Çoktan Seçmeli Soru Uzmanı"
		a.Goal = "Verilen metin ve tercihlere göre yüksek kaliteli çoktan seçmeli sorular oluşturmak ve JSON formatını doğrulamak."
		a.Backstory = "Sen çoktan seçmeli soru yazma konusunda uzman bir eğitimcisin. Her soru için istenen tüm alanları eksiksiz doldurursun."
	case testparams.OpenEnded:
		a.Role = "Klasik Soru Uzmanı"
		a.Goal = "Verilen metin ve tercihlere göre düşündürücü ve kapsamlı açık uçlu sorular oluşturmak ve JSON formatını doğrulamak."
		a.Backstory = "Sen açık uçlu sorular konusunda uzman bir akademisyensin. Öğrencilerin analitik düşünme yeteneklerini test eden sorular hazırlıyorsun."
	case testparams.FillBlank:
		a.Role = "Boşluk Doldurma Uzmanı"
		a.Goal = "Verilen metne ve tercihlere göre etkili boşluk doldurma soruları oluşturmak ve JSON formatını doğrulamak."
		a.Backstory = "Sen boşluk doldurma soruları konusunda uzman bir öğretmensin. Anahtar kelime ve kavramları vurgulayan sorular hazırlıyorsun."
	case testparams.TrueFalse:
		a.Role = "Doğru-Yanlış Soru Uzmanı"
		a.Goal = "Verilen metne ve tercihlere göre net doğru-yanlış soruları oluşturmak ve JSON formatını doğrulamak."
		a.Backstory = "Sen kavram yanılgılarını ortaya çıkaran doğru-yanlış soruları yazan deneyimli bir öğretmensin."
	}
	return a
}

var formats = map[testparams.QuestionType]struct{ fields, example string }{
	testparams.MultipleChoice: {
		fields: "- Açık ve anlaşılır soru metni\n- 4 seçenek (A, B, C, D)\n- Doğru cevap\n- Kısa açıklama\n- Zorluk seviyesi",
		example: `[
  {
    "soru": "Soru metni buraya gelecek?",
    "secenekler": {"A": "Seçenek A", "B": "Seçenek B", "C": "Seçenek C", "D": "Seçenek D"},
    "dogru_cevap": "B",
    "aciklama": "Bu cevabın neden doğru olduğuna dair kısa ve net bir açıklama.",
    "zorluk": "Orta"
  }
]`,
	},
	testparams.OpenEnded: {
		fields: "- Düşündürücü soru metni\n- Örnek cevap\n- Değerlendirme kriterleri\n- Zorluk seviyesi",
		example: `[
  {
    "soru": "Analiz ve sentez gerektiren açık uçlu soru metni?",
    "ornek_cevap": "Bu soruya verilebilecek detaylı ve kapsamlı bir örnek cevap.",
    "degerlendirme_kriterleri": "Değerlendirme kriterleri burada",
    "puan": 10,
    "zorluk": "Zor"
  }
]`,
	},
	testparams.FillBlank: {
		fields: "- Boşluklu cümle\n- Doğru cevap\n- Alternatif kabul edilebilir cevaplar\n- Zorluk seviyesi",
		example: `[
  {
    "soru": "Yapay zeka, _____ bilimlerinin bir dalıdır.",
    "dogru_cevap": "bilgisayar",
    "alternatif_cevaplar": ["bilgisayar", "computer science"],
    "zorluk": "Kolay"
  }
]`,
	},
	testparams.TrueFalse: {
		fields: "- Kesin doğru ya da yanlış olan bir ifade\n- Doğru cevap (Doğru/Yanlış)\n- Kısa açıklama\n- Zorluk seviyesi",
		example: `[
  {
    "soru": "Fotosentez yalnızca gece gerçekleşir.",
    "dogru_cevap": "Yanlış",
    "aciklama": "Fotosentez ışık enerjisine ihtiyaç duyar.",
    "zorluk": "Kolay"
  }
]`,
	},
}

func (g *Generator) task(writer *agent.Agent, document string, t testparams.QuestionType, count int, params testparams.Params, attempt int, scale float64) *agent.Task {
	f := formats[t]
	var b strings.Builder
	fmt.Fprintf(&b, "Verilen dokümandan %d adet %s sorusu oluştur.\n\n", count, strings.ToLower(t.Label()))
	fmt.Fprintf(&b, "Döküman içeriği: %s...\n\n", extract.Truncate(document, int(float64(contentLimit)*scale)))
	fmt.Fprintf(&b, "Zorluk seviyesi: %s\nÖğrenci seviyesi: %s\n\n", params.Difficulty, params.Level)
	fmt.Fprintf(&b, "Her soru için:\n%s\n\n", f.fields)
	b.WriteString("**ÇOK ÖNEMLİ ÇIKTI FORMATI:**\n")
	b.WriteString("Sadece aşağıdaki formata birebir uyan bir JSON listesi döndür. Başka hiçbir metin ekleme.\n")
	fmt.Fprintf(&b, "Çıktını %s aracı ile doğrula.\n", ValidatorTool{}.Name())
	if attempt > 1 {
		fmt.Fprintf(&b, "Bu %d. deneme, daha dikkatli ol!\n", attempt)
	}
	b.WriteString("\n" + f.example)

	return &agent.Task{
		Name:           string(t),
		Description:    b.String(),
		ExpectedOutput: fmt.Sprintf("JSON formatında %s soruları - %d adet", strings.ToLower(t.Label()), count),
		Agent:          writer,
	}
}
