package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/researchchat/agent"
	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/log"
)

const (
	// DefaultMaxRetries is the number of structuring attempts per call.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the pause between attempts.
	DefaultRetryDelay = time.Second
	// contentLimit is how much raw text the structuring agent sees.
	contentLimit = 2000
)

// Pipeline turns free research text into titled sections. Each attempt runs
// a two-task crew: one agent segments the text, a second converts the
// segments to a JSON array which is then repaired and validated.
type Pipeline struct {
	model       llms.Model
	pool        *agent.Pool
	notifier    event.Notifier
	logger      log.Logger
	maxRetries  int
	delay       time.Duration
	temperature float64
	maxTokens   int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxRetries sets the attempt budget.
func WithMaxRetries(n int) Option { return func(p *Pipeline) { p.maxRetries = n } }

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) Option { return func(p *Pipeline) { p.delay = d } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithGeneration sets temperature and max tokens for the agents.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(p *Pipeline) {
		p.temperature = temperature
		p.maxTokens = maxTokens
	}
}

// NewPipeline creates a pipeline running its crews on pool.
func NewPipeline(model llms.Model, pool *agent.Pool, opts ...Option) *Pipeline {
	p := &Pipeline{
		model:       model,
		pool:        pool,
		notifier:    event.Discard,
		logger:      log.GetDefaultLogger(),
		maxRetries:  DefaultMaxRetries,
		delay:       DefaultRetryDelay,
		temperature: -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract segments rawText about topic into sections. It returns either a
// non-empty list in which every section has a title and a description, or
// an error; never a partial result. A timed-out attempt ends the loop.
func (p *Pipeline) Extract(ctx context.Context, rawText, topic string, notifier event.Notifier) ([]Section, error) {
	if notifier == nil {
		notifier = p.notifier
	}

	policy := Policy{
		MaxAttempts: p.maxRetries,
		Delay:       p.delay,
		Retryable: func(err error) bool {
			return agent.KindOf(err) != agent.KindTimeout
		},
		OnFailure: func(a Attempt) {
			p.logger.Warn("structuring attempt %d/%d for %q failed: %v", a.Number, p.maxRetries, topic, a.Err)
			notifier.Notify(event.New(event.CrewProgress, "ReportProcessor",
				fmt.Sprintf("❌ JSON hatası (deneme %d): %v", a.Number, a.Err), nil))
		},
	}

	return Retry(ctx, policy, func(ctx context.Context, attempt int) ([]Section, error) {
		notifier.Notify(event.New(event.CrewProgress, "ReportProcessor",
			fmt.Sprintf("📋 Rapor yapılandırma denemesi %d/%d", attempt, p.maxRetries), nil))

		out, err := p.pool.DoWithRetry(ctx, func(ctx context.Context, scale float64) (string, error) {
			res, err := p.crew(rawText, topic, attempt, scale, notifier).Run(ctx)
			if err != nil {
				return "", err
			}
			return res.Output, nil
		})
		if err != nil {
			return nil, err
		}

		sections, err := ParseSections(out)
		if err != nil {
			return nil, err
		}
		notifier.Notify(event.New(event.CrewProgress, "JSONConverter",
			fmt.Sprintf("✅ JSON başarıyla oluşturuldu (deneme %d)", attempt), nil))
		return sections, nil
	})
}

func (p *Pipeline) crew(rawText, topic string, attempt int, scale float64, notifier event.Notifier) *agent.Crew {
	structurer := &agent.Agent{
		Name:        "ReportProcessor",
		Role:        "Rapor Yapılandırma Uzmanı",
		Goal:        "Araştırma sonuçlarını yapılandırılmış alt başlıklara böler",
		Backstory:   "Karmaşık bilgileri organize etme ve yapılandırma konusunda uzman.",
		Model:       p.model,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
	converter := &agent.Agent{
		Name:        "JSONConverter",
		Role:        "JSON Dönüştürme Uzmanı",
		Goal:        "Yapılandırılmış içeriği hatasız JSON formatına dönüştürür",
		Backstory:   "Veri formatlaması ve JSON yapıları konusunda uzman geliştirici.",
		Tools:       []tools.Tool{ValidatorTool{}},
		Model:       p.model,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}

	structure := &agent.Task{
		Name: "structure",
		Description: fmt.Sprintf("Aşağıdaki araştırma içeriğini analiz et ve %s konusu için "+
			"mantıklı alt başlıklara böl:\n\n%s...\n\n"+
			"GÖREV:\n"+
			"1. İçeriği incele ve ana konuları belirle\n"+
			"2. 4-6 arası alt başlık oluştur\n"+
			"3. Her alt başlık için kısa açıklama yaz\n"+
			"4. Sonucu şu formatta ver:\n"+
			"ALT BAŞLIK 1: [Başlık]\n"+
			"AÇIKLAMA: [Kısa açıklama]\n",
			topic, Truncate(rawText, int(float64(contentLimit)*scale))),
		ExpectedOutput: "Alt başlıklara bölünmüş yapılandırılmış içerik",
		Agent:          structurer,
	}
	convert := &agent.Task{
		Name: "convert",
		Description: fmt.Sprintf("Önceki görevden gelen yapılandırılmış içeriği JSON formatına dönüştür.\n"+
			"Bu %d. deneme, daha dikkatli ol!\n\n"+
			"HEDEF FORMAT:\n"+
			"[\n  {\n    \"alt_baslik\": \"Başlık 1\",\n    \"aciklama\": \"Açıklama metni\"\n  }\n]\n\n"+
			"KRİTİK KURALLAR:\n"+
			"- SADECE JSON array ver, başka hiçbir şey ekleme\n"+
			"- %s aracı ile kontrol et\n"+
			"- Türkçe karakterleri düzgün kodla\n", attempt, ValidatorTool{}.Name()),
		ExpectedOutput: "Geçerli JSON formatında alt başlıklar",
		Agent:          converter,
	}

	return &agent.Crew{
		Agents:   []*agent.Agent{structurer, converter},
		Tasks:    []*agent.Task{structure, convert},
		Process:  agent.ProcessSequential,
		Notifier: notifier,
		Logger:   p.logger,
	}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
