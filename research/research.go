package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/researchchat/agent"
	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/extract"
	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/report"
)

// Extractor turns raw research text into titled sections.
type Extractor interface {
	Extract(ctx context.Context, rawText, topic string, notifier event.Notifier) ([]extract.Section, error)
}

// Result is the outcome of one research run.
type Result struct {
	Topic string `json:"topic"`
	// Subtopics are the sections found by the structuring phase.
	Subtopics []extract.Section `json:"subtopics"`
	// Detailed has one entry per subtopic, in the same order. A section whose
	// expansion failed carries "Hata: ..." as its description.
	Detailed    []extract.Section `json:"detailed_research"`
	RawReport   string            `json:"raw_report,omitempty"`
	FinalReport string            `json:"final_report"`
	SavedPath   string            `json:"saved_file_path,omitempty"`
}

// Coordinator runs the five research phases: web research, video research,
// structuring, per-section detail and persistence.
type Coordinator struct {
	model     llms.Model
	pool      *agent.Pool
	extractor Extractor
	store     *report.Store

	webTools   []tools.Tool
	videoTools []tools.Tool

	logger      log.Logger
	temperature float64
	maxTokens   int
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWebTools sets the tools of the web and detail researchers.
func WithWebTools(t ...tools.Tool) Option {
	return func(c *Coordinator) { c.webTools = t }
}

// WithVideoTools sets the tools of the video analyst.
func WithVideoTools(t ...tools.Tool) Option {
	return func(c *Coordinator) { c.videoTools = t }
}

// WithStore sets where artifacts are written. A nil store skips persistence.
func WithStore(s *report.Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithGeneration sets temperature and max tokens for every agent.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(c *Coordinator) {
		c.temperature = temperature
		c.maxTokens = maxTokens
	}
}

// NewCoordinator creates a coordinator whose agent calls run on pool.
func NewCoordinator(model llms.Model, pool *agent.Pool, extractor Extractor, opts ...Option) *Coordinator {
	c := &Coordinator{
		model:       model,
		pool:        pool,
		extractor:   extractor,
		logger:      log.GetDefaultLogger(),
		temperature: -1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run researches topic. Failures of the first three phases abort the run;
// a failed section expansion only replaces that section's description.
func (c *Coordinator) Run(ctx context.Context, topic string, notifier event.Notifier) (*Result, error) {
	if notifier == nil {
		notifier = event.Discard
	}
	workflow := func(msg string) {
		notifier.Notify(event.New(event.WorkflowMessage, "ResearchCoordinator", msg, map[string]any{"topic": topic}))
	}

	workflow("🔍 Web araştırması başlatılıyor...")
	web, err := c.runAgent(ctx, c.webResearcher(), &agent.Task{
		Name:           "web_research",
		Description:    fmt.Sprintf("'%s' hakkında kapsamlı bir ön araştırma raporu oluştur.", topic),
		ExpectedOutput: "Detaylı, iyi yapılandırılmış ve bilgilendirici ön araştırma raporu.",
	}, notifier)
	if err != nil {
		return nil, fmt.Errorf("web research: %w", err)
	}
	workflow("✅ Web araştırması tamamlandı")

	workflow("📹 YouTube analizi başlatılıyor...")
	video, err := c.runAgent(ctx, c.videoAnalyst(), &agent.Task{
		Name: "youtube_research",
		Description: fmt.Sprintf("'%s' hakkında en popüler ve bilgilendirici YouTube videolarını bul. "+
			"En iyi videonun içeriğini incele ve anahtar noktaları özetle.", topic),
		ExpectedOutput: "YouTube video analizi, içerik özeti ve önemli bulgular.",
	}, notifier)
	if err != nil {
		return nil, fmt.Errorf("youtube research: %w", err)
	}
	workflow("✅ YouTube analizi tamamlandı")

	combined := fmt.Sprintf("WEB ARAŞTIRMA SONUÇLARI:\n%s\n\nYOUTUBE ANALİZ SONUÇLARI:\n%s", web, video)

	workflow("📋 Rapor yapılandırılıyor...")
	sections, err := c.extractor.Extract(ctx, combined, topic, notifier)
	if err != nil {
		return nil, fmt.Errorf("structure report: %w", err)
	}
	workflow("✅ Rapor yapılandırması tamamlandı")
	notifier.Notify(event.New(event.SubtopicsFound, "ReportProcessor",
		fmt.Sprintf("%d alt başlık bulundu", len(sections)),
		map[string]any{"subtopics": sections, "count": len(sections)}))

	workflow("🔍 Alt başlıklar detaylandırılıyor...")
	detailed := c.detail(ctx, topic, sections, notifier)
	workflow("✅ Detaylandırma tamamlandı")

	res := &Result{
		Topic:     topic,
		Subtopics: sections,
		Detailed:  detailed,
		RawReport: combined,
	}
	workflow("💾 Rapor kaydediliyor...")
	saved := "✅ Final rapor hazırlandı"
	if c.store != nil {
		path, err := c.store.Save(topic, detailed)
		if err != nil {
			c.logger.Warn("save research artifact for %q: %v", topic, err)
			saved = "⚠️ Rapor dosyaya kaydedilemedi, sonuçlar yine de hazır"
		} else {
			saved = "✅ Rapor kaydedildi"
		}
		res.SavedPath = path
	}
	res.FinalReport = Summarize(topic, detailed, c.now())
	notifier.Notify(event.New(event.WorkflowMessage, "ResearchCoordinator", saved,
		map[string]any{"topic": topic, "saved_file_path": res.SavedPath}))
	return res, nil
}

// detail expands every section in order. It never fails as a whole.
func (c *Coordinator) detail(ctx context.Context, topic string, sections []extract.Section, notifier event.Notifier) []extract.Section {
	detailed := make([]extract.Section, len(sections))
	n := len(sections)
	for i, s := range sections {
		idx := i + 1
		notifier.Notify(event.New(event.AgentMessage, "DetailResearcher",
			fmt.Sprintf("🔍 Alt başlık %d/%d detaylandırılıyor: %s", idx, n, s.Title), nil))
		notifier.Notify(progress(idx, n, s.Title, "running"))

		desc, err := c.runAgent(ctx, c.detailResearcher(), &agent.Task{
			Name: fmt.Sprintf("detail_%d", idx),
			Description: fmt.Sprintf("'%s' konusunu '%s' ana konusu bağlamında detaylandır.\n\n"+
				"MEVCUT AÇIKLAMA:\n%s\n\n"+
				"GÖREV:\n"+
				"1. Bu alt başlık hakkında ek web araştırması yap\n"+
				"2. Mevcut açıklamayı genişlet ve derinleştir\n"+
				"3. Güncel bilgileri, örnekleri ve detayları ekle\n"+
				"4. Kapsamlı ve anlaşılır bir açıklama oluştur\n"+
				"5. En az 200 kelimelik detaylı açıklama ver\n\n"+
				"ÇIKTI: Sadece detaylandırılmış açıklama metnini ver.", s.Title, topic, s.Description),
			ExpectedOutput: fmt.Sprintf("'%s' için kapsamlı detaylı açıklama", s.Title),
		}, notifier)
		if err != nil {
			c.logger.Warn("detail %q (%d/%d): %v", s.Title, idx, n, err)
			desc = fmt.Sprintf("Hata: %v", err)
		}
		detailed[i] = extract.Section{Title: s.Title, Description: strings.TrimSpace(desc)}

		notifier.Notify(event.New(event.AgentMessage, "DetailResearcher",
			fmt.Sprintf("✅ '%s' detaylandırıldı (%d/%d)", s.Title, idx, n), nil))
		notifier.Notify(progress(idx, n, s.Title, "completed"))
	}
	return detailed
}

func progress(idx, total int, title, status string) event.Event {
	return event.New(event.SubtopicProgress, "DetailResearcher", title, map[string]any{
		"index":  idx,
		"total":  total,
		"title":  title,
		"status": status,
	})
}

// runAgent runs a single-task crew on the pool.
func (c *Coordinator) runAgent(ctx context.Context, a *agent.Agent, task *agent.Task, notifier event.Notifier) (string, error) {
	task.Agent = a
	return c.pool.DoWithRetry(ctx, func(ctx context.Context, scale float64) (string, error) {
		t := *task
		if scale < 1 {
			t.Description += "\n\nKısa ve öz tut; yalnızca en önemli noktalara odaklan."
		}
		crew := &agent.Crew{
			Agents:   []*agent.Agent{a},
			Tasks:    []*agent.Task{&t},
			Process:  agent.ProcessSequential,
			Notifier: notifier,
			Logger:   c.logger,
		}
		res, err := crew.Run(ctx)
		if err != nil {
			return "", err
		}
		return res.Output, nil
	})
}

func (c *Coordinator) webResearcher() *agent.Agent {
	return &agent.Agent{
		Name:        "WebResearcher",
		Role:        "Kıdemli Web Araştırma Uzmanı",
		Goal:        "Verilen konuda kapsamlı web araştırması yaparak detaylı bilgi toplamak",
		Backstory:   "Web'deki en güncel ve güvenilir kaynakları bulma konusunda uzman bir araştırmacı.",
		Tools:       c.webTools,
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
}

func (c *Coordinator) videoAnalyst() *agent.Agent {
	return &agent.Agent{
		Name:        "YouTubeAnalyst",
		Role:        "YouTube İçerik Analisti",
		Goal:        "Konuyla ilgili en iyi YouTube videolarını bulup analiz etmek",
		Backstory:   "Video içeriklerindeki değerli bilgileri çıkarma konusunda uzman analist.",
		Tools:       c.videoTools,
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
}

func (c *Coordinator) detailResearcher() *agent.Agent {
	return &agent.Agent{
		Name:        "DetailResearcher",
		Role:        "Detay Araştırma Uzmanı",
		Goal:        "Belirlenen alt başlıkları derinlemesine araştırır",
		Backstory:   "Spesifik konularda derinlemesine araştırma yapma uzmanı.",
		Tools:       c.webTools,
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
}
