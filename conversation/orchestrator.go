package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/researchchat/agent"
	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/graph"
	"github.com/smallnest/researchchat/intent"
	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/quiz"
	"github.com/smallnest/researchchat/rag"
	"github.com/smallnest/researchchat/research"
	"github.com/smallnest/researchchat/testparams"
)

// Node names of the conversation graph.
const (
	NodeClassify        = "classify"
	NodeResearch        = "research"
	NodePresentResearch = "present_research"
	NodeAskConfirmation = "ask_confirmation"
	NodeConfirm         = "confirm"
	NodeRagSearch       = "rag_search"
	NodeNoDocument      = "no_document"
	NodeCheckDocument   = "check_document"
	NodeAskParams       = "ask_params"
	NodeCollectParams   = "collect_params"
	NodeGenerateTest    = "generate_test"
	NodePresentTest     = "present_test"
	NodeRespond         = "respond"
)

const agentName = "Conversation"

// Researcher runs a web research workflow.
type Researcher interface {
	Run(ctx context.Context, topic string, notifier event.Notifier) (*research.Result, error)
}

// QuizWriter generates test questions from a document.
type QuizWriter interface {
	Generate(ctx context.Context, document string, params testparams.Params, notifier event.Notifier) (*quiz.Test, error)
}

// Observer receives timings of graph nodes and whole turns.
type Observer interface {
	ObserveNode(node string, d time.Duration, err error)
	ObserveTurn(intent string, d time.Duration, failed bool)
}

// Request is one user turn.
type Request struct {
	// Message is the typed message. Empty for side channel replies.
	Message string
	// ForceResearch routes the message to web research.
	ForceResearch bool
	// Payload is a structured test parameter reply from the UI.
	Payload map[string]any
}

// Reply is the outcome of a turn.
type Reply struct {
	Intent intent.Intent `json:"intent"`
	// Content is the assistant message. It is empty when the turn answered
	// only through events.
	Content string `json:"content"`
	// Prompt is the test parameter request sent during this turn.
	Prompt *testparams.Prompt `json:"prompt,omitempty"`
	// Confirmation is the question asked before starting research.
	Confirmation string     `json:"confirmation,omitempty"`
	Test         *quiz.Test `json:"test,omitempty"`
	Failed       bool       `json:"failed,omitempty"`
}

// Orchestrator runs conversation turns. It holds no session state and may
// serve any number of sessions concurrently.
type Orchestrator struct {
	model      llms.Model
	router     *intent.Router
	researcher Researcher
	quiz       QuizWriter
	runnable   *graph.StateRunnable[*State]

	systemPrompt string
	temperature  float64
	maxTokens    int
	maxHistory   int
	maxInvalid   int
	topK         int
	maxSteps     int

	modelRetries    int
	modelRetryDelay time.Duration
	workflowTimeout time.Duration

	observer Observer
	logger   log.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRouter sets the intent router.
func WithRouter(r *intent.Router) Option {
	return func(o *Orchestrator) { o.router = r }
}

// WithResearcher sets the research workflow.
func WithResearcher(r Researcher) Option {
	return func(o *Orchestrator) { o.researcher = r }
}

// WithQuizWriter sets the test generator.
func WithQuizWriter(q QuizWriter) Option {
	return func(o *Orchestrator) { o.quiz = q }
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) Option {
	return func(o *Orchestrator) { o.systemPrompt = p }
}

// WithGeneration sets temperature and max tokens of chat answers.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// WithMaxHistory sets how many messages are kept besides the system prompt.
func WithMaxHistory(n int) Option {
	return func(o *Orchestrator) { o.maxHistory = n }
}

// WithMaxInvalidReplies sets how many malformed parameter replies end a
// test parameter flow.
func WithMaxInvalidReplies(n int) Option {
	return func(o *Orchestrator) { o.maxInvalid = n }
}

// WithTopK sets how many chunks a document search returns.
func WithTopK(k int) Option {
	return func(o *Orchestrator) { o.topK = k }
}

// WithModelRetry re-runs a failed chat answer up to retries times, waiting
// delay before the first retry and doubling it after each one. Only
// upstream failures are retried.
func WithModelRetry(retries int, delay time.Duration) Option {
	return func(o *Orchestrator) {
		o.modelRetries = retries
		o.modelRetryDelay = delay
	}
}

// WithWorkflowTimeout bounds a whole research run and a whole test
// generation. Zero disables the bound.
func WithWorkflowTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.workflowTimeout = d }
}

// WithObserver reports node and turn timings to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator builds and compiles the conversation graph.
func NewOrchestrator(model llms.Model, opts ...Option) (*Orchestrator, error) {
	if model == nil {
		return nil, errors.New("conversation: model is required")
	}
	o := &Orchestrator{
		model:        model,
		systemPrompt: DefaultSystemPrompt,
		temperature:  -1,
		maxHistory:   DefaultMaxHistory,
		maxInvalid:   testparams.DefaultMaxInvalid,
		topK:         rag.DefaultTopK,
		maxSteps:     10,
		logger:       log.GetDefaultLogger(),
		now:          time.Now,

		modelRetries:    DefaultModelRetries,
		modelRetryDelay: time.Second,
		workflowTimeout: DefaultWorkflowTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.router == nil {
		o.router = intent.NewRouter()
	}

	g := graph.NewStateGraph[*State]()
	addWorkflow := func(name, description string, fn func(context.Context, *State) (*State, error)) {
		if o.workflowTimeout > 0 {
			g.AddNodeWithTimeout(name, description, o.workflowTimeout, fn)
			return
		}
		g.AddNode(name, description, fn)
	}
	g.AddNode(NodeClassify, "classify the user's message", o.classify)
	addWorkflow(NodeResearch, "run the research workflow", o.research)
	g.AddNode(NodePresentResearch, "present the research result", o.presentResearch)
	g.AddNode(NodeAskConfirmation, "ask before starting research", o.askConfirmation)
	g.AddNode(NodeConfirm, "answer a pending confirmation", o.confirm)
	g.AddNode(NodeRagSearch, "search the session's documents", o.ragSearch)
	g.AddNode(NodeNoDocument, "explain how to upload a document", o.noDocument)
	g.AddNode(NodeCheckDocument, "load the document a test is written from", o.checkDocument)
	g.AddNode(NodeAskParams, "start the test parameter flow", o.askParams)
	g.AddNode(NodeCollectParams, "record a test parameter reply", o.collectParams)
	addWorkflow(NodeGenerateTest, "generate test questions", o.generateTest)
	g.AddNode(NodePresentTest, "present the generated test", o.presentTest)
	g.AddNodeWithRetry(NodeRespond, "answer with the chat model", &graph.RetryPolicy{
		MaxRetries:      o.modelRetries,
		BackoffStrategy: graph.ExponentialBackoff,
		BaseDelay:       o.modelRetryDelay,
		Retryable:       func(err error) bool { return agent.IsKind(err, agent.KindUpstream) },
	}, o.respond)

	g.SetEntryPoint(NodeClassify)
	g.AddConditionalEdge(NodeClassify, o.route)
	g.AddEdge(NodeResearch, NodePresentResearch)
	g.AddEdge(NodePresentResearch, graph.END)
	g.AddEdge(NodeAskConfirmation, graph.END)
	g.AddConditionalEdge(NodeConfirm, func(_ context.Context, st *State) string {
		if st.PendingAction == ActionWebResearch {
			return NodeResearch
		}
		return graph.END
	})
	g.AddEdge(NodeRagSearch, NodeRespond)
	g.AddEdge(NodeNoDocument, graph.END)
	g.AddConditionalEdge(NodeCheckDocument, func(_ context.Context, st *State) string {
		if st.DocumentText == "" {
			return graph.END
		}
		return NodeAskParams
	})
	g.AddEdge(NodeAskParams, graph.END)
	g.AddConditionalEdge(NodeCollectParams, func(_ context.Context, st *State) string {
		if st.Params.Stage() == testparams.StageComplete {
			return NodeGenerateTest
		}
		return graph.END
	})
	g.AddEdge(NodeGenerateTest, NodePresentTest)
	g.AddEdge(NodePresentTest, graph.END)
	g.AddEdge(NodeRespond, graph.END)

	g.AddListener(graph.NodeListenerFunc[*State](func(_ context.Context, ev graph.NodeEvent, node string, st *State, err error) {
		switch ev {
		case graph.NodeEventStart:
			o.logger.Debug("session %s: node %s started", st.SessionID, node)
		case graph.NodeEventError:
			o.logger.Error("session %s: node %s failed: %v", st.SessionID, node, err)
		}
	}))
	if o.observer != nil {
		g.AddListener(graph.NewTimingListener[*State](o.observer.ObserveNode))
	}

	runnable, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile conversation graph: %w", err)
	}
	o.runnable = runnable
	return o, nil
}

// NewState returns a fresh state for sessionID configured like o.
func (o *Orchestrator) NewState(sessionID string) *State {
	return NewState(sessionID, o.systemPrompt, o.maxInvalid)
}

// Nodes returns the node names of the compiled graph.
func (o *Orchestrator) Nodes() []string { return o.runnable.Nodes() }

// Turn runs one turn on st. docs may be nil when the session has no
// document index. The returned reply is always usable: when the graph
// fails, the routing flags are cleared and the reply carries the error
// message, and the error is returned as well.
func (o *Orchestrator) Turn(ctx context.Context, st *State, req Request, docs Documents, notifier event.Notifier) (*Reply, error) {
	if notifier == nil {
		notifier = event.Discard
	}
	start := o.now()
	st.turn = turn{
		input:    req.Message,
		force:    req.ForceResearch,
		payload:  req.Payload,
		docs:     docs,
		notifier: notifier,
	}
	defer func() { st.turn = turn{} }()

	if req.Payload == nil && req.Message != "" {
		st.add(llms.ChatMessageTypeHuman, req.Message)
	}

	_, err := o.runnable.InvokeWithConfig(ctx, st, &graph.Config{MaxSteps: o.maxSteps})
	var nodeErr *graph.NodeError
	if err != nil && ctx.Err() == nil && errors.As(err, &nodeErr) && nodeErr.Node == NodeRespond {
		st.fail(agentName, errorMessage(nodeErr.Err))
		err = nil
	}
	reply := st.turn.reply
	reply.Intent = st.Intent
	if err != nil {
		st.clearRouting()
		msg := turnErrorMessage(err)
		reply.Content = msg
		reply.Failed = true
		notifier.Notify(event.New(event.Error, agentName, msg, map[string]any{"intent": string(st.Intent)}))
	}
	st.trim(o.maxHistory)

	if o.observer != nil {
		o.observer.ObserveTurn(string(reply.Intent), o.now().Sub(start), reply.Failed)
	}
	return &reply, err
}

func (o *Orchestrator) classify(_ context.Context, st *State) (*State, error) {
	st.RagContext = ""
	st.HasDocContext = false

	if st.turn.payload != nil {
		st.Intent = intent.ProcessTestParameters
	} else {
		st.Intent = o.router.Classify(intent.Input{
			Message:           st.turn.input,
			TestInProgress:    st.Params.InProgress(),
			PendingAction:     st.PendingAction,
			ResearchCompleted: st.Research != nil,
			ForceResearch:     st.turn.force,
			DocumentCount:     st.documentCount(),
			Filenames:         st.filenames(),
		})
	}
	o.logger.Info("session %s: intent %s", st.SessionID, st.Intent)
	return st, nil
}

func (o *Orchestrator) route(_ context.Context, st *State) string {
	switch st.Intent {
	case intent.WebResearch:
		return NodeResearch
	case intent.ConfirmResearch:
		return NodeAskConfirmation
	case intent.ConfirmPendingAction:
		return NodeConfirm
	case intent.RagSearch:
		return NodeRagSearch
	case intent.NoDocumentAvailable:
		return NodeNoDocument
	case intent.GenerateTest:
		return NodeCheckDocument
	case intent.ProcessTestParameters:
		return NodeCollectParams
	}
	return NodeRespond
}

func (o *Orchestrator) research(ctx context.Context, st *State) (*State, error) {
	topic := st.PendingTopic
	if st.Intent != intent.ConfirmPendingAction || topic == "" {
		topic = intent.ResearchTopic(st.turn.input)
	}
	st.PendingAction = ""
	st.PendingTopic = ""

	if o.researcher == nil {
		st.turn.researchErr = errors.New(msgNoResearcher)
		return st, nil
	}
	st.notify(event.New(event.WorkflowMessage, agentName,
		fmt.Sprintf("🚀 '%s' konusu için çok ajanlı araştırma başlatılıyor...", topic),
		map[string]any{"topic": topic}))

	res, err := o.researcher.Run(ctx, topic, st.turn.notifier)
	if err != nil {
		o.logger.Error("session %s: research %q failed: %v", st.SessionID, topic, err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			st.turn.researchErr = errors.New(researchTimeoutMessage(topic, o.workflowTimeout))
			return st, nil
		}
		st.turn.researchErr = errors.New(research.ErrorMessage(topic, err))
		return st, nil
	}
	st.Research = res
	return st, nil
}

func (o *Orchestrator) presentResearch(_ context.Context, st *State) (*State, error) {
	if err := st.turn.researchErr; err != nil {
		st.fail("ResearchCoordinator", err.Error())
		return st, nil
	}
	if st.Research == nil || st.Research.FinalReport == "" {
		st.say(msgEmptyResearch)
		return st, nil
	}
	st.say(st.Research.FinalReport)
	return st, nil
}

func (o *Orchestrator) askConfirmation(_ context.Context, st *State) (*State, error) {
	topic := intent.ResearchTopic(st.turn.input)
	st.PendingAction = ActionWebResearch
	st.PendingTopic = topic
	msg := confirmationMessage(topic)
	st.turn.reply.Confirmation = msg
	st.notify(event.New(event.ConfirmationRequest, agentName, msg,
		map[string]any{"action": ActionWebResearch, "topic": topic}))
	return st, nil
}

func (o *Orchestrator) confirm(_ context.Context, st *State) (*State, error) {
	if st.PendingAction == ActionWebResearch && intent.IsAffirmative(st.turn.input) {
		return st, nil
	}
	st.PendingAction = ""
	st.PendingTopic = ""
	st.say(msgDeclined)
	return st, nil
}

func (o *Orchestrator) ragSearch(ctx context.Context, st *State) (*State, error) {
	if st.turn.docs == nil {
		return st, nil
	}
	results, err := st.turn.docs.Search(ctx, st.turn.input, o.topK)
	switch {
	case errors.Is(err, rag.ErrNoDocuments):
		return st, nil
	case err != nil:
		o.logger.Warn("session %s: document search failed: %v", st.SessionID, err)
		return st, nil
	case len(results) == 0:
		o.logger.Info("session %s: no chunk above the similarity threshold", st.SessionID)
		return st, nil
	}
	st.RagContext = rag.FormatContext(st.SessionID, results, o.now())
	st.HasDocContext = true
	st.notify(event.New(event.WorkflowMessage, "DocumentSearch",
		fmt.Sprintf("📚 %d ilgili doküman parçası bulundu (Sohbet: %s)", len(results), st.SessionID),
		map[string]any{"count": len(results)}))
	return st, nil
}

func (o *Orchestrator) noDocument(_ context.Context, st *State) (*State, error) {
	st.say(noDocumentMessage(st.SessionID))
	return st, nil
}

func (o *Orchestrator) checkDocument(ctx context.Context, st *State) (*State, error) {
	st.DocumentText = ""
	st.Test = nil
	if st.documentCount() == 0 {
		chunks := 0
		if st.turn.docs != nil {
			chunks = st.turn.docs.Stats().TotalChunks
		}
		st.say(noTestDocumentMessage(st.documentCount(), chunks))
		return st, nil
	}
	if o.quiz == nil {
		st.fail(agentName, msgNoQuizWriter)
		return st, nil
	}
	text, err := st.turn.docs.FullText(ctx)
	if err != nil {
		st.fail(agentName, errorMessage(err))
		return st, nil
	}
	if text == "" {
		st.fail(agentName, msgEmptyDocuments)
		return st, nil
	}
	st.DocumentText = text
	o.logger.Info("session %s: test source is %d characters", st.SessionID, len(text))
	return st, nil
}

func (o *Orchestrator) askParams(_ context.Context, st *State) (*State, error) {
	st.PendingAction = ""
	st.PendingTopic = ""
	o.sendPrompt(st, st.Params.Begin())
	return st, nil
}

func (o *Orchestrator) sendPrompt(st *State, p *testparams.Prompt) {
	if p == nil {
		return
	}
	st.turn.reply.Prompt = p
	st.notify(event.New(event.TestParametersRequest, "TestParameters", p.Content,
		map[string]any{"stage": p.Stage, "prompt": p}))
}

func (o *Orchestrator) collectParams(_ context.Context, st *State) (*State, error) {
	out, err := st.Params.Handle(testparams.Response{Payload: st.turn.payload, Text: st.turn.input})
	if err != nil {
		switch {
		case errors.Is(err, testparams.ErrAborted), errors.Is(err, testparams.ErrNotCollecting):
			st.fail("TestParameters", testparams.AbortMessage(err))
		default:
			st.say(invalidReplyMessage(err))
		}
		return st, nil
	}
	if out.Params == nil {
		o.sendPrompt(st, out.Prompt)
		return st, nil
	}
	summary := out.Params.Summary()
	st.notify(event.New(event.TestParametersComplete, "TestParameters", summary,
		map[string]any{"test_parameters": *out.Params}))
	return st, nil
}

func (o *Orchestrator) generateTest(ctx context.Context, st *State) (*State, error) {
	params, _ := st.Params.Params()
	if o.quiz == nil {
		st.turn.testErr = errors.New(msgNoQuizWriter)
		return st, nil
	}
	st.notify(event.New(event.CrewProgress, "TestCrew",
		fmt.Sprintf("🧠 %d soruluk test hazırlıyorum...", params.Total), nil))

	test, err := o.quiz.Generate(ctx, st.DocumentText, params, st.turn.notifier)
	if err != nil {
		o.logger.Error("session %s: test generation failed: %v", st.SessionID, err)
		st.turn.testErr = err
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			st.turn.testErr = fmt.Errorf("%s süre sınırı aşıldı", o.workflowTimeout)
		}
		return st, nil
	}
	st.Test = test
	st.notify(event.New(event.CrewProgress, "TestCrew", "🎉 Test soruları başarıyla oluşturuldu!", nil))
	return st, nil
}

func (o *Orchestrator) presentTest(_ context.Context, st *State) (*State, error) {
	if err := st.turn.testErr; err != nil {
		st.fail("TestCrew", testErrorMessage(err))
		return st, nil
	}
	if st.Test == nil || st.Test.Count() == 0 {
		st.fail("TestCrew", msgEmptyTest)
		return st, nil
	}
	params, _ := st.Params.Params()
	msg := testMessage(params, st.Test)
	st.turn.reply.Test = st.Test
	st.notify(event.New(event.TestGenerated, "TestCrew", msg,
		map[string]any{"questions": st.Test, "test_parameters": params}))
	st.say(msg)
	return st, nil
}

func (o *Orchestrator) respond(ctx context.Context, st *State) (*State, error) {
	var prompt string
	switch {
	case st.HasDocContext:
		prompt = ragPrompt(st.turn.input, st.RagContext, st.SessionID)
	case st.Intent == intent.ResearchFollowup && st.Research != nil:
		prompt = researchPrompt(st.turn.input, st.Research.Context())
	}

	answer, err := agent.Generate(ctx, o.model, st.modelMessages(prompt), o.temperature, o.maxTokens)
	if err != nil {
		return st, err
	}
	st.say(answer)
	return st, nil
}
