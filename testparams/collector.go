package testparams

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/smallnest/researchchat/agent"
)

// Stage is a step of the parameter collection flow.
type Stage int

const (
	StageNotStarted Stage = iota
	StageQuestionTypes
	StageDifficulty
	StageStudentLevel
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageQuestionTypes:
		return "question_types"
	case StageDifficulty:
		return "difficulty"
	case StageStudentLevel:
		return "student_level"
	case StageComplete:
		return "complete"
	}
	return "not_started"
}

// Payload keys sent by the UI for each stage.
const (
	KeyQuestionTypes = "soru_turleri"
	KeyDifficulty    = "zorluk_seviyesi"
	KeyLevel         = "ogrenci_seviyesi"
)

var (
	// ErrMalformedPayload is returned for a reply that does not carry the
	// value the current stage asks for.
	ErrMalformedPayload = errors.New("malformed test parameter payload")
	// ErrAborted is returned when a malformed reply ended the flow.
	ErrAborted = errors.New("test parameter collection aborted")
	// ErrNotCollecting is returned by Handle outside a collection flow.
	ErrNotCollecting = errors.New("no test parameter collection in progress")
)

// DefaultMaxInvalid is how many malformed replies end the flow.
const DefaultMaxInvalid = 1

// Response is the user's answer to a stage prompt: a structured payload from
// the UI, or free text typed into the chat.
type Response struct {
	Payload map[string]any
	Text    string
}

// Outcome describes what Handle did.
type Outcome struct {
	Stage Stage
	// Prompt is the next stage's UI request; nil once complete.
	Prompt *Prompt
	// Params is set when the flow completed.
	Params *Params
}

// Collector asks for question types, difficulty and audience level over
// several turns. The zero value is not usable; create one with NewCollector.
// A Collector is owned by one conversation and is not safe for concurrent use.
type Collector struct {
	stage      Stage
	types      map[QuestionType]int
	difficulty Difficulty
	level      Level
	promptSent bool
	invalid    int
	maxInvalid int
}

// NewCollector creates a collector that aborts after maxInvalid malformed
// replies. Values below one mean DefaultMaxInvalid.
func NewCollector(maxInvalid int) *Collector {
	if maxInvalid < 1 {
		maxInvalid = DefaultMaxInvalid
	}
	return &Collector{maxInvalid: maxInvalid}
}

// Stage returns the current stage.
func (c *Collector) Stage() Stage { return c.stage }

// InProgress reports whether the flow is waiting for a reply.
func (c *Collector) InProgress() bool {
	return c.stage > StageNotStarted && c.stage < StageComplete
}

// Begin starts a new flow and returns the first stage prompt.
func (c *Collector) Begin() *Prompt {
	c.reset()
	c.stage = StageQuestionTypes
	return c.Prompt()
}

// Prompt returns the current stage's prompt the first time it is asked for,
// and nil afterwards until the stage changes.
func (c *Collector) Prompt() *Prompt {
	if c.promptSent || !c.InProgress() {
		return nil
	}
	c.promptSent = true
	return promptFor(c.stage)
}

// Abort ends the flow and discards everything collected.
func (c *Collector) Abort() {
	c.reset()
}

// Params returns the collected parameters once the flow is complete.
func (c *Collector) Params() (Params, bool) {
	if c.stage != StageComplete {
		return Params{}, false
	}
	return c.params(), true
}

// Handle records the reply for the current stage and advances. A reply the
// stage cannot use counts against the invalid budget; when the budget is
// spent the flow is aborted and the error wraps ErrAborted.
func (c *Collector) Handle(r Response) (*Outcome, error) {
	if !c.InProgress() {
		return nil, agent.E(agent.KindPrecondition, "test parameters", ErrNotCollecting)
	}

	var err error
	switch c.stage {
	case StageQuestionTypes:
		c.types, err = parseTypes(r)
	case StageDifficulty:
		c.difficulty, err = parseDifficulty(r)
	case StageStudentLevel:
		c.level, err = parseLevel(r)
	}
	if err != nil {
		stage := c.stage
		c.invalid++
		if c.invalid >= c.maxInvalid {
			c.reset()
			err = fmt.Errorf("%w at stage %s: %w", ErrAborted, stage, err)
		}
		return nil, agent.E(agent.KindProtocol, "test parameters", err)
	}

	c.stage++
	c.promptSent = false
	c.invalid = 0
	out := &Outcome{Stage: c.stage}
	if c.stage == StageComplete {
		p := c.params()
		out.Params = &p
		return out, nil
	}
	out.Prompt = c.Prompt()
	return out, nil
}

func (c *Collector) params() Params {
	types := make(map[QuestionType]int, len(c.types))
	total := 0
	for t, n := range c.types {
		types[t] = n
		total += n
	}
	return Params{QuestionTypes: types, Difficulty: c.difficulty, Level: c.level, Total: total}
}

func (c *Collector) reset() {
	c.stage = StageNotStarted
	c.types = nil
	c.difficulty = ""
	c.level = ""
	c.promptSent = false
	c.invalid = 0
}

// AbortMessage is the apology shown when the flow could not continue.
func AbortMessage(err error) string {
	return fmt.Sprintf("Üzgünüm, test parametreleri alınırken bir hata oluştu: %v", err)
}

func lower(s string) string {
	return strings.ToLowerSpecial(unicode.TurkishCase, s)
}

var typeNames = []struct {
	name string
	typ  QuestionType
}{
	{"çoktan seçmeli", MultipleChoice},
	{"coktan secmeli", MultipleChoice},
	{"çoktan", MultipleChoice},
	{"açık uçlu", OpenEnded},
	{"acik uclu", OpenEnded},
	{"klasik", OpenEnded},
	{"boşluk doldurma", FillBlank},
	{"bosluk doldurma", FillBlank},
	{"boşluk", FillBlank},
	{"doğru yanlış", TrueFalse},
	{"dogru yanlis", TrueFalse},
	{"doğru-yanlış", TrueFalse},
}

var leadingCount = regexp.MustCompile(`(\d+)\s*(?:tane\s*)?$`)

func parseTypes(r Response) (map[QuestionType]int, error) {
	if r.Payload != nil {
		raw, ok := r.Payload[KeyQuestionTypes]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedPayload, KeyQuestionTypes)
		}
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not an object", ErrMalformedPayload, KeyQuestionTypes)
		}
		return validateTypes(m)
	}

	msg := lower(r.Text)
	types := make(map[QuestionType]int)
	for _, tn := range typeNames {
		idx := strings.Index(msg, tn.name)
		if idx < 0 {
			continue
		}
		if _, seen := types[tn.typ]; seen {
			continue
		}
		opt, _ := typeOption(tn.typ)
		n := opt.DefaultCount
		if m := leadingCount.FindStringSubmatch(msg[:idx]); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		types[tn.typ] = min(n, opt.MaxCount)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no question type in %q", ErrMalformedPayload, r.Text)
	}
	return checkTotal(types)
}

func validateTypes(m map[string]any) (map[QuestionType]int, error) {
	types := make(map[QuestionType]int, len(m))
	for k, v := range m {
		opt, ok := typeOption(QuestionType(k))
		if !ok {
			return nil, fmt.Errorf("%w: unknown question type %q", ErrMalformedPayload, k)
		}
		n, ok := toInt(v)
		if !ok || n < 0 || n > opt.MaxCount {
			return nil, fmt.Errorf("%w: count for %s must be 0-%d", ErrMalformedPayload, k, opt.MaxCount)
		}
		types[QuestionType(k)] = n
	}
	return checkTotal(types)
}

func checkTotal(types map[QuestionType]int) (map[QuestionType]int, error) {
	total := 0
	for _, n := range types {
		total += n
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: at least one question is required", ErrMalformedPayload)
	}
	return types, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func stringValue(r Response, key string) (string, bool, error) {
	if r.Payload == nil {
		return lower(r.Text), false, nil
	}
	raw, ok := r.Payload[key]
	if !ok {
		return "", true, fmt.Errorf("%w: missing %q", ErrMalformedPayload, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", true, fmt.Errorf("%w: %q is not a string", ErrMalformedPayload, key)
	}
	return lower(strings.TrimSpace(s)), true, nil
}

func parseDifficulty(r Response) (Difficulty, error) {
	v, structured, err := stringValue(r, KeyDifficulty)
	if err != nil {
		return "", err
	}
	if structured {
		switch d := Difficulty(v); d {
		case Easy, Medium, Hard:
			return d, nil
		}
		return "", fmt.Errorf("%w: unknown difficulty %q", ErrMalformedPayload, v)
	}
	switch {
	case strings.Contains(v, "kolay"):
		return Easy, nil
	case strings.Contains(v, "zor"):
		return Hard, nil
	case strings.Contains(v, "orta"):
		return Medium, nil
	}
	return "", fmt.Errorf("%w: no difficulty in %q", ErrMalformedPayload, r.Text)
}

var (
	middleGrades = regexp.MustCompile(`\b[5-8]\b`)
	highGrades   = regexp.MustCompile(`\b(9|10|11|12)\b`)
)

func parseLevel(r Response) (Level, error) {
	v, structured, err := stringValue(r, KeyLevel)
	if err != nil {
		return "", err
	}
	if structured {
		switch l := Level(v); l {
		case MiddleSchool, HighSchool, University, Adult:
			return l, nil
		}
		return "", fmt.Errorf("%w: unknown level %q", ErrMalformedPayload, v)
	}
	switch {
	case strings.Contains(v, "ortaokul") || middleGrades.MatchString(v):
		return MiddleSchool, nil
	case strings.Contains(v, "üniversite") || strings.Contains(v, "universite") || strings.Contains(v, "akademik"):
		return University, nil
	case strings.Contains(v, "yetişkin") || strings.Contains(v, "yetiskin") || strings.Contains(v, "adult"):
		return Adult, nil
	case strings.Contains(v, "lise") || highGrades.MatchString(v):
		return HighSchool, nil
	}
	return "", fmt.Errorf("%w: no level in %q", ErrMalformedPayload, r.Text)
}
