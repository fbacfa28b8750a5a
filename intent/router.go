package intent

import (
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Intent is the branch chosen for one user turn.
type Intent string

const (
	PlainResponse         Intent = "plain_response"
	WebResearch           Intent = "web_research"
	RagSearch             Intent = "rag_search"
	GenerateTest          Intent = "generate_test"
	ProcessTestParameters Intent = "process_test_parameters"
	NoDocumentAvailable   Intent = "no_document_available"
	ResearchFollowup      Intent = "research_followup"
	// ConfirmResearch asks the user before starting a research run.
	ConfirmResearch Intent = "confirm_research"
	// ConfirmPendingAction answers an earlier confirmation request.
	ConfirmPendingAction Intent = "confirm_pending_action"
)

// Input is what the router needs to know about a session to classify a message.
type Input struct {
	Message string

	TestInProgress    bool
	PendingAction     string
	ResearchCompleted bool
	ForceResearch     bool

	// DocumentCount and Filenames describe the session's document index.
	DocumentCount int
	Filenames     []string
}

// Router classifies user messages with ordered keyword rules.
// It holds no per-session state and is safe for concurrent use.
type Router struct {
	ragEnabled      bool
	confirmResearch bool
}

// Option configures a Router.
type Option func(*Router)

// WithRAG enables or disables the document rules.
func WithRAG(enabled bool) Option {
	return func(r *Router) { r.ragEnabled = enabled }
}

// WithResearchConfirmation makes weak research cues ask for confirmation.
func WithResearchConfirmation(enabled bool) Option {
	return func(r *Router) { r.confirmResearch = enabled }
}

// NewRouter creates a router with document rules enabled.
func NewRouter(opts ...Option) *Router {
	r := &Router{ragEnabled: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify returns the intent of in.Message. The first matching rule wins:
// an in-progress test flow, a pending confirmation, test triggers, research
// follow-ups, forced research, document rules, explicit research triggers,
// then plain chat.
func (r *Router) Classify(in Input) Intent {
	msg := Lower(strings.TrimSpace(in.Message))

	if in.TestInProgress {
		return ProcessTestParameters
	}
	if in.PendingAction != "" {
		return ConfirmPendingAction
	}
	if containsAny(msg, testTriggers) {
		return GenerateTest
	}
	if in.ResearchCompleted && containsAny(msg, followupCues) {
		return ResearchFollowup
	}
	if in.ForceResearch {
		return WebResearch
	}

	if r.ragEnabled {
		if in.DocumentCount > 0 {
			if r.wantsDocuments(msg, in.Filenames) {
				return RagSearch
			}
		} else if containsAny(msg, missingDocumentRefs) {
			return NoDocumentAvailable
		}
	}

	if containsAny(msg, researchTriggers) {
		return WebResearch
	}
	if r.confirmResearch && containsAny(msg, weakResearchCues) {
		return ConfirmResearch
	}
	return PlainResponse
}

func (r *Router) wantsDocuments(msg string, filenames []string) bool {
	if containsAny(msg, directDocumentRefs) || containsAny(msg, outlineCues) {
		return true
	}
	asksContent := containsAny(msg, contentQuestions)
	if !asksContent {
		return false
	}
	for _, name := range filenames {
		for _, part := range filenameParts(name) {
			if strings.Contains(msg, part) {
				return true
			}
		}
	}
	return containsAny(msg, documentWords)
}

// filenameParts returns the distinctive words of a file name: lowered, without
// extension, split on spaces, dashes and underscores, longer than three runes.
func filenameParts(name string) []string {
	base := Lower(strings.TrimSuffix(name, filepath.Ext(name)))
	fields := strings.FieldsFunc(base, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	})
	parts := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 3 {
			parts = append(parts, f)
		}
	}
	return parts
}

// ResearchTopic removes the first explicit research trigger from message and
// returns what is left. Without a trigger, or when nothing is left, the
// trimmed message is returned.
func ResearchTopic(message string) string {
	message = strings.TrimSpace(message)
	msg := Lower(message)
	for _, kw := range researchTriggers {
		if !strings.Contains(msg, kw) {
			continue
		}
		if topic := strings.TrimSpace(removeFold(message, kw)); topic != "" {
			return topic
		}
		break
	}
	return message
}

// IsAffirmative reports whether message confirms a pending action. Words
// are matched whole, and any negation ("hayır", "yapma", "başlatmayalım")
// makes the message a refusal.
func IsAffirmative(message string) bool {
	words := strings.FieldsFunc(Lower(message), func(r rune) bool { return !unicode.IsLetter(r) })
	confirmed := false
	for _, w := range words {
		if slices.Contains(negations, w) {
			return false
		}
		switch verbForm(w) {
		case -1:
			return false
		case 1:
			confirmed = true
			continue
		}
		if slices.Contains(affirmatives, w) {
			confirmed = true
		}
	}
	return confirmed
}

// verbForm classifies w as a confirming verb form (1), a negated one (-1) or
// neither (0).
func verbForm(w string) int {
	for _, verb := range confirmVerbs {
		rest, ok := strings.CutPrefix(w, verb)
		if !ok {
			continue
		}
		if strings.HasPrefix(rest, "mak") || strings.HasPrefix(rest, "mek") {
			return 0
		}
		if strings.HasPrefix(rest, "m") {
			return -1
		}
		if slices.Contains(confirmVerbSuffixes, rest) {
			return 1
		}
	}
	return 0
}

// Lower lowercases s with Turkish casing rules, so "İ" becomes "i" and "I"
// becomes "ı".
func Lower(s string) string {
	return strings.ToLowerSpecial(unicode.TurkishCase, s)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// removeFold removes the first case-insensitive occurrence of kw from s.
func removeFold(s, kw string) string {
	n := utf8.RuneCountInString(kw)
	for i := range s {
		j, count := i, 0
		for j < len(s) && count < n {
			_, size := utf8.DecodeRuneInString(s[j:])
			j += size
			count++
		}
		if count < n {
			break
		}
		if Lower(s[i:j]) == kw || strings.EqualFold(s[i:j], kw) {
			return s[:i] + s[j:]
		}
	}
	return s
}
