package quiz

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/smallnest/researchchat/agent"
	"github.com/smallnest/researchchat/extract"
	"github.com/smallnest/researchchat/testparams"
)

// ErrInvalidQuestion is wrapped when a decoded question lacks a field its
// type requires.
var ErrInvalidQuestion = errors.New("invalid question")

// Question is one generated test question. Fields that do not apply to the
// question's type are left empty.
type Question struct {
	Text         string            `json:"soru"`
	Options      map[string]string `json:"secenekler,omitempty"`
	Answer       string            `json:"dogru_cevap,omitempty"`
	Explanation  string            `json:"aciklama,omitempty"`
	SampleAnswer string            `json:"ornek_cevap,omitempty"`
	Criteria     string            `json:"degerlendirme_kriterleri,omitempty"`
	Points       int               `json:"puan,omitempty"`
	Alternatives []string          `json:"alternatif_cevaplar,omitempty"`
	Difficulty   string            `json:"zorluk,omitempty"`
	Quality      float64           `json:"kalite_puani"`
}

// ParseQuestions decodes model output into questions of type t and scores
// them. Every question needs a text plus the fields its type depends on.
func ParseQuestions(raw string, t testparams.QuestionType) ([]Question, error) {
	items, err := extract.ParseList(raw, "soru")
	if err != nil {
		return nil, err
	}
	out := make([]Question, 0, len(items))
	for i, it := range items {
		q := Question{
			Text:         strings.TrimSpace(str(it["soru"])),
			Options:      options(it["secenekler"]),
			Answer:       strings.TrimSpace(str(it["dogru_cevap"])),
			Explanation:  str(it["aciklama"]),
			SampleAnswer: str(it["ornek_cevap"]),
			Criteria:     str(it["degerlendirme_kriterleri"]),
			Points:       number(it["puan"]),
			Alternatives: stringList(it["alternatif_cevaplar"]),
			Difficulty:   strings.TrimSpace(str(it["zorluk"])),
		}
		if err := validate(&q, t); err != nil {
			return nil, agent.E(agent.KindMalformedOutput, "parse questions", fmt.Errorf("%w %d: %v", ErrInvalidQuestion, i, err))
		}
		q.Quality = Score(q, t)
		out = append(out, q)
	}
	return out, nil
}

// validate checks the fields type t depends on. A multiple-choice answer
// such as "b) ..." is reduced to its option key.
func validate(q *Question, t testparams.QuestionType) error {
	switch t {
	case testparams.MultipleChoice:
		if len(q.Options) < 2 {
			return errors.New("needs options")
		}
		key := strings.ToUpper(q.Answer)
		if _, ok := q.Options[key]; !ok {
			r, _ := utf8.DecodeRuneInString(key)
			key = string(r)
			if _, ok := q.Options[key]; !ok {
				return fmt.Errorf("answer %q is not an option", q.Answer)
			}
		}
		q.Answer = key
	case testparams.OpenEnded:
		if strings.TrimSpace(q.SampleAnswer) == "" {
			return errors.New("needs a sample answer")
		}
	case testparams.FillBlank, testparams.TrueFalse:
		if q.Answer == "" {
			return errors.New("needs an answer")
		}
	}
	return nil
}

// Score rates a question between 0 and 1: up to 0.4 for a question text of
// at least 20 runes, 0.4 for the fields of its type and 0.2 for a difficulty.
func Score(q Question, t testparams.QuestionType) float64 {
	score := 0.4 * math.Min(float64(utf8.RuneCountInString(q.Text))/20, 1)

	half := func(ok bool) float64 {
		if ok {
			return 0.2
		}
		return 0
	}
	switch t {
	case testparams.MultipleChoice:
		score += half(len(q.Options) == 4) + half(strings.TrimSpace(q.Explanation) != "")
	case testparams.OpenEnded:
		score += half(utf8.RuneCountInString(q.SampleAnswer) >= 20) + half(strings.TrimSpace(q.Criteria) != "")
	case testparams.FillBlank:
		score += half(strings.Contains(q.Text, "___")) + half(len(q.Alternatives) > 0)
	case testparams.TrueFalse:
		score += half(isTrueFalse(q.Answer)) + half(strings.TrimSpace(q.Explanation) != "")
	}
	score += half(q.Difficulty != "")
	return math.Round(score*100) / 100
}

func isTrueFalse(s string) bool {
	switch strings.ToLowerSpecial(unicode.TurkishCase, s) {
	case "doğru", "dogru", "yanlış", "yanlis", "true", "false", "d", "y":
		return true
	}
	return false
}

// normalize folds a question text for duplicate detection.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLowerSpecial(unicode.TurkishCase, s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		if s {
			return "Doğru"
		}
		return "Yanlış"
	case float64:
		return fmt.Sprintf("%g", s)
	}
	return ""
}

func number(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		var i int
		_, _ = fmt.Sscanf(n, "%d", &i)
		return i
	}
	return 0
}

func options(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[strings.ToUpper(strings.TrimSpace(k))] = str(val)
	}
	return out
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, el := range list {
		if s := str(el); s != "" {
			out = append(out, s)
		}
	}
	return out
}
