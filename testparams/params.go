package testparams

import (
	"fmt"
	"strings"
)

// QuestionType identifies one kind of test question.
type QuestionType string

const (
	MultipleChoice QuestionType = "coktan_secmeli"
	OpenEnded      QuestionType = "klasik"
	FillBlank      QuestionType = "bosluk_doldurma"
	TrueFalse      QuestionType = "dogru_yanlis"
)

// QuestionTypes lists every question type in presentation order.
var QuestionTypes = []QuestionType{MultipleChoice, OpenEnded, FillBlank, TrueFalse}

// Label returns the display name of t.
func (t QuestionType) Label() string {
	switch t {
	case MultipleChoice:
		return "Çoktan Seçmeli"
	case OpenEnded:
		return "Klasik (Açık Uçlu)"
	case FillBlank:
		return "Boşluk Doldurma"
	case TrueFalse:
		return "Doğru-Yanlış"
	}
	return string(t)
}

// Difficulty is the requested test difficulty.
type Difficulty string

const (
	Easy   Difficulty = "kolay"
	Medium Difficulty = "orta"
	Hard   Difficulty = "zor"
)

// Label returns the display name of d.
func (d Difficulty) Label() string {
	switch d {
	case Easy:
		return "Kolay"
	case Medium:
		return "Orta"
	case Hard:
		return "Zor"
	}
	return string(d)
}

// Level is the audience the test is written for.
type Level string

const (
	MiddleSchool Level = "ortaokul"
	HighSchool   Level = "lise"
	University   Level = "universite"
	Adult        Level = "yetiskin"
)

// Label returns the display name of l.
func (l Level) Label() string {
	switch l {
	case MiddleSchool:
		return "Ortaokul"
	case HighSchool:
		return "Lise"
	case University:
		return "Üniversite"
	case Adult:
		return "Yetişkin"
	}
	return string(l)
}

// Params is a complete set of test parameters.
type Params struct {
	QuestionTypes map[QuestionType]int `json:"soru_turleri"`
	Difficulty    Difficulty           `json:"zorluk_seviyesi"`
	Level         Level                `json:"ogrenci_seviyesi"`
	Total         int                  `json:"toplam_soru"`
}

// Requested returns the question types with a positive count, in
// presentation order.
func (p Params) Requested() []QuestionType {
	var out []QuestionType
	for _, t := range QuestionTypes {
		if p.QuestionTypes[t] > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Distribution renders the per-type counts, e.g. "Çoktan Seçmeli: 5, Klasik (Açık Uçlu): 3".
func (p Params) Distribution() string {
	parts := make([]string, 0, len(p.QuestionTypes))
	for _, t := range p.Requested() {
		parts = append(parts, fmt.Sprintf("%s: %d", t.Label(), p.QuestionTypes[t]))
	}
	return strings.Join(parts, ", ")
}

// Summary is the confirmation message sent once all parameters are known.
func (p Params) Summary() string {
	return fmt.Sprintf("✅ **Test parametreleri ayarlandı!**\n\n"+
		"🎯 **Soru türleri:** %s\n"+
		"📊 **Zorluk:** %s\n"+
		"🎓 **Seviye:** %s\n"+
		"🔢 **Toplam soru:** %d\n\n"+
		"🔄 Test sorularını oluşturuyorum, bu işlem 2-3 dakika sürebilir...",
		p.Distribution(), p.Difficulty.Label(), p.Level.Label(), p.Total)
}
