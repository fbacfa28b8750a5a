package testparams

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/researchchat/agent"
)

func TestCollector_FullFlow(t *testing.T) {
	c := NewCollector(0)
	assert.Equal(t, StageNotStarted, c.Stage())
	assert.False(t, c.InProgress())

	p := c.Begin()
	require.NotNil(t, p)
	assert.Equal(t, "question_types", p.Stage)
	assert.Len(t, p.Options, 4)
	assert.Nil(t, c.Prompt(), "prompt is handed out once per stage")

	out, err := c.Handle(Response{Payload: map[string]any{
		KeyQuestionTypes: map[string]any{"coktan_secmeli": 5.0, "klasik": 3.0},
	}})
	require.NoError(t, err)
	assert.Equal(t, StageDifficulty, out.Stage)
	require.NotNil(t, out.Prompt)
	assert.Equal(t, "difficulty", out.Prompt.Stage)
	assert.Nil(t, c.Prompt())

	out, err = c.Handle(Response{Payload: map[string]any{KeyDifficulty: "orta"}})
	require.NoError(t, err)
	assert.Equal(t, StageStudentLevel, out.Stage)
	assert.Equal(t, "Testi Oluştur", out.Prompt.NextButtonText)

	_, ok := c.Params()
	assert.False(t, ok)

	out, err = c.Handle(Response{Payload: map[string]any{KeyLevel: "lise"}})
	require.NoError(t, err)
	assert.Equal(t, StageComplete, out.Stage)
	assert.Nil(t, out.Prompt)
	require.NotNil(t, out.Params)

	want := Params{
		QuestionTypes: map[QuestionType]int{MultipleChoice: 5, OpenEnded: 3},
		Difficulty:    Medium,
		Level:         HighSchool,
		Total:         8,
	}
	if diff := cmp.Diff(want, *out.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	got, ok := c.Params()
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.False(t, c.InProgress())
}

func TestCollector_StageNeverDecreases(t *testing.T) {
	c := NewCollector(3)
	c.Begin()
	last := c.Stage()
	replies := []Response{
		{Text: "bilmiyorum"},
		{Text: "5 çoktan seçmeli"},
		{Payload: map[string]any{"wrong": "key"}},
		{Text: "zor olsun"},
		{Text: "üniversite"},
	}
	for _, r := range replies {
		_, _ = c.Handle(r)
		assert.GreaterOrEqual(t, c.Stage(), last)
		last = c.Stage()
	}
	assert.Equal(t, StageComplete, c.Stage())
}

func TestCollector_MalformedPayloadAborts(t *testing.T) {
	c := NewCollector(DefaultMaxInvalid)
	c.Begin()

	_, err := c.Handle(Response{Payload: map[string]any{"zorluk_seviyesi": "orta"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, agent.KindProtocol, agent.KindOf(err))
	assert.Equal(t, StageNotStarted, c.Stage())
	assert.False(t, c.InProgress())

	assert.Contains(t, AbortMessage(err), "Üzgünüm, test parametreleri alınırken bir hata oluştu")
}

func TestCollector_InvalidBudget(t *testing.T) {
	c := NewCollector(2)
	c.Begin()

	_, err := c.Handle(Response{Text: "hmm"})
	require.ErrorIs(t, err, ErrMalformedPayload)
	assert.NotErrorIs(t, err, ErrAborted)
	assert.Equal(t, StageQuestionTypes, c.Stage())
	assert.Nil(t, c.Prompt(), "a rejected reply does not re-send the prompt")

	_, err = c.Handle(Response{Text: "hmm"})
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, StageNotStarted, c.Stage())
}

func TestCollector_HandleWithoutFlow(t *testing.T) {
	_, err := NewCollector(1).Handle(Response{Text: "kolay"})
	assert.ErrorIs(t, err, ErrNotCollecting)
	assert.Equal(t, agent.KindPrecondition, agent.KindOf(err))
}

func TestCollector_Abort(t *testing.T) {
	c := NewCollector(1)
	c.Begin()
	_, err := c.Handle(Response{Text: "çoktan seçmeli"})
	require.NoError(t, err)
	c.Abort()
	assert.Equal(t, StageNotStarted, c.Stage())
	_, ok := c.Params()
	assert.False(t, ok)

	p := c.Begin()
	require.NotNil(t, p)
	assert.Equal(t, "question_types", p.Stage)
}

func TestParseTypes(t *testing.T) {
	tests := []struct {
		name    string
		in      Response
		want    map[QuestionType]int
		wantErr bool
	}{
		{"free text with counts", Response{Text: "10 Çoktan seçmeli ve 2 tane klasik"}, map[QuestionType]int{MultipleChoice: 10, OpenEnded: 2}, false},
		{"free text defaults", Response{Text: "boşluk doldurma ile doğru yanlış"}, map[QuestionType]int{FillBlank: 2, TrueFalse: 5}, false},
		{"count capped", Response{Text: "50 klasik"}, map[QuestionType]int{OpenEnded: 10}, false},
		{"nothing recognised", Response{Text: "farketmez"}, nil, true},
		{"string counts", Response{Payload: map[string]any{KeyQuestionTypes: map[string]any{"dogru_yanlis": "4"}}}, map[QuestionType]int{TrueFalse: 4}, false},
		{"unknown type", Response{Payload: map[string]any{KeyQuestionTypes: map[string]any{"essay": 1.0}}}, nil, true},
		{"over max", Response{Payload: map[string]any{KeyQuestionTypes: map[string]any{"klasik": 11.0}}}, nil, true},
		{"fractional", Response{Payload: map[string]any{KeyQuestionTypes: map[string]any{"klasik": 1.5}}}, nil, true},
		{"all zero", Response{Payload: map[string]any{KeyQuestionTypes: map[string]any{"klasik": 0.0}}}, nil, true},
		{"not an object", Response{Payload: map[string]any{KeyQuestionTypes: []any{"klasik"}}}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTypes(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDifficultyAndLevel(t *testing.T) {
	d, err := parseDifficulty(Response{Text: "Kolay olsun"})
	require.NoError(t, err)
	assert.Equal(t, Easy, d)

	_, err = parseDifficulty(Response{Payload: map[string]any{KeyDifficulty: "extreme"}})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	levels := map[string]Level{
		"7. sınıf":        MiddleSchool,
		"ÜNİVERSİTE":      University,
		"yetişkin eğitimi": Adult,
		"11. sınıf":       HighSchool,
		"lise":            HighSchool,
	}
	for text, want := range levels {
		got, err := parseLevel(Response{Text: text})
		require.NoError(t, err, text)
		assert.Equal(t, want, got, text)
	}
	_, err = parseLevel(Response{Text: "fark etmez"})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestParams_Summary(t *testing.T) {
	p := Params{
		QuestionTypes: map[QuestionType]int{OpenEnded: 3, MultipleChoice: 5, FillBlank: 0},
		Difficulty:    Hard,
		Level:         University,
		Total:         8,
	}
	assert.Equal(t, []QuestionType{MultipleChoice, OpenEnded}, p.Requested())
	assert.Equal(t, "Çoktan Seçmeli: 5, Klasik (Açık Uçlu): 3", p.Distribution())
	s := p.Summary()
	assert.Contains(t, s, "📊 **Zorluk:** Zor")
	assert.Contains(t, s, "🎓 **Seviye:** Üniversite")
	assert.Contains(t, s, "🔢 **Toplam soru:** 8")
}
