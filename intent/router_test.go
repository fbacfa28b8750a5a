package intent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestRouter_Classify(t *testing.T) {
	r := NewRouter()
	withDocs := func(in Input) Input {
		in.DocumentCount = 1
		in.Filenames = []string{"Fotosentez_Notlari.pdf"}
		return in
	}

	tests := []struct {
		name string
		in   Input
		want Intent
	}{
		{"plain chat", Input{Message: "merhaba nasılsın"}, PlainResponse},
		{"test trigger", Input{Message: "Test Oluştur lütfen"}, GenerateTest},
		{"test in progress wins over trigger", Input{Message: "test oluştur", TestInProgress: true}, ProcessTestParameters},
		{"test in progress with anything", Input{Message: "kolay", TestInProgress: true}, ProcessTestParameters},
		{"pending action", Input{Message: "evet", PendingAction: "web_research"}, ConfirmPendingAction},
		{"follow-up after research", Input{Message: "ikinci bölümü açıkla", ResearchCompleted: true}, ResearchFollowup},
		{"follow-up cue without research", Input{Message: "ikinci bölümü açıkla"}, PlainResponse},
		{"forced research", Input{Message: "kuantum bilgisayarlar", ForceResearch: true}, WebResearch},
		{"test trigger beats forced research", Input{Message: "test yap", ForceResearch: true}, GenerateTest},
		{"direct document reference", withDocs(Input{Message: "Bu PDF ne anlatıyor?"}), RagSearch},
		{"outline request", withDocs(Input{Message: "içindekiler neler"}), RagSearch},
		{"filename fragment and content question", withDocs(Input{Message: "fotosentez notlarında neler var"}), RagSearch},
		{"filename fragment without content question", withDocs(Input{Message: "fotosentez"}), PlainResponse},
		{"document word and content question", withDocs(Input{Message: "dokümanda hangi konular geçiyor"}), RagSearch},
		{"document reference without documents", Input{Message: "bu pdf ne diyor"}, NoDocumentAvailable},
		{"document rules before research", withDocs(Input{Message: "bu dosyayı incele"}), RagSearch},
		{"explicit research", Input{Message: "yapay zeka trendlerini araştır"}, WebResearch},
		{"İ lowers to i", Input{Message: "İNCELE: mars görevleri"}, WebResearch},
		{"weak cue without confirmation", Input{Message: "kara delik nedir"}, PlainResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Classify(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, r.Classify(tt.in), "classification must be stable")
		})
	}
}

func TestRouter_Options(t *testing.T) {
	noRAG := NewRouter(WithRAG(false))
	assert.Equal(t, PlainResponse, noRAG.Classify(Input{Message: "bu pdf ne diyor"}))
	assert.Equal(t, PlainResponse, noRAG.Classify(Input{Message: "bu pdf ne diyor", DocumentCount: 2}))

	confirm := NewRouter(WithResearchConfirmation(true))
	assert.Equal(t, ConfirmResearch, confirm.Classify(Input{Message: "kara delik nedir"}))
	assert.Equal(t, WebResearch, confirm.Classify(Input{Message: "kara delikleri araştır"}))
}

func TestResearchTopic(t *testing.T) {
	tests := map[string]string{
		"yapay zeka trendlerini araştır":    "yapay zeka trendlerini",
		"İnternette ara Go 1.25 yenilikleri": "Go 1.25 yenilikleri",
		"Kuantum hesaplamayı İncele":        "Kuantum hesaplamayı",
		"araştır":                           "araştır",
		"  mars kolonisi  ":                 "mars kolonisi",
	}
	got := make(map[string]string, len(tests))
	for in := range tests {
		got[in] = ResearchTopic(in)
	}
	if diff := cmp.Diff(tests, got); diff != "" {
		t.Errorf("ResearchTopic mismatch (-want +got):\n%s", diff)
	}
}

func TestFilenameParts(t *testing.T) {
	assert.Equal(t, []string{"fotosentez", "notlari"}, filenameParts("Fotosentez_Notlari.pdf"))
	assert.Equal(t, []string{"rapor"}, filenameParts("AB-rapor 2.txt"))
	assert.Empty(t, filenameParts("a.pdf"))
}

func TestIsAffirmative(t *testing.T) {
	tests := map[string]bool{
		"Evet, başlat":           true,
		"ONAYLA":                 true,
		"tamam yapalım":          true,
		"yap":                    true,
		"başlatın lütfen":        true,
		"hayır":                  false,
		"HAYIR":                  false,
		"hayır, yapma":           false,
		"yapmayalım":             false,
		"evet ama başlatma":      false,
		"onaylamıyorum":          false,
		"vazgeçtim":              false,
		"yapay zeka":             false,
		"bilmiyorum":             false,
		"":                       false,
		"evet, yapmak istiyorum": true,
	}
	for msg, want := range tests {
		assert.Equal(t, want, IsAffirmative(msg), msg)
	}
}
