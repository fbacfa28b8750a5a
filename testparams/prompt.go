package testparams

// Option is one selectable answer in a stage prompt.
type Option struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Description  string `json:"description"`
	Selected     bool   `json:"selected"`
	DefaultCount int    `json:"default_count,omitempty"`
	MaxCount     int    `json:"max_count,omitempty"`
}

// Prompt is the UI request for one stage.
type Prompt struct {
	Stage          string   `json:"stage"`
	Content        string   `json:"content"`
	Options        []Option `json:"options"`
	NextButtonText string   `json:"next_button_text"`
}

var typeOptions = []Option{
	{ID: string(MultipleChoice), Label: "Çoktan Seçmeli Sorular", Description: "A, B, C, D şıklı sorular", Selected: true, DefaultCount: 5, MaxCount: 20},
	{ID: string(OpenEnded), Label: "Klasik (Açık Uçlu) Sorular", Description: "Uzun cevap gerektiren sorular", Selected: true, DefaultCount: 3, MaxCount: 10},
	{ID: string(FillBlank), Label: "Boşluk Doldurma Soruları", Description: "Eksik kelime/kavram tamamlama", DefaultCount: 2, MaxCount: 15},
	{ID: string(TrueFalse), Label: "Doğru-Yanlış Soruları", Description: "İki seçenekli doğruluk soruları", DefaultCount: 5, MaxCount: 20},
}

func typeOption(t QuestionType) (Option, bool) {
	for _, o := range typeOptions {
		if o.ID == string(t) {
			return o, true
		}
	}
	return Option{}, false
}

func promptFor(s Stage) *Prompt {
	switch s {
	case StageQuestionTypes:
		return &Prompt{
			Stage: s.String(),
			Content: "🎯 **Test Oluşturma Ayarları**\n\n**1. Hangi soru türlerini ve kaçar tane istiyorsunuz?**\n\n" +
				"Her soru türü için 0-20 arası sayı belirleyebilirsiniz:",
			Options:        append([]Option(nil), typeOptions...),
			NextButtonText: "Devam Et",
		}
	case StageDifficulty:
		return &Prompt{
			Stage:   s.String(),
			Content: "**2. Testin zorluk seviyesini seçin:**",
			Options: []Option{
				{ID: string(Easy), Label: "Kolay", Description: "Temel kavramlar ve basit uygulamalar"},
				{ID: string(Medium), Label: "Orta", Description: "Orta seviye analiz ve uygulama", Selected: true},
				{ID: string(Hard), Label: "Zor", Description: "İleri seviye analiz ve sentez"},
			},
			NextButtonText: "Devam Et",
		}
	case StageStudentLevel:
		return &Prompt{
			Stage:   s.String(),
			Content: "**3. Hedef öğrenci seviyesini seçin:**",
			Options: []Option{
				{ID: string(MiddleSchool), Label: "Ortaokul (5-8. Sınıf)", Description: "Temel kavramlar ve basit açıklamalar"},
				{ID: string(HighSchool), Label: "Lise (9-12. Sınıf)", Description: "Detaylı analiz ve kavramsal bağlantılar", Selected: true},
				{ID: string(University), Label: "Üniversite", Description: "İleri seviye akademik içerik"},
				{ID: string(Adult), Label: "Yetişkin Eğitimi", Description: "Pratik odaklı öğrenme"},
			},
			NextButtonText: "Testi Oluştur",
		}
	}
	return nil
}
