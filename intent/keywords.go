package intent

var (
	testTriggers = []string{
		"test oluştur", "test olustur", "soru hazırla", "sınav yap", "test yap",
		"soru üret", "soru uret", "test hazırla", "test hazirla", "quiz oluştur",
		"quiz olustur", "sınav oluştur", "sinav olustur", "test üret", "test uret",
		"sorular oluştur", "sorular olustur", "değerlendirme yap", "degerlendirme yap",
	}

	followupCues = []string{
		"araştırma", "rapor", "bulgu", "sonuç", "detay", "açıkla", "anlatır mısın",
		"nedir", "nasıl", "ne demek", "anlat", "açıklayabilir", "daha fazla bilgi",
	}

	directDocumentRefs = []string{
		"bu doküman", "bu dokuman", "bu dosya", "bu pdf", "bu rapor",
		"bu belge", "yüklediğim", "yukledigim", "gönderdiğim", "gonderdigim",
		"dokümanı", "dokumanı", "dosyayı", "pdf'i", "raporu", "belgeyi",
	}

	outlineCues = []string{
		"içindekiler", "icindekiler", "içerik tablosu", "hangi bölümler",
		"bölümleri neler", "ana başlıklar", "özetini çıkar", "özetini ver",
	}

	contentQuestions = []string{
		"özet", "özetle", "içerik", "içinde", "neler var", "ne diyor",
		"bahsediyor", "yaziyor", "yazıyor", "anlatıyor", "gösteriyor",
		"açıklıyor", "hangi konular", "nasıl açıklıyor",
	}

	documentWords = []string{"pdf", "doküman", "dokuman"}

	missingDocumentRefs = []string{"pdf", "doküman", "dokuman", "dosya", "belge"}

	researchTriggers = []string{
		"araştır", "araştırma yap", "incele", "analiz et", "web'de ara", "internette ara",
	}

	weakResearchCues = []string{
		"hakkında bilgi", "nedir", "kimdir", "nasıl çalışır", "son gelişmeler",
	}

	// affirmatives are whole words that confirm a pending action.
	affirmatives = []string{"evet", "tamam", "olur", "onaylıyorum", "başla"}

	// confirmVerbs confirm when followed by an imperative or optative
	// suffix and deny when followed by the negative suffix -ma/-me. The
	// infinitive ("yapmak") is neither.
	confirmVerbs        = []string{"onayla", "başlat", "yap"}
	confirmVerbSuffixes = []string{"", "ın", "in", "alım", "elim", "ınız", "iniz", "abilirsin", "ebilirsin"}

	negations = []string{"hayır", "hayir", "yok", "istemiyorum", "istemem", "vazgeç", "vazgeçtim", "iptal", "olmaz", "dur"}
)
