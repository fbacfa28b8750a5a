package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/researchchat/quiz"
	"github.com/smallnest/researchchat/testparams"
)

// DefaultSystemPrompt opens every conversation.
const DefaultSystemPrompt = `Sen web araştırması, doküman analizi ve test hazırlama yapabilen çok ajanlı bir asistansın.
Kullanıcılarla Türkçe konuşuyorsun ve onlara yardımcı olmaya odaklanıyorsun.

Özelliklerin:
- Web araştırması yapabilirsin
- Soru üretebilirsin
- Veri analizi yapabilirsin
- Metin özetleyebilirsin
- Yüklenen PDF dokümanlarından bilgi çıkarabilirsin
- Önceden yüklenmiş dokümanlar arasında arama yapabilirsin

Eğer kullanıcının sorusuyla ilgili yüklenmiş PDF dokümanlarında bilgi varsa,
öncelikle o bilgileri kullan ve hangi dokümanlardan geldiğini belirt.

Her zaman yardımcı, samimi ve profesyonel ol.`

const declinedMarker = "araştırma başlatılmadı"

const (
	msgDeclined       = "Anlaşıldı, " + declinedMarker + ". Size başka nasıl yardımcı olabilirim?"
	msgEmptyResearch  = "Araştırma tamamlandı, ancak bir sunum özeti oluşturulamadı."
	msgNoResearcher   = "Üzgünüm, web araştırması bu sunucuda etkin değil."
	msgNoQuizWriter   = "Üzgünüm, test oluşturma bu sunucuda etkin değil."
	msgEmptyTest      = "❌ Test soruları oluşturulamadı - boş sonuç."
	msgEmptyDocuments = "❌ Yüklenen dokümanlardan metin okunamadı. Lütfen dokümanı tekrar yükleyin."
)

func noDocumentMessage(sessionID string) string {
	return "📄 Bu sohbette henüz herhangi bir PDF dokümanı yüklenmemiş. Bir doküman hakkında soru sorabilmem için önce PDF dosyanızı yüklemeniz gerekiyor.\n\n" +
		"💡 **Nasıl PDF yükleyebilirim?**\n" +
		"• Ekranın sol üstündeki **'PDF Yükle'** butonuna tıklayın\n" +
		"• Dosyanızı seçin ve yükleme işlemini bekleyin\n" +
		"• Yükleme tamamlandıktan sonra doküman içeriği hakkında sorular sorabilirsiniz!\n\n" +
		"🔍 **PDF yükledikten sonra neler yapabilirim?**\n" +
		"• Dokümanın özetini isteyebilirsiniz\n" +
		"• Belirli konular hakkında sorular sorabilirsiniz\n" +
		"• İçerikten alıntılar ve detaylar alabilirsiniz\n\n" +
		fmt.Sprintf("📝 **Not:** Bu PDF'ler sadece bu sohbete (%s) özeldir.", sessionID)
}

func noTestDocumentMessage(documents, chunks int) string {
	return "📚 Test oluşturmak için önce bir doküman yüklemeniz gerekiyor.\n\n" +
		"💡 **Nasıl doküman yükleyebilirim?**\n" +
		"• Sol üstteki **'PDF Yükle'** butonuna tıklayın\n" +
		"• PDF veya metin dosyanızı seçin\n" +
		"• Yükleme tamamlandıktan sonra 'test oluştur' yazabilirsiniz\n\n" +
		fmt.Sprintf("📊 **Mevcut durum:** %d doküman, %d metin parçası", documents, chunks)
}

func confirmationMessage(topic string) string {
	return fmt.Sprintf("🔍 '%s' hakkında kapsamlı bir web araştırması yapmamı ister misiniz? "+
		"Başlatmak için 'evet' yazın.", topic)
}

func errorMessage(err error) string {
	return fmt.Sprintf("Üzgünüm, bir hata oluştu: %v", err)
}

func researchTimeoutMessage(topic string, limit time.Duration) string {
	return fmt.Sprintf("⏱️ '%s' araştırması %s içinde tamamlanamadı ve durduruldu. "+
		"Daha dar bir konuyla tekrar deneyebilirsiniz.", topic, limit)
}

func turnErrorMessage(err error) string {
	return fmt.Sprintf("Bir hata oluştu: %v", err)
}

func invalidReplyMessage(err error) string {
	return fmt.Sprintf("⚠️ Bu yanıtı anlayamadım: %v. Lütfen seçiminizi tekrar yapın.", err)
}

func testErrorMessage(err error) string {
	return fmt.Sprintf("❌ Test oluşturma hatası: %v", err)
}

func ragPrompt(question, context, sessionID string) string {
	return fmt.Sprintf(`
Kullanıcının sorusu: %s

Aşağıda bu sohbette yüklenmiş PDF dokümanlarından bulunan ilgili bilgiler var.
Bu bilgileri kullanarak kullanıcının sorusuna doğru ve detaylı bir şekilde cevap ver.

PDF DOKÜMANLARINDAN BULUNAN BİLGİLER:
%s

Cevabında:
1. PDF dokümanlarından elde edilen bilgileri kullan
2. Hangi dokümanlardan geldiğini belirt
3. Spesifik detayları vurgula
4. Eğer PDF'lerde olmayan bir şey soruyorsa, web araştırması önerebilirsin
5. Kullanıcı dostu ve bilgilendirici bir ton kullan

NOT: Bu bilgiler kullanıcının bu sohbete yüklediği PDF dokümanlarından geliyor.
Sohbet ID: %s
`, question, context, sessionID)
}

func researchPrompt(question, context string) string {
	return fmt.Sprintf(`Kullanıcının sorusu: %s

Aşağıda çok ajanlı sistem ile yapılan bir araştırmanın sonuçları var.
Bu araştırma verilerini kullanarak kullanıcının sorusuna detaylı ve doğru bir cevap ver.

ARAŞTIRMA VERİLERİ:
%s

Cevabında:
1. Araştırma verilerinden elde edilen bilgileri kullan
2. Spesifik detayları belirt
3. Kaynaklı bilgiler ver
4. Eğer araştırmada olmayan bir şey soruyorsa, bunu belirt
5. Gerekirse daha detaylı açıklama öner

Kullanıcı dostu ve bilgilendirici bir ton kullan.`, question, context)
}

// testMessage presents a generated test.
func testMessage(p testparams.Params, t *quiz.Test) string {
	var b strings.Builder
	b.WriteString("🎉 **Test Başarıyla Oluşturuldu!**\n\n")
	b.WriteString("📊 **Test Detayları:**\n")
	fmt.Fprintf(&b, "• **Toplam Soru:** %d\n", t.Count())
	fmt.Fprintf(&b, "• **Zorluk:** %s\n", p.Difficulty.Label())
	fmt.Fprintf(&b, "• **Seviye:** %s\n\n", p.Level.Label())

	b.WriteString("🎯 **Soru Dağılımı:**\n")
	for _, qt := range testparams.QuestionTypes {
		if n := len(t.Questions[qt]); n > 0 {
			fmt.Fprintf(&b, "• **%s:** %d soru\n", qt.Label(), n)
		}
	}
	if len(t.Failures) > 0 {
		b.WriteString("\n⚠️ **Oluşturulamayan türler:**\n")
		for _, qt := range testparams.QuestionTypes {
			if reason, ok := t.Failures[qt]; ok {
				fmt.Fprintf(&b, "• **%s:** %s\n", qt.Label(), reason)
			}
		}
	}
	b.WriteString("\n🚀 **Hazır!** Aşağıdaki **'Testi Çöz'** butonuna tıklayarak testinizi başlatabilirsiniz.\n")
	b.WriteString("📝 Test sonuçlarınız otomatik olarak değerlendirilecek ve eksik konularınız belirlenecek.")
	return b.String()
}
