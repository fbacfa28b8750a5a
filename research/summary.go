package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/researchchat/extract"
)

const previewRunes = 500

// Summarize renders the chat message presenting a finished run: the list of
// sections, a preview of the first one and the run metadata.
func Summarize(topic string, sections []extract.Section, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 **'%s' Araştırması Tamamlandı!**\n\n", topic)
	b.WriteString("📋 **Keşfedilen Konular:**\n")
	for i, s := range sections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Title)
	}

	first := "Genel bilgiler"
	if len(sections) > 0 && sections[0].Title != "" {
		first = sections[0].Title
	}
	fmt.Fprintf(&b, "\n🚀 **İlk konu ile başlıyorum:** %s\n\n", first)

	if len(sections) > 0 {
		fmt.Fprintf(&b, "**%s Hakkında:**\n", first)
		desc := sections[0].Description
		if len([]rune(desc)) > previewRunes {
			b.WriteString(extract.Truncate(desc, previewRunes) + "...")
		} else {
			b.WriteString(desc + "\n")
		}
	}

	fmt.Fprintf(&b, "\n📊 **Toplam %d konu detaylandırıldı**", len(sections))
	fmt.Fprintf(&b, "\n⏰ **Araştırma tarihi:** %s", now.Format("2006-01-02 15:04"))
	return b.String()
}

// ErrorMessage is the chat message for a failed run.
func ErrorMessage(topic string, err error) string {
	return fmt.Sprintf("Üzgünüm, '%s' araştırması sırasında bir hata oluştu: %v", topic, err)
}

// Context renders a finished run as a block the chat model can answer
// follow-up questions from.
func (r *Result) Context() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ARAŞTIRMA BAĞLAMI\nKonu: %s\n\n", r.Topic)
	sections := r.Detailed
	if len(sections) == 0 {
		sections = r.Subtopics
	}
	for i, s := range sections {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, s.Title, s.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
