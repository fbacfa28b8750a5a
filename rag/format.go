package rag

import (
	"fmt"
	"strings"
	"time"
)

// FormatContext renders search results as the numbered source block that is
// prepended to the user's question. sessionID names the conversation the
// documents belong to.
func FormatContext(sessionID string, results []Result, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "YÜKLENEN PDF DOKÜMANLARINDAN BULUNAN BİLGİLER (Sohbet: %s):\n\n", sessionID)
	for i, r := range results {
		name := r.Filename
		if name == "" {
			name = "Bilinmeyen dosya"
		}
		fmt.Fprintf(&b, "%d. KAYNAK: %s (Bölüm %d, Benzerlik: %%%.1f)\n", i+1, name, r.ChunkIndex+1, r.Similarity*100)
		fmt.Fprintf(&b, "İÇERİK: %s\n\n", r.Content)
	}
	fmt.Fprintf(&b, "TOPLAM KAYNAK: %d doküman parçası\n", len(results))
	fmt.Fprintf(&b, "ARAMA TARİHİ: %s", at.Format(time.DateTime))
	return b.String()
}
