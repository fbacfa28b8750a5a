package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/researchchat/extract"
)

func TestSafeTopic(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Yapay Zeka", "Yapay_Zeka"},
		{"Go: concurrency & channels!  ", "Go_concurrency__channels"},
		{"Çok uzun bir araştırma konusu başlığı burada bitiyor", "Çok_uzun_bir_araştırma_konusu_"},
		{"???", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeTopic(tt.in), tt.in)
	}
}

func TestStore_SaveLoadList(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	s.now = func() time.Time { return time.Date(2025, 3, 4, 10, 11, 12, 0, time.UTC) }

	sections := []extract.Section{
		{Title: "Tarihçe", Description: "İlk **gelişmeler**."},
		{Title: "Güncel", Description: "Son durum <script>alert(1)</script>"},
	}
	path, err := s.Save("Yapay Zeka", sections)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "crew_research_Yapay_Zeka_20250304_101112.json"), path)

	a, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Yapay Zeka", a.Topic)
	assert.Equal(t, sections, a.Subtopics)
	assert.Equal(t, Summary{TotalSubtopics: 2, ResearchDepth: "detailed", Sources: "web + youtube"}, a.Summary)

	page, err := os.ReadFile(strings.TrimSuffix(path, ".json") + ".html")
	require.NoError(t, err)
	assert.Contains(t, string(page), "<strong>gelişmeler</strong>")
	assert.NotContains(t, string(page), "<script>")

	s.now = func() time.Time { return time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC) }
	_, err = s.Save("Kuantum", sections[:1])
	require.NoError(t, err)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	topics := []string{entries[0].Topic, entries[1].Topic}
	assert.ElementsMatch(t, []string{"Yapay Zeka", "Kuantum"}, topics)
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := NewStore(t.TempDir()).Load("nope.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToHTML_Sanitizes(t *testing.T) {
	out := string(ToHTML("[link](javascript:alert(1)) and [ok](https://example.com)"))
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, `href="https://example.com"`)
}
