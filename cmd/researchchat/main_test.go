package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/researchchat/agent/agenttest"
	"github.com/smallnest/researchchat/config"
	"github.com/smallnest/researchchat/conversation"
	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/rag"
	"github.com/smallnest/researchchat/store/memory"
)

type lengthEmbedder struct{}

func (lengthEmbedder) vec(s string) []float32 {
	return []float32{float32(len(s)%7) + 1, float32(strings.Count(s, " ")%5) + 1}
}

func (e lengthEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vec(t)
	}
	return out, nil
}

func (e lengthEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vec(text), nil
}

func newTestREPL(t *testing.T, model llms.Model, input string) (*repl, *bytes.Buffer) {
	t.Helper()
	orch, err := conversation.NewOrchestrator(model, conversation.WithLogger(log.Discard))
	require.NoError(t, err)
	indexes, err := rag.NewManager(t.TempDir(), 2, lengthEmbedder{}, log.Discard)
	require.NoError(t, err)
	reg := conversation.NewRegistry(orch, memory.New(), indexes, log.Discard)
	t.Cleanup(func() { _ = reg.Close() })

	sess, err := reg.Get(context.Background(), "")
	require.NoError(t, err)
	var out bytes.Buffer
	return &repl{registry: reg, session: sess, in: strings.NewReader(input), out: &out}, &out
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "chat", "ingest", "sessions"}, names)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestREPL_Conversation(t *testing.T) {
	file := filepath.Join(t.TempDir(), "notlar.txt")
	require.NoError(t, os.WriteFile(file, []byte("Fotosentez bitkilerin ışıkla besin üretmesidir."), 0o600))

	script := strings.Join([]string{
		"selam",
		"/yükle " + file,
		"/yükle " + file,
		"/istatistik",
		"/parametre {bozuk",
		"/çık",
		"bu satır okunmaz",
	}, "\n")
	model := agenttest.NewText("Merhaba, hoş geldiniz!")
	r, out := newTestREPL(t, model, script)

	require.NoError(t, r.run(context.Background()))
	text := out.String()
	assert.Contains(t, text, "Merhaba, hoş geldiniz!")
	assert.Contains(t, text, "notlar.txt yüklendi")
	assert.Contains(t, text, "zaten yüklenmiş")
	assert.Contains(t, text, `"total_messages"`)
	assert.Contains(t, text, "Geçersiz JSON")
	assert.Equal(t, 1, model.Calls())
}

func TestREPL_ParametersWithoutCollection(t *testing.T) {
	r, out := newTestREPL(t, agenttest.NewText(), `/parametre {"difficulty":"orta"}`)
	require.NoError(t, r.run(context.Background()))
	assert.Contains(t, out.String(), "no test parameter collection")
}

func TestNewStore(t *testing.T) {
	a := &app{cfg: &config.Config{Store: config.StoreConfig{Backend: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "chat.db")}}}
	st, err := a.newStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	a.cfg.Store.Backend = "mongo"
	_, err = a.newStore(context.Background())
	assert.Error(t, err)
}
