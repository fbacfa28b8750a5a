package server

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/researchchat/agent/agenttest"
	"github.com/smallnest/researchchat/conversation"
	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/metrics"
	"github.com/smallnest/researchchat/rag"
	"github.com/smallnest/researchchat/store"
	"github.com/smallnest/researchchat/store/memory"
)

type wordEmbedder struct{}

func (wordEmbedder) vector(text string) []float32 {
	v := make([]float32, 17)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%16]++
	}
	v[16] = 0.01
	return v
}

func (e wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

type fixture struct {
	srv     *Server
	http    *httptest.Server
	store   store.Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, model llms.Model, opts ...conversation.Option) *fixture {
	t.Helper()
	m := metrics.New()
	base := []conversation.Option{conversation.WithLogger(log.Discard), conversation.WithObserver(m)}
	orch, err := conversation.NewOrchestrator(model, append(base, opts...)...)
	require.NoError(t, err)
	indexes, err := rag.NewManager(t.TempDir(), 4, wordEmbedder{}, log.Discard, rag.WithThreshold(0))
	require.NoError(t, err)
	st := memory.New()
	reg := conversation.NewRegistry(orch, st, indexes, log.Discard)
	t.Cleanup(func() { _ = reg.Close() })

	srv := New(reg,
		WithMetrics(m),
		WithLogger(log.Discard),
		WithUploads(t.TempDir(), 1<<20),
		WithSettings(Settings{Provider: "gemini", Model: "gemini-2.5-flash", Temperature: 0.7, MaxTokens: 2048, RAGEnabled: true}),
	)
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	return &fixture{srv: srv, http: hs, store: st, metrics: m}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.http.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) upload(t *testing.T, sessionID, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, f.http.URL+"/api/sessions/"+sessionID+"/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSessions_CRUD(t *testing.T) {
	f := newFixture(t, agenttest.NewText())

	resp := f.do(t, http.MethodPost, "/api/sessions", map[string]string{"title": "Fizik çalışması"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[store.Session](t, resp)
	assert.Equal(t, "Fizik çalışması", created.Title)

	resp = f.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]store.Session](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	resp = f.do(t, http.MethodPatch, "/api/sessions/"+created.ID, map[string]string{"title": "Kimya"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Kimya", decode[store.Session](t, resp).Title)

	resp = f.do(t, http.MethodPatch, "/api/sessions/"+created.ID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/sessions/"+created.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]store.Message](t, resp))

	resp = f.do(t, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, decode[errorBody](t, resp).Error)
}

func TestSessions_CreateWithoutBody(t *testing.T) {
	f := newFixture(t, agenttest.NewText())
	resp := f.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, strings.HasPrefix(decode[store.Session](t, resp).Title, "Sohbet"))
}

func TestDocuments_UploadListDelete(t *testing.T) {
	f := newFixture(t, agenttest.NewText())
	created := decode[store.Session](t, f.do(t, http.MethodPost, "/api/sessions", nil))

	resp := f.upload(t, created.ID, "notlar.txt", "Mitokondri hücrenin enerji santralidir.")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	up := decode[uploadResponse](t, resp)
	assert.True(t, up.Added)
	assert.Equal(t, "notlar.txt", up.Document.Filename)
	assert.Equal(t, 1, up.Stats.TotalDocuments)
	assert.Contains(t, up.Message, "başarıyla yüklendi")

	resp = f.upload(t, created.ID, "kopya.txt", "Mitokondri hücrenin enerji santralidir.")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[uploadResponse](t, resp).Added)

	resp = f.upload(t, created.ID, "virus.exe", "MZ")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	recs, err := f.store.ListDocuments(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, up.Document.FileHash, recs[0].FileHash)

	resp = f.do(t, http.MethodGet, "/api/sessions/"+created.ID+"/documents", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[rag.Stats](t, resp).TotalDocuments)

	resp = f.do(t, http.MethodDelete, "/api/sessions/"+created.ID+"/documents/"+up.Document.FileHash, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/sessions/"+created.ID+"/documents/"+up.Document.FileHash, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	recs, err = f.store.ListDocuments(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDocuments_UnknownSession(t *testing.T) {
	f := newFixture(t, agenttest.NewText())
	resp := f.upload(t, "yok", "notlar.txt", "metin")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthStatsAndMetrics(t *testing.T) {
	f := newFixture(t, agenttest.NewText())

	resp := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", health["status"])

	resp = f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[map[string]any](t, resp)
	assert.Equal(t, 0.0, stats["messages_processed"])
	assert.Equal(t, "gemini-2.5-flash", stats["settings"].(map[string]any)["model"])

	resp = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "researchchat_server_websocket_connections")
}

func TestCORS(t *testing.T) {
	f := newFixture(t, agenttest.NewText())
	req, err := http.NewRequest(http.MethodOptions, f.http.URL+"/api/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(store.ErrNotFound))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusOf(rag.ErrTooLarge))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(conversation.ErrEmptyMessage))
	assert.Equal(t, http.StatusInternalServerError, statusOf(io.ErrUnexpectedEOF))
}
