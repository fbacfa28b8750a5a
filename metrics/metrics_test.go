package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/researchchat/agent"
)

func TestMetrics_Turns(t *testing.T) {
	m := New()
	m.ObserveTurn("web_research", 2*time.Second, false)
	m.ObserveTurn("plain_response", time.Second, false)
	m.ObserveTurn("plain_response", time.Second, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("plain_response", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("plain_response", "error")))
	assert.Equal(t, Snapshot{MessagesProcessed: 3, ResearchRuns: 1}, m.Snapshot())
}

func TestMetrics_Nodes(t *testing.T) {
	m := New()
	m.ObserveNode("classify", time.Millisecond, nil)
	m.ObserveNode("research", time.Minute, errors.New("boom"))
	assert.Equal(t, 2, testutil.CollectAndCount(m.nodeDuration))
}

func TestMetrics_Connections(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed(3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.dropped))
	assert.Equal(t, int64(1), m.Snapshot().ActiveConnections)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.WatchPool(agent.NewPool(3))
	m.DocumentUploaded(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "researchchat_agent_pool_size 3"), text)
	assert.Contains(t, text, `researchchat_documents_uploads_total{status="ok"} 1`)
	assert.Contains(t, text, "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("plain_response", time.Second, false)
	m.ObserveNode("classify", time.Second, nil)
	m.ConnectionOpened()
	m.ConnectionClosed(1)
	m.DocumentUploaded(true)
	m.WatchPool(nil)
	assert.Equal(t, Snapshot{}, m.Snapshot())
}
