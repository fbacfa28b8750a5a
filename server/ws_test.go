package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/researchchat/agent/agenttest"
	"github.com/smallnest/researchchat/conversation"
	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/research"
	"github.com/smallnest/researchchat/store"
)

type stubResearcher struct{}

func (stubResearcher) Run(_ context.Context, topic string, n event.Notifier) (*research.Result, error) {
	n.Notify(event.New(event.SubtopicsFound, "ResearchCoordinator", "2 alt başlık bulundu", nil))
	return &research.Result{Topic: topic, FinalReport: "# " + topic + "\n\nRapor"}, nil
}

type message map[string]any

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws" + query
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func read(t *testing.T, c *websocket.Conn) message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var m message
	require.NoError(t, wsjson.Read(ctx, c, &m))
	return m
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, v))
}

func TestWebSocket_Chat(t *testing.T) {
	f := newFixture(t, agenttest.NewText("Merhaba! Size nasıl yardımcı olabilirim?"))
	c := f.dial(t, "")

	hello := read(t, c)
	require.Equal(t, MsgSession, hello["type"])
	id := hello["session_id"].(string)
	require.NotEmpty(t, id)

	send(t, c, Inbound{Type: MsgPing})
	assert.Equal(t, MsgPong, read(t, c)["type"])

	send(t, c, Inbound{Type: MsgUserMessage, Content: "selam"})
	reply := read(t, c)
	assert.Equal(t, MsgAIResponse, reply["type"])
	assert.Equal(t, "Merhaba! Size nasıl yardımcı olabilirim?", reply["content"])
	assert.Equal(t, "plain_response", reply["intent"])
	assert.Equal(t, id, reply["session_id"])

	msgs, err := f.store.LoadMessages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleAI, msgs[1].Role)
	assert.Equal(t, int64(1), f.metrics.Snapshot().MessagesProcessed)
}

func TestWebSocket_EventsPrecedeReply(t *testing.T) {
	f := newFixture(t, agenttest.NewText(), conversation.WithResearcher(stubResearcher{}))
	c := f.dial(t, "")
	read(t, c)

	send(t, c, Inbound{Type: MsgUserMessage, Content: "kara delikleri araştır"})
	var types []string
	for {
		m := read(t, c)
		types = append(types, m["type"].(string))
		if m["type"] == MsgAIResponse {
			assert.Equal(t, "web_research", m["intent"])
			assert.Contains(t, m["content"], "Rapor")
			break
		}
	}
	assert.Equal(t, []string{string(event.WorkflowMessage), string(event.SubtopicsFound), MsgAIResponse}, types)
	assert.Equal(t, int64(1), f.metrics.Snapshot().ResearchRuns)
}

func TestWebSocket_BadMessagesKeepConnection(t *testing.T) {
	f := newFixture(t, agenttest.NewText())
	c := f.dial(t, "")
	read(t, c)

	ctx := context.Background()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{bozuk")))
	m := read(t, c)
	assert.Equal(t, MsgError, m["type"])
	assert.Contains(t, m["error"], "invalid message")

	send(t, c, Inbound{Type: "dance"})
	m = read(t, c)
	assert.Equal(t, MsgError, m["type"])
	assert.Contains(t, m["error"], "dance")

	send(t, c, Inbound{Type: MsgTestParamsResponse, Payload: map[string]any{"difficulty": "orta"}})
	m = read(t, c)
	assert.Equal(t, MsgError, m["type"])
	assert.Contains(t, m["error"], "no test parameter collection")

	send(t, c, Inbound{Type: MsgUserMessage})
	assert.Equal(t, MsgError, read(t, c)["type"])

	send(t, c, Inbound{Type: MsgPing})
	assert.Equal(t, MsgPong, read(t, c)["type"])
}

func TestWebSocket_UnknownSession(t *testing.T) {
	f := newFixture(t, agenttest.NewText())
	c := f.dial(t, "?session_id=yok")
	m := read(t, c)
	assert.Equal(t, MsgError, m["type"])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWebSocket_ResumesSession(t *testing.T) {
	f := newFixture(t, agenttest.NewText("birinci", "ikinci"))
	first := f.dial(t, "")
	id := read(t, first)["session_id"].(string)
	send(t, first, Inbound{Type: MsgUserMessage, Content: "bir"})
	assert.Equal(t, "birinci", read(t, first)["content"])
	first.Close(websocket.StatusNormalClosure, "")

	second := f.dial(t, "?session_id="+id)
	assert.Equal(t, id, read(t, second)["session_id"])
	send(t, second, Inbound{Type: MsgUserMessage, Content: "iki"})
	assert.Equal(t, "ikinci", read(t, second)["content"])

	assert.Eventually(t, func() bool {
		return f.metrics.Snapshot().ActiveConnections == 1
	}, 2*time.Second, 10*time.Millisecond)
}
