package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/smallnest/researchchat/conversation"
	"github.com/smallnest/researchchat/event"
)

// Inbound message types.
const (
	MsgUserMessage        = "user_message"
	MsgTestParamsResponse = "test_parameters_response"
	MsgPing               = "ping"
)

// Outbound message types besides the event types.
const (
	MsgAIResponse = "ai_response"
	MsgPong       = "pong"
	MsgError      = "error"
	MsgSession    = "session"
)

const writeTimeout = 10 * time.Second

// Inbound is a client message.
type Inbound struct {
	Type          string         `json:"type"`
	SessionID     string         `json:"session_id,omitempty"`
	Content       string         `json:"content,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	ForceResearch bool           `json:"force_research,omitempty"`
}

// Outbound is a server message that is not an event.
type Outbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
	*conversation.Reply
	Timestamp time.Time `json:"timestamp"`
}

// conn serves one WebSocket connection. Turns run one at a time on a
// worker goroutine; events and replies share a single writer.
type conn struct {
	s       *Server
	ws      *websocket.Conn
	queue   *event.Queue
	replies chan Outbound
	turns   chan Inbound
	session *conversation.Session
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.originAllowed(r.Header.Get("Origin")) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.allowedOrigins})
	if err != nil {
		s.logger.Error("accept websocket: %v", err)
		return
	}
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := s.registry.Get(ctx, r.URL.Query().Get("session_id"))
	if err != nil {
		_ = wsjson.Write(ctx, ws, Outbound{Type: MsgError, Error: err.Error(), Timestamp: time.Now()})
		ws.Close(websocket.StatusPolicyViolation, "unknown session")
		return
	}

	s.metrics.ConnectionOpened()
	c := &conn{
		s:       s,
		ws:      ws,
		queue:   event.NewQueue(s.eventBuffer, s.logger),
		replies: make(chan Outbound, 16),
		turns:   make(chan Inbound, 16),
		session: sess,
	}
	defer func() {
		c.queue.Close()
		s.metrics.ConnectionClosed(c.queue.Dropped())
	}()
	s.logger.Info("websocket connected to session %s", sess.ID())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		c.writeLoop(ctx)
	}()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		c.turnLoop(ctx)
	}()

	c.send(ctx, Outbound{Type: MsgSession, SessionID: sess.ID()})
	c.readLoop(ctx)

	cancel()
	<-workerDone
	<-writerDone
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("websocket closed for session %s", c.session.ID())
}

func (c *conn) send(ctx context.Context, out Outbound) {
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	select {
	case c.replies <- out:
	case <-ctx.Done():
	}
}

func (c *conn) sendError(ctx context.Context, err error) {
	c.send(ctx, Outbound{Type: MsgError, Error: err.Error()})
}

func (c *conn) readLoop(ctx context.Context) {
	defer close(c.turns)
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				c.s.logger.Debug("websocket read: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			c.sendError(ctx, errors.New("binary messages are not supported"))
			continue
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.sendError(ctx, fmt.Errorf("invalid message: %w", err))
			continue
		}
		switch in.Type {
		case MsgPing:
			c.send(ctx, Outbound{Type: MsgPong})
		case MsgUserMessage, MsgTestParamsResponse:
			select {
			case c.turns <- in:
			case <-ctx.Done():
				return
			}
		default:
			c.sendError(ctx, fmt.Errorf("unknown message type %q", in.Type))
		}
	}
}

func (c *conn) turnLoop(ctx context.Context) {
	for in := range c.turns {
		if ctx.Err() != nil {
			continue
		}
		c.turn(ctx, in)
	}
}

func (c *conn) turn(ctx context.Context, in Inbound) {
	if in.SessionID != "" && in.SessionID != c.session.ID() {
		sess, err := c.s.registry.Get(ctx, in.SessionID)
		if err != nil {
			c.sendError(ctx, err)
			return
		}
		c.session = sess
		c.send(ctx, Outbound{Type: MsgSession, SessionID: sess.ID()})
	}

	var (
		reply *conversation.Reply
		err   error
	)
	switch in.Type {
	case MsgTestParamsResponse:
		reply, err = c.session.HandleTestParameters(ctx, in.Payload, c.queue)
	default:
		reply, err = c.session.ProcessMessage(ctx, conversation.Request{
			Message:       in.Content,
			ForceResearch: in.ForceResearch,
		}, c.queue)
	}
	if err != nil {
		c.sendError(ctx, err)
		return
	}
	if reply.Content == "" {
		return
	}
	c.send(ctx, Outbound{Type: MsgAIResponse, SessionID: c.session.ID(), Reply: reply})
}

// writeLoop writes events and replies. Before a reply it flushes the events
// already queued, so a turn's events precede its answer.
func (c *conn) writeLoop(ctx context.Context) {
	events := c.queue.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := c.write(ctx, e); err != nil {
				return
			}
		case out := <-c.replies:
			if !c.flush(ctx, events) {
				return
			}
			if err := c.write(ctx, out); err != nil {
				return
			}
		}
	}
}

func (c *conn) flush(ctx context.Context, events <-chan event.Event) bool {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return true
			}
			if err := c.write(ctx, e); err != nil {
				return false
			}
		default:
			return true
		}
	}
}

func (c *conn) write(ctx context.Context, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, c.ws, v); err != nil {
		c.s.logger.Debug("websocket write: %v", err)
		return err
	}
	return nil
}
