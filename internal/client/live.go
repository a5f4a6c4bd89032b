package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fieldnotes-ai/fieldnotes/internal/live"
	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

// ServerEvent is one event frame received over the live socket.
type ServerEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Payload   any    `json:"payload,omitempty"`
}

// LiveSession is a client-side live capture session over one WebSocket.
// Events from the server arrive on Events until the socket closes.
type LiveSession struct {
	conn      *websocket.Conn
	sessionID string

	writeMu sync.Mutex
	events  chan ServerEvent

	closeOnce sync.Once
	closeErr  error
}

// SessionID returns the id the session runs under.
func (s *LiveSession) SessionID() string {
	return s.sessionID
}

// Events returns the channel of server event frames. It is closed when
// the socket drops.
func (s *LiveSession) Events() <-chan ServerEvent {
	return s.events
}

// OpenLive dials the live endpoint and starts a session. An empty
// sessionID gets a generated one.
func (c *Client) OpenLive(ctx context.Context, sessionID, userID string, sctx models.SessionContext) (*LiveSession, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/v1/live"
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	s := &LiveSession{
		conn:      conn,
		sessionID: sessionID,
		events:    make(chan ServerEvent, 32),
	}
	go s.readLoop()

	start := map[string]any{
		"type":       "start",
		"session_id": sessionID,
		"user_id":    userID,
		"context":    sctx,
	}
	if err := s.writeJSON(start); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send start: %w", err)
	}
	return s, nil
}

// SendVisual pushes one visual analysis frame.
func (s *LiveSession) SendVisual(frame live.VisualFrame) error {
	return s.writeJSON(map[string]any{
		"type":   "visual",
		"visual": frame,
	})
}

// SendAudio pushes one raw audio chunk.
func (s *LiveSession) SendAudio(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// End asks the server to finalize the session. The finalized event
// arrives on Events before the server detaches the socket.
func (s *LiveSession) End() error {
	return s.writeJSON(map[string]any{"type": "end"})
}

// Close tears the socket down without ending the session; the server
// finalizes it through its idle sweep.
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *LiveSession) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *LiveSession) readLoop() {
	defer close(s.events)
	for {
		var ev ServerEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			return
		}
		s.events <- ev
	}
}
