package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldnotes-ai/fieldnotes/internal/live"
	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

const (
	writeTimeout = 10 * time.Second

	// outboundBuffer bounds the per-socket event queue. A socket that
	// falls further behind drops frames instead of stalling the core.
	outboundBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// controlMessage is an inbound JSON text frame on the live socket.
// Binary frames carry raw audio and need no envelope.
type controlMessage struct {
	Type      string                `json:"type"` // "start" | "visual" | "end"
	SessionID string                `json:"session_id"`
	UserID    string                `json:"user_id,omitempty"`
	Context   models.SessionContext `json:"context,omitempty"`
	Visual    *live.VisualFrame     `json:"visual,omitempty"`
}

// liveSocket binds one WebSocket to at most one live session.
type liveSocket struct {
	conn     *websocket.Conn
	server   *Server
	outbound chan Envelope
	quit     chan struct{}

	mu        sync.Mutex
	sessionID string
	done      bool
}

// SendEvent queues an event envelope for the socket, dropping it if the
// socket can't keep up.
func (ls *liveSocket) SendEvent(env Envelope) {
	select {
	case ls.outbound <- env:
	default:
		ls.server.logger.Warn("live socket backlogged, dropping event",
			"session_id", env.SessionID, "type", env.Type)
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ls := &liveSocket{
		conn:     conn,
		server:   s,
		outbound: make(chan Envelope, outboundBuffer),
		quit:     make(chan struct{}),
	}

	go ls.writeLoop()
	ls.readLoop(r.Context())
}

func (ls *liveSocket) writeLoop() {
	for {
		select {
		case env := <-ls.outbound:
			_ = ls.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ls.conn.WriteJSON(env); err != nil {
				ls.server.logger.Debug("live socket write failed", "error", err)
				return
			}
		case <-ls.quit:
			return
		}
	}
}

func (ls *liveSocket) readLoop(ctx context.Context) {
	defer ls.teardown()

	for {
		msgType, data, err := ls.conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			ls.handleAudio(data)
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				ls.sendError("", http.StatusBadRequest, "invalid control frame")
				continue
			}
			ls.handleControl(ctx, msg)
		}
	}
}

func (ls *liveSocket) handleControl(ctx context.Context, msg controlMessage) {
	switch msg.Type {
	case "start":
		if msg.SessionID == "" || msg.UserID == "" {
			ls.sendError(msg.SessionID, http.StatusBadRequest, "session_id and user_id are required")
			return
		}
		if err := ls.server.sessions.StartSession(msg.SessionID, msg.UserID, msg.Context); err != nil {
			ls.sendError(msg.SessionID, sessionStatusCode(err), err.Error())
			return
		}
		ls.mu.Lock()
		ls.sessionID = msg.SessionID
		ls.mu.Unlock()
		ls.server.hub.Subscribe(msg.SessionID, ls)
		ls.SendEvent(Envelope{Type: "started", SessionID: msg.SessionID})

	case "visual":
		sessionID := ls.currentSession()
		if sessionID == "" || msg.Visual == nil {
			ls.sendError(sessionID, http.StatusBadRequest, "no active session or missing visual payload")
			return
		}
		if err := ls.server.sessions.PushVisual(sessionID, *msg.Visual); err != nil {
			ls.sendError(sessionID, sessionStatusCode(err), err.Error())
		}

	case "end":
		sessionID := ls.currentSession()
		if sessionID == "" {
			ls.sendError("", http.StatusBadRequest, "no active session")
			return
		}
		if err := ls.server.sessions.EndSession(ctx, sessionID); err != nil {
			ls.sendError(sessionID, sessionStatusCode(err), err.Error())
		}
		// The finalized event went out through the hub before we detach.
		ls.server.hub.Unsubscribe(sessionID)
		ls.mu.Lock()
		ls.sessionID = ""
		ls.mu.Unlock()

	default:
		ls.sendError(ls.currentSession(), http.StatusBadRequest, "unknown control type")
	}
}

func (ls *liveSocket) handleAudio(chunk []byte) {
	sessionID := ls.currentSession()
	if sessionID == "" {
		return
	}
	if err := ls.server.sessions.PushAudioChunk(sessionID, chunk); err != nil {
		ls.sendError(sessionID, sessionStatusCode(err), err.Error())
	}
}

func (ls *liveSocket) currentSession() string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.sessionID
}

func (ls *liveSocket) sendError(sessionID string, code int, message string) {
	ls.SendEvent(Envelope{Type: "error", SessionID: sessionID, Payload: map[string]any{
		"code":    code,
		"message": message,
	}})
}

// teardown detaches the socket. A session left running keeps capturing
// and is eventually finalized by the stale sweep, so a dropped socket
// never loses data.
func (ls *liveSocket) teardown() {
	ls.mu.Lock()
	if ls.done {
		ls.mu.Unlock()
		return
	}
	ls.done = true
	sessionID := ls.sessionID
	ls.mu.Unlock()

	if sessionID != "" {
		ls.server.hub.Unsubscribe(sessionID)
		ls.server.logger.Info("live socket closed with session still active",
			"session_id", sessionID)
	}
	close(ls.quit)
	_ = ls.conn.Close()
}
