package server

import (
	"sync"

	"github.com/fieldnotes-ai/fieldnotes/internal/extract"
	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

// Envelope is the outbound JSON frame sent to live sockets.
type Envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Payload   any    `json:"payload,omitempty"`
}

// Subscriber receives the event envelopes for one session. Send must
// not block; slow sockets drop frames rather than stall the core.
type Subscriber interface {
	SendEvent(Envelope)
}

// Hub fans coordinator events out to the socket subscribed to each
// session. It is the coordinator's event sink.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]Subscriber)}
}

// Subscribe binds a subscriber to a session id, replacing any previous
// one.
func (h *Hub) Subscribe(sessionID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sessionID] = sub
}

// Unsubscribe detaches the subscriber for a session id.
func (h *Hub) Unsubscribe(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sessionID)
}

func (h *Hub) publish(sessionID string, env Envelope) {
	h.mu.RLock()
	sub := h.subs[sessionID]
	h.mu.RUnlock()
	if sub != nil {
		sub.SendEvent(env)
	}
}

func (h *Hub) Ready(sessionID string) {
	h.publish(sessionID, Envelope{Type: "ready", SessionID: sessionID})
}

func (h *Hub) VisualUpdated(sessionID string, visual models.VisualState) {
	h.publish(sessionID, Envelope{Type: "visual_updated", SessionID: sessionID, Payload: visual})
}

func (h *Hub) AudioUpdated(sessionID string, fragment models.TranscriptFragment) {
	h.publish(sessionID, Envelope{Type: "audio_updated", SessionID: sessionID, Payload: fragment})
}

func (h *Hub) IdentityMatch(sessionID string, result models.FaceMatchResult) {
	h.publish(sessionID, Envelope{Type: "identity_match", SessionID: sessionID, Payload: result})
}

func (h *Hub) InsightsUpdated(sessionID string, delta, full extract.BeliefState) {
	h.publish(sessionID, Envelope{Type: "insights_updated", SessionID: sessionID, Payload: map[string]any{
		"delta": delta,
		"full":  full,
	}})
}

func (h *Hub) Finalized(sessionID, recordID, action string) {
	h.publish(sessionID, Envelope{Type: "finalized", SessionID: sessionID, Payload: map[string]string{
		"record_id": recordID,
		"action":    action,
	}})
}

func (h *Hub) SessionError(sessionID string, err error) {
	h.publish(sessionID, Envelope{Type: "error", SessionID: sessionID, Payload: map[string]string{
		"message": err.Error(),
	}})
}
