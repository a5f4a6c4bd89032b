// Package transcribe streams session audio to the external
// transcription service over WebSocket and delivers transcript events
// back to the session pipeline.
package transcribe

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one transcript message from the service. Interim events
// revise the current utterance; final events commit it.
type Event struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	SpeakerTag int     `json:"speaker_tag,omitempty"`
	Start      float64 `json:"start,omitempty"`
	End        float64 `json:"end,omitempty"`
}

// startMessage is the control frame sent right after the dial succeeds.
type startMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Diarize    bool   `json:"diarize"`
}

// Callbacks receive stream lifecycle and transcript notifications.
// They are invoked from the stream's goroutines; implementations must
// not block.
type Callbacks struct {
	OnReady  func()
	OnEvent  func(Event)
	OnError  func(error)
	OnClosed func()
}

// Options configures a Stream.
type Options struct {
	URL        string
	APIKey     string
	SessionID  string
	SampleRate int
	Logger     *slog.Logger
}

// Stream is a lazy client connection to the transcription service. The
// dial happens on the first audio chunk; chunks arriving before the
// connection is ready are queued and flushed in order once it is.
type Stream struct {
	opts      Options
	callbacks Callbacks
	dialer    *websocket.Dialer
	logger    *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending [][]byte
	dialing bool
	ready   bool
	closed  bool
}

// NewStream creates a stream. No network activity happens until the
// first Send.
func NewStream(opts Options, callbacks Callbacks) *Stream {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Stream{
		opts:      opts,
		callbacks: callbacks,
		logger:    opts.Logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

// Send forwards one audio chunk. Before the connection is ready the
// chunk is queued; the first Send triggers the dial.
func (s *Stream) Send(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("stream closed")
	}

	if !s.ready {
		// Copy: the caller may reuse the buffer.
		buf := make([]byte, len(chunk))
		copy(buf, chunk)
		s.pending = append(s.pending, buf)

		if !s.dialing {
			s.dialing = true
			go s.dial()
		}
		s.mu.Unlock()
		return nil
	}

	conn := s.conn
	err := conn.WriteMessage(websocket.BinaryMessage, chunk)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (s *Stream) dial() {
	header := http.Header{}
	if s.opts.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.opts.APIKey)
	}
	header.Set("X-Session-Id", s.opts.SessionID)

	conn, resp, err := s.dialer.Dial(s.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.logger.Error("transcription dial failed", "url", s.opts.URL, "error", err)
		s.fail(fmt.Errorf("dial transcription service: %w", err))
		return
	}

	start := startMessage{
		Type:       "start",
		SessionID:  s.opts.SessionID,
		SampleRate: s.opts.SampleRate,
		Encoding:   "pcm_s16le",
		Diarize:    true,
	}
	if err := conn.WriteJSON(start); err != nil {
		_ = conn.Close()
		s.fail(fmt.Errorf("send start message: %w", err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.ready = true
	pending := s.pending
	s.pending = nil

	// Flush queued audio in arrival order before releasing the lock so
	// no later Send can interleave ahead of it.
	var flushErr error
	for _, buf := range pending {
		if flushErr = conn.WriteMessage(websocket.BinaryMessage, buf); flushErr != nil {
			break
		}
	}
	s.mu.Unlock()

	if flushErr != nil {
		s.fail(fmt.Errorf("flush queued audio: %w", flushErr))
		return
	}

	s.logger.Info("transcription stream ready",
		"session_id", s.opts.SessionID, "queued_chunks", len(pending))
	if s.callbacks.OnReady != nil {
		s.callbacks.OnReady()
	}

	go s.readLoop(conn)
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			wasClosed := s.closed
			s.mu.Unlock()

			if !wasClosed {
				s.fail(fmt.Errorf("read transcript: %w", err))
			} else if s.callbacks.OnClosed != nil {
				s.callbacks.OnClosed()
			}
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.Warn("unparseable transcript message", "error", err)
			continue
		}
		if event.Text == "" {
			continue
		}
		if s.callbacks.OnEvent != nil {
			s.callbacks.OnEvent(event)
		}
	}
}

// fail tears the stream down and reports the error once.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.ready = false
	conn := s.conn
	s.conn = nil
	s.pending = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if alreadyClosed {
		return
	}
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
	if s.callbacks.OnClosed != nil {
		s.callbacks.OnClosed()
	}
}

// Close shuts the stream down. Safe to call before the dial happened
// and safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.ready = false
	conn := s.conn
	s.conn = nil
	s.pending = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	// Best effort: tell the peer we're done before dropping the socket.
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}
