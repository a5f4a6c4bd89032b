package transcribe

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService is an in-process transcription endpoint. It records what
// the client sent and can push transcript events back.
type fakeService struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	start    startMessage
	binary   [][]byte
	header   http.Header
	ready    chan struct{}
	received chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{
		ready:    make(chan struct{}),
		received: make(chan struct{}, 64),
	}
}

func (f *fakeService) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.conn = conn
	f.header = r.Header.Clone()
	f.mu.Unlock()

	// First frame is the JSON start message.
	var start startMessage
	if err := conn.ReadJSON(&start); err != nil {
		return
	}
	f.mu.Lock()
	f.start = start
	f.mu.Unlock()
	close(f.ready)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			f.mu.Lock()
			f.binary = append(f.binary, data)
			f.mu.Unlock()
			f.received <- struct{}{}
		}
	}
}

func (f *fakeService) push(t *testing.T, event Event) {
	t.Helper()
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	require.NoError(t, conn.WriteJSON(event))
}

func (f *fakeService) chunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.binary))
	copy(out, f.binary)
	return out
}

func newTestStream(t *testing.T, svc *fakeService, callbacks Callbacks) *Stream {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(svc.handler))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	stream := NewStream(Options{
		URL:       url,
		APIKey:    "test-key",
		SessionID: "session-1",
	}, callbacks)
	t.Cleanup(func() { _ = stream.Close() })
	return stream
}

func waitSignal(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestFirstSendDialsAndFlushes(t *testing.T) {
	svc := newFakeService()
	readyCalls := make(chan struct{}, 1)
	stream := newTestStream(t, svc, Callbacks{
		OnReady: func() { readyCalls <- struct{}{} },
	})

	// Chunks sent before the dial completes must arrive in order.
	require.NoError(t, stream.Send([]byte("one")))
	require.NoError(t, stream.Send([]byte("two")))

	waitSignal(t, readyCalls)
	waitSignal(t, svc.received)
	waitSignal(t, svc.received)

	require.NoError(t, stream.Send([]byte("three")))
	waitSignal(t, svc.received)

	chunks := svc.chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, "one", string(chunks[0]))
	assert.Equal(t, "two", string(chunks[1]))
	assert.Equal(t, "three", string(chunks[2]))

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, "start", svc.start.Type)
	assert.Equal(t, "session-1", svc.start.SessionID)
	assert.Equal(t, 16000, svc.start.SampleRate)
	assert.True(t, svc.start.Diarize)
	assert.Equal(t, "Bearer test-key", svc.header.Get("Authorization"))
}

func TestTranscriptEventsDelivered(t *testing.T) {
	svc := newFakeService()
	events := make(chan Event, 8)
	stream := newTestStream(t, svc, Callbacks{
		OnEvent: func(e Event) { events <- e },
	})

	require.NoError(t, stream.Send([]byte("audio")))
	waitSignal(t, svc.ready)

	svc.push(t, Event{Text: "hello there", IsFinal: false, SpeakerTag: 1})
	svc.push(t, Event{Text: "hello there, nice to meet you", IsFinal: true, SpeakerTag: 1, Start: 0.2, End: 2.4})

	first := <-events
	assert.Equal(t, "hello there", first.Text)
	assert.False(t, first.IsFinal)

	second := <-events
	assert.True(t, second.IsFinal)
	assert.Equal(t, 1, second.SpeakerTag)
	assert.InDelta(t, 2.4, second.End, 0.001)
}

func TestEmptyEventsSkipped(t *testing.T) {
	svc := newFakeService()
	events := make(chan Event, 8)
	stream := newTestStream(t, svc, Callbacks{
		OnEvent: func(e Event) { events <- e },
	})

	require.NoError(t, stream.Send([]byte("audio")))
	waitSignal(t, svc.ready)

	svc.push(t, Event{Text: ""})
	svc.push(t, Event{Text: "real text", IsFinal: true})

	got := <-events
	assert.Equal(t, "real text", got.Text)
}

func TestSendAfterClose(t *testing.T) {
	svc := newFakeService()
	stream := newTestStream(t, svc, Callbacks{})

	require.NoError(t, stream.Close())
	assert.Error(t, stream.Send([]byte("late audio")))
}

func TestDialFailureReportsError(t *testing.T) {
	errs := make(chan error, 1)
	closed := make(chan struct{}, 1)
	stream := NewStream(Options{
		URL: "ws://127.0.0.1:1/nope",
	}, Callbacks{
		OnError:  func(err error) { errs <- err },
		OnClosed: func() { closed <- struct{}{} },
	})
	t.Cleanup(func() { _ = stream.Close() })

	require.NoError(t, stream.Send([]byte("audio")))

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("expected dial error")
	}
	waitSignal(t, closed)

	// The stream is unusable after a failed dial.
	assert.Error(t, stream.Send([]byte("more audio")))
}

func TestServerDropReportsError(t *testing.T) {
	svc := newFakeService()
	errs := make(chan error, 1)
	stream := newTestStream(t, svc, Callbacks{
		OnError: func(err error) { errs <- err },
	})

	require.NoError(t, stream.Send([]byte("audio")))
	waitSignal(t, svc.ready)

	svc.mu.Lock()
	conn := svc.conn
	svc.mu.Unlock()
	require.NoError(t, conn.Close())

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected read error after server drop")
	}
}

func TestEmptyChunkIgnored(t *testing.T) {
	svc := newFakeService()
	stream := newTestStream(t, svc, Callbacks{})

	require.NoError(t, stream.Send(nil))
	time.Sleep(50 * time.Millisecond)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Nil(t, svc.conn, "empty chunk must not trigger a dial")
}
