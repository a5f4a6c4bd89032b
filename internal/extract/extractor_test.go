package extract

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fieldnotes-ai/fieldnotes/internal/llm"
	"github.com/fieldnotes-ai/fieldnotes/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records calls and serves canned extraction results.
type fakeClient struct {
	mu        sync.Mutex
	calls     []string
	inFlight  int
	maxUsed   int
	results   []*llm.ProfileExtraction
	block     chan struct{} // when non-nil, calls block until closed
	extracted chan struct{} // signaled once per completed call
}

func newFakeClient(results ...*llm.ProfileExtraction) *fakeClient {
	return &fakeClient{results: results, extracted: make(chan struct{}, 16)}
}

func (f *fakeClient) ExtractProfile(ctx context.Context, transcript string) (*llm.ProfileExtraction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, transcript)
	f.inFlight++
	if f.inFlight > f.maxUsed {
		f.maxUsed = f.inFlight
	}
	idx := len(f.calls) - 1
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	f.inFlight--
	var result *llm.ProfileExtraction
	if idx < len(f.results) {
		result = f.results[idx]
	} else {
		result = &llm.ProfileExtraction{}
	}
	f.mu.Unlock()

	f.extracted <- struct{}{}
	return result, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for extraction")
	}
}

func finalFragment(text string) models.TranscriptFragment {
	return models.TranscriptFragment{Text: text, IsFinal: true, CapturedAt: time.Now()}
}

func interimFragment(text string) models.TranscriptFragment {
	return models.TranscriptFragment{Text: text, CapturedAt: time.Now()}
}

const longEnough = "we talked about scaling kubernetes clusters at his company for a while"

func TestBelowMinimumDoesNothing(t *testing.T) {
	client := newFakeClient()
	ex := New(client, Options{MinChars: 50, Debounce: 10 * time.Millisecond})

	ex.AddFragment(finalFragment("short"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, client.callCount())
	assert.Equal(t, len("short"), ex.Pending())
}

func TestFinalFragmentExtractsImmediately(t *testing.T) {
	client := newFakeClient(&llm.ProfileExtraction{Name: "His name is Sam"})

	var mu sync.Mutex
	var deltas []BeliefState
	ex := New(client, Options{
		MinChars: 50,
		Debounce: time.Hour, // immediate path must not depend on the timer
		OnUpdate: func(delta, full BeliefState) {
			mu.Lock()
			deltas = append(deltas, delta)
			mu.Unlock()
		},
	})

	ex.AddFragment(finalFragment(longEnough))
	waitFor(t, client.extracted)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, client.callCount())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deltas, 1)
	assert.Equal(t, "His name is Sam", deltas[0].Name)
}

func TestInterimFragmentsCoalesce(t *testing.T) {
	client := newFakeClient(&llm.ProfileExtraction{Topics: []string{"kubernetes"}})
	ex := New(client, Options{MinChars: 20, Debounce: 40 * time.Millisecond})

	// A burst of interim fragments must produce a single call.
	ex.AddFragment(interimFragment("we were talking about"))
	ex.AddFragment(interimFragment("kubernetes and scaling"))
	ex.AddFragment(interimFragment("the cluster fleet"))

	waitFor(t, client.extracted)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, client.callCount())
	// The one call carried the whole unextracted suffix.
	assert.Contains(t, client.calls[0], "kubernetes and scaling")
	assert.Contains(t, client.calls[0], "the cluster fleet")
}

func TestOnlySuffixIsSent(t *testing.T) {
	client := newFakeClient(
		&llm.ProfileExtraction{Name: "His name is Sam"},
		&llm.ProfileExtraction{Company: "He works at Acme"},
	)
	ex := New(client, Options{MinChars: 10, Debounce: 10 * time.Millisecond})

	ex.AddFragment(finalFragment("his name is sam and he seemed friendly"))
	waitFor(t, client.extracted)

	ex.AddFragment(finalFragment("he works at acme robotics downtown"))
	waitFor(t, client.extracted)

	require.Equal(t, 2, client.callCount())
	assert.NotContains(t, client.calls[1], "his name is sam",
		"second call must carry only the unextracted suffix")
	assert.Contains(t, client.calls[1], "acme robotics")
}

func TestNoOverlappingCalls(t *testing.T) {
	client := newFakeClient(
		&llm.ProfileExtraction{Name: "His name is Sam"},
		&llm.ProfileExtraction{Company: "He works at Acme"},
	)
	client.block = make(chan struct{})
	ex := New(client, Options{MinChars: 10, Debounce: 20 * time.Millisecond})

	ex.AddFragment(finalFragment("his name is sam and he seemed friendly"))

	// Wait until the first call is in flight, then push more final
	// fragments; they must reschedule, not fire concurrently.
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.inFlight == 1
	}, time.Second, 5*time.Millisecond)

	ex.AddFragment(finalFragment("he works at acme robotics downtown"))
	ex.AddFragment(finalFragment("and he mentioned a big launch next month"))

	close(client.block)
	waitFor(t, client.extracted)
	waitFor(t, client.extracted)
	time.Sleep(100 * time.Millisecond)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 1, client.maxUsed, "at most one extraction call in flight")
	assert.Equal(t, 2, len(client.calls))
}

func TestEmptyResultEmitsNothing(t *testing.T) {
	client := newFakeClient(&llm.ProfileExtraction{})

	updates := 0
	ex := New(client, Options{
		MinChars: 10,
		Debounce: time.Hour,
		OnUpdate: func(delta, full BeliefState) { updates++ },
	})

	ex.AddFragment(finalFragment(longEnough))
	waitFor(t, client.extracted)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, updates, "empty extraction must not emit a delta")
	assert.True(t, ex.State().IsZero())
}

func TestScalarsAreWriteOnce(t *testing.T) {
	client := newFakeClient(
		&llm.ProfileExtraction{Name: "His name is Sam"},
		&llm.ProfileExtraction{Name: "Actually his name is Max"},
	)
	ex := New(client, Options{MinChars: 10, Debounce: 10 * time.Millisecond})

	ex.AddFragment(finalFragment("his name is sam and he seemed friendly"))
	waitFor(t, client.extracted)
	ex.AddFragment(finalFragment("wait actually his name might be max instead"))
	waitFor(t, client.extracted)

	assert.Equal(t, "His name is Sam", ex.State().Name)
}

func TestListFactsDeduplicate(t *testing.T) {
	client := newFakeClient(
		&llm.ProfileExtraction{Topics: []string{"Kubernetes scaling"}},
		&llm.ProfileExtraction{Topics: []string{"kubernetes", "Series B"}},
	)

	var mu sync.Mutex
	var deltas []BeliefState
	ex := New(client, Options{
		MinChars: 10,
		Debounce: 10 * time.Millisecond,
		OnUpdate: func(delta, full BeliefState) {
			mu.Lock()
			deltas = append(deltas, delta)
			mu.Unlock()
		},
	})

	ex.AddFragment(finalFragment("they run a large kubernetes fleet these days"))
	waitFor(t, client.extracted)
	ex.AddFragment(finalFragment("they just raised a series b funding round"))
	waitFor(t, client.extracted)
	time.Sleep(20 * time.Millisecond)

	state := ex.State()
	assert.Equal(t, []string{"Kubernetes scaling", "Series B"}, state.Topics)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deltas, 2)
	assert.Equal(t, []string{"Series B"}, deltas[1].Topics,
		"delta carries only newly added facts")
}

func TestCloseStopsExtraction(t *testing.T) {
	client := newFakeClient(&llm.ProfileExtraction{Name: "His name is Sam"})
	ex := New(client, Options{MinChars: 10, Debounce: 20 * time.Millisecond})

	ex.AddFragment(interimFragment(longEnough))
	final := ex.Close()
	assert.True(t, final.IsZero())

	// Fragments after close are dropped and no timer fires.
	ex.AddFragment(finalFragment(longEnough))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, client.callCount())
}

func TestCloseDropsInFlightResult(t *testing.T) {
	client := newFakeClient(&llm.ProfileExtraction{Name: "His name is Sam"})
	client.block = make(chan struct{})

	updates := 0
	ex := New(client, Options{
		MinChars: 10,
		Debounce: time.Hour,
		OnUpdate: func(delta, full BeliefState) { updates++ },
	})

	ex.AddFragment(finalFragment(longEnough))
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.inFlight == 1
	}, time.Second, 5*time.Millisecond)

	final := ex.Close()
	close(client.block)
	waitFor(t, client.extracted)
	time.Sleep(20 * time.Millisecond)

	assert.True(t, final.IsZero())
	assert.True(t, ex.State().IsZero(), "in-flight result after close is dropped")
	assert.Equal(t, 0, updates)
}

func TestWhitespaceFragmentsIgnored(t *testing.T) {
	client := newFakeClient()
	ex := New(client, Options{MinChars: 5, Debounce: time.Hour})

	ex.AddFragment(interimFragment("   "))
	ex.AddFragment(interimFragment("\n\t"))
	assert.Equal(t, 0, ex.Pending())
}

func TestBufferJoinsWithSpaces(t *testing.T) {
	client := newFakeClient(&llm.ProfileExtraction{})
	ex := New(client, Options{MinChars: 10, Debounce: time.Hour})

	ex.AddFragment(interimFragment("hello"))
	ex.AddFragment(finalFragment("there general"))
	waitFor(t, client.extracted)

	require.Equal(t, 1, client.callCount())
	assert.True(t, strings.HasPrefix(client.calls[0], "hello there"))
}
