// Package extract turns a growing transcript into structured beliefs
// about the session's subject without re-processing the whole transcript
// on every fragment and without flooding the extraction backend.
package extract

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fieldnotes-ai/fieldnotes/internal/llm"
	"github.com/fieldnotes-ai/fieldnotes/internal/merge"
	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

// Client is the external extraction backend.
type Client interface {
	ExtractProfile(ctx context.Context, transcript string) (*llm.ProfileExtraction, error)
}

// BeliefState is the running best guess about the subject. Scalar fields
// are write-once free-text sentences; list fields are append-only and
// deduplicated.
type BeliefState struct {
	Name        string   `json:"name,omitempty"`
	Company     string   `json:"company,omitempty"`
	Role        string   `json:"role,omitempty"`
	Institution string   `json:"institution,omitempty"`
	Major       string   `json:"major,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Challenges  []string `json:"challenges,omitempty"`
	Hooks       []string `json:"hooks,omitempty"`
	Personal    []string `json:"personal,omitempty"`
}

// IsZero reports whether the state carries no information.
func (b BeliefState) IsZero() bool {
	return b.Name == "" && b.Company == "" && b.Role == "" &&
		b.Institution == "" && b.Major == "" &&
		len(b.Topics) == 0 && len(b.Challenges) == 0 &&
		len(b.Hooks) == 0 && len(b.Personal) == 0
}

func (b BeliefState) clone() BeliefState {
	out := b
	out.Topics = append([]string(nil), b.Topics...)
	out.Challenges = append([]string(nil), b.Challenges...)
	out.Hooks = append([]string(nil), b.Hooks...)
	out.Personal = append([]string(nil), b.Personal...)
	return out
}

// UpdateFunc receives the newly added facts and the full state after a
// successful merge. Called outside the extractor's lock.
type UpdateFunc func(delta, full BeliefState)

// Options configures an Extractor.
type Options struct {
	// MinChars is the minimum unextracted suffix length before an
	// extraction is considered worthwhile.
	MinChars int
	// Debounce is how long interim fragments coalesce before one
	// extraction call fires.
	Debounce time.Duration
	// CallTimeout bounds each extraction call.
	CallTimeout time.Duration
	OnUpdate    UpdateFunc
	Logger      *slog.Logger
}

// Extractor is the per-session incremental insight extractor. One
// instance per active session; all methods are safe for concurrent use.
type Extractor struct {
	client  Client
	update  UpdateFunc
	logger  *slog.Logger
	minimum int
	wait    time.Duration
	timeout time.Duration

	mu      sync.Mutex
	buf     strings.Builder
	offset  int // length of buffer already sent for extraction
	beliefs BeliefState
	timer   *time.Timer
	busy    bool
	rerun   bool
	closed  bool
}

// New creates an extractor. Zero option fields get conservative defaults.
func New(client Client, opts Options) *Extractor {
	if opts.MinChars <= 0 {
		opts.MinChars = 50
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 3 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{
		client:  client,
		update:  opts.OnUpdate,
		logger:  opts.Logger,
		minimum: opts.MinChars,
		wait:    opts.Debounce,
		timeout: opts.CallTimeout,
	}
}

// AddFragment appends a transcript fragment. Final fragments that meet
// the minimum suffix size trigger extraction immediately; interim ones
// refresh the debounce timer so bursts coalesce into one call.
func (e *Extractor) AddFragment(frag models.TranscriptFragment) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	if text := strings.TrimSpace(frag.Text); text != "" {
		if e.buf.Len() > 0 {
			e.buf.WriteByte(' ')
		}
		e.buf.WriteString(text)
	}

	if e.buf.Len()-e.offset < e.minimum {
		e.mu.Unlock()
		return
	}

	if frag.IsFinal {
		e.stopTimerLocked()
		e.mu.Unlock()
		// Fire now, but never block the caller on the backend.
		go e.runExtraction()
		return
	}

	// Replace the pending timer, never stack a second one.
	e.stopTimerLocked()
	e.timer = time.AfterFunc(e.wait, e.runExtraction)
	e.mu.Unlock()
}

// caller must hold e.mu
func (e *Extractor) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Extractor) runExtraction() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.busy {
		// A call is in flight; remember to reschedule when it returns.
		e.rerun = true
		e.mu.Unlock()
		return
	}
	suffix := e.buf.String()[e.offset:]
	if len(suffix) < e.minimum {
		e.mu.Unlock()
		return
	}
	// Advance the offset before awaiting the call so a fragment arriving
	// mid-call is never reprocessed.
	e.offset = e.buf.Len()
	e.busy = true
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	result, err := e.client.ExtractProfile(ctx, suffix)
	cancel()

	e.mu.Lock()
	e.busy = false

	if e.closed {
		// Session finalized while the call was in flight; drop the result.
		e.mu.Unlock()
		return
	}

	var delta, full BeliefState
	emit := false
	if err != nil {
		// The session continues with stale beliefs.
		e.logger.Warn("extraction call failed", "error", err, "suffix_len", len(suffix))
	} else if !result.IsEmpty() {
		delta = e.mergeLocked(result)
		if !delta.IsZero() {
			full = e.beliefs.clone()
			emit = true
		}
	}

	if e.rerun {
		e.rerun = false
		if e.buf.Len()-e.offset >= e.minimum {
			e.stopTimerLocked()
			e.timer = time.AfterFunc(e.wait, e.runExtraction)
		}
	}
	update := e.update
	e.mu.Unlock()

	if emit && update != nil {
		update(delta, full)
	}
}

// mergeLocked folds an extraction result into the belief state and
// returns only what was newly added. Scalars are write-once; lists drop
// near-duplicates. Caller must hold e.mu.
func (e *Extractor) mergeLocked(result *llm.ProfileExtraction) BeliefState {
	var delta BeliefState

	e.beliefs.Name, delta.Name = merge.ValueWriteOnce(e.beliefs.Name, result.Name)
	e.beliefs.Company, delta.Company = merge.ValueWriteOnce(e.beliefs.Company, result.Company)
	e.beliefs.Role, delta.Role = merge.ValueWriteOnce(e.beliefs.Role, result.Role)
	e.beliefs.Institution, delta.Institution = merge.ValueWriteOnce(e.beliefs.Institution, result.Institution)
	e.beliefs.Major, delta.Major = merge.ValueWriteOnce(e.beliefs.Major, result.Major)

	e.beliefs.Topics, delta.Topics = merge.UnionFacts(e.beliefs.Topics, result.Topics)
	e.beliefs.Challenges, delta.Challenges = merge.UnionFacts(e.beliefs.Challenges, result.Challenges)
	e.beliefs.Hooks, delta.Hooks = merge.UnionFacts(e.beliefs.Hooks, result.Hooks)
	e.beliefs.Personal, delta.Personal = merge.UnionFacts(e.beliefs.Personal, result.Personal)

	return delta
}

// State returns a copy of the current belief state.
func (e *Extractor) State() BeliefState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.beliefs.clone()
}

// Pending returns the number of buffered characters not yet extracted.
func (e *Extractor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Len() - e.offset
}

// Close cancels the debounce timer, stops accepting fragments and
// returns the final belief state. Extraction results still in flight
// after Close are dropped. Safe to call more than once.
func (e *Extractor) Close() BeliefState {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
	e.closed = true
	return e.beliefs.clone()
}
