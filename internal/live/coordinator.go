// Package live contains the session orchestrator: per-session control
// logic wiring the external streams into the session store and the
// insight extractor, and driving finalization into durable records.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fieldnotes-ai/fieldnotes/internal/db"
	"github.com/fieldnotes-ai/fieldnotes/internal/extract"
	"github.com/fieldnotes-ai/fieldnotes/internal/llm"
	"github.com/fieldnotes-ai/fieldnotes/internal/merge"
	"github.com/fieldnotes-ai/fieldnotes/internal/metrics"
	"github.com/fieldnotes-ai/fieldnotes/internal/models"
	"github.com/fieldnotes-ai/fieldnotes/internal/session"
	"github.com/fieldnotes-ai/fieldnotes/internal/transcribe"
)

// FinalizeAction reports what finalization did with the captured data.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// EventSink receives session-scoped notifications for the transport
// layer. Implementations must not block; they are called from the
// coordinator's goroutines.
type EventSink interface {
	Ready(sessionID string)
	VisualUpdated(sessionID string, visual models.VisualState)
	AudioUpdated(sessionID string, fragment models.TranscriptFragment)
	IdentityMatch(sessionID string, result models.FaceMatchResult)
	InsightsUpdated(sessionID string, delta, full extract.BeliefState)
	Finalized(sessionID, recordID, action string)
	SessionError(sessionID string, err error)
}

// ConnectionStore is the durable-record surface finalization writes to.
type ConnectionStore interface {
	QueryCreateConnection(ctx context.Context, input models.ConnectionInput) (*models.Connection, error)
	QueryGetConnection(ctx context.Context, id string) (*models.Connection, error)
	QueryUpdateConnectionForEncounter(ctx context.Context, id string, input models.ConnectionInput, pastSignature string) (*models.Connection, error)
	QueryAppendInteraction(ctx context.Context, input models.InteractionInput) (*models.Interaction, error)
}

// MatchFinder ranks stored connections against an identity signature.
type MatchFinder interface {
	FindMatches(ctx context.Context, userID, signature string) ([]db.ConnectionMatch, error)
}

// Embedder computes the signature embedding stored on the durable record.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AudioStream is the outbound transcription channel for one session.
type AudioStream interface {
	Send(chunk []byte) error
	Close() error
}

// StreamFactory opens a transcription stream for a session. The
// callbacks carry transcript events back into the coordinator.
type StreamFactory func(sessionID string, callbacks transcribe.Callbacks) AudioStream

// VisualFrame is one event from the visual-analysis channel.
type VisualFrame struct {
	FaceDetected    *bool     `json:"face_detected,omitempty"`
	Speaking        *bool     `json:"speaking,omitempty"`
	AppearanceText  *string   `json:"appearance_text,omitempty"`
	EnvironmentText *string   `json:"environment_text,omitempty"`
	HeadshotRef     *string   `json:"headshot_ref,omitempty"`
	CapturedAt      time.Time `json:"captured_at,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	// MatchThreshold is the similarity score at or above which an
	// encounter is treated as a previously known person.
	MatchThreshold float64
	// IdleTimeout is how long a session may sit without activity before
	// the sweep finalizes it.
	IdleTimeout time.Duration
	// SweepInterval is the cadence of the stale-session sweep.
	SweepInterval   time.Duration
	ExtractMinChars int
	ExtractDebounce time.Duration
	// CallTimeout bounds each external call made during matching and
	// finalization.
	CallTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

type sessionState int

const (
	stateCreated sessionState = iota
	stateActive
	stateFinalizing
)

// handle is the coordinator's per-session dispatch entry. Once a handle
// leaves the table the session accepts no further external events.
type handle struct {
	sessionID string
	userID    string
	state     sessionState

	extractor  *extract.Extractor
	correlator *extract.Correlator
	stream     AudioStream

	// matchBusy prevents stacked identity-match goroutines when visual
	// frames arrive faster than the embedding backend answers.
	matchBusy bool
}

// Coordinator owns the lifetime of every in-progress encounter.
type Coordinator struct {
	store       *session.Store
	connections ConnectionStore
	matcher     MatchFinder
	embedder    Embedder
	extraction  extract.Client
	newStream   StreamFactory
	sink        EventSink
	opts        Options
	logger      *slog.Logger
	collector   *metrics.Collector

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool

	stopSweep chan struct{}
	wg        sync.WaitGroup
}

// New creates a coordinator. The sweep loop does not run until Start.
func New(
	store *session.Store,
	connections ConnectionStore,
	matcher MatchFinder,
	embedder Embedder,
	extraction extract.Client,
	newStream StreamFactory,
	sink EventSink,
	opts Options,
) *Coordinator {
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = 0.80
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 60 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics != nil {
		extraction = timedExtraction{client: extraction, collector: opts.Metrics}
		connections = timedConnections{store: connections, collector: opts.Metrics}
	}
	return &Coordinator{
		store:       store,
		connections: connections,
		matcher:     matcher,
		embedder:    embedder,
		extraction:  extraction,
		newStream:   newStream,
		sink:        sink,
		opts:        opts,
		logger:      opts.Logger,
		collector:   opts.Metrics,
		handles:     make(map[string]*handle),
		stopSweep:   make(chan struct{}),
	}
}

// Start launches the stale-session sweep loop.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.sweepLoop()
}

// StartSession registers a new encounter. Fails with
// session.ErrAlreadyExists on a duplicate id.
func (c *Coordinator) StartSession(sessionID, userID string, sctx models.SessionContext) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("coordinator closed")
	}
	if _, ok := c.handles[sessionID]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", session.ErrAlreadyExists, sessionID)
	}
	c.mu.Unlock()

	if _, err := c.store.Create(sessionID, userID, sctx); err != nil {
		return err
	}

	h := &handle{
		sessionID:  sessionID,
		userID:     userID,
		state:      stateCreated,
		correlator: extract.NewCorrelator(),
	}
	h.extractor = extract.New(c.extraction, extract.Options{
		MinChars:    c.opts.ExtractMinChars,
		Debounce:    c.opts.ExtractDebounce,
		CallTimeout: c.opts.CallTimeout,
		Logger:      c.logger.With("session_id", sessionID),
		OnUpdate: func(delta, full extract.BeliefState) {
			c.handleInsights(sessionID, delta, full)
		},
	})
	h.stream = c.newStream(sessionID, transcribe.Callbacks{
		OnReady: func() { c.sink.Ready(sessionID) },
		OnEvent: func(e transcribe.Event) { c.handleTranscript(sessionID, e) },
		OnError: func(err error) {
			// Transport failure is surfaced but does not end the session.
			c.logger.Error("transcription channel error", "session_id", sessionID, "error", err)
			c.sink.SessionError(sessionID, err)
		},
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_, _ = c.store.Finalize(sessionID)
		_ = h.stream.Close()
		return fmt.Errorf("coordinator closed")
	}
	c.handles[sessionID] = h
	c.mu.Unlock()

	c.logger.Info("session started", "session_id", sessionID, "user_id", userID,
		"event", sctx.Event, "location", sctx.Location.Name)
	return nil
}

// lookup returns the dispatch entry for an id, or nil if the session is
// unknown or already finalizing. Marks the session active on first use.
func (c *Coordinator) lookup(sessionID string) *handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[sessionID]
	if !ok || h.state == stateFinalizing {
		return nil
	}
	if h.state == stateCreated {
		h.state = stateActive
	}
	return h
}

// PushVisual applies one visual-analysis frame to the session.
func (c *Coordinator) PushVisual(sessionID string, frame VisualFrame) error {
	h := c.lookup(sessionID)
	if h == nil {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}

	sess, err := c.store.UpdateVisual(sessionID, models.VisualUpdate{
		AppearanceText:  frame.AppearanceText,
		EnvironmentText: frame.EnvironmentText,
		HeadshotRef:     frame.HeadshotRef,
		FaceDetected:    frame.FaceDetected,
		Speaking:        frame.Speaking,
	})
	if err != nil {
		return err
	}

	if frame.Speaking != nil {
		at := frame.CapturedAt
		if at.IsZero() {
			at = time.Now()
		}
		h.correlator.ObserveSpeaking(at, *frame.Speaking)
	}

	c.sink.VisualUpdated(sessionID, sess.Visual)

	// A fresh appearance description re-triggers identity matching.
	if frame.AppearanceText != nil && strings.TrimSpace(*frame.AppearanceText) != "" {
		c.triggerMatch(h, sess)
	}
	return nil
}

// triggerMatch launches the identity-match goroutine unless one is
// already running for this session.
func (c *Coordinator) triggerMatch(h *handle, sess models.Session) {
	signature := buildSignature(sess.Audio.Profile.Name.Value, sess.Visual.AppearanceText)
	if signature == "" {
		return
	}

	c.mu.Lock()
	if h.matchBusy || c.closed {
		c.mu.Unlock()
		return
	}
	h.matchBusy = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			h.matchBusy = false
			c.mu.Unlock()
		}()
		c.runMatch(h, signature)
	}()
}

func (c *Coordinator) runMatch(h *handle, signature string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	matches, err := c.matcher.FindMatches(ctx, h.userID, signature)
	if c.collector != nil {
		c.collector.RecordTiming(metrics.OpMatch, time.Since(start))
	}
	if err != nil {
		// Backend unavailable degrades to "no match", never to a fatal
		// session error.
		c.logger.Warn("identity match unavailable",
			"session_id", h.sessionID, "error", err)
		return
	}

	result := models.FaceMatchResult{}
	if len(matches) > 0 {
		best := matches[0]
		result.Score = best.Score
		if best.Score >= c.opts.MatchThreshold {
			result.Matched = true
			result.ConnectionID = models.MustRecordIDString(best.ID)
			result.Name = best.Name.Value
		}
	}

	if _, err := c.store.UpdateFaceMatch(h.sessionID, result); err != nil {
		// Session finalized while the match was in flight.
		c.logger.Debug("match result dropped", "session_id", h.sessionID)
		return
	}

	c.logger.Info("identity match decided", "session_id", h.sessionID,
		"matched", result.Matched, "score", result.Score)
	c.sink.IdentityMatch(h.sessionID, result)
}

func buildSignature(name, appearance string) string {
	parts := make([]string, 0, 2)
	if name = strings.TrimSpace(name); name != "" {
		parts = append(parts, name)
	}
	if appearance = strings.TrimSpace(appearance); appearance != "" {
		parts = append(parts, appearance)
	}
	return strings.Join(parts, ", ")
}

// PushAudioChunk forwards raw audio to the transcription channel. The
// channel dials lazily; chunks sent before it is ready are queued and
// flushed in order.
func (c *Coordinator) PushAudioChunk(sessionID string, chunk []byte) error {
	h := c.lookup(sessionID)
	if h == nil {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	return h.stream.Send(chunk)
}

// handleTranscript applies one transcript event. Events for finalized
// sessions are dropped, not queued.
func (c *Coordinator) handleTranscript(sessionID string, e transcribe.Event) {
	h := c.lookup(sessionID)
	if h == nil {
		c.logger.Debug("late transcript dropped", "session_id", sessionID)
		return
	}

	frag := models.TranscriptFragment{
		Text:       e.Text,
		CapturedAt: time.Now(),
		IsFinal:    e.IsFinal,
		SpeakerTag: e.SpeakerTag,
		Start:      e.Start,
		End:        e.End,
	}

	h.correlator.ObserveFragment(frag)

	upd := models.AudioUpdate{Fragments: []models.TranscriptFragment{frag}}
	if tag, ok := h.correlator.BestSpeaker(); ok {
		upd.SubjectSpeakerTag = &tag
	}
	if _, err := c.store.UpdateAudio(sessionID, upd); err != nil {
		c.logger.Debug("late transcript dropped", "session_id", sessionID)
		return
	}

	h.extractor.AddFragment(frag)
	c.sink.AudioUpdated(sessionID, frag)
}

// handleInsights mirrors a belief-state delta into the session's audio
// profile and forwards it to the sink.
func (c *Coordinator) handleInsights(sessionID string, delta, full extract.BeliefState) {
	upd := models.AudioUpdate{
		Topics:        delta.Topics,
		Challenges:    delta.Challenges,
		Hooks:         delta.Hooks,
		PersonalFacts: delta.Personal,
	}
	upd.Profile = profileCandidates(delta)

	if _, err := c.store.UpdateAudio(sessionID, upd); err != nil {
		c.logger.Debug("late insights dropped", "session_id", sessionID)
		return
	}
	c.sink.InsightsUpdated(sessionID, delta, full)
}

// profileCandidates resolves newly extracted belief sentences into
// confidence-labeled candidates for the session profile.
func profileCandidates(delta extract.BeliefState) models.ProfileUpdate {
	var upd models.ProfileUpdate
	set := func(field extract.Field, sentence string, dst **models.ConfidentField) {
		if sentence == "" {
			return
		}
		value, _ := extract.RecoverValue(field, sentence)
		*dst = &value
	}
	set(extract.FieldName, delta.Name, &upd.Name)
	set(extract.FieldCompany, delta.Company, &upd.Company)
	set(extract.FieldRole, delta.Role, &upd.Role)
	set(extract.FieldInstitution, delta.Institution, &upd.Institution)
	set(extract.FieldMajor, delta.Major, &upd.Major)
	return upd
}

// EndSession finalizes a session: it detaches the session from the
// dispatch table before any asynchronous work begins, closes the
// transcription channel, drains the extractor and commits the durable
// record. The second call for an id fails with session.ErrNotFound.
func (c *Coordinator) EndSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	h, ok := c.handles[sessionID]
	if !ok || h.state == stateFinalizing {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	h.state = stateFinalizing
	delete(c.handles, sessionID)
	c.mu.Unlock()

	return c.finalize(ctx, h)
}

// finalize drives the Finalizing state to completion. It always
// terminates: update failures fall back to creating a new record once;
// create failures are surfaced with no retry.
func (c *Coordinator) finalize(ctx context.Context, h *handle) error {
	start := time.Now()
	defer func() {
		if c.collector != nil {
			c.collector.RecordTiming(metrics.OpFinalize, time.Since(start))
		}
	}()

	_ = h.stream.Close()
	beliefs := h.extractor.Close()

	snapshot, err := c.store.Finalize(h.sessionID)
	if err != nil {
		return err
	}

	input, fellBack := buildConnectionInput(snapshot, beliefs)
	c.embedSignature(ctx, &input)
	input.NeedsReview = input.NeedsReview || fellBack

	recordID, action, err := c.commitRecord(ctx, h, snapshot, input)
	if err != nil {
		c.sink.SessionError(h.sessionID, err)
		return err
	}

	c.appendInteraction(ctx, recordID, snapshot)

	c.logger.Info("session finalized", "session_id", h.sessionID,
		"record_id", recordID, "action", action,
		"subject_speaker_tag", snapshot.Audio.SubjectSpeakerTag,
		"duration_s", snapshot.Duration.Seconds())
	c.sink.Finalized(h.sessionID, recordID, action)
	return nil
}

// commitRecord writes the durable connection. A matched session updates
// the existing record; anything else, including a failed update,
// creates a new draft.
func (c *Coordinator) commitRecord(
	ctx context.Context,
	h *handle,
	snapshot models.SessionSnapshot,
	input models.ConnectionInput,
) (recordID, action string, err error) {
	match := snapshot.Visual.Match

	if match != nil && match.Matched && match.ConnectionID != "" {
		_, updateErr := c.updateExisting(ctx, match.ConnectionID, input)
		if updateErr == nil {
			return match.ConnectionID, ActionUpdated, nil
		}
		// Never lose captured data over a failed update.
		c.logger.Warn("update of matched connection failed, creating new record",
			"session_id", h.sessionID, "connection_id", match.ConnectionID,
			"error", updateErr)
	}

	created, createErr := c.connections.QueryCreateConnection(ctx, input)
	if createErr != nil {
		return "", "", fmt.Errorf("create connection: %w", createErr)
	}
	return models.MustRecordIDString(created.ID), ActionCreated, nil
}

// updateExisting merges this encounter into a stored connection.
// Scalars go through the confidence-ordered merge against the stored
// values before the write.
func (c *Coordinator) updateExisting(ctx context.Context, connectionID string, input models.ConnectionInput) (*models.Connection, error) {
	existing, err := c.connections.QueryGetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	input.Name = merge.Field(existing.Name, input.Name)
	input.Company = merge.Field(existing.Company, input.Company)
	input.Role = merge.Field(existing.Role, input.Role)
	input.Institution = merge.Field(existing.Institution, input.Institution)
	input.Major = merge.Field(existing.Major, input.Major)
	if input.Signature == "" {
		input.Signature = existing.Signature
		input.SignatureEmbedding = existing.SignatureEmbedding
	}
	// A record already past review keeps its status, but a flagged
	// encounter flags the record: fallback values merged into it still
	// need a human look.
	input.Status = existing.Status
	input.NeedsReview = input.NeedsReview || existing.NeedsReview

	return c.connections.QueryUpdateConnectionForEncounter(ctx, connectionID, input, existing.Signature)
}

// buildConnectionInput reconciles the extractor's write-once beliefs
// with the session's confidence-merged profile and assembles the
// durable-record fields.
func buildConnectionInput(snapshot models.SessionSnapshot, beliefs extract.BeliefState) (models.ConnectionInput, bool) {
	resolved, fellBack := extract.ResolveProfile(beliefs)

	profile := snapshot.Audio.Profile
	profile.Name = merge.Field(profile.Name, resolved.Name)
	profile.Company = merge.Field(profile.Company, resolved.Company)
	profile.Role = merge.Field(profile.Role, resolved.Role)
	profile.Institution = merge.Field(profile.Institution, resolved.Institution)
	profile.Major = merge.Field(profile.Major, resolved.Major)

	topics, _ := merge.UnionFacts(snapshot.Audio.Topics, beliefs.Topics)
	challenges, _ := merge.UnionFacts(snapshot.Audio.Challenges, beliefs.Challenges)
	hooks, _ := merge.UnionFacts(snapshot.Audio.Hooks, beliefs.Hooks)
	personal, _ := merge.UnionFacts(snapshot.Audio.PersonalFacts, beliefs.Personal)

	input := models.ConnectionInput{
		UserID:          snapshot.UserID,
		Status:          models.StatusDraft,
		Name:            profile.Name,
		Company:         profile.Company,
		Role:            profile.Role,
		Institution:     profile.Institution,
		Major:           profile.Major,
		Signature:       buildSignature(profile.Name.Value, snapshot.Visual.AppearanceText),
		EnvironmentText: snapshot.Visual.EnvironmentText,
		HeadshotRef:     snapshot.Visual.HeadshotRef,
		Topics:          topics,
		Challenges:      challenges,
		Hooks:           hooks,
		PersonalFacts:   personal,
	}
	return input, fellBack
}

// embedSignature computes the stored signature embedding. Embedding
// failure downgrades the record, it never blocks finalization.
func (c *Coordinator) embedSignature(ctx context.Context, input *models.ConnectionInput) {
	if input.Signature == "" || c.embedder == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	embedding, err := c.embedder.Embed(callCtx, input.Signature)
	if c.collector != nil {
		c.collector.RecordTiming(metrics.OpEmbedding, time.Since(start))
	}
	if err != nil {
		c.logger.Warn("signature embedding failed", "error", err)
		return
	}
	input.SignatureEmbedding = embedding
}

// appendInteraction writes the encounter-log row. Failure is logged but
// never fails the finalization.
func (c *Coordinator) appendInteraction(ctx context.Context, connectionID string, snapshot models.SessionSnapshot) {
	_, err := c.connections.QueryAppendInteraction(ctx, models.InteractionInput{
		ConnectionID:    connectionID,
		UserID:          snapshot.UserID,
		SessionID:       snapshot.ID,
		Event:           snapshot.Context.Event,
		LocationName:    snapshot.Context.Location.Name,
		LocationCity:    snapshot.Context.Location.City,
		Topics:          snapshot.Audio.Topics,
		StartedAt:       snapshot.StartedAt,
		EndedAt:         snapshot.EndedAt,
		DurationSeconds: snapshot.Duration.Seconds(),
	})
	if err != nil {
		c.logger.Warn("append interaction failed",
			"session_id", snapshot.ID, "connection_id", connectionID, "error", err)
	}
}

// sweepLoop finalizes sessions idle beyond the threshold. One session's
// failure never blocks the rest of the sweep.
func (c *Coordinator) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweepOnce()
		}
	}
}

func (c *Coordinator) sweepOnce() {
	stale := c.store.SweepStale(c.opts.IdleTimeout)
	for _, id := range stale {
		c.logger.Info("finalizing stale session", "session_id", id,
			"idle_threshold", c.opts.IdleTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
		if err := c.EndSession(ctx, id); err != nil && !errors.Is(err, session.ErrNotFound) {
			c.logger.Error("stale session finalization failed",
				"session_id", id, "error", err)
		}
		cancel()
	}
}

// timedExtraction records extraction-call timings and the provider's
// token accounting on the way through.
type timedExtraction struct {
	client    extract.Client
	collector *metrics.Collector
}

func (t timedExtraction) ExtractProfile(ctx context.Context, transcript string) (*llm.ProfileExtraction, error) {
	start := time.Now()
	result, err := t.client.ExtractProfile(ctx, transcript)
	if result != nil {
		t.collector.RecordLLMUsage(metrics.OpExtraction, time.Since(start),
			result.Usage.InputTokens, result.Usage.OutputTokens)
	} else {
		t.collector.RecordTiming(metrics.OpExtraction, time.Since(start))
	}
	return result, err
}

// timedConnections records durable-store query timings on the way
// through.
type timedConnections struct {
	store     ConnectionStore
	collector *metrics.Collector
}

func (t timedConnections) QueryCreateConnection(ctx context.Context, input models.ConnectionInput) (*models.Connection, error) {
	start := time.Now()
	conn, err := t.store.QueryCreateConnection(ctx, input)
	t.collector.RecordTiming(metrics.OpDBQuery, time.Since(start))
	return conn, err
}

func (t timedConnections) QueryGetConnection(ctx context.Context, id string) (*models.Connection, error) {
	start := time.Now()
	conn, err := t.store.QueryGetConnection(ctx, id)
	t.collector.RecordTiming(metrics.OpDBQuery, time.Since(start))
	return conn, err
}

func (t timedConnections) QueryUpdateConnectionForEncounter(ctx context.Context, id string, input models.ConnectionInput, pastSignature string) (*models.Connection, error) {
	start := time.Now()
	conn, err := t.store.QueryUpdateConnectionForEncounter(ctx, id, input, pastSignature)
	t.collector.RecordTiming(metrics.OpDBQuery, time.Since(start))
	return conn, err
}

func (t timedConnections) QueryAppendInteraction(ctx context.Context, input models.InteractionInput) (*models.Interaction, error) {
	start := time.Now()
	interaction, err := t.store.QueryAppendInteraction(ctx, input)
	t.collector.RecordTiming(metrics.OpDBQuery, time.Since(start))
	return interaction, err
}

// ActiveSessions reports how many sessions are currently registered.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Close stops the sweep loop, finalizes every remaining session and
// waits for background work to drain.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	remaining := make([]string, 0, len(c.handles))
	for id := range c.handles {
		remaining = append(remaining, id)
	}
	c.mu.Unlock()

	close(c.stopSweep)

	var firstErr error
	for _, id := range remaining {
		if err := c.EndSession(ctx, id); err != nil && !errors.Is(err, session.ErrNotFound) {
			c.logger.Error("finalize on shutdown failed", "session_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	c.wg.Wait()
	return firstErr
}
