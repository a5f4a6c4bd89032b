// Package session provides the in-memory registry of active encounter
// sessions. The store is the only mutable shared state in the core and
// is constructed once and injected, never reached through package-level
// globals.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fieldnotes-ai/fieldnotes/internal/merge"
	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

// Sentinel errors for session operations. Check with errors.Is.
var (
	// ErrNotFound indicates the session id is not registered, including
	// any session that has already been finalized.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists indicates a duplicate session start.
	ErrAlreadyExists = errors.New("session already exists")
)

// Store is a mutex-guarded registry of active sessions keyed by session
// id. All methods are safe for concurrent use; returned sessions are
// copies, never aliases of the stored state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session

	// now is swappable for tests.
	now func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*models.Session),
		now:      time.Now,
	}
}

// Create registers a new session. Fails with ErrAlreadyExists if the id
// is taken.
func (s *Store) Create(sessionID, userID string, sctx models.SessionContext) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return models.Session{}, fmt.Errorf("%w: %s", ErrAlreadyExists, sessionID)
	}

	now := s.now()
	sess := &models.Session{
		ID:             sessionID,
		UserID:         userID,
		Context:        sctx,
		StartedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[sessionID] = sess
	return sess.Clone(), nil
}

// Get returns a copy of the session, or ErrNotFound.
func (s *Store) Get(sessionID string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return sess.Clone(), nil
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// UpdateVisual merges a partial visual update field-wise: present fields
// replace the stored ones, absent fields are untouched.
func (s *Store) UpdateVisual(sessionID string, upd models.VisualUpdate) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	if upd.AppearanceText != nil {
		sess.Visual.AppearanceText = *upd.AppearanceText
	}
	if upd.EnvironmentText != nil {
		sess.Visual.EnvironmentText = *upd.EnvironmentText
	}
	if upd.HeadshotRef != nil {
		sess.Visual.HeadshotRef = *upd.HeadshotRef
	}
	if upd.FaceDetected != nil {
		sess.Visual.FaceDetected = *upd.FaceDetected
	}
	if upd.Speaking != nil {
		sess.Visual.Speaking = *upd.Speaking
	}
	sess.LastActivityAt = s.now()
	return sess.Clone(), nil
}

// UpdateFaceMatch replaces the whole match sub-object, no merging.
func (s *Store) UpdateFaceMatch(sessionID string, match models.FaceMatchResult) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	m := match
	sess.Visual.Match = &m
	sess.LastActivityAt = s.now()
	return sess.Clone(), nil
}

// UpdateAudio appends transcript fragments, merges profile scalars by
// confidence and unions fact lists with near-duplicate removal.
func (s *Store) UpdateAudio(sessionID string, upd models.AudioUpdate) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	sess.Audio.Fragments = append(sess.Audio.Fragments, upd.Fragments...)
	mergeProfile(&sess.Audio.Profile, upd.Profile)
	sess.Audio.Topics, _ = merge.UnionFacts(sess.Audio.Topics, upd.Topics)
	sess.Audio.Challenges, _ = merge.UnionFacts(sess.Audio.Challenges, upd.Challenges)
	sess.Audio.Hooks, _ = merge.UnionFacts(sess.Audio.Hooks, upd.Hooks)
	sess.Audio.PersonalFacts, _ = merge.UnionFacts(sess.Audio.PersonalFacts, upd.PersonalFacts)
	if upd.SubjectSpeakerTag != nil {
		sess.Audio.SubjectSpeakerTag = *upd.SubjectSpeakerTag
	}
	sess.LastActivityAt = s.now()
	return sess.Clone(), nil
}

func mergeProfile(p *models.Profile, upd models.ProfileUpdate) {
	if upd.Name != nil {
		p.Name = merge.Field(p.Name, *upd.Name)
	}
	if upd.Company != nil {
		p.Company = merge.Field(p.Company, *upd.Company)
	}
	if upd.Role != nil {
		p.Role = merge.Field(p.Role, *upd.Role)
	}
	if upd.Institution != nil {
		p.Institution = merge.Field(p.Institution, *upd.Institution)
	}
	if upd.Major != nil {
		p.Major = merge.Field(p.Major, *upd.Major)
	}
}

// Finalize removes the session from the store and returns an immutable
// deep-copy snapshot stamped with end time and duration. Removal is the
// first externally visible effect, so a concurrent second Finalize (or
// any later Get) observes ErrNotFound.
func (s *Store) Finalize(sessionID string) (models.SessionSnapshot, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return models.SessionSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	now := s.now()
	return models.SessionSnapshot{
		Session:  sess.Clone(),
		EndedAt:  now,
		Duration: now.Sub(sess.StartedAt),
	}, nil
}

// SweepStale returns the ids of sessions idle beyond the threshold. It
// does not remove them; the caller finalizes each one individually so
// that one failure cannot block the rest.
func (s *Store) SweepStale(idleThreshold time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-idleThreshold)
	var stale []string
	for id, sess := range s.sessions {
		if sess.LastActivityAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}
