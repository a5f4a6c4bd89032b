package models

import "time"

// TranscriptFragment is one transcript event from the transcription
// channel. Start/End are offsets in seconds from the start of the audio
// stream; SpeakerTag is the upstream diarization tag (0 = untagged).
type TranscriptFragment struct {
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
	IsFinal    bool      `json:"is_final"`
	SpeakerTag int       `json:"speaker_tag,omitempty"`
	Start      float64   `json:"start,omitempty"`
	End        float64   `json:"end,omitempty"`
}

// Location is where the encounter happened.
type Location struct {
	Name string `json:"name,omitempty"`
	City string `json:"city,omitempty"`
}

// SessionContext is the caller-supplied event metadata. It is fixed at
// session start and never mutated afterwards.
type SessionContext struct {
	Event    string   `json:"event,omitempty"`
	Location Location `json:"location,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// FaceMatchResult is the latest identity-match decision for a session.
type FaceMatchResult struct {
	Matched      bool    `json:"matched"`
	ConnectionID string  `json:"connection_id,omitempty"`
	Name         string  `json:"name,omitempty"`
	Score        float64 `json:"score"`
}

// VisualState is the current best visual understanding of the subject.
type VisualState struct {
	AppearanceText  string           `json:"appearance_text,omitempty"`
	EnvironmentText string           `json:"environment_text,omitempty"`
	HeadshotRef     string           `json:"headshot_ref,omitempty"`
	FaceDetected    bool             `json:"face_detected"`
	Speaking        bool             `json:"speaking"`
	Match           *FaceMatchResult `json:"match,omitempty"`
}

// VisualUpdate is a field-wise partial update of VisualState. Nil fields
// leave the stored value untouched.
type VisualUpdate struct {
	AppearanceText  *string `json:"appearance_text,omitempty"`
	EnvironmentText *string `json:"environment_text,omitempty"`
	HeadshotRef     *string `json:"headshot_ref,omitempty"`
	FaceDetected    *bool   `json:"face_detected,omitempty"`
	Speaking        *bool   `json:"speaking,omitempty"`
}

// Profile holds the confidence-labeled identity fields accumulated for a
// session's subject.
type Profile struct {
	Name        ConfidentField `json:"name,omitempty"`
	Company     ConfidentField `json:"company,omitempty"`
	Role        ConfidentField `json:"role,omitempty"`
	Institution ConfidentField `json:"institution,omitempty"`
	Major       ConfidentField `json:"major,omitempty"`
}

// ProfileUpdate is a sparse candidate profile. Nil fields are skipped;
// present fields go through the confidence-ordered merge.
type ProfileUpdate struct {
	Name        *ConfidentField `json:"name,omitempty"`
	Company     *ConfidentField `json:"company,omitempty"`
	Role        *ConfidentField `json:"role,omitempty"`
	Institution *ConfidentField `json:"institution,omitempty"`
	Major       *ConfidentField `json:"major,omitempty"`
}

// AudioState accumulates everything derived from the audio stream.
// SubjectSpeakerTag is the diarization tag currently believed to be the
// subject, 0 while there is no evidence. It is advisory only.
type AudioState struct {
	Fragments         []TranscriptFragment `json:"fragments"`
	Profile           Profile              `json:"profile"`
	Topics            []string             `json:"topics,omitempty"`
	Challenges        []string             `json:"challenges,omitempty"`
	Hooks             []string             `json:"hooks,omitempty"`
	PersonalFacts     []string             `json:"personal_facts,omitempty"`
	SubjectSpeakerTag int                  `json:"subject_speaker_tag,omitempty"`
}

// AudioUpdate is a partial update of AudioState. Fragments are appended,
// profile fields merged by confidence, fact lists unioned with dedup. A
// nil SubjectSpeakerTag leaves the stored tag untouched.
type AudioUpdate struct {
	Fragments         []TranscriptFragment `json:"fragments,omitempty"`
	Profile           ProfileUpdate        `json:"profile,omitempty"`
	Topics            []string             `json:"topics,omitempty"`
	Challenges        []string             `json:"challenges,omitempty"`
	Hooks             []string             `json:"hooks,omitempty"`
	PersonalFacts     []string             `json:"personal_facts,omitempty"`
	SubjectSpeakerTag *int                 `json:"subject_speaker_tag,omitempty"`
}

// Session is the mutable in-memory record of one in-progress encounter.
// It is owned exclusively by the session store while active.
type Session struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Visual         VisualState    `json:"visual"`
	Audio          AudioState     `json:"audio"`
	Context        SessionContext `json:"context"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// Clone returns a deep, independent copy of the session. Later mutation
// of the original cannot reach the copy.
func (s *Session) Clone() Session {
	out := *s
	out.Audio.Fragments = append([]TranscriptFragment(nil), s.Audio.Fragments...)
	out.Audio.Topics = append([]string(nil), s.Audio.Topics...)
	out.Audio.Challenges = append([]string(nil), s.Audio.Challenges...)
	out.Audio.Hooks = append([]string(nil), s.Audio.Hooks...)
	out.Audio.PersonalFacts = append([]string(nil), s.Audio.PersonalFacts...)
	if s.Visual.Match != nil {
		m := *s.Visual.Match
		out.Visual.Match = &m
	}
	return out
}

// SessionSnapshot is the immutable deep copy taken when a session is
// finalized and removed from the store.
type SessionSnapshot struct {
	Session
	EndedAt  time.Time     `json:"ended_at"`
	Duration time.Duration `json:"duration"`
}
