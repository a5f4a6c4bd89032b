package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ConnectionStatus is the review lifecycle of a durable connection.
type ConnectionStatus string

const (
	StatusDraft    ConnectionStatus = "draft"
	StatusApproved ConnectionStatus = "approved"
	StatusArchived ConnectionStatus = "archived"
)

// Connection is the durable record of a known person, created or updated
// when a session finalizes.
type Connection struct {
	ID     surrealmodels.RecordID `json:"id"`
	UserID string                 `json:"user_id"`
	Status ConnectionStatus       `json:"status"`

	Name        ConfidentField `json:"name,omitempty"`
	Company     ConfidentField `json:"company,omitempty"`
	Role        ConfidentField `json:"role,omitempty"`
	Institution ConfidentField `json:"institution,omitempty"`
	Major       ConfidentField `json:"major,omitempty"`

	// Signature is the identity signature text (name + appearance) whose
	// embedding drives person matching. PastSignatures keeps earlier
	// signatures from previous encounters.
	Signature          string    `json:"signature,omitempty"`
	SignatureEmbedding []float32 `json:"signature_embedding,omitempty"`
	PastSignatures     []string  `json:"past_signatures,omitempty"`

	EnvironmentText string `json:"environment_text,omitempty"`
	HeadshotRef     string `json:"headshot_ref,omitempty"`

	Topics        []string `json:"topics,omitempty"`
	Challenges    []string `json:"challenges,omitempty"`
	Hooks         []string `json:"hooks,omitempty"`
	PersonalFacts []string `json:"personal_facts,omitempty"`

	// NeedsReview marks records whose identity fields came only from
	// fallback sentence parsing.
	NeedsReview    bool      `json:"needs_review"`
	EncounterCount int       `json:"encounter_count"`
	Created        time.Time `json:"created,omitempty"`
	Updated        time.Time `json:"updated,omitempty"`
}

// ConnectionInput carries the fields written when creating or updating a
// connection at finalization time.
type ConnectionInput struct {
	UserID             string
	Status             ConnectionStatus
	Name               ConfidentField
	Company            ConfidentField
	Role               ConfidentField
	Institution        ConfidentField
	Major              ConfidentField
	Signature          string
	SignatureEmbedding []float32
	EnvironmentText    string
	HeadshotRef        string
	Topics             []string
	Challenges         []string
	Hooks              []string
	PersonalFacts      []string
	NeedsReview        bool
}

// Interaction is the append-only log of one finalized encounter against
// a connection.
type Interaction struct {
	ID              surrealmodels.RecordID `json:"id"`
	ConnectionID    string                 `json:"connection_id"`
	UserID          string                 `json:"user_id"`
	SessionID       string                 `json:"session_id"`
	Event           string                 `json:"event,omitempty"`
	LocationName    string                 `json:"location_name,omitempty"`
	LocationCity    string                 `json:"location_city,omitempty"`
	Topics          []string               `json:"topics,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	EndedAt         time.Time              `json:"ended_at"`
	DurationSeconds float64                `json:"duration_seconds"`
}

// InteractionInput carries the fields written when appending an
// interaction for a finalized session.
type InteractionInput struct {
	ConnectionID    string
	UserID          string
	SessionID       string
	Event           string
	LocationName    string
	LocationCity    string
	Topics          []string
	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds float64
}
