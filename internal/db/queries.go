// Package db provides SurrealDB query functions for connection and
// interaction records.
package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

// ConnectionMatch is a connection paired with its cosine similarity
// score against a query embedding.
type ConnectionMatch struct {
	models.Connection
	Score float64 `json:"score"`
}

// StatusCount represents a connection status with its record count.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func confidentFieldVar(f models.ConfidentField) any {
	if f.IsZero() {
		return nil
	}
	return map[string]any{
		"value":      f.Value,
		"confidence": string(f.Confidence),
	}
}

func emptyAsNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// QueryCreateConnection creates a new draft connection record from a
// finalized session and returns it.
func (c *Client) QueryCreateConnection(ctx context.Context, input models.ConnectionInput) (*models.Connection, error) {
	status := input.Status
	if status == "" {
		status = models.StatusDraft
	}

	results, err := surrealdb.Query[[]models.Connection](ctx, c.db, `
		CREATE connection CONTENT {
			user_id: $user_id,
			status: $status,
			name: $name,
			company: $company,
			role: $role,
			institution: $institution,
			major: $major,
			signature: $signature,
			signature_embedding: $embedding,
			past_signatures: [],
			environment_text: $environment,
			headshot_ref: $headshot,
			topics: $topics,
			challenges: $challenges,
			hooks: $hooks,
			personal_facts: $personal,
			needs_review: $needs_review,
			encounter_count: 1
		}
	`, map[string]any{
		"user_id":      input.UserID,
		"status":       string(status),
		"name":         confidentFieldVar(input.Name),
		"company":      confidentFieldVar(input.Company),
		"role":         confidentFieldVar(input.Role),
		"institution":  confidentFieldVar(input.Institution),
		"major":        confidentFieldVar(input.Major),
		"signature":    emptyAsNil(input.Signature),
		"embedding":    input.SignatureEmbedding,
		"environment":  emptyAsNil(input.EnvironmentText),
		"headshot":     emptyAsNil(input.HeadshotRef),
		"topics":       orEmpty(input.Topics),
		"challenges":   orEmpty(input.Challenges),
		"hooks":        orEmpty(input.Hooks),
		"personal":     orEmpty(input.PersonalFacts),
		"needs_review": input.NeedsReview,
	})
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create connection: empty result")
	}
	return &(*results)[0].Result[0], nil
}

// QueryGetConnection retrieves a connection by ID.
// Returns ErrNotFound if no such record exists.
func (c *Client) QueryGetConnection(ctx context.Context, id string) (*models.Connection, error) {
	results, err := surrealdb.Query[[]models.Connection](ctx, c.db, `
		SELECT * FROM type::record("connection", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get connection %q: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// QueryUpdateConnectionForEncounter folds a new encounter into an
// existing connection. Scalar fields arrive already merged by the
// caller; list fields union additively in the database. A non-empty
// pastSignature is pushed onto past_signatures before the new signature
// replaces it. Returns the updated record.
func (c *Client) QueryUpdateConnectionForEncounter(
	ctx context.Context,
	id string,
	input models.ConnectionInput,
	pastSignature string,
) (*models.Connection, error) {
	past := []string{}
	if pastSignature != "" && pastSignature != input.Signature {
		past = append(past, pastSignature)
	}

	results, err := surrealdb.Query[[]models.Connection](ctx, c.db, `
		UPDATE type::record("connection", $id) SET
			name = $name,
			company = $company,
			role = $role,
			institution = $institution,
			major = $major,
			signature = $signature,
			signature_embedding = $embedding,
			past_signatures = array::distinct(array::concat(past_signatures, $past)),
			environment_text = $environment,
			headshot_ref = $headshot,
			topics = array::union(topics, $topics),
			challenges = array::union(challenges, $challenges),
			hooks = array::union(hooks, $hooks),
			personal_facts = array::union(personal_facts, $personal),
			needs_review = $needs_review,
			encounter_count += 1,
			updated = time::now()
	`, map[string]any{
		"id":           id,
		"name":         confidentFieldVar(input.Name),
		"company":      confidentFieldVar(input.Company),
		"role":         confidentFieldVar(input.Role),
		"institution":  confidentFieldVar(input.Institution),
		"major":        confidentFieldVar(input.Major),
		"signature":    emptyAsNil(input.Signature),
		"embedding":    input.SignatureEmbedding,
		"past":         past,
		"environment":  emptyAsNil(input.EnvironmentText),
		"headshot":     emptyAsNil(input.HeadshotRef),
		"topics":       orEmpty(input.Topics),
		"challenges":   orEmpty(input.Challenges),
		"hooks":        orEmpty(input.Hooks),
		"personal":     orEmpty(input.PersonalFacts),
		"needs_review": input.NeedsReview,
	})
	if err != nil {
		return nil, fmt.Errorf("update connection: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("update connection %q: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// QuerySearchConnectionsByEmbedding runs a KNN search over signature
// embeddings scoped to one user. Archived connections never match.
// Results come back ordered by descending cosine similarity.
func (c *Client) QuerySearchConnectionsByEmbedding(
	ctx context.Context,
	userID string,
	embedding []float32,
	limit int,
) ([]ConnectionMatch, error) {
	if limit <= 0 {
		limit = 5
	}

	// HNSW with ef=40 for better recall.
	sql := fmt.Sprintf(`
		SELECT *, vector::similarity::cosine(signature_embedding, $emb) AS score
		FROM connection
		WHERE signature_embedding <|%d,40|> $emb
			AND user_id = $user_id
			AND status != 'archived'
		ORDER BY score DESC
		LIMIT $limit
	`, limit)

	results, err := surrealdb.Query[[]ConnectionMatch](ctx, c.db, sql, map[string]any{
		"emb":     embedding,
		"user_id": userID,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search connections: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []ConnectionMatch{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryListConnections returns a user's connections, newest first.
// A non-empty status narrows the list to that lifecycle state.
func (c *Client) QueryListConnections(
	ctx context.Context,
	userID string,
	status models.ConnectionStatus,
	limit int,
) ([]models.Connection, error) {
	if limit <= 0 {
		limit = 50
	}

	statusClause := ""
	vars := map[string]any{
		"user_id": userID,
		"limit":   limit,
	}
	if status != "" {
		statusClause = "AND status = $status"
		vars["status"] = string(status)
	}

	sql := fmt.Sprintf(`
		SELECT * FROM connection
		WHERE user_id = $user_id %s
		ORDER BY updated DESC
		LIMIT $limit
	`, statusClause)

	results, err := surrealdb.Query[[]models.Connection](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.Connection{}, nil
	}
	return (*results)[0].Result, nil
}

// QuerySetConnectionStatus moves a connection to a new lifecycle state
// and returns the updated record. Returns ErrNotFound for unknown IDs.
func (c *Client) QuerySetConnectionStatus(
	ctx context.Context,
	id string,
	status models.ConnectionStatus,
) (*models.Connection, error) {
	results, err := surrealdb.Query[[]models.Connection](ctx, c.db, `
		UPDATE type::record("connection", $id) SET
			status = $status,
			updated = time::now()
	`, map[string]any{
		"id":     id,
		"status": string(status),
	})
	if err != nil {
		return nil, fmt.Errorf("set connection status: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("set connection status %q: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// QueryAppendInteraction appends one encounter record for a connection.
func (c *Client) QueryAppendInteraction(ctx context.Context, input models.InteractionInput) (*models.Interaction, error) {
	results, err := surrealdb.Query[[]models.Interaction](ctx, c.db, `
		CREATE interaction CONTENT {
			connection_id: $connection_id,
			user_id: $user_id,
			session_id: $session_id,
			event: $event,
			location_name: $location_name,
			location_city: $location_city,
			topics: $topics,
			started_at: <datetime>$started_at,
			ended_at: <datetime>$ended_at,
			duration_seconds: $duration
		}
	`, map[string]any{
		"connection_id": input.ConnectionID,
		"user_id":       input.UserID,
		"session_id":    input.SessionID,
		"event":         emptyAsNil(input.Event),
		"location_name": emptyAsNil(input.LocationName),
		"location_city": emptyAsNil(input.LocationCity),
		"topics":        orEmpty(input.Topics),
		"started_at":    input.StartedAt,
		"ended_at":      input.EndedAt,
		"duration":      input.DurationSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("append interaction: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("append interaction: empty result")
	}
	return &(*results)[0].Result[0], nil
}

// QueryListInteractions returns a connection's encounter log, newest first.
func (c *Client) QueryListInteractions(ctx context.Context, connectionID string, limit int) ([]models.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}

	results, err := surrealdb.Query[[]models.Interaction](ctx, c.db, `
		SELECT * FROM interaction
		WHERE connection_id = $connection_id
		ORDER BY started_at DESC
		LIMIT $limit
	`, map[string]any{
		"connection_id": connectionID,
		"limit":         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.Interaction{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryConnectionStats returns connection counts grouped by status for
// one user.
func (c *Client) QueryConnectionStats(ctx context.Context, userID string) ([]StatusCount, error) {
	results, err := surrealdb.Query[[]StatusCount](ctx, c.db, `
		SELECT status, count() AS count FROM connection
		WHERE user_id = $user_id
		GROUP BY status ORDER BY count DESC
	`, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("connection stats: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []StatusCount{}, nil
	}
	return (*results)[0].Result, nil
}
