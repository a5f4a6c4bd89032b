// Package match ranks durable connections against a live session's
// identity signature using embedding similarity.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fieldnotes-ai/fieldnotes/internal/db"
)

// Embedder turns a signature text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs the scoped KNN search over stored connections.
type Searcher interface {
	QuerySearchConnectionsByEmbedding(ctx context.Context, userID string, embedding []float32, limit int) ([]db.ConnectionMatch, error)
}

// Options configures a Matcher.
type Options struct {
	// Floor discards candidates below this similarity before ranking.
	Floor float64
	// Limit caps how many candidates the search returns.
	Limit  int
	Logger *slog.Logger
}

// Matcher finds stored connections resembling a session's subject. It
// ranks and filters only; the decision threshold belongs to the caller.
type Matcher struct {
	embedder Embedder
	searcher Searcher
	floor    float64
	limit    int
	logger   *slog.Logger
}

// New creates a matcher.
func New(embedder Embedder, searcher Searcher, opts Options) *Matcher {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Matcher{
		embedder: embedder,
		searcher: searcher,
		floor:    opts.Floor,
		limit:    opts.Limit,
		logger:   opts.Logger,
	}
}

// FindMatches embeds the signature and returns stored connections for
// the user ordered by descending similarity, filtered by the floor. A
// signature with no usable content returns no matches and no error.
func (m *Matcher) FindMatches(ctx context.Context, userID, signature string) ([]db.ConnectionMatch, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, nil
	}

	embedding, err := m.embedder.Embed(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("embed signature: %w", err)
	}

	candidates, err := m.searcher.QuerySearchConnectionsByEmbedding(ctx, userID, embedding, m.limit)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}

	matches := candidates[:0]
	for _, cand := range candidates {
		if cand.Score >= m.floor {
			matches = append(matches, cand)
		}
	}

	m.logger.Debug("signature match complete",
		"user_id", userID,
		"candidates", len(candidates),
		"above_floor", len(matches))

	if len(matches) == 0 {
		return nil, nil
	}
	return matches, nil
}
