// Package matching decides whether an incoming bullet is already known to a
// user's bullet bank, and at what confidence.
package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/bullet-optimizer/internal/db"
)

// Match tiers, ordered by confidence.
const (
	TierExact            = "exact"
	TierHighConfidence   = "high_confidence"
	TierMediumConfidence = "medium_confidence"
	TierNoMatch          = "no_match"
)

// Store is the subset of database operations matching needs.
type Store interface {
	FindByNormalizedText(ctx context.Context, userID uuid.UUID, normalized string) (*db.Bullet, error)
	FindSimilarBullets(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float64, limit int) ([]db.SimilarBullet, error)
}

// Embedder produces an embedding for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result describes how an incoming bullet relates to the stored bank.
type Result struct {
	Tier         string    `json:"tier"`
	BulletID     uuid.UUID `json:"bullet_id,omitempty"`
	ExistingText string    `json:"existing_text,omitempty"`
	Similarity   float64   `json:"similarity,omitempty"`
	Embedding    []float32 `json:"-"`
}

// Matcher runs the tiered matching pipeline.
type Matcher struct {
	store    Store
	embedder Embedder

	highThreshold   float64
	mediumThreshold float64
	limit           int
}

// New builds a Matcher. Thresholds are cosine similarities; high must be
// at least medium.
func New(store Store, embedder Embedder, highThreshold, mediumThreshold float64, limit int) *Matcher {
	return &Matcher{
		store:           store,
		embedder:        embedder,
		highThreshold:   highThreshold,
		mediumThreshold: mediumThreshold,
		limit:           limit,
	}
}

// Normalize lowercases, trims, and collapses internal whitespace so that
// formatting differences never defeat exact matching.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Match classifies an incoming bullet against the user's stored bullets.
// Exact normalized-text matches win without touching the embedding model.
// Otherwise the best cosine similarity picks the tier: at or above the high
// threshold, at or above the medium threshold, or no match. Matching is
// read-only; it never stores anything.
func (m *Matcher) Match(ctx context.Context, userID uuid.UUID, text string) (*Result, error) {
	normalized := Normalize(text)

	exact, err := m.store.FindByNormalizedText(ctx, userID, normalized)
	if err != nil {
		return nil, fmt.Errorf("exact match lookup failed: %w", err)
	}
	if exact != nil {
		return &Result{
			Tier:         TierExact,
			BulletID:     exact.ID,
			ExistingText: exact.BulletText,
			Similarity:   1.0,
		}, nil
	}

	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		// No zero-vector fallback: a fake embedding would silently
		// corrupt every later similarity comparison.
		return nil, err
	}

	similar, err := m.store.FindSimilarBullets(ctx, userID, embedding, m.mediumThreshold, m.limit)
	if err != nil {
		return nil, fmt.Errorf("similarity lookup failed: %w", err)
	}
	if len(similar) == 0 {
		return &Result{Tier: TierNoMatch, Embedding: embedding}, nil
	}

	best := similar[0]
	tier := TierMediumConfidence
	if best.Similarity >= m.highThreshold {
		tier = TierHighConfidence
	}
	return &Result{
		Tier:         tier,
		BulletID:     best.ID,
		ExistingText: best.BulletText,
		Similarity:   best.Similarity,
		Embedding:    embedding,
	}, nil
}
