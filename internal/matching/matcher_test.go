package matching

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bullet-optimizer/internal/db"
	"github.com/jonathan/bullet-optimizer/internal/llm"
)

type fakeStore struct {
	byNormalized map[string]*db.Bullet
	similar      []db.SimilarBullet
}

func (s *fakeStore) FindByNormalizedText(_ context.Context, _ uuid.UUID, normalized string) (*db.Bullet, error) {
	return s.byNormalized[normalized], nil
}

func (s *fakeStore) FindSimilarBullets(_ context.Context, _ uuid.UUID, _ []float32, threshold float64, _ int) ([]db.SimilarBullet, error) {
	var out []db.SimilarBullet
	for _, b := range s.similar {
		if b.Similarity >= threshold {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return e.vec, e.err
}

func newMatcher(store *fakeStore, embedder *fakeEmbedder) *Matcher {
	return New(store, embedder, 0.90, 0.85, 5)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Led Team Of 5", "led team of 5"},
		{"trims", "  built api  ", "built api"},
		{"collapses whitespace", "built\t\napi   service", "built api service"},
		{"already normal", "shipped feature", "shipped feature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestMatchExact(t *testing.T) {
	existing := &db.Bullet{ID: uuid.New(), BulletText: "Led a team of 5 engineers"}
	store := &fakeStore{
		byNormalized: map[string]*db.Bullet{"led a team of 5 engineers": existing},
	}
	embedder := &fakeEmbedder{err: &llm.EmbeddingUnavailableError{}}
	m := newMatcher(store, embedder)

	// Formatting differences must not defeat the exact match, and the
	// embedder must never be called for one.
	res, err := m.Match(context.Background(), uuid.New(), "  LED a Team  of 5 Engineers ")
	require.NoError(t, err)
	assert.Equal(t, TierExact, res.Tier)
	assert.Equal(t, existing.ID, res.BulletID)
	assert.Equal(t, existing.BulletText, res.ExistingText)
	assert.Equal(t, 1.0, res.Similarity)
}

func TestMatchTiers(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name       string
		similarity float64
		wantTier   string
	}{
		{"well above high threshold", 0.95, TierHighConfidence},
		{"at high threshold", 0.90, TierHighConfidence},
		{"just under high threshold", 0.8999, TierMediumConfidence},
		{"at medium threshold", 0.85, TierMediumConfidence},
		{"under medium threshold", 0.8499, TierNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{
				similar: []db.SimilarBullet{{ID: id, BulletText: "existing", Similarity: tt.similarity}},
			}
			m := newMatcher(store, &fakeEmbedder{vec: []float32{0.1, 0.2}})

			res, err := m.Match(context.Background(), uuid.New(), "some new bullet")
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, res.Tier)
			if tt.wantTier != TierNoMatch {
				assert.Equal(t, id, res.BulletID)
				assert.Equal(t, tt.similarity, res.Similarity)
			}
		})
	}
}

func TestMatchEmptyBank(t *testing.T) {
	store := &fakeStore{}
	m := newMatcher(store, &fakeEmbedder{vec: []float32{0.1}})

	res, err := m.Match(context.Background(), uuid.New(), "brand new bullet")
	require.NoError(t, err)
	assert.Equal(t, TierNoMatch, res.Tier)
	assert.NotNil(t, res.Embedding)
}

func TestMatchEmbeddingFailure(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{err: &llm.EmbeddingUnavailableError{}}
	m := newMatcher(store, embedder)

	_, err := m.Match(context.Background(), uuid.New(), "anything")
	require.Error(t, err)

	var unavailable *llm.EmbeddingUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}
