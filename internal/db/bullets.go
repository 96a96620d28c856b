package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StoreBullet inserts a bullet with its embedding. A UNIQUE constraint on
// (user_id, normalized_text) makes concurrent inserts of the same bullet
// converge on one row; ON CONFLICT returns the surviving row either way.
// The second return value reports whether a new row was created.
func (db *DB) StoreBullet(ctx context.Context, userID uuid.UUID, text, normalized string, embedding []float32) (*Bullet, bool, error) {
	query := `
		INSERT INTO user_bullets (user_id, bullet_text, normalized_text, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (user_id, normalized_text)
		DO UPDATE SET normalized_text = user_bullets.normalized_text
		RETURNING id, user_id, bullet_text, normalized_text, created_at, (xmax = 0)`

	var b Bullet
	var created bool
	err := db.pool.QueryRow(ctx, query, userID, text, normalized, encodeVector(embedding)).Scan(
		&b.ID, &b.UserID, &b.BulletText, &b.NormalizedText, &b.CreatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to store bullet: %w", err)
	}
	return &b, created, nil
}

// GetBullet fetches a bullet by id. Returns (nil, nil) when no row exists.
func (db *DB) GetBullet(ctx context.Context, id uuid.UUID) (*Bullet, error) {
	query := `
		SELECT id, user_id, bullet_text, normalized_text, created_at
		FROM user_bullets
		WHERE id = $1`

	var b Bullet
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.UserID, &b.BulletText, &b.NormalizedText, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bullet: %w", err)
	}
	return &b, nil
}

// FindByNormalizedText looks up a user's bullet by its normalized form.
// Returns (nil, nil) when no row exists.
func (db *DB) FindByNormalizedText(ctx context.Context, userID uuid.UUID, normalized string) (*Bullet, error) {
	query := `
		SELECT id, user_id, bullet_text, normalized_text, created_at
		FROM user_bullets
		WHERE user_id = $1 AND normalized_text = $2`

	var b Bullet
	err := db.pool.QueryRow(ctx, query, userID, normalized).Scan(
		&b.ID, &b.UserID, &b.BulletText, &b.NormalizedText, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find bullet by normalized text: %w", err)
	}
	return &b, nil
}

// FindSimilarBullets returns the user's bullets whose cosine similarity to
// the query embedding meets the threshold, best first. Ties break toward the
// most recently stored bullet.
func (db *DB) FindSimilarBullets(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float64, limit int) ([]SimilarBullet, error) {
	query := `
		SELECT id, bullet_text, 1 - (embedding <=> $2::vector) AS similarity
		FROM user_bullets
		WHERE user_id = $1 AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY similarity DESC, created_at DESC
		LIMIT $4`

	rows, err := db.pool.Query(ctx, query, userID, encodeVector(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar bullets: %w", err)
	}
	defer rows.Close()

	var results []SimilarBullet
	for rows.Next() {
		var s SimilarBullet
		if err := rows.Scan(&s.ID, &s.BulletText, &s.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan similar bullet: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// ListBullets returns all of a user's bullets, newest first.
func (db *DB) ListBullets(ctx context.Context, userID uuid.UUID) ([]Bullet, error) {
	query := `
		SELECT id, user_id, bullet_text, normalized_text, created_at
		FROM user_bullets
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bullets: %w", err)
	}
	defer rows.Close()

	var bullets []Bullet
	for rows.Next() {
		var b Bullet
		if err := rows.Scan(&b.ID, &b.UserID, &b.BulletText, &b.NormalizedText, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bullet: %w", err)
		}
		bullets = append(bullets, b)
	}
	return bullets, rows.Err()
}

// DeleteBullet removes a bullet and soft-deletes its facts in one
// transaction.
func (db *DB) DeleteBullet(ctx context.Context, id uuid.UUID) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE bullet_facts SET deleted_at = NOW() WHERE bullet_id = $1 AND deleted_at IS NULL`, id); err != nil {
		return fmt.Errorf("failed to soft-delete facts: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM user_bullets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete bullet: %w", err)
	}

	return tx.Commit(ctx)
}
