package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StoreFacts inserts a facts record for a bullet. New facts always start
// unconfirmed; only an explicit confirmation flips the flag.
func (db *DB) StoreFacts(ctx context.Context, bulletID uuid.UUID, sessionID *uuid.UUID, facts []byte) (*FactRecord, error) {
	query := `
		INSERT INTO bullet_facts (bullet_id, session_id, facts, confirmed)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, bullet_id, session_id, facts, confirmed, created_at, updated_at`

	var f FactRecord
	err := db.pool.QueryRow(ctx, query, bulletID, sessionID, facts).Scan(
		&f.ID, &f.BulletID, &f.SessionID, &f.Facts, &f.Confirmed, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store facts: %w", err)
	}
	return &f, nil
}

// GetFacts fetches a facts record by id. Returns (nil, nil) when no live
// row exists.
func (db *DB) GetFacts(ctx context.Context, id uuid.UUID) (*FactRecord, error) {
	query := `
		SELECT id, bullet_id, session_id, facts, confirmed, created_at, updated_at
		FROM bullet_facts
		WHERE id = $1 AND deleted_at IS NULL`

	var f FactRecord
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.BulletID, &f.SessionID, &f.Facts, &f.Confirmed, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facts: %w", err)
	}
	return &f, nil
}

// UpdateFacts replaces the facts payload and resets confirmation, since the
// user has not reviewed the new content.
func (db *DB) UpdateFacts(ctx context.Context, id uuid.UUID, facts []byte) (*FactRecord, error) {
	query := `
		UPDATE bullet_facts
		SET facts = $2, confirmed = FALSE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id, bullet_id, session_id, facts, confirmed, created_at, updated_at`

	var f FactRecord
	err := db.pool.QueryRow(ctx, query, id, facts).Scan(
		&f.ID, &f.BulletID, &f.SessionID, &f.Facts, &f.Confirmed, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update facts: %w", err)
	}
	return &f, nil
}

// ConfirmFacts marks a facts record as user-confirmed. Returns false when
// the record does not exist.
func (db *DB) ConfirmFacts(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE bullet_facts SET confirmed = TRUE, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("failed to confirm facts: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetConfirmedFacts returns a bullet's confirmed facts records, newest
// first. Unconfirmed and soft-deleted records never appear here.
func (db *DB) GetConfirmedFacts(ctx context.Context, bulletID uuid.UUID) ([]FactRecord, error) {
	query := `
		SELECT id, bullet_id, session_id, facts, confirmed, created_at, updated_at
		FROM bullet_facts
		WHERE bullet_id = $1 AND confirmed = TRUE AND deleted_at IS NULL
		ORDER BY updated_at DESC`

	rows, err := db.pool.Query(ctx, query, bulletID)
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmed facts: %w", err)
	}
	defer rows.Close()

	var records []FactRecord
	for rows.Next() {
		var f FactRecord
		if err := rows.Scan(&f.ID, &f.BulletID, &f.SessionID, &f.Facts, &f.Confirmed, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan facts: %w", err)
		}
		records = append(records, f)
	}
	return records, rows.Err()
}
