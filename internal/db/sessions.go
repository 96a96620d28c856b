package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, user_id, bullet_id, bullet_text, job_description, status, eval_rounds, created_at, updated_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.BulletID, &s.BulletText, &s.JobDescription,
		&s.Status, &s.EvalRounds, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession opens a Q&A session for a bullet against a job description.
func (db *DB) CreateSession(ctx context.Context, userID uuid.UUID, bulletID *uuid.UUID, bulletText, jobDescription string) (*Session, error) {
	query := `
		INSERT INTO qa_sessions (user_id, bullet_id, bullet_text, job_description, status, eval_rounds)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING ` + sessionColumns

	s, err := scanSession(db.pool.QueryRow(ctx, query, userID, bulletID, bulletText, jobDescription, StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// GetSession fetches a session by id. Returns (nil, nil) when no row exists.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM qa_sessions WHERE id = $1`
	s, err := scanSession(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// UpdateSessionStatus moves a session to a new status. Returns false when
// the session does not exist.
func (db *DB) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE qa_sessions SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return false, fmt.Errorf("failed to update session status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementEvalRounds bumps the session's evaluation round counter and
// returns the new count.
func (db *DB) IncrementEvalRounds(ctx context.Context, id uuid.UUID) (int, error) {
	var rounds int
	err := db.pool.QueryRow(ctx,
		`UPDATE qa_sessions SET eval_rounds = eval_rounds + 1, updated_at = NOW() WHERE id = $1 RETURNING eval_rounds`,
		id).Scan(&rounds)
	if err != nil {
		return 0, fmt.Errorf("failed to increment eval rounds: %w", err)
	}
	return rounds, nil
}

// AddQuestion records a question asked during a session.
func (db *DB) AddQuestion(ctx context.Context, sessionID uuid.UUID, question, category string) (*QAPair, error) {
	query := `
		INSERT INTO qa_pairs (session_id, question, category)
		VALUES ($1, $2, $3)
		RETURNING id, session_id, question, category, answer, skipped, asked_at, answered_at`

	var p QAPair
	err := db.pool.QueryRow(ctx, query, sessionID, question, category).Scan(
		&p.ID, &p.SessionID, &p.Question, &p.Category, &p.Answer, &p.Skipped, &p.AskedAt, &p.AnsweredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add question: %w", err)
	}
	return &p, nil
}

// AnswerQuestion records the user's answer to a question. An empty answer
// marks the question skipped instead.
func (db *DB) AnswerQuestion(ctx context.Context, id uuid.UUID, answer string) error {
	var query string
	var args []any
	if answer == "" {
		query = `UPDATE qa_pairs SET skipped = TRUE, answered_at = NOW() WHERE id = $1`
		args = []any{id}
	} else {
		query = `UPDATE qa_pairs SET answer = $2, skipped = FALSE, answered_at = NOW() WHERE id = $1`
		args = []any{id, answer}
	}
	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to answer question: %w", err)
	}
	return nil
}

// ListQAPairs returns a session's questions in the order they were asked.
func (db *DB) ListQAPairs(ctx context.Context, sessionID uuid.UUID) ([]QAPair, error) {
	query := `
		SELECT id, session_id, question, category, answer, skipped, asked_at, answered_at
		FROM qa_pairs
		WHERE session_id = $1
		ORDER BY asked_at ASC, id ASC`

	rows, err := db.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list qa pairs: %w", err)
	}
	defer rows.Close()

	var pairs []QAPair
	for rows.Next() {
		var p QAPair
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Question, &p.Category, &p.Answer, &p.Skipped, &p.AskedAt, &p.AnsweredAt); err != nil {
			return nil, fmt.Errorf("failed to scan qa pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// PendingQuestions returns the session's questions that are neither
// answered nor skipped, oldest first.
func (db *DB) PendingQuestions(ctx context.Context, sessionID uuid.UUID) ([]QAPair, error) {
	query := `
		SELECT id, session_id, question, category, answer, skipped, asked_at, answered_at
		FROM qa_pairs
		WHERE session_id = $1 AND answer IS NULL AND skipped = FALSE
		ORDER BY asked_at ASC, id ASC`

	rows, err := db.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending questions: %w", err)
	}
	defer rows.Close()

	var pairs []QAPair
	for rows.Next() {
		var p QAPair
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Question, &p.Category, &p.Answer, &p.Skipped, &p.AskedAt, &p.AnsweredAt); err != nil {
			return nil, fmt.Errorf("failed to scan qa pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
