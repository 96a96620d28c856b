package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session statuses.
const (
	StatusActive          = "active"
	StatusReadyForRewrite = "ready_for_rewrite"
	StatusCompleted       = "completed"
	StatusAbandoned       = "abandoned"
)

// User is an account row.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Bullet is a stored resume bullet with its embedding metadata.
type Bullet struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	BulletText     string    `json:"bullet_text"`
	NormalizedText string    `json:"normalized_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// SimilarBullet is one row of a vector similarity query.
type SimilarBullet struct {
	ID         uuid.UUID `json:"id"`
	BulletText string    `json:"bullet_text"`
	Similarity float64   `json:"similarity"`
}

// FactRecord holds extracted facts for a bullet. Facts is the raw JSON
// payload; callers own its shape.
type FactRecord struct {
	ID        uuid.UUID       `json:"id"`
	BulletID  uuid.UUID       `json:"bullet_id"`
	SessionID *uuid.UUID      `json:"session_id,omitempty"`
	Facts     json.RawMessage `json:"facts"`
	Confirmed bool            `json:"confirmed"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Session is one Q&A session working a bullet against a job description.
type Session struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	BulletID       *uuid.UUID `json:"bullet_id,omitempty"`
	BulletText     string     `json:"bullet_text"`
	JobDescription string     `json:"job_description"`
	Status         string     `json:"status"`
	EvalRounds     int        `json:"eval_rounds"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// QAPair is one question asked during a session, plus its answer when
// the user has responded.
type QAPair struct {
	ID         uuid.UUID  `json:"id"`
	SessionID  uuid.UUID  `json:"session_id"`
	Question   string     `json:"question"`
	Category   string     `json:"category,omitempty"`
	Answer     *string    `json:"answer,omitempty"`
	Skipped    bool       `json:"skipped"`
	AskedAt    time.Time  `json:"asked_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}
