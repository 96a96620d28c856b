package qa

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionNotFoundError means the referenced session does not exist.
type SessionNotFoundError struct {
	ID uuid.UUID
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.ID)
}

// SessionStateError means the session is not in a status that allows the
// requested operation.
type SessionStateError struct {
	ID     uuid.UUID
	Status string
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("session %s is %s", e.ID, e.Status)
}

// EvaluationFailedError means the sufficiency evaluator kept failing after
// retries. Submitted answers are preserved; the session stays open so the
// evaluation can be retried.
type EvaluationFailedError struct {
	SessionID uuid.UUID
	Cause     error
}

func (e *EvaluationFailedError) Error() string {
	return fmt.Sprintf("evaluation failed for session %s: %v", e.SessionID, e.Cause)
}

func (e *EvaluationFailedError) Unwrap() error {
	return e.Cause
}
