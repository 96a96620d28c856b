package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/bullet-optimizer/internal/db"
	"github.com/jonathan/bullet-optimizer/internal/extraction"
	"github.com/jonathan/bullet-optimizer/internal/llm"
	"github.com/jonathan/bullet-optimizer/internal/qa"
	"github.com/jonathan/bullet-optimizer/internal/rewriting"
	"github.com/jonathan/bullet-optimizer/internal/scoring"
)

// ErrInvalidCredentials indicates invalid login credentials.
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// ErrValidation indicates request validation failure.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus maps an error to its HTTP status code. Collaborator outages
// (embedding, evaluator, scoring) are 503: the request was fine, the
// service temporarily cannot honor it. Client mistakes (no bullets in the
// upload, answering a closed session) stay in the 4xx range.
func HTTPStatus(err error) int {
	var (
		noBullets     *extraction.NoBulletsFoundError
		notFound      *qa.SessionNotFoundError
		badState      *qa.SessionStateError
		evalFailed    *qa.EvaluationFailedError
		embedDown     *llm.EmbeddingUnavailableError
		scoringDown   *scoring.ScoringUnavailableError
		rewriteFailed *rewriting.APICallError
		validation    *ErrValidation
		badCreds      *ErrInvalidCredentials
	)

	switch {
	case errors.As(err, &noBullets), errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &badState), errors.Is(err, db.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.As(err, &badCreds):
		return http.StatusUnauthorized
	case errors.As(err, &evalFailed), errors.As(err, &embedDown),
		errors.As(err, &scoringDown), errors.As(err, &rewriteFailed),
		db.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
