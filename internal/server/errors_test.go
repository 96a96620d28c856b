package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/bullet-optimizer/internal/db"
	"github.com/jonathan/bullet-optimizer/internal/extraction"
	"github.com/jonathan/bullet-optimizer/internal/llm"
	"github.com/jonathan/bullet-optimizer/internal/qa"
	"github.com/jonathan/bullet-optimizer/internal/rewriting"
	"github.com/jonathan/bullet-optimizer/internal/scoring"
)

func TestHTTPStatus(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no bullets found", &extraction.NoBulletsFoundError{Source: "resume.docx"}, http.StatusBadRequest},
		{"validation", &ErrValidation{Field: "text", Message: "required"}, http.StatusBadRequest},
		{"session not found", &qa.SessionNotFoundError{ID: id}, http.StatusNotFound},
		{"session state", &qa.SessionStateError{ID: id, Status: "completed"}, http.StatusConflict},
		{"duplicate email", db.ErrDuplicateEmail, http.StatusConflict},
		{"invalid credentials", &ErrInvalidCredentials{}, http.StatusUnauthorized},
		{"embedding down", &llm.EmbeddingUnavailableError{}, http.StatusServiceUnavailable},
		{"evaluation failed", &qa.EvaluationFailedError{SessionID: id}, http.StatusServiceUnavailable},
		{"scoring down", &scoring.ScoringUnavailableError{Signal: "llm"}, http.StatusServiceUnavailable},
		{"rewrite api", &rewriting.APICallError{Op: "batch"}, http.StatusServiceUnavailable},
		{"wrapped not found", fmt.Errorf("context: %w", &qa.SessionNotFoundError{ID: id}), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
