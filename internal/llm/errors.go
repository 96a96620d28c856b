package llm

import "fmt"

// EmbeddingUnavailableError indicates the embedding provider failed.
// Matching must not proceed on a default vector when this occurs.
type EmbeddingUnavailableError struct {
	Cause error
}

func (e *EmbeddingUnavailableError) Error() string {
	return fmt.Sprintf("embedding provider unavailable: %v", e.Cause)
}

func (e *EmbeddingUnavailableError) Unwrap() error {
	return e.Cause
}

// GenerationError indicates a chat/JSON generation call failed.
type GenerationError struct {
	Op    string
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm %s failed: %v", e.Op, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}
