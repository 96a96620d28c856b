package scoring

import "fmt"

// ScoringUnavailableError means one of the composite score's signals could
// not be produced. A composite without all of its signals would be
// misleading, so the whole score is withheld instead.
type ScoringUnavailableError struct {
	Signal string
	Cause  error
}

func (e *ScoringUnavailableError) Error() string {
	return fmt.Sprintf("scoring unavailable: %s signal failed: %v", e.Signal, e.Cause)
}

func (e *ScoringUnavailableError) Unwrap() error {
	return e.Cause
}
