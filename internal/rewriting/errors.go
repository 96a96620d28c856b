package rewriting

import "fmt"

// APICallError wraps a provider failure during a rewrite call.
type APICallError struct {
	Op    string
	Cause error
}

func (e *APICallError) Error() string {
	return fmt.Sprintf("rewrite %s call failed: %v", e.Op, e.Cause)
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}

// CharLimitExceededError reports that a bullet still exceeded its cap after
// every reprompt and had to be truncated. Callers log it; the truncated
// bullet is still returned.
type CharLimitExceededError struct {
	Cap    int
	Length int
}

func (e *CharLimitExceededError) Error() string {
	return fmt.Sprintf("bullet length %d exceeds cap %d after reprompts, truncated", e.Length, e.Cap)
}
