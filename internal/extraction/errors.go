package extraction

// NoBulletsFoundError indicates a document contained zero recognizable
// bullets. This is a user-fixable condition, not a service failure.
type NoBulletsFoundError struct {
	Source string
}

func (e *NoBulletsFoundError) Error() string {
	if e.Source == "" {
		return "no bullets found in document"
	}
	return "no bullets found in " + e.Source
}
