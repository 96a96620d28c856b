package qa

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/bullet-optimizer/internal/db"
)

// FactsPayload is the structured context gathered about one bullet.
type FactsPayload struct {
	Situation string   `json:"situation"`
	Actions   []string `json:"actions"`
	Results   []string `json:"results"`
	Skills    []string `json:"skills"`
	Tools     []string `json:"tools"`
	Timeline  string   `json:"timeline"`
}

// Question is one generated follow-up question.
type Question struct {
	Question string `json:"question"`
	Category string `json:"category"`
}

// Answer pairs a question id with the user's answer text. Empty text means
// the user skipped the question.
type Answer struct {
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"answer"`
}

// evalResponse is the sufficiency evaluator's JSON shape.
type evalResponse struct {
	Sufficient    bool          `json:"sufficient"`
	NextQuestions []Question    `json:"next_questions"`
	Facts         *FactsPayload `json:"facts"`
}

// StartResult is what opening a session yields.
type StartResult struct {
	Session   *db.Session `json:"session"`
	Questions []db.QAPair `json:"questions"`
}

// SubmitResult reports what happened after an answer batch.
type SubmitResult struct {
	Session     *db.Session    `json:"session"`
	Questions   []db.QAPair    `json:"questions,omitempty"`
	Facts       *db.FactRecord `json:"facts,omitempty"`
	Rounds      int            `json:"rounds"`
	ForcedReady bool           `json:"forced_ready,omitempty"`
}

// State is a session snapshot with its full transcript.
type State struct {
	Session *db.Session `json:"session"`
	Pairs   []db.QAPair `json:"qa_pairs"`
}

// buildTranscript renders answered and skipped questions for the evaluator.
func buildTranscript(pairs []db.QAPair) string {
	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString("Q: ")
		sb.WriteString(p.Question)
		sb.WriteString("\n")
		switch {
		case p.Answer != nil:
			sb.WriteString("A: ")
			sb.WriteString(*p.Answer)
		case p.Skipped:
			sb.WriteString("A: (skipped)")
		default:
			sb.WriteString("A: (pending)")
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
