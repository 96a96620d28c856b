// Package qa runs the bounded question-and-answer loop that gathers
// context about a bullet before rewriting.
package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/bullet-optimizer/internal/db"
	"github.com/jonathan/bullet-optimizer/internal/llm"
	"github.com/jonathan/bullet-optimizer/internal/logger"
	"github.com/jonathan/bullet-optimizer/internal/prompts"
	"github.com/jonathan/bullet-optimizer/internal/schemas"
)

// maxQuestionsPerRound caps how many new questions one evaluation round may
// put in front of the user.
const maxQuestionsPerRound = 5

// Store is the subset of database operations the controller needs.
type Store interface {
	CreateSession(ctx context.Context, userID uuid.UUID, bulletID *uuid.UUID, bulletText, jobDescription string) (*db.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*db.Session, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
	IncrementEvalRounds(ctx context.Context, id uuid.UUID) (int, error)
	AddQuestion(ctx context.Context, sessionID uuid.UUID, question, category string) (*db.QAPair, error)
	AnswerQuestion(ctx context.Context, id uuid.UUID, answer string) error
	ListQAPairs(ctx context.Context, sessionID uuid.UUID) ([]db.QAPair, error)
	PendingQuestions(ctx context.Context, sessionID uuid.UUID) ([]db.QAPair, error)
	StoreFacts(ctx context.Context, bulletID uuid.UUID, sessionID *uuid.UUID, facts []byte) (*db.FactRecord, error)
}

// Controller drives sessions through the loop: ask, collect answers,
// evaluate sufficiency, and either ask again or settle on facts. The round
// cap bounds the loop; hitting it forces the session ready with best-effort
// facts rather than asking forever.
type Controller struct {
	store  Store
	client llm.Client
	logger *zap.Logger

	roundCap int
	retry    llm.RetryConfig
}

// New builds a Controller. evalRetries is how many times a failed
// evaluation call is retried before giving up.
func New(store Store, client llm.Client, logger *zap.Logger, roundCap, evalRetries int) *Controller {
	retry := llm.DefaultRetryConfig
	retry.MaxRetries = evalRetries
	return &Controller{
		store:    store,
		client:   client,
		logger:   logger,
		roundCap: roundCap,
		retry:    retry,
	}
}

// SetRetryWait overrides the retry backoff start. Tests use this to avoid
// real sleeps.
func (c *Controller) SetRetryWait(wait time.Duration) {
	c.retry.InitialWait = wait
}

// StartSession opens a session for a bullet and generates the first round
// of questions.
func (c *Controller) StartSession(ctx context.Context, userID uuid.UUID, bulletID *uuid.UUID, bulletText, jobDescription string) (*StartResult, error) {
	session, err := c.store.CreateSession(ctx, userID, bulletID, bulletText, jobDescription)
	if err != nil {
		return nil, err
	}

	questions, err := c.generateQuestions(ctx, bulletText, "")
	if err != nil {
		return nil, &EvaluationFailedError{SessionID: session.ID, Cause: err}
	}

	pairs, err := c.storeQuestions(ctx, session.ID, questions)
	if err != nil {
		return nil, err
	}

	c.logger.Info("session started",
		zap.String("session_id", session.ID.String()),
		zap.String("bullet", logger.Truncate(bulletText, 80)),
		zap.Int("questions", len(pairs)))

	return &StartResult{Session: session, Questions: pairs}, nil
}

// SubmitAnswers records an answer batch and runs one evaluation round.
// Pending questions absent from the batch are marked skipped, so an empty
// batch is a valid "skip everything" transition. When the evaluator finds
// the transcript sufficient, or the round cap is reached, the session moves
// to ready_for_rewrite with stored (unconfirmed) facts; otherwise new
// questions come back and the session stays active.
func (c *Controller) SubmitAnswers(ctx context.Context, sessionID uuid.UUID, answers []Answer) (*SubmitResult, error) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &SessionNotFoundError{ID: sessionID}
	}
	if session.Status != db.StatusActive {
		return nil, &SessionStateError{ID: sessionID, Status: session.Status}
	}

	if err := c.recordAnswers(ctx, sessionID, answers); err != nil {
		return nil, err
	}

	pairs, err := c.store.ListQAPairs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	transcript := buildTranscript(pairs)

	eval, err := llm.Retry(ctx, c.retry, func() (*evalResponse, error) {
		return c.evaluate(ctx, session.BulletText, transcript)
	})
	if err != nil {
		// Answers are already saved. The session stays active so the
		// caller can retry the evaluation later.
		c.logger.Warn("sufficiency evaluation failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return nil, &EvaluationFailedError{SessionID: sessionID, Cause: err}
	}

	rounds, err := c.store.IncrementEvalRounds(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.EvalRounds = rounds

	forced := !eval.Sufficient && rounds >= c.roundCap
	if eval.Sufficient || forced {
		return c.settle(ctx, session, eval, transcript, forced)
	}

	newPairs, err := c.storeQuestions(ctx, sessionID, eval.NextQuestions)
	if err != nil {
		return nil, err
	}
	c.logger.Info("more questions needed",
		zap.String("session_id", sessionID.String()),
		zap.Int("round", rounds),
		zap.Int("questions", len(newPairs)))

	return &SubmitResult{Session: session, Questions: newPairs, Rounds: rounds}, nil
}

// GetState returns a session with its full transcript.
func (c *Controller) GetState(ctx context.Context, sessionID uuid.UUID) (*State, error) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &SessionNotFoundError{ID: sessionID}
	}
	pairs, err := c.store.ListQAPairs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &State{Session: session, Pairs: pairs}, nil
}

// Abandon closes a session without producing facts.
func (c *Controller) Abandon(ctx context.Context, sessionID uuid.UUID) error {
	ok, err := c.store.UpdateSessionStatus(ctx, sessionID, db.StatusAbandoned)
	if err != nil {
		return err
	}
	if !ok {
		return &SessionNotFoundError{ID: sessionID}
	}
	return nil
}

// settle stores facts and moves the session to ready_for_rewrite. A forced
// settle (round cap hit) takes whatever facts the evaluator produced, or
// runs the extractor once as a fallback.
func (c *Controller) settle(ctx context.Context, session *db.Session, eval *evalResponse, transcript string, forced bool) (*SubmitResult, error) {
	facts := eval.Facts
	if facts == nil {
		extracted, err := llm.Retry(ctx, c.retry, func() (*FactsPayload, error) {
			return c.extractFacts(ctx, session.BulletText, transcript)
		})
		if err != nil {
			if !forced {
				return nil, &EvaluationFailedError{SessionID: session.ID, Cause: err}
			}
			// Cap hit and extraction failed: settle with empty facts
			// rather than looping past the cap.
			c.logger.Warn("fact extraction failed at round cap",
				zap.String("session_id", session.ID.String()),
				zap.Error(err))
			extracted = &FactsPayload{Actions: []string{}, Results: []string{}, Skills: []string{}, Tools: []string{}}
		}
		facts = extracted
	}

	payload, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode facts: %w", err)
	}

	var record *db.FactRecord
	if session.BulletID != nil {
		record, err = c.store.StoreFacts(ctx, *session.BulletID, &session.ID, payload)
		if err != nil {
			return nil, err
		}
	}

	if _, err := c.store.UpdateSessionStatus(ctx, session.ID, db.StatusReadyForRewrite); err != nil {
		return nil, err
	}
	session.Status = db.StatusReadyForRewrite

	c.logger.Info("session ready for rewrite",
		zap.String("session_id", session.ID.String()),
		zap.Int("rounds", session.EvalRounds),
		zap.Bool("forced", forced))

	return &SubmitResult{Session: session, Facts: record, Rounds: session.EvalRounds, ForcedReady: forced}, nil
}

// recordAnswers saves the batch and marks every other pending question
// skipped.
func (c *Controller) recordAnswers(ctx context.Context, sessionID uuid.UUID, answers []Answer) error {
	answered := make(map[uuid.UUID]bool, len(answers))
	for _, a := range answers {
		if err := c.store.AnswerQuestion(ctx, a.QuestionID, a.Text); err != nil {
			return err
		}
		answered[a.QuestionID] = true
	}

	pending, err := c.store.PendingQuestions(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, p := range pending {
		if answered[p.ID] {
			continue
		}
		if err := c.store.AnswerQuestion(ctx, p.ID, ""); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) storeQuestions(ctx context.Context, sessionID uuid.UUID, questions []Question) ([]db.QAPair, error) {
	if len(questions) > maxQuestionsPerRound {
		questions = questions[:maxQuestionsPerRound]
	}
	var pairs []db.QAPair
	for _, q := range questions {
		if q.Question == "" {
			continue
		}
		pair, err := c.store.AddQuestion(ctx, sessionID, q.Question, q.Category)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, *pair)
	}
	return pairs, nil
}

func (c *Controller) generateQuestions(ctx context.Context, bulletText, priorContext string) ([]Question, error) {
	template, err := prompts.Get("questions.json", "generate-questions")
	if err != nil {
		return nil, err
	}
	prompt := prompts.Format(template, map[string]string{
		"BulletText":   bulletText,
		"PriorContext": priorContext,
	})

	raw, err := c.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, err
	}

	var questions []Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil, fmt.Errorf("malformed questions response: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("model returned no questions")
	}
	return questions, nil
}

func (c *Controller) evaluate(ctx context.Context, bulletText, transcript string) (*evalResponse, error) {
	template, err := prompts.Get("questions.json", "evaluate-sufficiency")
	if err != nil {
		return nil, err
	}
	prompt := prompts.Format(template, map[string]string{
		"BulletText": bulletText,
		"Transcript": transcript,
	})

	raw, err := c.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, err
	}

	var eval evalResponse
	if err := json.Unmarshal([]byte(raw), &eval); err != nil {
		return nil, fmt.Errorf("malformed evaluation response: %w", err)
	}
	if eval.Facts != nil {
		if err := c.checkFacts(eval.Facts); err != nil {
			return nil, err
		}
	}
	return &eval, nil
}

func (c *Controller) extractFacts(ctx context.Context, bulletText, transcript string) (*FactsPayload, error) {
	template, err := prompts.Get("questions.json", "extract-facts")
	if err != nil {
		return nil, err
	}
	prompt := prompts.Format(template, map[string]string{
		"BulletText": bulletText,
		"Transcript": transcript,
	})

	raw, err := c.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, err
	}

	var facts FactsPayload
	if err := json.Unmarshal([]byte(raw), &facts); err != nil {
		return nil, fmt.Errorf("malformed facts response: %w", err)
	}
	if err := c.checkFacts(&facts); err != nil {
		return nil, err
	}
	return &facts, nil
}

// checkFacts validates a facts payload against the shared schema before it
// can be persisted.
func (c *Controller) checkFacts(facts *FactsPayload) error {
	if facts.Actions == nil {
		facts.Actions = []string{}
	}
	if facts.Results == nil {
		facts.Results = []string{}
	}
	if facts.Skills == nil {
		facts.Skills = []string{}
	}
	if facts.Tools == nil {
		facts.Tools = []string{}
	}
	payload, err := json.Marshal(facts)
	if err != nil {
		return err
	}
	return schemas.ValidateFacts(payload)
}
