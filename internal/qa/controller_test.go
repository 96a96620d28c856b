package qa

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/bullet-optimizer/internal/db"
	"github.com/jonathan/bullet-optimizer/internal/llm"
)

// memStore is an in-memory Store for controller tests.
type memStore struct {
	sessions map[uuid.UUID]*db.Session
	pairs    map[uuid.UUID][]*db.QAPair
	facts    []*db.FactRecord
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uuid.UUID]*db.Session),
		pairs:    make(map[uuid.UUID][]*db.QAPair),
	}
}

func (s *memStore) CreateSession(_ context.Context, userID uuid.UUID, bulletID *uuid.UUID, bulletText, jobDescription string) (*db.Session, error) {
	sess := &db.Session{
		ID:             uuid.New(),
		UserID:         userID,
		BulletID:       bulletID,
		BulletText:     bulletText,
		JobDescription: jobDescription,
		Status:         db.StatusActive,
		CreatedAt:      time.Now(),
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *memStore) GetSession(_ context.Context, id uuid.UUID) (*db.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

func (s *memStore) UpdateSessionStatus(_ context.Context, id uuid.UUID, status string) (bool, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	sess.Status = status
	return true, nil
}

func (s *memStore) IncrementEvalRounds(_ context.Context, id uuid.UUID) (int, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return 0, errors.New("no session")
	}
	sess.EvalRounds++
	return sess.EvalRounds, nil
}

func (s *memStore) AddQuestion(_ context.Context, sessionID uuid.UUID, question, category string) (*db.QAPair, error) {
	p := &db.QAPair{
		ID:        uuid.New(),
		SessionID: sessionID,
		Question:  question,
		Category:  category,
		AskedAt:   time.Now(),
	}
	s.pairs[sessionID] = append(s.pairs[sessionID], p)
	return p, nil
}

func (s *memStore) AnswerQuestion(_ context.Context, id uuid.UUID, answer string) error {
	for _, pairs := range s.pairs {
		for _, p := range pairs {
			if p.ID == id {
				now := time.Now()
				if answer == "" {
					p.Skipped = true
				} else {
					p.Answer = &answer
				}
				p.AnsweredAt = &now
				return nil
			}
		}
	}
	return errors.New("question not found")
}

func (s *memStore) ListQAPairs(_ context.Context, sessionID uuid.UUID) ([]db.QAPair, error) {
	var out []db.QAPair
	for _, p := range s.pairs[sessionID] {
		out = append(out, *p)
	}
	return out, nil
}

func (s *memStore) PendingQuestions(_ context.Context, sessionID uuid.UUID) ([]db.QAPair, error) {
	var out []db.QAPair
	for _, p := range s.pairs[sessionID] {
		if p.Answer == nil && !p.Skipped {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) StoreFacts(_ context.Context, bulletID uuid.UUID, sessionID *uuid.UUID, facts []byte) (*db.FactRecord, error) {
	rec := &db.FactRecord{
		ID:        uuid.New(),
		BulletID:  bulletID,
		SessionID: sessionID,
		Facts:     facts,
		Confirmed: false,
		CreatedAt: time.Now(),
	}
	s.facts = append(s.facts, rec)
	return rec, nil
}

// scriptedClient returns canned JSON responses in order. A response of "ERR"
// simulates a provider failure.
type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) next() (string, error) {
	if c.calls >= len(c.responses) {
		return "", errors.New("unexpected extra call")
	}
	resp := c.responses[c.calls]
	c.calls++
	if resp == "ERR" {
		return "", fmt.Errorf("provider unavailable")
	}
	return resp, nil
}

func (c *scriptedClient) GenerateContent(context.Context, string, llm.ModelTier) (string, error) {
	return c.next()
}

func (c *scriptedClient) GenerateJSON(context.Context, string, llm.ModelTier) (string, error) {
	return c.next()
}

func (c *scriptedClient) Embed(context.Context, string) ([]float32, error) {
	return nil, &llm.EmbeddingUnavailableError{}
}

func (c *scriptedClient) GetModel(llm.ModelTier) string { return "scripted" }
func (c *scriptedClient) Close() error                  { return nil }

const questionsJSON = `[{"question": "How many users?", "category": "metrics"}, {"question": "Which stack?", "category": "technical"}]`

const insufficientJSON = `{"sufficient": false, "next_questions": [{"question": "What changed?", "category": "impact"}], "facts": null}`

const sufficientJSON = `{"sufficient": true, "next_questions": [], "facts": {"situation": "slow deploys", "actions": ["built pipeline"], "results": ["5m deploys"], "skills": ["Go"], "tools": ["CI"], "timeline": "2024"}}`

func newController(store Store, client llm.Client, roundCap int) *Controller {
	c := New(store, client, zap.NewNop(), roundCap, 2)
	c.SetRetryWait(time.Millisecond)
	return c
}

func startSession(t *testing.T, c *Controller, store *memStore) *StartResult {
	t.Helper()
	bulletID := uuid.New()
	res, err := c.StartSession(context.Background(), uuid.New(), &bulletID, "Improved deploys", "Platform engineer role")
	require.NoError(t, err)
	return res
}

func answersFor(pairs []db.QAPair, text string) []Answer {
	var out []Answer
	for _, p := range pairs {
		out = append(out, Answer{QuestionID: p.ID, Text: text})
	}
	return out
}

func TestStartSession(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{responses: []string{questionsJSON}}
	c := newController(store, client, 5)

	res := startSession(t, c, store)
	assert.Equal(t, db.StatusActive, res.Session.Status)
	assert.Len(t, res.Questions, 2)
	assert.Equal(t, "How many users?", res.Questions[0].Question)
}

func TestSubmitAnswersSufficient(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{responses: []string{questionsJSON, sufficientJSON}}
	c := newController(store, client, 5)

	start := startSession(t, c, store)
	res, err := c.SubmitAnswers(context.Background(), start.Session.ID, answersFor(start.Questions, "about 10k users"))
	require.NoError(t, err)

	assert.Equal(t, db.StatusReadyForRewrite, res.Session.Status)
	assert.False(t, res.ForcedReady)
	assert.Equal(t, 1, res.Rounds)
	require.NotNil(t, res.Facts)
	assert.False(t, res.Facts.Confirmed, "facts must start unconfirmed")
	assert.Contains(t, string(res.Facts.Facts), "slow deploys")
}

func TestRoundCapForcesReady(t *testing.T) {
	store := newMemStore()
	// Evaluator never satisfied: the cap must force the session ready
	// instead of asking a sixth round. The final forced round falls back
	// to the extractor, which also fails here (with retries).
	responses := []string{questionsJSON}
	for i := 0; i < 5; i++ {
		responses = append(responses, insufficientJSON)
	}
	responses = append(responses, "ERR", "ERR", "ERR")
	client := &scriptedClient{responses: responses}
	c := newController(store, client, 5)

	start := startSession(t, c, store)

	var res *SubmitResult
	var err error
	pending := start.Questions
	for round := 1; round <= 5; round++ {
		res, err = c.SubmitAnswers(context.Background(), start.Session.ID, answersFor(pending, "an answer"))
		require.NoError(t, err, "round %d", round)
		pending = res.Questions
	}

	assert.Equal(t, 5, res.Rounds)
	assert.True(t, res.ForcedReady)
	assert.Equal(t, db.StatusReadyForRewrite, res.Session.Status)

	// No further answering once the session left active.
	_, err = c.SubmitAnswers(context.Background(), start.Session.ID, nil)
	var stateErr *SessionStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestEmptyBatchSkipsEverything(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{responses: []string{questionsJSON, insufficientJSON}}
	c := newController(store, client, 5)

	start := startSession(t, c, store)
	res, err := c.SubmitAnswers(context.Background(), start.Session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, db.StatusActive, res.Session.Status)

	state, err := c.GetState(context.Background(), start.Session.ID)
	require.NoError(t, err)
	skipped := 0
	for _, p := range state.Pairs {
		if p.Skipped {
			skipped++
		}
	}
	assert.Equal(t, len(start.Questions), skipped)
}

func TestEvaluationFailureKeepsSessionActive(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{responses: []string{questionsJSON, "ERR", "ERR", "ERR"}}
	c := newController(store, client, 5)

	start := startSession(t, c, store)
	_, err := c.SubmitAnswers(context.Background(), start.Session.ID, answersFor(start.Questions, "an answer"))

	var evalErr *EvaluationFailedError
	require.ErrorAs(t, err, &evalErr)

	// Answers were preserved and the session is still open for a retry.
	state, err := c.GetState(context.Background(), start.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusActive, state.Session.Status)
	assert.Equal(t, 0, state.Session.EvalRounds)
	for _, p := range state.Pairs {
		require.NotNil(t, p.Answer)
	}
}

func TestSubmitAnswersUnknownSession(t *testing.T) {
	store := newMemStore()
	c := newController(store, &scriptedClient{}, 5)

	_, err := c.SubmitAnswers(context.Background(), uuid.New(), nil)
	var notFound *SessionNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAbandon(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{responses: []string{questionsJSON}}
	c := newController(store, client, 5)

	start := startSession(t, c, store)
	require.NoError(t, c.Abandon(context.Background(), start.Session.ID))

	state, err := c.GetState(context.Background(), start.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusAbandoned, state.Session.Status)

	var notFound *SessionNotFoundError
	assert.ErrorAs(t, c.Abandon(context.Background(), uuid.New()), &notFound)
}
