package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/bullet-optimizer/internal/db"
	"github.com/jonathan/bullet-optimizer/internal/extraction"
	"github.com/jonathan/bullet-optimizer/internal/matching"
	"github.com/jonathan/bullet-optimizer/internal/qa"
	"github.com/jonathan/bullet-optimizer/internal/schemas"
	"github.com/jonathan/bullet-optimizer/internal/scoring"
)

// maxUploadBytes bounds resume uploads. Resumes are small documents.
const maxUploadBytes = 10 << 20

type onboardingRequest struct {
	Text           string `json:"text,omitempty"`
	DocumentBase64 string `json:"document_base64,omitempty"`
	Filename       string `json:"filename,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
	JobDescription string `json:"job_description"`
}

// bulletOutcome is one bullet's onboarding result.
type bulletOutcome struct {
	Bullet            string      `json:"bullet"`
	Tier              string      `json:"tier"`
	BulletID          *uuid.UUID  `json:"bullet_id,omitempty"`
	ExistingText      string      `json:"existing_text,omitempty"`
	Similarity        float64     `json:"similarity,omitempty"`
	NeedsConfirmation bool        `json:"needs_confirmation,omitempty"`
	SessionID         *uuid.UUID  `json:"session_id,omitempty"`
	Questions         []db.QAPair `json:"questions,omitempty"`
}

// handleOnboardingStart extracts bullets from an uploaded document or raw
// text and matches each against the user's bank. Unknown bullets are stored
// and get a Q&A session; medium-confidence matches wait for the user's
// confirmation. Accepts multipart uploads or a JSON body.
func (s *Server) handleOnboardingStart(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := s.decodeOnboardingForm(r, &req); err != nil {
			s.errorResponse(w, err)
			return
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	data, filename, err := documentBytes(&req)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	bullets, err := extraction.ExtractBullets(data, filename, req.ContentType)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	userID := s.userID(r)
	outcomes := make([]bulletOutcome, 0, len(bullets))
	for _, bullet := range bullets {
		outcome, err := s.onboardBullet(r, userID, bullet, req.JobDescription)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		outcomes = append(outcomes, *outcome)
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"results": outcomes})
}

// decodeOnboardingForm reads a multipart upload: a "document" file part plus
// a "job_description" field. The file bytes are re-encoded so documentBytes
// handles both transports the same way.
func (s *Server) decodeOnboardingForm(r *http.Request, req *onboardingRequest) error {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return &ErrValidation{Field: "document", Message: "invalid multipart form"}
	}
	req.JobDescription = r.FormValue("job_description")
	req.Text = r.FormValue("text")

	file, header, err := r.FormFile("document")
	if err == http.ErrMissingFile {
		return nil
	}
	if err != nil {
		return &ErrValidation{Field: "document", Message: "unreadable file part"}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return &ErrValidation{Field: "document", Message: "unreadable file part"}
	}
	req.DocumentBase64 = base64.StdEncoding.EncodeToString(data)
	req.Filename = header.Filename
	req.ContentType = header.Header.Get("Content-Type")
	return nil
}

// onboardBullet matches one bullet and acts on the tier.
func (s *Server) onboardBullet(r *http.Request, userID uuid.UUID, bullet, jobDescription string) (*bulletOutcome, error) {
	match, err := s.matcher.Match(r.Context(), userID, bullet)
	if err != nil {
		return nil, err
	}

	outcome := &bulletOutcome{
		Bullet:     bullet,
		Tier:       match.Tier,
		Similarity: match.Similarity,
	}

	switch match.Tier {
	case matching.TierExact, matching.TierHighConfidence:
		outcome.BulletID = &match.BulletID
		outcome.ExistingText = match.ExistingText
	case matching.TierMediumConfidence:
		outcome.BulletID = &match.BulletID
		outcome.ExistingText = match.ExistingText
		outcome.NeedsConfirmation = true
	case matching.TierNoMatch:
		stored, _, err := s.store.StoreBullet(r.Context(), userID, bullet,
			matching.Normalize(bullet), match.Embedding)
		if err != nil {
			return nil, err
		}
		outcome.BulletID = &stored.ID

		start, err := s.sessions.StartSession(r.Context(), userID, &stored.ID, bullet, jobDescription)
		if err != nil {
			return nil, err
		}
		outcome.SessionID = &start.Session.ID
		outcome.Questions = start.Questions
	}
	return outcome, nil
}

type confirmMatchRequest struct {
	BulletText      string    `json:"bullet_text"`
	MatchedBulletID uuid.UUID `json:"matched_bullet_id"`
	Accept          bool      `json:"accept"`
	JobDescription  string    `json:"job_description,omitempty"`
}

// handleConfirmMatch resolves a medium-confidence match. Accepting reuses
// the stored bullet; rejecting stores the incoming text as a new bullet and
// opens a session for it.
func (s *Server) handleConfirmMatch(w http.ResponseWriter, r *http.Request) {
	var req confirmMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.BulletText == "" {
		s.errorResponse(w, &ErrValidation{Field: "bullet_text", Message: "required"})
		return
	}

	if req.Accept {
		existing, err := s.store.GetBullet(r.Context(), req.MatchedBulletID)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		if existing == nil {
			s.errorResponse(w, &ErrValidation{Field: "matched_bullet_id", Message: "unknown bullet"})
			return
		}
		s.jsonResponse(w, http.StatusOK, map[string]any{
			"bullet_id": existing.ID,
			"reused":    true,
		})
		return
	}

	userID := s.userID(r)
	embedding, err := s.llmClient.Embed(r.Context(), req.BulletText)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	stored, _, err := s.store.StoreBullet(r.Context(), userID, req.BulletText,
		matching.Normalize(req.BulletText), embedding)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	start, err := s.sessions.StartSession(r.Context(), userID, &stored.ID, req.BulletText, req.JobDescription)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"bullet_id":  stored.ID,
		"reused":     false,
		"session_id": start.Session.ID,
		"questions":  start.Questions,
	})
}

// handleGetSession returns a session snapshot with its transcript.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	state, err := s.sessions.GetState(r.Context(), sessionID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

type answersRequest struct {
	Answers []qa.Answer `json:"answers"`
}

// handleSubmitAnswers records an answer batch and runs one evaluation
// round.
func (s *Server) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req answersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.sessions.SubmitAnswers(r.Context(), sessionID, req.Answers)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleAbandonSession closes a session without facts.
func (s *Server) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := s.sessions.Abandon(r.Context(), sessionID); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": db.StatusAbandoned})
}

type confirmFactsRequest struct {
	Facts json.RawMessage `json:"facts,omitempty"`
}

// handleConfirmFacts marks a facts record user-confirmed, saving the user's
// edits first when the body carries them. Only confirmed facts ever reach
// the rewriter.
func (s *Server) handleConfirmFacts(w http.ResponseWriter, r *http.Request) {
	factsID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req confirmFactsRequest
	if r.Body != nil {
		// Body is optional; ignore decode errors for an empty body.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if len(req.Facts) > 0 {
		if err := schemas.ValidateFacts(req.Facts); err != nil {
			s.errorResponse(w, &ErrValidation{Field: "facts", Message: err.Error()})
			return
		}
		updated, err := s.store.UpdateFacts(r.Context(), factsID, req.Facts)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		if updated == nil {
			s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": "facts not found"})
			return
		}
	}

	confirmed, err := s.store.ConfirmFacts(r.Context(), factsID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if !confirmed {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": "facts not found"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"id": factsID, "confirmed": true})
}

type rewriteSessionRequest struct {
	CharCap int `json:"char_cap,omitempty"`
}

// rewriteResponse carries the rewrite and, when available, the score
// comparison. Score is all-or-nothing: a partial breakdown is never sent.
type rewriteResponse struct {
	BulletID   *uuid.UUID      `json:"bullet_id,omitempty"`
	Original   string          `json:"original"`
	Rewritten  string          `json:"rewritten"`
	Score      *scoring.Report `json:"score,omitempty"`
	ScoreError string          `json:"score_error,omitempty"`
}

// handleRewriteSession rewrites a ready session's bullet using its
// confirmed facts. Sessions that are not ready are rejected, and so are
// bullets with no confirmed facts.
func (s *Server) handleRewriteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req rewriteSessionRequest
	if r.Body != nil {
		// Body is optional; ignore decode errors for an empty body.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if session == nil {
		s.errorResponse(w, &qa.SessionNotFoundError{ID: sessionID})
		return
	}
	if session.Status != db.StatusReadyForRewrite {
		s.errorResponse(w, &qa.SessionStateError{ID: sessionID, Status: session.Status})
		return
	}
	if session.BulletID == nil {
		s.errorResponse(w, &ErrValidation{Field: "session", Message: "session has no stored bullet"})
		return
	}

	factRecords, err := s.store.GetConfirmedFacts(r.Context(), *session.BulletID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if len(factRecords) == 0 {
		s.errorResponse(w, &ErrValidation{Field: "facts", Message: "no confirmed facts for this bullet"})
		return
	}

	rewritten, err := s.rewriter.RewriteWithFacts(r.Context(), session.BulletText,
		session.JobDescription, factRecords[0].Facts, req.CharCap)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	resp := rewriteResponse{
		BulletID:  session.BulletID,
		Original:  session.BulletText,
		Rewritten: rewritten,
	}
	if report, err := s.scorer.ScoreChange(r.Context(), session.BulletText, rewritten, session.JobDescription); err != nil {
		// The rewrite stands; losing the score does not undo it.
		s.logger.Warn("scoring unavailable for rewrite", zap.Error(err))
		resp.ScoreError = err.Error()
	} else {
		resp.Score = report
	}

	if _, err := s.store.UpdateSessionStatus(r.Context(), sessionID, db.StatusCompleted); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

type applyGenerateRequest struct {
	Bullets        []string `json:"bullets"`
	JobDescription string   `json:"job_description"`
}

// handleApplyGenerate rewrites a bullet list against a job description and
// scores the change. Bullets that match a stored bullet with confirmed facts
// are rewritten from those facts; the rest go through the batch rewriter.
func (s *Server) handleApplyGenerate(w http.ResponseWriter, r *http.Request) {
	var req applyGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Bullets) == 0 {
		s.errorResponse(w, &ErrValidation{Field: "bullets", Message: "at least one bullet required"})
		return
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		s.errorResponse(w, &ErrValidation{Field: "job_description", Message: "required"})
		return
	}

	roleCore := req.JobDescription
	if s.cfg.DistilledJDEnabled() {
		distilled, err := s.distiller.Distill(r.Context(), req.JobDescription)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		roleCore = distilled
	}

	var termList []string
	if s.cfg.LLMTermsEnabled() {
		terms, err := s.distiller.ExtractTerms(r.Context(), req.JobDescription)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		termList = flattenTerms(terms)
	}

	userID := s.userID(r)
	rewritten := make([]string, len(req.Bullets))
	var batchIdx []int
	var batchBullets []string
	for i, bullet := range req.Bullets {
		facts, err := s.confirmedFactsFor(r.Context(), userID, bullet)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		if facts == nil {
			batchIdx = append(batchIdx, i)
			batchBullets = append(batchBullets, bullet)
			continue
		}
		out, err := s.rewriter.RewriteWithFacts(r.Context(), bullet, req.JobDescription, facts, 0)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		rewritten[i] = out
	}

	if len(batchBullets) > 0 {
		batchOut, err := s.rewriter.RewriteBatch(r.Context(), batchBullets, roleCore, termList)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		for j, idx := range batchIdx {
			rewritten[idx] = batchOut[j]
		}
	}

	resp := map[string]any{"bullets": rewritten}
	before := strings.Join(req.Bullets, "\n")
	after := strings.Join(rewritten, "\n")
	if report, err := s.scorer.ScoreChange(r.Context(), before, after, req.JobDescription); err != nil {
		s.logger.Warn("scoring unavailable for batch rewrite", zap.Error(err))
		resp["score_error"] = err.Error()
	} else {
		resp["score"] = report
	}

	s.jsonResponse(w, http.StatusOK, resp)
}

// handleApplyDocument rewrites every bullet in an uploaded .docx against a
// job description and returns the edited document with its formatting
// preserved. Accepts the same multipart or JSON transport as onboarding.
func (s *Server) handleApplyDocument(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := s.decodeOnboardingForm(r, &req); err != nil {
			s.errorResponse(w, err)
			return
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		s.errorResponse(w, &ErrValidation{Field: "job_description", Message: "required"})
		return
	}

	data, filename, err := documentBytes(&req)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if !strings.EqualFold(path.Ext(filename), ".docx") &&
		!strings.Contains(req.ContentType, "officedocument.wordprocessingml") {
		s.errorResponse(w, &ErrValidation{Field: "document", Message: "must be a .docx document"})
		return
	}

	bullets, err := extraction.ExtractBullets(data, filename, req.ContentType)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	roleCore := req.JobDescription
	if s.cfg.DistilledJDEnabled() {
		if roleCore, err = s.distiller.Distill(r.Context(), req.JobDescription); err != nil {
			s.errorResponse(w, err)
			return
		}
	}
	var termList []string
	if s.cfg.LLMTermsEnabled() {
		terms, err := s.distiller.ExtractTerms(r.Context(), req.JobDescription)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		termList = flattenTerms(terms)
	}

	rewritten, err := s.rewriter.RewriteBatch(r.Context(), bullets, roleCore, termList)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	replacements := make(map[string]string, len(bullets))
	for i, bullet := range bullets {
		if i < len(rewritten) && rewritten[i] != "" {
			replacements[bullet] = rewritten[i]
		}
	}

	edited, err := extraction.ReplaceDocxBullets(data, replacements)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(filename)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(edited); err != nil {
		s.logger.Error("failed to write document response", zap.Error(err))
	}
}

// confirmedFactsFor looks for a stored bullet matching the text and returns
// its confirmed facts, or nil when there is no confident match or no
// confirmed record.
func (s *Server) confirmedFactsFor(ctx context.Context, userID uuid.UUID, bullet string) ([]byte, error) {
	match, err := s.matcher.Match(ctx, userID, bullet)
	if err != nil {
		return nil, err
	}
	if match.Tier != matching.TierExact && match.Tier != matching.TierHighConfidence {
		return nil, nil
	}
	records, err := s.store.GetConfirmedFacts(ctx, match.BulletID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0].Facts, nil
}

// pathUUID parses a UUID path segment, answering 400 on garbage.
func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		s.errorResponse(w, &ErrValidation{Field: name, Message: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// documentBytes resolves the upload payload: base64 document bytes when
// present, raw text otherwise.
func documentBytes(req *onboardingRequest) ([]byte, string, error) {
	if req.DocumentBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.DocumentBase64)
		if err != nil {
			return nil, "", &ErrValidation{Field: "document_base64", Message: "invalid base64"}
		}
		filename := req.Filename
		if filename == "" {
			filename = "upload"
		}
		return data, filename, nil
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, "", &ErrValidation{Field: "text", Message: "either text or document_base64 is required"}
	}
	filename := req.Filename
	if filename == "" {
		filename = "input.txt"
	}
	return []byte(req.Text), filename, nil
}

// flattenTerms orders term groups by weight for the rewrite prompt.
func flattenTerms(terms *scoring.Terms) []string {
	var out []string
	out = append(out, terms.Tools...)
	out = append(out, terms.Skills...)
	out = append(out, terms.Responsibilities...)
	out = append(out, terms.Domains...)
	out = append(out, terms.Seniority...)
	out = append(out, terms.Certifications...)
	return out
}
