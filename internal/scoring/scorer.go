// Package scoring computes resume-to-job-description fit as a composite of
// semantic similarity, keyword coverage, and an LLM judgement.
package scoring

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/bullet-optimizer/internal/llm"
	"github.com/jonathan/bullet-optimizer/internal/prompts"
)

// Weights are the composite score's multipliers. They are independent
// multipliers, not a normalized combination; the composite is
// 100*w_emb*semantic + 100*w_key*keyword + w_llm*llm.
type Weights struct {
	Embedding float64
	Keywords  float64
	LLM       float64
	Distilled float64
}

// Options toggle the optional signals.
type Options struct {
	UseDistilledJD bool
	UseLLMTerms    bool
}

// Breakdown holds one resume text's signals and composite.
type Breakdown struct {
	Semantic  float64 `json:"semantic"`  // cosine similarity, 0-1
	Keyword   float64 `json:"keyword"`   // coverage fraction, 0-1
	LLMScore  float64 `json:"llm_score"` // recruiter judgement, 0-100
	Composite float64 `json:"composite"`
}

// Report compares a resume text before and after rewriting. Delta carries
// after minus before for every field. All three of before, after and delta
// are always present; a partial report is never produced.
type Report struct {
	Before Breakdown `json:"before"`
	After  Breakdown `json:"after"`
	Delta  Breakdown `json:"delta"`
}

// Scorer computes composite fit scores.
type Scorer struct {
	client    llm.Client
	distiller *Distiller
	logger    *zap.Logger
	weights   Weights
	opts      Options
}

// New builds a Scorer.
func New(client llm.Client, logger *zap.Logger, weights Weights, opts Options) *Scorer {
	return &Scorer{
		client:    client,
		distiller: NewDistiller(client),
		logger:    logger,
		weights:   weights,
		opts:      opts,
	}
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty or zero-length.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jdContext bundles the per-job-description signals shared between the
// before and after scores.
type jdContext struct {
	embedding          []float32
	distilledEmbedding []float32
	terms              *Terms
	text               string
}

// ScoreChange scores a resume text against a job description before and
// after rewriting. If any signal cannot be produced the whole report is
// withheld with ScoringUnavailableError.
func (s *Scorer) ScoreChange(ctx context.Context, beforeText, afterText, jobDescription string) (*Report, error) {
	jd, err := s.prepareJD(ctx, jobDescription)
	if err != nil {
		return nil, err
	}

	var before, after Breakdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.scoreOne(gctx, beforeText, jd)
		if err != nil {
			return err
		}
		before = b
		return nil
	})
	g.Go(func() error {
		b, err := s.scoreOne(gctx, afterText, jd)
		if err != nil {
			return err
		}
		after = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Before: before,
		After:  after,
		Delta: Breakdown{
			Semantic:  after.Semantic - before.Semantic,
			Keyword:   after.Keyword - before.Keyword,
			LLMScore:  after.LLMScore - before.LLMScore,
			Composite: after.Composite - before.Composite,
		},
	}
	s.logger.Info("fit scored",
		zap.Float64("before", before.Composite),
		zap.Float64("after", after.Composite),
		zap.Float64("delta", report.Delta.Composite))
	return report, nil
}

// prepareJD computes the job-description-side signals once. The distilled
// embedding and the term groups are fetched concurrently with the plain
// embedding.
func (s *Scorer) prepareJD(ctx context.Context, jobDescription string) (*jdContext, error) {
	jd := &jdContext{text: jobDescription}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emb, err := s.client.Embed(gctx, jobDescription)
		if err != nil {
			return &ScoringUnavailableError{Signal: "semantic", Cause: err}
		}
		jd.embedding = emb
		return nil
	})
	if s.opts.UseDistilledJD {
		g.Go(func() error {
			distilled, err := s.distiller.Distill(gctx, jobDescription)
			if err != nil {
				return &ScoringUnavailableError{Signal: "semantic", Cause: err}
			}
			emb, err := s.client.Embed(gctx, distilled)
			if err != nil {
				return &ScoringUnavailableError{Signal: "semantic", Cause: err}
			}
			jd.distilledEmbedding = emb
			return nil
		})
	}
	if s.opts.UseLLMTerms {
		g.Go(func() error {
			terms, err := s.distiller.ExtractTerms(gctx, jobDescription)
			if err != nil {
				return &ScoringUnavailableError{Signal: "keyword", Cause: err}
			}
			jd.terms = terms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return jd, nil
}

// scoreOne computes one text's breakdown against prepared JD signals.
func (s *Scorer) scoreOne(ctx context.Context, resumeText string, jd *jdContext) (Breakdown, error) {
	var b Breakdown

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emb, err := s.client.Embed(gctx, resumeText)
		if err != nil {
			return &ScoringUnavailableError{Signal: "semantic", Cause: err}
		}
		b.Semantic = s.semantic(emb, jd)
		return nil
	})
	g.Go(func() error {
		score, err := s.llmFitScore(gctx, resumeText, jd.text)
		if err != nil {
			return &ScoringUnavailableError{Signal: "llm", Cause: err}
		}
		b.LLMScore = score
		return nil
	})
	if err := g.Wait(); err != nil {
		return Breakdown{}, err
	}

	if jd.terms != nil {
		b.Keyword = WeightedCoverage(resumeText, jd.terms)
	} else {
		b.Keyword = Coverage(resumeText, jd.text)
	}

	b.Composite = 100*s.weights.Embedding*b.Semantic +
		100*s.weights.Keywords*b.Keyword +
		s.weights.LLM*b.LLMScore
	return b, nil
}

// semantic blends similarity to the distilled role core with similarity to
// the full job description. Without distillation it is the plain cosine.
func (s *Scorer) semantic(resumeEmbedding []float32, jd *jdContext) float64 {
	full := Cosine(resumeEmbedding, jd.embedding)
	if jd.distilledEmbedding == nil {
		return full
	}
	distilled := Cosine(resumeEmbedding, jd.distilledEmbedding)
	return s.weights.Distilled*distilled + (1-s.weights.Distilled)*full
}

// llmFitScore asks the model for a 0-100 recruiter-style judgement.
func (s *Scorer) llmFitScore(ctx context.Context, resumeText, jobDescription string) (float64, error) {
	template, err := prompts.Get("scoring.json", "fit-score")
	if err != nil {
		return 0, err
	}
	prompt := prompts.Format(template, map[string]string{
		"JobDescription": jobDescription,
		"ResumeText":     resumeText,
	})

	raw, err := s.client.GenerateContent(ctx, prompt, llm.TierStandard)
	if err != nil {
		return 0, err
	}
	return parseFitScore(raw)
}

// parseFitScore reads the first number out of the model's reply and clamps
// it to 0-100.
func parseFitScore(raw string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty fit score response")
	}
	score, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "."), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed fit score %q: %w", raw, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}
