// Package rewriting turns bullets into job-targeted versions, in batch
// against a role core or one at a time against confirmed facts.
package rewriting

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jonathan/bullet-optimizer/internal/llm"
	"github.com/jonathan/bullet-optimizer/internal/prompts"
)

// Rewriter drives bullet rewrites through the LLM.
type Rewriter struct {
	client llm.Client
	logger *zap.Logger

	// repromptTries is how many shorter-rewrite attempts a bullet gets
	// before it is truncated to its cap.
	repromptTries int
}

// New builds a Rewriter.
func New(client llm.Client, logger *zap.Logger, repromptTries int) *Rewriter {
	return &Rewriter{client: client, logger: logger, repromptTries: repromptTries}
}

// RewriteBatch rewrites bullets against a distilled role core and term
// list, preserving order and count. The model must answer with a strict
// JSON array; a malformed answer gets exactly one corrective reprompt.
// A count mismatch after that falls back to padding with the original
// bullets (or trimming extras) rather than failing the whole batch. Every
// result is clamped to its original bullet's tiered character cap.
func (r *Rewriter) RewriteBatch(ctx context.Context, bullets []string, roleCore string, terms []string) ([]string, error) {
	if len(bullets) == 0 {
		return nil, nil
	}

	template, err := prompts.Get("rewriting.json", "rewrite-batch")
	if err != nil {
		return nil, err
	}

	var numbered strings.Builder
	for i, b := range bullets {
		numbered.WriteString(strconv.Itoa(i + 1))
		numbered.WriteString(". ")
		numbered.WriteString(b)
		numbered.WriteString("\n")
	}
	prompt := prompts.Format(template, map[string]string{
		"Count":    strconv.Itoa(len(bullets)),
		"RoleCore": roleCore,
		"Terms":    strings.Join(terms, ", "),
		"Bullets":  numbered.String(),
	})

	rewritten, err := r.generateBulletArray(ctx, prompt, len(bullets))
	if err != nil {
		return nil, err
	}

	if len(rewritten) != len(bullets) {
		r.logger.Warn("rewrite count mismatch, padding from originals",
			zap.Int("want", len(bullets)),
			zap.Int("got", len(rewritten)))
		rewritten = padToCount(rewritten, bullets)
	}

	out := make([]string, len(bullets))
	for i, b := range rewritten {
		out[i] = r.enforceCap(ctx, b, TieredCharCap(bullets[i]))
	}
	return out, nil
}

// RewriteWithFacts rewrites one bullet using its confirmed facts. capOverride
// replaces the tiered cap when positive.
func (r *Rewriter) RewriteWithFacts(ctx context.Context, bulletText, jobDescription string, facts []byte, capOverride int) (string, error) {
	template, err := prompts.Get("rewriting.json", "rewrite-with-facts")
	if err != nil {
		return "", err
	}
	prompt := prompts.Format(template, map[string]string{
		"BulletText":     bulletText,
		"JobDescription": jobDescription,
		"Facts":          string(facts),
	})

	raw, err := r.client.GenerateContent(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return "", &APICallError{Op: "facts", Cause: err}
	}

	result := llm.CleanBulletLine(raw)
	if result == "" {
		return "", &APICallError{Op: "facts", Cause: fmt.Errorf("empty rewrite response")}
	}

	limit := capOverride
	if limit <= 0 {
		limit = TieredCharCap(bulletText)
	}
	return r.enforceCap(ctx, result, limit), nil
}

// generateBulletArray asks for a strict JSON array of strings, giving one
// corrective reprompt on malformed output.
func (r *Rewriter) generateBulletArray(ctx context.Context, prompt string, count int) ([]string, error) {
	raw, err := r.client.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, &APICallError{Op: "batch", Cause: err}
	}

	bullets, parseErr := parseBulletArray(raw)
	if parseErr == nil {
		return bullets, nil
	}

	r.logger.Warn("malformed rewrite response, reprompting", zap.Error(parseErr))
	correction, err := prompts.Get("rewriting.json", "json-correction")
	if err != nil {
		return nil, err
	}
	correction = prompts.Format(correction, map[string]string{"Count": strconv.Itoa(count)})

	raw, err = r.client.GenerateJSON(ctx, prompt+"\n\n"+correction, llm.TierAdvanced)
	if err != nil {
		return nil, &APICallError{Op: "batch_correction", Cause: err}
	}
	bullets, parseErr = parseBulletArray(raw)
	if parseErr != nil {
		return nil, &APICallError{Op: "batch_correction", Cause: parseErr}
	}
	return bullets, nil
}

// enforceCap reprompts for shorter text while the bullet exceeds its cap,
// then truncates. Truncation is logged, not fatal: one overlong bullet must
// not sink a whole batch.
func (r *Rewriter) enforceCap(ctx context.Context, bullet string, limit int) string {
	if utf8.RuneCountInString(bullet) <= limit {
		return bullet
	}

	template, err := prompts.Get("rewriting.json", "char-cap")
	if err == nil {
		for try := 0; try < r.repromptTries; try++ {
			prompt := prompts.Format(template, map[string]string{
				"Cap":        strconv.Itoa(limit),
				"BulletText": bullet,
			})
			raw, err := r.client.GenerateContent(ctx, prompt, llm.TierLite)
			if err != nil {
				break
			}
			shorter := llm.CleanBulletLine(raw)
			if shorter == "" {
				continue
			}
			bullet = shorter
			if utf8.RuneCountInString(bullet) <= limit {
				return bullet
			}
		}
	}

	capErr := &CharLimitExceededError{Cap: limit, Length: utf8.RuneCountInString(bullet)}
	r.logger.Warn("char cap enforcement fell back to truncation",
		zap.Int("cap", limit),
		zap.Int("length", capErr.Length))
	return truncate(bullet, limit)
}

// parseBulletArray decodes a strict JSON array of strings and cleans each
// entry.
func parseBulletArray(raw string) ([]string, error) {
	var bullets []string
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &bullets); err != nil {
		return nil, fmt.Errorf("not a JSON string array: %w", err)
	}
	out := bullets[:0]
	for _, b := range bullets {
		if cleaned := llm.CleanBulletLine(b); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty bullet array")
	}
	return out, nil
}

// padToCount aligns a mismatched rewrite result with the input count,
// keeping originals for any position the model failed to cover.
func padToCount(rewritten, originals []string) []string {
	out := make([]string, len(originals))
	for i := range originals {
		if i < len(rewritten) {
			out[i] = rewritten[i]
		} else {
			out[i] = originals[i]
		}
	}
	return out
}
