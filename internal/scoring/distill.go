package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jonathan/bullet-optimizer/internal/llm"
	"github.com/jonathan/bullet-optimizer/internal/prompts"
)

// Terms are the role-critical keyword groups extracted from a job
// description.
type Terms struct {
	Skills           []string `json:"skills"`
	Tools            []string `json:"tools"`
	Domains          []string `json:"domains"`
	Responsibilities []string `json:"responsibilities"`
	Seniority        []string `json:"seniority"`
	Certifications   []string `json:"certifications"`
}

// Distiller reduces job descriptions to their role core and extracts
// keyword groups from them. Results are cached by content hash, since the
// same job description is scored repeatedly across a session.
type Distiller struct {
	client llm.Client

	mu        sync.RWMutex
	distilled map[string]string
	terms     map[string]*Terms
}

// NewDistiller builds a Distiller around an LLM client.
func NewDistiller(client llm.Client) *Distiller {
	return &Distiller{
		client:    client,
		distilled: make(map[string]string),
		terms:     make(map[string]*Terms),
	}
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Distill returns the role core of a job description: responsibilities,
// skills, domain and seniority, with perks and boilerplate stripped.
func (d *Distiller) Distill(ctx context.Context, jobDescription string) (string, error) {
	key := hashText(jobDescription)

	d.mu.RLock()
	cached, ok := d.distilled[key]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	template, err := prompts.Get("scoring.json", "distill-jd")
	if err != nil {
		return "", err
	}
	prompt := prompts.Format(template, map[string]string{"JobDescription": jobDescription})

	result, err := d.client.GenerateContent(ctx, prompt, llm.TierLite)
	if err != nil {
		return "", fmt.Errorf("jd distillation failed: %w", err)
	}
	result = strings.TrimSpace(result)
	if result == "" {
		return "", fmt.Errorf("jd distillation returned empty text")
	}

	d.mu.Lock()
	d.distilled[key] = result
	d.mu.Unlock()
	return result, nil
}

// ExtractTerms pulls grouped role-critical keywords from a job description.
func (d *Distiller) ExtractTerms(ctx context.Context, jobDescription string) (*Terms, error) {
	key := hashText(jobDescription)

	d.mu.RLock()
	cached, ok := d.terms[key]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	template, err := prompts.Get("scoring.json", "extract-terms")
	if err != nil {
		return nil, err
	}
	prompt := prompts.Format(template, map[string]string{"JobDescription": jobDescription})

	raw, err := d.client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("term extraction failed: %w", err)
	}

	var terms Terms
	if err := json.Unmarshal([]byte(raw), &terms); err != nil {
		return nil, fmt.Errorf("malformed terms response: %w", err)
	}

	d.mu.Lock()
	d.terms[key] = &terms
	d.mu.Unlock()
	return &terms, nil
}
