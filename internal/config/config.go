// Package config provides configuration loading and validation for the service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents the service configuration. Values can be loaded from a
// JSON file, from environment variables, or both; later sources fill in
// whatever earlier sources left empty. All tuning constants (thresholds,
// weights, caps) live here so that no component carries ambient globals.
type Config struct {
	// Service
	Port        int    `json:"port,omitempty"`         // HTTP listen port
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL (pgvector required)
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key

	// Matching thresholds. Tier boundaries are inclusive on the lower edge.
	HighConfidenceThreshold   float64 `json:"high_confidence_threshold,omitempty"`   // similarity >= this -> high_confidence
	MediumConfidenceThreshold float64 `json:"medium_confidence_threshold,omitempty"` // similarity >= this -> medium_confidence
	MatchLimit                int     `json:"match_limit,omitempty"`                 // top-K rows fetched from the similarity query

	// Q&A loop
	RoundCap    int `json:"round_cap,omitempty"`    // maximum evaluator rounds per session
	EvalRetries int `json:"eval_retries,omitempty"` // extra attempts for a failed evaluator call

	// Rewriting
	RepromptTries int `json:"reprompt_tries,omitempty"` // char-cap enforcement reprompts before truncation

	// Scoring weights. Independent multipliers, not a normalized combination.
	WeightEmbedding float64 `json:"w_emb,omitempty"`
	WeightKeywords  float64 `json:"w_key,omitempty"`
	WeightLLM       float64 `json:"w_llm,omitempty"`
	WeightDistilled float64 `json:"w_distilled,omitempty"` // blend of distilled vs original JD similarity

	// Feature toggles. Pointers distinguish "unset" from "false" in JSON.
	UseDistilledJD *bool `json:"use_distilled_jd,omitempty"`
	UseLLMTerms    *bool `json:"use_llm_terms,omitempty"`

	// Auth
	JWTSecret   string `json:"jwt_secret,omitempty"`
	RequireAuth bool   `json:"require_auth,omitempty"`

	// Logging
	LogJSON bool `json:"log_json,omitempty"`
	Verbose bool `json:"verbose,omitempty"`
}

// Default returns the configuration defaults. Threshold and weight values
// mirror the tuning constants the service shipped with; they are starting
// points to be validated empirically, not requirements.
func Default() Config {
	on := true
	return Config{
		Port:                      8080,
		HighConfidenceThreshold:   0.90,
		MediumConfidenceThreshold: 0.85,
		MatchLimit:                5,
		RoundCap:                  5,
		EvalRetries:               2,
		RepromptTries:             3,
		WeightEmbedding:           0.4,
		WeightKeywords:            0.2,
		WeightLLM:                 0.4,
		WeightDistilled:           0.7,
		UseDistilledJD:            &on,
		UseLLMTerms:               &on,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv returns a Config populated from environment variables.
// Unset variables leave the corresponding field at its zero value so that
// MergeWithDefaults can fill it in.
func FromEnv() Config {
	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		APIKey:      os.Getenv("GEMINI_API_KEY"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
	}

	cfg.Port = envInt("PORT", 0)
	cfg.HighConfidenceThreshold = envFloat("HIGH_CONFIDENCE_THRESHOLD", 0)
	cfg.MediumConfidenceThreshold = envFloat("MEDIUM_CONFIDENCE_THRESHOLD", 0)
	cfg.RoundCap = envInt("ROUND_CAP", 0)
	cfg.RepromptTries = envInt("REPROMPT_TRIES", 0)
	cfg.WeightEmbedding = envFloat("W_EMB", 0)
	cfg.WeightKeywords = envFloat("W_KEY", 0)
	cfg.WeightLLM = envFloat("W_LLM", 0)
	cfg.WeightDistilled = envFloat("W_DISTILLED", 0)

	if v, ok := os.LookupEnv("USE_DISTILLED_JD"); ok {
		b := v == "1" || v == "true"
		cfg.UseDistilledJD = &b
	}
	if v, ok := os.LookupEnv("USE_LLM_TERMS"); ok {
		b := v == "1" || v == "true"
		cfg.UseLLMTerms = &b
	}
	if v, ok := os.LookupEnv("REQUIRE_AUTH"); ok {
		cfg.RequireAuth = v == "1" || v == "true"
	}

	return cfg
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("config error: 'api_key' is required")
	}
	if c.HighConfidenceThreshold < 0 || c.HighConfidenceThreshold > 1 {
		return fmt.Errorf("config error: 'high_confidence_threshold' must be in [0,1]")
	}
	if c.MediumConfidenceThreshold < 0 || c.MediumConfidenceThreshold > 1 {
		return fmt.Errorf("config error: 'medium_confidence_threshold' must be in [0,1]")
	}
	if c.MediumConfidenceThreshold > c.HighConfidenceThreshold {
		return fmt.Errorf("config error: 'medium_confidence_threshold' must not exceed 'high_confidence_threshold'")
	}
	if c.RoundCap < 1 {
		return fmt.Errorf("config error: 'round_cap' must be at least 1")
	}
	if c.RepromptTries < 0 {
		return fmt.Errorf("config error: 'reprompt_tries' must be non-negative")
	}
	if c.WeightEmbedding < 0 || c.WeightKeywords < 0 || c.WeightLLM < 0 {
		return fmt.Errorf("config error: scoring weights must be non-negative")
	}
	if c.WeightDistilled < 0 || c.WeightDistilled > 1 {
		return fmt.Errorf("config error: 'w_distilled' must be in [0,1]")
	}
	if c.RequireAuth && c.JWTSecret == "" {
		return fmt.Errorf("config error: 'jwt_secret' is required when 'require_auth' is set")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.JWTSecret == "" {
		result.JWTSecret = defaults.JWTSecret
	}

	if result.HighConfidenceThreshold == 0 {
		result.HighConfidenceThreshold = defaults.HighConfidenceThreshold
	}
	if result.MediumConfidenceThreshold == 0 {
		result.MediumConfidenceThreshold = defaults.MediumConfidenceThreshold
	}
	if result.MatchLimit == 0 {
		result.MatchLimit = defaults.MatchLimit
	}
	if result.RoundCap == 0 {
		result.RoundCap = defaults.RoundCap
	}
	if result.EvalRetries == 0 {
		result.EvalRetries = defaults.EvalRetries
	}
	if result.RepromptTries == 0 {
		result.RepromptTries = defaults.RepromptTries
	}

	if result.WeightEmbedding == 0 {
		result.WeightEmbedding = defaults.WeightEmbedding
	}
	if result.WeightKeywords == 0 {
		result.WeightKeywords = defaults.WeightKeywords
	}
	if result.WeightLLM == 0 {
		result.WeightLLM = defaults.WeightLLM
	}
	if result.WeightDistilled == 0 {
		result.WeightDistilled = defaults.WeightDistilled
	}

	if result.UseDistilledJD == nil {
		result.UseDistilledJD = defaults.UseDistilledJD
	}
	if result.UseLLMTerms == nil {
		result.UseLLMTerms = defaults.UseLLMTerms
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// DistilledJDEnabled reports whether JD distillation is turned on.
func (c *Config) DistilledJDEnabled() bool {
	return c.UseDistilledJD == nil || *c.UseDistilledJD
}

// LLMTermsEnabled reports whether LLM term extraction is turned on.
func (c *Config) LLMTermsEnabled() bool {
	return c.UseLLMTerms == nil || *c.UseLLMTerms
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
