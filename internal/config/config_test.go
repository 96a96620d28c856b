package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.DatabaseURL = "postgres://localhost/bullets"
	cfg.APIKey = "test-key"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 0.90, cfg.HighConfidenceThreshold)
	assert.Equal(t, 0.85, cfg.MediumConfidenceThreshold)
	assert.Equal(t, 5, cfg.RoundCap)
	assert.Equal(t, 3, cfg.RepromptTries)
	assert.True(t, cfg.DistilledJDEnabled())
	assert.True(t, cfg.LLMTermsEnabled())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"port": 9090,
		"database_url": "postgres://db/bullets",
		"high_confidence_threshold": 0.92,
		"use_distilled_jd": false
	}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://db/bullets", cfg.DatabaseURL)
	assert.Equal(t, 0.92, cfg.HighConfidenceThreshold)
	assert.False(t, cfg.DistilledJDEnabled())
	assert.True(t, cfg.LLMTermsEnabled(), "unset toggle stays on")
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/bullets")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("HIGH_CONFIDENCE_THRESHOLD", "0.95")
	t.Setenv("ROUND_CAP", "7")
	t.Setenv("USE_LLM_TERMS", "false")
	t.Setenv("REQUIRE_AUTH", "1")

	cfg := FromEnv()
	assert.Equal(t, "postgres://env/bullets", cfg.DatabaseURL)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, 0.95, cfg.HighConfidenceThreshold)
	assert.Equal(t, 7, cfg.RoundCap)
	assert.False(t, cfg.LLMTermsEnabled())
	assert.True(t, cfg.RequireAuth)
	assert.Nil(t, cfg.UseDistilledJD, "untouched toggle stays unset")
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{
		Port:        9000,
		DatabaseURL: "postgres://custom/bullets",
	}

	merged := cfg.MergeWithDefaults(Default())
	assert.Equal(t, 9000, merged.Port, "set fields win")
	assert.Equal(t, "postgres://custom/bullets", merged.DatabaseURL)
	assert.Equal(t, 0.90, merged.HighConfidenceThreshold, "empty fields come from defaults")
	assert.Equal(t, 5, merged.RoundCap)
	assert.Equal(t, 0.4, merged.WeightEmbedding)
	assert.NotNil(t, merged.UseDistilledJD)
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database url", func(c *Config) { c.DatabaseURL = "" }},
		{"missing api key", func(c *Config) { c.APIKey = "" }},
		{"threshold above one", func(c *Config) { c.HighConfidenceThreshold = 1.2 }},
		{"inverted thresholds", func(c *Config) { c.MediumConfidenceThreshold = 0.95 }},
		{"zero round cap", func(c *Config) { c.RoundCap = 0 }},
		{"negative weight", func(c *Config) { c.WeightKeywords = -0.1 }},
		{"auth without secret", func(c *Config) { c.RequireAuth = true; c.JWTSecret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := validConfig()
			tt.mutate(&bad)
			assert.Error(t, bad.Validate())
		})
	}
}
