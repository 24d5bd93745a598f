// Package config loads the pipeline's runtime settings: which LLM backend
// to call, how much it may retry, and which optional stages are enabled.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMBackend selects which client implementation the LLM runtime dials.
type LLMBackend string

const (
	BackendDummy  LLMBackend = "dummy"
	BackendGemini LLMBackend = "gemini"
)

// Config is the central configuration shared by every pipeline stage.
type Config struct {
	LLMBackend LLMBackend `yaml:"llm_backend"`

	GeminiModel   string `yaml:"gemini_model"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`

	EnableSymbolicLayer bool `yaml:"enable_symbolic_layer"`
	EnableJudgeMetric   bool `yaml:"enable_judge_metric"`
	BenchmarkMode       bool `yaml:"benchmark_mode"`

	LLMRetries      int           `yaml:"llm_retries"`
	LLMBaseDelay    time.Duration `yaml:"llm_base_delay"`
	LLMCallTimeout  time.Duration `yaml:"llm_call_timeout"`

	CanonicalizerCacheTTL time.Duration `yaml:"canonicalizer_cache_ttl"`

	MaxRefinementAttempts int `yaml:"max_refinement_attempts"`
	MaxIterations         int `yaml:"max_iterations"`
	FactSynthesisMaxRounds int `yaml:"fact_synthesis_max_rounds"`
}

// DefaultConfig returns the settings used when no override file is present:
// the deterministic dummy LLM backend, the symbolic layer enabled, and the
// judge metric (an optional, extra LLM call) disabled.
func DefaultConfig() Config {
	return Config{
		LLMBackend:             BackendDummy,
		GeminiModel:            "gemini-2.0-flash",
		EnableSymbolicLayer:    true,
		EnableJudgeMetric:      false,
		BenchmarkMode:          false,
		LLMRetries:             3,
		LLMBaseDelay:           500 * time.Millisecond,
		LLMCallTimeout:         30 * time.Second,
		CanonicalizerCacheTTL:  10 * time.Minute,
		MaxRefinementAttempts:  2,
		MaxIterations:          5,
		FactSynthesisMaxRounds: 3,
	}
}

// Load reads a YAML settings file over DefaultConfig, so a partial override
// file only needs to name the fields it changes.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
