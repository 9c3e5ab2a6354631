// Package config loads the agent's runtime configuration from environment
// variables, following the same getEnvOrDefault-plus-Validate shape the
// rest of this codebase uses for its other env-driven components.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sgunadhya/incident-agent/pkg/llm"
)

// Config is the top-level configuration for the incident-agent binary.
type Config struct {
	// EventsDBPath is the SQLite file backing the event log.
	EventsDBPath string
	// HTTPAddr is the address the webhook/API server listens on.
	HTTPAddr string
	// DispatcherInterval is how often the dispatcher polls the event log
	// for new events to republish.
	DispatcherInterval time.Duration
	// FactWindowSize bounds how many recent facts the agent loop keeps in
	// memory for LLM context.
	FactWindowSize int
	// MaxReplanAttempts is reserved for a future re-planning loop; the
	// agent does not currently act on it.
	MaxReplanAttempts int
	// LLM is the provider/model configuration for the structured-extraction
	// client. The agent runs without an LLM client when LLM.Enabled() is
	// false.
	LLM llm.Config
}

// LoadFromEnv loads Config from EVENTS_DB_PATH, HTTP_ADDR,
// DISPATCHER_INTERVAL_MS, FACT_WINDOW_SIZE and MAX_REPLAN_ATTEMPTS, falling
// back to production-ready defaults for anything unset, plus the LLM_*
// variables read by llm.ConfigFromEnv.
func LoadFromEnv() (Config, error) {
	intervalMS, err := strconv.Atoi(getEnvOrDefault("DISPATCHER_INTERVAL_MS", "750"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DISPATCHER_INTERVAL_MS: %w", err)
	}
	windowSize, err := strconv.Atoi(getEnvOrDefault("FACT_WINDOW_SIZE", "16"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid FACT_WINDOW_SIZE: %w", err)
	}
	maxReplan, err := strconv.Atoi(getEnvOrDefault("MAX_REPLAN_ATTEMPTS", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid MAX_REPLAN_ATTEMPTS: %w", err)
	}

	cfg := Config{
		EventsDBPath:       getEnvOrDefault("EVENTS_DB_PATH", "incident-agent.db"),
		HTTPAddr:           getEnvOrDefault("HTTP_ADDR", ":8080"),
		DispatcherInterval: time.Duration(intervalMS) * time.Millisecond,
		FactWindowSize:     windowSize,
		MaxReplanAttempts:  maxReplan,
		LLM:                llm.ConfigFromEnv(),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for internally inconsistent
// values LoadFromEnv's parsing would not otherwise catch.
func (c Config) Validate() error {
	if c.EventsDBPath == "" {
		return fmt.Errorf("EVENTS_DB_PATH must not be empty")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if c.DispatcherInterval <= 0 {
		return fmt.Errorf("DISPATCHER_INTERVAL_MS must be positive")
	}
	if c.FactWindowSize < 1 {
		return fmt.Errorf("FACT_WINDOW_SIZE must be at least 1")
	}
	if c.MaxReplanAttempts < 0 {
		return fmt.Errorf("MAX_REPLAN_ATTEMPTS cannot be negative")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
