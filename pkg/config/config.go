// Package config loads process configuration from the environment. The
// OpenAI key acts as the fallback secret for profiles and projects that do
// not carry their own.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/toolbridge/toolbridge/pkg/chat"
)

// Config holds process-wide settings.
type Config struct {
	// OpenAIKey is the fallback LLM credential (OPENAI_API_KEY).
	OpenAIKey string
	// ChatModel is the chat completion model (TOOLBRIDGE_MODEL).
	ChatModel string
	// DatabaseURL enables the Postgres profile store when set (DATABASE_URL).
	DatabaseURL string
	// MaxRounds caps LLM round-trips per user turn (TOOLBRIDGE_MAX_ROUNDS).
	MaxRounds int
	// Enrich enables catalog enrichment on spec load (TOOLBRIDGE_ENRICH).
	Enrich bool
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		ChatModel:   os.Getenv("TOOLBRIDGE_MODEL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		MaxRounds:   chat.DefaultMaxRounds,
		Enrich:      os.Getenv("TOOLBRIDGE_ENRICH") == "1" || os.Getenv("TOOLBRIDGE_ENRICH") == "true",
	}

	if raw := os.Getenv("TOOLBRIDGE_MAX_ROUNDS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("TOOLBRIDGE_MAX_ROUNDS must be a positive integer, got %q", raw)
		}
		cfg.MaxRounds = n
	}

	return cfg, nil
}

// LogConfiguration logs the effective configuration with secrets masked.
func (c *Config) LogConfiguration() {
	if c.DatabaseURL != "" {
		log.Printf("Profile store: PostgreSQL (%s)", maskSensitive(c.DatabaseURL))
	} else {
		log.Println("Profile store: in-memory only")
	}
	if c.OpenAIKey != "" {
		log.Println("LLM credential: OPENAI_API_KEY present")
	} else {
		log.Println("LLM credential: not set (chat and enrichment unavailable)")
	}
	log.Printf("Max tool rounds per turn: %d", c.MaxRounds)
}

// maskSensitive masks sensitive parts of URLs for logging.
func maskSensitive(url string) string {
	if len(url) > 20 {
		return url[:8] + "***" + url[len(url)-8:]
	}
	return "***"
}
