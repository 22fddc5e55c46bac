// File: internal/services/ai/config.go
package ai

import (
	"fmt"
	"time"
)

type Config struct {
	// LLM Configuration
	APIKey  string
	BaseURL string
	Model   string

	// Model Parameters
	Temperature float32
	TopP        float32

	// Canned Transport Configuration
	ChunkWords int           // words per streamed fragment
	ChunkDelay time.Duration // pacing between fragments
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("AI model is required")
	}
	if c.ChunkWords < 1 {
		return fmt.Errorf("chunk words must be at least 1")
	}
	if c.ChunkDelay < 0 {
		return fmt.Errorf("chunk delay cannot be negative")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		TopP:        0.9,
		ChunkWords:  50,
		ChunkDelay:  200 * time.Millisecond,
	}
}
