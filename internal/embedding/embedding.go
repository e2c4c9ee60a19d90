// Package embedding provides the text-embedding client used by the inline
// worker. The external worker runs its own models; this client exists so the
// engine can run the full ingestion loop without it.
package embedding

import (
	"context"
	"fmt"
)

// Embedder generates vector embeddings from text. Implementations must be
// safe for concurrent use.
type Embedder interface {
	// EmbedTexts generates embeddings for the texts in order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds the connection settings for an OpenAI-compatible embedding
// endpoint.
type Config struct {
	BaseURL string
	Model   string
	Token   string
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("embedding base URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("embedding model is required")
	}
	return nil
}
