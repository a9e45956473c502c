// Package llm talks to the embedding service.
package llm

import (
	"context"
	"time"
)

// Embedder turns one piece of text into its embedding vector.
type Embedder interface {
	Embed(ctx context.Context, prompt string) ([]float32, error)
}

type ClientConfig struct {
	BaseURL string
	Model   string
	// Dimensions, when positive, is the exact vector length the model must return.
	Dimensions int
	// Timeout bounds each request; zero waits indefinitely.
	Timeout time.Duration
	// RequestsPerSecond throttles requests; zero disables throttling.
	RequestsPerSecond float64
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    "http://localhost:11434",
		Model:      "llama3:8b",
		Dimensions: 4096,
		Timeout:    60 * time.Second,
	}
}
