package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hubenschmidt/pgvreduce/core"
)

var _ Embedder = (*OllamaEmbedClient)(nil)

// OllamaEmbedClient handles Ollama's native /api/embeddings endpoint.
type OllamaEmbedClient struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	limiter    *rate.Limiter
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaEmbedClient creates a client; empty fields of cfg take their
// DefaultClientConfig values, except Dimensions, Timeout and
// RequestsPerSecond whose zero values are meaningful.
func NewOllamaEmbedClient(cfg ClientConfig) *OllamaEmbedClient {
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}

	host := strings.TrimSuffix(cfg.BaseURL, "/")
	host = strings.TrimSuffix(host, "/v1")

	c := &OllamaEmbedClient{
		baseURL:    host,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Model returns the model identifier sent with every request.
func (c *OllamaEmbedClient) Model() string {
	return c.model
}

// Embed requests the embedding of prompt. Every call issues exactly one
// request; nothing is cached.
func (c *OllamaEmbedClient) Embed(ctx context.Context, prompt string) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrEmbeddingStatus, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", core.ErrMalformedResponse, err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding in response", core.ErrMalformedResponse)
	}
	if c.dimensions > 0 && len(result.Embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: model %s returned %d values, want %d",
			core.ErrDimensionMismatch, c.model, len(result.Embedding), c.dimensions)
	}

	embedding := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}
