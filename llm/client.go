// Package llm provides HTTP clients for the language model backends used
// for embedding, answer generation and streaming.
package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Client is the interface for LLM interactions.
type Client interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Generate runs a completion and returns the full response text.
	Generate(ctx context.Context, prompt, system string) (string, error)

	// GenerateStream runs a completion and delivers response text
	// incrementally through yield. A non-nil error from yield aborts the
	// stream and is returned unchanged.
	GenerateStream(ctx context.Context, prompt, system string, yield func(delta string) error) error

	// CheckConnection probes the backend and reports reachability together
	// with a human-readable status message.
	CheckConnection(ctx context.Context) (bool, string)
}

// Generation defaults shared by all providers.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2048

	// requestTimeout bounds unary requests. Kept generous for local
	// providers which may load models on first request.
	requestTimeout = 120 * time.Second
)

// Config configures an LLM client.
type Config struct {
	Provider   string `json:"provider"` // ollama, openai_compatible
	BaseURL    string `json:"base_url"`
	ChatModel  string `json:"chat_model"`
	EmbedModel string `json:"embed_model"`
	APIKey     string `json:"api_key"`
}

// New creates an LLM client from configuration.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg), nil
	case "openai_compatible":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// newHTTPClient returns the client used for unary requests.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// newStreamingHTTPClient returns the client used for streaming requests.
// An overall timeout would cut off long generations mid-stream, so only
// the wait for response headers is bounded.
func newStreamingHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: requestTimeout,
		},
	}
}

// validateEmbedding rejects empty vectors and vectors containing NaN or
// infinite components, which would poison distance computations downstream.
func validateEmbedding(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("backend returned empty embedding")
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("embedding component %d is not finite", i)
		}
	}
	return nil
}
