package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ollamaClient talks to Ollama's native API. Ollama also exposes an
// OpenAI-compatible API, but the native endpoints give direct access to
// single-prompt embeddings and NDJSON generation streams.
type ollamaClient struct {
	cfg       Config
	client    *http.Client
	streaming *http.Client
}

// NewOllama creates a client for Ollama.
func NewOllama(cfg Config) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ollamaClient{
		cfg:       cfg,
		client:    newHTTPClient(),
		streaming: newStreamingHTTPClient(),
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (c *ollamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body := ollamaEmbedRequest{Model: c.cfg.EmbedModel, Prompt: text}

	respBody, err := c.post(ctx, "/api/embeddings", body)
	if err != nil {
		return nil, err
	}

	var resp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding ollama embedding response: %w", err)
	}
	if err := validateEmbedding(resp.Embedding); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

func (c *ollamaClient) Generate(ctx context.Context, prompt, system string) (string, error) {
	var sb strings.Builder
	err := c.GenerateStream(ctx, prompt, system, func(delta string) error {
		sb.WriteString(delta)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (c *ollamaClient) GenerateStream(ctx context.Context, prompt, system string, yield func(delta string) error) error {
	body := ollamaGenerateRequest{
		Model:  c.cfg.ChatModel,
		Prompt: prompt,
		System: system,
		Stream: true,
		Options: map[string]any{
			"temperature": defaultTemperature,
			"num_predict": defaultMaxTokens,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := c.cfg.BaseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streaming.Do(req)
	if err != nil {
		return fmt.Errorf("ollama generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama generate error %d: %s", resp.StatusCode, string(msg))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("decoding ollama stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama generate error: %s", chunk.Error)
		}
		if chunk.Response != "" {
			if err := yield(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading ollama stream: %w", err)
	}
	return nil
}

func (c *ollamaClient) CheckConnection(ctx context.Context) (bool, string) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false, err.Error()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("ollama unreachable at %s: %v", c.cfg.BaseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("ollama returned status %d", resp.StatusCode)
	}
	return true, "connected"
}

func (c *ollamaClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := c.cfg.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
