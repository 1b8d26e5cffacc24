package ainotes

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"ainotes/chunker"
	"ainotes/llm"
	"ainotes/retrieval"
)

// Config holds all configuration for the notes service.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.ainotes/notes.db
	DBPath string `json:"db_path"`

	// LLM backend. Provider is "ollama" or "openai_compatible".
	LLMProvider string `json:"llm_provider"`
	LLMBaseURL  string `json:"llm_base_url"`
	LLMAPIKey   string `json:"llm_api_key"`
	EmbedModel  string `json:"embed_model"`
	LLMModel    string `json:"llm_model"`

	// Retrieval tuning.
	TopK                  int  `json:"top_k"`
	HybridSearchEnabled   bool `json:"hybrid_search_enabled"`
	ChunkSelectionEnabled bool `json:"chunk_selection_enabled"`
	QueryCount            int  `json:"query_count"`
	FusionOversample      int  `json:"fusion_oversample"`

	// Chunking.
	ChunkMaxChars int `json:"chunk_max_chars"`
}

// DefaultConfig returns a Config with sensible defaults for local
// inference against Ollama.
func DefaultConfig() Config {
	return Config{
		LLMProvider:           "ollama",
		LLMBaseURL:            "http://localhost:11434",
		EmbedModel:            "qwen3-embedding:8b",
		LLMModel:              "qwen2.5:7b",
		TopK:                  5,
		HybridSearchEnabled:   true,
		ChunkSelectionEnabled: false,
		QueryCount:            1,
		FusionOversample:      retrieval.DefaultFusionOversample,
		ChunkMaxChars:         chunker.DefaultMaxChars,
	}
}

// UnmarshalJSON accepts both the current llm_* keys and the legacy
// ollama_base_url key from before multi-provider support. A config file
// carrying the legacy key is treated as an Ollama setup.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		LLMBaseURL    *string `json:"llm_base_url"`
		OllamaBaseURL string  `json:"ollama_base_url"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case aux.LLMBaseURL != nil:
		c.LLMBaseURL = *aux.LLMBaseURL
	case aux.OllamaBaseURL != "":
		c.LLMBaseURL = aux.OllamaBaseURL
		c.LLMProvider = "ollama"
	}
	return nil
}

// ApplyEnv overlays AINOTES_* environment variables onto the config.
// Unset variables leave the current value untouched.
func (c *Config) ApplyEnv() {
	setString(&c.DBPath, "AINOTES_DB_PATH")
	setString(&c.LLMProvider, "AINOTES_LLM_PROVIDER")
	setString(&c.LLMBaseURL, "AINOTES_LLM_BASE_URL")
	setString(&c.LLMAPIKey, "AINOTES_LLM_API_KEY")
	setString(&c.EmbedModel, "AINOTES_EMBED_MODEL")
	setString(&c.LLMModel, "AINOTES_LLM_MODEL")
	setInt(&c.TopK, "AINOTES_TOP_K")
	setBool(&c.HybridSearchEnabled, "AINOTES_HYBRID_SEARCH")
	setBool(&c.ChunkSelectionEnabled, "AINOTES_CHUNK_SELECTION")
	setInt(&c.QueryCount, "AINOTES_QUERY_COUNT")
	setInt(&c.FusionOversample, "AINOTES_FUSION_OVERSAMPLE")
	setInt(&c.ChunkMaxChars, "AINOTES_CHUNK_MAX_CHARS")
}

// Validate normalises out-of-range values instead of failing: TopK at
// least 1, QueryCount clamped to the expander's range.
func (c *Config) Validate() error {
	if c.LLMProvider == "" {
		return ErrInvalidConfig
	}
	if c.TopK < 1 {
		c.TopK = 1
	}
	if c.QueryCount < 1 {
		c.QueryCount = 1
	}
	if c.QueryCount > retrieval.MaxTargetCount {
		c.QueryCount = retrieval.MaxTargetCount
	}
	if c.FusionOversample < 1 {
		c.FusionOversample = retrieval.DefaultFusionOversample
	}
	if c.ChunkMaxChars < 1 {
		c.ChunkMaxChars = chunker.DefaultMaxChars
	}
	return nil
}

// LLMConfig projects the unified llm_* view onto the client config.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:   c.LLMProvider,
		BaseURL:    c.LLMBaseURL,
		APIKey:     c.LLMAPIKey,
		ChatModel:  c.LLMModel,
		EmbedModel: c.EmbedModel,
	}
}

// resolveDBPath computes the final database path.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "notes.db" // fallback to cwd
	}
	return filepath.Join(home, ".ainotes", "notes.db")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
