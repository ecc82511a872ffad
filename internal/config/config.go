package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"ragreader/internal/chat"
	embopenai "ragreader/internal/embedding/openai"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string               `yaml:"type"`
	OpenAI OpenAIEmbedderConfig `yaml:"openai"`
}

// ChatConfig configures the model that turns retrieved context into answers.
type ChatConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Model        string  `yaml:"model"`
	Temperature  float32 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// ChunkerConfig configures how documents are split into passages.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type MetricsConfig struct {
	// Listen is the address for /metrics and /health; empty disables them.
	Listen string `yaml:"listen"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	CacheRoot      string           `yaml:"cache_root"`
	EmbeddingModel string           `yaml:"embedding_model"`
	TopK           int              `yaml:"top_k"`
	Embedder       EmbedderConfig   `yaml:"embedder"`
	Chat           ChatConfig       `yaml:"chat"`
	Chunker        ChunkerConfig    `yaml:"chunker"`
	Summarizer     SummarizerConfig `yaml:"summarizer"`
	Log            LogConfig        `yaml:"log"`
	Metrics        MetricsConfig    `yaml:"metrics"`
}

// Load reads a config from path, falling back to defaults when the file does
// not exist. Environment overrides are applied and the result validated.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); errors.Is(err, os.ErrNotExist) {
		if err := Save(userPath, Default()); err != nil {
			return nil, "", err
		}
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

// Default returns the configuration used when no file is present: a local
// Ollama server for both embeddings and chat.
func Default() *AppConfig {
	return &AppConfig{
		CacheRoot:      ".",
		EmbeddingModel: embopenai.DefaultModel,
		TopK:           5,
		Embedder: EmbedderConfig{
			Type: "openai",
			OpenAI: OpenAIEmbedderConfig{
				BaseURL:     embopenai.DefaultBaseURL,
				APIKeyEnv:   "OPENAI_API_KEY",
				TimeoutSecs: 30,
				MaxRetries:  3,
				Concurrency: 4,
			},
		},
		Chat: ChatConfig{
			Enabled:      true,
			Model:        chat.DefaultModel,
			Temperature:  0.2,
			SystemPrompt: chat.DefaultSystemPrompt,
		},
		Chunker:    ChunkerConfig{Type: "paragraph", SentencesPerChunk: 5, OverlapSentences: 1},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Log:        LogConfig{Level: "info", Pretty: true},
	}
}

func applyDefaults(cfg *AppConfig) {
	d := Default()
	if cfg.CacheRoot == "" {
		cfg.CacheRoot = d.CacheRoot
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = d.EmbeddingModel
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = d.Embedder.Type
	}
	if cfg.Embedder.OpenAI.BaseURL == "" {
		cfg.Embedder.OpenAI.BaseURL = d.Embedder.OpenAI.BaseURL
	}
	if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
		cfg.Embedder.OpenAI.TimeoutSecs = d.Embedder.OpenAI.TimeoutSecs
	}
	if cfg.Embedder.OpenAI.Concurrency == 0 {
		cfg.Embedder.OpenAI.Concurrency = d.Embedder.OpenAI.Concurrency
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = d.Chat.Model
	}
	if cfg.Chat.SystemPrompt == "" {
		cfg.Chat.SystemPrompt = d.Chat.SystemPrompt
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = d.Chunker.Type
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = d.Chunker.SentencesPerChunk
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = d.Summarizer.Type
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
}

func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv("RAG_CACHE_ROOT"); v != "" {
		cfg.CacheRoot = v
	}
	if v := os.Getenv("RAG_EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("RAG_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("RAG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RAG_TOP_K"); v != "" {
		k, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("RAG_TOP_K: %w", err)
		}
		cfg.TopK = k
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c *AppConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", c.TopK)
	}
	switch c.Embedder.Type {
	case "openai", "tfidf":
	default:
		return fmt.Errorf("unknown embedder type %q", c.Embedder.Type)
	}
	o := c.Embedder.OpenAI
	if o.Concurrency < 1 {
		return fmt.Errorf("embedder.openai.concurrency must be at least 1, got %d", o.Concurrency)
	}
	if o.MaxRetries < 0 || o.TimeoutSecs < 0 || o.RequestsPerSecond < 0 {
		return errors.New("embedder.openai: retries, timeout and rate must not be negative")
	}
	switch c.Chunker.Type {
	case "paragraph", "sentence":
	default:
		return fmt.Errorf("unknown chunker type %q", c.Chunker.Type)
	}
	switch c.Summarizer.Type {
	case "frequency", "none":
	default:
		return fmt.Errorf("unknown summarizer type %q", c.Summarizer.Type)
	}
	return nil
}
