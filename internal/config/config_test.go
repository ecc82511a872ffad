package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ".", cfg.CacheRoot)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Embedder.OpenAI.BaseURL)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_root: /var/cache/rag
top_k: 3
embedder:
  type: tfidf
chunker:
  type: sentence
  sentences_per_chunk: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/rag", cfg.CacheRoot)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, 4, cfg.Chunker.SentencesPerChunk)
	assert.Equal(t, 4, cfg.Embedder.OpenAI.Concurrency)
	assert.Equal(t, "llama3.2", cfg.Chat.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RAG_CACHE_ROOT", "/tmp/x")
	t.Setenv("RAG_EMBEDDING_MODEL", "mxbai-embed-large")
	t.Setenv("RAG_CHAT_MODEL", "qwen2")
	t.Setenv("RAG_TOP_K", "8")
	t.Setenv("RAG_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", cfg.CacheRoot)
	assert.Equal(t, "mxbai-embed-large", cfg.EmbeddingModel)
	assert.Equal(t, "qwen2", cfg.Chat.Model)
	assert.Equal(t, 8, cfg.TopK)
	assert.Equal(t, "debug", cfg.Log.Level)

	t.Setenv("RAG_TOP_K", "many")
	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "RAG_TOP_K")
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"top_k":      "top_k: 0\n",
		"embedder":   "embedder: {type: bert}\n",
		"chunker":    "chunker: {type: words}\n",
		"summarizer": "summarizer: {type: llm}\n",
		"retries":    "embedder: {openai: {max_retries: -1}}\n",
		"yaml":       "top_k: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := Default()
	want.TopK = 9
	want.Metrics.Listen = ":9090"
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "rag", "config.yaml"), path)
	assert.Equal(t, Default(), cfg)
	assert.FileExists(t, path)
}
