package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellidoc/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "chromem", cfg.Storage.Backend)
	assert.Equal(t, models.DefaultChunkSize, cfg.RAG.ChunkSize)
	assert.Equal(t, models.DefaultChunkOverlap, cfg.RAG.ChunkOverlap)
	assert.Equal(t, models.DefaultTopK, cfg.RAG.TopK)
	assert.Equal(t, "lexical", cfg.Reranker.Provider)
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  addr: ":9000"
  rate_limit_rps: 5
storage:
  uploads_dir: /tmp/up
rag:
  top_k: 8
legal:
  severity:
    termination: 2
    indemnity: 4
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5.0, cfg.Server.RateLimitRPS)
	assert.Equal(t, int64(32), cfg.Server.MaxUploadMB)
	assert.Equal(t, "/tmp/up", cfg.Storage.UploadsDir)
	assert.Equal(t, "documents", cfg.Storage.Collection)
	assert.Equal(t, 8, cfg.RAG.TopK)
	assert.GreaterOrEqual(t, cfg.RAG.Candidates, 8)
	assert.Equal(t, map[string]int{"termination": 2, "indemnity": 4}, cfg.Legal.Severity)
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[storage]
backend = "pgvector"

[database]
dsn = "postgres://localhost/intellidoc"
dimensions = 768

[chat_llm]
provider = "anthropic"
model = "claude-3-5-haiku-latest"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "pgvector", cfg.Storage.Backend)
	assert.Equal(t, 768, cfg.Database.Dimensions)
	assert.Equal(t, "anthropic", cfg.ChatLLM.Provider)
	assert.Equal(t, "./chroma_db", cfg.Storage.IndexDir)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("INTELLIDOC_ADDR", ":7000")
	t.Setenv("INTELLIDOC_CHAT_KEY", "sk-test")
	t.Setenv("INTELLIDOC_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeFile(t, "config.yaml", "server:\n  addr: \":9000\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "sk-test", cfg.ChatLLM.Key)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"pgvector without dsn", "storage:\n  backend: pgvector\n"},
		{"unknown backend", "storage:\n  backend: redis\n"},
		{"overlap not below size", "rag:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"candidates below top_k", "rag:\n  top_k: 10\n  candidates: 5\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"negative rps", "server:\n  rate_limit_rps: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "config.yaml", tt.content))
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "config.yaml", "server: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = LoadConfig(writeFile(t, "config.toml", "server = = 1"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}
