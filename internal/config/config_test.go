package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "docuchat", cfg.App.Name)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.InDelta(t, 0.7, cfg.RAG.Threshold, 1e-9)
	assert.InDelta(t, 0.6, cfg.RAG.ChatThreshold, 1e-9)
	assert.Equal(t, 10, cfg.RAG.HistoryWindow)
	assert.Equal(t, 50, cfg.RAG.HistoryLimit)
	assert.Equal(t, 768, cfg.LLM.EmbeddingDim)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[app]
port = 9090

[rag]
chunk_size = 500
top_k = 8

[llm]
embedding_dim = 1024
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 8, cfg.RAG.TopK)
	assert.Equal(t, 1024, cfg.LLM.EmbeddingDim)
	// untouched sections keep their defaults
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("APP_PORT", "7070")
	t.Setenv("RAG_CHUNK_SIZE", "256")
	t.Setenv("LLM_EMBEDDING_DIM", "384")
	t.Setenv("RAG_TOP_K", "not-a-number")
	t.Setenv("RAG_THRESHOLD", "0.85")
	t.Setenv("RAG_CHAT_THRESHOLD", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, 256, cfg.RAG.ChunkSize)
	assert.Equal(t, 384, cfg.LLM.EmbeddingDim)
	assert.InDelta(t, 0.85, cfg.RAG.Threshold, 1e-9)
	// unparseable numbers fall back to the default
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.InDelta(t, 0.6, cfg.RAG.ChatThreshold, 1e-9)
}

func TestMySQLDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.MySQL.User = "app"
	cfg.MySQL.Password = "secret"
	cfg.MySQL.Host = "db.internal"
	cfg.MySQL.Port = 3307
	cfg.MySQL.DB = "docuchat"
	cfg.MySQL.Params = "parseTime=true"

	assert.Equal(t, "app:secret@tcp(db.internal:3307)/docuchat?parseTime=true", cfg.MySQLDSN())
}
