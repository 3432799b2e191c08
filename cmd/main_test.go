package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellidoc/internal/config"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
log:
  level: error
storage:
  index_dir: %[1]s/index
  uploads_dir: %[1]s/uploads
  registry_path: %[1]s/registry.db
  encryption_key: %[2]s
embed_llm:
  provider: hash
  model: test
  dimensions: 64
extraction:
  ocr: false
`, dir, strings.Repeat("k", 32))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLIWorkflow(t *testing.T) {
	cfg := writeConfig(t)
	docs := t.TempDir()
	a := filepath.Join(docs, "a.txt")
	b := filepath.Join(docs, "loan.txt")
	require.NoError(t, os.WriteFile(a, []byte("Either party may terminate this agreement on notice."), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("The interest rate is fixed at 9.5% per annum."), 0o644))

	out, err := run(t, "--config", cfg, "ingest", a)
	require.NoError(t, err, out)
	assert.Contains(t, out, "a.txt: 1 chunks")

	out, err = run(t, "--config", cfg, "check", b, "--type", "loan_agreement")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"value": "9.5% per annum"`)
	assert.Contains(t, out, `"document_type": "loan_agreement"`)

	out, err = run(t, "--config", cfg, "sources")
	require.NoError(t, err, out)
	assert.Contains(t, out, "a.txt\nloan.txt\n")
	assert.Contains(t, out, "2 sources, 2 chunks")

	backup := filepath.Join(t.TempDir(), "index.bak")
	out, err = run(t, "--config", cfg, "export", backup)
	require.NoError(t, err, out)
	assert.FileExists(t, backup)

	out, err = run(t, "--config", cfg, "delete", "a.txt")
	require.NoError(t, err, out)
	assert.Contains(t, out, "deleted a.txt: 1 chunks, 1 files")

	out, err = run(t, "--config", cfg, "sources")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 sources, 1 chunks")

	out, err = run(t, "--config", cfg, "import", backup)
	require.NoError(t, err, out)
	assert.Contains(t, out, "imported 2 chunks")
}

func TestCLIErrors(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "--config", cfg, "check", "x.pdf")
	assert.ErrorContains(t, err, `required flag(s) "type" not set`)

	_, err = run(t, "--config", cfg, "ingest", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "delete")
	assert.Error(t, err)
}

func TestSourcesEmpty(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "sources")
	require.NoError(t, err)
	assert.Equal(t, "No sources indexed.\n", out)
}

func TestRedacted(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.EncryptionKey = "secret"
	cfg.ChatLLM.Key = "sk-123"

	out := redacted(cfg)
	assert.Equal(t, "***", out.Storage.EncryptionKey)
	assert.Equal(t, "***", out.ChatLLM.Key)
	assert.Empty(t, out.Database.DSN)
	assert.Equal(t, "secret", cfg.Storage.EncryptionKey)
}
