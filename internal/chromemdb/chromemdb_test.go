package chromemdb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellidoc/internal/embedding"
	"intellidoc/internal/models"
)

type failingEmbedder struct{}

func (failingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("model not loaded")
}

func (failingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("model not loaded")
}

func chunk(source, content string) models.Chunk {
	return models.Chunk{Content: content, Metadata: map[string]string{models.MetaSource: source}}
}

func openIndex(t *testing.T) (*Index, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "index")
	idx, err := Open(dir, "documents", false, embedding.NewHashEmbedder(128))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx, dir
}

func seed(t *testing.T, idx *Index) {
	t.Helper()
	require.NoError(t, idx.Upsert(context.Background(), []models.Chunk{
		chunk("a.pdf", "The interest rate is fixed at 9.5% per annum."),
		chunk("a.pdf", "Either party may terminate this agreement with notice."),
		chunk("a.pdf", "The borrower shall repay in 12 monthly installments."),
		chunk("b.pdf", "The interest rate for the lease is 7% per annum."),
		chunk("b.pdf", "Confidential information must not be disclosed."),
	}))
}

func TestQueryFiltersBySource(t *testing.T) {
	idx, _ := openIndex(t)
	seed(t, idx)

	results, err := idx.Query(context.Background(), "interest rate per annum", 3, map[string]string{models.MetaSource: "a.pdf"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "a.pdf", r.Chunk.Source())
	}
	assert.Contains(t, results[0].Chunk.Content, "9.5%")
}

func TestQueryClampsK(t *testing.T) {
	idx, _ := openIndex(t)
	seed(t, idx)

	results, err := idx.Query(context.Background(), "interest", 50, nil)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	for j := 1; j < len(results); j++ {
		assert.GreaterOrEqual(t, results[j-1].Score, results[j].Score)
	}

	results, err = idx.Query(context.Background(), "interest", 5, map[string]string{models.MetaSource: "b.pdf"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQueryEmptyAndInvalid(t *testing.T) {
	idx, _ := openIndex(t)

	results, err := idx.Query(context.Background(), "anything", 3, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = idx.Query(context.Background(), "anything", 0, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUpsertIsAdditive(t *testing.T) {
	idx, _ := openIndex(t)
	c := []models.Chunk{chunk("a.pdf", "same text")}
	require.NoError(t, idx.Upsert(context.Background(), c))
	require.NoError(t, idx.Upsert(context.Background(), c))
	assert.Equal(t, 2, idx.Count())
}

func TestEmbeddingFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	idx, err := Open(dir, "documents", false, failingEmbedder{})
	require.NoError(t, err)

	err = idx.Upsert(context.Background(), []models.Chunk{chunk("a.pdf", "x")})
	assert.ErrorIs(t, err, models.ErrEmbeddingFailure)
	_, err = idx.Query(context.Background(), "x", 1, nil)
	assert.ErrorIs(t, err, models.ErrEmbeddingFailure)
}

func TestOpenUnavailableLocation(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, writeFile(file))
	_, err := Open(filepath.Join(file, "index"), "documents", false, embedding.NewHashEmbedder(8))
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestPersistsAcrossOpen(t *testing.T) {
	idx, dir := openIndex(t)
	seed(t, idx)

	reopened, err := Open(dir, "documents", false, embedding.NewHashEmbedder(128))
	require.NoError(t, err)
	assert.Equal(t, 5, reopened.Count())
}

func TestSources(t *testing.T) {
	idx, _ := openIndex(t)
	seed(t, idx)

	sources, err := idx.Sources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, sources)
}

func TestRebuildExcludingKeepsOtherSources(t *testing.T) {
	idx, dir := openIndex(t)
	seed(t, idx)
	ctx := context.Background()

	removed, err := idx.RebuildExcluding(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 2, idx.Count())

	results, err := idx.Query(ctx, "interest rate", 5, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "b.pdf", r.Chunk.Source())
	}

	reopened, err := Open(dir, "documents", false, embedding.NewHashEmbedder(128))
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())

	siblings, err := filepath.Glob(dir + ".*")
	require.NoError(t, err)
	assert.Empty(t, siblings)

	removed, err = idx.RebuildExcluding(ctx, "missing.pdf")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRebuildWriteFailureLeavesOriginal(t *testing.T) {
	idx, dir := openIndex(t)
	seed(t, idx)
	idx.open = func(path string, compress bool) (*chromem.DB, error) {
		if strings.Contains(path, ".rebuild-") {
			return nil, errors.New("disk full")
		}
		return chromem.NewPersistentDB(path, compress)
	}

	_, err := idx.RebuildExcluding(context.Background(), "a.pdf")
	require.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrIndexLeftEmpty)
	assert.Equal(t, 5, idx.Count())

	reopened, err := Open(dir, "documents", false, embedding.NewHashEmbedder(128))
	require.NoError(t, err)
	assert.Equal(t, 5, reopened.Count())
}

func TestRebuildSwapFailureRestoresOriginal(t *testing.T) {
	idx, _ := openIndex(t)
	seed(t, idx)
	idx.rename = func(oldpath, newpath string) error {
		if strings.Contains(oldpath, ".rebuild-") {
			return errors.New("cross-device link")
		}
		return renameDir(oldpath, newpath)
	}

	_, err := idx.RebuildExcluding(context.Background(), "a.pdf")
	require.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrIndexLeftEmpty)
	assert.Equal(t, 5, idx.Count())

	results, err := idx.Query(context.Background(), "terminate", 5, map[string]string{models.MetaSource: "a.pdf"})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRebuildLeftEmptyWhenRestoreFails(t *testing.T) {
	idx, _ := openIndex(t)
	seed(t, idx)
	idx.rename = func(oldpath, newpath string) error {
		if strings.Contains(oldpath, ".rebuild-") || strings.Contains(oldpath, ".old-") {
			return errors.New("permission denied")
		}
		return renameDir(oldpath, newpath)
	}

	_, err := idx.RebuildExcluding(context.Background(), "a.pdf")
	require.ErrorIs(t, err, ErrIndexLeftEmpty)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "index left empty")
	assert.Zero(t, idx.Count())

	results, err := idx.Query(context.Background(), "interest", 3, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteSource(t *testing.T) {
	idx, _ := openIndex(t)
	seed(t, idx)

	require.NoError(t, idx.DeleteSource(context.Background(), "b.pdf"))
	assert.Equal(t, 3, idx.Count())
	sources, err := idx.Sources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, sources)

	assert.ErrorIs(t, idx.DeleteSource(context.Background(), ""), models.ErrInvalidInput)
}

func TestReset(t *testing.T) {
	idx, _ := openIndex(t)
	seed(t, idx)
	require.NoError(t, idx.Reset(context.Background()))
	assert.Zero(t, idx.Count())
	require.NoError(t, idx.Upsert(context.Background(), []models.Chunk{chunk("c.pdf", "after reset")}))
	assert.Equal(t, 1, idx.Count())
}

func TestExportImport(t *testing.T) {
	idx, _ := openIndex(t)
	seed(t, idx)
	ctx := context.Background()
	backup := filepath.Join(t.TempDir(), "backup.gob")
	key := strings.Repeat("k", 32)

	require.NoError(t, idx.Export(ctx, backup, key))
	assert.ErrorIs(t, idx.Export(ctx, backup, "short"), models.ErrInvalidInput)

	other, _ := openIndex(t)
	n, err := other.Import(ctx, backup, key)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, other.Count())

	results, err := other.Query(ctx, "confidential", 1, map[string]string{models.MetaSource: "b.pdf"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Content, "Confidential")
}
