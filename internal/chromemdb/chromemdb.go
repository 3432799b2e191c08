package chromemdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"intellidoc/internal/models"
)

// probe text used to enumerate the collection; any vector of the right dimension works
const probeText = "document"

var _ models.VectorIndex = (*Index)(nil)

// ErrIndexLeftEmpty is returned when a rebuild could neither install the new index nor
// restore the previous one. The index has no entries until documents are ingested again.
var ErrIndexLeftEmpty = fmt.Errorf("%w: index left empty", models.ErrStoreUnavailable)

// Index is a persistent chromem-go collection. The mutex guards the db and collection
// handles, which are replaced when the index is rebuilt or reset.
type Index struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection

	dir      string
	name     string
	compress bool
	embedder models.Embedder

	// replaced in tests
	rename func(oldpath, newpath string) error
	open   func(path string, compress bool) (*chromem.DB, error)
}

// Open loads or creates the collection stored under dir.
func Open(dir, collectionName string, compress bool, embedder models.Embedder) (*Index, error) {
	if dir == "" || collectionName == "" {
		return nil, fmt.Errorf("%w: index directory and collection are required", models.ErrInvalidInput)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", models.ErrInvalidInput)
	}
	idx := &Index{
		dir:      dir,
		name:     collectionName,
		compress: compress,
		embedder: embedder,
		rename:   os.Rename,
		open:     chromem.NewPersistentDB,
	}
	db, col, err := idx.load(dir)
	if err != nil {
		return nil, err
	}
	idx.db, idx.collection = db, col
	log.Debug().Str("dir", dir).Str("collection", collectionName).Int("count", col.Count()).Msg("Opened vector index")
	return idx, nil
}

func (i *Index) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return i.embedder.EmbedQuery(ctx, text)
	}
}

func (i *Index) load(path string) (*chromem.DB, *chromem.Collection, error) {
	db, err := i.open(path, i.compress)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open database %s: %v", models.ErrStoreUnavailable, path, err)
	}
	col, err := db.GetOrCreateCollection(i.name, nil, i.embeddingFunc())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to create/get collection: %v", models.ErrStoreUnavailable, err)
	}
	return db, col, nil
}

// Upsert embeds and stores every chunk under a fresh id. Identical content stored twice
// yields two entries.
func (i *Index) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for j, c := range chunks {
		texts[j] = c.Content
	}
	vectors, err := i.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", models.ErrEmbeddingFailure, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: upsert: got %d vectors for %d chunks", models.ErrEmbeddingFailure, len(vectors), len(chunks))
	}

	docs := make([]chromem.Document, len(chunks))
	for j, c := range chunks {
		docs[j] = chromem.Document{
			ID:        uuid.NewString(),
			Content:   c.Content,
			Metadata:  models.CopyMetadata(c.Metadata),
			Embedding: vectors[j],
		}
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Query returns up to k chunks most similar to text whose metadata matches every filter entry.
func (i *Index) Query(ctx context.Context, text string, k int, filter map[string]string) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidInput, k)
	}
	vector, err := i.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", models.ErrEmbeddingFailure, err)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	n := i.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}
	results, err := i.collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %v", models.ErrStoreUnavailable, err)
	}
	out := make([]models.ScoredChunk, len(results))
	for j, r := range results {
		out[j] = models.ScoredChunk{
			Chunk: models.Chunk{Content: r.Content, Metadata: models.CopyMetadata(r.Metadata)},
			Score: float64(r.Similarity),
		}
	}
	return out, nil
}

// all returns every stored document including its vector. Caller holds the lock.
func (i *Index) all(ctx context.Context, col *chromem.Collection) ([]chromem.Document, error) {
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	probe, err := i.embedder.EmbedQuery(ctx, probeText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingFailure, err)
	}
	results, err := col.QueryEmbedding(ctx, probe, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list documents: %v", models.ErrStoreUnavailable, err)
	}
	docs := make([]chromem.Document, len(results))
	for j, r := range results {
		docs[j] = chromem.Document{ID: r.ID, Content: r.Content, Metadata: r.Metadata, Embedding: r.Embedding}
	}
	return docs, nil
}

// Sources lists the distinct source values in the index.
func (i *Index) Sources(ctx context.Context) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	docs, err := i.all(ctx, i.collection)
	if err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	seen := map[string]bool{}
	var out []string
	for _, d := range docs {
		if s := d.Metadata[models.MetaSource]; s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DeleteSource removes the entries of one source in place.
func (i *Index) DeleteSource(ctx context.Context, source string) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", models.ErrInvalidInput)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.collection.Delete(ctx, map[string]string{models.MetaSource: source}, nil); err != nil {
		return fmt.Errorf("%w: delete %s: %v", models.ErrStoreUnavailable, source, err)
	}
	return nil
}

// RebuildExcluding writes a copy of the index without source into a sibling directory and
// swaps it in by rename. Stored vectors are reused. When the new copy cannot be written the
// original is untouched. When the swap fails the original is moved back; if that also fails
// the index is left empty and must be re-ingested.
func (i *Index) RebuildExcluding(ctx context.Context, source string) (int, error) {
	if source == "" {
		return 0, fmt.Errorf("%w: source is required", models.ErrInvalidInput)
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	docs, err := i.all(ctx, i.collection)
	if err != nil {
		return 0, fmt.Errorf("rebuild: %w", err)
	}
	keep := docs[:0]
	for _, d := range docs {
		if d.Metadata[models.MetaSource] != source {
			keep = append(keep, d)
		}
	}
	removed := len(docs) - len(keep)
	if removed == 0 {
		return 0, nil
	}

	suffix := uuid.NewString()
	next := i.dir + ".rebuild-" + suffix
	if err := i.write(ctx, next, keep); err != nil {
		os.RemoveAll(next)
		return 0, fmt.Errorf("rebuild: %w", err)
	}

	old := i.dir + ".old-" + suffix
	if err := i.rename(i.dir, old); err != nil {
		os.RemoveAll(next)
		return 0, fmt.Errorf("%w: rebuild: move current index aside: %v", models.ErrStoreUnavailable, err)
	}
	if err := i.rename(next, i.dir); err != nil {
		os.RemoveAll(next)
		if rerr := i.rename(old, i.dir); rerr != nil {
			i.leaveEmpty()
			log.Error().Err(rerr).Str("dir", i.dir).Str("backup", old).Msg("index left empty, re-ingestion required")
			return 0, fmt.Errorf("rebuild: %w: swap: %v; restore: %v", ErrIndexLeftEmpty, err, rerr)
		}
		return 0, fmt.Errorf("%w: rebuild: swap new index: %v", models.ErrStoreUnavailable, err)
	}

	db, col, err := i.load(i.dir)
	if err != nil {
		i.leaveEmpty()
		return 0, fmt.Errorf("rebuild: %w: %w", ErrIndexLeftEmpty, err)
	}
	i.db, i.collection = db, col
	if err := os.RemoveAll(old); err != nil {
		log.Warn().Err(err).Str("dir", old).Msg("failed to remove previous index")
	}
	log.Info().Str("source", source).Int("removed", removed).Int("remaining", len(keep)).Msg("Rebuilt vector index")
	return removed, nil
}

func (i *Index) write(ctx context.Context, path string, docs []chromem.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	_, col, err := i.load(path)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: write rebuilt index: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// leaveEmpty swaps in an in-memory collection so later calls fail soft instead of panicking.
func (i *Index) leaveEmpty() {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(i.name, nil, i.embeddingFunc())
	if err != nil {
		return
	}
	i.db, i.collection = db, col
}

func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.collection.Count()
}

// Reset drops every entry.
func (i *Index) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.db.DeleteCollection(i.name); err != nil {
		return fmt.Errorf("%w: failed to drop collection: %v", models.ErrStoreUnavailable, err)
	}
	col, err := i.db.GetOrCreateCollection(i.name, nil, i.embeddingFunc())
	if err != nil {
		return fmt.Errorf("%w: failed to create/get collection: %v", models.ErrStoreUnavailable, err)
	}
	i.collection = col
	return nil
}

// Export writes the collection to a gob file, encrypted when key is set (32 bytes).
func (i *Index) Export(ctx context.Context, path, key string) error {
	if key != "" && len(key) != 32 {
		return fmt.Errorf("%w: encryption key must be 32 bytes", models.ErrInvalidInput)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	log.Debug().Str("collection", i.name).Str("file", path).Bool("compress", i.compress).Msg("Exporting collection")
	if err := i.db.ExportToFile(path, i.compress, key, i.name); err != nil {
		return fmt.Errorf("%w: failed to export database: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Import adds the entries of an exported collection to the index.
func (i *Index) Import(ctx context.Context, path, key string) (int, error) {
	tmp := chromem.NewDB()
	if err := tmp.ImportFromFile(path, key, i.name); err != nil {
		return 0, fmt.Errorf("%w: failed to import database: %v", models.ErrStoreUnavailable, err)
	}
	col := tmp.GetCollection(i.name, i.embeddingFunc())
	if col == nil {
		return 0, fmt.Errorf("%w: export has no collection %q", models.ErrInvalidInput, i.name)
	}
	docs, err := i.all(ctx, col)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("%w: failed to add documents: %v", models.ErrStoreUnavailable, err)
	}
	return len(docs), nil
}

func (i *Index) Close() error {
	return nil
}
