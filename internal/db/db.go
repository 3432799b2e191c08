package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"intellidoc/internal/config"
	"intellidoc/internal/models"
)

type ChunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            uuid.UUID         `bun:"id,pk,type:uuid"`
	Source        string            `bun:"source,notnull"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb,notnull"`
	Embedding     pgvector.Vector   `bun:"embedding,type:vector,notnull"`
	CreatedAt     time.Time         `bun:"created_at,notnull,default:current_timestamp"`

	Score float64 `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: database dsn is required", models.ErrInvalidInput)
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

var _ models.VectorIndex = (*PGIndex)(nil)

// PGIndex stores chunks in PostgreSQL with the pgvector extension.
type PGIndex struct {
	db       *bun.DB
	embedder models.Embedder
}

// OpenPGIndex connects and creates the extension, table and indexes when missing.
func OpenPGIndex(ctx context.Context, cfg *config.DatabaseConfig, embedder models.Embedder) (*PGIndex, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	idx := &PGIndex{db: NewDB(sqldb, cfg.Debug), embedder: embedder}
	if err := idx.InitDB(ctx, cfg.Dimensions); err != nil {
		idx.db.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PGIndex) InitDB(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: vector dimensions must be positive", models.ErrInvalidInput)
	}
	if _, err := p.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("%w: create extension: %v", models.ErrStoreUnavailable, err)
	}
	_, err := p.db.NewCreateTable().
		Model((*ChunkRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: create table: %v", models.ErrStoreUnavailable, err)
	}
	// fixes the vector width; fails when stored rows have another dimension
	alter := "ALTER TABLE chunks ALTER COLUMN embedding TYPE vector(" + strconv.Itoa(dimensions) + ")"
	if _, err := p.db.ExecContext(ctx, alter); err != nil {
		return fmt.Errorf("%w: set vector dimensions: %v", models.ErrStoreUnavailable, err)
	}
	_, err = p.db.NewCreateIndex().
		Model((*ChunkRow)(nil)).
		Index("chunks_source_idx").
		IfNotExists().
		Column("source").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: create index: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (p *PGIndex) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", models.ErrEmbeddingFailure, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: upsert: got %d vectors for %d chunks", models.ErrEmbeddingFailure, len(vectors), len(chunks))
	}
	rows := make([]ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = ChunkRow{
			ID:        uuid.New(),
			Source:    c.Source(),
			Content:   c.Content,
			Metadata:  models.CopyMetadata(c.Metadata),
			Embedding: pgvector.NewVector(vectors[i]),
		}
	}
	if _, err := p.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("%w: store chunks: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (p *PGIndex) Query(ctx context.Context, text string, k int, filter map[string]string) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidInput, k)
	}
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", models.ErrEmbeddingFailure, err)
	}
	vec := pgvector.NewVector(vector)

	var rows []ChunkRow
	q := p.db.NewSelect().
		Model(&rows).
		Column("id", "source", "content", "metadata").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec).
		OrderExpr("embedding <=> ?", vec).
		Limit(k)
	if len(filter) > 0 {
		raw, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("%w: filter: %v", models.ErrInvalidInput, err)
		}
		q = q.Where("metadata @> ?::jsonb", string(raw))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: search chunks: %v", models.ErrStoreUnavailable, err)
	}
	out := make([]models.ScoredChunk, len(rows))
	for i, r := range rows {
		out[i] = models.ScoredChunk{
			Chunk: models.Chunk{Content: r.Content, Metadata: r.Metadata},
			Score: r.Score,
		}
	}
	return out, nil
}

// RebuildExcluding deletes the rows of source in one transaction.
func (p *PGIndex) RebuildExcluding(ctx context.Context, source string) (int, error) {
	if source == "" {
		return 0, fmt.Errorf("%w: source is required", models.ErrInvalidInput)
	}
	var removed int64
	err := p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*ChunkRow)(nil)).Where("source = ?", source).Exec(ctx)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: rebuild: %v", models.ErrStoreUnavailable, err)
	}
	log.Info().Str("source", source).Int64("removed", removed).Msg("Removed source from pgvector index")
	return int(removed), nil
}

func (p *PGIndex) DeleteSource(ctx context.Context, source string) error {
	_, err := p.RebuildExcluding(ctx, source)
	return err
}

func (p *PGIndex) Sources(ctx context.Context) ([]string, error) {
	var sources []string
	err := p.db.NewSelect().
		Model((*ChunkRow)(nil)).
		Distinct().
		Column("source").
		Order("source").
		Scan(ctx, &sources)
	if err != nil {
		return nil, fmt.Errorf("%w: sources: %v", models.ErrStoreUnavailable, err)
	}
	return sources, nil
}

func (p *PGIndex) Count() int {
	n, err := p.db.NewSelect().Model((*ChunkRow)(nil)).Count(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("count chunks failed")
		return 0
	}
	return n
}

// drop all chunks
func (p *PGIndex) Reset(ctx context.Context) error {
	if _, err := p.db.NewTruncateTable().Model((*ChunkRow)(nil)).Exec(ctx); err != nil {
		return fmt.Errorf("%w: reset: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (p *PGIndex) Close() error {
	return p.db.Close()
}
