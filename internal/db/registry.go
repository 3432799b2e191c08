package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"intellidoc/internal/helper"
	"intellidoc/internal/models"
)

type UploadRow struct {
	bun.BaseModel `bun:"table:uploads,alias:u"`
	ID            string    `bun:"id,pk"`
	Filename      string    `bun:"filename,notnull"`
	Path          string    `bun:"path,notnull"`
	SHA256        string    `bun:"sha256,notnull"`
	Size          int64     `bun:"size,notnull"`
	Chunks        int       `bun:"chunks,notnull"`
	DocumentType  string    `bun:"document_type"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

func (r UploadRow) toModel() models.Upload {
	return models.Upload{
		ID:           r.ID,
		Filename:     r.Filename,
		Path:         r.Path,
		SHA256:       r.SHA256,
		Size:         r.Size,
		Chunks:       r.Chunks,
		DocumentType: r.DocumentType,
		CreatedAt:    r.CreatedAt,
	}
}

// Registry records uploaded raw files in SQLite.
type Registry struct {
	db *bun.DB
}

func OpenRegistry(ctx context.Context, path string, debug bool) (*Registry, error) {
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("%w: registry: %v", models.ErrStoreUnavailable, err)
	}
	sqldb, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("%w: registry: %v", models.ErrStoreUnavailable, err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	if _, err := db.NewCreateTable().Model((*UploadRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: registry: create table: %v", models.ErrStoreUnavailable, err)
	}
	return &Registry{db: db}, nil
}

// Add assigns an id and creation time when they are empty.
func (r *Registry) Add(ctx context.Context, u *models.Upload) error {
	if u.ID == "" {
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	row := UploadRow{
		ID:           u.ID,
		Filename:     u.Filename,
		Path:         u.Path,
		SHA256:       u.SHA256,
		Size:         u.Size,
		Chunks:       u.Chunks,
		DocumentType: u.DocumentType,
		CreatedAt:    u.CreatedAt,
	}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: registry add: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Registry) SetChunks(ctx context.Context, id string, chunks int) error {
	_, err := r.db.NewUpdate().
		Model((*UploadRow)(nil)).
		Set("chunks = ?", chunks).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: registry update: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// List returns uploads newest first.
func (r *Registry) List(ctx context.Context) ([]models.Upload, error) {
	var rows []UploadRow
	if err := r.db.NewSelect().Model(&rows).Order("created_at DESC", "id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: registry list: %v", models.ErrStoreUnavailable, err)
	}
	out := make([]models.Upload, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

func (r *Registry) ByFilename(ctx context.Context, filename string) ([]models.Upload, error) {
	var rows []UploadRow
	err := r.db.NewSelect().Model(&rows).Where("filename = ?", filename).Order("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: registry lookup: %v", models.ErrStoreUnavailable, err)
	}
	out := make([]models.Upload, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// DeleteByFilename returns the removed rows so callers can delete the stored files.
func (r *Registry) DeleteByFilename(ctx context.Context, filename string) ([]models.Upload, error) {
	rows, err := r.ByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.NewDelete().Model((*UploadRow)(nil)).Where("filename = ?", filename).Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: registry delete: %v", models.ErrStoreUnavailable, err)
	}
	return rows, nil
}

func (r *Registry) Clear(ctx context.Context) error {
	if _, err := r.db.NewDelete().Model((*UploadRow)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		return fmt.Errorf("%w: registry clear: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}
