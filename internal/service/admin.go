package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"intellidoc/internal/models"
)

// Backup is implemented by indexes that can export an encrypted snapshot.
type Backup interface {
	Export(ctx context.Context, path, key string) error
	Import(ctx context.Context, path, key string) (int, error)
}

type Status struct {
	Status        string `json:"status"`
	IndexedChunks int    `json:"indexed_chunks"`
	IndexedDocs   int    `json:"indexed_docs"`
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	sources, err := s.index.Sources(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Status: "running", IndexedChunks: s.index.Count(), IndexedDocs: len(sources)}, nil
}

// Clear empties the index, the registry and the stored uploads.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.index.Reset(ctx); err != nil {
		return err
	}
	uploads, err := s.registry.List(ctx)
	if err != nil {
		return err
	}
	if err := s.registry.Clear(ctx); err != nil {
		return err
	}
	removeFiles(uploads)
	log.Info().Int("uploads", len(uploads)).Msg("database cleared")
	return nil
}

func (s *Service) Docs(ctx context.Context) ([]models.Upload, error) {
	return s.registry.List(ctx)
}

func (s *Service) Sources(ctx context.Context) ([]string, error) {
	return s.index.Sources(ctx)
}

type DeleteResult struct {
	Status        string `json:"status"`
	Source        string `json:"source"`
	RemovedChunks int    `json:"removed_chunks"`
	RemovedFiles  int    `json:"removed_files"`
}

// DeleteSource rebuilds the index without source and drops its uploads.
func (s *Service) DeleteSource(ctx context.Context, source string) (DeleteResult, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return DeleteResult{}, fmt.Errorf("%w: empty source", models.ErrInvalidInput)
	}
	removed, err := s.index.RebuildExcluding(ctx, source)
	if err != nil {
		return DeleteResult{}, err
	}
	uploads, err := s.registry.DeleteByFilename(ctx, source)
	if err != nil {
		return DeleteResult{}, err
	}
	removeFiles(uploads)
	log.Info().Str("source", source).Int("chunks", removed).Int("files", len(uploads)).Msg("source deleted")
	return DeleteResult{Status: "deleted", Source: source, RemovedChunks: removed, RemovedFiles: len(uploads)}, nil
}

func (s *Service) Export(ctx context.Context, path, key string) error {
	b, ok := s.index.(Backup)
	if !ok {
		return fmt.Errorf("%w: index backend does not support export", models.ErrInvalidInput)
	}
	return b.Export(ctx, path, key)
}

func (s *Service) Import(ctx context.Context, path, key string) (int, error) {
	b, ok := s.index.(Backup)
	if !ok {
		return 0, fmt.Errorf("%w: index backend does not support import", models.ErrInvalidInput)
	}
	return b.Import(ctx, path, key)
}

func removeFiles(uploads []models.Upload) {
	done := map[string]bool{}
	for _, u := range uploads {
		if u.Path == "" || done[u.Path] {
			continue
		}
		done[u.Path] = true
		if err := os.Remove(u.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", u.Path).Msg("failed to remove upload")
		}
	}
}
