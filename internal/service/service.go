package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"intellidoc/internal/chunker"
	"intellidoc/internal/config"
	"intellidoc/internal/helper"
	"intellidoc/internal/legal"
	"intellidoc/internal/models"
	"intellidoc/internal/parser"
	"intellidoc/internal/risk"
)

// Extractor turns an uploaded file into text documents.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) ([]models.Document, error)
}

// Registry records uploaded raw files.
type Registry interface {
	Add(ctx context.Context, u *models.Upload) error
	List(ctx context.Context) ([]models.Upload, error)
	DeleteByFilename(ctx context.Context, filename string) ([]models.Upload, error)
	Clear(ctx context.Context) error
}

type Service struct {
	index       models.VectorIndex
	registry    Registry
	extractor   Extractor
	rules       *legal.Loader
	scorer      *risk.Scorer
	uploadsDir  string
	ingestSplit *chunker.Splitter
	legalSplit  *chunker.Splitter
}

func New(cfg *config.Config, index models.VectorIndex, registry Registry, extractor Extractor, rules *legal.Loader, scorer *risk.Scorer) (*Service, error) {
	ingest, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.Splitter)
	if err != nil {
		return nil, fmt.Errorf("service: ingest splitter: %w", err)
	}
	legalSplit, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.LegalChunkOverlap, cfg.RAG.Splitter)
	if err != nil {
		return nil, fmt.Errorf("service: legal splitter: %w", err)
	}
	if err := helper.CreateFolder(cfg.Storage.UploadsDir); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return &Service{
		index:       index,
		registry:    registry,
		extractor:   extractor,
		rules:       rules,
		scorer:      scorer,
		uploadsDir:  cfg.Storage.UploadsDir,
		ingestSplit: ingest,
		legalSplit:  legalSplit,
	}, nil
}

type IngestResult struct {
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	NumChunks int    `json:"num_chunks"`
}

// Ingest extracts, chunks and indexes the file. The raw file is stored and registered only
// once its chunks are in the index.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (IngestResult, error) {
	name, err := checkUpload(filename, data)
	if err != nil {
		return IngestResult{}, err
	}
	docs, err := s.extractor.Extract(ctx, name, data)
	if err != nil {
		return IngestResult{}, err
	}
	upload, err := s.commit(ctx, name, data, "", docs, s.ingestSplit)
	if err != nil {
		return IngestResult{}, err
	}
	log.Info().Str("file", upload.Filename).Int("chunks", upload.Chunks).Msg("document ingested")
	return IngestResult{Status: "ok", Filename: upload.Filename, NumChunks: upload.Chunks}, nil
}

type LegalResult struct {
	Status       string                         `json:"status"`
	Filename     string                         `json:"filename"`
	DocumentType string                         `json:"document_type"`
	LegalCheck   map[string]models.ClauseResult `json:"legal_check"`
	Risk         models.Assessment              `json:"risk"`
	NumChunks    int                            `json:"num_chunks"`
}

// LegalCheck runs the clause rules for documentType over the file, scores the missing clauses
// and indexes the text.
func (s *Service) LegalCheck(ctx context.Context, filename, documentType string, data []byte) (LegalResult, error) {
	rules, err := s.rules.Load(documentType)
	if err != nil {
		return LegalResult{}, err
	}
	name, err := checkUpload(filename, data)
	if err != nil {
		return LegalResult{}, err
	}
	docs, err := s.extractor.Extract(ctx, name, data)
	if err != nil {
		return LegalResult{}, err
	}

	report := s.Report(joinText(docs), rules)
	upload, err := s.commit(ctx, name, data, documentType, docs, s.legalSplit)
	if err != nil {
		return LegalResult{}, err
	}
	log.Info().
		Str("file", upload.Filename).
		Str("document_type", documentType).
		Strs("missing", report.Missing).
		Int("risk", report.Risk.Score).
		Msg("legal check complete")

	return LegalResult{
		Status:       "ok",
		Filename:     upload.Filename,
		DocumentType: documentType,
		LegalCheck:   report.Results,
		Risk:         report.Risk,
		NumChunks:    upload.Chunks,
	}, nil
}

// Report checks text against rules without touching storage.
func (s *Service) Report(text string, rules *legal.RuleSet) models.Report {
	results := legal.Check(text, rules)
	missing := legal.Missing(results)
	if missing == nil {
		missing = []string{}
	}
	return models.Report{
		DocumentType: rules.DocumentType,
		Results:      results,
		Missing:      missing,
		Risk:         s.scorer.Assess(missing),
	}
}

// RuleTypes lists the document types with rule sets.
func (s *Service) RuleTypes() ([]string, error) {
	return s.rules.Types()
}

// checkUpload returns the base name of an acceptable upload.
func checkUpload(filename string, data []byte) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("%w: missing filename", models.ErrInvalidInput)
	}
	if !parser.Supported(name) {
		return "", fmt.Errorf("%w: unsupported file type %q, expected one of %s",
			models.ErrInvalidInput, filepath.Ext(name), strings.Join(parser.Extensions(), " "))
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", models.ErrInvalidInput, name)
	}
	return name, nil
}

// commit chunks and indexes docs, then moves the raw file into place and registers it.
// A failure before the index write leaves the stored file and the registry unchanged.
func (s *Service) commit(ctx context.Context, name string, data []byte, documentType string, docs []models.Document, splitter *chunker.Splitter) (*models.Upload, error) {
	for i := range docs {
		docs[i] = docs[i].WithMetadata(models.MetaSource, name)
	}
	chunks, err := splitter.Split(docs)
	if err != nil {
		return nil, err
	}

	tmp, err := writeTemp(s.uploadsDir, name, data)
	if err != nil {
		return nil, err
	}
	if err := s.index.Upsert(ctx, chunks); err != nil {
		removeTemp(tmp)
		return nil, err
	}
	path := filepath.Join(s.uploadsDir, name)
	if err := os.Rename(tmp, path); err != nil {
		removeTemp(tmp)
		return nil, fmt.Errorf("%w: save upload: %v", models.ErrStoreUnavailable, err)
	}

	upload := &models.Upload{
		Filename:     name,
		Path:         path,
		SHA256:       helper.SHA256Hex(data),
		Size:         int64(len(data)),
		Chunks:       len(chunks),
		DocumentType: documentType,
	}
	if err := s.registry.Add(ctx, upload); err != nil {
		return nil, err
	}
	return upload, nil
}

func writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: save upload: %v", models.ErrStoreUnavailable, err)
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		removeTemp(f.Name())
		return "", fmt.Errorf("%w: save upload: %v", models.ErrStoreUnavailable, err)
	}
	return f.Name(), nil
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove temp upload")
	}
}

func joinText(docs []models.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n\n")
}
