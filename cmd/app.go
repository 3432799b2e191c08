package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"intellidoc/internal/chromemdb"
	"intellidoc/internal/config"
	"intellidoc/internal/db"
	"intellidoc/internal/embedding"
	"intellidoc/internal/legal"
	"intellidoc/internal/llmservice"
	"intellidoc/internal/models"
	"intellidoc/internal/parser"
	"intellidoc/internal/rag"
	"intellidoc/internal/rerank"
	"intellidoc/internal/risk"
	"intellidoc/internal/service"
)

// app is the wired set of components for one command.
type app struct {
	cfg     *config.Config
	parser  *parser.Parser
	service *service.Service
	rag     *rag.RAG
	closers []func() error
}

// newApp wires storage, extraction and rules. The chat model is only built when withGenerator is set.
func newApp(ctx context.Context, cfg *config.Config, withGenerator bool) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	embedder, err := embedding.New(ctx, cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Size > 0 || cfg.Cache.BadgerDir != "" {
		cached, err := embedding.NewCachingEmbedder(embedder, cfg.EmbedLLM.Provider+"/"+cfg.EmbedLLM.Model, cfg.Cache.Size, cfg.Cache.BadgerDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cached.Close)
		embedder = cached
	}

	index, err := openIndex(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, index.Close)

	registry, err := db.OpenRegistry(ctx, cfg.Storage.RegistryPath, cfg.Database.Debug)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, registry.Close)

	scorer := risk.Default()
	if len(cfg.Legal.Severity) > 0 {
		if scorer, err = risk.New(cfg.Legal.Severity); err != nil {
			return nil, err
		}
	}

	a.parser = parser.FromConfig(cfg.Extraction)
	a.service, err = service.New(cfg, index, registry, a.parser, legal.NewLoader(cfg.Legal.RulesDir), scorer)
	if err != nil {
		return nil, err
	}

	if withGenerator {
		gen, err := llmservice.New(ctx, cfg.ChatLLM)
		if err != nil {
			return nil, err
		}
		a.rag = rag.NewRAG(index, rerank.FromConfig(cfg.Reranker), gen, cfg.RAG)
	}
	return a, nil
}

func openIndex(ctx context.Context, cfg *config.Config, embedder models.Embedder) (models.VectorIndex, error) {
	switch cfg.Storage.Backend {
	case "pgvector":
		log.Info().Msg("using pgvector index")
		return db.OpenPGIndex(ctx, &cfg.Database, embedder)
	case "chromem", "":
		log.Info().Str("dir", cfg.Storage.IndexDir).Str("collection", cfg.Storage.Collection).Msg("using chromem index")
		return chromemdb.Open(cfg.Storage.IndexDir, cfg.Storage.Collection, cfg.Storage.Compress, embedder)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", models.ErrInvalidInput, cfg.Storage.Backend)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
