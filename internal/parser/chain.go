package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"intellidoc/internal/models"
)

// Chain tries its stages in order and keeps the first non-blank text.
type Chain struct {
	stages []Stage
}

func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// DefaultPDFChain is native, then pdfcpu, then OCR when a recognizer is given.
func DefaultPDFChain(rec Recognizer) *Chain {
	stages := []Stage{NativeStage{}, ContentStage{}}
	if rec != nil {
		stages = append(stages, OCRStage{Recognizer: rec})
	}
	return NewChain(stages...)
}

func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

// Extract returns a single document with source set to name and extractor set to the stage
// that produced the text.
func (c *Chain) Extract(ctx context.Context, name string, data []byte) ([]models.Document, error) {
	var failures []string
	for _, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := runStage(ctx, stage, data)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("stage", stage.Name()).Str("source", name).Msg("extraction stage failed")
			failures = append(failures, fmt.Sprintf("%s: %v", stage.Name(), err))
			continue
		case strings.TrimSpace(text) == "":
			log.Debug().Str("stage", stage.Name()).Str("source", name).Msg("extraction stage returned no text")
			failures = append(failures, stage.Name()+": empty")
			continue
		}
		log.Info().Str("stage", stage.Name()).Str("source", name).Int("chars", len(text)).Msg("extracted text")
		return []models.Document{{
			Content: text,
			Metadata: map[string]string{
				models.MetaSource:    name,
				models.MetaExtractor: stage.Name(),
			},
		}}, nil
	}
	return nil, fmt.Errorf("%w: %s: %s", models.ErrExtractionFailed, name, strings.Join(failures, "; "))
}

// pdf libraries panic on some malformed inputs
func runStage(ctx context.Context, stage Stage, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Extract(ctx, data)
}
