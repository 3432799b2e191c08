package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"intellidoc/internal/config"
	"intellidoc/internal/helper"
	"intellidoc/internal/models"
)

type Reranker interface {
	Rerank(ctx context.Context, candidates []models.Chunk, question string, topK int) ([]models.ScoredChunk, error)
}

// Options narrows a question. Zero values use the configured defaults.
type Options struct {
	K      int
	Source string
}

type RAG struct {
	index      models.VectorIndex
	reranker   Reranker
	generator  models.Generator
	topK       int
	candidates int
}

func NewRAG(index models.VectorIndex, reranker Reranker, generator models.Generator, cfg config.RAGConfig) *RAG {
	r := &RAG{
		index:      index,
		reranker:   reranker,
		generator:  generator,
		topK:       cfg.TopK,
		candidates: cfg.Candidates,
	}
	if r.topK <= 0 {
		r.topK = models.DefaultTopK
	}
	if r.candidates <= 0 {
		r.candidates = models.DefaultCandidates
	}
	return r
}

// Ask retrieves candidates, drops duplicates, reranks and asks the generator to answer from them.
func (r *RAG) Ask(ctx context.Context, question string, opts Options) (models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Answer{}, fmt.Errorf("%w: empty question", models.ErrInvalidInput)
	}
	k := opts.K
	if k <= 0 {
		k = r.topK
	}

	var filter map[string]string
	if opts.Source != "" {
		filter = map[string]string{models.MetaSource: opts.Source}
	}
	found, err := r.index.Query(ctx, question, max(r.candidates, k), filter)
	if err != nil {
		return models.Answer{}, fmt.Errorf("rag: retrieve: %w", err)
	}
	if len(found) == 0 {
		return models.Answer{Text: models.NoContextAnswer, Sources: []map[string]string{}}, nil
	}

	candidates := Dedupe(models.Chunks(found))
	log.Debug().Int("retrieved", len(found)).Int("unique", len(candidates)).Str("source", opts.Source).Msg("retrieved candidates")

	top, err := r.reranker.Rerank(ctx, candidates, question, k)
	if err != nil {
		return models.Answer{}, fmt.Errorf("rag: %w", err)
	}
	chunks := models.Chunks(top)

	answer, err := r.generator.Complete(ctx, fmt.Sprintf(models.QAPromptTemplate, BuildContext(chunks), question))
	if err != nil {
		return models.Answer{}, fmt.Errorf("%w: rag: %v", models.ErrGeneratorFailure, err)
	}

	sources := make([]map[string]string, len(chunks))
	for i, c := range chunks {
		sources[i] = models.CopyMetadata(c.Metadata)
	}
	return models.Answer{Text: answer, Sources: sources}, nil
}

// Compare asks the generator to list the differences between two texts.
func (r *RAG) Compare(ctx context.Context, doc1, doc2 string) (string, error) {
	if strings.TrimSpace(doc1) == "" || strings.TrimSpace(doc2) == "" {
		return "", fmt.Errorf("%w: both documents are required", models.ErrInvalidInput)
	}
	out, err := r.generator.Complete(ctx, fmt.Sprintf(models.ComparePromptTemplate, doc1, doc2))
	if err != nil {
		return "", fmt.Errorf("%w: compare: %v", models.ErrGeneratorFailure, err)
	}
	return out, nil
}

// Dedupe keeps the first chunk for each (source, whitespace-normalised content) pair.
func Dedupe(chunks []models.Chunk) []models.Chunk {
	type key struct{ source, content string }
	seen := make(map[key]struct{}, len(chunks))
	out := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		k := key{c.Source(), helper.NormalizeSpace(c.Content)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// BuildContext labels each chunk with its source and chunk number.
func BuildContext(chunks []models.Chunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		n := c.Metadata[models.MetaChunk]
		if n == "" {
			n = fmt.Sprint(i + 1)
		}
		blocks[i] = fmt.Sprintf("[%s, chunk %s]\n%s", c.Source(), n, c.Content)
	}
	return strings.Join(blocks, models.ContextSeparator)
}
