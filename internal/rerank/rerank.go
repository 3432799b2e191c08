package rerank

import (
	"context"
	"fmt"
	"sort"

	"intellidoc/internal/config"
	"intellidoc/internal/models"
)

// Reranker orders candidates by a pairwise relevance model.
type Reranker struct {
	scorer models.Scorer
}

func New(scorer models.Scorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// FromConfig picks the cross-encoder when a server URL is configured.
func FromConfig(cfg config.RerankerConfig) *Reranker {
	if cfg.Provider == "cross-encoder" && cfg.BaseURL != "" {
		return New(NewCrossEncoder(cfg))
	}
	return New(Lexical{})
}

// Rerank scores every candidate against question and returns the best topK, highest first.
// Equal scores keep their input order. topK <= 0 selects the default.
func (r *Reranker) Rerank(ctx context.Context, candidates []models.Chunk, question string, topK int) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Content
	}
	scores, err := r.scorer.Score(ctx, question, passages)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("rerank: scorer returned %d scores for %d candidates", len(scores), len(candidates))
	}

	out := make([]models.ScoredChunk, len(candidates))
	for i, c := range candidates {
		out[i] = models.ScoredChunk{Chunk: c, Score: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
