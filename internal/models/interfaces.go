package models

import "context"

// Embedder turns text into vectors. It has the same method set as
// langchaingo's embeddings.Embedder so *embeddings.EmbedderImpl satisfies it.
// Implementations must be deterministic for identical input.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator is an opaque blocking prompt completion.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Scorer assigns a pairwise relevance score to every passage for the question.
type Scorer interface {
	Score(ctx context.Context, question string, passages []string) ([]float64, error)
}

// VectorIndex is the persistent similarity index contract.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []Chunk) error
	Query(ctx context.Context, text string, k int, filter map[string]string) ([]ScoredChunk, error)
	RebuildExcluding(ctx context.Context, source string) (int, error)
	DeleteSource(ctx context.Context, source string) error
	Sources(ctx context.Context) ([]string, error)
	Count() int
	Reset(ctx context.Context) error
	Close() error
}
