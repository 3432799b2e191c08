package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"intellidoc/internal/helper"
)

const defaultHashDimensions = 384

// HashEmbedder is an offline bag-of-words embedder. Tokens are hashed into a fixed number of
// buckets and the vector is L2 normalised.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultHashDimensions
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimensions() int { return h.dim }

func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, h.dim)
	tokens := helper.Tokenize(text)
	if len(tokens) == 0 {
		// a zero vector has no direction
		v[0] = 1
		return v
	}
	for _, tok := range tokens {
		f := fnv.New32a()
		f.Write([]byte(tok))
		v[f.Sum32()%uint32(h.dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
