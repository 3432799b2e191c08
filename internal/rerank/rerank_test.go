package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellidoc/internal/config"
	"intellidoc/internal/models"
)

// tableScorer scores a passage by looking it up.
type tableScorer map[string]float64

func (s tableScorer) Score(ctx context.Context, question string, passages []string) ([]float64, error) {
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = s[p]
	}
	return out, nil
}

type errScorer struct{}

func (errScorer) Score(ctx context.Context, question string, passages []string) ([]float64, error) {
	return nil, errors.New("model crashed")
}

func chunks(contents ...string) []models.Chunk {
	out := make([]models.Chunk, len(contents))
	for i, c := range contents {
		out[i] = models.Chunk{Content: c, Metadata: map[string]string{models.MetaSource: "a.pdf"}}
	}
	return out
}

func contents(scored []models.ScoredChunk) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Chunk.Content
	}
	return out
}

func TestRerankOrdersByScore(t *testing.T) {
	r := New(tableScorer{"a": 0.1, "b": 0.9, "c": 0.5, "d": 0.7})

	got, err := r.Rerank(context.Background(), chunks("a", "b", "c", "d"), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "c"}, contents(got))
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRerankDefaultsTopK(t *testing.T) {
	r := New(tableScorer{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5})
	got, err := r.Rerank(context.Background(), chunks("a", "b", "c", "d", "e"), "q", 0)
	require.NoError(t, err)
	assert.Len(t, got, models.DefaultTopK)

	got, err = r.Rerank(context.Background(), chunks("a"), "q", 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = r.Rerank(context.Background(), nil, "q", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRerankTiesKeepInputOrder(t *testing.T) {
	r := New(tableScorer{"x": 0.5, "y": 0.5, "z": 0.9})
	got, err := r.Rerank(context.Background(), chunks("x", "y", "z"), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x", "y"}, contents(got))
}

func TestRerankPermutationInvariant(t *testing.T) {
	scores := tableScorer{}
	var items []string
	for i := 0; i < 12; i++ {
		s := string(rune('a' + i))
		items = append(items, s)
		scores[s] = float64(i*7%12) / 12
	}
	r := New(scores)
	want, err := r.Rerank(context.Background(), chunks(items...), "q", 5)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	for iter := 0; iter < 20; iter++ {
		shuffled := append([]string(nil), items...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := r.Rerank(context.Background(), chunks(shuffled...), "q", 5)
		require.NoError(t, err)
		assert.Equal(t, contents(want), contents(got))
	}
}

func TestRerankScorerFailure(t *testing.T) {
	_, err := New(errScorer{}).Rerank(context.Background(), chunks("a"), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rerank: model crashed")
}

func TestLexicalScorer(t *testing.T) {
	scores, err := Lexical{}.Score(context.Background(), "What is the interest rate?", []string{
		"The interest rate is 9.5% per annum.",
		"Either party may terminate.",
		"",
	})
	require.NoError(t, err)
	assert.Greater(t, scores[0], scores[1])
	assert.Zero(t, scores[1])
	assert.Zero(t, scores[2])
}

func TestCrossEncoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "interest", req.Query)
		assert.Equal(t, DefaultCrossEncoderModel, req.Model)
		// servers return results sorted by score, not by index
		json.NewEncoder(w).Encode([]rerankResult{{Index: 1, Score: 0.95}, {Index: 0, Score: 0.1}})
	}))
	defer srv.Close()

	r := FromConfig(config.RerankerConfig{Provider: "cross-encoder", BaseURL: srv.URL + "/"})
	got, err := r.Rerank(context.Background(), chunks("fees", "interest at 9%"), "interest", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"interest at 9%", "fees"}, contents(got))
	assert.InDelta(t, 0.95, got[0].Score, 1e-9)
}

func TestCrossEncoderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewCrossEncoder(config.RerankerConfig{BaseURL: srv.URL}).Score(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 1}})
	}))
	defer short.Close()
	_, err = NewCrossEncoder(config.RerankerConfig{BaseURL: short.URL}).Score(context.Background(), "q", []string{"a", "b"})
	assert.ErrorContains(t, err, "no score for passage 1")
}

func TestFromConfigFallsBackToLexical(t *testing.T) {
	r := FromConfig(config.RerankerConfig{Provider: "cross-encoder"})
	assert.IsType(t, Lexical{}, r.scorer)
}
