package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"intellidoc/internal/config"
	"intellidoc/internal/helper"
)

const DefaultCrossEncoderModel = "cross-encoder/ms-marco-MiniLM-L-6-v2"

// CrossEncoder calls a text-embeddings-inference style /rerank endpoint.
type CrossEncoder struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewCrossEncoder(cfg config.RerankerConfig) *CrossEncoder {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = DefaultCrossEncoderModel
	}
	return &CrossEncoder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model string   `json:"model,omitempty"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (c *CrossEncoder) Score(ctx context.Context, question string, passages []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Model: c.model, Query: question, Texts: passages})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("cross-encoder: request failed: %d, %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("cross-encoder: decode response: %w", err)
	}
	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(passages) {
			return nil, fmt.Errorf("cross-encoder: index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("cross-encoder: no score for passage %d", i)
		}
	}
	return scores, nil
}

// Lexical scores by token overlap (Ochiai coefficient). It needs no model server.
type Lexical struct{}

func (Lexical) Score(ctx context.Context, question string, passages []string) ([]float64, error) {
	q := set(helper.Tokenize(question))
	scores := make([]float64, len(passages))
	if len(q) == 0 {
		return scores, nil
	}
	for i, p := range passages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ps := set(helper.Tokenize(p))
		if len(ps) == 0 {
			continue
		}
		shared := 0
		for tok := range q {
			if _, ok := ps[tok]; ok {
				shared++
			}
		}
		scores[i] = float64(shared) / math.Sqrt(float64(len(q))*float64(len(ps)))
	}
	return scores, nil
}

func set(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}
