package risk

import (
	"fmt"
	"sort"
	"strings"

	"intellidoc/internal/models"
)

// unlistedWeight applies to clauses absent from the weight table.
const unlistedWeight = 1

// DefaultWeights is the severity table used when none is configured.
func DefaultWeights() map[string]int {
	return map[string]int{
		"termination":     3,
		"liability":       5,
		"confidentiality": 4,
		"jurisdiction":    2,
	}
}

// Scorer maps missing clauses to a score in [1, 10]; higher is riskier.
type Scorer struct {
	weights map[string]int
	total   int
}

// New copies weights. The table must be non-empty with a positive sum.
func New(weights map[string]int) (*Scorer, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: risk: empty weight table", models.ErrInvalidInput)
	}
	s := &Scorer{weights: make(map[string]int, len(weights))}
	for k, v := range weights {
		s.weights[k] = v
		s.total += v
	}
	if s.total <= 0 {
		return nil, fmt.Errorf("%w: risk: weights sum to %d", models.ErrInvalidInput, s.total)
	}
	return s, nil
}

// Default returns a scorer over DefaultWeights.
func Default() *Scorer {
	s, _ := New(DefaultWeights())
	return s
}

// Score floors raw/total*10 and clamps to [1, 10]. A document with nothing missing still scores 1.
func (s *Scorer) Score(missing []string) int {
	raw := 0
	for _, name := range dedupe(missing) {
		raw += s.weight(name)
	}
	return min(max(raw*10/s.total, 1), 10)
}

// Assess scores missing and explains the contributing weights.
func (s *Scorer) Assess(missing []string) models.Assessment {
	names := dedupe(missing)
	score := s.Score(names)
	if len(names) == 0 {
		return models.Assessment{Score: score, Missing: []string{}, Rationale: "No clauses missing."}
	}

	parts := make([]string, len(names))
	raw := 0
	for i, name := range names {
		w := s.weight(name)
		raw += w
		parts[i] = fmt.Sprintf("%s (%d)", name, w)
	}
	return models.Assessment{
		Score:   score,
		Missing: names,
		Rationale: fmt.Sprintf("Missing %s; weight %d of %d gives %d/10.",
			strings.Join(parts, ", "), raw, s.total, score),
	}
}

func (s *Scorer) weight(name string) int {
	if w, ok := s.weights[name]; ok {
		return w
	}
	return unlistedWeight
}

// dedupe returns the distinct names sorted.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
