package legal

import (
	"fmt"
	"sort"
	"strings"

	"intellidoc/internal/models"
)

// Clause is one configured clause rule.
type Clause struct {
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Description string   `json:"description" yaml:"description"`
	// Extractor names a family explicitly. Empty resolves by clause name.
	Extractor string `json:"extractor,omitempty" yaml:"extractor,omitempty"`
}

// RuleSet is the clause configuration for one document type.
type RuleSet struct {
	DocumentType string            `json:"document_type" yaml:"document_type"`
	Clauses      map[string]Clause `json:"clauses" yaml:"clauses"`

	extractors map[string]Extractor
}

// NewRuleSet resolves every clause to an extractor family.
func NewRuleSet(documentType string, clauses map[string]Clause) (*RuleSet, error) {
	rs := &RuleSet{DocumentType: documentType, Clauses: clauses}
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RuleSet) compile() error {
	if len(rs.Clauses) == 0 {
		return fmt.Errorf("%w: %s: no clauses", models.ErrInvalidInput, rs.DocumentType)
	}
	rs.extractors = make(map[string]Extractor, len(rs.Clauses))
	for name, c := range rs.Clauses {
		if len(c.Keywords) == 0 {
			return fmt.Errorf("%w: %s: clause %q has no keywords", models.ErrInvalidInput, rs.DocumentType, name)
		}
		family, fn, ok := resolve(name, c.Extractor)
		if !ok {
			if family == "" {
				return fmt.Errorf("%w: %s: clause %q has no value extractor; add \"extractor: none\" to check presence only, or use one of %s",
					models.ErrUnknownClause, rs.DocumentType, name, strings.Join(familyNames(), ", "))
			}
			return fmt.Errorf("%w: %s: clause %q uses extractor %q; expected one of %s",
				models.ErrUnknownClause, rs.DocumentType, name, family, strings.Join(familyNames(), ", "))
		}
		rs.extractors[name] = fn
	}
	return nil
}

// Names returns the clause names in sorted order.
func (rs *RuleSet) Names() []string {
	out := make([]string, 0, len(rs.Clauses))
	for name := range rs.Clauses {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Check evaluates every clause in rs against text. The result has exactly one entry per clause.
func Check(text string, rs *RuleSet) map[string]models.ClauseResult {
	lower := strings.ToLower(text)
	results := make(map[string]models.ClauseResult, len(rs.Clauses))
	for name, c := range rs.Clauses {
		if !present(lower, c.Keywords) {
			results[name] = models.ClauseResult{
				Status:         models.StatusMissing,
				Summary:        c.Description,
				Recommendation: fmt.Sprintf("'%s' clause appears to be missing.", name),
			}
			continue
		}
		value := rs.extract(name, c)(lower)
		results[name] = models.ClauseResult{
			Status:         models.StatusFound,
			Value:          &value,
			Summary:        c.Description,
			Recommendation: fmt.Sprintf("'%s' clause appears to be covered.", name),
		}
	}
	return results
}

// Missing returns the sorted names of clauses whose status is missing.
func Missing(results map[string]models.ClauseResult) []string {
	var out []string
	for name, r := range results {
		if r.Status == models.StatusMissing {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// extract falls back to name resolution for rule sets built without NewRuleSet.
func (rs *RuleSet) extract(name string, c Clause) Extractor {
	if fn, ok := rs.extractors[name]; ok {
		return fn
	}
	if _, fn, ok := resolve(name, c.Extractor); ok {
		return fn
	}
	return families["none"]
}

func present(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
