package models

import "time"

// metadata keys set on every chunk
const (
	MetaSource    = "source"
	MetaChunk     = "chunk"
	MetaOffset    = "offset"
	MetaSection   = "section"
	MetaExtractor = "extractor"
)

// Document is extracted or chunked text with its metadata.
// Metadata always carries MetaSource.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Chunk is a bounded substring of a source document.
type Chunk = Document

// Source returns the originating file identifier.
func (d Document) Source() string {
	return d.Metadata[MetaSource]
}

// WithMetadata returns a copy of d whose metadata has the given key set.
func (d Document) WithMetadata(key, value string) Document {
	meta := CopyMetadata(d.Metadata)
	meta[key] = value
	return Document{Content: d.Content, Metadata: meta}
}

// CopyMetadata returns a shallow copy that is never nil.
func CopyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ScoredChunk pairs a chunk with its relevance score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Chunks drops the scores.
func Chunks(scored []ScoredChunk) []Chunk {
	out := make([]Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.Chunk
	}
	return out
}

// Answer is the result of a grounded question.
type Answer struct {
	Text    string              `json:"answer"`
	Sources []map[string]string `json:"sources"`
}

// Upload is a registered raw file.
type Upload struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	SHA256       string    `json:"sha256"`
	Size         int64     `json:"size"`
	Chunks       int       `json:"chunks"`
	DocumentType string    `json:"document_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// clause statuses
const (
	StatusFound   = "found"
	StatusMissing = "missing"
)

// ClauseResult is the outcome of one clause check. Value is nil when the clause is missing.
type ClauseResult struct {
	Status         string  `json:"status"`
	Value          *string `json:"value"`
	Summary        string  `json:"summary"`
	Recommendation string  `json:"recommendation"`
}

// Assessment explains a risk score.
type Assessment struct {
	Score     int      `json:"score"`
	Missing   []string `json:"missing"`
	Rationale string   `json:"rationale"`
}

// Report is a full legal check of one document.
type Report struct {
	DocumentType string                  `json:"document_type"`
	Results      map[string]ClauseResult `json:"results"`
	Missing      []string                `json:"missing"`
	Risk         Assessment              `json:"risk"`
}
