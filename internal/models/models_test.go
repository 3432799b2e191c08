package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithMetadataCopies(t *testing.T) {
	doc := Document{Content: "x", Metadata: map[string]string{MetaSource: "a.pdf"}}
	next := doc.WithMetadata(MetaChunk, "1")

	assert.Equal(t, "1", next.Metadata[MetaChunk])
	assert.NotContains(t, doc.Metadata, MetaChunk)
	assert.Equal(t, "a.pdf", next.Source())
}

func TestCopyMetadataNil(t *testing.T) {
	m := CopyMetadata(nil)
	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func TestErrorHierarchy(t *testing.T) {
	assert.True(t, errors.Is(ErrUnknownDocumentType, ErrInvalidInput))
	assert.True(t, errors.Is(ErrUnknownClause, ErrInvalidInput))
	assert.False(t, errors.Is(ErrStoreUnavailable, ErrInvalidInput))
}
