package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates malformed caller arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownDocumentType indicates no rule configuration exists for a document type.
	ErrUnknownDocumentType = fmt.Errorf("%w: unknown document type", ErrInvalidInput)

	// ErrUnknownClause indicates a rule set names a clause no extractor family handles.
	ErrUnknownClause = fmt.Errorf("%w: unknown clause", ErrInvalidInput)

	// ErrExtractionFailed indicates no extraction stage produced usable text.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrStoreUnavailable indicates the vector index could not be opened or written.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmbeddingFailure indicates the embedding backend errored.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrGeneratorFailure indicates the answer generator errored.
	ErrGeneratorFailure = errors.New("generator failure")
)
