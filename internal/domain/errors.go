package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Each matches any error of the corresponding type.
var (
	ErrSegmentation      = &SegmentationError{}
	ErrEmbeddingService  = &EmbeddingServiceError{}
	ErrCachePersistence  = &CachePersistenceError{}
	ErrDimensionMismatch = &DimensionMismatchError{}
)

// ErrDocumentNotLoaded is returned when a query names a document that has not
// been prepared in the current session.
var ErrDocumentNotLoaded = errors.New("document not loaded")

// SegmentationError reports page text the chunker could not segment.
type SegmentationError struct {
	Chunker string
	Err     error
}

func (e *SegmentationError) Error() string {
	if e.Err == nil {
		return "segmentation failed"
	}
	if e.Chunker != "" {
		return fmt.Sprintf("segmentation failed (%s): %v", e.Chunker, e.Err)
	}
	return "segmentation failed: " + e.Err.Error()
}

func (e *SegmentationError) Unwrap() error { return e.Err }

func (e *SegmentationError) Is(target error) bool {
	_, ok := target.(*SegmentationError)
	return ok
}

// QueryIndex marks an EmbeddingServiceError raised while embedding the query
// rather than a passage.
const QueryIndex = -1

// EmbeddingServiceError reports a failed or malformed call to the embedding
// service. Index is the passage index, or QueryIndex.
type EmbeddingServiceError struct {
	Index int
	Err   error
}

func (e *EmbeddingServiceError) Error() string {
	if e.Err == nil {
		return "embedding service error"
	}
	if e.Index == QueryIndex {
		return "embedding service error (query): " + e.Err.Error()
	}
	return fmt.Sprintf("embedding service error (passage %d): %v", e.Index, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

func (e *EmbeddingServiceError) Is(target error) bool {
	_, ok := target.(*EmbeddingServiceError)
	return ok
}

// CachePersistenceError reports that the embedding cache store could not be
// read or written.
type CachePersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *CachePersistenceError) Error() string {
	msg := "embedding cache"
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CachePersistenceError) Unwrap() error { return e.Err }

func (e *CachePersistenceError) Is(target error) bool {
	_, ok := target.(*CachePersistenceError)
	return ok
}

// DimensionMismatchError reports vectors of different dimensionality being
// compared. Index is the offending corpus index.
type DimensionMismatchError struct {
	Want  int
	Got   int
	Index int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: query has %d dimensions, corpus vector %d has %d", e.Want, e.Index, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	_, ok := target.(*DimensionMismatchError)
	return ok
}

// UserMessage renders an error the way a front end should show it.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmbeddingService), errors.Is(err, ErrCachePersistence), errors.Is(err, ErrSegmentation):
		return "could not prepare the document for search"
	case errors.Is(err, ErrDimensionMismatch):
		return "internal configuration problem: embedding dimensions do not match"
	case errors.Is(err, ErrDocumentNotLoaded):
		return "no document loaded"
	default:
		return err.Error()
	}
}
