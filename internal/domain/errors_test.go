package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("connection refused")

	emb := fmt.Errorf("load doc: %w", &EmbeddingServiceError{Index: 3, Err: cause})
	assert.ErrorIs(t, emb, ErrEmbeddingService)
	assert.ErrorIs(t, emb, cause)
	assert.NotErrorIs(t, emb, ErrCachePersistence)

	persist := &CachePersistenceError{Op: "write", Path: "embeddings/a.json", Err: cause}
	assert.ErrorIs(t, persist, ErrCachePersistence)
	assert.NotErrorIs(t, persist, ErrEmbeddingService)
	assert.Contains(t, persist.Error(), "embeddings/a.json")

	dim := &DimensionMismatchError{Want: 3, Got: 2, Index: 0}
	assert.ErrorIs(t, dim, ErrDimensionMismatch)

	seg := &SegmentationError{Chunker: "paragraph", Err: cause}
	assert.ErrorIs(t, seg, ErrSegmentation)
}

func TestEmbeddingServiceErrorMessage(t *testing.T) {
	q := &EmbeddingServiceError{Index: QueryIndex, Err: errors.New("boom")}
	assert.Equal(t, "embedding service error (query): boom", q.Error())

	p := &EmbeddingServiceError{Index: 2, Err: errors.New("boom")}
	assert.Equal(t, "embedding service error (passage 2): boom", p.Error())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"embedding", &EmbeddingServiceError{Err: errors.New("x")}, "could not prepare the document for search"},
		{"persistence", &CachePersistenceError{Err: errors.New("x")}, "could not prepare the document for search"},
		{"dimension", &DimensionMismatchError{Want: 1, Got: 2}, "internal configuration problem: embedding dimensions do not match"},
		{"not loaded", fmt.Errorf("doc: %w", ErrDocumentNotLoaded), "no document loaded"},
		{"other", errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}
