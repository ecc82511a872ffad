package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragreader/internal/domain"
	"ragreader/internal/retriever"
)

var _ domain.Embedder = (*Embedder)(nil)
var _ domain.Preparer = (*Embedder)(nil)

func TestEmbed_RequiresPrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestPrepare_Errors(t *testing.T) {
	e := NewEmbedder()
	assert.Error(t, e.Prepare(nil))
	assert.Error(t, e.Prepare([]string{"the and of", "   "}))
}

func TestEmbed_NormalizedAndAligned(t *testing.T) {
	e := NewEmbedder()
	corpus := []string{
		"Whales are large marine mammals.",
		"Volcanoes erupt molten rock called lava.",
		"Marine biologists study whales and dolphins.",
	}
	require.NoError(t, e.Prepare(corpus))
	assert.Positive(t, e.Dimension())

	ctx := context.Background()
	vecs := make([]domain.Vector, len(corpus))
	for i, text := range corpus {
		v, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Len(t, v, e.Dimension())
		norm := 0.0
		for _, x := range v {
			norm += x * x
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
		vecs[i] = v
	}

	query, err := e.Embed(ctx, "What do whales eat?")
	require.NoError(t, err)
	ranking, err := retriever.Rank(query, vecs)
	require.NoError(t, err)
	assert.NotEqual(t, 1, ranking[0].Index, "the volcano passage must not rank first")
	assert.Zero(t, ranking[2].Score)
}

func TestEmbed_UnknownTermsGiveZeroVector(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"alpha beta"}))
	v, err := e.Embed(context.Background(), "gamma delta")
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{0, 0}, v)
}

func TestEmbed_Cancelled(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"alpha"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, "alpha")
	assert.ErrorIs(t, err, context.Canceled)
}
