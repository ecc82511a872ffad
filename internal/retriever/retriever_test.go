package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragreader/internal/domain"
)

func TestRank_OrdersByCosine(t *testing.T) {
	ranking, err := Rank([]float64{1, 0}, [][]float64{{1, 0}, {0, 1}, {-1, 0}})
	require.NoError(t, err)
	require.Len(t, ranking, 3)

	assert.Equal(t, []int{0, 1, 2}, indices(ranking))
	assert.InDelta(t, 1.0, ranking[0].Score, 1e-12)
	assert.InDelta(t, 0.0, ranking[1].Score, 1e-12)
	assert.InDelta(t, -1.0, ranking[2].Score, 1e-12)
}

func TestRank_IgnoresMagnitude(t *testing.T) {
	ranking, err := Rank([]float64{2, 0}, [][]float64{{0, 5}, {10, 0.1}, {3, 3}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, indices(ranking))
	assert.InDelta(t, 0.7071, ranking[1].Score, 1e-4)
}

func TestRank_ZeroVectorScoresZero(t *testing.T) {
	ranking, err := Rank([]float64{0, 0}, [][]float64{{1, 0}})
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, 0.0, ranking[0].Score)

	ranking, err = Rank([]float64{1, 0}, [][]float64{{0, 0}, {1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, indices(ranking))
	assert.Equal(t, 0.0, ranking[1].Score)
}

func TestRank_DimensionMismatch(t *testing.T) {
	_, err := Rank([]float64{1, 0, 0}, [][]float64{{1, 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	var dm *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Want)
	assert.Equal(t, 2, dm.Got)
	assert.Equal(t, 0, dm.Index)
}

func TestRank_TiesBreakByIndex(t *testing.T) {
	corpus := [][]float64{{0, 1}, {1, 0}, {0, 2}, {2, 0}, {0, 3}}
	ranking, err := Rank([]float64{0, 1}, corpus)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4, 1, 3}, indices(ranking))
}

func TestRank_EmptyCorpus(t *testing.T) {
	ranking, err := Rank([]float64{1, 2}, nil)
	require.NoError(t, err)
	assert.Empty(t, ranking)
}

func TestTopK(t *testing.T) {
	ranking := []domain.Ranked{{Index: 2, Score: 0.9}, {Index: 0, Score: 0.5}, {Index: 1, Score: 0.1}}
	assert.Len(t, TopK(ranking, 1), 1)
	assert.Len(t, TopK(ranking, 3), 3)
	assert.Len(t, TopK(ranking, 10), 3)
	assert.Len(t, TopK(ranking, 0), 3)
	assert.Equal(t, 2, TopK(ranking, 1)[0].Index)
}

func TestAssembleContext_RankingOrder(t *testing.T) {
	passages := []string{"first", "second", "third"}
	ranking := []domain.Ranked{{Index: 2, Score: 0.9}, {Index: 0, Score: 0.5}, {Index: 1, Score: 0.1}}

	assert.Equal(t, "third\nfirst", AssembleContext(ranking, passages, 2))
	assert.Equal(t, "third\nfirst\nsecond", AssembleContext(ranking, passages, 0))
	assert.Equal(t, "", AssembleContext(nil, passages, 3))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"identical vectors", []float64{1, 0, 0}, []float64{1, 0, 0}, 1},
		{"orthogonal vectors", []float64{1, 0, 0}, []float64{0, 1, 0}, 0},
		{"opposite vectors", []float64{1, 0, 0}, []float64{-1, 0, 0}, -1},
		{"similar vectors", []float64{1, 0, 0}, []float64{0.9, 0.1, 0}, 0.9939},
		{"length mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), 1e-3)
		})
	}
}

func TestIndex_Search(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Load(
		[]string{"Alpha text.", "Beta text.", "Gamma text."},
		[][]float64{{1, 0}, {0, 1}, {0.9, 0.1}},
	))
	assert.Equal(t, 3, idx.Len())

	results, err := idx.Search([]float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Alpha text.", results[0].Text)
	assert.Equal(t, 0, results[0].Index)
	assert.InDelta(t, 1.0, results[0].Score, 1e-12)
	assert.Equal(t, "Gamma text.", results[1].Text)

	_, err = idx.Search([]float64{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndex_LoadLengthMismatch(t *testing.T) {
	idx := NewIndex()
	assert.Error(t, idx.Load([]string{"a"}, nil))
}

func indices(r []domain.Ranked) []int {
	out := make([]int, len(r))
	for i := range r {
		out[i] = r[i].Index
	}
	return out
}
