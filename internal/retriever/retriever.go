// Package retriever ranks passages against a query by brute-force cosine
// similarity.
package retriever

import (
	"errors"
	"math"
	"sort"
	"strings"
	"sync"

	"ragreader/internal/domain"
)

// Rank scores every corpus vector against query and returns the full ranking,
// highest score first, ties broken by ascending index. A zero-magnitude
// operand scores 0.
func Rank(query domain.Vector, corpus []domain.Vector) ([]domain.Ranked, error) {
	for i, v := range corpus {
		if len(v) != len(query) {
			return nil, &domain.DimensionMismatchError{Want: len(query), Got: len(v), Index: i}
		}
	}
	qnorm := norm(query)
	ranking := make([]domain.Ranked, len(corpus))
	for i, v := range corpus {
		ranking[i] = domain.Ranked{Index: i, Score: cosine(query, v, qnorm)}
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		return ranking[i].Index < ranking[j].Index
	})
	return ranking, nil
}

// TopK returns the first k entries of a ranking. k <= 0 keeps everything.
func TopK(ranking []domain.Ranked, k int) []domain.Ranked {
	if k <= 0 || k > len(ranking) {
		return ranking
	}
	return ranking[:k]
}

// AssembleContext joins the passages of the top k entries, in ranking order,
// with newlines.
func AssembleContext(ranking []domain.Ranked, passages []domain.Passage, k int) string {
	top := TopK(ranking, k)
	parts := make([]string, 0, len(top))
	for _, r := range top {
		if r.Index >= 0 && r.Index < len(passages) {
			parts = append(parts, passages[r.Index])
		}
	}
	return strings.Join(parts, "\n")
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either has zero magnitude or their lengths differ.
func CosineSimilarity(a, b domain.Vector) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, b, norm(a))
}

func cosine(a, b domain.Vector, anorm float64) float64 {
	bnorm := norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	sim := dot(a, b) / (anorm * bnorm)
	// Rounding can push parallel vectors just past ±1.
	return math.Max(-1, math.Min(1, sim))
}

func dot(a, b domain.Vector) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v domain.Vector) float64 {
	return math.Sqrt(dot(v, v))
}

// Index holds one document's passages and their vectors for similarity search.
type Index struct {
	mu       sync.RWMutex
	passages []domain.Passage
	vectors  []domain.Vector
}

func NewIndex() *Index { return &Index{} }

// Load replaces the indexed corpus.
func (x *Index) Load(passages []domain.Passage, vectors []domain.Vector) error {
	if len(passages) != len(vectors) {
		return errors.New("passages and vectors length mismatch")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.passages = passages
	x.vectors = vectors
	return nil
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.passages)
}

// Search ranks the corpus against vector and returns the top k passages.
func (x *Index) Search(vector domain.Vector, topK int) ([]domain.ScoredPassage, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ranking, err := Rank(vector, x.vectors)
	if err != nil {
		return nil, err
	}
	top := TopK(ranking, topK)
	results := make([]domain.ScoredPassage, 0, len(top))
	for _, r := range top {
		results = append(results, domain.ScoredPassage{Index: r.Index, Score: r.Score, Text: x.passages[r.Index]})
	}
	return results, nil
}
