package domain

import "context"

// Passage is one paragraph-equivalent unit of document text. Its identity is
// its position in the sequence produced for a document.
type Passage = string

// Vector is an embedding of fixed dimensionality.
type Vector = []float64

// Document is a source document split into passages and bound to the
// embeddings cached under its identity.
type Document struct {
	ID       string
	Path     string
	Passages []Passage
	Vectors  []Vector
}

// Ranked is one entry of a similarity ranking.
type Ranked struct {
	Index int
	Score float64
}

// ScoredPassage is a ranked entry joined back to its passage text.
type ScoredPassage struct {
	Index int
	Score float64
	Text  Passage
}

// Extractor turns a source file into the raw text of each page, in order.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]string, error)
}

// Chunker splits the pages of a document into passages.
type Chunker interface {
	Name() string
	Segment(pages []string) ([]Passage, error)
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) (Vector, error)
}

// Preparer is implemented by embedders that need to see the corpus before
// they can embed (e.g. TF-IDF vocabularies).
type Preparer interface {
	Prepare(corpus []string) error
}

// Completer answers a user prompt under a system prompt.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
