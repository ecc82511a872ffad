package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ragreader/internal/domain"
	"ragreader/internal/logger"
	"ragreader/internal/metrics"
	"ragreader/internal/retriever"
)

// VectorCache is the embedding cache as seen by the service.
type VectorCache interface {
	Get(ctx context.Context, docID string, passages []domain.Passage) ([]domain.Vector, error)
	Invalidate(ctx context.Context, docID string) error
}

// ErrChatDisabled is returned by Answer when no chat model is configured.
var ErrChatDisabled = errors.New("chat is disabled")

type Options struct {
	// TopK is used when a query passes k <= 0.
	TopK                int
	SummaryMaxSentences int
	SystemPrompt        string
	Metrics             *metrics.Metrics
	Logger              zerolog.Logger
}

// Answer is a chat reply together with the passages it was grounded on.
type Answer struct {
	Text     string
	Passages []domain.ScoredPassage
}

type loadedDocument struct {
	doc     domain.Document
	index   *retriever.Index
	summary string
}

// RAGService composes segmentation, the embedding cache and retrieval for the
// documents loaded in this process.
type RAGService struct {
	extractor  domain.Extractor
	chunker    domain.Chunker
	embedder   domain.Embedder
	cache      VectorCache
	completer  domain.Completer
	summarizer domain.Summarizer
	opts       Options
	log        zerolog.Logger

	mu   sync.RWMutex
	docs map[string]*loadedDocument
}

// NewRAGService wires the pipeline. completer and summarizer may be nil.
func NewRAGService(extractor domain.Extractor, chunker domain.Chunker, embedder domain.Embedder, cache VectorCache, completer domain.Completer, summarizer domain.Summarizer, opts Options) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &RAGService{
		extractor:  extractor,
		chunker:    chunker,
		embedder:   embedder,
		cache:      cache,
		completer:  completer,
		summarizer: summarizer,
		opts:       opts,
		log:        logger.Component(opts.Logger, "rag_service"),
		docs:       make(map[string]*loadedDocument),
	}
}

// LoadDocument extracts the file at path and prepares it under docID.
func (s *RAGService) LoadDocument(ctx context.Context, path, docID string) (domain.Document, error) {
	if s.extractor == nil {
		return domain.Document{}, errors.New("no extractor configured")
	}
	pages, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("extract %s: %w", path, err)
	}
	doc, err := s.Prepare(ctx, docID, pages)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Path = path
	s.mu.Lock()
	if d, ok := s.docs[docID]; ok {
		d.doc.Path = path
	}
	s.mu.Unlock()
	return doc, nil
}

// Prepare segments pages, obtains one vector per passage from the cache and
// makes the document queryable under docID.
func (s *RAGService) Prepare(ctx context.Context, docID string, pages []string) (domain.Document, error) {
	log := logger.Document(s.log, docID)

	passages, err := s.chunker.Segment(pages)
	if err != nil {
		if !errors.Is(err, domain.ErrSegmentation) {
			err = &domain.SegmentationError{Chunker: s.chunker.Name(), Err: err}
		}
		return domain.Document{}, err
	}
	log.Debug().Int("pages", len(pages)).Int("passages", len(passages)).Str("chunker", s.chunker.Name()).Msg("document segmented")

	if p, ok := s.embedder.(domain.Preparer); ok && len(passages) > 0 {
		if err := p.Prepare(passages); err != nil {
			return domain.Document{}, fmt.Errorf("prepare embedder: %w", err)
		}
	}

	vectors, err := s.cache.Get(ctx, docID, passages)
	if err != nil {
		return domain.Document{}, err
	}
	if len(vectors) != len(passages) {
		// The record was written for a different segmentation of this identity.
		return domain.Document{}, &domain.CachePersistenceError{
			Op:   "bind",
			Path: docID,
			Err:  fmt.Errorf("cached record has %d vectors for %d passages; re-index the document", len(vectors), len(passages)),
		}
	}

	index := retriever.NewIndex()
	if err := index.Load(passages, vectors); err != nil {
		return domain.Document{}, err
	}
	loaded := &loadedDocument{
		doc:     domain.Document{ID: docID, Passages: passages, Vectors: vectors},
		index:   index,
		summary: s.summarize(passages),
	}

	s.mu.Lock()
	s.docs[docID] = loaded
	s.mu.Unlock()
	log.Info().Int("passages", len(passages)).Msg("document ready")
	return loaded.doc, nil
}

// Invalidate drops docID from this session and from the embedding cache.
func (s *RAGService) Invalidate(ctx context.Context, docID string) error {
	s.mu.Lock()
	delete(s.docs, docID)
	s.mu.Unlock()
	return s.cache.Invalidate(ctx, docID)
}

// AnswerContext embeds query and returns the k passages of docID most similar
// to it, highest score first. k <= 0 selects the configured default.
func (s *RAGService) AnswerContext(ctx context.Context, docID, query string, k int) (results []domain.ScoredPassage, err error) {
	start := time.Now()
	defer func() { s.opts.Metrics.RecordQuery(time.Since(start), err) }()

	d, err := s.lookup(docID)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.opts.TopK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.EmbeddingServiceError{Index: domain.QueryIndex, Err: err}
	}
	if err := checkQueryVector(vec); err != nil {
		return nil, &domain.EmbeddingServiceError{Index: domain.QueryIndex, Err: err}
	}

	results, err = d.index.Search(vec, k)
	if err != nil {
		return nil, err
	}
	docLog := logger.Document(s.log, docID)
	docLog.Debug().Int("k", k).Int("results", len(results)).Msg("query ranked")
	return results, nil
}

// checkQueryVector rejects query embeddings that cannot be ranked against.
// A length differing from the corpus is left to the retriever.
func checkQueryVector(v domain.Vector) error {
	if len(v) == 0 {
		return errors.New("empty embedding")
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.New("embedding has non-finite components")
		}
	}
	return nil
}

// BuildContext joins passage texts in ranking order, one per line.
func BuildContext(results []domain.ScoredPassage) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Text
	}
	return strings.Join(parts, "\n")
}

// Answer retrieves context for question and asks the chat model to answer
// from it.
func (s *RAGService) Answer(ctx context.Context, docID, question string, k int) (Answer, error) {
	if s.completer == nil {
		return Answer{}, ErrChatDisabled
	}
	results, err := s.AnswerContext(ctx, docID, question, k)
	if err != nil {
		return Answer{}, err
	}
	system := s.opts.SystemPrompt + " Context: " + BuildContext(results)
	text, err := s.completer.Complete(ctx, strings.TrimSpace(system), question)
	if err != nil {
		return Answer{Passages: results}, fmt.Errorf("chat completion: %w", err)
	}
	return Answer{Text: text, Passages: results}, nil
}

// Summary returns the summary computed when docID was prepared.
func (s *RAGService) Summary(docID string) (string, error) {
	d, err := s.lookup(docID)
	if err != nil {
		return "", err
	}
	return d.summary, nil
}

// Document returns the loaded document for docID.
func (s *RAGService) Document(docID string) (domain.Document, error) {
	d, err := s.lookup(docID)
	if err != nil {
		return domain.Document{}, err
	}
	return d.doc, nil
}

func (s *RAGService) lookup(docID string) (*loadedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotLoaded, docID)
	}
	return d, nil
}

func (s *RAGService) summarize(passages []domain.Passage) string {
	if s.summarizer == nil || len(passages) == 0 {
		return ""
	}
	summary, err := s.summarizer.Summarize(strings.Join(passages, " "), s.opts.SummaryMaxSentences)
	if err != nil {
		s.log.Warn().Err(err).Msg("summarizing document failed")
		return ""
	}
	return summary
}
