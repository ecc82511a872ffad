// Package cache returns one embedding per passage for a document, computing
// only what no earlier run has persisted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"ragreader/internal/domain"
	"ragreader/internal/logger"
	"ragreader/internal/metrics"
)

const (
	defaultConcurrency   = 4
	defaultMemoryEntries = 16
)

// Options tunes an EmbeddingCache. Zero values select defaults.
type Options struct {
	// Concurrency bounds in-flight embedding calls during a miss.
	Concurrency int
	// Limiter, when set, paces embedding calls.
	Limiter *rate.Limiter
	// MemoryEntries is the number of documents kept in process memory.
	MemoryEntries int
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// EmbeddingCache maps a document identity and its passages to aligned
// vectors. A persisted record is trusted as-is: passages are not re-checked
// against it.
type EmbeddingCache struct {
	store       Store
	embedder    domain.Embedder
	concurrency int
	limiter     *rate.Limiter
	memory      *lru.Cache[string, []domain.Vector]
	group       singleflight.Group
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

func New(store Store, embedder domain.Embedder, opts Options) (*EmbeddingCache, error) {
	if store == nil {
		return nil, errors.New("cache: store is required")
	}
	if embedder == nil {
		return nil, errors.New("cache: embedder is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MemoryEntries <= 0 {
		opts.MemoryEntries = defaultMemoryEntries
	}
	memory, err := lru.New[string, []domain.Vector](opts.MemoryEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &EmbeddingCache{
		store:       store,
		embedder:    embedder,
		concurrency: opts.Concurrency,
		limiter:     opts.Limiter,
		memory:      memory,
		metrics:     opts.Metrics,
		log:         logger.Component(opts.Logger, "embedding_cache"),
	}, nil
}

// Get returns one vector per passage, in passage order. On a miss every
// passage is embedded and the whole record is persisted before returning; any
// failure leaves no record behind. Concurrent misses for the same docID share
// one population. The returned slice is shared and must not be modified.
func (c *EmbeddingCache) Get(ctx context.Context, docID string, passages []domain.Passage) ([]domain.Vector, error) {
	if vectors, ok := c.memory.Get(docID); ok {
		c.metrics.RecordCacheLookup(metrics.CacheHitMemory)
		return vectors, nil
	}

	for {
		// The population runs under the context of the caller that started it.
		ch := c.group.DoChan(docID, func() (any, error) {
			return c.populate(ctx, docID, passages)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err == nil {
				return res.Val.([]domain.Vector), nil
			}
			// A shared population abandoned by its initiator is retried by
			// callers that are still live.
			if isContextErr(res.Err) && ctx.Err() == nil {
				c.group.Forget(docID)
				c.log.Debug().Str("doc_id", docID).Msg("shared population cancelled, retrying")
				continue
			}
			return nil, res.Err
		}
	}
}

// isContextErr matches the bare context errors populate returns on
// cancellation. Wrapped ones come from the embedder and are real failures.
func isContextErr(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}

// Invalidate forgets docID in memory and, when the store supports it, on disk.
func (c *EmbeddingCache) Invalidate(ctx context.Context, docID string) error {
	c.memory.Remove(docID)
	if d, ok := c.store.(Deleter); ok {
		if err := d.Delete(ctx, docID); err != nil {
			c.metrics.RecordPersistenceError("delete")
			return persistenceError("delete", err)
		}
	}
	return nil
}

func (c *EmbeddingCache) populate(ctx context.Context, docID string, passages []domain.Passage) ([]domain.Vector, error) {
	log := logger.Document(c.log, docID)

	vectors, found, err := c.store.Load(ctx, docID)
	if err != nil {
		c.metrics.RecordPersistenceError("read")
		return nil, persistenceError("read", err)
	}
	if found {
		c.metrics.RecordCacheLookup(metrics.CacheHitDisk)
		if len(vectors) != len(passages) {
			log.Warn().Int("vectors", len(vectors)).Int("passages", len(passages)).
				Msg("cached record length differs from passage count")
		}
		log.Debug().Int("vectors", len(vectors)).Msg("embedding cache hit")
		c.memory.Add(docID, vectors)
		return vectors, nil
	}

	c.metrics.RecordCacheLookup(metrics.CacheMiss)
	start := time.Now()
	log.Info().Int("passages", len(passages)).Str("embedder", c.embedder.Name()).Msg("embedding cache miss, embedding passages")

	vectors, err = c.embedAll(ctx, passages)
	if err != nil {
		log.Error().Err(err).Msg("embedding passages failed, nothing persisted")
		return nil, err
	}

	err = c.store.Save(ctx, docID, vectors)
	c.metrics.RecordCacheWrite(err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		c.metrics.RecordPersistenceError("write")
		log.Error().Err(err).Msg("persisting embeddings failed")
		return nil, persistenceError("write", err)
	}

	log.Info().Int("vectors", len(vectors)).Dur("duration", time.Since(start)).Msg("embeddings persisted")
	c.memory.Add(docID, vectors)
	return vectors, nil
}

// embedAll fans passages out over a bounded pool. Result i always lands in
// slot i regardless of completion order.
func (c *EmbeddingCache) embedAll(ctx context.Context, passages []domain.Passage) ([]domain.Vector, error) {
	vectors := make([]domain.Vector, len(passages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, passage := range passages {
		i, passage := i, passage
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if c.limiter != nil {
				if err := c.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			done := c.metrics.StartEmbeddingCall()
			v, err := c.embedder.Embed(gctx, passage)
			done(err)
			if err != nil {
				if gctx.Err() != nil && errors.Is(err, gctx.Err()) {
					return err
				}
				return &domain.EmbeddingServiceError{Index: i, Err: err}
			}
			vectors[i] = v
			return nil
		})
	}
	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	if err := validate(vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// validate rejects empty vectors, non-finite components and vectors whose
// dimensionality differs from the first.
func validate(vectors []domain.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return &domain.EmbeddingServiceError{Index: i, Err: errors.New("empty embedding")}
		}
		if len(v) != dim {
			return &domain.EmbeddingServiceError{Index: i, Err: fmt.Errorf("embedding has %d dimensions, expected %d", len(v), dim)}
		}
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return &domain.EmbeddingServiceError{Index: i, Err: errors.New("embedding has non-finite components")}
			}
		}
	}
	return nil
}

func persistenceError(op string, err error) error {
	if errors.Is(err, domain.ErrCachePersistence) {
		return err
	}
	return &domain.CachePersistenceError{Op: op, Err: err}
}
