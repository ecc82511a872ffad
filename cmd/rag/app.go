package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ragreader/internal/cache"
	"ragreader/internal/chat"
	"ragreader/internal/chunker"
	"ragreader/internal/config"
	"ragreader/internal/domain"
	embopenai "ragreader/internal/embedding/openai"
	"ragreader/internal/embedding/tfidf"
	"ragreader/internal/extract"
	"ragreader/internal/logger"
	"ragreader/internal/metrics"
	"ragreader/internal/service"
	"ragreader/internal/summarizer"
)

// app is the wired pipeline shared by all commands.
type app struct {
	cfg     *config.AppConfig
	log     zerolog.Logger
	svc     *service.RAGService
	docTags []string
}

type appFlags struct {
	configPath string
	logLevel   string
}

func loadConfig(flags appFlags) (*config.AppConfig, string, error) {
	if flags.configPath != "" {
		cfg, err := config.Load(flags.configPath)
		return cfg, flags.configPath, err
	}
	return config.LoadDefault()
}

func newApp(ctx context.Context, flags appFlags, logOut io.Writer) (*app, error) {
	cfg, cfgPath, err := loadConfig(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: logOut})
	log.Debug().Str("config", cfgPath).Str("cache_root", cfg.CacheRoot).Msg("configuration loaded")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, reg, log); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	oa := cfg.Embedder.OpenAI
	var tags []string

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf":
		emb = tfidf.NewEmbedder()
		tags = append(tags, "tfidf")
	case "openai":
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:    oa.BaseURL,
			APIKeyEnv:  oa.APIKeyEnv,
			Model:      cfg.EmbeddingModel,
			Timeout:    time.Duration(oa.TimeoutSecs) * time.Second,
			MaxRetries: oa.MaxRetries,
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
		if cfg.EmbeddingModel != embopenai.DefaultModel {
			tags = append(tags, cfg.EmbeddingModel)
		}
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "paragraph":
		ch = chunker.NewParagraphChunker()
	case "sentence":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
		tags = append(tags, ch.Name())
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var limiter *rate.Limiter
	if oa.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(oa.RequestsPerSecond), max(1, oa.Concurrency))
	}
	vectors, err := cache.New(cache.NewFileStore(cfg.CacheRoot), emb, cache.Options{
		Concurrency: oa.Concurrency,
		Limiter:     limiter,
		Metrics:     m,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	var completer domain.Completer
	if cfg.Chat.Enabled {
		completer = chat.NewClient(chat.Config{
			BaseURL:     oa.BaseURL,
			APIKeyEnv:   oa.APIKeyEnv,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			Timeout:     time.Duration(oa.TimeoutSecs) * time.Second,
			Logger:      log,
		})
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency":
		sum = summarizer.NewFrequencySummarizer()
	case "none":
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	svc := service.NewRAGService(extract.NewFileExtractor(), ch, emb, vectors, completer, sum, service.Options{
		TopK:                cfg.TopK,
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		SystemPrompt:        cfg.Chat.SystemPrompt,
		Metrics:             m,
		Logger:              log,
	})
	return &app{cfg: cfg, log: log, svc: svc, docTags: tags}, nil
}

// docID is the cache identity of the file at path: its base name, qualified
// by any non-default embedder or chunker so differently built records never
// share a key.
func (a *app) docID(path string) string {
	return documentIdentity(path, a.docTags...)
}

func documentIdentity(path string, tags ...string) string {
	parts := []string{filepath.Base(path)}
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ".")
}

// load prepares the document at path, invalidating its record first when
// force is set.
func (a *app) load(ctx context.Context, path string, force bool) (domain.Document, error) {
	id := a.docID(path)
	if force {
		if err := a.svc.Invalidate(ctx, id); err != nil {
			return domain.Document{}, err
		}
	}
	start := time.Now()
	doc, err := a.svc.LoadDocument(ctx, path, id)
	if err != nil {
		a.log.Error().Err(err).Str("doc_id", id).Msg("loading document failed")
		return domain.Document{}, err
	}
	a.log.Info().Str("doc_id", id).Int("passages", len(doc.Passages)).Dur("duration", time.Since(start)).Msg("document loaded")
	return doc, nil
}
