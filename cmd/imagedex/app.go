package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/config"
	dbValkey "github.com/kailas-cloud/imagedex/internal/db/valkey"
	"github.com/kailas-cloud/imagedex/internal/domain"
	logpkg "github.com/kailas-cloud/imagedex/internal/logger"
	"github.com/kailas-cloud/imagedex/internal/metrics"
	"github.com/kailas-cloud/imagedex/internal/observability"
	"github.com/kailas-cloud/imagedex/internal/repository/embcache"
	"github.com/kailas-cloud/imagedex/internal/repository/imagefs"
	qdrantrepo "github.com/kailas-cloud/imagedex/internal/repository/qdrant"
	"github.com/kailas-cloud/imagedex/internal/repository/vectorindex"
	openaiEmb "github.com/kailas-cloud/imagedex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/imagedex/internal/usecase/embedding"
	galleryuc "github.com/kailas-cloud/imagedex/internal/usecase/gallery"
	healthuc "github.com/kailas-cloud/imagedex/internal/usecase/health"
	indexuc "github.com/kailas-cloud/imagedex/internal/usecase/index"
	ingestuc "github.com/kailas-cloud/imagedex/internal/usecase/ingest"
	searchuc "github.com/kailas-cloud/imagedex/internal/usecase/search"
)

// vectorStore is what every backend offers the use cases.
type vectorStore interface {
	indexuc.Store
	Upsert(ctx context.Context, index, namespace string, records []domain.Record) error
	Query(ctx context.Context, index, namespace string, req domain.QueryRequest) ([]domain.Match, error)
	Delete(ctx context.Context, index, namespace string, ids []string) error
}

// app is the composition root shared by all commands.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger
	tracer *observability.TracerProvider

	files    *imagefs.Dir
	embedder domain.Embedder
	vectors  vectorStore
	pinger   healthuc.StorePinger

	index   *indexuc.Manager
	ingest  *ingestuc.Service
	search  *searchuc.Service
	gallery *galleryuc.Service
	health  *healthuc.Service

	closers []func()
}

func newApp(ctx context.Context, env string) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{env: env, cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg
	metrics.Register()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Environment:  a.env,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Insecure:     cfg.Tracing.Insecure,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = tp
	a.closers = append(a.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			a.logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	})

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:       cfg.Embedding.APIKey,
		BaseURL:      cfg.Embedding.BaseURL,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
		MaxImageSide: cfg.Embedding.MaxImageSide,
		InputFormat:  cfg.Embedding.InputFormat,
		Timeout:      time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:       a.logger,
	})
	var embedder domain.Embedder = base

	switch cfg.Database.Driver {
	case "valkey", "redis":
		store, err := dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
		}
		a.closers = append(a.closers, store.Close)

		if err := store.WaitForReady(ctx, cfg.ReadinessTimeout()); err != nil {
			return fmt.Errorf("database not ready: %w", err)
		}
		a.vectors = vectorindex.New(store, cfg.Storage.KeyPrefix).WithHNSW(vectorindex.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		})
		a.pinger = store

		if cfg.Embedding.Cache.Enabled {
			embedder = embcache.New(base, store, embcache.Options{
				Model:        cfg.Embedding.Model,
				Dimensions:   cfg.Embedding.Dimensions,
				MaxImageSide: cfg.Embedding.MaxImageSide,
				InputFormat:  cfg.Embedding.InputFormat,
				KeyPrefix:    cfg.Storage.KeyPrefix,
				TTL:          time.Duration(cfg.Embedding.Cache.TTLHours) * time.Hour,
			}, metrics.EmbeddingCacheTotal, a.logger)
		}
	case "qdrant":
		repo, err := qdrantrepo.New(qdrantrepo.Config{
			Addr:   cfg.Database.Addrs[0],
			APIKey: cfg.Database.APIKey,
			TLS:    cfg.Database.TLS,
			Cloud:  cfg.Index.Cloud,
			Region: cfg.Index.Region,
		})
		if err != nil {
			return fmt.Errorf("create qdrant client: %w", err)
		}
		a.closers = append(a.closers, repo.Close)

		pctx, cancel := context.WithTimeout(ctx, cfg.ReadinessTimeout())
		err = repo.Ping(pctx)
		cancel()
		if err != nil {
			return fmt.Errorf("database not ready: %w", err)
		}
		a.vectors = repo
		a.pinger = repo
		if cfg.Embedding.Cache.Enabled {
			a.logger.Warn("Embedding cache needs a key-value store; disabled for qdrant")
		}
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	a.logger.Info("Connected to vector store",
		zap.String("driver", cfg.Database.Driver),
		zap.Strings("addrs", cfg.Database.Addrs),
	)

	instrumented := embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Embedding.Model, a.logger).
		WithMaxAPIBatch(cfg.Embedding.MaxBatch)
	a.embedder = instrumented
	a.files = imagefs.New(cfg.Storage.DataDir, a.logger)

	spec := cfg.IndexSpec()
	a.index = indexuc.New(a.vectors, spec, a.logger)
	if cfg.Index.WaitReady {
		a.index.WithWaitReady(time.Duration(cfg.Index.ReadyTimeoutSec) * time.Second)
	}

	a.ingest = ingestuc.New(a.index, a.files, a.embedder, a.vectors, ingestuc.Options{
		Index:        spec.Name,
		Namespace:    cfg.Index.Namespace,
		BatchSize:    cfg.Index.BatchSize,
		ChunkSize:    cfg.Index.ChunkSize,
		Concurrency:  cfg.Index.BatchConcurrency,
		Retries:      cfg.Index.BatchRetries,
		BatchTimeout: time.Duration(cfg.Index.BatchTimeoutSec) * time.Second,
		RunHistory:   cfg.Index.RunHistory,
	}, a.logger)

	a.search = searchuc.New(a.files, a.embedder, a.vectors, searchuc.Options{
		Index:        spec.Name,
		Namespace:    cfg.Index.Namespace,
		TopK:         cfg.Index.TopK,
		PublicPrefix: cfg.Storage.PublicPrefix,
	})

	a.gallery = galleryuc.New(a.files, a.ingest, a.vectors, galleryuc.Options{
		Index:           spec.Name,
		Namespace:       cfg.Index.Namespace,
		PublicPrefix:    cfg.Storage.PublicPrefix,
		DefaultPageSize: cfg.Index.DefaultPageSize,
		MaxPageSize:     cfg.Index.MaxPageSize,
	})

	a.health = healthuc.New(a.pinger, instrumented, a.files, a.logger)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}
