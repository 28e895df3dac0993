// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-enrichment/internal/config"
	aiAdapters "catalog-enrichment/internal/infra/adapters/ai"
	"catalog-enrichment/internal/infra/api"
	pg "catalog-enrichment/internal/infra/db/postgres"
	"catalog-enrichment/internal/infra/logging"
	"catalog-enrichment/internal/infra/metrics"
	red "catalog-enrichment/internal/infra/redis"
	"catalog-enrichment/internal/infra/sched"
	"catalog-enrichment/internal/infra/vector"
	"catalog-enrichment/internal/infra/worker"
	"catalog-enrichment/internal/usecase"
)

// Stamped via -ldflags at release build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	metrics.SetBuildInfo(version, commit)

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode (noop providers, open auth)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Vector store ----
	vstore, err := vector.NewQdrantStore(&vector.Config{
		Host:   cfg.Vector.Host,
		Port:   cfg.Vector.Port,
		APIKey: cfg.Vector.APIKey,
		UseTLS: cfg.Vector.UseTLS,
		Collections: map[string]int{
			cfg.Vector.TextCollection:  cfg.AI.EmbeddingDims,
			cfg.Vector.ImageCollection: cfg.AI.VectorizerDims,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("qdrant")
	}
	defer vstore.Close()
	if err := vstore.EnsureCollections(ctx); err != nil {
		logger.Fatal().Err(err).Msg("qdrant collections")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewImportJobRepo(pool)
	itemRepo := pg.NewImportItemRepo(pool, tm)
	recordRepo := pg.NewRecordRepoCacheDecorator(pg.NewEnrichmentRecordRepo(pool), redisClient, cfg.Redis.TTL)

	// ---- Enrichment providers ----
	embedder, captioner, vectorizer, err := aiAdapters.BuildProviders(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("providers")
	}
	fetcher := aiAdapters.NewRestyImageFetcher(30 * time.Second)

	// ---- Use cases ----
	ingestUC := usecase.NewIngestUseCase(jobRepo, itemRepo, logger)
	queueUC := usecase.NewQueueUseCase(jobRepo, itemRepo, recordRepo, vstore, tm,
		cfg.Vector.TextCollection, cfg.Vector.ImageCollection, logger)
	enrichUC := usecase.NewEnrichUseCase(recordRepo, vstore, embedder, captioner, vectorizer, fetcher,
		cfg.Vector.TextCollection, cfg.Vector.ImageCollection, logger)

	// ---- Worker pool + processor ----
	wpool := worker.NewPool(cfg.Queue.Workers)
	wpool.Start(ctx)
	defer wpool.Stop()
	processor := worker.NewItemProcessor(queueUC, enrichUC, cfg.Queue.ClaimBatchSize, cfg.Queue.PollInterval, logger)
	go processor.Start(ctx, wpool)

	// ---- Reconciler ----
	reconciler := sched.NewReconciler(queueUC, locker, cfg.Queue.ReconcileInterval, cfg.Queue.StaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- HTTP server ----
	auth := api.NewAuthManager(cfg.API.JWTSecret, cfg.API.TokenTTL)
	srv := api.NewServer(ingestUC, queueUC, processor, auth, rateLimiter,
		cfg.API.AppendRateLimit, cfg.API.AppendRateWindow, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.API.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
