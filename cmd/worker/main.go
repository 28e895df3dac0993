// File: cmd/worker/main.go
//
// Headless claim-loop runner. Scales processing out horizontally: each
// instance polls the same queue and the SKIP LOCKED claim keeps them from
// double-processing. No HTTP surface beyond what cmd/app already exposes.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-enrichment/internal/config"
	aiAdapters "catalog-enrichment/internal/infra/adapters/ai"
	pg "catalog-enrichment/internal/infra/db/postgres"
	"catalog-enrichment/internal/infra/logging"
	red "catalog-enrichment/internal/infra/redis"
	"catalog-enrichment/internal/infra/sched"
	"catalog-enrichment/internal/infra/vector"
	"catalog-enrichment/internal/infra/worker"
	"catalog-enrichment/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode (noop providers)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

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

	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewImportJobRepo(pool)
	itemRepo := pg.NewImportItemRepo(pool, tm)
	recordRepo := pg.NewRecordRepoCacheDecorator(pg.NewEnrichmentRecordRepo(pool), redisClient, cfg.Redis.TTL)

	embedder, captioner, vectorizer, err := aiAdapters.BuildProviders(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("providers")
	}
	fetcher := aiAdapters.NewRestyImageFetcher(30 * time.Second)

	queueUC := usecase.NewQueueUseCase(jobRepo, itemRepo, recordRepo, vstore, tm,
		cfg.Vector.TextCollection, cfg.Vector.ImageCollection, logger)
	enrichUC := usecase.NewEnrichUseCase(recordRepo, vstore, embedder, captioner, vectorizer, fetcher,
		cfg.Vector.TextCollection, cfg.Vector.ImageCollection, logger)

	wpool := worker.NewPool(cfg.Queue.Workers)
	wpool.Start(ctx)
	defer wpool.Stop()
	processor := worker.NewItemProcessor(queueUC, enrichUC, cfg.Queue.ClaimBatchSize, cfg.Queue.PollInterval, logger)
	go processor.Start(ctx, wpool)

	// the redis lock keeps replicas from running concurrent sweeps
	reconciler := sched.NewReconciler(queueUC, locker, cfg.Queue.ReconcileInterval, cfg.Queue.StaleAfter, logger)
	go reconciler.Start(ctx)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
}
