package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"xivvy/internal/config"
	"xivvy/internal/corpus"
	"xivvy/internal/embed"
	"xivvy/internal/pipeline"
	"xivvy/internal/providers"
	"xivvy/internal/sanitize"
	"xivvy/internal/storage"
	"xivvy/internal/taxonomy"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	db, err := storage.NewDB(connectCtx, cfg.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := db.WaitReady(connectCtx); err != nil {
		log.Fatal(err)
	}

	cache := storage.NewSearchCache(cfg.CacheSize, cfg.CacheTTL())
	dbLimit := storage.NewRequestLimit(cfg.StoreConcurrency)
	store := storage.NewStore(db.Pool, cfg.Collection, cfg.VectorSize, dbLimit, cache, logger)
	if err := store.EnsureCollection(ctx); err != nil {
		log.Fatal(err)
	}

	mgr, err := providers.NewManager(cfg)
	if err != nil {
		log.Fatal(err)
	}
	for _, ref := range mgr.EmbedProviderRefs() {
		logger.Info("embedding provider configured", "name", ref.Name, "model", ref.KeyAlias)
	}
	embedder, err := embed.NewBatchEmbedder(cfg, mgr, logger)
	if err != nil {
		log.Fatal(err)
	}

	checkpoints := corpus.NewCheckpointStore(cfg.CheckpointPath)
	cp, err := checkpoints.Load()
	if err != nil {
		log.Fatal(err)
	}
	reader := corpus.NewReader(cfg.DatasetPath, cfg.BatchSize,
		taxonomy.NewNormalizer(cfg.MapLegacyCategories), sanitize.New(cfg.MaxTextChars), logger)
	reader.Resume(cp)

	log.Printf("xivvy pipeline starting dataset=%s collection=%s providers=%q", cfg.DatasetPath, cfg.Collection, cfg.EmbedProviders)
	p := pipeline.New(reader, embedder, store, checkpoints, cfg.BatchSize, cfg.BatchTimeout(), logger)
	if _, err := p.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
