package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"xivvy/internal/config"
	"xivvy/internal/embed"
	"xivvy/internal/providers"
	"xivvy/internal/storage"
	"xivvy/internal/taxonomy"
)

func main() {
	var (
		query    = flag.String("query", "", "free-text query; empty runs a metadata scan")
		paperID  = flag.String("id", "", "exact arXiv id lookup")
		limit    = flag.Int("limit", 10, "max results")
		cats     = flag.String("categories", "", "comma-separated category filter")
		matchAll = flag.Bool("match-all", false, "require all categories instead of any")
		dateFrom = flag.String("from", "", "inclusive lower date bound (YYYY-MM-DD)")
		dateTo   = flag.String("to", "", "inclusive upper date bound (YYYY-MM-DD)")
	)
	flag.Parse()

	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	mgr, err := providers.NewManager(cfg)
	if err != nil {
		log.Fatal(err)
	}
	embedder, err := embed.NewBatchEmbedder(cfg, mgr, logger)
	if err != nil {
		log.Fatal(err)
	}

	cache := storage.NewSearchCache(cfg.CacheSize, cfg.CacheTTL())
	dbLimit := storage.NewRequestLimit(cfg.StoreConcurrency)
	searcher := storage.NewSearcher(db.Pool, cfg.Collection, cfg.VectorSize, embedder, dbLimit, cache, logger)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *paperID != "" {
		r, err := searcher.SearchByID(ctx, *paperID)
		if err != nil {
			log.Fatal(err)
		}
		if r == nil {
			log.Fatalf("paper %s not found", *paperID)
		}
		if err := enc.Encode(r); err != nil {
			log.Fatal(err)
		}
		return
	}

	params := storage.SearchParams{
		Query:              *query,
		Limit:              *limit,
		MatchAllCategories: *matchAll,
		DateFrom:           *dateFrom,
		DateTo:             *dateTo,
	}
	for _, c := range strings.Split(*cats, ",") {
		if c = strings.TrimSpace(c); c != "" {
			if !taxonomy.IsCanonical(c) {
				logger.Warn("category filter is not a canonical top-level category, it will match nothing", "category", c)
			}
			params.Categories = append(params.Categories, c)
		}
	}

	results, err := searcher.SearchByQuery(ctx, params)
	if err != nil {
		log.Fatal(err)
	}
	if err := enc.Encode(results); err != nil {
		log.Fatal(err)
	}
}
