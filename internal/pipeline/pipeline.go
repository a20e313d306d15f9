// Package pipeline drives the full ingestion run: stream corpus batches,
// embed them, store them, checkpoint after every stored batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"xivvy/internal/corpus"
	"xivvy/internal/models"
)

type BatchSource interface {
	Batches(ctx context.Context) (<-chan corpus.Batch, <-chan error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, papers []models.ExtractedPaper) []models.StoredPaper
}

type Store interface {
	InsertBatch(ctx context.Context, papers []models.StoredPaper) (int, error)
	Count(ctx context.Context) (int64, error)
}

type Checkpointer interface {
	Save(lastID string, batchSize int) error
}

// Stats accumulates over one Run.
type Stats struct {
	Processed int64 // papers read from the corpus
	Embedded  int64 // papers successfully embedded
	Stored    int64 // papers written to the collection
	Batches   int64 // batches completed, successfully or not
	Errors    int64 // batches that failed to store or timed out
}

type Pipeline struct {
	source     BatchSource
	embedder   Embedder
	store      Store
	checkpoint Checkpointer
	batchSize  int
	timeout    time.Duration
	log        *slog.Logger
}

func New(source BatchSource, embedder Embedder, store Store, checkpoint Checkpointer, batchSize int, batchTimeout time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if batchTimeout <= 0 {
		batchTimeout = 5 * time.Minute
	}
	return &Pipeline{
		source:     source,
		embedder:   embedder,
		store:      store,
		checkpoint: checkpoint,
		batchSize:  batchSize,
		timeout:    batchTimeout,
		log:        logger,
	}
}

// Run processes the corpus until it is exhausted or ctx is cancelled.
// Cancellation is honored at batch boundaries so the checkpoint always marks
// a fully stored batch; a cancelled run returns its stats without error.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	start := time.Now()
	batches, errc := p.source.Batches(ctx)

loop:
	for {
		select {
		case <-ctx.Done():
			p.log.Info("shutdown requested, stopping at batch boundary")
			break loop
		case b, ok := <-batches:
			if !ok {
				break loop
			}
			p.processBatch(ctx, b, &stats)
		}
	}

	var runErr error
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		runErr = fmt.Errorf("corpus stream: %w", err)
	}

	summary := []any{
		"processed", stats.Processed,
		"embedded", stats.Embedded,
		"stored", stats.Stored,
		"batches", stats.Batches,
		"errors", stats.Errors,
		"elapsed", time.Since(start).Round(time.Second).String(),
	}
	if count, err := p.store.Count(context.WithoutCancel(ctx)); err == nil {
		summary = append(summary, "collection_count", count)
	}
	p.log.Info("pipeline finished", summary...)
	return stats, runErr
}

func (p *Pipeline) processBatch(ctx context.Context, b corpus.Batch, stats *Stats) {
	stats.Batches++
	stats.Processed += int64(len(b.Papers))

	bctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	batchStart := time.Now()

	embedded := p.embedder.EmbedBatch(bctx, b.Papers)
	stats.Embedded += int64(len(embedded))
	if bctx.Err() != nil && ctx.Err() == nil {
		stats.Errors++
		p.log.Error("batch timed out during embedding", "last_id", b.LastID, "embedded", len(embedded))
		return
	}

	stored, err := p.store.InsertBatch(bctx, embedded)
	stats.Stored += int64(stored)
	if err != nil {
		stats.Errors++
		p.log.Error("batch store failed", "last_id", b.LastID, "err", err)
		return
	}

	if err := p.checkpoint.Save(b.LastID, p.batchSize); err != nil {
		// The data is stored; a failed checkpoint only risks reprocessing.
		p.log.Warn("checkpoint save failed", "last_id", b.LastID, "err", err)
	}

	rate := float64(len(b.Papers)) / time.Since(batchStart).Seconds()
	if dropped := len(b.Papers) - len(embedded); dropped > 0 {
		p.log.Warn("batch stored with drops",
			"last_id", b.LastID, "stored", stored, "dropped", dropped, "papers_per_sec", rate)
	} else {
		p.log.Info("batch stored",
			"last_id", b.LastID, "stored", stored, "papers_per_sec", rate)
	}
}
