// Package embed turns extracted papers and free-text queries into vectors
// through a chain of configured embedding providers, with bounded concurrency
// and rate limiting so a local or hosted model is never overrun. When a
// provider fails transiently the next one in preference order takes over.
package embed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"xivvy/internal/config"
	"xivvy/internal/models"
	"xivvy/internal/providers"
	"xivvy/internal/sanitize"
)

// ProviderSource yields the configured embedding providers in preference
// order. Satisfied by *providers.Manager.
type ProviderSource interface {
	EmbedCount() int
	PreferredEmbedOrder() []int
	EmbedProviderByIndex(i int) (providers.EmbeddingProvider, providers.ProviderRef)
}

// BatchEmbedder embeds paper batches item by item so one bad input never
// poisons its neighbours: a batch of 50 with two failures still yields 48
// stored papers. When a provider fails with a retryable class (rate limit,
// transient outage) the next provider in preference order is tried.
type BatchEmbedder struct {
	chain     []providers.EmbeddingProvider
	refs      []providers.ProviderRef
	sanitizer *sanitize.Sanitizer
	log       *slog.Logger

	subBatchSize int
	sem          *semaphore.Weighted
	limiter      *rate.Limiter
	itemTimeout  time.Duration
	dim          int

	maxQueryChars int
	queryCache    *lru.Cache[string, []float32]
}

func NewBatchEmbedder(cfg config.Config, source ProviderSource, logger *slog.Logger) (*BatchEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if source.EmbedCount() == 0 {
		return nil, errNoProviders{}
	}
	var (
		chain []providers.EmbeddingProvider
		refs  []providers.ProviderRef
	)
	for _, i := range source.PreferredEmbedOrder() {
		p, ref := source.EmbedProviderByIndex(i)
		chain = append(chain, p)
		refs = append(refs, ref)
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1000
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	rps := cfg.EmbedRPS
	if rps <= 0 {
		rps = 50
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	conc := cfg.EmbedConcurrency
	if conc <= 0 {
		conc = 5
	}
	sub := cfg.SubBatchSize
	if sub <= 0 {
		sub = 50
	}
	timeout := cfg.EmbedTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BatchEmbedder{
		chain:         chain,
		refs:          refs,
		sanitizer:     sanitize.New(cfg.MaxTextChars),
		log:           logger,
		subBatchSize:  sub,
		sem:           semaphore.NewWeighted(int64(conc)),
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		itemTimeout:   timeout,
		dim:           cfg.VectorSize,
		maxQueryChars: cfg.MaxQueryChars,
		queryCache:    cache,
	}, nil
}

// EmbedBatch embeds every paper in the batch and returns the subset that
// succeeded, in input order. It never returns an error; failures are logged
// and dropped. Callers detect wholesale cancellation through ctx.
func (b *BatchEmbedder) EmbedBatch(ctx context.Context, papers []models.ExtractedPaper) []models.StoredPaper {
	if len(papers) == 0 {
		return nil
	}
	results := make([]*models.StoredPaper, len(papers))
	var wg sync.WaitGroup

	for start := 0; start < len(papers); start += b.subBatchSize {
		end := start + b.subBatchSize
		if end > len(papers) {
			end = len(papers)
		}
		if err := b.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer b.sem.Release(1)
			defer wg.Done()
			b.embedSubBatch(ctx, papers[start:end], results[start:end])
		}(start, end)
	}
	wg.Wait()

	out := make([]models.StoredPaper, 0, len(papers))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	b.log.Info("batch embedded",
		"embedded", len(out),
		"attempted", len(papers),
		"success_rate", float64(len(out))/float64(len(papers)))
	return out
}

func (b *BatchEmbedder) embedSubBatch(ctx context.Context, papers []models.ExtractedPaper, results []*models.StoredPaper) {
	ok := 0
	for i := range papers {
		if ctx.Err() != nil {
			break
		}
		vec, err := b.embedOne(ctx, papers[i].CombinedText())
		if err != nil {
			b.log.Warn("embed failed",
				"paper_id", papers[i].ID,
				"class", string(providers.ClassifyError(err)),
				"err", err)
			continue
		}
		results[i] = &models.StoredPaper{ExtractedPaper: papers[i], Embedding: vec}
		ok++
	}
	if len(papers) > 0 {
		b.log.Debug("sub-batch embedded",
			"ok", ok,
			"total", len(papers),
			"success_rate", float64(ok)/float64(len(papers)))
	}
}

// embedOne tries the provider chain in preference order. Retryable failures
// (rate limit, transient) fall through to the next provider; permanent and
// quota failures return immediately.
func (b *BatchEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	clean := b.sanitizer.Clean(text)
	var lastErr error
	for i, p := range b.chain {
		vec, err := b.callProvider(ctx, p, clean)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		class := providers.ClassifyError(err)
		if !providers.Retryable(class) || i == len(b.chain)-1 {
			return nil, err
		}
		b.log.Warn("provider failed, falling back",
			"provider", b.refs[i].Name,
			"next", b.refs[i+1].Name,
			"class", string(class),
			"err", err)
	}
	return nil, lastErr
}

func (b *BatchEmbedder) callProvider(ctx context.Context, p providers.EmbeddingProvider, clean string) ([]float32, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	tctx, cancel := context.WithTimeout(ctx, b.itemTimeout)
	defer cancel()

	vecs, _, err := p.Embed(tctx, providers.EmbedRequest{Inputs: []string{clean}, Dimension: b.dim})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, errVectorCount(len(vecs))
	}
	if b.dim > 0 && len(vecs[0]) != b.dim {
		return nil, errDimension{got: len(vecs[0]), want: b.dim}
	}
	return vecs[0], nil
}

// EmbedQuery embeds a search query. Blank queries return nil so callers can
// fall back to a metadata-only scan. Repeated queries are served from an LRU
// cache keyed by the normalized text.
func (b *BatchEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	clean := b.sanitizer.Clean(query)
	if clean == "" {
		return nil, nil
	}
	if b.maxQueryChars > 0 {
		truncated := sanitize.Truncate(clean, b.maxQueryChars)
		if truncated != clean {
			b.log.Warn("query truncated for embedding", "max_chars", b.maxQueryChars)
			clean = truncated
		}
	}
	if vec, hit := b.queryCache.Get(clean); hit {
		return vec, nil
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.sem.Release(1)
	vec, err := b.embedOne(ctx, clean)
	if err != nil {
		return nil, err
	}
	b.queryCache.Add(clean, vec)
	return vec, nil
}
