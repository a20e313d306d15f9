package embed

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"xivvy/internal/config"
	"xivvy/internal/models"
	"xivvy/internal/providers"
)

// flakyProvider fails on any input containing "bad" and counts calls.
type flakyProvider struct {
	mu    sync.Mutex
	calls int
	dim   int
	err   error
}

func (f *flakyProvider) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, providers.ProviderInfo{Name: "flaky"}, f.err
	}
	out := make([][]float32, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if strings.Contains(in, "bad") {
			return nil, providers.ProviderInfo{Name: "flaky"}, errors.New("model unavailable")
		}
		out = append(out, make([]float32, f.dim))
	}
	return out, providers.ProviderInfo{Name: "flaky"}, nil
}

func (f *flakyProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// chainSource serves a fixed provider list in declaration order.
type chainSource struct {
	provs []providers.EmbeddingProvider
}

func (c chainSource) EmbedCount() int { return len(c.provs) }

func (c chainSource) PreferredEmbedOrder() []int {
	order := make([]int, len(c.provs))
	for i := range order {
		order[i] = i
	}
	return order
}

func (c chainSource) EmbedProviderByIndex(i int) (providers.EmbeddingProvider, providers.ProviderRef) {
	ref := providers.ProviderRef{Raw: "flaky", Name: "flaky"}
	return c.provs[i], ref
}

func source(provs ...providers.EmbeddingProvider) chainSource {
	return chainSource{provs: provs}
}

func testConfig() config.Config {
	return config.Config{
		VectorSize:       4,
		SubBatchSize:     2,
		EmbedConcurrency: 2,
		EmbedRPS:         1000,
		EmbedTimeoutSecs: 5,
		CacheSize:        16,
		MaxTextChars:     1500,
		MaxQueryChars:    1000,
	}
}

func paper(id, title string) models.ExtractedPaper {
	return models.ExtractedPaper{ID: id, Title: title, Abstract: "abstract"}
}

func TestNewBatchEmbedderNoProviders(t *testing.T) {
	_, err := NewBatchEmbedder(testConfig(), source(), nil)
	require.Error(t, err)
}

func TestEmbedBatchPartialFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := &flakyProvider{dim: 4}
	be, err := NewBatchEmbedder(testConfig(), source(p), logger)
	require.NoError(t, err)

	papers := []models.ExtractedPaper{
		paper("1001.0001", "good one"),
		paper("1001.0002", "bad apple"),
		paper("1001.0003", "good two"),
		paper("1001.0004", "good three"),
		paper("1001.0005", "bad seed"),
	}
	stored := be.EmbedBatch(context.Background(), papers)
	require.Len(t, stored, 3)
	// Survivors keep input order.
	require.Equal(t, "1001.0001", stored[0].ID)
	require.Equal(t, "1001.0003", stored[1].ID)
	require.Equal(t, "1001.0004", stored[2].ID)
	for _, s := range stored {
		require.Len(t, s.Embedding, 4)
	}

	// One overall ratio line for the whole batch.
	require.Contains(t, buf.String(), "batch embedded")
	require.Contains(t, buf.String(), "embedded=3")
	require.Contains(t, buf.String(), "attempted=5")
	require.Contains(t, buf.String(), "success_rate=0.6")
}

func TestEmbedBatchEmpty(t *testing.T) {
	be, err := NewBatchEmbedder(testConfig(), source(&flakyProvider{dim: 4}), nil)
	require.NoError(t, err)
	require.Empty(t, be.EmbedBatch(context.Background(), nil))
}

func TestEmbedBatchCancelled(t *testing.T) {
	be, err := NewBatchEmbedder(testConfig(), source(&flakyProvider{dim: 4}), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stored := be.EmbedBatch(ctx, []models.ExtractedPaper{paper("1", "a"), paper("2", "b")})
	require.Empty(t, stored)
}

func TestEmbedFallsBackOnRetryableFailure(t *testing.T) {
	broken := &flakyProvider{dim: 4, err: errors.New("service temporarily unavailable")}
	healthy := &flakyProvider{dim: 4}
	be, err := NewBatchEmbedder(testConfig(), source(broken, healthy), nil)
	require.NoError(t, err)

	stored := be.EmbedBatch(context.Background(), []models.ExtractedPaper{paper("1001.0001", "good one")})
	require.Len(t, stored, 1)
	require.Equal(t, 1, broken.callCount(), "primary provider is tried first")
	require.Equal(t, 1, healthy.callCount(), "fallback provider serves the item")
}

func TestEmbedNoFallbackOnPermanentFailure(t *testing.T) {
	broken := &flakyProvider{dim: 4, err: errors.New("invalid request")}
	healthy := &flakyProvider{dim: 4}
	be, err := NewBatchEmbedder(testConfig(), source(broken, healthy), nil)
	require.NoError(t, err)

	stored := be.EmbedBatch(context.Background(), []models.ExtractedPaper{paper("1001.0001", "good one")})
	require.Empty(t, stored)
	require.Equal(t, 1, broken.callCount())
	require.Zero(t, healthy.callCount(), "permanent failures must not cascade to the next provider")
}

func TestEmbedQueryCaching(t *testing.T) {
	p := &flakyProvider{dim: 4}
	be, err := NewBatchEmbedder(testConfig(), source(p), nil)
	require.NoError(t, err)

	v1, err := be.EmbedQuery(context.Background(), "spin glass dynamics")
	require.NoError(t, err)
	require.Len(t, v1, 4)
	before := p.callCount()

	v2, err := be.EmbedQuery(context.Background(), "spin glass dynamics")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Equal(t, before, p.callCount(), "second identical query should hit the cache")
}

func TestEmbedQueryEmpty(t *testing.T) {
	be, err := NewBatchEmbedder(testConfig(), source(&flakyProvider{dim: 4}), nil)
	require.NoError(t, err)
	vec, err := be.EmbedQuery(context.Background(), "   ")
	require.NoError(t, err)
	require.Nil(t, vec)
}

func TestEmbedQueryTruncatesLongInput(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueryChars = 10
	p := &flakyProvider{dim: 4}
	be, err := NewBatchEmbedder(cfg, source(p), nil)
	require.NoError(t, err)
	vec, err := be.EmbedQuery(context.Background(), strings.Repeat("q", 50))
	require.NoError(t, err)
	require.Len(t, vec, 4)
}

func TestEmbedQueryDimensionMismatch(t *testing.T) {
	p := &flakyProvider{dim: 3} // provider ignores requested dimension
	be, err := NewBatchEmbedder(testConfig(), source(p), nil)
	require.NoError(t, err)
	_, err = be.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)
}
