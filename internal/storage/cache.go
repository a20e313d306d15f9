package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"xivvy/internal/models"
	"xivvy/internal/util"
)

// SearchCache holds TTL-bounded result caches for exact-id lookups and full
// query searches. Both are purged whenever new papers land, so searches never
// serve results older than the last write.
type SearchCache struct {
	ids     *expirable.LRU[string, models.SearchResult]
	queries *expirable.LRU[string, []models.SearchResult]
}

func NewSearchCache(size int, ttl time.Duration) *SearchCache {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SearchCache{
		ids:     expirable.NewLRU[string, models.SearchResult](size, nil, ttl),
		queries: expirable.NewLRU[string, []models.SearchResult](size, nil, ttl),
	}
}

func (c *SearchCache) GetID(paperID string) (models.SearchResult, bool) {
	return c.ids.Get(paperID)
}

func (c *SearchCache) PutID(paperID string, r models.SearchResult) {
	c.ids.Add(paperID, r)
}

func (c *SearchCache) GetQuery(key string) ([]models.SearchResult, bool) {
	return c.queries.Get(key)
}

func (c *SearchCache) PutQuery(key string, rs []models.SearchResult) {
	c.queries.Add(key, rs)
}

func (c *SearchCache) Purge() {
	c.ids.Purge()
	c.queries.Purge()
}

// QueryKey derives a stable cache key from every parameter that affects the
// result set. Category order does not matter, so it is sorted out.
func QueryKey(p SearchParams) string {
	cats := append([]string(nil), p.Categories...)
	sort.Strings(cats)
	return util.SHA256Hex([]byte(fmt.Sprintf("q=%s|k=%d|c=%s|all=%t|from=%s|to=%s",
		p.Query, p.Limit, strings.Join(cats, ","), p.MatchAllCategories, p.DateFrom, p.DateTo)))
}
