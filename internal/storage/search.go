package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"xivvy/internal/models"
	"xivvy/internal/util"
	"xivvy/internal/vector"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// QueryEmbedder turns query text into a vector. A nil vector (blank query)
// switches the search to a metadata-only scan.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// SearchParams are the knobs of one search call. Limit is clamped to at most
// 100; zero or negative values select the 10-row default rather than erroring,
// so an unset field behaves like an unset query parameter. Date bounds are ISO
// dates (YYYY-MM-DD) and inclusive; malformed bounds are ignored with a
// warning rather than failing the whole search.
type SearchParams struct {
	Query              string
	Limit              int
	Categories         []string
	MatchAllCategories bool
	DateFrom           string
	DateTo             string
}

// Searcher answers exact-id lookups and filtered similarity queries against
// the collection.
type Searcher struct {
	pool       Pool
	collection string
	dim        int
	embed      QueryEmbedder
	limit      *RequestLimit
	cache      *SearchCache
	log        *slog.Logger
}

// NewSearcher wires a searcher against the same RequestLimit the writer side
// uses, so reads and writes share one bound on in-flight database requests.
func NewSearcher(pool Pool, collection string, dim int, embed QueryEmbedder, limit *RequestLimit, cache *SearchCache, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	if limit == nil {
		limit = NewRequestLimit(0)
	}
	return &Searcher{
		pool:       pool,
		collection: collection,
		dim:        dim,
		embed:      embed,
		limit:      limit,
		cache:      cache,
		log:        logger,
	}
}

// SearchByID fetches one paper by its arXiv id. It returns (nil, nil) when
// the paper is not stored. Distance is always nil for exact lookups.
func (s *Searcher) SearchByID(ctx context.Context, paperID string) (*models.SearchResult, error) {
	paperID = strings.TrimSpace(paperID)
	if paperID == "" {
		return nil, nil
	}
	if s.cache != nil {
		if r, hit := s.cache.GetID(paperID); hit {
			return &r, nil
		}
	}
	sql := fmt.Sprintf(`SELECT paper_id, title, authors, categories, date_updated
FROM %s WHERE paper_id = $1`, s.collection)
	if err := s.limit.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limit.release()
	rows, err := s.pool.Query(ctx, sql, paperID)
	if err != nil {
		return nil, fmt.Errorf("lookup paper %s: %w", paperID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("lookup paper %s: %w", paperID, err)
		}
		return nil, nil
	}
	meta, err := scanMetadata(rows)
	if err != nil {
		return nil, err
	}
	result := models.SearchResult{Metadata: meta}
	if s.cache != nil {
		s.cache.PutID(paperID, result)
	}
	return &result, nil
}

// SearchByQuery runs a filtered search. With a non-blank query it embeds the
// text and ranks by cosine distance; with a blank query it scans metadata in
// paper-id order, so category and date filters work without any query text.
func (s *Searcher) SearchByQuery(ctx context.Context, p SearchParams) ([]models.SearchResult, error) {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		s.log.Warn("limit clamped", "requested", p.Limit, "max", maxLimit)
		p.Limit = maxLimit
	}
	key := QueryKey(p)
	if s.cache != nil {
		if rs, hit := s.cache.GetQuery(key); hit {
			return rs, nil
		}
	}
	vec, err := s.embed.EmbedQuery(ctx, p.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var results []models.SearchResult
	if vec == nil {
		if strings.TrimSpace(p.Query) != "" {
			s.log.Warn("query reduced to nothing after cleanup, falling back to metadata scan")
		}
		results, err = s.scroll(ctx, p)
	} else {
		results, err = s.vectorSearch(ctx, p, vec)
	}
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.PutQuery(key, results)
	}
	return results, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, p SearchParams, vec []float32) ([]models.SearchResult, error) {
	lit, err := vector.ToLiteralDim(vec, s.dim)
	if err != nil {
		return nil, fmt.Errorf("query vector: %w", err)
	}
	args := []any{lit, p.Limit}
	filterSQL, args := s.filters(p, args)

	sql := fmt.Sprintf(`SELECT paper_id, title, authors, categories, date_updated,
       embedding::halfvec(%d) <=> $1::halfvec(%d) AS distance
FROM %s
WHERE embedding IS NOT NULL%s
ORDER BY embedding::halfvec(%d) <=> $1::halfvec(%d)
LIMIT $2`, s.dim, s.dim, s.collection, filterSQL, s.dim, s.dim)

	if err := s.limit.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limit.release()
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.SearchResult, 0, p.Limit)
	for rows.Next() {
		var (
			meta  models.ResultMetadata
			epoch int64
			dist  float64
		)
		if err := rows.Scan(&meta.PaperID, &meta.Title, &meta.Authors, &meta.Categories, &epoch, &dist); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if epoch > 0 {
			meta.DateUpdated = util.UnixToISODate(epoch)
		}
		d := dist
		results = append(results, models.SearchResult{Distance: &d, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func (s *Searcher) scroll(ctx context.Context, p SearchParams) ([]models.SearchResult, error) {
	args := []any{p.Limit}
	filterSQL, args := s.filters(p, args)

	sql := fmt.Sprintf(`SELECT paper_id, title, authors, categories, date_updated
FROM %s
WHERE TRUE%s
ORDER BY paper_id
LIMIT $1`, s.collection, filterSQL)

	if err := s.limit.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limit.release()
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("metadata scan: %w", err)
	}
	defer rows.Close()

	results := make([]models.SearchResult, 0, p.Limit)
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, models.SearchResult{Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan rows: %w", err)
	}
	return results, nil
}

// filters appends category and date predicates, numbering placeholders after
// the args already present.
func (s *Searcher) filters(p SearchParams, args []any) (string, []any) {
	var sb strings.Builder
	if len(p.Categories) > 0 {
		op := "&&"
		if p.MatchAllCategories {
			op = "@>"
		}
		args = append(args, p.Categories)
		fmt.Fprintf(&sb, " AND categories %s $%d::text[]", op, len(args))
	}
	if p.DateFrom != "" {
		if epoch, err := util.ISODateToUnix(p.DateFrom); err != nil {
			s.log.Warn("ignoring malformed date_from", "value", p.DateFrom)
		} else {
			args = append(args, epoch)
			fmt.Fprintf(&sb, " AND date_updated >= $%d", len(args))
		}
	}
	if p.DateTo != "" {
		if epoch, err := util.ISODateToUnix(p.DateTo); err != nil {
			s.log.Warn("ignoring malformed date_to", "value", p.DateTo)
		} else {
			args = append(args, epoch)
			fmt.Fprintf(&sb, " AND date_updated <= $%d", len(args))
		}
	}
	return sb.String(), args
}

// scanMetadata reads one metadata-shaped row (no distance column).
func scanMetadata(rows interface {
	Scan(dest ...any) error
}) (models.ResultMetadata, error) {
	var (
		meta  models.ResultMetadata
		epoch int64
	)
	if err := rows.Scan(&meta.PaperID, &meta.Title, &meta.Authors, &meta.Categories, &epoch); err != nil {
		return meta, fmt.Errorf("scan metadata row: %w", err)
	}
	if epoch > 0 {
		meta.DateUpdated = util.UnixToISODate(epoch)
	}
	return meta, nil
}
