// Package corpus streams the arXiv metadata snapshot (JSON lines) into
// validated, normalized paper batches, with checkpoint-based resume.
package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"xivvy/internal/models"
	"xivvy/internal/sanitize"
	"xivvy/internal/taxonomy"
	"xivvy/internal/util"
)

const (
	// Individual abstracts stay well under this; the cap only guards
	// against a corrupted snapshot line.
	maxLineBytes = 4 << 20

	progressEvery = 10000
)

// Batch is one reader-order slice of the corpus. LastID is the id of the last
// raw line consumed for the batch, including lines that were dropped as
// malformed, so checkpointing on it never replays dropped lines.
type Batch struct {
	Papers []models.ExtractedPaper
	LastID string
}

// Reader walks the snapshot file sequentially. Line parsing fans out across
// CPUs per chunk, but batch emission preserves file order.
type Reader struct {
	path      string
	batchSize int
	chunkSize int
	norm      *taxonomy.Normalizer
	san       *sanitize.Sanitizer
	log       *slog.Logger
	resumeID  string
}

func NewReader(path string, batchSize int, norm *taxonomy.Normalizer, san *sanitize.Sanitizer, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if san == nil {
		san = sanitize.New(0)
	}
	if batchSize <= 0 {
		batchSize = 128
	}
	chunk := 2 * batchSize
	if chunk > 1000 {
		chunk = 1000
	}
	return &Reader{
		path:      path,
		batchSize: batchSize,
		chunkSize: chunk,
		norm:      norm,
		san:       san,
		log:       logger,
	}
}

// Resume makes the next Batches call skip everything up to and including the
// checkpointed record. A nil checkpoint starts from the top of the file.
func (r *Reader) Resume(cp *models.Checkpoint) {
	if cp != nil {
		r.resumeID = cp.LastProcessedID
	}
}

// Batches streams the corpus. The batch channel closes when the file is
// exhausted or ctx is cancelled; at most one error is sent on the error
// channel before both close.
func (r *Reader) Batches(ctx context.Context) (<-chan Batch, <-chan error) {
	out := make(chan Batch)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		if err := r.stream(ctx, out); err != nil {
			errc <- err
		}
	}()
	return out, errc
}

func (r *Reader) stream(ctx context.Context, out chan<- Batch) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	skipping := r.resumeID != ""
	if skipping {
		r.log.Info("resuming from checkpoint", "last_processed_id", r.resumeID)
	}

	var (
		lines     = make([][]byte, 0, r.chunkSize)
		pending   = make([]models.ExtractedPaper, 0, r.batchSize)
		lastID    string
		lineNo    int
		extracted int
	)

	emit := func() error {
		if len(pending) == 0 {
			return nil
		}
		b := Batch{Papers: pending, LastID: lastID}
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
		pending = make([]models.ExtractedPaper, 0, r.batchSize)
		return nil
	}

	flushChunk := func() error {
		if len(lines) == 0 {
			return nil
		}
		papers := r.extractChunk(lines)
		for i := range lines {
			if id := lineID(lines[i]); id != "" {
				lastID = id
			}
			if papers[i] == nil {
				continue
			}
			extracted++
			pending = append(pending, *papers[i])
			if len(pending) >= r.batchSize {
				if err := emit(); err != nil {
					return err
				}
			}
		}
		lines = lines[:0]
		return nil
	}

	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lineNo++
		if lineNo%progressEvery == 0 {
			r.log.Info("corpus progress", "lines", lineNo, "extracted", extracted)
		}
		raw := sc.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		if skipping {
			if lineID(raw) == r.resumeID {
				skipping = false
			}
			continue
		}
		line := make([]byte, len(raw))
		copy(line, raw)
		lines = append(lines, line)
		if len(lines) >= r.chunkSize {
			if err := flushChunk(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan corpus: %w", err)
	}
	if skipping {
		// Snapshot was replaced or the checkpoint belongs to a different
		// file. Refusing to emit avoids silently re-ingesting everything.
		r.log.Warn("checkpoint id not found in corpus, nothing to process",
			"last_processed_id", r.resumeID, "lines", lineNo)
		return nil
	}
	if err := flushChunk(); err != nil {
		return err
	}
	if err := emit(); err != nil {
		return err
	}
	r.log.Info("corpus exhausted", "lines", lineNo, "extracted", extracted)
	return nil
}

func (r *Reader) extractChunk(lines [][]byte) []*models.ExtractedPaper {
	out := make([]*models.ExtractedPaper, len(lines))
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for i := range lines {
		i := i
		g.Go(func() error {
			out[i] = extractRecord(lines[i], r.norm, r.san)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// lineID pulls just the id field, tolerating records that are otherwise
// unusable.
func lineID(line []byte) string {
	var rec struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		return ""
	}
	return strings.TrimSpace(rec.ID)
}

// extractRecord validates and normalizes one raw snapshot line. It returns
// nil for records missing an id or having neither title nor abstract. Title
// and abstract are sanitized independently; a malformed update date clears to
// empty instead of dropping the record.
func extractRecord(line []byte, norm *taxonomy.Normalizer, san *sanitize.Sanitizer) *models.ExtractedPaper {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil
	}
	id := strings.TrimSpace(asString(raw["id"]))
	if id == "" {
		return nil
	}
	title := san.Clean(collapseSpace(asString(raw["title"])))
	abstract := san.Clean(asString(raw["abstract"]))
	if title == "" && abstract == "" {
		return nil
	}
	return &models.ExtractedPaper{
		ID:          id,
		Title:       title,
		Abstract:    abstract,
		Authors:     extractAuthors(raw),
		Categories:  extractCategories(asString(raw["categories"]), norm),
		DateUpdated: validDate(asString(raw["update_date"])),
	}
}

// validDate keeps a strict YYYY-MM-DD value and clears everything else.
func validDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	if _, err := util.ISODateToUnix(s); err != nil {
		return ""
	}
	return s
}

// extractAuthors prefers the structured authors_parsed field
// ([[last, first, suffix], ...]) over the free-form authors string.
func extractAuthors(raw map[string]any) []string {
	if parsed, ok := raw["authors_parsed"].([]any); ok && len(parsed) > 0 {
		out := make([]string, 0, len(parsed))
		for _, entry := range parsed {
			parts, ok := entry.([]any)
			if !ok || len(parts) == 0 {
				continue
			}
			last := strings.TrimSpace(asString(parts[0]))
			first := ""
			if len(parts) > 1 {
				first = strings.TrimSpace(asString(parts[1]))
			}
			name := strings.TrimSpace(first + " " + last)
			if name != "" {
				out = append(out, name)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if s := strings.TrimSpace(asString(raw["authors"])); s != "" {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{"Unknown"}
}

// extractCategories space-splits the raw category string and maps each token
// onto the canonical taxonomy, returning a sorted, deduplicated set.
func extractCategories(raw string, norm *taxonomy.Normalizer) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		c := tok
		if norm != nil {
			c = norm.Normalize(tok)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return ""
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
