package models

import (
	"strings"
	"time"
)

// ExtractedPaper is one validated, normalized corpus record. At least one of
// Title/Abstract is non-empty; records failing that are dropped during parsing.
type ExtractedPaper struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Abstract    string   `json:"abstract"`
	Authors     []string `json:"authors"`
	Categories  []string `json:"categories"`
	DateUpdated string   `json:"date_updated,omitempty"`
}

// CombinedText is the text handed to the embedding model.
func (p ExtractedPaper) CombinedText() string {
	return strings.TrimSpace(p.Title + " " + p.Abstract)
}

// StoredPaper is an ExtractedPaper plus its embedding vector. The vector length
// always equals the configured vector size.
type StoredPaper struct {
	ExtractedPaper
	Embedding []float32 `json:"embedding"`
}

// ResultMetadata is the payload returned with every search hit.
type ResultMetadata struct {
	PaperID     string   `json:"paper_id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Categories  []string `json:"categories"`
	DateUpdated string   `json:"date_updated"`
}

// SearchResult is a single query hit. Distance is nil for exact-id lookups and
// metadata-only scrolls, and 1 - similarity for vector search, so lower always
// means closer.
type SearchResult struct {
	Distance *float64       `json:"distance"`
	Metadata ResultMetadata `json:"metadata"`
}

// Checkpoint marks the last record that was fully embedded and stored, so an
// interrupted ingestion run can resume without reprocessing.
type Checkpoint struct {
	LastProcessedID string    `json:"last_processed_id"`
	Timestamp       time.Time `json:"timestamp"`
	BatchSize       int       `json:"batch_size"`
}
