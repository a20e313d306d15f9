package storage

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// RequestLimit caps outstanding database requests across the write and read
// paths. Store and Searcher share one instance so a heavy ingest cannot
// starve queries of connections, and vice versa.
type RequestLimit struct {
	sem *semaphore.Weighted
}

func NewRequestLimit(n int) *RequestLimit {
	if n <= 0 {
		n = 20
	}
	return &RequestLimit{sem: semaphore.NewWeighted(int64(n))}
}

func (l *RequestLimit) acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *RequestLimit) release() {
	l.sem.Release(1)
}
