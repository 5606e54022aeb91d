package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxAge bounds how long any timestamp is retained by MemoryStore.
const DefaultMaxAge = time.Hour

type window struct {
	hits []time.Time // ascending
	span time.Duration
}

// MemoryStore keeps sliding windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	maxAge  time.Duration
}

// NewMemoryStore creates a MemoryStore. maxAge <= 0 selects DefaultMaxAge.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &MemoryStore{
		windows: make(map[string]*window),
		maxAge:  maxAge,
	}
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, max int, span time.Duration, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	w.span = span
	w.hits = trim(w.hits, now.Add(-span))

	res := Result{}
	if len(w.hits) < max {
		w.hits = append(w.hits, now)
		res.Allowed = true
		res.Remaining = max - len(w.hits)
	}

	if len(w.hits) == 0 {
		res.ResetAt = now.Add(span)
	} else {
		res.ResetAt = w.hits[0].Add(span)
	}
	if !res.Allowed {
		res.RetryAfter = res.ResetAt.Sub(now)
	}
	return res, nil
}

// Prune implements Store. Keys whose windows have emptied are removed.
func (s *MemoryStore) Prune(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		span := w.span
		if span <= 0 || span > s.maxAge {
			span = s.maxAge
		}
		w.hits = trim(w.hits, now.Add(-span))
		if len(w.hits) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// trim drops hits at or before cutoff, reusing the backing array.
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
