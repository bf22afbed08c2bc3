package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-ingest/core"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// WindowStore arbitrates a sliding-window reservation atomically: it prunes
// hits at or before cutoff, and appends a hit at `at` only when fewer than
// limit hits remain inside the window.
type WindowStore interface {
	Reserve(ctx context.Context, sourceKey string, at time.Time, cutoff time.Time, limit int) (Decision, error)
}

type ThrottledError struct {
	SourceKey  string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: source %q rate limit exceeded, retry in %s", strings.TrimSpace(e.SourceKey), e.RetryAfter)
}

func (e ThrottledError) ToIngestError() *goerrors.Error {
	metadata := map[string]any{
		"source_key": strings.TrimSpace(e.SourceKey),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.IngestErrorRateLimited).
		WithMetadata(metadata)
}

// SlidingWindowLimiter bounds request volume per source key. Store failures
// fail open: legitimate traffic is never blocked by limiter bookkeeping.
type SlidingWindowLimiter struct {
	store       WindowStore
	maxRequests int
	window      time.Duration
	logger      core.Logger

	Now func() time.Time
}

func NewSlidingWindowLimiter(cfg core.RateLimitConfig, store WindowStore, logger core.Logger) *SlidingWindowLimiter {
	if store == nil {
		store = NewMemoryWindowStore()
	}
	maxRequests := cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100
	}
	window := cfg.Window()
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindowLimiter{
		store:       store,
		maxRequests: maxRequests,
		window:      window,
		logger:      glog.Ensure(logger),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, sourceKey string) bool {
	decision, err := l.Check(ctx, sourceKey)
	if err != nil {
		return true
	}
	return decision.Allowed
}

func (l *SlidingWindowLimiter) Check(ctx context.Context, sourceKey string) (Decision, error) {
	if l == nil || l.store == nil {
		return Decision{Allowed: true}, nil
	}
	sourceKey = strings.TrimSpace(sourceKey)
	if sourceKey == "" {
		sourceKey = "unknown"
	}

	now := l.now()
	decision, err := l.store.Reserve(ctx, sourceKey, now, now.Add(-l.window), l.maxRequests)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("rate limit store failed, allowing request",
				"source_key", sourceKey,
				"error", err.Error(),
			)
		}
		return Decision{Allowed: true}, err
	}
	return decision, nil
}

func (l *SlidingWindowLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// MemoryWindowStore keeps per-source hit timestamps behind one mutex. Hits
// are recorded only for admitted requests.
type MemoryWindowStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{hits: map[string][]time.Time{}}
}

func (s *MemoryWindowStore) Reserve(_ context.Context, sourceKey string, at time.Time, cutoff time.Time, limit int) (Decision, error) {
	if s == nil {
		return Decision{}, fmt.Errorf("ratelimit: memory window store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hits == nil {
		s.hits = map[string][]time.Time{}
	}

	kept := s.hits[sourceKey][:0:len(s.hits[sourceKey])]
	for _, hit := range s.hits[sourceKey] {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}

	if len(kept) >= limit {
		s.hits[sourceKey] = kept
		retryAfter := kept[0].Sub(cutoff)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	kept = append(kept, at)
	s.hits[sourceKey] = kept
	return Decision{Allowed: true, Remaining: limit - len(kept)}, nil
}

var (
	_ core.RateLimiter = (*SlidingWindowLimiter)(nil)
	_ WindowStore      = (*MemoryWindowStore)(nil)
)
