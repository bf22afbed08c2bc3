package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// RequestVerifier authenticates a raw delivery before anything else touches
// it. Returns the validated signature timestamp on success.
type RequestVerifier interface {
	Verify(ctx context.Context, payload []byte, signatureHeader string) (time.Time, error)
}

// RateLimiter bounds request volume per source. Implementations fail open:
// internal limiter failures must never block legitimate traffic.
type RateLimiter interface {
	Allow(ctx context.Context, sourceKey string) bool
}

type EventParser interface {
	Parse(ctx context.Context, payload []byte) (InboundEvent, error)
}

// KeyDeriver maps an event to its logical-operation key and its semantic
// content hash. The two identities are distinct on purpose: keyHash answers
// "is this the same operation", contentHash answers "is this the same
// meaning under a different delivery id".
type KeyDeriver interface {
	OperationKey(event InboundEvent) (string, error)
	ContentHash(event InboundEvent) (string, error)
}

type IdempotencyStore interface {
	CheckAndReserve(ctx context.Context, keyHash string, operationType string) (Reservation, error)
	Complete(ctx context.Context, keyHash string, success bool, result *OperationResult, cause error) error
	Get(ctx context.Context, keyHash string) (IdempotencyKey, error)
	PurgeExpired(ctx context.Context) (int, error)
}

type DeduplicationStore interface {
	CheckDuplicate(ctx context.Context, contentHash string, eventID string) (DedupDecision, error)
	PurgeExpired(ctx context.Context) (int, error)
}

// EntitySequenceStore holds the per-entity monotonic counters. Next assigns
// the enqueue-time sequence; LastApplied and MarkApplied track causal
// application order. Implementations arbitrate concurrent callers with
// atomic updates or row-level uniqueness.
type EntitySequenceStore interface {
	Next(ctx context.Context, entityType string, entityID string) (int64, error)
	LastApplied(ctx context.Context, entityType string, entityID string) (int64, error)
	MarkApplied(ctx context.Context, entityType string, entityID string, seq int64) error
}

type EventHandler interface {
	Handle(ctx context.Context, event InboundEvent) (HandlerResult, error)
}

type EventHandlerFunc func(ctx context.Context, event InboundEvent) (HandlerResult, error)

func (f EventHandlerFunc) Handle(ctx context.Context, event InboundEvent) (HandlerResult, error) {
	return f(ctx, event)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event InboundEvent) (HandlerResult, error)
}

type HandlerRegistry interface {
	Register(eventType string, handler EventHandler) error
	Handles(eventType string) bool
}

// AuditSink records every receipt, rejection, and terminal outcome.
// Implementations buffer and batch; Flush forces pending entries out and
// Close drains on shutdown.
type AuditSink interface {
	Record(ctx context.Context, record AuditRecord) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type AuditWriter interface {
	WriteBatch(ctx context.Context, records []AuditRecord) error
}

type AuditReader interface {
	List(ctx context.Context, filter AuditFilter) (AuditPage, error)
}

type AuditRetentionPruner interface {
	Prune(ctx context.Context, policy AuditRetentionPolicy) (int, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
