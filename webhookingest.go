package webhookingest

import (
	"context"

	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/ingest"
)

type Config = core.Config

type SignatureConfig = core.SignatureConfig
type RateLimitConfig = core.RateLimitConfig
type ParserConfig = core.ParserConfig
type RetryConfig = core.RetryConfig
type IdempotencyConfig = core.IdempotencyConfig
type DedupConfig = core.DedupConfig
type OrderingConfig = core.OrderingConfig
type AuditConfig = core.AuditConfig

type Option = ingest.Option

type Processor = ingest.Processor
type Endpoint = ingest.Endpoint
type Delivery = ingest.Delivery
type Receipt = ingest.Receipt

type InboundEvent = core.InboundEvent
type EventHandler = core.EventHandler
type HandlerResult = core.HandlerResult
type AuditRecord = core.AuditRecord
type AuditFilter = core.AuditFilter
type AuditPage = core.AuditPage

var (
	WithLogger             = ingest.WithLogger
	WithLoggerProvider     = ingest.WithLoggerProvider
	WithMetricsRecorder    = ingest.WithMetricsRecorder
	WithErrorMapper        = ingest.WithErrorMapper
	WithConfigProvider     = ingest.WithConfigProvider
	WithOptionsResolver    = ingest.WithOptionsResolver
	WithVerifier           = ingest.WithVerifier
	WithRateLimiter        = ingest.WithRateLimiter
	WithParser             = ingest.WithParser
	WithKeyDeriver         = ingest.WithKeyDeriver
	WithIdempotencyStore   = ingest.WithIdempotencyStore
	WithDeduplicationStore = ingest.WithDeduplicationStore
	WithSequenceStore      = ingest.WithSequenceStore
	WithSequencer          = ingest.WithSequencer
	WithDispatcher         = ingest.WithDispatcher
	WithAuditSink          = ingest.WithAuditSink
	WithAuditWriter        = ingest.WithAuditWriter
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewProcessor(ctx context.Context, cfg Config, opts ...Option) (*Processor, error) {
	return ingest.NewProcessor(ctx, cfg, opts...)
}

func NewEndpoint(processor *Processor, logger core.Logger) *Endpoint {
	return ingest.NewEndpoint(processor, logger)
}

// Setup builds the processor and wraps it in a facade in one call.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*Facade, error) {
	processor, err := ingest.NewProcessor(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return NewFacade(processor)
}
