package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/audit"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/dedupe"
	"github.com/goliatone/go-webhook-ingest/dispatch"
	"github.com/goliatone/go-webhook-ingest/events"
	"github.com/goliatone/go-webhook-ingest/idempotency"
	"github.com/goliatone/go-webhook-ingest/ordering"
	"github.com/goliatone/go-webhook-ingest/ratelimit"
	"github.com/goliatone/go-webhook-ingest/retry"
	"github.com/goliatone/go-webhook-ingest/signature"
)

// Delivery is a raw inbound request: the exact payload bytes, the signature
// header, and transport metadata.
type Delivery struct {
	Payload         []byte
	SignatureHeader string
	SourceIP        string
	RequestID       string
}

// Receipt is the terminal answer for a delivery. Status carries the HTTP
// mapping; the flags describe which short-circuit, if any, resolved it.
type Receipt struct {
	Status       int
	EventID      string
	Processed    bool
	Deferred     bool
	Duplicate    bool
	Replayed     bool
	Rejected     bool
	Message      string
	ErrorKind    string
	AttemptsUsed int
}

// Processor threads a delivery through verification, throttling, parsing,
// idempotency, deduplication, ordering, and retried dispatch, auditing every
// stage along the way. Each delivery runs on its caller's goroutine; shared
// state lives behind the injected stores.
type Processor struct {
	config          core.Config
	verifier        core.RequestVerifier
	rateLimiter     core.RateLimiter
	parser          core.EventParser
	keyDeriver      core.KeyDeriver
	idempotency     core.IdempotencyStore
	deduplication   core.DeduplicationStore
	sequencer       *ordering.Sequencer
	retrier         *retry.Orchestrator
	registry        *dispatch.Registry
	dispatcher      core.Dispatcher
	auditSink       core.AuditSink
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metricsRecorder core.MetricsRecorder
	errorMapper     core.ErrorMapper

	Now func() time.Time
}

func NewProcessor(ctx context.Context, runtime core.Config, options ...Option) (*Processor, error) {
	builder := defaultProcessorBuilder(runtime)
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("ingest: load config: %w", err)
	}
	cfg, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve config: %w", err)
	}

	processor := &Processor{
		config:          cfg,
		verifier:        builder.verifier,
		rateLimiter:     builder.rateLimiter,
		parser:          builder.parser,
		keyDeriver:      builder.keyDeriver,
		idempotency:     builder.idempotency,
		deduplication:   builder.deduplication,
		sequencer:       builder.sequencer,
		dispatcher:      builder.dispatcher,
		auditSink:       builder.auditSink,
		logger:          builder.logger,
		loggerProvider:  builder.loggerProvider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}

	if processor.verifier == nil {
		processor.verifier = signature.NewVerifier(cfg.Signature)
	}
	if processor.rateLimiter == nil {
		processor.rateLimiter = ratelimit.NewSlidingWindowLimiter(cfg.RateLimit, nil, processor.logger)
	}
	if processor.parser == nil {
		processor.parser = events.NewParser(cfg.Parser)
	}
	if processor.keyDeriver == nil {
		processor.keyDeriver = events.NewDeriver()
	}
	if processor.idempotency == nil {
		processor.idempotency = idempotency.NewMemoryStore(cfg.Idempotency)
	}
	if processor.deduplication == nil {
		processor.deduplication = dedupe.NewMemoryStore(cfg.Dedup)
	}
	if processor.sequencer == nil {
		processor.sequencer = ordering.NewSequencer(cfg.Ordering, builder.sequenceStore)
	}
	processor.retrier = retry.NewOrchestrator(cfg.Retry, processor.logger)
	if processor.dispatcher == nil {
		processor.registry = dispatch.NewRegistry(processor.logger)
		processor.dispatcher = processor.registry
	}
	if processor.auditSink == nil {
		writer := builder.auditWriter
		if writer == nil {
			writer = audit.NewMemoryWriter()
		}
		sink, err := audit.NewBufferedSink(cfg.Audit, writer, processor.logger)
		if err != nil {
			return nil, fmt.Errorf("ingest: build audit sink: %w", err)
		}
		processor.auditSink = sink
	}
	if processor.errorMapper == nil {
		processor.errorMapper = core.IngestErrorMapper
	}
	return processor, nil
}

func (p *Processor) Config() core.Config {
	if p == nil {
		return core.Config{}
	}
	return p.config
}

// Registry exposes handler registration when the processor owns its own
// dispatch registry. Nil when a custom dispatcher was injected.
func (p *Processor) Registry() *dispatch.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

func (p *Processor) AuditSink() core.AuditSink {
	if p == nil {
		return nil
	}
	return p.auditSink
}

func (p *Processor) Close(ctx context.Context) error {
	if p == nil || p.auditSink == nil {
		return nil
	}
	return p.auditSink.Close(ctx)
}

// Process runs one delivery end to end and returns its receipt. The returned
// error is the mapped boundary error for non-2xx receipts.
func (p *Processor) Process(ctx context.Context, delivery Delivery) (Receipt, error) {
	if p == nil {
		return Receipt{Status: http.StatusInternalServerError}, fmt.Errorf("ingest: processor is not configured")
	}
	startedAt := p.now()

	if _, err := p.verifier.Verify(ctx, delivery.Payload, delivery.SignatureHeader); err != nil {
		mapped := p.mapError(err)
		p.audit(ctx, core.AuditRecord{
			Stage:     core.AuditStageRejected,
			Severity:  core.AuditSeverityError,
			ErrorKind: mapped.TextCode,
			Metadata: map[string]any{
				"source_ip":  delivery.SourceIP,
				"request_id": delivery.RequestID,
				"reason":     signature.FailureReason(err),
			},
		})
		p.observeStage(ctx, "verify", "rejected", startedAt, nil)
		return Receipt{Status: statusFor(mapped), Rejected: true, ErrorKind: mapped.TextCode, Message: mapped.Message}, mapped
	}

	sourceKey := strings.TrimSpace(delivery.SourceIP)
	if !p.rateLimiter.Allow(ctx, sourceKey) {
		throttled := ratelimit.ThrottledError{SourceKey: sourceKey}.ToIngestError()
		p.audit(ctx, core.AuditRecord{
			Stage:     core.AuditStageRejected,
			Severity:  core.AuditSeverityWarning,
			ErrorKind: throttled.TextCode,
			Metadata: map[string]any{
				"source_ip":  delivery.SourceIP,
				"request_id": delivery.RequestID,
			},
		})
		p.observeStage(ctx, "rate_limit", "rejected", startedAt, nil)
		return Receipt{Status: http.StatusTooManyRequests, Rejected: true, ErrorKind: throttled.TextCode, Message: throttled.Message}, throttled
	}

	event, err := p.parser.Parse(ctx, delivery.Payload)
	if err != nil {
		mapped := p.mapError(err)
		p.audit(ctx, core.AuditRecord{
			Stage:     core.AuditStageRejected,
			Severity:  core.AuditSeverityWarning,
			ErrorKind: mapped.TextCode,
			Metadata: map[string]any{
				"source_ip":  delivery.SourceIP,
				"request_id": delivery.RequestID,
			},
		})
		p.observeStage(ctx, "parse", "rejected", startedAt, nil)
		return Receipt{Status: statusFor(mapped), Rejected: true, ErrorKind: mapped.TextCode, Message: mapped.Message}, mapped
	}
	event.SourceIP = strings.TrimSpace(delivery.SourceIP)
	event.RequestID = strings.TrimSpace(delivery.RequestID)

	p.audit(ctx, core.AuditRecord{
		EventID:    event.ID,
		Stage:      core.AuditStageReceived,
		Severity:   core.AuditSeverityInfo,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Metadata: map[string]any{
			"event_type": event.Type,
			"source_ip":  event.SourceIP,
			"request_id": event.RequestID,
			"live_mode":  event.LiveMode,
		},
	})

	operationKey, err := p.keyDeriver.OperationKey(event)
	if err != nil {
		return p.internalFailure(ctx, event, startedAt, err)
	}
	contentHash, err := p.keyDeriver.ContentHash(event)
	if err != nil {
		return p.internalFailure(ctx, event, startedAt, err)
	}
	pctx := core.ProcessContext{
		IdempotencyKey:    operationKey,
		DeduplicationHash: contentHash,
		EntityType:        event.EntityType,
		EntityID:          event.EntityID,
	}

	reservation, err := p.idempotency.CheckAndReserve(ctx, pctx.IdempotencyKey, event.Type)
	if err != nil {
		return p.internalFailure(ctx, event, startedAt, err)
	}
	switch reservation.Outcome {
	case core.ReservationCompleted:
		return p.replayReceipt(ctx, event, reservation, startedAt), nil
	case core.ReservationInProgress:
		p.observeStage(ctx, "idempotency", "in_progress", startedAt, &event)
		return Receipt{
			Status:  http.StatusOK,
			EventID: event.ID,
			Message: "operation already in progress, acknowledged",
		}, nil
	}

	decision, err := p.deduplication.CheckDuplicate(ctx, pctx.DeduplicationHash, event.ID)
	if err != nil {
		return p.internalFailure(ctx, event, startedAt, err)
	}
	if decision.Duplicate {
		message := fmt.Sprintf("duplicate of %s, skipped", decision.OriginalEventID)
		snapshotStored := p.completeOperation(ctx, event.ID, pctx.IdempotencyKey, true, &core.OperationResult{
			Success: true,
			Message: message,
		}, nil)
		metadata := map[string]any{
			"event_type":        event.Type,
			"original_event_id": decision.OriginalEventID,
			"content_hash":      pctx.DeduplicationHash,
		}
		if !snapshotStored {
			metadata["idempotency_complete_failed"] = true
		}
		p.audit(ctx, core.AuditRecord{
			EventID:    event.ID,
			Stage:      core.AuditStageDeduped,
			Severity:   core.AuditSeverityInfo,
			EntityType: event.EntityType,
			EntityID:   event.EntityID,
			Metadata:   metadata,
		})
		p.observeStage(ctx, "dedupe", "duplicate", startedAt, &event)
		return Receipt{
			Status:    http.StatusOK,
			EventID:   event.ID,
			Duplicate: true,
			Message:   message,
		}, nil
	}

	if event.HasEntity() {
		seq, err := p.sequencer.NextSequence(ctx, event.EntityType, event.EntityID)
		if err != nil {
			return p.internalFailure(ctx, event, startedAt, err)
		}
		pctx.SequenceNumber = seq

		decision, orderErr := p.sequencer.CanProcess(ctx, ordering.Pending{Event: event, Context: pctx})
		switch decision {
		case core.SequenceDefer:
			p.audit(ctx, core.AuditRecord{
				EventID:    event.ID,
				Stage:      core.AuditStageOrdered,
				Severity:   core.AuditSeverityInfo,
				EntityType: event.EntityType,
				EntityID:   event.EntityID,
				Metadata: map[string]any{
					"event_type":      event.Type,
					"sequence_number": seq,
					"decision":        string(core.SequenceDefer),
				},
			})
			p.observeStage(ctx, "ordering", "deferred", startedAt, &event)
			return Receipt{
				Status:   http.StatusOK,
				EventID:  event.ID,
				Deferred: true,
				Message:  "accepted, deferred until predecessors apply",
			}, nil
		case core.SequenceReject:
			mapped := p.mapError(orderErr)
			snapshotStored := p.completeOperation(ctx, event.ID, pctx.IdempotencyKey, false, nil, mapped)
			metadata := map[string]any{
				"event_type":      event.Type,
				"sequence_number": seq,
			}
			if !snapshotStored {
				metadata["idempotency_complete_failed"] = true
			}
			p.audit(ctx, core.AuditRecord{
				EventID:    event.ID,
				Stage:      core.AuditStageRejected,
				Severity:   core.AuditSeverityError,
				ErrorKind:  mapped.TextCode,
				EntityType: event.EntityType,
				EntityID:   event.EntityID,
				Metadata:   metadata,
			})
			p.observeStage(ctx, "ordering", "rejected", startedAt, &event)
			return Receipt{
				Status:    http.StatusOK,
				EventID:   event.ID,
				Rejected:  true,
				ErrorKind: mapped.TextCode,
				Message:   mapped.Message,
			}, nil
		default:
			if orderErr != nil {
				return p.internalFailure(ctx, event, startedAt, orderErr)
			}
		}
	}

	return p.executeReady(ctx, ordering.Pending{Event: event, Context: pctx}, startedAt)
}

// executeReady dispatches a ready delivery with retry, records the terminal
// outcome, advances the entity watermark, and re-runs any parked successors
// the advancement released.
func (p *Processor) executeReady(ctx context.Context, pending ordering.Pending, startedAt time.Time) (Receipt, error) {
	event := pending.Event
	pctx := pending.Context

	result, attempts, dispatchErr := p.retrier.Execute(ctx, event.Type, func(ctx context.Context) (core.HandlerResult, error) {
		return p.dispatcher.Dispatch(ctx, event)
	})

	processingTime := p.now().Sub(startedAt)

	if dispatchErr != nil {
		mapped := p.mapError(dispatchErr)
		snapshotStored := p.completeOperation(ctx, event.ID, pctx.IdempotencyKey, false, &core.OperationResult{
			Message:   mapped.Message,
			ErrorKind: mapped.TextCode,
		}, mapped)
		metadata := map[string]any{
			"event_type":    event.Type,
			"attempts_used": attempts,
		}
		if !snapshotStored {
			metadata["idempotency_complete_failed"] = true
		}
		p.audit(ctx, core.AuditRecord{
			EventID:          event.ID,
			Stage:            core.AuditStageFailed,
			Severity:         core.AuditSeverityCritical,
			ErrorKind:        mapped.TextCode,
			EntityType:       event.EntityType,
			EntityID:         event.EntityID,
			ProcessingTimeMs: processingTime.Milliseconds(),
			Metadata:         metadata,
		})
		p.observeStage(ctx, "dispatch", "failed", startedAt, &event)
		p.advanceWatermark(ctx, pending)
		return Receipt{
			Status:       http.StatusInternalServerError,
			EventID:      event.ID,
			ErrorKind:    mapped.TextCode,
			Message:      mapped.Message,
			AttemptsUsed: attempts,
		}, mapped
	}

	operationResult := &core.OperationResult{
		Success: result.Success,
		Message: result.Message,
		Changes: append([]string(nil), result.Changes...),
	}
	snapshotStored := p.completeOperation(ctx, event.ID, pctx.IdempotencyKey, result.Success, operationResult, nil)

	severity := core.AuditSeverityInfo
	if !result.Success {
		severity = core.AuditSeverityWarning
	}
	metadata := map[string]any{
		"event_type":    event.Type,
		"attempts_used": attempts,
		"success":       result.Success,
		"changes":       operationResult.Changes,
	}
	if !snapshotStored {
		metadata["idempotency_complete_failed"] = true
	}
	p.audit(ctx, core.AuditRecord{
		EventID:          event.ID,
		Stage:            core.AuditStageProcessed,
		Severity:         severity,
		EntityType:       event.EntityType,
		EntityID:         event.EntityID,
		ProcessingTimeMs: processingTime.Milliseconds(),
		Metadata:         metadata,
	})
	p.observeStage(ctx, "dispatch", outcomeTag(result.Success), startedAt, &event)
	p.advanceWatermark(ctx, pending)

	return Receipt{
		Status:       http.StatusOK,
		EventID:      event.ID,
		Processed:    result.Success,
		Message:      result.Message,
		AttemptsUsed: attempts,
	}, nil
}

// advanceWatermark marks the delivery applied on every terminal outcome,
// success or durable failure, so parked successors never starve. Released
// successors run inline on this goroutine.
func (p *Processor) advanceWatermark(ctx context.Context, pending ordering.Pending) {
	if !pending.Event.HasEntity() || pending.Context.SequenceNumber == 0 {
		return
	}
	released, err := p.sequencer.MarkApplied(ctx, pending.Context.EntityType, pending.Context.EntityID, pending.Context.SequenceNumber)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("advance sequence watermark failed",
				"entity_type", pending.Context.EntityType,
				"entity_id", pending.Context.EntityID,
				"sequence_number", pending.Context.SequenceNumber,
				"error", err.Error(),
			)
		}
		return
	}
	for _, successor := range released {
		if _, err := p.executeReady(ctx, successor, p.now()); err != nil && p.logger != nil {
			p.logger.Warn("released successor failed",
				"event_id", successor.Event.ID,
				"sequence_number", successor.Context.SequenceNumber,
				"error", err.Error(),
			)
		}
	}
}

func (p *Processor) replayReceipt(ctx context.Context, event core.InboundEvent, reservation core.Reservation, startedAt time.Time) Receipt {
	stored := reservation.Key.Result
	receipt := Receipt{
		Status:   http.StatusOK,
		EventID:  event.ID,
		Replayed: true,
		Message:  "idempotent replay, stored result returned",
	}
	if stored != nil {
		receipt.Processed = stored.Success
		if strings.TrimSpace(stored.Message) != "" {
			receipt.Message = stored.Message
		}
		receipt.ErrorKind = stored.ErrorKind
	}
	p.audit(ctx, core.AuditRecord{
		EventID:    event.ID,
		Stage:      core.AuditStageReplayed,
		Severity:   core.AuditSeverityInfo,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Metadata: map[string]any{
			"event_type": event.Type,
			"status":     string(reservation.Key.Status),
		},
	})
	p.observeStage(ctx, "idempotency", "replay", startedAt, &event)
	return receipt
}

func (p *Processor) internalFailure(ctx context.Context, event core.InboundEvent, startedAt time.Time, err error) (Receipt, error) {
	mapped := p.mapError(err)
	if mapped.Code < http.StatusInternalServerError {
		mapped.Code = http.StatusInternalServerError
	}
	p.audit(ctx, core.AuditRecord{
		EventID:    event.ID,
		Stage:      core.AuditStageFailed,
		Severity:   core.AuditSeverityCritical,
		ErrorKind:  mapped.TextCode,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Metadata: map[string]any{
			"event_type": event.Type,
		},
	})
	p.observeStage(ctx, "pipeline", "internal_error", startedAt, &event)
	return Receipt{
		Status:    http.StatusInternalServerError,
		EventID:   event.ID,
		ErrorKind: mapped.TextCode,
		Message:   mapped.Message,
	}, mapped
}

// completeOperation records the terminal snapshot for an operation key. A
// failure here strands the key pending while the side effect already ran, so
// it is logged and surfaced to the caller for the audit trail rather than
// swallowed.
func (p *Processor) completeOperation(ctx context.Context, eventID string, keyHash string, success bool, result *core.OperationResult, cause error) bool {
	err := p.idempotency.Complete(ctx, keyHash, success, result, cause)
	if err == nil {
		return true
	}
	if p.logger != nil {
		p.logger.Error("idempotency complete failed",
			"event_id", eventID,
			"success", success,
			"error", err.Error(),
		)
	}
	return false
}

func (p *Processor) audit(ctx context.Context, record core.AuditRecord) {
	if p.auditSink == nil {
		return
	}
	if err := p.auditSink.Record(ctx, record); err != nil && p.logger != nil {
		p.logger.Warn("audit record failed",
			"event_id", record.EventID,
			"stage", string(record.Stage),
			"error", err.Error(),
		)
	}
}

func (p *Processor) observeStage(ctx context.Context, stage string, outcome string, startedAt time.Time, event *core.InboundEvent) {
	tags := map[string]string{
		"stage":   stage,
		"outcome": outcome,
	}
	if event != nil && strings.TrimSpace(event.Type) != "" {
		tags["event_type"] = event.Type
	}
	core.RecordCounter(ctx, p.metricsRecorder, "ingest."+stage+".total", 1, tags)
	core.RecordHistogram(ctx, p.metricsRecorder, "ingest."+stage+".duration_ms", float64(p.now().Sub(startedAt).Milliseconds()), tags)
}

func (p *Processor) mapError(err error) *goerrors.Error {
	mapper := p.errorMapper
	if mapper == nil {
		mapper = core.IngestErrorMapper
	}
	return mapper(err)
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func statusFor(err *goerrors.Error) int {
	if err == nil {
		return http.StatusOK
	}
	if err.Code > 0 {
		return err.Code
	}
	return core.IngestHTTPStatus(err.Category)
}

func outcomeTag(success bool) string {
	if success {
		return "success"
	}
	return "business_failure"
}
