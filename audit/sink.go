package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"github.com/goliatone/go-webhook-ingest/core"
)

// BufferedSink batches audit records towards a writer. Entries leave the
// buffer when it reaches the batch size, when the flush interval elapses, or
// immediately for high-severity entries. Metadata is redacted before the
// record ever enters the buffer.
type BufferedSink struct {
	writer        core.AuditWriter
	batchSize     int
	flushInterval time.Duration
	logger        core.Logger

	mu     sync.Mutex
	buffer []core.AuditRecord
	closed bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	Now func() time.Time
}

func NewBufferedSink(cfg core.AuditConfig, writer core.AuditWriter, logger core.Logger) (*BufferedSink, error) {
	if writer == nil {
		return nil, fmt.Errorf("audit: writer is required")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval()
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	sink := &BufferedSink{
		writer:        writer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        glog.Ensure(logger),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	go sink.flushLoop()
	return sink, nil
}

func (s *BufferedSink) Record(ctx context.Context, record core.AuditRecord) error {
	if s == nil || s.writer == nil {
		return fmt.Errorf("audit: sink is not configured")
	}

	record = s.normalize(record)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("audit: sink is closed")
	}
	s.buffer = append(s.buffer, record)
	full := len(s.buffer) >= s.batchSize
	s.mu.Unlock()

	if full || isHighSeverity(record.Severity) {
		return s.Flush(ctx)
	}
	return nil
}

// Flush drains the buffer synchronously. A writer failure puts the batch
// back so a later flush can retry it.
func (s *BufferedSink) Flush(ctx context.Context) error {
	if s == nil || s.writer == nil {
		return fmt.Errorf("audit: sink is not configured")
	}

	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if err := s.writer.WriteBatch(ctx, batch); err != nil {
		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Error("audit batch write failed",
				"batch_size", len(batch),
				"error", err.Error(),
			)
		}
		return err
	}
	return nil
}

// Close stops the flush loop and drains what remains.
func (s *BufferedSink) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return s.Flush(ctx)
}

func (s *BufferedSink) flushLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil && s.logger != nil {
				s.logger.Warn("periodic audit flush failed", "error", err.Error())
			}
		}
	}
}

func (s *BufferedSink) normalize(record core.AuditRecord) core.AuditRecord {
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	if strings.TrimSpace(string(record.Severity)) == "" {
		record.Severity = core.AuditSeverityInfo
	}
	record.Metadata = core.RedactSensitiveMap(record.Metadata)
	return record
}

func (s *BufferedSink) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// PendingCount reports buffered, unflushed records.
func (s *BufferedSink) PendingCount() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

func isHighSeverity(severity core.AuditSeverity) bool {
	switch severity {
	case core.AuditSeverityError, core.AuditSeverityCritical:
		return true
	default:
		return false
	}
}

var _ core.AuditSink = (*BufferedSink)(nil)
