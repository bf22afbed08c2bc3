package core

import (
	"strings"
	"time"
)

// InboundEvent is a parsed, validated provider event. Immutable once built.
type InboundEvent struct {
	ID         string
	Type       string
	EntityType string
	EntityID   string
	Payload    map[string]any
	CreatedAt  time.Time
	LiveMode   bool
	SourceIP   string
	RequestID  string
}

// HasEntity reports whether the event resolves to a billing entity. Events
// without one bypass ordering and process independently.
func (e InboundEvent) HasEntity() bool {
	return strings.TrimSpace(e.EntityType) != "" && strings.TrimSpace(e.EntityID) != ""
}

// ProcessContext carries the derived identities of a delivery through every
// pipeline stage. Built once after parsing; never mutated afterwards.
type ProcessContext struct {
	IdempotencyKey    string
	DeduplicationHash string
	SequenceNumber    int64
	EntityType        string
	EntityID          string
}

type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusSucceeded OperationStatus = "succeeded"
	OperationStatusFailed    OperationStatus = "failed"
)

// OperationResult is the canonical outcome snapshot stored per logical
// operation. Replays of the same operation receive this snapshot without
// re-invoking the handler.
type OperationResult struct {
	Success   bool
	Message   string
	Changes   []string
	ErrorKind string
}

type IdempotencyKey struct {
	KeyHash       string
	OperationType string
	Status        OperationStatus
	Result        *OperationResult
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

type ReservationOutcome string

const (
	ReservationNew        ReservationOutcome = "new"
	ReservationInProgress ReservationOutcome = "in_progress"
	ReservationCompleted  ReservationOutcome = "completed"
)

// Reservation is the answer to CheckAndReserve: either the caller won the
// insert race (New) or it observes the prior winner's state.
type Reservation struct {
	Outcome ReservationOutcome
	Key     IdempotencyKey
}

const DedupStrategyFirstWins = "first_wins"

type DedupRecord struct {
	ContentHash      string
	FirstSeenEventID string
	Strategy         string
	WindowExpiresAt  time.Time
}

type DedupDecision struct {
	Duplicate       bool
	OriginalEventID string
}

type SequenceDecision string

const (
	SequenceReady  SequenceDecision = "ready"
	SequenceDefer  SequenceDecision = "defer"
	SequenceReject SequenceDecision = "reject"
)

type EntitySequence struct {
	EntityType          string
	EntityID            string
	NextSequence        int64
	LastAppliedSequence int64
	UpdatedAt           time.Time
}

// HandlerResult is what a registered business handler returns. Changes lists
// the domain mutations the handler performed, for audit traceability.
type HandlerResult struct {
	Success bool
	Message string
	Changes []string
}

type AuditStage string

const (
	AuditStageReceived  AuditStage = "received"
	AuditStageValidated AuditStage = "validated"
	AuditStageDeduped   AuditStage = "deduped"
	AuditStageOrdered   AuditStage = "ordered"
	AuditStageProcessed AuditStage = "processed"
	AuditStageReplayed  AuditStage = "replayed"
	AuditStageFailed    AuditStage = "failed"
	AuditStageRejected  AuditStage = "rejected"
)

type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "info"
	AuditSeverityWarning  AuditSeverity = "warning"
	AuditSeverityError    AuditSeverity = "error"
	AuditSeverityCritical AuditSeverity = "critical"
)

// AuditRecord is append-only: never mutated once written.
type AuditRecord struct {
	ID               string
	EventID          string
	Stage            AuditStage
	Severity         AuditSeverity
	ErrorKind        string
	EntityType       string
	EntityID         string
	ProcessingTimeMs int64
	Metadata         map[string]any
	CreatedAt        time.Time
}

type AuditFilter struct {
	EventID    string
	Stage      AuditStage
	Severity   AuditSeverity
	EntityType string
	EntityID   string
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

type AuditPage struct {
	Items      []AuditRecord
	Page       int
	PerPage    int
	Total      int
	HasNext    bool
	NextCursor string
}

// AuditRetentionPolicy bounds how long and how many audit rows are kept.
type AuditRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}
