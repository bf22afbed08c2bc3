package command

import "strings"

const (
	TypeReplayDelivery = "ingest.command.delivery.replay"
	TypePruneAudit     = "ingest.command.audit.prune"
	TypePurgeExpired   = "ingest.command.retention.purge_expired"
)

// ReplayDeliveryMessage pushes a raw provider delivery back through the full
// pipeline. The signature header must still verify: replays are not a
// backdoor around authentication.
type ReplayDeliveryMessage struct {
	Payload         []byte
	SignatureHeader string
	SourceIP        string
	RequestID       string
}

func (ReplayDeliveryMessage) Type() string { return TypeReplayDelivery }

func (m ReplayDeliveryMessage) Validate() error {
	if len(m.Payload) == 0 {
		return commandValidationError("payload", "payload is required")
	}
	if strings.TrimSpace(m.SignatureHeader) == "" {
		return commandValidationError("signature_header", "signature header is required")
	}
	return nil
}

type PruneAuditMessage struct {
	TTLDays int
	RowCap  int
}

func (PruneAuditMessage) Type() string { return TypePruneAudit }

func (m PruneAuditMessage) Validate() error {
	if m.TTLDays < 0 {
		return commandValidationError("ttl_days", "ttl days must be >= 0")
	}
	if m.RowCap < 0 {
		return commandValidationError("row_cap", "row cap must be >= 0")
	}
	if m.TTLDays == 0 && m.RowCap == 0 {
		return commandValidationError("ttl_days", "a ttl or row cap is required")
	}
	return nil
}

type PurgeExpiredMessage struct{}

func (PurgeExpiredMessage) Type() string { return TypePurgeExpired }

func (PurgeExpiredMessage) Validate() error { return nil }
