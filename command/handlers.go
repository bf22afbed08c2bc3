package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/ingest"
)

type DeliveryProcessor interface {
	Process(ctx context.Context, delivery ingest.Delivery) (ingest.Receipt, error)
}

type AuditPruner interface {
	Prune(ctx context.Context, policy core.AuditRetentionPolicy) (int, error)
}

type ExpiryPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// ReplayDeliveryCommand re-submits a raw delivery. The idempotency layer
// decides whether the handler actually runs again.
type ReplayDeliveryCommand struct {
	processor DeliveryProcessor
}

func NewReplayDeliveryCommand(processor DeliveryProcessor) *ReplayDeliveryCommand {
	return &ReplayDeliveryCommand{processor: processor}
}

func (c *ReplayDeliveryCommand) Execute(ctx context.Context, msg ReplayDeliveryMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: delivery processor is required")
	}
	receipt, err := c.processor.Process(ctx, ingest.Delivery{
		Payload:         msg.Payload,
		SignatureHeader: msg.SignatureHeader,
		SourceIP:        msg.SourceIP,
		RequestID:       msg.RequestID,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, receipt)
	return nil
}

type PruneAuditCommand struct {
	pruner AuditPruner
}

func NewPruneAuditCommand(pruner AuditPruner) *PruneAuditCommand {
	return &PruneAuditCommand{pruner: pruner}
}

func (c *PruneAuditCommand) Execute(ctx context.Context, msg PruneAuditMessage) error {
	if c == nil || c.pruner == nil {
		return commandDependencyError("command: audit pruner is required")
	}
	pruned, err := c.pruner.Prune(ctx, core.AuditRetentionPolicy{
		TTL:    time.Duration(msg.TTLDays) * 24 * time.Hour,
		RowCap: msg.RowCap,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, pruned)
	return nil
}

// PurgeExpiredCommand sweeps expired idempotency keys and dedup windows in
// one pass. Purgers run in order; the first failure stops the sweep.
type PurgeExpiredCommand struct {
	purgers []ExpiryPurger
}

func NewPurgeExpiredCommand(purgers ...ExpiryPurger) *PurgeExpiredCommand {
	return &PurgeExpiredCommand{purgers: purgers}
}

func (c *PurgeExpiredCommand) Execute(ctx context.Context, _ PurgeExpiredMessage) error {
	if c == nil || len(c.purgers) == 0 {
		return commandDependencyError("command: at least one expiry purger is required")
	}
	total := 0
	for _, purger := range c.purgers {
		if purger == nil {
			continue
		}
		purged, err := purger.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		total += purged
	}
	storeResult(ctx, total)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
