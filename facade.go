package webhookingest

import (
	"fmt"
	"reflect"

	ingestcommand "github.com/goliatone/go-webhook-ingest/command"
	"github.com/goliatone/go-webhook-ingest/core"
	ingestquery "github.com/goliatone/go-webhook-ingest/query"
)

type Commands struct {
	ReplayDelivery *ingestcommand.ReplayDeliveryCommand
	PruneAudit     *ingestcommand.PruneAuditCommand
	PurgeExpired   *ingestcommand.PurgeExpiredCommand
}

type Queries struct {
	ListAuditRecords     *ingestquery.ListAuditRecordsQuery
	GetIdempotencyKey    *ingestquery.GetIdempotencyKeyQuery
	GetSequenceWatermark *ingestquery.GetSequenceWatermarkQuery
}

// Facade bundles the pipeline with its command and query handlers so hosts
// wire one value instead of a dozen constructors.
type Facade struct {
	processor ingestcommand.DeliveryProcessor
	commands  Commands
	queries   Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	storeFactory    any
	auditReader     core.AuditReader
	auditPruner     ingestcommand.AuditPruner
	keyReader       ingestquery.IdempotencyKeyReader
	watermarkReader ingestquery.SequenceWatermarkReader
	purgers         []ingestcommand.ExpiryPurger
}

// WithStoreFactory resolves any reader, pruner, or purger not set explicitly
// from the factory's accessor methods.
func WithStoreFactory(factory any) FacadeOption {
	return func(options *facadeOptions) {
		options.storeFactory = factory
	}
}

func WithAuditReader(reader core.AuditReader) FacadeOption {
	return func(options *facadeOptions) {
		options.auditReader = reader
	}
}

func WithAuditPruner(pruner ingestcommand.AuditPruner) FacadeOption {
	return func(options *facadeOptions) {
		options.auditPruner = pruner
	}
}

func WithIdempotencyKeyReader(reader ingestquery.IdempotencyKeyReader) FacadeOption {
	return func(options *facadeOptions) {
		options.keyReader = reader
	}
}

func WithSequenceWatermarkReader(reader ingestquery.SequenceWatermarkReader) FacadeOption {
	return func(options *facadeOptions) {
		options.watermarkReader = reader
	}
}

func WithExpiryPurgers(purgers ...ingestcommand.ExpiryPurger) FacadeOption {
	return func(options *facadeOptions) {
		options.purgers = append(options.purgers, purgers...)
	}
}

func NewFacade(processor ingestcommand.DeliveryProcessor, opts ...FacadeOption) (*Facade, error) {
	if processor == nil {
		return nil, fmt.Errorf("webhookingest: delivery processor is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	if cfg.auditReader == nil {
		cfg.auditReader = resolveFromFactory[core.AuditReader](cfg.storeFactory, "AuditStore")
	}
	if cfg.auditPruner == nil {
		cfg.auditPruner = resolveFromFactory[ingestcommand.AuditPruner](cfg.storeFactory, "AuditStore")
	}
	if cfg.keyReader == nil {
		cfg.keyReader = resolveFromFactory[ingestquery.IdempotencyKeyReader](cfg.storeFactory, "IdempotencyStore")
	}
	if cfg.watermarkReader == nil {
		cfg.watermarkReader = resolveFromFactory[ingestquery.SequenceWatermarkReader](cfg.storeFactory, "SequenceStore")
	}
	if len(cfg.purgers) == 0 {
		if purger := resolveFromFactory[ingestcommand.ExpiryPurger](cfg.storeFactory, "IdempotencyStore"); purger != nil {
			cfg.purgers = append(cfg.purgers, purger)
		}
		if purger := resolveFromFactory[ingestcommand.ExpiryPurger](cfg.storeFactory, "DedupStore"); purger != nil {
			cfg.purgers = append(cfg.purgers, purger)
		}
	}

	facade := &Facade{processor: processor}
	facade.commands = Commands{
		ReplayDelivery: ingestcommand.NewReplayDeliveryCommand(processor),
		PruneAudit:     ingestcommand.NewPruneAuditCommand(cfg.auditPruner),
		PurgeExpired:   ingestcommand.NewPurgeExpiredCommand(cfg.purgers...),
	}
	facade.queries = Queries{
		ListAuditRecords:     ingestquery.NewListAuditRecordsQuery(cfg.auditReader),
		GetIdempotencyKey:    ingestquery.NewGetIdempotencyKeyQuery(cfg.keyReader),
		GetSequenceWatermark: ingestquery.NewGetSequenceWatermarkQuery(cfg.watermarkReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Processor() ingestcommand.DeliveryProcessor {
	if f == nil {
		return nil
	}
	return f.processor
}

// resolveFromFactory calls the named zero-arg accessor on the factory and
// returns its result when it satisfies T.
func resolveFromFactory[T any](factory any, accessor string) T {
	var zero T
	if factory == nil {
		return zero
	}

	factoryValue := reflect.ValueOf(factory)
	if !factoryValue.IsValid() {
		return zero
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return zero
	}
	method := factoryValue.MethodByName(accessor)
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return zero
	}

	results, ok := safeReflectCall(method)
	if !ok || len(results) != 1 {
		return zero
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return zero
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return zero
	}
	resolved, ok := candidate.Interface().(T)
	if !ok {
		return zero
	}
	return resolved
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
