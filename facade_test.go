package webhookingest

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	ingestcommand "github.com/goliatone/go-webhook-ingest/command"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/ingest"
	ingestquery "github.com/goliatone/go-webhook-ingest/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	processor := &stubFacadeProcessor{}

	facade, err := NewFacade(processor, WithStoreFactory(&stubFacadeStoreFactory{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.ReplayDelivery == nil || commands.PruneAudit == nil || commands.PurgeExpired == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.ListAuditRecords == nil || queries.GetIdempotencyKey == nil || queries.GetSequenceWatermark == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	processor := &stubFacadeProcessor{
		receipt: ingest.Receipt{Status: 200, EventID: "evt_facade", Processed: true},
	}
	factory := &stubFacadeStoreFactory{watermark: 4}

	facade, err := NewFacade(processor, WithStoreFactory(factory))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	collector := gocmd.NewResult[ingest.Receipt]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := facade.Commands().ReplayDelivery.Execute(ctx, ingestcommand.ReplayDeliveryMessage{
		Payload:         []byte(`{"id":"evt_facade"}`),
		SignatureHeader: "t=1,v1=aa",
	}); err != nil {
		t.Fatalf("execute replay command: %v", err)
	}
	if processor.calls != 1 {
		t.Fatalf("expected processor delegation")
	}
	receipt, ok := collector.Load()
	if !ok || receipt.EventID != "evt_facade" {
		t.Fatalf("unexpected replay receipt: %#v", receipt)
	}

	watermark, err := facade.Queries().GetSequenceWatermark.Query(context.Background(), ingestquery.GetSequenceWatermarkMessage{
		EntityType: "subscription",
		EntityID:   "sub_1",
	})
	if err != nil {
		t.Fatalf("query sequence watermark: %v", err)
	}
	if watermark != 4 {
		t.Fatalf("unexpected watermark from factory-resolved reader: %d", watermark)
	}
}

func TestFacade_ResolvesPurgersFromFactory(t *testing.T) {
	processor := &stubFacadeProcessor{}
	factory := &stubFacadeStoreFactory{purged: 3}

	facade, err := NewFacade(processor, WithStoreFactory(factory))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	collector := gocmd.NewResult[int]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := facade.Commands().PurgeExpired.Execute(ctx, ingestcommand.PurgeExpiredMessage{}); err != nil {
		t.Fatalf("execute purge command: %v", err)
	}
	total, ok := collector.Load()
	if !ok || total != 6 {
		t.Fatalf("expected both factory stores purged, got %d ok=%v", total, ok)
	}
}

type stubFacadeProcessor struct {
	receipt ingest.Receipt
	calls   int
}

func (s *stubFacadeProcessor) Process(_ context.Context, _ ingest.Delivery) (ingest.Receipt, error) {
	s.calls++
	return s.receipt, nil
}

type stubFacadeStoreFactory struct {
	watermark int64
	purged    int
}

func (f *stubFacadeStoreFactory) AuditStore() *stubFacadeAuditStore {
	return &stubFacadeAuditStore{}
}

func (f *stubFacadeStoreFactory) IdempotencyStore() *stubFacadePurgeStore {
	return &stubFacadePurgeStore{purged: f.purged}
}

func (f *stubFacadeStoreFactory) DedupStore() *stubFacadePurgeStore {
	return &stubFacadePurgeStore{purged: f.purged}
}

func (f *stubFacadeStoreFactory) SequenceStore() *stubFacadeSequenceStore {
	return &stubFacadeSequenceStore{watermark: f.watermark}
}

type stubFacadeAuditStore struct{}

func (s *stubFacadeAuditStore) List(context.Context, core.AuditFilter) (core.AuditPage, error) {
	return core.AuditPage{}, nil
}

func (s *stubFacadeAuditStore) Prune(context.Context, core.AuditRetentionPolicy) (int, error) {
	return 0, nil
}

type stubFacadePurgeStore struct {
	purged int
}

func (s *stubFacadePurgeStore) PurgeExpired(context.Context) (int, error) {
	return s.purged, nil
}

func (s *stubFacadePurgeStore) Get(context.Context, string) (core.IdempotencyKey, error) {
	return core.IdempotencyKey{}, nil
}

type stubFacadeSequenceStore struct {
	watermark int64
}

func (s *stubFacadeSequenceStore) LastApplied(context.Context, string, string) (int64, error) {
	return s.watermark, nil
}
