package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

func seedRecords(t *testing.T, writer *MemoryWriter, base time.Time, count int) {
	t.Helper()
	records := make([]core.AuditRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, core.AuditRecord{
			ID:         fmt.Sprintf("rec_%03d", i),
			EventID:    fmt.Sprintf("evt_%03d", i),
			Stage:      core.AuditStageProcessed,
			Severity:   core.AuditSeverityInfo,
			EntityType: "subscription",
			EntityID:   "sub_1",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	if err := writer.WriteBatch(context.Background(), records); err != nil {
		t.Fatalf("write batch: %v", err)
	}
}

func TestList_FiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	writer := NewMemoryWriter()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedRecords(t, writer, base, 5)

	if err := writer.WriteBatch(ctx, []core.AuditRecord{{
		ID:        "rec_fail",
		EventID:   "evt_fail",
		Stage:     core.AuditStageFailed,
		Severity:  core.AuditSeverityError,
		CreatedAt: base.Add(time.Hour),
	}}); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	page, err := writer.List(ctx, core.AuditFilter{Stage: core.AuditStageFailed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].EventID != "evt_fail" {
		t.Fatalf("expected stage filter to match one record, got %#v", page)
	}

	page, err = writer.List(ctx, core.AuditFilter{Stage: core.AuditStageProcessed, Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 {
		t.Fatalf("expected paginated results, got total=%d items=%d", page.Total, len(page.Items))
	}
	if !page.HasNext || page.NextCursor == "" {
		t.Fatalf("expected next page, got %#v", page)
	}
	if page.Items[0].EventID != "evt_004" {
		t.Fatalf("expected newest first, got %q", page.Items[0].EventID)
	}

	lastPage, err := writer.List(ctx, core.AuditFilter{Stage: core.AuditStageProcessed, Page: 3, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lastPage.Items) != 1 || lastPage.HasNext {
		t.Fatalf("expected final page with one item, got %#v", lastPage)
	}
}

func TestList_TimeRange(t *testing.T) {
	ctx := context.Background()
	writer := NewMemoryWriter()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedRecords(t, writer, base, 5)

	from := base.Add(90 * time.Second)
	to := base.Add(3 * time.Minute)
	page, err := writer.List(ctx, core.AuditFilter{From: &from, To: &to})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected two records in range, got %d", page.Total)
	}
}

func TestList_EventIDLookup(t *testing.T) {
	ctx := context.Background()
	writer := NewMemoryWriter()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedRecords(t, writer, base, 3)

	page, err := writer.List(ctx, core.AuditFilter{EventID: "evt_001"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "rec_001" {
		t.Fatalf("expected event id lookup, got %#v", page)
	}
}

func TestPrune_TTLAndRowCap(t *testing.T) {
	ctx := context.Background()
	writer := NewMemoryWriter()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	writer.Now = func() time.Time { return base.Add(10 * time.Minute) }
	seedRecords(t, writer, base, 6)

	pruned, err := writer.Prune(ctx, core.AuditRetentionPolicy{TTL: 7 * time.Minute})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 4 {
		t.Fatalf("expected four records pruned by ttl, got %d", pruned)
	}

	pruned, err = writer.Prune(ctx, core.AuditRetentionPolicy{RowCap: 1})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected row cap to prune one more, got %d", pruned)
	}

	page, err := writer.List(ctx, core.AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || page.Items[0].EventID != "evt_005" {
		t.Fatalf("expected newest record retained, got %#v", page)
	}
}
