package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhook-ingest/core"
	ingestmigrations "github.com/goliatone/go-webhook-ingest/migrations"
	sqlstore "github.com/goliatone/go-webhook-ingest/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "webhook-ingest-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"webhook_idempotency_keys",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "webhook_idempotency_keys" {
		t.Fatalf("expected webhook_idempotency_keys table, got %q", tableName)
	}
}

func TestIdempotencyStore_FirstWinsAndImmutableSnapshot(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, core.DefaultConfig())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IdempotencyStore()

	first, err := store.CheckAndReserve(ctx, "hash_sql_1", "subscription.updated")
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if first.Outcome != core.ReservationNew {
		t.Fatalf("expected new reservation, got %q", first.Outcome)
	}

	concurrent, err := store.CheckAndReserve(ctx, "hash_sql_1", "subscription.updated")
	if err != nil {
		t.Fatalf("concurrent reserve: %v", err)
	}
	if concurrent.Outcome != core.ReservationInProgress {
		t.Fatalf("expected in-progress observation, got %q", concurrent.Outcome)
	}

	if err := store.Complete(ctx, "hash_sql_1", true, &core.OperationResult{
		Message: "synced",
		Changes: []string{"status: trialing -> active"},
	}, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A late failure report must not rewrite the terminal snapshot.
	if err := store.Complete(ctx, "hash_sql_1", false, nil, fmt.Errorf("late failure")); err != nil {
		t.Fatalf("late complete: %v", err)
	}

	replay, err := store.CheckAndReserve(ctx, "hash_sql_1", "subscription.updated")
	if err != nil {
		t.Fatalf("replay reserve: %v", err)
	}
	if replay.Outcome != core.ReservationCompleted {
		t.Fatalf("expected completed observation, got %q", replay.Outcome)
	}
	if replay.Key.Result == nil || !replay.Key.Result.Success {
		t.Fatalf("expected stored success snapshot, got %#v", replay.Key.Result)
	}
	if replay.Key.Result.Message != "synced" {
		t.Fatalf("expected snapshot message preserved, got %q", replay.Key.Result.Message)
	}
	if len(replay.Key.Result.Changes) != 1 {
		t.Fatalf("expected snapshot changes preserved, got %#v", replay.Key.Result.Changes)
	}
}

func TestIdempotencyStore_ConcurrentReservationsSingleWinner(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, core.DefaultConfig())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IdempotencyStore()

	const workers = 8
	var wg sync.WaitGroup
	outcomes := make(chan core.ReservationOutcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reservation, reserveErr := store.CheckAndReserve(ctx, "hash_sql_race", "invoice.paid")
			if reserveErr != nil {
				t.Errorf("reserve: %v", reserveErr)
				return
			}
			outcomes <- reservation.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	winners := 0
	for outcome := range outcomes {
		if outcome == core.ReservationNew {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one reservation winner, got %d", winners)
	}
}

func TestIdempotencyStore_FailureSnapshotAndPurge(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	cfg := core.DefaultConfig()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, cfg)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IdempotencyStore()

	if _, err := store.CheckAndReserve(ctx, "hash_sql_fail", "invoice.paid"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Complete(ctx, "hash_sql_fail", false, nil, fmt.Errorf("downstream ledger unavailable")); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	key, err := store.Get(ctx, "hash_sql_fail")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if key.Status != core.OperationStatusFailed {
		t.Fatalf("expected failed status, got %q", key.Status)
	}
	if key.Result == nil || key.Result.ErrorKind != core.IngestErrorProcessing {
		t.Fatalf("expected processing error kind, got %#v", key.Result)
	}

	store.Now = func() time.Time {
		return time.Now().UTC().Add(cfg.Idempotency.TTL() + time.Hour)
	}
	purged, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if purged == 0 {
		t.Fatalf("expected expired key purged")
	}
	if _, err := store.Get(ctx, "hash_sql_fail"); err == nil {
		t.Fatalf("expected purged key to be gone")
	}
}

func TestDedupStore_FirstWinsAcrossWindow(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	cfg := core.DefaultConfig()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, cfg)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.DedupStore()

	first, err := store.CheckDuplicate(ctx, "content_sql_1", "evt_sql_a")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if first.Duplicate {
		t.Fatalf("expected first delivery to own the window")
	}

	second, err := store.CheckDuplicate(ctx, "content_sql_1", "evt_sql_b")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !second.Duplicate || second.OriginalEventID != "evt_sql_a" {
		t.Fatalf("expected duplicate pointing at evt_sql_a, got %#v", second)
	}

	store.Now = func() time.Time {
		return time.Now().UTC().Add(cfg.Dedup.Window() + time.Hour)
	}
	afterWindow, err := store.CheckDuplicate(ctx, "content_sql_1", "evt_sql_c")
	if err != nil {
		t.Fatalf("post-window check: %v", err)
	}
	if afterWindow.Duplicate {
		t.Fatalf("expected expired window to admit a new owner")
	}
}

func TestSequenceStore_NextAndMonotonicWatermark(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, core.DefaultConfig())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.SequenceStore()

	for want := int64(1); want <= 3; want++ {
		got, nextErr := store.Next(ctx, "subscription", "sub_sql_1")
		if nextErr != nil {
			t.Fatalf("next: %v", nextErr)
		}
		if got != want {
			t.Fatalf("expected sequence %d, got %d", want, got)
		}
	}

	last, err := store.LastApplied(ctx, "subscription", "sub_sql_1")
	if err != nil {
		t.Fatalf("last applied: %v", err)
	}
	if last != 0 {
		t.Fatalf("expected zero watermark before any apply, got %d", last)
	}

	if err := store.MarkApplied(ctx, "subscription", "sub_sql_1", 2); err != nil {
		t.Fatalf("mark applied: %v", err)
	}
	if err := store.MarkApplied(ctx, "subscription", "sub_sql_1", 1); err != nil {
		t.Fatalf("stale mark applied: %v", err)
	}
	last, err = store.LastApplied(ctx, "subscription", "sub_sql_1")
	if err != nil {
		t.Fatalf("last applied after marks: %v", err)
	}
	if last != 2 {
		t.Fatalf("expected watermark to hold at 2, got %d", last)
	}

	other, err := store.Next(ctx, "subscription", "sub_sql_2")
	if err != nil {
		t.Fatalf("next on second lane: %v", err)
	}
	if other != 1 {
		t.Fatalf("expected independent lane to start at 1, got %d", other)
	}
}

func TestAuditStore_WriteListPruneRedacts(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, core.DefaultConfig())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.AuditStore()

	base := time.Now().UTC().Add(-time.Hour)
	records := make([]core.AuditRecord, 0, 4)
	for i := 0; i < 4; i++ {
		records = append(records, core.AuditRecord{
			EventID:   fmt.Sprintf("evt_sql_%03d", i),
			Stage:     core.AuditStageProcessed,
			Severity:  core.AuditSeverityInfo,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Metadata: map[string]any{
				"api_key":  "plain-key",
				"event_id": fmt.Sprintf("evt_sql_%03d", i),
			},
		})
	}
	if err := store.WriteBatch(ctx, records); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	var rawMetadata string
	if err := client.DB().NewRaw(
		"SELECT metadata FROM webhook_audit_records WHERE event_id = ?",
		"evt_sql_000",
	).Scan(ctx, &rawMetadata); err != nil {
		t.Fatalf("load raw metadata: %v", err)
	}
	if strings.Contains(rawMetadata, "plain-key") {
		t.Fatalf("expected stored metadata redacted, got %s", rawMetadata)
	}
	if !strings.Contains(rawMetadata, "[REDACTED]") {
		t.Fatalf("expected redaction marker in stored metadata")
	}

	page, err := store.List(ctx, core.AuditFilter{EventID: "evt_sql_002"})
	if err != nil {
		t.Fatalf("list by event id: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].EventID != "evt_sql_002" {
		t.Fatalf("expected single match for evt_sql_002, got %#v", page.Items)
	}

	paged, err := store.List(ctx, core.AuditFilter{Page: 1, PerPage: 3})
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(paged.Items) != 3 || !paged.HasNext {
		t.Fatalf("expected first page of 3 with more remaining, got %d hasNext=%v", len(paged.Items), paged.HasNext)
	}
	if paged.Items[0].EventID != "evt_sql_003" {
		t.Fatalf("expected newest first ordering, got %q", paged.Items[0].EventID)
	}

	pruned, err := store.Prune(ctx, core.AuditRetentionPolicy{RowCap: 1})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 3 {
		t.Fatalf("expected 3 rows pruned by row cap, got %d", pruned)
	}
	remaining, err := store.List(ctx, core.AuditFilter{})
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if len(remaining.Items) != 1 || remaining.Items[0].EventID != "evt_sql_003" {
		t.Fatalf("expected newest row retained, got %#v", remaining.Items)
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:webhook-ingest-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = ingestmigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, ingestmigrations.DialectSQLite)
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
