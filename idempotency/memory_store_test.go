package idempotency

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

func newTestStore() (*MemoryStore, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(core.IdempotencyConfig{TTLDays: 30})
	store.Now = func() time.Time { return now }
	return store, &now
}

func TestCheckAndReserve_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	reservation, err := store.CheckAndReserve(ctx, "key-1", "subscription.updated")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reservation.Outcome != core.ReservationNew {
		t.Fatalf("expected new reservation, got %q", reservation.Outcome)
	}
	if reservation.Key.Status != core.OperationStatusPending {
		t.Fatalf("expected pending status, got %q", reservation.Key.Status)
	}

	reservation, err = store.CheckAndReserve(ctx, "key-1", "subscription.updated")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reservation.Outcome != core.ReservationInProgress {
		t.Fatalf("expected in-progress while pending, got %q", reservation.Outcome)
	}

	result := &core.OperationResult{Message: "subscription synced", Changes: []string{"status"}}
	if err := store.Complete(ctx, "key-1", true, result, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	reservation, err = store.CheckAndReserve(ctx, "key-1", "subscription.updated")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reservation.Outcome != core.ReservationCompleted {
		t.Fatalf("expected completed replay, got %q", reservation.Outcome)
	}
	if reservation.Key.Result == nil || reservation.Key.Result.Message != "subscription synced" {
		t.Fatalf("expected stored result snapshot, got %#v", reservation.Key.Result)
	}
	if !reservation.Key.Result.Success {
		t.Fatalf("expected success recorded")
	}
}

func TestComplete_SnapshotIsImmutable(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	if _, err := store.CheckAndReserve(ctx, "key-1", "op"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	first := &core.OperationResult{Message: "first outcome", Changes: []string{"a"}}
	if err := store.Complete(ctx, "key-1", true, first, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.Complete(ctx, "key-1", false, &core.OperationResult{Message: "second"}, nil); err != nil {
		t.Fatalf("late complete should be a no-op: %v", err)
	}

	first.Message = "mutated by caller"
	first.Changes[0] = "mutated"

	stored, err := store.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != core.OperationStatusSucceeded {
		t.Fatalf("expected first terminal status kept, got %q", stored.Status)
	}
	if stored.Result.Message != "first outcome" {
		t.Fatalf("expected snapshot isolated from caller mutation, got %q", stored.Result.Message)
	}
	if stored.Result.Changes[0] != "a" {
		t.Fatalf("expected changes snapshot isolated, got %q", stored.Result.Changes[0])
	}
}

func TestComplete_FailureCapturesErrorKind(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	if _, err := store.CheckAndReserve(ctx, "key-1", "op"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	cause := fmt.Errorf("downstream exploded")
	if err := store.Complete(ctx, "key-1", false, nil, cause); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stored, err := store.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != core.OperationStatusFailed {
		t.Fatalf("expected failed status, got %q", stored.Status)
	}
	if stored.Result == nil || stored.Result.ErrorKind == "" {
		t.Fatalf("expected error kind captured, got %#v", stored.Result)
	}
	if stored.Result.Message != "downstream exploded" {
		t.Fatalf("expected cause message captured, got %q", stored.Result.Message)
	}
}

func TestCheckAndReserve_ReusesExpiredKey(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore()

	if _, err := store.CheckAndReserve(ctx, "key-1", "op"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Complete(ctx, "key-1", true, nil, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	*now = now.Add(30*24*time.Hour + time.Second)

	reservation, err := store.CheckAndReserve(ctx, "key-1", "op")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reservation.Outcome != core.ReservationNew {
		t.Fatalf("expected expired key reusable, got %q", reservation.Outcome)
	}
}

func TestCheckAndReserve_FirstWriterWinsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	const workers = 32
	outcomes := make([]core.ReservationOutcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			reservation, err := store.CheckAndReserve(ctx, "key-1", "op")
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			outcomes[slot] = reservation.Outcome
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, outcome := range outcomes {
		if outcome == core.ReservationNew {
			winners++
		} else if outcome != core.ReservationInProgress {
			t.Fatalf("unexpected outcome %q", outcome)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore()

	if _, err := store.CheckAndReserve(ctx, "key-old", "op"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	*now = now.Add(31 * 24 * time.Hour)
	if _, err := store.CheckAndReserve(ctx, "key-new", "op"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	purged, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purge, got %d", purged)
	}
	if _, err := store.Get(ctx, "key-new"); err != nil {
		t.Fatalf("expected fresh key kept: %v", err)
	}
}

func TestCheckAndReserve_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	if _, err := store.CheckAndReserve(ctx, " ", "op"); err == nil {
		t.Fatalf("expected key hash requirement")
	}
	if _, err := store.CheckAndReserve(ctx, "key", ""); err == nil {
		t.Fatalf("expected operation type requirement")
	}
	if err := store.Complete(ctx, "missing", true, nil, nil); err == nil {
		t.Fatalf("expected not found for unreserved key")
	}
}
