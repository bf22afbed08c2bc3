package dispatch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/goliatone/go-webhook-ingest/core"
)

type stubHandler struct {
	calls  int
	result core.HandlerResult
	err    error
}

func (h *stubHandler) Handle(_ context.Context, _ core.InboundEvent) (core.HandlerResult, error) {
	h.calls++
	return h.result, h.err
}

func TestRegister_Validation(t *testing.T) {
	registry := NewRegistry(nil)

	if err := registry.Register("", &stubHandler{}); err == nil {
		t.Fatalf("expected event type requirement")
	}
	if err := registry.Register("invoice.paid", nil); err == nil {
		t.Fatalf("expected handler requirement")
	}
	if err := registry.Register("invoice.paid", &stubHandler{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("invoice.paid", &stubHandler{}); err == nil {
		t.Fatalf("expected duplicate registration rejected")
	}
	if !registry.Handles("invoice.paid") {
		t.Fatalf("expected registered type reported")
	}
	if registry.Handles("invoice.voided") {
		t.Fatalf("expected unregistered type not reported")
	}
}

func TestDispatch_RoutesToHandler(t *testing.T) {
	registry := NewRegistry(nil)
	handler := &stubHandler{result: core.HandlerResult{
		Success: true,
		Message: "subscription synced",
		Changes: []string{"status"},
	}}
	if err := registry.Register("subscription.updated", handler); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := registry.Dispatch(context.Background(), core.InboundEvent{
		ID:   "evt_1",
		Type: "subscription.updated",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one handler call, got %d", handler.calls)
	}
	if !result.Success || result.Message != "subscription synced" {
		t.Fatalf("expected handler result, got %#v", result)
	}
	if len(result.Changes) != 1 || result.Changes[0] != "status" {
		t.Fatalf("expected changes carried, got %#v", result.Changes)
	}
}

func TestDispatch_UnregisteredTypeIsAcknowledged(t *testing.T) {
	registry := NewRegistry(nil)

	result, err := registry.Dispatch(context.Background(), core.InboundEvent{
		ID:   "evt_1",
		Type: "product.created",
	})
	if err != nil {
		t.Fatalf("expected unregistered type acknowledged, got %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success for unsupported type")
	}
	if !strings.Contains(result.Message, "unsupported, ignored") {
		t.Fatalf("expected unsupported marker in message, got %q", result.Message)
	}
}

func TestDispatch_HandlerErrorPropagates(t *testing.T) {
	registry := NewRegistry(nil)
	handler := &stubHandler{err: fmt.Errorf("downstream exploded")}
	if err := registry.Register("invoice.paid", handler); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := registry.Dispatch(context.Background(), core.InboundEvent{
		ID:   "evt_1",
		Type: "invoice.paid",
	}); err == nil {
		t.Fatalf("expected handler error propagated")
	}
}

func TestDispatch_BusinessFailureIsNotAnError(t *testing.T) {
	registry := NewRegistry(nil)
	handler := &stubHandler{result: core.HandlerResult{Success: false, Message: "plan not eligible"}}
	if err := registry.Register("subscription.updated", handler); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := registry.Dispatch(context.Background(), core.InboundEvent{
		ID:   "evt_1",
		Type: "subscription.updated",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Success {
		t.Fatalf("expected business failure surfaced in result")
	}
}

func TestEventHandlerFunc_Adapts(t *testing.T) {
	registry := NewRegistry(nil)
	called := false
	err := registry.Register("invoice.paid", core.EventHandlerFunc(func(context.Context, core.InboundEvent) (core.HandlerResult, error) {
		called = true
		return core.HandlerResult{Success: true}, nil
	}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Dispatch(context.Background(), core.InboundEvent{Type: "invoice.paid"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !called {
		t.Fatalf("expected func handler invoked")
	}
}
