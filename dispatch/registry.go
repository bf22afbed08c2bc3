package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-ingest/core"
)

// Registry routes events to their typed handlers. Registration is validated
// up front; dispatch of an unregistered type is a success, acknowledged and
// ignored, so providers can ship new event types without breaking ingestion.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]core.EventHandler
	logger   core.Logger
}

func NewRegistry(logger core.Logger) *Registry {
	return &Registry{
		handlers: map[string]core.EventHandler{},
		logger:   glog.Ensure(logger),
	}
}

func (r *Registry) Register(eventType string, handler core.EventHandler) error {
	if r == nil {
		return fmt.Errorf("dispatch: registry is not configured")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return badInput("dispatch: event type is required")
	}
	if handler == nil {
		return badInput(fmt.Sprintf("dispatch: handler for %q is required", eventType))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[eventType]; exists {
		return core.NewIngestError(
			fmt.Sprintf("dispatch: handler for %q already registered", eventType),
			goerrors.CategoryConflict,
			core.IngestErrorBadInput,
		)
	}
	r.handlers[eventType] = handler
	return nil
}

func (r *Registry) Handles(eventType string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[strings.TrimSpace(eventType)]
	return ok
}

func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		types = append(types, eventType)
	}
	return types
}

func (r *Registry) Dispatch(ctx context.Context, event core.InboundEvent) (core.HandlerResult, error) {
	if r == nil {
		return core.HandlerResult{}, fmt.Errorf("dispatch: registry is not configured")
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return core.HandlerResult{}, badInput("dispatch: event type is required")
	}

	r.mu.RLock()
	handler := r.handlers[eventType]
	r.mu.RUnlock()

	if handler == nil {
		if r.logger != nil {
			r.logger.Debug("no handler registered, acknowledging event",
				"event_id", event.ID,
				"event_type", eventType,
			)
		}
		return core.HandlerResult{
			Success: true,
			Message: fmt.Sprintf("event type %q unsupported, ignored", eventType),
		}, nil
	}

	result, err := handler.Handle(ctx, event)
	if err != nil {
		return core.HandlerResult{}, err
	}
	return result, nil
}

func badInput(message string) error {
	return core.NewIngestError(message, goerrors.CategoryBadInput, core.IngestErrorBadInput)
}

var (
	_ core.Dispatcher      = (*Registry)(nil)
	_ core.HandlerRegistry = (*Registry)(nil)
)
