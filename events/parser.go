package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

// Parser validates the structural contract of a provider event payload and
// produces an immutable core.InboundEvent. Signature freshness and event age
// are independent checks: a validly signed delivery can still carry an event
// too old to act on.
type Parser struct {
	idPrefix    string
	maxEventAge time.Duration

	Now func() time.Time
}

func NewParser(cfg core.ParserConfig) *Parser {
	idPrefix := strings.TrimSpace(cfg.IDPrefix)
	if idPrefix == "" {
		idPrefix = "evt_"
	}
	maxEventAge := cfg.MaxEventAge()
	if maxEventAge <= 0 {
		maxEventAge = time.Hour
	}
	return &Parser{
		idPrefix:    idPrefix,
		maxEventAge: maxEventAge,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Parser) Parse(_ context.Context, payload []byte) (core.InboundEvent, error) {
	if p == nil {
		return core.InboundEvent{}, validationError("events: parser is not configured")
	}
	if len(payload) == 0 {
		return core.InboundEvent{}, validationError("events: payload is required")
	}

	var envelope struct {
		ID       string          `json:"id"`
		Type     string          `json:"type"`
		Created  *int64          `json:"created"`
		LiveMode bool            `json:"livemode"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return core.InboundEvent{}, validationError(fmt.Sprintf("events: payload is not valid JSON: %v", err))
	}

	id := strings.TrimSpace(envelope.ID)
	if id == "" {
		return core.InboundEvent{}, validationError("events: id is required")
	}
	if !strings.HasPrefix(id, p.idPrefix) {
		return core.InboundEvent{}, validationError(fmt.Sprintf("events: id must carry the %q prefix", p.idPrefix))
	}
	if len(id) <= len(p.idPrefix) {
		return core.InboundEvent{}, validationError("events: id is missing its identifier body")
	}

	eventType := strings.TrimSpace(envelope.Type)
	if eventType == "" {
		return core.InboundEvent{}, validationError("events: type is required")
	}

	if envelope.Created == nil {
		return core.InboundEvent{}, validationError("events: created is required")
	}
	if *envelope.Created <= 0 {
		return core.InboundEvent{}, validationError("events: created must be a positive unix timestamp")
	}
	createdAt := time.Unix(*envelope.Created, 0).UTC()

	now := p.now()
	if age := now.Sub(createdAt); age > p.maxEventAge {
		return core.InboundEvent{}, validationError(
			fmt.Sprintf("events: event is %s old, exceeds the %s maximum age", age, p.maxEventAge),
		)
	}
	if createdAt.Sub(now) > p.maxEventAge {
		return core.InboundEvent{}, validationError("events: created is implausibly far in the future")
	}

	if len(envelope.Data) == 0 {
		return core.InboundEvent{}, validationError("events: data is required")
	}
	var data map[string]any
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return core.InboundEvent{}, validationError("events: data must be a JSON object")
	}

	entityType, entityID := extractEntity(data)

	return core.InboundEvent{
		ID:         id,
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    data,
		CreatedAt:  createdAt,
		LiveMode:   envelope.LiveMode,
	}, nil
}

func (p *Parser) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// extractEntity resolves the business entity from data.object: its kind from
// the "object" discriminator, its identity from "id". Events without both
// process independently of any ordering lane.
func extractEntity(data map[string]any) (string, string) {
	object, ok := data["object"].(map[string]any)
	if !ok {
		return "", ""
	}
	entityType, _ := object["object"].(string)
	entityID, _ := object["id"].(string)
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return "", ""
	}
	return entityType, entityID
}

func validationError(message string) error {
	return core.NewIngestError(message, goerrors.CategoryValidation, core.IngestErrorValidation)
}

var _ core.EventParser = (*Parser)(nil)
