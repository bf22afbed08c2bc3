package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-webhook-ingest/core"
)

// Deriver computes the two identities of a delivery. The operation key hashes
// event type + entity + creation instant + the canonical object snapshot,
// never the delivery id: a provider retry of the same operation must land on
// the same key even under a fresh delivery id. The content hash drops the
// creation instant and covers the full data payload, so distinct events that
// carry identical semantic content still collapse in the dedup window.
type Deriver struct{}

func NewDeriver() *Deriver {
	return &Deriver{}
}

func (d *Deriver) OperationKey(event core.InboundEvent) (string, error) {
	if strings.TrimSpace(event.Type) == "" {
		return "", fmt.Errorf("events: event type is required for key derivation")
	}
	subset := operationSubset(event.Payload)
	canonical, err := CanonicalJSON(subset)
	if err != nil {
		return "", fmt.Errorf("events: canonicalize operation subset: %w", err)
	}
	createdAt := strconv.FormatInt(event.CreatedAt.Unix(), 10)
	return hashParts("op", event.Type, event.EntityType, event.EntityID, createdAt, canonical), nil
}

func (d *Deriver) ContentHash(event core.InboundEvent) (string, error) {
	if strings.TrimSpace(event.Type) == "" {
		return "", fmt.Errorf("events: event type is required for content hashing")
	}
	canonical, err := CanonicalJSON(event.Payload)
	if err != nil {
		return "", fmt.Errorf("events: canonicalize payload: %w", err)
	}
	return hashParts("content", event.Type, event.EntityType, event.EntityID, canonical), nil
}

// operationSubset narrows the payload to the object snapshot when present.
// Delivery envelope noise around the object never changes the operation.
func operationSubset(payload map[string]any) any {
	if payload == nil {
		return map[string]any{}
	}
	if object, ok := payload["object"].(map[string]any); ok {
		return object
	}
	return payload
}

func hashParts(kind string, parts ...string) string {
	digest := sha256.New()
	digest.Write([]byte(kind))
	for _, part := range parts {
		digest.Write([]byte{0})
		digest.Write([]byte(part))
	}
	return hex.EncodeToString(digest.Sum(nil))
}

// CanonicalJSON renders a JSON value deterministically: object keys sorted,
// no insignificant whitespace. Key order in the source payload never changes
// the derived hashes.
func CanonicalJSON(value any) (string, error) {
	var builder strings.Builder
	if err := writeCanonical(&builder, value); err != nil {
		return "", err
	}
	return builder.String(), nil
}

func writeCanonical(builder *strings.Builder, value any) error {
	switch typed := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		builder.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				builder.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return err
			}
			builder.Write(encodedKey)
			builder.WriteByte(':')
			if err := writeCanonical(builder, typed[key]); err != nil {
				return err
			}
		}
		builder.WriteByte('}')
		return nil
	case []any:
		builder.WriteByte('[')
		for i, item := range typed {
			if i > 0 {
				builder.WriteByte(',')
			}
			if err := writeCanonical(builder, item); err != nil {
				return err
			}
		}
		builder.WriteByte(']')
		return nil
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return err
		}
		builder.Write(encoded)
		return nil
	}
}

var _ core.KeyDeriver = (*Deriver)(nil)
