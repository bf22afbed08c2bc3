package core

import "testing"

func TestRedactSensitiveMap_RedactsNestedSecrets(t *testing.T) {
	source := map[string]any{
		"event_id":     "evt_123",
		"api_token":    "tok_abc",
		"card_number":  "4242424242424242",
		"customer_ssn": "111-22-3333",
		"nested": map[string]any{
			"password":  "hunter2",
			"entity_id": "sub_9",
			"items": []any{
				map[string]any{"secret_key": "sk_live", "amount": 100},
				"plain",
			},
		},
	}

	redacted := RedactSensitiveMap(source)

	if redacted["event_id"] != "evt_123" {
		t.Fatalf("expected traceability key preserved, got %v", redacted["event_id"])
	}
	if redacted["api_token"] != RedactedValue {
		t.Fatalf("expected api_token redacted, got %v", redacted["api_token"])
	}
	if redacted["card_number"] != RedactedValue {
		t.Fatalf("expected card_number redacted, got %v", redacted["card_number"])
	}
	if redacted["customer_ssn"] != RedactedValue {
		t.Fatalf("expected customer_ssn redacted, got %v", redacted["customer_ssn"])
	}

	nested := redacted["nested"].(map[string]any)
	if nested["password"] != RedactedValue {
		t.Fatalf("expected nested password redacted, got %v", nested["password"])
	}
	if nested["entity_id"] != "sub_9" {
		t.Fatalf("expected nested entity_id preserved, got %v", nested["entity_id"])
	}
	items := nested["items"].([]any)
	item := items[0].(map[string]any)
	if item["secret_key"] != RedactedValue {
		t.Fatalf("expected slice-nested secret redacted, got %v", item["secret_key"])
	}
	if item["amount"] != 100 {
		t.Fatalf("expected plain value preserved, got %v", item["amount"])
	}

	if source["api_token"] != "tok_abc" {
		t.Fatalf("expected source map untouched, got %v", source["api_token"])
	}
}

func TestRedactSensitiveMap_EmptyInput(t *testing.T) {
	redacted := RedactSensitiveMap(nil)
	if redacted == nil || len(redacted) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", redacted)
	}
}

func TestRedactSensitiveMap_TraceabilityKeysWinOverTokens(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"idempotency_key": "a1b2",
		"content_hash":    "c3d4",
	})
	if redacted["idempotency_key"] != "a1b2" {
		t.Fatalf("expected idempotency_key preserved, got %v", redacted["idempotency_key"])
	}
	if redacted["content_hash"] != "c3d4" {
		t.Fatalf("expected content_hash preserved, got %v", redacted["content_hash"])
	}
}
