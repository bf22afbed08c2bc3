package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

func TestGetIdempotencyKeyMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetIdempotencyKeyMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.IngestErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.IngestErrorBadInput, rich.TextCode)
	}
}

func TestListAuditRecordsQuery_NilReaderReturnsRichError(t *testing.T) {
	var qry *ListAuditRecordsQuery
	_, err := qry.Query(context.Background(), ListAuditRecordsMessage{})
	if err == nil {
		t.Fatalf("expected query dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.IngestErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.IngestErrorInternal, rich.TextCode)
	}
}
