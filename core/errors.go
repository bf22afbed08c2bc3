package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IngestErrorBadInput          = "INGEST_BAD_INPUT"
	IngestErrorSecurityViolation = "INGEST_SECURITY_VIOLATION"
	IngestErrorValidation        = "INGEST_VALIDATION_ERROR"
	IngestErrorRateLimited       = "INGEST_RATE_LIMITED"
	IngestErrorDuplicateReplay   = "INGEST_DUPLICATE_REPLAY"
	IngestErrorOrderingDeferred  = "INGEST_ORDERING_DEFERRED"
	IngestErrorOrderingRejected  = "INGEST_ORDERING_REJECTED"
	IngestErrorProcessing        = "INGEST_PROCESSING_ERROR"
	IngestErrorInternal          = "INGEST_INTERNAL_ERROR"
)

// IngestErrorMapper normalizes any error crossing the pipeline boundary into
// a go-errors envelope with a stable text code and an HTTP status.
func IngestErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIngestErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "signing secret"):
		return NewIngestError(err.Error(), goerrors.CategoryAuth, IngestErrorSecurityViolation)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return NewIngestError(err.Error(), goerrors.CategoryRateLimit, IngestErrorRateLimited)
	case strings.Contains(msg, "ordering"), strings.Contains(msg, "sequence"):
		return NewIngestError(err.Error(), goerrors.CategoryConflict, IngestErrorOrderingRejected)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return NewIngestError(err.Error(), goerrors.CategoryBadInput, IngestErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIngestErrorEnvelope(mapped)
}

func NewIngestError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIngestErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIngestErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = IngestHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIngestTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIngestTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return IngestErrorBadInput
	case goerrors.CategoryValidation:
		return IngestErrorValidation
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IngestErrorSecurityViolation
	case goerrors.CategoryRateLimit:
		return IngestErrorRateLimited
	case goerrors.CategoryConflict:
		return IngestErrorOrderingRejected
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return IngestErrorProcessing
	default:
		return IngestErrorInternal
	}
}

// IngestHTTPStatus maps an error category onto the endpoint's response
// contract: security failures 401, malformed input 400, throttling 429,
// everything unexpected 500.
func IngestHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
