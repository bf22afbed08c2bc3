package ingest

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-ingest/core"
)

const DefaultMaxBodyBytes = 1 << 20

// Endpoint is the HTTP face of the processor: POST with the raw payload and
// the provider signature header. The body is read before any JSON decoding
// because the signature covers the exact bytes on the wire.
type Endpoint struct {
	processor    *Processor
	header       string
	maxBodyBytes int64
	logger       core.Logger
}

func NewEndpoint(processor *Processor, logger core.Logger) *Endpoint {
	header := "Stripe-Signature"
	if processor != nil {
		if configured := strings.TrimSpace(processor.Config().Signature.Header); configured != "" {
			header = configured
		}
	}
	return &Endpoint{
		processor:    processor,
		header:       header,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       glog.Ensure(logger),
	}
}

type receiptResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	Processed bool   `json:"processed"`
	Deferred  bool   `json:"deferred,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Replayed  bool   `json:"replayed,omitempty"`
	Message   string `json:"message,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message  string `json:"message"`
	TextCode string `json:"text_code,omitempty"`
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e == nil || e.processor == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
			Message:  "ingest endpoint is not configured",
			TextCode: core.IngestErrorInternal,
		}})
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: errorBody{
			Message:  "method not allowed",
			TextCode: core.IngestErrorBadInput,
		}})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, e.maxBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
			Message:  "failed to read request body",
			TextCode: core.IngestErrorBadInput,
		}})
		return
	}
	if int64(len(payload)) > e.maxBodyBytes {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
			Message:  "request body exceeds limit",
			TextCode: core.IngestErrorBadInput,
		}})
		return
	}

	receipt, processErr := e.processor.Process(r.Context(), Delivery{
		Payload:         payload,
		SignatureHeader: r.Header.Get(e.header),
		SourceIP:        sourceIP(r),
		RequestID:       strings.TrimSpace(r.Header.Get("X-Request-Id")),
	})

	if receipt.Status >= http.StatusBadRequest {
		message := receipt.Message
		if message == "" && processErr != nil {
			message = processErr.Error()
		}
		writeJSON(w, receipt.Status, errorResponse{Error: errorBody{
			Message:  message,
			TextCode: receipt.ErrorKind,
		}})
		return
	}

	writeJSON(w, receipt.Status, receiptResponse{
		Received:  true,
		EventID:   receipt.EventID,
		Processed: receipt.Processed,
		Deferred:  receipt.Deferred,
		Duplicate: receipt.Duplicate,
		Replayed:  receipt.Replayed,
		Message:   receipt.Message,
	})
}

func sourceIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var _ http.Handler = (*Endpoint)(nil)
