package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

const (
	ReasonMissingSecret     = "missing_secret"
	ReasonMalformedHeader   = "malformed_header"
	ReasonStaleTimestamp    = "stale_timestamp"
	ReasonSignatureMismatch = "signature_mismatch"
)

const SchemeV1 = "v1"

// Verifier authenticates raw deliveries against a shared signing secret.
// The header carries a unix timestamp and one or more v1 signatures:
// t=<unix>,v1=<hex>[,v1=<hex>...]. The signed message is "{t}.{payload}".
type Verifier struct {
	secret    string
	tolerance time.Duration

	Now func() time.Time
}

func NewVerifier(cfg core.SignatureConfig) *Verifier {
	tolerance := cfg.Tolerance()
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{
		secret:    strings.TrimSpace(cfg.Secret),
		tolerance: tolerance,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (v *Verifier) Verify(_ context.Context, payload []byte, signatureHeader string) (time.Time, error) {
	if v == nil || v.secret == "" {
		return time.Time{}, securityError("signature: signing secret is required", ReasonMissingSecret)
	}

	timestamp, candidates, err := parseHeader(signatureHeader)
	if err != nil {
		return time.Time{}, err
	}

	now := v.now()
	age := now.Sub(timestamp)
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return time.Time{}, securityError(
			fmt.Sprintf("signature: timestamp outside %s tolerance", v.tolerance),
			ReasonStaleTimestamp,
		)
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		if subtle.ConstantTimeCompare(candidate, expected) == 1 {
			return timestamp, nil
		}
	}
	return time.Time{}, securityError("signature: header signature mismatch", ReasonSignatureMismatch)
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func parseHeader(header string) (time.Time, [][]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return time.Time{}, nil, securityError("signature: header is required", ReasonMalformedHeader)
	}

	var (
		timestamp  time.Time
		sawT       bool
		candidates [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return time.Time{}, nil, securityError("signature: malformed header element", ReasonMalformedHeader)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return time.Time{}, nil, securityError("signature: invalid timestamp element", ReasonMalformedHeader)
			}
			timestamp = time.Unix(unix, 0).UTC()
			sawT = true
		case SchemeV1:
			decoded, err := hex.DecodeString(value)
			if err != nil || len(decoded) == 0 {
				return time.Time{}, nil, securityError("signature: invalid v1 signature encoding", ReasonMalformedHeader)
			}
			candidates = append(candidates, decoded)
		default:
			// Unknown schemes are ignored so the format can evolve.
		}
	}

	if !sawT {
		return time.Time{}, nil, securityError("signature: timestamp element is required", ReasonMalformedHeader)
	}
	if len(candidates) == 0 {
		return time.Time{}, nil, securityError("signature: no v1 signature present", ReasonMalformedHeader)
	}
	return timestamp, candidates, nil
}

func securityError(message string, reason string) error {
	return core.NewIngestError(message, goerrors.CategoryAuth, core.IngestErrorSecurityViolation).
		WithMetadata(map[string]any{"reason": reason})
}

// FailureReason extracts the typed verification failure from an error, or
// returns an empty string for non-verification errors.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ""
	}
	reason, _ := richErr.Metadata["reason"].(string)
	return reason
}

var _ core.RequestVerifier = (*Verifier)(nil)
