// Package signature authenticates payment provider webhooks.
//
// The provider sends a header of the form
//
//	t=1700000000,v1=5257a869e7ec...,v1=...
//
// where every v1 value is hex(HMAC-SHA256(secret, "<t>.<raw body>")).
// Several v1 values appear while a secret is being rolled.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTolerance = 5 * time.Minute
	schemeV1         = "v1"
)

var (
	ErrMissingHeader             = errors.New("signature header missing")
	ErrMalformedHeader           = errors.New("signature header malformed")
	ErrNoSignatures              = errors.New("no v1 signatures in header")
	ErrTimestampOutsideTolerance = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch         = errors.New("signature mismatch")
	ErrMissingSecret             = errors.New("webhook secret not configured")
)

type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// WithClock replaces the verifier clock, used by tests and replay tooling.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify checks header against the raw, unparsed body. It fails closed: any
// error means the payload must be dropped.
func (v *Verifier) Verify(header string, body []byte) error {
	if len(v.secret) == 0 {
		return ErrMissingSecret
	}
	if strings.TrimSpace(header) == "" {
		return ErrMissingHeader
	}

	ts, signatures, err := parseHeader(header)
	if err != nil {
		return err
	}

	signedAt := time.Unix(ts, 0)
	if d := v.now().Sub(signedAt); d > v.tolerance || d < -v.tolerance {
		return fmt.Errorf("%w: signed at %s", ErrTimestampOutsideTolerance, signedAt.UTC().Format(time.RFC3339))
	}

	expected := computeMAC(v.secret, ts, body)
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

func parseHeader(header string) (int64, [][]byte, error) {
	var (
		ts         int64
		haveTS     bool
		signatures [][]byte
	)

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrMalformedHeader
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrMalformedHeader)
			}
			ts, haveTS = parsed, true
		case schemeV1:
			sig, err := hex.DecodeString(value)
			if err != nil {
				// a garbled signature cannot match, keep looking at the others
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if !haveTS {
		return 0, nil, fmt.Errorf("%w: no timestamp", ErrMalformedHeader)
	}
	if len(signatures) == 0 {
		return 0, nil, ErrNoSignatures
	}
	return ts, signatures, nil
}

func computeMAC(secret []byte, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign builds a header value for body, the way the provider does.
func Sign(secret string, ts time.Time, body []byte) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,%s=%s", unix, schemeV1, hex.EncodeToString(computeMAC([]byte(secret), unix, body)))
}
