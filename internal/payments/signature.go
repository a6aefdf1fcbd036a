package payments

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

// SignatureHeader carries the provider's signature over the raw request
// body: "t=<unix seconds>,v1=<hex hmac-sha256>". The MAC covers
// "<t>.<raw body>", so the exact bytes received must reach the verifier
// untouched by any body-parsing middleware.
const SignatureHeader = "X-Webhook-Signature"

// SignatureTolerance bounds how stale a signed timestamp may be. Events
// outside the window are rejected even with a valid MAC.
const SignatureTolerance = 5 * time.Minute

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign computes the signature header value for a body at ts. Used by
// tests and by anything that needs to emit provider-compatible events.
func Sign(secret []byte, ts time.Time, body []byte) string {
	mac := computeMAC(secret, ts.Unix(), body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), mac)
}

// VerifySignature checks header against body using the shared secret.
// The comparison is constant-time.
func VerifySignature(secret []byte, header string, body []byte, now time.Time) error {
	ts, mac, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(SignatureTolerance.Seconds()) {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeMAC(secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(mac)) {
		return ErrInvalidSignature
	}

	return nil
}

func parseSignatureHeader(header string) (int64, string, error) {
	if header == "" {
		return 0, "", fmt.Errorf("%w: missing header", ErrInvalidSignature)
	}

	var tsRaw, mac string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			tsRaw = value
		case "v1":
			mac = value
		}
	}

	if tsRaw == "" || mac == "" {
		return 0, "", fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
	}

	return ts, mac, nil
}

func computeMAC(secret []byte, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
