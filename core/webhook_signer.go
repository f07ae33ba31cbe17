package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderWebhookID        = "X-Webhook-Id"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderWebhookSignature = "X-Webhook-Signature"
)

// WebhookSigner produces the signature headers attached to outbound delivery
// requests. The signed message is "{unix timestamp}.{payload}" so receivers
// can bind the signature to a point in time and reject replays.
type WebhookSigner struct{}

func NewWebhookSigner() WebhookSigner {
	return WebhookSigner{}
}

// Sign computes the hex HMAC-SHA256 of "{timestamp}.{payload}" under secret.
func (WebhookSigner) Sign(secret []byte, timestamp int64, payload []byte) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("core: signing secret required")
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Headers returns the three webhook headers for one delivery attempt. The
// event ID doubles as the receiver-side idempotency key.
func (s WebhookSigner) Headers(secret []byte, eventID string, timestamp time.Time, payload []byte) (map[string]string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("core: event id required")
	}
	unix := timestamp.Unix()
	signature, err := s.Sign(secret, unix, payload)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderWebhookID:        eventID,
		HeaderWebhookTimestamp: strconv.FormatInt(unix, 10),
		HeaderWebhookSignature: "sha256=" + signature,
	}, nil
}

// Verify recomputes the signature and compares in constant time. Receivers
// embedding this package can use it to validate inbound webhook requests.
func (s WebhookSigner) Verify(secret []byte, timestamp int64, payload []byte, signature string) (bool, error) {
	expected, err := s.Sign(secret, timestamp, payload)
	if err != nil {
		return false, err
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}
