package wave

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "Wave-Signature"

	EventCheckoutCompleted     = "checkout.session.completed"
	EventCheckoutPaymentFailed = "checkout.session.payment_failed"

	PaymentStatusSucceeded = "succeeded"

	signatureTolerance = 5 * time.Minute
)

var (
	ErrSignatureMissing = errors.New("wave signature missing")
	ErrSignatureInvalid = errors.New("wave signature invalid")
	ErrSignatureExpired = errors.New("wave signature timestamp outside tolerance")
)

// Event is a Wave webhook delivery for checkout sessions.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID              string `json:"id"`
		ClientReference string `json:"client_reference"`
		PaymentStatus   string `json:"payment_status"`
		CheckoutStatus  string `json:"checkout_status"`
	} `json:"data"`
}

// VerifySignature checks a "t=<unix>,v1=<hex>" header: v1 is HMAC-SHA256(secret, t+body).
func VerifySignature(header string, body []byte, secret string, now time.Time) error {
	if strings.TrimSpace(header) == "" {
		return ErrSignatureMissing
	}
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrSignatureInvalid
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrSignatureExpired
	}

	expected := Sign(secret, ts, body)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

// Sign computes the v1 signature for timestamp and body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ConstructEvent verifies the signature with the client's secret and decodes the event.
func (c *Client) ConstructEvent(body []byte, header string) (*Event, error) {
	if c == nil {
		return nil, errors.New("wave client not initialized")
	}
	if err := VerifySignature(header, body, c.webhookSecret, c.now()); err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode wave event: %w", err)
	}
	return &ev, nil
}
