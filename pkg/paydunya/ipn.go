package paydunya

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// IPN statuses.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)

var (
	ErrHashMismatch = errors.New("paydunya ipn hash mismatch")
	ErrMalformedIPN = errors.New("paydunya ipn malformed")
)

// IPN is the instant payment notification PayDunya posts to the callback URL.
type IPN struct {
	Hash            string
	Status          string
	InvoiceToken    string
	ClientReference string
	Raw             json.RawMessage
}

type ipnBody struct {
	Data struct {
		Hash    string `json:"hash"`
		Status  string `json:"status"`
		Invoice struct {
			Token string `json:"token"`
		} `json:"invoice"`
		CustomData map[string]any `json:"custom_data"`
	} `json:"data"`
}

// ParseIPN decodes a JSON IPN body.
func ParseIPN(body []byte) (*IPN, error) {
	var b ipnBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIPN, err)
	}
	if b.Data.Hash == "" || b.Data.Status == "" {
		return nil, ErrMalformedIPN
	}
	ref, _ := b.Data.CustomData["client_reference"].(string)
	return &IPN{
		Hash:            b.Data.Hash,
		Status:          strings.ToLower(strings.TrimSpace(b.Data.Status)),
		InvoiceToken:    b.Data.Invoice.Token,
		ClientReference: ref,
		Raw:             json.RawMessage(body),
	}, nil
}

// VerifyHash checks that hash is the SHA-512 hex digest of the master key.
func VerifyHash(hash, masterKey string) error {
	if masterKey == "" {
		return ErrHashMismatch
	}
	sum := sha512.Sum512([]byte(masterKey))
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(hash)), []byte(expected)) != 1 {
		return ErrHashMismatch
	}
	return nil
}
