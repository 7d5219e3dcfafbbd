package types

import (
	"database/sql/driver"
	"time"
)

// ProviderError is the structured diagnostic stored on a failed payout attempt.
type ProviderError struct {
	Kind       string    `json:"kind"`
	Retryable  bool      `json:"retryable"`
	StatusCode int       `json:"status_code,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message"`
	Attempt    int       `json:"attempt"`
	At         time.Time `json:"at"`
}

func (p ProviderError) Value() (driver.Value, error) {
	return jsonValue(p)
}

func (p *ProviderError) Scan(value interface{}) error {
	if value == nil {
		*p = ProviderError{}
		return nil
	}
	return jsonScan(value, p, "provider error")
}
