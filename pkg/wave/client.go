// Package wave wraps the Wave Business checkout and payout APIs.
package wave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
)

var errCredentialsRequired = errors.New("wave api key and webhook secret are required")

// APIError carries Wave's error body for non-2xx answers.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wave: status %d code %s: %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	http          *http.Client
	baseURL       string
	apiKey        string
	webhookSecret string
	logg          *logger.Logger
	now           func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func NewClient(cfg config.WaveConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errCredentialsRequired
	}
	c := &Client{
		http:          &http.Client{Timeout: 30 * time.Second},
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:        strings.TrimSpace(cfg.APIKey),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		logg:          logg,
		now:           time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.wave.com"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode wave request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read wave response: %w", err)
	}
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"provider":    "wave",
			"path":        path,
			"http_status": resp.StatusCode,
		})
		c.logg.Debug(logCtx, "wave.response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: e.Code, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode wave response: %w", err)
	}
	return nil
}
