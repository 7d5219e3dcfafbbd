// Package paydunya talks to the PayDunya checkout-invoice and disburse APIs.
package paydunya

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

const (
	liveBaseURL    = "https://app.paydunya.com/api/v1"
	sandboxBaseURL = "https://app.paydunya.com/sandbox-api/v1"

	responseCodeOK = "00"

	maxErrorBody = 2048
)

var errCredentialsRequired = errors.New("paydunya master key, private key and token are required")

// APIError is returned for non-2xx answers and for 2xx answers whose response_code is not "00".
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paydunya: status %d code %s: %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	http      *http.Client
	baseURL   string
	masterKey string
	private   string
	public    string
	token     string
	storeName string
	logg      *logger.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the transport, mostly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a PayDunya client. Mode "live" targets production, anything else the sandbox.
func NewClient(cfg config.PayDunyaConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errCredentialsRequired
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = sandboxBaseURL
		if strings.EqualFold(strings.TrimSpace(cfg.Mode), "live") {
			base = liveBaseURL
		}
	}
	c := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   base,
		masterKey: strings.TrimSpace(cfg.MasterKey),
		private:   strings.TrimSpace(cfg.PrivateKey),
		public:    strings.TrimSpace(cfg.PublicKey),
		token:     strings.TrimSpace(cfg.Token),
		storeName: cfg.StoreName,
		logg:      logg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MasterKey is needed to verify IPN hashes.
func (c *Client) MasterKey() string {
	if c == nil {
		return ""
	}
	return c.masterKey
}

type envelope struct {
	ResponseCode string `json:"response_code"`
	ResponseText string `json:"response_text"`
	Description  string `json:"description"`
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode paydunya request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PAYDUNYA-MASTER-KEY", c.masterKey)
	req.Header.Set("PAYDUNYA-PRIVATE-KEY", c.private)
	req.Header.Set("PAYDUNYA-TOKEN", c.token)
	if c.public != "" {
		req.Header.Set("PAYDUNYA-PUBLIC-KEY", c.public)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read paydunya response: %w", err)
	}
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"provider":    "paydunya",
			"path":        path,
			"http_status": resp.StatusCode,
			"response":    truncate(string(raw), maxErrorBody),
		})
		c.logg.Debug(logCtx, "paydunya.response")
	}

	var env envelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.ResponseText
		if msg == "" {
			msg = truncate(string(raw), maxErrorBody)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: env.ResponseCode, Message: msg}
	}
	if env.ResponseCode != responseCodeOK {
		// PayDunya reports business rejections with HTTP 200.
		return &APIError{StatusCode: http.StatusUnprocessableEntity, Code: env.ResponseCode, Message: env.ResponseText}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode paydunya response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
