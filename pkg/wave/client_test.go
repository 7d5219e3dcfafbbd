package wave

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/fieldbook/fieldbook-backend/pkg/config"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(config.WaveConfig{APIKey: "wave_sn_prod_key", WebhookSecret: "wave_secret", BaseURL: url}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer wave_sn_prod_key" {
			t.Errorf("missing bearer token")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["amount"] != "10000" || body["currency"] != "XOF" {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = w.Write([]byte(`{"id":"cos-1","wave_launch_url":"https://pay.wave.com/c/cos-1","checkout_status":"open"}`))
	}))
	defer srv.Close()

	sess, err := newTestClient(t, srv.URL).CreateCheckoutSession(context.Background(), CheckoutParams{AmountCFA: 10000, ClientReference: "BK-0a1b2c3d-9f8e", SessionID: "s"})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if sess.ID != "cos-1" || sess.LaunchURL == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestSendPayout(t *testing.T) {
	var gotKey string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"code":"rate-limited","message":"slow down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"pt-1","status":"succeeded"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.SendPayout(context.Background(), PayoutParams{AmountCFA: 9000, Mobile: "+221771234567", IdempotencyKey: "po-abc"})
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if out.ID != "pt-1" || gotKey != "po-abc" {
		t.Fatalf("unexpected payout %+v key=%s", out, gotKey)
	}

	status = http.StatusTooManyRequests
	_, err = c.SendPayout(context.Background(), PayoutParams{AmountCFA: 9000, Mobile: "+221771234567", IdempotencyKey: "po-abc"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Code != "rate-limited" {
		t.Fatalf("expected 429 APIError, got %v", err)
	}

	if _, err := c.SendPayout(context.Background(), PayoutParams{AmountCFA: 1, Mobile: "77123"}); err != ErrInvalidMobile {
		t.Fatalf("expected ErrInvalidMobile, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{"id":"EV_1","type":"checkout.session.completed"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	valid := "t=" + ts + ",v1=" + Sign("wave_secret", ts, body)

	cases := []struct {
		name   string
		header string
		body   []byte
		now    time.Time
		want   error
	}{
		{"valid", valid, body, now, nil},
		{"missing", "", body, now, ErrSignatureMissing},
		{"tampered body", valid, []byte(`{"id":"EV_2"}`), now, ErrSignatureInvalid},
		{"stale", valid, body, now.Add(6 * time.Minute), ErrSignatureExpired},
		{"garbage", "v1=abc", body, now, ErrSignatureInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := VerifySignature(tc.header, tc.body, "wave_secret", tc.now); err != tc.want {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
}

func TestConstructEvent(t *testing.T) {
	c := newTestClient(t, "")
	fixed := time.Unix(1_760_000_000, 0)
	c.now = func() time.Time { return fixed }

	body := []byte(`{"id":"EV_1","type":"checkout.session.completed","data":{"id":"cos-1","client_reference":"BK-0a1b2c3d-9f8e","payment_status":"succeeded"}}`)
	ts := strconv.FormatInt(fixed.Unix(), 10)
	ev, err := c.ConstructEvent(body, "t="+ts+",v1="+Sign("wave_secret", ts, body))
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if ev.Data.ID != "cos-1" || ev.Data.PaymentStatus != PaymentStatusSucceeded {
		t.Fatalf("unexpected event %+v", ev)
	}
}
