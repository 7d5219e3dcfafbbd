package validators

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
)

type sampleBody struct {
	ReservationID string `json:"reservation_id" validate:"required,uuid"`
	Provider      string `json:"provider" validate:"omitempty,oneof=paydunya stripe"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		field   string
		message string
	}{
		{name: "missing field", body: `{}`, field: "reservation_id", message: "is required"},
		{name: "bad uuid", body: `{"reservation_id":"nope"}`, field: "reservation_id", message: "must be a valid uuid"},
		{name: "bad provider", body: `{"reservation_id":"3f1c8a52-8f7e-4d8e-9a55-0d1e0c3b6a21","provider":"cash"}`, field: "provider", message: "must be one of: paydunya stripe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tc.body))
			var dest sampleBody
			err := DecodeJSONBody(req, &dest)
			var typed *pkgerrors.Error
			if !errors.As(err, &typed) {
				t.Fatalf("expected typed error, got %v", err)
			}
			if typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("unexpected code %s", typed.Code())
			}
			details, ok := typed.Details().(map[string]string)
			if !ok {
				t.Fatalf("unexpected details %#v", typed.Details())
			}
			if details[tc.field] != tc.message {
				t.Fatalf("details[%s]=%q want %q", tc.field, details[tc.field], tc.message)
			}
		})
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"reservation_id":"3f1c8a52-8f7e-4d8e-9a55-0d1e0c3b6a21","amount":100}`))
	var dest sampleBody
	err := DecodeJSONBody(req, &dest)
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyAccepts(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"reservation_id":"3f1c8a52-8f7e-4d8e-9a55-0d1e0c3b6a21","provider":"stripe"}`))
	var dest sampleBody
	if err := DecodeJSONBody(req, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.Provider != "stripe" {
		t.Fatalf("unexpected provider %q", dest.Provider)
	}
}
