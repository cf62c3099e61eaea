package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

func TestValidateInitiate(t *testing.T) {
	tests := []struct {
		name    string
		req     model.InitiateRequest
		field   string
		wantCur string
	}{
		{"valid lower-case currency", model.InitiateRequest{Amount: decimal.NewFromInt(500), Currency: "ngn", Email: "a@b.co"}, "", "NGN"},
		{"minimum amount", model.InitiateRequest{Amount: decimal.RequireFromString("0.01"), Currency: "USD", Email: "a@b.co"}, "", "USD"},
		{"maximum amount", model.InitiateRequest{Amount: decimal.NewFromInt(10_000_000), Currency: "USD", Email: "a@b.co"}, "", "USD"},
		{"zero amount", model.InitiateRequest{Amount: decimal.Zero, Currency: "USD", Email: "a@b.co"}, "amount", ""},
		{"negative amount", model.InitiateRequest{Amount: decimal.NewFromInt(-5), Currency: "USD", Email: "a@b.co"}, "amount", ""},
		{"too large", model.InitiateRequest{Amount: decimal.RequireFromString("10000000.01"), Currency: "USD", Email: "a@b.co"}, "amount", ""},
		{"short currency", model.InitiateRequest{Amount: decimal.NewFromInt(1), Currency: "US", Email: "a@b.co"}, "currency", ""},
		{"long currency", model.InitiateRequest{Amount: decimal.NewFromInt(1), Currency: "USDT", Email: "a@b.co"}, "currency", ""},
		{"bad email", model.InitiateRequest{Amount: decimal.NewFromInt(1), Currency: "USD", Email: "not-an-email"}, "email", ""},
		{"email with space", model.InitiateRequest{Amount: decimal.NewFromInt(1), Currency: "USD", Email: "a b@c.de"}, "email", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateInitiate(tt.req)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.Currency != tt.wantCur {
					t.Fatalf("expected currency %s, got %s", tt.wantCur, got.Currency)
				}
				return
			}
			var verr *ports.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
			if !errors.Is(err, ports.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestValidateReference(t *testing.T) {
	if _, err := validateReference("  "); !errors.Is(err, ports.ErrValidation) {
		t.Fatalf("expected validation error for blank reference, got %v", err)
	}
	if _, err := validateReference(strings.Repeat("x", 101)); !errors.Is(err, ports.ErrValidation) {
		t.Fatalf("expected validation error for long reference, got %v", err)
	}
	if ref, err := validateReference(" ref123 "); err != nil || ref != "ref123" {
		t.Fatalf("expected ref123, got %q (%v)", ref, err)
	}
}
