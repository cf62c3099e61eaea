package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

const paystackTestSecret = "sk_test_paystack"

func newPaystackServer(t *testing.T, handler http.HandlerFunc) *PaystackAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPaystackAdapter(paystackTestSecret, srv.URL+"/", "https://app.example/callback", 2*time.Second)
}

func TestPaystackInitializeTransaction(t *testing.T) {
	var got map[string]interface{}
	adapter := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+paystackTestSecret {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"pk-1"}}`))
	})

	resp, err := adapter.InitializeTransaction(context.Background(), model.InitializeRequest{
		Reference:   "pk-1",
		Email:       "payer@example.com",
		AmountMinor: 50000,
		Currency:    "NGN",
		Metadata:    map[string]interface{}{"plan": "annual"},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if resp.Reference != "pk-1" || resp.ProcessorID != "abc" || resp.AuthorizationURL != "https://checkout.paystack.com/abc" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got["amount"] != float64(50000) || got["currency"] != "NGN" || got["callback_url"] != "https://app.example/callback" {
		t.Fatalf("unexpected request body %v", got)
	}
}

func TestPaystackInitializeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"processor rejects", http.StatusBadRequest, `{"status":false,"message":"Invalid key"}`},
		{"status false", http.StatusOK, `{"status":false,"message":"Duplicate reference"}`},
		{"missing url", http.StatusOK, `{"status":true,"data":{"reference":"pk-1"}}`},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := adapter.InitializeTransaction(context.Background(), model.InitializeRequest{Reference: "pk-1", AmountMinor: 100})
			if !errors.Is(err, ports.ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
		})
	}
}

func TestPaystackVerifyTransaction(t *testing.T) {
	adapter := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transaction/verify/ref123":
			w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"id":9,"status":"success","reference":"ref123","amount":50000,"currency":"ngn","paid_at":"2024-05-01T10:00:00.000Z","channel":"card"}}`))
		case "/transaction/verify/ongoing":
			w.Write([]byte(`{"status":true,"data":{"status":"ongoing","reference":"ongoing","amount":50000}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
		}
	})
	ctx := context.Background()

	resp, err := adapter.VerifyTransaction(ctx, &model.Transaction{PaymentReference: "ref123"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if resp.Status != model.StatusSuccess || resp.Amount != 50000 || resp.Currency != "NGN" || resp.Channel != "card" {
		t.Fatalf("unexpected verify response %+v", resp)
	}
	if resp.Data["reference"] != "ref123" {
		t.Fatalf("raw data not kept: %v", resp.Data)
	}

	resp, err = adapter.VerifyTransaction(ctx, &model.Transaction{PaymentReference: "ongoing"})
	if err != nil || resp.Status != model.StatusPending || resp.RawStatus != "ongoing" {
		t.Fatalf("expected pending, got %+v err=%v", resp, err)
	}

	if _, err := adapter.VerifyTransaction(ctx, &model.Transaction{PaymentReference: "nope"}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPaystackVerifyUnreachable(t *testing.T) {
	adapter := NewPaystackAdapter(paystackTestSecret, "http://127.0.0.1:1", "", time.Second)
	_, err := adapter.VerifyTransaction(context.Background(), &model.Transaction{PaymentReference: "ref123"})
	if !errors.Is(err, ports.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestPaystackParseWebhook(t *testing.T) {
	adapter := NewPaystackAdapter(paystackTestSecret, "http://paystack.invalid", "", time.Second)
	body := []byte(`{"event":"charge.success","data":{"reference":"ref123","status":"success","amount":50000,"currency":"NGN","paid_at":"2024-05-01T10:00:00.000Z","channel":"card","customer":{"email":"payer@example.com"},"metadata":{"plan":"annual"}}}`)

	event, err := adapter.ParseWebhook(context.Background(), body, map[string][]string{
		"x-paystack-signature": {adapter.Sign(body)},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !event.Recognized || event.Reference != "ref123" || event.Status != model.StatusSuccess || event.Amount != 50000 {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Customer["email"] != "payer@example.com" || event.Metadata["plan"] != "annual" {
		t.Fatalf("customer/metadata not decoded: %+v", event)
	}
}

func TestPaystackParseWebhookRejects(t *testing.T) {
	adapter := NewPaystackAdapter(paystackTestSecret, "http://paystack.invalid", "", time.Second)
	other := NewPaystackAdapter("sk_other", "http://paystack.invalid", "", time.Second)
	body := []byte(`{"event":"charge.success","data":{"reference":"ref123","status":"success"}}`)

	tests := []struct {
		name    string
		body    []byte
		headers map[string][]string
		want    error
	}{
		{"no signature", body, nil, ports.ErrMissingSignature},
		{"wrong secret", body, map[string][]string{"X-Paystack-Signature": {other.Sign(body)}}, ports.ErrInvalidSignature},
		{"tampered body", []byte(`{"event":"charge.success","data":{"reference":"ref999","status":"success"}}`), map[string][]string{"X-Paystack-Signature": {adapter.Sign(body)}}, ports.ErrInvalidSignature},
		{"bad json", []byte(`{"event":`), map[string][]string{"X-Paystack-Signature": {adapter.Sign([]byte(`{"event":`))}}, ports.ErrMalformedEvent},
		{"no reference", []byte(`{"event":"charge.success","data":{}}`), map[string][]string{"X-Paystack-Signature": {adapter.Sign([]byte(`{"event":"charge.success","data":{}}`))}}, ports.ErrMalformedEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.ParseWebhook(context.Background(), tt.body, tt.headers)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPaystackParseWebhookFailedAndIgnored(t *testing.T) {
	adapter := NewPaystackAdapter(paystackTestSecret, "http://paystack.invalid", "", time.Second)
	sign := func(b []byte) map[string][]string {
		return map[string][]string{"X-Paystack-Signature": {adapter.Sign(b)}}
	}

	failed := []byte(`{"event":"charge.failed","data":{"reference":"ref1"}}`)
	event, err := adapter.ParseWebhook(context.Background(), failed, sign(failed))
	if err != nil || event.Status != model.StatusFailed {
		t.Fatalf("expected failed status, got %+v err=%v", event, err)
	}

	transfer := []byte(`{"event":"transfer.success","data":{"reference":"tr_1","status":"success"}}`)
	event, err = adapter.ParseWebhook(context.Background(), transfer, sign(transfer))
	if err != nil || event.Recognized {
		t.Fatalf("expected unrecognized event, got %+v err=%v", event, err)
	}
}
