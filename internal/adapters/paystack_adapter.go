package adapters

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
	"github.com/danielmoisemontezima/compliance-payment-service/pkg/utils"
)

const (
	paystackSignatureHeader = "X-Paystack-Signature"
	paystackMaxResponse     = 1 << 20
)

var paystackEvents = map[string]bool{
	"charge.success": true,
	"charge.failed":  true,
}

type PaystackAdapter struct {
	secretKey   string
	baseURL     string
	callbackURL string
	client      *http.Client
}

func NewPaystackAdapter(secretKey, baseURL, callbackURL string, timeout time.Duration) *PaystackAdapter {
	return &PaystackAdapter{
		secretKey:   secretKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: timeout},
	}
}

func (p *PaystackAdapter) Name() model.PaymentProvider {
	return model.ProviderPaystack
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTxData struct {
	ID        int64                  `json:"id"`
	Status    string                 `json:"status"`
	Reference string                 `json:"reference"`
	Amount    int64                  `json:"amount"`
	Currency  string                 `json:"currency"`
	PaidAt    string                 `json:"paid_at"`
	Channel   string                 `json:"channel"`
	Customer  map[string]interface{} `json:"customer"`
	Metadata  interface{}            `json:"metadata"`
}

func (p *PaystackAdapter) InitializeTransaction(ctx context.Context, req model.InitializeRequest) (*model.InitializeResponse, error) {
	body := map[string]interface{}{
		"email":     req.Email,
		"amount":    req.AmountMinor,
		"currency":  req.Currency,
		"reference": req.Reference,
	}
	if p.callbackURL != "" {
		body["callback_url"] = p.callbackURL
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	env, _, err := p.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var data paystackInitData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: paystack initialize: decode data: %v", ports.ErrUpstream, err)
	}
	if data.Reference == "" || data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: paystack initialize: missing reference or authorization_url", ports.ErrUpstream)
	}

	return &model.InitializeResponse{
		Reference:        data.Reference,
		ProcessorID:      data.AccessCode,
		AuthorizationURL: data.AuthorizationURL,
	}, nil
}

func (p *PaystackAdapter) VerifyTransaction(ctx context.Context, tx *model.Transaction) (*model.VerifyResponse, error) {
	env, code, err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(tx.PaymentReference), nil)
	if err != nil {
		// Paystack answers 400/404 with "Transaction reference not found"
		if (code == http.StatusNotFound || code == http.StatusBadRequest) && env != nil &&
			strings.Contains(strings.ToLower(env.Message), "not found") {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	var data paystackTxData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: paystack verify: decode data: %v", ports.ErrUpstream, err)
	}
	raw := map[string]interface{}{}
	_ = json.Unmarshal(env.Data, &raw)

	rawStatus := data.Status
	if rawStatus == "" {
		rawStatus = string(model.StatusUnknown)
	}

	return &model.VerifyResponse{
		Status:    model.NormalizeStatus(rawStatus),
		RawStatus: rawStatus,
		Amount:    data.Amount,
		Currency:  strings.ToUpper(data.Currency),
		PaidAt:    data.PaidAt,
		Channel:   data.Channel,
		Data:      raw,
	}, nil
}

func (p *PaystackAdapter) ParseWebhook(ctx context.Context, raw []byte, headers map[string][]string) (*model.PaymentEvent, error) {
	sig := utils.GetHeader(headers, paystackSignatureHeader)
	if sig == "" {
		return nil, ports.ErrMissingSignature
	}
	if !p.validSignature(raw, sig) {
		return nil, ports.ErrInvalidSignature
	}

	var event struct {
		Event string         `json:"event"`
		Data  paystackTxData `json:"data"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrMalformedEvent, err)
	}

	out := &model.PaymentEvent{
		Type:       event.Event,
		Recognized: paystackEvents[event.Event],
		Reference:  event.Data.Reference,
		RawStatus:  event.Data.Status,
		Status:     model.NormalizeStatus(event.Data.Status),
		Amount:     event.Data.Amount,
		Currency:   strings.ToUpper(event.Data.Currency),
		PaidAt:     event.Data.PaidAt,
		Channel:    event.Data.Channel,
		Customer:   event.Data.Customer,
	}
	if md, ok := event.Data.Metadata.(map[string]interface{}); ok {
		out.Metadata = md
	}
	if out.Recognized && out.Reference == "" {
		return nil, fmt.Errorf("%w: %s without reference", ports.ErrMalformedEvent, event.Event)
	}
	// charge.failed may arrive without a status in data
	if event.Event == "charge.failed" && out.Status == model.StatusUnknown {
		out.Status = model.StatusFailed
	}
	return out, nil
}

// Sign returns the hex HMAC-SHA512 Paystack puts in X-Paystack-Signature.
func (p *PaystackAdapter) Sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *PaystackAdapter) validSignature(body []byte, signature string) bool {
	expected := p.Sign(body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func (p *PaystackAdapter) do(ctx context.Context, method, path string, payload interface{}) (*paystackEnvelope, int, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("encode paystack request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request: %v", ports.ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: paystack %s %s: %w", ports.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, paystackMaxResponse))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read paystack response: %v", ports.ErrUpstream, err)
	}

	var env paystackEnvelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil {
			msg = http.StatusText(resp.StatusCode)
		}
		return &env, resp.StatusCode, fmt.Errorf("%w: paystack returned %d: %s", ports.ErrUpstream, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: decode paystack response: %v", ports.ErrUpstream, decodeErr)
	}
	if !env.Status {
		return &env, resp.StatusCode, fmt.Errorf("%w: paystack: %s", ports.ErrUpstream, env.Message)
	}
	return &env, resp.StatusCode, nil
}
