package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
	"github.com/danielmoisemontezima/compliance-payment-service/pkg/utils"
)

const stripeSignatureHeader = "Stripe-Signature"

// Checkout session events that move a transaction. Everything else is ignored.
var stripeEvents = map[string]bool{
	"checkout.session.completed":               true,
	"checkout.session.async_payment_succeeded": true,
	"checkout.session.async_payment_failed":    true,
	"checkout.session.expired":                 true,
}

type StripeAdapter struct {
	webhookSecret string
	successURL    string
	cancelURL     string
	productName   string
	now           func() time.Time
}

func NewStripeAdapter(apiKey, webhookSecret, successURL, cancelURL string) *StripeAdapter {
	stripe.Key = apiKey
	return &StripeAdapter{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
		productName:   "Compliance service payment",
		now:           time.Now,
	}
}

func (s *StripeAdapter) Name() model.PaymentProvider {
	return model.ProviderStripe
}

// stripeSession holds the checkout session fields this service reads.
type stripeSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	Status            string            `json:"status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	ExpiresAt         int64             `json:"expires_at"`
	CustomerEmail     string            `json:"customer_email"`
	CustomerDetails   map[string]any    `json:"customer_details"`
	PaymentIntent     any               `json:"payment_intent"`
	Metadata          map[string]string `json:"metadata"`
}

func (s *StripeAdapter) InitializeTransaction(ctx context.Context, req model.InitializeRequest) (*model.InitializeResponse, error) {
	params := &stripe.CheckoutSessionParams{
		ClientReferenceID:  stripe.String(req.Reference),
		CustomerEmail:      stripe.String(req.Email),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(s.successURL),
		CancelURL:          stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(s.productName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("payment_reference", req.Reference)
	for k, v := range req.Metadata {
		if str, ok := v.(string); ok {
			params.AddMetadata(k, str)
		}
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe create checkout session: %w", ports.ErrUpstream, err)
	}

	decoded, err := decodeStripeSession(sess)
	if err != nil {
		return nil, err
	}
	if decoded.ID == "" || decoded.URL == "" {
		return nil, fmt.Errorf("%w: stripe checkout session missing id or url", ports.ErrUpstream)
	}

	// Stripe echoes our reference back as client_reference_id on every event
	return &model.InitializeResponse{
		Reference:        req.Reference,
		ProcessorID:      decoded.ID,
		AuthorizationURL: decoded.URL,
	}, nil
}

func (s *StripeAdapter) VerifyTransaction(ctx context.Context, tx *model.Transaction) (*model.VerifyResponse, error) {
	if tx.ProcessorID == "" {
		// The session id is only known once initialize succeeded locally
		return nil, ports.ErrNotFound
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := session.Get(tx.ProcessorID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("%w: stripe get checkout session: %v", ports.ErrUpstream, err)
	}

	decoded, err := decodeStripeSession(sess)
	if err != nil {
		return nil, err
	}

	raw := map[string]interface{}{}
	if sess.LastResponse != nil {
		_ = json.Unmarshal(sess.LastResponse.RawJSON, &raw)
	}

	rawStatus := decoded.PaymentStatus
	if rawStatus == "" {
		rawStatus = string(model.StatusUnknown)
	}
	return &model.VerifyResponse{
		Status:    s.sessionStatus(decoded),
		RawStatus: rawStatus,
		Amount:    decoded.AmountTotal,
		Currency:  strings.ToUpper(decoded.Currency),
		Data:      raw,
	}, nil
}

func (s *StripeAdapter) ParseWebhook(ctx context.Context, raw []byte, headers map[string][]string) (*model.PaymentEvent, error) {
	// Extract Stripe-Signature header
	sigHeader := utils.GetHeader(headers, stripeSignatureHeader)
	if sigHeader == "" {
		return nil, ports.ErrMissingSignature
	}

	// Verify webhook signature
	event, err := webhook.ConstructEvent(raw, sigHeader, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidSignature, err)
	}

	out := &model.PaymentEvent{
		Type:       event.Type,
		Recognized: stripeEvents[event.Type],
	}
	if !out.Recognized {
		return out, nil
	}

	var sess stripeSession
	if event.Data == nil {
		return nil, fmt.Errorf("%w: %s without data", ports.ErrMalformedEvent, event.Type)
	}
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrMalformedEvent, err)
	}
	if sess.ClientReferenceID == "" {
		return nil, fmt.Errorf("%w: %s without client_reference_id", ports.ErrMalformedEvent, event.Type)
	}

	out.Reference = sess.ClientReferenceID
	out.RawStatus = sess.PaymentStatus
	out.Amount = sess.AmountTotal
	out.Currency = strings.ToUpper(sess.Currency)
	out.Channel = "card"
	out.Customer = sess.CustomerDetails
	if len(sess.Metadata) > 0 {
		out.Metadata = make(map[string]interface{}, len(sess.Metadata))
		for k, v := range sess.Metadata {
			out.Metadata[k] = v
		}
	}

	switch event.Type {
	case "checkout.session.async_payment_succeeded":
		out.Status = model.StatusSuccess
	case "checkout.session.async_payment_failed":
		out.Status = model.StatusFailed
	case "checkout.session.expired":
		out.Status = model.StatusAbandoned
	default:
		// completed with payment_status=unpaid means an async method is still settling
		out.Status = model.NormalizeStatus(sess.PaymentStatus)
	}
	if out.Status == model.StatusSuccess {
		out.PaidAt = time.Unix(event.Created, 0).UTC().Format(time.RFC3339)
	}
	return out, nil
}

func (s *StripeAdapter) sessionStatus(sess *stripeSession) model.Status {
	if sess.Status == "expired" {
		return model.StatusAbandoned
	}
	status := model.NormalizeStatus(sess.PaymentStatus)
	if status == model.StatusPending && sess.ExpiresAt > 0 && s.now().Unix() > sess.ExpiresAt {
		return model.StatusAbandoned
	}
	return status
}

func decodeStripeSession(sess *stripe.CheckoutSession) (*stripeSession, error) {
	out := &stripeSession{ID: sess.ID}
	if sess.LastResponse == nil || len(sess.LastResponse.RawJSON) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(sess.LastResponse.RawJSON, out); err != nil {
		return nil, fmt.Errorf("%w: decode stripe session: %v", ports.ErrUpstream, err)
	}
	return out, nil
}
