package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentProvider string

const (
	ProviderPaystack PaymentProvider = "paystack"
	ProviderStripe   PaymentProvider = "stripe"
)

type InitiateRequest struct {
	Amount   decimal.Decimal        `json:"amount"`
	Currency string                 `json:"currency"`
	Email    string                 `json:"email"`
	Metadata map[string]interface{} `json:"metadata"`
}

type InitiateResponse struct {
	Transaction      *Transaction `json:"transaction"`
	AuthorizationURL string       `json:"authorizationUrl"`
}

type VerifyRequest struct {
	Reference string `json:"reference"`
}

type TransactionResponse struct {
	Transaction *Transaction `json:"transaction"`
}

// InitializeRequest is what a processor adapter receives. AmountMinor is
// already in the processor's minor unit and Currency is upper-cased.
type InitializeRequest struct {
	Reference   string
	AmountMinor int64
	Currency    string
	Email       string
	Metadata    map[string]interface{}
}

type InitializeResponse struct {
	Reference        string
	ProcessorID      string
	AuthorizationURL string
}

type VerifyResponse struct {
	Status    Status
	RawStatus string
	Amount    int64
	Currency  string
	PaidAt    string
	Channel   string
	Data      map[string]interface{}
}

// PaymentEvent is a webhook delivery after signature verification.
// Recognized is false for event types the service does not act on.
type PaymentEvent struct {
	Type       string                 `json:"type"`
	Recognized bool                   `json:"-"`
	Reference  string                 `json:"reference"`
	Status     Status                 `json:"status"`
	RawStatus  string                 `json:"raw_status"`
	Amount     int64                  `json:"amount"`
	Currency   string                 `json:"currency"`
	PaidAt     string                 `json:"paid_at,omitempty"`
	Channel    string                 `json:"channel,omitempty"`
	Customer   map[string]interface{} `json:"customer,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// StatusChangedEvent is published after a transition into a terminal state.
type StatusChangedEvent struct {
	TransactionID    string          `json:"transaction_id"`
	UserID           string          `json:"user_id"`
	PaymentReference string          `json:"payment_reference"`
	Provider         PaymentProvider `json:"provider"`
	OldStatus        Status          `json:"old_status"`
	NewStatus        Status          `json:"new_status"`
	Amount           string          `json:"amount"`
	Currency         string          `json:"currency"`
	Source           string          `json:"source"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

type ReconcileReport struct {
	Scanned   int `json:"scanned"`
	Settled   int `json:"settled"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}
