package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one checkout attempt owned by a single user. PaymentReference
// is unique and is the idempotency key for every status write.
type Transaction struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"user_id"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         string                 `json:"currency"`
	Email            string                 `json:"email"`
	PaymentReference string                 `json:"payment_reference"`
	Provider         PaymentProvider        `json:"provider"`
	ProcessorID      string                 `json:"processor_id,omitempty"`
	AuthorizationURL string                 `json:"authorization_url,omitempty"`
	Status           Status                 `json:"status"`
	Metadata         map[string]interface{} `json:"metadata"`
	Version          int                    `json:"-"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// MinorAmount converts Amount to the processor's minor unit (x100).
func (t *Transaction) MinorAmount() int64 {
	return ToMinor(t.Amount)
}

func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// StatusUpdate is a compare-and-swap write: it only applies while the row
// still has ExpectedStatus and ExpectedVersion.
type StatusUpdate struct {
	ID               string
	ExpectedStatus   Status
	ExpectedVersion  int
	Status           Status
	Metadata         map[string]interface{}
	PaymentReference string
	ProcessorID      string
	AuthorizationURL string
}

// MergeMetadata returns a copy of base with patch applied on top.
func MergeMetadata(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
