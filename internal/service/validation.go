package service

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

const maxReferenceLength = 100

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

	minAmount = decimal.New(1, -2)
	maxAmount = decimal.NewFromInt(10_000_000)
)

// validateInitiate checks req and returns a normalized copy.
func validateInitiate(req model.InitiateRequest) (model.InitiateRequest, error) {
	if req.Amount.LessThan(minAmount) || req.Amount.GreaterThan(maxAmount) {
		return req, ports.NewValidationError("amount", "must be between 0.01 and 10000000")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !currencyPattern.MatchString(currency) {
		return req, ports.NewValidationError("currency", "must be a 3-letter code")
	}

	email := strings.TrimSpace(req.Email)
	if !emailPattern.MatchString(email) {
		return req, ports.NewValidationError("email", "invalid email address")
	}

	req.Amount = req.Amount.Round(2)
	req.Currency = currency
	req.Email = email
	return req, nil
}

func validateReference(reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", ports.NewValidationError("reference", "is required")
	}
	if len(reference) > maxReferenceLength {
		return "", ports.NewValidationError("reference", "must be at most 100 characters")
	}
	return reference, nil
}
