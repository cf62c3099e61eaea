package core

import (
	"context"
	"errors"
	"testing"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

type namedProcessor struct {
	name model.PaymentProvider
}

func (p namedProcessor) Name() model.PaymentProvider { return p.name }

func (p namedProcessor) InitializeTransaction(context.Context, model.InitializeRequest) (*model.InitializeResponse, error) {
	return nil, nil
}

func (p namedProcessor) VerifyTransaction(context.Context, *model.Transaction) (*model.VerifyResponse, error) {
	return nil, nil
}

func (p namedProcessor) ParseWebhook(context.Context, []byte, map[string][]string) (*model.PaymentEvent, error) {
	return nil, nil
}

func TestProviderRegistryGet(t *testing.T) {
	r := NewProviderRegistry()
	r.Register(namedProcessor{name: model.ProviderStripe})
	r.Register(namedProcessor{name: model.ProviderPaystack})

	p, err := r.Get(model.ProviderPaystack)
	if err != nil {
		t.Fatalf("get paystack: %v", err)
	}
	if p.Name() != model.ProviderPaystack {
		t.Fatalf("expected paystack, got %s", p.Name())
	}

	if _, err := r.Get("paypal"); !errors.Is(err, ports.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "paystack" || names[1] != "stripe" {
		t.Fatalf("unexpected names %v", names)
	}
}
