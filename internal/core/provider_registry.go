package core

import (
	"fmt"
	"sort"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

// ProviderRegistry is filled once at startup and read concurrently afterwards.
type ProviderRegistry struct {
	processors map[model.PaymentProvider]ports.IPaymentProcessor
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		processors: make(map[model.PaymentProvider]ports.IPaymentProcessor),
	}
}

func (r *ProviderRegistry) Register(processor ports.IPaymentProcessor) {
	r.processors[processor.Name()] = processor
}

func (r *ProviderRegistry) Get(provider model.PaymentProvider) (ports.IPaymentProcessor, error) {
	if p, exists := r.processors[provider]; exists {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ports.ErrUnknownProvider, provider)
}

func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

func (r *ProviderRegistry) Len() int {
	return len(r.processors)
}
