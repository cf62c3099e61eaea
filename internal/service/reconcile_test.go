package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

func TestReconcileStale(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	old := time.Now().UTC().Add(-time.Hour)

	seed := func(ref string, status model.Status, createdAt time.Time) {
		t.Helper()
		err := f.repo.Create(ctx, &model.Transaction{
			ID:               "id-" + ref,
			UserID:           "user-1",
			Amount:           decimal.NewFromInt(500),
			Currency:         "NGN",
			Email:            "payer@example.com",
			PaymentReference: ref,
			Provider:         model.ProviderPaystack,
			Status:           status,
			Metadata:         map[string]interface{}{},
			Version:          1,
			CreatedAt:        createdAt,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", ref, err)
		}
	}
	seed("ref-orphan", model.StatusInitializing, old)
	seed("ref-paid", model.StatusPending, old)
	seed("ref-open", model.StatusPending, old)
	seed("ref-broken", model.StatusPending, old)
	seed("ref-fresh", model.StatusPending, time.Now().UTC())
	seed("ref-settled", model.StatusSuccess, old)

	f.processor.verifyFn = func(tx *model.Transaction) (*model.VerifyResponse, error) {
		switch tx.PaymentReference {
		case "ref-orphan":
			return nil, ports.ErrNotFound
		case "ref-paid":
			return &model.VerifyResponse{Status: model.StatusSuccess, RawStatus: "success", Amount: 50000, Currency: "NGN"}, nil
		case "ref-broken":
			return nil, errors.New("processor unavailable")
		default:
			return &model.VerifyResponse{Status: model.StatusPending, RawStatus: "ongoing"}, nil
		}
	}

	report, err := f.svc.ReconcileStale(ctx, 15*time.Minute, 100)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	want := model.ReconcileReport{Scanned: 4, Settled: 2, Unchanged: 1, Failed: 1}
	if *report != want {
		t.Fatalf("expected %+v, got %+v", want, *report)
	}

	expect := map[string]model.Status{
		"ref-orphan":  model.StatusAbandoned,
		"ref-paid":    model.StatusSuccess,
		"ref-open":    model.StatusPending,
		"ref-broken":  model.StatusPending,
		"ref-fresh":   model.StatusPending,
		"ref-settled": model.StatusSuccess,
	}
	for ref, status := range expect {
		if got := f.load(t, ref).Status; got != status {
			t.Fatalf("%s: expected %s, got %s", ref, status, got)
		}
	}
	if f.publisher.count() != 2 {
		t.Fatalf("expected 2 status events, got %d", f.publisher.count())
	}
}

func TestReconcileRespectsLimit(t *testing.T) {
	f := newFixture(t, newMemRepo())
	for _, ref := range []string{"a", "b", "c"} {
		f.seed(t, ref, model.StatusPending)
	}

	report, err := f.svc.ReconcileStale(context.Background(), -time.Minute, 2)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Scanned != 2 {
		t.Fatalf("expected 2 scanned, got %d", report.Scanned)
	}
}
