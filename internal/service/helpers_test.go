package service

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/adapters"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/config"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/core"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/repository"
)

const testSecret = "sk_test_secret"

// fakeProcessor answers initialize and verify from funcs and parses webhooks
// with the real Paystack signature check.
type fakeProcessor struct {
	*adapters.PaystackAdapter

	mu          sync.Mutex
	initCalls   int
	verifyCalls int
	lastInit    model.InitializeRequest
	initFn      func(req model.InitializeRequest) (*model.InitializeResponse, error)
	verifyFn    func(tx *model.Transaction) (*model.VerifyResponse, error)
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		PaystackAdapter: adapters.NewPaystackAdapter(testSecret, "http://paystack.invalid", "", time.Second),
		initFn: func(req model.InitializeRequest) (*model.InitializeResponse, error) {
			return &model.InitializeResponse{
				Reference:        req.Reference,
				ProcessorID:      "access_" + req.Reference,
				AuthorizationURL: "https://checkout.paystack.com/" + req.Reference,
			}, nil
		},
		verifyFn: func(tx *model.Transaction) (*model.VerifyResponse, error) {
			return &model.VerifyResponse{Status: model.StatusPending, RawStatus: "ongoing"}, nil
		},
	}
}

func (f *fakeProcessor) InitializeTransaction(_ context.Context, req model.InitializeRequest) (*model.InitializeResponse, error) {
	f.mu.Lock()
	f.initCalls++
	f.lastInit = req
	fn := f.initFn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeProcessor) VerifyTransaction(_ context.Context, tx *model.Transaction) (*model.VerifyResponse, error) {
	f.mu.Lock()
	f.verifyCalls++
	fn := f.verifyFn
	f.mu.Unlock()
	return fn(tx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.StatusChangedEvent
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, e model.StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newSQLiteRepo(t *testing.T) *repository.GormTransactionRepository {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:svc_"+name+"?mode=memory&cache=shared"), config.GormConfig(logger.Silent))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewGormTransactionRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

type fixture struct {
	svc       *PaymentService
	repo      ports.ITransactionRepository
	processor *fakeProcessor
	publisher *recordingPublisher
}

func newFixture(t *testing.T, repo ports.ITransactionRepository) *fixture {
	t.Helper()
	if repo == nil {
		repo = newSQLiteRepo(t)
	}
	processor := newFakeProcessor()
	registry := core.NewProviderRegistry()
	registry.Register(processor)
	publisher := &recordingPublisher{}
	return &fixture{
		svc:       NewPaymentService(registry, repo, publisher, Options{ProcessorTimeout: time.Second}),
		repo:      repo,
		processor: processor,
		publisher: publisher,
	}
}

// seed stores a paystack transaction of 500 NGN owned by user-1.
func (f *fixture) seed(t *testing.T, reference string, status model.Status) *model.Transaction {
	t.Helper()
	tx := &model.Transaction{
		ID:               "id-" + reference,
		UserID:           "user-1",
		Amount:           decimal.NewFromInt(500),
		Currency:         "NGN",
		Email:            "payer@example.com",
		PaymentReference: reference,
		Provider:         model.ProviderPaystack,
		Status:           status,
		Metadata:         map[string]interface{}{"plan": "annual"},
		Version:          1,
	}
	if err := f.repo.Create(context.Background(), tx); err != nil {
		t.Fatalf("seed %s: %v", reference, err)
	}
	return tx
}

func (f *fixture) load(t *testing.T, reference string) *model.Transaction {
	t.Helper()
	tx, err := f.repo.FindByReference(context.Background(), reference)
	if err != nil {
		t.Fatalf("load %s: %v", reference, err)
	}
	return tx
}

func (f *fixture) signedHeaders(body []byte) map[string][]string {
	return http.Header{"X-Paystack-Signature": {f.processor.Sign(body)}}
}

func chargeEvent(event, reference, status string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"data":{"id":1001,"reference":%q,"status":%q,"amount":%d,"currency":"NGN","paid_at":"2024-05-01T10:00:00.000Z","channel":"card","customer":{"email":"payer@example.com"}}}`,
		event, reference, status, amount))
}

// memRepo is an in-memory repository whose CompareAndSwap is atomic. When
// readBarrier is set, FindByReference waits until every reader has loaded
// its snapshot so concurrent callers race on the same version.
type memRepo struct {
	mu          sync.Mutex
	rows        map[string]model.Transaction
	readBarrier *sync.WaitGroup
	casWins     int
	casLosses   int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]model.Transaction)}
}

func (r *memRepo) Create(_ context.Context, tx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.PaymentReference == tx.PaymentReference {
			return ports.ErrPersistence
		}
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.UpdatedAt = tx.CreatedAt
	r.rows[tx.ID] = copyTx(*tx)
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := copyTx(row)
	return &out, nil
}

func (r *memRepo) FindByReference(_ context.Context, reference string) (*model.Transaction, error) {
	r.mu.Lock()
	var found *model.Transaction
	for _, row := range r.rows {
		if row.PaymentReference == reference {
			out := copyTx(row)
			found = &out
			break
		}
	}
	barrier := r.readBarrier
	r.mu.Unlock()

	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	if found == nil {
		return nil, ports.ErrNotFound
	}
	return found, nil
}

func (r *memRepo) FindStale(_ context.Context, statuses []model.Status, before time.Time, limit int) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Transaction
	for _, row := range r.rows {
		for _, s := range statuses {
			if row.Status == s && row.CreatedAt.Before(before) {
				out = append(out, copyTx(row))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) CompareAndSwap(_ context.Context, upd model.StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[upd.ID]
	if !ok || row.Status != upd.ExpectedStatus || row.Version != upd.ExpectedVersion {
		r.casLosses++
		return false, nil
	}
	row.Status = upd.Status
	row.Version++
	row.UpdatedAt = time.Now().UTC()
	if upd.Metadata != nil {
		row.Metadata = upd.Metadata
	}
	if upd.PaymentReference != "" {
		row.PaymentReference = upd.PaymentReference
	}
	if upd.ProcessorID != "" {
		row.ProcessorID = upd.ProcessorID
	}
	if upd.AuthorizationURL != "" {
		row.AuthorizationURL = upd.AuthorizationURL
	}
	r.rows[upd.ID] = row
	r.casWins++
	return true, nil
}

func copyTx(tx model.Transaction) model.Transaction {
	tx.Metadata = model.MergeMetadata(tx.Metadata, nil)
	return tx
}
