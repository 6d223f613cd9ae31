package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/transfa/payout-gateway/internal/domain"
	"github.com/transfa/payout-gateway/internal/metrics"
	"github.com/transfa/payout-gateway/internal/store"
)

type stubLedger struct {
	store.LedgerRepository
	mu        sync.Mutex
	records   []domain.LedgerRecord
	failRefs  map[string]bool
	totals    []domain.LedgerTotal
	summaryAt [2]time.Time
}

func (l *stubLedger) AppendLedgerRecord(ctx context.Context, record *domain.LedgerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failRefs[record.Reference] {
		return errors.New("connection reset by peer")
	}
	l.records = append(l.records, *record)
	return nil
}

func (l *stubLedger) FindLedgerRecordsByReference(ctx context.Context, reference string, limit int) ([]domain.LedgerRecord, error) {
	var out []domain.LedgerRecord
	for _, r := range l.records {
		if r.Reference == reference && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *stubLedger) SummarizeLedger(ctx context.Context, from, to time.Time) ([]domain.LedgerTotal, error) {
	l.summaryAt = [2]time.Time{from, to}
	return l.totals, nil
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type stubPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *stubPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return p.err
}

func (p *stubPublisher) Close() {}

const mixedDocument = `{"Document":{"CstmrCdtTrfInitn":{"PmtInf":{"CdtTrfTxInf":[
	{"Amt":{"InstdAmt":{"Ccy":"USD","value":"120.00"}},"Cdtr":{"Nm":"Acme Ltd"},"RmtInf":{"Ustrd":"INV-USD"}},
	{"Amt":{"InstdAmt":{"Ccy":"JPY","value":"900"}},"Cdtr":{"Nm":"Tanaka"},"RmtInf":{"Ustrd":"INV-JPY"}},
	{"Amt":{"InstdAmt":{"Ccy":"EUR","value":"6000.00"}},"Cdtr":{"Nm":"Jane Doe"},"RmtInf":{"Ustrd":"INV-EUR"}}
]}}}}`

type serviceFixture struct {
	service   *Service
	verifier  *SignatureVerifier
	ledger    *stubLedger
	provider  *stubProvider
	publisher *stubPublisher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	verifier, err := NewSignatureVerifier("test-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ledger := &stubLedger{failRefs: map[string]bool{}}
	provider := newStubProvider()
	publisher := &stubPublisher{}
	m := metrics.Nop()
	router := NewPayoutRouter(testPolicy(), provider, newMemoryGuard(), time.Second, m)
	service := NewService(verifier, ledger, router, ServiceOptions{
		EventProducer: publisher,
		Exchange:      "payout_events",
		LedgerTimeout: time.Second,
		Metrics:       m,
	})
	return &serviceFixture{service: service, verifier: verifier, ledger: ledger, provider: provider, publisher: publisher}
}

func TestProcessWebhookMixedCurrencies(t *testing.T) {
	f := newServiceFixture(t)
	body := []byte(mixedDocument)

	result, err := f.service.ProcessWebhook(context.Background(), "req-1", body, f.verifier.Sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.WebhookProcessed || result.RequestID != "req-1" {
		t.Fatalf("unexpected result header: %+v", result)
	}

	wantStatus := []domain.InstructionStatus{domain.StatusDispatched, domain.StatusIgnored, domain.StatusDispatched}
	wantRefs := []string{"INV-USD", "INV-JPY", "INV-EUR"}
	if len(result.Results) != len(wantStatus) {
		t.Fatalf("expected %d results, got %d", len(wantStatus), len(result.Results))
	}
	for i, r := range result.Results {
		if r.Status != wantStatus[i] || r.Reference != wantRefs[i] {
			t.Fatalf("result %d: expected %s/%s, got %+v", i, wantRefs[i], wantStatus[i], r)
		}
		if r.LedgerID == "" {
			t.Fatalf("result %d: expected ledger id", i)
		}
	}
	if len(result.Results[2].Payouts) != 2 {
		t.Fatalf("expected EUR split into 2 legs, got %+v", result.Results[2].Payouts)
	}

	if len(f.ledger.records) != 3 {
		t.Fatalf("expected every instruction in the ledger, got %d", len(f.ledger.records))
	}
	for i, rec := range f.ledger.records {
		if rec.Reference != wantRefs[i] || rec.RequestID != "req-1" {
			t.Fatalf("ledger record %d out of order: %+v", i, rec)
		}
	}
	if len(f.provider.requests) != 3 {
		t.Fatalf("expected 3 provider calls, got %d", len(f.provider.requests))
	}

	wantKeys := []string{"payout.dispatched", "payout.ignored", "payout.dispatched"}
	if len(f.publisher.events) != len(wantKeys) {
		t.Fatalf("expected %d events, got %d", len(wantKeys), len(f.publisher.events))
	}
	for i, ev := range f.publisher.events {
		if ev.routingKey != wantKeys[i] || ev.exchange != "payout_events" {
			t.Fatalf("event %d: unexpected %s/%s", i, ev.exchange, ev.routingKey)
		}
	}
}

func TestProcessWebhookDispatchesIdenticalSiblingInstructions(t *testing.T) {
	f := newServiceFixture(t)
	body := []byte(`{"Document":{"CstmrCdtTrfInitn":{"PmtInf":{"CdtTrfTxInf":[
		{"Amt":{"InstdAmt":{"Ccy":"USD","value":"10.00"}},"Cdtr":{"Nm":"Landlord"},"RmtInf":{"Ustrd":"RENT"}},
		{"Amt":{"InstdAmt":{"Ccy":"USD","value":"10.00"}},"Cdtr":{"Nm":"Landlord"},"RmtInf":{"Ustrd":"RENT"}}
	]}}}}`)

	result, err := f.service.ProcessWebhook(context.Background(), "req-1", body, f.verifier.Sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.provider.requests) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(f.provider.requests))
	}
	if f.provider.requests[0].IdempotencyKey == f.provider.requests[1].IdempotencyKey {
		t.Fatal("expected distinct idempotency keys for sibling instructions")
	}
	for i, r := range result.Results {
		if r.Status != domain.StatusDispatched || len(r.Payouts) != 1 || r.Payouts[0].Replayed {
			t.Fatalf("result %d: expected a fresh dispatch, got %+v", i, r)
		}
	}
	if result.Results[0].Payouts[0].ID == result.Results[1].Payouts[0].ID {
		t.Fatal("expected two separate payouts")
	}
}

func TestProcessWebhookRedeliveryReplaysLegs(t *testing.T) {
	f := newServiceFixture(t)
	body := []byte(mixedDocument)
	signature := f.verifier.Sign(body)

	if _, err := f.service.ProcessWebhook(context.Background(), "req-1", body, signature); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	retry, err := f.service.ProcessWebhook(context.Background(), "req-2", body, signature)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.provider.requests) != 3 {
		t.Fatalf("expected no new provider calls on redelivery, got %d in total", len(f.provider.requests))
	}
	for _, leg := range retry.Results[2].Payouts {
		if !leg.Replayed {
			t.Fatalf("expected replayed leg, got %+v", leg)
		}
	}
}

func TestProcessWebhookWritesLedgerAfterCallerCancels(t *testing.T) {
	f := newServiceFixture(t)
	body := []byte(mixedDocument)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.service.ProcessWebhook(ctx, "req-1", body, f.verifier.Sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.ledger.records) != 3 {
		t.Fatalf("expected every instruction in the ledger, got %d", len(f.ledger.records))
	}
	for i, r := range result.Results {
		if r.LedgerID == "" || r.ErrorKind == "ledger_write" {
			t.Fatalf("result %d: expected ledger record, got %+v", i, r)
		}
	}
}

func TestProcessWebhookRejectsBadSignatureWithoutSideEffects(t *testing.T) {
	f := newServiceFixture(t)
	body := []byte(mixedDocument)
	signature := f.verifier.Sign(body)
	tampered := append([]byte{}, body...)
	tampered[len(tampered)-2] = ' '

	_, err := f.service.ProcessWebhook(context.Background(), "req-1", tampered, signature)
	if !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if len(f.ledger.records) != 0 || len(f.provider.requests) != 0 || len(f.publisher.events) != 0 {
		t.Fatal("expected no side effects for rejected signature")
	}
}

func TestProcessWebhookRejectsInvalidDocumentWithoutSideEffects(t *testing.T) {
	f := newServiceFixture(t)
	body := []byte(`{"Document":{"CstmrCdtTrfInitn":{"PmtInf":{"CdtTrfTxInf":[
		{"Amt":{"InstdAmt":{"Ccy":"USD","value":"1"}},"Cdtr":{"Nm":"A"},"RmtInf":{"Ustrd":"R1"}},
		{"Amt":{"InstdAmt":{"Ccy":"USD","value":"2"}},"Cdtr":{"Nm":"B"},"RmtInf":{}}
	]}}}}`)

	_, err := f.service.ProcessWebhook(context.Background(), "req-1", body, f.verifier.Sign(body))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.ledger.records) != 0 || len(f.provider.requests) != 0 {
		t.Fatal("expected no ledger writes or dispatches for invalid document")
	}
}

func TestProcessWebhookLedgerFailureSkipsOnlyThatInstruction(t *testing.T) {
	f := newServiceFixture(t)
	f.ledger.failRefs["INV-USD"] = true
	body := []byte(mixedDocument)

	result, err := f.service.ProcessWebhook(context.Background(), "req-1", body, f.verifier.Sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.WebhookProcessedWithErrors {
		t.Fatalf("expected processed_with_errors, got %s", result.Status)
	}
	first := result.Results[0]
	if first.Status != domain.StatusFailed || first.ErrorKind != "ledger_write" || first.LedgerID != "" {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if result.Results[2].Status != domain.StatusDispatched {
		t.Fatalf("expected later instruction to be dispatched, got %+v", result.Results[2])
	}
	for _, req := range f.provider.requests {
		if req.Currency == "USD" {
			t.Fatal("expected no dispatch for instruction without ledger record")
		}
	}
}

func TestProcessWebhookProviderFailureContinues(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.failOnCall = 1
	f.provider.failErr = errors.New("503 service unavailable")
	body := []byte(mixedDocument)

	result, err := f.service.ProcessWebhook(context.Background(), "req-1", body, f.verifier.Sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.WebhookProcessedWithErrors {
		t.Fatalf("expected processed_with_errors, got %s", result.Status)
	}
	if result.Results[0].Status != domain.StatusFailed || result.Results[0].ErrorKind != "provider_dispatch" {
		t.Fatalf("unexpected first result: %+v", result.Results[0])
	}
	if result.Results[2].Status != domain.StatusDispatched {
		t.Fatalf("expected EUR instruction to be dispatched, got %+v", result.Results[2])
	}
	if f.publisher.events[0].routingKey != "payout.failed" {
		t.Fatalf("expected payout.failed event, got %s", f.publisher.events[0].routingKey)
	}
}

func TestProcessWebhookPublishFailureDoesNotChangeResult(t *testing.T) {
	f := newServiceFixture(t)
	f.publisher.err = errors.New("channel closed")
	body := []byte(mixedDocument)

	result, err := f.service.ProcessWebhook(context.Background(), "req-1", body, f.verifier.Sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.WebhookProcessed {
		t.Fatalf("expected processed, got %s", result.Status)
	}
}

func TestLedgerRecordsClampsLimit(t *testing.T) {
	f := newServiceFixture(t)
	body := []byte(mixedDocument)
	if _, err := f.service.ProcessWebhook(context.Background(), "req-1", body, f.verifier.Sign(body)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := f.service.LedgerRecords(context.Background(), "INV-EUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Currency != "EUR" {
		t.Fatalf("unexpected records: %+v", records)
	}
}
