/**
 * @description
 * This file contains the request orchestrator for the payout gateway. The `Service`
 * struct runs one inbound webhook end to end: signature check, extraction, ledger
 * append and payout routing for every instruction, then result aggregation.
 *
 * Key features:
 * - Rejects the request before any side effect when the signature or document is bad.
 * - Writes each instruction to the ledger before any dispatch is attempted for it.
 * - Processes instructions in document order; one failure never halts the rest.
 * - Publishes a payout lifecycle event per instruction to RabbitMQ.
 *
 * @dependencies
 * - internal/domain, internal/store, internal/metrics: models, ledger access and collectors.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/payout-gateway/internal/domain"
	"github.com/transfa/payout-gateway/internal/metrics"
	"github.com/transfa/payout-gateway/internal/store"
	"github.com/transfa/payout-gateway/pkg/rabbitmq"
)

// Service orchestrates webhook processing.
type Service struct {
	verifier      *SignatureVerifier
	ledger        store.LedgerRepository
	router        *PayoutRouter
	eventProducer rabbitmq.Publisher
	exchange      string
	ledgerTimeout time.Duration
	metrics       *metrics.Metrics
	now           func() time.Time
}

// ServiceOptions carries the optional collaborators of a Service.
type ServiceOptions struct {
	EventProducer rabbitmq.Publisher
	Exchange      string
	LedgerTimeout time.Duration
	Metrics       *metrics.Metrics
}

// NewService creates a new orchestrator instance.
func NewService(verifier *SignatureVerifier, ledger store.LedgerRepository, router *PayoutRouter, opts ServiceOptions) *Service {
	producer := opts.EventProducer
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	exchange := opts.Exchange
	if exchange == "" {
		exchange = "payout_events"
	}
	ledgerTimeout := opts.LedgerTimeout
	if ledgerTimeout <= 0 {
		ledgerTimeout = 5 * time.Second
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Nop()
	}
	return &Service{
		verifier:      verifier,
		ledger:        ledger,
		router:        router,
		eventProducer: producer,
		exchange:      exchange,
		ledgerTimeout: ledgerTimeout,
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ProcessWebhook authenticates and processes one webhook body. A returned error means
// the request was rejected as a whole (authentication or validation) and nothing was
// written or dispatched. Per-instruction failures are reported in the result instead.
func (s *Service) ProcessWebhook(ctx context.Context, requestID string, body []byte, signature string) (*domain.WebhookResult, error) {
	if err := s.verifier.Verify(body, signature); err != nil {
		s.metrics.WebhookRequests.WithLabelValues("unauthorized").Inc()
		log.Printf("level=warn component=webhook msg=\"signature rejected\" request_id=%s err=%q", requestID, err)
		return nil, err
	}

	instructions, err := ExtractInstructions(body)
	if err != nil {
		s.metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		log.Printf("level=warn component=webhook msg=\"payment document rejected\" request_id=%s err=%q", requestID, err)
		return nil, err
	}
	s.metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	log.Printf("level=info component=webhook msg=\"payment document accepted\" request_id=%s instructions=%d", requestID, len(instructions))

	result := &domain.WebhookResult{
		Status:    domain.WebhookProcessed,
		RequestID: requestID,
		Results:   make([]domain.InstructionResult, 0, len(instructions)),
	}
	for _, instr := range instructions {
		entry := s.processInstruction(ctx, requestID, instr)
		if entry.Status == domain.StatusFailed {
			result.Status = domain.WebhookProcessedWithErrors
		}
		result.Results = append(result.Results, entry)
	}

	log.Printf("level=info component=webhook msg=\"webhook processed\" request_id=%s status=%s", requestID, result.Status)
	return result, nil
}

func (s *Service) processInstruction(ctx context.Context, requestID string, instr domain.CreditTransferInstruction) domain.InstructionResult {
	entry := domain.InstructionResult{
		Reference: instr.Reference,
		Recipient: instr.Recipient,
		Amount:    instr.Amount.String(),
		Currency:  instr.Currency,
	}

	record := &domain.LedgerRecord{
		ID:         uuid.New(),
		RequestID:  requestID,
		Reference:  instr.Reference,
		Recipient:  instr.Recipient,
		Amount:     instr.Amount,
		Currency:   instr.Currency,
		ReceivedAt: s.now(),
	}

	var outcome domain.PayoutOutcome
	if err := s.appendLedger(ctx, record); err != nil {
		s.metrics.LedgerWriteFailures.Inc()
		log.Printf("level=error component=ledger msg=\"ledger append failed; dispatch skipped\" request_id=%s position=%d reference=%q err=%q", requestID, instr.Position, instr.Reference, err)
		wrapped := fmt.Errorf("%w: %v", domain.ErrLedgerWrite, err)
		outcome = domain.PayoutOutcome{
			Status:    domain.StatusFailed,
			Reason:    wrapped.Error(),
			ErrorKind: errorKind(wrapped),
			Err:       wrapped,
		}
	} else {
		entry.LedgerID = record.ID.String()
		outcome = s.router.Route(ctx, requestID, instr)
	}

	entry.Status = outcome.Status
	entry.Reason = outcome.Reason
	entry.ErrorKind = outcome.ErrorKind
	entry.Payouts = outcome.Legs
	s.metrics.Instructions.WithLabelValues(instr.Currency, string(outcome.Status)).Inc()

	s.publishOutcome(ctx, requestID, entry)
	return entry
}

func (s *Service) appendLedger(ctx context.Context, record *domain.LedgerRecord) error {
	ledgerCtx, cancel := detachedContext(ctx, s.ledgerTimeout)
	defer cancel()
	return s.ledger.AppendLedgerRecord(ledgerCtx, record)
}

func (s *Service) publishOutcome(ctx context.Context, requestID string, entry domain.InstructionResult) {
	event := domain.PayoutEvent{
		RequestID:  requestID,
		LedgerID:   entry.LedgerID,
		Reference:  entry.Reference,
		Recipient:  entry.Recipient,
		Amount:     entry.Amount,
		Currency:   entry.Currency,
		Status:     entry.Status,
		Reason:     entry.Reason,
		Legs:       entry.Payouts,
		OccurredAt: s.now(),
	}
	routingKey := "payout." + string(entry.Status)
	if err := s.eventProducer.Publish(ctx, s.exchange, routingKey, event); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish payout event failed\" request_id=%s routing_key=%s err=%q", requestID, routingKey, err)
	}
}

// LedgerRecords returns ledger rows for a remittance reference, most recent first.
func (s *Service) LedgerRecords(ctx context.Context, reference string, limit int) ([]domain.LedgerRecord, error) {
	ledgerCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	return s.ledger.FindLedgerRecordsByReference(ledgerCtx, reference, store.ClampRecordLimit(limit))
}
