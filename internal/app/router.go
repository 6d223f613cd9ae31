package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/transfa/payout-gateway/internal/domain"
	"github.com/transfa/payout-gateway/internal/metrics"
	"github.com/transfa/payout-gateway/pkg/payoutclient"
)

// PayoutProvider is the subset of the payment-provider client used for dispatch.
type PayoutProvider interface {
	CreatePayout(ctx context.Context, req payoutclient.PayoutRequest) (*payoutclient.Payout, error)
	Configured() bool
}

// guardTimeout bounds Complete and Release, which run after the request context may
// already be gone.
const guardTimeout = 5 * time.Second

// PayoutRouter decides how one instruction is handled: dispatched to the provider
// (split into legs for the capped currency) or ignored.
type PayoutRouter struct {
	policy   domain.PayoutPolicy
	provider PayoutProvider
	guard    IdempotencyGuard
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewPayoutRouter wires the router. A nil guard disables the Redis claim step.
func NewPayoutRouter(policy domain.PayoutPolicy, provider PayoutProvider, guard IdempotencyGuard, timeout time.Duration, m *metrics.Metrics) *PayoutRouter {
	if guard == nil {
		guard = NoopIdempotencyGuard{}
	}
	if m == nil {
		m = metrics.Nop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PayoutRouter{
		policy:   policy,
		provider: provider,
		guard:    guard,
		timeout:  timeout,
		metrics:  m,
	}
}

// Route handles one instruction. It never returns an error: failures are carried in
// the outcome so later instructions are still processed.
func (r *PayoutRouter) Route(ctx context.Context, requestID string, instr domain.CreditTransferInstruction) domain.PayoutOutcome {
	if !r.policy.Supports(instr.Currency) {
		log.Printf("level=info component=router msg=\"instruction ignored\" request_id=%s reference=%q currency=%s", requestID, instr.Reference, instr.Currency)
		return domain.PayoutOutcome{
			Status: domain.StatusIgnored,
			Reason: fmt.Sprintf("%s: %s", domain.ErrUnsupportedCurrency, instr.Currency),
		}
	}

	if instr.Currency == "USD" {
		log.Printf("level=info component=router msg=\"usd inflow\" request_id=%s reference=%q amount=%s", requestID, instr.Reference, domain.QuantizeAmount(instr.Amount).StringFixed(2))
	}

	if r.provider == nil || !r.provider.Configured() {
		return r.failed(requestID, instr, nil, &domain.ConfigurationError{Setting: "PAYOUT_API_KEY"})
	}

	destination, hasDestination := r.policy.Destination(instr.Currency)
	if instr.Currency == domain.CappedCurrency && !hasDestination {
		return r.failed(requestID, instr, nil, &domain.ConfigurationError{Setting: instr.Currency + "_BANK_ID"})
	}

	amounts := []int64{domain.ToMinorUnits(instr.Amount)}
	if instr.Currency == domain.CappedCurrency {
		amounts = amounts[:0]
		for _, part := range domain.SplitForCeiling(instr.Amount, r.policy.EURDailyCeiling) {
			amounts = append(amounts, domain.ToMinorUnits(part))
		}
	}

	legs := make([]domain.PayoutLeg, 0, len(amounts))
	for i, amount := range amounts {
		leg, err := r.dispatchLeg(ctx, requestID, instr, i+1, amount, destination)
		if err != nil {
			return r.failed(requestID, instr, legs, err)
		}
		legs = append(legs, leg)
	}

	return domain.PayoutOutcome{Status: domain.StatusDispatched, Legs: legs}
}

func (r *PayoutRouter) dispatchLeg(ctx context.Context, requestID string, instr domain.CreditTransferInstruction, legNo int, amount int64, destination string) (domain.PayoutLeg, error) {
	key := PayoutIdempotencyKey(instr, legNo)

	cached, err := r.guard.Claim(ctx, key)
	switch {
	case errors.Is(err, domain.ErrDispatchInFlight):
		return domain.PayoutLeg{}, err
	case err != nil:
		log.Printf("level=warn component=idempotency msg=\"claim failed, continuing with provider key only\" request_id=%s leg=%d err=%q", requestID, legNo, err)
	case cached != nil:
		log.Printf("level=info component=idempotency msg=\"replaying completed leg\" request_id=%s reference=%q leg=%d payout_id=%s", requestID, instr.Reference, legNo, cached.ID)
		return *cached, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	payout, err := r.provider.CreatePayout(callCtx, payoutclient.PayoutRequest{
		Amount:              amount,
		Currency:            instr.Currency,
		Method:              r.policy.Method,
		StatementDescriptor: r.policy.Descriptor,
		Destination:         destination,
		IdempotencyKey:      key,
		Metadata: map[string]string{
			"reference":  instr.Reference,
			"recipient":  instr.Recipient,
			"request_id": requestID,
			"leg":        fmt.Sprintf("%d", legNo),
		},
	})
	r.metrics.PayoutDispatchDuration.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		guardCtx, cancelGuard := detachedContext(ctx, guardTimeout)
		releaseErr := r.guard.Release(guardCtx, key)
		cancelGuard()
		if releaseErr != nil {
			log.Printf("level=warn component=idempotency msg=\"release failed\" request_id=%s leg=%d err=%q", requestID, legNo, releaseErr)
		}
		if callCtx.Err() != nil {
			return domain.PayoutLeg{}, fmt.Errorf("payout leg %d: %w", legNo, callCtx.Err())
		}
		return domain.PayoutLeg{}, fmt.Errorf("%w: leg %d: %v", domain.ErrProviderDispatch, legNo, err)
	}

	leg := domain.PayoutLeg{
		Leg:            legNo,
		ID:             payout.ID,
		Status:         payout.Status,
		Amount:         amount,
		Currency:       strings.ToLower(instr.Currency),
		Destination:    destination,
		IdempotencyKey: key,
	}
	r.metrics.PayoutLegs.WithLabelValues(instr.Currency).Inc()

	guardCtx, cancelGuard := detachedContext(ctx, guardTimeout)
	defer cancelGuard()
	if err := r.guard.Complete(guardCtx, key, leg); err != nil {
		log.Printf("level=warn component=idempotency msg=\"store completed leg failed\" request_id=%s leg=%d err=%q", requestID, legNo, err)
	}
	log.Printf("level=info component=router msg=\"payout leg dispatched\" request_id=%s reference=%q leg=%d amount=%d currency=%s payout_id=%s", requestID, instr.Reference, legNo, amount, leg.Currency, leg.ID)
	return leg, nil
}

func (r *PayoutRouter) failed(requestID string, instr domain.CreditTransferInstruction, legs []domain.PayoutLeg, err error) domain.PayoutOutcome {
	log.Printf("level=error component=router msg=\"instruction failed\" request_id=%s reference=%q currency=%s legs_dispatched=%d err=%q", requestID, instr.Reference, instr.Currency, len(legs), err)
	return domain.PayoutOutcome{
		Status:    domain.StatusFailed,
		Legs:      legs,
		Reason:    err.Error(),
		ErrorKind: errorKind(err),
		Err:       err,
	}
}

// errorKind classifies a per-instruction failure for the response body.
func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrDispatchInFlight):
		return "dispatch_in_flight"
	case errors.Is(err, domain.ErrLedgerWrite):
		return "ledger_write"
	case errors.Is(err, domain.ErrProviderDispatch):
		return "provider_dispatch"
	default:
		return "internal"
	}
}

// detachedContext keeps ctx's values but not its cancellation, so bookkeeping for a
// provider call that already happened still runs when the caller has gone away.
func detachedContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
