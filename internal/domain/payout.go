package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CappedCurrency is the only currency the ceiling split applies to. Other supported
// currencies pass through uncapped.
const CappedCurrency = "EUR"

// InstructionStatus is the terminal disposition of one instruction.
type InstructionStatus string

const (
	StatusDispatched InstructionStatus = "dispatched"
	StatusIgnored    InstructionStatus = "ignored"
	StatusFailed     InstructionStatus = "failed"
)

// Overall webhook statuses.
const (
	WebhookProcessed           = "processed"
	WebhookProcessedWithErrors = "processed_with_errors"
	WebhookRejected            = "rejected"
)

// PayoutPolicy is the immutable routing configuration built once at startup.
type PayoutPolicy struct {
	SupportedCurrencies map[string]struct{}
	Destinations        map[string]string
	EURDailyCeiling     decimal.Decimal
	Method              string
	Descriptor          string
}

// Supports reports whether currency (uppercase) is routed to the payout provider.
func (p PayoutPolicy) Supports(currency string) bool {
	_, ok := p.SupportedCurrencies[currency]
	return ok
}

// Destination returns the configured destination account for currency.
func (p PayoutPolicy) Destination(currency string) (string, bool) {
	dest, ok := p.Destinations[currency]
	if !ok || dest == "" {
		return "", false
	}
	return dest, true
}

// PayoutLeg is one provider disbursement produced for an instruction.
type PayoutLeg struct {
	Leg            int    `json:"leg"`
	ID             string `json:"id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Destination    string `json:"destination,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	Replayed       bool   `json:"replayed,omitempty"`
}

// PayoutOutcome is what the router decided for one instruction.
type PayoutOutcome struct {
	Status    InstructionStatus
	Legs      []PayoutLeg
	Reason    string
	ErrorKind string
	Err       error
}

// InstructionResult is the per-instruction entry returned to the webhook caller.
type InstructionResult struct {
	Reference string            `json:"reference"`
	Recipient string            `json:"recipient"`
	Amount    string            `json:"amount"`
	Currency  string            `json:"currency"`
	Status    InstructionStatus `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	ErrorKind string            `json:"error_kind,omitempty"`
	LedgerID  string            `json:"ledger_id,omitempty"`
	Payouts   []PayoutLeg       `json:"payouts,omitempty"`
}

// WebhookResult is the aggregated response body for an accepted webhook.
type WebhookResult struct {
	Status    string              `json:"status"`
	RequestID string              `json:"request_id"`
	Results   []InstructionResult `json:"results"`
}

// LedgerRecord is the append-only audit row written before any payout attempt.
type LedgerRecord struct {
	ID         uuid.UUID       `json:"id"`
	RequestID  string          `json:"request_id"`
	Reference  string          `json:"reference"`
	Recipient  string          `json:"recipient"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	ReceivedAt time.Time       `json:"received_at"`
}

// LedgerTotal is a per-currency aggregate over a time window.
type LedgerTotal struct {
	Currency string          `json:"currency"`
	Count    int64           `json:"count"`
	Amount   decimal.Decimal `json:"amount"`
}

// PayoutEvent is published to the events exchange after each instruction.
type PayoutEvent struct {
	RequestID  string            `json:"request_id"`
	LedgerID   string            `json:"ledger_id,omitempty"`
	Reference  string            `json:"reference"`
	Recipient  string            `json:"recipient"`
	Amount     string            `json:"amount"`
	Currency   string            `json:"currency"`
	Status     InstructionStatus `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Legs       []PayoutLeg       `json:"legs,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// LedgerDigestEvent summarises one day of ledger activity.
type LedgerDigestEvent struct {
	From   time.Time     `json:"from"`
	To     time.Time     `json:"to"`
	Totals []LedgerTotal `json:"totals"`
}
