package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/payout-gateway/internal/domain"
)

func TestPreviousUTCDay(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 30, 0, 0, time.FixedZone("CET", 3600))
	from, to := PreviousUTCDay(now)

	wantFrom := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	if !from.Equal(wantFrom) || !to.Equal(wantTo) {
		t.Fatalf("expected [%s, %s), got [%s, %s)", wantFrom, wantTo, from, to)
	}
}

func TestLedgerDigestRunPublishesTotals(t *testing.T) {
	ledger := &stubLedger{totals: []domain.LedgerTotal{
		{Currency: "EUR", Count: 2, Amount: decimal.RequireFromString("6100.00")},
		{Currency: "USD", Count: 1, Amount: decimal.RequireFromString("120.00")},
	}}
	publisher := &stubPublisher{}
	digest := NewLedgerDigest(ledger, publisher, "payout_events", time.Second)
	digest.now = func() time.Time { return time.Date(2024, 6, 10, 0, 5, 0, 0, time.UTC) }

	event, err := digest.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(event.Totals) != 2 {
		t.Fatalf("expected 2 totals, got %d", len(event.Totals))
	}
	if !ledger.summaryAt[0].Equal(time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start %s", ledger.summaryAt[0])
	}
	if len(publisher.events) != 1 || publisher.events[0].routingKey != "ledger.digest.daily" {
		t.Fatalf("expected one digest event, got %+v", publisher.events)
	}
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	digest := NewLedgerDigest(&stubLedger{}, nil, "payout_events", time.Second)
	scheduler := NewScheduler(digest, "not a cron spec")
	if err := scheduler.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
