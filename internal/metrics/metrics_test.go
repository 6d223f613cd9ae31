package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.WebhookRequests.WithLabelValues("accepted").Inc()
	m.Instructions.WithLabelValues("EUR", "dispatched").Add(2)
	m.LedgerWriteFailures.Inc()

	if got := testutil.ToFloat64(m.Instructions.WithLabelValues("EUR", "dispatched")); got != 2 {
		t.Fatalf("expected 2 dispatched EUR instructions, got %v", got)
	}
	if got := testutil.ToFloat64(m.LedgerWriteFailures); got != 1 {
		t.Fatalf("expected 1 ledger failure, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// Unlabelled collectors are always exported; vectors only once a child exists.
	if len(families) != 4 {
		t.Fatalf("expected 4 metric families, got %d", len(families))
	}
}

func TestNopUsesPrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	_ = Nop()
	_ = Nop()
}
