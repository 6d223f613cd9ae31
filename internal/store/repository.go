/**
 * @description
 * This file defines the `LedgerRepository` interface, the contract for the append-only
 * payout ledger. Business logic depends on the interface so that the PostgreSQL
 * implementation can be swapped for stubs in tests.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/transfa/payout-gateway/internal/domain"
)

// LedgerRepository defines the set of methods for interacting with the ledger.
type LedgerRepository interface {
	// AppendLedgerRecord persists one received instruction. It never updates rows.
	AppendLedgerRecord(ctx context.Context, record *domain.LedgerRecord) error
	FindLedgerRecordsByReference(ctx context.Context, reference string, limit int) ([]domain.LedgerRecord, error)
	SummarizeLedger(ctx context.Context, from, to time.Time) ([]domain.LedgerTotal, error)
}
