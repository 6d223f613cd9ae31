/**
 * @description
 * This file provides the PostgreSQL implementation of the `LedgerRepository` interface.
 * Amounts travel as text and are cast to NUMERIC in SQL so that no binary floating point
 * ever touches a monetary value.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Decimal amounts.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/payout-gateway/internal/domain"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
)

// PostgresRepository is a concrete implementation of the LedgerRepository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AppendLedgerRecord inserts one ledger row. ID and ReceivedAt are assigned when unset.
func (r *PostgresRepository) AppendLedgerRecord(ctx context.Context, record *domain.LedgerRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO payout_ledger (id, request_id, reference, recipient, amount, currency, received_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.RequestID,
		record.Reference,
		record.Recipient,
		record.Amount.String(),
		record.Currency,
		record.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger record: %w", err)
	}
	return nil
}

// FindLedgerRecordsByReference returns the most recent rows for a remittance reference.
func (r *PostgresRepository) FindLedgerRecordsByReference(ctx context.Context, reference string, limit int) ([]domain.LedgerRecord, error) {
	query := `
		SELECT id, request_id, reference, recipient, amount::text, currency, received_at
		FROM payout_ledger
		WHERE reference = $1
		ORDER BY received_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, reference, ClampRecordLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.LedgerRecord
	for rows.Next() {
		var rec domain.LedgerRecord
		var amount string
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Reference, &rec.Recipient, &amount, &rec.Currency, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse ledger amount %q: %w", amount, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SummarizeLedger aggregates rows received in [from, to) per currency.
func (r *PostgresRepository) SummarizeLedger(ctx context.Context, from, to time.Time) ([]domain.LedgerTotal, error) {
	query := `
		SELECT currency, COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM payout_ledger
		WHERE received_at >= $1 AND received_at < $2
		GROUP BY currency
		ORDER BY currency
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []domain.LedgerTotal
	for rows.Next() {
		var total domain.LedgerTotal
		var amount string
		if err := rows.Scan(&total.Currency, &total.Count, &amount); err != nil {
			return nil, err
		}
		if total.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse ledger total %q: %w", amount, err)
		}
		totals = append(totals, total)
	}
	return totals, rows.Err()
}

// ClampRecordLimit bounds a caller-supplied page size.
func ClampRecordLimit(limit int) int {
	if limit <= 0 {
		return defaultRecordLimit
	}
	if limit > maxRecordLimit {
		return maxRecordLimit
	}
	return limit
}
