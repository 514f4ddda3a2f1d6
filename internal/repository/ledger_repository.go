package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
)

const ledgerColumns = `id, account_id, type, amount, related_request_id, created_at`

type ledgerRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewLedgerRepository(db SQLExecutor, logger *slog.Logger) domain.LedgerRepository {
	return &ledgerRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ledgerRepository) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, account_id, type, amount, related_request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Type,
		entry.Amount,
		entry.RelatedRequestID,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append ledger entry",
			"account_id", entry.AccountID,
			"type", entry.Type,
			"amount", entry.Amount,
			"error", err)
		return errors.Storage("failed to append ledger entry", err)
	}
	return nil
}

func (r *ledgerRepository) ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`
	return r.query(ctx, query, accountID, limit, offset)
}

func (r *ledgerRepository) AllEntries(ctx context.Context, accountID uuid.UUID) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY seq
	`
	return r.query(ctx, query, accountID)
}

func (r *ledgerRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "error", err)
		return nil, errors.Storage("failed to list ledger entries", err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var (
			entry   domain.LedgerEntry
			related uuid.NullUUID
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Type,
			&entry.Amount,
			&related,
			&entry.CreatedAt,
		); err != nil {
			return nil, errors.Storage("failed to scan ledger entry", err)
		}
		if related.Valid {
			id := related.UUID
			entry.RelatedRequestID = &id
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("failed to list ledger entries", err)
	}
	return entries, nil
}
