package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josh-kwaku/account-ledger/internal/domain"
)

const transactionColumns = `id, transaction_id, type, result, account_id, account_number,
	amount, balance_snapshot, original_transaction_id, transacted_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends txn and sets its ID. Rows are never updated afterwards.
func (r *TransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`INSERT INTO transactions (
			transaction_id, type, result, account_id, account_number,
			amount, balance_snapshot, original_transaction_id, transacted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		txn.TransactionID, txn.Type, txn.Result, txn.AccountID, txn.AccountNumber,
		txn.Amount, txn.BalanceSnapshot, txn.OriginalTransactionID, txn.TransactedAt,
	).Scan(&txn.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, transactionID,
	)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("GetByTransactionID: %w", translateNoRows(err))
	}
	return t, nil
}

// HasSuccessfulCancel reports whether a successful CANCEL already reverses
// the transaction with the given external id.
func (r *TransactionRepository) HasSuccessfulCancel(ctx context.Context, originalTransactionID string) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE original_transaction_id = $1 AND type = $2 AND result = $3
		)`,
		originalTransactionID, domain.TransactionTypeCancel, domain.TransactionResultSuccess,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("HasSuccessfulCancel: %w", err)
	}
	return exists, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		t          domain.Transaction
		accountID  sql.NullInt64
		snapshot   sql.NullInt64
		originalID sql.NullString
	)
	err := s.Scan(
		&t.ID, &t.TransactionID, &t.Type, &t.Result, &accountID, &t.AccountNumber,
		&t.Amount, &snapshot, &originalID, &t.TransactedAt,
	)
	if err != nil {
		return nil, err
	}
	if accountID.Valid {
		t.AccountID = &accountID.Int64
	}
	if snapshot.Valid {
		t.BalanceSnapshot = &snapshot.Int64
	}
	if originalID.Valid {
		t.OriginalTransactionID = &originalID.String
	}
	return &t, nil
}
