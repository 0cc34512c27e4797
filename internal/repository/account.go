package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/josh-kwaku/account-ledger/internal/domain"
)

const accountColumns = `id, user_id, account_number, status, balance, version,
	registered_at, unregistered_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", translateNoRows(err))
	}
	return a, nil
}

func (r *AccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber,
	)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("GetByAccountNumber: %w", translateNoRows(err))
	}
	return a, nil
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) ([]domain.Account, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByUserID: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByUserID: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByUserID: rows: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) CountActiveByUserID(ctx context.Context, userID int64) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE user_id = $1 AND status = $2`,
		userID, domain.AccountStatusInUse,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountActiveByUserID: %w", err)
	}
	return n, nil
}

// Create inserts account and sets its ID. A taken account number yields
// domain.ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`INSERT INTO accounts (user_id, account_number, status, balance, version, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		account.UserID, account.AccountNumber, account.Status,
		account.Balance, account.Version, account.RegisteredAt,
	).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) Unregister(ctx context.Context, id int64, at time.Time) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE accounts SET status = $1, unregistered_at = $2
		WHERE id = $3 AND status = $4`,
		domain.AccountStatusUnregistered, at, id, domain.AccountStatusInUse,
	)
	if err != nil {
		return fmt.Errorf("Unregister: %w", err)
	}
	return requireOneRow(res, "Unregister")
}

// UpdateBalance writes newBalance only if the stored version is
// newVersion-1 and the account is still in use.
func (r *AccountRepository) UpdateBalance(ctx context.Context, id int64, newBalance int64, newVersion int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = $2
		WHERE id = $3 AND version = $4 AND status = $5`,
		newBalance, newVersion, id, newVersion-1, domain.AccountStatusInUse,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}
	return requireOneRow(res, "UpdateBalance")
}

func requireOneRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrVersionConflict)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var (
		a              domain.Account
		unregisteredAt sql.NullTime
	)
	err := s.Scan(
		&a.ID, &a.UserID, &a.AccountNumber, &a.Status,
		&a.Balance, &a.Version,
		&a.RegisteredAt, &unregisteredAt,
	)
	if err != nil {
		return nil, err
	}
	if unregisteredAt.Valid {
		t := unregisteredAt.Time
		a.UnregisteredAt = &t
	}
	return &a, nil
}
