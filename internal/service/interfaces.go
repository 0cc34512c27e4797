package service

import (
	"context"
	"time"

	"github.com/josh-kwaku/account-ledger/internal/domain"
)

type userRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type accountRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	GetByUserID(ctx context.Context, userID int64) ([]domain.Account, error)
	CountActiveByUserID(ctx context.Context, userID int64) (int, error)
	Create(ctx context.Context, account *domain.Account) error
	Unregister(ctx context.Context, id int64, at time.Time) error
	UpdateBalance(ctx context.Context, id int64, newBalance int64, newVersion int64) error
}

type transactionRepository interface {
	Create(ctx context.Context, txn *domain.Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error)
	HasSuccessfulCancel(ctx context.Context, originalTransactionID string) (bool, error)
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type numberGenerator interface {
	Generate(ctx context.Context, userID int64) (string, error)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
