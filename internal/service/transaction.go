package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/account-ledger/internal/domain"
	"github.com/josh-kwaku/account-ledger/internal/lock"
	"github.com/josh-kwaku/account-ledger/internal/logging"
)

// TransactionService mutates balances. Every use and cancel runs under the
// account's lock; a rejected attempt leaves a FAIL record behind, written
// before the lock is released.
type TransactionService struct {
	accounts     accountRepository
	transactions transactionRepository
	db           txRunner
	locker       lock.Locker
	holdDelay    time.Duration
	now          func() time.Time
	newID        func() string
}

func NewTransactionService(
	accounts accountRepository,
	transactions transactionRepository,
	db txRunner,
	locker lock.Locker,
	holdDelay time.Duration,
) *TransactionService {
	return &TransactionService{
		accounts:     accounts,
		transactions: transactions,
		db:           db,
		locker:       locker,
		holdDelay:    holdDelay,
		now:          utcNow,
		newID:        newTransactionID,
	}
}

// newTransactionID is a v4 UUID without dashes.
func newTransactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *TransactionService) UseBalance(ctx context.Context, userID int64, accountNumber string, amount int64) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	var txn *domain.Transaction
	err := s.locker.WithLock(ctx, lock.AccountKey(accountNumber), func(ctx context.Context) error {
		if err := s.hold(ctx); err != nil {
			return err
		}

		var account *domain.Account
		err := s.db.WithinTx(ctx, func(ctx context.Context) error {
			a, err := s.lookupAccount(ctx, accountNumber)
			if err != nil {
				return err
			}
			account = a

			if err := validateUse(a, userID, amount); err != nil {
				return err
			}

			txn, err = s.apply(ctx, a, a.Balance-amount, &domain.Transaction{
				Type:          domain.TransactionTypeUse,
				AccountNumber: accountNumber,
				Amount:        amount,
			})
			return err
		})
		if err != nil {
			return s.recordFailure(ctx, &domain.Transaction{
				Type:          domain.TransactionTypeUse,
				AccountID:     accountIDOf(account),
				AccountNumber: accountNumber,
				Amount:        amount,
			}, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("UseBalance: %w", err)
	}

	log.Info("balance used",
		"transaction_id", txn.TransactionID,
		"account_number", accountNumber,
		"user_id", userID,
		"amount", amount,
		"balance", *txn.BalanceSnapshot,
	)

	return txn, nil
}

func validateUse(a *domain.Account, userID int64, amount int64) error {
	if a.UserID != userID {
		return domain.ErrUserAccountUnMatch
	}
	if !a.IsActive() {
		return domain.ErrAccountAlreadyUnregistered
	}
	if amount < domain.MinTransactionAmount {
		return domain.NewError(domain.CodeInvalidRequest,
			fmt.Sprintf("amount must be at least %d", domain.MinTransactionAmount))
	}
	if amount > a.Balance {
		return domain.ErrAmountExceedBalance
	}
	return nil
}

func (s *TransactionService) CancelBalance(ctx context.Context, transactionID string, accountNumber string, amount int64) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	var txn *domain.Transaction
	err := s.locker.WithLock(ctx, lock.AccountKey(accountNumber), func(ctx context.Context) error {
		if err := s.hold(ctx); err != nil {
			return err
		}

		var account *domain.Account
		err := s.db.WithinTx(ctx, func(ctx context.Context) error {
			original, err := s.transactions.GetByTransactionID(ctx, transactionID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return domain.ErrTransactionNotFound
				}
				return err
			}

			a, err := s.lookupAccount(ctx, accountNumber)
			if err != nil {
				return err
			}
			account = a

			if err := s.validateCancel(ctx, original, a, amount); err != nil {
				return err
			}

			txn, err = s.apply(ctx, a, a.Balance+amount, &domain.Transaction{
				Type:                  domain.TransactionTypeCancel,
				AccountNumber:         accountNumber,
				Amount:                amount,
				OriginalTransactionID: &original.TransactionID,
			})
			return err
		})
		if err != nil {
			return s.recordFailure(ctx, &domain.Transaction{
				Type:                  domain.TransactionTypeCancel,
				AccountID:             accountIDOf(account),
				AccountNumber:         accountNumber,
				Amount:                amount,
				OriginalTransactionID: &transactionID,
			}, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CancelBalance: %w", err)
	}

	log.Info("balance use canceled",
		"transaction_id", txn.TransactionID,
		"original_transaction_id", transactionID,
		"account_number", accountNumber,
		"amount", amount,
		"balance", *txn.BalanceSnapshot,
	)

	return txn, nil
}

func (s *TransactionService) validateCancel(ctx context.Context, original *domain.Transaction, a *domain.Account, amount int64) error {
	if original.AccountID == nil || *original.AccountID != a.ID {
		return domain.ErrTransactionAccountUnMatch
	}
	if !original.IsCancelableUse() {
		return domain.NewError(domain.CodeInvalidRequest, "only a successful use can be canceled")
	}
	if amount != original.Amount {
		return domain.ErrCancelMustFully
	}
	if s.now().Sub(original.TransactedAt) > domain.CancelWindow {
		return domain.ErrTooOldOrderToCancel
	}

	canceled, err := s.transactions.HasSuccessfulCancel(ctx, original.TransactionID)
	if err != nil {
		return err
	}
	if canceled {
		return domain.ErrTransactionAlreadyCanceled
	}

	if !a.IsActive() {
		return domain.ErrAccountAlreadyUnregistered
	}
	if amount < 0 {
		return domain.NewError(domain.CodeInvalidRequest, "amount must not be negative")
	}
	return nil
}

func (s *TransactionService) QueryTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, err := s.transactions.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("QueryTransaction: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("QueryTransaction: %w", err)
	}
	return txn, nil
}

func (s *TransactionService) lookupAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	a, err := s.accounts.GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

// apply writes newBalance to a and appends txn as a SUCCESS. Must run inside
// the caller's db transaction.
func (s *TransactionService) apply(ctx context.Context, a *domain.Account, newBalance int64, txn *domain.Transaction) (*domain.Transaction, error) {
	if err := s.accounts.UpdateBalance(ctx, a.ID, newBalance, a.Version+1); err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	txn.TransactionID = s.newID()
	txn.Result = domain.TransactionResultSuccess
	txn.AccountID = &a.ID
	txn.BalanceSnapshot = &newBalance
	txn.TransactedAt = s.now()

	if err := s.transactions.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	return txn, nil
}

// recordFailure appends a FAIL record for a rejected attempt and returns
// cause. Faults without a business code are returned as-is with no record.
func (s *TransactionService) recordFailure(ctx context.Context, attempt *domain.Transaction, cause error) error {
	if !domain.IsCoded(cause) {
		return cause
	}

	log := logging.FromContext(ctx)

	attempt.TransactionID = s.newID()
	attempt.Result = domain.TransactionResultFail
	attempt.TransactedAt = s.now()

	// The attempt is recorded even if the caller has gone away.
	if err := s.transactions.Create(context.WithoutCancel(ctx), attempt); err != nil {
		log.Error("failed to record failed transaction",
			"type", attempt.Type,
			"account_number", attempt.AccountNumber,
			"code", domain.CodeOf(cause),
			"error", err,
		)
		return errors.Join(cause, fmt.Errorf("recordFailure: %w", err))
	}

	log.Warn("balance operation rejected",
		"transaction_id", attempt.TransactionID,
		"type", attempt.Type,
		"account_number", attempt.AccountNumber,
		"amount", attempt.Amount,
		"code", domain.CodeOf(cause),
	)
	return cause
}

func (s *TransactionService) hold(ctx context.Context) error {
	if s.holdDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.holdDelay)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hold: %w", ctx.Err())
	}
}

func accountIDOf(a *domain.Account) *int64 {
	if a == nil {
		return nil
	}
	id := a.ID
	return &id
}
