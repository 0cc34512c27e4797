package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/josh-kwaku/account-ledger/internal/domain"
	"github.com/josh-kwaku/account-ledger/internal/lock"
	"github.com/josh-kwaku/account-ledger/internal/logging"
)

// createAttempts bounds how often CreateAccount regenerates a number after
// losing an insert race on the unique index.
const createAttempts = 3

type AccountService struct {
	users    userRepository
	accounts accountRepository
	numbers  numberGenerator
	locker   lock.Locker
	now      func() time.Time
}

func NewAccountService(users userRepository, accounts accountRepository, numbers numberGenerator, locker lock.Locker) *AccountService {
	return &AccountService{
		users:    users,
		accounts: accounts,
		numbers:  numbers,
		locker:   locker,
		now:      utcNow,
	}
}

func (s *AccountService) CreateAccount(ctx context.Context, userID int64, initialBalance int64) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if err := s.requireUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	if initialBalance < 0 {
		return nil, fmt.Errorf("CreateAccount: initial balance %d: %w", initialBalance, domain.ErrInvalidRequest)
	}

	var account *domain.Account
	err := s.locker.WithLock(ctx, lock.UserKey(userID), func(ctx context.Context) error {
		n, err := s.accounts.CountActiveByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if n >= domain.MaxAccountsPerUser {
			return domain.ErrMaxAccountPerUser
		}

		account, err = s.insertAccount(ctx, userID, initialBalance)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	log.Info("account created",
		"account_id", account.ID,
		"account_number", account.AccountNumber,
		"user_id", userID,
		"balance", account.Balance,
	)

	return account, nil
}

func (s *AccountService) insertAccount(ctx context.Context, userID int64, balance int64) (*domain.Account, error) {
	var lastErr error
	for range createAttempts {
		number, err := s.numbers.Generate(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("insertAccount: %w", err)
		}

		account := &domain.Account{
			UserID:        userID,
			AccountNumber: number,
			Status:        domain.AccountStatusInUse,
			Balance:       balance,
			RegisteredAt:  s.now(),
		}
		err = s.accounts.Create(ctx, account)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, domain.ErrDuplicate) {
			return nil, fmt.Errorf("insertAccount: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("insertAccount: %w", lastErr)
}

func (s *AccountService) DeleteAccount(ctx context.Context, userID int64, accountNumber string) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if err := s.requireUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("DeleteAccount: %w", err)
	}

	var account *domain.Account
	err := s.locker.WithLock(ctx, lock.AccountKey(accountNumber), func(ctx context.Context) error {
		a, err := s.accounts.GetByAccountNumber(ctx, accountNumber)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}

		if err := validateDelete(a, userID); err != nil {
			return err
		}

		at := s.now()
		if err := s.accounts.Unregister(ctx, a.ID, at); err != nil {
			return err
		}
		a.Status = domain.AccountStatusUnregistered
		a.UnregisteredAt = &at
		account = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("DeleteAccount: %w", err)
	}

	log.Info("account unregistered",
		"account_id", account.ID,
		"account_number", account.AccountNumber,
		"user_id", userID,
	)

	return account, nil
}

func validateDelete(a *domain.Account, userID int64) error {
	if a.UserID != userID {
		return domain.ErrUserAccountUnMatch
	}
	if !a.IsActive() {
		return domain.ErrAccountAlreadyUnregistered
	}
	if a.Balance > 0 {
		return domain.ErrBalanceNotEmpty
	}
	return nil
}

func (s *AccountService) GetAccountsByUser(ctx context.Context, userID int64) ([]domain.Account, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("GetAccountsByUser: %w", err)
	}

	accounts, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetAccountsByUser: %w", err)
	}
	return accounts, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if id < 0 {
		return nil, fmt.Errorf("GetAccount: id %d: %w", id, domain.ErrInvalidRequest)
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("GetAccount: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

func (s *AccountService) requireUser(ctx context.Context, userID int64) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return err
	}
	return nil
}
