package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/josh-kwaku/account-ledger/internal/domain"
)

func SeedUser(t *testing.T, db *sql.DB, name string) *domain.User {
	t.Helper()

	u := &domain.User{Name: name}
	err := db.QueryRow(
		`INSERT INTO users (name) VALUES ($1) RETURNING id, created_at`, name,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func SeedAccount(t *testing.T, db *sql.DB, userID int64, accountNumber string, balance int64) *domain.Account {
	t.Helper()

	a := &domain.Account{
		UserID:        userID,
		AccountNumber: accountNumber,
		Status:        domain.AccountStatusInUse,
		Balance:       balance,
		RegisteredAt:  time.Now().UTC(),
	}
	err := db.QueryRow(
		`INSERT INTO accounts (user_id, account_number, status, balance, version, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.UserID, a.AccountNumber, a.Status, a.Balance, a.Version, a.RegisteredAt,
	).Scan(&a.ID)
	if err != nil {
		t.Fatalf("seed account %s for user %d: %v", accountNumber, userID, err)
	}
	return a
}

// SeedTransaction inserts txn verbatim, which lets tests back-date
// TransactedAt.
func SeedTransaction(t *testing.T, db *sql.DB, txn *domain.Transaction) {
	t.Helper()

	err := db.QueryRow(
		`INSERT INTO transactions (
			transaction_id, type, result, account_id, account_number,
			amount, balance_snapshot, original_transaction_id, transacted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		txn.TransactionID, txn.Type, txn.Result, txn.AccountID, txn.AccountNumber,
		txn.Amount, txn.BalanceSnapshot, txn.OriginalTransactionID, txn.TransactedAt,
	).Scan(&txn.ID)
	if err != nil {
		t.Fatalf("seed transaction %s: %v", txn.TransactionID, err)
	}
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID int64) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %d: %v", accountID, err)
	}
	return balance
}

func CountTransactions(t *testing.T, db *sql.DB, accountNumber string, result domain.TransactionResult) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE account_number = $1 AND result = $2`,
		accountNumber, result,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count %s transactions for %s: %v", result, accountNumber, err)
	}
	return count
}
