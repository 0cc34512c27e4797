package domain

import (
	"time"
)

type TransactionType string

const (
	TransactionTypeUse    TransactionType = "USE"
	TransactionTypeCancel TransactionType = "CANCEL"
)

type TransactionResult string

const (
	TransactionResultSuccess TransactionResult = "SUCCESS"
	TransactionResultFail    TransactionResult = "FAIL"
)

const (
	MinTransactionAmount int64 = 10

	// CancelWindow bounds how old a USE may be and still be cancelled.
	CancelWindow = 365 * 24 * time.Hour
)

// Transaction is an append-only record of a balance operation attempt.
// AccountID is nil when the submitted account number did not resolve;
// AccountNumber always holds what the caller sent.
type Transaction struct {
	ID                    int64
	TransactionID         string
	Type                  TransactionType
	Result                TransactionResult
	AccountID             *int64
	AccountNumber         string
	Amount                int64
	BalanceSnapshot       *int64
	OriginalTransactionID *string
	TransactedAt          time.Time
}

func (t *Transaction) IsCancelableUse() bool {
	return t.Type == TransactionTypeUse && t.Result == TransactionResultSuccess
}
