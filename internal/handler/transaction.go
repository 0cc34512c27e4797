package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/josh-kwaku/account-ledger/internal/domain"
	"github.com/josh-kwaku/account-ledger/internal/logging"
)

type transactionService interface {
	UseBalance(ctx context.Context, userID int64, accountNumber string, amount int64) (*domain.Transaction, error)
	CancelBalance(ctx context.Context, transactionID string, accountNumber string, amount int64) (*domain.Transaction, error)
	QueryTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)
}

type TransactionHandler struct {
	transactions transactionService
}

func NewTransactionHandler(transactions transactionService) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

// Amount rules are left to the service so that rejected amounts are still
// recorded as failed transactions.
type useBalanceRequest struct {
	UserID        int64  `json:"user_id"`
	AccountNumber string `json:"account_number"`
	Amount        int64  `json:"amount"`
}

func (r useBalanceRequest) Validate() []FieldError {
	var errs []FieldError
	if r.UserID <= 0 {
		errs = append(errs, FieldError{Field: "user_id", Message: "must be greater than 0"})
	}
	if r.AccountNumber == "" {
		errs = append(errs, FieldError{Field: "account_number", Message: "required"})
	}
	return errs
}

type cancelBalanceRequest struct {
	TransactionID string `json:"transaction_id"`
	AccountNumber string `json:"account_number"`
	Amount        int64  `json:"amount"`
}

func (r cancelBalanceRequest) Validate() []FieldError {
	var errs []FieldError
	if r.TransactionID == "" {
		errs = append(errs, FieldError{Field: "transaction_id", Message: "required"})
	}
	if r.AccountNumber == "" {
		errs = append(errs, FieldError{Field: "account_number", Message: "required"})
	}
	return errs
}

type transactionDTO struct {
	TransactionID         string    `json:"transaction_id"`
	Type                  string    `json:"type"`
	Result                string    `json:"result"`
	AccountNumber         string    `json:"account_number"`
	Amount                int64     `json:"amount"`
	BalanceSnapshot       *int64    `json:"balance_snapshot,omitempty"`
	OriginalTransactionID *string   `json:"original_transaction_id,omitempty"`
	TransactedAt          time.Time `json:"transacted_at"`
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	return transactionDTO{
		TransactionID:         t.TransactionID,
		Type:                  string(t.Type),
		Result:                string(t.Result),
		AccountNumber:         t.AccountNumber,
		Amount:                t.Amount,
		BalanceSnapshot:       t.BalanceSnapshot,
		OriginalTransactionID: t.OriginalTransactionID,
		TransactedAt:          t.TransactedAt,
	}
}

func (h *TransactionHandler) Use(w http.ResponseWriter, r *http.Request) {
	var req useBalanceRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	clearWriteDeadline(r.Context(), w)

	txn, err := h.transactions.UseBalance(r.Context(), req.UserID, req.AccountNumber, req.Amount)
	if err != nil {
		logging.FromContext(r.Context()).Warn("use balance rejected",
			"account_number", req.AccountNumber, "amount", req.Amount, "error", err)
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
}

func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelBalanceRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	clearWriteDeadline(r.Context(), w)

	txn, err := h.transactions.CancelBalance(r.Context(), req.TransactionID, req.AccountNumber, req.Amount)
	if err != nil {
		logging.FromContext(r.Context()).Warn("cancel balance rejected",
			"transaction_id", req.TransactionID, "account_number", req.AccountNumber, "error", err)
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
}

// clearWriteDeadline lifts the server's write deadline for a balance mutation.
// The wait for the account lock is unbounded, and a committed change must
// still reach the caller.
func clearWriteDeadline(ctx context.Context, w http.ResponseWriter) {
	err := http.NewResponseController(w).SetWriteDeadline(time.Time{})
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		logging.FromContext(ctx).Warn("failed to clear write deadline", "error", err)
	}
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	txn, err := h.transactions.QueryTransaction(r.Context(), r.PathValue("transactionId"))
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
}
