package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/josh-kwaku/account-ledger/internal/domain"
	"github.com/josh-kwaku/account-ledger/internal/logging"
)

type accountService interface {
	CreateAccount(ctx context.Context, userID int64, initialBalance int64) (*domain.Account, error)
	DeleteAccount(ctx context.Context, userID int64, accountNumber string) (*domain.Account, error)
	GetAccountsByUser(ctx context.Context, userID int64) ([]domain.Account, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type createAccountRequest struct {
	UserID         int64 `json:"user_id"`
	InitialBalance int64 `json:"initial_balance"`
}

func (r createAccountRequest) Validate() []FieldError {
	var errs []FieldError
	if r.UserID <= 0 {
		errs = append(errs, FieldError{Field: "user_id", Message: "must be greater than 0"})
	}
	if r.InitialBalance < 0 {
		errs = append(errs, FieldError{Field: "initial_balance", Message: "must not be negative"})
	}
	return errs
}

type deleteAccountRequest struct {
	UserID        int64  `json:"user_id"`
	AccountNumber string `json:"account_number"`
}

func (r deleteAccountRequest) Validate() []FieldError {
	var errs []FieldError
	if r.UserID <= 0 {
		errs = append(errs, FieldError{Field: "user_id", Message: "must be greater than 0"})
	}
	errs = append(errs, validateAccountNumber(r.AccountNumber)...)
	return errs
}

func validateAccountNumber(n string) []FieldError {
	if n == "" {
		return []FieldError{{Field: "account_number", Message: "required"}}
	}
	if len(n) != domain.AccountNumberLength {
		return []FieldError{{Field: "account_number", Message: "must be 10 digits"}}
	}
	return nil
}

type accountDTO struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	AccountNumber  string     `json:"account_number"`
	Status         string     `json:"status"`
	Balance        int64      `json:"balance"`
	RegisteredAt   time.Time  `json:"registered_at"`
	UnregisteredAt *time.Time `json:"unregistered_at,omitempty"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:             a.ID,
		UserID:         a.UserID,
		AccountNumber:  a.AccountNumber,
		Status:         string(a.Status),
		Balance:        a.Balance,
		RegisteredAt:   a.RegisteredAt,
		UnregisteredAt: a.UnregisteredAt,
	}
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), req.UserID, req.InitialBalance)
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to create account", "user_id", req.UserID, "error", err)
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toAccountDTO(account))
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if appErr := decodeJSON(r, &req); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	account, err := h.accounts.DeleteAccount(r.Context(), req.UserID, req.AccountNumber)
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to delete account",
			"user_id", req.UserID, "account_number", req.AccountNumber, "error", err)
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		RespondValidationError(w, []FieldError{{Field: "user_id", Message: "must be a positive integer"}})
		return
	}

	accounts, err := h.accounts.GetAccountsByUser(r.Context(), userID)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	dtos := make([]accountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be an integer"}})
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}
