package handler

import (
	"net/http"

	"github.com/josh-kwaku/account-ledger/internal/domain"
)

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, string(domain.CodeInvalidRequest), "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, string(domain.CodeInvalidRequest), "Validation failed"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, string(domain.CodeInternalServerError), "An unexpected error occurred"}
)

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidRequest:
		return http.StatusBadRequest
	case domain.CodeUserNotFound,
		domain.CodeAccountNotFound,
		domain.CodeTransactionNotFound:
		return http.StatusNotFound
	case domain.CodeAccountAlreadyUnregistered,
		domain.CodeTransactionAlreadyCanceled:
		return http.StatusConflict
	case domain.CodeMaxAccountPerUser,
		domain.CodeUserAccountUnMatch,
		domain.CodeBalanceNotEmpty,
		domain.CodeAmountExceedBalance,
		domain.CodeTransactionAccountUnMatch,
		domain.CodeCancelMustFully,
		domain.CodeTooOldOrderToCancel:
		return http.StatusUnprocessableEntity
	case domain.CodeAccountNumberExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
