package domain

import "errors"

type ErrorCode string

const (
	CodeInvalidRequest             ErrorCode = "INVALID_REQUEST"
	CodeUserNotFound               ErrorCode = "USER_NOT_FOUND"
	CodeAccountNotFound            ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeMaxAccountPerUser          ErrorCode = "MAX_ACCOUNT_PER_USER_10"
	CodeUserAccountUnMatch         ErrorCode = "USER_ACCOUNT_UN_MATCH"
	CodeAccountAlreadyUnregistered ErrorCode = "ACCOUNT_ALREADY_UNREGISTERED"
	CodeBalanceNotEmpty            ErrorCode = "BALANCE_NOT_EMPTY"
	CodeAmountExceedBalance        ErrorCode = "AMOUNT_EXCEED_BALANCE"
	CodeTransactionNotFound        ErrorCode = "TRANSACTION_NOT_FOUND"
	CodeTransactionAccountUnMatch  ErrorCode = "TRANSACTION_ACCOUNT_UN_MATCH"
	CodeCancelMustFully            ErrorCode = "CANCEL_MUST_FULLY"
	CodeTooOldOrderToCancel        ErrorCode = "TOO_OLD_ORDER_TO_CANCEL"
	CodeTransactionAlreadyCanceled ErrorCode = "TRANSACTION_ALREADY_CANCELED"
	CodeAccountNumberExhausted     ErrorCode = "ACCOUNT_NUMBER_EXHAUSTED"
	CodeInternalServerError        ErrorCode = "INTERNAL_SERVER_ERROR"
)

// Error is the single tagged error carried across the service boundary.
// Two Errors match under errors.Is when their codes are equal, so callers
// may construct a fresh Error with a custom message and still match the
// sentinel below.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf reports the code of the first *Error in err's chain. Anything else
// is an internal error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalServerError
}

// IsCoded reports whether err carries a business error code, as opposed to an
// unexpected fault.
func IsCoded(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

var (
	ErrInvalidRequest             = NewError(CodeInvalidRequest, "invalid request")
	ErrUserNotFound               = NewError(CodeUserNotFound, "user not found")
	ErrAccountNotFound            = NewError(CodeAccountNotFound, "account not found")
	ErrMaxAccountPerUser          = NewError(CodeMaxAccountPerUser, "a user may own at most 10 accounts")
	ErrUserAccountUnMatch         = NewError(CodeUserAccountUnMatch, "account does not belong to user")
	ErrAccountAlreadyUnregistered = NewError(CodeAccountAlreadyUnregistered, "account already unregistered")
	ErrBalanceNotEmpty            = NewError(CodeBalanceNotEmpty, "account balance is not empty")
	ErrAmountExceedBalance        = NewError(CodeAmountExceedBalance, "amount exceeds balance")
	ErrTransactionNotFound        = NewError(CodeTransactionNotFound, "transaction not found")
	ErrTransactionAccountUnMatch  = NewError(CodeTransactionAccountUnMatch, "transaction does not belong to account")
	ErrCancelMustFully            = NewError(CodeCancelMustFully, "cancel amount must equal the original amount")
	ErrTooOldOrderToCancel        = NewError(CodeTooOldOrderToCancel, "transaction is older than one year")
	ErrTransactionAlreadyCanceled = NewError(CodeTransactionAlreadyCanceled, "transaction already canceled")
	ErrAccountNumberExhausted     = NewError(CodeAccountNumberExhausted, "could not generate a unique account number")
)

// Storage-level errors. These carry no code and are translated by services.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate key")
	ErrVersionConflict = errors.New("optimistic lock conflict")
)
