package domain

import "time"

type AccountStatus string

const (
	AccountStatusInUse        AccountStatus = "IN_USE"
	AccountStatusUnregistered AccountStatus = "UNREGISTERED"
)

const (
	MaxAccountsPerUser  = 10
	AccountNumberLength = 10
)

type Account struct {
	ID             int64
	UserID         int64
	AccountNumber  string
	Status         AccountStatus
	Balance        int64
	Version        int64
	RegisteredAt   time.Time
	UnregisteredAt *time.Time
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusInUse
}
