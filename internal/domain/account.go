// Package domain provides defenitions of all entities.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountInactive indicates that the account is deactivated.
	ErrAccountInactive = errors.New("account is inactive")
	// ErrDuplicateAccountNumber indicates an account number collision.
	ErrDuplicateAccountNumber = errors.New("account number already exists")
	// ErrBalanceNotZero indicates that the account still holds money.
	ErrBalanceNotZero = errors.New("account balance is not zero")
	// ErrAccountHasTransactions indicates that ledger rows still reference the account.
	ErrAccountHasTransactions = errors.New("account has transactions")
	// ErrTooManyAccounts indicates that the owner reached the active accounts cap.
	ErrTooManyAccounts = errors.New("owner cannot have more than 3 active accounts")
	// ErrInvalidAccountType indicates an unknown account type.
	ErrInvalidAccountType = errors.New("invalid account type")
	// ErrInvalidOwner indicates that the caller does not own the account.
	ErrInvalidOwner = errors.New("unauthorized owner")
)

// AccountType is the closed set of supported account kinds.
type AccountType string

// Supported account types.
const (
	Checking AccountType = "CHECKING"
	Savings  AccountType = "SAVINGS"
	Business AccountType = "BUSINESS"
)

// ValidAccountType reports whether t belongs to the closed set.
func ValidAccountType(t AccountType) bool {
	switch t {
	case Checking, Savings, Business:
		return true
	}

	return false
}

// Account holds the balance state for a single owner account.
//
// Balance is a decimal string with two fraction digits and is never
// negative. It is mutated exclusively through the movement package.
type Account struct {
	ID            int64       `json:"id"`
	AccountNumber string      `json:"account_number"`
	OwnerID       int64       `json:"owner_id"`
	Type          AccountType `json:"type"`
	Balance       string      `json:"balance"`
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// CreateAccountParams is the input data for opening an account.
type CreateAccountParams struct {
	OwnerID int64       `json:"owner_id"`
	Type    AccountType `json:"type"`
}

// BalanceUpdate carries one account's new balance for an atomic
// multi-account write.
type BalanceUpdate struct {
	AccountID int64
	Balance   string
}
