package domain

import (
	"errors"
	"time"
)

var (
	// ErrTransactionNotFound indicates that the transaction is not found.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidAmount indicates a non-positive amount or wrong precision.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSelfTransfer indicates that source and target accounts are the same.
	ErrSelfTransfer = errors.New("source and target accounts cannot be the same")
	// ErrInsufficientFunds indicates that the account balance does not cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDuplicateReference indicates a reference number collision after retries.
	ErrDuplicateReference = errors.New("reference number already exists")
	// ErrDuplicateIdempotencyKey indicates that the idempotency key was already used.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	// ErrLockTimeout indicates that an account lock was not acquired in time.
	ErrLockTimeout = errors.New("account lock timeout")
)

// TransactionType discriminates the three kinds of money movement.
type TransactionType string

// Supported transaction types.
const (
	Deposit  TransactionType = "DEPOSIT"
	Withdraw TransactionType = "WITHDRAW"
	Transfer TransactionType = "TRANSFER"
)

// TransactionStatus is the lifecycle state of a ledger row.
type TransactionStatus string

// Transaction statuses. A row starts PENDING and reaches exactly one
// terminal state. Cancelled is reserved and never produced.
const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusCancelled TransactionStatus = "CANCELLED"
)

// Transaction is one ledger row. Amount is a decimal string with two
// fraction digits. Exactly one of SourceAccountID and TargetAccountID
// is set for DEPOSIT/WITHDRAW; both are set and distinct for TRANSFER.
type Transaction struct {
	ID              int64             `json:"id"`
	Amount          string            `json:"amount"`
	Type            TransactionType   `json:"type"`
	SourceAccountID *int64            `json:"source_account_id,omitempty"`
	TargetAccountID *int64            `json:"target_account_id,omitempty"`
	Description     string            `json:"description"`
	ReferenceNumber string            `json:"reference_number"`
	IdempotencyKey  string            `json:"-"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          TransactionStatus `json:"status"`
}

// CreateTransactionParams is the input data for appending a PENDING
// ledger row.
type CreateTransactionParams struct {
	Amount          string
	Type            TransactionType
	SourceAccountID *int64
	TargetAccountID *int64
	Description     string
	IdempotencyKey  string
}

// DepositParams is the input data for the deposit operation.
type DepositParams struct {
	AccountNumber  string
	Amount         string
	Description    string
	IdempotencyKey string
}

// WithdrawParams is the input data for the withdraw operation.
type WithdrawParams struct {
	AccountNumber  string
	Amount         string
	Description    string
	IdempotencyKey string
}

// TransferParams is the input data for the transfer operation.
type TransferParams struct {
	SourceAccountNumber string
	TargetAccountNumber string
	Amount              string
	Description         string
	IdempotencyKey      string
}

// TransactionResult is what the engine returns to callers. Account
// numbers replace internal ids at the boundary.
type TransactionResult struct {
	ID                  int64             `json:"id"`
	Amount              string            `json:"amount"`
	Type                TransactionType   `json:"type"`
	SourceAccountNumber string            `json:"source_account_number,omitempty"`
	TargetAccountNumber string            `json:"target_account_number,omitempty"`
	Description         string            `json:"description"`
	ReferenceNumber     string            `json:"reference_number"`
	Timestamp           time.Time         `json:"timestamp"`
	Status              TransactionStatus `json:"status"`
}
