// Package movement implements the atomic balance mutation primitive.
//
// All balance writes in the system go through a Mover. A caller first
// reserves the involved accounts with Acquire and only then mutates
// them; the funds check runs under the lock so a stale pre-lock read
// can never overdraw an account.
package movement

import (
	"context"
	"time"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/go-petr/ledger-engine/pkg/errorspkg"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store provides the account access needed by the mover.
//
//go:generate mockgen -source mover.go -destination mover_mock.go -package movement
type Store interface {
	Get(ctx context.Context, id int64) (domain.Account, error)
	SetBalances(ctx context.Context, updates []domain.BalanceUpdate) ([]domain.Account, error)
}

// Mover mutates account balances under per-account locks.
type Mover struct {
	store       Store
	locks       *lockTable
	lockTimeout time.Duration
}

// New returns a Mover over the given store. Lock acquisition gives up
// after lockTimeout.
func New(store Store, lockTimeout time.Duration) *Mover {
	return &Mover{
		store:       store,
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
	}
}

// Acquire reserves the given accounts, taking their locks in ascending
// id order. It returns domain.ErrLockTimeout when the locks cannot be
// taken within the configured timeout. The returned release function
// must be called exactly once, after the caller has finalized its
// ledger row.
func (m *Mover) Acquire(ctx context.Context, ids ...int64) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	return m.locks.acquire(lockCtx, ids...)
}

// Credit adds amount to the account's balance. The account lock must be
// held.
func (m *Mover) Credit(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error) {
	account, balance, err := m.fresh(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}

	updated, err := m.store.SetBalances(ctx, []domain.BalanceUpdate{
		{AccountID: account.ID, Balance: balance.Add(amount).StringFixed(2)},
	})
	if err != nil {
		return domain.Account{}, err
	}

	return updated[0], nil
}

// Debit subtracts amount from the account's balance, failing with
// domain.ErrInsufficientFunds when the balance read under the lock does
// not cover it. The account lock must be held.
func (m *Mover) Debit(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error) {
	account, balance, err := m.fresh(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}

	if balance.LessThan(amount) {
		return domain.Account{}, domain.ErrInsufficientFunds
	}

	updated, err := m.store.SetBalances(ctx, []domain.BalanceUpdate{
		{AccountID: account.ID, Balance: balance.Sub(amount).StringFixed(2)},
	})
	if err != nil {
		return domain.Account{}, err
	}

	return updated[0], nil
}

// Transfer moves amount from the source account to the target account
// as one atomic write. Both account locks must be held.
func (m *Mover) Transfer(ctx context.Context, sourceID, targetID int64, amount decimal.Decimal) (domain.Account, domain.Account, error) {
	source, sourceBalance, err := m.fresh(ctx, sourceID)
	if err != nil {
		return domain.Account{}, domain.Account{}, err
	}

	target, targetBalance, err := m.fresh(ctx, targetID)
	if err != nil {
		return domain.Account{}, domain.Account{}, err
	}

	if sourceBalance.LessThan(amount) {
		return domain.Account{}, domain.Account{}, domain.ErrInsufficientFunds
	}

	updated, err := m.store.SetBalances(ctx, []domain.BalanceUpdate{
		{AccountID: source.ID, Balance: sourceBalance.Sub(amount).StringFixed(2)},
		{AccountID: target.ID, Balance: targetBalance.Add(amount).StringFixed(2)},
	})
	if err != nil {
		return domain.Account{}, domain.Account{}, err
	}

	return updated[0], updated[1], nil
}

func (m *Mover) fresh(ctx context.Context, accountID int64) (domain.Account, decimal.Decimal, error) {
	l := zerolog.Ctx(ctx)

	account, err := m.store.Get(ctx, accountID)
	if err != nil {
		return domain.Account{}, decimal.Zero, err
	}

	balance, err := decimal.NewFromString(account.Balance)
	if err != nil {
		l.Error().Err(err).Msgf("account %d has malformed balance %q", account.ID, account.Balance)
		return domain.Account{}, decimal.Zero, errorspkg.ErrInternal
	}

	return account, balance, nil
}
