package accountrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// RepoMem is the in-process account store. It backs tests and the
// memory driver; the mutex makes every method and the whole of
// SetBalances atomic.
type RepoMem struct {
	mu         sync.Mutex
	accounts   map[int64]domain.Account
	byNumber   map[string]int64
	nextID     int64
	referenced func(ctx context.Context, accountID int64) (bool, error)
}

// NewRepoMem returns an empty in-memory account store.
func NewRepoMem() *RepoMem {
	return &RepoMem{
		accounts: make(map[int64]domain.Account),
		byNumber: make(map[string]int64),
	}
}

// Create creates the account with zero balance and then returns it.
func (r *RepoMem) Create(ctx context.Context, accountNumber string, arg domain.CreateAccountParams) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byNumber[accountNumber]; ok {
		return domain.Account{}, domain.ErrDuplicateAccountNumber
	}

	r.nextID++
	now := time.Now().UTC()

	a := domain.Account{
		ID:            r.nextID,
		AccountNumber: accountNumber,
		OwnerID:       arg.OwnerID,
		Type:          arg.Type,
		Balance:       "0.00",
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	r.accounts[a.ID] = a
	r.byNumber[a.AccountNumber] = a.ID

	return a, nil
}

// Get returns the account with the given id.
func (r *RepoMem) Get(ctx context.Context, id int64) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return a, nil
}

// GetByNumber returns the account with the given account number.
func (r *RepoMem) GetByNumber(ctx context.Context, accountNumber string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byNumber[accountNumber]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return r.accounts[id], nil
}

// SetBalances writes the given balances in one atomic unit. Either every
// update lands or none does.
func (r *RepoMem) SetBalances(ctx context.Context, updates []domain.BalanceUpdate) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate everything before touching state.
	for _, u := range updates {
		if _, ok := r.accounts[u.AccountID]; !ok {
			return nil, domain.ErrAccountNotFound
		}

		b, err := decimal.NewFromString(u.Balance)
		if err != nil {
			return nil, domain.ErrInvalidAmount
		}

		if b.IsNegative() {
			return nil, domain.ErrInsufficientFunds
		}
	}

	now := time.Now().UTC()
	accounts := make([]domain.Account, 0, len(updates))

	for _, u := range updates {
		a := r.accounts[u.AccountID]
		a.Balance = u.Balance
		a.UpdatedAt = now
		r.accounts[u.AccountID] = a
		accounts = append(accounts, a)
	}

	return accounts, nil
}

// Deactivate marks the account inactive. An account holding money
// cannot be deactivated.
func (r *RepoMem) Deactivate(ctx context.Context, id int64) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	b, err := decimal.NewFromString(a.Balance)
	if err != nil || !b.IsZero() {
		return domain.Account{}, domain.ErrBalanceNotZero
	}

	a.IsActive = false
	a.UpdatedAt = time.Now().UTC()
	r.accounts[id] = a

	return a, nil
}

// GuardDelete registers a referenced check that Delete runs inside its
// critical section, standing in for the foreign key constraints the SQL
// schema enforces. The check must not call back into this repo.
func (r *RepoMem) GuardDelete(referenced func(ctx context.Context, accountID int64) (bool, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.referenced = referenced
}

// Delete removes the account with the given id. Accounts holding money
// or referenced by ledger rows cannot be deleted.
func (r *RepoMem) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}

	b, err := decimal.NewFromString(a.Balance)
	if err != nil || !b.IsZero() {
		return domain.ErrBalanceNotZero
	}

	if r.referenced != nil {
		used, err := r.referenced(ctx, id)
		if err != nil {
			return err
		}

		if used {
			return domain.ErrAccountHasTransactions
		}
	}

	delete(r.accounts, id)
	delete(r.byNumber, a.AccountNumber)

	return nil
}

// CountActiveForOwner returns the number of active accounts the owner holds.
func (r *RepoMem) CountActiveForOwner(ctx context.Context, ownerID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64

	for _, a := range r.accounts {
		if a.OwnerID == ownerID && a.IsActive {
			n++
		}
	}

	return n, nil
}

// ListForOwner returns the owner's active accounts.
func (r *RepoMem) ListForOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := []domain.Account{}

	for _, a := range r.accounts {
		if a.OwnerID == ownerID && a.IsActive {
			items = append(items, a)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	return items, nil
}
