package ledgerrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/go-petr/ledger-engine/pkg/refpkg"
)

// RepoMem is the in-process ledger. It backs tests and the memory
// driver.
type RepoMem struct {
	mu     sync.Mutex
	txs    map[int64]domain.Transaction
	byRef  map[string]int64
	byKey  map[string]int64
	nextID int64
}

// NewRepoMem returns an empty in-memory ledger.
func NewRepoMem() *RepoMem {
	return &RepoMem{
		txs:   make(map[int64]domain.Transaction),
		byRef: make(map[string]int64),
		byKey: make(map[string]int64),
	}
}

// Create appends a PENDING ledger row, assigning a fresh reference
// number. The reference is regenerated on a uniqueness conflict.
func (r *RepoMem) Create(ctx context.Context, arg domain.CreateTransactionParams) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if arg.IdempotencyKey != "" {
		if _, ok := r.byKey[arg.IdempotencyKey]; ok {
			return domain.Transaction{}, domain.ErrDuplicateIdempotencyKey
		}
	}

	var ref string

	for i := 0; ; i++ {
		if i == maxReferenceRetries {
			return domain.Transaction{}, domain.ErrDuplicateReference
		}

		ref = refpkg.ReferenceNumber()
		if _, ok := r.byRef[ref]; !ok {
			break
		}
	}

	r.nextID++

	t := domain.Transaction{
		ID:              r.nextID,
		Amount:          arg.Amount,
		Type:            arg.Type,
		SourceAccountID: arg.SourceAccountID,
		TargetAccountID: arg.TargetAccountID,
		Description:     arg.Description,
		ReferenceNumber: ref,
		IdempotencyKey:  arg.IdempotencyKey,
		Timestamp:       time.Now().UTC(),
		Status:          domain.StatusPending,
	}

	r.txs[t.ID] = t
	r.byRef[ref] = t.ID

	if arg.IdempotencyKey != "" {
		r.byKey[arg.IdempotencyKey] = t.ID
	}

	return t, nil
}

// Finalize moves a PENDING row to a terminal status. Terminal rows are
// immutable.
func (r *RepoMem) Finalize(ctx context.Context, id int64, status domain.TransactionStatus) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.txs[id]
	if !ok || t.Status != domain.StatusPending {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}

	t.Status = status
	r.txs[id] = t

	return t, nil
}

// GetByReference returns the transaction with the given reference number.
func (r *RepoMem) GetByReference(ctx context.Context, ref string) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byRef[ref]
	if !ok {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}

	return r.txs[id], nil
}

// GetByIdempotencyKey returns the transaction created with the given
// idempotency key.
func (r *RepoMem) GetByIdempotencyKey(ctx context.Context, key string) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byKey[key]
	if !ok {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}

	return r.txs[id], nil
}

// ListForAccount returns the account's transactions, newest first.
func (r *RepoMem) ListForAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	return r.listMatching(func(t domain.Transaction) bool {
		return references(t, accountID)
	})
}

// ListForAccounts returns transactions touching any of the given
// accounts after the since cutoff, newest first.
func (r *RepoMem) ListForAccounts(ctx context.Context, accountIDs []int64, since time.Time) ([]domain.Transaction, error) {
	return r.listMatching(func(t domain.Transaction) bool {
		if !t.Timestamp.After(since) {
			return false
		}

		for _, id := range accountIDs {
			if references(t, id) {
				return true
			}
		}

		return false
	})
}

func (r *RepoMem) listMatching(match func(domain.Transaction) bool) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := []domain.Transaction{}

	for _, t := range r.txs {
		if match(t) {
			items = append(items, t)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].ID > items[j].ID
		}

		return items[i].Timestamp.After(items[j].Timestamp)
	})

	return items, nil
}

func references(t domain.Transaction, accountID int64) bool {
	if t.SourceAccountID != nil && *t.SourceAccountID == accountID {
		return true
	}

	return t.TargetAccountID != nil && *t.TargetAccountID == accountID
}
