package ledgerrepo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestRepoMemCreateAndFinalize(t *testing.T) {
	repo := NewRepoMem()

	created, err := repo.Create(context.Background(), domain.CreateTransactionParams{
		Amount:          "25.50",
		Type:            domain.Deposit,
		TargetAccountID: int64Ptr(1),
		Description:     "Deposit",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, created.Status)
	require.NotEmpty(t, created.ReferenceNumber)
	require.Nil(t, created.SourceAccountID)
	require.Equal(t, int64(1), *created.TargetAccountID)

	final, err := repo.Finalize(context.Background(), created.ID, domain.StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, final.Status)

	// Terminal rows cannot be finalized again.
	_, err = repo.Finalize(context.Background(), created.ID, domain.StatusFailed)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	got, err := repo.GetByReference(context.Background(), created.ReferenceNumber)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, got.Status)

	_, err = repo.GetByReference(context.Background(), "TXN000")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestRepoMemIdempotencyKey(t *testing.T) {
	repo := NewRepoMem()

	created, err := repo.Create(context.Background(), domain.CreateTransactionParams{
		Amount:          "10.00",
		Type:            domain.Deposit,
		TargetAccountID: int64Ptr(1),
		IdempotencyKey:  "client-key-1",
	})
	require.NoError(t, err)

	_, err = repo.Create(context.Background(), domain.CreateTransactionParams{
		Amount:          "10.00",
		Type:            domain.Deposit,
		TargetAccountID: int64Ptr(1),
		IdempotencyKey:  "client-key-1",
	})
	require.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)

	got, err := repo.GetByIdempotencyKey(context.Background(), "client-key-1")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = repo.GetByIdempotencyKey(context.Background(), "client-key-2")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestRepoMemListForAccount(t *testing.T) {
	repo := NewRepoMem()

	for i := 0; i < 3; i++ {
		_, err := repo.Create(context.Background(), domain.CreateTransactionParams{
			Amount:          "1.00",
			Type:            domain.Deposit,
			TargetAccountID: int64Ptr(1),
		})
		require.NoError(t, err)
	}

	_, err := repo.Create(context.Background(), domain.CreateTransactionParams{
		Amount:          "1.00",
		Type:            domain.Withdraw,
		SourceAccountID: int64Ptr(2),
	})
	require.NoError(t, err)

	items, err := repo.ListForAccount(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Newest first.
	for i := 1; i < len(items); i++ {
		require.False(t, items[i-1].Timestamp.Before(items[i].Timestamp))
		if items[i-1].Timestamp.Equal(items[i].Timestamp) {
			require.Greater(t, items[i-1].ID, items[i].ID)
		}
	}
}

func TestRepoMemListForAccounts(t *testing.T) {
	repo := NewRepoMem()

	before := time.Now().UTC().Add(-time.Minute)

	_, err := repo.Create(context.Background(), domain.CreateTransactionParams{
		Amount:          "1.00",
		Type:            domain.Deposit,
		TargetAccountID: int64Ptr(1),
	})
	require.NoError(t, err)

	_, err = repo.Create(context.Background(), domain.CreateTransactionParams{
		Amount:          "2.00",
		Type:            domain.Transfer,
		SourceAccountID: int64Ptr(2),
		TargetAccountID: int64Ptr(3),
	})
	require.NoError(t, err)

	items, err := repo.ListForAccounts(context.Background(), []int64{1, 2}, before)
	require.NoError(t, err)
	require.Len(t, items, 2)

	items, err = repo.ListForAccounts(context.Background(), []int64{3}, before)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "2.00", items[0].Amount)

	items, err = repo.ListForAccounts(context.Background(), []int64{1, 2, 3}, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestConcurrentReferenceUniqueness(t *testing.T) {
	repo := NewRepoMem()

	const n = 10_000

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		refs = make(map[string]struct{}, n)
	)

	wg.Add(n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()

			created, err := repo.Create(context.Background(), domain.CreateTransactionParams{
				Amount:          "1.00",
				Type:            domain.Deposit,
				TargetAccountID: int64Ptr(1),
			})
			require.NoError(t, err)

			mu.Lock()
			refs[created.ReferenceNumber] = struct{}{}
			mu.Unlock()
		}()
	}

	wg.Wait()

	require.Len(t, refs, n)
}
