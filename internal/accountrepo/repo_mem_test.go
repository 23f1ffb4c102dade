package accountrepo

import (
	"context"
	"testing"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func createTestAccount(t *testing.T, repo *RepoMem, number string, ownerID int64) domain.Account {
	t.Helper()

	account, err := repo.Create(context.Background(), number, domain.CreateAccountParams{
		OwnerID: ownerID,
		Type:    domain.Checking,
	})
	require.NoError(t, err)
	require.Equal(t, "0.00", account.Balance)
	require.True(t, account.IsActive)

	return account
}

func TestRepoMemCreate(t *testing.T) {
	repo := NewRepoMem()

	account := createTestAccount(t, repo, "ACC0000000001", 1)
	require.Equal(t, "ACC0000000001", account.AccountNumber)

	_, err := repo.Create(context.Background(), "ACC0000000001", domain.CreateAccountParams{
		OwnerID: 2,
		Type:    domain.Savings,
	})
	require.ErrorIs(t, err, domain.ErrDuplicateAccountNumber)
}

func TestRepoMemGet(t *testing.T) {
	repo := NewRepoMem()
	account := createTestAccount(t, repo, "ACC0000000001", 1)

	got, err := repo.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(account, got))

	byNumber, err := repo.GetByNumber(context.Background(), account.AccountNumber)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(account, byNumber))

	_, err = repo.Get(context.Background(), account.ID+1)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = repo.GetByNumber(context.Background(), "ACC0000000099")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRepoMemSetBalances(t *testing.T) {
	repo := NewRepoMem()
	a := createTestAccount(t, repo, "ACC0000000001", 1)
	b := createTestAccount(t, repo, "ACC0000000002", 1)

	updated, err := repo.SetBalances(context.Background(), []domain.BalanceUpdate{
		{AccountID: a.ID, Balance: "60.00"},
		{AccountID: b.ID, Balance: "40.00"},
	})
	require.NoError(t, err)
	require.Equal(t, "60.00", updated[0].Balance)
	require.Equal(t, "40.00", updated[1].Balance)

	// A bad update in the batch must leave every balance untouched.
	_, err = repo.SetBalances(context.Background(), []domain.BalanceUpdate{
		{AccountID: a.ID, Balance: "0.00"},
		{AccountID: b.ID, Balance: "-1.00"},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, "60.00", got.Balance)

	_, err = repo.SetBalances(context.Background(), []domain.BalanceUpdate{
		{AccountID: a.ID + b.ID + 1, Balance: "1.00"},
	})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRepoMemDeactivate(t *testing.T) {
	repo := NewRepoMem()
	account := createTestAccount(t, repo, "ACC0000000001", 1)

	_, err := repo.SetBalances(context.Background(), []domain.BalanceUpdate{
		{AccountID: account.ID, Balance: "5.00"},
	})
	require.NoError(t, err)

	_, err = repo.Deactivate(context.Background(), account.ID)
	require.ErrorIs(t, err, domain.ErrBalanceNotZero)

	_, err = repo.SetBalances(context.Background(), []domain.BalanceUpdate{
		{AccountID: account.ID, Balance: "0.00"},
	})
	require.NoError(t, err)

	updated, err := repo.Deactivate(context.Background(), account.ID)
	require.NoError(t, err)
	require.False(t, updated.IsActive)
}

func TestRepoMemDelete(t *testing.T) {
	repo := NewRepoMem()
	account := createTestAccount(t, repo, "ACC0000000001", 1)

	_, err := repo.SetBalances(context.Background(), []domain.BalanceUpdate{
		{AccountID: account.ID, Balance: "5.00"},
	})
	require.NoError(t, err)

	require.ErrorIs(t, repo.Delete(context.Background(), account.ID), domain.ErrBalanceNotZero)

	_, err = repo.SetBalances(context.Background(), []domain.BalanceUpdate{
		{AccountID: account.ID, Balance: "0.00"},
	})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(context.Background(), account.ID))

	_, err = repo.Get(context.Background(), account.ID)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	require.ErrorIs(t, repo.Delete(context.Background(), account.ID), domain.ErrAccountNotFound)
}

func TestRepoMemDeleteGuard(t *testing.T) {
	repo := NewRepoMem()
	account := createTestAccount(t, repo, "ACC0000000001", 1)

	referenced := true
	repo.GuardDelete(func(ctx context.Context, accountID int64) (bool, error) {
		require.Equal(t, account.ID, accountID)
		return referenced, nil
	})

	require.ErrorIs(t, repo.Delete(context.Background(), account.ID), domain.ErrAccountHasTransactions)

	got, err := repo.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, account.ID, got.ID)

	referenced = false
	require.NoError(t, repo.Delete(context.Background(), account.ID))
}

func TestRepoMemListForOwner(t *testing.T) {
	repo := NewRepoMem()
	a := createTestAccount(t, repo, "ACC0000000001", 1)
	b := createTestAccount(t, repo, "ACC0000000002", 1)
	createTestAccount(t, repo, "ACC0000000003", 2)

	n, err := repo.CountActiveForOwner(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	items, err := repo.ListForOwner(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, a.ID, items[0].ID)
	require.Equal(t, b.ID, items[1].ID)

	_, err = repo.Deactivate(context.Background(), b.ID)
	require.NoError(t, err)

	n, err = repo.CountActiveForOwner(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
