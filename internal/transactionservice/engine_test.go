package transactionservice_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-petr/ledger-engine/internal/accountrepo"
	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/go-petr/ledger-engine/internal/events"
	"github.com/go-petr/ledger-engine/internal/ledgerrepo"
	"github.com/go-petr/ledger-engine/internal/movement"
	"github.com/go-petr/ledger-engine/internal/transactionservice"
	"github.com/go-petr/ledger-engine/pkg/refpkg"
	"github.com/stretchr/testify/require"
)

// engine wires the service to real in-memory stores so the full
// validate-lock-append-mutate-finalize flow runs end to end.
type engine struct {
	accounts *accountrepo.RepoMem
	ledger   *ledgerrepo.RepoMem
	service  *transactionservice.Service
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	accounts := accountrepo.NewRepoMem()
	ledger := ledgerrepo.NewRepoMem()
	mover := movement.New(accounts, 3*time.Second)

	return &engine{
		accounts: accounts,
		ledger:   ledger,
		service:  transactionservice.New(accounts, ledger, mover, events.NopPublisher{}),
	}
}

func (e *engine) openAccount(t *testing.T, ownerID int64, balance string) domain.Account {
	t.Helper()

	account, err := e.accounts.Create(context.Background(), refpkg.AccountNumber(), domain.CreateAccountParams{
		OwnerID: ownerID,
		Type:    domain.Checking,
	})
	require.NoError(t, err)

	if balance != "0.00" {
		updated, err := e.accounts.SetBalances(context.Background(), []domain.BalanceUpdate{
			{AccountID: account.ID, Balance: balance},
		})
		require.NoError(t, err)

		return updated[0]
	}

	return account
}

func (e *engine) balance(t *testing.T, id int64) string {
	t.Helper()

	account, err := e.accounts.Get(context.Background(), id)
	require.NoError(t, err)

	return account.Balance
}

func TestEngineDeposit(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	account := e.openAccount(t, auth.UserID, "0.00")

	res, err := e.service.Deposit(context.Background(), auth, domain.DepositParams{
		AccountNumber: account.AccountNumber,
		Amount:        "50.00",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, res.Status)
	require.Equal(t, "Deposit", res.Description)

	res, err = e.service.Deposit(context.Background(), auth, domain.DepositParams{
		AccountNumber: account.AccountNumber,
		Amount:        "25.50",
	})
	require.NoError(t, err)

	require.Equal(t, "75.50", e.balance(t, account.ID))

	txs, err := e.ledger.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	for _, tx := range txs {
		require.Equal(t, domain.Deposit, tx.Type)
		require.Equal(t, domain.StatusCompleted, tx.Status)
		require.Nil(t, tx.SourceAccountID)
		require.Equal(t, account.ID, *tx.TargetAccountID)
	}

	// newest first
	require.Equal(t, res.ReferenceNumber, txs[0].ReferenceNumber)
}

func TestEngineWithdrawInsufficientFunds(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	account := e.openAccount(t, auth.UserID, "10.00")

	_, err := e.service.Withdraw(context.Background(), auth, domain.WithdrawParams{
		AccountNumber: account.AccountNumber,
		Amount:        "10.01",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.Equal(t, "10.00", e.balance(t, account.ID))

	txs, err := e.ledger.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, domain.StatusFailed, txs[0].Status)
	require.Equal(t, domain.Withdraw, txs[0].Type)

	res, err := e.service.Withdraw(context.Background(), auth, domain.WithdrawParams{
		AccountNumber: account.AccountNumber,
		Amount:        "10.00",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, res.Status)
	require.Equal(t, "Withdrawal", res.Description)
	require.Equal(t, "0.00", e.balance(t, account.ID))
}

func TestEngineSelfTransferLeavesNoRow(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	account := e.openAccount(t, auth.UserID, "100.00")

	_, err := e.service.Transfer(context.Background(), auth, domain.TransferParams{
		SourceAccountNumber: account.AccountNumber,
		TargetAccountNumber: account.AccountNumber,
		Amount:              "40.00",
	})
	require.ErrorIs(t, err, domain.ErrSelfTransfer)

	txs, err := e.ledger.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Empty(t, txs)
	require.Equal(t, "100.00", e.balance(t, account.ID))
}

func TestEngineTransfer(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	source := e.openAccount(t, auth.UserID, "100.00")
	target := e.openAccount(t, 2, "0.00")

	res, err := e.service.Transfer(context.Background(), auth, domain.TransferParams{
		SourceAccountNumber: source.AccountNumber,
		TargetAccountNumber: target.AccountNumber,
		Amount:              "40.00",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, res.Status)
	require.Equal(t, domain.Transfer, res.Type)
	require.Equal(t, source.AccountNumber, res.SourceAccountNumber)
	require.Equal(t, target.AccountNumber, res.TargetAccountNumber)

	require.Equal(t, "60.00", e.balance(t, source.ID))
	require.Equal(t, "40.00", e.balance(t, target.ID))

	got, err := e.service.Get(context.Background(), res.ReferenceNumber)
	require.NoError(t, err)
	require.Equal(t, res, got)
}

func TestEngineConcurrentDeposits(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	account := e.openAccount(t, auth.UserID, "0.00")

	const n = 100

	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := e.service.Deposit(context.Background(), auth, domain.DepositParams{
				AccountNumber: account.AccountNumber,
				Amount:        "1.00",
			})
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, "100.00", e.balance(t, account.ID))

	txs, err := e.ledger.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, txs, n)

	for _, tx := range txs {
		require.Equal(t, domain.StatusCompleted, tx.Status)
	}
}

func TestEngineConcurrentTransfersConserveMoney(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	a := e.openAccount(t, auth.UserID, "500.00")
	b := e.openAccount(t, auth.UserID, "500.00")

	const n = 50

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			source, target := a, b
			if i%2 == 1 {
				source, target = b, a
			}

			_, err := e.service.Transfer(context.Background(), auth, domain.TransferParams{
				SourceAccountNumber: source.AccountNumber,
				TargetAccountNumber: target.AccountNumber,
				Amount:              "10.00",
			})
			require.NoError(t, err)
		}(i)
	}

	wg.Wait()

	require.Equal(t, "500.00", e.balance(t, a.ID))
	require.Equal(t, "500.00", e.balance(t, b.ID))
}

func TestEngineIdempotentReplay(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	account := e.openAccount(t, auth.UserID, "0.00")

	arg := domain.DepositParams{
		AccountNumber:  account.AccountNumber,
		Amount:         "50.00",
		IdempotencyKey: "retry-safe-key",
	}

	first, err := e.service.Deposit(context.Background(), auth, arg)
	require.NoError(t, err)

	second, err := e.service.Deposit(context.Background(), auth, arg)
	require.NoError(t, err)

	require.Equal(t, first.ReferenceNumber, second.ReferenceNumber)
	require.Equal(t, "50.00", e.balance(t, account.ID))

	txs, err := e.ledger.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestEngineReplayKeepsOriginalTransaction(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	original := e.openAccount(t, auth.UserID, "0.00")
	other := e.openAccount(t, auth.UserID, "0.00")

	first, err := e.service.Deposit(context.Background(), auth, domain.DepositParams{
		AccountNumber:  original.AccountNumber,
		Amount:         "50.00",
		IdempotencyKey: "reused-key",
	})
	require.NoError(t, err)

	// Same key, different account and amount: the stored transaction
	// wins over everything in the new request.
	second, err := e.service.Deposit(context.Background(), auth, domain.DepositParams{
		AccountNumber:  other.AccountNumber,
		Amount:         "99.00",
		IdempotencyKey: "reused-key",
	})
	require.NoError(t, err)

	require.Equal(t, first.ReferenceNumber, second.ReferenceNumber)
	require.Equal(t, "50.00", second.Amount)
	require.Equal(t, original.AccountNumber, second.TargetAccountNumber)

	require.Equal(t, "50.00", e.balance(t, original.ID))
	require.Equal(t, "0.00", e.balance(t, other.ID))

	txs, err := e.ledger.ListForAccount(context.Background(), other.ID)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestEngineReplayOfFailedAttempt(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	account := e.openAccount(t, auth.UserID, "10.00")

	arg := domain.WithdrawParams{
		AccountNumber:  account.AccountNumber,
		Amount:         "10.01",
		IdempotencyKey: "failed-key",
	}

	_, err := e.service.Withdraw(context.Background(), auth, arg)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The key stays bound to the FAILED row; the replay reports it
	// through Status, not through the error.
	replay, err := e.service.Withdraw(context.Background(), auth, arg)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, replay.Status)
	require.Equal(t, "10.01", replay.Amount)
	require.Equal(t, account.AccountNumber, replay.SourceAccountNumber)

	require.Equal(t, "10.00", e.balance(t, account.ID))

	txs, err := e.ledger.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestEngineConcurrentIdempotencyKey(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	account := e.openAccount(t, auth.UserID, "0.00")

	const n = 20

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := e.service.Deposit(context.Background(), auth, domain.DepositParams{
				AccountNumber:  account.AccountNumber,
				Amount:         "5.00",
				IdempotencyKey: "contested-key",
			})
			require.NoError(t, err)
		}()
	}

	wg.Wait()

	require.Equal(t, "5.00", e.balance(t, account.ID))

	txs, err := e.ledger.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestEngineListForAccount(t *testing.T) {
	e := newEngine(t)
	auth := domain.AuthContext{UserID: 1}
	account := e.openAccount(t, auth.UserID, "0.00")

	for i := 1; i <= 3; i++ {
		_, err := e.service.Deposit(context.Background(), auth, domain.DepositParams{
			AccountNumber: account.AccountNumber,
			Amount:        fmt.Sprintf("%d.00", i),
		})
		require.NoError(t, err)
	}

	results, err := e.service.ListForAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, res := range results {
		require.Equal(t, account.AccountNumber, res.TargetAccountNumber)
		require.Equal(t, domain.StatusCompleted, res.Status)
	}

	require.Equal(t, "3.00", results[0].Amount)
	require.Equal(t, "1.00", results[2].Amount)
}
