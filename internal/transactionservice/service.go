// Package transactionservice manages business logic layer of transactions.
//
// Every operation follows the same flow: validate the request without
// holding locks, reserve the involved accounts, append a PENDING ledger
// row, apply the balance mutation, and finalize the row to COMPLETED or
// FAILED. Locks release only after the row is finalized, so every
// attempt that got past validation leaves an audit trail.
package transactionservice

import (
	"context"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountRepo provides the account access needed by the orchestrator.
//
//go:generate mockgen -source service.go -destination service_mock.go -package transactionservice
type AccountRepo interface {
	Get(ctx context.Context, id int64) (domain.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (domain.Account, error)
}

// Ledger provides the append-only transaction history.
type Ledger interface {
	Create(ctx context.Context, arg domain.CreateTransactionParams) (domain.Transaction, error)
	Finalize(ctx context.Context, id int64, status domain.TransactionStatus) (domain.Transaction, error)
	GetByReference(ctx context.Context, ref string) (domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (domain.Transaction, error)
	ListForAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error)
}

// Mover provides the locked balance mutation primitive.
type Mover interface {
	Acquire(ctx context.Context, ids ...int64) (func(), error)
	Credit(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error)
	Debit(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error)
	Transfer(ctx context.Context, sourceID, targetID int64, amount decimal.Decimal) (domain.Account, domain.Account, error)
}

// Publisher announces completed transactions to downstream consumers.
type Publisher interface {
	PublishCompleted(ctx context.Context, result domain.TransactionResult) error
}

// Service facilitates transaction orchestration logic.
type Service struct {
	accounts  AccountRepo
	ledger    Ledger
	mover     Mover
	publisher Publisher
}

// New returns a transaction service.
func New(accounts AccountRepo, ledger Ledger, mover Mover, publisher Publisher) *Service {
	return &Service{
		accounts:  accounts,
		ledger:    ledger,
		mover:     mover,
		publisher: publisher,
	}
}

// parseAmount accepts positive decimal strings with at most two
// fraction digits and normalizes nothing; callers format results with
// StringFixed(2).
func parseAmount(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, domain.ErrInvalidAmount
	}

	if d.LessThanOrEqual(decimal.Zero) || d.Exponent() < -2 {
		return decimal.Zero, domain.ErrInvalidAmount
	}

	return d, nil
}

func (s *Service) activeAccount(ctx context.Context, accountNumber string) (domain.Account, error) {
	account, err := s.accounts.GetByNumber(ctx, accountNumber)
	if err != nil {
		return domain.Account{}, err
	}

	if !account.IsActive {
		return domain.Account{}, domain.ErrAccountInactive
	}

	return account, nil
}

// Deposit credits the account identified by number and records the
// movement in the ledger.
func (s *Service) Deposit(ctx context.Context, auth domain.AuthContext, arg domain.DepositParams) (domain.TransactionResult, error) {
	l := zerolog.Ctx(ctx)

	amount, err := parseAmount(arg.Amount)
	if err != nil {
		l.Info().Err(err).Str("amount", arg.Amount).Send()
		return domain.TransactionResult{}, err
	}

	account, err := s.activeAccount(ctx, arg.AccountNumber)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.TransactionResult{}, err
	}

	if replay, ok, err := s.replayed(ctx, arg.IdempotencyKey); err != nil || ok {
		return replay, err
	}

	release, err := s.mover.Acquire(ctx, account.ID)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.TransactionResult{}, err
	}
	defer release()

	pending, err := s.ledger.Create(ctx, domain.CreateTransactionParams{
		Amount:          amount.StringFixed(2),
		Type:            domain.Deposit,
		TargetAccountID: &account.ID,
		Description:     defaultDescription(arg.Description, "Deposit"),
		IdempotencyKey:  arg.IdempotencyKey,
	})
	if err != nil {
		return s.lostIdempotencyRace(ctx, err, arg.IdempotencyKey)
	}

	_, moveErr := s.mover.Credit(ctx, account.ID, amount)

	return s.finalize(ctx, auth, pending, moveErr, "", account.AccountNumber)
}

// Withdraw debits the account identified by number and records the
// movement in the ledger. Insufficient funds leaves a FAILED row.
func (s *Service) Withdraw(ctx context.Context, auth domain.AuthContext, arg domain.WithdrawParams) (domain.TransactionResult, error) {
	l := zerolog.Ctx(ctx)

	amount, err := parseAmount(arg.Amount)
	if err != nil {
		l.Info().Err(err).Str("amount", arg.Amount).Send()
		return domain.TransactionResult{}, err
	}

	account, err := s.activeAccount(ctx, arg.AccountNumber)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.TransactionResult{}, err
	}

	if replay, ok, err := s.replayed(ctx, arg.IdempotencyKey); err != nil || ok {
		return replay, err
	}

	release, err := s.mover.Acquire(ctx, account.ID)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.TransactionResult{}, err
	}
	defer release()

	pending, err := s.ledger.Create(ctx, domain.CreateTransactionParams{
		Amount:          amount.StringFixed(2),
		Type:            domain.Withdraw,
		SourceAccountID: &account.ID,
		Description:     defaultDescription(arg.Description, "Withdrawal"),
		IdempotencyKey:  arg.IdempotencyKey,
	})
	if err != nil {
		return s.lostIdempotencyRace(ctx, err, arg.IdempotencyKey)
	}

	_, moveErr := s.mover.Debit(ctx, account.ID, amount)

	return s.finalize(ctx, auth, pending, moveErr, account.AccountNumber, "")
}

// Transfer moves money between two distinct accounts atomically.
func (s *Service) Transfer(ctx context.Context, auth domain.AuthContext, arg domain.TransferParams) (domain.TransactionResult, error) {
	l := zerolog.Ctx(ctx)

	amount, err := parseAmount(arg.Amount)
	if err != nil {
		l.Info().Err(err).Str("amount", arg.Amount).Send()
		return domain.TransactionResult{}, err
	}

	if arg.SourceAccountNumber == arg.TargetAccountNumber {
		l.Info().Err(domain.ErrSelfTransfer).Send()
		return domain.TransactionResult{}, domain.ErrSelfTransfer
	}

	source, err := s.activeAccount(ctx, arg.SourceAccountNumber)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.TransactionResult{}, err
	}

	target, err := s.activeAccount(ctx, arg.TargetAccountNumber)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.TransactionResult{}, err
	}

	if replay, ok, err := s.replayed(ctx, arg.IdempotencyKey); err != nil || ok {
		return replay, err
	}

	release, err := s.mover.Acquire(ctx, source.ID, target.ID)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.TransactionResult{}, err
	}
	defer release()

	pending, err := s.ledger.Create(ctx, domain.CreateTransactionParams{
		Amount:          amount.StringFixed(2),
		Type:            domain.Transfer,
		SourceAccountID: &source.ID,
		TargetAccountID: &target.ID,
		Description:     defaultDescription(arg.Description, "Transfer"),
		IdempotencyKey:  arg.IdempotencyKey,
	})
	if err != nil {
		return s.lostIdempotencyRace(ctx, err, arg.IdempotencyKey)
	}

	_, _, moveErr := s.mover.Transfer(ctx, source.ID, target.ID, amount)

	return s.finalize(ctx, auth, pending, moveErr, source.AccountNumber, target.AccountNumber)
}

// Get returns the transaction with the given reference number.
func (s *Service) Get(ctx context.Context, ref string) (domain.TransactionResult, error) {
	t, err := s.ledger.GetByReference(ctx, ref)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	return s.result(ctx, t)
}

// ListForAccount returns the account's transactions, newest first.
func (s *Service) ListForAccount(ctx context.Context, accountID int64) ([]domain.TransactionResult, error) {
	txs, err := s.ledger.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	numbers := map[int64]string{}
	results := make([]domain.TransactionResult, 0, len(txs))

	for _, t := range txs {
		res, err := s.resultCached(ctx, t, numbers)
		if err != nil {
			return nil, err
		}

		results = append(results, res)
	}

	return results, nil
}

// replayed looks up a prior transaction created with the same
// idempotency key. On a hit the stored transaction is returned exactly
// as recorded, whatever the current request says and whatever status
// the original attempt reached: a replay of an attempt that finalized
// FAILED reports that row with a nil error, so callers inspect Status
// rather than the error.
func (s *Service) replayed(ctx context.Context, key string) (domain.TransactionResult, bool, error) {
	if key == "" {
		return domain.TransactionResult{}, false, nil
	}

	t, err := s.ledger.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if err == domain.ErrTransactionNotFound {
			return domain.TransactionResult{}, false, nil
		}

		return domain.TransactionResult{}, false, err
	}

	zerolog.Ctx(ctx).Info().Str("idempotency_key", key).Str("reference", t.ReferenceNumber).
		Msg("idempotent replay, returning original transaction")

	res, err := s.result(ctx, t)
	if err != nil {
		return domain.TransactionResult{}, false, err
	}

	return res, true, nil
}

// lostIdempotencyRace resolves the case where a concurrent request with
// the same key appended the row first.
func (s *Service) lostIdempotencyRace(ctx context.Context, err error, key string) (domain.TransactionResult, error) {
	if err != domain.ErrDuplicateIdempotencyKey || key == "" {
		return domain.TransactionResult{}, err
	}

	t, getErr := s.ledger.GetByIdempotencyKey(ctx, key)
	if getErr != nil {
		return domain.TransactionResult{}, getErr
	}

	return s.result(ctx, t)
}

// finalize moves the PENDING row to its terminal status, keeping FAILED
// rows for every attempt, and publishes completed transactions.
func (s *Service) finalize(ctx context.Context, auth domain.AuthContext, pending domain.Transaction, moveErr error, sourceNumber, targetNumber string) (domain.TransactionResult, error) {
	l := zerolog.Ctx(ctx)

	status := domain.StatusCompleted
	if moveErr != nil {
		status = domain.StatusFailed
	}

	final, err := s.ledger.Finalize(ctx, pending.ID, status)
	if err != nil {
		l.Error().Err(err).Int64("transaction_id", pending.ID).Msg("cannot finalize ledger row")

		if moveErr != nil {
			return domain.TransactionResult{}, moveErr
		}

		return domain.TransactionResult{}, err
	}

	l.Info().
		Int64("user_id", auth.UserID).
		Str("reference", final.ReferenceNumber).
		Str("type", string(final.Type)).
		Str("status", string(final.Status)).
		Str("amount", final.Amount).
		Send()

	if moveErr != nil {
		return domain.TransactionResult{}, moveErr
	}

	result := newResult(final, sourceNumber, targetNumber)

	if s.publisher != nil {
		if err := s.publisher.PublishCompleted(ctx, result); err != nil {
			l.Error().Err(err).Str("reference", result.ReferenceNumber).Msg("cannot publish transaction")
		}
	}

	return result, nil
}

func (s *Service) result(ctx context.Context, t domain.Transaction) (domain.TransactionResult, error) {
	return s.resultCached(ctx, t, map[int64]string{})
}

func (s *Service) resultCached(ctx context.Context, t domain.Transaction, numbers map[int64]string) (domain.TransactionResult, error) {
	var sourceNumber, targetNumber string

	if t.SourceAccountID != nil {
		n, err := s.accountNumber(ctx, *t.SourceAccountID, numbers)
		if err != nil {
			return domain.TransactionResult{}, err
		}

		sourceNumber = n
	}

	if t.TargetAccountID != nil {
		n, err := s.accountNumber(ctx, *t.TargetAccountID, numbers)
		if err != nil {
			return domain.TransactionResult{}, err
		}

		targetNumber = n
	}

	return newResult(t, sourceNumber, targetNumber), nil
}

func (s *Service) accountNumber(ctx context.Context, id int64, numbers map[int64]string) (string, error) {
	if n, ok := numbers[id]; ok {
		return n, nil
	}

	account, err := s.accounts.Get(ctx, id)
	if err != nil {
		return "", err
	}

	numbers[id] = account.AccountNumber

	return account.AccountNumber, nil
}

func newResult(t domain.Transaction, sourceNumber, targetNumber string) domain.TransactionResult {
	if t.SourceAccountID == nil {
		sourceNumber = ""
	}

	if t.TargetAccountID == nil {
		targetNumber = ""
	}

	return domain.TransactionResult{
		ID:                  t.ID,
		Amount:              t.Amount,
		Type:                t.Type,
		SourceAccountNumber: sourceNumber,
		TargetAccountNumber: targetNumber,
		Description:         t.Description,
		ReferenceNumber:     t.ReferenceNumber,
		Timestamp:           t.Timestamp,
		Status:              t.Status,
	}
}

func defaultDescription(description, fallback string) string {
	if description == "" {
		return fallback
	}

	return description
}
