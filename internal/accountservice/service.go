// Package accountservice manages business logic layer of accounts.
package accountservice

import (
	"context"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/go-petr/ledger-engine/pkg/refpkg"
	"github.com/rs/zerolog"
)

// Owners hold at most this many active accounts.
const maxActiveAccounts = 3

// Account number generation is retried this many times on a uniqueness
// conflict before giving up.
const maxNumberRetries = 5

// Repo provides data access layer interface needed by account service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package accountservice
type Repo interface {
	Create(ctx context.Context, accountNumber string, arg domain.CreateAccountParams) (domain.Account, error)
	Get(ctx context.Context, id int64) (domain.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (domain.Account, error)
	Deactivate(ctx context.Context, id int64) (domain.Account, error)
	Delete(ctx context.Context, id int64) error
	CountActiveForOwner(ctx context.Context, ownerID int64) (int64, error)
	ListForOwner(ctx context.Context, ownerID int64) ([]domain.Account, error)
}

// Ledger provides the transaction lookup needed to guard deletion.
type Ledger interface {
	ListForAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error)
}

// Service facilitates account service layer logic.
type Service struct {
	repo   Repo
	ledger Ledger
}

// New returns account service struct to manage account business logic.
func New(repo Repo, ledger Ledger) *Service {
	return &Service{
		repo:   repo,
		ledger: ledger,
	}
}

// Create opens an account with zero balance and a generated account
// number, regenerating the number on a collision.
func (s *Service) Create(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	if !domain.ValidAccountType(arg.Type) {
		return domain.Account{}, domain.ErrInvalidAccountType
	}

	n, err := s.repo.CountActiveForOwner(ctx, arg.OwnerID)
	if err != nil {
		l.Error().Err(err).Send()
		return domain.Account{}, err
	}

	if n >= maxActiveAccounts {
		return domain.Account{}, domain.ErrTooManyAccounts
	}

	for i := 0; i < maxNumberRetries; i++ {
		account, err := s.repo.Create(ctx, refpkg.AccountNumber(), arg)
		if err == domain.ErrDuplicateAccountNumber {
			l.Info().Msg("account number collision, regenerating")
			continue
		}

		if err != nil {
			l.Error().Err(err).Send()
			return domain.Account{}, err
		}

		return account, nil
	}

	return domain.Account{}, domain.ErrDuplicateAccountNumber
}

// Get returns the account with the given id.
func (s *Service) Get(ctx context.Context, id int64) (domain.Account, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber returns the account with the given account number.
func (s *Service) GetByNumber(ctx context.Context, accountNumber string) (domain.Account, error) {
	return s.repo.GetByNumber(ctx, accountNumber)
}

// ListForOwner returns the owner's active accounts.
func (s *Service) ListForOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	return s.repo.ListForOwner(ctx, ownerID)
}

// Deactivate marks the account inactive. Only zero-balance accounts can
// be deactivated.
func (s *Service) Deactivate(ctx context.Context, id int64) (domain.Account, error) {
	return s.repo.Deactivate(ctx, id)
}

// Delete removes a zero-balance account that no ledger row references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	l := zerolog.Ctx(ctx)

	txs, err := s.ledger.ListForAccount(ctx, id)
	if err != nil {
		l.Error().Err(err).Send()
		return err
	}

	if len(txs) > 0 {
		return domain.ErrAccountHasTransactions
	}

	return s.repo.Delete(ctx, id)
}
