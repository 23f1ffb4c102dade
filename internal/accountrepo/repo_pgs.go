// Package accountrepo manages repository layer of accounts.
package accountrepo

import (
	"context"
	"database/sql"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/go-petr/ledger-engine/pkg/dbpkg"
	"github.com/go-petr/ledger-engine/pkg/errorspkg"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates account repository layer logic.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewTxRepoPGS returns account RepoPGS scoped to an open transaction.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns account RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

const accountColumns = `id, account_number, owner_id, type, balance, is_active, created_at, updated_at`

func scanAccount(row *sql.Row) (domain.Account, error) {
	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.AccountNumber,
		&a.OwnerID,
		&a.Type,
		&a.Balance,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

const createQuery = `
INSERT INTO
    accounts (account_number, owner_id, type, balance, is_active)
VALUES
    ($1, $2, $3, '0.00', true)
RETURNING ` + accountColumns

// Create creates the account with zero balance and then returns it.
func (r *RepoPGS) Create(ctx context.Context, accountNumber string, arg domain.CreateAccountParams) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, accountNumber, arg.OwnerID, arg.Type)

	a, err := scanAccount(row)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %v, %+v)", accountNumber, arg)

		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Constraint == "accounts_account_number_key" {
				return a, domain.ErrDuplicateAccountNumber
			}
		}

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const getQuery = `
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1
`

// Get returns the account with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return a, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const getByNumberQuery = `
SELECT ` + accountColumns + `
FROM accounts
WHERE account_number = $1
`

// GetByNumber returns the account with the given account number.
func (r *RepoPGS) GetByNumber(ctx context.Context, accountNumber string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getByNumberQuery, accountNumber))
	if err != nil {
		if err == sql.ErrNoRows {
			return a, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const setBalanceQuery = `
UPDATE accounts
SET balance = $1, updated_at = now()
WHERE id = $2
RETURNING ` + accountColumns

// SetBalances writes the given balances in one atomic unit. Either every
// update lands or none does.
func (r *RepoPGS) SetBalances(ctx context.Context, updates []domain.BalanceUpdate) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	db := r.db

	if r.conn != nil {
		tx, err := r.conn.BeginTx(ctx, nil)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		defer func() {
			_ = tx.Rollback()
		}()

		accounts, err := setBalances(ctx, tx, updates)
		if err != nil {
			return nil, err
		}

		if err := tx.Commit(); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		return accounts, nil
	}

	return setBalances(ctx, db, updates)
}

func setBalances(ctx context.Context, db dbpkg.SQLInterface, updates []domain.BalanceUpdate) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	accounts := make([]domain.Account, 0, len(updates))

	for _, u := range updates {
		a, err := scanAccount(db.QueryRowContext(ctx, setBalanceQuery, u.Balance, u.AccountID))
		if err != nil {
			l.Error().Err(err).Msgf("setBalances account %d", u.AccountID)

			if err == sql.ErrNoRows {
				return nil, domain.ErrAccountNotFound
			}

			if pqErr, ok := err.(*pq.Error); ok {
				if pqErr.Constraint == "accounts_balance_check" {
					return nil, domain.ErrInsufficientFunds
				}
			}

			return nil, errorspkg.ErrInternal
		}

		accounts = append(accounts, a)
	}

	return accounts, nil
}

const deactivateQuery = `
UPDATE accounts
SET is_active = false, updated_at = now()
WHERE id = $1 AND balance = 0
RETURNING ` + accountColumns

// Deactivate marks the account inactive. An account holding money
// cannot be deactivated.
func (r *RepoPGS) Deactivate(ctx context.Context, id int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, deactivateQuery, id))
	if err != nil {
		if err == sql.ErrNoRows {
			// Either missing or non-zero balance.
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return a, getErr
			}

			return a, domain.ErrBalanceNotZero
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const deleteQuery = `
DELETE FROM accounts
WHERE id = $1 AND balance = 0
`

// Delete removes the account with the given id. Accounts holding money
// or referenced by ledger rows cannot be deleted.
func (r *RepoPGS) Delete(ctx context.Context, id int64) error {
	l := zerolog.Ctx(ctx)

	res, err := r.db.ExecContext(ctx, deleteQuery, id)
	if err != nil {
		l.Error().Err(err).Send()

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "transactions_source_account_id_fkey", "transactions_target_account_id_fkey":
				return domain.ErrAccountHasTransactions
			}
		}

		return errorspkg.ErrInternal
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	if n == 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}

		return domain.ErrBalanceNotZero
	}

	return nil
}

const countActiveForOwnerQuery = `
SELECT count(*)
FROM accounts
WHERE owner_id = $1 AND is_active = true
`

// CountActiveForOwner returns the number of active accounts the owner holds.
func (r *RepoPGS) CountActiveForOwner(ctx context.Context, ownerID int64) (int64, error) {
	l := zerolog.Ctx(ctx)

	var n int64
	if err := r.db.QueryRowContext(ctx, countActiveForOwnerQuery, ownerID).Scan(&n); err != nil {
		l.Error().Err(err).Send()
		return 0, errorspkg.ErrInternal
	}

	return n, nil
}

const listForOwnerQuery = `
SELECT ` + accountColumns + `
FROM accounts
WHERE owner_id = $1 AND is_active = true
ORDER BY id
`

// ListForOwner returns the owner's active accounts.
func (r *RepoPGS) ListForOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listForOwnerQuery, ownerID)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Account{}

	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(
			&a.ID,
			&a.AccountNumber,
			&a.OwnerID,
			&a.Type,
			&a.Balance,
			&a.IsActive,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, a)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}
