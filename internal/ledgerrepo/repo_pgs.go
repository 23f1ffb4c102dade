// Package ledgerrepo manages repository layer of the transaction ledger.
//
// The ledger is append-only: rows are created PENDING and finalized to
// exactly one terminal status; no other mutation path exists.
package ledgerrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/go-petr/ledger-engine/pkg/dbpkg"
	"github.com/go-petr/ledger-engine/pkg/errorspkg"
	"github.com/go-petr/ledger-engine/pkg/refpkg"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Reference generation is retried this many times on a uniqueness
// conflict before giving up.
const maxReferenceRetries = 5

// RepoPGS facilitates ledger repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns ledger RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const transactionColumns = `id, amount, type, source_account_id, target_account_id, description, reference_number, coalesce(idempotency_key, ''), timestamp, status`

func scanTransaction(row *sql.Row) (domain.Transaction, error) {
	var t domain.Transaction

	err := row.Scan(
		&t.ID,
		&t.Amount,
		&t.Type,
		&t.SourceAccountID,
		&t.TargetAccountID,
		&t.Description,
		&t.ReferenceNumber,
		&t.IdempotencyKey,
		&t.Timestamp,
		&t.Status,
	)

	return t, err
}

const createQuery = `
INSERT INTO
    transactions (amount, type, source_account_id, target_account_id, description, reference_number, idempotency_key, status)
VALUES
    ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), 'PENDING')
RETURNING ` + transactionColumns

// Create appends a PENDING ledger row, assigning a fresh reference
// number. The reference is regenerated on a uniqueness conflict.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreateTransactionParams) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	for i := 0; i < maxReferenceRetries; i++ {
		ref := refpkg.ReferenceNumber()

		row := r.db.QueryRowContext(ctx, createQuery,
			arg.Amount,
			arg.Type,
			arg.SourceAccountID,
			arg.TargetAccountID,
			arg.Description,
			ref,
			arg.IdempotencyKey,
		)

		t, err := scanTransaction(row)
		if err == nil {
			return t, nil
		}

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "transactions_reference_number_key":
				continue
			case "transactions_idempotency_key_key":
				return t, domain.ErrDuplicateIdempotencyKey
			case "transactions_source_account_id_fkey", "transactions_target_account_id_fkey":
				return t, domain.ErrAccountNotFound
			}
		}

		l.Error().Err(err).Msgf("Create(ctx, %+v)", arg)

		return t, errorspkg.ErrInternal
	}

	return domain.Transaction{}, domain.ErrDuplicateReference
}

const finalizeQuery = `
UPDATE transactions
SET status = $1
WHERE id = $2 AND status = 'PENDING'
RETURNING ` + transactionColumns

// Finalize moves a PENDING row to a terminal status. Terminal rows are
// immutable.
func (r *RepoPGS) Finalize(ctx context.Context, id int64, status domain.TransactionStatus) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	t, err := scanTransaction(r.db.QueryRowContext(ctx, finalizeQuery, status, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return t, domain.ErrTransactionNotFound
		}

		l.Error().Err(err).Send()

		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const getByReferenceQuery = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE reference_number = $1
`

// GetByReference returns the transaction with the given reference number.
func (r *RepoPGS) GetByReference(ctx context.Context, ref string) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	t, err := scanTransaction(r.db.QueryRowContext(ctx, getByReferenceQuery, ref))
	if err != nil {
		if err == sql.ErrNoRows {
			return t, domain.ErrTransactionNotFound
		}

		l.Error().Err(err).Send()

		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const getByIdempotencyKeyQuery = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE idempotency_key = $1
`

// GetByIdempotencyKey returns the transaction created with the given
// idempotency key.
func (r *RepoPGS) GetByIdempotencyKey(ctx context.Context, key string) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	t, err := scanTransaction(r.db.QueryRowContext(ctx, getByIdempotencyKeyQuery, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return t, domain.ErrTransactionNotFound
		}

		l.Error().Err(err).Send()

		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const listForAccountQuery = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE source_account_id = $1 OR target_account_id = $1
ORDER BY timestamp DESC, id DESC
`

// ListForAccount returns the account's transactions, newest first.
func (r *RepoPGS) ListForAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	return r.list(ctx, listForAccountQuery, accountID)
}

const listForAccountsQuery = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE (source_account_id = ANY($1) OR target_account_id = ANY($1)) AND timestamp > $2
ORDER BY timestamp DESC, id DESC
`

// ListForAccounts returns transactions touching any of the given
// accounts after the since cutoff, newest first.
func (r *RepoPGS) ListForAccounts(ctx context.Context, accountIDs []int64, since time.Time) ([]domain.Transaction, error) {
	return r.list(ctx, listForAccountsQuery, pq.Array(accountIDs), since)
}

func (r *RepoPGS) list(ctx context.Context, query string, args ...interface{}) ([]domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Transaction{}

	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.ID,
			&t.Amount,
			&t.Type,
			&t.SourceAccountID,
			&t.TargetAccountID,
			&t.Description,
			&t.ReferenceNumber,
			&t.IdempotencyKey,
			&t.Timestamp,
			&t.Status,
		); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, t)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}
