package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
)

type LedgerRepo struct {
	DB          DBTX
	LockTimeout time.Duration
}

const setLockTimeout = `-- name: SetLockTimeout
SELECT set_config('lock_timeout', $1, true)
`

const lockAccount = `-- name: LockAccount
SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))
`

func (r *LedgerRepo) LockAccount(ctx context.Context, accountID uuid.UUID) error {
	if r.LockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", r.LockTimeout.Milliseconds())
		if _, err := r.DB.Exec(ctx, setLockTimeout, timeout); err != nil {
			return dbError(err)
		}
	}

	if _, err := r.DB.Exec(ctx, lockAccount, accountID.String()); err != nil {
		return dbError(err)
	}

	return nil
}

const accountColumns = `id, balance, currency, created_at, archived_at`

// Insert account or return the existing one
// Inserted row is not visible to the second select of the same statement, so exactly one row returned
const createAccount = `-- name: CreateAccount
WITH inserted AS (
	INSERT INTO accounts (id, balance, currency, created_at)
	VALUES ($1, 0, $2, $3)
	ON CONFLICT (id) DO NOTHING
	RETURNING ` + accountColumns + `
)
SELECT ` + accountColumns + ` FROM inserted
UNION ALL
SELECT ` + accountColumns + ` FROM accounts WHERE id = $1
`

func (r *LedgerRepo) CreateAccount(ctx context.Context, accountID uuid.UUID, currency string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, createAccount, accountID, currency, time.Now())
	account, err := pgx.CollectOneRow(rows, rowToAccount)
	if err != nil {
		return account, dbError(err)
	}

	return account, nil
}

const getAccount = `-- name: GetAccount
SELECT ` + accountColumns + ` FROM accounts
WHERE id = $1
`

func (r *LedgerRepo) GetAccount(ctx context.Context, accountID uuid.UUID, forUpdate bool) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccount+forUpdateClause(forUpdate), accountID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, dbError(err)
	}
}

const addBalance = `-- name: AddBalance
UPDATE accounts
SET balance = balance + $2
WHERE id = $1
RETURNING ` + accountColumns

func (r *LedgerRepo) AddBalance(ctx context.Context, accountID uuid.UUID, delta int64) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, addBalance, accountID, delta)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	case isViolation(err, pgerrcode.CheckViolation, "accounts_balance_non_negative"):
		return account, fmt.Errorf("balance check: %w", apperrors.ErrInsufficientFunds)
	case isViolation(err, pgerrcode.NumericValueOutOfRange, ""):
		return account, fmt.Errorf("add %d: %w", delta, apperrors.ErrBalanceOverflow)
	default:
		return account, dbError(err)
	}
}

const archiveAccount = `-- name: ArchiveAccount
UPDATE accounts
SET archived_at = COALESCE(archived_at, $2)
WHERE id = $1
RETURNING ` + accountColumns

func (r *LedgerRepo) ArchiveAccount(ctx context.Context, accountID uuid.UUID, at time.Time) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, archiveAccount, accountID, at)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, dbError(err)
	}
}

const insertTransactionColumns = `id, account_id, kind, amount, status, created_at, category, merchant_ref, location_ref, counterparty_ref`

const transactionColumns = `seq, ` + insertTransactionColumns

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (` + insertTransactionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + transactionColumns

func (r *LedgerRepo) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.AccountID, t.Kind, t.Amount, t.Status, t.CreatedAt, t.Category, t.MerchantRef, t.LocationRef, t.CounterpartyRef,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return created, nil
	case isViolation(err, pgerrcode.ForeignKeyViolation, ""):
		return created, apperrors.ErrAccountNotFound
	default:
		return created, dbError(err)
	}
}

func (r *LedgerRepo) ListTransactions(ctx context.Context, accountID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, error) {
	query, args := buildListTransactions(accountID, filter)

	rows, _ := r.DB.Query(ctx, query, args...)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, dbError(err)
	}

	return transactions, nil
}

func buildListTransactions(accountID uuid.UUID, filter models.TransactionFilter) (string, []any) {
	var sb strings.Builder
	args := []any{accountID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString("-- name: ListTransactions\nSELECT " + transactionColumns + " FROM transactions\nWHERE account_id = $1")

	if len(filter.Kinds) > 0 {
		kinds := make([]string, 0, len(filter.Kinds))
		for _, k := range filter.Kinds {
			kinds = append(kinds, string(k))
		}
		sb.WriteString(" AND kind = ANY(" + arg(kinds) + ")")
	}
	if filter.Since != nil {
		sb.WriteString(" AND created_at >= " + arg(*filter.Since))
	}
	if filter.Until != nil {
		sb.WriteString(" AND created_at < " + arg(*filter.Until))
	}
	if filter.After != nil {
		sb.WriteString(" AND seq < " + arg(filter.After.Seq))
	}

	// Insertion order, wall clock of the writers may disagree
	sb.WriteString("\nORDER BY seq DESC")

	if filter.Limit > 0 {
		sb.WriteString("\nLIMIT " + arg(filter.Limit))
	}

	return sb.String(), args
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Balance, &a.Currency, &a.CreatedAt, &a.ArchivedAt)
	return a, err
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.Seq, &t.ID, &t.AccountID, &t.Kind, &t.Amount, &t.Status, &t.CreatedAt, &t.Category, &t.MerchantRef, &t.LocationRef, &t.CounterpartyRef)
	return t, err
}
