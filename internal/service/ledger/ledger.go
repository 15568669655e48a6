// Package ledger owns wallet balances and the append-only transaction log.
package ledger

import (
	"context"
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/repository"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	storage  repository.Storage
	currency string
	now      func() time.Time
}

func NewService(storage repository.Storage, currency string, opts ...Option) *Service {
	s := &Service{
		storage:  storage,
		currency: currency,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Copy of the service working over the given storage, usually a transaction
func (s *Service) With(storage repository.Storage) *Service {
	c := *s
	c.storage = storage
	return &c
}

func (s *Service) Currency() string {
	return s.currency
}

// Append a completed transaction and move the balance
// Transfers are recorded only in pairs with RecordTransfer
func (s *Service) RecordTransaction(ctx context.Context, accountID uuid.UUID, kind models.TransactionKind, amount int64, meta models.TransactionMeta) (models.Transaction, error) {
	var trx models.Transaction

	if err := checkAmount(kind, amount); err != nil {
		return trx, err
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := s.With(st).activeAccount(ctx, accountID)
		if err != nil {
			return err
		}

		if amount < 0 && account.Balance+amount < 0 {
			return fmt.Errorf("balance %d, debit %d: %w", account.Balance, -amount, apperrors.ErrInsufficientFunds)
		}
		if err := checkCredit(account.Balance, amount); err != nil {
			return err
		}

		trx, err = s.With(st).append(ctx, accountID, kind, amount, meta, nil)
		return err
	})

	return trx, err
}

// Move amount between accounts with two transfer legs netting to zero
// Accounts are locked in id order, so opposite transfers can not deadlock
func (s *Service) RecordTransfer(ctx context.Context, from uuid.UUID, to uuid.UUID, amount int64, meta models.TransactionMeta) (debit models.Transaction, credit models.Transaction, err error) {
	switch {
	case from == to:
		return debit, credit, apperrors.ErrSelfTransfer
	case amount == 0:
		return debit, credit, apperrors.ErrAmountZero
	case amount < 0:
		return debit, credit, apperrors.ErrAmountSign
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		ls := s.With(st)

		accounts := make(map[uuid.UUID]models.Account, 2)
		for _, id := range SortedIDs(from, to) {
			account, err := ls.activeAccount(ctx, id)
			if err != nil {
				return err
			}
			accounts[id] = account
		}

		if source := accounts[from]; source.Balance < amount {
			return fmt.Errorf("balance %d, transfer %d: %w", source.Balance, amount, apperrors.ErrInsufficientFunds)
		}
		if err := checkCredit(accounts[to].Balance, amount); err != nil {
			return err
		}

		debit, err = ls.append(ctx, from, models.TransactionTransfer, -amount, meta, &to)
		if err != nil {
			return err
		}
		credit, err = ls.append(ctx, to, models.TransactionTransfer, amount, meta, &from)
		return err
	})

	return debit, credit, err
}

// If account not found returns apperrors.ErrAccountNotFound
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	account, err := s.storage.Ledger().GetAccount(ctx, accountID, false)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	return s.storage.Ledger().GetAccount(ctx, accountID, false)
}

// One page of account transactions newest first
// Page carries the cursor of the following page, nil on the last one
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, filter models.TransactionFilter) (models.TransactionPage, error) {
	var page models.TransactionPage

	filter, err := normalizeFilter(filter)
	if err != nil {
		return page, err
	}

	if _, err := s.storage.Ledger().GetAccount(ctx, accountID, false); err != nil {
		return page, err
	}

	// One extra row tells whether the next page exists
	limit := filter.Limit
	filter.Limit++

	transactions, err := s.storage.Ledger().ListTransactions(ctx, accountID, filter)
	if err != nil {
		return page, err
	}

	if len(transactions) > limit {
		transactions = transactions[:limit]
		last := transactions[limit-1]
		page.Next = &models.PageCursor{Seq: last.Seq}
	}
	page.Transactions = transactions

	return page, nil
}

// Lazy sequence over all matching transactions newest first, fetched page by page
// Filter limit is used as page size; iteration stops after the first error
func (s *Service) Transactions(ctx context.Context, accountID uuid.UUID, filter models.TransactionFilter) iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		for {
			page, err := s.ListTransactions(ctx, accountID, filter)
			if err != nil {
				yield(models.Transaction{}, err)
				return
			}

			for _, trx := range page.Transactions {
				if !yield(trx, nil) {
					return
				}
			}

			if page.Next == nil {
				return
			}
			filter.After = page.Next
		}
	}
}

// Replay completed transactions and compare the sum with the stored balance
// Account row stays locked while replaying so the log can not move under the check
func (s *Service) Reconcile(ctx context.Context, accountID uuid.UUID) (models.Reconciliation, error) {
	rec := models.Reconciliation{AccountID: accountID}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := st.Ledger().GetAccount(ctx, accountID, true)
		if err != nil {
			return err
		}
		rec.Stored = account.Balance

		for trx, err := range s.With(st).Transactions(ctx, accountID, models.TransactionFilter{Limit: MaxPageLimit}) {
			if err != nil {
				return err
			}
			if trx.Status != models.TransactionCompleted {
				continue
			}
			rec.Replayed += trx.Amount
			rec.Count++
		}
		return nil
	})

	return rec, err
}

// Create account with zero balance if it not exists yet
func (s *Service) ProvisionAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	return s.storage.Ledger().CreateAccount(ctx, accountID, s.currency)
}

// Archived accounts keep their history but reject every mutation
func (s *Service) ArchiveAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	var account models.Account

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		if _, err := st.Ledger().GetAccount(ctx, accountID, true); err != nil {
			return err
		}

		var err error
		account, err = st.Ledger().ArchiveAccount(ctx, accountID, s.now())
		return err
	})

	return account, err
}

// Get or lazily create the account, lock its row and check it accepts mutations
func (s *Service) activeAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	if _, err := s.storage.Ledger().CreateAccount(ctx, accountID, s.currency); err != nil {
		return models.Account{}, err
	}

	account, err := s.storage.Ledger().GetAccount(ctx, accountID, true)
	if err != nil {
		return account, err
	}

	switch {
	case account.IsArchived():
		return account, apperrors.ErrAccountArchived
	case account.Currency != s.currency:
		return account, fmt.Errorf("account in %s, wallet in %s: %w", account.Currency, s.currency, apperrors.ErrCurrencyMismatch)
	}

	return account, nil
}

func (s *Service) append(ctx context.Context, accountID uuid.UUID, kind models.TransactionKind, amount int64, meta models.TransactionMeta, counterparty *uuid.UUID) (models.Transaction, error) {
	trx, err := s.storage.Ledger().CreateTransaction(ctx, models.Transaction{
		ID:              uuid.New(),
		AccountID:       accountID,
		Kind:            kind,
		Amount:          amount,
		Status:          models.TransactionCompleted,
		CreatedAt:       s.now(),
		Category:        meta.Category,
		MerchantRef:     meta.MerchantRef,
		LocationRef:     meta.LocationRef,
		CounterpartyRef: counterparty,
	})
	if err != nil {
		return trx, err
	}

	if _, err := s.storage.Ledger().AddBalance(ctx, accountID, amount); err != nil {
		return trx, err
	}

	return trx, nil
}

func checkAmount(kind models.TransactionKind, amount int64) error {
	switch {
	case kind == models.TransactionTransfer:
		return apperrors.ErrTransferKind
	case !kind.Valid():
		return fmt.Errorf("unknown transaction kind %q: %w", kind, apperrors.ErrValidation)
	case amount == 0:
		return apperrors.ErrAmountZero
	case kind == models.TransactionPurchase && amount > 0:
		return fmt.Errorf("purchase of %d: %w", amount, apperrors.ErrAmountSign)
	case kind != models.TransactionPurchase && amount < 0:
		return fmt.Errorf("%s of %d: %w", kind, amount, apperrors.ErrAmountSign)
	}
	return nil
}

// Balance is a BIGINT, a credit must keep it representable
func checkCredit(balance int64, amount int64) error {
	if amount > 0 && balance > math.MaxInt64-amount {
		return fmt.Errorf("balance %d, credit %d: %w", balance, amount, apperrors.ErrBalanceOverflow)
	}
	return nil
}

func normalizeFilter(filter models.TransactionFilter) (models.TransactionFilter, error) {
	switch {
	case filter.Limit < 0:
		return filter, fmt.Errorf("limit %d: %w", filter.Limit, apperrors.ErrValidation)
	case filter.Limit == 0:
		filter.Limit = DefaultPageLimit
	case filter.Limit > MaxPageLimit:
		filter.Limit = MaxPageLimit
	}

	if filter.Since != nil && filter.Until != nil && filter.Since.After(*filter.Until) {
		return filter, fmt.Errorf("since is after until: %w", apperrors.ErrValidation)
	}

	for _, k := range filter.Kinds {
		if !k.Valid() {
			return filter, fmt.Errorf("unknown transaction kind %q: %w", k, apperrors.ErrValidation)
		}
	}

	if filter.After != nil && filter.After.Seq <= 0 {
		return filter, apperrors.ErrInvalidPageCursor
	}

	return filter, nil
}

// Distinct ids in the order locks must be taken
func SortedIDs(ids ...uuid.UUID) []uuid.UUID {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return slices.Compact(sorted)
}
