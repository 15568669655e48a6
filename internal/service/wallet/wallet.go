// Package wallet is the single entry point of the engine.
//
// Every mutation runs under the account lock: an in-process keyed lock first,
// then a transaction scoped database lock, so operations of one account are
// serialized across processes while different accounts run in parallel.
// Errors leave the facade as *apperrors.Error.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/directory"
	"github.com/nkiryanov/venuewallet/internal/logger"
	"github.com/nkiryanov/venuewallet/internal/metrics"
	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/money"
	"github.com/nkiryanov/venuewallet/internal/notify"
	"github.com/nkiryanov/venuewallet/internal/repository"
	"github.com/nkiryanov/venuewallet/internal/service/catalog"
	"github.com/nkiryanov/venuewallet/internal/service/ledger"
	"github.com/nkiryanov/venuewallet/internal/service/loyalty"
	"github.com/nkiryanov/venuewallet/internal/service/redemption"
)

const (
	defaultLockWait = 5 * time.Second
	tracerName      = "github.com/nkiryanov/venuewallet/internal/service/wallet"

	categoryTopUp    = "topup"
	categoryTransfer = "transfer"
)

type merchantDirectory interface {
	MerchantExists(merchantID string) bool
	TierThresholds(merchantID string) (models.TierTable, error)
	Merchant(merchantID string) (directory.Merchant, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// Max time to wait for the in-process account lock, zero means no limit
func WithLockWait(d time.Duration) Option {
	return func(s *Service) {
		s.lockWait = d
	}
}

type Service struct {
	storage   repository.Storage
	directory merchantDirectory
	now       func() time.Time
	lockWait  time.Duration
	locks     *locker

	notifier notify.Notifier
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   logger.Logger

	ledger     *ledger.Service
	loyalty    *loyalty.Service
	catalog    *catalog.Service
	redemption *redemption.Service
}

func NewService(storage repository.Storage, dir merchantDirectory, currency string, opts ...Option) *Service {
	s := &Service{
		storage:   storage,
		directory: dir,
		now:       time.Now,
		lockWait:  defaultLockWait,
		notifier:  notify.NopNotifier{},
		tracer:    otel.Tracer(tracerName),
		logger:    logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.locks = newLocker(s.lockWait)
	s.ledger = ledger.NewService(storage, currency, ledger.WithClock(s.now))
	s.loyalty = loyalty.NewService(storage, dir, loyalty.WithClock(s.now))
	s.catalog = catalog.NewService(storage, dir, catalog.WithClock(s.now))
	s.redemption = redemption.NewService(storage, s.catalog, s.loyalty, s.ledger, redemption.WithClock(s.now))
	return s
}

func (s *Service) Currency() string {
	return s.ledger.Currency()
}

// Services bound to one database transaction
type txServices struct {
	storage    repository.Storage
	ledger     *ledger.Service
	loyalty    *loyalty.Service
	redemption *redemption.Service
}

func (s *Service) TopUp(ctx context.Context, accountID uuid.UUID, amount int64) (models.Transaction, error) {
	var trx models.Transaction

	err := s.write(ctx, "TopUp", accountID, func(ctx context.Context) error {
		return s.mutate(ctx, true, func(tx txServices) error {
			var err error
			trx, err = tx.ledger.RecordTransaction(ctx, accountID, models.TransactionTopUp, amount, models.TransactionMeta{Category: categoryTopUp})
			return err
		}, accountID)
	})
	if err != nil {
		return trx, err
	}

	s.notifier.Notify(ctx, accountID, notify.KindTopUp, map[string]any{
		"transaction_id": trx.ID,
		"amount":         trx.Amount,
		"currency":       s.Currency(),
	})
	return trx, nil
}

// Pay at a merchant and earn points on its card at the merchant earn rate
// The card is created on the first purchase at the merchant
func (s *Service) Purchase(ctx context.Context, accountID uuid.UUID, req models.PurchaseRequest) (models.Purchase, error) {
	var purchase models.Purchase

	err := s.write(ctx, "Purchase", accountID, func(ctx context.Context) error {
		if req.Amount <= 0 {
			return fmt.Errorf("purchase amount %d: %w", req.Amount, apperrors.ErrValidation)
		}
		merchant, err := s.directory.Merchant(req.MerchantID)
		if err != nil {
			return err
		}

		return s.mutate(ctx, true, func(tx txServices) error {
			merchantRef := merchant.ID
			category := req.Category
			if category == "" {
				category = merchant.Category
			}

			trx, err := tx.ledger.RecordTransaction(ctx, accountID, models.TransactionPurchase, -req.Amount, models.TransactionMeta{
				Category:    category,
				MerchantRef: &merchantRef,
				LocationRef: req.LocationRef,
			})
			if err != nil {
				return err
			}

			card, err := tx.loyalty.GetOrCreateCard(ctx, accountID, merchant.ID)
			if err != nil {
				return err
			}
			points := money.Points(req.Amount, merchant.EarnRate)
			if points > 0 {
				card, err = tx.loyalty.EarnPoints(ctx, card.ID, points, &trx.ID)
				if err != nil {
					return err
				}
			}

			purchase = models.Purchase{Transaction: trx, Card: card, PointsEarned: points}
			return nil
		}, accountID)
	})
	if err != nil {
		return purchase, err
	}

	s.notifier.Notify(ctx, accountID, notify.KindPurchase, map[string]any{
		"transaction_id": purchase.Transaction.ID,
		"amount":         purchase.Transaction.Amount,
		"merchant_id":    req.MerchantID,
		"points_earned":  purchase.PointsEarned,
		"tier":           purchase.Card.Tier,
	})
	return purchase, nil
}

// Credit points to the account card of the merchant outside of a purchase
func (s *Service) AwardPoints(ctx context.Context, accountID uuid.UUID, merchantID string, points int64) (models.LoyaltyCard, error) {
	var card models.LoyaltyCard

	err := s.write(ctx, "AwardPoints", accountID, func(ctx context.Context) error {
		return s.mutate(ctx, true, func(tx txServices) error {
			if _, err := tx.ledger.GetAccount(ctx, accountID); err != nil {
				return err
			}

			var err error
			card, err = tx.loyalty.GetOrCreateCard(ctx, accountID, merchantID)
			if err != nil {
				return err
			}
			card, err = tx.loyalty.EarnPoints(ctx, card.ID, points, nil)
			return err
		}, accountID)
	})
	if err != nil || points == 0 {
		return card, err
	}

	s.notifier.Notify(ctx, accountID, notify.KindPointsEarned, map[string]any{
		"card_id":     card.ID,
		"merchant_id": merchantID,
		"points":      points,
		"tier":        card.Tier,
	})
	return card, nil
}

// Move money between two accounts; both are locked for the whole operation
func (s *Service) Transfer(ctx context.Context, from uuid.UUID, to uuid.UUID, amount int64) (debit models.Transaction, credit models.Transaction, err error) {
	err = s.write(ctx, "Transfer", from, func(ctx context.Context) error {
		return s.mutate(ctx, true, func(tx txServices) error {
			var err error
			debit, credit, err = tx.ledger.RecordTransfer(ctx, from, to, amount, models.TransactionMeta{Category: categoryTransfer})
			return err
		}, from, to)
	})
	if err != nil {
		return debit, credit, err
	}

	s.notifier.Notify(ctx, from, notify.KindTransfer, map[string]any{
		"transaction_id": debit.ID,
		"amount":         debit.Amount,
		"counterparty":   to,
	})
	s.notifier.Notify(ctx, to, notify.KindTransfer, map[string]any{
		"transaction_id": credit.ID,
		"amount":         credit.Amount,
		"counterparty":   from,
	})
	return debit, credit, nil
}

func (s *Service) ClaimReward(ctx context.Context, accountID uuid.UUID, rewardID string) (models.RedemptionRecord, error) {
	var record models.RedemptionRecord

	err := s.write(ctx, "ClaimReward", accountID, func(ctx context.Context) error {
		return s.mutate(ctx, true, func(tx txServices) error {
			var err error
			record, err = tx.redemption.ClaimReward(ctx, accountID, rewardID)
			return err
		}, accountID)
	})
	if err != nil {
		return record, err
	}

	payload := map[string]any{
		"redemption_id":   record.ID,
		"reward_id":       record.RewardID,
		"card_id":         record.CardID,
		"points_deducted": record.PointsDeducted,
	}
	if record.ResultingTransactionID != nil {
		payload["transaction_id"] = *record.ResultingTransactionID
	}
	s.notifier.Notify(ctx, accountID, notify.KindRewardClaimed, payload)
	return record, nil
}

func (s *Service) ProvisionAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	var account models.Account

	err := s.write(ctx, "ProvisionAccount", accountID, func(ctx context.Context) error {
		return s.mutate(ctx, false, func(tx txServices) error {
			var err error
			account, err = tx.ledger.ProvisionAccount(ctx, accountID)
			return err
		}, accountID)
	})

	return account, err
}

// Archived account keeps its history but rejects every mutation
func (s *Service) ArchiveAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	var account models.Account

	err := s.write(ctx, "ArchiveAccount", accountID, func(ctx context.Context) error {
		return s.mutate(ctx, false, func(tx txServices) error {
			var err error
			account, err = tx.ledger.ArchiveAccount(ctx, accountID)
			return err
		}, accountID)
	})
	if err != nil {
		return account, err
	}

	s.notifier.Notify(ctx, accountID, notify.KindAccountArchived, map[string]any{"archived_at": account.ArchivedAt})
	return account, nil
}

// Upsert catalog rewards, all or nothing
func (s *Service) SyncCatalog(ctx context.Context, rewards []models.Reward) error {
	return s.write(ctx, "SyncCatalog", uuid.Nil, func(ctx context.Context) error {
		return s.catalog.Sync(ctx, rewards)
	})
}

func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64

	err := s.read(ctx, "GetBalance", accountID, func(ctx context.Context) error {
		var err error
		balance, err = s.ledger.GetBalance(ctx, accountID)
		return err
	})

	return balance, err
}

func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, filter models.TransactionFilter) (models.TransactionPage, error) {
	var page models.TransactionPage

	err := s.read(ctx, "ListTransactions", accountID, func(ctx context.Context) error {
		var err error
		page, err = s.ledger.ListTransactions(ctx, accountID, filter)
		return err
	})

	return page, err
}

func (s *Service) ListLoyaltyCards(ctx context.Context, accountID uuid.UUID) ([]models.LoyaltyCard, error) {
	var cards []models.LoyaltyCard

	err := s.read(ctx, "ListLoyaltyCards", accountID, func(ctx context.Context) error {
		var err error
		cards, err = s.loyalty.ListCards(ctx, accountID)
		return err
	})

	return cards, err
}

// Rewards active now, marked as claimed if the account already claimed them
// Empty merchantID lists rewards of all merchants
func (s *Service) ListActiveRewards(ctx context.Context, accountID uuid.UUID, merchantID string) ([]models.RewardOffer, error) {
	var offers []models.RewardOffer

	err := s.read(ctx, "ListActiveRewards", accountID, func(ctx context.Context) error {
		rewards, err := s.catalog.ListActiveRewards(ctx, merchantID)
		if err != nil {
			return err
		}
		records, err := s.redemption.ListRedemptions(ctx, accountID)
		if err != nil {
			return err
		}

		claimed := make(map[string]bool, len(records))
		for _, r := range records {
			claimed[r.RewardID] = true
		}

		offers = make([]models.RewardOffer, 0, len(rewards))
		for _, rw := range rewards {
			offers = append(offers, models.RewardOffer{Reward: rw, Claimed: claimed[rw.ID]})
		}
		return nil
	})

	return offers, err
}

func (s *Service) ListRedemptions(ctx context.Context, accountID uuid.UUID) ([]models.RedemptionRecord, error) {
	var records []models.RedemptionRecord

	err := s.read(ctx, "ListRedemptions", accountID, func(ctx context.Context) error {
		var err error
		records, err = s.redemption.ListRedemptions(ctx, accountID)
		return err
	})

	return records, err
}

// Replay the transaction log and every card journal of the account
func (s *Service) Reconcile(ctx context.Context, accountID uuid.UUID) (models.AccountReconciliation, error) {
	var result models.AccountReconciliation

	err := s.read(ctx, "Reconcile", accountID, func(ctx context.Context) error {
		return s.storage.InTx(ctx, func(st repository.Storage) error {
			tx := s.bind(st)

			balance, err := tx.ledger.Reconcile(ctx, accountID)
			if err != nil {
				return err
			}
			cards, err := tx.loyalty.ListCards(ctx, accountID)
			if err != nil {
				return err
			}

			result = models.AccountReconciliation{Balance: balance, Cards: make([]models.CardReplay, 0, len(cards))}
			for _, card := range cards {
				replay, err := tx.loyalty.ReplayCard(ctx, card.ID)
				if err != nil {
					return err
				}
				result.Cards = append(result.Cards, replay)
			}
			return nil
		})
	})
	if err == nil && !result.Consistent() {
		s.logger.Error("Account drift detected", "account_id", accountID, "balance", result.Balance, "cards", result.Cards)
	}

	return result, err
}

func (s *Service) bind(st repository.Storage) txServices {
	return txServices{
		storage:    st,
		ledger:     s.ledger.With(st),
		loyalty:    s.loyalty.With(st),
		redemption: s.redemption.With(st),
	}
}

// Run fn in one transaction holding the locks of all accounts
// If requireActive is set archived accounts are rejected; unknown accounts pass to allow lazy creation
func (s *Service) mutate(ctx context.Context, requireActive bool, fn func(tx txServices) error, accountIDs ...uuid.UUID) error {
	release, err := s.locks.Lock(ctx, accountIDs...)
	if err != nil {
		return err
	}
	defer release()

	return s.storage.InTx(ctx, func(st repository.Storage) error {
		for _, id := range ledger.SortedIDs(accountIDs...) {
			if err := st.Ledger().LockAccount(ctx, id); err != nil {
				return err
			}
			if !requireActive {
				continue
			}

			account, err := st.Ledger().GetAccount(ctx, id, false)
			switch {
			case errors.Is(err, apperrors.ErrAccountNotFound):
			case err != nil:
				return err
			case account.IsArchived():
				return fmt.Errorf("account %s: %w", id, apperrors.ErrAccountArchived)
			}
		}

		return fn(s.bind(st))
	})
}

func (s *Service) write(ctx context.Context, op string, accountID uuid.UUID, fn func(context.Context) error) error {
	return s.observe(ctx, op, accountID, true, fn)
}

func (s *Service) read(ctx context.Context, op string, accountID uuid.UUID, fn func(context.Context) error) error {
	return s.observe(ctx, op, accountID, false, fn)
}

// Trace, measure and log the operation and translate its error
func (s *Service) observe(ctx context.Context, op string, accountID uuid.UUID, mutation bool, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "wallet."+op, trace.WithAttributes(
		attribute.String("account.id", accountID.String()),
		attribute.Bool("wallet.mutation", mutation),
	))
	defer span.End()

	started := time.Now()
	err := apperrors.Wrap(op, fn(ctx))
	elapsed := time.Since(started)
	s.metrics.ObserveOperation(op, err, elapsed)

	log := s.logger.With("operation", op, "account_id", accountID, "duration", elapsed)

	if err != nil {
		kind := apperrors.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		span.SetAttributes(attribute.String("wallet.error_kind", string(kind)))

		if apperrors.Retryable(err) {
			log.Error("Wallet operation failed", "kind", kind, "error", err)
		} else {
			log.Info("Wallet operation rejected", "kind", kind, "error", err)
		}
		return err
	}

	span.SetStatus(codes.Ok, "")
	if mutation {
		log.Info("Wallet operation done")
	} else {
		log.Debug("Wallet query done")
	}
	return nil
}
