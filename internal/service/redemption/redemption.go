// Package redemption claims rewards atomically across loyalty cards and the ledger.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/repository"
	"github.com/nkiryanov/venuewallet/internal/service/catalog"
	"github.com/nkiryanov/venuewallet/internal/service/ledger"
	"github.com/nkiryanov/venuewallet/internal/service/loyalty"
)

const rewardCategory = "reward"

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	storage repository.Storage
	catalog *catalog.Service
	loyalty *loyalty.Service
	ledger  *ledger.Service
	now     func() time.Time
}

func NewService(
	storage repository.Storage,
	catalog *catalog.Service,
	loyalty *loyalty.Service,
	ledger *ledger.Service,
	opts ...Option,
) *Service {
	s := &Service{
		storage: storage,
		catalog: catalog,
		loyalty: loyalty,
		ledger:  ledger,
		now:     time.Now,
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
	c.catalog = s.catalog.With(storage)
	c.loyalty = s.loyalty.With(storage)
	c.ledger = s.ledger.With(storage)
	return &c
}

// Claim reward for the account paying with the best eligible card
// Points deduction, wallet credit and the claim record are stored together or not at all
func (s *Service) ClaimReward(ctx context.Context, accountID uuid.UUID, rewardID string) (models.RedemptionRecord, error) {
	var record models.RedemptionRecord

	reward, err := s.catalog.GetReward(ctx, rewardID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return record, fmt.Errorf("reward %q: %w", rewardID, apperrors.ErrRewardUnavailable)
	case err != nil:
		return record, err
	}

	_, err = s.storage.Redemption().GetRedemption(ctx, accountID, rewardID)
	switch {
	case err == nil:
		return record, fmt.Errorf("reward %q: %w", rewardID, apperrors.ErrAlreadyClaimed)
	case !errors.Is(err, apperrors.ErrRedemptionNotFound):
		return record, err
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		tx := s.With(st)

		cards, err := st.Card().ListCards(ctx, accountID, reward.MerchantID, true)
		if err != nil {
			return err
		}
		card, err := loyalty.SelectCard(cards, reward.MerchantID)
		if err != nil {
			return err
		}

		recordID := uuid.New()
		if _, err := tx.loyalty.DeductPoints(ctx, card.ID, reward.PointsCost, &recordID); err != nil {
			return err
		}

		var resulting *uuid.UUID
		if reward.GrantsCredit() {
			meta := models.TransactionMeta{Category: rewardCategory}
			if reward.MerchantID != "" {
				merchant := reward.MerchantID
				meta.MerchantRef = &merchant
			}

			trx, err := tx.ledger.RecordTransaction(ctx, accountID, models.TransactionReward, reward.CreditAmount, meta)
			if err != nil {
				return err
			}
			resulting = &trx.ID
		}

		record, err = st.Redemption().CreateRedemption(ctx, models.RedemptionRecord{
			ID:                     recordID,
			AccountID:              accountID,
			RewardID:               reward.ID,
			CardID:                 card.ID,
			PointsDeducted:         reward.PointsCost,
			CreatedAt:              s.now(),
			ResultingTransactionID: resulting,
		})
		return err
	})

	return record, err
}

// Account claims newest first
func (s *Service) ListRedemptions(ctx context.Context, accountID uuid.UUID) ([]models.RedemptionRecord, error) {
	return s.storage.Redemption().ListRedemptions(ctx, accountID)
}
