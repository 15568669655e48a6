// Package loyalty owns merchant loyalty cards: points, tiers and the points journal.
package loyalty

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/repository"
)

type merchantDirectory interface {
	MerchantExists(merchantID string) bool

	// If merchant not found has to return apperrors.ErrMerchantNotFound
	TierThresholds(merchantID string) (models.TierTable, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	storage   repository.Storage
	directory merchantDirectory
	now       func() time.Time
}

func NewService(storage repository.Storage, directory merchantDirectory, opts ...Option) *Service {
	s := &Service{
		storage:   storage,
		directory: directory,
		now:       time.Now,
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

// Return the account card of the merchant, create an empty one on first use
func (s *Service) GetOrCreateCard(ctx context.Context, accountID uuid.UUID, merchantID string) (models.LoyaltyCard, error) {
	if !s.directory.MerchantExists(merchantID) {
		return models.LoyaltyCard{}, fmt.Errorf("merchant %q: %w", merchantID, apperrors.ErrMerchantNotFound)
	}

	table, err := s.directory.TierThresholds(merchantID)
	if err != nil {
		return models.LoyaltyCard{}, err
	}
	tier, next := table.TierFor(0)

	now := s.now()
	return s.storage.Card().CreateCard(ctx, models.LoyaltyCard{
		ID:             uuid.New(),
		AccountID:      accountID,
		MerchantID:     merchantID,
		Points:         0,
		Tier:           tier,
		NextTierPoints: next,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// Add points to the card; earning never lowers the tier
// Zero points leave the card and its journal untouched
func (s *Service) EarnPoints(ctx context.Context, cardID uuid.UUID, points int64, reference *uuid.UUID) (models.LoyaltyCard, error) {
	if points < 0 {
		return models.LoyaltyCard{}, fmt.Errorf("earn %d: %w", points, apperrors.ErrPointsNegative)
	}
	if points == 0 {
		return s.storage.Card().GetCard(ctx, cardID, false)
	}

	return s.change(ctx, cardID, func(card models.LoyaltyCard, table models.TierTable) (models.LoyaltyCard, models.CardEntry, error) {
		if card.Points > math.MaxInt64-points {
			return card, models.CardEntry{}, fmt.Errorf("points overflow: %w", apperrors.ErrValidation)
		}

		card.Points += points
		card.Tier, card.NextTierPoints = earnTier(table, card.Tier, card.Points)

		return card, models.CardEntry{Delta: points, Reason: models.CardEntryEarn, Reference: reference}, nil
	})
}

// Take points from the card; tier is recomputed from the rest and may go down
// If card has less points returns apperrors.ErrInsufficientPoints without changes
func (s *Service) DeductPoints(ctx context.Context, cardID uuid.UUID, points int64, reference *uuid.UUID) (models.LoyaltyCard, error) {
	if points <= 0 {
		return models.LoyaltyCard{}, fmt.Errorf("deduct %d: %w", points, apperrors.ErrPointsNotPositive)
	}

	return s.change(ctx, cardID, func(card models.LoyaltyCard, table models.TierTable) (models.LoyaltyCard, models.CardEntry, error) {
		if card.Points < points {
			return card, models.CardEntry{}, fmt.Errorf("card has %d, needs %d: %w", card.Points, points, apperrors.ErrInsufficientPoints)
		}

		card.Points -= points
		card.Tier, card.NextTierPoints = table.TierFor(card.Points)

		return card, models.CardEntry{Delta: -points, Reason: models.CardEntryRedeem, Reference: reference}, nil
	})
}

func (s *Service) ListCards(ctx context.Context, accountID uuid.UUID) ([]models.LoyaltyCard, error) {
	return s.storage.Card().ListCards(ctx, accountID, "", false)
}

// Recompute points and tier from the journal and compare with the stored card
func (s *Service) ReplayCard(ctx context.Context, cardID uuid.UUID) (models.CardReplay, error) {
	var replay models.CardReplay

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		card, err := st.Card().GetCard(ctx, cardID, true)
		if err != nil {
			return err
		}
		table, err := s.directory.TierThresholds(card.MerchantID)
		if err != nil {
			return err
		}
		entries, err := st.Card().ListEntries(ctx, cardID)
		if err != nil {
			return err
		}

		replay = models.CardReplay{
			CardID:       card.ID,
			StoredPoints: card.Points,
			StoredTier:   card.Tier,
		}
		replay.ReplayedTier, _ = table.TierFor(0)

		for _, e := range entries {
			replay.ReplayedPoints += e.Delta
			switch e.Reason {
			case models.CardEntryEarn:
				replay.ReplayedTier, _ = earnTier(table, replay.ReplayedTier, replay.ReplayedPoints)
			default:
				replay.ReplayedTier, _ = table.TierFor(replay.ReplayedPoints)
			}
		}
		return nil
	})

	return replay, err
}

// Lock the card, apply fn and save the card together with its journal entry
func (s *Service) change(
	ctx context.Context,
	cardID uuid.UUID,
	fn func(models.LoyaltyCard, models.TierTable) (models.LoyaltyCard, models.CardEntry, error),
) (models.LoyaltyCard, error) {
	var card models.LoyaltyCard

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		current, err := st.Card().GetCard(ctx, cardID, true)
		if err != nil {
			return err
		}
		table, err := s.directory.TierThresholds(current.MerchantID)
		if err != nil {
			return err
		}

		changed, entry, err := fn(current, table)
		if err != nil {
			return err
		}

		now := s.now()
		changed.UpdatedAt = now
		card, err = st.Card().UpdateCard(ctx, changed)
		if err != nil {
			return err
		}

		entry.ID = uuid.New()
		entry.CardID = cardID
		entry.CreatedAt = now
		_, err = st.Card().CreateEntry(ctx, entry)
		return err
	})

	return card, err
}

// Tier after earning: the higher of the held tier and the one reached with points
func earnTier(table models.TierTable, current models.Tier, points int64) (models.Tier, int64) {
	reached, _ := table.TierFor(points)
	tier := models.MaxTier(current, reached)
	return tier, table.NextThreshold(tier)
}
