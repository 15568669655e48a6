// Package catalog serves the shared reward catalog.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/repository"
)

type merchantDirectory interface {
	MerchantExists(merchantID string) bool
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

// Reward claimable right now
// Missing rewards and rewards outside of their validity window return apperrors.ErrRewardNotFound
func (s *Service) GetReward(ctx context.Context, rewardID string) (models.Reward, error) {
	reward, err := s.storage.Reward().GetReward(ctx, rewardID)
	if err != nil {
		return reward, err
	}

	if now := s.now(); !reward.ActiveAt(now) {
		return reward, fmt.Errorf("reward %q is not active at %s: %w", rewardID, now.Format(time.RFC3339), apperrors.ErrRewardNotFound)
	}

	return reward, nil
}

// Rewards active now, of one merchant or of all when merchantID is empty
// Merchant filter is an exact match, merchant-agnostic rewards are not included
func (s *Service) ListActiveRewards(ctx context.Context, merchantID string) ([]models.Reward, error) {
	return s.storage.Reward().ListActiveRewards(ctx, merchantID, s.now())
}

// Insert or update catalog entries, all or nothing
func (s *Service) Sync(ctx context.Context, rewards []models.Reward) error {
	seen := make(map[string]struct{}, len(rewards))
	for _, rw := range rewards {
		if err := s.validate(rw); err != nil {
			return err
		}
		if _, ok := seen[rw.ID]; ok {
			return fmt.Errorf("duplicate reward %q: %w", rw.ID, apperrors.ErrInvalidRewardConfig)
		}
		seen[rw.ID] = struct{}{}
	}

	return s.storage.InTx(ctx, func(st repository.Storage) error {
		for _, rw := range rewards {
			if _, err := st.Reward().UpsertReward(ctx, rw); err != nil {
				return fmt.Errorf("reward %q: %w", rw.ID, err)
			}
		}
		return nil
	})
}

func (s *Service) validate(rw models.Reward) error {
	switch {
	case rw.ID == "":
		return fmt.Errorf("reward id required: %w", apperrors.ErrInvalidRewardConfig)
	case rw.PointsCost <= 0:
		return fmt.Errorf("reward %q points cost must be positive: %w", rw.ID, apperrors.ErrInvalidRewardConfig)
	case rw.CreditAmount < 0:
		return fmt.Errorf("reward %q credit must not be negative: %w", rw.ID, apperrors.ErrInvalidRewardConfig)
	case rw.ValidUntil.Before(rw.ValidFrom):
		return fmt.Errorf("reward %q ends before it starts: %w", rw.ID, apperrors.ErrInvalidRewardConfig)
	case rw.MerchantID != "" && !s.directory.MerchantExists(rw.MerchantID):
		return fmt.Errorf("reward %q: merchant %q: %w", rw.ID, rw.MerchantID, apperrors.ErrInvalidRewardConfig)
	}
	return nil
}
