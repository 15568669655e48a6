package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
)

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Rank of the tier in the ordered set, -1 for unknown tiers
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 0
	case TierSilver:
		return 1
	case TierGold:
		return 2
	case TierPlatinum:
		return 3
	default:
		return -1
	}
}

type TierThreshold struct {
	Tier           Tier  `yaml:"tier"`
	PointsRequired int64 `yaml:"points"`
}

// Thresholds ordered from the lowest tier up
type TierTable []TierThreshold

// Table must start at 0 points and grow strictly in both points and tier
func (t TierTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("empty table: %w", apperrors.ErrInvalidTierTable)
	}
	if t[0].PointsRequired != 0 {
		return fmt.Errorf("first threshold must require 0 points: %w", apperrors.ErrInvalidTierTable)
	}

	for i, th := range t {
		if th.Tier.Rank() < 0 {
			return fmt.Errorf("unknown tier %q: %w", th.Tier, apperrors.ErrInvalidTierTable)
		}
		if i == 0 {
			continue
		}
		prev := t[i-1]
		if th.PointsRequired <= prev.PointsRequired || th.Tier.Rank() <= prev.Tier.Rank() {
			return fmt.Errorf("threshold %q is not above %q: %w", th.Tier, prev.Tier, apperrors.ErrInvalidTierTable)
		}
	}

	return nil
}

// Highest tier reached with points and points required for the following one, 0 on the top tier
// Table must be valid
func (t TierTable) TierFor(points int64) (Tier, int64) {
	idx := 0
	for i, th := range t {
		if points >= th.PointsRequired {
			idx = i
		}
	}

	if idx+1 < len(t) {
		return t[idx].Tier, t[idx+1].PointsRequired
	}
	return t[idx].Tier, 0
}

// Points required for the first tier above tier, 0 if there is none
func (t TierTable) NextThreshold(tier Tier) int64 {
	for _, th := range t {
		if th.Tier.Rank() > tier.Rank() {
			return th.PointsRequired
		}
	}
	return 0
}

func MaxTier(a, b Tier) Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type LoyaltyCard struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	MerchantID     string
	Points         int64
	Tier           Tier
	NextTierPoints int64 // 0 if the card is on the top tier of the merchant table
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CardEntryReason string

const (
	CardEntryEarn   CardEntryReason = "earn"
	CardEntryRedeem CardEntryReason = "redeem"
)

// Append-only points journal, card points always equal the sum of deltas
type CardEntry struct {
	ID        uuid.UUID
	CardID    uuid.UUID
	Delta     int64
	Reason    CardEntryReason
	Reference *uuid.UUID
	CreatedAt time.Time
}

type CardReplay struct {
	CardID         uuid.UUID
	StoredPoints   int64
	ReplayedPoints int64
	StoredTier     Tier
	ReplayedTier   Tier
}

func (r CardReplay) Consistent() bool {
	return r.StoredPoints == r.ReplayedPoints
}
