package models

import (
	"time"

	"github.com/google/uuid"
)

type Reward struct {
	ID         string
	MerchantID string // empty for merchant-agnostic rewards
	Title      string
	PointsCost int64
	ValidFrom  time.Time
	ValidUntil time.Time

	// Wallet credit in minor units granted on claim, 0 for pure discounts
	CreditAmount int64
}

func (r Reward) ActiveAt(at time.Time) bool {
	return !at.Before(r.ValidFrom) && !at.After(r.ValidUntil)
}

func (r Reward) GrantsCredit() bool {
	return r.CreditAmount > 0
}

type RedemptionRecord struct {
	ID                     uuid.UUID
	AccountID              uuid.UUID
	RewardID               string
	CardID                 uuid.UUID
	PointsDeducted         int64
	CreatedAt              time.Time
	ResultingTransactionID *uuid.UUID
}

// Active reward as seen by one account
type RewardOffer struct {
	Reward
	Claimed bool
}
