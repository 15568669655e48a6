package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/money"
)

// JSON views of wallet models, money is rendered in major units

type transactionView struct {
	ID              uuid.UUID       `json:"id"`
	Kind            string          `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	Category        string          `json:"category,omitempty"`
	MerchantRef     *string         `json:"merchant_ref,omitempty"`
	LocationRef     *string         `json:"location_ref,omitempty"`
	CounterpartyRef *uuid.UUID      `json:"counterparty_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func newTransactionView(t models.Transaction) transactionView {
	return transactionView{
		ID:              t.ID,
		Kind:            string(t.Kind),
		Amount:          money.ToMajor(t.Amount),
		Status:          string(t.Status),
		Category:        t.Category,
		MerchantRef:     t.MerchantRef,
		LocationRef:     t.LocationRef,
		CounterpartyRef: t.CounterpartyRef,
		CreatedAt:       t.CreatedAt,
	}
}

type cardView struct {
	ID             uuid.UUID `json:"id"`
	MerchantID     string    `json:"merchant_id"`
	Points         int64     `json:"points"`
	Tier           string    `json:"tier"`
	NextTierPoints int64     `json:"next_tier_points,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newCardView(c models.LoyaltyCard) cardView {
	return cardView{
		ID:             c.ID,
		MerchantID:     c.MerchantID,
		Points:         c.Points,
		Tier:           string(c.Tier),
		NextTierPoints: c.NextTierPoints,
		UpdatedAt:      c.UpdatedAt,
	}
}

type redemptionView struct {
	ID             uuid.UUID  `json:"id"`
	RewardID       string     `json:"reward_id"`
	CardID         uuid.UUID  `json:"card_id"`
	PointsDeducted int64      `json:"points_deducted"`
	TransactionID  *uuid.UUID `json:"transaction_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newRedemptionView(r models.RedemptionRecord) redemptionView {
	return redemptionView{
		ID:             r.ID,
		RewardID:       r.RewardID,
		CardID:         r.CardID,
		PointsDeducted: r.PointsDeducted,
		TransactionID:  r.ResultingTransactionID,
		CreatedAt:      r.CreatedAt,
	}
}

type rewardView struct {
	ID         string           `json:"id"`
	MerchantID string           `json:"merchant_id,omitempty"`
	Title      string           `json:"title"`
	PointsCost int64            `json:"points_cost"`
	Credit     *decimal.Decimal `json:"credit,omitempty"`
	ValidFrom  time.Time        `json:"valid_from"`
	ValidUntil time.Time        `json:"valid_until"`
	Claimed    bool             `json:"claimed"`
}

func newRewardView(o models.RewardOffer) rewardView {
	v := rewardView{
		ID:         o.ID,
		MerchantID: o.MerchantID,
		Title:      o.Title,
		PointsCost: o.PointsCost,
		ValidFrom:  o.ValidFrom,
		ValidUntil: o.ValidUntil,
		Claimed:    o.Claimed,
	}
	if o.CreditAmount > 0 {
		credit := money.ToMajor(o.CreditAmount)
		v.Credit = &credit
	}
	return v
}

func mapSlice[T any, V any](items []T, fn func(T) V) []V {
	views := make([]V, 0, len(items))
	for _, item := range items {
		views = append(views, fn(item))
	}
	return views
}
