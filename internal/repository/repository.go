package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/venuewallet/internal/models"
)

// Accounts and the append-only transaction log
type LedgerRepo interface {
	// Take transaction scoped exclusive lock on the account
	// Must be called inside a transaction; the lock is released on commit or rollback
	// If lock is not acquired in time must return apperrors.ErrConcurrencyConflict
	LockAccount(ctx context.Context, accountID uuid.UUID) error

	// Create account if it not exists and return the stored one
	CreateAccount(ctx context.Context, accountID uuid.UUID, currency string) (models.Account, error)

	// Get account by id
	// If forUpdate is set the row stays locked until the transaction ends
	// If account not found must return apperrors.ErrAccountNotFound
	GetAccount(ctx context.Context, accountID uuid.UUID, forUpdate bool) (models.Account, error)

	// Add delta to the materialized balance and return updated account
	AddBalance(ctx context.Context, accountID uuid.UUID, delta int64) (models.Account, error)

	// Mark account archived; archiving twice keeps the first timestamp
	ArchiveAccount(ctx context.Context, accountID uuid.UUID, at time.Time) (models.Account, error)

	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)

	// List account transactions newest first
	ListTransactions(ctx context.Context, accountID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, error)
}

// Loyalty cards and their points journal
type CardRepo interface {
	// Create card if there is no card for (account, merchant) yet; return the stored one
	CreateCard(ctx context.Context, card models.LoyaltyCard) (models.LoyaltyCard, error)

	// If card not found must return apperrors.ErrCardNotFound
	GetCard(ctx context.Context, cardID uuid.UUID, forUpdate bool) (models.LoyaltyCard, error)

	// List account cards ordered by id
	// Empty merchantID means cards of all merchants
	ListCards(ctx context.Context, accountID uuid.UUID, merchantID string, forUpdate bool) ([]models.LoyaltyCard, error)

	// Save points, tier and next tier threshold of the card
	UpdateCard(ctx context.Context, card models.LoyaltyCard) (models.LoyaltyCard, error)

	CreateEntry(ctx context.Context, entry models.CardEntry) (models.CardEntry, error)

	// List card journal in insertion order
	ListEntries(ctx context.Context, cardID uuid.UUID) ([]models.CardEntry, error)
}

// Shared reward catalog
type RewardRepo interface {
	UpsertReward(ctx context.Context, reward models.Reward) (models.Reward, error)

	// If reward not found must return apperrors.ErrRewardNotFound
	GetReward(ctx context.Context, rewardID string) (models.Reward, error)

	// List rewards active at the moment
	// Empty merchantID means rewards of all merchants
	ListActiveRewards(ctx context.Context, merchantID string, at time.Time) ([]models.Reward, error)
}

// Per account claim records
type RedemptionRepo interface {
	// If record for (account, reward) exists must return apperrors.ErrAlreadyClaimed
	CreateRedemption(ctx context.Context, record models.RedemptionRecord) (models.RedemptionRecord, error)

	// If record not found must return apperrors.ErrRedemptionNotFound
	GetRedemption(ctx context.Context, accountID uuid.UUID, rewardID string) (models.RedemptionRecord, error)

	// List account redemptions newest first
	ListRedemptions(ctx context.Context, accountID uuid.UUID) ([]models.RedemptionRecord, error)
}

type Storage interface {
	Ledger() LedgerRepo
	Card() CardRepo
	Reward() RewardRepo
	Redemption() RedemptionRepo

	// Run fn in a transaction; nested calls use savepoints
	// Transaction is committed if fn returns nil, rolled back otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
