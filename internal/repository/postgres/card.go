package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
)

type CardRepo struct {
	DB DBTX
}

const cardColumns = `id, account_id, merchant_id, points, tier, next_tier_points, created_at, updated_at`

// Create card or return the existing one for (account, merchant)
const createCard = `-- name: CreateCard
WITH inserted AS (
	INSERT INTO loyalty_cards (` + cardColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (account_id, merchant_id) DO NOTHING
	RETURNING ` + cardColumns + `
)
SELECT ` + cardColumns + ` FROM inserted
UNION ALL
SELECT ` + cardColumns + ` FROM loyalty_cards WHERE account_id = $2 AND merchant_id = $3
`

func (r *CardRepo) CreateCard(ctx context.Context, c models.LoyaltyCard) (models.LoyaltyCard, error) {
	rows, _ := r.DB.Query(ctx, createCard, c.ID, c.AccountID, c.MerchantID, c.Points, c.Tier, c.NextTierPoints, c.CreatedAt, c.UpdatedAt)
	card, err := pgx.CollectOneRow(rows, rowToCard)

	switch {
	case err == nil:
		return card, nil
	case isViolation(err, pgerrcode.ForeignKeyViolation, ""):
		return card, apperrors.ErrAccountNotFound
	default:
		return card, dbError(err)
	}
}

const getCard = `-- name: GetCard
SELECT ` + cardColumns + ` FROM loyalty_cards
WHERE id = $1
`

func (r *CardRepo) GetCard(ctx context.Context, cardID uuid.UUID, forUpdate bool) (models.LoyaltyCard, error) {
	rows, _ := r.DB.Query(ctx, getCard+forUpdateClause(forUpdate), cardID)
	card, err := pgx.CollectOneRow(rows, rowToCard)

	switch {
	case err == nil:
		return card, nil
	case errors.Is(err, pgx.ErrNoRows):
		return card, apperrors.ErrCardNotFound
	default:
		return card, dbError(err)
	}
}

const listCards = `-- name: ListCards
SELECT ` + cardColumns + ` FROM loyalty_cards
WHERE account_id = $1 AND ($2::text = '' OR merchant_id = $2)
ORDER BY id
`

func (r *CardRepo) ListCards(ctx context.Context, accountID uuid.UUID, merchantID string, forUpdate bool) ([]models.LoyaltyCard, error) {
	rows, _ := r.DB.Query(ctx, listCards+forUpdateClause(forUpdate), accountID, merchantID)
	cards, err := pgx.CollectRows(rows, rowToCard)
	if err != nil {
		return nil, dbError(err)
	}

	return cards, nil
}

const updateCard = `-- name: UpdateCard
UPDATE loyalty_cards
SET points = $2, tier = $3, next_tier_points = $4, updated_at = $5
WHERE id = $1
RETURNING ` + cardColumns

func (r *CardRepo) UpdateCard(ctx context.Context, c models.LoyaltyCard) (models.LoyaltyCard, error) {
	rows, _ := r.DB.Query(ctx, updateCard, c.ID, c.Points, c.Tier, c.NextTierPoints, c.UpdatedAt)
	card, err := pgx.CollectOneRow(rows, rowToCard)

	switch {
	case err == nil:
		return card, nil
	case errors.Is(err, pgx.ErrNoRows):
		return card, apperrors.ErrCardNotFound
	case isViolation(err, pgerrcode.CheckViolation, ""):
		return card, apperrors.ErrInsufficientPoints
	default:
		return card, dbError(err)
	}
}

const entryColumns = `id, card_id, delta, reason, reference, created_at`

const createEntry = `-- name: CreateCardEntry
INSERT INTO loyalty_card_entries (` + entryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + entryColumns

func (r *CardRepo) CreateEntry(ctx context.Context, e models.CardEntry) (models.CardEntry, error) {
	rows, _ := r.DB.Query(ctx, createEntry, e.ID, e.CardID, e.Delta, e.Reason, e.Reference, e.CreatedAt)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	switch {
	case err == nil:
		return entry, nil
	case isViolation(err, pgerrcode.ForeignKeyViolation, ""):
		return entry, apperrors.ErrCardNotFound
	default:
		return entry, dbError(err)
	}
}

const listEntries = `-- name: ListCardEntries
SELECT ` + entryColumns + ` FROM loyalty_card_entries
WHERE card_id = $1
ORDER BY seq
`

func (r *CardRepo) ListEntries(ctx context.Context, cardID uuid.UUID) ([]models.CardEntry, error) {
	rows, _ := r.DB.Query(ctx, listEntries, cardID)
	entries, err := pgx.CollectRows(rows, rowToEntry)
	if err != nil {
		return nil, dbError(err)
	}

	return entries, nil
}

func rowToCard(row pgx.CollectableRow) (models.LoyaltyCard, error) {
	var c models.LoyaltyCard
	err := row.Scan(&c.ID, &c.AccountID, &c.MerchantID, &c.Points, &c.Tier, &c.NextTierPoints, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func rowToEntry(row pgx.CollectableRow) (models.CardEntry, error) {
	var e models.CardEntry
	err := row.Scan(&e.ID, &e.CardID, &e.Delta, &e.Reason, &e.Reference, &e.CreatedAt)
	return e, err
}
