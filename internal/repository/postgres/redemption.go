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

type RedemptionRepo struct {
	DB DBTX
}

const redemptionColumns = `id, account_id, reward_id, card_id, points_deducted, created_at, resulting_transaction_id`

const createRedemption = `-- name: CreateRedemption
INSERT INTO redemption_records (` + redemptionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + redemptionColumns

func (r *RedemptionRepo) CreateRedemption(ctx context.Context, rec models.RedemptionRecord) (models.RedemptionRecord, error) {
	rows, _ := r.DB.Query(ctx, createRedemption,
		rec.ID, rec.AccountID, rec.RewardID, rec.CardID, rec.PointsDeducted, rec.CreatedAt, rec.ResultingTransactionID,
	)
	created, err := pgx.CollectOneRow(rows, rowToRedemption)

	switch {
	case err == nil:
		return created, nil
	case isViolation(err, pgerrcode.UniqueViolation, "redemption_records_account_id_reward_id_key"):
		return created, apperrors.ErrAlreadyClaimed
	case isViolation(err, pgerrcode.ForeignKeyViolation, ""):
		return created, apperrors.ErrNotFound
	default:
		return created, dbError(err)
	}
}

const getRedemption = `-- name: GetRedemption
SELECT ` + redemptionColumns + ` FROM redemption_records
WHERE account_id = $1 AND reward_id = $2
`

func (r *RedemptionRepo) GetRedemption(ctx context.Context, accountID uuid.UUID, rewardID string) (models.RedemptionRecord, error) {
	rows, _ := r.DB.Query(ctx, getRedemption, accountID, rewardID)
	rec, err := pgx.CollectOneRow(rows, rowToRedemption)

	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, pgx.ErrNoRows):
		return rec, apperrors.ErrRedemptionNotFound
	default:
		return rec, dbError(err)
	}
}

const listRedemptions = `-- name: ListRedemptions
SELECT ` + redemptionColumns + ` FROM redemption_records
WHERE account_id = $1
ORDER BY created_at DESC, id DESC
`

func (r *RedemptionRepo) ListRedemptions(ctx context.Context, accountID uuid.UUID) ([]models.RedemptionRecord, error) {
	rows, _ := r.DB.Query(ctx, listRedemptions, accountID)
	records, err := pgx.CollectRows(rows, rowToRedemption)
	if err != nil {
		return nil, dbError(err)
	}

	return records, nil
}

func rowToRedemption(row pgx.CollectableRow) (models.RedemptionRecord, error) {
	var rec models.RedemptionRecord
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.RewardID, &rec.CardID, &rec.PointsDeducted, &rec.CreatedAt, &rec.ResultingTransactionID)
	return rec, err
}
