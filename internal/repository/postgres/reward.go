package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
)

type RewardRepo struct {
	DB DBTX
}

const rewardColumns = `id, merchant_id, title, points_cost, valid_from, valid_until, credit_amount`

const upsertReward = `-- name: UpsertReward
INSERT INTO rewards (` + rewardColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	merchant_id = EXCLUDED.merchant_id,
	title = EXCLUDED.title,
	points_cost = EXCLUDED.points_cost,
	valid_from = EXCLUDED.valid_from,
	valid_until = EXCLUDED.valid_until,
	credit_amount = EXCLUDED.credit_amount
RETURNING ` + rewardColumns

func (r *RewardRepo) UpsertReward(ctx context.Context, rw models.Reward) (models.Reward, error) {
	rows, _ := r.DB.Query(ctx, upsertReward, rw.ID, rw.MerchantID, rw.Title, rw.PointsCost, rw.ValidFrom, rw.ValidUntil, rw.CreditAmount)
	reward, err := pgx.CollectOneRow(rows, rowToReward)

	switch {
	case err == nil:
		return reward, nil
	case isViolation(err, pgerrcode.CheckViolation, ""):
		return reward, apperrors.ErrInvalidRewardConfig
	default:
		return reward, dbError(err)
	}
}

const getReward = `-- name: GetReward
SELECT ` + rewardColumns + ` FROM rewards
WHERE id = $1
`

func (r *RewardRepo) GetReward(ctx context.Context, rewardID string) (models.Reward, error) {
	rows, _ := r.DB.Query(ctx, getReward, rewardID)
	reward, err := pgx.CollectOneRow(rows, rowToReward)

	switch {
	case err == nil:
		return reward, nil
	case errors.Is(err, pgx.ErrNoRows):
		return reward, apperrors.ErrRewardNotFound
	default:
		return reward, dbError(err)
	}
}

const listActiveRewards = `-- name: ListActiveRewards
SELECT ` + rewardColumns + ` FROM rewards
WHERE valid_from <= $1 AND valid_until >= $1 AND ($2::text = '' OR merchant_id = $2)
ORDER BY merchant_id, points_cost, id
`

func (r *RewardRepo) ListActiveRewards(ctx context.Context, merchantID string, at time.Time) ([]models.Reward, error) {
	rows, _ := r.DB.Query(ctx, listActiveRewards, at, merchantID)
	rewards, err := pgx.CollectRows(rows, rowToReward)
	if err != nil {
		return nil, dbError(err)
	}

	return rewards, nil
}

func rowToReward(row pgx.CollectableRow) (models.Reward, error) {
	var rw models.Reward
	err := row.Scan(&rw.ID, &rw.MerchantID, &rw.Title, &rw.PointsCost, &rw.ValidFrom, &rw.ValidUntil, &rw.CreditAmount)
	return rw, err
}
