package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/repository"
	"github.com/nkiryanov/venuewallet/internal/testutil"
)

func newCard(accountID uuid.UUID, merchantID string, at time.Time) models.LoyaltyCard {
	return models.LoyaltyCard{
		ID:             uuid.New(),
		AccountID:      accountID,
		MerchantID:     merchantID,
		Tier:           models.TierBronze,
		NextTierPoints: 500,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestCard(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	at := testutil.MustParseTime(t, "2025-05-01 12:00:00Z")

	t.Run("CreateCard", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account, err := storage.Ledger().CreateAccount(t.Context(), uuid.New(), "EUR")
			require.NoError(t, err)

			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					card := newCard(account.ID, "cafe-aurora", at)

					created, err := storage.Card().CreateCard(t.Context(), card)

					require.NoError(t, err)
					require.Equal(t, card.ID, created.ID)
					require.Equal(t, "cafe-aurora", created.MerchantID)
					require.Equal(t, int64(0), created.Points)
					require.Equal(t, models.TierBronze, created.Tier)
					require.Equal(t, int64(500), created.NextTierPoints)
				})
			})

			t.Run("second card for same merchant returns first", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					first, err := storage.Card().CreateCard(t.Context(), newCard(account.ID, "cafe-aurora", at))
					require.NoError(t, err)

					second, err := storage.Card().CreateCard(t.Context(), newCard(account.ID, "cafe-aurora", at))

					require.NoError(t, err)
					require.Equal(t, first.ID, second.ID)
				})
			})

			t.Run("unknown account", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Card().CreateCard(t.Context(), newCard(uuid.New(), "cafe-aurora", at))

					require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
				})
			})
		})
	})

	t.Run("GetCard", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			account, err := storage.Ledger().CreateAccount(t.Context(), uuid.New(), "EUR")
			require.NoError(t, err)
			created, err := storage.Card().CreateCard(t.Context(), newCard(account.ID, "cafe-aurora", at))
			require.NoError(t, err)

			card, err := storage.Card().GetCard(t.Context(), created.ID, true)
			require.NoError(t, err)
			require.Equal(t, created, card)

			_, err = storage.Card().GetCard(t.Context(), uuid.New(), false)
			require.ErrorIs(t, err, apperrors.ErrCardNotFound)
		})
	})

	t.Run("ListCards", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			account, err := storage.Ledger().CreateAccount(t.Context(), uuid.New(), "EUR")
			require.NoError(t, err)
			other, err := storage.Ledger().CreateAccount(t.Context(), uuid.New(), "EUR")
			require.NoError(t, err)

			for _, merchant := range []string{"cafe-aurora", "bar-nebula", "shop-orbit"} {
				_, err := storage.Card().CreateCard(t.Context(), newCard(account.ID, merchant, at))
				require.NoError(t, err)
			}
			_, err = storage.Card().CreateCard(t.Context(), newCard(other.ID, "cafe-aurora", at))
			require.NoError(t, err)

			all, err := storage.Card().ListCards(t.Context(), account.ID, "", false)
			require.NoError(t, err)
			require.Len(t, all, 3)
			for i := 1; i < len(all); i++ {
				require.Less(t, all[i-1].ID.String(), all[i].ID.String(), "cards must be ordered by id")
			}

			filtered, err := storage.Card().ListCards(t.Context(), account.ID, "bar-nebula", true)
			require.NoError(t, err)
			require.Len(t, filtered, 1)
			require.Equal(t, "bar-nebula", filtered[0].MerchantID)

			none, err := storage.Card().ListCards(t.Context(), uuid.New(), "", false)
			require.NoError(t, err)
			require.Empty(t, none)
		})
	})

	t.Run("UpdateCard", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account, err := storage.Ledger().CreateAccount(t.Context(), uuid.New(), "EUR")
			require.NoError(t, err)
			card, err := storage.Card().CreateCard(t.Context(), newCard(account.ID, "cafe-aurora", at))
			require.NoError(t, err)

			t.Run("update ok", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					card.Points = 800
					card.Tier = models.TierSilver
					card.NextTierPoints = 2000
					card.UpdatedAt = at.Add(time.Hour)

					updated, err := storage.Card().UpdateCard(t.Context(), card)

					require.NoError(t, err)
					require.Equal(t, int64(800), updated.Points)
					require.Equal(t, models.TierSilver, updated.Tier)
					require.Equal(t, int64(2000), updated.NextTierPoints)
					require.True(t, at.Add(time.Hour).Equal(updated.UpdatedAt))
				})
			})

			t.Run("negative points rejected", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					broken := card
					broken.Points = -1

					_, err := storage.Card().UpdateCard(t.Context(), broken)

					require.ErrorIs(t, err, apperrors.ErrInsufficientPoints)
				})
			})

			t.Run("unknown card", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Card().UpdateCard(t.Context(), newCard(account.ID, "cafe-aurora", at))

					require.ErrorIs(t, err, apperrors.ErrCardNotFound)
				})
			})
		})
	})

	t.Run("Entries", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account, err := storage.Ledger().CreateAccount(t.Context(), uuid.New(), "EUR")
			require.NoError(t, err)
			card, err := storage.Card().CreateCard(t.Context(), newCard(account.ID, "cafe-aurora", at))
			require.NoError(t, err)

			t.Run("journal in insertion order", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					ref := uuid.New()
					earn := models.CardEntry{ID: uuid.New(), CardID: card.ID, Delta: 800, Reason: models.CardEntryEarn, CreatedAt: at}
					redeem := models.CardEntry{ID: uuid.New(), CardID: card.ID, Delta: -500, Reason: models.CardEntryRedeem, Reference: &ref, CreatedAt: at}
					again := models.CardEntry{ID: uuid.New(), CardID: card.ID, Delta: 10, Reason: models.CardEntryEarn, CreatedAt: at}

					for _, e := range []models.CardEntry{earn, redeem, again} {
						_, err := storage.Card().CreateEntry(t.Context(), e)
						require.NoError(t, err)
					}

					entries, err := storage.Card().ListEntries(t.Context(), card.ID)

					require.NoError(t, err)
					require.Len(t, entries, 3)
					require.Equal(t, earn.ID, entries[0].ID)
					require.Equal(t, redeem.ID, entries[1].ID)
					require.Equal(t, again.ID, entries[2].ID)
					require.Equal(t, &ref, entries[1].Reference)
					require.Nil(t, entries[0].Reference)
				})
			})

			t.Run("unknown card", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Card().CreateEntry(t.Context(), models.CardEntry{
						ID: uuid.New(), CardID: uuid.New(), Delta: 1, Reason: models.CardEntryEarn, CreatedAt: at,
					})

					require.ErrorIs(t, err, apperrors.ErrCardNotFound)
				})
			})
		})
	})
}
