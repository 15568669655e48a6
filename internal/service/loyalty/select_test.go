package loyalty

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
)

func TestSelectCard(t *testing.T) {
	low := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	mid := uuid.MustParse("20000000-0000-0000-0000-000000000000")
	high := uuid.MustParse("30000000-0000-0000-0000-000000000000")

	card := func(id uuid.UUID, merchant string, points int64) models.LoyaltyCard {
		return models.LoyaltyCard{ID: id, MerchantID: merchant, Points: points}
	}

	tests := []struct {
		name     string
		cards    []models.LoyaltyCard
		merchant string
		expected uuid.UUID
	}{
		{
			name:     "only merchant card",
			cards:    []models.LoyaltyCard{card(low, "bar-nebula", 900), card(mid, "cafe-aurora", 100)},
			merchant: "cafe-aurora",
			expected: mid,
		},
		{
			name:     "agnostic reward picks most points",
			cards:    []models.LoyaltyCard{card(low, "bar-nebula", 100), card(mid, "cafe-aurora", 900), card(high, "shop-orbit", 500)},
			merchant: "",
			expected: mid,
		},
		{
			name:     "tie goes to lowest id",
			cards:    []models.LoyaltyCard{card(high, "bar-nebula", 500), card(low, "cafe-aurora", 500), card(mid, "shop-orbit", 500)},
			merchant: "",
			expected: low,
		},
		{
			name:     "empty card still eligible",
			cards:    []models.LoyaltyCard{card(high, "cafe-aurora", 0)},
			merchant: "cafe-aurora",
			expected: high,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			selected, err := SelectCard(tc.cards, tc.merchant)

			require.NoError(t, err)
			require.Equal(t, tc.expected, selected.ID)
		})
	}

	t.Run("no card of merchant", func(t *testing.T) {
		_, err := SelectCard([]models.LoyaltyCard{card(low, "bar-nebula", 900)}, "cafe-aurora")

		require.ErrorIs(t, err, apperrors.ErrNoEligibleCard)
	})

	t.Run("no cards at all", func(t *testing.T) {
		_, err := SelectCard(nil, "")

		require.ErrorIs(t, err, apperrors.ErrNoEligibleCard)
	})
}
