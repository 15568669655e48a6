package loyalty

import (
	"fmt"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
)

// Card to pay a reward of the merchant with
// Candidates are the merchant cards, or every card when merchantID is empty
// The card with most points wins, ties go to the lowest card id
func SelectCard(cards []models.LoyaltyCard, merchantID string) (models.LoyaltyCard, error) {
	var best models.LoyaltyCard
	found := false

	for _, c := range cards {
		if merchantID != "" && c.MerchantID != merchantID {
			continue
		}

		switch {
		case !found:
			best, found = c, true
		case c.Points > best.Points:
			best = c
		case c.Points == best.Points && c.ID.String() < best.ID.String():
			best = c
		}
	}

	if !found {
		return best, fmt.Errorf("merchant %q: %w", merchantID, apperrors.ErrNoEligibleCard)
	}
	return best, nil
}
