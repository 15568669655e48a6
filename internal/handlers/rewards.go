package handlers

import (
	"net/http"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/handlers/render"
	"github.com/nkiryanov/venuewallet/internal/logger"
)

// Active rewards with the claimed flag of the current account
// Query: merchant, only rewards of the merchant are returned when set
func handleListRewards(ws walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		merchantID := r.URL.Query().Get("merchant")
		if err := render.ValidateVar(merchantID, "slug"); err != nil {
			render.FieldError(w, "merchant", "Invalid merchant id")
			return
		}

		offers, err := ws.ListActiveRewards(r.Context(), accountID, merchantID)
		if err != nil {
			walletError(w, l, "Failed to list rewards", err)
			return
		}

		render.JSON(w, mapSlice(offers, newRewardView))
	})
}

func handleClaimReward(ws walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		rewardID := r.PathValue("id")
		if err := render.ValidateVar(rewardID, "required,slug"); err != nil {
			render.WalletError(w, apperrors.ErrRewardUnavailable)
			return
		}

		record, err := ws.ClaimReward(r.Context(), accountID, rewardID)
		if err != nil {
			walletError(w, l, "Failed to claim reward", err)
			return
		}

		render.JSONWithStatus(w, newRedemptionView(record), http.StatusCreated)
	})
}
