package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/venuewallet/internal/handlers/accountctx"
	"github.com/nkiryanov/venuewallet/internal/handlers/render"
	"github.com/nkiryanov/venuewallet/internal/logger"
	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/money"
)

// Write wallet error, server side failures are logged
func walletError(w http.ResponseWriter, l logger.Logger, msg string, err error) {
	if render.WalletStatus(err) >= http.StatusInternalServerError {
		l.Error(msg, "error", err)
	}
	render.WalletError(w, err)
}

// Account set by auth middleware, missing account means the route is not protected
func currentAccount(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountID, ok := accountctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
	}
	return accountID, ok
}

// Minor units of a request amount, writes validation error on failure
func minorAmount(w http.ResponseWriter, field string, amount decimal.Decimal) (int64, bool) {
	minor, err := money.FromMajor(amount)
	switch {
	case errors.Is(err, money.ErrTooPrecise):
		render.FieldError(w, field, "Too many fractional digits")
		return 0, false
	case err != nil:
		render.FieldError(w, field, "Amount is out of range")
		return 0, false
	case minor <= 0:
		render.FieldError(w, field, "Amount must be positive")
		return 0, false
	}
	return minor, true
}

func handleBalance(ws walletService, l logger.Logger) http.Handler {
	type response struct {
		Balance  decimal.Decimal `json:"balance"`
		Currency string          `json:"currency"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		balance, err := ws.GetBalance(r.Context(), accountID)
		if err != nil {
			walletError(w, l, "Failed to get balance", err)
			return
		}

		render.JSON(w, response{Balance: money.ToMajor(balance), Currency: ws.Currency()})
	})
}

func handleTopUp(ws walletService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}
		amount, ok := minorAmount(w, "amount", req.Amount)
		if !ok {
			return
		}

		trx, err := ws.TopUp(r.Context(), accountID, amount)
		if err != nil {
			walletError(w, l, "Failed to top up", err)
			return
		}

		render.JSONWithStatus(w, newTransactionView(trx), http.StatusCreated)
	})
}

func handlePurchase(ws walletService, l logger.Logger) http.Handler {
	type request struct {
		MerchantID  string          `json:"merchant_id" validate:"required,slug"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category" validate:"max=64"`
		LocationRef *string         `json:"location_ref" validate:"omitempty,max=128"`
	}

	type response struct {
		Transaction  transactionView `json:"transaction"`
		PointsEarned int64           `json:"points_earned"`
		Card         cardView        `json:"card"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}
		amount, ok := minorAmount(w, "amount", req.Amount)
		if !ok {
			return
		}

		purchase, err := ws.Purchase(r.Context(), accountID, models.PurchaseRequest{
			MerchantID:  req.MerchantID,
			Amount:      amount,
			Category:    req.Category,
			LocationRef: req.LocationRef,
		})
		if err != nil {
			walletError(w, l, "Failed to purchase", err)
			return
		}

		render.JSONWithStatus(w, response{
			Transaction:  newTransactionView(purchase.Transaction),
			PointsEarned: purchase.PointsEarned,
			Card:         newCardView(purchase.Card),
		}, http.StatusCreated)
	})
}

func handleTransfer(ws walletService, l logger.Logger) http.Handler {
	type request struct {
		To     string          `json:"to" validate:"required,uuid"`
		Amount decimal.Decimal `json:"amount"`
	}

	type response struct {
		Debit  transactionView `json:"debit"`
		Credit transactionView `json:"credit"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}
		amount, ok := minorAmount(w, "amount", req.Amount)
		if !ok {
			return
		}
		to := uuid.MustParse(req.To) // validated above

		debit, credit, err := ws.Transfer(r.Context(), accountID, to, amount)
		if err != nil {
			walletError(w, l, "Failed to transfer", err)
			return
		}

		render.JSONWithStatus(w, response{
			Debit:  newTransactionView(debit),
			Credit: newTransactionView(credit),
		}, http.StatusCreated)
	})
}

// Query: kind (repeated or comma separated), since, until (RFC 3339), limit, cursor
func handleListTransactions(ws walletService, l logger.Logger) http.Handler {
	type response struct {
		Transactions []transactionView `json:"transactions"`
		NextCursor   string            `json:"next_cursor,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		filter, ok := transactionFilter(w, r)
		if !ok {
			return
		}

		page, err := ws.ListTransactions(r.Context(), accountID, filter)
		if err != nil {
			walletError(w, l, "Failed to list transactions", err)
			return
		}

		render.JSON(w, response{
			Transactions: mapSlice(page.Transactions, newTransactionView),
			NextCursor:   encodeCursor(page.Next),
		})
	})
}

func transactionFilter(w http.ResponseWriter, r *http.Request) (models.TransactionFilter, bool) {
	var filter models.TransactionFilter
	query := r.URL.Query()

	for _, value := range query["kind"] {
		for _, k := range strings.Split(value, ",") {
			kind := models.TransactionKind(strings.TrimSpace(k))
			if !kind.Valid() {
				render.FieldError(w, "kind", "Unknown transaction kind")
				return filter, false
			}
			filter.Kinds = append(filter.Kinds, kind)
		}
	}

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		value := query.Get(bound.name)
		if value == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, value)
		if err != nil {
			render.FieldError(w, bound.name, "Must be an RFC 3339 timestamp")
			return filter, false
		}
		*bound.dst = &at
	}

	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil {
			render.FieldError(w, "limit", "Must be an integer")
			return filter, false
		}
		filter.Limit = limit
	}

	after, err := decodeCursor(query.Get("cursor"))
	if err != nil {
		render.WalletError(w, err)
		return filter, false
	}
	filter.After = after

	return filter, true
}

func handleListCards(ws walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		cards, err := ws.ListLoyaltyCards(r.Context(), accountID)
		if err != nil {
			walletError(w, l, "Failed to list loyalty cards", err)
			return
		}

		render.JSON(w, mapSlice(cards, newCardView))
	})
}

func handleListRedemptions(ws walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		records, err := ws.ListRedemptions(r.Context(), accountID)
		if err != nil {
			walletError(w, l, "Failed to list redemptions", err)
			return
		}

		render.JSON(w, mapSlice(records, newRedemptionView))
	})
}

func handleReconcile(ws walletService, l logger.Logger) http.Handler {
	type balance struct {
		Stored       decimal.Decimal `json:"stored"`
		Replayed     decimal.Decimal `json:"replayed"`
		Transactions int             `json:"transactions"`
	}
	type card struct {
		CardID         uuid.UUID `json:"card_id"`
		StoredPoints   int64     `json:"stored_points"`
		ReplayedPoints int64     `json:"replayed_points"`
		StoredTier     string    `json:"stored_tier"`
		ReplayedTier   string    `json:"replayed_tier"`
	}
	type response struct {
		Consistent bool    `json:"consistent"`
		Balance    balance `json:"balance"`
		Cards      []card  `json:"cards"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := currentAccount(w, r)
		if !ok {
			return
		}

		rec, err := ws.Reconcile(r.Context(), accountID)
		if err != nil {
			walletError(w, l, "Failed to reconcile account", err)
			return
		}

		render.JSON(w, response{
			Consistent: rec.Consistent(),
			Balance: balance{
				Stored:       money.ToMajor(rec.Balance.Stored),
				Replayed:     money.ToMajor(rec.Balance.Replayed),
				Transactions: rec.Balance.Count,
			},
			Cards: mapSlice(rec.Cards, func(c models.CardReplay) card {
				return card{
					CardID:         c.CardID,
					StoredPoints:   c.StoredPoints,
					ReplayedPoints: c.ReplayedPoints,
					StoredTier:     string(c.StoredTier),
					ReplayedTier:   string(c.ReplayedTier),
				}
			}),
		})
	})
}
