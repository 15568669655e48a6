package wallet

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/venuewallet/internal/testutil"
	"github.com/nkiryanov/venuewallet/tests/e2e"
)

const (
	BalanceURL      = "/api/wallet/balance"
	TopUpURL        = "/api/wallet/topup"
	PurchasesURL    = "/api/wallet/purchases"
	TransfersURL    = "/api/wallet/transfers"
	TransactionsURL = "/api/wallet/transactions"
	CardsURL        = "/api/wallet/cards"
	ReconcileURL    = "/api/wallet/reconcile"
)

type transactionsPage struct {
	Transactions []struct {
		Kind   string `json:"kind"`
		Amount string `json:"amount"`
	} `json:"transactions"`
	NextCursor string `json:"next_cursor"`
}

func Test_Wallet(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	e2e.ServeInTx(pg.Pool, t, func(tx pgx.Tx, srvURL string, s e2e.Services) {
		t.Run("top up and purchases", func(t *testing.T) {
			testutil.InTx(tx, t, func(_ pgx.Tx) {
				bearer := s.Bearer(t, uuid.New())

				status, body := e2e.Do(t, http.MethodPost, srvURL+TopUpURL, bearer, `{"amount": "100.00"}`)
				require.Equalf(t, http.StatusCreated, status, "top up should succeed. Body: %s", body)
				s.Clock.Advance(time.Minute)

				status, body = e2e.Do(t, http.MethodPost, srvURL+PurchasesURL, bearer, `{"merchant_id": "cafe-aurora", "amount": "45.99"}`)
				require.Equalf(t, http.StatusCreated, status, "purchase should succeed. Body: %s", body)
				require.Contains(t, body, `"points_earned":45`)
				require.Contains(t, body, `"category":"food"`, "merchant category is the default")
				s.Clock.Advance(time.Minute)

				status, body = e2e.Do(t, http.MethodPost, srvURL+PurchasesURL, bearer, `{"merchant_id": "cafe-aurora", "amount": "60"}`)
				require.Equal(t, http.StatusPaymentRequired, status)
				require.JSONEq(t, `{"error": "insufficient_funds", "message": "Insufficient balance"}`, body)

				status, body = e2e.Do(t, http.MethodGet, srvURL+BalanceURL, bearer, "")
				require.Equal(t, http.StatusOK, status)
				require.JSONEq(t, `{"balance": "54.01", "currency": "EUR"}`, body)

				status, body = e2e.Do(t, http.MethodGet, srvURL+CardsURL, bearer, "")
				require.Equal(t, http.StatusOK, status)
				var cards []struct {
					MerchantID     string `json:"merchant_id"`
					Points         int64  `json:"points"`
					Tier           string `json:"tier"`
					NextTierPoints int64  `json:"next_tier_points"`
				}
				require.NoError(t, json.Unmarshal([]byte(body), &cards))
				require.Len(t, cards, 1)
				require.Equal(t, "cafe-aurora", cards[0].MerchantID)
				require.Equal(t, int64(45), cards[0].Points)
				require.Equal(t, "bronze", cards[0].Tier)
				require.Equal(t, int64(500), cards[0].NextTierPoints)
			})
		})

		t.Run("transactions are paged newest first", func(t *testing.T) {
			testutil.InTx(tx, t, func(_ pgx.Tx) {
				bearer := s.Bearer(t, uuid.New())
				for _, amount := range []string{"1", "2", "3"} {
					status, _ := e2e.Do(t, http.MethodPost, srvURL+TopUpURL, bearer, fmt.Sprintf(`{"amount": %q}`, amount))
					require.Equal(t, http.StatusCreated, status)
					s.Clock.Advance(time.Minute)
				}

				var seen []string
				url := srvURL + TransactionsURL + "?limit=2"
				for url != "" {
					status, body := e2e.Do(t, http.MethodGet, url, bearer, "")
					require.Equalf(t, http.StatusOK, status, "Body: %s", body)

					var page transactionsPage
					require.NoError(t, json.Unmarshal([]byte(body), &page))
					for _, trx := range page.Transactions {
						require.Equal(t, "topup", trx.Kind)
						seen = append(seen, trx.Amount)
					}

					url = ""
					if page.NextCursor != "" {
						url = srvURL + TransactionsURL + "?limit=2&cursor=" + page.NextCursor
					}
				}

				require.Equal(t, []string{"3", "2", "1"}, seen)

				status, body := e2e.Do(t, http.MethodGet, srvURL+TransactionsURL+"?kind=purchase", bearer, "")
				require.Equal(t, http.StatusOK, status)
				require.JSONEq(t, `{"transactions": []}`, body)
			})
		})

		t.Run("transfer", func(t *testing.T) {
			testutil.InTx(tx, t, func(_ pgx.Tx) {
				alice, bob := uuid.New(), uuid.New()
				aliceBearer, bobBearer := s.Bearer(t, alice), s.Bearer(t, bob)

				status, _ := e2e.Do(t, http.MethodPost, srvURL+TopUpURL, aliceBearer, `{"amount": 20}`)
				require.Equal(t, http.StatusCreated, status)

				status, body := e2e.Do(t, http.MethodPost, srvURL+TransfersURL, aliceBearer, fmt.Sprintf(`{"to": %q, "amount": "7.50"}`, bob))
				require.Equalf(t, http.StatusCreated, status, "Body: %s", body)

				_, body = e2e.Do(t, http.MethodGet, srvURL+BalanceURL, aliceBearer, "")
				require.JSONEq(t, `{"balance": "12.5", "currency": "EUR"}`, body)
				_, body = e2e.Do(t, http.MethodGet, srvURL+BalanceURL, bobBearer, "")
				require.JSONEq(t, `{"balance": "7.5", "currency": "EUR"}`, body)

				status, _ = e2e.Do(t, http.MethodPost, srvURL+TransfersURL, aliceBearer, fmt.Sprintf(`{"to": %q, "amount": 100}`, bob))
				require.Equal(t, http.StatusPaymentRequired, status)

				status, _ = e2e.Do(t, http.MethodPost, srvURL+TransfersURL, aliceBearer, fmt.Sprintf(`{"to": %q, "amount": 1}`, alice))
				require.Equal(t, http.StatusBadRequest, status, "self transfer is rejected")
			})
		})

		t.Run("reconcile", func(t *testing.T) {
			testutil.InTx(tx, t, func(_ pgx.Tx) {
				bearer := s.Bearer(t, uuid.New())
				status, _ := e2e.Do(t, http.MethodPost, srvURL+TopUpURL, bearer, `{"amount": 50}`)
				require.Equal(t, http.StatusCreated, status)
				status, _ = e2e.Do(t, http.MethodPost, srvURL+PurchasesURL, bearer, `{"merchant_id": "bar-nebula", "amount": 10}`)
				require.Equal(t, http.StatusCreated, status)

				status, body := e2e.Do(t, http.MethodGet, srvURL+ReconcileURL, bearer, "")

				require.Equal(t, http.StatusOK, status)
				var rec struct {
					Consistent bool `json:"consistent"`
					Balance    struct {
						Stored       string `json:"stored"`
						Transactions int    `json:"transactions"`
					} `json:"balance"`
					Cards []struct {
						ReplayedPoints int64 `json:"replayed_points"`
					} `json:"cards"`
				}
				require.NoError(t, json.Unmarshal([]byte(body), &rec))
				require.True(t, rec.Consistent)
				require.Equal(t, "40", rec.Balance.Stored)
				require.Equal(t, 2, rec.Balance.Transactions)
				require.Len(t, rec.Cards, 1)
				require.Equal(t, int64(20), rec.Cards[0].ReplayedPoints)
			})
		})

		t.Run("unauthorized request", func(t *testing.T) {
			status, _ := e2e.Do(t, http.MethodGet, srvURL+BalanceURL, "", "")
			require.Equal(t, http.StatusUnauthorized, status)

			status, _ = e2e.Do(t, http.MethodGet, srvURL+BalanceURL, "Bearer not-a-token", "")
			require.Equal(t, http.StatusUnauthorized, status)
		})
	})
}
