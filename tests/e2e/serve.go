package e2e

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/venuewallet/internal/directory"
	"github.com/nkiryanov/venuewallet/internal/handlers"
	"github.com/nkiryanov/venuewallet/internal/identity"
	"github.com/nkiryanov/venuewallet/internal/logger"
	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/repository/postgres"
	"github.com/nkiryanov/venuewallet/internal/service/wallet"
	"github.com/nkiryanov/venuewallet/internal/testutil"
)

// Moment every e2e scenario starts at
var Now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type Services struct {
	Wallet   *wallet.Service
	Identity *identity.Provider
	Clock    *testutil.Clock
}

// Authorization header value for the account
func (s Services) Bearer(t *testing.T, accountID uuid.UUID) string {
	token, err := s.Identity.Issue(accountID)
	require.NoError(t, err, "token should be issued")
	return "Bearer " + token.Value
}

// Venue with two merchants and a small catalog
func Directory(t *testing.T) *directory.Directory {
	tiers := models.TierTable{
		{Tier: models.TierBronze, PointsRequired: 0},
		{Tier: models.TierSilver, PointsRequired: 500},
		{Tier: models.TierGold, PointsRequired: 2000},
	}
	dir, err := directory.New(
		directory.Merchant{ID: "cafe-aurora", Name: "Cafe Aurora", Category: "food", EarnRate: decimal.New(1, 0), Tiers: tiers},
		directory.Merchant{ID: "bar-nebula", Name: "Bar Nebula", Category: "drinks", EarnRate: decimal.New(2, 0), Tiers: tiers},
	)
	require.NoError(t, err)
	return dir
}

func Catalog() []models.Reward {
	return []models.Reward{
		{ID: "free-coffee", MerchantID: "cafe-aurora", Title: "Free coffee", PointsCost: 500, ValidFrom: Now.AddDate(0, -1, 0), ValidUntil: Now.AddDate(0, 1, 0)},
		{ID: "five-off", Title: "5.00 credit", PointsCost: 40, CreditAmount: 500, ValidFrom: Now.AddDate(0, -1, 0), ValidUntil: Now.AddDate(0, 1, 0)},
		{ID: "winter-deal", MerchantID: "cafe-aurora", Title: "Winter deal", PointsCost: 10, ValidFrom: Now.AddDate(0, -6, 0), ValidUntil: Now.AddDate(0, -3, 0)},
	}
}

// Create db transaction and run server in with that connection (one connection cause one transaction)
// The created transaction passed to inner function: so, you can safely use testutil.InTx with it
func ServeInTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.InTx(dbpool, t, func(tx pgx.Tx) {
		clock := testutil.NewClock(Now)

		ws := wallet.NewService(postgres.NewStorage(tx), Directory(t), "EUR", wallet.WithClock(clock.Now))
		require.NoError(t, ws.SyncCatalog(t.Context(), Catalog()))

		idp, err := identity.New(identity.Config{SecretKey: "test-secret"})
		require.NoError(t, err, "identity provider should be created without errors")

		router := handlers.NewRouter(ws, idp, nil, nil, logger.NewNoOpLogger())

		// Run http server with the router in transaction
		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, Services{Wallet: ws, Identity: idp, Clock: clock})
	})
}

// Do authorized JSON request, return status and body
func Do(t *testing.T, method string, url string, bearer string, body string) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "failed to create request")
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	return resp.StatusCode, string(data)
}
