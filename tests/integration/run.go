package integration

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/venuewallet/internal/handlers"
	"github.com/nkiryanov/venuewallet/internal/identity"
	"github.com/nkiryanov/venuewallet/internal/logger"
	"github.com/nkiryanov/venuewallet/internal/metrics"
	"github.com/nkiryanov/venuewallet/internal/notify"
	"github.com/nkiryanov/venuewallet/internal/repository/postgres"
	"github.com/nkiryanov/venuewallet/internal/service/wallet"
	"github.com/nkiryanov/venuewallet/tests/e2e"
)

type Services struct {
	e2e.Services
	Registry *prometheus.Registry
}

// Run wallet server over the pool with notifications posted to webhookURL
// Unlike e2e helpers nothing is rolled back: operations commit, so use fresh accounts
func Run(pool *pgxpool.Pool, t *testing.T, webhookURL string, fn func(srvURL string, s Services)) {
	l := logger.NewNoOpLogger()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	dispatcher := notify.NewDispatcher(notify.NewClient(webhookURL, l), l, notify.WithMetrics(m))
	ctx, cancel := context.WithCancel(t.Context())
	stopped := dispatcher.Run(ctx)
	defer func() {
		cancel()
		<-stopped
	}()

	ws := wallet.NewService(postgres.NewStorage(pool), e2e.Directory(t), "EUR",
		wallet.WithNotifier(dispatcher),
		wallet.WithMetrics(m),
		wallet.WithLogger(l),
	)
	require.NoError(t, ws.SyncCatalog(t.Context(), e2e.Catalog()))

	idp, err := identity.New(identity.Config{SecretKey: "test-secret"})
	require.NoError(t, err)

	srv := httptest.NewServer(handlers.NewRouter(ws, idp, m, metrics.Handler(registry), l))
	defer srv.Close()

	fn(srv.URL, Services{
		Services: e2e.Services{Wallet: ws, Identity: idp},
		Registry: registry,
	})
}
