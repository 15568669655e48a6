package handlers

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nkiryanov/venuewallet/internal/handlers/middleware"
	"github.com/nkiryanov/venuewallet/internal/logger"
	"github.com/nkiryanov/venuewallet/internal/metrics"
	"github.com/nkiryanov/venuewallet/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// NewRouter serves the wallet API for the bearer of an identity token
// metricsHandler is mounted on /metrics when not nil
func NewRouter(
	walletService walletService,
	auth authenticator,
	m *metrics.Metrics,
	metricsHandler http.Handler,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(auth)

	apiwallet := http.NewServeMux()
	apiwallet.Handle("GET /balance", handleBalance(walletService, logger))
	apiwallet.Handle("POST /topup", handleTopUp(walletService, logger))
	apiwallet.Handle("POST /purchases", handlePurchase(walletService, logger))
	apiwallet.Handle("POST /transfers", handleTransfer(walletService, logger))
	apiwallet.Handle("GET /transactions", handleListTransactions(walletService, logger))
	apiwallet.Handle("GET /cards", handleListCards(walletService, logger))
	apiwallet.Handle("GET /redemptions", handleListRedemptions(walletService, logger))
	apiwallet.Handle("GET /reconcile", handleReconcile(walletService, logger))

	root := http.NewServeMux()
	root.Handle("/api/wallet/", http.StripPrefix("/api/wallet", withAuth(apiwallet)))
	root.Handle("GET /api/rewards", withAuth(handleListRewards(walletService, logger)))
	root.Handle("POST /api/rewards/{id}/claim", withAuth(handleClaimReward(walletService, logger)))
	if metricsHandler != nil {
		root.Handle("GET /metrics", metricsHandler)
	}

	handler := chain(root,
		chimw.RequestID,
		middleware.LoggerMiddleware(logger),
		middleware.MetricsMiddleware(m),
		chimw.Recoverer,
	)

	return handler
}

type authenticator interface {
	// Account of the request bearer, error if the request is not authenticated
	Authenticate(r *http.Request) (uuid.UUID, error)
}

type walletService interface {
	Currency() string

	TopUp(ctx context.Context, accountID uuid.UUID, amount int64) (models.Transaction, error)
	Purchase(ctx context.Context, accountID uuid.UUID, req models.PurchaseRequest) (models.Purchase, error)
	Transfer(ctx context.Context, from uuid.UUID, to uuid.UUID, amount int64) (models.Transaction, models.Transaction, error)
	ClaimReward(ctx context.Context, accountID uuid.UUID, rewardID string) (models.RedemptionRecord, error)

	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, filter models.TransactionFilter) (models.TransactionPage, error)
	ListLoyaltyCards(ctx context.Context, accountID uuid.UUID) ([]models.LoyaltyCard, error)
	ListActiveRewards(ctx context.Context, accountID uuid.UUID, merchantID string) ([]models.RewardOffer, error)
	ListRedemptions(ctx context.Context, accountID uuid.UUID) ([]models.RedemptionRecord, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (models.AccountReconciliation, error)
}
