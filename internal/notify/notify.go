// Package notify delivers wallet events to the venue notification service.
// Delivery is fire-and-forget: a failed notification never affects the wallet operation.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/venuewallet/internal/logger"
)

type Kind string

const (
	KindTopUp           Kind = "wallet.topup"
	KindPurchase        Kind = "wallet.purchase"
	KindTransfer        Kind = "wallet.transfer"
	KindAccountArchived Kind = "wallet.account_archived"
	KindPointsEarned    Kind = "loyalty.points_earned"
	KindRewardClaimed   Kind = "loyalty.reward_claimed"
)

type Event struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Kind      Kind      `json:"kind"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Notifier interface {
	// Must not block the caller for long and must not fail the caller
	Notify(ctx context.Context, accountID uuid.UUID, kind Kind, payload any)
}

// Notifier that only writes events to the log
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(l logger.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Notify(_ context.Context, accountID uuid.UUID, kind Kind, payload any) {
	n.logger.Info("Wallet event", "account_id", accountID, "kind", kind, "payload", payload)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, uuid.UUID, Kind, any) {}
