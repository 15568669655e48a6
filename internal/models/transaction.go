package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionKind string

const (
	TransactionPurchase TransactionKind = "purchase"
	TransactionReward   TransactionKind = "reward"
	TransactionCashback TransactionKind = "cashback"
	TransactionTransfer TransactionKind = "transfer"
	TransactionTopUp    TransactionKind = "topup"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionPurchase, TransactionReward, TransactionCashback, TransactionTransfer, TransactionTopUp:
		return true
	default:
		return false
	}
}

type TransactionStatus string

const (
	// Reserved for asynchronous payment rails, never produced now
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

type Transaction struct {
	ID          uuid.UUID
	Seq         int64 // position in the log, assigned by the store
	AccountID   uuid.UUID
	Kind        TransactionKind
	Amount      int64 // minor units, signed
	Status      TransactionStatus
	CreatedAt   time.Time
	Category    string
	MerchantRef *string
	LocationRef *string

	// Other account of a transfer
	CounterpartyRef *uuid.UUID
}

// Optional descriptive fields of a transaction
type TransactionMeta struct {
	Category    string
	MerchantRef *string
	LocationRef *string
}

// Keyset position in the newest-first transaction list
type PageCursor struct {
	Seq int64
}

type TransactionFilter struct {
	Kinds []TransactionKind
	Since *time.Time // inclusive
	Until *time.Time // exclusive
	Limit int
	After *PageCursor // return transactions older than the cursor
}

type TransactionPage struct {
	Transactions []Transaction
	Next         *PageCursor // nil on the last page
}

type PurchaseRequest struct {
	MerchantID  string
	Amount      int64 // minor units spent, positive
	Category    string
	LocationRef *string
}

// Purchase transaction and the merchant card that earned points for it
type Purchase struct {
	Transaction  Transaction
	Card         LoyaltyCard
	PointsEarned int64
}
