package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID         uuid.UUID
	Balance    int64 // minor units
	Currency   string
	CreatedAt  time.Time
	ArchivedAt *time.Time // nil if account is active
}

func (a Account) IsArchived() bool {
	return a.ArchivedAt != nil
}

// Result of replaying the transaction log against the stored balance
type Reconciliation struct {
	AccountID uuid.UUID
	Stored    int64
	Replayed  int64
	Count     int
}

func (r Reconciliation) Consistent() bool {
	return r.Stored == r.Replayed
}

// Balance and every card of the account replayed from their logs
type AccountReconciliation struct {
	Balance Reconciliation
	Cards   []CardReplay
}

func (r AccountReconciliation) Consistent() bool {
	if !r.Balance.Consistent() {
		return false
	}
	for _, c := range r.Cards {
		if !c.Consistent() {
			return false
		}
	}
	return true
}
