package models

import "time"

type TxStatus string

const (
	TxPrepared         TxStatus = "PREPARED"
	TxPending          TxStatus = "PENDING"
	TxApproved         TxStatus = "APPROVED"
	TxFailed           TxStatus = "FAILED"
	TxCancelled        TxStatus = "CANCELLED"
	TxNetworkCancelled TxStatus = "NETWORK_CANCELLED"

	// TxAuthenticated is the state of a transaction the gateway has authenticated
	// and that now waits for approval.
	TxAuthenticated = TxPending
)

// Terminal reports whether no further transition is allowed from s.
func (s TxStatus) Terminal() bool {
	switch s {
	case TxApproved, TxFailed, TxCancelled, TxNetworkCancelled:
		return true
	}
	return false
}

// PaymentTransaction is the in-flight record of one authenticate/approve window.
type PaymentTransaction struct {
	Tid         string     `json:"tid"`
	OrderID     string     `json:"order_id"`
	UserID      int64      `json:"user_id,omitempty"`
	Amount      int64      `json:"amount"`
	Provider    string     `json:"provider"`
	Status      TxStatus   `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}
