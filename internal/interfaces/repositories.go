package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

// OrderRepository defines the contract for order data access.
// FindByID returns (nil, nil) when the order does not exist.
type OrderRepository interface {
	Save(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
}

// PaymentRepository defines the contract for payment data access.
// FindByTid returns (nil, nil) when no payment carries the tid.
type PaymentRepository interface {
	Save(ctx context.Context, payment *models.Payment) error
	FindByTid(ctx context.Context, tid string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id int64, status models.PaymentStatus) error
	// TransitionStatus moves the payment from one status to another and
	// returns the number of rows changed: 0 when it was no longer in from.
	TransitionStatus(ctx context.Context, id int64, from, to models.PaymentStatus) (int64, error)
}

// PaymentRequestRepository appends to the gateway audit trail.
type PaymentRequestRepository interface {
	Save(ctx context.Context, entry *models.PaymentRequestLog) error
}

// PointsLedger debits and credits a user's points balance.
type PointsLedger interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	// Debit returns ErrInsufficientPoints when the balance does not cover amount.
	Debit(ctx context.Context, userID, amount int64) (int64, error)
	Credit(ctx context.Context, userID, amount int64) (int64, error)
}
