package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

var (
	ErrInsufficientPoints = errors.New("insufficient points balance")
	ErrLockHeld           = errors.New("lock is held by another request")
)

// TransactionStore holds in-flight payment transactions by tid and by order id.
// Lookups return (nil, nil) on a miss. Implementations are safe for concurrent use.
type TransactionStore interface {
	Get(ctx context.Context, tid string) (*models.PaymentTransaction, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	Put(ctx context.Context, tx *models.PaymentTransaction) error
	Remove(ctx context.Context, tid string) error
}

// Locker serializes work on a single key across requests.
type Locker interface {
	// Acquire returns a token identifying this holder, or ErrLockHeld if
	// another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Release frees key only while token still owns it.
	Release(ctx context.Context, key, token string) error
}

// EventPublisher fans payment state changes out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event models.PaymentEvent) error
}
