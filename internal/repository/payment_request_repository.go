package repository

import (
	"context"
	"database/sql"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

// PaymentRequestRepository is append-only.
type PaymentRequestRepository struct {
	db *sql.DB
}

var _ interfaces.PaymentRequestRepository = (*PaymentRequestRepository)(nil)

func NewPaymentRequestRepository(db *sql.DB) *PaymentRequestRepository {
	return &PaymentRequestRepository{db: db}
}

func (r *PaymentRequestRepository) Save(ctx context.Context, e *models.PaymentRequestLog) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO payment_requests (user_id, order_id, request_type, pg_provider, amount,
			request_data, response_data, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, e.UserID, e.OrderID, e.RequestType, e.PGProvider, e.Amount,
		e.RequestData, e.ResponseData, e.Status,
	).Scan(&e.ID, &e.CreatedAt)
}
