package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

var _ interfaces.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Save(ctx context.Context, order *models.Order) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO orders (id, user_id, product_name, product_price, total_amount,
			point_amount, card_amount, terms_agreed, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, order.ID, order.UserID, order.ProductName, order.ProductPrice, order.TotalAmount,
		nullInt64(order.PointAmount), nullInt64(order.CardAmount), order.TermsAgreed, order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var (
		o           models.Order
		point, card sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, product_name, product_price, total_amount, point_amount,
			card_amount, terms_agreed, status, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.UserID, &o.ProductName, &o.ProductPrice, &o.TotalAmount, &point,
		&card, &o.TermsAgreed, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	o.PointAmount = int64Ptr(point)
	o.CardAmount = int64Ptr(card)
	return &o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return nil
}
