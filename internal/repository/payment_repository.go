package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

var _ interfaces.PaymentRepository = (*PaymentRepository)(nil)

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Save(ctx context.Context, p *models.Payment) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO payments (user_id, order_id, pg_provider, payment_method, amount,
			point_amount, card_amount, pg_tid, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, p.UserID, p.OrderID, p.PGProvider, p.PaymentMethod, p.Amount,
		nullInt64(p.PointAmount), nullInt64(p.CardAmount), nullString(p.PGTid), p.Status,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *PaymentRepository) FindByTid(ctx context.Context, tid string) (*models.Payment, error) {
	var (
		p           models.Payment
		point, card sql.NullInt64
		pgTid       sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, order_id, pg_provider, payment_method, amount, point_amount,
			card_amount, pg_tid, status, created_at
		FROM payments WHERE pg_tid = $1
	`, tid).Scan(&p.ID, &p.UserID, &p.OrderID, &p.PGProvider, &p.PaymentMethod, &p.Amount,
		&point, &card, &pgTid, &p.Status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.PointAmount = int64Ptr(point)
	p.CardAmount = int64Ptr(card)
	p.PGTid = pgTid.String
	return &p, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, id int64, status models.PaymentStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PaymentRepository) TransitionStatus(ctx context.Context, id int64, from, to models.PaymentStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
