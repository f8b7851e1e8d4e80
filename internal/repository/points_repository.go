package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
)

// PointsRepository is the Postgres points ledger. Debit is a single
// conditional UPDATE so two concurrent debits cannot overdraw a balance.
type PointsRepository struct {
	db *sql.DB
}

var _ interfaces.PointsLedger = (*PointsRepository)(nil)

func NewPointsRepository(db *sql.DB) *PointsRepository {
	return &PointsRepository{db: db}
}

func (r *PointsRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx,
		`SELECT balance FROM points WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (r *PointsRepository) Debit(ctx context.Context, userID, amount int64) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE points SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1
		RETURNING balance
	`, amount, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, interfaces.ErrInsufficientPoints
	}
	return balance, err
}

func (r *PointsRepository) Credit(ctx context.Context, userID, amount int64) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO points (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = points.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`, userID, amount).Scan(&balance)
	return balance, err
}
