package repository

import (
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("record not found")

// InitDB creates the tables the orchestrator writes to if they are missing.
func InitDB(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			user_id BIGINT NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			product_price BIGINT NOT NULL,
			total_amount BIGINT NOT NULL,
			point_amount BIGINT,
			card_amount BIGINT,
			terms_agreed BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			order_id VARCHAR(64) NOT NULL UNIQUE REFERENCES orders(id),
			pg_provider VARCHAR(50) NOT NULL,
			payment_method VARCHAR(20) NOT NULL,
			amount BIGINT NOT NULL,
			point_amount BIGINT,
			card_amount BIGINT,
			pg_tid VARCHAR(255) UNIQUE,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS payment_requests (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			order_id VARCHAR(64) NOT NULL,
			request_type VARCHAR(20) NOT NULL,
			pg_provider VARCHAR(50) NOT NULL,
			amount BIGINT NOT NULL,
			request_data TEXT,
			response_data TEXT,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_requests_order_id ON payment_requests(order_id)`,
		`CREATE TABLE IF NOT EXISTS points (
			user_id BIGINT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
