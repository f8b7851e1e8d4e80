package txstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

const (
	tidKeyPrefix   = "pgtx:tid:"
	orderKeyPrefix = "pgtx:order:"
)

// RedisStore keeps transactions as JSON with a TTL, so an abandoned
// authenticate window expires on its own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ interfaces.TransactionStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, tid string) (*models.PaymentTransaction, error) {
	raw, err := s.client.Get(ctx, tidKeyPrefix+tid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", tid, err)
	}

	var tx models.PaymentTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", tid, err)
	}
	return &tx, nil
}

func (s *RedisStore) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	tid, err := s.client.Get(ctx, orderKeyPrefix+orderID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction for order %s: %w", orderID, err)
	}
	return s.Get(ctx, tid)
}

func (s *RedisStore) Put(ctx context.Context, tx *models.PaymentTransaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", tx.Tid, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tidKeyPrefix+tx.Tid, raw, s.ttl)
		if tx.OrderID != "" {
			pipe.Set(ctx, orderKeyPrefix+tx.OrderID, tx.Tid, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put transaction %s: %w", tx.Tid, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, tid string) error {
	tx, err := s.Get(ctx, tid)
	if err != nil {
		return err
	}
	if tx == nil {
		return nil
	}

	keys := []string{tidKeyPrefix + tid}
	if tx.OrderID != "" {
		current, err := s.client.Get(ctx, orderKeyPrefix+tx.OrderID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("remove transaction %s: %w", tid, err)
		}
		if current == tid {
			keys = append(keys, orderKeyPrefix+tx.OrderID)
		}
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("remove transaction %s: %w", tid, err)
	}
	return nil
}
