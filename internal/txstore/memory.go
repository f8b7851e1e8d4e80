// Package txstore keeps in-flight payment transactions between authenticate
// and approve, and provides the per-tid locks that serialize approvals.
package txstore

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

const defaultShards = 32

type shard struct {
	mu    sync.RWMutex
	byTid map[string]models.PaymentTransaction
	// byOrder maps order id to tid.
	byOrder map[string]string
}

// MemoryStore is a sharded in-process TransactionStore. Each key is guarded
// by its own shard lock; no operation holds two shard locks at once.
type MemoryStore struct {
	shards []*shard
}

var _ interfaces.TransactionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithShards(defaultShards)
}

func NewMemoryStoreWithShards(n int) *MemoryStore {
	if n < 1 {
		n = 1
	}
	s := &MemoryStore{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{
			byTid:   make(map[string]models.PaymentTransaction),
			byOrder: make(map[string]string),
		}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) Get(_ context.Context, tid string) (*models.PaymentTransaction, error) {
	sh := s.shardFor(tid)
	sh.mu.RLock()
	tx, ok := sh.byTid[tid]
	sh.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (s *MemoryStore) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	sh := s.shardFor(orderID)
	sh.mu.RLock()
	tid, ok := sh.byOrder[orderID]
	sh.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, tid)
}

// Put stores a copy of tx, replacing any transaction with the same tid.
func (s *MemoryStore) Put(_ context.Context, tx *models.PaymentTransaction) error {
	sh := s.shardFor(tx.Tid)
	sh.mu.Lock()
	sh.byTid[tx.Tid] = *tx
	sh.mu.Unlock()

	if tx.OrderID != "" {
		osh := s.shardFor(tx.OrderID)
		osh.mu.Lock()
		osh.byOrder[tx.OrderID] = tx.Tid
		osh.mu.Unlock()
	}
	return nil
}

// Remove deletes the transaction and its order index entry, unless the
// order has since been re-keyed to another tid.
func (s *MemoryStore) Remove(_ context.Context, tid string) error {
	sh := s.shardFor(tid)
	sh.mu.Lock()
	tx, ok := sh.byTid[tid]
	delete(sh.byTid, tid)
	sh.mu.Unlock()

	if !ok || tx.OrderID == "" {
		return nil
	}

	osh := s.shardFor(tx.OrderID)
	osh.mu.Lock()
	if osh.byOrder[tx.OrderID] == tid {
		delete(osh.byOrder, tx.OrderID)
	}
	osh.mu.Unlock()
	return nil
}
