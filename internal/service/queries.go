package service

import (
	"context"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

// Transaction returns the in-flight transaction stored under tid.
func (o *Orchestrator) Transaction(ctx context.Context, tid string) (*models.PaymentTransaction, error) {
	tx, err := o.store.Get(ctx, tid)
	if err != nil {
		return nil, newError(KindSystem, err, "failed to load transaction %s", tid)
	}
	if tx == nil {
		return nil, newError(KindTransactionNotFound, nil, "transaction %s not found", tid)
	}
	return tx, nil
}

// Providers lists the configured providers in configuration order.
func (o *Orchestrator) Providers() []config.Provider {
	return o.registry.All()
}
