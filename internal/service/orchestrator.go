// Package service implements the payment orchestration core: provider
// selection, the authenticate/approve/cancel state machine, the prepare and
// return flow for gateway redirects, and compensating network cancels.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/metrics"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/txstore"
)

const (
	defaultLockTTL      = 30 * time.Second
	compensationTimeout = 10 * time.Second
)

// Dependencies are the collaborators the orchestrator drives.
type Dependencies struct {
	Registry  interfaces.ProviderRegistry
	Gateways  gateway.Set
	Store     interfaces.TransactionStore
	Locker    interfaces.Locker
	Orders    interfaces.OrderRepository
	Payments  interfaces.PaymentRepository
	Requests  interfaces.PaymentRequestRepository
	Points    interfaces.PointsLedger
	Publisher interfaces.EventPublisher
}

type Options struct {
	MinimumAmount int64
	ReturnURL     string
	CloseURL      string
	LockTTL       time.Duration
	Clock         func() time.Time
}

type Orchestrator struct {
	registry  interfaces.ProviderRegistry
	gateways  gateway.Set
	store     interfaces.TransactionStore
	locker    interfaces.Locker
	orders    interfaces.OrderRepository
	payments  interfaces.PaymentRepository
	requests  interfaces.PaymentRequestRepository
	points    interfaces.PointsLedger
	publisher interfaces.EventPublisher

	minimumAmount int64
	returnURL     string
	closeURL      string
	lockTTL       time.Duration
	now           func() time.Time
}

func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	o := &Orchestrator{
		registry:      deps.Registry,
		gateways:      deps.Gateways,
		store:         deps.Store,
		locker:        deps.Locker,
		orders:        deps.Orders,
		payments:      deps.Payments,
		requests:      deps.Requests,
		points:        deps.Points,
		publisher:     deps.Publisher,
		minimumAmount: opts.MinimumAmount,
		returnURL:     opts.ReturnURL,
		closeURL:      opts.CloseURL,
		lockTTL:       opts.LockTTL,
		now:           opts.Clock,
	}
	if o.lockTTL <= 0 {
		o.lockTTL = defaultLockTTL
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.publisher == nil {
		o.publisher = nopPublisher{}
	}
	return o
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.PaymentEvent) error { return nil }

// begin opens the span for one orchestrator operation. The returned func
// records the outcome and must be deferred with the operation's error.
func (o *Orchestrator) begin(ctx context.Context, op string) (context.Context, trace.Span, func(*error)) {
	ctx, span := telemetry.Tracer.Start(ctx, "orchestrator."+op)
	return ctx, span, func(errp *error) {
		result := "success"
		if *errp != nil {
			result = strings.ToLower(string(KindOf(*errp)))
			telemetry.RecordError(span, *errp)
		}
		metrics.Orchestrations.WithLabelValues(op, result).Inc()
		span.End()
	}
}

// resolve finds the provider configuration and its gateway client.
func (o *Orchestrator) resolve(name string) (config.Provider, gateway.Client, error) {
	p, ok := o.registry.GetByName(name)
	if !ok {
		return config.Provider{}, nil, newError(KindProviderNotConfigured, nil, "PG provider %s is not configured", name)
	}
	client, ok := o.gateways.For(name)
	if !ok {
		return config.Provider{}, nil, newError(KindProviderNotConfigured, nil, "no gateway client for PG provider %s", name)
	}
	return p, client, nil
}

// lock takes the per-tid lock shared by approve and cancel. The returned
// func releases it and must be deferred.
func (o *Orchestrator) lock(ctx context.Context, tid string) (func(), error) {
	key := txstore.LockKey(tid)
	token, err := o.locker.Acquire(ctx, key, o.lockTTL)
	if err != nil {
		if errors.Is(err, interfaces.ErrLockHeld) {
			return nil, newError(KindInvalidState, nil, "payment %s is already being processed", tid)
		}
		return nil, newError(KindSystem, err, "failed to lock payment %s", tid)
	}
	return func() {
		if err := o.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			telemetry.Logger.Warn("Failed to release payment lock", zap.String("tid", tid), zap.Error(err))
		}
	}, nil
}

// transition moves tx to status, stores it unless removeAfter, and publishes
// the change. Store failures are logged: the durable rows are the record.
func (o *Orchestrator) transition(ctx context.Context, tx *models.PaymentTransaction, to models.TxStatus, removeAfter bool) {
	from := tx.Status
	now := o.now()
	tx.Status = to
	switch to {
	case models.TxApproved:
		tx.ApprovedAt = &now
	case models.TxCancelled, models.TxNetworkCancelled:
		tx.CancelledAt = &now
	}

	var err error
	if removeAfter {
		err = o.store.Remove(ctx, tx.Tid)
	} else {
		err = o.store.Put(ctx, tx)
	}
	if err != nil {
		telemetry.Logger.Error("Failed to update transaction store",
			zap.String("tid", tx.Tid),
			zap.String("to_state", string(to)),
			zap.Error(err),
		)
	}

	telemetry.Logger.Info("Payment state transition",
		zap.String("tid", tx.Tid),
		zap.String("order_id", tx.OrderID),
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)

	o.publish(ctx, models.PaymentEvent{
		Tid:           tx.Tid,
		OrderID:       tx.OrderID,
		State:         to,
		PreviousState: from,
		Provider:      tx.Provider,
		Amount:        tx.Amount,
		Timestamp:     now,
	})
}

func (o *Orchestrator) publish(ctx context.Context, event models.PaymentEvent) {
	if err := o.publisher.Publish(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to publish payment event",
			zap.String("tid", event.Tid),
			zap.String("state", string(event.State)),
			zap.Error(err),
		)
	}
}

// audit writes a request log entry and returns the repository error.
func (o *Orchestrator) audit(ctx context.Context, entry *models.PaymentRequestLog) error {
	return o.requests.Save(ctx, entry)
}

// auditBestEffort writes a request log entry on a failure path, where a
// write error must not replace the error being reported.
func (o *Orchestrator) auditBestEffort(ctx context.Context, entry *models.PaymentRequestLog) {
	if err := o.requests.Save(context.WithoutCancel(ctx), entry); err != nil {
		telemetry.Logger.Warn("Failed to write payment request log",
			zap.String("order_id", entry.OrderID),
			zap.String("request_type", string(entry.RequestType)),
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
	}
}

func logEntry(userID int64, orderID string, kind models.RequestType, provider string, amount int64,
	request, response any, status models.RequestStatus) *models.PaymentRequestLog {
	return &models.PaymentRequestLog{
		UserID:       userID,
		OrderID:      orderID,
		RequestType:  kind,
		PGProvider:   provider,
		Amount:       amount,
		RequestData:  toJSON(request),
		ResponseData: toJSON(response),
		Status:       status,
	}
}

func toJSON(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// NewOrderID returns ORD, the local timestamp and eight upper-case hex
// characters of a random UUID.
func NewOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "ORD" + now.Format("20060102150405") + strings.ToUpper(suffix)
}
