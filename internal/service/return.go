package service

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

// HandleReturn processes the gateway's redirect after a prepared payment.
// On success the prepared transaction is re-keyed under the gateway's auth
// token so Approve can resume it.
func (o *Orchestrator) HandleReturn(ctx context.Context, req models.ReturnRequest) (_ *models.ReturnData, err error) {
	ctx, span, end := o.begin(ctx, "return")
	defer end(&err)
	span.SetAttributes(attribute.String("order_id", req.OID), attribute.String("pg.result_code", req.ResultCode))

	tx, err := o.store.GetByOrderID(ctx, req.OID)
	if err != nil {
		return nil, newError(KindSystem, err, "failed to load transaction for order %s", req.OID)
	}
	if tx == nil {
		telemetry.Logger.Warn("Prepared transaction not found", zap.String("order_id", req.OID))
		return nil, newError(KindTransactionNotFound, nil, "no prepared transaction for order %s", req.OID)
	}
	if tx.Status.Terminal() {
		return nil, newError(KindInvalidState, nil, "transaction for order %s is already %s", req.OID, tx.Status)
	}
	if tx.Status != models.TxPrepared {
		return nil, newError(KindInvalidState, nil, "transaction for order %s is %s", req.OID, tx.Status)
	}

	if req.ResultCode != gateway.ResultSuccess {
		o.transition(ctx, tx, models.TxFailed, false)
		o.auditBestEffort(ctx, logEntry(tx.UserID, tx.OrderID, models.RequestAuth, tx.Provider, tx.Amount,
			nil, req, models.RequestFailed))
		return nil, newError(KindGatewayRejected, nil, "%s", firstNonEmpty(req.ResultMsg, "payment was not authenticated"))
	}

	if req.Price != "" {
		price, err := strconv.ParseInt(req.Price, 10, 64)
		if err != nil {
			return nil, newError(KindValidation, err, "invalid price %q", req.Price)
		}
		if price != tx.Amount {
			o.transition(ctx, tx, models.TxFailed, false)
			return nil, newError(KindAmountMismatch, nil,
				"returned amount mismatch: expected %d, received %d", tx.Amount, price)
		}
	}

	if req.AuthToken == "" {
		o.transition(ctx, tx, models.TxFailed, false)
		return nil, newError(KindGatewayRejected, nil, "gateway returned no auth token for order %s", req.OID)
	}

	preparedID := tx.Tid
	authed := *tx
	authed.Tid = req.AuthToken
	authed.Status = models.TxAuthenticated
	if err := o.store.Put(ctx, &authed); err != nil {
		return nil, newError(KindSystem, err, "failed to store transaction %s", req.AuthToken)
	}
	if err := o.store.Remove(ctx, preparedID); err != nil {
		telemetry.Logger.Warn("Failed to remove prepared transaction",
			zap.String("payment_id", preparedID),
			zap.Error(err),
		)
	}

	o.publish(ctx, models.PaymentEvent{
		Tid:           authed.Tid,
		OrderID:       authed.OrderID,
		State:         authed.Status,
		PreviousState: models.TxPrepared,
		Provider:      authed.Provider,
		Amount:        authed.Amount,
		Timestamp:     o.now(),
	})

	telemetry.Logger.Info("Gateway return accepted",
		zap.String("tid", authed.Tid),
		zap.String("order_id", authed.OrderID),
		zap.String("payment_id", preparedID),
	)

	return &models.ReturnData{
		ResultCode:   req.ResultCode,
		ResultMsg:    req.ResultMsg,
		OrderID:      authed.OrderID,
		Amount:       authed.Amount,
		AuthToken:    req.AuthToken,
		AuthURL:      req.AuthURL,
		NetCancelURL: req.NetCancelURL,
		Timestamp:    req.Timestamp,
	}, nil
}
