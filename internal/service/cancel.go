package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

// Cancel cancels a successful payment at its gateway, then cancels the
// payment and its order and refunds any points the order used.
func (o *Orchestrator) Cancel(ctx context.Context, req models.CancelRequest) (_ *models.CancelResult, err error) {
	ctx, span, end := o.begin(ctx, "cancel")
	defer end(&err)
	span.SetAttributes(attribute.String("tid", req.Tid), attribute.String("cancel_type", string(req.CancelType)))

	cancelType := req.CancelType
	if cancelType == "" {
		cancelType = models.CancelGeneral
	}

	payment, err := o.cancellablePayment(ctx, req.Tid)
	if err != nil {
		return nil, err
	}

	p, client, err := o.resolve(payment.PGProvider)
	if err != nil {
		return nil, err
	}

	unlock, err := o.lock(ctx, req.Tid)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another cancel may have finished while we waited for the lock.
	payment, err = o.cancellablePayment(ctx, req.Tid)
	if err != nil {
		return nil, err
	}

	requestType := models.RequestCancel
	if cancelType.IsNetwork() {
		requestType = models.RequestNetworkCancel
	}
	auditReq := map[string]any{"tid": req.Tid, "reason": req.Reason, "cancelType": cancelType}
	failed := func(response any) {
		o.auditBestEffort(ctx, logEntry(payment.UserID, payment.OrderID, requestType, p.Name, payment.Amount,
			auditReq, response, models.RequestFailed))
	}

	out, err := client.Cancel(ctx, p, req.Tid, req.Reason, cancelType.IsNetwork())
	switch {
	case err != nil:
		failed(err.Error())
		if errors.Is(err, gateway.ErrNoResponse) {
			return nil, newError(KindCancelNoResponse, err, "no cancel response from %s", p.Name)
		}
		return nil, newError(KindSystem, err, "cancel request to %s failed", p.Name)
	case out == nil:
		failed(nil)
		return nil, newError(KindCancelNoResponse, nil, "no cancel response from %s", p.Name)
	case !out.Succeeded():
		failed(out.Raw)
		return nil, newError(KindCancelRejected, nil, "cancel rejected: %s", firstNonEmpty(out.ResultMsg, out.ResultCode))
	}

	refunded, err := o.recordCancel(ctx, payment)
	if errors.Is(err, errPaymentStatusChanged) {
		failed(err.Error())
		return nil, newError(KindInvalidState, err, "payment %s was cancelled concurrently", req.Tid)
	}
	if err != nil {
		telemetry.Logger.Error("Gateway cancelled but local state was not updated",
			zap.String("tid", req.Tid),
			zap.String("order_id", payment.OrderID),
			zap.Error(err),
		)
		failed(err.Error())
		return nil, newError(KindSystem, err, "failed to record cancel of payment %s", req.Tid)
	}

	if err := o.audit(ctx, logEntry(payment.UserID, payment.OrderID, requestType, p.Name, payment.Amount,
		auditReq, out.Raw, models.RequestSuccess)); err != nil {
		return nil, newError(KindSystem, err, "failed to write cancel audit log for %s", req.Tid)
	}

	state := models.TxCancelled
	if cancelType.IsNetwork() {
		state = models.TxNetworkCancelled
	}
	o.publish(ctx, models.PaymentEvent{
		Tid:           req.Tid,
		OrderID:       payment.OrderID,
		State:         state,
		PreviousState: models.TxApproved,
		Provider:      p.Name,
		Amount:        payment.Amount,
		Timestamp:     o.now(),
	})

	telemetry.Logger.Info("Payment cancelled",
		zap.String("tid", req.Tid),
		zap.String("order_id", payment.OrderID),
		zap.String("cancel_type", string(cancelType)),
		zap.Int64("refunded_points", refunded),
	)

	message := "payment cancelled"
	if refunded > 0 {
		message += fmt.Sprintf(" (refunded %d points)", refunded)
	}

	return &models.CancelResult{
		Message: message,
		Data: &models.CancelData{
			Tid:             req.Tid,
			OrderID:         payment.OrderID,
			CancelledAmount: payment.Amount,
			CancelledAt:     out.CancelTimestamp,
			Reason:          req.Reason,
			CancelType:      cancelType,
			RefundedPoints:  refunded,
		},
	}, nil
}

var errPaymentStatusChanged = errors.New("payment is no longer SUCCESS")

// cancellablePayment loads the payment for tid and checks it is SUCCESS.
func (o *Orchestrator) cancellablePayment(ctx context.Context, tid string) (*models.Payment, error) {
	payment, err := o.payments.FindByTid(ctx, tid)
	if err != nil {
		return nil, newError(KindSystem, err, "failed to load payment %s", tid)
	}
	if payment == nil {
		telemetry.Logger.Warn("Payment not found", zap.String("tid", tid))
		return nil, newError(KindPaymentNotFound, nil, "payment %s not found", tid)
	}
	if payment.Status != models.PaymentSuccess {
		return nil, newError(KindInvalidState, nil, "payment %s cannot be cancelled in status %s", tid, payment.Status)
	}
	return payment, nil
}

// recordCancel cancels the payment and its order and refunds the order's
// points, returning the refunded amount. Only the caller that moves the
// payment out of SUCCESS refunds.
func (o *Orchestrator) recordCancel(ctx context.Context, payment *models.Payment) (int64, error) {
	rows, err := o.payments.TransitionStatus(ctx, payment.ID, models.PaymentSuccess, models.PaymentCancelled)
	if err != nil {
		return 0, fmt.Errorf("cancel payment: %w", err)
	}
	if rows == 0 {
		return 0, errPaymentStatusChanged
	}

	order, err := o.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return 0, fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		return 0, fmt.Errorf("order %s not found", payment.OrderID)
	}
	if err := o.orders.UpdateStatus(ctx, order.ID, models.OrderCancelled); err != nil {
		return 0, fmt.Errorf("cancel order: %w", err)
	}

	points := order.Points()
	if points <= 0 {
		return 0, nil
	}
	if _, err := o.points.Credit(ctx, order.UserID, points); err != nil {
		return 0, fmt.Errorf("refund %d points: %w", points, err)
	}
	return points, nil
}
