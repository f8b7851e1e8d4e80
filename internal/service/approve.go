package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/metrics"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/signature"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

// Approve resumes an authenticated transaction, asks the gateway to approve
// it and records the payment. Any approval the orchestrator cannot record is
// network-cancelled before the error is returned.
func (o *Orchestrator) Approve(ctx context.Context, req models.ApprovalRequest) (_ *models.ApprovalData, err error) {
	ctx, span, end := o.begin(ctx, "approve")
	defer end(&err)
	span.SetAttributes(attribute.String("tid", req.AuthToken), attribute.String("order_id", req.OrderNumber))

	tx, err := o.pendingTransaction(ctx, req.AuthToken, req.OrderNumber)
	if err != nil {
		return nil, err
	}

	p, client, err := o.resolve(tx.Provider)
	if err != nil {
		return nil, err
	}

	unlock, err := o.lock(ctx, tx.Tid)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another approval may have finished while we waited for the lock.
	tx, err = o.pendingTransaction(ctx, req.AuthToken, req.OrderNumber)
	if err != nil {
		return nil, err
	}

	ts := o.now().UnixMilli()
	tsStr := strconv.FormatInt(ts, 10)
	gwReq := gateway.ApproveRequest{
		Provider:     p,
		AuthURL:      req.AuthURL,
		AuthToken:    tx.Tid,
		OrderID:      tx.OrderID,
		Timestamp:    ts,
		Signature:    signature.SHA256(signature.Pairs("authToken", tx.Tid, "timestamp", tsStr)),
		Verification: signature.SHA256(signature.Pairs("authToken", tx.Tid, "signKey", p.SignKey, "timestamp", tsStr)),
		MID:          firstNonEmpty(req.MID, p.MerchantID),
	}
	auditReq := map[string]any{"authToken": tx.Tid, "authUrl": req.AuthURL, "mid": gwReq.MID, "timestamp": ts}

	out, err := client.Approve(ctx, gwReq)
	if err != nil || out == nil {
		o.auditBestEffort(ctx, logEntry(tx.UserID, tx.OrderID, models.RequestApproval, p.Name, tx.Amount,
			auditReq, errString(err), models.RequestFailed))
		o.transition(ctx, tx, models.TxFailed, false)
		if err == nil || errors.Is(err, gateway.ErrNoResponse) {
			return nil, newError(KindApprovalNoResponse, err, "no approval response from %s", p.Name)
		}
		return nil, newError(KindSystem, err, "approval request to %s failed", p.Name)
	}

	if !out.Succeeded() {
		o.auditBestEffort(ctx, logEntry(tx.UserID, tx.OrderID, models.RequestApproval, p.Name, tx.Amount,
			auditReq, out.Raw, models.RequestFailed))
		o.transition(ctx, tx, models.TxFailed, false)
		return nil, newError(KindApprovalRejected, nil, "approval rejected: %s", firstNonEmpty(out.ResultMsg, out.ResultCode))
	}

	if out.Amount != tx.Amount {
		telemetry.Logger.Error("Approved amount does not match authenticated amount",
			zap.String("tid", tx.Tid),
			zap.String("order_id", tx.OrderID),
			zap.Int64("expected", tx.Amount),
			zap.Int64("received", out.Amount),
		)
		cancelled := o.compensate(ctx, client, p, tx, out, "amount_mismatch", true)
		o.auditBestEffort(ctx, logEntry(tx.UserID, tx.OrderID, models.RequestApproval, p.Name, tx.Amount,
			auditReq, out.Raw, models.RequestFailed))
		o.transition(ctx, tx, compensatedStatus(cancelled), false)
		return nil, newError(KindAmountMismatch, nil,
			"approved amount mismatch: expected %d, received %d", tx.Amount, out.Amount)
	}

	payment, err := o.recordApproval(ctx, tx, p, out, auditReq)
	if err != nil {
		cancelled := false
		if out.NetCancelURL != "" {
			cancelled = o.compensate(ctx, client, p, tx, out, "persistence_failure", false)
		} else {
			metrics.Compensations.WithLabelValues("persistence_failure", "skipped").Inc()
			telemetry.Logger.Warn("No netCancelUrl, skipping compensation",
				zap.String("tid", tx.Tid),
				zap.String("order_id", tx.OrderID),
			)
		}
		o.auditBestEffort(ctx, logEntry(tx.UserID, tx.OrderID, models.RequestApproval, p.Name, tx.Amount,
			auditReq, err.Error(), models.RequestFailed))
		o.transition(ctx, tx, compensatedStatus(cancelled), false)
		return nil, newError(KindSystem, err, "failed to record approved payment %s", tx.Tid)
	}

	o.transition(ctx, tx, models.TxApproved, true)

	telemetry.Logger.Info("Payment approved",
		zap.String("tid", tx.Tid),
		zap.String("order_id", tx.OrderID),
		zap.String("provider", p.Name),
		zap.Int64("amount", payment.Amount),
	)

	return &models.ApprovalData{
		Tid:           payment.PGTid,
		OrderID:       tx.OrderID,
		PaymentID:     payment.ID,
		Amount:        payment.Amount,
		Provider:      p.Name,
		PaymentMethod: string(payment.PaymentMethod),
		ApprovedAt:    out.ApprovedAt,
		Status:        models.TxApproved,
	}, nil
}

// pendingTransaction loads the transaction for authToken and checks it
// belongs to orderNumber and still awaits approval.
func (o *Orchestrator) pendingTransaction(ctx context.Context, authToken, orderNumber string) (*models.PaymentTransaction, error) {
	tx, err := o.store.Get(ctx, authToken)
	if err != nil {
		return nil, newError(KindSystem, err, "failed to load transaction %s", authToken)
	}
	if tx == nil {
		telemetry.Logger.Warn("Transaction not found", zap.String("tid", authToken))
		return nil, newError(KindTransactionNotFound, nil, "transaction %s not found", authToken)
	}
	if tx.OrderID != orderNumber {
		telemetry.Logger.Warn("Order number does not match transaction",
			zap.String("tid", authToken),
			zap.String("order_id", tx.OrderID),
			zap.String("order_number", orderNumber),
		)
		return nil, newError(KindOrderMismatch, nil, "order %s does not match transaction %s", orderNumber, authToken)
	}
	if tx.Status.Terminal() {
		return nil, newError(KindInvalidState, nil, "transaction %s is already %s", authToken, tx.Status)
	}
	if tx.Status != models.TxAuthenticated {
		return nil, newError(KindInvalidState, nil, "transaction %s is %s", authToken, tx.Status)
	}
	return tx, nil
}

// recordApproval persists the payment, completes the order and writes the
// SUCCESS audit entry. Every step is required.
func (o *Orchestrator) recordApproval(ctx context.Context, tx *models.PaymentTransaction, p config.Provider,
	out *gateway.ApproveOutcome, auditReq any) (*models.Payment, error) {
	order, err := o.orders.FindByID(ctx, tx.OrderID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s not found", tx.OrderID)
	}

	payment := &models.Payment{
		UserID:        order.UserID,
		OrderID:       order.ID,
		PGProvider:    p.Name,
		PaymentMethod: models.ParsePaymentMethod(out.PaymentMethod),
		Amount:        out.Amount,
		PointAmount:   order.PointAmount,
		CardAmount:    order.CardAmount,
		PGTid:         firstNonEmpty(out.Tid, tx.Tid),
		Status:        models.PaymentSuccess,
	}
	if err := o.payments.Save(ctx, payment); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}

	if err := o.orders.UpdateStatus(ctx, order.ID, models.OrderCompleted); err != nil {
		o.voidPayment(ctx, payment)
		return nil, fmt.Errorf("complete order: %w", err)
	}

	if err := o.audit(ctx, logEntry(order.UserID, order.ID, models.RequestApproval, p.Name, out.Amount,
		auditReq, out.Raw, models.RequestSuccess)); err != nil {
		o.voidPayment(ctx, payment)
		return nil, fmt.Errorf("write audit log: %w", err)
	}

	return payment, nil
}

// voidPayment marks a saved payment FAILED once its approval is being unwound.
func (o *Orchestrator) voidPayment(ctx context.Context, payment *models.Payment) {
	if err := o.payments.UpdateStatus(context.WithoutCancel(ctx), payment.ID, models.PaymentFailed); err != nil {
		telemetry.Logger.Error("Failed to void payment",
			zap.Int64("payment_id", payment.ID),
			zap.String("tid", payment.PGTid),
			zap.Error(err),
		)
	}
}

// compensate issues a best-effort network cancel for an approval that will
// not be recorded. With fallback set and no netCancelUrl it cancels through
// the provider's network-cancel endpoint instead. It reports whether the
// gateway confirmed the cancel; failures are logged, never returned.
func (o *Orchestrator) compensate(ctx context.Context, client gateway.Client, p config.Provider,
	tx *models.PaymentTransaction, out *gateway.ApproveOutcome, reason string, fallback bool) bool {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var (
		ok       bool
		err      error
		response any
	)
	switch {
	case out.NetCancelURL != "":
		price := out.Amount
		var res *gateway.NetworkCancelOutcome
		res, err = client.NetworkCancel(cctx, gateway.NetworkCancelRequest{
			NetCancelURL: out.NetCancelURL,
			MID:          p.MerchantID,
			AuthToken:    tx.Tid,
			SignKey:      p.SignKey,
			Price:        &price,
		})
		if res != nil {
			ok, response = res.Succeeded(), res
		}
	case fallback:
		var res *gateway.CancelOutcome
		res, err = client.Cancel(cctx, p, tx.Tid, "network cancel: "+reason, true)
		if res != nil {
			ok, response = res.Succeeded(), res
		}
	default:
		metrics.Compensations.WithLabelValues(reason, "skipped").Inc()
		return false
	}

	status := models.RequestSuccess
	result := "success"
	if err != nil || !ok {
		status, result = models.RequestFailed, "failed"
		if response == nil {
			response = errString(err)
		}
		telemetry.Logger.Error("Compensating network cancel failed",
			zap.String("tid", tx.Tid),
			zap.String("order_id", tx.OrderID),
			zap.String("provider", p.Name),
			zap.String("reason", reason),
			zap.Error(err),
		)
	} else {
		telemetry.Logger.Info("Compensating network cancel succeeded",
			zap.String("tid", tx.Tid),
			zap.String("order_id", tx.OrderID),
			zap.String("reason", reason),
		)
	}
	metrics.Compensations.WithLabelValues(reason, result).Inc()

	o.auditBestEffort(cctx, logEntry(tx.UserID, tx.OrderID, models.RequestNetworkCancel, p.Name, tx.Amount,
		map[string]any{"authToken": tx.Tid, "reason": reason}, response, status))
	return ok && err == nil
}

func compensatedStatus(cancelled bool) models.TxStatus {
	if cancelled {
		return models.TxNetworkCancelled
	}
	return models.TxFailed
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
