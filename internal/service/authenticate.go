package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/provider"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

// Authenticate starts a payment with a weighted-random provider and keeps
// the authenticated transaction until Approve resumes it.
func (o *Orchestrator) Authenticate(ctx context.Context, req models.AuthRequest) (_ *models.AuthData, err error) {
	ctx, span, end := o.begin(ctx, "authenticate")
	defer end(&err)
	span.SetAttributes(attribute.String("order_id", req.OrderID), attribute.Int64("amount", req.Amount))

	if err := o.checkMinimum(req.Amount); err != nil {
		return nil, err
	}

	selected, err := o.registry.Select()
	if err != nil {
		if errors.Is(err, provider.ErrNoProviders) {
			return nil, newError(KindProviderNotConfigured, err, "no PG provider available")
		}
		return nil, newError(KindSystem, err, "provider selection failed")
	}
	p, client, err := o.resolve(selected.Name)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("pg.provider", p.Name))

	gwReq := gateway.AuthRequest{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		ProductName: req.ProductName,
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		BuyerTel:    req.BuyerTel,
		ReturnURL:   firstNonEmpty(req.ReturnURL, o.returnURL),
		CloseURL:    firstNonEmpty(req.CloseURL, o.closeURL),
	}
	out := client.Authenticate(ctx, p, gwReq)

	if !out.Succeeded() || out.Tid == "" {
		o.auditBestEffort(ctx, logEntry(req.UserID, req.OrderID, models.RequestAuth, p.Name, req.Amount,
			gwReq, out, models.RequestFailed))
		telemetry.Logger.Warn("PG authentication rejected",
			zap.String("order_id", req.OrderID),
			zap.String("provider", p.Name),
			zap.String("result_code", out.ResultCode),
			zap.String("result_msg", out.ResultMsg),
		)
		msg := out.ResultMsg
		if msg == "" {
			msg = "authentication failed"
		}
		return nil, newError(KindGatewayRejected, nil, "%s", msg)
	}

	tx := &models.PaymentTransaction{
		Tid:       out.Tid,
		OrderID:   req.OrderID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Provider:  p.Name,
		Status:    models.TxAuthenticated,
		CreatedAt: o.now(),
	}
	if err := o.store.Put(ctx, tx); err != nil {
		return nil, newError(KindSystem, err, "failed to store transaction %s", out.Tid)
	}

	o.auditBestEffort(ctx, logEntry(req.UserID, req.OrderID, models.RequestAuth, p.Name, req.Amount,
		gwReq, out, models.RequestPending))
	o.publish(ctx, models.PaymentEvent{
		Tid:       tx.Tid,
		OrderID:   tx.OrderID,
		State:     tx.Status,
		Provider:  tx.Provider,
		Amount:    tx.Amount,
		Timestamp: tx.CreatedAt,
	})

	telemetry.Logger.Info("Payment authenticated",
		zap.String("tid", tx.Tid),
		zap.String("order_id", tx.OrderID),
		zap.String("provider", p.Name),
	)

	return &models.AuthData{
		Tid:       out.Tid,
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Provider:  p.Name,
		AuthURL:   out.AuthURL,
		Timestamp: out.Timestamp,
	}, nil
}

func (o *Orchestrator) checkMinimum(amount int64) error {
	if amount < o.minimumAmount {
		return newError(KindValidation, ErrAmountTooLow,
			"payment amount %d is below the minimum of %d", amount, o.minimumAmount)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
