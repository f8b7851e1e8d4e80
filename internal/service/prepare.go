package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/provider"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/signature"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

const (
	prepareVersion = "1.0"
	methodHybrid   = "HYBRID"
)

// Prepare creates a PENDING order, debits any points it uses and returns
// what the storefront needs to hand the buyer to the gateway. If anything
// fails after the debit the points are refunded.
func (o *Orchestrator) Prepare(ctx context.Context, req models.PrepareRequest) (_ *models.PrepareResult, err error) {
	ctx, span, end := o.begin(ctx, "prepare")
	defer end(&err)
	span.SetAttributes(attribute.Int64("user_id", req.UserID), attribute.Int64("amount", req.Amount))

	points, final, err := o.validatePoints(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := o.checkMinimum(final); err != nil {
		return nil, err
	}

	selected, err := o.registry.Select()
	if err != nil {
		if errors.Is(err, provider.ErrNoProviders) {
			return nil, newError(KindProviderNotConfigured, err, "no PG provider available")
		}
		return nil, newError(KindSystem, err, "provider selection failed")
	}
	p, _, err := o.resolve(selected.Name)
	if err != nil {
		return nil, err
	}
	if p.Name != gateway.InicisName && p.Name != gateway.TossName {
		return nil, newError(KindProviderNotConfigured, nil, "PG provider %s does not support prepare", p.Name)
	}
	span.SetAttributes(attribute.String("pg.provider", p.Name))

	if points > 0 {
		if _, err := o.points.Debit(ctx, req.UserID, points); err != nil {
			if errors.Is(err, interfaces.ErrInsufficientPoints) {
				return nil, newError(KindValidation, err, "insufficient points for user %d", req.UserID)
			}
			return nil, newError(KindSystem, err, "failed to debit points")
		}
		defer func() {
			if err != nil {
				o.refundPoints(ctx, req.UserID, points)
			}
		}()
	}

	result, err := o.createPrepared(ctx, req, p, points, final)
	if err != nil {
		return nil, systemError(err, "failed to prepare payment")
	}
	return result, nil
}

// validatePoints checks the points arithmetic and balance and returns the
// points to debit and the amount the gateway will charge.
func (o *Orchestrator) validatePoints(ctx context.Context, req models.PrepareRequest) (int64, int64, error) {
	if !req.UsePoints || req.PointsToUse == 0 {
		// Without points the gateway charges the whole amount. An omitted
		// final amount (0) is only accepted when no points are requested.
		omitted := !req.UsePoints && req.FinalPaymentAmount == 0
		if !omitted && req.FinalPaymentAmount != req.Amount {
			return 0, 0, newError(KindValidation, nil, "final payment amount %d must equal amount %d", req.FinalPaymentAmount, req.Amount)
		}
		return 0, req.Amount, nil
	}

	if req.PointsToUse < 0 || req.PointsToUse > req.Amount {
		return 0, 0, newError(KindValidation, nil, "points to use %d exceed the amount %d", req.PointsToUse, req.Amount)
	}
	if req.Amount-req.PointsToUse != req.FinalPaymentAmount {
		return 0, 0, newError(KindValidation, nil, "amount %d minus points %d does not equal final payment amount %d",
			req.Amount, req.PointsToUse, req.FinalPaymentAmount)
	}

	balance, err := o.points.GetBalance(ctx, req.UserID)
	if err != nil {
		return 0, 0, newError(KindSystem, err, "failed to read points balance")
	}
	if balance < req.PointsToUse {
		return 0, 0, newError(KindValidation, interfaces.ErrInsufficientPoints,
			"points balance %d is less than %d", balance, req.PointsToUse)
	}
	return req.PointsToUse, req.FinalPaymentAmount, nil
}

func (o *Orchestrator) createPrepared(ctx context.Context, req models.PrepareRequest, p config.Provider,
	points, final int64) (*models.PrepareResult, error) {
	now := o.now()
	orderID := NewOrderID(now)

	order := &models.Order{
		ID:           orderID,
		UserID:       req.UserID,
		ProductName:  req.ProductName,
		ProductPrice: req.Amount,
		TotalAmount:  req.Amount,
		CardAmount:   models.Int64Ptr(final),
		TermsAgreed:  true,
		Status:       models.OrderPending,
	}
	if req.UsePoints {
		order.PointAmount = models.Int64Ptr(points)
	}
	if err := o.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	paymentID := fmt.Sprintf("%s_%d", strings.ToUpper(p.Name), now.UnixMilli())
	ts := firstNonEmpty(req.Timestamp, strconv.FormatInt(now.UnixMilli(), 10))
	price := strconv.FormatInt(final, 10)

	sig := signature.SHA256(signature.Pairs("oid", orderID, "price", price, "timestamp", ts))
	verification := signature.SHA256(signature.Pairs("oid", orderID, "price", price, "signKey", p.SignKey, "timestamp", ts))
	mKey := signature.SHA256(p.SignKey)

	var data models.PrepareData
	switch p.Name {
	case gateway.TossName:
		data = &models.TossPrepareData{
			PaymentID:           paymentID,
			OID:                 orderID,
			Version:             prepareVersion,
			MID:                 p.MerchantID,
			Amount:              price,
			OrderName:           req.ProductName,
			CustomerName:        req.BuyerName,
			CustomerEmail:       req.BuyerEmail,
			CustomerMobilePhone: req.BuyerTel,
			SuccessURL:          o.returnURL,
			FailURL:             o.closeURL,
			Timestamp:           ts,
			Signature:           sig,
			Verification:        verification,
			MKey:                mKey,
		}
	default:
		data = &models.InicisPrepareData{
			PaymentID:    paymentID,
			OID:          orderID,
			Version:      prepareVersion,
			MID:          p.MerchantID,
			Price:        price,
			GoodName:     req.ProductName,
			BuyerName:    req.BuyerName,
			BuyerEmail:   req.BuyerEmail,
			BuyerTel:     req.BuyerTel,
			ReturnURL:    o.returnURL,
			CloseURL:     o.closeURL,
			Timestamp:    ts,
			Signature:    sig,
			Verification: verification,
			MKey:         mKey,
		}
	}
	if points > 0 || strings.EqualFold(req.PaymentMethod, methodHybrid) {
		data = &models.HybridPrepareData{
			PaymentID:     paymentID,
			OID:           orderID,
			PointsUsed:    points,
			PGPaymentData: data,
		}
	}

	if err := o.audit(ctx, logEntry(req.UserID, orderID, models.RequestAuth, p.Name, final,
		req, data, models.RequestPending)); err != nil {
		return nil, fmt.Errorf("write audit log: %w", err)
	}

	tx := &models.PaymentTransaction{
		Tid:       paymentID,
		OrderID:   orderID,
		UserID:    req.UserID,
		Amount:    final,
		Provider:  p.Name,
		Status:    models.TxPrepared,
		CreatedAt: now,
	}
	if err := o.store.Put(ctx, tx); err != nil {
		return nil, fmt.Errorf("store transaction: %w", err)
	}
	o.publish(ctx, models.PaymentEvent{
		Tid:       tx.Tid,
		OrderID:   orderID,
		State:     models.TxPrepared,
		Provider:  p.Name,
		Amount:    final,
		Timestamp: now,
	})

	telemetry.Logger.Info("Payment prepared",
		zap.String("order_id", orderID),
		zap.String("payment_id", paymentID),
		zap.String("provider", p.Name),
		zap.String("pg_type", data.PGType()),
		zap.Int64("points", points),
		zap.Int64("amount", final),
	)

	message := "payment prepared"
	if points > 0 {
		message = fmt.Sprintf("payment prepared (%d points used)", points)
	}
	return &models.PrepareResult{Message: message, Data: data}, nil
}

// refundPoints returns debited points after a failed prepare. A failure is
// logged so the original error still reaches the caller.
func (o *Orchestrator) refundPoints(ctx context.Context, userID, points int64) {
	if _, err := o.points.Credit(context.WithoutCancel(ctx), userID, points); err != nil {
		telemetry.Logger.Error("Failed to refund points after prepare failure",
			zap.Int64("user_id", userID),
			zap.Int64("points", points),
			zap.Error(err),
		)
		return
	}
	telemetry.Logger.Info("Refunded points after prepare failure",
		zap.Int64("user_id", userID),
		zap.Int64("points", points),
	)
}
