package gateway

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/metrics"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

type instrumented struct {
	next Client
}

// Instrument wraps c with a span, Prometheus counters and a log line per call.
func Instrument(c Client) Client {
	return &instrumented{next: c}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) start(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := telemetry.Tracer.Start(ctx, "gateway."+i.next.Name()+"."+op)
	span.SetAttributes(attribute.String("pg.provider", i.next.Name()))
	return ctx, span, time.Now()
}

// resultLabel folds the gateway's result code into success, rejected or
// error so the metric's label set stays bounded.
func resultLabel(resultCode string, succeeded bool, err error) string {
	switch {
	case err != nil, resultCode == "", resultCode == ResultCommFailure:
		return "error"
	case succeeded:
		return "success"
	default:
		return "rejected"
	}
}

func (i *instrumented) finish(span trace.Span, op string, started time.Time, resultCode string, succeeded bool, err error) {
	metrics.GatewayRequests.WithLabelValues(i.next.Name(), op, resultLabel(resultCode, succeeded, err)).Inc()
	metrics.GatewayLatency.WithLabelValues(i.next.Name(), op).Observe(time.Since(started).Seconds())

	span.SetAttributes(attribute.String("pg.result_code", resultCode))
	telemetry.RecordError(span, err)
	span.End()

	telemetry.Logger.Info("PG call finished",
		zap.String("provider", i.next.Name()),
		zap.String("operation", op),
		zap.String("result_code", resultCode),
		zap.Duration("duration", time.Since(started)),
		zap.Error(err),
	)
}

func (i *instrumented) Authenticate(ctx context.Context, p config.Provider, req AuthRequest) AuthOutcome {
	ctx, span, started := i.start(ctx, "authenticate")
	out := i.next.Authenticate(ctx, p, req)
	i.finish(span, "authenticate", started, out.ResultCode, out.Succeeded(), nil)
	return out
}

func (i *instrumented) Approve(ctx context.Context, req ApproveRequest) (*ApproveOutcome, error) {
	ctx, span, started := i.start(ctx, "approve")
	out, err := i.next.Approve(ctx, req)
	code, ok := "", false
	if out != nil {
		code, ok = out.ResultCode, out.Succeeded()
	}
	i.finish(span, "approve", started, code, ok, err)
	return out, err
}

func (i *instrumented) Cancel(ctx context.Context, p config.Provider, tid, reason string, networkCancel bool) (*CancelOutcome, error) {
	op := "cancel"
	if networkCancel {
		op = "cancel_network"
	}
	ctx, span, started := i.start(ctx, op)
	out, err := i.next.Cancel(ctx, p, tid, reason, networkCancel)
	code, ok := "", false
	if out != nil {
		code, ok = out.ResultCode, out.Succeeded()
	}
	i.finish(span, op, started, code, ok, err)
	return out, err
}

func (i *instrumented) NetworkCancel(ctx context.Context, req NetworkCancelRequest) (*NetworkCancelOutcome, error) {
	ctx, span, started := i.start(ctx, "network_cancel")
	out, err := i.next.NetworkCancel(ctx, req)
	code, ok := "", false
	if out != nil {
		code, ok = out.ResultCode, out.Succeeded()
	}
	i.finish(span, "network_cancel", started, code, ok, err)
	return out, err
}
