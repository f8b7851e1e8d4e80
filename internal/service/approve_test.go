package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/service"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/signature"
)

func TestAuthenticateThenApprove(t *testing.T) {
	h := newHarness(t, "inicis")
	ctx := context.Background()
	h.seedOrder("ORD1", 7, 1000, nil)

	_, err := h.orch.Authenticate(ctx, authReq("ORD1", 1000))
	require.NoError(t, err)

	tx, _ := h.store.Get(ctx, "T1")
	require.NotNil(t, tx)
	assert.Equal(t, models.TxAuthenticated, tx.Status)
	assert.Equal(t, int64(1000), tx.Amount)

	data, err := h.orch.Approve(ctx, approvalReq("T1", "ORD1"))
	require.NoError(t, err)

	assert.Equal(t, models.TxApproved, data.Status)
	assert.Equal(t, "T1", data.Tid)
	assert.Equal(t, int64(1000), data.Amount)
	assert.Equal(t, "CARD", data.PaymentMethod)
	assert.NotZero(t, data.PaymentID)

	payments := h.payments.all()
	require.Len(t, payments, 1)
	assert.Equal(t, "T1", payments[0].PGTid)
	assert.Equal(t, models.PaymentSuccess, payments[0].Status)
	assert.Equal(t, models.MethodCard, payments[0].PaymentMethod)
	assert.Equal(t, int64(7), payments[0].UserID)

	assert.Equal(t, models.OrderCompleted, h.orders.get("ORD1").Status)

	success := h.requests.withStatus(models.RequestSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, models.RequestApproval, success[0].RequestType)

	gone, _ := h.store.Get(ctx, "T1")
	assert.Nil(t, gone)
	assert.Equal(t, []models.TxStatus{models.TxPending, models.TxApproved}, h.publisher.states())
}

func TestApprove_SignsWithProviderKey(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedOrder("ORD1", 7, 1000, nil)
	h.seedAuthenticated("T1", "ORD1", 1000)

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))
	require.NoError(t, err)

	require.Len(t, h.gw.approveCalls, 1)
	call := h.gw.approveCalls[0]
	ts := fmt.Sprintf("%d", fixedNow.UnixMilli())

	assert.Equal(t, fixedNow.UnixMilli(), call.Timestamp)
	assert.Equal(t, signature.SHA256("authToken=T1&timestamp="+ts), call.Signature)
	assert.Equal(t, signature.SHA256("authToken=T1&signKey=sign-key&timestamp="+ts), call.Verification)
	assert.Equal(t, "MID01", call.MID)
	assert.Equal(t, "https://pg.test/approve", call.AuthURL)
	assert.Equal(t, "ORD1", call.OrderID)
}

func TestApprove_UnknownTokenHasNoSideEffects(t *testing.T) {
	h := newHarness(t, "inicis")

	_, err := h.orch.Approve(context.Background(), approvalReq("missing", "ORD1"))

	require.Error(t, err)
	assert.Equal(t, service.KindTransactionNotFound, service.KindOf(err))
	assert.Zero(t, h.gw.approveCount())
	assert.Empty(t, h.requests.entries)
	assert.Empty(t, h.payments.all())
	assert.Empty(t, h.publisher.states())
}

func TestApprove_OrderMismatchBeforeGatewayCall(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedAuthenticated("T1", "ORD1", 1000)

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD2"))

	require.Error(t, err)
	assert.Equal(t, service.KindOrderMismatch, service.KindOf(err))
	assert.Zero(t, h.gw.approveCount())

	tx, _ := h.store.Get(context.Background(), "T1")
	assert.Equal(t, models.TxAuthenticated, tx.Status)
}

func TestApprove_UnconfiguredProviderBeforeGatewayCall(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedOrder("ORD1", 7, 1000, nil)
	_ = h.store.Put(context.Background(), &models.PaymentTransaction{
		Tid:       "T1",
		OrderID:   "ORD1",
		UserID:    7,
		Amount:    1000,
		Provider:  "kcp",
		Status:    models.TxAuthenticated,
		CreatedAt: fixedNow,
	})

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))

	require.Error(t, err)
	assert.Equal(t, service.KindProviderNotConfigured, service.KindOf(err))
	assert.Contains(t, err.Error(), "kcp")
	assert.Zero(t, h.gw.approveCount())
	assert.Empty(t, h.gw.netCancelCalls)
	assert.Empty(t, h.payments.all())

	tx, _ := h.store.Get(context.Background(), "T1")
	require.NotNil(t, tx)
	assert.Equal(t, models.TxAuthenticated, tx.Status)
}

func TestApprove_AmountMismatchNetworkCancelsOnce(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedOrder("ORD1", 7, 1000, nil)
	h.seedAuthenticated("T1", "ORD1", 1000)
	h.gw.approveOutcome.Amount = 2000
	h.gw.approveOutcome.NetCancelURL = "https://pg.test/netcancel"

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))

	require.Error(t, err)
	assert.Equal(t, service.KindAmountMismatch, service.KindOf(err))
	assert.Contains(t, err.Error(), "1000")
	assert.Contains(t, err.Error(), "2000")

	require.Len(t, h.gw.netCancelCalls, 1)
	assert.Equal(t, "T1", h.gw.netCancelCalls[0].AuthToken)
	assert.Equal(t, "https://pg.test/netcancel", h.gw.netCancelCalls[0].NetCancelURL)
	assert.Equal(t, "sign-key", h.gw.netCancelCalls[0].SignKey)
	require.NotNil(t, h.gw.netCancelCalls[0].Price)
	assert.Equal(t, int64(2000), *h.gw.netCancelCalls[0].Price, "net cancel must reverse the charged amount")
	assert.Empty(t, h.gw.cancelCalls)

	assert.Empty(t, h.payments.all())
	assert.Equal(t, models.OrderPending, h.orders.get("ORD1").Status)

	tx, _ := h.store.Get(context.Background(), "T1")
	require.NotNil(t, tx)
	assert.Equal(t, models.TxNetworkCancelled, tx.Status)
}

func TestApprove_AmountMismatchWithoutNetCancelURLUsesNetworkCancelEndpoint(t *testing.T) {
	h := newHarness(t, "toss")
	h.seedOrder("ORD1", 7, 1000, nil)
	h.seedAuthenticated("T1", "ORD1", 1000)
	h.gw.approveOutcome.Amount = 2000

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))

	assert.Equal(t, service.KindAmountMismatch, service.KindOf(err))
	assert.Empty(t, h.gw.netCancelCalls)
	require.Len(t, h.gw.cancelCalls, 1)
	assert.Equal(t, "T1", h.gw.cancelCalls[0].Tid)
	assert.True(t, h.gw.cancelCalls[0].Network)
}

func TestApprove_CompensationFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedOrder("ORD1", 7, 1000, nil)
	h.seedAuthenticated("T1", "ORD1", 1000)
	h.gw.approveOutcome.Amount = 2000
	h.gw.approveOutcome.NetCancelURL = "https://pg.test/netcancel"
	h.gw.netCancelOutcome = nil
	h.gw.netCancelErr = gateway.ErrUnreachable

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))

	assert.Equal(t, service.KindAmountMismatch, service.KindOf(err))
	assert.False(t, errors.Is(err, gateway.ErrUnreachable))
	assert.Len(t, h.gw.netCancelCalls, 1)

	tx, _ := h.store.Get(context.Background(), "T1")
	assert.Equal(t, models.TxFailed, tx.Status)
}

func TestApprove_PersistenceFailureCompensatesWhenNetCancelURLPresent(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedOrder("ORD1", 7, 1000, nil)
	h.seedAuthenticated("T1", "ORD1", 1000)
	h.gw.approveOutcome.NetCancelURL = "https://pg.test/netcancel"
	h.payments.saveErr = errDB

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))

	require.Error(t, err)
	assert.Equal(t, service.KindSystem, service.KindOf(err))
	assert.ErrorIs(t, err, errDB)
	require.Len(t, h.gw.netCancelCalls, 1)
	assert.Equal(t, "T1", h.gw.netCancelCalls[0].AuthToken)

	failed := h.requests.withStatus(models.RequestFailed)
	var approvalFailures int
	for _, e := range failed {
		if e.RequestType == models.RequestApproval {
			approvalFailures++
		}
	}
	assert.Equal(t, 1, approvalFailures)

	tx, _ := h.store.Get(context.Background(), "T1")
	assert.Equal(t, models.TxNetworkCancelled, tx.Status)
}

func TestApprove_PersistenceFailureWithoutNetCancelURLSkipsCompensation(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedOrder("ORD1", 7, 1000, nil)
	h.seedAuthenticated("T1", "ORD1", 1000)
	h.orders.updateErr = errDB

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))

	require.Error(t, err)
	assert.Equal(t, service.KindSystem, service.KindOf(err))
	assert.ErrorIs(t, err, errDB)
	assert.Empty(t, h.gw.netCancelCalls)
	assert.Empty(t, h.gw.cancelCalls)

	payments := h.payments.all()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentFailed, payments[0].Status)
}

func TestApprove_SuccessAuditFailureIsSystemError(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedOrder("ORD1", 7, 1000, nil)
	h.seedAuthenticated("T1", "ORD1", 1000)
	h.gw.approveOutcome.NetCancelURL = "https://pg.test/netcancel"
	h.requests.failOn[models.RequestSuccess] = true

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))

	assert.Equal(t, service.KindSystem, service.KindOf(err))
	assert.Len(t, h.gw.netCancelCalls, 1)
}

func TestApprove_MissingOrderIsPersistenceFailure(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedAuthenticated("T1", "ORD1", 1000)

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))

	assert.Equal(t, service.KindSystem, service.KindOf(err))
	assert.Empty(t, h.payments.all())
}

func TestApprove_GatewayFailures(t *testing.T) {
	tests := []struct {
		name     string
		outcome  *gateway.ApproveOutcome
		err      error
		wantKind service.Kind
	}{
		{name: "no response", err: gateway.ErrNoResponse, wantKind: service.KindApprovalNoResponse},
		{name: "nil outcome", wantKind: service.KindApprovalNoResponse},
		{name: "unreachable", err: fmt.Errorf("%w: dial tcp", gateway.ErrUnreachable), wantKind: service.KindSystem},
		{
			name:     "rejected",
			outcome:  &gateway.ApproveOutcome{ResultCode: "R201", ResultMsg: "card limit exceeded"},
			wantKind: service.KindApprovalRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "inicis")
			h.seedOrder("ORD1", 7, 1000, nil)
			h.seedAuthenticated("T1", "ORD1", 1000)
			h.gw.approveOutcome = tt.outcome
			h.gw.approveErr = tt.err

			_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))

			assert.Equal(t, tt.wantKind, service.KindOf(err))
			assert.Empty(t, h.payments.all())
			assert.Empty(t, h.gw.netCancelCalls)
			assert.Len(t, h.requests.withStatus(models.RequestFailed), 1)

			tx, _ := h.store.Get(context.Background(), "T1")
			assert.Equal(t, models.TxFailed, tx.Status)

			_, err = h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))
			assert.Equal(t, service.KindInvalidState, service.KindOf(err))
			assert.Contains(t, err.Error(), "already FAILED")
		})
	}
}

func TestApprove_RejectedMessageNamesProviderMessage(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedAuthenticated("T1", "ORD1", 1000)
	h.gw.approveOutcome = &gateway.ApproveOutcome{ResultCode: "R201", ResultMsg: "card limit exceeded"}

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))
	assert.Contains(t, err.Error(), "card limit exceeded")
}

func TestApprove_ConcurrentSameTidReachesGatewayOnce(t *testing.T) {
	h := newHarness(t, "inicis")
	h.seedOrder("ORD1", 7, 1000, nil)
	h.seedAuthenticated("T1", "ORD1", 1000)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.gw.approveHook = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	results := make(chan error, 2)
	go func() {
		_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))
		results <- err
	}()
	<-entered

	_, err := h.orch.Approve(context.Background(), approvalReq("T1", "ORD1"))
	results <- err
	close(release)

	var succeeded, rejected int
	for i := 0; i < 2; i++ {
		if err := <-results; err == nil {
			succeeded++
		} else {
			assert.Equal(t, service.KindInvalidState, service.KindOf(err))
			rejected++
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, h.gw.approveCount())
	assert.Len(t, h.payments.all(), 1)
}
