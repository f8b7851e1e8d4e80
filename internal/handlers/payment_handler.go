package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

type PaymentHandler struct {
	orchestrator interfaces.PaymentOrchestrator
}

func NewPaymentHandler(orchestrator interfaces.PaymentOrchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

func (h *PaymentHandler) Authenticate(c *gin.Context) {
	var req models.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	data, err := h.orchestrator.Authenticate(c.Request.Context(), req)
	if err != nil {
		telemetry.Logger.Warn("Authenticate failed", zap.String("order_id", req.OrderID), zap.Error(err))
		respondError(c, err)
		return
	}
	respondOK(c, "payment authenticated", data)
}

func (h *PaymentHandler) Approve(c *gin.Context) {
	var req models.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	data, err := h.orchestrator.Approve(c.Request.Context(), req)
	if err != nil {
		telemetry.Logger.Warn("Approve failed",
			zap.String("tid", req.AuthToken),
			zap.String("order_id", req.OrderNumber),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}
	respondOK(c, "payment approved", data)
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	var req models.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	res, err := h.orchestrator.Cancel(c.Request.Context(), req)
	if err != nil {
		telemetry.Logger.Warn("Cancel failed", zap.String("tid", req.Tid), zap.Error(err))
		respondError(c, err)
		return
	}
	respondOK(c, res.Message, res.Data)
}

func (h *PaymentHandler) Prepare(c *gin.Context) {
	var req models.PrepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	res, err := h.orchestrator.Prepare(c.Request.Context(), req)
	if err != nil {
		telemetry.Logger.Warn("Prepare failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		respondError(c, err)
		return
	}
	respondOK(c, res.Message, res.Data)
}

// Return accepts the gateway's redirect as JSON or as a form post.
func (h *PaymentHandler) Return(c *gin.Context) {
	var req models.ReturnRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	data, err := h.orchestrator.HandleReturn(c.Request.Context(), req)
	if err != nil {
		telemetry.Logger.Warn("Gateway return failed", zap.String("order_id", req.OID), zap.Error(err))
		respondError(c, err)
		return
	}
	respondOK(c, "payment authenticated", data)
}
