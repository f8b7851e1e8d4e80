package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/service"
)

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindOrderMismatch, service.KindInvalidState,
		service.KindAmountMismatch, service.KindProviderNotConfigured:
		return http.StatusBadRequest
	case service.KindTransactionNotFound, service.KindPaymentNotFound:
		return http.StatusNotFound
	case service.KindGatewayRejected, service.KindApprovalRejected, service.KindCancelRejected:
		return http.StatusPaymentRequired
	case service.KindApprovalNoResponse, service.KindCancelNoResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// respondError renders a PaymentError with its kind. Anything else is an
// internal error and its text is not exposed.
func respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	message := "internal server error"

	var pe *service.PaymentError
	if errors.As(err, &pe) {
		message = pe.Message
	}

	c.JSON(statusFor(kind), gin.H{
		"success": false,
		"kind":    kind,
		"message": message,
	})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"kind":    service.KindValidation,
		"message": err.Error(),
	})
}
