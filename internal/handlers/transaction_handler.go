package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
)

// TransactionHandler exposes read-only views of in-flight transactions and
// the configured providers.
type TransactionHandler struct {
	orchestrator interfaces.PaymentOrchestrator
}

func NewTransactionHandler(orchestrator interfaces.PaymentOrchestrator) *TransactionHandler {
	return &TransactionHandler{orchestrator: orchestrator}
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	tx, err := h.orchestrator.Transaction(c.Request.Context(), c.Param("tid"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "transaction found", tx)
}

// ListProviders never exposes credentials.
func (h *TransactionHandler) ListProviders(c *gin.Context) {
	providers := h.orchestrator.Providers()
	out := make([]gin.H, 0, len(providers))
	for _, p := range providers {
		out = append(out, gin.H{"name": p.Name, "weight": p.Weight})
	}
	respondOK(c, "providers", out)
}
