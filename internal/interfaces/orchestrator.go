package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

// PaymentOrchestrator is the surface the HTTP handlers and the cancel
// consumer drive.
type PaymentOrchestrator interface {
	Authenticate(ctx context.Context, req models.AuthRequest) (*models.AuthData, error)
	Approve(ctx context.Context, req models.ApprovalRequest) (*models.ApprovalData, error)
	Cancel(ctx context.Context, req models.CancelRequest) (*models.CancelResult, error)
	Prepare(ctx context.Context, req models.PrepareRequest) (*models.PrepareResult, error)
	HandleReturn(ctx context.Context, req models.ReturnRequest) (*models.ReturnData, error)
	Transaction(ctx context.Context, tid string) (*models.PaymentTransaction, error)
	Providers() []config.Provider
}
