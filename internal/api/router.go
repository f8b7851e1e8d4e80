package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/handlers"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

const serviceName = "pg-orchestrator"

// NewRouter wires every HTTP route. CORS is enabled only when origins are
// configured.
func NewRouter(orchestrator interfaces.PaymentOrchestrator, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	if len(allowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "X-Trace-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	txHandler := handlers.NewTransactionHandler(orchestrator)

	payments := r.Group("/payments")
	{
		payments.POST("/auth", paymentHandler.Authenticate)
		payments.POST("/approve", paymentHandler.Approve)
		payments.POST("/cancel", paymentHandler.Cancel)
		payments.POST("/prepare", paymentHandler.Prepare)
		payments.POST("/return", paymentHandler.Return)
		payments.GET("/transactions/:tid", txHandler.GetTransaction)
	}
	r.GET("/providers", txHandler.ListProviders)

	return r
}
