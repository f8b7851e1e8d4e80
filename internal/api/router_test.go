package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/api"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
)

type stubOrchestrator struct{}

func (stubOrchestrator) Authenticate(context.Context, models.AuthRequest) (*models.AuthData, error) {
	return &models.AuthData{}, nil
}

func (stubOrchestrator) Approve(context.Context, models.ApprovalRequest) (*models.ApprovalData, error) {
	return &models.ApprovalData{}, nil
}

func (stubOrchestrator) Cancel(context.Context, models.CancelRequest) (*models.CancelResult, error) {
	return &models.CancelResult{}, nil
}

func (stubOrchestrator) Prepare(context.Context, models.PrepareRequest) (*models.PrepareResult, error) {
	return &models.PrepareResult{}, nil
}

func (stubOrchestrator) HandleReturn(context.Context, models.ReturnRequest) (*models.ReturnData, error) {
	return &models.ReturnData{}, nil
}

func (stubOrchestrator) Transaction(_ context.Context, tid string) (*models.PaymentTransaction, error) {
	return &models.PaymentTransaction{Tid: tid}, nil
}

func (stubOrchestrator) Providers() []config.Provider {
	return []config.Provider{{Name: "inicis", Weight: 100}}
}

func TestRouter_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := api.NewRouter(stubOrchestrator{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"pg-orchestrator"}`, w.Body.String())
}

func TestRouter_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := api.NewRouter(stubOrchestrator{}, nil)

	want := map[string]bool{
		"POST /payments/auth":            false,
		"POST /payments/approve":         false,
		"POST /payments/cancel":          false,
		"POST /payments/prepare":         false,
		"POST /payments/return":          false,
		"GET /payments/transactions/:tid": false,
		"GET /providers":                 false,
		"GET /health":                    false,
		"GET /metrics":                   false,
	}
	for _, route := range r.Routes() {
		key := route.Method + " " + route.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		assert.True(t, found, "missing route %s", route)
	}
}

func TestRouter_CORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := api.NewRouter(stubOrchestrator{}, []string{"http://shop.test"})

	req := httptest.NewRequest(http.MethodOptions, "/payments/auth", nil)
	req.Header.Set("Origin", "http://shop.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://shop.test", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NoCORSWithoutOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := api.NewRouter(stubOrchestrator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	req.Header.Set("Origin", "http://shop.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
