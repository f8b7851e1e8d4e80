package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/provider"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/service"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/txstore"
)

var errDB = errors.New("database unavailable")

// fakeGateway records every call and answers with the configured outcomes.
type fakeGateway struct {
	name string

	mu sync.Mutex

	authOutcome gateway.AuthOutcome
	authCalls   int

	approveOutcome *gateway.ApproveOutcome
	approveErr     error
	approveCalls   []gateway.ApproveRequest
	approveHook    func()

	cancelOutcome *gateway.CancelOutcome
	cancelErr     error
	cancelCalls   []cancelCall
	cancelHook    func()

	netCancelOutcome *gateway.NetworkCancelOutcome
	netCancelErr     error
	netCancelCalls   []gateway.NetworkCancelRequest
}

type cancelCall struct {
	Tid     string
	Reason  string
	Network bool
}

func newFakeGateway(name string) *fakeGateway {
	return &fakeGateway{
		name:             name,
		authOutcome:      gateway.AuthOutcome{ResultCode: gateway.ResultSuccess, Tid: "T1", AuthURL: "https://pg.test/approve", Timestamp: "20240101120000"},
		approveOutcome:   &gateway.ApproveOutcome{ResultCode: gateway.ResultSuccess, Tid: "T1", OrderID: "ORD1", Amount: 1000, PaymentMethod: "CARD", ApprovedAt: "20240101120100"},
		cancelOutcome:    &gateway.CancelOutcome{ResultCode: "00", ResultMsg: "cancelled", CancelTimestamp: "20240102090000"},
		netCancelOutcome: &gateway.NetworkCancelOutcome{ResultCode: gateway.ResultSuccess},
	}
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Authenticate(context.Context, config.Provider, gateway.AuthRequest) gateway.AuthOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authCalls++
	return g.authOutcome
}

func (g *fakeGateway) Approve(_ context.Context, req gateway.ApproveRequest) (*gateway.ApproveOutcome, error) {
	g.mu.Lock()
	g.approveCalls = append(g.approveCalls, req)
	hook := g.approveHook
	out, err := g.approveOutcome, g.approveErr
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	if out == nil {
		return nil, err
	}
	copied := *out
	return &copied, err
}

func (g *fakeGateway) Cancel(_ context.Context, _ config.Provider, tid, reason string, network bool) (*gateway.CancelOutcome, error) {
	g.mu.Lock()
	g.cancelCalls = append(g.cancelCalls, cancelCall{Tid: tid, Reason: reason, Network: network})
	hook := g.cancelHook
	out, err := g.cancelOutcome, g.cancelErr
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, err
}

func (g *fakeGateway) cancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancelCalls)
}

func (g *fakeGateway) NetworkCancel(_ context.Context, req gateway.NetworkCancelRequest) (*gateway.NetworkCancelOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.netCancelCalls = append(g.netCancelCalls, req)
	return g.netCancelOutcome, g.netCancelErr
}

func (g *fakeGateway) approveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.approveCalls)
}

type fakeOrders struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	saveErr   error
	updateErr error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[string]*models.Order)}
}

func (r *fakeOrders) Save(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	copied := *o
	r.orders[o.ID] = &copied
	return nil
}

func (r *fakeOrders) FindByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (r *fakeOrders) UpdateStatus(_ context.Context, id string, status models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	o, ok := r.orders[id]
	if !ok {
		return errors.New("order not found")
	}
	o.Status = status
	return nil
}

func (r *fakeOrders) get(id string) *models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

type fakePayments struct {
	mu       sync.Mutex
	payments []*models.Payment
	saveErr  error
}

func (r *fakePayments) Save(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	p.ID = int64(len(r.payments) + 1)
	p.CreatedAt = time.Now()
	copied := *p
	r.payments = append(r.payments, &copied)
	return nil
}

func (r *fakePayments) FindByTid(_ context.Context, tid string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.PGTid == tid {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakePayments) UpdateStatus(_ context.Context, id int64, status models.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == id {
			p.Status = status
			return nil
		}
	}
	return errors.New("payment not found")
}

func (r *fakePayments) TransitionStatus(_ context.Context, id int64, from, to models.PaymentStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == id && p.Status == from {
			p.Status = to
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakePayments) all() []*models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Payment(nil), r.payments...)
}

// fakeRequests fails Save for entries whose status is in failOn.
type fakeRequests struct {
	mu      sync.Mutex
	entries []models.PaymentRequestLog
	failOn  map[models.RequestStatus]bool
}

func (r *fakeRequests) Save(_ context.Context, e *models.PaymentRequestLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[e.Status] {
		return errDB
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *fakeRequests) withStatus(status models.RequestStatus) []models.PaymentRequestLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentRequestLog
	for _, e := range r.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

type credit struct {
	UserID int64
	Amount int64
}

type fakePoints struct {
	mu       sync.Mutex
	balances map[int64]int64
	credits  []credit
	debits   int
}

func newFakePoints() *fakePoints {
	return &fakePoints{balances: make(map[int64]int64)}
}

func (l *fakePoints) GetBalance(_ context.Context, userID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *fakePoints) Debit(_ context.Context, userID, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return 0, interfaces.ErrInsufficientPoints
	}
	l.debits++
	l.balances[userID] -= amount
	return l.balances[userID], nil
}

func (l *fakePoints) Credit(_ context.Context, userID, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credits = append(l.credits, credit{UserID: userID, Amount: amount})
	l.balances[userID] += amount
	return l.balances[userID], nil
}

func (l *fakePoints) creditsMade() []credit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]credit(nil), l.credits...)
}

func (l *fakePoints) balance(userID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e models.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) states() []models.TxStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.TxStatus
	for _, e := range p.events {
		out = append(out, e.State)
	}
	return out
}

type harness struct {
	orch      *service.Orchestrator
	gw        *fakeGateway
	store     *txstore.MemoryStore
	orders    *fakeOrders
	payments  *fakePayments
	requests  *fakeRequests
	points    *fakePoints
	publisher *recordingPublisher
	provider  config.Provider
}

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, providerName string) *harness {
	t.Helper()

	p := config.Provider{
		Name:       providerName,
		Weight:     100,
		APIURL:     "https://pg.test",
		MerchantID: "MID01",
		APIKey:     "api-key",
		SignKey:    "sign-key",
		HashKey:    "hash-key",
	}
	h := &harness{
		gw:        newFakeGateway(providerName),
		store:     txstore.NewMemoryStore(),
		orders:    newFakeOrders(),
		payments:  &fakePayments{},
		requests:  &fakeRequests{failOn: map[models.RequestStatus]bool{}},
		points:    newFakePoints(),
		publisher: &recordingPublisher{},
		provider:  p,
	}
	h.orch = service.NewOrchestrator(service.Dependencies{
		Registry:  provider.NewRegistry([]config.Provider{p}),
		Gateways:  gateway.NewSet(h.gw),
		Store:     h.store,
		Locker:    txstore.NewMemoryLocker(),
		Orders:    h.orders,
		Payments:  h.payments,
		Requests:  h.requests,
		Points:    h.points,
		Publisher: h.publisher,
	}, service.Options{
		MinimumAmount: 100,
		ReturnURL:     "http://shop.test/return",
		CloseURL:      "http://shop.test/close",
		Clock:         func() time.Time { return fixedNow },
	})
	return h
}

// seedOrder stores a PENDING order as Prepare would have.
func (h *harness) seedOrder(id string, userID, amount int64, points *int64) {
	_ = h.orders.Save(context.Background(), &models.Order{
		ID:           id,
		UserID:       userID,
		ProductName:  "Book",
		ProductPrice: amount,
		TotalAmount:  amount,
		PointAmount:  points,
		CardAmount:   models.Int64Ptr(amount),
		TermsAgreed:  true,
		Status:       models.OrderPending,
	})
}

// seedAuthenticated stores an authenticated transaction for tid and order.
func (h *harness) seedAuthenticated(tid, orderID string, amount int64) {
	_ = h.store.Put(context.Background(), &models.PaymentTransaction{
		Tid:       tid,
		OrderID:   orderID,
		UserID:    7,
		Amount:    amount,
		Provider:  h.provider.Name,
		Status:    models.TxAuthenticated,
		CreatedAt: fixedNow,
	})
}

func authReq(orderID string, amount int64) models.AuthRequest {
	return models.AuthRequest{
		OrderID:     orderID,
		UserID:      7,
		Amount:      amount,
		ProductName: "Book",
		BuyerName:   "Kim",
		BuyerEmail:  "kim@example.com",
		BuyerTel:    "010-0000-0000",
	}
}

func approvalReq(token, orderID string) models.ApprovalRequest {
	return models.ApprovalRequest{
		AuthToken:   token,
		AuthURL:     "https://pg.test/approve",
		MID:         "MID01",
		OrderNumber: orderID,
	}
}
