package gateway

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

const (
	TossName = "toss"

	tossTimestampLayout = "2006-01-02T15:04:05"
)

type TossClient struct {
	http poster
	now  func() time.Time
}

func NewTossClient(timeout time.Duration) *TossClient {
	return &TossClient{http: newPoster(timeout), now: time.Now}
}

var _ Client = (*TossClient)(nil)

func (c *TossClient) Name() string { return TossName }

type tossAuthRequest struct {
	MID                 string `json:"mId"`
	Version             string `json:"version"`
	OrderID             string `json:"orderId"`
	OrderName           string `json:"orderName"`
	Amount              int64  `json:"amount"`
	CustomerName        string `json:"customerName"`
	CustomerEmail       string `json:"customerEmail"`
	CustomerMobilePhone string `json:"customerMobilePhone"`
	SuccessURL          string `json:"successUrl"`
	FailURL             string `json:"failUrl"`
	Timestamp           string `json:"timestamp"`
}

type tossAuthResponse struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	PaymentKey  string `json:"paymentKey"`
	CheckoutURL string `json:"checkoutUrl"`
	Timestamp   string `json:"timestamp"`
}

func (c *TossClient) Authenticate(ctx context.Context, p config.Provider, req AuthRequest) AuthOutcome {
	ts := c.now().Format(tossTimestampLayout)

	body := tossAuthRequest{
		MID:                 p.MerchantID,
		Version:             "1.0",
		OrderID:             req.OrderID,
		OrderName:           req.ProductName,
		Amount:              req.Amount,
		CustomerName:        req.BuyerName,
		CustomerEmail:       req.BuyerEmail,
		CustomerMobilePhone: req.BuyerTel,
		SuccessURL:          req.ReturnURL,
		FailURL:             req.CloseURL,
		Timestamp:           ts,
	}

	raw, err := c.http.postJSON(ctx, strings.TrimRight(p.APIURL, "/")+"/v1/brandpay/payments/ready",
		basicAuth(p.APIKey), body)
	if err == nil {
		var resp tossAuthResponse
		if err = decode(raw, &resp); err == nil {
			code := resp.Code
			if code == "" || code == "SUCCESS" {
				code = ResultSuccess
			}
			return AuthOutcome{
				ResultCode: code,
				ResultMsg:  resp.Message,
				Tid:        resp.PaymentKey,
				AuthURL:    resp.CheckoutURL,
				Timestamp:  firstNonEmpty(resp.Timestamp, ts),
			}
		}
	}

	telemetry.Logger.Warn("Toss authenticate failed",
		zap.String("order_id", req.OrderID),
		zap.Error(err),
	)
	return commFailure(ts)
}

type tossApprovalRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
}

type tossApprovalResponse struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	Method      string `json:"method"`
	ApprovedAt  string `json:"approvedAt"`
}

// Approve confirms the payment at authURL, or at the provider's confirm
// endpoint when the caller has none.
func (c *TossClient) Approve(ctx context.Context, req ApproveRequest) (*ApproveOutcome, error) {
	endpoint := req.AuthURL
	if endpoint == "" {
		endpoint = strings.TrimRight(req.Provider.APIURL, "/") + "/v1/payments/confirm"
	}

	raw, err := c.http.postJSON(ctx, endpoint, basicAuth(req.Provider.APIKey),
		tossApprovalRequest{PaymentKey: req.AuthToken, OrderID: req.OrderID})
	if err != nil {
		return nil, err
	}

	var resp tossApprovalResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}

	out := &ApproveOutcome{
		ResultCode:    ResultCommFailure,
		ResultMsg:     "approval failed: " + resp.Status,
		Tid:           firstNonEmpty(resp.PaymentKey, req.AuthToken),
		OrderID:       resp.OrderID,
		Amount:        resp.TotalAmount,
		PaymentMethod: tossMethod(resp.Method),
		ApprovedAt:    resp.ApprovedAt,
		Raw:           string(raw),
	}
	if resp.Status == "DONE" || resp.Status == "SUCCESS" {
		out.ResultCode = ResultSuccess
		out.ResultMsg = "approved"
	}
	return out, nil
}

type tossCancelRequest struct {
	CancelReason string `json:"cancelReason"`
}

type tossCancelResponse struct {
	PaymentKey string `json:"paymentKey"`
	Status     string `json:"status"`
	CanceledAt string `json:"canceledAt"`
}

func (c *TossClient) Cancel(ctx context.Context, p config.Provider, tid, reason string, networkCancel bool) (*CancelOutcome, error) {
	suffix := "/cancel"
	if networkCancel {
		suffix = "/cancel-auth"
	}
	endpoint := strings.TrimRight(p.APIURL, "/") + "/v1/payments/" + url.PathEscape(tid) + suffix

	raw, err := c.http.postJSON(ctx, endpoint, basicAuth(p.APIKey), tossCancelRequest{CancelReason: reason})
	if err != nil {
		return nil, err
	}

	var resp tossCancelResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}

	out := &CancelOutcome{
		ResultCode:      ResultCommFailure,
		ResultMsg:       "cancel failed: " + resp.Status,
		CancelledTid:    firstNonEmpty(resp.PaymentKey, tid),
		CancelTimestamp: firstNonEmpty(resp.CanceledAt, c.now().Format(tossTimestampLayout)),
		Raw:             string(raw),
	}
	if strings.Contains(resp.Status, "CANCEL") && resp.Status != "CANCEL_FAILED" {
		out.ResultCode = ResultSuccess
		out.ResultMsg = "cancelled"
	}
	return out, nil
}

type tossNetCancelResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *TossClient) NetworkCancel(ctx context.Context, req NetworkCancelRequest) (*NetworkCancelOutcome, error) {
	raw, err := c.http.postForm(ctx, req.NetCancelURL, networkCancelForm(req, c.now()))
	if err != nil {
		return nil, err
	}

	var resp tossNetCancelResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}

	code := resp.Code
	if code == "" || code == "SUCCESS" {
		code = ResultSuccess
	}
	return &NetworkCancelOutcome{ResultCode: code, ResultMsg: resp.Message}, nil
}

func basicAuth(apiKey string) map[string]string {
	return map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey+":")),
	}
}

// tossMethod maps Toss method names onto the canonical payment methods.
func tossMethod(m string) string {
	switch m {
	case "카드", "CARD", "card":
		return "CARD"
	case "포인트", "POINT":
		return "POINT"
	default:
		return m
	}
}
