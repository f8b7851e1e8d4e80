package gateway

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/signature"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
)

const (
	InicisName = "inicis"

	inicisTimestampLayout = "20060102150405"
	inicisRefundType      = "refund"
)

type InicisClient struct {
	http     poster
	clientIP string
	now      func() time.Time
}

func NewInicisClient(timeout time.Duration) *InicisClient {
	return &InicisClient{http: newPoster(timeout), clientIP: "127.0.0.1", now: time.Now}
}

var _ Client = (*InicisClient)(nil)

func (c *InicisClient) Name() string { return InicisName }

type inicisAuthRequest struct {
	MID        string `json:"mid"`
	OrderID    string `json:"orderid"`
	Price      int64  `json:"price"`
	GoodName   string `json:"goodname"`
	BuyerName  string `json:"buyername"`
	BuyerEmail string `json:"buyeremail"`
	BuyerTel   string `json:"buyertel"`
	ReturnURL  string `json:"returnurl"`
	CloseURL   string `json:"closeurl"`
	Timestamp  string `json:"timestamp"`
	HashData   string `json:"hashData"`
}

type inicisAuthResponse struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
	Tid        string `json:"tid"`
	AuthURL    string `json:"authUrl"`
	Timestamp  string `json:"timestamp"`
}

func (c *InicisClient) Authenticate(ctx context.Context, p config.Provider, req AuthRequest) AuthOutcome {
	ts := c.now().Format(inicisTimestampLayout)
	price := strconv.FormatInt(req.Amount, 10)

	body := inicisAuthRequest{
		MID:        p.MerchantID,
		OrderID:    req.OrderID,
		Price:      req.Amount,
		GoodName:   req.ProductName,
		BuyerName:  req.BuyerName,
		BuyerEmail: req.BuyerEmail,
		BuyerTel:   req.BuyerTel,
		ReturnURL:  req.ReturnURL,
		CloseURL:   req.CloseURL,
		Timestamp:  ts,
		HashData:   signature.SHA256(p.MerchantID, req.OrderID, price, ts, p.HashKey),
	}

	raw, err := c.http.postJSON(ctx, strings.TrimRight(p.APIURL, "/")+"/auth",
		map[string]string{"Authorization": "Bearer " + p.APIKey}, body)
	if err == nil {
		var resp inicisAuthResponse
		if err = decode(raw, &resp); err == nil {
			return AuthOutcome{
				ResultCode: resp.ResultCode,
				ResultMsg:  resp.ResultMsg,
				Tid:        resp.Tid,
				AuthURL:    resp.AuthURL,
				Timestamp:  firstNonEmpty(resp.Timestamp, ts),
			}
		}
	}

	telemetry.Logger.Warn("Inicis authenticate failed",
		zap.String("order_id", req.OrderID),
		zap.Error(err),
	)
	return commFailure(ts)
}

type inicisApprovalResponse struct {
	ResultCode   string  `json:"resultCode"`
	ResultMsg    string  `json:"resultMsg"`
	Tid          string  `json:"tid"`
	MID          string  `json:"mid"`
	MOID         string  `json:"MOID"`
	TotPrice     flexInt `json:"TotPrice"`
	GoodName     string  `json:"goodName"`
	PayMethod    string  `json:"payMethod"`
	ApplDate     string  `json:"applDate"`
	ApplTime     string  `json:"applTime"`
	NetCancelURL string  `json:"netCancelUrl"`
}

func (c *InicisClient) Approve(ctx context.Context, req ApproveRequest) (*ApproveOutcome, error) {
	form := url.Values{}
	form.Set("mid", req.MID)
	form.Set("authToken", req.AuthToken)
	form.Set("timestamp", strconv.FormatInt(req.Timestamp, 10))
	form.Set("signature", req.Signature)
	form.Set("verification", req.Verification)
	form.Set("charset", "UTF-8")
	form.Set("format", "JSON")

	raw, err := c.http.postForm(ctx, req.AuthURL, form)
	if err != nil {
		return nil, err
	}

	var resp inicisApprovalResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}

	return &ApproveOutcome{
		ResultCode:    resp.ResultCode,
		ResultMsg:     resp.ResultMsg,
		Tid:           firstNonEmpty(resp.Tid, req.AuthToken),
		OrderID:       resp.MOID,
		Amount:        int64(resp.TotPrice),
		PaymentMethod: resp.PayMethod,
		ApprovedAt:    resp.ApplDate + resp.ApplTime,
		NetCancelURL:  resp.NetCancelURL,
		Raw:           string(raw),
	}, nil
}

type inicisRefundData struct {
	Tid string `json:"tid"`
	Msg string `json:"msg"`
}

type inicisRefundRequest struct {
	MID       string           `json:"mid"`
	Type      string           `json:"type"`
	Timestamp string           `json:"timestamp"`
	ClientIP  string           `json:"clientIp"`
	HashData  string           `json:"hashData"`
	Data      inicisRefundData `json:"data"`
}

type inicisRefundResponse struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
	CancelDate string `json:"cancelDate"`
	CancelTime string `json:"cancelTime"`
}

// Cancel uses the v2 refund API. A network cancel goes to the netcancel
// endpoint with the same signed payload.
func (c *InicisClient) Cancel(ctx context.Context, p config.Provider, tid, reason string, networkCancel bool) (*CancelOutcome, error) {
	ts := c.now().Format(inicisTimestampLayout)
	data := inicisRefundData{Tid: tid, Msg: reason}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	body := inicisRefundRequest{
		MID:       p.MerchantID,
		Type:      inicisRefundType,
		Timestamp: ts,
		ClientIP:  c.clientIP,
		HashData:  signature.SHA512(p.APIKey, p.MerchantID, inicisRefundType, ts, string(dataJSON)),
		Data:      data,
	}

	endpoint := strings.TrimRight(p.APIURL, "/") + "/v2/pg/refund"
	if networkCancel {
		endpoint = strings.TrimRight(p.APIURL, "/") + "/v2/pg/netcancel"
	}

	raw, err := c.http.postJSON(ctx, endpoint, nil, body)
	if err != nil {
		return nil, err
	}

	var resp inicisRefundResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}

	return &CancelOutcome{
		ResultCode:      resp.ResultCode,
		ResultMsg:       resp.ResultMsg,
		CancelledTid:    tid,
		CancelTimestamp: firstNonEmpty(resp.CancelDate+resp.CancelTime, ts),
		Raw:             string(raw),
	}, nil
}

type inicisNetCancelResponse struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
}

func (c *InicisClient) NetworkCancel(ctx context.Context, req NetworkCancelRequest) (*NetworkCancelOutcome, error) {
	form := networkCancelForm(req, c.now())

	raw, err := c.http.postForm(ctx, req.NetCancelURL, form)
	if err != nil {
		return nil, err
	}

	var resp inicisNetCancelResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	return &NetworkCancelOutcome{ResultCode: resp.ResultCode, ResultMsg: resp.ResultMsg}, nil
}

// networkCancelForm signs authToken+timestamp and authToken+signKey+timestamp.
func networkCancelForm(req NetworkCancelRequest, now time.Time) url.Values {
	ts := strconv.FormatInt(now.UnixMilli(), 10)

	form := url.Values{}
	form.Set("mid", req.MID)
	form.Set("authToken", req.AuthToken)
	form.Set("timestamp", ts)
	form.Set("signature", signature.SHA256(signature.Pairs("authToken", req.AuthToken, "timestamp", ts)))
	form.Set("verification", signature.SHA256(signature.Pairs("authToken", req.AuthToken, "signKey", req.SignKey, "timestamp", ts)))
	form.Set("charset", "UTF-8")
	form.Set("format", "JSON")
	if req.Price != nil {
		form.Set("price", strconv.FormatInt(*req.Price, 10))
	}
	return form
}

func commFailure(ts string) AuthOutcome {
	return AuthOutcome{
		ResultCode: ResultCommFailure,
		ResultMsg:  "PG communication error",
		Timestamp:  ts,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// flexInt accepts both 1000 and "1000".
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}
