package models

import "encoding/json"

type CancelType string

const (
	CancelGeneral CancelType = "GENERAL"
	CancelManual  CancelType = "MANUAL"
	CancelNetwork CancelType = "NETWORK"
)

// IsNetwork reports whether the cancel is a system-initiated network cancel.
func (c CancelType) IsNetwork() bool { return c == CancelNetwork }

type AuthRequest struct {
	OrderID     string `json:"order_id" binding:"required"`
	UserID      int64  `json:"user_id"`
	Amount      int64  `json:"amount" binding:"required"`
	ProductName string `json:"product_name" binding:"required"`
	BuyerName   string `json:"buyer_name" binding:"required"`
	BuyerEmail  string `json:"buyer_email" binding:"required"`
	BuyerTel    string `json:"buyer_tel" binding:"required"`
	ReturnURL   string `json:"return_url"`
	CloseURL    string `json:"close_url"`
}

type AuthData struct {
	Tid       string `json:"tid"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Provider  string `json:"pg_provider"`
	AuthURL   string `json:"auth_url"`
	Timestamp string `json:"timestamp"`
}

type ApprovalRequest struct {
	AuthToken   string `json:"auth_token" binding:"required"`
	AuthURL     string `json:"auth_url" binding:"required"`
	MID         string `json:"mid" binding:"required"`
	OrderNumber string `json:"order_number" binding:"required"`
}

type ApprovalData struct {
	Tid           string   `json:"tid"`
	OrderID       string   `json:"order_id"`
	PaymentID     int64    `json:"payment_id"`
	Amount        int64    `json:"amount"`
	Provider      string   `json:"pg_provider"`
	PaymentMethod string   `json:"payment_method"`
	ApprovedAt    string   `json:"approved_at"`
	Status        TxStatus `json:"status"`
}

type CancelRequest struct {
	Tid        string     `json:"tid" binding:"required"`
	Reason     string     `json:"reason" binding:"required"`
	CancelType CancelType `json:"cancel_type"`
}

type CancelData struct {
	Tid             string     `json:"tid"`
	OrderID         string     `json:"order_id"`
	CancelledAmount int64      `json:"cancelled_amount"`
	CancelledAt     string     `json:"cancelled_at"`
	Reason          string     `json:"reason"`
	CancelType      CancelType `json:"cancel_type"`
	RefundedPoints  int64      `json:"refunded_points"`
}

type PrepareRequest struct {
	UserID             int64  `json:"user_id" binding:"required"`
	Amount             int64  `json:"amount" binding:"required"`
	ProductName        string `json:"product_name" binding:"required,max=40"`
	BuyerName          string `json:"buyer_name" binding:"required,max=30"`
	BuyerEmail         string `json:"buyer_email" binding:"required,email"`
	BuyerTel           string `json:"buyer_tel" binding:"required"`
	Timestamp          string `json:"timestamp"`
	IsMobile           bool   `json:"is_mobile"`
	UsePoints          bool   `json:"use_points"`
	PointsToUse        int64  `json:"points_to_use" binding:"min=0"`
	FinalPaymentAmount int64  `json:"final_payment_amount" binding:"min=0"`
	PaymentMethod      string `json:"payment_method" binding:"required"`
}

// PrepareData is what the storefront needs to hand off to a gateway's own
// redirect or SDK flow. Implementations: InicisPrepareData, TossPrepareData,
// HybridPrepareData.
type PrepareData interface {
	PGType() string
	// PGAmount is the amount the gateway will be asked to charge.
	PGAmount() string
	isPrepareData()
}

type InicisPrepareData struct {
	PaymentID    string `json:"paymentId"`
	OID          string `json:"oid"`
	Version      string `json:"version"`
	MID          string `json:"mid"`
	Price        string `json:"price"`
	GoodName     string `json:"goodname"`
	BuyerName    string `json:"buyername"`
	BuyerEmail   string `json:"buyeremail"`
	BuyerTel     string `json:"buyertel"`
	ReturnURL    string `json:"returnUrl"`
	CloseURL     string `json:"closeUrl"`
	Timestamp    string `json:"timestamp"`
	Signature    string `json:"signature"`
	Verification string `json:"verification"`
	MKey         string `json:"mKey"`
}

func (d *InicisPrepareData) PGType() string   { return "inicis" }
func (d *InicisPrepareData) PGAmount() string { return d.Price }
func (d *InicisPrepareData) isPrepareData()   {}

func (d *InicisPrepareData) MarshalJSON() ([]byte, error) {
	type alias InicisPrepareData
	return json.Marshal(struct {
		PGType string `json:"pgType"`
		*alias
	}{d.PGType(), (*alias)(d)})
}

type TossPrepareData struct {
	PaymentID           string `json:"paymentId"`
	OID                 string `json:"oid"`
	Version             string `json:"version"`
	MID                 string `json:"mId"`
	Amount              string `json:"amount"`
	OrderName           string `json:"orderName"`
	CustomerName        string `json:"customerName"`
	CustomerEmail       string `json:"customerEmail"`
	CustomerMobilePhone string `json:"customerMobilePhone"`
	SuccessURL          string `json:"successUrl"`
	FailURL             string `json:"failUrl"`
	Timestamp           string `json:"timestamp"`
	Signature           string `json:"signature"`
	Verification        string `json:"verification"`
	MKey                string `json:"mKey"`
}

func (d *TossPrepareData) PGType() string   { return "toss" }
func (d *TossPrepareData) PGAmount() string { return d.Amount }
func (d *TossPrepareData) isPrepareData()   {}

func (d *TossPrepareData) MarshalJSON() ([]byte, error) {
	type alias TossPrepareData
	return json.Marshal(struct {
		PGType string `json:"pgType"`
		*alias
	}{d.PGType(), (*alias)(d)})
}

// HybridPrepareData wraps the gateway leg of a points + gateway payment.
type HybridPrepareData struct {
	PaymentID     string      `json:"paymentId"`
	OID           string      `json:"oid"`
	PointsUsed    int64       `json:"pointsUsed"`
	PGPaymentData PrepareData `json:"pgPaymentData"`
}

func (d *HybridPrepareData) PGType() string { return "hybrid" }

func (d *HybridPrepareData) PGAmount() string {
	if d.PGPaymentData == nil {
		return "0"
	}
	return d.PGPaymentData.PGAmount()
}

func (d *HybridPrepareData) isPrepareData() {}

func (d *HybridPrepareData) MarshalJSON() ([]byte, error) {
	type alias HybridPrepareData
	return json.Marshal(struct {
		PGType string `json:"pgType"`
		*alias
	}{d.PGType(), (*alias)(d)})
}

// PrepareResult pairs the prepare data with a human-readable message.
type PrepareResult struct {
	Message string
	Data    PrepareData
}

type ReturnRequest struct {
	ResultCode   string `json:"resultCode" form:"resultCode"`
	ResultMsg    string `json:"resultMsg" form:"resultMsg"`
	MID          string `json:"mid" form:"mid"`
	OID          string `json:"oid" form:"oid" binding:"required"`
	Price        string `json:"price" form:"price"`
	AuthToken    string `json:"authToken" form:"authToken"`
	AuthURL      string `json:"authUrl" form:"authUrl"`
	NetCancelURL string `json:"netCancelUrl" form:"netCancelUrl"`
	Timestamp    string `json:"timestamp" form:"timestamp"`
	Signature    string `json:"signature" form:"signature"`
}

type ReturnData struct {
	ResultCode   string `json:"result_code"`
	ResultMsg    string `json:"result_msg"`
	OrderID      string `json:"order_id"`
	Amount       int64  `json:"amount"`
	AuthToken    string `json:"auth_token"`
	AuthURL      string `json:"auth_url"`
	NetCancelURL string `json:"net_cancel_url,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// CancelResult pairs the cancel data with a human-readable message.
type CancelResult struct {
	Message string
	Data    *CancelData
}
