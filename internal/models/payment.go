package models

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

type PaymentMethod string

const (
	MethodPoint PaymentMethod = "POINT"
	MethodCard  PaymentMethod = "CARD"
	MethodMixed PaymentMethod = "MIXED"
)

// ParsePaymentMethod maps a gateway-reported method onto ours, defaulting to CARD.
func ParsePaymentMethod(s string) PaymentMethod {
	switch PaymentMethod(s) {
	case MethodPoint, MethodMixed:
		return PaymentMethod(s)
	default:
		return MethodCard
	}
}

type PaymentStatus string

const (
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

type RequestType string

const (
	RequestAuth          RequestType = "AUTH"
	RequestApproval      RequestType = "APPROVAL"
	RequestCancel        RequestType = "CANCEL"
	RequestNetworkCancel RequestType = "NETWORK_CANCEL"
)

type RequestStatus string

const (
	RequestPending RequestStatus = "PENDING"
	RequestSuccess RequestStatus = "SUCCESS"
	RequestFailed  RequestStatus = "FAILED"
)

type Order struct {
	ID           string      `json:"id"`
	UserID       int64       `json:"user_id"`
	ProductName  string      `json:"product_name"`
	ProductPrice int64       `json:"product_price"`
	TotalAmount  int64       `json:"total_amount"`
	PointAmount  *int64      `json:"point_amount,omitempty"`
	CardAmount   *int64      `json:"card_amount,omitempty"`
	TermsAgreed  bool        `json:"terms_agreed"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Points returns the points component of the order, zero when absent.
func (o *Order) Points() int64 {
	if o.PointAmount == nil {
		return 0
	}
	return *o.PointAmount
}

type Payment struct {
	ID            int64         `json:"id"`
	UserID        int64         `json:"user_id"`
	OrderID       string        `json:"order_id"`
	PGProvider    string        `json:"pg_provider"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Amount        int64         `json:"amount"`
	PointAmount   *int64        `json:"point_amount,omitempty"`
	CardAmount    *int64        `json:"card_amount,omitempty"`
	PGTid         string        `json:"pg_tid,omitempty"`
	Status        PaymentStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// PaymentRequestLog is the append-only audit record of one exchange with a gateway.
type PaymentRequestLog struct {
	ID           int64         `json:"id"`
	UserID       int64         `json:"user_id"`
	OrderID      string        `json:"order_id"`
	RequestType  RequestType   `json:"request_type"`
	PGProvider   string        `json:"pg_provider"`
	Amount       int64         `json:"amount"`
	RequestData  string        `json:"request_data"`
	ResponseData string        `json:"response_data"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// PaymentEvent is published on every transaction state change.
type PaymentEvent struct {
	Tid           string    `json:"tid"`
	OrderID       string    `json:"order_id"`
	State         TxStatus  `json:"state"`
	PreviousState TxStatus  `json:"previous_state"`
	Provider      string    `json:"provider"`
	Amount        int64     `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// CancelRequestEvent is consumed from the cancel-request topic.
type CancelRequestEvent struct {
	Tid        string     `json:"tid"`
	Reason     string     `json:"reason"`
	CancelType CancelType `json:"cancel_type"`
}

func Int64Ptr(v int64) *int64 { return &v }
