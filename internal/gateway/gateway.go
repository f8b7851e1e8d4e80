// Package gateway adapts the orchestrator's canonical authenticate, approve
// and cancel calls onto each payment gateway's wire protocol.
package gateway

import (
	"context"
	"errors"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
)

const (
	ResultSuccess = "0000"
	// ResultCommFailure is the synthetic result code for an unreachable gateway.
	ResultCommFailure = "9999"
)

var (
	ErrUnreachable = errors.New("payment gateway unreachable")
	ErrNoResponse  = errors.New("payment gateway returned no response")
)

type AuthRequest struct {
	OrderID     string
	Amount      int64
	ProductName string
	BuyerName   string
	BuyerEmail  string
	BuyerTel    string
	ReturnURL   string
	CloseURL    string
}

type AuthOutcome struct {
	ResultCode string
	ResultMsg  string
	Tid        string
	AuthURL    string
	Timestamp  string
}

func (o AuthOutcome) Succeeded() bool { return o.ResultCode == ResultSuccess }

// ApproveRequest carries a signature and verification computed by the caller.
type ApproveRequest struct {
	Provider     config.Provider
	AuthURL      string
	AuthToken    string
	OrderID      string
	Timestamp    int64
	Signature    string
	Verification string
	MID          string
}

type ApproveOutcome struct {
	ResultCode    string
	ResultMsg     string
	Tid           string
	OrderID       string
	Amount        int64
	PaymentMethod string
	ApprovedAt    string
	// NetCancelURL is empty when the gateway offers no network cancel.
	NetCancelURL string
	Raw          string
}

func (o *ApproveOutcome) Succeeded() bool { return o.ResultCode == ResultSuccess }

type CancelOutcome struct {
	ResultCode      string
	ResultMsg       string
	CancelledTid    string
	CancelTimestamp string
	Raw             string
}

// Succeeded accepts both the four- and two-digit success codes gateways use on cancel.
func (o *CancelOutcome) Succeeded() bool {
	return o.ResultCode == ResultSuccess || o.ResultCode == "00"
}

type NetworkCancelRequest struct {
	NetCancelURL string
	MID          string
	AuthToken    string
	SignKey      string
	Price        *int64
}

type NetworkCancelOutcome struct {
	ResultCode string
	ResultMsg  string
}

func (o *NetworkCancelOutcome) Succeeded() bool { return o.ResultCode == ResultSuccess }

// Client talks to exactly one gateway. Authenticate never fails: transport
// problems come back as a ResultCommFailure outcome. The other calls return
// ErrUnreachable or ErrNoResponse (wrapped) on transport problems.
type Client interface {
	Name() string
	Authenticate(ctx context.Context, p config.Provider, req AuthRequest) AuthOutcome
	Approve(ctx context.Context, req ApproveRequest) (*ApproveOutcome, error)
	Cancel(ctx context.Context, p config.Provider, tid, reason string, networkCancel bool) (*CancelOutcome, error)
	NetworkCancel(ctx context.Context, req NetworkCancelRequest) (*NetworkCancelOutcome, error)
}

// Set dispatches to a Client by provider name.
type Set map[string]Client

func NewSet(clients ...Client) Set {
	s := make(Set, len(clients))
	for _, c := range clients {
		s[c.Name()] = c
	}
	return s
}

func (s Set) For(provider string) (Client, bool) {
	c, ok := s[provider]
	return c, ok
}
