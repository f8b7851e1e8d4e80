package service

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindProviderNotConfigured Kind = "PROVIDER_NOT_CONFIGURED"
	KindGatewayRejected       Kind = "GATEWAY_REJECTED"
	KindApprovalNoResponse    Kind = "APPROVAL_NO_RESPONSE"
	KindApprovalRejected      Kind = "APPROVAL_REJECTED"
	KindCancelNoResponse      Kind = "CANCEL_NO_RESPONSE"
	KindCancelRejected        Kind = "CANCEL_REJECTED"
	KindTransactionNotFound   Kind = "TRANSACTION_NOT_FOUND"
	KindOrderMismatch         Kind = "ORDER_MISMATCH"
	KindPaymentNotFound       Kind = "PAYMENT_NOT_FOUND"
	KindInvalidState          Kind = "INVALID_STATE"
	KindAmountMismatch        Kind = "AMOUNT_MISMATCH"
	KindSystem                Kind = "SYSTEM"
)

// ErrAmountTooLow is wrapped by the validation error returned for amounts
// under the configured minimum.
var ErrAmountTooLow = errors.New("amount below minimum")

// PaymentError is the single error type the orchestrator returns.
type PaymentError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *PaymentError {
	return &PaymentError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, KindSystem for foreign errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindSystem
}

// systemError wraps an unexpected failure, keeping an existing PaymentError as is.
func systemError(err error, format string, args ...any) error {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return err
	}
	return newError(KindSystem, err, format, args...)
}
