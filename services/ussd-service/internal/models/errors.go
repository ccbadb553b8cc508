package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindPermission          ErrorKind = "permission"
	KindResourceUnavailable ErrorKind = "resource_unavailable"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindNotFound            ErrorKind = "not_found"
	KindTimeout             ErrorKind = "timeout"
	KindUnclassified        ErrorKind = "external_outcome_unclassified"
)

const (
	CodeInvalidOperator     = "INVALID_OPERATOR"
	CodeInvalidPhone        = "INVALID_PHONE"
	CodeInvalidCode         = "INVALID_CODE"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeInvalidOffer        = "INVALID_OFFER"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeDeviceInactive      = "DEVICE_INACTIVE"
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeNoResource          = "NO_RESOURCE"
	CodeNotFound            = "NOT_FOUND"
	CodeTimeout             = "TIMEOUT"
	CodeUnclassified        = "UNCLASSIFIED_OUTCOME"
)

// GatewayError is a known, user-facing failure. Message is safe to show to the caller.
type GatewayError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return e.Message
}

func NewValidationError(code, message string) *GatewayError {
	return &GatewayError{Kind: KindValidation, Code: code, Message: message}
}

func NewPermissionError(message string) *GatewayError {
	return &GatewayError{Kind: KindPermission, Code: CodePermissionDenied, Message: message}
}

func NewResourceUnavailableError(operator string) *GatewayError {
	return &GatewayError{
		Kind:    KindResourceUnavailable,
		Code:    CodeNoResource,
		Message: fmt.Sprintf("no resource available for operator %s", operator),
	}
}

func NewInsufficientBalanceError(balance, cost float64) *GatewayError {
	return &GatewayError{
		Kind:    KindInsufficientBalance,
		Code:    CodeInsufficientBalance,
		Message: fmt.Sprintf("insufficient balance: current balance is %.2f, %.2f required", balance, cost),
	}
}

func NewNotFoundError(entity string) *GatewayError {
	return &GatewayError{Kind: KindNotFound, Code: CodeNotFound, Message: entity + " not found"}
}

func NewTimeoutError(message string) *GatewayError {
	return &GatewayError{Kind: KindTimeout, Code: CodeTimeout, Message: message}
}

func NewUnclassifiedError(raw string) *GatewayError {
	return &GatewayError{
		Kind:    KindUnclassified,
		Code:    CodeUnclassified,
		Message: fmt.Sprintf("response %q matched no message template", raw),
	}
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of the first GatewayError in err's chain, or "" for unknown errors.
func KindOf(err error) ErrorKind {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}
