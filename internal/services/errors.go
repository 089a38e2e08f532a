package services

import (
	"errors"
	"fmt"
)

// ErrorKind groups failures by how the caller should react to them.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindBusinessRule
	KindNotFound
	KindConflict
	KindAuthorization
	KindState
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrorInfo describes one failure mode of the order lifecycle.
type ErrorInfo struct {
	Name    string
	Kind    ErrorKind
	Message string
}

var (
	ErrInvalidInput = ErrorInfo{
		Name:    "InvalidInput",
		Kind:    KindValidation,
		Message: "The request is missing or has malformed fields",
	}
	ErrEmptyCart = ErrorInfo{
		Name:    "EmptyCart",
		Kind:    KindBusinessRule,
		Message: "Your cart is empty",
	}
	ErrProductUnavailable = ErrorInfo{
		Name:    "ProductUnavailable",
		Kind:    KindBusinessRule,
		Message: "A product in your cart is no longer available",
	}
	ErrInsufficientStock = ErrorInfo{
		Name:    "InsufficientStock",
		Kind:    KindBusinessRule,
		Message: "Not enough stock for a product in your cart",
	}
	ErrBelowMinimumOrder = ErrorInfo{
		Name:    "BelowMinimumOrder",
		Kind:    KindBusinessRule,
		Message: "Order subtotal is below the minimum order amount",
	}
	ErrZoneNotFound = ErrorInfo{
		Name:    "ZoneNotFound",
		Kind:    KindBusinessRule,
		Message: "The delivery location is outside every delivery zone",
	}
	ErrNotFound = ErrorInfo{
		Name:    "NotFound",
		Kind:    KindNotFound,
		Message: "Order not found",
	}
	ErrCartItemNotFound = ErrorInfo{
		Name:    "CartItemNotFound",
		Kind:    KindNotFound,
		Message: "Cart item not found",
	}
	ErrStaffNotFound = ErrorInfo{
		Name:    "StaffNotFound",
		Kind:    KindNotFound,
		Message: "Delivery staff member not found",
	}
	ErrInvalidTransition = ErrorInfo{
		Name:    "InvalidTransition",
		Kind:    KindState,
		Message: "The order cannot move to the requested state",
	}
	ErrAlreadyCancelled = ErrorInfo{
		Name:    "AlreadyCancelled",
		Kind:    KindState,
		Message: "This order has been cancelled",
	}
	ErrAlreadyDelivered = ErrorInfo{
		Name:    "AlreadyDelivered",
		Kind:    KindState,
		Message: "This order has already been delivered",
	}
	ErrNotYetAssigned = ErrorInfo{
		Name:    "NotYetAssigned",
		Kind:    KindState,
		Message: "This order has not been assigned for delivery",
	}
	ErrNotStarted = ErrorInfo{
		Name:    "NotStarted",
		Kind:    KindState,
		Message: "You must start the delivery before confirming it",
	}
	ErrNotOutForDelivery = ErrorInfo{
		Name:    "NotOutForDelivery",
		Kind:    KindState,
		Message: "This order is not out for delivery",
	}
	ErrCodeMismatch = ErrorInfo{
		Name:    "CodeMismatch",
		Kind:    KindBusinessRule,
		Message: "The delivery code does not match",
	}
	ErrWrongAssignee = ErrorInfo{
		Name:    "WrongAssignee",
		Kind:    KindAuthorization,
		Message: "This delivery is not assigned to you",
	}
	ErrInactiveStaff = ErrorInfo{
		Name:    "InactiveStaff",
		Kind:    KindBusinessRule,
		Message: "The selected user is not an active delivery staff member",
	}
	ErrForbidden = ErrorInfo{
		Name:    "Forbidden",
		Kind:    KindAuthorization,
		Message: "You are not allowed to act on this order",
	}
	ErrCodeSpaceExhausted = ErrorInfo{
		Name:    "CodeSpaceExhausted",
		Kind:    KindFatal,
		Message: "No delivery confirmation codes are left",
	}
	ErrAllocationExhausted = ErrorInfo{
		Name:    "AllocationExhausted",
		Kind:    KindFatal,
		Message: "Could not allocate unique order identifiers",
	}
)

// Error is a lifecycle failure. Detail refines the catalog message for the
// caller; Err keeps the underlying cause for logs.
type Error struct {
	Info   ErrorInfo
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Info.Name
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same catalog entry.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Info.Name == e.Info.Name
	}
	return false
}

// Message is the caller-facing text.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Info.Message
}

// Fail builds an *Error for a catalog entry.
func Fail(info ErrorInfo) *Error {
	return &Error{Info: info}
}

// Failf builds an *Error with a formatted detail message.
func Failf(info ErrorInfo, format string, args ...any) *Error {
	return &Error{Info: info, Detail: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a lifecycle *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Info.Kind == kind
}
