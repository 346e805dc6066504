package service

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindForbidden   Kind = "forbidden"
	KindConflict    Kind = "conflict"
	KindPersistence Kind = "persistence"
)

type Code string

const (
	CodeEmptyCart            Code = "EmptyCart"
	CodeMissingShippingInfo  Code = "MissingShippingInfo"
	CodeProductNotFound      Code = "ProductNotFound"
	CodeInsufficientStock    Code = "InsufficientStock"
	CodeInvalidQuantity      Code = "InvalidQuantity"
	CodeInvalidPaymentMethod Code = "InvalidPaymentMethod"
	CodeInvalidStatus        Code = "InvalidStatus"
	CodeInvalidUpdate        Code = "InvalidUpdate"
	CodeInvalidTransition    Code = "InvalidTransition"
	CodeOrderNotFound        Code = "OrderNotFound"
	CodeForbidden            Code = "Forbidden"
	CodeRevisionConflict     Code = "RevisionConflict"
	CodePersistenceFailure   Code = "PersistenceFailure"
)

// Error is the single error type returned by the checkout and lifecycle services.
// Two errors are equal under errors.Is when their codes match.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrEmptyCart            = &Error{Kind: KindValidation, Code: CodeEmptyCart, Message: "cart is empty"}
	ErrMissingShippingInfo  = &Error{Kind: KindValidation, Code: CodeMissingShippingInfo, Message: "missing shipping information"}
	ErrProductNotFound      = &Error{Kind: KindNotFound, Code: CodeProductNotFound, Message: "product not found"}
	ErrInsufficientStock    = &Error{Kind: KindConflict, Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrInvalidQuantity      = &Error{Kind: KindValidation, Code: CodeInvalidQuantity, Message: "quantity must be at least 1"}
	ErrInvalidPaymentMethod = &Error{Kind: KindValidation, Code: CodeInvalidPaymentMethod, Message: "unsupported payment method"}
	ErrInvalidStatus        = &Error{Kind: KindValidation, Code: CodeInvalidStatus, Message: "invalid order status"}
	ErrInvalidUpdate        = &Error{Kind: KindValidation, Code: CodeInvalidUpdate, Message: "invalid order update"}
	ErrInvalidTransition    = &Error{Kind: KindConflict, Code: CodeInvalidTransition, Message: "status transition not allowed"}
	ErrOrderNotFound        = &Error{Kind: KindNotFound, Code: CodeOrderNotFound, Message: "order not found"}
	ErrForbidden            = &Error{Kind: KindForbidden, Code: CodeForbidden, Message: "not allowed to perform this action"}
	ErrRevisionConflict     = &Error{Kind: KindConflict, Code: CodeRevisionConflict, Message: "order was modified concurrently"}
	ErrPersistence          = &Error{Kind: KindPersistence, Code: CodePersistenceFailure, Message: "storage failure"}
)

// withDetail copies a sentinel, replacing the message and attaching fields.
func withDetail(base *Error, message string, fields ...string) *Error {
	e := *base
	if message != "" {
		e.Message = message
	}
	e.Fields = fields
	return &e
}

func persistenceError(message string, err error) *Error {
	e := *ErrPersistence
	e.Message = message
	e.Err = err
	return &e
}

// AsError extracts the service error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
