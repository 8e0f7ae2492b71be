package jsonapi

import (
	"fmt"
	"net/http"
	"strconv"
)

// ErrorBuilder assembles an Error.
type ErrorBuilder struct {
	e Error
}

func NewError(status int, code, title string) *ErrorBuilder {
	return &ErrorBuilder{e: Error{Status: strconv.Itoa(status), Code: code, Title: title}}
}

func (b *ErrorBuilder) Detail(detail string) *ErrorBuilder {
	b.e.Detail = detail
	return b
}

func (b *ErrorBuilder) Detailf(format string, args ...any) *ErrorBuilder {
	return b.Detail(fmt.Sprintf(format, args...))
}

// Pointer names the offending document member, e.g. "/data/attributes/relays".
func (b *ErrorBuilder) Pointer(pointer string) *ErrorBuilder {
	b.source().Pointer = pointer
	return b
}

// Parameter names the offending query parameter.
func (b *ErrorBuilder) Parameter(param string) *ErrorBuilder {
	b.source().Parameter = param
	return b
}

// Header names the offending request header.
func (b *ErrorBuilder) Header(header string) *ErrorBuilder {
	b.source().Header = header
	return b
}

func (b *ErrorBuilder) source() *ErrorSource {
	if b.e.Source == nil {
		b.e.Source = &ErrorSource{}
	}
	return b.e.Source
}

func (b *ErrorBuilder) Build() Error {
	return b.e
}

// ErrConflict is a 409 carrying a domain-specific code such as "org_busy".
func ErrConflict(code, detail string) Error {
	return NewError(http.StatusConflict, code, "Conflict").Detail(detail).Build()
}

// ErrServiceUnavailable reports a store or backend that could not serve
// the request.
func ErrServiceUnavailable(detail string) Error {
	if detail == "" {
		detail = "Service temporarily unavailable"
	}
	return NewError(http.StatusServiceUnavailable, "service_unavailable", "Service Unavailable").Detail(detail).Build()
}

// ErrInvalidUsageEvent rejects the batch event at index.
func ErrInvalidUsageEvent(index int, detail string) Error {
	return NewError(http.StatusUnprocessableEntity, "invalid_usage_event", "Invalid Usage Event").
		Detail(detail).
		Pointer(fmt.Sprintf("/data/%d/attributes", index)).
		Build()
}

// ErrInvalidDayRange rejects a malformed or reversed from/to query.
func ErrInvalidDayRange(detail string) Error {
	return NewError(http.StatusBadRequest, "invalid_day_range", "Invalid Day Range").
		Detail(detail).
		Parameter("from").
		Build()
}

// ErrInvalidSignature rejects a webhook whose signature did not verify.
func ErrInvalidSignature(detail string) Error {
	return NewError(http.StatusBadRequest, "invalid_signature", "Invalid Signature").
		Detail(detail).
		Header("Stripe-Signature").
		Build()
}
