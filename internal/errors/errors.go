// Package errors defines the gateway error taxonomy and the JSON error
// responder shared by every handler. Each error carries a stable code that
// maps onto exactly one HTTP status, so rejection semantics stay uniform
// across the router, the proxy engine and the admin surface.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes making up the gateway taxonomy.
const (
	CodeUnknownService     = "UNKNOWN_SERVICE"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeUpstreamError      = "UPSTREAM_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
)

// GatewayError is the error type surfaced to callers of gateway components.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return e.Message
}

// NewUnknownService reports a service name absent from the static topology.
// This is a configuration defect and fatal at startup validation.
func NewUnknownService(service string) *GatewayError {
	return &GatewayError{
		Code:    CodeUnknownService,
		Message: fmt.Sprintf("Unknown service %s", service),
	}
}

// NewServiceUnavailable reports that every known instance of a service is
// currently unhealthy.
func NewServiceUnavailable(service string) *GatewayError {
	return &GatewayError{
		Code:    CodeServiceUnavailable,
		Message: fmt.Sprintf("Service %s is unavailable", service),
	}
}

// NewUpstreamTimeout reports an abandoned upstream call.
func NewUpstreamTimeout(service string) *GatewayError {
	return &GatewayError{
		Code:    CodeUpstreamTimeout,
		Message: fmt.Sprintf("Service %s timed out", service),
	}
}

// NewUpstreamError reports a failed upstream exchange that was neither a
// timeout nor a clean business response.
func NewUpstreamError(service string) *GatewayError {
	return &GatewayError{
		Code:    CodeUpstreamError,
		Message: fmt.Sprintf("Service %s returned an invalid response", service),
	}
}

// NewRateLimited reports an admission-control rejection.
func NewRateLimited() *GatewayError {
	return &GatewayError{Code: CodeRateLimited, Message: "Rate limit exceeded"}
}

// NewAuthRequired reports a route that demands a non-anonymous identity.
func NewAuthRequired() *GatewayError {
	return &GatewayError{Code: CodeAuthRequired, Message: "Authentication required"}
}

// NewForbidden reports an authenticated identity below the route's tier.
func NewForbidden() *GatewayError {
	return &GatewayError{Code: CodeForbidden, Message: "Insufficient permissions"}
}

// NewNotFound reports an unroutable path.
func NewNotFound() *GatewayError {
	return &GatewayError{Code: CodeNotFound, Message: "The requested resource was not found"}
}

// NewMethodNotAllowed reports a known path with an unsupported method.
func NewMethodNotAllowed() *GatewayError {
	return &GatewayError{Code: CodeMethodNotAllowed, Message: "The requested method is not allowed for this resource"}
}

// NewInternal reports an unexpected gateway-side failure. The message stays
// generic so no internal detail leaks to callers.
func NewInternal() *GatewayError {
	return &GatewayError{Code: CodeInternal, Message: "Internal gateway error"}
}

// HTTPStatusFromCode resolves the HTTP status corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeAuthRequired:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstreamError:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body returned for every rejection.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError normalizes err into a GatewayError and writes the JSON
// rejection body with the matching status code. Non-gateway errors collapse
// to a generic internal error so stack traces and addresses never escape.
func RespondWithError(w http.ResponseWriter, err error) {
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr == nil {
		gwErr = NewInternal()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatusFromCode(gwErr.Code))
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: gwErr.Message})
}

// IsCode reports whether err is a GatewayError with the given code.
func IsCode(err error, code string) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Code == code
}
