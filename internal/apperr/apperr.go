package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/store"
)

const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeBusinessRule       = "BUSINESS_RULE"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeRetry              = "RETRY"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)

// AppError is an error with a stable code and the HTTP status it maps to.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func New(code string, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func ErrValidation(message string) *AppError {
	return New(CodeValidationError, message, http.StatusBadRequest)
}

func ErrBadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func ErrNotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NotFound builds a 404 for a tenant-scoped lookup miss that still matches store.ErrNotFound.
func NotFound(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id).Wrap(store.ErrNotFound)
}

func ErrConflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

func ErrUnauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func ErrForbidden(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return New(CodeForbidden, message, http.StatusForbidden)
}

func ErrInternal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return New(CodeInternalError, message, http.StatusInternalServerError)
}

func ErrServiceUnavailable(service string) *AppError {
	return New(CodeServiceUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable)
}

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "too many attempts, try again later", http.StatusTooManyRequests)
}

type fieldErrors interface {
	error
	Fields() map[string]string
}

// From classifies any error returned by the core into an AppError. Unknown errors become a
// masked 500 that still wraps the cause for logging.
func From(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var fe fieldErrors
	if errors.As(err, &fe) {
		return ErrValidation("validation failed").WithDetails(fe.Fields()).Wrap(err)
	}

	var ruleErr *domain.RuleError
	switch {
	case errors.Is(err, domain.ErrMissingTenant):
		return ErrUnauthorized("missing tenant context").Wrap(err)
	case errors.Is(err, domain.ErrOwnerRequired):
		return ErrForbidden(domain.ErrOwnerRequired.Error()).Wrap(err)
	case errors.Is(err, domain.ErrRetry):
		return New(CodeRetry, domain.ErrRetry.Error(), http.StatusConflict).Wrap(err)
	case errors.Is(err, store.ErrUnavailable):
		return ErrServiceUnavailable("transactional store").Wrap(err)
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound("resource").Wrap(err)
	case errors.Is(err, store.ErrDuplicateKey):
		return ErrConflict("resource already exists").Wrap(err)
	case errors.As(err, &ruleErr):
		return New(CodeBusinessRule, ruleErr.Message, http.StatusBadRequest).WithDetail("rule", ruleErr.Code).Wrap(err)
	}

	return ErrInternal("").Wrap(err)
}
