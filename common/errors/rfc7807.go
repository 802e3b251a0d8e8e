package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ProblemDetails represents RFC 7807 compliant error response
type ProblemDetails struct {
	// Type is a URI reference that identifies the problem type
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Status is the HTTP status code
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence of the problem
	Detail string `json:"detail"`
	// Instance is a URI reference that identifies the specific occurrence of the problem
	Instance  string    `json:"instance,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"traceId,omitempty"`
	// Errors contains field-specific validation errors
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents field-specific validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const (
	TypeValidationError   = "https://api.pincex.com/errors/validation-error"
	TypeUnauthorized      = "https://api.pincex.com/errors/unauthorized"
	TypeForbidden         = "https://api.pincex.com/errors/forbidden"
	TypeNotFound          = "https://api.pincex.com/errors/not-found"
	TypeConflict          = "https://api.pincex.com/errors/conflict"
	TypeInternalError     = "https://api.pincex.com/errors/internal-error"
	TypeInsufficientFunds = "https://api.pincex.com/errors/insufficient-funds"
	TypeInvalidOrder      = "https://api.pincex.com/errors/invalid-order"
	TypeOrderNotOpen      = "https://api.pincex.com/errors/order-not-open"
)

const (
	TitleValidationError   = "Validation Error"
	TitleUnauthorized      = "Unauthorized"
	TitleForbidden         = "Forbidden"
	TitleNotFound          = "Not Found"
	TitleConflict          = "Conflict"
	TitleInternalError     = "Internal Server Error"
	TitleInsufficientFunds = "Insufficient Funds"
	TitleInvalidOrder      = "Invalid Order"
	TitleOrderNotOpen      = "Order Not Open"
)

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// AddValidationError adds a single validation error
func (p *ProblemDetails) AddValidationError(field, message, code string) *ProblemDetails {
	p.Errors = append(p.Errors, ValidationError{
		Field:   field,
		Message: message,
		Code:    code,
	})
	return p
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

// NewValidationError creates a validation error
func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeUnauthorized, TitleUnauthorized, http.StatusUnauthorized, detail, instance)
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeForbidden, TitleForbidden, http.StatusForbidden, detail, instance)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

// NewConflictError creates a conflict error
func NewConflictError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeConflict, TitleConflict, http.StatusConflict, detail, instance)
}

// NewInternalError creates an internal server error
func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// NewInsufficientFundsError covers both a short quote balance and a short asset.
func NewInsufficientFundsError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInsufficientFunds, TitleInsufficientFunds, http.StatusUnprocessableEntity, detail, instance)
}

// NewInvalidOrderError creates an invalid order error
func NewInvalidOrderError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInvalidOrder, TitleInvalidOrder, http.StatusBadRequest, detail, instance)
}

// NewOrderNotOpenError creates an order not open error
func NewOrderNotOpenError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeOrderNotOpen, TitleOrderNotOpen, http.StatusConflict, detail, instance)
}
