package errors

import (
	stderrors "errors"
)

// Domain errors returned by the stores and services. Callers match them
// with errors.Is; wrapping with %w is preserved.
var (
	ErrInsufficientBalance = stderrors.New("insufficient balance")
	ErrInsufficientAsset   = stderrors.New("insufficient asset")
	ErrNotFound            = stderrors.New("not found")
	ErrOrderNotOpen        = stderrors.New("order is not open")
	ErrInvalidOrder        = stderrors.New("invalid order")
	ErrForbidden           = stderrors.New("forbidden")
	ErrConflict            = stderrors.New("conflict")
	ErrInvalidInput        = stderrors.New("invalid input")
)

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// FromError maps any error onto a ProblemDetails. Unknown errors become
// 500s and their text is not leaked to the client.
func FromError(err error, instance string) *ProblemDetails {
	var pd *ProblemDetails
	if stderrors.As(err, &pd) {
		return pd
	}

	switch {
	case stderrors.Is(err, ErrInsufficientBalance), stderrors.Is(err, ErrInsufficientAsset):
		return NewInsufficientFundsError(err.Error(), instance)
	case stderrors.Is(err, ErrNotFound):
		return NewNotFoundError(err.Error(), instance)
	case stderrors.Is(err, ErrOrderNotOpen):
		return NewOrderNotOpenError(err.Error(), instance)
	case stderrors.Is(err, ErrInvalidOrder):
		return NewInvalidOrderError(err.Error(), instance)
	case stderrors.Is(err, ErrInvalidInput):
		return NewValidationError(err.Error(), instance)
	case stderrors.Is(err, ErrForbidden):
		return NewForbiddenError(err.Error(), instance)
	case stderrors.Is(err, ErrConflict):
		return NewConflictError(err.Error(), instance)
	default:
		return NewInternalError("internal error", instance)
	}
}
