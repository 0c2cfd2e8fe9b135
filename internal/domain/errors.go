package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error codes returned by ledger operations.
const (
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeBatchInUse          = "BATCH_IN_USE"
	CodeNotFound            = "NOT_FOUND"
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeInvalidInput        = "INVALID_INPUT"
)

// Error is a typed ledger failure. Two errors match under errors.Is when
// their codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrInsufficientStock   = NewError(CodeInsufficientStock, "insufficient stock")
	ErrBatchInUse          = NewError(CodeBatchInUse, "batch in use")
	ErrNotFound            = NewError(CodeNotFound, "not found")
	ErrConstraintViolation = NewError(CodeConstraintViolation, "constraint violation")
	ErrInvalidInput        = NewError(CodeInvalidInput, "invalid input")
)

func InsufficientStock(productID int64, requested, available decimal.Decimal) *Error {
	return NewError(CodeInsufficientStock, fmt.Sprintf(
		"insufficient stock for product %d: requested %s, available %s",
		productID, requested.String(), available.String(),
	))
}

func BatchInUse(batchID int64) *Error {
	return NewError(CodeBatchInUse, fmt.Sprintf("batch %d has already been drawn by sales", batchID))
}

func NotFound(kind string, id int64) *Error {
	return NewError(CodeNotFound, fmt.Sprintf("%s %d not found", kind, id))
}

func Constraint(format string, args ...any) *Error {
	return NewError(CodeConstraintViolation, fmt.Sprintf(format, args...))
}

func Invalid(format string, args ...any) *Error {
	return NewError(CodeInvalidInput, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
