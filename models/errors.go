package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	ErrorKindNotFound          ErrorKind = "NotFound"
	ErrorKindInsufficientStock ErrorKind = "InsufficientStock"
	ErrorKindDuplicateId       ErrorKind = "DuplicateId"
	ErrorKindValidation        ErrorKind = "Validation"
	ErrorKindStoreUnavailable  ErrorKind = "StoreUnavailable"
	ErrorKindEmptyCart         ErrorKind = "EmptyCart"
)

// LedgerError carries the kind callers branch on plus a human-readable message.
// errors.Is matches any two LedgerErrors of the same kind.
type LedgerError struct {
	Kind    ErrorKind
	Entity  string
	ID      string
	Message string
	Err     error
}

var (
	ErrNotFound          = &LedgerError{Kind: ErrorKindNotFound, Message: "not found"}
	ErrInsufficientStock = &LedgerError{Kind: ErrorKindInsufficientStock, Message: "insufficient stock"}
	ErrDuplicateId       = &LedgerError{Kind: ErrorKindDuplicateId, Message: "duplicate id"}
	ErrValidation        = &LedgerError{Kind: ErrorKindValidation, Message: "validation failed"}
	ErrStoreUnavailable  = &LedgerError{Kind: ErrorKindStoreUnavailable, Message: "store unavailable"}
	ErrEmptyCart         = &LedgerError{Kind: ErrorKindEmptyCart, Message: "cart is empty"}
)

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first LedgerError in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

func NotFound(entity EntityKind, id string) error {
	return &LedgerError{
		Kind:    ErrorKindNotFound,
		Entity:  string(entity),
		ID:      id,
		Message: fmt.Sprintf("%s %q not found", entity, id),
	}
}

func InsufficientStock(productId string, name string, available int, requested int) error {
	return &LedgerError{
		Kind:    ErrorKindInsufficientStock,
		Entity:  string(EntityProduct),
		ID:      productId,
		Message: fmt.Sprintf("insufficient stock for %q: %d available, %d requested", name, available, requested),
	}
}

func DuplicateId(entity EntityKind, id string) error {
	return &LedgerError{
		Kind:    ErrorKindDuplicateId,
		Entity:  string(entity),
		ID:      id,
		Message: fmt.Sprintf("duplicate %s id %q", entity, id),
	}
}

func Validation(format string, args ...any) error {
	return &LedgerError{
		Kind:    ErrorKindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

func StoreUnavailable(err error) error {
	if err == nil {
		return nil
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return err
	}
	return &LedgerError{
		Kind:    ErrorKindStoreUnavailable,
		Message: "store unavailable",
		Err:     err,
	}
}

func EmptyCart() error {
	return &LedgerError{Kind: ErrorKindEmptyCart, Message: "cart is empty"}
}

func requirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return Validation("%s must be greater than zero", field)
	}
	return nil
}
