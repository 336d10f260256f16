// Package apperr defines the error taxonomy surfaced by the inventory engine.
// Callers match on Kind; the message is meant for humans.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling.
type Kind int

// Error kinds.
const (
	Internal Kind = iota
	Unauthorized
	Forbidden
	NotFound
	Validation
	InvalidIdentifier
	DuplicateSKU
	InsufficientStock
	ProductReferenced
	LastWarehouse
	DefaultWarehouseProtected
	WarehouseHasStock
	OrganizationNotEmpty
	InviteExpired
	InviteConsumed
	Conflict
	TransactionTimeout
	CacheUnavailable
	DataIntegrity
)

var kindNames = map[Kind]string{
	Internal:                  "internal",
	Unauthorized:              "unauthorized",
	Forbidden:                 "forbidden",
	NotFound:                  "not_found",
	Validation:                "validation",
	InvalidIdentifier:         "invalid_identifier",
	DuplicateSKU:              "duplicate_sku",
	InsufficientStock:         "insufficient_stock",
	ProductReferenced:         "product_referenced",
	LastWarehouse:             "last_warehouse",
	DefaultWarehouseProtected: "default_warehouse_protected",
	WarehouseHasStock:         "warehouse_has_stock",
	OrganizationNotEmpty:      "organization_not_empty",
	InviteExpired:             "invite_expired",
	InviteConsumed:            "invite_consumed",
	Conflict:                  "conflict",
	TransactionTimeout:        "transaction_timeout",
	CacheUnavailable:          "cache_unavailable",
	DataIntegrity:             "data_integrity",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether an operation failing with this kind may succeed
// if repeated unchanged.
func (k Kind) Retryable() bool {
	return k == TransactionTimeout
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.E(apperr.NotFound, ""))
// works as a kind test.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// E creates a classified error with a formatted message.
func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or Internal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the human-readable message of the outermost classified error,
// falling back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
