package economy

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for callers that map errors to responses.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindPrecondition Kind = "precondition_failed"
	KindNotFound     Kind = "not_found"
	KindConsistency  Kind = "consistency"
	KindUnauthorized Kind = "unauthorized"
)

// Error is a classified engine error. A sentinel with an empty Reason
// matches every error of its Kind under errors.Is.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrPreconditionFailed = &Error{Kind: KindPrecondition}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConsistency        = &Error{Kind: KindConsistency}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}

	ErrInsufficientFunds   = &Error{Kind: KindPrecondition, Reason: "insufficient funds"}
	ErrInsufficientDeposit = &Error{Kind: KindPrecondition, Reason: "insufficient deposit balance"}
	ErrSoldOut             = &Error{Kind: KindPrecondition, Reason: "case sold out"}
	ErrItemLocked          = &Error{Kind: KindPrecondition, Reason: "item is on withdrawal"}
	ErrPromoUsed           = &Error{Kind: KindPrecondition, Reason: "promo code already used"}
	ErrPromoInactive       = &Error{Kind: KindPrecondition, Reason: "promo code is inactive"}
	ErrPromoExhausted      = &Error{Kind: KindPrecondition, Reason: "promo code usage limit reached"}
	ErrPromoExists         = &Error{Kind: KindPrecondition, Reason: "promo code already exists"}
	ErrDepositsDisabled    = &Error{Kind: KindPrecondition, Reason: "deposits are disabled"}
	ErrBelowMinimum        = &Error{Kind: KindPrecondition, Reason: "amount below minimum deposit"}
	ErrInsufficientShares  = &Error{Kind: KindPrecondition, Reason: "insufficient shares available"}
	ErrInsufficientHolding = &Error{Kind: KindPrecondition, Reason: "insufficient holdings"}
	ErrStockExists         = &Error{Kind: KindPrecondition, Reason: "stock already exists"}

	ErrAccountNotFound    = &Error{Kind: KindNotFound, Reason: "account not found"}
	ErrCaseNotFound       = &Error{Kind: KindNotFound, Reason: "case not found"}
	ErrItemNotFound       = &Error{Kind: KindNotFound, Reason: "item not found"}
	ErrWithdrawalNotFound = &Error{Kind: KindNotFound, Reason: "withdrawal not found"}
	ErrPromoNotFound      = &Error{Kind: KindNotFound, Reason: "promo code not found"}
	ErrStockNotFound      = &Error{Kind: KindNotFound, Reason: "stock not found"}

	ErrDrawFailed = &Error{Kind: KindConsistency, Reason: "draw produced no item"}
)

// KindOf returns the Kind of err, or "" for errors the engine did not classify.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
