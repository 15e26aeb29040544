package domain

import "errors"

// Storage and gateway sentinels. Adapters return these; services translate
// them into *Error values carrying a user-facing reason.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicate           = errors.New("duplicate key")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrTransactionNotFound = errors.New("transaction not found at gateway")
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindUnauthorized ErrorKind = "unauthorized"
	KindGateway      ErrorKind = "gateway"
	KindState        ErrorKind = "state"
)

// Error is the typed failure returned by every core operation.
// Reason is safe to show to end users; Err is the underlying cause, if any.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Reason + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func ValidationError(reason string) error   { return &Error{Kind: KindValidation, Reason: reason} }
func NotFoundError(what string) error       { return &Error{Kind: KindNotFound, Reason: what + " not found"} }
func ConflictError(reason string) error     { return &Error{Kind: KindConflict, Reason: reason} }
func UnauthorizedError(reason string) error { return &Error{Kind: KindUnauthorized, Reason: reason} }
func StateError(reason string) error        { return &Error{Kind: KindState, Reason: reason} }

func GatewayError(err error) error {
	return &Error{Kind: KindGateway, Reason: "Payment gateway request failed", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries none (an infrastructure failure).
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsKind(err error, k ErrorKind) bool { return err != nil && KindOf(err) == k }

// ReasonOf returns the user-facing reason of err, or "" when it has none.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}
