package contracts

import "fmt"

// ErrorCode is the stable numeric identity of an engine error. Codes are
// part of the persisted/audited surface and never renumbered.
type ErrorCode uint32

const (
	CodeInsufficientBalance    ErrorCode = 1
	CodeInvalidAddress         ErrorCode = 2
	CodeUnauthorized           ErrorCode = 3
	CodeInvalidAmount          ErrorCode = 4
	CodeTransactionNotFound    ErrorCode = 5
	CodeEscrowNotFound         ErrorCode = 6
	CodeConditionsNotMet       ErrorCode = 7
	CodeEscrowExpired          ErrorCode = 8
	CodeInvoiceNotFound        ErrorCode = 9
	CodeInvoiceAlreadyApproved ErrorCode = 10
	CodeInvoiceExpired         ErrorCode = 11
	CodeInvalidSignature       ErrorCode = 12
	CodeReentrancyDetected     ErrorCode = 13
)

// Error is a typed engine error. All workflow failures are returned as
// values of this type; hosts match them with errors.Is against the
// sentinel values below.
type Error struct {
	Code   ErrorCode
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("covenant: %s (code %d)", e.Reason, e.Code)
}

// Is matches any error carrying the same code, so wrapped errors still
// compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel errors, one per taxonomy entry.
var (
	ErrInsufficientBalance    = &Error{CodeInsufficientBalance, "insufficient balance"}
	ErrInvalidAddress         = &Error{CodeInvalidAddress, "invalid address"}
	ErrUnauthorized           = &Error{CodeUnauthorized, "unauthorized"}
	ErrInvalidAmount          = &Error{CodeInvalidAmount, "invalid amount"}
	ErrTransactionNotFound    = &Error{CodeTransactionNotFound, "transaction not found"}
	ErrEscrowNotFound         = &Error{CodeEscrowNotFound, "escrow not found"}
	ErrConditionsNotMet       = &Error{CodeConditionsNotMet, "conditions not met"}
	ErrEscrowExpired          = &Error{CodeEscrowExpired, "escrow expired"}
	ErrInvoiceNotFound        = &Error{CodeInvoiceNotFound, "invoice not found"}
	ErrInvoiceAlreadyApproved = &Error{CodeInvoiceAlreadyApproved, "invoice already approved"}
	ErrInvoiceExpired         = &Error{CodeInvoiceExpired, "invoice expired"}
	ErrInvalidSignature       = &Error{CodeInvalidSignature, "invalid signature"}
	ErrReentrancyDetected     = &Error{CodeReentrancyDetected, "reentrancy detected"}
)
