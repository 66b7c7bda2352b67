package errors

import "errors"

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrUserNotFound            = errors.New("user not found")
	ErrUnauthorizedUser        = errors.New("user not authorized to transact")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInvalidTransaction      = errors.New("invalid transaction")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrNilTransaction          = errors.New("transaction is nil")
	ErrInvalidTransactionKind  = errors.New("invalid transaction kind")
	ErrInvalidTransactionState = errors.New("invalid transaction state")
	ErrLedgerUnavailable       = errors.New("ledger service unavailable")
	ErrIdentityUnavailable     = errors.New("identity service unavailable")
	ErrTransactionProcessing   = errors.New("transaction processing failed")
	ErrRequestAlreadyProcessed = errors.New("request already processed")
	ErrInternal                = errors.New("internal error")
)

// IsDomain reports whether err is a terminal business outcome. Domain errors
// are never retried and must not trip a circuit breaker.
func IsDomain(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrUnauthorizedUser) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidTransaction) ||
		errors.Is(err, ErrTransactionNotFound)
}
