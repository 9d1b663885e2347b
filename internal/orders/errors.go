package orders

import (
	"context"
	"errors"
)

// Error kinds returned by the coordinator. Callers match with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("payment reference already used")
	ErrPaymentInit        = errors.New("payment initialization failed")
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrAmountMismatch     = errors.New("verified amount does not match order total")
	ErrNotFound           = errors.New("not found")
	ErrStorage            = errors.New("storage failure")
	ErrNotification       = errors.New("notification failed")
	ErrWalletCurrency     = errors.New("vendor wallet holds a different currency")

	// ErrGatewayUnavailable marks transport failures and timeouts talking to
	// the payment gateway. Gateway adapters wrap it.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Retryable reports whether repeating the same call may succeed without new input.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPaymentInit),
		errors.Is(err, ErrStorage),
		errors.Is(err, ErrGatewayUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}
