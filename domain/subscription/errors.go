package subscription

import "errors"

// Error classes surfaced at the action boundary. Derivations never return
// these; they report missing data through their ok results instead.
var (
	// ErrMissingConfiguration means a contract address or wallet-connect
	// identifier is not configured. Not retried.
	ErrMissingConfiguration = errors.New("missing configuration")

	// ErrReadUnavailable means an on-chain read failed or was disabled.
	ErrReadUnavailable = errors.New("ledger read unavailable")

	// ErrInvalidInput means user-entered input (slot count, addresses) was rejected
	// before any write was attempted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrWriteRejected means a ledger write failed or was rejected by the signer.
	ErrWriteRejected = errors.New("write rejected")

	// ErrPartialPaymentFailure means the allowance was granted but the payment
	// call failed. Funds were not moved; the allowance may still be outstanding.
	ErrPartialPaymentFailure = errors.New("allowance granted but payment failed")

	// ErrPaymentInFlight means another write is still pending for the same session.
	ErrPaymentInFlight = errors.New("a payment is already in flight")
)
