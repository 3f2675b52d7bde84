package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every client-side component. Failures are scoped
// to the triggering action; none of these are fatal to the process.
var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrUserRejected        = errors.New("request rejected by user")
	ErrNoSigner            = errors.New("no signer: wallet not connected")
	ErrChainMismatch       = errors.New("wallet is on the wrong network")
	ErrOnChainRevert       = errors.New("transaction reverted on-chain")
	ErrTxDropped           = errors.New("transaction dropped before inclusion")
	ErrValidation          = errors.New("validation failed")
	ErrDelivery            = errors.New("mail delivery failed")
	ErrStore               = errors.New("allow-list store request failed")
	ErrNotFound            = errors.New("record not found")
)

// EIP-1193 / EIP-3085 provider error codes.
const (
	ProviderCodeUserRejected      = 4001
	ProviderCodeUnauthorized      = 4100
	ProviderCodeUnsupportedMethod = 4200
	ProviderCodeDisconnected      = 4900
	ProviderCodeUnrecognizedChain = 4902
)

// ProviderError is an error returned by a wallet provider request.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Is maps the user-rejection code onto ErrUserRejected.
func (e *ProviderError) Is(target error) bool {
	return target == ErrUserRejected && e.Code == ProviderCodeUserRejected
}

// ProviderCode extracts the provider error code, or 0.
func ProviderCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DeliveryError carries the mail transport's diagnostic message.
type DeliveryError struct {
	Transport  string
	Diagnostic string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %s", e.Transport, e.Diagnostic)
}

// Unwrap exposes both the sentinel and the transport cause.
func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDelivery}
	}
	return []error{ErrDelivery, e.Err}
}
