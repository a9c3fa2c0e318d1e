// Package coreerr defines the error taxonomy shared by the light client
// core. Every package in this module that can fail in a caller-meaningful
// way returns (or wraps) an *Error rather than an ad-hoc sentinel, so a
// caller can switch on Kind regardless of which component raised it.
package coreerr

import "fmt"

// Kind enumerates the error taxonomy. Callers should switch on Kind, not on
// the error's message, since the message text is not part of the contract.
type Kind int

const (
	// KindCryptoInvalidEncoding covers non-canonical scalars, wrong-length
	// keys, bad points, and signature verification failures.
	KindCryptoInvalidEncoding Kind = iota
	// KindCodecInvalid covers malformed varints, unknown variant tags in a
	// required slot, truncated buffers, and extra-field overruns.
	KindCodecInvalid
	// KindTransport covers RPC failures, timeouts, and non-OK responses.
	KindTransport
	// KindInsufficientFunds covers coin selection shortfalls.
	KindInsufficientFunds
	// KindNoPreciseStakingOutputs covers a failed exact (amount, fee) pick.
	KindNoPreciseStakingOutputs
	// KindRejected covers a node refusing a submitted transaction.
	KindRejected
	// KindStopped covers an operation aborted by the cooperative stop flag.
	KindStopped
)

func (k Kind) String() string {
	switch k {
	case KindCryptoInvalidEncoding:
		return "crypto_invalid_encoding"
	case KindCodecInvalid:
		return "codec_invalid"
	case KindTransport:
		return "transport"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindNoPreciseStakingOutputs:
		return "no_precise_staking_outputs"
	case KindRejected:
		return "rejected"
	case KindStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by the core. Fields beyond Kind
// and Msg are populated selectively depending on Kind (e.g. Required/
// Available for KindInsufficientFunds).
type Error struct {
	Kind      Kind
	Msg       string
	Required  uint64 // KindInsufficientFunds
	Available uint64 // KindInsufficientFunds
	Err       error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a plain *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// InsufficientFunds builds the KindInsufficientFunds variant with amounts.
func InsufficientFunds(required, available uint64) *Error {
	return &Error{
		Kind:      KindInsufficientFunds,
		Msg:       fmt.Sprintf("need %d, have %d", required, available),
		Required:  required,
		Available: available,
	}
}

// Is allows errors.Is(err, coreerr.New(kind, "")) to match on Kind alone
// when the sentinel has no Msg/Err set, letting callers test for a kind
// without string-matching.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg != "" || t.Err != nil {
		return false
	}
	return e.Kind == t.Kind
}
