// Package errs defines the error kinds used across the conferencing core.
// Errors are plain Go errors wrapping one of these sentinels with %w, not a
// custom exception hierarchy — callers that care about the kind use
// errors.Is against the sentinels, or Classify for metrics/logging.
package errs

import "errors"

var (
	// ErrInvalidParameter is a contract violation by the caller (nil input,
	// out-of-range size). Reported synchronously; no state change.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNetwork is a transport read/write failure. Marks the connection
	// lost and triggers DRAINING.
	ErrNetwork = errors.New("network error")

	// ErrProtocol covers magic mismatch, unknown type, length-exceeds-limit,
	// CRC failure, and fragmentation violations. Always terminates the
	// offending connection.
	ErrProtocol = errors.New("protocol error")

	// ErrCrypto is a handshake failure or AEAD open failure. Fatal for the
	// session.
	ErrCrypto = errors.New("crypto error")

	// ErrResource is an allocation failure.
	ErrResource = errors.New("resource error")

	// ErrTimeout covers recv/send/reassembly timeouts; these escalate to
	// ErrNetwork by the caller but are distinguished here for logging.
	ErrTimeout = errors.New("timeout")
)

// Kind identifies which sentinel an error wraps, for metrics/logging.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidParameter
	KindNetwork
	KindProtocol
	KindCrypto
	KindResource
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindCrypto:
		return "crypto"
	case KindResource:
		return "resource"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Classify maps err to the Kind of the sentinel it wraps, if any.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrCrypto):
		return KindCrypto
	case errors.Is(err, ErrResource):
		return KindResource
	default:
		return KindUnknown
	}
}
