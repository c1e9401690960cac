// Package errkind gives the error kinds described in the platform's error
// handling design concrete, distinguishable types so callers can use
// errors.Is/errors.As instead of matching on message text.
package errkind

import "errors"

// Kind identifies one of the platform-wide error categories. The zero value
// is not a valid kind.
type Kind int

const (
	_ Kind = iota
	Timeout
	PeerClosed
	Malformed
	Auth
	Forbidden
	PoolExhausted
	DbTransient
	Duplicate
	RegistryFull
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "Timeout"
	case PeerClosed:
		return "PeerClosed"
	case Malformed:
		return "Malformed"
	case Auth:
		return "Auth"
	case Forbidden:
		return "Forbidden"
	case PoolExhausted:
		return "PoolExhausted"
	case DbTransient:
		return "DbTransient"
	case Duplicate:
		return "Duplicate"
	case RegistryFull:
		return "RegistryFull"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind so it can be tested with
// errors.Is(err, errkind.Timeout) and unwrapped to the original cause.
type Error struct {
	K   Kind
	Op  string // operation that produced the error, e.g. "frame.Recv"
	Err error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.K.String()
	}
	return e.Op + ": " + e.K.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errkind.Timeout) work by comparing Kind against a
// sentinel Kind wrapped as an error via kindSentinel below.
func (e *Error) Is(target error) bool {
	var s *kindSentinel
	if errors.As(target, &s) {
		return e.K == s.k
	}
	return false
}

type kindSentinel struct{ k Kind }

func (s *kindSentinel) Error() string { return s.k.String() }

// sentinels for errors.Is comparisons, e.g. errors.Is(err, errkind.ErrTimeout).
var (
	ErrTimeout       error = &kindSentinel{Timeout}
	ErrPeerClosed    error = &kindSentinel{PeerClosed}
	ErrMalformed     error = &kindSentinel{Malformed}
	ErrAuth          error = &kindSentinel{Auth}
	ErrForbidden     error = &kindSentinel{Forbidden}
	ErrPoolExhausted error = &kindSentinel{PoolExhausted}
	ErrDbTransient   error = &kindSentinel{DbTransient}
	ErrDuplicate     error = &kindSentinel{Duplicate}
	ErrRegistryFull  error = &kindSentinel{RegistryFull}
	ErrFatal         error = &kindSentinel{Fatal}
)

// New builds an *Error of the given kind wrapping cause.
func New(k Kind, op string, cause error) *Error {
	return &Error{K: k, Op: op, Err: cause}
}

// Of reports the Kind of err, or false if err does not carry one.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.K, true
	}
	return 0, false
}
