package contract

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrMethodNotSupported  = errors.New("method not supported")
	ErrProviderTransient   = errors.New("provider transient failure")
	ErrProviderTerminal    = errors.New("provider terminal failure")
	ErrCacheCorruption     = errors.New("cache entry corrupt")
	ErrMirrorWriteDegraded = errors.New("mirror write degraded")

	ErrDuplicateCapability = errors.New("capability already registered")
	ErrUnknownCapability   = errors.New("unknown capability")
)

// ErrorKind is the machine-readable error tag of the invocation contract.
type ErrorKind string

const (
	KindValidation         ErrorKind = "ValidationError"
	KindMethodNotSupported ErrorKind = "MethodNotSupported"
	KindProviderTransient  ErrorKind = "ProviderTransientError"
	KindProviderTerminal   ErrorKind = "ProviderTerminalError"
	KindCacheCorruption    ErrorKind = "CacheCorruption"
	KindMirrorDegraded     ErrorKind = "MirrorWriteDegraded"
	KindUnknownCapability  ErrorKind = "UnknownCapability"
	KindInternal           ErrorKind = "InternalError"
)

// KindOf maps an error chain onto its contract kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrMethodNotSupported):
		return KindMethodNotSupported
	case errors.Is(err, ErrProviderTransient):
		return KindProviderTransient
	case errors.Is(err, ErrProviderTerminal):
		return KindProviderTerminal
	case errors.Is(err, ErrCacheCorruption):
		return KindCacheCorruption
	case errors.Is(err, ErrMirrorWriteDegraded):
		return KindMirrorDegraded
	case errors.Is(err, ErrUnknownCapability):
		return KindUnknownCapability
	default:
		return KindInternal
	}
}

// Retryable reports whether an error may be retried with backoff.
// Only transient provider failures qualify; validation and configuration
// errors must surface immediately.
func Retryable(err error) bool {
	return errors.Is(err, ErrProviderTransient)
}
