package corestep

import "golang.org/x/xerrors"

// ErrorKind tags the handful of error conditions the core distinguishes,
// per spec.md §7. Kinds marked fatal propagate up through the compute
// loop and fail the task; the engine performs no silent retry.
type ErrorKind int

const (
	// KindPayloadTooLarge is returned when a per-destination outgoing
	// buffer exceeds the configured limit and the big-buffer path is
	// disabled.
	KindPayloadTooLarge ErrorKind = iota
	// KindStoreIO signals an underlying byte-buffer I/O fault. Fatal.
	KindStoreIO
	// KindInterrupted signals a wait was interrupted. Fatal: treated as
	// a programming error, never retried.
	KindInterrupted
	// KindDuplicateNeighbour signals a philosopher-table initialisation
	// invariant violation (the same neighbour registered twice for one
	// vertex), indicating corrupt partitioning. Fatal.
	KindDuplicateNeighbour
	// KindUnsupportedConfig signals an operator configuration error
	// detected at setup time (e.g. a lock discipline requested under
	// pure BSP). Fatal at configuration time.
	KindUnsupportedConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	case KindStoreIO:
		return "StoreIO"
	case KindInterrupted:
		return "Interrupted"
	case KindDuplicateNeighbour:
		return "DuplicateNeighbour"
	case KindUnsupportedConfig:
		return "UnsupportedConfig"
	default:
		return "Unknown"
	}
}

// Fatal reports whether errors of this kind must fail the owning task
// rather than being tolerated by the caller.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindStoreIO, KindInterrupted, KindDuplicateNeighbour, KindUnsupportedConfig:
		return true
	default:
		return false
	}
}

// Error is the core's typed error value. It wraps an underlying cause
// (if any) and carries the ErrorKind so callers can branch on failure
// class without string matching.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return xerrors.Errorf("%s: %s: %w", e.Kind, e.Message, e.Cause).Error()
	}
	return xerrors.Errorf("%s: %s", e.Kind, e.Message).Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error of the given kind with an optional cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// IsKind reports whether err (or a wrapped cause) is a *Error of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
