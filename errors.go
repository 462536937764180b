package angelos7

import (
	"fmt"
)

// Kind identifies the class of an Error, independent of its message. Callers
// should compare against the Err* sentinels with errors.Is, not against the
// message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidFormat
	KindIntegrityError
	KindLocked
	KindNotFound
	KindAlreadyExists
	KindNotADirectory
	KindIsADirectory
	KindDirectoryNotEmpty
	KindOutOfBounds
	KindPositionMismatch
	KindDuplicateKey
	KindIoError
	KindCancelled
	KindUnsupportedCompression
	KindValueError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "InvalidFormat"
	case KindIntegrityError:
		return "IntegrityError"
	case KindLocked:
		return "Locked"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindNotADirectory:
		return "NotADirectory"
	case KindIsADirectory:
		return "IsADirectory"
	case KindDirectoryNotEmpty:
		return "DirectoryNotEmpty"
	case KindOutOfBounds:
		return "OutOfBounds"
	case KindPositionMismatch:
		return "PositionMismatch"
	case KindDuplicateKey:
		return "DuplicateKey"
	case KindIoError:
		return "IoError"
	case KindCancelled:
		return "Cancelled"
	case KindUnsupportedCompression:
		return "UnsupportedCompression"
	case KindValueError:
		return "ValueError"
	default:
		return "Unknown"
	}
}

// Error is the structured error value surfaced by every layer of the
// archive. It carries a Kind (for programmatic dispatch), a context string
// (for humans), and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, angelos7.ErrNotFound) works against wrapped instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for errors.Is comparisons. Their Context/Cause fields are
// unused; build a fresh *Error with Wrap/Newf for returning from a call.
var (
	ErrInvalidFormat          = &Error{Kind: KindInvalidFormat}
	ErrIntegrityError         = &Error{Kind: KindIntegrityError}
	ErrLocked                 = &Error{Kind: KindLocked}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrAlreadyExists          = &Error{Kind: KindAlreadyExists}
	ErrNotADirectory          = &Error{Kind: KindNotADirectory}
	ErrIsADirectory           = &Error{Kind: KindIsADirectory}
	ErrDirectoryNotEmpty      = &Error{Kind: KindDirectoryNotEmpty}
	ErrOutOfBounds            = &Error{Kind: KindOutOfBounds}
	ErrPositionMismatch       = &Error{Kind: KindPositionMismatch}
	ErrDuplicateKey           = &Error{Kind: KindDuplicateKey}
	ErrIoError                = &Error{Kind: KindIoError}
	ErrCancelled              = &Error{Kind: KindCancelled}
	ErrUnsupportedCompression = &Error{Kind: KindUnsupportedCompression}
	ErrValueError             = &Error{Kind: KindValueError}
)

// Newf builds a new Error of the given kind with a formatted context string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Context: fmt.Sprintf(format, args...)}
}

// Wrap builds a new Error of the given kind, wrapping cause and adding
// context, following the teacher's xerrors.Errorf("...: %w", err) idiom one
// layer up: internal packages use xerrors.Errorf directly for plain
// wrapping, and reach for Wrap only at a layer boundary where a Kind must be
// attached for callers to dispatch on.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Context: fmt.Sprintf(format, args...), Cause: cause}
}
