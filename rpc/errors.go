package rpc

import (
	"fmt"
	"strings"
)

// Kind classifies an error returned by a remote interface operation, so
// that it round-trips through the wire as the same kind rather than
// degrading to an opaque string, the way a plain net/rpc error would.
type Kind string

const (
	// KindRemote marks a transport-level failure: connect, read, write
	// or deserialize. The substrate itself attaches it to any such
	// failure; the storage server also uses it for local I/O failures.
	KindRemote Kind = "RemoteError"

	// KindNotFound marks a path that does not exist, or a selection
	// that failed because no storage servers are registered.
	KindNotFound Kind = "NotFound"

	// KindArgumentInvalid marks a malformed path, a nil required
	// argument, an out-of-range offset, or an operation disallowed on
	// the root.
	KindArgumentInvalid Kind = "ArgumentInvalid"

	// KindAlreadyRegistered marks a register call naming a storage
	// server already present in the registry.
	KindAlreadyRegistered Kind = "AlreadyRegistered"

	// KindStateError marks a lifecycle method (start, stop) called in
	// the wrong state.
	KindStateError Kind = "StateError"
)

// Error is the concrete error type every remote interface operation
// returns for both transport and logical failures. Message carries
// human-readable detail; Kind lets callers branch on Is/As without
// parsing the message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, &rpc.Error{Kind: rpc.KindNotFound}) works regardless of
// Message.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == "" || other.Kind == e.Kind
}

// NewError builds a logical error of the given kind.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewRemoteError builds a transport-level error wrapping cause.
func NewRemoteError(cause error) *Error {
	return &Error{Kind: KindRemote, Message: cause.Error()}
}

// NotFound, ArgumentInvalid, AlreadyRegistered and StateError are
// convenience constructors for the non-transport error kinds.
func NotFound(format string, args ...interface{}) *Error {
	return NewError(KindNotFound, format, args...)
}

func ArgumentInvalid(format string, args ...interface{}) *Error {
	return NewError(KindArgumentInvalid, format, args...)
}

func AlreadyRegistered(format string, args ...interface{}) *Error {
	return NewError(KindAlreadyRegistered, format, args...)
}

func StateError(format string, args ...interface{}) *Error {
	return NewError(KindStateError, format, args...)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// wireDecode reconstructs the typed error a server-side *Error's Error()
// method produced, since net/rpc propagates only that string to the
// caller, never the value itself. If s does not look like one of ours
// (for instance, a server method returned a plain error instead of
// wrapping it as *Error), it is treated as a KindRemote error: an
// un-typed server error is, from the caller's point of view, exactly as
// informative as a failed call.
func wireDecode(s string) error {
	if s == "" {
		return nil
	}
	for _, kind := range []Kind{KindRemote, KindNotFound, KindArgumentInvalid, KindAlreadyRegistered, KindStateError} {
		prefix := string(kind) + ": "
		if strings.HasPrefix(s, prefix) {
			return &Error{Kind: kind, Message: strings.TrimPrefix(s, prefix)}
		}
	}
	return &Error{Kind: KindRemote, Message: s}
}
