package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Kind classifies an error for callers that must decide between retrying,
// rejecting the request or reporting a missing entity.
type Kind string

const (
	KindUnknown    Kind = ""
	KindContention Kind = "contention"
	KindInvariant  Kind = "invariant"
	KindNotFound   Kind = "not_found"
	KindInvalid    Kind = "invalid"
	KindUpstream   Kind = "upstream"
)

// KindError is a sentinel error carrying a Kind. Compare with errors.Is.
type KindError struct {
	kind Kind
	msg  string
}

// New returns a classified sentinel error.
func New(kind Kind, msg string) *KindError {
	return &KindError{kind: kind, msg: msg}
}

func (e *KindError) Error() string { return e.msg }
func (e *KindError) Kind() Kind    { return e.kind }

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindContention, KindUpstream:
		return true
	default:
		return false
	}
}

// Wrap adds context and preserves the error chain (errors.Is/As works).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context and preserves the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// WithStack captures a stack trace once, at the root cause boundary.
func WithStack(err error) error {
	if err == nil {
		return nil
	}

	var se *StackError
	if errors.As(err, &se) {
		return err
	}

	return &StackError{
		err:   err,
		stack: debug.Stack(),
	}
}

type StackError struct {
	err   error
	stack []byte
}

func (e *StackError) Error() string { return e.err.Error() }
func (e *StackError) Unwrap() error { return e.err }
func (e *StackError) Stack() []byte { return e.stack }

// Loggable renders err as a slog group: slog.Any("err", errs.Loggable(err)).
type loggable struct{ err error }

func Loggable(err error) slog.LogValuer { return loggable{err: err} }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.Any("chain", ErrorChainStrings(l.err)),
	}
	if kind := KindOf(l.err); kind != KindUnknown {
		attrs = append(attrs, slog.String("kind", string(kind)))
	}

	var se *StackError
	if errors.As(l.err, &se) {
		attrs = append(attrs, slog.String("stack", string(se.Stack())))
	}

	return slog.GroupValue(attrs...)
}

// ErrorChainStrings returns the unwrap chain as strings (outer -> inner).
// Joined errors contribute each branch in order.
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}

	out := make([]string, 0, 8)
	var walk func(e error)
	walk = func(e error) {
		for e != nil {
			out = append(out, e.Error())
			if joined, ok := e.(interface{ Unwrap() []error }); ok {
				for _, inner := range joined.Unwrap() {
					walk(inner)
				}
				return
			}
			e = errors.Unwrap(e)
		}
	}
	walk(err)
	return out
}
