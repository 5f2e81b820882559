package domain

import (
	"errors"
	"fmt"
)

// Kind tags a failure with the pipeline concern it came from.
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindLoad       Kind = "LoadError"
	KindConfig     Kind = "ConfigError"
	KindEmbedding  Kind = "EmbeddingError"
	KindStorage    Kind = "StorageError"
	KindGeneration Kind = "GenerationError"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrLoad       = &Error{Kind: KindLoad}
	ErrConfig     = &Error{Kind: KindConfig}
	ErrEmbedding  = &Error{Kind: KindEmbedding}
	ErrStorage    = &Error{Kind: KindStorage}
	ErrGeneration = &Error{Kind: KindGeneration}
)

// Error is a tagged failure. Unavailable marks backend-unreachable
// conditions so boundaries can signal them distinctly.
type Error struct {
	Kind        Kind
	Op          string
	Err         error
	Unavailable bool
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrStorage)
// works through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds a tagged error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error from a format string.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Unavailable builds a tagged error for an unreachable backend.
func Unavailable(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Unavailable: true}
}

// KindOf returns the kind of the outermost tagged error in err's chain,
// or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsUnavailable reports whether any tagged error in err's chain marks an
// unreachable backend.
func IsUnavailable(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Unavailable {
			return true
		}
		err = e.Err
	}
	return false
}
