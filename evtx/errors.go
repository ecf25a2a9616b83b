package evtx

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies record decoding errors.
type Kind uint8

const (
	KindUnknown Kind = iota
	InvalidArgument
	AlreadySet
	OutOfBounds
	UnsupportedFormat
	InsufficientMemory
	IOError
	CopyFailed
	GetFailed
	ValueMissing
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	InvalidArgument:    "invalid argument",
	AlreadySet:         "value already set",
	OutOfBounds:        "out of bounds",
	UnsupportedFormat:  "unsupported format",
	InsufficientMemory: "insufficient memory",
	IOError:            "read failed",
	CopyFailed:         "copy failed",
	GetFailed:          "get failed",
	ValueMissing:       "value missing",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is returned by record operations. Op names the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// IsKind reports whether an *Error of kind k is in the chain of err.
func IsKind(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Kind == k {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}
