package sqlstore

import (
	"errors"
	"fmt"
)

// CodecErrorKind categorizes column codec failures.
type CodecErrorKind string

const (
	// KindMalformed indicates a stored value that cannot be decoded into its
	// domain type (bad hex, truncated consensus bytes, invalid JSON, unknown
	// network name).
	KindMalformed CodecErrorKind = "MALFORMED"

	// KindOutOfRange indicates a stored value outside the domain type's
	// representable range (negative or excessive satoshi amounts).
	KindOutOfRange CodecErrorKind = "OUT_OF_RANGE"
)

// CodecError is returned when a column value cannot be converted to or from
// its domain type. It always wraps the root cause so callers can distinguish
// permanent data corruption from other failures.
type CodecError struct {
	// Kind identifies the failure category.
	Kind CodecErrorKind

	// Role names the column role being converted (e.g. "hash", "amount").
	Role string

	// Cause is the underlying conversion error.
	Cause error
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s column: %v", e.Kind, e.Role, e.Cause)
	}
	return fmt.Sprintf("%s %s column", e.Kind, e.Role)
}

// Unwrap returns the root cause.
func (e *CodecError) Unwrap() error {
	return e.Cause
}

// MalformedError wraps cause as a malformed-value codec error for the given
// column role.
func MalformedError(role string, cause error) *CodecError {
	return &CodecError{Kind: KindMalformed, Role: role, Cause: cause}
}

// OutOfRangeError wraps cause as an out-of-range codec error for the given
// column role.
func OutOfRangeError(role string, cause error) *CodecError {
	return &CodecError{Kind: KindOutOfRange, Role: role, Cause: cause}
}

// ErrSchemaRegression is returned by Migrate when the recorded version of a
// schema exceeds the highest version in the supplied script list. Shrinking a
// script list below an applied version is unsupported.
var ErrSchemaRegression = errors.New("recorded schema version exceeds supplied scripts")
