package gorollup

import (
	"fmt"

	"github.com/pkg/errors"
)

// error codes
const (
	ErrCodeGeneral         = "rollup.general"
	ErrCodeMissingField    = "rollup.missing_field"
	ErrCodeUnknownStatus   = "rollup.unknown_status"
	ErrCodeMalformedStream = "rollup.malformed_stream"
	ErrCodeMalformedDoc    = "rollup.malformed_document"
	ErrCodeStaleVersion    = "rollup.stale_version"
	ErrCodeNotFound        = "rollup.not_found"
	ErrCodeDbFail          = "rollup.db_fail"
	ErrCodeInvalidWindow   = "rollup.invalid_window"
)

// RollupError is the error type returned by every operation of GoRollup
type RollupError interface {
	error
	Code() string
	Message() string
	Unwrap() error
}

type rollupError struct {
	code  string
	msg   string
	cause error
}

// NewRollupError create a RollupError. If the last element of args is an error, it is kept as the cause
// and is not used to format msg.
func NewRollupError(code string, msg string, args ...interface{}) RollupError {
	var cause error
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			cause = errors.WithStack(err)
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &rollupError{code: code, msg: msg, cause: cause}
}

func (e *rollupError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, errors.Cause(e.cause))
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *rollupError) Code() string {
	return e.code
}

func (e *rollupError) Message() string {
	return e.msg
}

func (e *rollupError) Unwrap() error {
	return e.cause
}

// MissingFieldError is returned when a document ends without a required field
type MissingFieldError struct {
	Entity string
	Field  string
}

// NewMissingFieldError create a MissingFieldError for field of entity
func NewMissingFieldError(entity, field string) *MissingFieldError {
	return &MissingFieldError{Entity: entity, Field: field}
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeMissingField, e.Message())
}

func (e *MissingFieldError) Code() string {
	return ErrCodeMissingField
}

func (e *MissingFieldError) Message() string {
	return fmt.Sprintf("%s must not be null in %s", e.Field, e.Entity)
}

func (e *MissingFieldError) Unwrap() error {
	return nil
}

// HasCode reports whether any RollupError in err's chain carries code
func HasCode(err error, code string) bool {
	var re RollupError
	for err != nil {
		if errors.As(err, &re) {
			if re.Code() == code {
				return true
			}
			err = re.Unwrap()
			continue
		}
		return false
	}
	return false
}

// IsStaleVersion reports whether err is a rejected write on an outdated seqNo/primaryTerm pair
func IsStaleVersion(err error) bool {
	return HasCode(err, ErrCodeStaleVersion)
}

// IsNotFound reports whether err means the metadata does not exist
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsMissingField reports whether err is a MissingFieldError
func IsMissingField(err error) bool {
	var mfe *MissingFieldError
	return errors.As(err, &mfe)
}
