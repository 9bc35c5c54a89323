package driver

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the underlying cause.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message
	Cause error   // The underlying error (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("KVError (code %s): %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("KVError (code %s): %s", e.Code, e.Msg)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// WrapError creates a new Error with the given code and message wrapping
// the underlying cause.
func WrapError(code RetCode, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// CodeOf extracts the RetCode from an error. A nil error reports
// RetCSuccess; errors that are not of type *Error are reported as
// RetCOperationFailed.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCOperationFailed
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess               RetCode = iota // 0: Operation executed successfully.
	RetCDriverNotFound                       // 1: No supported driver could be selected.
	RetCDriverUnavailable                    // 2: Driver selected but its backend cannot be reached.
	RetCInvalidConfig                        // 3: Malformed configuration option.
	RetCInvalidArgument                      // 4: Malformed call argument.
	RetCUnsupportedOperation                 // 5: Required capability absent on this driver or host.
	RetCOperationFailed                      // 6: Backend or primitive failed.
	RetCDeserializationFailed                // 7: Stored envelope undecodable.
	RetCQuotaExceeded                        // 8: Write would exceed capacity and eviction could not reclaim enough.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCDriverNotFound:
		return "DriverNotFound"
	case RetCDriverUnavailable:
		return "DriverUnavailable"
	case RetCInvalidConfig:
		return "InvalidConfig"
	case RetCInvalidArgument:
		return "InvalidArgument"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCOperationFailed:
		return "OperationFailed"
	case RetCDeserializationFailed:
		return "DeserializationFailed"
	case RetCQuotaExceeded:
		return "QuotaExceeded"
	default:
		return "Unknown"
	}
}
