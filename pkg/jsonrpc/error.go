package jsonrpc

import (
	"errors"
	"fmt"
)

// JSON-RPC 2.0 protocol error codes.
const (
	CodeParseError     int64 = -32700
	CodeInvalidRequest int64 = -32600
	CodeMethodNotFound int64 = -32601
	CodeInvalidParams  int64 = -32602
	CodeInternalError  int64 = -32603
)

// Provider error codes defined by EIP-1193.
const (
	CodeUserRejected      int64 = 4001
	CodeUnauthorized      int64 = 4100
	CodeUnsupportedMethod int64 = 4200
	CodeDisconnected      int64 = 4900
	CodeChainDisconnected int64 = 4901
)

// defaultErrorMessage is what callers see when a failure carries no
// client-safe message of its own.
const defaultErrorMessage = "An internal error has occurred"

// StructuredError is the error object a failure response carries on the
// wire. It doubles as a regular Go error, so a handler can return one
// directly and the exact code, message, and data reach the caller unchanged.
//
// Errors that are not StructuredError are treated as internal: their text is
// replaced with a generic message before crossing the wire. Use one of the
// constructors whenever the caller is meant to see the details.
//
// Example usage:
//
//	if req.ChainID == "" {
//	    return jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "chain id is required")
//	}
type StructuredError struct {
	// Code classifies the failure, using the JSON-RPC or EIP-1193 ranges.
	Code int64 `json:"code"`
	// Message is a short, human-readable description.
	Message string `json:"message"`
	// Data optionally carries the value that caused the failure.
	Data any `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// NewError builds a StructuredError with an explicit code, message, and
// optional data payload.
func NewError(code int64, message string, data any) *StructuredError {
	return &StructuredError{Code: code, Message: message, Data: data}
}

// Errorf builds a StructuredError from a format string. The formatted
// message is client-safe and crosses the wire verbatim.
func Errorf(code int64, format string, args ...any) *StructuredError {
	return &StructuredError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NormalizeError coerces any error into the structured form. A
// StructuredError anywhere in err's chain passes through unchanged;
// everything else becomes an internal error with a generic message, keeping
// incidental detail out of responses.
func NormalizeError(err error) *StructuredError {
	if err == nil {
		return nil
	}

	var serr *StructuredError
	if errors.As(err, &serr) {
		return serr
	}
	return NewError(CodeInternalError, defaultErrorMessage, nil)
}
