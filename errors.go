package casper

import (
	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
)

// Disconnect status codes, following the websocket close-status convention
// EIP-1193 providers reuse: 1013 means the wallet may come back, 1011 means
// it will not.
const (
	CodeRecoverableDisconnect int64 = 1013
	CodePermanentDisconnect   int64 = 1011
)

const (
	messageRecoverableDisconnect = "Disconnected from chain. Attempting to reconnect, try again later."
	messagePermanentDisconnect   = "Disconnected permanently due to an internal error. A new connection is required."

	messageInvalidRequestMethod = "'args.method' must be a non-empty string."
	messageInvalidRequestParams = "'args.params' must be an object or array if provided."
)

// NewRecoverableDisconnectError builds the error delivered with a disconnect
// event when the transport is expected to re-establish.
func NewRecoverableDisconnectError() *jsonrpc.StructuredError {
	return jsonrpc.NewError(CodeRecoverableDisconnect, messageRecoverableDisconnect, nil)
}

// NewPermanentDisconnectError builds the error delivered with a disconnect
// event when the provider has entered its terminal state.
func NewPermanentDisconnectError() *jsonrpc.StructuredError {
	return jsonrpc.NewError(CodePermanentDisconnect, messagePermanentDisconnect, nil)
}

func newInvalidMethodError(offending any) *jsonrpc.StructuredError {
	return jsonrpc.NewError(jsonrpc.CodeInvalidRequest, messageInvalidRequestMethod, offending)
}

func newInvalidParamsError(offending any) *jsonrpc.StructuredError {
	return jsonrpc.NewError(jsonrpc.CodeInvalidRequest, messageInvalidRequestParams, offending)
}
