package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version stamped on every outgoing envelope.
const Version = "2.0"

// Message is a JSON-RPC 2.0 envelope. One struct covers all the wire shapes
// the protocol defines: a request carries Method and ID, a notification
// carries Method without ID, and a response carries ID with exactly one of
// Result or Error set.
//
// IDs are kept as raw JSON rather than a typed field so a response ID can be
// restored byte for byte to whatever the caller originally supplied, whether
// that was a number or a string.
type Message struct {
	// JSONRPC is the protocol version, always "2.0" on the wire.
	JSONRPC string `json:"jsonrpc,omitempty"`
	// ID correlates a request with its response. Absent on notifications.
	ID json.RawMessage `json:"id,omitempty"`
	// Method names the operation being invoked. Absent on responses.
	Method string `json:"method,omitempty"`
	// Params carries the request arguments, an object or an array.
	Params json.RawMessage `json:"params,omitempty"`
	// Result carries the successful response payload.
	Result json.RawMessage `json:"result,omitempty"`
	// Error carries the failure response payload.
	Error *StructuredError `json:"error,omitempty"`
}

// NewRequest builds a call envelope for method. Params may be nil, a struct,
// a map, a slice, or pre-encoded json.RawMessage; it is marshaled up front so
// encoding problems surface at build time rather than on the wire. The ID is
// left empty: the engine assigns a private wire id on delivery.
//
// Example usage:
//
//	msg, err := jsonrpc.NewRequest("casper_accounts", nil)
//	if err != nil {
//	    return err
//	}
//	resp, err := engine.Call(ctx, msg)
func NewRequest(method string, params any) (*Message, error) {
	if method == "" {
		return nil, ErrEmptyMethod
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: Version, Method: method, Params: raw}, nil
}

// NewNotification builds a fire-and-forget envelope for method. Notifications
// never receive a response, so they carry no ID.
func NewNotification(method string, params any) (*Message, error) {
	if method == "" {
		return nil, ErrEmptyMethod
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: Version, Method: method, Params: raw}, nil
}

// NewResponse builds a success envelope answering the request identified by
// id. A nil result encodes as JSON null, which is still a valid response.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("error marshaling result: %w", err)
	}
	return &Message{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds a failure envelope answering the request identified
// by id.
func NewErrorResponse(id json.RawMessage, serr *StructuredError) *Message {
	if serr == nil {
		serr = NewError(CodeInternalError, defaultErrorMessage, nil)
	}
	return &Message{JSONRPC: Version, ID: id, Error: serr}
}

// ParseMessage decodes a single envelope from wire bytes. Batch envelopes
// (top-level JSON arrays) are not supported and fail to parse.
func ParseMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing message: %w", err)
	}
	return &m, nil
}

// IsNotification reports whether the envelope is a request that expects no
// response.
func (m *Message) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// IsResponse reports whether the envelope answers an earlier request. A JSON
// null result still counts: the raw bytes are present even though the value
// is empty.
func (m *Message) IsResponse() bool {
	return m.Result != nil || m.Error != nil
}

// UnmarshalParams decodes the request arguments into v.
func (m *Message) UnmarshalParams(v any) error {
	if len(m.Params) == 0 {
		return fmt.Errorf("message has no params")
	}
	if err := json.Unmarshal(m.Params, v); err != nil {
		return fmt.Errorf("error unmarshaling params: %w", err)
	}
	return nil
}

// UnmarshalResult decodes the response payload into v. If the envelope
// carries an error instead of a result, that error is returned.
func (m *Message) UnmarshalResult(v any) error {
	if m.Error != nil {
		return m.Error
	}
	if len(m.Result) == 0 {
		return fmt.Errorf("message has no result")
	}
	if err := json.Unmarshal(m.Result, v); err != nil {
		return fmt.Errorf("error unmarshaling result: %w", err)
	}
	return nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("error marshaling params: %w", err)
	}
	return data, nil
}
