package mux

import (
	"encoding/json"
	"fmt"
)

// Frame is the unit carried on the shared connection: a channel name plus an
// opaque payload. The wire form is a JSON object, so either side can route a
// frame without understanding its payload.
type Frame struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// NewFrame wraps data in a frame for the named channel.
func NewFrame(name string, data []byte) Frame {
	return Frame{
		Name: name,
		Data: json.RawMessage(data),
	}
}

// Validate reports whether the frame can be routed.
func (f Frame) Validate() error {
	if f.Name == "" {
		return ErrEmptyStreamName
	}
	return nil
}

// Marshal encodes the frame to its wire form.
func (f Frame) Marshal() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("error marshaling frame: %w", err)
	}
	return data, nil
}

// parseFrame decodes one wire message into a routable frame.
func parseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("error parsing frame: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}
