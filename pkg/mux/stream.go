package mux

// Stream is one named channel over a multiplexer. Reads return frames
// addressed to this channel in arrival order; writes are tagged with the
// channel name and serialized with all other streams on the connection.
type Stream struct {
	name    string
	mux     *ObjectMultiplex
	inbound chan []byte
}

// Name reports the channel name.
func (s *Stream) Name() string {
	return s.name
}

// WriteMessage sends data on this channel.
func (s *Stream) WriteMessage(data []byte) error {
	return s.mux.write(s.name, data)
}

// ReadMessage blocks until the next inbound payload for this channel.
// After teardown, buffered payloads are still drained; once exhausted every
// call returns ErrStreamClosed.
func (s *Stream) ReadMessage() ([]byte, error) {
	data, ok := <-s.inbound
	if !ok {
		return nil, ErrStreamClosed
	}
	return data, nil
}
