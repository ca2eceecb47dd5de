package mux

import (
	"io"
	"sync"
)

const pipeBufferSize = 16

// PipeConn is one end of an in-memory duplex pair. It exists for in-process
// embedding, where the wallet runtime lives in the same process as the
// provider, and for tests.
type PipeConn struct {
	send   chan<- []byte
	recv   <-chan []byte
	done   chan struct{}
	closer *sync.Once
}

var _ Duplex = &PipeConn{}

// Pipe returns two connected duplex ends. Messages written to one end are
// read from the other, per direction in FIFO order. Closing either end
// closes the whole pipe; reads then drain what was already delivered and
// report io.EOF.
func Pipe() (*PipeConn, *PipeConn) {
	aToB := make(chan []byte, pipeBufferSize)
	bToA := make(chan []byte, pipeBufferSize)
	done := make(chan struct{})
	closer := &sync.Once{}

	a := &PipeConn{send: aToB, recv: bToA, done: done, closer: closer}
	b := &PipeConn{send: bToA, recv: aToB, done: done, closer: closer}
	return a, b
}

// ReadMessage blocks until the peer writes or the pipe closes.
func (p *PipeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-p.recv:
		return data, nil
	case <-p.done:
		// Drain what was already delivered before reporting EOF.
		select {
		case data := <-p.recv:
			return data, nil
		default:
			return nil, io.EOF
		}
	}
}

// WriteMessage delivers data to the peer. It blocks while the peer's buffer
// is full and fails once the pipe is closed.
func (p *PipeConn) WriteMessage(data []byte) error {
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}

	select {
	case p.send <- data:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	}
}

// Close closes both directions of the pipe. Subsequent reads on either end
// report EOF once their buffers drain.
func (p *PipeConn) Close() error {
	p.closer.Do(func() {
		close(p.done)
	})
	return nil
}
