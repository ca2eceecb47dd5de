package mux

import (
	"context"
	"fmt"
	"sync"

	"github.com/toruslabs/casper-provider-go/pkg/log"
)

var (
	// ErrNilConnection is returned when a multiplexer is built without a
	// duplex connection.
	ErrNilConnection = fmt.Errorf("connection must be a duplex stream")
	// ErrMuxClosed is returned for operations on a torn-down multiplexer.
	ErrMuxClosed = fmt.Errorf("multiplexer is closed")
	// ErrAlreadyServing is returned when Serve is called twice.
	ErrAlreadyServing = fmt.Errorf("multiplexer is already serving")
	// ErrEmptyStreamName is returned for frames or streams without a name.
	ErrEmptyStreamName = fmt.Errorf("stream name must not be empty")
	// ErrStreamExists is returned when a channel name is claimed twice.
	ErrStreamExists = fmt.Errorf("stream already exists")
	// ErrStreamClosed is returned when reading from or writing to a stream
	// after teardown.
	ErrStreamClosed = fmt.Errorf("stream is closed")
	// ErrDialingWebsocket wraps websocket handshake failures.
	ErrDialingWebsocket = fmt.Errorf("error dialing websocket server")
)

// Duplex is the bidirectional message transport a multiplexer rides on.
// ReadMessage blocks until a message or a terminal error; implementations
// must allow Close to unblock a pending read.
type Duplex interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Config tunes an ObjectMultiplex.
type Config struct {
	// StreamBufferSize caps how many inbound frames a single stream may
	// buffer before further frames for it are dropped.
	StreamBufferSize int
	// Logger receives routing diagnostics. Defaults to a noop logger.
	Logger log.Logger
}

// DefaultConfig is a sensible starting configuration.
var DefaultConfig = Config{
	StreamBufferSize: 32,
}

// ObjectMultiplex splits one duplex connection into independently flowing
// named channels. Frames are tagged with the channel name on the way out and
// routed by it on the way in. Writes from all streams are serialized, so
// submission order equals wire order.
type ObjectMultiplex struct {
	conn Duplex
	cfg  Config
	lg   log.Logger

	mu      sync.RWMutex
	streams map[string]*Stream
	ignored map[string]bool
	serving bool
	closed  bool

	writeMu sync.Mutex
}

// New builds a multiplexer over conn. A nil conn is a construction error:
// nothing downstream can function without a duplex transport.
func New(conn Duplex, cfg Config) (*ObjectMultiplex, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}
	if cfg.StreamBufferSize <= 0 {
		cfg.StreamBufferSize = DefaultConfig.StreamBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}

	return &ObjectMultiplex{
		conn:    conn,
		cfg:     cfg,
		lg:      cfg.Logger.WithName("mux"),
		streams: make(map[string]*Stream),
		ignored: make(map[string]bool),
	}, nil
}

// CreateStream claims a named channel and returns its stream. Each name can
// be claimed once, and not after it was marked ignored.
func (m *ObjectMultiplex) CreateStream(name string) (*Stream, error) {
	if name == "" {
		return nil, ErrEmptyStreamName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrMuxClosed
	}
	if _, exists := m.streams[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrStreamExists, name)
	}
	if m.ignored[name] {
		return nil, fmt.Errorf("%w: %s is ignored", ErrStreamExists, name)
	}

	s := &Stream{
		name:    name,
		mux:     m,
		inbound: make(chan []byte, m.cfg.StreamBufferSize),
	}
	m.streams[name] = s
	return s, nil
}

// IgnoreStream marks a channel whose inbound frames are discarded without
// buffering or surfacing. Used for channels owned by other collaborators.
func (m *ObjectMultiplex) IgnoreStream(name string) error {
	if name == "" {
		return ErrEmptyStreamName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.streams[name]; exists {
		return fmt.Errorf("%w: %s", ErrStreamExists, name)
	}
	m.ignored[name] = true
	return nil
}

// Serve starts the demultiplexing pump. It returns immediately; frames are
// routed until the connection fails, the context is canceled, or Close is
// called. handleClosure runs exactly once after teardown with the terminal
// error (nil for a clean shutdown).
func (m *ObjectMultiplex) Serve(ctx context.Context, handleClosure func(err error)) error {
	if handleClosure == nil {
		handleClosure = func(error) {}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMuxClosed
	}
	if m.serving {
		m.mu.Unlock()
		return ErrAlreadyServing
	}
	m.serving = true
	m.mu.Unlock()

	childCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(2)

	var closureErrMu sync.Mutex
	var closureErr error
	childHandleClosure := func(err error) {
		closureErrMu.Lock()
		if closureErr == nil && err != nil {
			closureErr = err
		}
		closureErrMu.Unlock()

		cancel()
		wg.Done()
	}

	go m.closeOnContextDone(childCtx, childHandleClosure)
	go m.readPump(childCtx, childHandleClosure)

	go func() {
		wg.Wait()
		m.teardown()
		handleClosure(closureErr)
	}()

	return nil
}

// Close tears the multiplexer down by closing the underlying connection,
// which unblocks the pump. Safe to call at any time.
func (m *ObjectMultiplex) Close() error {
	return m.conn.Close()
}

func (m *ObjectMultiplex) closeOnContextDone(ctx context.Context, handleClosure func(err error)) {
	<-ctx.Done()

	if err := m.conn.Close(); err != nil {
		m.lg.Debug("Error closing connection", "error", err)
	}
	handleClosure(nil)
}

func (m *ObjectMultiplex) readPump(ctx context.Context, handleClosure func(err error)) {
	for {
		data, err := m.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				handleClosure(nil)
				return
			}
			handleClosure(err)
			return
		}

		frame, err := parseFrame(data)
		if err != nil {
			m.lg.Warn("Malformed frame", "error", err)
			continue
		}
		m.route(frame)
	}
}

func (m *ObjectMultiplex) route(frame Frame) {
	m.mu.RLock()
	ignored := m.ignored[frame.Name]
	stream := m.streams[frame.Name]
	m.mu.RUnlock()

	if ignored {
		return
	}
	if stream == nil {
		m.lg.Warn("Dropping frame for unknown channel", "channel", frame.Name)
		return
	}

	select {
	case stream.inbound <- []byte(frame.Data):
	default:
		m.lg.Warn("Stream buffer full, dropping frame", "channel", frame.Name)
	}
}

// write serializes a frame for the named channel onto the connection.
// The write mutex keeps frame order equal to submission order.
func (m *ObjectMultiplex) write(name string, data []byte) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrStreamClosed
	}

	wire, err := NewFrame(name, data).Marshal()
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.conn.WriteMessage(wire)
}

// teardown runs after the pump has stopped: no more routing can happen, so
// closing the inbound channels here lets readers drain buffered frames and
// then observe ErrStreamClosed.
func (m *ObjectMultiplex) teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for _, s := range m.streams {
		close(s.inbound)
	}
}
