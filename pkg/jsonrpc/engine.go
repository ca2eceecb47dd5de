package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/toruslabs/casper-provider-go/pkg/log"
)

var (
	// ErrNilStream is returned when an engine is built without a transport.
	ErrNilStream = fmt.Errorf("stream must not be nil")
	// ErrEngineClosed is returned for operations on a torn-down engine.
	ErrEngineClosed = fmt.Errorf("engine is closed")
	// ErrAlreadyServing is returned when Serve is called twice.
	ErrAlreadyServing = fmt.Errorf("engine is already serving")
	// ErrEmptyMethod is returned for envelopes without a method name.
	ErrEmptyMethod = fmt.Errorf("method must be a non-empty string")
	// ErrDisconnected settles in-flight calls when the transport closes and
	// the engine is configured to reject them.
	ErrDisconnected = fmt.Errorf("engine disconnected before a response arrived")
)

// Stream is the duplex message transport an engine rides on, typically one
// multiplexed channel of a larger connection.
type Stream interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
}

// EngineConfig tunes an Engine.
type EngineConfig struct {
	// NotificationBufferSize caps how many unread server-initiated
	// notifications are held before further ones are dropped.
	NotificationBufferSize int
	// RejectPendingOnDisconnect settles in-flight calls with
	// ErrDisconnected when the stream closes. When false, the default,
	// they keep waiting on their own contexts, mirroring a counterparty
	// that silently went away.
	RejectPendingOnDisconnect bool
	// Logger receives correlation diagnostics. Defaults to a noop logger.
	Logger log.Logger
}

// DefaultEngineConfig is a sensible starting configuration.
var DefaultEngineConfig = EngineConfig{
	NotificationBufferSize: 32,
}

// Engine drives JSON-RPC 2.0 over a duplex stream: it assigns private wire
// ids to outgoing requests, matches responses back to their callers, and
// surfaces server-initiated notifications on a channel. Outbound calls pass
// through a middleware chain before delivery, so concerns like logging and
// journaling can observe every call in one place.
type Engine struct {
	cfg    EngineConfig
	lg     log.Logger
	stream Stream

	seq atomic.Uint64

	middlewareMu sync.RWMutex
	middlewares  []Handler

	pendingMu sync.Mutex
	pending   map[string]chan *Message

	notifications chan *Message

	stateMu sync.Mutex
	serving bool
	closed  bool
	done    chan struct{}
}

// NewEngine builds an engine over stream. The stream must outlive the
// engine; closing it is how the engine's pump is stopped.
func NewEngine(stream Stream, cfg EngineConfig) (*Engine, error) {
	if stream == nil {
		return nil, ErrNilStream
	}
	if cfg.NotificationBufferSize <= 0 {
		cfg.NotificationBufferSize = DefaultEngineConfig.NotificationBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}

	return &Engine{
		cfg:           cfg,
		lg:            cfg.Logger.WithName("jsonrpc"),
		stream:        stream,
		pending:       make(map[string]chan *Message),
		notifications: make(chan *Message, cfg.NotificationBufferSize),
		done:          make(chan struct{}),
	}, nil
}

// Use appends middleware to the outbound call chain. Middleware runs in
// registration order, before delivery. Panics on nil middleware.
func (e *Engine) Use(middleware Handler) {
	if middleware == nil {
		panic("jsonrpc middleware cannot be nil")
	}

	e.middlewareMu.Lock()
	defer e.middlewareMu.Unlock()
	e.middlewares = append(e.middlewares, middleware)
}

// Notifications returns the channel carrying server-initiated notifications.
// The channel closes when the engine tears down.
func (e *Engine) Notifications() <-chan *Message {
	return e.notifications
}

// Serve starts the response pump. It returns immediately; the pump runs
// until the stream fails or ctx is canceled, then handleClosure runs exactly
// once with the terminal error (nil when ctx ended things).
//
// The engine has no Close of its own: its lifetime is bound to the stream,
// so tearing down the multiplexer underneath is what stops it.
func (e *Engine) Serve(ctx context.Context, handleClosure func(err error)) error {
	if handleClosure == nil {
		handleClosure = func(error) {}
	}

	e.stateMu.Lock()
	if e.closed {
		e.stateMu.Unlock()
		return ErrEngineClosed
	}
	if e.serving {
		e.stateMu.Unlock()
		return ErrAlreadyServing
	}
	e.serving = true
	e.stateMu.Unlock()

	go func() {
		err := e.readPump(ctx)
		e.teardown()
		handleClosure(err)
	}()

	return nil
}

// Call sends m and blocks until the matching response arrives, m's context
// is done, or, when RejectPendingOnDisconnect is set, the engine tears down.
// The response's ID is restored to exactly what the caller supplied.
//
// Protocol failures come back as Response.Error on a nil error return;
// a non-nil error means the call never settled.
func (e *Engine) Call(ctx context.Context, m *Message) (*Message, error) {
	if m == nil || m.Method == "" {
		return nil, ErrEmptyMethod
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Context{
		Context:  ctx,
		Request:  m,
		handlers: e.handlerChain(),
	}
	c.Next()
	return c.Response, c.Err
}

// Notify sends m as a fire-and-forget notification. Any id on m is stripped.
func (e *Engine) Notify(m *Message) error {
	if m == nil || m.Method == "" {
		return ErrEmptyMethod
	}

	select {
	case <-e.done:
		return ErrEngineClosed
	default:
	}

	wire := *m
	wire.JSONRPC = Version
	wire.ID = nil

	data, err := json.Marshal(&wire)
	if err != nil {
		return fmt.Errorf("error marshaling notification: %w", err)
	}
	return e.stream.WriteMessage(data)
}

func (e *Engine) handlerChain() []Handler {
	e.middlewareMu.RLock()
	defer e.middlewareMu.RUnlock()

	chain := make([]Handler, 0, len(e.middlewares)+1)
	chain = append(chain, e.middlewares...)
	chain = append(chain, e.deliver)
	return chain
}

// deliver is the terminal handler: it writes the request under a private
// wire id and waits for the pump to hand back the matching response.
func (e *Engine) deliver(c *Context) {
	if c.settled() {
		return
	}

	select {
	case <-e.done:
		c.Err = ErrEngineClosed
		return
	default:
	}

	wireID, respCh := e.register()

	wire := *c.Request
	wire.JSONRPC = Version
	wire.ID = wireID

	data, err := json.Marshal(&wire)
	if err != nil {
		e.unregister(wireID)
		c.Err = fmt.Errorf("error marshaling request: %w", err)
		return
	}
	if err := e.stream.WriteMessage(data); err != nil {
		e.unregister(wireID)
		c.Err = fmt.Errorf("error writing request: %w", err)
		return
	}

	if e.cfg.RejectPendingOnDisconnect {
		select {
		case resp := <-respCh:
			c.Response = e.restoreID(c.Request, resp)
		case <-e.done:
			e.unregister(wireID)
			c.Err = ErrDisconnected
		case <-c.Context.Done():
			e.unregister(wireID)
			c.Err = c.Context.Err()
		}
		return
	}

	select {
	case resp := <-respCh:
		c.Response = e.restoreID(c.Request, resp)
	case <-c.Context.Done():
		e.unregister(wireID)
		c.Err = c.Context.Err()
	}
}

// restoreID swaps the private wire id back for the caller's original bytes.
func (e *Engine) restoreID(req *Message, resp *Message) *Message {
	resp.ID = req.ID
	return resp
}

func (e *Engine) register() (json.RawMessage, chan *Message) {
	wireID := json.RawMessage(strconv.FormatUint(e.seq.Add(1), 10))
	respCh := make(chan *Message, 1)

	e.pendingMu.Lock()
	e.pending[string(wireID)] = respCh
	e.pendingMu.Unlock()

	return wireID, respCh
}

func (e *Engine) unregister(wireID json.RawMessage) {
	e.pendingMu.Lock()
	delete(e.pending, string(wireID))
	e.pendingMu.Unlock()
}

func (e *Engine) readPump(ctx context.Context) error {
	for {
		data, err := e.stream.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		m, err := ParseMessage(data)
		if err != nil {
			e.lg.Warn("Malformed message", "error", err)
			continue
		}
		e.dispatch(m)
	}
}

func (e *Engine) dispatch(m *Message) {
	if m.IsResponse() {
		e.settle(m)
		return
	}
	if m.Method == "" {
		e.lg.Warn("Dropping message with no method and no result")
		return
	}
	if m.ID != nil {
		// The counterparty never calls this side.
		e.lg.Warn("Dropping unexpected inbound request", "method", m.Method)
		return
	}

	select {
	case e.notifications <- m:
	default:
		e.lg.Warn("Notification buffer full, dropping message", "method", m.Method)
	}
}

func (e *Engine) settle(m *Message) {
	if m.ID == nil {
		e.lg.Warn("Dropping response without an id")
		return
	}

	e.pendingMu.Lock()
	respCh, ok := e.pending[string(m.ID)]
	if ok {
		delete(e.pending, string(m.ID))
	}
	e.pendingMu.Unlock()

	if !ok {
		e.lg.Warn("Dropping response for unknown id", "id", string(m.ID))
		return
	}
	respCh <- m
}

// teardown runs once the pump has stopped. Closing done wakes any waiters
// that opted into rejection; closing notifications ends consumer loops.
func (e *Engine) teardown() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
	close(e.notifications)
}
