package mux

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DialConfig tunes the websocket handshake.
type DialConfig struct {
	// HandshakeTimeout bounds the initial handshake.
	HandshakeTimeout time.Duration
	// EnableCompression negotiates per-message compression.
	EnableCompression bool
}

// DefaultDialConfig mirrors the defaults used across the module.
var DefaultDialConfig = DialConfig{
	HandshakeTimeout:  5 * time.Second,
	EnableCompression: true,
}

// WebsocketConn adapts a gorilla websocket connection to the Duplex
// contract, so a multiplexer can ride a real socket to an out-of-process
// wallet runtime.
type WebsocketConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Duplex = &WebsocketConn{}

// NewWebsocketConn wraps an established websocket connection.
func NewWebsocketConn(conn *websocket.Conn) (*WebsocketConn, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}
	return &WebsocketConn{conn: conn}, nil
}

// DialWebsocket connects to a websocket endpoint and wraps it as a Duplex.
func DialWebsocket(ctx context.Context, url string, cfg DialConfig) (*WebsocketConn, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultDialConfig.HandshakeTimeout
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  cfg.HandshakeTimeout,
		EnableCompression: cfg.EnableCompression,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDialingWebsocket, err.Error())
	}

	return &WebsocketConn{conn: conn}, nil
}

// ReadMessage returns the next text or binary message, skipping control
// frames, which gorilla handles internally.
func (c *WebsocketConn) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage sends data as one text message.
func (c *WebsocketConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a best-effort close frame, then closes the connection.
func (c *WebsocketConn) Close() error {
	c.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage, message, deadline)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
