// Package mux multiplexes one bidirectional message connection into
// independent named channels.
//
// A Duplex is any transport that can read and write discrete messages: the
// in-memory Pipe for same-process embedding, a WebsocketConn for a remote
// wallet runtime, or anything else satisfying the three-method contract.
// ObjectMultiplex tags every outbound payload with its channel name and
// routes inbound frames by the same tag, so several protocols can share one
// connection without observing each other.
//
// Channels are claimed explicitly with CreateStream, or marked with
// IgnoreStream when their traffic belongs to another collaborator and must
// be discarded rather than buffered. Frames for channels in neither set are
// dropped with a warning.
//
// Ordering: writes from all streams are serialized onto the connection in
// submission order; inbound frames are routed in arrival order, each stream
// buffering independently so a slow consumer only loses its own frames.
package mux
