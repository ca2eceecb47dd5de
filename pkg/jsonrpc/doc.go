// Package jsonrpc implements JSON-RPC 2.0 over a duplex message stream.
//
// The package is built for the client side of a wallet transport: an Engine
// writes requests onto one multiplexed channel, correlates the responses
// coming back, and surfaces server-initiated notifications on a separate
// channel for the owner to consume.
//
// # Envelopes
//
// Message is the single envelope type. Requests, notifications, and
// responses differ only in which fields are populated:
//
//	{"jsonrpc": "2.0", "id": 7, "method": "casper_accounts"}          request
//	{"jsonrpc": "2.0", "method": "chainChanged", "params": {...}}     notification
//	{"jsonrpc": "2.0", "id": 7, "result": ["0x1a2b..."]}              response
//
// Callers may supply their own ids in any JSON shape; the engine replaces
// them with private wire ids for correlation and restores the original bytes
// before the response is returned.
//
// # Middleware
//
// Outbound calls run through a Handler chain before delivery, in the style
// of an HTTP middleware stack:
//
//	engine.Use(func(c *jsonrpc.Context) {
//	    start := time.Now()
//	    c.Next()
//	    logger.Info("rpc call", "method", c.Request.Method, "took", time.Since(start))
//	})
//
// A handler can also settle a call locally with c.Succeed or c.Fail, in
// which case delivery never happens.
//
// # Errors
//
// Failures that cross the wire are StructuredError values with a code,
// message, and optional data. Other Go errors are considered internal and
// are replaced with a generic message by NormalizeError before they reach a
// response envelope.
package jsonrpc
