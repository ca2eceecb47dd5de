package jsonrpc

import "context"

// Handler processes one outbound call. Handlers form a chain: each may act
// before and after calling c.Next(), with the engine's delivery step sitting
// at the end of the chain. A handler that settles the call itself, via
// Succeed or Fail, simply returns without calling Next.
type Handler func(c *Context)

// Context carries one call through the handler chain and collects its
// outcome.
type Context struct {
	// Context is the caller's context for the call.
	Context context.Context
	// Request is the envelope as the caller built it, before any wire id
	// remapping.
	Request *Message
	// Response is the settled envelope. Protocol failures arrive here as
	// Response.Error rather than in Err.
	Response *Message
	// Err records a transport or encoding failure that prevented the call
	// from settling at all.
	Err error

	handlers []Handler
}

// Next executes the next handler in the chain. When the chain is exhausted
// it returns without doing anything.
func (c *Context) Next() {
	if len(c.handlers) == 0 {
		return
	}

	handler := c.handlers[0]
	c.handlers = c.handlers[1:]
	handler(c)
}

// Succeed settles the call with the given result, reusing the request's id.
// Delivery is skipped: handlers use this to answer locally, for example from
// a cache.
func (c *Context) Succeed(result any) {
	resp, err := NewResponse(c.Request.ID, result)
	if err != nil {
		c.Err = err
		return
	}
	c.Response = resp
}

// Fail settles the call with an error response, normalizing err into the
// structured form first. Delivery is skipped.
func (c *Context) Fail(err error) {
	c.Response = NewErrorResponse(c.Request.ID, NormalizeError(err))
}

// settled reports whether the call already has an outcome, so delivery knows
// to stand down.
func (c *Context) settled() bool {
	return c.Response != nil || c.Err != nil
}
