package casper

import (
	"context"
	"time"

	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
	"github.com/toruslabs/casper-provider-go/pkg/log"
)

// Request origins, attached to call contexts so middlewares can label
// traffic by the surface it entered through.
const (
	// OriginRequest marks calls entering through Request.
	OriginRequest = "request"
	// OriginSendAsync marks calls entering through SendAsync.
	OriginSendAsync = "sendAsync"
	// OriginInternal marks calls the provider makes on its own behalf.
	OriginInternal = "internal"
	// OriginUnknown labels calls that reached the engine without passing
	// through a provider surface.
	OriginUnknown = "unknown"
)

type requestOriginKey struct{}

func withRequestOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, requestOriginKey{}, origin)
}

func requestOriginFrom(ctx context.Context) string {
	if ctx == nil {
		return OriginUnknown
	}
	if origin, ok := ctx.Value(requestOriginKey{}).(string); ok {
		return origin
	}
	return OriginUnknown
}

// loggingMiddleware traces every engine call with its origin, outcome, and
// latency.
func loggingMiddleware(lg log.Logger) jsonrpc.Handler {
	lg = lg.WithName("rpc")
	return func(c *jsonrpc.Context) {
		start := time.Now()
		c.Next()

		kv := []any{
			"method", c.Request.Method,
			"origin", requestOriginFrom(c.Context),
			"took", time.Since(start),
		}
		switch {
		case c.Err != nil:
			lg.Warn("Call failed to settle", append(kv, "error", c.Err)...)
		case c.Response != nil && c.Response.Error != nil:
			lg.Debug("Call returned an error", append(kv, "code", c.Response.Error.Code)...)
		default:
			lg.Debug("Call settled", kv...)
		}
	}
}
