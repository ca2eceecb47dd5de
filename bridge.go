package casper

import (
	"context"

	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
)

// Bridge delivers a request to the wallet runtime and returns the settled
// response. The default bridge goes through the provider's own engine;
// embedders with another path to the wallet (an extension port, a test
// double) substitute their own via ProviderConfig.Bridge.
//
// Deliver must honor ctx and must return either a response or an error,
// never both nil.
type Bridge interface {
	Deliver(ctx context.Context, req *jsonrpc.Message) (*jsonrpc.Message, error)
}

// engineBridge is the default Bridge: requests ride the provider's engine
// over the multiplexed stream.
type engineBridge struct {
	engine *jsonrpc.Engine
}

func (b *engineBridge) Deliver(ctx context.Context, req *jsonrpc.Message) (*jsonrpc.Message, error) {
	return b.engine.Call(ctx, req)
}
