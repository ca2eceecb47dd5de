// Package casper is an in-process JSON-RPC wallet provider for Casper
// integrations, in the shape dapp developers know from EIP-1193.
//
// A Provider rides one duplex connection to a wallet runtime. The
// connection is multiplexed into named channels (pkg/mux); the provider
// channel carries JSON-RPC 2.0 traffic through a request/response engine
// (pkg/jsonrpc). On top of that the provider keeps a small state machine —
// connectivity, chain identity, exposed accounts, unlock status — fed by
// wallet notifications and by the results of the calls it relays, and
// emits connect, disconnect, accountsChanged, and chainChanged events as
// that state moves.
//
// Example usage:
//
//	conn, err := mux.DialWebsocket(ctx, walletURL, mux.DefaultDialConfig)
//	if err != nil {
//	    return err
//	}
//	provider, err := casper.NewProvider(conn, casper.DefaultProviderConfig)
//	if err != nil {
//	    return err
//	}
//	provider.On(casper.EventAccountsChanged, func(payload any) {
//	    // react to account changes
//	})
//	if err := provider.Serve(ctx); err != nil {
//	    return err
//	}
//	accounts, err := provider.Request(ctx, casper.RequestArguments{
//	    Method: casper.MethodRequestAccounts,
//	})
//
// Optional collaborators plug in through ProviderConfig: a Journal persists
// traffic and state snapshots to a database, Metrics exposes Prometheus
// instruments, and a custom Bridge reroutes calls to an out-of-process
// wallet host.
package casper
