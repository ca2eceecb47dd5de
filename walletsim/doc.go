// Package walletsim is a small in-process wallet runtime. It answers the
// provider's JSON-RPC traffic over a multiplexed duplex connection and can
// push account, chain, and unlock changes on demand.
//
// The simulator exists for development and testing of provider embedders:
// wire one end of a mux.Pipe into a Wallet and the other into a Provider
// and the full handshake, interception, and notification machinery runs
// without a real wallet.
package walletsim
