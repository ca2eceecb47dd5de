package casper

import (
	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
	"github.com/toruslabs/casper-provider-go/pkg/log"
)

// ChainChangedParams is the params shape of MethodChainChanged.
type ChainChangedParams struct {
	ChainID string `json:"chainId"`
}

// UnlockStateChangedParams is the params shape of MethodUnlockStateChanged.
// IsUnlocked is a pointer so a missing flag is distinguishable from false.
type UnlockStateChangedParams struct {
	Accounts   []string `json:"accounts,omitempty"`
	IsUnlocked *bool    `json:"isUnlocked"`
}

// notificationRouter consumes wallet-initiated notifications from the
// engine and feeds the state machine. All routing runs on the single
// goroutine draining the notifications channel, so handlers never race each
// other.
//
// Malformed pushes never take the provider down: each route degrades the
// way the state machine expects (substitute input or no-op) and logs loudly
// enough to be found.
type notificationRouter struct {
	lg      log.Logger
	sm      *stateMachine
	metrics *Metrics
	routes  map[string]func(msg *jsonrpc.Message)
}

func newNotificationRouter(sm *stateMachine, metrics *Metrics, lg log.Logger) *notificationRouter {
	r := &notificationRouter{
		lg:      lg.WithName("router"),
		sm:      sm,
		metrics: metrics,
	}
	r.routes = map[string]func(msg *jsonrpc.Message){
		MethodAccountsChanged:    r.routeAccountsChanged,
		MethodUnlockStateChanged: r.routeUnlockStateChanged,
		MethodChainChanged:       r.routeChainChanged,
	}
	return r
}

// run drains notifications until the channel closes on engine teardown.
func (r *notificationRouter) run(notifications <-chan *jsonrpc.Message) {
	for msg := range notifications {
		r.dispatch(msg)
	}
}

func (r *notificationRouter) dispatch(msg *jsonrpc.Message) {
	if r.metrics != nil {
		r.metrics.Notifications.WithLabelValues(msg.Method).Inc()
	}

	route, ok := r.routes[msg.Method]
	if !ok {
		r.lg.Debug("Ignoring unrecognized notification", "method", msg.Method)
		return
	}
	route(msg)
}

// routeAccountsChanged expects a JSON array of account strings. Anything
// else is treated as an empty list so downstream state still converges.
func (r *notificationRouter) routeAccountsChanged(msg *jsonrpc.Message) {
	var accounts []string
	if err := msg.UnmarshalParams(&accounts); err != nil {
		r.lg.Error("Malformed accounts notification. Please report this bug.", "error", err)
		accounts = []string{}
	}
	r.sm.handleAccountsChanged(accounts, false, false)
}

// routeUnlockStateChanged expects an object with a boolean isUnlocked and
// an optional accounts list. A missing or non-boolean flag makes the push a
// no-op.
func (r *notificationRouter) routeUnlockStateChanged(msg *jsonrpc.Message) {
	var params UnlockStateChangedParams
	if err := msg.UnmarshalParams(&params); err != nil {
		r.lg.Error("Malformed unlock notification. Please report this bug.", "error", err)
		return
	}
	if params.IsUnlocked == nil {
		r.lg.Error("Unlock notification missing isUnlocked. Please report this bug.")
		return
	}
	r.sm.handleUnlockChanged(*params.IsUnlocked, params.Accounts)
}

// routeChainChanged expects an object with a chainId string. The state
// machine handles the empty and sentinel cases itself.
func (r *notificationRouter) routeChainChanged(msg *jsonrpc.Message) {
	var params ChainChangedParams
	if err := msg.UnmarshalParams(&params); err != nil {
		r.lg.Error("Malformed chain notification. Please report this bug.", "error", err)
		return
	}
	r.sm.handleChainChanged(params.ChainID)
}
