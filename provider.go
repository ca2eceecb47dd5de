package casper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
	"github.com/toruslabs/casper-provider-go/pkg/log"
	"github.com/toruslabs/casper-provider-go/pkg/mux"
)

// Wire methods exchanged with the wallet runtime.
const (
	// MethodGetProviderState fetches the wallet's view of accounts, chain,
	// and unlock status. It is answered by the local engine, never by the
	// bridge.
	MethodGetProviderState = "wallet_getProviderState"
	// MethodSendSiteMetadata announces the embedding application to the
	// wallet, fire-and-forget.
	MethodSendSiteMetadata = "wallet_sendSiteMetadata"
	// MethodAccountsChanged is pushed by the wallet when the exposed
	// account list changes.
	MethodAccountsChanged = "wallet_accountsChanged"
	// MethodUnlockStateChanged is pushed by the wallet when it locks or
	// unlocks.
	MethodUnlockStateChanged = "wallet_unlockStateChanged"
	// MethodChainChanged is pushed by the wallet when the chain identity
	// changes.
	MethodChainChanged = "wallet_chainChanged"
	// MethodAccounts enumerates the accounts currently exposed to the site.
	MethodAccounts = "casper_accounts"
	// MethodRequestAccounts asks the wallet to expose accounts, prompting
	// the user if needed.
	MethodRequestAccounts = "casper_requestAccounts"
)

const (
	// DefaultStreamName is the multiplexed channel carrying provider
	// JSON-RPC traffic unless the configuration picks another.
	DefaultStreamName = "provider"
	// PhishingStreamName is the channel reserved for the phishing warning
	// collaborator. The provider discards its frames without buffering.
	PhishingStreamName = "phishing"
)

// ErrAlreadyServing is returned when Serve is called twice.
var ErrAlreadyServing = fmt.Errorf("provider is already serving")

// RequestArguments is the caller-facing shape of one RPC request. Params is
// optional; when present it must be a slice, array, map, or struct so it
// encodes as a JSON array or object.
type RequestArguments struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// ProviderStateResult is the result shape of MethodGetProviderState.
type ProviderStateResult struct {
	Accounts   []string `json:"accounts"`
	ChainID    string   `json:"chainId"`
	IsUnlocked bool     `json:"isUnlocked"`
}

// ProviderConfig tunes a Provider. The zero value is usable; unset fields
// fall back to the defaults in DefaultProviderConfig.
type ProviderConfig struct {
	// JSONRPCStreamName selects the multiplexed channel carrying the
	// provider's JSON-RPC traffic.
	JSONRPCStreamName string
	// MaxEventListeners caps event subscriptions before leak warnings are
	// logged. The cap is diagnostic; registration always succeeds.
	MaxEventListeners int
	// DisableSiteMetadata suppresses the MethodSendSiteMetadata push that
	// normally follows initialization.
	DisableSiteMetadata bool
	// SiteMetadata identifies the embedding application to the wallet.
	// Zero value means process defaults.
	SiteMetadata SiteMetadata
	// RejectPendingOnDisconnect settles in-flight requests with an error
	// when the transport closes, instead of leaving them waiting on their
	// contexts.
	RejectPendingOnDisconnect bool
	// Bridge overrides delivery for requests that must reach the wallet
	// outside the local engine. Defaults to delivery through the engine.
	Bridge Bridge
	// Journal, when set, records RPC traffic and state snapshots for
	// diagnostics. Journaling failures never affect provider behavior.
	Journal *Journal
	// Metrics, when set, receives provider instruments.
	Metrics *Metrics
	// Logger receives diagnostics. Defaults to a noop logger.
	Logger log.Logger
}

// DefaultProviderConfig is a sensible starting configuration.
var DefaultProviderConfig = ProviderConfig{
	JSONRPCStreamName: DefaultStreamName,
	MaxEventListeners: DefaultMaxListeners,
}

// requestHandler answers one request, either locally or across the bridge.
type requestHandler func(ctx context.Context, req *jsonrpc.Message) (*jsonrpc.Message, error)

// Provider is an in-process JSON-RPC wallet provider. It multiplexes one
// duplex connection into named channels, drives a request/response engine
// over the provider channel, and maintains connectivity, account, chain,
// and unlock state, emitting EIP-1193-style events as that state changes.
//
// Construction wires everything up; Serve starts the pumps and the one-shot
// initial state fetch. Event listeners registered between the two observe
// the full lifecycle from the first connect onward.
type Provider struct {
	// IsTorus marks the provider for integrations that feature-detect it.
	IsTorus bool

	cfg ProviderConfig
	lg  log.Logger

	mux     *mux.ObjectMultiplex
	stream  *mux.Stream
	engine  *jsonrpc.Engine
	emitter *EventEmitter
	sm      *stateMachine
	router  *notificationRouter
	bridge  Bridge

	handlers map[string]requestHandler

	mu      sync.Mutex
	serving bool
	cancel  context.CancelFunc
}

// NewProvider builds a provider over conn. The connection must be a live
// duplex stream; a nil conn fails immediately. Nothing flows until Serve is
// called.
func NewProvider(conn mux.Duplex, cfg ProviderConfig) (*Provider, error) {
	if cfg.JSONRPCStreamName == "" {
		cfg.JSONRPCStreamName = DefaultProviderConfig.JSONRPCStreamName
	}
	if cfg.MaxEventListeners <= 0 {
		cfg.MaxEventListeners = DefaultMaxListeners
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}

	m, err := mux.New(conn, mux.Config{Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	if err := m.IgnoreStream(PhishingStreamName); err != nil {
		return nil, err
	}
	stream, err := m.CreateStream(cfg.JSONRPCStreamName)
	if err != nil {
		return nil, err
	}

	engine, err := jsonrpc.NewEngine(stream, jsonrpc.EngineConfig{
		RejectPendingOnDisconnect: cfg.RejectPendingOnDisconnect,
		Logger:                    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	lg := cfg.Logger.WithName("provider")
	emitter := NewEventEmitter(cfg.MaxEventListeners, cfg.Logger)
	sm := newStateMachine(emitter, cfg.Logger)

	p := &Provider{
		IsTorus: true,
		cfg:     cfg,
		lg:      lg,
		mux:     m,
		stream:  stream,
		engine:  engine,
		emitter: emitter,
		sm:      sm,
		router:  newNotificationRouter(sm, cfg.Metrics, cfg.Logger),
		bridge:  cfg.Bridge,
	}
	if p.bridge == nil {
		p.bridge = &engineBridge{engine: engine}
	}

	// Local handling is an explicit table, checked before generic bridge
	// forwarding, so the special-cased methods stay enumerable.
	p.handlers = map[string]requestHandler{
		MethodGetProviderState: p.callEngine,
		MethodAccounts:         p.callAccountEnumeration,
		MethodRequestAccounts:  p.callAccountEnumeration,
	}

	engine.Use(loggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		engine.Use(metricsMiddleware(cfg.Metrics))
		watchEventsForMetrics(emitter, cfg.Metrics)
	}
	if cfg.Journal != nil {
		engine.Use(journalMiddleware(cfg.Journal, lg))
		watchStateForJournal(emitter, sm, cfg.Journal, lg)
	}

	return p, nil
}

// Serve starts the multiplexer and engine pumps, the notification router,
// and the one-shot initial state fetch. It returns immediately. The
// provider runs until the connection fails, ctx is canceled, or Close is
// called; all three park it in the terminal disconnected state.
func (p *Provider) Serve(ctx context.Context) error {
	p.mu.Lock()
	if p.serving {
		p.mu.Unlock()
		return ErrAlreadyServing
	}
	p.serving = true
	childCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	if err := p.mux.Serve(childCtx, p.handleTransportClosure); err != nil {
		cancel()
		return err
	}
	if err := p.engine.Serve(childCtx, p.handleEngineClosure); err != nil {
		cancel()
		return err
	}

	go p.router.run(p.engine.Notifications())
	go p.initializeState(childCtx)

	return nil
}

// Close tears the provider down: pumps stop, the connection is closed, and
// the state machine takes the permanent disconnect path. Safe to call more
// than once.
func (p *Provider) Close() error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return p.mux.Close()
}

// Request submits one RPC call and blocks until it settles. Arguments are
// validated before anything touches the transport: a malformed method or
// params fails synchronously with an invalid-request error carrying the
// offending value as data.
//
// The returned value is the decoded result field of the response. A
// protocol failure comes back as a *jsonrpc.StructuredError; context
// cancellation comes back as the context's own error.
func (p *Provider) Request(ctx context.Context, args RequestArguments) (any, error) {
	if serr := validateRequestArguments(args); serr != nil {
		return nil, serr
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := jsonrpc.NewRequest(args.Method, args.Params)
	if err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "'args.params' could not be serialized: %s", err.Error())
	}

	resp, err := p.route(withRequestOrigin(ctx, OriginRequest), req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, jsonrpc.NormalizeError(err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	var result any
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, jsonrpc.NormalizeError(err)
		}
	}
	return result, nil
}

// SendAsync submits payload through the same routing as Request, without
// argument validation, and delivers the settled response to callback. The
// callback runs on its own goroutine.
func (p *Provider) SendAsync(payload *jsonrpc.Message, callback func(resp *jsonrpc.Message, err error)) {
	if callback == nil {
		callback = func(*jsonrpc.Message, error) {}
	}

	go func() {
		if payload == nil {
			callback(nil, jsonrpc.ErrEmptyMethod)
			return
		}
		resp, err := p.route(withRequestOrigin(context.Background(), OriginSendAsync), payload)
		callback(resp, err)
	}()
}

// route answers req via the dispatch table, falling back to generic bridge
// forwarding for every method without a dedicated handler.
func (p *Provider) route(ctx context.Context, req *jsonrpc.Message) (*jsonrpc.Message, error) {
	if handler, ok := p.handlers[req.Method]; ok {
		return handler(ctx, req)
	}
	return p.bridge.Deliver(ctx, req)
}

// callEngine answers a request through the local engine, bypassing the
// bridge.
func (p *Provider) callEngine(ctx context.Context, req *jsonrpc.Message) (*jsonrpc.Message, error) {
	return p.engine.Call(ctx, req)
}

// callAccountEnumeration forwards an account-enumeration request across the
// bridge and applies the returned list to the state machine before the
// caller sees the response, so provider state can never lag behind a result
// the caller already holds.
func (p *Provider) callAccountEnumeration(ctx context.Context, req *jsonrpc.Message) (*jsonrpc.Message, error) {
	resp, err := p.bridge.Deliver(ctx, req)
	if err != nil || resp == nil {
		return resp, err
	}

	if resp.Error == nil {
		var accounts []string
		if uerr := resp.UnmarshalResult(&accounts); uerr != nil {
			p.lg.Error("Malformed accounts in enumeration response. Please report this bug.",
				"method", req.Method, "error", uerr)
			accounts = []string{}
		}
		internal := requestOriginFrom(ctx) == OriginInternal
		p.sm.handleAccountsChanged(accounts, true, internal)
	}
	return resp, nil
}

// IsConnected reports whether the provider currently holds a settled chain
// identity.
func (p *Provider) IsConnected() bool {
	return p.sm.snapshot().IsConnected
}

// ChainID reports the current chain identity, empty when unknown.
func (p *Provider) ChainID() string {
	return p.sm.snapshot().ChainID
}

// SelectedAddress reports the first exposed account, empty when none.
func (p *Provider) SelectedAddress() string {
	return p.sm.snapshot().SelectedAddress
}

// State returns a detached copy of the full provider state.
func (p *Provider) State() State {
	return p.sm.snapshot()
}

// On subscribes fn to event. See EventEmitter.On.
func (p *Provider) On(event Event, fn Listener) uint64 {
	return p.emitter.On(event, fn)
}

// Once subscribes fn to event for a single delivery. See EventEmitter.Once.
func (p *Provider) Once(event Event, fn Listener) uint64 {
	return p.emitter.Once(event, fn)
}

// RemoveListener drops a subscription made with On or Once.
func (p *Provider) RemoveListener(event Event, id uint64) {
	p.emitter.RemoveListener(event, id)
}

// ListenerCount reports live subscriptions for event.
func (p *Provider) ListenerCount(event Event) int {
	return p.emitter.ListenerCount(event)
}

// initializeState performs the one-shot initial state fetch. Success
// applies chain, unlock, and accounts in that order, emitting connect
// first. Failure is logged and swallowed: initialization always completes,
// always marks the provider initialized, and always fires the one-shot
// initialized signal.
func (p *Provider) initializeState(ctx context.Context) {
	ctx = withRequestOrigin(ctx, OriginInternal)

	req, err := jsonrpc.NewRequest(MethodGetProviderState, nil)
	if err != nil {
		p.lg.Error("Failed to build initial state request", "error", err)
	} else {
		resp, callErr := p.engine.Call(ctx, req)
		switch {
		case callErr != nil:
			p.lg.Error("Failed to fetch initial provider state", "error", callErr)
		case resp.Error != nil:
			p.lg.Error("Failed to fetch initial provider state", "error", resp.Error)
		default:
			var st ProviderStateResult
			if uerr := resp.UnmarshalResult(&st); uerr != nil {
				p.lg.Error("Malformed initial provider state. Please report this bug.", "error", uerr)
			} else {
				p.sm.handleChainChanged(st.ChainID)
				p.sm.handleUnlockChanged(st.IsUnlocked, st.Accounts)
				p.sm.handleAccountsChanged(st.Accounts, false, true)
			}
		}
	}

	p.sendSiteMetadata()
	p.sm.markInitialized()
}

// handleTransportClosure runs once when the multiplexer pump stops. Any
// closure of the underlying connection, expected or not, is terminal for
// this provider instance.
func (p *Provider) handleTransportClosure(err error) {
	if err != nil {
		p.lg.Warn("Transport closed unexpectedly", "error", err)
	} else {
		p.lg.Debug("Transport closed")
	}
	p.sm.handleDisconnect(false)
}

// handleEngineClosure runs once when the engine pump stops. It funnels into
// the same terminal path as a transport closure; the state machine makes
// the duplicate a no-op.
func (p *Provider) handleEngineClosure(err error) {
	if err != nil {
		p.lg.Debug("Engine stopped", "error", err)
	}
	p.sm.handleDisconnect(false)
}

// validateRequestArguments enforces the public request contract: a
// non-empty method, and params that will encode as a JSON array or object.
func validateRequestArguments(args RequestArguments) *jsonrpc.StructuredError {
	if args.Method == "" {
		return newInvalidMethodError(args.Method)
	}
	if args.Params == nil {
		return nil
	}

	v := reflect.ValueOf(args.Params)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return newInvalidParamsError(args.Params)
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return nil
	default:
		return newInvalidParamsError(args.Params)
	}
}
