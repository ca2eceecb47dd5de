package walletsim

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	casper "github.com/toruslabs/casper-provider-go"
	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
	"github.com/toruslabs/casper-provider-go/pkg/log"
	"github.com/toruslabs/casper-provider-go/pkg/mux"
)

// MethodGetBalance answers an account's balance in motes.
const MethodGetBalance = "casper_getBalance"

// ErrAlreadyServing is returned when Serve is called twice.
var ErrAlreadyServing = fmt.Errorf("wallet is already serving")

var validate = validator.New()

// Config tunes a simulated wallet. The zero value is usable: it serves the
// default provider stream, reports the testnet chain, starts locked, and
// generates two accounts.
type Config struct {
	// StreamName is the multiplexed channel to serve. Defaults to the
	// provider's default stream name.
	StreamName string
	// ChainID is the chain identity reported to the provider. Defaults to
	// the Casper testnet.
	ChainID string
	// Accounts are the wallet's accounts. When empty, two secp256k1
	// accounts are generated.
	Accounts []string
	// Unlocked is the initial unlock state.
	Unlocked bool
	// RejectAccountRequests makes account-exposure requests fail with a
	// user-rejection error.
	RejectAccountRequests bool
	// Balances maps accounts to balances in motes.
	Balances map[string]decimal.Decimal
	// Logger receives diagnostics. Defaults to a noop logger.
	Logger log.Logger
}

// handlerFunc answers one request. A nil error means result is the
// response payload.
type handlerFunc func(params json.RawMessage) (any, *jsonrpc.StructuredError)

// Wallet is a simulated wallet runtime bound to one duplex connection. All
// of its state can change while serving: setters push the matching
// notification to the provider side.
type Wallet struct {
	lg log.Logger

	mux    *mux.ObjectMultiplex
	stream *mux.Stream

	handlers map[string]handlerFunc

	mu       sync.Mutex
	serving  bool
	chainID  string
	unlocked bool
	rejected bool
	accounts []string
	balances map[string]decimal.Decimal
	metadata []casper.SiteMetadata
	calls    []string
}

// New builds a wallet over conn. Nothing flows until Serve is called.
func New(conn mux.Duplex, cfg Config) (*Wallet, error) {
	if cfg.StreamName == "" {
		cfg.StreamName = casper.DefaultStreamName
	}
	if cfg.ChainID == "" {
		cfg.ChainID = "casper-test"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	if len(cfg.Accounts) == 0 {
		accounts, err := GenerateAccounts(2)
		if err != nil {
			return nil, err
		}
		cfg.Accounts = accounts
	}

	m, err := mux.New(conn, mux.Config{Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	stream, err := m.CreateStream(cfg.StreamName)
	if err != nil {
		return nil, err
	}

	balances := make(map[string]decimal.Decimal, len(cfg.Balances))
	for account, balance := range cfg.Balances {
		balances[account] = balance
	}

	w := &Wallet{
		lg:       cfg.Logger.WithName("walletsim"),
		mux:      m,
		stream:   stream,
		chainID:  cfg.ChainID,
		unlocked: cfg.Unlocked,
		rejected: cfg.RejectAccountRequests,
		accounts: append([]string(nil), cfg.Accounts...),
		balances: balances,
	}
	w.handlers = map[string]handlerFunc{
		casper.MethodGetProviderState: w.handleGetProviderState,
		casper.MethodAccounts:         w.handleAccounts,
		casper.MethodRequestAccounts:  w.handleRequestAccounts,
		MethodGetBalance:              w.handleGetBalance,
	}

	return w, nil
}

// Serve starts the wallet: the multiplexer pump plus a read loop answering
// requests on the provider stream. It returns immediately.
func (w *Wallet) Serve(ctx context.Context) error {
	w.mu.Lock()
	if w.serving {
		w.mu.Unlock()
		return ErrAlreadyServing
	}
	w.serving = true
	w.mu.Unlock()

	if err := w.mux.Serve(ctx, func(err error) {
		if err != nil {
			w.lg.Debug("Wallet transport closed", "error", err)
		}
	}); err != nil {
		return err
	}

	go w.readPump()
	return nil
}

// Close tears the wallet down and closes the underlying connection.
func (w *Wallet) Close() error {
	return w.mux.Close()
}

// ChainID reports the chain identity the wallet currently claims.
func (w *Wallet) ChainID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID
}

// IsUnlocked reports the wallet's unlock state.
func (w *Wallet) IsUnlocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unlocked
}

// Accounts returns a copy of the wallet's accounts, exposed or not.
func (w *Wallet) Accounts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.accounts...)
}

// Metadata returns the site metadata announcements received so far.
func (w *Wallet) Metadata() []casper.SiteMetadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]casper.SiteMetadata(nil), w.metadata...)
}

// Calls returns the request methods answered so far, in arrival order.
func (w *Wallet) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

// SetChainID switches the reported chain and pushes a chain-changed
// notification.
func (w *Wallet) SetChainID(chainID string) error {
	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()

	return w.push(casper.MethodChainChanged, casper.ChainChangedParams{ChainID: chainID})
}

// SetUnlocked locks or unlocks the wallet and pushes an unlock-state
// notification carrying the accounts now exposed.
func (w *Wallet) SetUnlocked(unlocked bool) error {
	w.mu.Lock()
	w.unlocked = unlocked
	exposed := w.exposedAccountsLocked()
	w.mu.Unlock()

	return w.push(casper.MethodUnlockStateChanged, casper.UnlockStateChangedParams{
		Accounts:   exposed,
		IsUnlocked: &unlocked,
	})
}

// SetAccounts replaces the wallet's accounts and pushes an accounts-changed
// notification with whatever is exposed under the current unlock state.
func (w *Wallet) SetAccounts(accounts []string) error {
	w.mu.Lock()
	w.accounts = append([]string(nil), accounts...)
	exposed := w.exposedAccountsLocked()
	w.mu.Unlock()

	return w.push(casper.MethodAccountsChanged, exposed)
}

// SetBalance sets one account's balance in motes.
func (w *Wallet) SetBalance(account string, balance decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[account] = balance
}

// readPump answers requests and absorbs notifications until the stream
// closes.
func (w *Wallet) readPump() {
	for {
		data, err := w.stream.ReadMessage()
		if err != nil {
			w.lg.Debug("Wallet read pump stopped", "error", err)
			return
		}

		msg, err := jsonrpc.ParseMessage(data)
		if err != nil {
			w.lg.Warn("Dropping malformed frame", "error", err)
			continue
		}

		switch {
		case msg.IsNotification():
			w.handleNotification(msg)
		case msg.Method != "":
			w.answer(msg)
		default:
			w.lg.Debug("Dropping response-shaped frame")
		}
	}
}

func (w *Wallet) answer(req *jsonrpc.Message) {
	w.mu.Lock()
	w.calls = append(w.calls, req.Method)
	handler, ok := w.handlers[req.Method]
	w.mu.Unlock()

	var resp *jsonrpc.Message
	if !ok {
		resp = jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.Errorf(jsonrpc.CodeMethodNotFound, "the method %s does not exist", req.Method))
	} else if result, serr := handler(req.Params); serr != nil {
		resp = jsonrpc.NewErrorResponse(req.ID, serr)
	} else {
		var err error
		resp, err = jsonrpc.NewResponse(req.ID, result)
		if err != nil {
			w.lg.Error("Failed to build response", "method", req.Method, "error", err)
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "response marshaling failed", nil))
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		w.lg.Error("Failed to marshal response", "method", req.Method, "error", err)
		return
	}
	if err := w.stream.WriteMessage(data); err != nil {
		w.lg.Debug("Failed to write response", "method", req.Method, "error", err)
	}
}

func (w *Wallet) handleNotification(msg *jsonrpc.Message) {
	if msg.Method != casper.MethodSendSiteMetadata {
		w.lg.Debug("Ignoring notification", "method", msg.Method)
		return
	}

	var meta casper.SiteMetadata
	if err := msg.UnmarshalParams(&meta); err != nil {
		w.lg.Warn("Malformed site metadata", "error", err)
		return
	}

	w.mu.Lock()
	w.metadata = append(w.metadata, meta)
	w.mu.Unlock()
	w.lg.Debug("Recorded site metadata", "name", meta.Name, "url", meta.URL)
}

func (w *Wallet) handleGetProviderState(json.RawMessage) (any, *jsonrpc.StructuredError) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return casper.ProviderStateResult{
		Accounts:   w.exposedAccountsLocked(),
		ChainID:    w.chainID,
		IsUnlocked: w.unlocked,
	}, nil
}

func (w *Wallet) handleAccounts(json.RawMessage) (any, *jsonrpc.StructuredError) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exposedAccountsLocked(), nil
}

func (w *Wallet) handleRequestAccounts(json.RawMessage) (any, *jsonrpc.StructuredError) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.rejected {
		return nil, jsonrpc.NewError(jsonrpc.CodeUserRejected, "User rejected the request.", nil)
	}

	// Approval implies unlocking.
	w.unlocked = true
	return w.exposedAccountsLocked(), nil
}

// balanceParams is accepted either as an object or as a single-element
// array.
type balanceParams struct {
	Account string `json:"account" validate:"required"`
}

func (w *Wallet) handleGetBalance(params json.RawMessage) (any, *jsonrpc.StructuredError) {
	var p balanceParams
	if err := json.Unmarshal(params, &p); err != nil || p.Account == "" {
		var positional []string
		if err := json.Unmarshal(params, &positional); err == nil && len(positional) > 0 {
			p.Account = positional[0]
		}
	}
	if err := validate.Struct(p); err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "invalid balance params: %s", err.Error())
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	balance, ok := w.balances[p.Account]
	if !ok {
		balance = decimal.Zero
	}
	return balance.String(), nil
}

// exposedAccountsLocked returns the accounts visible to the site under the
// current unlock state. Callers must hold w.mu.
func (w *Wallet) exposedAccountsLocked() []string {
	if !w.unlocked {
		return []string{}
	}
	return append([]string(nil), w.accounts...)
}

func (w *Wallet) push(method string, params any) error {
	notif, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	return w.stream.WriteMessage(data)
}

// GenerateAccounts derives n fresh secp256k1 account hashes in the
// compressed public key format Casper uses: an algorithm tag byte followed
// by the 33-byte compressed key, hex encoded.
func GenerateAccounts(n int) ([]string, error) {
	accounts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		compressed := crypto.CompressPubkey(&key.PublicKey)
		accounts = append(accounts, "02"+hex.EncodeToString(compressed))
	}
	return accounts, nil
}
