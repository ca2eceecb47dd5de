package walletsim_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	casper "github.com/toruslabs/casper-provider-go"
	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
	"github.com/toruslabs/casper-provider-go/pkg/mux"
	"github.com/toruslabs/casper-provider-go/walletsim"
)

const waitTimeout = 2 * time.Second

// rawPeer drives the wallet's stream directly, playing the provider side of
// the wire without any provider machinery in between.
type rawPeer struct {
	t      *testing.T
	mux    *mux.ObjectMultiplex
	stream *mux.Stream
}

func newRawPeer(t *testing.T, ctx context.Context, conn mux.Duplex, streamName string) *rawPeer {
	t.Helper()

	m, err := mux.New(conn, mux.Config{})
	require.NoError(t, err)
	stream, err := m.CreateStream(streamName)
	require.NoError(t, err)
	require.NoError(t, m.Serve(ctx, func(error) {}))
	t.Cleanup(func() { _ = m.Close() })

	return &rawPeer{t: t, mux: m, stream: stream}
}

// read returns the next parsed frame on the stream, failing the test if none
// arrives in time.
func (p *rawPeer) read() *jsonrpc.Message {
	p.t.Helper()

	type frame struct {
		msg *jsonrpc.Message
		err error
	}
	ch := make(chan frame, 1)
	go func() {
		data, err := p.stream.ReadMessage()
		if err != nil {
			ch <- frame{err: err}
			return
		}
		msg, err := jsonrpc.ParseMessage(data)
		ch <- frame{msg: msg, err: err}
	}()

	select {
	case f := <-ch:
		require.NoError(p.t, f.err)
		return f.msg
	case <-time.After(waitTimeout):
		p.t.Fatal("timed out waiting for a frame from the wallet")
		return nil
	}
}

func (p *rawPeer) send(msg *jsonrpc.Message) {
	p.t.Helper()

	data, err := json.Marshal(msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.stream.WriteMessage(data))
}

// call sends a request under id and waits for its response, skipping over any
// interleaved notifications.
func (p *rawPeer) call(id int64, method string, params any) *jsonrpc.Message {
	p.t.Helper()

	msg, err := jsonrpc.NewRequest(method, params)
	require.NoError(p.t, err)
	msg.ID = json.RawMessage(strconv.FormatInt(id, 10))
	p.send(msg)

	for {
		resp := p.read()
		if !resp.IsResponse() {
			continue
		}
		require.Equal(p.t, string(msg.ID), string(resp.ID))
		return resp
	}
}

// awaitNotification waits for the next server push carrying method, skipping
// everything else.
func (p *rawPeer) awaitNotification(method string) *jsonrpc.Message {
	p.t.Helper()

	for {
		msg := p.read()
		if msg.IsNotification() && msg.Method == method {
			return msg
		}
	}
}

func startWallet(t *testing.T, cfg walletsim.Config) (*walletsim.Wallet, *rawPeer) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	providerEnd, walletEnd := mux.Pipe()
	wallet, err := walletsim.New(walletEnd, cfg)
	require.NoError(t, err)
	require.NoError(t, wallet.Serve(ctx))
	t.Cleanup(func() { _ = wallet.Close() })

	streamName := cfg.StreamName
	if streamName == "" {
		streamName = casper.DefaultStreamName
	}
	return wallet, newRawPeer(t, ctx, providerEnd, streamName)
}

func TestWallet_AnswersProviderState(t *testing.T) {
	t.Parallel()

	wallet, peer := startWallet(t, walletsim.Config{})

	resp := peer.call(1, casper.MethodGetProviderState, nil)
	require.Nil(t, resp.Error)

	var state casper.ProviderStateResult
	require.NoError(t, resp.UnmarshalResult(&state))
	assert.Equal(t, "casper-test", state.ChainID)
	assert.False(t, state.IsUnlocked)
	assert.Empty(t, state.Accounts)
	assert.Len(t, wallet.Accounts(), 2)
}

func TestWallet_AccountsRespectUnlockState(t *testing.T) {
	t.Parallel()

	wallet, peer := startWallet(t, walletsim.Config{
		Accounts: []string{"02aa", "02bb"},
	})

	resp := peer.call(1, casper.MethodAccounts, nil)
	var accounts []string
	require.NoError(t, resp.UnmarshalResult(&accounts))
	assert.Equal(t, []string{}, accounts)

	require.NoError(t, wallet.SetUnlocked(true))
	notif := peer.awaitNotification(casper.MethodUnlockStateChanged)
	var params casper.UnlockStateChangedParams
	require.NoError(t, notif.UnmarshalParams(&params))
	require.NotNil(t, params.IsUnlocked)
	assert.True(t, *params.IsUnlocked)
	assert.Equal(t, []string{"02aa", "02bb"}, params.Accounts)

	resp = peer.call(2, casper.MethodAccounts, nil)
	require.NoError(t, resp.UnmarshalResult(&accounts))
	assert.Equal(t, []string{"02aa", "02bb"}, accounts)
}

func TestWallet_RequestAccountsUnlocks(t *testing.T) {
	t.Parallel()

	wallet, peer := startWallet(t, walletsim.Config{
		Accounts: []string{"02aa"},
	})
	require.False(t, wallet.IsUnlocked())

	resp := peer.call(1, casper.MethodRequestAccounts, nil)
	require.Nil(t, resp.Error)

	var accounts []string
	require.NoError(t, resp.UnmarshalResult(&accounts))
	assert.Equal(t, []string{"02aa"}, accounts)
	assert.True(t, wallet.IsUnlocked())
}

func TestWallet_RequestAccountsRejection(t *testing.T) {
	t.Parallel()

	wallet, peer := startWallet(t, walletsim.Config{
		RejectAccountRequests: true,
	})

	resp := peer.call(1, casper.MethodRequestAccounts, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeUserRejected, resp.Error.Code)
	assert.Equal(t, "User rejected the request.", resp.Error.Message)
	assert.False(t, wallet.IsUnlocked())
}

func TestWallet_GetBalance(t *testing.T) {
	t.Parallel()

	account := "02aa"
	wallet, peer := startWallet(t, walletsim.Config{
		Accounts: []string{account},
		Balances: map[string]decimal.Decimal{
			account: decimal.NewFromInt(2_500_000_000),
		},
	})

	var balance string

	resp := peer.call(1, walletsim.MethodGetBalance, map[string]string{"account": account})
	require.NoError(t, resp.UnmarshalResult(&balance))
	assert.Equal(t, "2500000000", balance)

	resp = peer.call(2, walletsim.MethodGetBalance, []string{account})
	require.NoError(t, resp.UnmarshalResult(&balance))
	assert.Equal(t, "2500000000", balance)

	resp = peer.call(3, walletsim.MethodGetBalance, map[string]string{"account": "02ff"})
	require.NoError(t, resp.UnmarshalResult(&balance))
	assert.Equal(t, "0", balance)

	resp = peer.call(4, walletsim.MethodGetBalance, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeInvalidParams, resp.Error.Code)

	wallet.SetBalance(account, decimal.NewFromInt(7))
	resp = peer.call(5, walletsim.MethodGetBalance, []string{account})
	require.NoError(t, resp.UnmarshalResult(&balance))
	assert.Equal(t, "7", balance)
}

func TestWallet_UnknownMethodFails(t *testing.T) {
	t.Parallel()

	_, peer := startWallet(t, walletsim.Config{})

	resp := peer.call(1, "casper_putDeploy", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "the method casper_putDeploy does not exist", resp.Error.Message)
}

func TestWallet_SettersPushNotifications(t *testing.T) {
	t.Parallel()

	wallet, peer := startWallet(t, walletsim.Config{
		Accounts: []string{"02aa"},
		Unlocked: true,
	})

	require.NoError(t, wallet.SetChainID("casper"))
	notif := peer.awaitNotification(casper.MethodChainChanged)
	assert.Nil(t, notif.ID)
	var chain casper.ChainChangedParams
	require.NoError(t, notif.UnmarshalParams(&chain))
	assert.Equal(t, "casper", chain.ChainID)
	assert.Equal(t, "casper", wallet.ChainID())

	require.NoError(t, wallet.SetAccounts([]string{"02bb", "02cc"}))
	notif = peer.awaitNotification(casper.MethodAccountsChanged)
	assert.Nil(t, notif.ID)
	var accounts []string
	require.NoError(t, notif.UnmarshalParams(&accounts))
	assert.Equal(t, []string{"02bb", "02cc"}, accounts)
}

func TestWallet_LockedSettersPushEmptyAccounts(t *testing.T) {
	t.Parallel()

	wallet, peer := startWallet(t, walletsim.Config{
		Accounts: []string{"02aa"},
	})

	require.NoError(t, wallet.SetAccounts([]string{"02bb"}))
	notif := peer.awaitNotification(casper.MethodAccountsChanged)
	var accounts []string
	require.NoError(t, notif.UnmarshalParams(&accounts))
	assert.Equal(t, []string{}, accounts)

	require.NoError(t, wallet.SetUnlocked(false))
	notif = peer.awaitNotification(casper.MethodUnlockStateChanged)
	var params casper.UnlockStateChangedParams
	require.NoError(t, notif.UnmarshalParams(&params))
	require.NotNil(t, params.IsUnlocked)
	assert.False(t, *params.IsUnlocked)
	assert.Empty(t, params.Accounts)
}

func TestWallet_RecordsSiteMetadata(t *testing.T) {
	t.Parallel()

	wallet, peer := startWallet(t, walletsim.Config{})

	notif, err := jsonrpc.NewNotification(casper.MethodSendSiteMetadata, casper.SiteMetadata{
		Name: "example dapp",
		URL:  "https://dapp.example",
	})
	require.NoError(t, err)
	peer.send(notif)

	require.Eventually(t, func() bool {
		return len(wallet.Metadata()) == 1
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, "example dapp", wallet.Metadata()[0].Name)
	assert.Equal(t, "https://dapp.example", wallet.Metadata()[0].URL)

	// Metadata frames are notifications; nothing comes back for them.
	resp := peer.call(1, casper.MethodAccounts, nil)
	require.Nil(t, resp.Error)
}

func TestWallet_RecordsCallsInOrder(t *testing.T) {
	t.Parallel()

	wallet, peer := startWallet(t, walletsim.Config{})

	peer.call(1, casper.MethodGetProviderState, nil)
	peer.call(2, casper.MethodAccounts, nil)
	peer.call(3, walletsim.MethodGetBalance, []string{"02aa"})

	assert.Equal(t, []string{
		casper.MethodGetProviderState,
		casper.MethodAccounts,
		walletsim.MethodGetBalance,
	}, wallet.Calls())
}

func TestWallet_ServeTwice(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	_, walletEnd := mux.Pipe()
	wallet, err := walletsim.New(walletEnd, walletsim.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = wallet.Close() })

	require.NoError(t, wallet.Serve(ctx))
	assert.ErrorIs(t, wallet.Serve(ctx), walletsim.ErrAlreadyServing)
}

func TestGenerateAccounts(t *testing.T) {
	t.Parallel()

	accounts, err := walletsim.GenerateAccounts(3)
	require.NoError(t, err)
	require.Len(t, accounts, 3)

	seen := make(map[string]bool, len(accounts))
	for _, account := range accounts {
		// Algorithm tag plus a 33-byte compressed secp256k1 key.
		assert.Len(t, account, 68)
		assert.Equal(t, "02", account[:2])
		assert.False(t, seen[account])
		seen[account] = true
	}
}
