package casper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	casper "github.com/toruslabs/casper-provider-go"
	"github.com/toruslabs/casper-provider-go/pkg/mux"
	"github.com/toruslabs/casper-provider-go/walletsim"
)

// TestProvider_OverWebsocket runs the full stack over a real socket: a wallet
// behind an HTTP upgrade handler, a dialed provider in front.
func TestProvider_OverWebsocket(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	var (
		mu     sync.Mutex
		wallet *walletsim.Wallet
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		duplex, err := mux.NewWebsocketConn(conn)
		if err != nil {
			return
		}
		sim, err := walletsim.New(duplex, walletsim.Config{
			ChainID:  "casper",
			Unlocked: true,
		})
		if err != nil {
			return
		}
		// The wallet owns the upgraded connection past this handler's return.
		if err := sim.Serve(context.Background()); err != nil {
			return
		}
		mu.Lock()
		wallet = sim
		mu.Unlock()
	}))
	t.Cleanup(func() {
		mu.Lock()
		if wallet != nil {
			_ = wallet.Close()
		}
		mu.Unlock()
		server.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, err := mux.DialWebsocket(context.Background(), url, mux.DefaultDialConfig)
	require.NoError(t, err)

	provider, err := casper.NewProvider(conn, casper.DefaultProviderConfig)
	require.NoError(t, err)
	require.NoError(t, provider.Serve(context.Background()))
	t.Cleanup(func() { _ = provider.Close() })

	require.Eventually(t, func() bool {
		return provider.State().Initialized
	}, waitTimeout, 5*time.Millisecond, "provider never initialized over the socket")

	assert.True(t, provider.IsConnected())
	assert.Equal(t, "casper", provider.ChainID())

	raw, err := provider.Request(context.Background(), casper.RequestArguments{
		Method: casper.MethodRequestAccounts,
	})
	require.NoError(t, err)
	accounts, ok := raw.([]any)
	require.True(t, ok, "expected a JSON array result, got %T", raw)
	require.Len(t, accounts, 2)
	assert.Equal(t, accounts[0].(string), provider.SelectedAddress())
}
