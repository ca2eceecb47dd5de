package casper_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	casper "github.com/toruslabs/casper-provider-go"
)

func writeNetworksFile(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "networks.yaml"), []byte(content), 0o600)
	require.NoError(t, err)
	return dir
}

func TestLoadNetworks_Embedded(t *testing.T) {
	t.Parallel()

	// An empty config dir falls back to the embedded registry.
	networks, err := casper.LoadNetworks(t.TempDir())
	require.NoError(t, err)
	require.Len(t, networks.Networks, 4)

	mainnet, ok := networks.GetNetworkByChainID("casper")
	require.True(t, ok)
	assert.Equal(t, "Casper Mainnet", mainnet.Name)
	assert.Equal(t, "https://cspr.live", mainnet.ExplorerURL)

	testnet, ok := networks.GetNetworkByChainID("casper-test")
	require.True(t, ok)
	assert.Equal(t, "Casper Testnet", testnet.Name)

	// Disabled networks are not offered.
	_, ok = networks.GetNetworkByChainID("integration-test")
	assert.False(t, ok)

	def, ok := networks.DefaultNetwork()
	require.True(t, ok)
	assert.Equal(t, "casper", def.ChainID)
}

func TestLoadNetworks_OverrideFile(t *testing.T) {
	t.Parallel()

	dir := writeNetworksFile(t, `
networks:
  - chain_id: casper-net-1
    node_url: http://127.0.0.1:11101/rpc
`)

	networks, err := casper.LoadNetworks(dir)
	require.NoError(t, err)
	require.Len(t, networks.Networks, 1)

	// A missing name inherits the chain id.
	assert.Equal(t, "casper-net-1", networks.Networks[0].Name)
	assert.Equal(t, "casper-net-1", networks.Networks[0].ChainID)
}

func TestLoadNetworks_MissingChainID(t *testing.T) {
	t.Parallel()

	dir := writeNetworksFile(t, `
networks:
  - name: Nameless
    node_url: http://127.0.0.1:11101/rpc
`)

	_, err := casper.LoadNetworks(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid network[0]")
}

func TestLoadNetworks_BadNodeURL(t *testing.T) {
	t.Parallel()

	dir := writeNetworksFile(t, `
networks:
  - chain_id: casper
    node_url: not-a-url
`)

	_, err := casper.LoadNetworks(dir)
	require.Error(t, err)
}

func TestLoadNetworks_DuplicateChainID(t *testing.T) {
	t.Parallel()

	dir := writeNetworksFile(t, `
networks:
  - chain_id: casper
  - chain_id: casper
`)

	_, err := casper.LoadNetworks(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate chain id")
}

func TestLoadNetworks_DisabledEntriesAreNotValidated(t *testing.T) {
	t.Parallel()

	dir := writeNetworksFile(t, `
networks:
  - chain_id: casper
  - name: Parked
    disabled: true
`)

	networks, err := casper.LoadNetworks(dir)
	require.NoError(t, err)
	require.Len(t, networks.Networks, 2)

	_, ok := networks.GetNetworkByChainID("")
	assert.False(t, ok)
}

func TestLoadNetworks_MalformedYAML(t *testing.T) {
	t.Parallel()

	dir := writeNetworksFile(t, "networks: [}")

	_, err := casper.LoadNetworks(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse network registry")
}
