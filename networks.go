package casper

import (
	_ "embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	networksFileName = "networks.yaml"
)

//go:embed config/networks.yaml
var embeddedNetworks []byte

var networkValidate = validator.New()

// NetworksConfig is the root configuration structure for the known-network
// registry. The registry is informational: the provider tracks whatever
// chain the wallet reports, registered or not, but embedders use the
// registry to label chains and pick endpoints.
type NetworksConfig struct {
	Networks []NetworkConfig `yaml:"networks"`
}

// NetworkConfig describes a single known network.
type NetworkConfig struct {
	// Name is the human-readable network name (e.g., "Casper Mainnet").
	// If empty, it will inherit the ChainID value during validation.
	Name string `yaml:"name"`
	// ChainID is the chain identity the wallet reports for this network.
	// This field is required for enabled networks.
	ChainID string `yaml:"chain_id" validate:"required"`
	// NodeURL is an RPC endpoint for the network, if one is known.
	NodeURL string `yaml:"node_url" validate:"omitempty,url"`
	// ExplorerURL is a block explorer for the network, if one is known.
	ExplorerURL string `yaml:"explorer_url" validate:"omitempty,url"`
	// Disabled determines if this network should be offered to embedders.
	Disabled bool `yaml:"disabled"`
}

// LoadNetworks loads and validates the network registry. It reads from
// <configDirPath>/networks.yaml when that file exists and falls back to the
// embedded default registry otherwise.
func LoadNetworks(configDirPath string) (NetworksConfig, error) {
	data := embeddedNetworks

	networksPath := filepath.Join(configDirPath, networksFileName)
	fileData, err := os.ReadFile(networksPath)
	switch {
	case err == nil:
		data = fileData
	case !errors.Is(err, fs.ErrNotExist):
		return NetworksConfig{}, err
	}

	var cfg NetworksConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return NetworksConfig{}, errors.Wrap(err, "failed to parse network registry")
	}

	if err := cfg.verifyVariables(); err != nil {
		return NetworksConfig{}, err
	}

	return cfg, nil
}

// verifyVariables validates the registry and applies defaults:
// - Chain identifiers are required for enabled networks
// - Network names default to the chain identifier if not specified
// - Endpoint URLs must parse as URLs when present
func (cfg *NetworksConfig) verifyVariables() error {
	seen := make(map[string]struct{}, len(cfg.Networks))
	for i, network := range cfg.Networks {
		if network.Disabled {
			continue
		}

		if network.Name == "" {
			cfg.Networks[i].Name = network.ChainID
		}

		if err := networkValidate.Struct(cfg.Networks[i]); err != nil {
			return fmt.Errorf("invalid network[%d] %q: %w", i, network.ChainID, err)
		}

		if _, ok := seen[network.ChainID]; ok {
			return fmt.Errorf("duplicate chain id %q at network[%d]", network.ChainID, i)
		}
		seen[network.ChainID] = struct{}{}
	}

	return nil
}

// GetNetworkByChainID looks up an enabled network by its chain identity.
// The second return value indicates whether the network was found.
func (cfg NetworksConfig) GetNetworkByChainID(chainID string) (NetworkConfig, bool) {
	for _, network := range cfg.Networks {
		if network.Disabled {
			continue
		}
		if network.ChainID == chainID {
			return network, true
		}
	}
	return NetworkConfig{}, false
}

// DefaultNetwork returns the first enabled network in the registry. The
// second return value indicates whether one exists.
func (cfg NetworksConfig) DefaultNetwork() (NetworkConfig, bool) {
	for _, network := range cfg.Networks {
		if !network.Disabled {
			return network, true
		}
	}
	return NetworkConfig{}, false
}
