package casper

import (
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/toruslabs/casper-provider-go/pkg/log"
)

const (
	configDirPathEnv     = "CASPER_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// Config is the environment-driven configuration for an embedding
// application: logging, the journal database, the network registry, and the
// provider knobs that make sense as deploy-time settings.
type Config struct {
	Log      log.Config
	Database DatabaseConfig

	// StreamName selects the multiplexed channel carrying provider
	// traffic.
	StreamName string `env:"CASPER_JSONRPC_STREAM_NAME" env-default:"provider"`
	// WalletURL, when set, points at a websocket wallet endpoint instead
	// of an in-process transport.
	WalletURL string `env:"CASPER_WALLET_URL" env-default:""`
	// MetricsListenAddr is where the Prometheus scrape endpoint listens.
	MetricsListenAddr string `env:"CASPER_METRICS_LISTEN_ADDR" env-default:":4242"`
	// SiteName and SiteURL identify the embedding application to the
	// wallet. Empty means process defaults.
	SiteName string `env:"CASPER_SITE_NAME" env-default:""`
	SiteURL  string `env:"CASPER_SITE_URL" env-default:""`
	// DisableSiteMetadata suppresses the metadata push after
	// initialization.
	DisableSiteMetadata bool `env:"CASPER_DISABLE_SITE_METADATA" env-default:"false"`

	Networks NetworksConfig
}

// LoadConfig builds configuration from environment variables and the config
// directory. A .env file in the config directory is loaded first when
// present; CASPER_DATABASE_URL, when set, wins over the individual database
// variables.
func LoadConfig(logger log.Logger) (*Config, error) {
	logger = logger.WithName("config")

	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	configDotEnvPath := filepath.Join(configDirPath, ".env")
	if err := godotenv.Load(configDotEnvPath); err != nil {
		logger.Debug(".env file not found", "path", configDotEnvPath)
	} else {
		logger.Info("Loaded .env file", "path", configDotEnvPath)
	}

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		logger.Error("Failed to read environment", "error", err)
		return nil, err
	}

	// A full connection string overrides the individual database variables.
	if config.Database.URL != "" {
		dbConf, err := ParseConnectionString(config.Database.URL)
		if err != nil {
			logger.Error("Failed to parse database connection string", "error", err)
			return nil, err
		}
		config.Database = dbConf
	}

	networks, err := LoadNetworks(configDirPath)
	if err != nil {
		logger.Error("Failed to load network registry", "error", err)
		return nil, err
	}
	config.Networks = networks

	logger.Info("Loaded configuration",
		"streamName", config.StreamName,
		"dbDriver", config.Database.Driver,
		"networks", len(config.Networks.Networks))

	return &config, nil
}

// ProviderConfig maps the environment-driven settings onto a
// ProviderConfig. Logger, Journal, Metrics, and Bridge stay nil for the
// caller to wire.
func (c *Config) ProviderConfig() ProviderConfig {
	cfg := DefaultProviderConfig
	if c.StreamName != "" {
		cfg.JSONRPCStreamName = c.StreamName
	}
	cfg.DisableSiteMetadata = c.DisableSiteMetadata
	cfg.SiteMetadata = SiteMetadata{
		Name: c.SiteName,
		URL:  c.SiteURL,
	}
	return cfg
}
