package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/astriaorg/astria-sequencer/app"
	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
)

const (
	FlagConfig                   = "config"
	FlagListenAddr               = "listen_addr"
	FlagGRPCAddr                 = "grpc_addr"
	FlagDBFilepath               = "db_filepath"
	FlagLogLevel                 = "log_level"
	FlagLogFormat                = "log_format"
	FlagForceStdout              = "force_stdout"
	FlagMempoolParkedMaxTxCount  = "mempool_parked_max_tx_count"
	FlagMetricsHTTPListenerAddr  = "metrics_http_listener_addr"
	FlagNoMetrics                = "no_metrics"
	FlagUpgradesFilepath         = "upgrades_filepath"
	FlagCometBFTRPCAddr          = "cometbft_rpc_addr"
	FlagPriceFeedGRPCAddr        = "price_feed_grpc_addr"
	FlagNoPriceFeed              = "no_price_feed"
	FlagPriceFeedClientTimeoutMS = "price_feed_client_timeout_milliseconds"
	FlagGenesisFilepath          = "genesis_filepath"
)

const (
	storeCacheSize             = 10_000
	mempoolMaintenanceInterval = time.Second
)

// Config is the node configuration. A flag overrides the matching
// ASTRIA_SEQUENCER_ environment variable, which overrides the config file.
type Config struct {
	ListenAddr                         string `toml:"listen_addr" mapstructure:"listen_addr"`
	GRPCAddr                           string `toml:"grpc_addr" mapstructure:"grpc_addr"`
	DBFilepath                         string `toml:"db_filepath" mapstructure:"db_filepath"`
	LogLevel                           string `toml:"log_level" mapstructure:"log_level"`
	LogFormat                          string `toml:"log_format" mapstructure:"log_format"`
	ForceStdout                        bool   `toml:"force_stdout" mapstructure:"force_stdout"`
	MempoolParkedMaxTxCount            int    `toml:"mempool_parked_max_tx_count" mapstructure:"mempool_parked_max_tx_count"`
	MetricsHTTPListenerAddr            string `toml:"metrics_http_listener_addr" mapstructure:"metrics_http_listener_addr"`
	NoMetrics                          bool   `toml:"no_metrics" mapstructure:"no_metrics"`
	UpgradesFilepath                   string `toml:"upgrades_filepath" mapstructure:"upgrades_filepath"`
	CometBFTRPCAddr                    string `toml:"cometbft_rpc_addr" mapstructure:"cometbft_rpc_addr"`
	PriceFeedGRPCAddr                  string `toml:"price_feed_grpc_addr" mapstructure:"price_feed_grpc_addr"`
	NoPriceFeed                        bool   `toml:"no_price_feed" mapstructure:"no_price_feed"`
	PriceFeedClientTimeoutMilliseconds uint64 `toml:"price_feed_client_timeout_milliseconds" mapstructure:"price_feed_client_timeout_milliseconds"`
}

// DefaultConfig is the configuration of a node started without overrides.
func DefaultConfig() Config {
	return Config{
		ListenAddr:                         "tcp://127.0.0.1:26658",
		GRPCAddr:                           "127.0.0.1:8080",
		DBFilepath:                         appconsts.DefaultNodeName + "-db",
		LogLevel:                           "info",
		LogFormat:                          "json",
		MempoolParkedMaxTxCount:            appconsts.DefaultMaxParkedTxs,
		MetricsHTTPListenerAddr:            "127.0.0.1:9000",
		PriceFeedGRPCAddr:                  "127.0.0.1:8081",
		PriceFeedClientTimeoutMilliseconds: 1000,
	}
}

// Validate checks the settings that cannot be caught by flag parsing.
func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("%s must be set", FlagListenAddr)
	case c.GRPCAddr == "":
		return fmt.Errorf("%s must be set", FlagGRPCAddr)
	case c.DBFilepath == "":
		return fmt.Errorf("%s must be set", FlagDBFilepath)
	case c.MempoolParkedMaxTxCount <= 0:
		return fmt.Errorf("%s must be positive", FlagMempoolParkedMaxTxCount)
	case !c.NoMetrics && c.MetricsHTTPListenerAddr == "":
		return fmt.Errorf("%s must be set unless %s", FlagMetricsHTTPListenerAddr, FlagNoMetrics)
	case !c.NoPriceFeed && c.PriceFeedGRPCAddr == "":
		return fmt.Errorf("%s must be set unless %s", FlagPriceFeedGRPCAddr, FlagNoPriceFeed)
	}
	switch c.LogFormat {
	case "json", "plain":
	default:
		return fmt.Errorf("%s must be json or plain, got %q", FlagLogFormat, c.LogFormat)
	}
	return nil
}

// AppConfig maps the node settings onto the app.
func (c Config) AppConfig() app.Config {
	cfg := app.DefaultConfig()
	cfg.Mempool.MaxParkedTxs = c.MempoolParkedMaxTxCount
	cfg.OracleTimeout = time.Duration(c.PriceFeedClientTimeoutMilliseconds) * time.Millisecond
	cfg.Debug = c.LogLevel == "debug"
	return cfg
}

// addConfigFlags registers one flag per Config field, defaulting to def.
func addConfigFlags(fs *pflag.FlagSet, def Config) {
	fs.String(FlagListenAddr, def.ListenAddr, "ABCI listen address (tcp:// or unix://)")
	fs.String(FlagGRPCAddr, def.GRPCAddr, "gRPC read API listen address")
	fs.String(FlagDBFilepath, def.DBFilepath, "directory of the state database")
	fs.String(FlagLogLevel, def.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.String(FlagLogFormat, def.LogFormat, "log format (json or plain)")
	fs.Bool(FlagForceStdout, def.ForceStdout, "write logs to stdout instead of stderr")
	fs.Int(FlagMempoolParkedMaxTxCount, def.MempoolParkedMaxTxCount, "maximum number of parked transactions")
	fs.String(FlagMetricsHTTPListenerAddr, def.MetricsHTTPListenerAddr, "prometheus metrics listen address")
	fs.Bool(FlagNoMetrics, def.NoMetrics, "disable the metrics server")
	fs.String(FlagUpgradesFilepath, def.UpgradesFilepath, "path of the upgrades json file")
	fs.String(FlagCometBFTRPCAddr, def.CometBFTRPCAddr, "CometBFT RPC address used to resolve vote extension signers")
	fs.String(FlagPriceFeedGRPCAddr, def.PriceFeedGRPCAddr, "price feed sidecar gRPC address")
	fs.Bool(FlagNoPriceFeed, def.NoPriceFeed, "do not query the price feed sidecar")
	fs.Uint64(FlagPriceFeedClientTimeoutMS, def.PriceFeedClientTimeoutMilliseconds, "price feed request timeout in milliseconds")
}

// newViper returns a viper instance that resolves keys from the environment
// and then from flags.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(appconsts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig resolves the configuration of cmd. A config file is read only
// when --config is given.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (Config, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, err
	}
	if path := v.GetString(FlagConfig); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, cfg.Validate()
}

// writeConfig writes cfg as TOML to path, refusing to replace a file.
func writeConfig(path string, cfg Config) error {
	bz, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(bz); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readConfigFile decodes a TOML config file strictly, so typos in keys are
// reported instead of silently ignored.
func readConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg := DefaultConfig()
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return cfg, nil
}

func configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the node configuration file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init [path]",
			Short: "Write the default configuration to a new TOML file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := writeConfig(args[0], DefaultConfig()); err != nil {
					return err
				}
				cmd.Printf("wrote %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate [path]",
			Short: "Check a TOML configuration file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := readConfigFile(args[0])
				if err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				cmd.Println("config is valid")
				return nil
			},
		},
	)
	return cmd
}
