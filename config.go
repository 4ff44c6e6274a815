package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var stores = []string{"memory", "badger", "redis"}

type Config struct {
	bind            string
	dataDir         string
	ledgerURL       string
	logFile         string
	metrics         bool
	playerTimeout   time.Duration
	port            int
	prefix          string
	profile         bool
	redisAddr       string
	refreshInterval time.Duration
	serveLedger     bool
	sessionTimeout  time.Duration
	store           string
	tlsCert         string
	tlsKey          string
	verbose         bool
	version         bool
	walletKeyfile   string

	// subcommands
	clickCount int
	player     string

	logger *zap.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if !slices.Contains(stores, c.store) {
		return fmt.Errorf("invalid store (must be one of %s): %s", strings.Join(stores, ", "), c.store)
	}
	if c.store == "badger" && c.dataDir == "" {
		return errors.New("--data-dir is required when --store is badger")
	}
	if c.serveLedger && c.ledgerURL != "" {
		return errors.New("--serve-ledger cannot be combined with --ledger-url")
	}
	if c.playerTimeout <= 0 {
		return fmt.Errorf("invalid player timeout (must be positive): %s", c.playerTimeout)
	}
	if c.sessionTimeout <= 0 {
		return fmt.Errorf("invalid session timeout (must be positive): %s", c.sessionTimeout)
	}
	if c.refreshInterval <= 0 {
		return fmt.Errorf("invalid refresh interval (must be positive): %s", c.refreshInterval)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CLICKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "clicker",
		Short:         "A clicker game that keeps its scores on a ledger.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			cfg.logger = newLogger(cfg, cmd.ErrOrStderr())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = cfg.log().Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	pfs := cmd.PersistentFlags()

	pfs.StringVar(&cfg.dataDir, "data-dir", "", "directory for the badger ledger store (env: CLICKER_DATA_DIR)")
	pfs.StringVar(&cfg.ledgerURL, "ledger-url", "", "base url of a ledger served by another instance (env: CLICKER_LEDGER_URL)")
	pfs.StringVar(&cfg.logFile, "log-file", "", "also write logs to this file, rotated (env: CLICKER_LOG_FILE)")
	pfs.StringVar(&cfg.redisAddr, "redis-addr", "localhost:6379", "address of the redis ledger store (env: CLICKER_REDIS_ADDR)")
	pfs.StringVar(&cfg.store, "store", "memory", "ledger store to use (memory, badger, redis) (env: CLICKER_STORE)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: CLICKER_VERBOSE)")
	pfs.StringVar(&cfg.walletKeyfile, "wallet-keyfile", "", "path to a keyfile wallet (env: CLICKER_WALLET_KEYFILE)")

	fs := cmd.Flags()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: CLICKER_BIND)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "serve prometheus metrics at /metrics (env: CLICKER_METRICS)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 24*time.Hour, "time before an idle burner wallet is forgotten (env: CLICKER_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: CLICKER_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: CLICKER_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: CLICKER_PROFILE)")
	fs.DurationVar(&cfg.refreshInterval, "refresh-interval", 5*time.Second, "how often to refresh the leaderboard from a remote ledger (env: CLICKER_REFRESH_INTERVAL)")
	fs.BoolVar(&cfg.serveLedger, "serve-ledger", false, "expose the ledger to other instances at /ledger (env: CLICKER_SERVE_LEDGER)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: CLICKER_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: CLICKER_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: CLICKER_TLS_KEY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: CLICKER_VERSION)")

	cmd.AddCommand(
		newLeaderboardCmd(cfg, v),
		newClickCmd(cfg, v),
		newKeygenCmd(cfg),
	)

	bindFlags(v, pfs)
	bindFlags(v, fs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("clicker v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
