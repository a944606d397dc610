package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "CREDITD"

	flagDatabaseURL        = "database-url"
	flagStore              = "store"
	flagLockTimeout        = "lock-timeout"
	flagReservationTTL     = "reservation-ttl"
	flagAutoMigrate        = "auto-migrate"
	flagAutoCreateAccounts = "auto-create-accounts"
	flagIDGenerator        = "id-generator"
	flagSnowflakeNode      = "snowflake-node"
	flagGRPCListenAddr     = "grpc-listen-addr"
	flagHTTPListenAddr     = "http-listen-addr"
	flagAllowedOrigins     = "allowed-origins"
	flagRequestTimeout     = "request-timeout"
	flagSweepMode          = "sweep-mode"
	flagSweepInterval      = "sweep-interval"
	flagRedisAddr          = "redis-addr"

	configKeyDatabaseURL        = "database_url"
	configKeyStore              = "store"
	configKeyLockTimeout        = "lock_timeout"
	configKeyReservationTTL     = "reservation_ttl"
	configKeyAutoMigrate        = "auto_migrate"
	configKeyAutoCreateAccounts = "auto_create_accounts"
	configKeyIDGenerator        = "id_generator"
	configKeySnowflakeNode      = "snowflake_node"
	configKeyGRPCListenAddr     = "grpc_listen_addr"
	configKeyHTTPListenAddr     = "http_listen_addr"
	configKeyAllowedOrigins     = "allowed_origins"
	configKeyRequestTimeout     = "request_timeout"
	configKeySweepMode          = "sweep_mode"
	configKeySweepInterval      = "sweep_interval"
	configKeyRedisAddr          = "redis_addr"

	defaultDatabaseURL    = "sqlite:///tmp/credits.db"
	defaultStore          = storeGorm
	defaultLockTimeout    = 5 * time.Second
	defaultReservationTTL = 15 * time.Minute
	defaultGRPCListenAddr = ":7000"
	defaultHTTPListenAddr = ":8080"
	defaultRequestTimeout = 5 * time.Second
	defaultSweepMode      = sweepModeTicker
	defaultSweepInterval  = time.Minute
	defaultIDGenerator    = idGeneratorUUID

	storeGorm   = "gorm"
	storePgx    = "pgx"
	storeMemory = "memory"

	sweepModeTicker = "ticker"
	sweepModeAsynq  = "asynq"
	sweepModeOff    = "off"

	idGeneratorUUID      = "uuid"
	idGeneratorSnowflake = "snowflake"
)

var configBindings = map[string]string{
	configKeyDatabaseURL:        flagDatabaseURL,
	configKeyStore:              flagStore,
	configKeyLockTimeout:        flagLockTimeout,
	configKeyReservationTTL:     flagReservationTTL,
	configKeyAutoMigrate:        flagAutoMigrate,
	configKeyAutoCreateAccounts: flagAutoCreateAccounts,
	configKeyIDGenerator:        flagIDGenerator,
	configKeySnowflakeNode:      flagSnowflakeNode,
	configKeyGRPCListenAddr:     flagGRPCListenAddr,
	configKeyHTTPListenAddr:     flagHTTPListenAddr,
	configKeyAllowedOrigins:     flagAllowedOrigins,
	configKeyRequestTimeout:     flagRequestTimeout,
	configKeySweepMode:          flagSweepMode,
	configKeySweepInterval:      flagSweepInterval,
	configKeyRedisAddr:          flagRedisAddr,
}

type runtimeConfig struct {
	DatabaseURL        string
	Store              string
	LockTimeout        time.Duration
	ReservationTTL     time.Duration
	AutoMigrate        bool
	AutoCreateAccounts bool
	IDGenerator        string
	SnowflakeNode      int64
	GRPCListenAddr     string
	HTTPListenAddr     string
	AllowedOrigins     string
	RequestTimeout     time.Duration
	SweepMode          string
	SweepInterval      time.Duration
	RedisAddr          string
}

func main() {
	_ = godotenv.Load()
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "creditd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "creditd",
		Short:         "Unified credit ledger and reservation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "database URL (postgres:// or sqlite:// or a sqlite path)")
	flags.String(flagStore, defaultStore, "store backend: gorm, pgx or memory")
	flags.Duration(flagLockTimeout, defaultLockTimeout, "maximum wait for an account lock")
	flags.Duration(flagReservationTTL, defaultReservationTTL, "default reservation lifetime")
	flags.Bool(flagAutoMigrate, true, "apply the schema on startup")
	flags.Bool(flagAutoCreateAccounts, true, "open accounts implicitly on first movement")
	flags.String(flagIDGenerator, defaultIDGenerator, "identifier scheme: uuid or snowflake")
	flags.Int64(flagSnowflakeNode, 1, "snowflake node number (0-1023)")

	cmd.AddCommand(newServeCommand(cfg), newSweepCommand(cfg), newMigrateCommand(cfg), newReconcileCommand(cfg))
	return cmd
}

func newServeCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	flags := cmd.Flags()
	flags.String(flagGRPCListenAddr, defaultGRPCListenAddr, "gRPC listen address")
	flags.String(flagHTTPListenAddr, defaultHTTPListenAddr, "HTTP listen address (empty disables HTTP)")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.Duration(flagRequestTimeout, defaultRequestTimeout, "per-request ledger timeout")
	flags.String(flagSweepMode, defaultSweepMode, "expiry sweep mode: ticker, asynq or off")
	flags.Duration(flagSweepInterval, defaultSweepInterval, "expiry sweep interval")
	flags.String(flagRedisAddr, "", "Redis address for the sweep lease or asynq scheduler")
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, flagName := range configBindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(configKeyDatabaseURL))
	cfg.Store = strings.ToLower(strings.TrimSpace(v.GetString(configKeyStore)))
	cfg.LockTimeout = v.GetDuration(configKeyLockTimeout)
	cfg.ReservationTTL = v.GetDuration(configKeyReservationTTL)
	cfg.AutoMigrate = v.GetBool(configKeyAutoMigrate)
	cfg.AutoCreateAccounts = v.GetBool(configKeyAutoCreateAccounts)
	cfg.IDGenerator = strings.ToLower(strings.TrimSpace(v.GetString(configKeyIDGenerator)))
	cfg.SnowflakeNode = v.GetInt64(configKeySnowflakeNode)
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(configKeyGRPCListenAddr))
	cfg.HTTPListenAddr = strings.TrimSpace(v.GetString(configKeyHTTPListenAddr))
	cfg.AllowedOrigins = v.GetString(configKeyAllowedOrigins)
	cfg.RequestTimeout = v.GetDuration(configKeyRequestTimeout)
	cfg.SweepMode = strings.ToLower(strings.TrimSpace(v.GetString(configKeySweepMode)))
	cfg.SweepInterval = v.GetDuration(configKeySweepInterval)
	cfg.RedisAddr = strings.TrimSpace(v.GetString(configKeyRedisAddr))
	return cfg.validate()
}

func (cfg *runtimeConfig) validate() error {
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.Store == "" {
		cfg.Store = defaultStore
	}
	switch cfg.Store {
	case storeGorm, storeMemory:
	case storePgx:
		if driver, _, err := resolveDriver(cfg.DatabaseURL); err != nil || driver != driverPostgres {
			return fmt.Errorf("store %q requires a postgres database url", storePgx)
		}
	default:
		return fmt.Errorf("unsupported store %q", cfg.Store)
	}
	if cfg.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must not be negative")
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = defaultReservationTTL
	}
	if cfg.IDGenerator == "" {
		cfg.IDGenerator = defaultIDGenerator
	}
	if cfg.IDGenerator != idGeneratorUUID && cfg.IDGenerator != idGeneratorSnowflake {
		return fmt.Errorf("unsupported id generator %q", cfg.IDGenerator)
	}
	if cfg.SweepMode == "" {
		cfg.SweepMode = defaultSweepMode
	}
	switch cfg.SweepMode {
	case sweepModeTicker, sweepModeOff:
	case sweepModeAsynq:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("sweep mode %q requires a redis address", sweepModeAsynq)
		}
	default:
		return fmt.Errorf("unsupported sweep mode %q", cfg.SweepMode)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return nil
}
