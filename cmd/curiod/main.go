package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"curiochain/config"
	"curiochain/core/events"
	"curiochain/native/market"
	"curiochain/native/oracle"
	"curiochain/native/registry"
	"curiochain/native/token"
	"curiochain/observability/logging"
	"curiochain/rpc"
	"curiochain/state"
	"curiochain/storage"
)

const (
	authTokenEnv  = "CURIO_RPC_TOKEN"
	eventBuffer   = 4096
	defaultMaxAge = 5 * time.Minute
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("curiod", cfg.LogFile)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	recorder := events.NewRecorder(eventBuffer)

	reg := registry.NewEngine()
	reg.SetState(manager)
	reg.SetEmitter(recorder)

	if err := seedAccessConfig(reg, cfg); err != nil {
		logger.Error("Failed to seed access config", slog.Any("error", err))
		os.Exit(1)
	}

	ledger := token.NewLedger()
	ledger.SetState(manager)

	manual := oracle.NewManualOracle()
	maxAge := defaultMaxAge
	if cfg.OracleMaxQuoteAge > 0 {
		maxAge = time.Duration(cfg.OracleMaxQuoteAge) * time.Second
	}
	aggregator := oracle.NewAggregator([]string{"manual"}, maxAge)
	aggregator.Register("manual", manual)

	mkt := market.NewEngine(reg)
	mkt.SetState(manager)
	mkt.SetLedger(ledger)
	mkt.SetOracle(aggregator)
	mkt.SetEmitter(recorder)
	mkt.SetReferenceCurrency(cfg.ReferenceCurrency)

	accessCfg, err := reg.Config()
	if err != nil {
		logger.Error("Failed to read access config", slog.Any("error", err))
		os.Exit(1)
	}
	mkt.SetAddress(accessCfg.Marketplace)

	authToken := cfg.RPCAuthToken
	if env := os.Getenv(authTokenEnv); env != "" {
		authToken = env
	}
	if authToken == "" {
		logger.Warn("RPC auth token not configured; privileged methods disabled")
	}

	server := rpc.NewServer(reg, mkt, ledger, manual, recorder, authToken)
	logger.Info("Starting JSON-RPC server", slog.String("address", cfg.RPCAddress))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// seedAccessConfig initialises the registry access configuration on first
// start. An already initialised store wins over the file so role rotations
// survive restarts.
func seedAccessConfig(reg *registry.Engine, cfg *config.Config) error {
	if _, err := reg.Config(); err == nil {
		return nil
	}

	admin, err := config.Address(cfg.Admin)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	vault, err := config.Address(cfg.Vault)
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	treasury, err := config.Address(cfg.Treasury)
	if err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	marketplace, err := config.Address(cfg.Marketplace)
	if err != nil {
		return fmt.Errorf("marketplace: %w", err)
	}
	passcode, err := config.Secret(cfg.Passcode)
	if err != nil {
		return fmt.Errorf("passcode: %w", err)
	}

	initErr := reg.InitializeConfig(registry.AccessConfig{
		Admin:       admin,
		Vault:       vault,
		Treasury:    treasury,
		Marketplace: marketplace,
		FeePercent:  cfg.FeePercent,
		Passcode:    passcode,
	})
	if initErr != nil && !errors.Is(initErr, registry.ErrPolicy) {
		return initErr
	}
	return nil
}
