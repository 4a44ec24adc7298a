package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ideamarket/config"
	"ideamarket/core"
	"ideamarket/observability/logging"
	"ideamarket/rpc"
	"ideamarket/storage"
)

const (
	envName      = "IDEAMARKET_ENV"
	rpcTokenEnv  = "IDEAMARKET_RPC_TOKEN"
	memoryDBName = ":memory:"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envName))
	logger := logging.Setup("ideamarketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	accounts, err := cfg.Accounts()
	if err != nil {
		logger.Error("invalid privileged accounts", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}

	node, err := core.NewNode(db, core.Config{
		Owner:             accounts.Owner,
		Admin:             accounts.Admin,
		TradingFeeAddress: accounts.TradingFee,
		RewardRecipient:   accounts.RewardRecipient,
	}, logger)
	if err != nil {
		logger.Error("failed to wire node", slog.Any("error", err))
		db.Close()
		os.Exit(1)
	}
	defer node.Close()

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		authToken = cfg.RPCAuthToken
	}
	if strings.TrimSpace(authToken) == "" {
		logger.Warn("no RPC auth token configured; mutating methods are disabled")
	}

	server := rpc.NewServer(node, authToken, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func openDatabase(dataDir string) (storage.Database, error) {
	if dataDir == memoryDBName {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return storage.NewLevelDB(filepath.Join(dataDir, "market"))
}
