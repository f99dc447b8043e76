package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/config"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "rewards-server",
		Usage: "Merkle rewards distribution server",
		Description: `Serves a registry of merkle distribution roots and pays claims against them.

This server implements:
- An append-only root registry with a time-delayed activation window
- Cumulative claims that pay the difference to an account's latest entitlement
- An optional one-shot distribution loaded from a tree artifact
- Owner and rewarder controlled administration over signed requests`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-file",
				Aliases: []string{"c"},
				Usage:   "YAML config file, flags and environment override its values",
				EnvVars: []string{config.EnvRewardsConfigFile},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvRewardsPort},
			},
			&cli.StringFlag{
				Name:    "owner-address",
				Aliases: []string{"owner"},
				Usage:   "Protocol owner address, applied on first start",
				EnvVars: []string{config.EnvRewardsOwnerAddress},
			},
			&cli.StringFlag{
				Name:    "treasury-address",
				Usage:   "Treasury address, applied on first start",
				EnvVars: []string{config.EnvRewardsTreasuryAddress},
			},
			&cli.Int64Flag{
				Name:    "activation-delay",
				Value:   config.DefaultActivationDelay,
				Usage:   "Seconds between root submission and activation, applied on first start",
				EnvVars: []string{config.EnvRewardsActivationDelay},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Value:   config.PersistenceTypeMemory,
				Usage:   "Persistence backend: memory, badger or redis",
				EnvVars: []string{config.EnvRewardsPersistenceType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Value:   "./data",
				Usage:   "Badger data directory",
				EnvVars: []string{config.EnvRewardsDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis server address (host:port)",
				EnvVars: []string{config.EnvRewardsRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvRewardsRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvRewardsRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every Redis key",
				EnvVars: []string{config.EnvRewardsRedisKeyPrefix},
			},
			&cli.StringFlag{
				Name:    "token-type",
				Value:   config.TokenTypeMemory,
				Usage:   "Token backend: memory or erc20",
				EnvVars: []string{config.EnvRewardsTokenType},
			},
			&cli.StringFlag{
				Name:    "token-symbol",
				Value:   config.DefaultTokenSymbol,
				Usage:   "Memory token symbol",
				EnvVars: []string{config.EnvRewardsTokenSymbol},
			},
			&cli.UintFlag{
				Name:    "token-decimals",
				Value:   config.DefaultTokenDecimals,
				Usage:   "Memory token decimals",
				EnvVars: []string{config.EnvRewardsTokenDecimals},
			},
			&cli.StringFlag{
				Name:    "initial-supply",
				Usage:   "Whole tokens minted to the custody address by the memory token",
				EnvVars: []string{config.EnvRewardsInitialSupply},
			},
			&cli.StringFlag{
				Name:    "custody-address",
				Usage:   "Address holding the memory token's distributable funds",
				EnvVars: []string{config.EnvRewardsCustodyAddress},
			},
			&cli.StringFlag{
				Name:    "token-address",
				Usage:   "ERC20 contract address",
				EnvVars: []string{config.EnvRewardsTokenAddress},
			},
			&cli.Uint64Flag{
				Name:    "chain-id",
				Aliases: []string{"chain"},
				Value:   uint64(config.ChainId_EthereumAnvil),
				Usage:   fmt.Sprintf("Ethereum chain ID: %s", config.GetSupportedChainIDsString()),
				EnvVars: []string{config.EnvRewardsChainID},
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Aliases: []string{"rpc"},
				Usage:   "Ethereum RPC endpoint URL",
				EnvVars: []string{config.EnvRewardsRPCURL},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Custody private key (hex) signing ERC20 transfers",
				EnvVars: []string{config.EnvRewardsPrivateKey},
			},
			&cli.Float64Flag{
				Name:    "claim-rate-limit",
				Value:   config.DefaultClaimRateLimit,
				Usage:   "Sustained claim requests per second",
				EnvVars: []string{config.EnvRewardsClaimRateLimit},
			},
			&cli.IntFlag{
				Name:    "claim-burst",
				Value:   config.DefaultClaimBurst,
				Usage:   "Claim request burst size",
				EnvVars: []string{config.EnvRewardsClaimBurst},
			},
			&cli.StringFlag{
				Name:    "merkle-artifact-path",
				Usage:   "Tree artifact served as a one-shot distribution under /distribution",
				EnvVars: []string{config.EnvRewardsMerkleArtifactPath},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvRewardsDebug},
			},
		},
		Action: runRewardsServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runRewardsServer(c *cli.Context) error {
	cfg, err := parseRewardsServerConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Rewards server running",
		"port", cfg.Port,
		"persistence", cfg.Persistence.Type,
		"token", cfg.Token.Type,
		"custody", app.custody.Hex(),
	)

	<-ctx.Done()
	l.Sugar().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.server.Stop(shutdownCtx)
}

// parseRewardsServerConfig layers explicitly set flags over the config file or defaults
func parseRewardsServerConfig(c *cli.Context) (*config.RewardsServerConfig, error) {
	cfg := config.NewDefaultRewardsServerConfig()
	if path := c.String("config-file"); path != "" {
		loaded, err := config.LoadRewardsServerConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("owner-address") {
		cfg.OwnerAddress = c.String("owner-address")
	}
	if c.IsSet("treasury-address") {
		cfg.TreasuryAddress = c.String("treasury-address")
	}
	if c.IsSet("activation-delay") {
		cfg.ActivationDelay = c.Int64("activation-delay")
	}
	if c.IsSet("persistence-type") {
		cfg.Persistence.Type = c.String("persistence-type")
	}
	if c.IsSet("data-path") {
		cfg.Persistence.DataPath = c.String("data-path")
	}
	if c.IsSet("redis-address") {
		cfg.Persistence.RedisAddress = c.String("redis-address")
	}
	if c.IsSet("redis-password") {
		cfg.Persistence.RedisPassword = c.String("redis-password")
	}
	if c.IsSet("redis-db") {
		cfg.Persistence.RedisDB = c.Int("redis-db")
	}
	if c.IsSet("redis-key-prefix") {
		cfg.Persistence.RedisKeyPrefix = c.String("redis-key-prefix")
	}
	if c.IsSet("token-type") {
		cfg.Token.Type = c.String("token-type")
	}
	if c.IsSet("token-symbol") {
		cfg.Token.Symbol = c.String("token-symbol")
	}
	if c.IsSet("token-decimals") {
		cfg.Token.Decimals = uint8(c.Uint("token-decimals"))
	}
	if c.IsSet("initial-supply") {
		cfg.Token.InitialSupply = c.String("initial-supply")
	}
	if c.IsSet("custody-address") {
		cfg.Token.CustodyAddress = c.String("custody-address")
	}
	if c.IsSet("token-address") {
		cfg.Token.Address = c.String("token-address")
	}
	if c.IsSet("chain-id") {
		cfg.Token.ChainID = config.ChainId(c.Uint64("chain-id"))
	}
	if c.IsSet("rpc-url") {
		cfg.Token.RpcUrl = c.String("rpc-url")
	}
	if c.IsSet("private-key") {
		cfg.Token.PrivateKey = c.String("private-key")
	}
	if c.IsSet("claim-rate-limit") {
		cfg.ClaimRateLimit = c.Float64("claim-rate-limit")
	}
	if c.IsSet("claim-burst") {
		cfg.ClaimBurst = c.Int("claim-burst")
	}
	if c.IsSet("merkle-artifact-path") {
		cfg.MerkleArtifactPath = c.String("merkle-artifact-path")
	}
	if c.IsSet("verbose") {
		cfg.Debug = c.Bool("verbose")
	}
	return cfg, nil
}
