package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/config"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkleDistributor"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/metrics"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence/badger"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence/memory"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence/redis"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/protocol"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/rewardsDistributor"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/rootRegistry"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/server"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/settings"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token/erc20Token"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token/memoryToken"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/transactionSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

type application struct {
	store       persistence.IRewardsPersistence
	registry    *rootRegistry.RootRegistry
	distributor *rewardsDistributor.RewardsDistributor
	token       token.IToken
	custody     common.Address
	eventLog    *events.Log
	server      *server.Server
	closers     []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newPersistence(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IRewardsPersistence, error) {
	switch cfg.Type {
	case config.PersistenceTypeMemory:
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceTypeBadger:
		return badger.NewBadgerPersistence(cfg.DataPath, l)
	case config.PersistenceTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.Type)
	}
}

// newToken returns the token backend and the custody address claims are paid from
func newToken(ctx context.Context, cfg *config.TokenConfig, sink events.ISink, l *zap.Logger) (token.IToken, common.Address, func(), error) {
	switch cfg.Type {
	case config.TokenTypeMemory:
		custody := common.HexToAddress(cfg.CustodyAddress)
		tk := memoryToken.NewMemoryToken(cfg.Symbol, cfg.Decimals, sink)
		if cfg.InitialSupply != "" {
			supply, err := token.ParseUnits(cfg.InitialSupply, cfg.Decimals)
			if err != nil {
				return nil, common.Address{}, nil, fmt.Errorf("invalid initial supply: %w", err)
			}
			if err := tk.Mint(custody, supply); err != nil {
				return nil, common.Address{}, nil, err
			}
			l.Sugar().Infow("Minted initial supply", "custody", custody.Hex(), "amount", cfg.InitialSupply, "symbol", cfg.Symbol)
		}
		return tk, custody, func() {}, nil

	case config.TokenTypeERC20:
		client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
		if err != nil {
			return nil, common.Address{}, nil, fmt.Errorf("failed to connect to %s: %w", cfg.RpcUrl, err)
		}
		chainID, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, common.Address{}, nil, fmt.Errorf("failed to read chain id: %w", err)
		}
		if chainID.Uint64() != uint64(cfg.ChainID) {
			client.Close()
			return nil, common.Address{}, nil, fmt.Errorf("rpc chain id %s does not match configured %d", chainID, cfg.ChainID)
		}

		signer, err := transactionSigner.NewTransactionSigner(&transactionSigner.SignerConfig{PrivateKey: cfg.PrivateKey}, client, l)
		if err != nil {
			client.Close()
			return nil, common.Address{}, nil, fmt.Errorf("failed to create transaction signer: %w", err)
		}
		tk, err := erc20Token.NewERC20Token(ctx, common.HexToAddress(cfg.Address), client, signer, sink, l)
		if err != nil {
			client.Close()
			return nil, common.Address{}, nil, err
		}
		return tk, signer.GetFromAddress(), client.Close, nil

	default:
		return nil, common.Address{}, nil, fmt.Errorf("unsupported token type %q", cfg.Type)
	}
}

func loadArtifact(path string) (*merkle.TreeArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree artifact %s: %w", path, err)
	}
	return merkle.UnmarshalTreeArtifact(data)
}

func buildApp(ctx context.Context, cfg *config.RewardsServerConfig, l *zap.Logger) (*application, error) {
	a := &application{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	store, err := newPersistence(&cfg.Persistence, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			l.Sugar().Warnw("Failed to close persistence", "error", err)
		}
	})

	m := metrics.NewMetrics()
	a.eventLog = events.NewLog()
	sink := m.Sink(events.NewLoggingSink(l, a.eventLog))

	owner, err := protocol.NewProtocol(store, common.HexToAddress(cfg.OwnerAddress), sink, l)
	if err != nil {
		return nil, err
	}
	protocolSettings, err := settings.NewProtocolSettings(store, owner, settings.Defaults{
		ActivationDelay: cfg.ActivationDelay,
		Treasury:        common.HexToAddress(cfg.TreasuryAddress),
	}, sink, l)
	if err != nil {
		return nil, err
	}

	tk, custody, closeToken, err := newToken(ctx, &cfg.Token, sink, l)
	if err != nil {
		return nil, err
	}
	a.token = tk
	a.custody = custody
	a.closers = append(a.closers, closeToken)

	a.registry = rootRegistry.NewRootRegistry(&rootRegistry.Config{
		Store:  store,
		Owners: owner,
		Delays: protocolSettings,
		Clock:  clock.RealClock{},
		Sink:   sink,
		Logger: l,
	})
	a.distributor = rewardsDistributor.NewRewardsDistributor(&rewardsDistributor.Config{
		Store:    store,
		Registry: a.registry,
		Owners:   owner,
		Token:    tk,
		Custody:  custody,
		Sink:     sink,
		Logger:   l,
	})

	serverCfg := &server.Config{
		Port:           cfg.Port,
		Registry:       a.registry,
		Distributor:    a.distributor,
		Store:          store,
		EventLog:       a.eventLog,
		Metrics:        m,
		ClaimRateLimit: cfg.ClaimRateLimit,
		ClaimBurst:     cfg.ClaimBurst,
		Logger:         l,
	}
	if cfg.MerkleArtifactPath != "" {
		artifact, err := loadArtifact(cfg.MerkleArtifactPath)
		if err != nil {
			return nil, err
		}
		serverCfg.Artifact = artifact
		serverCfg.OneShot = merkleDistributor.NewMerkleDistributor(artifact.Root, custody, store, tk, sink, l)
		l.Sugar().Infow("Loaded one-shot distribution",
			"root", artifact.Root.Hex(),
			"claims", len(artifact.Claims),
			"total_amount", token.FormatUnits(artifact.TotalAmount, tk.Decimals()),
		)
	}
	a.server = server.NewServer(serverCfg)

	ok = true
	return a, nil
}
