package app

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.uber.org/fx"

	"github.com/ai3chain/node/internal/core/chain/state"
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/core/mempool"
	"github.com/ai3chain/node/internal/core/orchestrator"
	"github.com/ai3chain/node/internal/core/storage/badgerstore"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/clock"
	"github.com/ai3chain/node/internal/platform/config"
	"github.com/ai3chain/node/internal/platform/log"
	"github.com/ai3chain/node/internal/platform/metrics"
)

// Params是cmd/node在构建fx.App时注入的唯一外部输入。
type Params struct {
	ConfigPath string
}

func provideOptions(params Params) (*config.Options, error) {
	provider, err := config.NewProvider()
	if err != nil {
		return nil, err
	}
	return provider.Load(params.ConfigPath)
}

func provideLogger(opts *config.Options) (log.Logger, error) {
	return log.New(log.Options{
		Level:      opts.Log.Level,
		FilePath:   opts.Log.FilePath,
		MaxSizeMB:  opts.Log.MaxSizeMB,
		MaxBackups: opts.Log.MaxBackups,
		MaxAgeDays: opts.Log.MaxAgeDays,
		Console:    opts.Log.Console,
	})
}

func provideMetrics() *metrics.Registry {
	return metrics.New()
}

func provideStore(lc fx.Lifecycle, opts *config.Options, logger log.Logger) (*badgerstore.Store, error) {
	store, err := badgerstore.Open(badgerstore.Options{
		Path:       opts.Storage.Path,
		SyncWrites: opts.Storage.SyncWrites,
		Logger:     logger.With("component", "storage"),
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	return store, nil
}

// seedGenesis在存储层打开之后、编排器启动之前运行，把协议常量定义的创世块
// 写入一个尚未初始化的Store——重复启动时SeedGenesis自己会因tip非零而跳过。
func seedGenesis(store *badgerstore.Store, opts *config.Options, logger log.Logger) error {
	var recipient keys.Address
	if opts.Consensus.GenesisAllocationRecipientHex != "" {
		raw, err := hex.DecodeString(opts.Consensus.GenesisAllocationRecipientHex)
		if err != nil {
			return fmt.Errorf("app: decode genesis allocation recipient: %w", err)
		}
		recipient, err = keys.AddressFromBytes(raw)
		if err != nil {
			return fmt.Errorf("app: genesis allocation recipient: %w", err)
		}
	}

	block := state.BuildGenesisBlock(state.GenesisConfig{
		Timestamp:           opts.Consensus.GenesisTimestamp,
		DifficultyTarget:    pow.CompactDifficulty(opts.Consensus.GenesisDifficulty),
		AllocationRecipient: recipient,
		AllocationAmount:    opts.Consensus.GenesisAllocationAmount,
	})
	if err := state.SeedGenesis(store, block); err != nil {
		return fmt.Errorf("app: seed genesis: %w", err)
	}
	logger.Infof("创世块摘要 %s", block.Digest())
	return nil
}

// provideClock构造一个NTP校准的参考时钟并在后台按固定周期刷新偏移量，
// OnStop取消刷新循环——时钟本身不持有任何需要显式关闭的资源。
func provideClock(lc fx.Lifecycle, opts *config.Options, logger log.Logger) *clock.Source {
	source := clock.New(opts.Node.NTPServer, logger.With("component", "clock"))
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go source.Run(ctx, clock.DefaultSyncInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return source
}

func provideMempool(opts *config.Options, logger log.Logger) (*mempool.Pool, error) {
	return mempool.New(mempool.Options{
		ByteLimit: opts.Mining.MempoolByteLimit,
		Logger:    logger.With("component", "mempool"),
	})
}

func provideClaimQueue() *tensor.ClaimQueue {
	return tensor.NewClaimQueue()
}

func provideChainReader(store *badgerstore.Store) (*orchestrator.StoreChainReader, error) {
	return orchestrator.NewStoreChainReader(store)
}

// provideMinerAdapter只在挖矿启用时返回非nil值——orchestrator.Config.Miner为nil
// 等价于纯验证者模式：provideMinerService把nil原样转成接口层面的nil，
// Manager.Start据此决定是否启动挖矿循环。
func provideMinerAdapter(opts *config.Options, store *badgerstore.Store, pool *mempool.Pool, claims *tensor.ClaimQueue, logger log.Logger) (*orchestrator.MinerAdapter, error) {
	if !opts.Mining.Enabled {
		return nil, nil
	}
	addrBytes, err := hex.DecodeString(opts.Mining.MinerAddressHex)
	if err != nil {
		return nil, fmt.Errorf("app: decode miner address: %w", err)
	}
	minerAddr, err := keys.AddressFromBytes(addrBytes)
	if err != nil {
		return nil, fmt.Errorf("app: miner address: %w", err)
	}
	return &orchestrator.MinerAdapter{
		Logger:          logger.With("component", "miner"),
		Mempool:         pool,
		ClaimQueue:      claims,
		MinerAddr:       minerAddr,
		DifficultyFloor: state.DifficultyFloor,
		Target: func(parent *types.BlockHeader) (pow.CompactDifficulty, error) {
			return state.NextDifficultyTarget(store, parent, parent.Height+1)
		},
	}, nil
}

// provideMinerService把*orchestrator.MinerAdapter转换为orchestrator.MinerService接口。
// provideMinerAdapter在挖矿关闭时返回的是一个类型化的nil指针，若直接交给fx按
// 接口类型注入，会在Config.Miner里变成一个"非nil接口包住nil指针"的值，
// 使Manager.Start里的`m.minerSvc != nil`判断失效——必须显式转换才能让nil真正
// 传播为接口层面的nil。
func provideMinerService(adapter *orchestrator.MinerAdapter) orchestrator.MinerService {
	if adapter == nil {
		return nil
	}
	return adapter
}
