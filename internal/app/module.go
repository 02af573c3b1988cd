package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/ai3chain/node/internal/core/mempool"
	"github.com/ai3chain/node/internal/core/orchestrator"
	"github.com/ai3chain/node/internal/core/p2p"
	"github.com/ai3chain/node/internal/core/storage/badgerstore"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/clock"
	"github.com/ai3chain/node/internal/platform/config"
	"github.com/ai3chain/node/internal/platform/log"
)

func provideManager(
	lc fx.Lifecycle,
	opts *config.Options,
	store *badgerstore.Store,
	reader *orchestrator.StoreChainReader,
	pool *mempool.Pool,
	claims *tensor.ClaimQueue,
	miner orchestrator.MinerService,
	publisher *networkHandle,
	refClock *clock.Source,
	logger log.Logger,
) *orchestrator.Manager {
	manager := orchestrator.NewManager(orchestrator.Config{
		Logger:           logger.With("component", "orchestrator"),
		Store:            store,
		ChainReader:      reader,
		Mempool:          pool,
		ClaimQueue:       claims,
		Miner:            miner,
		Publisher:        publisher,
		Clock:            refClock.Now,
		MaxTimestampSkew: time.Duration(opts.Consensus.MaxTimestampSkewSeconds) * time.Second,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			manager.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			manager.Stop()
			return nil
		},
	})
	return manager
}

// Module把节点运行所需的全部组件装配进一个fx图：配置与日志打底，存储与
// 创世块随后就位，编排器与网络层互相持有一份networkHandle以打破构造期循环，
// 最后由一个Invoke写入创世块并回填networkHandle；编排器的事件循环由
// provideManager注册的OnStart钩子启动。
var Module = fx.Module("app",
	fx.Provide(
		provideOptions,
		provideLogger,
		provideMetrics,
		provideStore,
		provideClock,
		provideMempool,
		provideClaimQueue,
		provideChainReader,
		provideMinerAdapter,
		provideMinerService,
		newNetworkHandle,
		newFrameRouter,
		provideHost,
		provideGossipRouter,
		provideManager,
		provideMaintenance,
	),
	// seedGenesis必须在任何OnStart钩子运行之前完成，否则挖矿循环可能先于创世块
	// 落盘就去读取一个空的链尖——Invoke的函数体在fx.New()装配阶段同步执行，
	// 早于全部OnStart钩子，因此直接在这里调用而不是另外注册一个钩子。
	fx.Invoke(func(store *badgerstore.Store, opts *config.Options, logger log.Logger, handle *networkHandle, host *p2p.Host, gossip *p2p.GossipRouter, _ *maintenanceLoop) error {
		if err := seedGenesis(store, opts, logger); err != nil {
			return err
		}
		wireNetwork(handle, host, gossip)
		return nil
	}),
)
