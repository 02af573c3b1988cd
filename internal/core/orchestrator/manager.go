// Package orchestrator 实现链状态的单写者编排：区块、交易、任务声明、挖矿结果
// 的入站事件全部汇入一个串行处理循环，链状态的写路径因此天然避免竞态，
// 不需要在chain/state之外另加锁。具体事件处理委托给processor.go，本文件只负责
// 依赖装配与事件循环的路由（薄管理层，委托处理给专门组件——与fork.Manager
// 同一设计）。
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ai3chain/node/internal/core/chain/state"
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/mempool"
	"github.com/ai3chain/node/internal/core/miner"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/log"
)

// InboxDepth是单写者事件队列的容量，超出容量的新事件会阻塞发送方直到
// 有空位——编排器故意不对链状态写路径做丢弃式降级，宁可让上游限速。
const InboxDepth = 256

// event是inbox中流转的统一事件载体，kind决定调用processor的哪个处理函数。
type event struct {
	kind    eventKind
	block   *types.Block
	tx      *types.Transaction
	claim   *tensor.Claim
	task    *tensor.Task
	resultC chan error
}

type eventKind int

const (
	eventBlockReceived eventKind = iota
	eventTxReceived
	eventClaimReceived
	eventTaskOpened
	eventMineSolved
)

// ChainReader聚合了processor在处理重组时需要的只读链访问能力。
type ChainReader = state.ChainReader

// BlockPublisher是编排器解决出一个新区块后的唯一出口，通常由p2p层实现，
// 向所有已连接对端广播新区块。
type BlockPublisher interface {
	PublishBlock(block *types.Block)
}

// Manager是单写者编排器：持有inbox与对processor的委托，外部组件只通过
// Submit*系列方法投递事件，绝不直接触碰chain/state或mempool的写路径。
type Manager struct {
	logger log.Logger
	inbox  chan event

	store    state.Store
	minerSvc MinerService
	processor *processor

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Config聚合构建编排器所需的全部协作组件。Miner为nil时编排器只处理网络事件，
// 不主动挖矿——节点以纯验证者模式运行时就是这个配置。
type Config struct {
	Logger      log.Logger
	Store       state.Store
	ChainReader ChainReader
	Mempool     *mempool.Pool
	ClaimQueue  *tensor.ClaimQueue
	Miner       MinerService
	Publisher   BlockPublisher
	// Clock返回NTP校准的参考时间，为nil时跳过区块头的未来时间戳校验——
	// 通常由internal/platform/clock.Source.Now提供，测试里留空即可。
	Clock func() time.Time
	// MaxTimestampSkew是区块头时间戳允许超前Clock()的最大量。
	MaxTimestampSkew time.Duration
}

// MinerService抽象挖矿模板组装与nonce搜索，便于在测试中替换为假实现；
// 具体实现见mining.go的MinerAdapter，内部委托给internal/core/miner的组装与搜索函数。
type MinerService interface {
	AssembleAndSearch(ctx context.Context, parent *types.BlockHeader) (*types.Block, miner.Stats, error)
}

// NewManager创建一个尚未启动事件循环的编排器。
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Manager{
		logger: logger,
		inbox:  make(chan event, InboxDepth),
		minerSvc: cfg.Miner,
		store:  cfg.Store,
		processor: &processor{
			logger:           logger,
			store:            cfg.Store,
			chainReader:      cfg.ChainReader,
			mempool:          cfg.Mempool,
			claimQueue:       cfg.ClaimQueue,
			publisher:        cfg.Publisher,
			clock:            cfg.Clock,
			maxTimestampSkew: cfg.MaxTimestampSkew,
		},
	}
}

// Start在后台goroutine里启动单写者事件循环，若配置了挖矿服务则同时启动挖矿循环，
// 启动后立即返回；循环在ctx被取消时退出。
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(ctx)

	if m.minerSvc != nil {
		m.wg.Add(1)
		go m.mineLoop(ctx)
	}
}

// mineLoop持续在当前链尖之上组装模板并搜索有效nonce，找到后通过SubmitMinedBlock
// 投递回单写者事件循环——挖矿搜索本身在独立goroutine里跑，但落盘仍然串行化。
func (m *Manager) mineLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		parent, err := m.currentTipHeader()
		if err != nil {
			m.logger.Warnf("挖矿循环读取链尖失败: %v", err)
			return
		}
		block, _, err := m.minerSvc.AssembleAndSearch(ctx, parent)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warnf("挖矿搜索失败: %v", err)
			continue
		}
		if err := m.SubmitMinedBlock(block); err != nil {
			m.logger.Warnf("提交挖出的区块失败: %v", err)
		}
	}
}

func (m *Manager) currentTipHeader() (*types.BlockHeader, error) {
	tipDigest, tipHeight, err := m.store.GetTip()
	if err != nil {
		return nil, err
	}
	if tipHeight == 0 && tipDigest.IsZero() {
		return &types.BlockHeader{}, nil
	}
	return m.store.GetHeaderByHeight(tipHeight)
}

// Stop取消事件循环并等待其退出。
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.inbox:
			m.dispatch(ev)
		}
	}
}

func (m *Manager) dispatch(ev event) {
	var err error
	switch ev.kind {
	case eventBlockReceived:
		err = m.processor.handleBlock(ev.block)
	case eventTxReceived:
		err = m.processor.handleTx(ev.tx)
	case eventClaimReceived:
		err = m.processor.handleClaim(ev.claim)
	case eventTaskOpened:
		err = m.processor.handleTaskOpened(ev.task)
	case eventMineSolved:
		err = m.processor.handleMinedBlock(ev.block)
	}
	if err != nil {
		m.logger.Warnf("编排器处理事件失败 kind=%d: %v", ev.kind, err)
	}
	if ev.resultC != nil {
		ev.resultC <- err
	}
}

// SubmitBlock投递一个从网络接收到的区块，阻塞直到处理完成并返回结果。
func (m *Manager) SubmitBlock(block *types.Block) error {
	return m.submit(event{kind: eventBlockReceived, block: block})
}

// SubmitTransaction投递一笔从网络接收到的交易。
func (m *Manager) SubmitTransaction(tx *types.Transaction) error {
	return m.submit(event{kind: eventTxReceived, tx: tx})
}

// SubmitClaim投递一个从网络接收到的任务声明。
func (m *Manager) SubmitClaim(claim *tensor.Claim) error {
	return m.submit(event{kind: eventClaimReceived, claim: claim})
}

// SubmitTaskOpened投递一个新开放的任务，使其进入可被声明的候选集合。
func (m *Manager) SubmitTaskOpened(task *tensor.Task) error {
	return m.submit(event{kind: eventTaskOpened, task: task})
}

// SubmitMinedBlock投递挖矿搜索找到的新区块，走和网络接收区块相同的应用与广播路径。
func (m *Manager) SubmitMinedBlock(block *types.Block) error {
	return m.submit(event{kind: eventMineSolved, block: block})
}

func (m *Manager) submit(ev event) error {
	ev.resultC = make(chan error, 1)
	m.inbox <- ev
	return <-ev.resultC
}
