package orchestrator

import (
	"time"

	"github.com/ai3chain/node/internal/core/chain/state"
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/core/mempool"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/errs"
	"github.com/ai3chain/node/internal/platform/log"
)

const componentName = "orchestrator"

// processor持有编排器实际的事件处理逻辑，manager只负责事件循环与路由
// （薄管理层委托处理给专门组件，与blockchain/fork.Manager/Processor同一分工）。
type processor struct {
	logger           log.Logger
	store            state.Store
	chainReader      ChainReader
	mempool          *mempool.Pool
	claimQueue       *tensor.ClaimQueue
	publisher        BlockPublisher
	clock            func() time.Time
	maxTimestampSkew time.Duration
}

// handleBlock应用一个从网络收到的完整区块。常规情况下新区块直接扩展当前链尖；
// 若其父指针不是当前链尖，则说明出现了分叉，BuildReorgPlan据此定位公共祖先。
// 若回滚链非空（候选分支要求撤销若干已落盘的区块），只有候选链的累计工作量
// 超过当前活跃链、或两者打平而候选区块摘要更低时才触发真正的重组（见reorgTo），
// 否则当作一个过时分支直接拒绝（spec 第4.5节的分叉选择规则）。
func (p *processor) handleBlock(block *types.Block) error {
	if p.clock != nil {
		if err := state.VerifyTimestampSkew(block.Header, p.clock(), p.maxTimestampSkew); err != nil {
			return err
		}
	}

	tipDigest, tipHeight, err := p.store.GetTip()
	if err != nil {
		return err
	}

	if block.Header.ParentDigest == tipDigest {
		parent, err := p.parentHeader(tipDigest, tipHeight)
		if err != nil {
			return err
		}
		if err := state.ApplyBlock(p.store, tipHeight, parent, block); err != nil {
			return err
		}
		p.observeHeader(block.Header)
		p.finalizeClaims(block)
		p.maybeCheckpoint(block)
		return nil
	}

	plan, err := state.BuildReorgPlan(p.chainReader, tipDigest, block.Header.ParentDigest)
	if err != nil {
		return errs.Wrap(errs.KindInvalid, componentName, "无法为分叉区块定位公共祖先", err)
	}
	if len(plan.RollbackChain) == 0 {
		// 这个分支理论上不可达，但不删掉它——证明见下方，保留一个兜底断言
		// 而不是静默信任这个从未被触发过的前提。RollbackChain为空要求
		// FindCommonAncestor(tipDigest, block.Header.ParentDigest)恰好等于
		// tipDigest本身。block.Header.ParentDigest必须已经能在存储里解析
		// 出来（BuildReorgPlan内部调用HeaderByDigest成功），而落盘的区块头
		// 只可能覆盖0..tipHeight（PutBlock/PutHeaderAtHeight永远和SetTip
		// 在ApplyBlock的同一个批次里一起提交，见apply.go，不存在"tip之前
		// 已经落盘但tip还没追上"的区块）。于是block.Header.ParentDigest的
		// 高度必然不超过tipHeight；结合上面已经排除了它等于tipDigest本身
		// 的情况，FindCommonAncestor的回溯在到达两者高度对齐后只要摘要不同
		// 就必然至少再走一步，祖先只会比tipDigest更浅，绝不会等于tipDigest
		// ——也就是说RollbackChain不可能为空。如果这个前提被打破（例如未来
		// p2p同步层开始把tip之前的区块体提前落盘），下面的守卫会用一个
		// Fatal错误喊出来，而不是悄悄把tip往回移。
		parent, err := p.parentHeader(block.Header.ParentDigest, 0)
		if err != nil {
			return err
		}
		if parent.Height < tipHeight {
			return errs.New(errs.KindFatal, componentName, "空回滚链分支撤销推导被打破：候选父区块高度低于当前tip")
		}
		if err := state.ApplyBlock(p.store, parent.Height, parent, block); err != nil {
			return err
		}
		p.observeHeader(block.Header)
		p.finalizeClaims(block)
		p.maybeCheckpoint(block)
		return nil
	}

	return p.reorgTo(block, plan)
}

// reorgTo执行需要撤销已落盘状态的重组：先比较候选分支与当前活跃链各自的
// 累计工作量，工作量更低时直接拒绝；工作量打平时按候选链tip摘要是否
// 低于当前tip摘要打破平局（spec 第4.5节），候选都没赢则拒绝。胜出后把
// 获胜链（与旧链共享的前缀 + 候选链的前滚区块 + 本区块）从创世块完整
// 重放一遍（state.ReplayChain，spec 第8节"状态等于从创世块重放该链得到
// 的状态"），并把被回滚区块里未在新链重新确认的交易送回交易池（spec 第8
// 节场景2）。
func (p *processor) reorgTo(block *types.Block, plan *state.ReorgPlan) error {
	oldWork, err := state.ChainWork(p.chainReader, plan.RollbackChain)
	if err != nil {
		return err
	}
	// 本区块尚未落盘，chainReader查不到它的区块头，它的工作量按其头部目标直接计入。
	newWork, err := state.ChainWork(p.chainReader, plan.RollforwardChain)
	if err != nil {
		return err
	}
	newWork.Add(newWork, pow.BlockWork(block.Header.DifficultyTarget))
	// 累计工作量打平（同一高度的两个竞争区块共享同一个难度目标，贡献的
	// BlockWork天然相等）时，按spec 第4.5节"最低区块头摘要"打破平局，
	// 不依赖任何一方的到达顺序或时间戳——否则两个按相反顺序收到同一对
	// 竞争区块的诚实节点会永久性地分裂在不同的活跃链上。
	cmp := newWork.Cmp(oldWork)
	tipDigest, _, err := p.store.GetTip()
	if err != nil {
		return err
	}
	if cmp < 0 || (cmp == 0 && !hash.Less(block.Digest(), tipDigest)) {
		return errs.New(errs.KindStale, componentName, "候选分叉的累计工作量没有超过当前活跃链，拒绝重组")
	}

	genesisHeader, err := p.store.GetHeaderByHeight(0)
	if err != nil {
		return errs.Wrap(errs.KindFatal, componentName, "无法读取创世区块头", err)
	}
	genesisBlock, err := p.store.GetBlock(genesisHeader.Digest())
	if err != nil {
		return errs.Wrap(errs.KindFatal, componentName, "无法读取创世区块", err)
	}
	ancestorHeight, err := p.chainReader.HeightOf(plan.Ancestor)
	if err != nil {
		return errs.Wrap(errs.KindFatal, componentName, "无法定位公共祖先高度", err)
	}

	rolledBack := make([]*types.Block, 0, len(plan.RollbackChain))
	for _, digest := range plan.RollbackChain {
		b, err := p.store.GetBlock(digest)
		if err != nil {
			return errs.Wrap(errs.KindFatal, componentName, "无法读取待回滚区块", err)
		}
		rolledBack = append(rolledBack, b)
	}

	chain := make([]*types.Block, 0, ancestorHeight+uint64(len(plan.RollforwardChain))+1)
	for h := uint64(1); h <= ancestorHeight; h++ {
		header, err := p.store.GetHeaderByHeight(h)
		if err != nil {
			return errs.Wrap(errs.KindFatal, componentName, "无法读取公共前缀区块头", err)
		}
		b, err := p.store.GetBlock(header.Digest())
		if err != nil {
			return errs.Wrap(errs.KindFatal, componentName, "无法读取公共前缀区块", err)
		}
		chain = append(chain, b)
	}
	rolledForward := make([]*types.Block, 0, len(plan.RollforwardChain)+1)
	for _, digest := range plan.RollforwardChain {
		b, err := p.store.GetBlock(digest)
		if err != nil {
			return errs.Wrap(errs.KindFatal, componentName, "无法读取待前滚区块", err)
		}
		chain = append(chain, b)
		rolledForward = append(rolledForward, b)
	}
	chain = append(chain, block)
	rolledForward = append(rolledForward, block)

	if err := state.ReplayChain(p.store, genesisBlock, chain); err != nil {
		return err
	}

	for _, b := range chain {
		p.observeHeader(b.Header)
		p.finalizeClaims(b)
	}
	p.maybeCheckpoint(block)

	if p.mempool != nil {
		state.RescueMempool(p.mempool, rolledBack, rolledForward)
	}
	return nil
}

// maybeCheckpoint在底层存储支持检查点时记录一份，state.Store接口本身不包含
// 这个方法——它是badgerstore.Store的附加能力，测试用的假Store通常不实现，
// 按设计静默跳过。
func (p *processor) maybeCheckpoint(block *types.Block) {
	if ckpt, ok := p.store.(interface {
		MaybeCheckpoint(height uint64, tip hash.Digest) error
	}); ok {
		if err := ckpt.MaybeCheckpoint(block.Header.Height, block.Digest()); err != nil {
			p.logger.Warnf("记录检查点失败 height=%d: %v", block.Header.Height, err)
		}
	}
}

// observeHeader把刚落盘的区块头喂给chainReader的内存缓存（若其支持），使后续
// 重组路径的HeightOf/HeaderByDigest查询不必回存储层再解码一次区块。测试用的
// 假ChainReader通常不实现这个可选接口，按设计静默跳过。
func (p *processor) observeHeader(header *types.BlockHeader) {
	if obs, ok := p.chainReader.(interface{ Observe(*types.BlockHeader) }); ok {
		obs.Observe(header)
	}
}

// parentHeader按摘要取回父区块头；tipHeight是快速路径下已知的高度，避免重复解码整个区块。
func (p *processor) parentHeader(digest hash.Digest, tipHeight uint64) (*types.BlockHeader, error) {
	if digest.IsZero() && tipHeight == 0 {
		return &types.BlockHeader{}, nil // 创世块之前没有父区块头，以零值作为起点
	}
	header, err := p.store.GetHeaderByHeight(tipHeight)
	if err == nil && header.Digest() == digest {
		return header, nil
	}
	block, err := p.store.GetBlock(digest)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalid, componentName, "找不到父区块", err)
	}
	return block.Header, nil
}

// finalizeClaims把区块里已经终局化的声明从暂存队列移除，避免它们继续出现在后续出块模板中。
func (p *processor) finalizeClaims(block *types.Block) {
	for _, claim := range block.Claims {
		p.claimQueue.Remove(claim.TaskID)
	}
}

// handleTx把一笔从网络收到的交易提交进交易池，交由按费率排序的打包候选集合。
func (p *processor) handleTx(tx *types.Transaction) error {
	return p.mempool.Add(tx)
}

// handleClaim验证一个从网络收到的任务声明并放入暂存队列，等待下一次出块模板组装时打包。
func (p *processor) handleClaim(claim *tensor.Claim) error {
	task, err := p.store.GetTask(claim.TaskID)
	if err != nil {
		return errs.Wrap(errs.KindInvalid, componentName, "声明引用了未知任务", err)
	}
	if task.State != tensor.TaskOpen {
		return errs.New(errs.KindInvalid, componentName, "任务已不处于可声明状态")
	}
	if err := tensor.VerifyClaim(task, claim); err != nil {
		return err
	}
	p.claimQueue.Add(claim, task)
	return nil
}

// handleTaskOpened处理网络上收到的"任务已开放"通知。任务的权威创建路径是
// PayloadTaskSubmit交易在ApplyBlock里的链上托管结算（spec 第4.3节"提交即
// 托管"），这里不再直接落盘一个对端自行宣称的任务记录——否则等于允许绕过
// 托管校验凭空创建一个没有真实扣款的任务。这个处理函数只核实本地链状态里
// 确实已经存在同一TaskID且仍处于open状态，不写入也不缓存任何内容；
// 引用不存在或状态不符的任务视为无效通知并拒绝。
func (p *processor) handleTaskOpened(task *tensor.Task) error {
	existing, err := p.store.GetTask(task.TaskID)
	if err != nil {
		return errs.Wrap(errs.KindInvalid, componentName, "任务开放通知引用了链上不存在的任务", err)
	}
	if existing.State != tensor.TaskOpen {
		return errs.New(errs.KindStale, componentName, "任务开放通知引用的任务已不处于open状态")
	}
	return nil
}

// handleMinedBlock应用本节点自己挖出的区块，走与网络收到的区块完全相同的校验与应用路径，
// 成功后才对外广播——编排器是已解决区块的唯一发布者（spec要求的单一发布出口）。
func (p *processor) handleMinedBlock(block *types.Block) error {
	if err := p.handleBlock(block); err != nil {
		return err
	}
	if p.publisher != nil {
		p.publisher.PublishBlock(block)
	}
	return nil
}
