package state

import (
	"math/big"

	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/platform/errs"
)

// ChainReader 是重组算法需要的只读链访问面，由调用方（orchestrator）基于Store组装，
// 实现内存里的头部缓存以避免重复打开存储事务。
type ChainReader interface {
	HeaderByDigest(digest hash.Digest) (*types.BlockHeader, error)
	HeightOf(digest hash.Digest) (uint64, error)
}

// FindCommonAncestor 在当前链和候选链之间沿父指针向后走，找到两者的最近公共祖先
// （spec 第4.2节的重组前提）。实现假设两条链最终都能回溯到同一条前缀（创世块），
// 若提前耗尽某一侧的历史记录则返回错误而不是静默猜测。
func FindCommonAncestor(reader ChainReader, currentTip, candidateTip hash.Digest) (hash.Digest, error) {
	currentHeight, err := reader.HeightOf(currentTip)
	if err != nil {
		return hash.Digest{}, errs.Wrap(errs.KindFatal, componentName, "current tip not indexed", err)
	}
	candidateHeight, err := reader.HeightOf(candidateTip)
	if err != nil {
		return hash.Digest{}, errs.Wrap(errs.KindFatal, componentName, "candidate tip not indexed", err)
	}

	a, b := currentTip, candidateTip
	for currentHeight > candidateHeight {
		header, err := reader.HeaderByDigest(a)
		if err != nil {
			return hash.Digest{}, errs.Wrap(errs.KindFatal, componentName, "failed walking current chain to common height", err)
		}
		a = header.ParentDigest
		currentHeight--
	}
	for candidateHeight > currentHeight {
		header, err := reader.HeaderByDigest(b)
		if err != nil {
			return hash.Digest{}, errs.Wrap(errs.KindFatal, componentName, "failed walking candidate chain to common height", err)
		}
		b = header.ParentDigest
		candidateHeight--
	}

	for a != b {
		headerA, err := reader.HeaderByDigest(a)
		if err != nil {
			return hash.Digest{}, errs.Wrap(errs.KindFatal, componentName, "failed walking current chain during ancestor search", err)
		}
		headerB, err := reader.HeaderByDigest(b)
		if err != nil {
			return hash.Digest{}, errs.Wrap(errs.KindFatal, componentName, "failed walking candidate chain during ancestor search", err)
		}
		a = headerA.ParentDigest
		b = headerB.ParentDigest
	}
	return a, nil
}

// ReorgPlan 描述切换到候选链所需执行的区块回滚与前滚序列。
type ReorgPlan struct {
	Ancestor      hash.Digest
	RollbackChain []hash.Digest // 从当前tip回退到祖先，顺序：tip在前，祖先在后（不含祖先本身）
	RollforwardChain []hash.Digest // 从祖先前滚到候选tip，顺序：祖先之后第一个区块在前
}

// BuildReorgPlan 构建重组计划：先沿当前链从tip回退到公共祖先，再沿候选链从祖先前滚到候选tip。
// 实际的状态切换由调用方通过ReplayChain把获胜链从创世块重放一遍完成，不使用
// 反向增量或状态检查点；这里只产出顺序正确的区块摘要序列，不直接接触存储。
func BuildReorgPlan(reader ChainReader, currentTip, candidateTip hash.Digest) (*ReorgPlan, error) {
	ancestor, err := FindCommonAncestor(reader, currentTip, candidateTip)
	if err != nil {
		return nil, err
	}

	rollback := make([]hash.Digest, 0)
	for cursor := currentTip; cursor != ancestor; {
		header, err := reader.HeaderByDigest(cursor)
		if err != nil {
			return nil, errs.Wrap(errs.KindFatal, componentName, "failed building rollback chain", err)
		}
		rollback = append(rollback, cursor)
		cursor = header.ParentDigest
	}

	rollforwardReversed := make([]hash.Digest, 0)
	for cursor := candidateTip; cursor != ancestor; {
		header, err := reader.HeaderByDigest(cursor)
		if err != nil {
			return nil, errs.Wrap(errs.KindFatal, componentName, "failed building rollforward chain", err)
		}
		rollforwardReversed = append(rollforwardReversed, cursor)
		cursor = header.ParentDigest
	}
	rollforward := make([]hash.Digest, len(rollforwardReversed))
	for i, d := range rollforwardReversed {
		rollforward[len(rollforwardReversed)-1-i] = d
	}

	return &ReorgPlan{
		Ancestor:         ancestor,
		RollbackChain:    rollback,
		RollforwardChain: rollforward,
	}, nil
}

// ChainWork 把一串区块摘要（通常是ReorgPlan.RollbackChain或RollforwardChain）
// 折算为它们共同贡献的累计工作量，供重组决策比较两条竞争链谁更重
// （spec 第4.5节"最高累计工作量"）。打平时的"最低区块头摘要"决胜不在这里
// 处理——ChainWork只负责求和，调用方（orchestrator.reorgTo）在拿到相等的
// 两个总量后自己比较tip摘要。
func ChainWork(reader ChainReader, digests []hash.Digest) (*big.Int, error) {
	total := big.NewInt(0)
	for _, d := range digests {
		header, err := reader.HeaderByDigest(d)
		if err != nil {
			return nil, errs.Wrap(errs.KindFatal, componentName, "failed loading header while summing chain work", err)
		}
		total.Add(total, pow.BlockWork(header.DifficultyTarget))
	}
	return total, nil
}

// ReplayChain 把可变状态（账户、任务）重置到空白，然后依次重新应用genesis
// 与chain中的每一个区块，重建账户余额、任务记录与高度索引（spec 第8节："状态
// 等于从创世块重放该链得到的状态"）。这是重组切换到一条更重的竞争链时实际
// 执行状态回滚的机制：不维护反向增量或逐高度快照，而是直接把获胜链从头重放
// 一遍——实现更简单，代价是重放耗时随链长增长，在早期/测试网络规模下可接受
// （见DESIGN.md关于检查点机制现状的说明）。chain必须是按高度升序、彼此首尾
// 相接的区块序列，且每一个区块都已经在被接受为候选链之前校验过一次。
func ReplayChain(store Store, genesis *types.Block, chain []*types.Block) error {
	if err := store.ResetAccountsAndTasks(); err != nil {
		return errs.Wrap(errs.KindFatal, componentName, "failed to reset account/task state before replay", err)
	}

	batch := store.Batch()
	if err := creditCoinbase(store, batch, genesis.Coinbase()); err != nil {
		return err
	}
	genesisHeader := genesis.Header
	batch.PutHeaderAtHeight(0, genesisHeader)
	batch.SetTip(genesis.Digest(), 0)
	if err := batch.Commit(); err != nil {
		return errs.Wrap(errs.KindFatal, componentName, "failed to commit genesis while replaying", err)
	}

	parent := genesisHeader
	for _, block := range chain {
		if err := ApplyBlock(store, parent.Height, parent, block); err != nil {
			return errs.Wrap(errs.KindFatal, componentName, "replay failed to re-apply a block that was previously part of a valid chain", err)
		}
		parent = block.Header
	}
	return nil
}

// MempoolRescuer 在重组后把被回滚区块中的非coinbase交易重新提交回交易池，
// 除非它们也出现在了新链的前滚区块里（避免对已经重新确认的交易重复广播）。
type MempoolRescuer interface {
	Resubmit(tx *types.Transaction)
}

// RescueMempool 实现spec要求的mempool救援：回滚链上的交易若未被前滚链重新确认，
// 则重新投递回交易池，让它们有机会被后续区块重新打包。
func RescueMempool(rescuer MempoolRescuer, rolledBack []*types.Block, rolledForward []*types.Block) {
	confirmed := make(map[hash.Digest]bool)
	for _, b := range rolledForward {
		for _, tx := range b.Transactions {
			confirmed[tx.Digest()] = true
		}
	}
	for _, b := range rolledBack {
		for _, tx := range b.Transactions[1:] { // 跳过coinbase，coinbase不应被重新提交
			if !confirmed[tx.Digest()] {
				rescuer.Resubmit(tx)
			}
		}
	}
}
