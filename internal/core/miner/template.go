// Package miner 实现区块模板组装与可取消的nonce搜索（spec 第4.4节）。
package miner

import (
	"github.com/shopspring/decimal"

	"github.com/ai3chain/node/internal/core/chain/state"
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/core/tensor"
)

// MaxTemplateBytes 限制单个区块模板的总字节预算，留给交易和声明共同使用。
const MaxTemplateBytes = 2 << 20 // 2MiB

// TxSource 抽象交易池对出块模板的贡献：按费率挑选候选交易。
type TxSource interface {
	SelectForBlock(maxBytes, maxCount int) []*types.Transaction
}

// ClaimSource 抽象已验证、可随本区块一并提交的任务声明来源，连同它们所对应的任务
// 记录一起返回（顺序与声明一一对应），供组装阶段折算挖矿谓词的有效目标。
type ClaimSource interface {
	ReadyClaims(limit int) ([]*tensor.Claim, []*tensor.Task)
}

// Template 是一个尚未完成挖矿的候选区块：头部除Nonce/Timestamp外已经填好，
// 调用方只需反复调整这两个字段并重新计算摘要。ReductionSum是模板内声明
// 共同贡献的难度折减，在组装阶段一次性算好，避免搜索阶段重复查任务表。
type Template struct {
	Block        *types.Block
	ReductionSum decimal.Decimal
}

// AssembleTemplate 组装一个出块模板：coinbase置于交易列表首位，
// 随后是按费率挑选的交易（交易池负责保证同一发送方内部nonce升序），
// 再附上最多MaxClaimsPerBlock个已验证声明，头部的merkle根与任务绑定摘要
// 据此计算完毕，只剩Timestamp与Nonce留给搜索阶段填充。height是该模板
// 将占据的高度，coinbase金额据此取state.Subsidy(height)加上被选中交易的
// 手续费总和——与ApplyBlock里applyCoinbase校验的上限算法完全一致，保证
// 矿工不会挖出一个自己随后又会拒绝的区块。任务奖励不计入coinbase：声明
// 对应的奖励已经在任务创建时托管，ApplyBlock终局化时直接从托管转给声明人，
// 与coinbase铸造无关（见apply.go的说明）。
func AssembleTemplate(parent *types.BlockHeader, height uint64, difficulty pow.CompactDifficulty, minerAddr keys.Address, txSource TxSource, claimSource ClaimSource, nowUnix uint64) *Template {
	txs := txSource.SelectForBlock(MaxTemplateBytes, types.MaxTransactionsPerBlock-1)
	claims, tasks := claimSource.ReadyClaims(types.MaxClaimsPerBlock)

	var totalFees uint64
	for _, tx := range txs {
		totalFees += tx.Fee
	}

	coinbase := &types.Transaction{
		Recipient: minerAddr,
		Amount:    state.Subsidy(height) + totalFees,
	}

	allTxs := make([]*types.Transaction, 0, len(txs)+1)
	allTxs = append(allTxs, coinbase)
	allTxs = append(allTxs, txs...)

	block := &types.Block{
		Header:       &types.BlockHeader{},
		Transactions: allTxs,
		Claims:       claims,
	}
	block.Header.ParentDigest = parent.Digest()
	block.Header.MerkleRoot = block.ComputeMerkleRoot()
	block.Header.TaskBindingDigest = block.ComputeTaskBindingDigest()
	block.Header.DifficultyTarget = difficulty
	block.Header.Timestamp = nowUnix
	if block.Header.Timestamp <= parent.Timestamp {
		block.Header.Timestamp = parent.Timestamp + 1
	}

	return &Template{Block: block, ReductionSum: tensor.ClaimedReductionSum(tasks)}
}
