package orchestrator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/core/mempool"
	"github.com/ai3chain/node/internal/core/miner"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/log"
)

// MinerAdapter把mempool.Pool与tensor.ClaimQueue接到internal/core/miner的模板组装
// 与nonce搜索上，实现MinerService——编排器只认识这个接口，具体怎么选交易、
// 怎么选声明由这里决定，便于在测试中换成固定模板的假实现。
type MinerAdapter struct {
	Logger          log.Logger
	Mempool         *mempool.Pool
	ClaimQueue      *tensor.ClaimQueue
	MinerAddr       keys.Address
	DifficultyFloor decimal.Decimal
	// Target按parent计算下一个区块必须满足的难度目标，通常是state.NextDifficultyTarget
	// 包住当前Store的闭包——模板组装与ApplyBlock校验必须用同一套重定向规则，
	// 否则矿工自己挖出的区块会在提交回编排器时被自己拒绝。
	Target func(parent *types.BlockHeader) (pow.CompactDifficulty, error)
}

// AssembleAndSearch组装一个基于parent的出块模板并搜索满足有效目标的nonce。
func (a *MinerAdapter) AssembleAndSearch(ctx context.Context, parent *types.BlockHeader) (*types.Block, miner.Stats, error) {
	target, err := a.Target(parent)
	if err != nil {
		return nil, miner.Stats{}, err
	}
	template := miner.AssembleTemplate(parent, parent.Height+1, target, a.MinerAddr, a.Mempool, a.ClaimQueue, uint64(time.Now().Unix()))
	return miner.Search(ctx, a.Logger, template, a.DifficultyFloor)
}
