package miner

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ai3chain/node/internal/core/chain/state"
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/log"
)

type fakeTxSource struct{ txs []*types.Transaction }

func (f *fakeTxSource) SelectForBlock(maxBytes, maxCount int) []*types.Transaction { return f.txs }

type fakeClaimSource struct{}

func (fakeClaimSource) ReadyClaims(limit int) ([]*tensor.Claim, []*tensor.Task) { return nil, nil }

func easyDifficulty() pow.CompactDifficulty {
	t := new(big.Int)
	t.SetString("7FFFFF0000000000000000000000000000000000000000000000000000000000", 16)
	return pow.FromTarget(t)
}

func TestAssembleTemplateIncludesCoinbaseFirst(t *testing.T) {
	parent := &types.BlockHeader{Timestamp: 1}
	var miner keys.Address
	miner[0] = 0x01

	tpl := AssembleTemplate(parent, parent.Height+1, easyDifficulty(), miner, &fakeTxSource{}, fakeClaimSource{}, 2)
	if len(tpl.Block.Transactions) != 1 {
		t.Fatalf("交易数 = %d, 期望 1 (仅coinbase)", len(tpl.Block.Transactions))
	}
	wantAmount := state.Subsidy(parent.Height + 1)
	if tpl.Block.Transactions[0].Recipient != miner || tpl.Block.Transactions[0].Amount != wantAmount {
		t.Errorf("coinbase未正确指向矿工地址/奖励金额")
	}
}

func TestSearchFindsValidNonce(t *testing.T) {
	parent := &types.BlockHeader{Timestamp: 1}
	var miner keys.Address
	miner[0] = 0x01

	tpl := AssembleTemplate(parent, parent.Height+1, easyDifficulty(), miner, &fakeTxSource{}, fakeClaimSource{}, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	block, stats, err := Search(ctx, log.Nop(), tpl, decimal.NewFromFloat(0.10))
	if err != nil {
		t.Fatalf("搜索失败: %v", err)
	}
	if stats.Attempts == 0 {
		t.Errorf("尝试次数应大于0")
	}
	effectiveTarget := pow.EffectiveTarget(block.Header.DifficultyTarget, decimal.Zero, decimal.NewFromFloat(0.10))
	if !pow.HashMeetsTarget(block.Header.Digest().Bytes(), effectiveTarget) {
		t.Errorf("找到的nonce未满足有效目标")
	}
}

func TestSearchRespectsCancellation(t *testing.T) {
	parent := &types.BlockHeader{Timestamp: 1}
	var miner keys.Address
	miner[0] = 0x01

	// 用一个几乎不可能满足的难度逼迫搜索持续运行直到取消。
	hardTarget := big.NewInt(1)
	tpl := AssembleTemplate(parent, parent.Height+1, pow.FromTarget(hardTarget), miner, &fakeTxSource{}, fakeClaimSource{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Search(ctx, log.Nop(), tpl, decimal.NewFromFloat(0.10))
	if err == nil {
		t.Errorf("已取消的上下文应导致搜索返回错误")
	}
}
