package state

import (
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/crypto/pow"
)

// GenesisConfig固定了创世块的内容：spec要求创世块是"一个协议常量"——固定时间戳、
// 只含一笔分发初始分配的coinbase、摘要被所有节点钉死，任何字段不同都会产生
// 不同的创世摘要，从而被对端在握手阶段拒绝为不同的网络。
type GenesisConfig struct {
	Timestamp           uint64
	DifficultyTarget    pow.CompactDifficulty
	AllocationRecipient keys.Address
	AllocationAmount    uint64
}

// BuildGenesisBlock按配置构造创世块，不触碰任何存储——调用方决定何时落盘。
func BuildGenesisBlock(cfg GenesisConfig) *types.Block {
	coinbase := &types.Transaction{
		Sender:    CoinbaseSender,
		Recipient: cfg.AllocationRecipient,
		Amount:    cfg.AllocationAmount,
	}
	block := &types.Block{
		Header: &types.BlockHeader{
			Timestamp:        cfg.Timestamp,
			DifficultyTarget: cfg.DifficultyTarget,
		},
		Transactions: []*types.Transaction{coinbase},
	}
	block.Header.MerkleRoot = block.ComputeMerkleRoot()
	block.Header.TaskBindingDigest = block.ComputeTaskBindingDigest()
	return block
}

// SeedGenesis把创世块写入一个空的Store。创世块没有父区块，不走ApplyBlock的
// 父子校验路径，结算初始分配时也不走applyCoinbase的铸造上限校验——创世分配
// 是协议钉死的常量，不是按Subsidy(height)铸造的区块奖励。如果Store已经有tip，
// 说明节点此前已经初始化过，直接跳过而不是报错，使重复调用是安全的。
func SeedGenesis(store Store, block *types.Block) error {
	tipDigest, _, err := store.GetTip()
	if err != nil {
		return err
	}
	if !tipDigest.IsZero() {
		return nil
	}

	batch := store.Batch()
	if err := creditCoinbase(store, batch, block.Coinbase()); err != nil {
		return err
	}
	block.Header.Height = 0
	batch.PutBlock(block)
	batch.PutHeaderAtHeight(0, block.Header)
	batch.SetTip(block.Digest(), 0)
	return batch.Commit()
}
