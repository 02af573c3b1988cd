// Package state 实现区块应用状态机：区块头校验、交易列表合法性检查、
// 逐笔交易的签名/nonce/余额校验、coinbase结算、任务状态终局化，
// 以及重组（分叉切换）算法（spec 第4.2节）。
package state

import (
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/tensor"
)

// Account 是账户模型下的余额与nonce记录（spec 第3节）。
type Account struct {
	Balance uint64
	Nonce   uint64
}

// Store 是状态机所依赖的底层存储接口，由 internal/core/storage/badgerstore 实现。
// 状态机本身不关心落盘细节，只通过这个接口读写账户、区块、任务与链索引，
// 便于在不依赖Badger的情况下对状态转换逻辑做单元测试。
type Store interface {
	GetAccount(addr keys.Address) (Account, error)
	PutAccount(addr keys.Address, acc Account) error

	GetBlock(digest hash.Digest) (*types.Block, error)
	PutBlock(block *types.Block) error

	GetHeaderByHeight(height uint64) (*types.BlockHeader, error)
	PutHeaderAtHeight(height uint64, header *types.BlockHeader) error

	GetTip() (hash.Digest, uint64, error)
	SetTip(digest hash.Digest, height uint64) error

	GetTask(taskID hash.Digest) (*tensor.Task, error)
	PutTask(task *tensor.Task) error

	// ListOpenTasks 返回所有仍处于open状态的任务，供到期退款扫描使用。
	// 任务表按spec 第5节的每创建者/每高度配额被有效限制在一个较小的规模，
	// 因此全表扫描是可接受的成本，不需要单独维护一个按截止高度排序的索引。
	ListOpenTasks() ([]*tensor.Task, error)

	// ResetAccountsAndTasks 清空全部账户与任务记录，保留区块与区块头历史。
	// 仅供重组时"从创世块重放"使用（spec 第8节："状态等于从创世块重放该链
	// 得到的状态"），不是常规状态转换操作。
	ResetAccountsAndTasks() error

	// Batch 返回一个可在单次原子提交中应用的写入批次。状态转换的所有写入
	// 必须通过同一个批次完成，保证区块应用要么整体生效要么整体不生效。
	Batch() Batch
}

// Batch 是一组待原子提交的写入操作。
type Batch interface {
	PutAccount(addr keys.Address, acc Account)
	PutBlock(block *types.Block)
	PutHeaderAtHeight(height uint64, header *types.BlockHeader)
	PutTask(task *tensor.Task)
	SetTip(digest hash.Digest, height uint64)
	Commit() error
}
