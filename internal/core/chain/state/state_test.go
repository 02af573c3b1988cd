package state

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/errs"
)

// memStore 是一个仅供测试使用的内存Store实现。
type memStore struct {
	accounts map[keys.Address]Account
	blocks   map[hash.Digest]*types.Block
	headers  map[uint64]*types.BlockHeader
	tasks    map[hash.Digest]*tensor.Task
	tipHash  hash.Digest
	tipHeight uint64
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[keys.Address]Account),
		blocks:   make(map[hash.Digest]*types.Block),
		headers:  make(map[uint64]*types.BlockHeader),
		tasks:    make(map[hash.Digest]*tensor.Task),
	}
}

func (m *memStore) GetAccount(addr keys.Address) (Account, error) { return m.accounts[addr], nil }
func (m *memStore) PutAccount(addr keys.Address, acc Account) error {
	m.accounts[addr] = acc
	return nil
}
func (m *memStore) GetBlock(digest hash.Digest) (*types.Block, error) { return m.blocks[digest], nil }
func (m *memStore) PutBlock(block *types.Block) error {
	m.blocks[block.Digest()] = block
	return nil
}
func (m *memStore) GetHeaderByHeight(height uint64) (*types.BlockHeader, error) {
	return m.headers[height], nil
}
func (m *memStore) PutHeaderAtHeight(height uint64, header *types.BlockHeader) error {
	m.headers[height] = header
	return nil
}
func (m *memStore) GetTip() (hash.Digest, uint64, error) { return m.tipHash, m.tipHeight, nil }
func (m *memStore) SetTip(digest hash.Digest, height uint64) error {
	m.tipHash, m.tipHeight = digest, height
	return nil
}
func (m *memStore) GetTask(taskID hash.Digest) (*tensor.Task, error) {
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "state_test", "task not found")
	}
	return task, nil
}
func (m *memStore) PutTask(task *tensor.Task) error {
	m.tasks[task.TaskID] = task
	return nil
}
func (m *memStore) ListOpenTasks() ([]*tensor.Task, error) {
	open := make([]*tensor.Task, 0)
	for _, task := range m.tasks {
		if task.State == tensor.TaskOpen {
			open = append(open, task)
		}
	}
	return open, nil
}
func (m *memStore) ResetAccountsAndTasks() error {
	m.accounts = make(map[keys.Address]Account)
	m.tasks = make(map[hash.Digest]*tensor.Task)
	return nil
}
func (m *memStore) Batch() Batch { return &memBatch{store: m} }

type memBatch struct {
	store    *memStore
	accounts []func()
}

func (b *memBatch) PutAccount(addr keys.Address, acc Account) {
	b.accounts = append(b.accounts, func() { b.store.accounts[addr] = acc })
}
func (b *memBatch) PutBlock(block *types.Block) {
	b.accounts = append(b.accounts, func() { b.store.blocks[block.Digest()] = block })
}
func (b *memBatch) PutHeaderAtHeight(height uint64, header *types.BlockHeader) {
	b.accounts = append(b.accounts, func() { b.store.headers[height] = header })
}
func (b *memBatch) PutTask(task *tensor.Task) {
	b.accounts = append(b.accounts, func() { b.store.tasks[task.TaskID] = task })
}
func (b *memBatch) SetTip(digest hash.Digest, height uint64) {
	b.accounts = append(b.accounts, func() { b.store.tipHash, b.store.tipHeight = digest, height })
}
func (b *memBatch) Commit() error {
	for _, apply := range b.accounts {
		apply()
	}
	return nil
}

// easyDifficulty 构造一个极易满足的目标（大约一半的哈希都低于它），
// 使测试可以在有限次数内找到满足挖矿谓词的nonce。
func easyDifficulty() pow.CompactDifficulty {
	t := new(big.Int)
	t.SetString("7FFFFF0000000000000000000000000000000000000000000000000000000000", 16)
	return pow.FromTarget(t)
}

func mineValidHeader(t *testing.T, parent *types.BlockHeader, merkleRoot, bindingDigest hash.Digest) *types.BlockHeader {
	t.Helper()
	header := &types.BlockHeader{
		ParentDigest:      parent.Digest(),
		MerkleRoot:        merkleRoot,
		TaskBindingDigest: bindingDigest,
		Timestamp:         parent.Timestamp + 1,
		DifficultyTarget:  easyDifficulty(),
	}
	target := header.DifficultyTarget.ToTarget()
	for nonce := uint64(0); nonce < 1<<20; nonce++ {
		header.Nonce = nonce
		if pow.HashMeetsTarget(header.Digest().Bytes(), target) {
			return header
		}
	}
	t.Fatalf("未能在容差范围内找到满足目标的nonce，测试用难度过高")
	return nil
}

func TestApplyBlockTransfersBalance(t *testing.T) {
	store := newMemStore()

	genesisHeader := &types.BlockHeader{Timestamp: 1, DifficultyTarget: easyDifficulty()}
	genesisBlock := &types.Block{Header: genesisHeader, Transactions: []*types.Transaction{{Sender: CoinbaseSender}}}
	store.PutBlock(genesisBlock)
	store.PutHeaderAtHeight(0, genesisHeader)
	store.SetTip(genesisBlock.Digest(), 0)

	var minerAddr keys.Address
	minerAddr[0] = 0xAA

	coinbase := &types.Transaction{Sender: CoinbaseSender, Recipient: minerAddr, Amount: 50}
	block := &types.Block{Header: &types.BlockHeader{}, Transactions: []*types.Transaction{coinbase}}
	block.Header.MerkleRoot = block.ComputeMerkleRoot()
	block.Header.TaskBindingDigest = block.ComputeTaskBindingDigest()
	*block.Header = *mineValidHeader(t, genesisHeader, block.Header.MerkleRoot, block.Header.TaskBindingDigest)

	if err := ApplyBlock(store, 0, genesisHeader, block); err != nil {
		t.Fatalf("应用区块失败: %v", err)
	}

	acc, _ := store.GetAccount(minerAddr)
	if acc.Balance != 50 {
		t.Errorf("矿工余额 = %d, 期望 50", acc.Balance)
	}
	_, height, _ := store.GetTip()
	if height != 1 {
		t.Errorf("链高度 = %d, 期望 1", height)
	}
}

func TestApplyBlockRejectsWrongParent(t *testing.T) {
	store := newMemStore()
	genesisHeader := &types.BlockHeader{Timestamp: 1, DifficultyTarget: easyDifficulty()}

	coinbase := &types.Transaction{Sender: CoinbaseSender}
	block := &types.Block{Header: &types.BlockHeader{ParentDigest: hash.Digest{0xFF}, Timestamp: 2}, Transactions: []*types.Transaction{coinbase}}
	block.Header.MerkleRoot = block.ComputeMerkleRoot()
	block.Header.TaskBindingDigest = block.ComputeTaskBindingDigest()

	if err := ApplyBlock(store, 0, genesisHeader, block); err == nil {
		t.Errorf("父区块摘要不匹配时应当拒绝")
	}
}

func TestApplyBlockRejectsMissingCoinbase(t *testing.T) {
	store := newMemStore()
	genesisHeader := &types.BlockHeader{Timestamp: 1}
	block := &types.Block{Header: &types.BlockHeader{ParentDigest: genesisHeader.Digest(), Timestamp: 2}, Transactions: []*types.Transaction{}}

	if err := ApplyBlock(store, 0, genesisHeader, block); err == nil {
		t.Errorf("没有coinbase交易的区块应当拒绝")
	}
}

// TestApplyBlockFinalizesClaimWithoutDoubleMinting 核对任务奖励只从托管付给
// 声明人一次，不会同时被coinbase按taskRewardTotal再铸造一遍（spec 第8节
// 守恒不变量：Σ余额最多等于Σ协议铸造的subsidy+手续费，不应该因为终局化一个
// 声明而额外多出一份奖励）。
func TestApplyBlockFinalizesClaimWithoutDoubleMinting(t *testing.T) {
	store := newMemStore()

	genesisHeader := &types.BlockHeader{Timestamp: 1, DifficultyTarget: easyDifficulty()}
	genesisBlock := &types.Block{Header: genesisHeader, Transactions: []*types.Transaction{{Sender: CoinbaseSender}}}
	store.PutBlock(genesisBlock)
	store.PutHeaderAtHeight(0, genesisHeader)
	store.SetTip(genesisBlock.Digest(), 0)

	input := tensor.NewInt32Tensor([]uint32{3})
	param := tensor.NewInt32Tensor([]uint32{3})
	for i := 0; i < 3; i++ {
		input.PutInt32At(i, int32(i+1))
		param.PutInt32At(i, int32(i+10))
	}
	output, err := tensor.Evaluate(tensor.OpElementwiseArith, input, []*tensor.Tensor{param}, byte(tensor.ArithAdd))
	if err != nil {
		t.Fatalf("参考求值失败: %v", err)
	}

	const rewardAmount = 777
	var creator, claimant keys.Address
	creator[0] = 0x01
	claimant[0] = 0x02

	var taskID hash.Digest
	taskID[0] = 0xAB
	task := &tensor.Task{
		TaskID:              taskID,
		Creator:             creator,
		OperationKind:       tensor.OpElementwiseArith,
		OpParam:             byte(tensor.ArithAdd),
		InputDigest:         input.Digest(),
		ParamDigests:        []hash.Digest{param.Digest()},
		DifficultyReduction: decimal.Zero,
		RewardAmount:        rewardAmount,
		DeadlineHeight:      1000,
		State:               tensor.TaskOpen,
	}
	store.PutTask(task)

	claim := &tensor.Claim{TaskID: taskID, Claimant: claimant, Input: input, Params: []*tensor.Tensor{param}, Output: output, ClaimedAtHeight: 1}

	var minerAddr keys.Address
	minerAddr[0] = 0xAA
	coinbase := &types.Transaction{Sender: CoinbaseSender, Recipient: minerAddr, Amount: Subsidy(1)}

	block := &types.Block{Header: &types.BlockHeader{}, Transactions: []*types.Transaction{coinbase}, Claims: []*tensor.Claim{claim}}
	block.Header.MerkleRoot = block.ComputeMerkleRoot()
	block.Header.TaskBindingDigest = block.ComputeTaskBindingDigest()
	*block.Header = *mineValidHeader(t, genesisHeader, block.Header.MerkleRoot, block.Header.TaskBindingDigest)

	if err := ApplyBlock(store, 0, genesisHeader, block); err != nil {
		t.Fatalf("应用区块失败: %v", err)
	}

	claimantAcc, _ := store.GetAccount(claimant)
	if claimantAcc.Balance != rewardAmount {
		t.Errorf("声明人余额 = %d, 期望 %d（奖励只应发放一次）", claimantAcc.Balance, rewardAmount)
	}
	minerAcc, _ := store.GetAccount(minerAddr)
	if minerAcc.Balance != Subsidy(1) {
		t.Errorf("矿工余额 = %d, 期望 %d（coinbase不应额外铸造任务奖励）", minerAcc.Balance, Subsidy(1))
	}

	finalizedTask, err := store.GetTask(taskID)
	if err != nil {
		t.Fatalf("读取任务失败: %v", err)
	}
	if finalizedTask.State != tensor.TaskFinalized {
		t.Errorf("任务状态 = %s, 期望 finalized", finalizedTask.State)
	}

	// 试图在coinbase里额外多铸造一份奖励应当被拒绝。
	store2 := newMemStore()
	store2.PutBlock(genesisBlock)
	store2.PutHeaderAtHeight(0, genesisHeader)
	store2.SetTip(genesisBlock.Digest(), 0)
	// 第一次ApplyBlock已把task标为finalized；这里放入一份仍处于open的副本，
	// 使下面的拒绝只能来自coinbase铸造上限。
	reopened := *task
	reopened.State = tensor.TaskOpen
	store2.PutTask(&reopened)

	inflatedCoinbase := &types.Transaction{Sender: CoinbaseSender, Recipient: minerAddr, Amount: Subsidy(1) + rewardAmount}
	inflatedBlock := &types.Block{Header: &types.BlockHeader{}, Transactions: []*types.Transaction{inflatedCoinbase}, Claims: []*tensor.Claim{claim}}
	inflatedBlock.Header.MerkleRoot = inflatedBlock.ComputeMerkleRoot()
	inflatedBlock.Header.TaskBindingDigest = inflatedBlock.ComputeTaskBindingDigest()
	*inflatedBlock.Header = *mineValidHeader(t, genesisHeader, inflatedBlock.Header.MerkleRoot, inflatedBlock.Header.TaskBindingDigest)

	if err := ApplyBlock(store2, 0, genesisHeader, inflatedBlock); err == nil {
		t.Errorf("coinbase把任务奖励也算进铸造上限应当被拒绝")
	}
}
