package state

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/core/crypto/sig"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/errs"
)

const componentName = "chain/state"

// CoinbaseSender 是coinbase交易固定使用的零值发送方地址，区别于任何真实账户。
var CoinbaseSender = keys.Address{}

// DifficultyFloor是折减下限协议常量，EffectiveTarget与ReductionWithinFloor
// 对每个区块统一使用同一个值，避免校验与出块模板组装各算一份产生分歧。
var DifficultyFloor = decimal.NewFromFloat(0.10)

// ApplyBlock 校验并应用一个区块到parentHeight之上的状态（spec 第4.2节）。
// 校验顺序是固定的，不是实现细节——一旦改变某个检查的相对顺序，
// 不同节点可能对同一个畸形区块得出不同的拒绝原因，但共识只要求拒绝本身一致：
//
//  1. 头部格式（父子关系、时间戳单调性）；
//  2. 难度目标是否与按固定窗口重定向算出的协议期望值一致；
//  3. 交易列表结构（coinbase在前、数量上限、merkle根与task_binding_digest匹配）；
//  4. 任务声明校验与难度折减求和核对，随后按折减后的有效目标核对挖矿谓词；
//  5. 逐笔非coinbase交易的签名、nonce连续性、余额充足性，并按负载种类
//     解释（普通转账/任务创建托管/任务奖励声明交易种类被拒绝）；
//  6. 任务状态终局化，奖励从托管发放给声明人；
//  7. 到期未认领任务的退款与过期标记；
//  8. coinbase结算（铸造上限校验，区块奖励+手续费，不含任务奖励，最后应用）。
func ApplyBlock(store Store, parentHeight uint64, parent *types.BlockHeader, block *types.Block) error {
	height := parentHeight + 1

	if err := verifyHeaderStructure(parent, block.Header); err != nil {
		return err
	}
	if err := verifyDifficultyTarget(store, parent, height, block.Header.DifficultyTarget); err != nil {
		return err
	}

	if err := verifyTransactionListStructure(block); err != nil {
		return err
	}

	finalized, reductionSum, err := verifyClaimsAndSumReduction(store, block)
	if err != nil {
		return err
	}
	if !pow.ReductionWithinFloor(reductionSum, DifficultyFloor) {
		return errs.New(errs.KindInvalid, componentName, "claimed difficulty reduction sum violates the protocol floor")
	}

	effectiveTarget := pow.EffectiveTarget(block.Header.DifficultyTarget, reductionSum, DifficultyFloor)
	headerHash := block.Header.Digest()
	if !pow.HashMeetsTarget(headerHash.Bytes(), effectiveTarget) {
		return errs.New(errs.KindInvalid, componentName, "block header hash does not meet effective target")
	}

	batch := store.Batch()
	var totalFees uint64

	for _, tx := range block.Transactions[1:] {
		fee, err := applyTransaction(store, batch, tx, height)
		if err != nil {
			return err
		}
		totalFees += fee
	}

	finalizing := make(map[hash.Digest]bool, len(finalized))
	for _, f := range finalized {
		finalizing[f.task.TaskID] = true
		f.task.State = tensor.TaskFinalized
		batch.PutTask(f.task)

		// 奖励只从托管里付给声明人这一条路径——托管在applyTaskSubmit里已经从
		// 创建者账户扣出，这里只是把同一笔钱转移给声明人，不是再铸造一份新的，
		// 所以绝不能把f.task.RewardAmount计入下面applyCoinbase的铸造上限。
		claimantAcc, err := store.GetAccount(f.claim.Claimant)
		if err != nil {
			return errs.Wrap(errs.KindFatal, componentName, "failed to load claimant account", err)
		}
		claimantAcc.Balance += f.task.RewardAmount
		batch.PutAccount(f.claim.Claimant, claimantAcc)
	}

	if err := sweepExpiredTasks(store, batch, height, finalizing); err != nil {
		return err
	}

	if err := applyCoinbase(store, batch, block.Coinbase(), height, totalFees); err != nil {
		return err
	}

	block.Header.Height = height
	batch.PutBlock(block)
	batch.PutHeaderAtHeight(height, block.Header)
	batch.SetTip(block.Digest(), height)

	return batch.Commit()
}

// sweepExpiredTasks把到期（DeadlineHeight小于等于height）仍处于open状态、
// 且没有在本区块被同时认领终局化的任务标记为expired，并把托管的奖励金额
// 退还给创建者（spec 第4.3节Expiry、第8节场景4）。finalizing标出本区块里
// 正在被终局化的任务ID，防止一个刚好在截止高度被有效认领的任务被错误退款。
func sweepExpiredTasks(store Store, batch Batch, height uint64, finalizing map[hash.Digest]bool) error {
	open, err := store.ListOpenTasks()
	if err != nil {
		return errs.Wrap(errs.KindFatal, componentName, "failed to list open tasks for expiry sweep", err)
	}
	for _, task := range open {
		if finalizing[task.TaskID] || task.DeadlineHeight > height {
			continue
		}
		creatorAcc, err := store.GetAccount(task.Creator)
		if err != nil {
			return errs.Wrap(errs.KindFatal, componentName, "failed to load task creator account for refund", err)
		}
		creatorAcc.Balance += task.RewardAmount
		batch.PutAccount(task.Creator, creatorAcc)

		task.State = tensor.TaskExpired
		batch.PutTask(task)
	}
	return nil
}

// verifyDifficultyTarget 核对区块声明的难度目标是否与协议按固定窗口计算出的值一致。
// 窗口内的区块（高度不是RetargetWindow的整数倍）必须原样继承父区块的目标；
// 跨过窗口边界的区块必须是pow.Retarget对窗口起点到父区块实际耗时的计算结果，
// 任何一方算出的目标不一致就说明双方在这条链的难度上产生了分叉，必须拒绝。
func verifyDifficultyTarget(store Store, parent *types.BlockHeader, height uint64, claimed pow.CompactDifficulty) error {
	expected, err := NextDifficultyTarget(store, parent, height)
	if err != nil {
		return err
	}
	if claimed != expected {
		return errs.New(errs.KindInvalid, componentName, "block difficulty target does not match the retargeted value")
	}
	return nil
}

// NextDifficultyTarget计算height处区块必须满足的协议难度目标，供ApplyBlock的校验
// 与矿工出块模板组装共用同一套规则，避免两处各算一遍而产生分歧。
func NextDifficultyTarget(store Store, parent *types.BlockHeader, height uint64) (pow.CompactDifficulty, error) {
	if height == 0 || height%pow.RetargetWindow != 0 {
		return parent.DifficultyTarget, nil
	}
	windowStart, err := store.GetHeaderByHeight(height - pow.RetargetWindow)
	if err != nil {
		return 0, errs.Wrap(errs.KindFatal, componentName, "failed to load retarget window start header", err)
	}
	observedInterval := int64(parent.Timestamp) - int64(windowStart.Timestamp)
	return pow.Retarget(parent.DifficultyTarget, observedInterval), nil
}

// VerifyTimestampSkew校验一个区块头的时间戳没有超前参考时间太多。与父子时间戳
// 单调性不同，这个检查依赖"现在"这个随时间流动的量，不是区块自身可确定性
// 验证的状态转换，因此不内嵌进ApplyBlock，由调用方（通常是编排器，now取自
// internal/platform/clock的NTP校准时钟）在提交前单独调用。
func VerifyTimestampSkew(header *types.BlockHeader, now time.Time, maxSkew time.Duration) error {
	limit := now.Add(maxSkew).Unix()
	if int64(header.Timestamp) > limit {
		return errs.New(errs.KindInvalid, componentName, "block timestamp too far ahead of reference time")
	}
	return nil
}

// verifyHeaderStructure 检查父子关系与时间戳单调性，不检查挖矿谓词（由调用方单独核对有效目标）。
func verifyHeaderStructure(parent *types.BlockHeader, header *types.BlockHeader) error {
	if header.ParentDigest != parent.Digest() {
		return errs.New(errs.KindUnknownParent, componentName, "header does not extend the given parent")
	}
	if header.Timestamp <= parent.Timestamp {
		return errs.New(errs.KindInvalid, componentName, "header timestamp does not advance past parent")
	}
	return nil
}

func verifyTransactionListStructure(block *types.Block) error {
	if len(block.Transactions) == 0 {
		return errs.New(errs.KindMalformed, componentName, "block has no coinbase transaction")
	}
	if len(block.Transactions) > types.MaxTransactionsPerBlock {
		return errs.New(errs.KindInvalid, componentName, "block exceeds maximum transaction count")
	}
	if len(block.Claims) > types.MaxClaimsPerBlock {
		return errs.New(errs.KindInvalid, componentName, "block exceeds maximum claim count")
	}
	coinbase := block.Transactions[0]
	if coinbase.Sender != CoinbaseSender {
		return errs.New(errs.KindInvalid, componentName, "first transaction is not a coinbase")
	}
	for _, tx := range block.Transactions[1:] {
		if tx.Sender == CoinbaseSender {
			return errs.New(errs.KindInvalid, componentName, "coinbase sender address used by a non-coinbase transaction")
		}
	}
	if block.ComputeMerkleRoot() != block.Header.MerkleRoot {
		return errs.New(errs.KindInvalid, componentName, "merkle root does not match transaction list")
	}
	if block.ComputeTaskBindingDigest() != block.Header.TaskBindingDigest {
		return errs.New(errs.KindInvalid, componentName, "task binding digest does not match claim list")
	}
	return nil
}

// finalizedClaim把一个通过校验、即将在本区块终局化的声明与它兑现的任务
// 配成一对，供调用方既能把任务状态置为finalized，也能知道把奖励付给谁。
type finalizedClaim struct {
	claim *tensor.Claim
	task  *tensor.Task
}

// verifyClaimsAndSumReduction 校验每个声明都兑现了其所指任务的承诺，返回
// 即将终局化的(声明,任务)配对以及它们共同贡献的难度折减总和。
func verifyClaimsAndSumReduction(store Store, block *types.Block) ([]finalizedClaim, decimal.Decimal, error) {
	seen := make(map[hash.Digest]bool, len(block.Claims))
	finalized := make([]finalizedClaim, 0, len(block.Claims))
	tasks := make([]*tensor.Task, 0, len(block.Claims))

	for _, claim := range block.Claims {
		if seen[claim.TaskID] {
			return nil, decimal.Zero, errs.New(errs.KindInvalid, componentName, "duplicate task claimed twice in the same block")
		}
		seen[claim.TaskID] = true

		task, err := store.GetTask(claim.TaskID)
		if err != nil {
			return nil, decimal.Zero, errs.Wrap(errs.KindNotFound, componentName, "claimed task not found", err)
		}
		if task.State != tensor.TaskOpen {
			return nil, decimal.Zero, errs.New(errs.KindInvalid, componentName, "task is not open for claiming")
		}
		if claim.ClaimedAtHeight > task.DeadlineHeight {
			return nil, decimal.Zero, errs.New(errs.KindInvalid, componentName, "claim submitted after task deadline")
		}
		if err := tensor.VerifyClaim(task, claim); err != nil {
			return nil, decimal.Zero, err
		}
		finalized = append(finalized, finalizedClaim{claim: claim, task: task})
		tasks = append(tasks, task)
	}
	return finalized, tensor.ClaimedReductionSum(tasks), nil
}

// applyTransaction 校验并应用一笔非coinbase交易：签名、地址派生一致性、
// nonce严格递增、余额充足，随后按PayloadKind解释负载。返回本笔交易贡献的
// 手续费，供coinbase结算使用。
func applyTransaction(store Store, batch Batch, tx *types.Transaction, height uint64) (uint64, error) {
	if keys.DeriveAddress(tx.SenderPub) != tx.Sender {
		return 0, errs.New(errs.KindInvalid, componentName, "sender address does not match public key")
	}
	ok, err := sig.Verify(tx.SenderPub, tx.SigningDigest(), tx.Signature, tx.Sender)
	if err != nil || !ok {
		return 0, errs.New(errs.KindInvalid, componentName, "transaction signature verification failed")
	}

	senderAcc, err := store.GetAccount(tx.Sender)
	if err != nil {
		return 0, errs.Wrap(errs.KindFatal, componentName, "failed to load sender account", err)
	}
	if tx.Nonce != senderAcc.Nonce {
		return 0, errs.New(errs.KindInvalid, componentName, "transaction nonce does not match expected account nonce")
	}
	total := tx.Amount + tx.Fee
	if total < tx.Amount || senderAcc.Balance < total {
		return 0, errs.New(errs.KindInvalid, componentName, "sender balance insufficient for amount plus fee")
	}

	switch tx.PayloadKind {
	case types.PayloadTaskClaim:
		// 任务奖励的唯一有效发放路径是区块级Claims列表（verifyClaimsAndSumReduction
		// 已经校验并在ApplyBlock里结算），这里留作保留种类并拒绝，避免出现第二条
		// 未经同等校验的奖励路径。
		return 0, errs.New(errs.KindInvalid, componentName, "task claim payload is not a valid transaction kind, claims are submitted at block level")
	case types.PayloadTaskSubmit:
		return applyTaskSubmit(store, batch, tx, senderAcc, total, height)
	default:
		// PayloadPlainTransfer与>=PayloadReservedExternalBase（核心不解释，交给
		// 外部模块）都按普通转账移动基础资产。
		return applyPlainTransfer(store, batch, tx, senderAcc, total)
	}
}

// applyPlainTransfer把amount从发送方转给接收方，扣减手续费，供普通转账与
// 核心不解释的保留负载种类共用。
func applyPlainTransfer(store Store, batch Batch, tx *types.Transaction, senderAcc Account, total uint64) (uint64, error) {
	recipientAcc, err := store.GetAccount(tx.Recipient)
	if err != nil {
		return 0, errs.Wrap(errs.KindFatal, componentName, "failed to load recipient account", err)
	}

	senderAcc.Balance -= total
	senderAcc.Nonce++
	recipientAcc.Balance += tx.Amount

	batch.PutAccount(tx.Sender, senderAcc)
	batch.PutAccount(tx.Recipient, recipientAcc)
	return tx.Fee, nil
}

// applyTaskSubmit把tx.Amount作为奖励从发送方托管进一个新任务（spec 第4.3节
// "提交即托管"），任务ID取交易自身摘要，使其与创建记录的内容绑定、不可伪造。
// 发送方余额照常扣减amount+fee，但amount不转给任何接收账户——它被Task.RewardAmount
// 字段隐式持有，直到认领终局化付给声明人，或到期退款给创建者。
func applyTaskSubmit(store Store, batch Batch, tx *types.Transaction, senderAcc Account, total uint64, height uint64) (uint64, error) {
	payload, err := tensor.DecodeTaskCreationPayload(tx.Payload)
	if err != nil {
		return 0, errs.Wrap(errs.KindMalformed, componentName, "failed to decode task creation payload", err)
	}
	if payload.DeadlineHeight <= height {
		return 0, errs.New(errs.KindInvalid, componentName, "task deadline must be strictly in the future")
	}

	taskID := tx.Digest()
	if _, err := store.GetTask(taskID); err == nil {
		return 0, errs.New(errs.KindInvalid, componentName, "a task with this creation digest already exists")
	} else if !errs.Is(err, errs.KindNotFound) {
		return 0, errs.Wrap(errs.KindFatal, componentName, "failed to check for existing task", err)
	}

	senderAcc.Balance -= total
	senderAcc.Nonce++
	batch.PutAccount(tx.Sender, senderAcc)

	batch.PutTask(&tensor.Task{
		TaskID:               taskID,
		Creator:              tx.Sender,
		OperationKind:        payload.OperationKind,
		OpParam:              payload.OpParam,
		InputDigest:          payload.InputDigest,
		ParamDigests:         payload.ParamDigests,
		ExpectedOutputDigest: payload.ExpectedOutputDigest,
		DifficultyReduction:  payload.DifficultyReduction,
		RewardAmount:         tx.Amount,
		DeadlineHeight:       payload.DeadlineHeight,
		State:                tensor.TaskOpen,
	})
	return tx.Fee, nil
}

// creditCoinbase无条件地把amount计入收款地址，不做任何铸造上限校验——
// 只供SeedGenesis使用，创世分配是协议钉死的初始状态，不是按高度铸造的
// 区块奖励，不受Subsidy约束。
func creditCoinbase(store Store, batch Batch, coinbase *types.Transaction) error {
	acc, err := store.GetAccount(coinbase.Recipient)
	if err != nil {
		return errs.Wrap(errs.KindFatal, componentName, "failed to load coinbase recipient account", err)
	}
	acc.Balance += coinbase.Amount
	batch.PutAccount(coinbase.Recipient, acc)
	return nil
}

// applyCoinbase 校验coinbase金额没有超过协议铸造上限（spec 第8节守恒不变量：
// coinbase最多铸造 subsidy(height) + 本区块手续费总和，后者是从发送方转移
// 而来，不是新铸造）。任务奖励不计入这个上限——它已经在任务创建时从创建者
// 账户托管扣出，终局化时原样转给声明人（见上面的finalized循环），若再把
// taskRewardTotal算进coinbase的铸造上限，同一笔奖励就会被铸造两次。
func applyCoinbase(store Store, batch Batch, coinbase *types.Transaction, height uint64, totalFees uint64) error {
	maxAllowed := Subsidy(height) + totalFees
	if coinbase.Amount > maxAllowed {
		return errs.New(errs.KindInvalid, componentName, "coinbase amount exceeds subsidy plus fees")
	}
	return creditCoinbase(store, batch, coinbase)
}
