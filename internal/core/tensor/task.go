package tensor

import (
	"github.com/ai3chain/node/internal/core/codec"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/shopspring/decimal"
)

// TaskState 是任务生命周期的状态机（spec 第4.3节）：
// open -> finalized（声明随所在区块一起终局化），或 open -> expired（到期无人认领）。
// TaskClaimed已定义并可编解码，但状态机不会把任务置为该状态。
type TaskState byte

const (
	TaskOpen TaskState = iota
	TaskClaimed
	TaskFinalized
	TaskExpired
)

func (s TaskState) String() string {
	switch s {
	case TaskOpen:
		return "open"
	case TaskClaimed:
		return "claimed"
	case TaskFinalized:
		return "finalized"
	case TaskExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Task 是任务提交交易负载承诺的计算任务（spec 第4.3节）。
// TaskID由创建交易的摘要派生；Encode把它作为第一个字段写入Task体。
type Task struct {
	TaskID               hash.Digest
	Creator              keys.Address
	OperationKind        OperationKind
	OpParam              byte // 激活函数/算术子操作选择器
	InputDigest          hash.Digest
	ParamDigests         []hash.Digest // 第二操作数（matmul右矩阵/conv核/arith第二操作数）的摘要列表
	ExpectedOutputDigest hash.Digest
	DifficultyReduction  decimal.Decimal // 区间[0,1)，认领成功后从有效目标中扣减的比例
	RewardAmount         uint64
	DeadlineHeight       uint64
	State                TaskState
}

// Encode 编码任务的规范字节表示，用于落盘和跨节点同步。
func (t *Task) Encode() []byte {
	w := codec.NewWriter(160)
	w.PutFixedBytes(t.TaskID.Bytes())
	w.PutFixedBytes(t.Creator.Bytes())
	w.PutByte(byte(t.OperationKind))
	w.PutByte(t.OpParam)
	w.PutFixedBytes(t.InputDigest.Bytes())
	w.PutUvarint(uint64(len(t.ParamDigests)))
	for _, d := range t.ParamDigests {
		w.PutFixedBytes(d.Bytes())
	}
	w.PutFixedBytes(t.ExpectedOutputDigest.Bytes())
	reductionBytes := []byte(t.DifficultyReduction.String())
	w.PutBytes(reductionBytes)
	w.PutUint64LE(t.RewardAmount)
	w.PutUint64LE(t.DeadlineHeight)
	w.PutByte(byte(t.State))
	return w.Bytes()
}

// DecodeTask 解码一个规范编码的任务记录。
func DecodeTask(b []byte) (*Task, error) {
	r := codec.NewReader(b, 0)
	t := &Task{}

	idBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	t.TaskID, _ = hash.FromBytes(idBytes)

	creatorBytes, err := r.FixedBytes(keys.AddressSize)
	if err != nil {
		return nil, err
	}
	t.Creator, _ = keys.AddressFromBytes(creatorBytes)

	opByte, err := r.Byte()
	if err != nil {
		return nil, err
	}
	t.OperationKind = OperationKind(opByte)

	if t.OpParam, err = r.Byte(); err != nil {
		return nil, err
	}

	inputBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	t.InputDigest, _ = hash.FromBytes(inputBytes)

	paramCount, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	t.ParamDigests = make([]hash.Digest, paramCount)
	for i := range t.ParamDigests {
		pb, err := r.FixedBytes(hash.Size)
		if err != nil {
			return nil, err
		}
		t.ParamDigests[i], _ = hash.FromBytes(pb)
	}

	outBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	t.ExpectedOutputDigest, _ = hash.FromBytes(outBytes)

	reductionBytes, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	reduction, parseErr := decimal.NewFromString(string(reductionBytes))
	if parseErr != nil {
		return nil, parseErr
	}
	t.DifficultyReduction = reduction

	if t.RewardAmount, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	if t.DeadlineHeight, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	stateByte, err := r.Byte()
	if err != nil {
		return nil, err
	}
	t.State = TaskState(stateByte)

	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return t, nil
}

// TaskCreationPayload是PayloadTaskSubmit交易负载的规范编码（spec 第4.3节）：
// 创建一个任务所需声明的全部承诺字段，TaskID和Creator不包含在内——前者是
// 创建交易自身的摘要，后者是交易的Sender，两者都由链状态机在应用交易时派生，
// 不允许发送方在负载里自行指定，否则可以伪造出与自己无关的任务归属。
type TaskCreationPayload struct {
	OperationKind        OperationKind
	OpParam              byte
	InputDigest          hash.Digest
	ParamDigests         []hash.Digest
	ExpectedOutputDigest hash.Digest
	DifficultyReduction  decimal.Decimal
	DeadlineHeight       uint64
}

// Encode 编码任务创建负载的规范字节表示，供落入交易的Payload字段。
func (p *TaskCreationPayload) Encode() []byte {
	w := codec.NewWriter(128)
	w.PutByte(byte(p.OperationKind))
	w.PutByte(p.OpParam)
	w.PutFixedBytes(p.InputDigest.Bytes())
	w.PutUvarint(uint64(len(p.ParamDigests)))
	for _, d := range p.ParamDigests {
		w.PutFixedBytes(d.Bytes())
	}
	w.PutFixedBytes(p.ExpectedOutputDigest.Bytes())
	w.PutBytes([]byte(p.DifficultyReduction.String()))
	w.PutUint64LE(p.DeadlineHeight)
	return w.Bytes()
}

// DecodeTaskCreationPayload 解码一个任务创建负载。
func DecodeTaskCreationPayload(b []byte) (*TaskCreationPayload, error) {
	r := codec.NewReader(b, 0)
	p := &TaskCreationPayload{}

	opByte, err := r.Byte()
	if err != nil {
		return nil, err
	}
	p.OperationKind = OperationKind(opByte)

	if p.OpParam, err = r.Byte(); err != nil {
		return nil, err
	}

	inputBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	p.InputDigest, _ = hash.FromBytes(inputBytes)

	paramCount, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	p.ParamDigests = make([]hash.Digest, paramCount)
	for i := range p.ParamDigests {
		pb, err := r.FixedBytes(hash.Size)
		if err != nil {
			return nil, err
		}
		p.ParamDigests[i], _ = hash.FromBytes(pb)
	}

	outBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	p.ExpectedOutputDigest, _ = hash.FromBytes(outBytes)

	reductionBytes, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	reduction, parseErr := decimal.NewFromString(string(reductionBytes))
	if parseErr != nil {
		return nil, parseErr
	}
	p.DifficultyReduction = reduction

	if p.DeadlineHeight, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return p, nil
}

// Claim 是对一个Task的求解证明（spec 第4.3节）。Claim被打包进区块体，
// 由挖出区块的矿工在coinbase之外附带提交；验证成功后任务进入finalized。
type Claim struct {
	TaskID       hash.Digest
	Claimant     keys.Address
	Input        *Tensor
	Params       []*Tensor
	Output       *Tensor
	ClaimedAtHeight uint64
}

// Encode 编码一个声明，供打包进区块体或广播。
func (c *Claim) Encode() []byte {
	w := codec.NewWriter(256)
	w.PutFixedBytes(c.TaskID.Bytes())
	w.PutFixedBytes(c.Claimant.Bytes())
	w.PutBytes(c.Input.Encode())
	w.PutUvarint(uint64(len(c.Params)))
	for _, p := range c.Params {
		w.PutBytes(p.Encode())
	}
	w.PutBytes(c.Output.Encode())
	w.PutUint64LE(c.ClaimedAtHeight)
	return w.Bytes()
}

// DecodeClaim 解码一个声明。
func DecodeClaim(b []byte) (*Claim, error) {
	r := codec.NewReader(b, 0)
	c := &Claim{}

	idBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	c.TaskID, _ = hash.FromBytes(idBytes)

	claimantBytes, err := r.FixedBytes(keys.AddressSize)
	if err != nil {
		return nil, err
	}
	c.Claimant, _ = keys.AddressFromBytes(claimantBytes)

	inputBytes, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	if c.Input, err = DecodeTensor(inputBytes); err != nil {
		return nil, err
	}

	paramCount, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	c.Params = make([]*Tensor, paramCount)
	for i := range c.Params {
		pb, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		if c.Params[i], err = DecodeTensor(pb); err != nil {
			return nil, err
		}
	}

	outputBytes, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	if c.Output, err = DecodeTensor(outputBytes); err != nil {
		return nil, err
	}

	if c.ClaimedAtHeight, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return c, nil
}

// Digest 标识一个声明，用作去重/mempool索引键。
func (c *Claim) Digest() hash.Digest {
	return hash.DoubleSHA256(c.Encode())
}
