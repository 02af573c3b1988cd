package types

import (
	"github.com/ai3chain/node/internal/core/codec"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/merkle"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/core/tensor"
)

// MaxTransactionsPerBlock 是区块体交易数量的协议上限（简单的拥塞/拒量保护）。
const MaxTransactionsPerBlock = 20000

// MaxClaimsPerBlock 对应spec 4.3节的协议常量K：一个区块最多可携带的任务证明数。
const MaxClaimsPerBlock = 32

// BlockHeader 对应 spec 第3节的区块头结构。
type BlockHeader struct {
	ParentDigest       hash.Digest
	MerkleRoot         hash.Digest // merkle_root_of_transactions
	TaskBindingDigest  hash.Digest
	Timestamp          uint64 // 秒
	DifficultyTarget   pow.CompactDifficulty
	Nonce              uint64
	Height             uint64 // 派生值，为索引持久化
}

// preimage 编码头部的规范字节（不含Height，Height是派生的索引字段，不参与摘要）。
func (h *BlockHeader) preimage() []byte {
	w := codec.NewWriter(32*3 + 8 + 4 + 8)
	w.PutFixedBytes(h.ParentDigest.Bytes())
	w.PutFixedBytes(h.MerkleRoot.Bytes())
	w.PutFixedBytes(h.TaskBindingDigest.Bytes())
	w.PutUint64LE(h.Timestamp)
	w.PutUint32LE(uint32(h.DifficultyTarget))
	w.PutUint64LE(h.Nonce)
	return w.Bytes()
}

// Digest 是区块头的身份摘要，也是挖矿谓词比较的输入。
func (h *BlockHeader) Digest() hash.Digest {
	return hash.DoubleSHA256(h.preimage())
}

// Encode 返回头部的规范编码。
func (h *BlockHeader) Encode() []byte { return h.preimage() }

// DecodeBlockHeader 从规范编码解码区块头；Height不在编码中，需调用方按索引单独设置。
func DecodeBlockHeader(b []byte) (*BlockHeader, error) {
	r := codec.NewReader(b, 0)
	h := &BlockHeader{}
	var err error

	parentBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	h.ParentDigest, _ = hash.FromBytes(parentBytes)

	merkleBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	h.MerkleRoot, _ = hash.FromBytes(merkleBytes)

	taskBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	h.TaskBindingDigest, _ = hash.FromBytes(taskBytes)

	if h.Timestamp, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	diff, err := r.Uint32LE()
	if err != nil {
		return nil, err
	}
	h.DifficultyTarget = pow.CompactDifficulty(diff)

	if h.Nonce, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return h, nil
}

// Block 对应 spec 第3节的区块结构：头部 + 有序交易列表（index 0为coinbase） +
// 本区块提交的任务声明列表（绑定进头部的task_binding_digest）。
type Block struct {
	Header       *BlockHeader
	Transactions []*Transaction
	Claims       []*tensor.Claim
}

// ComputeTaskBindingDigest 基于当前声明列表计算task_binding_digest。
func (b *Block) ComputeTaskBindingDigest() hash.Digest {
	return tensor.ComputeTaskBindingDigest(b.Claims)
}

// Coinbase 返回索引0处的coinbase交易，调用方应在校验阶段确保它存在。
func (b *Block) Coinbase() *Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}

// ComputeMerkleRoot 基于当前交易列表计算merkle_root_of_transactions。
func (b *Block) ComputeMerkleRoot() hash.Digest {
	leaves := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		leaves[i] = tx.Encode()
	}
	return merkle.Root(leaves)
}

// Digest 是区块的摘要，等于其头部摘要（区块体通过merkle根间接承诺在头部中）。
func (b *Block) Digest() hash.Digest { return b.Header.Digest() }

// Encode 编码整个区块：头部 + varint交易计数 + 逐条交易 + varint声明计数 + 逐条声明。
func (b *Block) Encode() []byte {
	w := codec.NewWriter(256 + len(b.Transactions)*256 + len(b.Claims)*256)
	w.PutFixedBytes(b.Header.Encode())
	w.PutUvarint(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		w.PutBytes(tx.Encode())
	}
	w.PutUvarint(uint64(len(b.Claims)))
	for _, c := range b.Claims {
		w.PutBytes(c.Encode())
	}
	return w.Bytes()
}

// DecodeBlock 解码一个完整区块。
func DecodeBlock(raw []byte) (*Block, error) {
	headerLen := 32*3 + 8 + 4 + 8
	r := codec.NewReader(raw, 0)
	headerBytes, err := r.FixedBytes(headerLen)
	if err != nil {
		return nil, err
	}
	header, err := DecodeBlockHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	count, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if count > MaxTransactionsPerBlock {
		return nil, codec.ErrOversize
	}

	txs := make([]*Transaction, 0, count)
	for i := uint64(0); i < count; i++ {
		txBytes, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransaction(txBytes)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	claimCount, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if claimCount > MaxClaimsPerBlock {
		return nil, codec.ErrOversize
	}
	claims := make([]*tensor.Claim, 0, claimCount)
	for i := uint64(0); i < claimCount; i++ {
		claimBytes, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		claim, err := tensor.DecodeClaim(claimBytes)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}

	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return &Block{Header: header, Transactions: txs, Claims: claims}, nil
}
