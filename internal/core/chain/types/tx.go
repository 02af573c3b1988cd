// Package types 定义区块链核心的线上数据类型：交易、区块头、区块，
// 以及它们的规范编码与内容摘要（spec 第3、第6节）。
package types

import (
	"github.com/ai3chain/node/internal/core/codec"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
)

// PayloadKind 标记交易负载的解释方式（spec 第3节，可扩展的标签枚举）。
type PayloadKind byte

const (
	PayloadPlainTransfer PayloadKind = 0
	PayloadTaskSubmit    PayloadKind = 1
	PayloadTaskClaim     PayloadKind = 2
	// 200以上预留给外部模块解释的负载种类（如代币/合约扩展），核心只透传不解释。
	PayloadReservedExternalBase PayloadKind = 200
)

// MaxPayloadBytes 是负载字节数的协议上限，防止畸形交易膨胀存储。
const MaxPayloadBytes = 1 << 16

// MaxMemoBytes 限制明文转账memo子字段的长度（纯UX层面，核心不解释内容）。
const MaxMemoBytes = 256

// Transaction 对应 spec 第3节的交易结构。
type Transaction struct {
	Sender      keys.Address
	Recipient   keys.Address
	Amount      uint64
	Fee         uint64
	Nonce       uint64
	PayloadKind PayloadKind
	Payload     []byte
	SenderPub   []byte // 压缩公钥，33字节；用于核对发送方地址并做非可恢复的ECDSA验证
	Signature   []byte // 紧凑64字节
}

// signedPreimage 编码所有在签名之前声明的字段，是签名和身份摘要的共同输入。
func (tx *Transaction) signedPreimage() []byte {
	w := codec.NewWriter(128 + len(tx.Payload))
	w.PutFixedBytes(tx.Sender.Bytes())
	w.PutFixedBytes(tx.Recipient.Bytes())
	w.PutUint64LE(tx.Amount)
	w.PutUint64LE(tx.Fee)
	w.PutUint64LE(tx.Nonce)
	w.PutByte(byte(tx.PayloadKind))
	w.PutBytes(tx.Payload)
	w.PutBytes(tx.SenderPub)
	return w.Bytes()
}

// Digest 是交易的内容摘要（身份），覆盖签名之前的全部字段。
func (tx *Transaction) Digest() hash.Digest {
	return hash.DoubleSHA256(tx.signedPreimage())
}

// SigningDigest 是待签名的摘要，与Digest相同输入但语义上独立，
// 便于未来若签名覆盖范围与身份摘要分叉时两者各自演进。
func (tx *Transaction) SigningDigest() hash.Digest {
	return tx.Digest()
}

// Encode 生成交易的规范字节编码（含签名，用于落盘和线上传输）。
func (tx *Transaction) Encode() []byte {
	w := codec.NewWriter(192 + len(tx.Payload))
	w.PutFixedBytes(tx.Sender.Bytes())
	w.PutFixedBytes(tx.Recipient.Bytes())
	w.PutUint64LE(tx.Amount)
	w.PutUint64LE(tx.Fee)
	w.PutUint64LE(tx.Nonce)
	w.PutByte(byte(tx.PayloadKind))
	w.PutBytes(tx.Payload)
	w.PutBytes(tx.SenderPub)
	w.PutFixedBytes(tx.Signature)
	return w.Bytes()
}

// DecodeTransaction 解码一笔交易，对声明长度设有协议上限（codec.ErrOversize），
// 格式错误统一归类为Malformed（由调用方据此分类，而不是在这里耦合errs包）。
func DecodeTransaction(b []byte) (*Transaction, error) {
	r := codec.NewReader(b, MaxPayloadBytes)
	tx := &Transaction{}

	senderBytes, err := r.FixedBytes(keys.AddressSize)
	if err != nil {
		return nil, err
	}
	tx.Sender, _ = keys.AddressFromBytes(senderBytes)

	recipientBytes, err := r.FixedBytes(keys.AddressSize)
	if err != nil {
		return nil, err
	}
	tx.Recipient, _ = keys.AddressFromBytes(recipientBytes)

	if tx.Amount, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	if tx.Fee, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	if tx.Nonce, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	kindByte, err := r.Byte()
	if err != nil {
		return nil, err
	}
	tx.PayloadKind = PayloadKind(kindByte)

	if tx.Payload, err = r.Bytes(); err != nil {
		return nil, err
	}
	if tx.SenderPub, err = r.Bytes(); err != nil {
		return nil, err
	}
	if tx.Signature, err = r.FixedBytes(64); err != nil {
		return nil, err
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return tx, nil
}
