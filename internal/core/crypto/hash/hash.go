// Package hash 提供节点内容寻址使用的哈希原语。
//
// 区块、交易、任务和证明的摘要统一使用 DoubleSHA256（与比特币式链一致，
// 抵抗长度扩展攻击的同时保持实现简单）；地址派生则使用 RIPEMD160(SHA256(pubkey))，
// 与下游 keys 包保持一致。
package hash

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/spaolacci/murmur3"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // 协议要求兼容比特币式地址派生
	"golang.org/x/crypto/sha3"
)

// Size 是协议摘要的字节长度。
const Size = 32

// Digest 是一个32字节的内容摘要。
type Digest [Size]byte

// IsZero 判断摘要是否为全零（用于表示"无父区块"等哨兵值）。
func (d Digest) IsZero() bool { return d == Digest{} }

// Bytes 返回摘要的字节切片视图。
func (d Digest) Bytes() []byte { return d[:] }

// String 返回十六进制表示，主要用于日志。
func (d Digest) String() string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, Size*2)
	for i, b := range d {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

// FromBytes 将任意长度字节拷贝为Digest，要求恰好Size字节。
func FromBytes(b []byte) (Digest, bool) {
	var d Digest
	if len(b) != Size {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// SHA256 计算单次SHA-256。
func SHA256(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(sum)
}

// DoubleSHA256 计算双重SHA-256，是区块与交易摘要使用的规范哈希函数。
func DoubleSHA256(data []byte) Digest {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return Digest(second)
}

// Keccak256 计算Keccak-256，作为按网络配置可选的替代摘要算法。
func Keccak256(data []byte) Digest {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// RIPEMD160 计算RIPEMD-160，用于地址派生的第二步哈希。
func RIPEMD160(data []byte) []byte {
	h := ripemd160.New() //nolint:staticcheck
	h.Write(data)
	return h.Sum(nil)
}

// Murmur3Checksum32 计算一个非加密校验和，用作存储记录的廉价损坏探测，
// 在触及昂贵的双SHA256一致性检查之前先行拦截显然被截断或污染的记录。
func Murmur3Checksum32(data []byte) uint32 {
	return murmur3.Sum32(data)
}

// ConstantTimeEqual 在常量时间内比较两个摘要，避免基于时序差异的旁路信息泄露。
func ConstantTimeEqual(a, b Digest) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// Less 按字节序比较两个摘要，供累计工作量打平时的确定性分叉选择打破平局使用
// （spec 第4.5节"最低区块头摘要"）。不要求常量时间——这条路径只在比较公开的
// 区块头摘要，不涉及任何需要保密的数据。
func Less(a, b Digest) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
