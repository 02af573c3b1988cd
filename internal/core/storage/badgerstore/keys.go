// Package badgerstore 基于BadgerDB实现状态机所需的持久化存储（spec 第5节）。
// 键空间按列族前缀划分，每个前缀对应一类独立编号的记录，便于范围扫描与
// 避免不同记录类型之间发生键冲突。
package badgerstore

import (
	"encoding/binary"

	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
)

// 列族前缀：单字节+斜杠，保持键在十六进制/日志输出中可读。
var (
	prefixBlock        = []byte("B/") // 区块摘要 -> 编码后的区块
	prefixHeaderHeight = []byte("H/") // 高度 -> 区块头
	prefixTask         = []byte("T/") // 任务ID -> 编码后的任务
	prefixState        = []byte("S/") // 杂项链状态（如tip）
	prefixAccount      = []byte("K/") // 地址 -> 账户记录（余额+nonce）
	prefixNonceIndex   = []byte("N/") // 保留给(sender,nonce)辅助索引，目前由内存mempool承担
	prefixAddrBook     = []byte("A/") // P2P节点地址簿持久化（addrbook.go）
	prefixCheckpoint   = []byte("M/") // 检查点元数据
)

var keyTip = append(append([]byte{}, prefixState...), []byte("tip")...)

func blockKey(digest hash.Digest) []byte {
	return append(append([]byte{}, prefixBlock...), digest.Bytes()...)
}

func headerHeightKey(height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height) // 大端保证前缀扫描按高度自然排序
	return append(append([]byte{}, prefixHeaderHeight...), buf...)
}

func taskKey(taskID hash.Digest) []byte {
	return append(append([]byte{}, prefixTask...), taskID.Bytes()...)
}

func accountKey(addr keys.Address) []byte {
	return append(append([]byte{}, prefixAccount...), addr.Bytes()...)
}

func checkpointKey(height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return append(append([]byte{}, prefixCheckpoint...), buf...)
}
