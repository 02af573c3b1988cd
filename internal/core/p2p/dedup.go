package p2p

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/dchest/siphash"
)

// DefaultDedupCacheSize 是去重缓存记住的最近消息摘要数量上限。
const DefaultDedupCacheSize = 50000

// dedupSipKey0/dedupSipKey1 是siphash的固定密钥对：去重缓存只需要一个
// 抗碰撞的快速索引，不需要抗密钥推断，因此密钥硬编码即可（与区分不同节点的
// 身份无关，每个节点各自维护自己的一份缓存）。
const (
	dedupSipKey0 = 0x12345678
	dedupSipKey1 = 0x87654321
)

// SeenCache 记录本节点最近已经处理过的gossip对象（区块、交易、声明宣告），
// 用于抑制重复广播造成的风暴。容量达到上限后按最久未使用淘汰。
type SeenCache struct {
	cache *lru.Cache
}

// NewSeenCache 创建一个容量为size的去重缓存。
func NewSeenCache(size int) (*SeenCache, error) {
	if size <= 0 {
		size = DefaultDedupCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &SeenCache{cache: c}, nil
}

// key 把任意长度的摘要折算成一个siphash索引，避免把完整32字节摘要
// 都塞进LRU的比较/哈希路径。
func key(digest []byte) uint64 {
	return siphash.Hash(dedupSipKey0, dedupSipKey1, digest)
}

// MarkSeen 把一个摘要标记为已处理，返回这是否是第一次标记（true表示此前没见过，false表示已经见过）。
func (s *SeenCache) MarkSeen(digest []byte) bool {
	k := key(digest)
	if s.cache.Contains(k) {
		return false
	}
	s.cache.Add(k, struct{}{})
	return true
}

// Seen 检查一个摘要是否已经被处理过，不修改缓存状态。
func (s *SeenCache) Seen(digest []byte) bool {
	return s.cache.Contains(key(digest))
}

// Len 返回当前缓存的条目数，供指标导出使用。
func (s *SeenCache) Len() int {
	return s.cache.Len()
}
