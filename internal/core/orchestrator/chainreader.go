package orchestrator

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/ai3chain/node/internal/core/chain/state"
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
)

// DefaultHeaderCacheSize是StoreChainReader内存头部缓存的条目上限，超出后
// 按最久未使用淘汰——对应state.ChainReader接口注释里"实现内存里的头部缓存
// 以避免重复打开存储事务"的要求。
const DefaultHeaderCacheSize = 4096

// StoreChainReader用一个LRU缓存包住state.Store，把ChainReader接口所需的
// "摘要->区块头"与"摘要->高度"查询委托给缓存未命中时的一次GetBlock调用，
// 是重组路径（FindCommonAncestor/BuildReorgPlan）实际使用的实现。
type StoreChainReader struct {
	store state.Store
	cache *lru.Cache
}

// NewStoreChainReader创建一个包住store的ChainReader。
func NewStoreChainReader(store state.Store) (*StoreChainReader, error) {
	c, err := lru.New(DefaultHeaderCacheSize)
	if err != nil {
		return nil, err
	}
	return &StoreChainReader{store: store, cache: c}, nil
}

// Observe把一个刚被应用或刚收到的区块头记入缓存，供后续HeaderByDigest/HeightOf
// 命中而不必回存储查一次——在processor每次成功ApplyBlock后调用。
func (r *StoreChainReader) Observe(header *types.BlockHeader) {
	r.cache.Add(header.Digest(), header)
}

// HeaderByDigest实现state.ChainReader。
func (r *StoreChainReader) HeaderByDigest(digest hash.Digest) (*types.BlockHeader, error) {
	if v, ok := r.cache.Get(digest); ok {
		return v.(*types.BlockHeader), nil
	}
	block, err := r.store.GetBlock(digest)
	if err != nil {
		return nil, err
	}
	r.cache.Add(digest, block.Header)
	return block.Header, nil
}

// HeightOf实现state.ChainReader。
func (r *StoreChainReader) HeightOf(digest hash.Digest) (uint64, error) {
	header, err := r.HeaderByDigest(digest)
	if err != nil {
		return 0, err
	}
	return header.Height, nil
}

// TipHeight与HeaderAtHeight实现p2p.HeaderSource，供BuildLocator直接复用
// 同一个StoreChainReader，不需要再包一层适配器。
func (r *StoreChainReader) TipHeight() uint64 {
	_, height, err := r.store.GetTip()
	if err != nil {
		return 0
	}
	return height
}

func (r *StoreChainReader) HeaderAtHeight(height uint64) (*types.BlockHeader, error) {
	return r.store.GetHeaderByHeight(height)
}
