package orchestrator

import (
	"testing"

	"github.com/ai3chain/node/internal/core/chain/types"
)

func TestStoreChainReaderFallsBackToStoreOnCacheMiss(t *testing.T) {
	store := newMemStore()
	header := &types.BlockHeader{Height: 7}
	block := &types.Block{Header: header, Transactions: []*types.Transaction{{}}}
	if err := store.PutBlock(block); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	reader, err := NewStoreChainReader(store)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	got, err := reader.HeaderByDigest(header.Digest())
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if got.Height != 7 {
		t.Errorf("Height = %d, 期望 7", got.Height)
	}

	height, err := reader.HeightOf(header.Digest())
	if err != nil {
		t.Fatalf("HeightOf失败: %v", err)
	}
	if height != 7 {
		t.Errorf("HeightOf = %d, 期望 7", height)
	}
}

func TestStoreChainReaderObserveAvoidsStoreRoundTrip(t *testing.T) {
	store := newMemStore()
	reader, err := NewStoreChainReader(store)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	header := &types.BlockHeader{Height: 3}
	reader.Observe(header)

	// 故意不把区块写入store：命中缓存时不应该触碰底层Store。
	got, err := reader.HeaderByDigest(header.Digest())
	if err != nil {
		t.Fatalf("缓存命中应直接返回: %v", err)
	}
	if got.Height != 3 {
		t.Errorf("Height = %d, 期望 3", got.Height)
	}
}

func TestStoreChainReaderImplementsHeaderSource(t *testing.T) {
	store := newMemStore()
	header := &types.BlockHeader{Height: 5}
	if err := store.PutHeaderAtHeight(5, header); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	store.tipHash = header.Digest()
	store.tipHeight = 5

	reader, err := NewStoreChainReader(store)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if reader.TipHeight() != 5 {
		t.Errorf("TipHeight = %d, 期望 5", reader.TipHeight())
	}
	got, err := reader.HeaderAtHeight(5)
	if err != nil {
		t.Fatalf("HeaderAtHeight失败: %v", err)
	}
	if got.Height != 5 {
		t.Errorf("HeaderAtHeight().Height = %d, 期望 5", got.Height)
	}
}
