package mempool

import (
	"testing"

	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/keys"
)

func makeTx(t *testing.T, sender byte, nonce, fee uint64) *types.Transaction {
	t.Helper()
	var addr keys.Address
	addr[0] = sender
	return &types.Transaction{
		Sender:    addr,
		Recipient: keys.Address{},
		Amount:    1,
		Fee:       fee,
		Nonce:     nonce,
		Signature: make([]byte, 64),
	}
}

func TestPoolAddAndGet(t *testing.T) {
	pool, err := New(Options{ByteLimit: 1 << 20})
	if err != nil {
		t.Fatalf("创建交易池失败: %v", err)
	}
	tx := makeTx(t, 1, 0, 100)
	if err := pool.Add(tx); err != nil {
		t.Fatalf("添加交易失败: %v", err)
	}
	if pool.Len() != 1 {
		t.Errorf("池大小 = %d, 期望 1", pool.Len())
	}
	got, ok := pool.Get(tx.Digest())
	if !ok || got.Nonce != tx.Nonce {
		t.Errorf("按摘要查询交易失败")
	}
}

func TestPoolRejectsDuplicateLowerFeeSameNonce(t *testing.T) {
	pool, err := New(Options{ByteLimit: 1 << 20})
	if err != nil {
		t.Fatalf("创建交易池失败: %v", err)
	}
	first := makeTx(t, 1, 0, 200)
	second := makeTx(t, 1, 0, 50)
	second.Amount = 2 // 避免与first产生相同摘要

	if err := pool.Add(first); err != nil {
		t.Fatalf("添加first失败: %v", err)
	}
	if err := pool.Add(second); err == nil {
		t.Errorf("同一(sender,nonce)的低费交易应被拒绝")
	}
	if pool.Len() != 1 {
		t.Errorf("池大小 = %d, 期望 1", pool.Len())
	}
}

func TestPoolReplaceByFeeSameNonce(t *testing.T) {
	pool, err := New(Options{ByteLimit: 1 << 20})
	if err != nil {
		t.Fatalf("创建交易池失败: %v", err)
	}
	low := makeTx(t, 1, 0, 50)
	high := makeTx(t, 1, 0, 200)
	high.Amount = 2

	if err := pool.Add(low); err != nil {
		t.Fatalf("添加低费交易失败: %v", err)
	}
	if err := pool.Add(high); err != nil {
		t.Fatalf("高费交易应替换成功: %v", err)
	}
	if pool.Len() != 1 {
		t.Errorf("池大小 = %d, 期望 1", pool.Len())
	}
	if _, ok := pool.Get(low.Digest()); ok {
		t.Errorf("被替换的低费交易仍存在于池中")
	}
}

func TestPoolSelectForBlockOrdersBySenderNonce(t *testing.T) {
	pool, err := New(Options{ByteLimit: 1 << 20})
	if err != nil {
		t.Fatalf("创建交易池失败: %v", err)
	}
	tx1 := makeTx(t, 1, 1, 10)
	tx0 := makeTx(t, 1, 0, 10)
	tx0.Amount = 2

	if err := pool.Add(tx1); err != nil {
		t.Fatalf("添加tx1失败: %v", err)
	}
	if err := pool.Add(tx0); err != nil {
		t.Fatalf("添加tx0失败: %v", err)
	}

	selected := pool.SelectForBlock(1<<20, 100)
	if len(selected) != 2 {
		t.Fatalf("选中交易数 = %d, 期望 2", len(selected))
	}
	if selected[0].Nonce != 0 || selected[1].Nonce != 1 {
		t.Errorf("同一发送方的交易未按nonce升序排列")
	}
}

func TestPoolEvictsLowestFeeWhenFull(t *testing.T) {
	tx := makeTx(t, 1, 0, 1)
	size := len(tx.Encode())
	pool, err := New(Options{ByteLimit: size + 10})
	if err != nil {
		t.Fatalf("创建交易池失败: %v", err)
	}

	low := makeTx(t, 1, 0, 1)
	high := makeTx(t, 2, 0, 1000)
	high.Amount = 2

	if err := pool.Add(low); err != nil {
		t.Fatalf("添加低费交易失败: %v", err)
	}
	if err := pool.Add(high); err != nil {
		t.Fatalf("高费交易应触发淘汰并成功加入: %v", err)
	}
	if _, ok := pool.Get(low.Digest()); ok {
		t.Errorf("低费交易应已被淘汰")
	}
	if _, ok := pool.Get(high.Digest()); !ok {
		t.Errorf("高费交易应保留在池中")
	}
}
