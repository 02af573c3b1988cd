package badgerstore

import (
	"testing"

	"github.com/ai3chain/node/internal/core/chain/state"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/platform/errs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Options{Path: dir})
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAccountRoundTrip(t *testing.T) {
	s := openTestStore(t)
	var addr keys.Address
	addr[0] = 0x01

	if err := s.PutAccount(addr, state.Account{Balance: 42, Nonce: 3}); err != nil {
		t.Fatalf("写入账户失败: %v", err)
	}
	got, err := s.GetAccount(addr)
	if err != nil {
		t.Fatalf("读取账户失败: %v", err)
	}
	if got.Balance != 42 || got.Nonce != 3 {
		t.Errorf("账户 = %+v, 期望 {42 3}", got)
	}
}

func TestGetAccountMissingReturnsZeroValue(t *testing.T) {
	s := openTestStore(t)
	var addr keys.Address
	addr[0] = 0x02

	acc, err := s.GetAccount(addr)
	if err != nil {
		t.Fatalf("查询不存在的账户不应报错: %v", err)
	}
	if acc.Balance != 0 || acc.Nonce != 0 {
		t.Errorf("不存在的账户应为零值, got %+v", acc)
	}
}

func TestGetBlockNotFound(t *testing.T) {
	s := openTestStore(t)
	var digest [32]byte
	_, err := s.GetBlock(digest)
	if !errs.Is(err, errs.KindNotFound) {
		t.Errorf("查询不存在的区块应返回NotFound, got %v", err)
	}
}

func TestTipRoundTrip(t *testing.T) {
	s := openTestStore(t)
	var digest [32]byte
	digest[0] = 0xAB

	if err := s.SetTip(digest, 7); err != nil {
		t.Fatalf("设置tip失败: %v", err)
	}
	got, height, err := s.GetTip()
	if err != nil {
		t.Fatalf("读取tip失败: %v", err)
	}
	if got != digest || height != 7 {
		t.Errorf("tip = (%x, %d), 期望 (%x, 7)", got, height, digest)
	}
}

func TestBatchCommitIsAtomic(t *testing.T) {
	s := openTestStore(t)
	var addr1, addr2 keys.Address
	addr1[0], addr2[0] = 0x01, 0x02

	b := s.Batch()
	b.PutAccount(addr1, state.Account{Balance: 10})
	b.PutAccount(addr2, state.Account{Balance: 20})
	b.SetTip([32]byte{0xFF}, 1)
	if err := b.Commit(); err != nil {
		t.Fatalf("提交批次失败: %v", err)
	}

	acc1, _ := s.GetAccount(addr1)
	acc2, _ := s.GetAccount(addr2)
	if acc1.Balance != 10 || acc2.Balance != 20 {
		t.Errorf("批次提交后账户状态不一致: %+v %+v", acc1, acc2)
	}
}
