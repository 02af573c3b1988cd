package p2p

import (
	"testing"

	"github.com/ai3chain/node/internal/core/chain/types"
)

func TestSeenCacheMarksOnlyOnce(t *testing.T) {
	c, err := NewSeenCache(16)
	if err != nil {
		t.Fatalf("创建去重缓存失败: %v", err)
	}
	digest := []byte("some-digest-bytes-000000000000")

	if !c.MarkSeen(digest) {
		t.Fatalf("首次标记应返回true")
	}
	if c.MarkSeen(digest) {
		t.Errorf("第二次标记同一摘要应返回false")
	}
	if !c.Seen(digest) {
		t.Errorf("Seen应报告该摘要已存在")
	}
}

func TestAdmissionWindowContiguousFrontier(t *testing.T) {
	w := NewAdmissionWindow(10)
	w.MarkAdmitted(10)
	w.MarkAdmitted(12)
	w.MarkAdmitted(11)

	if got := w.ContiguousFrontier(); got != 13 {
		t.Errorf("连续前缀 = %d, 期望 13", got)
	}
	missing := w.Missing(15)
	if len(missing) != 2 || missing[0] != 13 || missing[1] != 14 {
		t.Errorf("缺口 = %v, 期望 [13 14]", missing)
	}
}

func TestAdmissionWindowAdvanceDropsOldEntries(t *testing.T) {
	w := NewAdmissionWindow(0)
	w.MarkAdmitted(0)
	w.MarkAdmitted(1)
	w.MarkAdmitted(5)
	w.Advance(2)

	if w.IsAdmitted(0) || w.IsAdmitted(1) {
		t.Errorf("Advance之后基准以前的高度应被丢弃")
	}
	if !w.IsAdmitted(5) {
		t.Errorf("Advance之后基准以后的高度应保留")
	}
}

func TestOutboundQueueEvictsLowPriorityBeforeControl(t *testing.T) {
	q := NewOutboundQueue(2)
	q.Enqueue(&Frame{Type: MsgTx, Payload: []byte("a")})
	q.Enqueue(&Frame{Type: MsgTx, Payload: []byte("b")})
	q.Enqueue(&Frame{Type: MsgPing})

	if q.Len() != 2 {
		t.Fatalf("队列长度 = %d, 期望 2", q.Len())
	}
	first := q.Dequeue()
	if first.Type != MsgTx || string(first.Payload) != "b" {
		t.Errorf("应淘汰最旧的数据面帧，保留新到的控制帧, got %+v", first)
	}
}

func TestOutboundQueueDropsNewControlWhenFullOfControl(t *testing.T) {
	q := NewOutboundQueue(1)
	q.Enqueue(&Frame{Type: MsgPing})
	q.Enqueue(&Frame{Type: MsgPing})

	if q.Len() != 1 {
		t.Errorf("队列长度 = %d, 期望 1", q.Len())
	}
	if q.Dropped() != 1 {
		t.Errorf("应记录一次丢弃")
	}
}

func TestPeerManagerPenalizeBansAtThreshold(t *testing.T) {
	m := NewManager()
	m.Connected("peerA")
	m.Penalize("peerA", MisbehaviorInvalidBlock)
	m.Penalize("peerA", MisbehaviorInvalidBlock)

	if !m.IsBanned("peerA") {
		t.Errorf("累计扣分达到阈值后应被封禁")
	}
}

func TestPeerManagerReputationStartsAtInitial(t *testing.T) {
	m := NewManager()
	if got := m.Reputation("unknown"); got != InitialReputation {
		t.Errorf("未知对端声誉 = %d, 期望 %d", got, InitialReputation)
	}
}

type fakeSink struct {
	admitted []uint64
}

func (f *fakeSink) AdmitBlock(height uint64, block *types.Block) {
	f.admitted = append(f.admitted, height)
}

func TestSyncSessionAdmitsContiguousPrefixOnly(t *testing.T) {
	sink := &fakeSink{}
	s := NewSyncSession(0, sink)

	s.OnBlockReceived(2, &types.Block{})
	if len(sink.admitted) != 0 {
		t.Fatalf("乱序到达不应立即移交: %v", sink.admitted)
	}

	s.OnBlockReceived(0, &types.Block{})
	s.OnBlockReceived(1, &types.Block{})

	if len(sink.admitted) != 3 {
		t.Fatalf("补齐缺口后应一次性移交连续前缀, got %v", sink.admitted)
	}
	for i, h := range sink.admitted {
		if h != uint64(i) {
			t.Errorf("移交顺序 = %v, 期望按高度升序", sink.admitted)
			break
		}
	}
}

type fakeBroadcaster struct {
	sent []string
}

func (f *fakeBroadcaster) Send(peerID string, fr *Frame) { f.sent = append(f.sent, peerID) }

func TestGossipRouterSkipsSenderAndDuplicates(t *testing.T) {
	seen, _ := NewSeenCache(16)
	peers := NewManager()
	bcast := &fakeBroadcaster{}
	router := NewGossipRouter(seen, peers, bcast)

	from := "from"
	a := "a"
	b := "b"
	digest := []byte("digest-bytes-aaaaaaaaaaaaaaaaaa")
	frame := &Frame{Type: MsgTxAnnounce}

	router.Relay(from, digest, frame, []string{from, a, b})
	if len(bcast.sent) != 2 {
		t.Fatalf("应转发给除发送方以外的全部对端, got %v", bcast.sent)
	}

	bcast.sent = nil
	router.Relay(from, digest, frame, []string{from, a, b})
	if len(bcast.sent) != 0 {
		t.Errorf("重复摘要不应再次转发, got %v", bcast.sent)
	}
}

func TestRateLimiterAllowsUpToWindowLimit(t *testing.T) {
	r := NewRateLimiter(2)
	p := "p"

	if !r.Allow(p) || !r.Allow(p) {
		t.Fatalf("窗口内前两条应被放行")
	}
	if r.Allow(p) {
		t.Errorf("超过窗口上限应被拒绝")
	}
	r.ResetWindow()
	if !r.Allow(p) {
		t.Errorf("窗口重置后应重新放行")
	}
}
