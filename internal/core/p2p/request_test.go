package p2p

import (
	"testing"
	"time"
)

func TestRequestTrackerResolveMatchesByID(t *testing.T) {
	tr := NewRequestTracker()
	req := tr.NewRequest(RequestHeaders, "peerA")

	if tr.Pending() != 1 {
		t.Fatalf("待响应计数 = %d, 期望 1", tr.Pending())
	}
	resolved, ok := tr.Resolve(req.ID)
	if !ok || resolved.PeerID != "peerA" {
		t.Fatalf("应按关联ID命中原请求, got %+v ok=%v", resolved, ok)
	}
	if tr.Pending() != 0 {
		t.Errorf("命中后应从待响应集合移除")
	}
}

func TestRequestTrackerResolveUnknownIDFails(t *testing.T) {
	tr := NewRequestTracker()
	if _, ok := tr.Resolve("never-issued"); ok {
		t.Errorf("未知关联ID应返回ok=false")
	}
}

func TestRequestTrackerExpireDropsOldRequests(t *testing.T) {
	tr := NewRequestTracker()
	tr.NewRequest(RequestBlock, "peerA")
	time.Sleep(2 * time.Millisecond)
	cutoff := time.Now()
	tr.NewRequest(RequestBlock, "peerB")

	expired := tr.Expire(cutoff)
	if len(expired) != 1 || expired[0].PeerID != "peerA" {
		t.Fatalf("应只清除cutoff之前发出的请求, got %+v", expired)
	}
	if tr.Pending() != 1 {
		t.Errorf("未过期的请求应保留, pending=%d", tr.Pending())
	}
}
