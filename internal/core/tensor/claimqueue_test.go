package tensor

import (
	"testing"

	"github.com/ai3chain/node/internal/core/crypto/hash"
)

func TestClaimQueueReadyClaimsOrderAndLimit(t *testing.T) {
	q := NewClaimQueue()
	var id1, id2, id3 hash.Digest
	id1[0], id2[0], id3[0] = 1, 2, 3

	q.Add(&Claim{TaskID: id1}, &Task{TaskID: id1})
	q.Add(&Claim{TaskID: id2}, &Task{TaskID: id2})
	q.Add(&Claim{TaskID: id3}, &Task{TaskID: id3})

	claims, tasks := q.ReadyClaims(2)
	if len(claims) != 2 || len(tasks) != 2 {
		t.Fatalf("应按limit截断, got %d claims", len(claims))
	}
	if claims[0].TaskID != id1 || claims[1].TaskID != id2 {
		t.Errorf("应按到达顺序返回, got %+v", claims)
	}
}

func TestClaimQueueAddReplacesSameTask(t *testing.T) {
	q := NewClaimQueue()
	var id hash.Digest
	id[0] = 9

	first := &Claim{TaskID: id, ClaimedAtHeight: 1}
	second := &Claim{TaskID: id, ClaimedAtHeight: 2}
	q.Add(first, &Task{TaskID: id})
	q.Add(second, &Task{TaskID: id})

	if q.Len() != 1 {
		t.Fatalf("同一任务不应产生两条记录, len=%d", q.Len())
	}
	claims, _ := q.ReadyClaims(10)
	if claims[0].ClaimedAtHeight != 2 {
		t.Errorf("应保留最新到达的声明")
	}
}

func TestClaimQueueRemove(t *testing.T) {
	q := NewClaimQueue()
	var id hash.Digest
	id[0] = 5
	q.Add(&Claim{TaskID: id}, &Task{TaskID: id})
	q.Remove(id)
	if q.Len() != 0 {
		t.Errorf("移除后队列应为空")
	}
}
