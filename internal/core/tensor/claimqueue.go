package tensor

import (
	"sync"

	"github.com/ai3chain/node/internal/core/crypto/hash"
)

// ClaimQueue暂存已经通过VerifyClaim校验、等待被打包进下一个区块的声明，
// 与mempool.Pool同一思路：去重存储 + 按到达顺序暴露给出块模板组装，只是
// 这里的"去重键"是任务ID而不是(sender,nonce)，因为一个任务在最终化之前
// 只允许存在一条待打包的声明。
type ClaimQueue struct {
	mu     sync.Mutex
	claims map[hash.Digest]*Claim
	tasks  map[hash.Digest]*Task
	order  []hash.Digest
}

// NewClaimQueue创建一个空的声明暂存队列。
func NewClaimQueue() *ClaimQueue {
	return &ClaimQueue{
		claims: make(map[hash.Digest]*Claim),
		tasks:  make(map[hash.Digest]*Task),
	}
}

// Add把一条已验证的声明及其对应任务加入队列，同一任务ID的声明会被新到达的替换
// （例如同一任务被多个候选者并发声明，最终只应有一条进入下一个模板）。
func (q *ClaimQueue) Add(claim *Claim, task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.claims[claim.TaskID]; !exists {
		q.order = append(q.order, claim.TaskID)
	}
	q.claims[claim.TaskID] = claim
	q.tasks[claim.TaskID] = task
}

// Remove把已经终局化或过期的任务对应的声明移出队列。
func (q *ClaimQueue) Remove(taskID hash.Digest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(taskID)
}

func (q *ClaimQueue) removeLocked(taskID hash.Digest) {
	delete(q.claims, taskID)
	delete(q.tasks, taskID)
	for i, id := range q.order {
		if id == taskID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// ReadyClaims实现miner.ClaimSource：按到达顺序返回最多limit条声明及其对应任务。
func (q *ClaimQueue) ReadyClaims(limit int) ([]*Claim, []*Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.order)
	if limit > 0 && limit < n {
		n = limit
	}
	claims := make([]*Claim, 0, n)
	tasks := make([]*Task, 0, n)
	for i := 0; i < n; i++ {
		id := q.order[i]
		claims = append(claims, q.claims[id])
		tasks = append(tasks, q.tasks[id])
	}
	return claims, tasks
}

// Len返回当前暂存的声明数量。
func (q *ClaimQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
