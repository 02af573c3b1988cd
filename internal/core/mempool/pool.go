// Package mempool 实现交易池：去重存储、(sender, nonce)二级索引、
// 按费率排序的打包候选选择，以及内存受限时的淘汰策略。
package mempool

import (
	"container/heap"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/pbnjay/memory"

	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/platform/errs"
	"github.com/ai3chain/node/internal/platform/log"
)

const componentName = "mempool"

// DefaultMemoryFractionDivisor 决定交易池默认字节上限相对系统总内存的比例：
// 系统总内存的1/64，与矿工/存储等其它子系统按比例分享内存预算。
const DefaultMemoryFractionDivisor = 64

// senderNonceKey 是(sender,nonce)二级索引的键，强制每个账号每个nonce至多一笔待处理交易。
type senderNonceKey struct {
	Sender keys.Address
	Nonce  uint64
}

// entry 是池内一笔交易及其排序/记账元数据。
type entry struct {
	tx         *types.Transaction
	digest     hash.Digest
	size       int
	receivedAt time.Time
	index      int // heap内部索引
}

// feeDensity 以每字节费用衡量打包优先级，避免大交易靠绝对费用碾压小交易。
func (e *entry) feeDensity() float64 {
	if e.size == 0 {
		return 0
	}
	return float64(e.tx.Fee) / float64(e.size)
}

// priorityQueue 按费率密度从高到低排序的堆（container/heap语义：Less决定堆顶）。
type priorityQueue []*entry

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].feeDensity() > pq[j].feeDensity() }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *priorityQueue) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*pq)
	*pq = append(*pq, e)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return e
}

// Pool 是交易池的内存实现：一笔交易同时存在于digest索引、(sender,nonce)索引和
// 费率优先队列中，三者须始终保持一致（由mu统一保护）。
type Pool struct {
	mu sync.RWMutex

	byDigest     map[hash.Digest]*entry
	bySenderNonce map[senderNonceKey]*entry
	queue        priorityQueue

	byteLimit int
	byteUsage int

	sigCache *bigcache.BigCache // 已验证签名摘要缓存，避免重复ECDSA验证
	logger   log.Logger
}

// Options 配置交易池的容量与行为。
type Options struct {
	ByteLimit int // 0表示按系统内存自动计算（总内存的1/DefaultMemoryFractionDivisor）
	Logger    log.Logger
}

// New 创建一个交易池。
func New(opts Options) (*Pool, error) {
	limit := opts.ByteLimit
	if limit <= 0 {
		limit = int(memory.TotalMemory() / DefaultMemoryFractionDivisor)
		if limit <= 0 {
			limit = 64 << 20 // 兜底64MiB，适配内存探测失败的容器环境
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	cacheConfig := bigcache.DefaultConfig(10 * time.Minute)
	cacheConfig.HardMaxCacheSize = 64 // MB
	cache, err := bigcache.New(nil, cacheConfig)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, componentName, "failed to initialize signature cache", err)
	}

	return &Pool{
		byDigest:      make(map[hash.Digest]*entry),
		bySenderNonce: make(map[senderNonceKey]*entry),
		queue:         make(priorityQueue, 0),
		byteLimit:     limit,
		sigCache:      cache,
		logger:        logger,
	}, nil
}

// MarkSignatureVerified 记录一笔交易已通过签名验证，供下次遇到同一摘要时跳过重复验签。
func (p *Pool) MarkSignatureVerified(digest hash.Digest) {
	_ = p.sigCache.Set(digest.String(), []byte{1})
}

// IsSignatureVerified 查询某交易摘要是否已验证过签名。
func (p *Pool) IsSignatureVerified(digest hash.Digest) bool {
	_, err := p.sigCache.Get(digest.String())
	return err == nil
}

// Add 将一笔交易加入池中。若同一(sender,nonce)已有交易在池中，仅当新交易费率更高时才替换
// （replace-by-fee），否则拒绝——spec未强制要求RBF，这里选择支持它以避免账户被低费交易卡住nonce。
func (p *Pool) Add(tx *types.Transaction) error {
	digest := tx.Digest()
	size := len(tx.Encode())

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byDigest[digest]; exists {
		return errs.New(errs.KindStale, componentName, "transaction already in pool")
	}

	key := senderNonceKey{Sender: tx.Sender, Nonce: tx.Nonce}
	newEntry := &entry{tx: tx, digest: digest, size: size, receivedAt: timeNow()}

	if existing, ok := p.bySenderNonce[key]; ok {
		if newEntry.feeDensity() <= existing.feeDensity() {
			return errs.New(errs.KindStale, componentName, "existing transaction for sender/nonce has equal or higher fee")
		}
		p.removeEntryLocked(existing)
	}

	if p.byteUsage+size > p.byteLimit {
		if !p.evictLocked(size) {
			return errs.New(errs.KindCapacity, componentName, "pool is full and no lower-priority transaction could be evicted")
		}
	}

	p.byDigest[digest] = newEntry
	p.bySenderNonce[key] = newEntry
	heap.Push(&p.queue, newEntry)
	p.byteUsage += size
	return nil
}

// evictLocked 淘汰费率密度最低的交易直到释放出needed字节，失败（无法释放足够空间）返回false。
// 调用方必须持有p.mu的写锁。
func (p *Pool) evictLocked(needed int) bool {
	freed := 0
	for freed < needed && p.queue.Len() > 0 {
		lowest := p.lowestPriorityLocked()
		if lowest == nil {
			break
		}
		freed += lowest.size
		p.removeEntryLocked(lowest)
	}
	return freed >= needed
}

// lowestPriorityLocked 返回队列中费率密度最低的条目，调用方必须持有锁。
func (p *Pool) lowestPriorityLocked() *entry {
	if len(p.queue) == 0 {
		return nil
	}
	lowest := p.queue[0]
	for _, e := range p.queue {
		if e.feeDensity() < lowest.feeDensity() {
			lowest = e
		}
	}
	return lowest
}

// removeEntryLocked 从三个索引中移除一个条目，调用方必须持有锁。
func (p *Pool) removeEntryLocked(e *entry) {
	delete(p.byDigest, e.digest)
	delete(p.bySenderNonce, senderNonceKey{Sender: e.tx.Sender, Nonce: e.tx.Nonce})
	if e.index >= 0 && e.index < len(p.queue) && p.queue[e.index] == e {
		heap.Remove(&p.queue, e.index)
	}
	p.byteUsage -= e.size
}

// Resubmit实现state.MempoolRescuer：重组把一笔交易所在区块回滚后，把它重新
// 投回交易池等待被打包；若它已经过期或与池中更高费率的交易冲突而被拒绝，
// 静默丢弃——对重组救援而言这不是一个需要向上传播的错误。
func (p *Pool) Resubmit(tx *types.Transaction) {
	_ = p.Add(tx)
}

// Remove 按摘要移除一笔交易（例如区块确认后或手动撤回）。
func (p *Pool) Remove(digest hash.Digest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.byDigest[digest]; ok {
		p.removeEntryLocked(e)
	}
}

// Get 按摘要查询一笔交易。
func (p *Pool) Get(digest hash.Digest) (*types.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byDigest[digest]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// Len 返回池中交易数。
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byDigest)
}

// SelectForBlock 按费率密度从高到低挑选交易用于出块模板，直到达到maxBytes或maxCount，
// 对同一发送方保持nonce升序（区块内应用顺序要求，spec 第4.2节）。
func (p *Pool) SelectForBlock(maxBytes, maxCount int) []*types.Transaction {
	p.mu.RLock()
	candidates := make([]*entry, len(p.queue))
	copy(candidates, p.queue)
	p.mu.RUnlock()

	sortByFeeDensityDesc(candidates)

	bySender := make(map[keys.Address][]*types.Transaction)
	order := make([]keys.Address, 0)
	totalBytes := 0
	totalCount := 0

	for _, e := range candidates {
		if totalCount >= maxCount || totalBytes+e.size > maxBytes {
			continue
		}
		if _, seen := bySender[e.tx.Sender]; !seen {
			order = append(order, e.tx.Sender)
		}
		bySender[e.tx.Sender] = append(bySender[e.tx.Sender], e.tx)
		totalBytes += e.size
		totalCount++
	}

	selected := make([]*types.Transaction, 0, totalCount)
	for _, sender := range order {
		txs := bySender[sender]
		sortByNonceAsc(txs)
		selected = append(selected, txs...)
	}
	return selected
}

func sortByFeeDensityDesc(entries []*entry) {
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].feeDensity() < entries[j].feeDensity() {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

func sortByNonceAsc(txs []*types.Transaction) {
	for i := 1; i < len(txs); i++ {
		j := i
		for j > 0 && txs[j-1].Nonce > txs[j].Nonce {
			txs[j-1], txs[j] = txs[j], txs[j-1]
			j--
		}
	}
}

func timeNow() time.Time { return time.Now() }
