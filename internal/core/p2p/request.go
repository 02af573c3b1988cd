package p2p

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestKind区分一次待响应出站请求的种类，仅用于诊断日志与按类型计超时分。
type RequestKind int

const (
	RequestHeaders RequestKind = iota
	RequestBlock
	RequestTask
)

// PendingRequest记录一次尚未得到响应的出站请求。
type PendingRequest struct {
	ID     string
	Kind   RequestKind
	PeerID string
	SentAt time.Time
}

// RequestTracker用uuid关联出站请求与其响应：headers_request与block_request可能
// 并发发往同一对端，响应到达顺序不保证与发出顺序一致，不能靠"先发先回"匹配。
type RequestTracker struct {
	mu      sync.Mutex
	pending map[string]*PendingRequest
}

// NewRequestTracker创建一个空的请求跟踪器。
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{pending: make(map[string]*PendingRequest)}
}

// NewRequest分配一个新的关联ID并登记为待响应状态，调用方用返回值的ID填充
// 对应请求负载的CorrelationID字段后再发出。
func (t *RequestTracker) NewRequest(kind RequestKind, peerID string) *PendingRequest {
	req := &PendingRequest{ID: uuid.NewString(), Kind: kind, PeerID: peerID, SentAt: time.Now()}
	t.mu.Lock()
	t.pending[req.ID] = req
	t.mu.Unlock()
	return req
}

// Resolve在收到一个携带关联ID的响应时调用。未知的关联ID（重复响应或已超时
// 被清理的请求）返回ok=false，调用方应把这种响应当作协议违规处理。
func (t *RequestTracker) Resolve(id string) (*PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return req, ok
}

// Expire清除所有发出时间早于deadline的待响应请求，返回它们供调用方对
// 对应对端记一次超时型失陪分。
func (t *RequestTracker) Expire(deadline time.Time) []*PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []*PendingRequest
	for id, req := range t.pending {
		if req.SentAt.Before(deadline) {
			expired = append(expired, req)
			delete(t.pending, id)
		}
	}
	return expired
}

// Pending返回当前待响应请求的数量。
func (t *RequestTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
