package p2p

// Broadcaster把一次gossip广播抽象为"把一帧发给一个对端"，由Host.Send实现，
// 测试里可以换成记录调用的假实现。
type Broadcaster interface {
	Send(peerID string, f *Frame)
}

// GossipRouter在收到一个宣告类消息（区块/交易/声明）时，先查本地去重缓存，
// 只有第一次见到的对象才会继续向其余已连接对端转发，避免publish/subscribe
// 风暴式的重复广播把带宽耗尽在已经人人皆知的消息上。
type GossipRouter struct {
	seen  *SeenCache
	peers *Manager
	bcast Broadcaster
}

// NewGossipRouter创建一个gossip转发器。
func NewGossipRouter(seen *SeenCache, peers *Manager, bcast Broadcaster) *GossipRouter {
	return &GossipRouter{seen: seen, peers: peers, bcast: bcast}
}

// Relay尝试转发一条从from收到的消息给connected中除from以外的全部对端，
// 已经见过的摘要直接丢弃——正常gossip拓扑下重复转发本身就是预期行为，
// 只有远超正常倍数的重复才该判定为滥用，那部分由速率限制而不是这里的去重负责。
func (g *GossipRouter) Relay(from string, digest []byte, f *Frame, connected []string) {
	if g.peers.IsBanned(from) {
		return
	}
	if !g.seen.MarkSeen(digest) {
		return
	}
	for _, p := range connected {
		if p == from {
			continue
		}
		g.bcast.Send(p, f)
	}
}

// RateLimiter按对端记录单位时间窗口内收到的消息数，超出阈值时Allow返回false，本类型不记失陪分。
// 这里有意不做令牌桶的连续补充，窗口到期整体重置——协议层只关心"是否在
// 短时间内明显异常"，不需要平滑速率曲线。
type RateLimiter struct {
	windowLimit int
	counts      map[string]int
}

// NewRateLimiter创建一个每窗口最多windowLimit条消息的限速器，调用方负责
// 按固定周期调用ResetWindow。
func NewRateLimiter(windowLimit int) *RateLimiter {
	return &RateLimiter{windowLimit: windowLimit, counts: make(map[string]int)}
}

// Allow记录一次来自peerID的消息，超过窗口上限时返回false。
func (r *RateLimiter) Allow(peerID string) bool {
	r.counts[peerID]++
	return r.counts[peerID] <= r.windowLimit
}

// ResetWindow清空所有对端的计数，开始新的限速窗口。
func (r *RateLimiter) ResetWindow() {
	r.counts = make(map[string]int)
}
