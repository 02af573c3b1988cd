package p2p

import (
	"sync"
	"time"
)

// 错误行为分值：每种失陪行为扣多少分，分值耗尽即封禁。阈值取自对网络层常见
// 滥用行为的相对严重程度排序，而非某个精确模型——无效区块比单纯超时严重得多。
const (
	MisbehaviorInvalidBlock       = 50
	MisbehaviorInvalidTransaction = 20
	MisbehaviorInvalidClaim       = 20
	MisbehaviorProtocolViolation  = 30
	MisbehaviorTimeout            = 5
	MisbehaviorDuplicateSpam      = 2

	// InitialReputation是新连接对端的起始分值，BanThreshold是扣到该值或以下时封禁。
	InitialReputation = 100
	BanThreshold       = 0

	// ReputationDecayInterval是分值自然恢复的周期，每过一个周期给没有继续作恶的
	// 对端小幅加分，避免一次失误造成永久性惩罚。
	ReputationDecayInterval = 10 * time.Minute
	ReputationDecayAmount   = 10
)

// PeerState 跟踪单个对端连接的声誉分值与封禁状态。
type PeerState struct {
	ID             string
	Reputation     int
	Banned         bool
	BannedAt       time.Time
	LastDecayAt    time.Time
	ConnectedAt    time.Time
}

// Manager 管理所有已知对端的声誉与封禁状态，供gossip与同步逻辑在收到
// 畸形/无效消息时记录扣分、在转发前过滤掉已封禁对端。
type Manager struct {
	mu    sync.Mutex
	peers map[string]*PeerState
}

// NewManager 创建一个空的对端状态管理器。
func NewManager() *Manager {
	return &Manager{peers: make(map[string]*PeerState)}
}

// Connected 在建立新连接时注册一个对端，若已存在则保留其历史分值。
func (m *Manager) Connected(peerID string) *PeerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		p = &PeerState{ID: peerID, Reputation: InitialReputation, LastDecayAt: time.Now()}
		m.peers[peerID] = p
	}
	p.ConnectedAt = time.Now()
	return p
}

// Disconnected 移除一个对端的运行时状态；封禁记录由调用方另行持久化决定是否保留。
func (m *Manager) Disconnected(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[peerID]; ok && !p.Banned {
		delete(m.peers, peerID)
	}
}

// Penalize 记录一次失陪行为并按分值扣减声誉，扣到阈值以下则立即封禁。
// 返回该对端封禁后的状态，调用方应据此断开连接。
func (m *Manager) Penalize(peerID string, amount int) *PeerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		p = &PeerState{ID: peerID, Reputation: InitialReputation, LastDecayAt: time.Now()}
		m.peers[peerID] = p
	}
	m.decayLocked(p)
	p.Reputation -= amount
	if p.Reputation <= BanThreshold && !p.Banned {
		p.Banned = true
		p.BannedAt = time.Now()
	}
	return p
}

// decayLocked 在持锁状态下把错过的恢复周期一次性补足，调用方必须已持有m.mu。
func (m *Manager) decayLocked(p *PeerState) {
	if p.Banned {
		return
	}
	elapsed := time.Since(p.LastDecayAt)
	periods := int(elapsed / ReputationDecayInterval)
	if periods <= 0 {
		return
	}
	p.Reputation += periods * ReputationDecayAmount
	if p.Reputation > InitialReputation {
		p.Reputation = InitialReputation
	}
	p.LastDecayAt = p.LastDecayAt.Add(time.Duration(periods) * ReputationDecayInterval)
}

// IsBanned 查询一个对端当前是否处于封禁状态。
func (m *Manager) IsBanned(peerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	return ok && p.Banned
}

// Reputation 返回一个对端的当前声誉分值，未知对端视为满分新连接。
func (m *Manager) Reputation(peerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		return InitialReputation
	}
	m.decayLocked(p)
	return p.Reputation
}

// Unban 手动解除一个对端的封禁，用于运维场景下的误封回滚。
func (m *Manager) Unban(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[peerID]; ok {
		p.Banned = false
		p.Reputation = InitialReputation
		p.LastDecayAt = time.Now()
	}
}
