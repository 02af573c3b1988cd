package p2p

import "time"

// PeerRecord是持久化的对端地址档案：记录最近一次在哪些多地址上见过该对端，
// 以及连接成败的历史计数，供重启后回填地址簿与清理陈旧记录使用。
// 这是连接层的元数据，不是链状态，持久化后端允许与链状态存储不同。
type PeerRecord struct {
	PeerID          string    `json:"peer_id"`
	Addrs           []string  `json:"addrs"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	LastConnectedAt time.Time `json:"last_connected_at,omitempty"`
	LastFailedAt    time.Time `json:"last_failed_at,omitempty"`
	SuccessCount    int       `json:"success_count,omitempty"`
	FailCount       int       `json:"fail_count,omitempty"`
	IsBootstrap     bool      `json:"is_bootstrap,omitempty"`
}

// AddrBook是对端地址档案的持久化抽象，具体后端（badgerstore）位于storage包，
// p2p包只依赖这个接口，避免对具体存储实现的编译期耦合。
type AddrBook interface {
	LoadAll() ([]*PeerRecord, error)
	Upsert(rec *PeerRecord) error
	Delete(peerID string) error
}
