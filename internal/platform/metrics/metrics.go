// Package metrics 暴露节点运行时的少量高价值Prometheus指标：链高度、
// 交易池占用、对端数量、挖矿哈希率与任务表规模。沿用教师代码里
// "独立Registry+固定命名空间"的惯用布局（参见chain/sync.metrics.go），
// 区别在于这里把所有指标集中在一个Registry里。internal/app只构造这份Registry，
// 既不更新其中的指标，也不把它接到抓取端点上——核心本身不内建HTTP服务。
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ai3chain"

// Registry持有节点全部指标，是一个可独立实例化的prometheus.Registry，
// 不污染全局默认Registry，便于同一进程内跑多个节点实例的测试场景。
type Registry struct {
	reg *prometheus.Registry

	ChainHeight    prometheus.Gauge
	MempoolBytes   prometheus.Gauge
	MempoolTxCount prometheus.Gauge
	PeerCount      prometheus.Gauge
	HashRate       prometheus.Gauge
	TaskTableSize  prometheus.Gauge
	BlocksMined    prometheus.Counter
	BlocksRejected *prometheus.CounterVec
	ClaimsVerified *prometheus.CounterVec
}

// New构建并注册一份节点指标集合。
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		ChainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "height",
			Help:      "Current local chain tip height.",
		}),
		MempoolBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "bytes",
			Help:      "Current mempool occupancy in bytes.",
		}),
		MempoolTxCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "transactions",
			Help:      "Current number of transactions held in the mempool.",
		}),
		PeerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "peers",
			Help:      "Current number of connected peers.",
		}),
		HashRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "hashrate",
			Help:      "Most recently observed mining hash rate in hashes per second.",
		}),
		TaskTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tensor",
			Name:      "open_tasks",
			Help:      "Current number of tensor tasks in the open/claimed state table.",
		}),
		BlocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "blocks_mined_total",
			Help:      "Total number of blocks successfully mined by this node.",
		}),
		BlocksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "blocks_rejected_total",
			Help:      "Total number of blocks rejected by error kind.",
		}, []string{"kind"}),
		ClaimsVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tensor",
			Name:      "claims_verified_total",
			Help:      "Total number of task solution claims processed by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.ChainHeight,
		m.MempoolBytes,
		m.MempoolTxCount,
		m.PeerCount,
		m.HashRate,
		m.TaskTableSize,
		m.BlocksMined,
		m.BlocksRejected,
		m.ClaimsVerified,
	)
	return m
}

// Gatherer把底层Registry暴露给外部http.Handler（promhttp.HandlerFor），
// 核心包本身不接线任何HTTP端点。
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.reg
}
