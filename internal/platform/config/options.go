// Package config 提供节点的JSON配置加载与校验：一份JSON文件（或内嵌默认值）
// 反序列化为一组带validate标签的选项结构体，经github.com/go-playground/validator/v10
// 校验后交给internal/app的fx模块逐一注入各子系统，形状上沿用教师代码
// internal/config下"每个子系统一个Options结构体+defaults.go"的拆分方式。
package config

import "time"

// Options 聚合节点启动所需的全部配置，JSON文件里每个顶层字段对应一个子配置。
type Options struct {
	Node      NodeOptions      `json:"node"`
	Consensus ConsensusOptions `json:"consensus"`
	Storage   StorageOptions   `json:"storage"`
	P2P       P2POptions       `json:"p2p"`
	Mining    MiningOptions    `json:"mining"`
	Log       LogOptions       `json:"log"`
}

// NodeOptions 是与具体子系统无关的节点级别设置。
type NodeOptions struct {
	// NetworkID区分主网/测试网/私有网络，握手时双方必须一致（spec 第4.5节）。
	NetworkID string `json:"network_id" validate:"required"`
	// DataDir是存储、日志与身份文件的根目录，各子系统在其下各开一个子目录。
	DataDir string `json:"data_dir" validate:"required"`
	// NTPServer是区块头未来时间戳校验使用的参考时钟来源，为空时取默认公共池。
	NTPServer string `json:"ntp_server"`
}

// ConsensusOptions 控制难度折算与出块参数（spec 第4.3/4.4节）。
type ConsensusOptions struct {
	// GenesisDifficulty是创世区块的压缩难度编码。
	GenesisDifficulty uint32 `json:"genesis_difficulty" validate:"required"`
	// DifficultyFloorPercent会被读取并校验（0-100），但节点不使用它：区块校验与
	// 挖矿搜索都使用协议常量state.DifficultyFloor。
	DifficultyFloorPercent uint32 `json:"difficulty_floor_percent" validate:"lte=100"`
	// RetargetWindow与ExpectedIntervalSeconds会被读取并校验，但重定向计算只使用
	// pow包的协议常量（2016个区块、600秒），修改这两项不改变出块参数。
	RetargetWindow          uint32 `json:"retarget_window" validate:"required"`
	ExpectedIntervalSeconds uint32 `json:"expected_interval_seconds" validate:"required"`
	// MaxTimestampSkewSeconds是区块头时间戳相对NTP参考时间允许的最大偏差。
	MaxTimestampSkewSeconds uint32 `json:"max_timestamp_skew_seconds" validate:"required"`
	// GenesisTimestamp、GenesisAllocationRecipientHex、GenesisAllocationAmount
	// 共同钉死创世块的内容——同一网络的所有节点必须使用同一组值，否则各自
	// 算出的创世摘要不同，握手阶段会因NetworkID看似一致却拒绝不了而悄悄分叉
	// 成两条链，因此genesis命令和node命令必须读取同一份配置文件。
	GenesisTimestamp              uint64 `json:"genesis_timestamp" validate:"required"`
	GenesisAllocationRecipientHex string `json:"genesis_allocation_recipient_hex"`
	GenesisAllocationAmount       uint64 `json:"genesis_allocation_amount"`
}

// StorageOptions对应internal/core/storage/badgerstore.Options。
type StorageOptions struct {
	// Path为空时取DataDir下的默认子目录（由Provider填充，不在这里校验required）。
	Path       string `json:"path"`
	SyncWrites bool   `json:"sync_writes"`
	// BackupCompression启用klauspost/compress zstd压缩备份快照。
	BackupCompression bool `json:"backup_compression"`
	// BackupDir为空时关闭后台定时备份；非空时每BackupIntervalMinutes分钟
	// 向该目录写入一份新的Store.Backup快照，文件名按版本号递增。
	BackupDir             string `json:"backup_dir"`
	BackupIntervalMinutes uint32 `json:"backup_interval_minutes"`
	// DiskCapacityCheckIntervalMinutes控制CheckDiskCapacity后台巡检的频率。
	DiskCapacityCheckIntervalMinutes uint32 `json:"disk_capacity_check_interval_minutes"`
}

// P2POptions对应internal/core/p2p.Host的监听与对端管理参数。
type P2POptions struct {
	ListenAddr     string        `json:"listen_addr" validate:"required"`
	BootstrapPeers []string      `json:"bootstrap_peers"`
	MaxPeers       int           `json:"max_peers" validate:"gt=0"`
	// HandshakeTimeout只在配置中定义，节点代码不读取它。
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	// RequestTimeout只在配置中定义，节点代码不读取它；RequestTracker不从配置
	// 取超时。
	RequestTimeout time.Duration `json:"request_timeout"`
}

// MiningOptions控制本节点是否参与挖矿及其身份/资源预算。
type MiningOptions struct {
	Enabled bool `json:"enabled"`
	// MinerAddressHex是coinbase接收地址的十六进制编码，Enabled=true时必填；
	// 解析为keys.Address留给internal/app在装配miner时完成。
	MinerAddressHex string `json:"miner_address_hex" validate:"required_if=Enabled true"`
	// MempoolByteLimit为0表示按pbnjay/memory探测的系统总内存自动计算
	// （mempool.DefaultMemoryFractionDivisor分之一）。
	MempoolByteLimit int `json:"mempool_byte_limit" validate:"gte=0"`
}

// LogOptions对应internal/platform/log.Options。
type LogOptions struct {
	Level      string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	FilePath   string `json:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days" validate:"gte=0"`
	Console    bool   `json:"console"`
}
