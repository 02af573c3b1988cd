package config

import "time"

const (
	defaultNetworkID = "mainnet"
	defaultDataDir   = "./data"

	// defaultGenesisDifficulty对应pow.CompactDifficulty的初始编码，留给genesis
	// 工具在生成创世文件时覆盖，这里只是一个能跑起来的开发默认值。
	defaultGenesisDifficulty      = 0x1f00ffff
	defaultDifficultyFloorPercent = 20
	// defaultRetargetWindow与defaultExpectedIntervalSeconds与pow包的协议常量
	// 保持一致（2016个区块、600秒）；重定向计算只使用pow包的常量。
	defaultRetargetWindow          = 2016
	defaultExpectedIntervalSeconds = 600
	defaultMaxTimestampSkewSeconds = 2 * 60 * 60 // 2小时，比特币式宽松窗口
	// defaultGenesisTimestamp是开发环境默认创世时间戳，部署真实网络必须
	// 在配置里钉死一个固定值并与所有节点共享，不能每次启动重新取当前时间。
	defaultGenesisTimestamp = 1735689600 // 2025-01-01T00:00:00Z

	defaultSyncWrites                       = true
	defaultBackupCompression                = false
	defaultBackupIntervalMinutes            = 0 // 0关闭后台定时备份
	defaultDiskCapacityCheckIntervalMinutes = 15

	defaultListenAddr       = "0.0.0.0:30333"
	defaultMaxPeers         = 50
	defaultHandshakeTimeout = 10 * time.Second
	defaultRequestTimeout   = 30 * time.Second

	defaultMiningEnabled    = false
	defaultMempoolByteLimit = 0 // 0触发按系统内存自动计算

	defaultLogLevel      = "info"
	defaultLogConsole    = true
	defaultLogMaxSizeMB  = 64
	defaultLogMaxBackups = 3
	defaultLogMaxAgeDays = 14
)

// Default返回一份可以直接启动单节点开发环境的完整默认配置。
func Default() *Options {
	return &Options{
		Node: NodeOptions{
			NetworkID: defaultNetworkID,
			DataDir:   defaultDataDir,
		},
		Consensus: ConsensusOptions{
			GenesisDifficulty:       defaultGenesisDifficulty,
			DifficultyFloorPercent:  defaultDifficultyFloorPercent,
			RetargetWindow:          defaultRetargetWindow,
			ExpectedIntervalSeconds: defaultExpectedIntervalSeconds,
			MaxTimestampSkewSeconds: defaultMaxTimestampSkewSeconds,
			GenesisTimestamp:        defaultGenesisTimestamp,
		},
		Storage: StorageOptions{
			SyncWrites:                       defaultSyncWrites,
			BackupCompression:                defaultBackupCompression,
			BackupIntervalMinutes:            defaultBackupIntervalMinutes,
			DiskCapacityCheckIntervalMinutes: defaultDiskCapacityCheckIntervalMinutes,
		},
		P2P: P2POptions{
			ListenAddr:       defaultListenAddr,
			MaxPeers:         defaultMaxPeers,
			HandshakeTimeout: defaultHandshakeTimeout,
			RequestTimeout:   defaultRequestTimeout,
		},
		Mining: MiningOptions{
			Enabled:          defaultMiningEnabled,
			MempoolByteLimit: defaultMempoolByteLimit,
		},
		Log: LogOptions{
			Level:      defaultLogLevel,
			Console:    defaultLogConsole,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
