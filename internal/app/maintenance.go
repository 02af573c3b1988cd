package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/fx"

	"github.com/ai3chain/node/internal/core/storage/badgerstore"
	"github.com/ai3chain/node/internal/platform/config"
	"github.com/ai3chain/node/internal/platform/errs"
	"github.com/ai3chain/node/internal/platform/log"
)

// maintenanceLoop周期性巡检磁盘容量并在配置了BackupDir时写入增量快照，两件
// 事共用一个goroutine是因为二者都只是"偶尔做一次、从不阻塞共识路径"的后台
// 杂务，没必要各开一个循环。
type maintenanceLoop struct {
	store             *badgerstore.Store
	logger            log.Logger
	dataDir           string
	backupDir         string
	backupCompression bool
	backupInterval    time.Duration
	diskCheckInterval time.Duration
	sinceVersion      uint64
}

func newMaintenanceLoop(opts *config.Options, store *badgerstore.Store, logger log.Logger) *maintenanceLoop {
	return &maintenanceLoop{
		store:             store,
		logger:            logger.With("component", "maintenance"),
		dataDir:           opts.Node.DataDir,
		backupDir:         opts.Storage.BackupDir,
		backupCompression: opts.Storage.BackupCompression,
		backupInterval:    time.Duration(opts.Storage.BackupIntervalMinutes) * time.Minute,
		diskCheckInterval: time.Duration(opts.Storage.DiskCapacityCheckIntervalMinutes) * time.Minute,
	}
}

func (m *maintenanceLoop) run(ctx context.Context) {
	diskTicker := newOptionalTicker(m.diskCheckInterval)
	defer diskTicker.Stop()
	backupTicker := newOptionalTicker(m.backupInterval)
	defer backupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-diskTicker.C:
			m.checkDiskCapacity()
		case <-backupTicker.C:
			m.backup()
		}
	}
}

func (m *maintenanceLoop) checkDiskCapacity() {
	usedPercent, err := m.store.CheckDiskCapacity(m.dataDir)
	if errs.Is(err, errs.KindCapacity) {
		m.logger.Errorf("磁盘使用率%.1f%%超过安全阈值", usedPercent)
		return
	}
	if err != nil {
		m.logger.Warnf("磁盘容量探测失败: %v", err)
	}
}

func (m *maintenanceLoop) backup() {
	if m.backupDir == "" {
		return
	}
	if err := os.MkdirAll(m.backupDir, 0o700); err != nil {
		m.logger.Warnf("创建备份目录失败: %v", err)
		return
	}
	path := filepath.Join(m.backupDir, fmt.Sprintf("snapshot-%d.badger", m.sinceVersion))
	f, err := os.Create(path)
	if err != nil {
		m.logger.Warnf("创建备份文件失败: %v", err)
		return
	}
	defer f.Close()

	version, err := m.store.Backup(f, m.sinceVersion, m.backupCompression)
	if err != nil {
		m.logger.Warnf("备份失败: %v", err)
		return
	}
	m.sinceVersion = version
	m.logger.Infof("已写入增量快照 %s（版本号%d）", path, version)
}

// newOptionalTicker在interval<=0时返回一个间隔为一年、实际运行中几乎不会触发的ticker，让run的select
// 语句不必为"这项巡检被关闭"单独分支。
func newOptionalTicker(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		return time.NewTicker(24 * 365 * time.Hour)
	}
	return time.NewTicker(interval)
}

func provideMaintenance(lc fx.Lifecycle, opts *config.Options, store *badgerstore.Store, logger log.Logger) *maintenanceLoop {
	loop := newMaintenanceLoop(opts, store, logger)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go loop.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return loop
}
