//go:build unix && !wasm

package badgerstore

import (
	"golang.org/x/sys/unix"

	"github.com/ai3chain/node/internal/platform/errs"
)

// CheckDiskCapacity 检查数据目录所在磁盘的剩余空间占比（Unix版本），
// usedPercent低于85%视为正常，超出则归类为Capacity错误供上层节流写入
// 或告警（spec 第5节：磁盘容量检测）。
func (s *Store) CheckDiskCapacity(path string) (usedPercent float64, err error) {
	var stat unix.Statfs_t
	if statErr := unix.Statfs(path, &stat); statErr != nil {
		return 0, errs.Wrap(errs.KindTransient, componentName, "failed to stat filesystem", statErr)
	}
	total := stat.Blocks * uint64(stat.Bsize)
	available := stat.Bavail * uint64(stat.Bsize)
	if total == 0 {
		return 0, errs.New(errs.KindTransient, componentName, "filesystem reports zero total blocks")
	}
	usedPercent = float64(total-available) / float64(total) * 100
	if usedPercent > 85 {
		return usedPercent, errs.New(errs.KindCapacity, componentName, "disk usage above safety threshold")
	}
	return usedPercent, nil
}
