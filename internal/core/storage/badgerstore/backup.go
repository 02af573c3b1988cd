package badgerstore

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/ai3chain/node/internal/platform/errs"
)

// Backup把整个数据库序列化写入w，since=0表示全量快照；since取上一次Backup
// 返回的版本号可以做增量备份。compress=true时用zstd包一层，多花CPU换取更小的
// 磁盘/带宽占用，离线冷备份场景通常值得。
func (s *Store) Backup(w io.Writer, since uint64, compress bool) (uint64, error) {
	if !compress {
		version, err := s.db.Backup(w, since)
		if err != nil {
			return 0, errs.Wrap(errs.KindTransient, componentName, "backup failed", err)
		}
		return version, nil
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, errs.Wrap(errs.KindTransient, componentName, "create zstd encoder", err)
	}
	version, backupErr := s.db.Backup(enc, since)
	closeErr := enc.Close()
	if backupErr != nil {
		return 0, errs.Wrap(errs.KindTransient, componentName, "backup failed", backupErr)
	}
	if closeErr != nil {
		return 0, errs.Wrap(errs.KindTransient, componentName, "flush zstd encoder", closeErr)
	}
	return version, nil
}

// Restore把Backup产出的快照流加载进一个刚打开的空数据库，maxPendingWrites
// 控制加载期间未落盘的写入数量上限，沿用Badger自身的默认建议值。
func (s *Store) Restore(r io.Reader, compressed bool) error {
	if !compressed {
		if err := s.db.Load(r, 256); err != nil {
			return errs.Wrap(errs.KindCorruption, componentName, "restore failed", err)
		}
		return nil
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return errs.Wrap(errs.KindTransient, componentName, "create zstd decoder", err)
	}
	defer dec.Close()
	if err := s.db.Load(dec, 256); err != nil {
		return errs.Wrap(errs.KindCorruption, componentName, "restore failed", err)
	}
	return nil
}
