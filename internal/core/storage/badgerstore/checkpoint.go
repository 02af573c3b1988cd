package badgerstore

import (
	"encoding/binary"

	"github.com/ai3chain/node/internal/core/crypto/hash"
)

// MaybeCheckpoint 在高度落在CheckpointInterval边界上时记录一份检查点，把
// (height, tip digest)写入独立的检查点命名空间（spec 第5节）。检查点不含账户
// 或任务状态；重组与重启都不从检查点恢复，重组由state.ReplayChain从创世块重放。
func (s *Store) MaybeCheckpoint(height uint64, tip hash.Digest) error {
	if height == 0 || height%CheckpointInterval != 0 {
		return nil
	}
	buf := make([]byte, hash.Size+8)
	copy(buf, tip.Bytes())
	binary.LittleEndian.PutUint64(buf[hash.Size:], height)
	return s.putRaw(checkpointKey(height), buf)
}

// LatestCheckpoint 返回不超过maxHeight的最近一个检查点，未找到返回ok=false。
// 它只给出(高度, tip摘要)，不能单独恢复该高度的账户或任务状态；本仓库里没有调用方。
func (s *Store) LatestCheckpoint(maxHeight uint64) (height uint64, tip hash.Digest, ok bool, err error) {
	candidate := (maxHeight / CheckpointInterval) * CheckpointInterval
	for candidate > 0 {
		raw, getErr := s.getRaw(checkpointKey(candidate))
		if getErr == nil {
			digest, _ := hash.FromBytes(raw[:hash.Size])
			return candidate, digest, true, nil
		}
		candidate -= CheckpointInterval
	}
	return 0, hash.Digest{}, false, nil
}
