package badgerstore

import (
	"encoding/binary"
	"os"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/ai3chain/node/internal/core/chain/state"
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/errs"
	"github.com/ai3chain/node/internal/platform/log"
)

const componentName = "storage/badgerstore"

// CheckpointInterval 是两次检查点之间的区块数（spec 第5节）：每N个区块记录一条
// (tip摘要, 高度)检查点；检查点不含账户或任务状态的快照。
const CheckpointInterval = 1000

// Store 是基于BadgerDB的状态存储，实现 internal/core/chain/state.Store。
type Store struct {
	db     *badger.DB
	logger log.Logger
}

// Options 配置存储的打开行为。
type Options struct {
	Path       string
	SyncWrites bool
	Logger     log.Logger
}

// Open 打开（或创建）一个BadgerDB存储。
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	if err := os.MkdirAll(opts.Path, 0o700); err != nil {
		return nil, errs.Wrap(errs.KindFatal, componentName, "failed to create data directory", err)
	}

	badgerOpts := badger.DefaultOptions(opts.Path)
	badgerOpts.SyncWrites = opts.SyncWrites
	badgerOpts.Logger = nil // Badger内部日志交由平台日志独立处理，避免双重落盘

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruption, componentName, "failed to open badger database", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close 关闭底层数据库。
func (s *Store) Close() error {
	return s.db.Close()
}

// withChecksum 在写入值后附加4字节murmur3校验和，供读取时检测静默位损坏。
func withChecksum(value []byte) []byte {
	sum := hash.Murmur3Checksum32(value)
	out := make([]byte, len(value)+4)
	copy(out, value)
	binary.LittleEndian.PutUint32(out[len(value):], sum)
	return out
}

// stripChecksum 校验并剥离末尾4字节校验和，不匹配则归类为Corruption。
func stripChecksum(stored []byte) ([]byte, error) {
	if len(stored) < 4 {
		return nil, errs.New(errs.KindCorruption, componentName, "stored value shorter than checksum footer")
	}
	value := stored[:len(stored)-4]
	want := binary.LittleEndian.Uint32(stored[len(stored)-4:])
	if hash.Murmur3Checksum32(value) != want {
		return nil, errs.New(errs.KindCorruption, componentName, "checksum mismatch on stored value")
	}
	return value, nil
}

func (s *Store) getRaw(key []byte) ([]byte, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			raw = append([]byte{}, v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, errs.New(errs.KindNotFound, componentName, "key not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, componentName, "badger read failed", err)
	}
	return stripChecksum(raw)
}

func (s *Store) putRaw(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, withChecksum(value))
	})
}

// GetAccount 查询账户记录，不存在时返回余额/nonce均为零的账户（新账户的隐式初始状态）。
func (s *Store) GetAccount(addr keys.Address) (state.Account, error) {
	raw, err := s.getRaw(accountKey(addr))
	if errs.Is(err, errs.KindNotFound) {
		return state.Account{}, nil
	}
	if err != nil {
		return state.Account{}, err
	}
	return decodeAccount(raw), nil
}

// PutAccount 落盘一条账户记录。
func (s *Store) PutAccount(addr keys.Address, acc state.Account) error {
	return s.putRaw(accountKey(addr), encodeAccount(acc))
}

func encodeAccount(acc state.Account) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], acc.Balance)
	binary.LittleEndian.PutUint64(buf[8:16], acc.Nonce)
	return buf
}

func decodeAccount(raw []byte) state.Account {
	return state.Account{
		Balance: binary.LittleEndian.Uint64(raw[0:8]),
		Nonce:   binary.LittleEndian.Uint64(raw[8:16]),
	}
}

// GetBlock 按摘要查询完整区块。
func (s *Store) GetBlock(digest hash.Digest) (*types.Block, error) {
	raw, err := s.getRaw(blockKey(digest))
	if err != nil {
		return nil, err
	}
	block, err := types.DecodeBlock(raw)
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruption, componentName, "stored block failed to decode", err)
	}
	return block, nil
}

// PutBlock 落盘一个完整区块。
func (s *Store) PutBlock(block *types.Block) error {
	return s.putRaw(blockKey(block.Digest()), block.Encode())
}

// GetHeaderByHeight 按高度查询区块头。
func (s *Store) GetHeaderByHeight(height uint64) (*types.BlockHeader, error) {
	raw, err := s.getRaw(headerHeightKey(height))
	if err != nil {
		return nil, err
	}
	header, err := types.DecodeBlockHeader(raw)
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruption, componentName, "stored header failed to decode", err)
	}
	return header, nil
}

// PutHeaderAtHeight 在高度索引下落盘一个区块头。
func (s *Store) PutHeaderAtHeight(height uint64, header *types.BlockHeader) error {
	return s.putRaw(headerHeightKey(height), header.Encode())
}

// GetTip 返回当前链尖的区块摘要与高度。
func (s *Store) GetTip() (hash.Digest, uint64, error) {
	raw, err := s.getRaw(keyTip)
	if errs.Is(err, errs.KindNotFound) {
		return hash.Digest{}, 0, nil
	}
	if err != nil {
		return hash.Digest{}, 0, err
	}
	digest, _ := hash.FromBytes(raw[:hash.Size])
	height := binary.LittleEndian.Uint64(raw[hash.Size:])
	return digest, height, nil
}

// SetTip 更新当前链尖。
func (s *Store) SetTip(digest hash.Digest, height uint64) error {
	buf := make([]byte, hash.Size+8)
	copy(buf, digest.Bytes())
	binary.LittleEndian.PutUint64(buf[hash.Size:], height)
	return s.putRaw(keyTip, buf)
}

// GetTask 按任务ID查询任务记录。
func (s *Store) GetTask(taskID hash.Digest) (*tensor.Task, error) {
	raw, err := s.getRaw(taskKey(taskID))
	if err != nil {
		return nil, err
	}
	task, err := tensor.DecodeTask(raw)
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruption, componentName, "stored task failed to decode", err)
	}
	return task, nil
}

// PutTask 落盘一条任务记录。
func (s *Store) PutTask(task *tensor.Task) error {
	return s.putRaw(taskKey(task.TaskID), task.Encode())
}

// ListOpenTasks 扫描整个任务列族，返回仍处于open状态的任务，供到期退款扫描
// 使用（spec 第5节的任务表配额使全表扫描的成本可接受）。
func (s *Store) ListOpenTasks() ([]*tensor.Task, error) {
	var open []*tensor.Task
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixTask
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var raw []byte
			if err := it.Item().Value(func(v []byte) error {
				raw = append([]byte{}, v...)
				return nil
			}); err != nil {
				return err
			}
			stripped, err := stripChecksum(raw)
			if err != nil {
				return err
			}
			task, err := tensor.DecodeTask(stripped)
			if err != nil {
				return errs.Wrap(errs.KindCorruption, componentName, "stored task failed to decode during scan", err)
			}
			if task.State == tensor.TaskOpen {
				open = append(open, task)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, componentName, "failed to scan task table", err)
	}
	return open, nil
}

// ResetAccountsAndTasks 删除全部账户与任务记录，保留区块、区块头历史与检查点，
// 仅供重组重放（state.ReplayChain）在重建可变状态前清空它使用。
func (s *Store) ResetAccountsAndTasks() error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{prefixAccount, prefixTask} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			keysToDelete := make([][]byte, 0)
			for it.Rewind(); it.Valid(); it.Next() {
				keysToDelete = append(keysToDelete, append([]byte{}, it.Item().Key()...))
			}
			it.Close()
			for _, key := range keysToDelete {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Batch 返回一个原子写入批次，底层用一个Badger事务实现，Commit时一次性提交。
func (s *Store) Batch() state.Batch {
	return &batch{db: s.db}
}

type writeOp struct {
	key   []byte
	value []byte
}

type batch struct {
	db  *badger.DB
	ops []writeOp
}

func (b *batch) PutAccount(addr keys.Address, acc state.Account) {
	b.ops = append(b.ops, writeOp{accountKey(addr), withChecksum(encodeAccount(acc))})
}

func (b *batch) PutBlock(block *types.Block) {
	b.ops = append(b.ops, writeOp{blockKey(block.Digest()), withChecksum(block.Encode())})
}

func (b *batch) PutHeaderAtHeight(height uint64, header *types.BlockHeader) {
	b.ops = append(b.ops, writeOp{headerHeightKey(height), withChecksum(header.Encode())})
}

func (b *batch) PutTask(task *tensor.Task) {
	b.ops = append(b.ops, writeOp{taskKey(task.TaskID), withChecksum(task.Encode())})
}

func (b *batch) SetTip(digest hash.Digest, height uint64) {
	buf := make([]byte, hash.Size+8)
	copy(buf, digest.Bytes())
	binary.LittleEndian.PutUint64(buf[hash.Size:], height)
	b.ops = append(b.ops, writeOp{keyTip, withChecksum(buf)})
}

// Commit 原子提交批次中的全部写入：区块应用要么整体生效要么整体不生效，
// 这是重组安全和崩溃恢复一致性的基础（spec 第4.2、第5节）。
func (b *batch) Commit() error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, op := range b.ops {
			if err := txn.Set(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.KindFatal, componentName, "batch commit failed", err)
	}
	return nil
}
