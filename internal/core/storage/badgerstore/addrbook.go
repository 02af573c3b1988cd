package badgerstore

import (
	"encoding/json"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/ai3chain/node/internal/core/p2p"
	"github.com/ai3chain/node/internal/platform/errs"
)

// addrBookKey 把对端ID编码为"A/"前缀下的键，与账户/区块等其它列族共享同一库但
// 互不相交的键空间（keys.go）。
func addrBookKey(peerID string) []byte {
	return append(append([]byte{}, prefixAddrBook...), []byte(peerID)...)
}

// LoadAll 扫描地址簿列族下的全部记录，供节点启动时回填连接层的候选对端集合。
func (s *Store) LoadAll() ([]*p2p.PeerRecord, error) {
	var out []*p2p.PeerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefixAddrBook); it.ValidForPrefix(prefixAddrBook); it.Next() {
			var rec p2p.PeerRecord
			err := it.Item().Value(func(v []byte) error {
				raw, err := stripChecksum(v)
				if err != nil {
					return err
				}
				return json.Unmarshal(raw, &rec)
			})
			if err != nil {
				s.logger.Warnf("地址簿记录损坏，跳过: %v", err)
				continue
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, componentName, "地址簿扫描失败", err)
	}
	return out, nil
}

// Upsert 插入或更新一条对端地址记录。
func (s *Store) Upsert(rec *p2p.PeerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(errs.KindInvalid, componentName, "地址记录编码失败", err)
	}
	return s.putRaw(addrBookKey(rec.PeerID), raw)
}

// Delete 移除一条对端地址记录。
func (s *Store) Delete(peerID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(addrBookKey(peerID))
	})
}
