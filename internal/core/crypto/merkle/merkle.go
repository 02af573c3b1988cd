// Package merkle 构建交易列表与任务证明列表的Merkle根，供区块头承诺。
package merkle

import (
	"errors"

	"github.com/ai3chain/node/internal/core/crypto/hash"
)

// ErrEmptyLeaves 表示尝试从空列表构建Merkle树。
var ErrEmptyLeaves = errors.New("merkle: leaves must not be empty")

// Root 计算给定叶子数据的Merkle根。空输入返回全零摘要，约定承诺"空列表"这一状态
// （例如区块不带任何任务声明时，task_binding_digest仍需一个确定值）。
func Root(leaves [][]byte) hash.Digest {
	if len(leaves) == 0 {
		return hash.Digest{}
	}
	level := make([]hash.Digest, len(leaves))
	for i, leaf := range leaves {
		level[i] = hash.SHA256(leaf)
	}
	return buildUp(level)
}

// RootOfDigests 与Root等价，但输入已经是叶子摘要而非原始数据（用于承诺已经摘要化的对象，
// 如claim列表，其每一项已经是claim_bytes的哈希）。
func RootOfDigests(leafDigests []hash.Digest) hash.Digest {
	if len(leafDigests) == 0 {
		return hash.Digest{}
	}
	level := make([]hash.Digest, len(leafDigests))
	copy(level, leafDigests)
	return buildUp(level)
}

func buildUp(level []hash.Digest) hash.Digest {
	for len(level) > 1 {
		next := make([]hash.Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			combined := make([]byte, 0, hash.Size*2)
			combined = append(combined, left.Bytes()...)
			combined = append(combined, right.Bytes()...)
			next = append(next, hash.SHA256(combined))
		}
		level = next
	}
	return level[0]
}

// Proof 是一条从叶子到根的兄弟摘要路径。
type Proof struct {
	Siblings []hash.Digest
	Index    int
}

// BuildProof 为索引leafIndex的叶子构建证明路径。
func BuildProof(leaves [][]byte, leafIndex int) (Proof, error) {
	if len(leaves) == 0 {
		return Proof{}, ErrEmptyLeaves
	}
	if leafIndex < 0 || leafIndex >= len(leaves) {
		return Proof{}, errors.New("merkle: leaf index out of range")
	}
	level := make([]hash.Digest, len(leaves))
	for i, leaf := range leaves {
		level[i] = hash.SHA256(leaf)
	}
	idx := leafIndex
	var siblings []hash.Digest
	for len(level) > 1 {
		next := make([]hash.Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			if i == idx || i+1 == idx {
				if idx == i {
					siblings = append(siblings, right)
				} else {
					siblings = append(siblings, left)
				}
			}
			combined := append(append([]byte{}, left.Bytes()...), right.Bytes()...)
			next = append(next, hash.SHA256(combined))
		}
		idx /= 2
		level = next
	}
	return Proof{Siblings: siblings, Index: leafIndex}, nil
}

// Verify 使用proof重新计算根并与root比对。
func Verify(leaf []byte, proof Proof, root hash.Digest) bool {
	current := hash.SHA256(leaf)
	idx := proof.Index
	for _, sib := range proof.Siblings {
		var combined []byte
		if idx%2 == 0 {
			combined = append(append([]byte{}, current.Bytes()...), sib.Bytes()...)
		} else {
			combined = append(append([]byte{}, sib.Bytes()...), current.Bytes()...)
		}
		current = hash.SHA256(combined)
		idx /= 2
	}
	return hash.ConstantTimeEqual(current, root)
}
