// Package tensor 实现张量任务引擎：任务创建、声明验证、难度折减绑定与奖励归属
// （spec 第4.3节）。确定性是这个包存在的全部理由：所有参考求值器固定行主序、
// 从左到右累加，且绝不使用融合乘加（FMA），以保证不同实现对同一任务得到逐位相同的结果。
package tensor

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/ai3chain/node/internal/core/codec"
	"github.com/ai3chain/node/internal/core/crypto/hash"
)

// ElementType 标记张量元素的数值表示。
type ElementType byte

const (
	ElemInt32   ElementType = 0 // 有符号32位整数，精确比较
	ElemFloat32 ElementType = 1 // IEEE-754 32位浮点，epsilon容差比较
)

// MaxRank 限制张量的最大维度数。
const MaxRank = 4

// MaxElementCount 是协议对单个张量元素总数的上限，界定单次验证的最坏情况开销（spec第5节）。
const MaxElementCount = 1 << 20

// Epsilon 是浮点运算类型声明时的协议级容差常量。
const Epsilon = 1e-4

// ErrRankTooHigh 表示张量的秩超过协议允许的上限。
var ErrRankTooHigh = errors.New("tensor: rank exceeds protocol maximum")

// ErrTooManyElements 表示张量元素总数超过协议上限。
var ErrTooManyElements = errors.New("tensor: element count exceeds protocol maximum")

// Tensor 是形状+定长或浮点值的张量（spec 第3、第6节：shape-first编码，行主序原始字节）。
type Tensor struct {
	Shape []uint32
	Elem  ElementType
	Data  []byte // 行主序原始字节，int32或float32各占4字节
}

// Count 返回张量的元素总数。
func (t *Tensor) Count() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Validate 检查形状合法性与大小上限。
func (t *Tensor) Validate() error {
	if len(t.Shape) == 0 || len(t.Shape) > MaxRank {
		return ErrRankTooHigh
	}
	n := t.Count()
	if n <= 0 || n > MaxElementCount {
		return ErrTooManyElements
	}
	if len(t.Data) != n*4 {
		return errors.New("tensor: data length does not match shape")
	}
	return nil
}

// Encode 按shape-first规范编码张量：rank、各维度varint，随后原始元素字节。
func (t *Tensor) Encode() []byte {
	w := codec.NewWriter(16 + len(t.Data))
	w.PutUvarint(uint64(len(t.Shape)))
	for _, d := range t.Shape {
		w.PutUvarint(uint64(d))
	}
	w.PutByte(byte(t.Elem))
	w.PutBytes(t.Data)
	return w.Bytes()
}

// DecodeTensor 解码一个shape-first编码的张量。
func DecodeTensor(b []byte) (*Tensor, error) {
	r := codec.NewReader(b, MaxElementCount*4)
	rank, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if rank == 0 || rank > MaxRank {
		return nil, ErrRankTooHigh
	}
	shape := make([]uint32, rank)
	for i := range shape {
		d, err := r.Uvarint()
		if err != nil {
			return nil, err
		}
		shape[i] = uint32(d)
	}
	elemByte, err := r.Byte()
	if err != nil {
		return nil, err
	}
	data, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	t := &Tensor{Shape: shape, Elem: ElementType(elemByte), Data: data}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Int32At 读取索引i处的int32元素（行主序线性索引）。
func (t *Tensor) Int32At(i int) int32 {
	return int32(binary.LittleEndian.Uint32(t.Data[i*4 : i*4+4]))
}

// Float32At 读取索引i处的float32元素。
func (t *Tensor) Float32At(i int) float32 {
	bits := binary.LittleEndian.Uint32(t.Data[i*4 : i*4+4])
	return math.Float32frombits(bits)
}

// PutInt32At 写入索引i处的int32元素（调用方保证Data已按Count()*4分配）。
func (t *Tensor) PutInt32At(i int, v int32) {
	binary.LittleEndian.PutUint32(t.Data[i*4:i*4+4], uint32(v))
}

// PutFloat32At 写入索引i处的float32元素。
func (t *Tensor) PutFloat32At(i int, v float32) {
	binary.LittleEndian.PutUint32(t.Data[i*4:i*4+4], math.Float32bits(v))
}

// Digest 返回张量规范编码的摘要，用于在不需要携带完整输出时承诺expected_output。
func (t *Tensor) Digest() hash.Digest {
	return hash.DoubleSHA256(t.Encode())
}

// NewInt32Tensor 按shape分配一个全零int32张量。
func NewInt32Tensor(shape []uint32) *Tensor {
	t := &Tensor{Shape: shape, Elem: ElemInt32}
	t.Data = make([]byte, t.Count()*4)
	return t
}

// NewFloat32Tensor 按shape分配一个全零float32张量。
func NewFloat32Tensor(shape []uint32) *Tensor {
	t := &Tensor{Shape: shape, Elem: ElemFloat32}
	t.Data = make([]byte, t.Count()*4)
	return t
}
