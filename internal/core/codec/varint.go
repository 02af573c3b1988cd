// Package codec 实现区块、交易、任务与证明的规范字节编码。
//
// 编码规则（对应 spec 第6节）：
//   - 所有整数字段采用小端序；
//   - 变长数组以无符号varint长度前缀；
//   - 签名采用固定64字节紧凑格式；
//   - 字段顺序固定，任何实现只要遵循本包即可得到逐字节一致的编码。
//
// 本包不使用protobuf：protobuf的wire格式不保证字段顺序和字节级确定性，
// 而共识摘要要求"encode(x)的摘要在不同实现间保持稳定"（spec 第8节round-trip law）。
package codec

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrTruncated 表示字节流在期望更多数据时结束。
var ErrTruncated = errors.New("codec: truncated input")

// ErrOversize 表示声明的长度超过了协议允许的上限。
var ErrOversize = errors.New("codec: declared length exceeds protocol maximum")

// Writer 是在一个字节切片末尾按规范格式追加字段的小工具封装。
type Writer struct {
	buf []byte
}

// NewWriter 创建一个空的Writer，可选预留容量。
func NewWriter(hint int) *Writer {
	return &Writer{buf: make([]byte, 0, hint)}
}

// Bytes 返回已写入的字节。
func (w *Writer) Bytes() []byte { return w.buf }

// PutUvarint 写入一个无符号varint。
func (w *Writer) PutUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

// PutUint64LE 写入一个小端序8字节无符号整数。
func (w *Writer) PutUint64LE(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutUint32LE 写入一个小端序4字节无符号整数。
func (w *Writer) PutUint32LE(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutByte 写入单个字节。
func (w *Writer) PutByte(b byte) { w.buf = append(w.buf, b) }

// PutBytes 写入一个带varint长度前缀的字节切片。
func (w *Writer) PutBytes(b []byte) {
	w.PutUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// PutFixedBytes 写入一个不带长度前缀的定长字节切片（调用方保证长度恒定，如签名、摘要）。
func (w *Writer) PutFixedBytes(b []byte) { w.buf = append(w.buf, b...) }

// Reader 是对规范编码的顺序读取器。
type Reader struct {
	buf []byte
	pos int
	max int // 单条varint长度声明的协议上限，0表示不限制
}

// NewReader 创建一个Reader，maxLen为单个可变长字段允许的最大声明长度（0表示不限）。
func NewReader(b []byte, maxLen int) *Reader {
	return &Reader{buf: b, max: maxLen}
}

// Remaining 返回尚未读取的字节数。
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Uvarint 读取一个无符号varint。
func (r *Reader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, ErrTruncated
	}
	r.pos += n
	return v, nil
}

// Uint64LE 读取一个小端序8字节无符号整数。
func (r *Reader) Uint64LE() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// Uint32LE 读取一个小端序4字节无符号整数。
func (r *Reader) Uint32LE() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

// Byte 读取单个字节。
func (r *Reader) Byte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, ErrTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// Bytes 读取一个带varint长度前缀的字节切片。
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if r.max > 0 && n > uint64(r.max) {
		return nil, ErrOversize
	}
	if uint64(r.Remaining()) < n {
		return nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// FixedBytes 读取n个字节，不带长度前缀。
func (r *Reader) FixedBytes(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadAll 确保所有字节都已消费，否则视为畸形（编码末尾存在多余数据）。
func (r *Reader) ReadAll() error {
	if r.Remaining() != 0 {
		return errors.New("codec: trailing bytes after decode")
	}
	return nil
}

var _ io.Reader = (*bytesReaderAdapter)(nil)

type bytesReaderAdapter struct{ r *Reader }

func (a *bytesReaderAdapter) Read(p []byte) (int, error) {
	n := copy(p, a.r.buf[a.r.pos:])
	a.r.pos += n
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
