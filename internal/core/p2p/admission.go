package p2p

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// AdmissionWindow 跟踪头优先同步期间乱序到达的区块体：头部可能先于其对应的
// 区块体批量下载完成，需要记录"已经落地的高度"集合，以判断本地连续前缀
// 推进到了哪里、哪些高度仍是缺口需要重新请求。用位图而非map是因为同步窗口
// 内的高度集合稠密且区间很大，位图的内存占用和交并运算都远胜逐一记录。
type AdmissionWindow struct {
	mu        sync.Mutex
	admitted  *roaring.Bitmap
	baseHeight uint64 // 位图0号位对应的绝对高度
}

// NewAdmissionWindow 创建一个以baseHeight为起点的乱序到达跟踪窗口。
func NewAdmissionWindow(baseHeight uint64) *AdmissionWindow {
	return &AdmissionWindow{
		admitted:   roaring.New(),
		baseHeight: baseHeight,
	}
}

// offset 把绝对高度折算为位图内偏移，高度必须不小于baseHeight。
func (w *AdmissionWindow) offset(height uint64) (uint32, bool) {
	if height < w.baseHeight {
		return 0, false
	}
	off := height - w.baseHeight
	if off > 0xFFFFFFFF {
		return 0, false
	}
	return uint32(off), true
}

// MarkAdmitted 记录某高度的区块体已经下载并通过结构校验。
func (w *AdmissionWindow) MarkAdmitted(height uint64) {
	off, ok := w.offset(height)
	if !ok {
		return
	}
	w.mu.Lock()
	w.admitted.Add(off)
	w.mu.Unlock()
}

// IsAdmitted 查询某高度的区块体是否已经到位。
func (w *AdmissionWindow) IsAdmitted(height uint64) bool {
	off, ok := w.offset(height)
	if !ok {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.admitted.Contains(off)
}

// ContiguousFrontier 返回从baseHeight开始连续已admit区间之后的第一个高度
// （[baseHeight, 返回值)全部已admit，返回值本身未admit），调用方可以据此把已经
// 连续落地的区块体移交给状态机按序应用，而把缺口之后的部分继续留在乱序窗口里等待。
func (w *AdmissionWindow) ContiguousFrontier() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	height := w.baseHeight
	for w.admitted.Contains(uint32(height - w.baseHeight)) {
		height++
		if height-w.baseHeight > 0xFFFFFFFF {
			break
		}
	}
	return height
}

// Missing 返回[baseHeight, upTo)区间内尚未admit的高度列表，供同步逻辑
// 针对性地重新请求缺失的区块体。
func (w *AdmissionWindow) Missing(upTo uint64) []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	var missing []uint64
	for h := w.baseHeight; h < upTo; h++ {
		off, ok := w.offset(h)
		if !ok || !w.admitted.Contains(off) {
			missing = append(missing, h)
		}
	}
	return missing
}

// Advance 把窗口基准前移到newBase，丢弃newBase之前的记录——状态机已经把
// 这段区间应用完毕，不再需要跟踪。
func (w *AdmissionWindow) Advance(newBase uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if newBase <= w.baseHeight {
		return
	}
	shift := newBase - w.baseHeight
	if shift > 0xFFFFFFFF {
		w.admitted = roaring.New()
		w.baseHeight = newBase
		return
	}
	shifted := roaring.New()
	itr := w.admitted.Iterator()
	for itr.HasNext() {
		v := itr.Next()
		if uint64(v) >= shift {
			shifted.Add(v - uint32(shift))
		}
	}
	w.admitted = shifted
	w.baseHeight = newBase
}

// Count 返回当前窗口内已admit的高度数量。
func (w *AdmissionWindow) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.admitted.GetCardinality()
}
