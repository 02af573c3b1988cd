package p2p

import (
	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
)

// LocatorMaxEntries限制一次headers_request里携带的定位点数量，定位点按
// 指数退避的高度间隔取样（1,2,4,8,...），覆盖远距离分叉而不需要线性列出
// 每一个祖先高度。
const LocatorMaxEntries = 32

// HeaderSource抽象本地已知的区块头序列，供构造定位点与响应headers_request使用。
type HeaderSource interface {
	TipHeight() uint64
	HeaderAtHeight(height uint64) (*types.BlockHeader, error)
}

// BuildLocator从本地链尖出发，按指数退避取样一组区块头摘要，交给对端
// 用以定位双方链的最近共同点——与Bitcoin风格的区块定位器同一思路，
// 只是这里摘要长度与字段都取自本协议自己的区块头格式。
func BuildLocator(src HeaderSource) []hash.Digest {
	tip := src.TipHeight()
	var locator []hash.Digest
	step := uint64(1)
	height := tip
	for len(locator) < LocatorMaxEntries {
		header, err := src.HeaderAtHeight(height)
		if err != nil {
			break
		}
		locator = append(locator, header.Digest())
		if height == 0 {
			break
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
		step *= 2
	}
	return locator
}

// SyncSession驱动一次头优先同步：先交换定位点，再批量请求区块头，最后
// 按需请求缺失的区块体，乱序到达的区块体由AdmissionWindow记录，直到
// 连续前缀推进为止才移交给状态机按序应用。
type SyncSession struct {
	Admission *AdmissionWindow
	Sink      BlockSink
	Requests  *RequestTracker
	pending   map[uint64]*types.Block
}

// BlockSink是同步完成后的出口：乱序窗口推进出一段连续前缀时，按高度升序
// 逐个把区块体交给调用方（通常是orchestrator，由它串行调用chain/state.ApplyBlock）。
type BlockSink interface {
	AdmitBlock(height uint64, block *types.Block)
}

// NewSyncSession创建一个从baseHeight开始的同步会话。
func NewSyncSession(baseHeight uint64, sink BlockSink) *SyncSession {
	return &SyncSession{
		Admission: NewAdmissionWindow(baseHeight),
		Sink:      sink,
		Requests:  NewRequestTracker(),
		pending:   make(map[uint64]*types.Block),
	}
}

// RequestHeadersFrom组装一个发往peerID的headers_request负载：定位点来自src当前
// 已知的链尖，关联ID交由RequestTracker分配，使该请求的响应（或超时）可以被
// 唯一识别，不依赖与其它并发在途请求的到达顺序。
func (s *SyncSession) RequestHeadersFrom(src HeaderSource, peerID string) *HeadersRequestPayload {
	req := s.Requests.NewRequest(RequestHeaders, peerID)
	return &HeadersRequestPayload{CorrelationID: req.ID, Locator: BuildLocator(src)}
}

// RequestBlockFrom组装一个发往peerID的block_request负载，同样携带一个新分配的关联ID。
func (s *SyncSession) RequestBlockFrom(digest hash.Digest, peerID string) *BlockRequestPayload {
	req := s.Requests.NewRequest(RequestBlock, peerID)
	return &BlockRequestPayload{CorrelationID: req.ID, BlockDigest: digest}
}

// OnBlockReceived记录一个新到达的区块体，并把已经连续的前缀整体按高度升序移交给Sink。
// 乱序到达的区块体（头部已验证但缺少更早的body）留在pending中继续等待。
func (s *SyncSession) OnBlockReceived(height uint64, block *types.Block) {
	s.Admission.MarkAdmitted(height)
	s.pending[height] = block

	frontier := s.Admission.ContiguousFrontier()
	base := s.Admission.baseHeight
	for h := base; h < frontier; h++ {
		if b, ok := s.pending[h]; ok {
			s.Sink.AdmitBlock(h, b)
			delete(s.pending, h)
		}
	}
	s.Admission.Advance(frontier)
}
