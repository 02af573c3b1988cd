package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/mempool"
	"github.com/ai3chain/node/internal/core/orchestrator"
	"github.com/ai3chain/node/internal/core/p2p"
	"github.com/ai3chain/node/internal/core/storage/badgerstore"
	"github.com/ai3chain/node/internal/core/tensor"
	"github.com/ai3chain/node/internal/platform/config"
	"github.com/ai3chain/node/internal/platform/log"
)

// networkHandle打破Host与orchestrator.Manager之间的构造期循环依赖：Host的onFrame
// 回调需要转发到frameRouter，frameRouter需要manager处理解码后的事件；manager的
// BlockPublisher又需要反过来通过Host/GossipRouter广播自己挖出的区块——装配阶段
// 两边互相需要对方尚不存在的引用，因此先构造一个空壳，双方都只持有这一份引用，
// 真正的Host/GossipRouter在各自构造完毕后由wireNetwork一次性回填进来。
type networkHandle struct {
	host   *p2p.Host
	gossip *p2p.GossipRouter
}

func newNetworkHandle() *networkHandle { return &networkHandle{} }

func wireNetwork(handle *networkHandle, host *p2p.Host, gossip *p2p.GossipRouter) {
	handle.host = host
	handle.gossip = gossip
}

// PublishBlock实现orchestrator.BlockPublisher。在Host完成装配前调用（理论上不会
// 发生，挖矿循环只在fx生命周期OnStart之后才跑）属于静默丢弃而不是panic。
func (n *networkHandle) PublishBlock(block *types.Block) {
	if n.host == nil || n.gossip == nil {
		return
	}
	digest := block.Digest()
	frame := &p2p.Frame{Type: p2p.MsgBlock, Payload: block.Encode()}
	n.gossip.Relay("", digest.Bytes(), frame, n.host.ConnectedIDs())
}

// relay把一条已通过本地校验的入站消息转发给除来源以外的其余对端。
func (n *networkHandle) relay(from string, digest hash.Digest, f *p2p.Frame) {
	if n.host == nil || n.gossip == nil {
		return
	}
	n.gossip.Relay(from, digest.Bytes(), f, n.host.ConnectedIDs())
}

func (n *networkHandle) send(peerID string, f *p2p.Frame) {
	if n.host == nil {
		return
	}
	n.host.Send(peerID, f)
}

func (n *networkHandle) penalize(peerID string, amount int) {
	if n.host == nil {
		return
	}
	n.host.Peers.Penalize(peerID, amount)
}

// syncSink把SyncSession推进出的连续前缀区块逐一转交给编排器的单写者事件循环，
// 与网络直接收到的单个区块走同一条SubmitBlock路径。
type syncSink struct {
	manager *orchestrator.Manager
	logger  log.Logger
}

func (s *syncSink) AdmitBlock(height uint64, block *types.Block) {
	if err := s.manager.SubmitBlock(block); err != nil {
		s.logger.Warnf("应用同步区块失败 height=%d: %v", height, err)
	}
}

// frameRouter是Host.onFrame的唯一实现：解码收到的帧、校验握手、驱动头优先同步，
// 并把声明式gossip消息（区块/交易/任务/算力证明）转交给编排器或转发给其余对端。
type frameRouter struct {
	logger    log.Logger
	networkID string
	store     *badgerstore.Store
	mempool   *mempool.Pool
	reader    *orchestrator.StoreChainReader
	manager   *orchestrator.Manager
	network   *networkHandle
	sync      *p2p.SyncSession
}

func newFrameRouter(
	opts *config.Options,
	store *badgerstore.Store,
	pool *mempool.Pool,
	reader *orchestrator.StoreChainReader,
	manager *orchestrator.Manager,
	network *networkHandle,
	logger log.Logger,
) *frameRouter {
	r := &frameRouter{
		logger:    logger.With("component", "p2p"),
		networkID: opts.Node.NetworkID,
		store:     store,
		mempool:   pool,
		reader:    reader,
		manager:   manager,
		network:   network,
	}
	r.sync = p2p.NewSyncSession(reader.TipHeight(), &syncSink{manager: manager, logger: r.logger})
	return r
}

// HandleFrame按消息类型分发，签名与p2p.NewHost期望的onFrame回调一致。
func (r *frameRouter) HandleFrame(peerID string, f *p2p.Frame) {
	switch f.Type {
	case p2p.MsgHandshake:
		r.handleHandshake(peerID, f)
	case p2p.MsgPing:
		r.network.send(peerID, &p2p.Frame{Type: p2p.MsgPong})
	case p2p.MsgPong:
		// 存活确认，不需要额外动作
	case p2p.MsgHeadersRequest:
		r.handleHeadersRequest(peerID, f)
	case p2p.MsgHeaders:
		r.handleHeaders(peerID, f)
	case p2p.MsgBlockRequest:
		r.handleBlockRequest(peerID, f)
	case p2p.MsgBlock:
		r.handleBlock(peerID, f)
	case p2p.MsgTxAnnounce:
		r.handleInv(peerID, f, p2p.MsgTxRequest)
	case p2p.MsgTxRequest:
		r.handleTxRequest(peerID, f)
	case p2p.MsgTx:
		r.handleTx(peerID, f)
	case p2p.MsgTaskAnnounce:
		r.handleInv(peerID, f, p2p.MsgTaskRequest)
	case p2p.MsgTaskRequest:
		r.handleTaskRequest(peerID, f)
	case p2p.MsgTask:
		r.handleTask(peerID, f)
	case p2p.MsgSolutionSubmit:
		r.handleSolution(peerID, f)
	case p2p.MsgInv:
		r.logger.Debugf("收到来自%s的通用inv通告，交由具体announce消息驱动请求", peerID)
	case p2p.MsgReject:
		r.logger.Debugf("收到来自%s的reject: %s", peerID, string(f.Payload))
	default:
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
	}
}

func (r *frameRouter) handleHandshake(peerID string, f *p2p.Frame) {
	hs, err := p2p.DecodeHandshakePayload(f.Payload)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	if hs.NetworkID != r.networkID {
		r.logger.Warnf("对端%s的networkID(%s)与本节点(%s)不一致，拒绝", peerID, hs.NetworkID, r.networkID)
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	tipDigest, tipHeight, err := r.store.GetTip()
	if err != nil {
		r.logger.Warnf("读取本地链尖失败: %v", err)
		return
	}
	reply := &p2p.HandshakePayload{
		ProtocolVersion: hs.ProtocolVersion,
		NetworkID:       r.networkID,
		TipDigestHex:    tipDigest.String(),
		TipHeight:       tipHeight,
		UserAgent:       "ai3chain-node",
	}
	r.network.send(peerID, &p2p.Frame{Type: p2p.MsgHandshake, Payload: reply.Encode()})

	if hs.TipHeight > tipHeight {
		req := r.sync.RequestHeadersFrom(r.reader, peerID)
		r.network.send(peerID, &p2p.Frame{Type: p2p.MsgHeadersRequest, Payload: req.Encode()})
	}
}

// headersResponseBatchSize限制一次headers响应携带的区块头数量，避免对端
// 远远落后时一次性把整段链塞进单个消息。
const headersResponseBatchSize = 2000

func (r *frameRouter) handleHeadersRequest(peerID string, f *p2p.Frame) {
	req, err := p2p.DecodeHeadersRequestPayload(f.Payload)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}

	forkHeight, ok := r.findCommonHeight(req.Locator)
	if !ok {
		r.network.send(peerID, &p2p.Frame{Type: p2p.MsgReject, Payload: []byte(req.CorrelationID)})
		return
	}

	tip := r.reader.TipHeight()
	headers := make([]*types.BlockHeader, 0, headersResponseBatchSize)
	for h := forkHeight + 1; h <= tip && len(headers) < headersResponseBatchSize; h++ {
		header, err := r.store.GetHeaderByHeight(h)
		if err != nil {
			break
		}
		headers = append(headers, header)
	}

	resp := &p2p.HeadersPayload{CorrelationID: req.CorrelationID, Headers: headers}
	r.network.send(peerID, &p2p.Frame{Type: p2p.MsgHeaders, Payload: resp.Encode()})
}

// findCommonHeight把一份从对端链尖倒序取样的定位点，逐个对照本地存储，
// 返回双方共享的最高区块高度。定位点本身按BuildLocator的约定由近到远排列，
// 因此第一个命中的条目就是最近的公共点。
func (r *frameRouter) findCommonHeight(locator []hash.Digest) (uint64, bool) {
	for _, digest := range locator {
		if digest.IsZero() {
			return 0, true
		}
		header, err := r.reader.HeaderByDigest(digest)
		if err == nil {
			return header.Height, true
		}
	}
	return 0, false
}

func (r *frameRouter) handleHeaders(peerID string, f *p2p.Frame) {
	resp, err := p2p.DecodeHeadersPayload(f.Payload)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	if _, ok := r.sync.Requests.Resolve(resp.CorrelationID); !ok {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	base := r.reader.TipHeight() + 1
	for i, header := range resp.Headers {
		header.Height = base + uint64(i)
		req := r.sync.RequestBlockFrom(header.Digest(), peerID)
		r.network.send(peerID, &p2p.Frame{Type: p2p.MsgBlockRequest, Payload: req.Encode()})
	}
}

func (r *frameRouter) handleBlockRequest(peerID string, f *p2p.Frame) {
	req, err := p2p.DecodeBlockRequestPayload(f.Payload)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	block, err := r.store.GetBlock(req.BlockDigest)
	if err != nil {
		r.network.send(peerID, &p2p.Frame{Type: p2p.MsgReject, Payload: []byte(req.CorrelationID)})
		return
	}
	r.network.send(peerID, &p2p.Frame{Type: p2p.MsgBlock, Payload: block.Encode()})
}

func (r *frameRouter) handleBlock(peerID string, f *p2p.Frame) {
	block, err := types.DecodeBlock(f.Payload)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	digest := block.Digest()
	if err := r.manager.SubmitBlock(block); err != nil {
		r.logger.Warnf("对端%s的区块被拒绝: %v", peerID, err)
		r.network.penalize(peerID, p2p.MisbehaviorInvalidBlock)
		return
	}
	r.sync.OnBlockReceived(block.Header.Height, block)
	r.network.relay(peerID, digest, f)
}

func (r *frameRouter) handleInv(peerID string, f *p2p.Frame, requestType p2p.MessageType) {
	inv, err := p2p.DecodeInvPayload(f.Payload, hash.Size)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	for _, raw := range inv.Digests {
		digest, ok := hash.FromBytes(raw)
		if !ok {
			continue
		}
		if r.haveObject(inv.Kind, digest) {
			continue
		}
		r.network.send(peerID, &p2p.Frame{Type: requestType, Payload: digest.Bytes()})
	}
}

func (r *frameRouter) haveObject(kind p2p.MessageType, digest hash.Digest) bool {
	switch kind {
	case p2p.MsgTx:
		_, ok := r.mempool.Get(digest)
		return ok
	case p2p.MsgTask:
		_, err := r.store.GetTask(digest)
		return err == nil
	default:
		return false
	}
}

func (r *frameRouter) handleTxRequest(peerID string, f *p2p.Frame) {
	digest, ok := hash.FromBytes(f.Payload)
	if !ok {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	tx, ok := r.mempool.Get(digest)
	if !ok {
		return
	}
	r.network.send(peerID, &p2p.Frame{Type: p2p.MsgTx, Payload: tx.Encode()})
}

func (r *frameRouter) handleTx(peerID string, f *p2p.Frame) {
	tx, err := types.DecodeTransaction(f.Payload)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	if err := r.manager.SubmitTransaction(tx); err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorInvalidTransaction)
		return
	}
	r.network.relay(peerID, tx.Digest(), f)
}

func (r *frameRouter) handleTaskRequest(peerID string, f *p2p.Frame) {
	req, err := p2p.DecodeTaskRequestPayload(f.Payload)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	task, err := r.store.GetTask(req.TaskID)
	if err != nil {
		r.network.send(peerID, &p2p.Frame{Type: p2p.MsgReject, Payload: []byte(req.CorrelationID)})
		return
	}
	r.network.send(peerID, &p2p.Frame{Type: p2p.MsgTask, Payload: task.Encode()})
}

func (r *frameRouter) handleTask(peerID string, f *p2p.Frame) {
	task, err := tensor.DecodeTask(f.Payload)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	if err := r.manager.SubmitTaskOpened(task); err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	r.network.relay(peerID, task.TaskID, f)
}

func (r *frameRouter) handleSolution(peerID string, f *p2p.Frame) {
	claim, err := tensor.DecodeClaim(f.Payload)
	if err != nil {
		r.network.penalize(peerID, p2p.MisbehaviorProtocolViolation)
		return
	}
	if err := r.manager.SubmitClaim(claim); err != nil {
		r.logger.Warnf("对端%s提交的任务声明被拒绝: %v", peerID, err)
		r.network.penalize(peerID, p2p.MisbehaviorInvalidClaim)
		return
	}
	r.network.relay(peerID, claim.Digest(), f)
}

// provideHost构造承载所有连接层状态的Host，onFrame回调绑定到frameRouter。
// Host内部的accept循环与每个对端的收发goroutine都挂在这里新建的ctx之下，
// OnStop取消ctx并关闭监听端点，使所有派生goroutine随之退出。
func provideHost(lc fx.Lifecycle, opts *config.Options, store *badgerstore.Store, router *frameRouter, logger log.Logger) (*p2p.Host, error) {
	ctx, cancel := context.WithCancel(context.Background())
	host, err := p2p.NewHost(ctx, p2p.Options{
		ListenAddr: opts.P2P.ListenAddr,
		Logger:     logger.With("component", "p2p"),
	}, store, router.HandleFrame)
	if err != nil {
		cancel()
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return host.Close()
		},
	})
	return host, nil
}

func provideGossipRouter(host *p2p.Host) *p2p.GossipRouter {
	return p2p.NewGossipRouter(host.Seen, host.Peers, host)
}
