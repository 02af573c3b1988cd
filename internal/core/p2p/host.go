package p2p

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/ai3chain/node/internal/platform/log"
)

// NextProto是QUIC TLS握手协商的应用协议名，版本号随协议不兼容变更递增。
const NextProto = "ai3chain/1"

// Options配置Host的构建行为。
type Options struct {
	ListenAddr string
	TLSCert    *tls.Certificate // 为空时生成一个临时自签名ed25519证书
	Logger     log.Logger
}

// Host封装一个QUIC监听端点与本节点运行所需的连接层状态：每个对端一条持久
// 双向流承载所有往来帧（spec第4.5节"面向流的每对端连接"），外加声誉管理、
// gossip去重、出站队列与地址簿，供同步与gossip逻辑在其上构建。对端身份是
// 其自签名证书公钥的SHA-256摘要，不依赖任何中心化PKI或握手之外的发现协议。
type Host struct {
	logger   log.Logger
	tlsConfig *tls.Config
	quicConfig *quic.Config
	listener *quic.Listener

	Peers    *Manager
	Seen     *SeenCache
	AddrBook AddrBook

	connMu sync.Mutex
	conns  map[string]*quic.Conn

	queuesMu sync.Mutex
	queues   map[string]*OutboundQueue

	onFrame func(peerID string, f *Frame)
}

// NewHost在opts.ListenAddr上打开一个QUIC监听端点并挂载本协议的连接处理逻辑。
// ctx控制监听循环与所有由此派生的对端goroutine的生命周期。
func NewHost(ctx context.Context, opts Options, addrBook AddrBook, onFrame func(peerID string, f *Frame)) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	cert := opts.TLSCert
	if cert == nil {
		var err error
		cert, err = generateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("p2p: generate host identity: %w", err)
		}
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{*cert},
		InsecureSkipVerify: true, // 身份来自证书公钥摘要而非CA信任链，握手层只需要加密通道
		NextProtos:         []string{NextProto},
	}
	quicConfig := &quic.Config{
		KeepAlivePeriod: 30 * time.Second,
	}

	listener, err := quic.ListenAddr(opts.ListenAddr, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("p2p: listen %s: %w", opts.ListenAddr, err)
	}

	seen, err := NewSeenCache(DefaultDedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("p2p: build dedup cache: %w", err)
	}

	h := &Host{
		logger:     logger,
		tlsConfig:  tlsConfig,
		quicConfig: quicConfig,
		listener:   listener,
		Peers:      NewManager(),
		Seen:       seen,
		AddrBook:   addrBook,
		conns:      make(map[string]*quic.Conn),
		queues:     make(map[string]*OutboundQueue),
		onFrame:    onFrame,
	}

	go h.acceptLoop(ctx)
	return h, nil
}

// Addr返回本节点监听端点的本地地址。
func (h *Host) Addr() string { return h.listener.Addr().String() }

// ConnectedIDs返回当前仍保持连接的全部对端ID，gossip广播按这份列表逐一
// 枚举转发目标（Relay内部再用Seen去重、跳过来源对端，并丢弃来自已封禁对端的消息；
// 转发目标本身不按封禁状态过滤）。
func (h *Host) ConnectedIDs() []string {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	return ids
}

// Close关闭监听端点，中断所有进行中的连接。
func (h *Host) Close() error { return h.listener.Close() }

func (h *Host) acceptLoop(ctx context.Context) {
	for {
		conn, err := h.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Warnf("接受入站连接失败: %v", err)
			continue
		}
		go h.handleConnection(ctx, conn)
	}
}

// Connect主动向addr拨号并完成本协议的流建立——拨号方负责打开那条贯穿
// 连接生命周期的单一双向流。
func (h *Host) Connect(ctx context.Context, addr string) (string, error) {
	conn, err := quic.DialAddr(ctx, addr, h.tlsConfig, h.quicConfig)
	if err != nil {
		return "", fmt.Errorf("p2p: dial %s: %w", addr, err)
	}
	peerID, err := peerIDFromConn(conn)
	if err != nil {
		conn.CloseWithError(0, "unidentifiable peer certificate")
		return "", err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream open failed")
		return "", fmt.Errorf("p2p: open stream to %s: %w", peerID, err)
	}
	h.registerConn(peerID, conn)
	go h.serveStream(ctx, peerID, stream)
	return peerID, nil
}

func (h *Host) handleConnection(ctx context.Context, conn *quic.Conn) {
	peerID, err := peerIDFromConn(conn)
	if err != nil {
		conn.CloseWithError(0, "unidentifiable peer certificate")
		return
	}
	if h.Peers.IsBanned(peerID) {
		conn.CloseWithError(0, "banned")
		return
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		h.logger.Warnf("接受对端 %s 的流失败: %v", peerID, err)
		return
	}
	h.registerConn(peerID, conn)
	h.serveStream(ctx, peerID, stream)
}

func (h *Host) registerConn(peerID string, conn *quic.Conn) {
	h.connMu.Lock()
	h.conns[peerID] = conn
	h.connMu.Unlock()
	h.Peers.Connected(peerID)
}

// serveStream同时驱动一个对端的发送与接收半边：接收在当前goroutine内循环阻塞，
// 发送在一个独立goroutine内驱动该对端的出站队列，两者共享同一条底层流。
func (h *Host) serveStream(ctx context.Context, peerID string, stream *quic.Stream) {
	senderCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.senderLoop(senderCtx, peerID, stream)

	reader := bufio.NewReader(stream)
	for {
		frame, err := ReadFrame(reader)
		if err != nil {
			h.disconnect(peerID)
			return
		}
		if h.onFrame != nil {
			h.onFrame(peerID, frame)
		}
	}
}

func (h *Host) senderLoop(ctx context.Context, peerID string, stream *quic.Stream) {
	q := h.queueFor(peerID)
	for {
		for {
			f := q.Dequeue()
			if f == nil {
				break
			}
			if err := WriteFrame(stream, f); err != nil {
				h.logger.Warnf("向对端 %s 写入失败: %v", peerID, err)
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.Wait():
		}
	}
}

func (h *Host) disconnect(peerID string) {
	h.connMu.Lock()
	delete(h.conns, peerID)
	h.connMu.Unlock()
	h.Peers.Disconnected(peerID)
	h.queuesMu.Lock()
	delete(h.queues, peerID)
	h.queuesMu.Unlock()
}

// Send把一帧消息投递到对端的出站队列；慢对端（队列持续接近满载）会被
// 记录一次超时型失陪分并触发队列内部的淘汰策略，而不是阻塞调用方。
func (h *Host) Send(peerID string, f *Frame) {
	q := h.queueFor(peerID)
	if q.IsSlow() {
		h.Peers.Penalize(peerID, MisbehaviorTimeout)
	}
	q.Enqueue(f)
}

func (h *Host) queueFor(peerID string) *OutboundQueue {
	h.queuesMu.Lock()
	defer h.queuesMu.Unlock()
	q, ok := h.queues[peerID]
	if !ok {
		q = NewOutboundQueue(DefaultOutboundQueueDepth)
		h.queues[peerID] = q
	}
	return q
}

// peerIDFromConn把对端自签名证书的公钥摘要为其身份：SHA-256(公钥字节)的十六进制串。
func peerIDFromConn(conn *quic.Conn) (string, error) {
	state := conn.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		return "", fmt.Errorf("p2p: peer presented no certificate")
	}
	pub, ok := state.PeerCertificates[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return "", fmt.Errorf("p2p: peer certificate key is not ed25519")
	}
	digest := sha256.Sum256(pub)
	return hex.EncodeToString(digest[:]), nil
}

// generateSelfSignedCert生成一个临时ed25519密钥对及与之匹配的自签名证书，
// 身份即由该证书的公钥派生，不需要外部CA或证书轮换机制。
func generateSelfSignedCert() (*tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"ai3chain"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(10, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, err
	}
	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}
