// Package p2p 实现节点间的QUIC传输、握手、消息编解码、头优先同步与
// 声明式gossip传播（spec 第4.5节）。
package p2p

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/codec"
	"github.com/ai3chain/node/internal/core/crypto/hash"
)

// MessageType 标记一条线上消息的种类，固定单字节tag，不认识的tag应被拒绝
// 而不是尝试猜测解析（与Transaction/Task的可扩展tag枚举同一套约定）。
type MessageType byte

const (
	MsgPing            MessageType = 0
	MsgPong            MessageType = 1
	MsgHeadersRequest  MessageType = 2
	MsgHeaders         MessageType = 3
	MsgBlockRequest    MessageType = 4
	MsgBlock           MessageType = 5
	MsgTxAnnounce      MessageType = 6
	MsgTxRequest       MessageType = 7
	MsgTx              MessageType = 8
	MsgTaskAnnounce    MessageType = 9
	MsgTaskRequest     MessageType = 10
	MsgTask            MessageType = 11
	MsgSolutionSubmit  MessageType = 12
	MsgInv             MessageType = 13
	MsgReject          MessageType = 14
	MsgHandshake       MessageType = 15
)

// MaxMessageBytes 是单条消息负载的协议上限，防止对端通过巨型消息耗尽内存。
const MaxMessageBytes = 8 << 20 // 8MiB，留足一个最大区块的余量

// Frame 是一条线上消息：类型标签 + 负载字节，负载的具体结构由类型决定。
type Frame struct {
	Type    MessageType
	Payload []byte
}

// Encode 编码一个帧：类型字节 + varint长度前缀负载。
func (f *Frame) Encode() []byte {
	w := codec.NewWriter(len(f.Payload) + 8)
	w.PutByte(byte(f.Type))
	w.PutBytes(f.Payload)
	return w.Bytes()
}

// DecodeFrame 解码一个帧，对负载长度设有协议上限。
func DecodeFrame(b []byte) (*Frame, error) {
	r := codec.NewReader(b, MaxMessageBytes)
	typeByte, err := r.Byte()
	if err != nil {
		return nil, err
	}
	payload, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return &Frame{Type: MessageType(typeByte), Payload: payload}, nil
}

// WriteFrame把一个帧写入一条持久QUIC流——每个对端维护的那条长期双向流上，
// 帧接连写入，没有消息边界之外的额外分隔符。
func WriteFrame(w io.Writer, f *Frame) error {
	_, err := w.Write(f.Encode())
	return err
}

// ReadFrame从一条持久QUIC流上读取下一个帧，r必须实现io.ByteReader（*bufio.Reader满足），
// 因为uvarint长度前缀需要逐字节读取。
func ReadFrame(r *bufio.Reader) (*Frame, error) {
	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	length, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if length > MaxMessageBytes {
		return nil, fmt.Errorf("p2p: frame payload %d exceeds protocol maximum", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &Frame{Type: MessageType(typeByte), Payload: payload}, nil
}

// HeadersRequestPayload是MsgHeadersRequest的负载：一个定位点序列加一个关联ID。
// CorrelationID把响应关联回这次具体的请求，使得并发发往同一对端的多个请求
// （headers_request与block_request可能同时在途）不依赖"先发先回"的顺序假设。
type HeadersRequestPayload struct {
	CorrelationID string
	Locator       []hash.Digest
}

// Encode编码一个headers_request负载。
func (p *HeadersRequestPayload) Encode() []byte {
	w := codec.NewWriter(64 + len(p.Locator)*hash.Size)
	w.PutBytes([]byte(p.CorrelationID))
	w.PutUvarint(uint64(len(p.Locator)))
	for _, d := range p.Locator {
		w.PutFixedBytes(d.Bytes())
	}
	return w.Bytes()
}

// DecodeHeadersRequestPayload解码一个headers_request负载。
func DecodeHeadersRequestPayload(b []byte) (*HeadersRequestPayload, error) {
	r := codec.NewReader(b, 0)
	idBytes, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	count, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	locator := make([]hash.Digest, count)
	for i := range locator {
		d, err := r.FixedBytes(hash.Size)
		if err != nil {
			return nil, err
		}
		copy(locator[i][:], d)
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return &HeadersRequestPayload{CorrelationID: string(idBytes), Locator: locator}, nil
}

// BlockRequestPayload是MsgBlockRequest的负载：请求单个区块体，携带同一套关联ID约定。
type BlockRequestPayload struct {
	CorrelationID string
	BlockDigest   hash.Digest
}

// Encode编码一个block_request负载。
func (p *BlockRequestPayload) Encode() []byte {
	w := codec.NewWriter(64 + hash.Size)
	w.PutBytes([]byte(p.CorrelationID))
	w.PutFixedBytes(p.BlockDigest.Bytes())
	return w.Bytes()
}

// DecodeBlockRequestPayload解码一个block_request负载。
func DecodeBlockRequestPayload(b []byte) (*BlockRequestPayload, error) {
	r := codec.NewReader(b, 0)
	idBytes, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	digestBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	var digest hash.Digest
	copy(digest[:], digestBytes)
	return &BlockRequestPayload{CorrelationID: string(idBytes), BlockDigest: digest}, nil
}

// TaskRequestPayload是MsgTaskRequest的负载：请求单个任务的完整内容，与
// BlockRequestPayload同一套关联ID约定。
type TaskRequestPayload struct {
	CorrelationID string
	TaskID        hash.Digest
}

// Encode编码一个task_request负载。
func (p *TaskRequestPayload) Encode() []byte {
	w := codec.NewWriter(64 + hash.Size)
	w.PutBytes([]byte(p.CorrelationID))
	w.PutFixedBytes(p.TaskID.Bytes())
	return w.Bytes()
}

// DecodeTaskRequestPayload解码一个task_request负载。
func DecodeTaskRequestPayload(b []byte) (*TaskRequestPayload, error) {
	r := codec.NewReader(b, 0)
	idBytes, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	digestBytes, err := r.FixedBytes(hash.Size)
	if err != nil {
		return nil, err
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	var taskID hash.Digest
	copy(taskID[:], digestBytes)
	return &TaskRequestPayload{CorrelationID: string(idBytes), TaskID: taskID}, nil
}

// HeadersPayload是MsgHeaders消息的负载：对一次headers_request的批量区块头响应，
// CorrelationID对应请求方填入的同一个值，使响应能在并发在途请求中被唯一认领。
type HeadersPayload struct {
	CorrelationID string
	Headers       []*types.BlockHeader
}

// Encode编码一个headers负载。
func (p *HeadersPayload) Encode() []byte {
	w := codec.NewWriter(64 + len(p.Headers)*128)
	w.PutBytes([]byte(p.CorrelationID))
	w.PutUvarint(uint64(len(p.Headers)))
	for _, h := range p.Headers {
		w.PutBytes(h.Encode())
	}
	return w.Bytes()
}

// DecodeHeadersPayload解码一个headers负载。
func DecodeHeadersPayload(b []byte) (*HeadersPayload, error) {
	r := codec.NewReader(b, MaxMessageBytes)
	idBytes, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	count, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	headers := make([]*types.BlockHeader, count)
	for i := range headers {
		raw, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		h, err := DecodeBlockHeader(raw)
		if err != nil {
			return nil, err
		}
		headers[i] = h
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return &HeadersPayload{CorrelationID: string(idBytes), Headers: headers}, nil
}

// HandshakePayload 是MsgHandshake消息的负载：协议版本、网络标识、当前链尖及其高度、
// 用户代理字符串与服务位掩码（spec 第4.5节）。
type HandshakePayload struct {
	ProtocolVersion uint32
	NetworkID       string
	TipDigestHex    string
	TipHeight       uint64
	UserAgent       string
	Services        uint64
}

// Encode 编码握手负载。
func (h *HandshakePayload) Encode() []byte {
	w := codec.NewWriter(128)
	w.PutUint32LE(h.ProtocolVersion)
	w.PutBytes([]byte(h.NetworkID))
	w.PutBytes([]byte(h.TipDigestHex))
	w.PutUint64LE(h.TipHeight)
	w.PutBytes([]byte(h.UserAgent))
	w.PutUint64LE(h.Services)
	return w.Bytes()
}

// DecodeHandshakePayload 解码握手负载。
func DecodeHandshakePayload(b []byte) (*HandshakePayload, error) {
	r := codec.NewReader(b, 1024)
	h := &HandshakePayload{}
	var err error

	if h.ProtocolVersion, err = r.Uint32LE(); err != nil {
		return nil, err
	}
	networkID, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	h.NetworkID = string(networkID)

	tipHex, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	h.TipDigestHex = string(tipHex)

	if h.TipHeight, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	userAgent, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	h.UserAgent = string(userAgent)

	if h.Services, err = r.Uint64LE(); err != nil {
		return nil, err
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return h, nil
}

// InvPayload 是MsgInv消息的负载：一组摘要，宣告己方已知的对象（区块/交易/任务）
// 而不携带内容本身，供对端决定是否发起请求。
type InvPayload struct {
	Kind    MessageType // MsgBlock / MsgTx / MsgTask 之一
	Digests [][]byte
}

// Encode 编码一个inv负载。
func (p *InvPayload) Encode() []byte {
	w := codec.NewWriter(1 + len(p.Digests)*36)
	w.PutByte(byte(p.Kind))
	w.PutUvarint(uint64(len(p.Digests)))
	for _, d := range p.Digests {
		w.PutFixedBytes(d)
	}
	return w.Bytes()
}

// DecodeInvPayload 解码一个inv负载。
func DecodeInvPayload(b []byte, digestSize int) (*InvPayload, error) {
	r := codec.NewReader(b, 0)
	kindByte, err := r.Byte()
	if err != nil {
		return nil, err
	}
	count, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	digests := make([][]byte, count)
	for i := range digests {
		d, err := r.FixedBytes(digestSize)
		if err != nil {
			return nil, err
		}
		digests[i] = d
	}
	if err := r.ReadAll(); err != nil {
		return nil, err
	}
	return &InvPayload{Kind: MessageType(kindByte), Digests: digests}, nil
}
