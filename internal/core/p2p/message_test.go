package p2p

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/ai3chain/node/internal/core/crypto/hash"
)

func TestFrameRoundTrip(t *testing.T) {
	f := &Frame{Type: MsgBlock, Payload: []byte("block-bytes")}
	decoded, err := DecodeFrame(f.Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if decoded.Type != f.Type || string(decoded.Payload) != string(f.Payload) {
		t.Errorf("解码结果 = %+v, 期望 %+v", decoded, f)
	}
}

func TestHandshakePayloadRoundTrip(t *testing.T) {
	h := &HandshakePayload{
		ProtocolVersion: 1,
		NetworkID:       "mainnet",
		TipDigestHex:    "deadbeef",
		TipHeight:       42,
		UserAgent:       "ai3chain/0.1",
		Services:        3,
	}
	decoded, err := DecodeHandshakePayload(h.Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if *decoded != *h {
		t.Errorf("解码结果 = %+v, 期望 %+v", decoded, h)
	}
}

func TestInvPayloadRoundTrip(t *testing.T) {
	p := &InvPayload{
		Kind:    MsgBlock,
		Digests: [][]byte{make([]byte, 32), make([]byte, 32)},
	}
	p.Digests[0][0] = 0xAA
	p.Digests[1][0] = 0xBB

	decoded, err := DecodeInvPayload(p.Encode(), 32)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if len(decoded.Digests) != 2 || decoded.Digests[0][0] != 0xAA || decoded.Digests[1][0] != 0xBB {
		t.Errorf("解码结果 = %+v", decoded)
	}
}

func TestDecodeFrameRejectsTrailingBytes(t *testing.T) {
	f := &Frame{Type: MsgPing}
	raw := append(f.Encode(), 0xFF)
	if _, err := DecodeFrame(raw); err == nil {
		t.Errorf("末尾多余字节应被拒绝")
	}
}

func TestHeadersRequestPayloadRoundTrip(t *testing.T) {
	var d1, d2 hash.Digest
	d1[0], d2[0] = 1, 2
	p := &HeadersRequestPayload{CorrelationID: "req-1", Locator: []hash.Digest{d1, d2}}

	decoded, err := DecodeHeadersRequestPayload(p.Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if decoded.CorrelationID != p.CorrelationID || len(decoded.Locator) != 2 || decoded.Locator[0] != d1 {
		t.Errorf("解码结果 = %+v, 期望 %+v", decoded, p)
	}
}

func TestBlockRequestPayloadRoundTrip(t *testing.T) {
	var digest hash.Digest
	digest[0] = 0x42
	p := &BlockRequestPayload{CorrelationID: "req-2", BlockDigest: digest}

	decoded, err := DecodeBlockRequestPayload(p.Encode())
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if decoded.CorrelationID != p.CorrelationID || decoded.BlockDigest != digest {
		t.Errorf("解码结果 = %+v, 期望 %+v", decoded, p)
	}
}

func TestReadFrameOverStream(t *testing.T) {
	var buf bytes.Buffer
	frames := []*Frame{
		{Type: MsgPing},
		{Type: MsgTx, Payload: []byte("tx-bytes")},
	}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("写入失败: %v", err)
		}
	}

	r := bufio.NewReader(&buf)
	for _, want := range frames {
		got, err := ReadFrame(r)
		if err != nil {
			t.Fatalf("读取失败: %v", err)
		}
		if got.Type != want.Type || string(got.Payload) != string(want.Payload) {
			t.Errorf("读取结果 = %+v, 期望 %+v", got, want)
		}
	}
}
