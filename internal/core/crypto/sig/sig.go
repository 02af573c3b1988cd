// Package sig 实现交易签名与验证，使用紧凑64字节格式（r‖s）。
//
// 交易在r‖s之外单独携带发送方的压缩公钥字段（见 chain/types），
// 因为协议地址是公钥的哈希而非公钥本身：验证时先从公钥派生地址并比对，
// 再用公钥做常规（非可恢复）ECDSA验证。
package sig

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	decredSecp "github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
)

// Size 是紧凑签名的字节长度：32字节r + 32字节s。
const Size = 64

// Sign 对摘要签名，返回紧凑64字节格式。
func Sign(priv *btcec.PrivateKey, digest hash.Digest) ([]byte, error) {
	signature := ecdsa.Sign(priv, digest.Bytes())
	r, s, err := splitDER(signature.Serialize())
	if err != nil {
		return nil, fmt.Errorf("sig: unexpected signature shape: %w", err)
	}
	out := make([]byte, Size)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}

// Verify 校验一个紧凑签名是否对摘要和公开地址合法。
func Verify(pubKeyBytes []byte, digest hash.Digest, compactSig []byte, expectedAddr keys.Address) (bool, error) {
	if len(compactSig) != Size {
		return false, fmt.Errorf("sig: compact signature must be %d bytes, got %d", Size, len(compactSig))
	}
	if keys.DeriveAddress(pubKeyBytes) != expectedAddr {
		return false, fmt.Errorf("sig: public key does not derive expected address")
	}
	pub, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("sig: parse public key: %w", err)
	}

	var rScalar, sScalar decredSecp.ModNScalar
	if rScalar.SetByteSlice(compactSig[:32]) || sScalar.SetByteSlice(compactSig[32:]) {
		return false, fmt.Errorf("sig: r or s out of range")
	}
	parsed := ecdsa.NewSignature(&rScalar, &sScalar)
	return parsed.Verify(digest.Bytes(), pub), nil
}

// splitDER 从btcec序列化的标准DER签名中抽取r、s整数分量。
func splitDER(der []byte) (*big.Int, *big.Int, error) {
	if len(der) < 8 || der[0] != 0x30 {
		return nil, nil, fmt.Errorf("not a DER sequence")
	}
	idx := 2
	if der[idx] != 0x02 {
		return nil, nil, fmt.Errorf("expected integer tag for r")
	}
	idx++
	rlen := int(der[idx])
	idx++
	if idx+rlen > len(der) {
		return nil, nil, fmt.Errorf("truncated r")
	}
	r := new(big.Int).SetBytes(der[idx : idx+rlen])
	idx += rlen

	if idx >= len(der) || der[idx] != 0x02 {
		return nil, nil, fmt.Errorf("expected integer tag for s")
	}
	idx++
	slen := int(der[idx])
	idx++
	if idx+slen > len(der) {
		return nil, nil, fmt.Errorf("truncated s")
	}
	s := new(big.Int).SetBytes(der[idx : idx+slen])
	return r, s, nil
}
