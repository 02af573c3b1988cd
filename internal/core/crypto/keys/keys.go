// Package keys 提供secp256k1密钥生成与地址派生。
//
// 地址 = RIPEMD160(SHA256(压缩公钥))，与比特币地址派生的哈希步骤一致，
// 但不附加Base58Check——协议层地址是不透明字节（spec 第3节）。
package keys

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/ai3chain/node/internal/core/crypto/hash"
)

// AddressSize 是协议地址的字节长度。
const AddressSize = 20

// Address 是一个20字节的协议地址。
type Address [AddressSize]byte

func (a Address) Bytes() []byte { return a[:] }

func (a Address) String() string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, AddressSize*2)
	for i, b := range a {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

// AddressFromBytes 从任意字节构造地址，要求恰好AddressSize字节。
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("keys: address must be %d bytes, got %d", AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// KeyPair 持有一个secp256k1私钥及其派生的公钥/地址。
type KeyPair struct {
	Private *btcec.PrivateKey
	Public  *btcec.PublicKey
	Addr    Address
}

// Generate 生成一个新的随机密钥对。
func Generate() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("keys: generate private key: %w", err)
	}
	return fromPrivate(priv), nil
}

// FromSeed 从32字节种子确定性地派生密钥对（种子必须已经是合法的标量，调用方负责检查范围）。
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("keys: seed must be 32 bytes")
	}
	priv, _ := btcec.PrivKeyFromBytes(seed)
	return fromPrivate(priv), nil
}

func fromPrivate(priv *btcec.PrivateKey) *KeyPair {
	pub := priv.PubKey()
	addr := DeriveAddress(pub.SerializeCompressed())
	return &KeyPair{Private: priv, Public: pub, Addr: addr}
}

// DeriveAddress 从压缩公钥字节派生协议地址。
func DeriveAddress(compressedPubKey []byte) Address {
	shaHash := hash.SHA256(compressedPubKey)
	ripe := hash.RIPEMD160(shaHash.Bytes())
	var addr Address
	copy(addr[:], ripe)
	return addr
}

// RandomBytes 是对crypto/rand的薄封装，供需要安全随机数的调用方使用（如claim_nonce）。
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
