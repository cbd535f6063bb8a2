// Package crypto provides the SECP256K1 key pairs, ECDSA signatures, and
// address derivation consumed by the consensus and wallet layers.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PrivateKey wraps a SECP256K1 scalar.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey wraps a SECP256K1 point.
type PublicKey struct {
	key *btcec.PublicKey
}

// GenerateKey produces a fresh random key pair.
func GenerateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PublicKey returns the public half of priv.
func (priv *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: priv.key.PubKey()}
}

// Address derives the 20-hex-character address: SHA-256 of the compressed
// SEC1 point encoding, truncated to its first 20 hex characters.
func (pub *PublicKey) Address() string {
	compressed := pub.key.SerializeCompressed()
	sum := sha256.Sum256(compressed)
	return hex.EncodeToString(sum[:])[:20]
}

// PrivateKeyFromHex parses a raw 32-byte scalar, hex-encoded to 64
// characters — the restore form a wallet owner supplies directly (as
// opposed to EncodePEM's SEC1 wrapping), matching the control surface's
// `POST /wallet {private_key}` acceptance check.
func PrivateKeyFromHex(hexStr string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, errors.New("crypto: private key must be 32 bytes (64 hex characters)")
	}
	key, _ := btcec.PrivKeyFromBytes(raw)
	return &PrivateKey{key: key}, nil
}

// Hex renders priv as a raw 64-character hex scalar, the counterpart to
// PrivateKeyFromHex.
func (priv *PrivateKey) Hex() string {
	return hex.EncodeToString(priv.key.Serialize())
}
