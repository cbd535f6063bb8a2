package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Signature is an ECDSA (r, s) pair over SHA-256 of a canonical JSON payload.
type Signature struct {
	R *big.Int
	S *big.Int
}

// Hex renders the signature as "<r_hex>:<s_hex>" for wire transport.
func (s Signature) Hex() string {
	if s.R == nil || s.S == nil {
		return ""
	}
	return hex.EncodeToString(s.R.Bytes()) + ":" + hex.EncodeToString(s.S.Bytes())
}

// SignatureFromHex parses the "<r_hex>:<s_hex>" wire form produced by Hex.
func SignatureFromHex(s string) (Signature, error) {
	var sep int = -1
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return Signature{}, fmt.Errorf("signature: malformed %q", s)
	}
	rb, err := hex.DecodeString(s[:sep])
	if err != nil {
		return Signature{}, fmt.Errorf("signature: bad r: %w", err)
	}
	sb, err := hex.DecodeString(s[sep+1:])
	if err != nil {
		return Signature{}, fmt.Errorf("signature: bad s: %w", err)
	}
	return Signature{R: new(big.Int).SetBytes(rb), S: new(big.Int).SetBytes(sb)}, nil
}

// Sign produces an ECDSA signature over SHA-256(canonical), the canonical
// JSON encoding of whatever is being signed (an output map, in practice).
func (priv *PrivateKey) Sign(canonical []byte) (Signature, error) {
	digest := sha256.Sum256(canonical)
	sig := ecdsa.Sign(priv.key, digest[:])
	return Signature{R: new(big.Int).SetBytes(sig.R().Bytes()), S: new(big.Int).SetBytes(sig.S().Bytes())}, nil
}

// Verify checks sig against canonical under pub. Errors in signature
// reconstruction are treated as verification failure (returns false), never
// panic — callers only care whether the signature holds.
func Verify(pub *PublicKey, canonical []byte, sig Signature) bool {
	if pub == nil || pub.key == nil || sig.R == nil || sig.S == nil {
		return false
	}
	var rBytes, sBytes [32]byte
	sig.R.FillBytes(rBytes[:])
	sig.S.FillBytes(sBytes[:])
	var modR, modS btcec.ModNScalar
	if overflow := modR.SetBytes(&rBytes); overflow != 0 {
		return false
	}
	if overflow := modS.SetBytes(&sBytes); overflow != 0 {
		return false
	}
	ecSig := ecdsa.NewSignature(&modR, &modS)
	digest := sha256.Sum256(canonical)
	return ecSig.Verify(digest[:], pub.key)
}
