package crypto

import (
	"encoding/asn1"
	"encoding/pem"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

// secp256k1 has no entry in Go's x509 named-curve table, so
// crypto/x509.MarshalPKIXPublicKey cannot encode it; the SubjectPublicKeyInfo
// ASN.1 structure is built by hand against the curve's OID instead.
var (
	oidPublicKeyEC = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

type pkixAlgorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

type pkixPublicKeyInfo struct {
	Algorithm pkixAlgorithmIdentifier
	PublicKey asn1.BitString
}

type sec1PrivateKey struct {
	Version    int
	PrivateKey []byte
	Parameters asn1.ObjectIdentifier `asn1:"optional,explicit,tag:0"`
	PublicKey  asn1.BitString        `asn1:"optional,explicit,tag:1"`
}

const (
	pemBlockPublicKey  = "PUBLIC KEY"
	pemBlockPrivateKey = "EC PRIVATE KEY"
)

// EncodePEM renders pub as a PEM-armored SubjectPublicKeyInfo, the format
// wallets exchange and transactions carry in input.public_key.
func (pub *PublicKey) EncodePEM() (string, error) {
	uncompressed := pub.key.SerializeUncompressed()
	info := pkixPublicKeyInfo{
		Algorithm: pkixAlgorithmIdentifier{
			Algorithm:  oidPublicKeyEC,
			Parameters: oidSecp256k1,
		},
		PublicKey: asn1.BitString{Bytes: uncompressed, BitLength: len(uncompressed) * 8},
	}
	der, err := asn1.Marshal(info)
	if err != nil {
		return "", err
	}
	block := &pem.Block{Type: pemBlockPublicKey, Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodePublicKeyPEM parses a PEM SubjectPublicKeyInfo produced by EncodePEM.
func DecodePublicKeyPEM(pemStr string) (*PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("crypto: no PEM block found")
	}
	var info pkixPublicKeyInfo
	if _, err := asn1.Unmarshal(block.Bytes, &info); err != nil {
		return nil, err
	}
	if !info.Algorithm.Parameters.Equal(oidSecp256k1) {
		return nil, errors.New("crypto: unsupported curve OID in public key")
	}
	key, err := btcec.ParsePubKey(info.PublicKey.Bytes)
	if err != nil {
		return nil, err
	}
	return &PublicKey{key: key}, nil
}

// EncodePEM renders priv as a PEM-armored SEC1 EC private key, the format of
// the node's persisted wallet key file (POST /wallet takes a hex key
// instead); never gossiped.
func (priv *PrivateKey) EncodePEM() (string, error) {
	pub := priv.PublicKey().key.SerializeUncompressed()
	sec1 := sec1PrivateKey{
		Version:    1,
		PrivateKey: priv.key.Serialize(),
		Parameters: oidSecp256k1,
		PublicKey:  asn1.BitString{Bytes: pub, BitLength: len(pub) * 8},
	}
	der, err := asn1.Marshal(sec1)
	if err != nil {
		return "", err
	}
	block := &pem.Block{Type: pemBlockPrivateKey, Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodePrivateKeyPEM parses a PEM SEC1 EC private key produced by EncodePEM.
func DecodePrivateKeyPEM(pemStr string) (*PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("crypto: no PEM block found")
	}
	var sec1 sec1PrivateKey
	if _, err := asn1.Unmarshal(block.Bytes, &sec1); err != nil {
		return nil, err
	}
	key, _ := btcec.PrivKeyFromBytes(sec1.PrivateKey)
	return &PrivateKey{key: key}, nil
}
