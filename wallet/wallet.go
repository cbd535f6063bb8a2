// Package wallet provides a local signing identity and balance view over
// a UTXO set.
package wallet

import (
	"github.com/agecoder/rubinchain/consensus"
	"github.com/agecoder/rubinchain/crypto"
)

// Wallet wraps a signing key pair and exposes the operations a node's
// local identity needs: its own address, its balance against a given
// UTXO set, and transaction construction/amendment.
type Wallet struct {
	priv *crypto.PrivateKey
}

// New wraps an existing private key.
func New(priv *crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv}
}

// Generate creates a fresh signing key pair.
func Generate() (*Wallet, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Wallet{priv: priv}, nil
}

// FromPrivateKeyHex restores a wallet from a raw 64-character hex private
// key, the form `POST /wallet {private_key}` accepts.
func FromPrivateKeyHex(hexStr string) (*Wallet, error) {
	priv, err := crypto.PrivateKeyFromHex(hexStr)
	if err != nil {
		return nil, err
	}
	return &Wallet{priv: priv}, nil
}

// PrivateKeyHex returns this wallet's private key as a raw 64-character
// hex scalar, for inclusion in the restore response. Never gossiped.
func (w *Wallet) PrivateKeyHex() string {
	return w.priv.Hex()
}

// PrivateKey exposes the underlying signing key for callers (e.g. the
// HTTP layer) that must persist or rotate it directly.
func (w *Wallet) PrivateKey() *crypto.PrivateKey {
	return w.priv
}

// Address returns this wallet's address.
func (w *Wallet) Address() string {
	return w.priv.PublicKey().Address()
}

// PublicKeyPEM returns this wallet's public key, PEM-encoded, for
// inclusion in transaction inputs.
func (w *Wallet) PublicKeyPEM() (string, error) {
	return w.priv.PublicKey().EncodePEM()
}

// CalculateBalance sums every UTXO entry's output addressed to this
// wallet across utxo — the UTXO-indexed balance view, not a running ledger.
func (w *Wallet) CalculateBalance(utxo consensus.UTXOView) float64 {
	return BalanceOf(utxo, w.Address())
}

// BalanceOf sums every UTXO entry's output addressed to addr. Exposed as
// a standalone function so callers (e.g. an HTTP handler checking a
// third-party address) need not construct a Wallet.
func BalanceOf(utxo consensus.UTXOView, addr string) float64 {
	var total float64
	for _, out := range utxo {
		total += out[addr]
	}
	return total
}

// CreateTransaction builds and signs a transfer of amount to recipient,
// spending this wallet's UTXOs. feeRate scales the per-byte fee (see
// consensus.NewTransaction).
func (w *Wallet) CreateTransaction(utxo consensus.UTXOView, recipient string, amount, feeRate float64) (*consensus.Transaction, error) {
	return consensus.NewTransaction(utxo, w.priv, recipient, amount, feeRate)
}

// AmendTransaction updates an existing in-flight transaction of this
// wallet's to additionally credit recipient with amount, re-signing it.
// Callers re-admit the result to the mempool, whose newer-timestamp rule
// lets it supersede the prior version.
func (w *Wallet) AmendTransaction(tx *consensus.Transaction, recipient string, amount float64) error {
	return tx.Update(w.priv, recipient, amount)
}
