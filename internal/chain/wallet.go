package chain

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// Wallet holds the keypair used to sign outgoing transactions.
type Wallet struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

// NewWallet decodes a base58 private key (32-byte seed or 64-byte
// seed+public-key) into a Wallet.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	raw, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case 64:
		priv = ed25519.PrivateKey(raw)
	case 32:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("invalid private key length: %d (expected 32 or 64)", len(raw))
	}

	pub := priv.Public().(ed25519.PublicKey)
	address := base58.Encode(pub)

	log.Info().Str("address", address).Msg("wallet loaded")

	return &Wallet{privateKey: priv, publicKey: pub, address: address}, nil
}

// Address returns the wallet's base58-encoded public key.
func (w *Wallet) Address() string {
	return w.address
}

// PublicKey returns the wallet's raw public key bytes.
func (w *Wallet) PublicKey() []byte {
	return w.publicKey
}

// Sign signs message with the wallet's private key.
func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.privateKey, message)
}
