// Package addresscodec turns chain-specific private key material into
// the wire-format address for that chain, and validates address
// syntax. Grounded on OKaluzny-wallet-demo's internal/wallet/eth.go
// (Keccak-256 EVM derivation) and internal/wallet/btc.go (Base58Check
// pattern, here swapped to Solana's ed25519 public key base58).
package addresscodec

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/defisafe/hotwallet/internal/walleterrors"
)

var evmAddressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// EVMAddress derives the lowercase-hex 0x-prefixed address for a
// 32-byte secp256k1 private scalar:
// "0x" || hex(keccak256(uncompressed_pubkey[1:65])[12:32]).
func EVMAddress(priv []byte) (string, error) {
	if len(priv) != 32 {
		return "", walleterrors.New(walleterrors.KindValidation, "private key must be 32 bytes")
	}
	_, pub := btcec.PrivKeyFromBytes(priv)
	uncompressed := pub.SerializeUncompressed()
	hash := keccak256(uncompressed[1:])
	return fmt.Sprintf("0x%s", hex.EncodeToString(hash[12:])), nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// ValidateEVMAddress reports whether addr is a syntactically valid
// EVM address: ^0x[0-9a-fA-F]{40}$.
func ValidateEVMAddress(addr string) bool {
	return evmAddressRE.MatchString(addr)
}

// SolanaAddress base58-encodes the ed25519 public key derived from a
// 32-byte ed25519 seed.
func SolanaAddress(seed []byte) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", walleterrors.New(walleterrors.KindValidation, "ed25519 seed must be 32 bytes")
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	return base58.Encode(pub), nil
}

// ValidateSolanaAddress reports whether addr base58-decodes to exactly
// 32 bytes (an ed25519 public key).
func ValidateSolanaAddress(addr string) bool {
	b, err := base58.Decode(addr)
	if err != nil {
		return false
	}
	return len(b) == ed25519.PublicKeySize
}
