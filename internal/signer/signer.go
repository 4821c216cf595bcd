// Package signer implements the two signing contracts the core
// depends on: deterministic, low-s secp256k1 ECDSA (for EVM chains)
// and standard ed25519 (for Solana) (spec §4.7).
package signer

import (
	"crypto/ed25519"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/defisafe/hotwallet/internal/secretbuf"
	"github.com/defisafe/hotwallet/internal/walleterrors"
)

// Signature is a compact 64-byte (r||s) or ed25519 signature, with an
// optional ECDSA recovery id.
type Signature struct {
	Bytes    [64]byte
	Recovery *byte
}

// RS returns the signature's r||s bytes as a slice.
func (s Signature) RS() []byte { return s.Bytes[:] }

var secp256k1HalfOrder = new(big.Int).Rsh(btcec.S256().N, 1)

// SignECDSA produces a deterministic (RFC 6979) low-s ECDSA signature
// over digest using the 32-byte secp256k1 scalar held in priv. The
// recovery id is included so the public key can be recovered from the
// signature alone.
func SignECDSA(priv *secretbuf.Buffer, digest [32]byte) (Signature, error) {
	keyBytes, err := priv.View()
	if err != nil {
		return Signature{}, walleterrors.Wrap(walleterrors.KindCrypto, "signer: reading private key", err)
	}
	pk, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return Signature{}, walleterrors.Sensitive(walleterrors.KindCrypto, "signer: invalid ecdsa private key", err)
	}

	sig, err := ethcrypto.Sign(digest[:], pk)
	if err != nil {
		return Signature{}, walleterrors.Sensitive(walleterrors.KindCrypto, "signer: ecdsa sign failed", err)
	}
	if len(sig) != 65 {
		return Signature{}, walleterrors.New(walleterrors.KindCrypto, "signer: unexpected ecdsa signature length")
	}

	s := new(big.Int).SetBytes(sig[32:64])
	if s.Cmp(secp256k1HalfOrder) > 0 {
		return Signature{}, walleterrors.New(walleterrors.KindCrypto, "signer: produced non-canonical high-s signature")
	}

	var out Signature
	copy(out.Bytes[:], sig[:64])
	rec := sig[64]
	out.Recovery = &rec
	return out, nil
}

// VerifyECDSA reports whether sig is a valid signature over digest
// for the given serialized public key (33-byte compressed or 65-byte
// uncompressed).
func VerifyECDSA(pubkey []byte, digest [32]byte, sig Signature) bool {
	return ethcrypto.VerifySignature(pubkey, digest[:], sig.RS())
}

// RecoverECDSA recovers the 65-byte uncompressed public key that
// produced sig over digest. Requires sig.Recovery to be set.
func RecoverECDSA(digest [32]byte, sig Signature) ([]byte, error) {
	if sig.Recovery == nil {
		return nil, walleterrors.New(walleterrors.KindCrypto, "signer: signature has no recovery id")
	}
	full := make([]byte, 65)
	copy(full, sig.Bytes[:])
	full[64] = *sig.Recovery

	pub, err := ethcrypto.SigToPub(digest[:], full)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "signer: recovering public key", err)
	}
	return ethcrypto.FromECDSAPub(pub), nil
}

// SignEd25519 produces a standard deterministic ed25519 signature
// over msg using the 32-byte seed held in priv.
func SignEd25519(priv *secretbuf.Buffer, msg []byte) (Signature, error) {
	seed, err := priv.View()
	if err != nil {
		return Signature{}, walleterrors.Wrap(walleterrors.KindCrypto, "signer: reading ed25519 seed", err)
	}
	if len(seed) != ed25519.SeedSize {
		return Signature{}, walleterrors.New(walleterrors.KindCrypto, "signer: ed25519 seed must be 32 bytes")
	}

	key := ed25519.NewKeyFromSeed(seed)
	raw := ed25519.Sign(key, msg)

	var out Signature
	copy(out.Bytes[:], raw)
	return out, nil
}

// VerifyEd25519 reports whether sig is a valid ed25519 signature over
// msg for the given 32-byte public key.
func VerifyEd25519(pub ed25519.PublicKey, msg []byte, sig Signature) bool {
	return ed25519.Verify(pub, msg, sig.RS())
}
