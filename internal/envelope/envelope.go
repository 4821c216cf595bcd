// Package envelope implements envelope encryption for at-rest master
// keys: AEAD wrap/unwrap under a KEK-derived key, AAD schema
// versioning with opportunistic v1→v2 migration, and KEK rotation.
// Grounded on the key-schedule in original_source/src/core/wallet_manager.rs
// (hkdf::Hkdf<Sha256> over a per-record salt, AAD bound to either the
// wallet name (v1, legacy) or its UUID (v2, current)) and on the
// AEAD-wrap pattern used throughout the teacher's crypto helpers.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"crypto/sha256"

	"github.com/defisafe/hotwallet/internal/secretbuf"
	"github.com/defisafe/hotwallet/internal/walleterrors"
)

const (
	aadV1Prefix = "wallet-v1:"
	aadV2Prefix = "wallet-v2:"

	nonceSize = 12
	saltSize  = 32
	keySize   = 32
)

func aadV1(name string) []byte { return []byte(aadV1Prefix + name) }
func aadV2(id string) []byte   { return []byte(aadV2Prefix + id) }

// KEKSource resolves the raw 32-byte key-encryption-key material for a
// given KEK id (empty id selects the default KEK). Production reads
// only from the hardened environment manager; test code supplies a
// fixture implementation instead of an env-var back door. Crypto wipes
// the slice KEK returns once it has derived a key from it, so each call
// must return a fresh copy.
type KEKSource interface {
	KEK(kekID string) ([]byte, error)
}

// SealedKey is the subset of a persisted WalletRecord envelope needs
// to attempt decryption. WalletStore records convert to this.
type SealedKey struct {
	Ciphertext []byte
	Nonce      [nonceSize]byte
	Salt       [saltSize]byte
	KEKID      string
	Name       string
	ID         string
}

// WrapResult is the freshly generated envelope for a newly wrapped or
// rewrapped master key; all fields are always AAD v2.
type WrapResult struct {
	Ciphertext []byte
	Nonce      [nonceSize]byte
	Salt       [saltSize]byte
	KEKID      string
}

// UnwrapResult carries the recovered master key plus whether recovery
// fell back to the legacy AAD v1 scheme (a signal the caller should
// opportunistically rewrap to v2).
type UnwrapResult struct {
	MasterKey *secretbuf.Buffer
	UsedAADv1 bool
}

// Crypto implements the wrap/unwrap/rotate envelope operations.
type Crypto struct {
	kek KEKSource
}

// New returns a Crypto backed by the given KEK source.
func New(kek KEKSource) *Crypto {
	return &Crypto{kek: kek}
}

// Wrap encrypts masterKey under the named/identified wallet's AAD v2
// binding with a freshly generated salt and nonce.
func (c *Crypto) Wrap(masterKey *secretbuf.Buffer, id, kekID string) (*WrapResult, error) {
	plain, err := masterKey.View()
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "read master key", err)
	}

	var salt [saltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "generate salt", err)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "generate nonce", err)
	}

	ek, err := c.deriveEK(kekID, salt[:], aadV2(id))
	if err != nil {
		return nil, err
	}
	defer ek.Destroy()
	ekBytes, _ := ek.View()

	ct, err := seal(ekBytes, nonce[:], plain, aadV2(id))
	if err != nil {
		return nil, walleterrors.Sensitive(walleterrors.KindCrypto, "seal master key", err)
	}

	return &WrapResult{Ciphertext: ct, Nonce: nonce, Salt: salt, KEKID: kekID}, nil
}

// Unwrap recovers the master key for sk, trying the current AAD v2
// binding first and falling back to the legacy v1 (name-bound)
// binding on AEAD failure.
func (c *Crypto) Unwrap(sk SealedKey) (*UnwrapResult, error) {
	if ek, err := c.deriveEK(sk.KEKID, sk.Salt[:], aadV2(sk.ID)); err == nil {
		ekBytes, _ := ek.View()
		if pt, aerr := open(ekBytes, sk.Nonce[:], sk.Ciphertext, aadV2(sk.ID)); aerr == nil {
			ek.Destroy()
			return &UnwrapResult{MasterKey: secretbuf.New(pt)}, nil
		}
		ek.Destroy()
	} else {
		return nil, err
	}

	ek1, err := c.deriveEK(sk.KEKID, sk.Salt[:], aadV1(sk.Name))
	if err != nil {
		return nil, err
	}
	defer ek1.Destroy()
	ek1Bytes, _ := ek1.View()
	pt, err := open(ek1Bytes, sk.Nonce[:], sk.Ciphertext, aadV1(sk.Name))
	if err != nil {
		return nil, walleterrors.Sensitive(walleterrors.KindCrypto, "unwrap master key", err)
	}
	return &UnwrapResult{MasterKey: secretbuf.New(pt), UsedAADv1: true}, nil
}

// RotateResult is the rewrap produced by a successful KEK rotation.
type RotateResult struct {
	Wrap        *WrapResult
	AlreadyDone bool
}

// Rotate re-wraps sk's master key under newKEKID. It is idempotent:
// if sk is already on newKEKID, it reports AlreadyDone without
// touching the ciphertext.
func (c *Crypto) Rotate(sk SealedKey, newKEKID string) (*RotateResult, error) {
	if newKEKID == "" {
		return nil, walleterrors.New(walleterrors.KindValidation, "new_kek_id must not be empty")
	}
	if _, err := c.kek.KEK(newKEKID); err != nil {
		return nil, err
	}
	if sk.KEKID == newKEKID {
		return &RotateResult{AlreadyDone: true}, nil
	}

	unwrapped, err := c.Unwrap(sk)
	if err != nil {
		return nil, err
	}
	defer unwrapped.MasterKey.Destroy()

	wrapped, err := c.Wrap(unwrapped.MasterKey, sk.ID, newKEKID)
	if err != nil {
		return nil, err
	}
	return &RotateResult{Wrap: wrapped}, nil
}

func (c *Crypto) deriveEK(kekID string, salt, aad []byte) (*secretbuf.Buffer, error) {
	kek, err := c.kek.KEK(kekID)
	if err != nil {
		return nil, err
	}
	defer secretbuf.Wipe(kek)

	h := hkdf.New(sha256.New, kek, salt, aad)
	ek := make([]byte, keySize)
	if _, err := io.ReadFull(h, ek); err != nil {
		return nil, walleterrors.Sensitive(walleterrors.KindCrypto, "hkdf expand", err)
	}
	return secretbuf.New(ek), nil
}

func seal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

func open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
