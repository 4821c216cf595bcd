package api

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"
	"os"

	"github.com/defisafe/hotwallet/internal/multisig"
	"github.com/defisafe/hotwallet/internal/signer"
	"github.com/defisafe/hotwallet/internal/walleterrors"
)

// decodeSignedEntry parses one wire-format signature entry: a
// 33-byte compressed secp256k1 public key and a 64-byte (r||s)
// signature, both hex-encoded, with an optional 1-byte recovery id.
func decodeSignedEntry(entry signedEntry) (multisig.PubKey, signer.Signature, error) {
	var pubkey multisig.PubKey
	var sig signer.Signature

	pkBytes, err := hex.DecodeString(trimHexPrefix(entry.PublicKey))
	if err != nil || len(pkBytes) != 33 {
		return pubkey, sig, walleterrors.New(walleterrors.KindValidation, "public_key must be 33 hex-encoded bytes")
	}
	copy(pubkey[:], pkBytes)

	sigBytes, err := hex.DecodeString(trimHexPrefix(entry.Signature))
	if err != nil || len(sigBytes) != 64 {
		return pubkey, sig, walleterrors.New(walleterrors.KindValidation, "signature must be 64 hex-encoded bytes")
	}
	copy(sig.Bytes[:], sigBytes)
	sig.Recovery = entry.Recovery

	return pubkey, sig, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// encryptBackupPayload wraps plaintext (the recovered BIP-39
// mnemonic) under WALLET_BACKUP_KEY with aad bound to the wallet
// name, matching the encrypted backup wire format in spec.md §6:
// ciphertext is base64(nonce || AEAD ciphertext+tag), nonce is
// reported separately for convenience.
func encryptBackupPayload(plaintext []byte, walletName string) (ciphertextB64, nonceB64 string, err error) {
	key, err := backupKEK()
	if err != nil {
		return "", "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", "", walleterrors.Sensitive(walleterrors.KindCrypto, "backup: init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", walleterrors.Sensitive(walleterrors.KindCrypto, "backup: init gcm", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", walleterrors.Wrap(walleterrors.KindCrypto, "backup: generate nonce", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, []byte(walletName))
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)

	return base64.StdEncoding.EncodeToString(out), base64.StdEncoding.EncodeToString(nonce), nil
}

// backupKEK resolves the 32-byte operator key WALLET_BACKUP_KEY wraps
// backups under, mirroring config.EnvKEKSource's env-var contract
// (spec.md §6) for the backup-specific key.
func backupKEK() ([]byte, error) {
	raw := os.Getenv("WALLET_BACKUP_KEY")
	if raw == "" {
		return nil, walleterrors.New(walleterrors.KindConfig, "WALLET_BACKUP_KEY is not set")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindConfig, "WALLET_BACKUP_KEY is not valid base64", err)
	}
	if len(key) != 32 {
		return nil, walleterrors.New(walleterrors.KindConfig, "WALLET_BACKUP_KEY must decode to exactly 32 bytes")
	}
	return key, nil
}
