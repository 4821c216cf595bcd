// Package keyderivation descends from a 32-byte BIP-39 seed to a
// chain-specific private key: BIP-32/BIP-44 for the secp256k1 EVM
// family, SLIP-0010 for ed25519 (Solana). Grounded on the deriveKey
// helper in OKaluzny-wallet-demo's internal/wallet/eth.go, generalized
// to configurable account/change/index and extended with the
// SLIP-0010 ed25519 descent the teacher never needed.
package keyderivation

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/defisafe/hotwallet/internal/secretbuf"
	"github.com/defisafe/hotwallet/internal/walleterrors"
)

// Chain identifies which coin-type branch of the BIP-44 tree to
// derive along.
type Chain string

const (
	ChainEthereum Chain = "eth"
	ChainSepolia  Chain = "sepolia"
	ChainPolygon  Chain = "polygon"
	ChainBSC      Chain = "bsc"
	ChainBSCTest  Chain = "bsctestnet"
	ChainSolana   Chain = "solana"
)

// evmCoinType maps every EVM-family chain onto SLIP-44 coin type 60;
// they share one derivation tree since the private key format and
// curve are identical across EVM chains (chain-id binding happens at
// the signing layer, not in the key tree).
var evmCoinType = map[Chain]uint32{
	ChainEthereum: 60,
	ChainSepolia:  60,
	ChainPolygon:  60,
	ChainBSC:      60,
	ChainBSCTest:  60,
}

const solanaCoinType uint32 = 501

// Path holds the non-fixed components of m/44'/coin'/account'/change/index.
type Path struct {
	Account uint32
	Change  uint32
	Index   uint32
}

// DefaultPath is m/44'/{coin}'/0'/0/0, the configuration default per spec §4.2.
func DefaultPath() Path { return Path{} }

// IsEVM reports whether chain derives along the secp256k1 EVM branch.
func IsEVM(chain Chain) bool {
	_, ok := evmCoinType[chain]
	return ok
}

// Derive produces the chain-specific private key material for seed at
// path. EVM chains yield a 32-byte secp256k1 scalar; Solana yields a
// 32-byte ed25519 seed. Unsupported chains fail closed with
// walleterrors.KindValidation — there is no silent fallback.
func Derive(seed []byte, chain Chain, path Path) (*secretbuf.Buffer, error) {
	if len(seed) != 32 {
		return nil, walleterrors.New(walleterrors.KindValidation, fmt.Sprintf("seed must be 32 bytes, got %d", len(seed)))
	}
	if coinType, ok := evmCoinType[chain]; ok {
		return deriveSecp256k1(seed, coinType, path)
	}
	if chain == ChainSolana {
		return deriveEd25519(seed, solanaCoinType, path)
	}
	return nil, walleterrors.New(walleterrors.KindValidation, fmt.Sprintf("unsupported chain: %s", chain))
}

// deriveSecp256k1 walks m/44'/coinType'/account'/change/index using
// BIP-32 child key derivation (hardened through account, soft below).
func deriveSecp256k1(seed []byte, coinType uint32, path Path) (*secretbuf.Buffer, error) {
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "bip32 master key", err)
	}

	purpose, err := master.NewChildKey(bip32.FirstHardenedChild + 44)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "derive purpose", err)
	}
	coin, err := purpose.NewChildKey(bip32.FirstHardenedChild + coinType)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "derive coin type", err)
	}
	account, err := coin.NewChildKey(bip32.FirstHardenedChild + path.Account)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "derive account", err)
	}
	change, err := account.NewChildKey(path.Change)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "derive change", err)
	}
	child, err := change.NewChildKey(path.Index)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "derive index", err)
	}

	out := make([]byte, 32)
	copy(out, child.Key)
	return secretbuf.New(out), nil
}

// deriveEd25519 walks SLIP-0010's fully-hardened ed25519 tree:
// m/44'/coinType'/account'/change'/index'. SLIP-0010 ed25519 has no
// public-key derivation, so every level — including account, change
// and index — is hardened.
func deriveEd25519(seed []byte, coinType uint32, path Path) (*secretbuf.Buffer, error) {
	key, chainCode := slip10Master(seed)
	defer secretbuf.Wipe(chainCode)

	for _, index := range []uint32{44, coinType, path.Account, path.Change, path.Index} {
		var next []byte
		key, next = slip10CKDPriv(key, chainCode, hardened(index))
		secretbuf.Wipe(chainCode)
		chainCode = next
	}
	secretbuf.Wipe(chainCode)

	out := make([]byte, 32)
	copy(out, key)
	secretbuf.Wipe(key)
	return secretbuf.New(out), nil
}

func hardened(i uint32) uint32 { return i + 0x80000000 }

func slip10Master(seed []byte) (key, chainCode []byte) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	key = append([]byte(nil), sum[:32]...)
	chainCode = append([]byte(nil), sum[32:]...)
	secretbuf.Wipe(sum)
	return key, chainCode
}

func slip10CKDPriv(key, chainCode []byte, index uint32) (childKey, childChainCode []byte) {
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, key...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	data = append(data, idx[:]...)

	mac := hmac.New(sha512.New, chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)
	secretbuf.Wipe(data)

	childKey = append([]byte(nil), sum[:32]...)
	childChainCode = append([]byte(nil), sum[32:]...)
	secretbuf.Wipe(sum)
	return childKey, childChainCode
}
