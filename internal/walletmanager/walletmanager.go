// Package walletmanager orchestrates the full wallet lifecycle
// (spec.md §4.9): create_wallet, send_transaction, send_multi_sig,
// rotate_signing_key, rotate_envelope_kek, backup_wallet, and
// restore_wallet, wiring together every lower-level component —
// config, secretbuf, keyderivation, addresscodec, envelope,
// walletstore, nonceengine, signer, multisig, chain, and tx. Grounded
// on the coordinating role OKaluzny-wallet-demo's cmd/main.go and
// internal/tx.Builder play together, generalized here into one
// explicit orchestrator type rather than scattering wiring across
// main().
package walletmanager

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/defisafe/hotwallet/internal/addresscodec"
	"github.com/defisafe/hotwallet/internal/bridge"
	"github.com/defisafe/hotwallet/internal/chain"
	"github.com/defisafe/hotwallet/internal/config"
	"github.com/defisafe/hotwallet/internal/envelope"
	"github.com/defisafe/hotwallet/internal/keyderivation"
	"github.com/defisafe/hotwallet/internal/listener"
	"github.com/defisafe/hotwallet/internal/multisig"
	"github.com/defisafe/hotwallet/internal/nonceengine"
	"github.com/defisafe/hotwallet/internal/secretbuf"
	"github.com/defisafe/hotwallet/internal/signer"
	"github.com/defisafe/hotwallet/internal/tx"
	"github.com/defisafe/hotwallet/internal/walleterrors"
	"github.com/defisafe/hotwallet/internal/walletstore"
	"github.com/defisafe/hotwallet/pkg/models"
)

// entropyBits fixes mnemonic length at 24 words so the recovered
// entropy is always exactly 32 bytes — the Seed size KeyDerivation and
// the locked derivation vectors require. A 12-word phrase would
// recover only 16 bytes, short of that invariant.
const entropyBits = 256

// MasterKeyProvider generates the 32-byte seed material backing a new
// wallet. The production implementation is RandomMasterKeyProvider;
// tests substitute a fixture that returns a fixed seed so derivation
// results are reproducible against the locked vectors.
type MasterKeyProvider interface {
	GenerateMasterKey() (*secretbuf.Buffer, error)
}

// RandomMasterKeyProvider draws seed entropy from the OS CSPRNG via
// bip39.NewEntropy, exactly as create_wallet requires (spec §4.9).
type RandomMasterKeyProvider struct{}

// GenerateMasterKey returns 32 bytes of BIP-39 entropy.
func (RandomMasterKeyProvider) GenerateMasterKey() (*secretbuf.Buffer, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "generate master key entropy", err)
	}
	return secretbuf.New(entropy), nil
}

// WalletInfo is the non-secret view of a wallet returned to API callers.
type WalletInfo struct {
	Name        string
	ID          string
	QuantumSafe bool
	CreatedAt   time.Time
}

// Manager is the wallet service orchestrator.
type Manager struct {
	cfg        config.Config
	records    walletstore.RecordStore
	crypto     *envelope.Crypto
	chains     *chain.Registry
	nonces     *nonceengine.Engine
	builder    *tx.Builder
	multisig   *multisig.Protocol
	bridge     *bridge.Facade
	listeners  *listener.Manager
	masterKeys MasterKeyProvider

	rotateGroup singleflight.Group

	historyMu sync.Mutex
	history   map[string][]*models.Transaction

	proposalsMu sync.Mutex
	proposals   map[string]string // proposal id -> wallet name
}

// New builds a Manager from its fully-wired dependencies.
func New(
	cfg config.Config,
	records walletstore.RecordStore,
	crypto *envelope.Crypto,
	chains *chain.Registry,
	nonces *nonceengine.Engine,
	builder *tx.Builder,
	ms *multisig.Protocol,
	br *bridge.Facade,
	listeners *listener.Manager,
	masterKeys MasterKeyProvider,
) *Manager {
	if masterKeys == nil {
		masterKeys = RandomMasterKeyProvider{}
	}
	return &Manager{
		cfg:        cfg,
		records:    records,
		crypto:     crypto,
		chains:     chains,
		nonces:     nonces,
		builder:    builder,
		multisig:   ms,
		bridge:     br,
		listeners:  listeners,
		masterKeys: masterKeys,
		history:    make(map[string][]*models.Transaction),
		proposals:  make(map[string]string),
	}
}

// Start brings up every registered chain listener through an errgroup,
// mirroring the fan-out-then-wait shape spec.md's DOMAIN STACK names
// for WalletManager.Start (golang.org/x/sync/errgroup). The listeners
// run on ctx, so they keep polling until ctx ends or Stop is called.
// StartAll stops at the first listener that fails to start; listeners
// already started keep running.
func (m *Manager) Start(ctx context.Context) error {
	if m.listeners == nil {
		return nil
	}
	var g errgroup.Group
	g.Go(func() error { return m.listeners.StartAll(ctx) })
	return g.Wait()
}

// Stop halts every supervised listener.
func (m *Manager) Stop() {
	if m.listeners != nil {
		m.listeners.StopAll()
	}
}

func signingLabel(name string) string { return "wallet:" + name + ":signing" }

func networkToChain(network models.Network) (keyderivation.Chain, error) {
	switch network {
	case models.NetworkETH:
		return keyderivation.ChainEthereum, nil
	case models.NetworkSepolia:
		return keyderivation.ChainSepolia, nil
	case models.NetworkPolygon:
		return keyderivation.ChainPolygon, nil
	case models.NetworkBSC:
		return keyderivation.ChainBSC, nil
	case models.NetworkBSCTestnet:
		return keyderivation.ChainBSCTest, nil
	case models.NetworkSolana:
		return keyderivation.ChainSolana, nil
	default:
		return "", walleterrors.New(walleterrors.KindValidation, "unsupported network: "+string(network))
	}
}

// CreateWallet generates a fresh random seed, wraps it under the
// default KEK with an AAD v2 binding, and persists the record along
// with an initial signing-key rotation state at version 1.
func (m *Manager) CreateWallet(ctx context.Context, name string, quantumSafe bool) (*WalletInfo, error) {
	if name == "" {
		return nil, walleterrors.New(walleterrors.KindValidation, "wallet name must not be empty")
	}
	if quantumSafe && m.cfg.Production {
		return nil, walleterrors.New(walleterrors.KindPolicy, "quantum_safe wallets cannot be created in a production build")
	}
	if _, err := m.records.Get(ctx, name); err == nil {
		return nil, walleterrors.New(walleterrors.KindValidation, "wallet already exists: "+name)
	} else if err != walletstore.ErrNotFound {
		return nil, walleterrors.Wrap(walleterrors.KindStorage, "check existing wallet", err)
	}

	masterKey, err := m.masterKeys.GenerateMasterKey()
	if err != nil {
		return nil, err
	}
	defer masterKey.Destroy()

	id := uuid.NewString()
	wrapped, err := m.crypto.Wrap(masterKey, id, "")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := walletstore.Record{
		Name:               name,
		ID:                 id,
		SchemaVersion:      walletstore.SchemaVersion,
		EncryptedMasterKey: wrapped.Ciphertext,
		Nonce:              wrapped.Nonce,
		Salt:               wrapped.Salt,
		KEKID:              wrapped.KEKID,
		QuantumSafe:        quantumSafe,
		CreatedAt:          now,
	}
	if err := m.records.Put(ctx, rec); err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindStorage, "persist wallet record", err)
	}
	if err := m.records.PutRotationState(ctx, walletstore.RotationState{Label: signingLabel(name), CurrentVersion: 1}); err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindStorage, "persist rotation state", err)
	}

	return &WalletInfo{Name: name, ID: id, QuantumSafe: quantumSafe, CreatedAt: now}, nil
}

// ListWallets returns every persisted wallet name.
func (m *Manager) ListWallets(ctx context.Context) ([]string, error) {
	names, err := m.records.List(ctx)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindStorage, "list wallets", err)
	}
	return names, nil
}

// DeleteWallet removes a wallet record and its rotation state.
func (m *Manager) DeleteWallet(ctx context.Context, name string) error {
	if err := m.records.Delete(ctx, name); err != nil {
		if err == walletstore.ErrNotFound {
			return walleterrors.New(walleterrors.KindNotFound, "wallet not found: "+name)
		}
		return walleterrors.Wrap(walleterrors.KindStorage, "delete wallet", err)
	}
	return nil
}

// loadAndUnwrap fetches name's record and recovers its master key,
// refusing quantum_safe records in production and opportunistically
// rewrapping a legacy AAD v1 record to v2.
func (m *Manager) loadAndUnwrap(ctx context.Context, name string) (walletstore.Record, *secretbuf.Buffer, error) {
	rec, err := m.records.Get(ctx, name)
	if err != nil {
		if err == walletstore.ErrNotFound {
			return walletstore.Record{}, nil, walleterrors.New(walleterrors.KindNotFound, "wallet not found: "+name)
		}
		return walletstore.Record{}, nil, walleterrors.Wrap(walleterrors.KindStorage, "load wallet record", err)
	}
	if rec.QuantumSafe && m.cfg.Production {
		return walletstore.Record{}, nil, walleterrors.New(walleterrors.KindPolicy, "quantum_safe wallet records cannot be loaded in a production build")
	}

	if m.cfg.SkipDecrypt {
		// Test-only fast path, gated at config load time on
		// Production == false: returns a fixed all-zero master key so
		// derivation-path tests don't pay for a real AEAD open.
		return rec, secretbuf.Zero(32), nil
	}

	sk := envelope.SealedKey{
		Ciphertext: rec.EncryptedMasterKey,
		Nonce:      rec.Nonce,
		Salt:       rec.Salt,
		KEKID:      rec.KEKID,
		Name:       rec.Name,
		ID:         rec.ID,
	}
	unwrapped, err := m.crypto.Unwrap(sk)
	if err != nil {
		return walletstore.Record{}, nil, err
	}

	if unwrapped.UsedAADv1 {
		if rewrapped, rerr := m.crypto.Wrap(unwrapped.MasterKey, rec.ID, rec.KEKID); rerr == nil {
			rec.EncryptedMasterKey = rewrapped.Ciphertext
			rec.Nonce = rewrapped.Nonce
			rec.Salt = rewrapped.Salt
			_ = m.records.Put(ctx, rec)
		}
	}

	return rec, unwrapped.MasterKey, nil
}

// deriveAddress derives the chain-specific private key and address for
// masterKeyBytes under network, using the configured default
// derivation path.
func (m *Manager) deriveAddress(masterKeyBytes []byte, network models.Network) (address string, priv *secretbuf.Buffer, err error) {
	derivationChain, err := networkToChain(network)
	if err != nil {
		return "", nil, err
	}
	priv, err = keyderivation.Derive(masterKeyBytes, derivationChain, m.cfg.DerivationPath())
	if err != nil {
		return "", nil, err
	}
	privBytes, err := priv.View()
	if err != nil {
		priv.Destroy()
		return "", nil, walleterrors.Wrap(walleterrors.KindCrypto, "read derived key", err)
	}
	if network.IsEVM() {
		address, err = addresscodec.EVMAddress(privBytes)
	} else {
		address, err = addresscodec.SolanaAddress(privBytes)
	}
	if err != nil {
		priv.Destroy()
		return "", nil, err
	}
	return address, priv, nil
}

// GetBalance derives name's address on network and queries the
// registered chain client for its balance.
func (m *Manager) GetBalance(ctx context.Context, name string, network models.Network) (*big.Int, error) {
	_, masterKey, err := m.loadAndUnwrap(ctx, name)
	if err != nil {
		return nil, err
	}
	defer masterKey.Destroy()

	masterBytes, err := masterKey.View()
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "read master key", err)
	}
	address, priv, err := m.deriveAddress(masterBytes, network)
	if err != nil {
		return nil, err
	}
	defer priv.Destroy()

	client, ok := m.chains.Get(network)
	if !ok {
		return nil, walleterrors.New(walleterrors.KindConfig, "no chain client registered for network "+string(network))
	}
	balance, err := client.GetBalance(ctx, address)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindNetwork, "get balance", err)
	}
	return balance, nil
}

// SendTransaction derives name's signing key for network, reserves the
// next nonce, signs, and broadcasts a transfer of amount to toAddress,
// committing or cancelling the nonce reservation depending on outcome.
func (m *Manager) SendTransaction(ctx context.Context, name string, network models.Network, toAddress string, amount *big.Int) (*models.Transaction, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, walleterrors.New(walleterrors.KindValidation, "amount must be non-negative")
	}
	if !m.validateAddress(network, toAddress) {
		return nil, walleterrors.New(walleterrors.KindValidation, "invalid destination address for network "+string(network))
	}

	_, masterKey, err := m.loadAndUnwrap(ctx, name)
	if err != nil {
		return nil, err
	}
	defer masterKey.Destroy()
	masterBytes, err := masterKey.View()
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "read master key", err)
	}

	fromAddress, priv, err := m.deriveAddress(masterBytes, network)
	if err != nil {
		return nil, err
	}
	defer priv.Destroy()

	if _, ok := m.chains.Get(network); !ok {
		return nil, walleterrors.New(walleterrors.KindConfig, "no chain client registered for network "+string(network))
	}

	nonce, err := m.nonces.Reserve(ctx, string(network), fromAddress)
	if err != nil {
		return nil, err
	}

	rawSigned, err := m.signTransaction(network, priv, fromAddress, toAddress, amount, nonce)
	if err != nil {
		m.nonces.Cancel(string(network), fromAddress, nonce)
		return nil, err
	}

	idempotencyKey := fmt.Sprintf("%s:%s:%d", network, fromAddress, nonce)
	submitted, err := m.builder.Submit(ctx, tx.SubmitRequest{
		IdempotencyKey: idempotencyKey,
		Network:        network,
		From:           fromAddress,
		To:             toAddress,
		Amount:         amount,
		Nonce:          nonce,
		RawSigned:      rawSigned,
	})
	if err != nil {
		m.nonces.Cancel(string(network), fromAddress, nonce)
		return nil, err
	}

	if err := m.nonces.Commit(ctx, string(network), fromAddress, nonce); err != nil {
		return nil, err
	}
	m.recordHistory(name, submitted)
	return submitted, nil
}

func (m *Manager) validateAddress(network models.Network, address string) bool {
	if network.IsEVM() {
		return addresscodec.ValidateEVMAddress(address)
	}
	return addresscodec.ValidateSolanaAddress(address)
}

// signTransaction dispatches to the chain-family-specific signing
// path. EVM transactions are built and signed the way go-ethereum's
// own SignTx would, but routed through internal/signer so the
// RFC6979-low-s signature actually comes from this service's signing
// component rather than go-ethereum's signer helper.
func (m *Manager) signTransaction(network models.Network, priv *secretbuf.Buffer, from, to string, amount *big.Int, nonce uint64) ([]byte, error) {
	if network.IsEVM() {
		return m.signEVMTransaction(network, priv, to, amount, nonce)
	}
	return m.signSolanaTransaction(priv, from, to, amount, nonce)
}

// defaultGasPrice and defaultGasLimit are fixed placeholders: fee estimation talks to
// a live chain's mempool, which is out of scope per spec.md §1 (no
// blockchain node collaborator is implemented here).
var (
	defaultGasPrice = big.NewInt(1_000_000_000) // 1 gwei
	defaultGasLimit = uint64(21000)
)

func (m *Manager) signEVMTransaction(network models.Network, priv *secretbuf.Buffer, to string, amount *big.Int, nonce uint64) ([]byte, error) {
	chainID, ok := models.ChainIDs[network]
	if !ok {
		return nil, walleterrors.New(walleterrors.KindConfig, "no chain id configured for network "+string(network))
	}
	toAddr := common.HexToAddress(to)
	unsigned := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &toAddr,
		Value:    amount,
		Gas:      defaultGasLimit,
		GasPrice: defaultGasPrice,
	})

	eip155Signer := ethtypes.NewEIP155Signer(new(big.Int).SetUint64(chainID))
	digest := eip155Signer.Hash(unsigned)

	sig, err := signer.SignECDSA(priv, digest)
	if err != nil {
		return nil, err
	}
	if sig.Recovery == nil {
		return nil, walleterrors.New(walleterrors.KindCrypto, "signature missing recovery id")
	}
	full := make([]byte, 65)
	copy(full, sig.RS())
	full[64] = *sig.Recovery

	signed, err := unsigned.WithSignature(eip155Signer, full)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "attach signature to transaction", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "encode signed transaction", err)
	}
	return raw, nil
}

// signSolanaTransaction produces a simplified signed-message wire
// format: the ed25519 signature followed by the canonical
// from|to|amount|nonce message it covers. Solana's real wire format
// (a compiled Message plus a signature array keyed by account index)
// needs an SDK absent from the example pack; internal/chain.SolanaClient
// and FakeClient only ever need to round-trip these bytes, so this
// stays internally consistent without claiming mainnet wire compatibility.
func (m *Manager) signSolanaTransaction(priv *secretbuf.Buffer, from, to string, amount *big.Int, nonce uint64) ([]byte, error) {
	msg := []byte(fmt.Sprintf("%s|%s|%s|%d", from, to, amount.String(), nonce))
	sig, err := signer.SignEd25519(priv, msg)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 64+len(msg))
	out = append(out, sig.RS()...)
	out = append(out, msg...)
	return out, nil
}

func (m *Manager) recordHistory(name string, transaction *models.Transaction) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	m.history[name] = append(m.history[name], transaction)
}

// History returns every transaction SendTransaction/ExecuteMultiSig has
// recorded for name, oldest first.
func (m *Manager) History(name string) []*models.Transaction {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	out := make([]*models.Transaction, len(m.history[name]))
	copy(out, m.history[name])
	return out
}

// RotateSigningKey bumps name's signing-key rotation version,
// retiring the current version. It does not re-derive or move any
// key material: the derivation path itself is unaffected, since the
// locked vectors key off (seed, chain, path) rather than a stored
// key-version component. This records the operator-visible event spec
// §4.9 requires.
func (m *Manager) RotateSigningKey(ctx context.Context, name string) (oldVersion, newVersion int, err error) {
	label := signingLabel(name)
	state, err := m.records.GetRotationState(ctx, label)
	if err != nil {
		if err == walletstore.ErrNotFound {
			return 0, 0, walleterrors.New(walleterrors.KindNotFound, "no rotation state for wallet: "+name)
		}
		return 0, 0, walleterrors.Wrap(walleterrors.KindStorage, "load rotation state", err)
	}

	oldVersion = state.CurrentVersion
	newVersion = oldVersion + 1
	state.RetiredVersions = append(state.RetiredVersions, oldVersion)
	state.CurrentVersion = newVersion

	if err := m.records.PutRotationState(ctx, state); err != nil {
		return 0, 0, walleterrors.Wrap(walleterrors.KindStorage, "persist rotation state", err)
	}
	return oldVersion, newVersion, nil
}

// RotateEnvelopeKEK re-wraps name's master key under newKEKID.
// Concurrent rotations for the same wallet are deduplicated with
// singleflight so two racing requests produce one rewrap, not two
// independent AEAD seals racing to win the final Put.
func (m *Manager) RotateEnvelopeKEK(ctx context.Context, name, newKEKID string) error {
	_, err, _ := m.rotateGroup.Do(name, func() (interface{}, error) {
		rec, err := m.records.Get(ctx, name)
		if err != nil {
			if err == walletstore.ErrNotFound {
				return nil, walleterrors.New(walleterrors.KindNotFound, "wallet not found: "+name)
			}
			return nil, walleterrors.Wrap(walleterrors.KindStorage, "load wallet record", err)
		}

		sk := envelope.SealedKey{
			Ciphertext: rec.EncryptedMasterKey,
			Nonce:      rec.Nonce,
			Salt:       rec.Salt,
			KEKID:      rec.KEKID,
			Name:       rec.Name,
			ID:         rec.ID,
		}
		result, err := m.crypto.Rotate(sk, newKEKID)
		if err != nil {
			return nil, err
		}
		if result.AlreadyDone {
			return nil, nil
		}

		rec.EncryptedMasterKey = result.Wrap.Ciphertext
		rec.Nonce = result.Wrap.Nonce
		rec.Salt = result.Wrap.Salt
		rec.KEKID = result.Wrap.KEKID
		if err := m.records.Put(ctx, rec); err != nil {
			return nil, walleterrors.Wrap(walleterrors.KindStorage, "persist rotated wallet record", err)
		}
		return nil, nil
	})
	return err
}

// BackupWallet recovers name's original BIP-39 mnemonic from its
// stored master-key entropy. Callers are responsible for encrypting
// the returned phrase under an operator key before it crosses any
// process boundary — this method only ever hands back a SecretBuffer,
// never a plain string.
func (m *Manager) BackupWallet(ctx context.Context, name string) (*secretbuf.Buffer, error) {
	if !m.cfg.BackupApproved {
		return nil, walleterrors.New(walleterrors.KindPolicy, "backup is not approved for this deployment (WALLET_BACKUP_APPROVED)")
	}

	_, masterKey, err := m.loadAndUnwrap(ctx, name)
	if err != nil {
		return nil, err
	}
	defer masterKey.Destroy()

	entropy, err := masterKey.View()
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "read master key", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, walleterrors.Sensitive(walleterrors.KindCrypto, "encode mnemonic", err)
	}
	return secretbuf.New([]byte(mnemonic)), nil
}

// RestoreWallet recovers the 32-byte entropy bound to seedPhrase and
// persists it as a new wallet record under name, reproducing the same
// address space derive_master_key(phrase) would have produced at
// creation time.
func (m *Manager) RestoreWallet(ctx context.Context, name, seedPhrase string, quantumSafe bool) (*WalletInfo, error) {
	if quantumSafe && m.cfg.Production {
		return nil, walleterrors.New(walleterrors.KindPolicy, "quantum_safe wallets cannot be restored in a production build")
	}
	if !bip39.IsMnemonicValid(seedPhrase) {
		return nil, walleterrors.New(walleterrors.KindValidation, "seed phrase failed BIP-39 checksum validation")
	}
	entropy, err := bip39.EntropyFromMnemonic(seedPhrase)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindValidation, "recover entropy from seed phrase", err)
	}
	if len(entropy) != 32 {
		return nil, walleterrors.New(walleterrors.KindValidation, "seed phrase must be a 24-word (256-bit entropy) BIP-39 phrase")
	}

	if _, err := m.records.Get(ctx, name); err == nil {
		return nil, walleterrors.New(walleterrors.KindValidation, "wallet already exists: "+name)
	} else if err != walletstore.ErrNotFound {
		return nil, walleterrors.Wrap(walleterrors.KindStorage, "check existing wallet", err)
	}

	masterKey := secretbuf.New(entropy)
	defer masterKey.Destroy()

	id := uuid.NewString()
	wrapped, err := m.crypto.Wrap(masterKey, id, "")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := walletstore.Record{
		Name:               name,
		ID:                 id,
		SchemaVersion:      walletstore.SchemaVersion,
		EncryptedMasterKey: wrapped.Ciphertext,
		Nonce:              wrapped.Nonce,
		Salt:               wrapped.Salt,
		KEKID:              wrapped.KEKID,
		QuantumSafe:        quantumSafe,
		CreatedAt:          now,
	}
	if err := m.records.Put(ctx, rec); err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindStorage, "persist restored wallet record", err)
	}
	if err := m.records.PutRotationState(ctx, walletstore.RotationState{Label: signingLabel(name), CurrentVersion: 1}); err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindStorage, "persist rotation state", err)
	}

	return &WalletInfo{Name: name, ID: id, QuantumSafe: quantumSafe, CreatedAt: now}, nil
}

// ProposeMultiSig opens a multi-signature authorization gate on top of
// the wallet's own custodial signing key: it binds the destination,
// amount, network, and chain nonce up front (write-once per spec
// §4.8) and returns the digest that each of allowedSigners must sign
// out of band before ExecuteMultiSig will dispatch the transaction.
// The wallet's derived key is never exposed to or used by the
// signers — multisig here authorizes custodial dispatch, it does not
// replace it.
func (m *Manager) ProposeMultiSig(ctx context.Context, name string, network models.Network, toAddress string, amount *big.Int, threshold uint8, allowedSigners []multisig.PubKey) (proposalID string, digest [32]byte, err error) {
	if amount == nil || amount.Sign() < 0 {
		return "", digest, walleterrors.New(walleterrors.KindValidation, "amount must be non-negative")
	}
	if !m.validateAddress(network, toAddress) {
		return "", digest, walleterrors.New(walleterrors.KindValidation, "invalid destination address for network "+string(network))
	}

	_, masterKey, err := m.loadAndUnwrap(ctx, name)
	if err != nil {
		return "", digest, err
	}
	masterBytes, err := masterKey.View()
	if err != nil {
		masterKey.Destroy()
		return "", digest, walleterrors.Wrap(walleterrors.KindCrypto, "read master key", err)
	}
	fromAddress, priv, err := m.deriveAddress(masterBytes, network)
	masterKey.Destroy()
	if err != nil {
		return "", digest, err
	}
	priv.Destroy()

	nonce, err := m.nonces.Reserve(ctx, string(network), fromAddress)
	if err != nil {
		return "", digest, err
	}

	var chainID uint64
	if network.IsEVM() {
		chainID = models.ChainIDs[network]
	}

	proposalID = uuid.NewString()
	if err := m.multisig.Propose(proposalID, toAddress, amount.String(), string(network), threshold, allowedSigners); err != nil {
		m.nonces.Cancel(string(network), fromAddress, nonce)
		return "", digest, err
	}
	if err := m.multisig.SetNonceAndChainID(proposalID, nonce, chainID); err != nil {
		m.nonces.Cancel(string(network), fromAddress, nonce)
		return "", digest, err
	}
	if err := m.multisig.SetAmountPrecisionMinimal(proposalID); err != nil {
		m.nonces.Cancel(string(network), fromAddress, nonce)
		return "", digest, err
	}
	digest, err = m.multisig.MessageToSign(proposalID)
	if err != nil {
		m.nonces.Cancel(string(network), fromAddress, nonce)
		return "", digest, err
	}

	m.proposalsMu.Lock()
	m.proposals[proposalID] = name
	m.proposalsMu.Unlock()

	return proposalID, digest, nil
}

// SignMultiSigProposal records one authorized signer's signature over
// proposalID's canonical digest, returning whether the threshold has
// now been met.
func (m *Manager) SignMultiSigProposal(proposalID string, pubkey multisig.PubKey, sig signer.Signature) (ready bool, err error) {
	return m.multisig.Sign(proposalID, pubkey, sig)
}

// CancelMultiSig discards a pending proposal and releases its reserved
// nonce, leaving a recorded gap (spec §4.6) rather than silently
// reusing it.
func (m *Manager) CancelMultiSig(proposalID string) error {
	proposal, err := m.multisig.Get(proposalID)
	if err != nil {
		return err
	}
	if err := m.multisig.Cancel(proposalID); err != nil {
		return err
	}

	m.proposalsMu.Lock()
	name, tracked := m.proposals[proposalID]
	delete(m.proposals, proposalID)
	m.proposalsMu.Unlock()

	if tracked && proposal.Nonce != nil {
		if fromAddress, derr := m.reservedAddress(name, models.Network(proposal.Network)); derr == nil {
			m.nonces.Cancel(proposal.Network, fromAddress, *proposal.Nonce)
		}
	}
	return nil
}

// reservedAddress re-derives name's address on network, used to
// release a nonce reservation without retaining the wallet's address
// in the proposal table itself.
func (m *Manager) reservedAddress(name string, network models.Network) (string, error) {
	_, masterKey, err := m.loadAndUnwrap(context.Background(), name)
	if err != nil {
		return "", err
	}
	defer masterKey.Destroy()
	masterBytes, err := masterKey.View()
	if err != nil {
		return "", err
	}
	address, priv, err := m.deriveAddress(masterBytes, network)
	if err != nil {
		return "", err
	}
	priv.Destroy()
	return address, nil
}

// ExecuteMultiSig dispatches proposalID once it has reached its
// signature threshold: it pops the proposal, re-derives the owning
// wallet's signing key, signs the chain transaction at the nonce
// bound during ProposeMultiSig, and broadcasts it exactly like
// SendTransaction.
func (m *Manager) ExecuteMultiSig(ctx context.Context, proposalID string) (*models.Transaction, error) {
	m.proposalsMu.Lock()
	name, ok := m.proposals[proposalID]
	m.proposalsMu.Unlock()
	if !ok {
		return nil, walleterrors.New(walleterrors.KindNotFound, "multisig: no proposal tracked for id: "+proposalID)
	}

	proposal, err := m.multisig.Execute(proposalID)
	if err != nil {
		return nil, err
	}

	network := models.Network(proposal.Network)
	amount, ok := new(big.Int).SetString(proposal.Amount, 10)
	if !ok {
		return nil, walleterrors.New(walleterrors.KindValidation, "multisig: proposal amount is not a valid integer: "+proposal.Amount)
	}

	_, masterKey, err := m.loadAndUnwrap(ctx, name)
	if err != nil {
		return nil, err
	}
	defer masterKey.Destroy()
	masterBytes, err := masterKey.View()
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindCrypto, "read master key", err)
	}
	fromAddress, priv, err := m.deriveAddress(masterBytes, network)
	if err != nil {
		return nil, err
	}
	defer priv.Destroy()

	rawSigned, err := m.signTransaction(network, priv, fromAddress, proposal.To, amount, *proposal.Nonce)
	if err != nil {
		m.nonces.Cancel(proposal.Network, fromAddress, *proposal.Nonce)
		return nil, err
	}

	idempotencyKey := "msig:" + proposalID
	submitted, err := m.builder.Submit(ctx, tx.SubmitRequest{
		IdempotencyKey: idempotencyKey,
		Network:        network,
		From:           fromAddress,
		To:             proposal.To,
		Amount:         amount,
		Nonce:          *proposal.Nonce,
		RawSigned:      rawSigned,
	})
	if err != nil {
		m.nonces.Cancel(proposal.Network, fromAddress, *proposal.Nonce)
		return nil, err
	}
	if err := m.nonces.Commit(ctx, proposal.Network, fromAddress, *proposal.Nonce); err != nil {
		return nil, err
	}

	m.proposalsMu.Lock()
	delete(m.proposals, proposalID)
	m.proposalsMu.Unlock()

	m.recordHistory(name, submitted)
	return submitted, nil
}

// BridgeTransfer proxies to the archived cross-chain bridge facade
// (internal/bridge), which only ever succeeds when mocks are
// explicitly allowed on a non-production build (spec.md §9).
func (m *Manager) BridgeTransfer(ctx context.Context, fromChain, toChain models.Network, token, amount string) (*bridge.Transaction, error) {
	if m.bridge == nil {
		return nil, walleterrors.New(walleterrors.KindConfig, "bridge facade is not configured")
	}
	return m.bridge.TransferAcrossChains(ctx, fromChain, toChain, token, amount)
}

// BridgeStatus proxies to the archived bridge facade's status check.
func (m *Manager) BridgeStatus(ctx context.Context, txID string) (bridge.Status, error) {
	if m.bridge == nil {
		return "", walleterrors.New(walleterrors.KindConfig, "bridge facade is not configured")
	}
	return m.bridge.CheckTransferStatus(ctx, txID)
}
