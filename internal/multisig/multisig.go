// Package multisig implements the canonical-message threshold
// multi-signature protocol: proposal lifecycle, signer-set and
// replay-binding enforcement, and the deterministic byte encoding
// signers sign over (spec §3, §4.8).
package multisig

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/defisafe/hotwallet/internal/signer"
	"github.com/defisafe/hotwallet/internal/walleterrors"
)

// AmountPrecision distinguishes a human-entered amount from one
// normalized to a chain's minimal unit (wei, lamports, ...).
type AmountPrecision int

const (
	PrecisionRaw AmountPrecision = iota
	PrecisionMinimal
)

// PubKey is a 33-byte compressed secp256k1 public key, the signer
// identity used throughout this package.
type PubKey [33]byte

// Proposal is a pending multi-signature transaction. Fields other
// than Nonce, ChainID, AmountPrecision, and Signatures are immutable
// after Propose.
type Proposal struct {
	ID              string
	To              string
	Amount          string
	Network         string
	Threshold       uint8
	AllowedSigners  []PubKey // sorted, deduplicated; nil if unbound
	Nonce           *uint64
	ChainID         *uint64
	AmountPrecision AmountPrecision
	Signatures      map[PubKey]signer.Signature
	CreatedAt       time.Time
}

func (p *Proposal) clone() Proposal {
	out := *p
	out.AllowedSigners = append([]PubKey(nil), p.AllowedSigners...)
	out.Signatures = make(map[PubKey]signer.Signature, len(p.Signatures))
	for k, v := range p.Signatures {
		out.Signatures[k] = v
	}
	return out
}

// Protocol holds the in-memory table of pending proposals (spec §9:
// multisig proposals are explicitly in-memory, not durable).
type Protocol struct {
	mu      sync.Mutex
	pending map[string]*Proposal
}

// New returns an empty Protocol.
func New() *Protocol {
	return &Protocol{pending: make(map[string]*Proposal)}
}

func sortAndDedupe(signers []PubKey) []PubKey {
	if signers == nil {
		return nil
	}
	out := append([]PubKey(nil), signers...)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	deduped := out[:0]
	for i, s := range out {
		if i == 0 || s != out[i-1] {
			deduped = append(deduped, s)
		}
	}
	return deduped
}

// Propose registers a new pending transaction. allowedSigners may be
// nil to leave the signer set unbound.
func (p *Protocol) Propose(id, to, amount, network string, threshold uint8, allowedSigners []PubKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.pending[id]; exists {
		return walleterrors.New(walleterrors.KindValidation, "multisig: proposal id already exists: "+id)
	}

	sorted := sortAndDedupe(allowedSigners)
	if sorted != nil {
		if threshold == 0 || int(threshold) > len(sorted) {
			return walleterrors.New(walleterrors.KindValidation, "multisig: threshold out of range for bound signer set")
		}
	} else if threshold == 0 {
		return walleterrors.New(walleterrors.KindValidation, "multisig: threshold must be at least 1")
	}

	p.pending[id] = &Proposal{
		ID:              id,
		To:              to,
		Amount:          amount,
		Network:         network,
		Threshold:       threshold,
		AllowedSigners:  sorted,
		AmountPrecision: PrecisionRaw,
		Signatures:      make(map[PubKey]signer.Signature),
		CreatedAt:       time.Now(),
	}
	return nil
}

func (p *Protocol) get(id string) (*Proposal, error) {
	tx, ok := p.pending[id]
	if !ok {
		return nil, walleterrors.New(walleterrors.KindNotFound, "multisig: proposal not found: "+id)
	}
	return tx, nil
}

// SetNonceAndChainID binds replay-protection context. Both values are
// write-once: a second call fails.
func (p *Protocol) SetNonceAndChainID(id string, nonce, chainID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.get(id)
	if err != nil {
		return err
	}
	if tx.Nonce != nil || tx.ChainID != nil {
		return walleterrors.New(walleterrors.KindValidation, "multisig: nonce/chain_id already set; immutable")
	}
	tx.Nonce = &nonce
	tx.ChainID = &chainID
	return nil
}

// SetAmountPrecisionMinimal flips the precision flag so signing can
// proceed. Callers are expected to have normalized Amount to minimal
// units beforehand.
func (p *Protocol) SetAmountPrecisionMinimal(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.get(id)
	if err != nil {
		return err
	}
	tx.AmountPrecision = PrecisionMinimal
	return nil
}

func putLP(buf *bytes.Buffer, b []byte) {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(b)))
	buf.Write(lenBytes[:])
	buf.Write(b)
}

// canonicalMessage builds the exact byte layout signers sign over.
// allowedSigners must already be sorted; canonical order is inherited
// from storage, never recomputed here, so the digest only ever
// reflects the set that was bound at Propose time.
func canonicalMessage(id, to, amount, network string, threshold uint8, allowedSigners []PubKey, nonce, chainID *uint64, prec AmountPrecision) []byte {
	var buf bytes.Buffer
	buf.WriteString("DEFISAFE-MSIG")
	buf.WriteByte(0x04)

	putLP(&buf, []byte(id))
	putLP(&buf, []byte(to))
	putLP(&buf, []byte(amount))

	if prec == PrecisionMinimal {
		buf.WriteByte(0x01)
	} else {
		buf.WriteByte(0x00)
	}

	putLP(&buf, []byte(network))
	buf.WriteByte(threshold)

	var count [2]byte
	binary.BigEndian.PutUint16(count[:], uint16(len(allowedSigners)))
	buf.Write(count[:])
	for _, s := range allowedSigners {
		buf.Write(s[:])
	}

	if nonce != nil {
		buf.WriteByte(1)
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], *nonce)
		buf.Write(n[:])
	} else {
		buf.WriteByte(0)
	}

	if chainID != nil {
		buf.WriteByte(1)
		var c [8]byte
		binary.BigEndian.PutUint64(c[:], *chainID)
		buf.Write(c[:])
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

// MessageToSign returns the SHA-256 digest of the canonical message
// for a pending proposal; this is the value signers sign.
func (p *Protocol) MessageToSign(id string) ([32]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.get(id)
	if err != nil {
		return [32]byte{}, err
	}
	msg := canonicalMessage(tx.ID, tx.To, tx.Amount, tx.Network, tx.Threshold, tx.AllowedSigners, tx.Nonce, tx.ChainID, tx.AmountPrecision)
	return sha256.Sum256(msg), nil
}

// Sign verifies sig against signerPubkey over the proposal's
// canonical digest and, if valid, records it. It returns whether the
// proposal now has at least Threshold distinct signatures.
func (p *Protocol) Sign(id string, signerPubkey PubKey, sig signer.Signature) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.get(id)
	if err != nil {
		return false, err
	}
	if tx.Nonce == nil || tx.ChainID == nil {
		return false, walleterrors.New(walleterrors.KindValidation, "multisig: nonce and chain_id must be set before signing")
	}
	if tx.AmountPrecision != PrecisionMinimal {
		return false, walleterrors.New(walleterrors.KindValidation, "multisig: amount_precision must be Minimal before signing")
	}

	msg := canonicalMessage(tx.ID, tx.To, tx.Amount, tx.Network, tx.Threshold, tx.AllowedSigners, tx.Nonce, tx.ChainID, tx.AmountPrecision)
	digest := sha256.Sum256(msg)

	if !signer.VerifyECDSA(signerPubkey[:], digest, sig) {
		return false, walleterrors.New(walleterrors.KindCrypto, "multisig: invalid signature from signer")
	}

	if tx.AllowedSigners != nil {
		bound := false
		for _, s := range tx.AllowedSigners {
			if s == signerPubkey {
				bound = true
				break
			}
		}
		if !bound {
			return false, walleterrors.New(walleterrors.KindPolicy, "multisig: signer not in allowed signer set")
		}
	}

	if _, already := tx.Signatures[signerPubkey]; already {
		return false, walleterrors.New(walleterrors.KindValidation, "multisig: duplicate signature from the same signer")
	}

	tx.Signatures[signerPubkey] = sig
	return len(tx.Signatures) >= int(tx.Threshold), nil
}

// Execute removes and returns the proposal if it has at least
// Threshold signatures; otherwise it is left untouched.
func (p *Protocol) Execute(id string) (Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.get(id)
	if err != nil {
		return Proposal{}, err
	}
	if len(tx.Signatures) < int(tx.Threshold) {
		return Proposal{}, walleterrors.New(walleterrors.KindValidation, "multisig: insufficient signatures")
	}

	delete(p.pending, id)
	return tx.clone(), nil
}

// Cancel removes a pending proposal. Subsequent Sign/Execute calls
// for the same id return NotFound.
func (p *Protocol) Cancel(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pending[id]; !ok {
		return walleterrors.New(walleterrors.KindNotFound, "multisig: proposal not found: "+id)
	}
	delete(p.pending, id)
	return nil
}

// Get returns a copy of the pending proposal for inspection.
func (p *Protocol) Get(id string) (Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.get(id)
	if err != nil {
		return Proposal{}, err
	}
	return tx.clone(), nil
}
