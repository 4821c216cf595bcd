package multisig

import (
	"crypto/sha256"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/defisafe/hotwallet/internal/secretbuf"
	"github.com/defisafe/hotwallet/internal/signer"
)

type testSigner struct {
	priv *secretbuf.Buffer
	pub  PubKey
}

func newTestSigner(t *testing.T, seed byte) testSigner {
	t.Helper()
	b := make([]byte, 32)
	for i := range b {
		b[i] = seed + byte(i)
	}
	priv := secretbuf.New(append([]byte(nil), b...))

	keyBytes, _ := priv.View()
	pk, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		t.Fatal(err)
	}
	compressed := ethcrypto.CompressPubkey(&pk.PublicKey)

	var pub PubKey
	copy(pub[:], compressed)
	return testSigner{priv: secretbuf.New(append([]byte(nil), b...)), pub: pub}
}

func signDigest(t *testing.T, s testSigner, digest [32]byte) signer.Signature {
	t.Helper()
	sig, err := signer.SignECDSA(s.priv, digest)
	if err != nil {
		t.Fatal(err)
	}
	return sig
}

func TestPropose_RejectsDuplicateID(t *testing.T) {
	p := New()
	if err := p.Propose("tx1", "0x1234", "1.0", "eth", 1, nil); err != nil {
		t.Fatal(err)
	}
	if err := p.Propose("tx1", "0xabcd", "2.0", "eth", 1, nil); err == nil {
		t.Error("expected error proposing a duplicate id")
	}
}

func TestPropose_UnboundRequiresNonZeroThreshold(t *testing.T) {
	p := New()
	if err := p.Propose("tx1", "0x1234", "1.0", "eth", 0, nil); err == nil {
		t.Error("expected error for zero threshold with unbound signer set")
	}
}

func TestPropose_BoundThresholdMustFitSignerCount(t *testing.T) {
	p := New()
	a := newTestSigner(t, 1)
	b := newTestSigner(t, 50)

	if err := p.Propose("tx1", "0x1234", "1.0", "eth", 3, []PubKey{a.pub, b.pub}); err == nil {
		t.Error("expected error: threshold 3 exceeds 2 bound signers")
	}
	if err := p.Propose("tx2", "0x1234", "1.0", "eth", 0, []PubKey{a.pub, b.pub}); err == nil {
		t.Error("expected error: threshold 0 invalid even for bound set")
	}
}

func TestPropose_DedupesAllowedSigners(t *testing.T) {
	p := New()
	a := newTestSigner(t, 1)

	if err := p.Propose("tx1", "0x1234", "1.0", "eth", 1, []PubKey{a.pub, a.pub}); err != nil {
		t.Fatal(err)
	}
	got, err := p.Get("tx1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.AllowedSigners) != 1 {
		t.Errorf("AllowedSigners = %d entries, want 1 after dedupe", len(got.AllowedSigners))
	}
}

func TestCanonicalMessage_SignerOrderInvariant(t *testing.T) {
	a := newTestSigner(t, 1)
	b := newTestSigner(t, 50)
	nonce, chainID := uint64(0), uint64(1)

	m1 := canonicalMessage("tx1", "0x1234", "1000", "eth", 2, sortAndDedupe([]PubKey{a.pub, b.pub}), &nonce, &chainID, PrecisionMinimal)
	m2 := canonicalMessage("tx1", "0x1234", "1000", "eth", 2, sortAndDedupe([]PubKey{b.pub, a.pub}), &nonce, &chainID, PrecisionMinimal)

	if sha256.Sum256(m1) != sha256.Sum256(m2) {
		t.Error("canonical digest must be invariant to input signer order")
	}
}

func TestCanonicalMessage_FieldPresenceSensitive(t *testing.T) {
	nonce, chainID := uint64(5), uint64(1)

	base := canonicalMessage("tx1", "0x1234", "1000", "eth", 1, nil, &nonce, &chainID, PrecisionMinimal)
	noNonce := canonicalMessage("tx1", "0x1234", "1000", "eth", 1, nil, nil, &chainID, PrecisionMinimal)
	noChain := canonicalMessage("tx1", "0x1234", "1000", "eth", 1, nil, &nonce, nil, PrecisionMinimal)
	rawPrec := canonicalMessage("tx1", "0x1234", "1000", "eth", 1, nil, &nonce, &chainID, PrecisionRaw)

	a := newTestSigner(t, 1)
	withSigners := canonicalMessage("tx1", "0x1234", "1000", "eth", 1, []PubKey{a.pub}, &nonce, &chainID, PrecisionMinimal)

	digests := [][32]byte{
		sha256.Sum256(base),
		sha256.Sum256(noNonce),
		sha256.Sum256(noChain),
		sha256.Sum256(rawPrec),
		sha256.Sum256(withSigners),
	}
	for i := 0; i < len(digests); i++ {
		for j := i + 1; j < len(digests); j++ {
			if digests[i] == digests[j] {
				t.Errorf("digest %d and %d unexpectedly equal; presence/precision toggles must change the digest", i, j)
			}
		}
	}
}

func TestSetNonceAndChainID_WriteOnce(t *testing.T) {
	p := New()
	if err := p.Propose("tx1", "0x1234", "1.0", "eth", 1, nil); err != nil {
		t.Fatal(err)
	}
	if err := p.SetNonceAndChainID("tx1", 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.SetNonceAndChainID("tx1", 1, 2); err == nil {
		t.Error("expected error re-setting nonce/chain_id")
	}
}

func TestSign_RejectsBeforeBindingComplete(t *testing.T) {
	p := New()
	a := newTestSigner(t, 1)
	if err := p.Propose("tx1", "0x1234", "1.0", "eth", 1, nil); err != nil {
		t.Fatal(err)
	}

	digest, err := p.MessageToSign("tx1")
	if err != nil {
		t.Fatal(err)
	}
	sig := signDigest(t, a, digest)

	if _, err := p.Sign("tx1", a.pub, sig); err == nil {
		t.Error("expected error signing before nonce/chain_id set")
	}

	if err := p.SetNonceAndChainID("tx1", 0, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Sign("tx1", a.pub, sig); err == nil {
		t.Error("expected error signing before amount_precision=Minimal")
	}
}

func TestSign_HappyPathAndExecute(t *testing.T) {
	p := New()
	a := newTestSigner(t, 1)
	b := newTestSigner(t, 50)

	if err := p.Propose("tx1", "0x1234", "1000", "eth", 2, []PubKey{a.pub, b.pub}); err != nil {
		t.Fatal(err)
	}
	if err := p.SetNonceAndChainID("tx1", 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.SetAmountPrecisionMinimal("tx1"); err != nil {
		t.Fatal(err)
	}

	digest, err := p.MessageToSign("tx1")
	if err != nil {
		t.Fatal(err)
	}

	complete, err := p.Sign("tx1", a.pub, signDigest(t, a, digest))
	if err != nil {
		t.Fatal(err)
	}
	if complete {
		t.Error("should not be complete after 1 of 2 signatures")
	}

	if _, err := p.Execute("tx1"); err == nil {
		t.Error("expected InsufficientSignatures before threshold reached")
	}

	complete, err = p.Sign("tx1", b.pub, signDigest(t, b, digest))
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Error("should be complete after 2 of 2 signatures")
	}

	executed, err := p.Execute("tx1")
	if err != nil {
		t.Fatal(err)
	}
	if len(executed.Signatures) != 2 {
		t.Errorf("executed proposal carries %d signatures, want 2", len(executed.Signatures))
	}

	if _, err := p.Get("tx1"); err == nil {
		t.Error("proposal should be gone after execute")
	}
}

func TestSign_RejectsDuplicateSignerAndUnauthorizedSigner(t *testing.T) {
	p := New()
	a := newTestSigner(t, 1)
	b := newTestSigner(t, 50)
	stranger := newTestSigner(t, 99)

	if err := p.Propose("tx1", "0x1234", "1000", "eth", 2, []PubKey{a.pub, b.pub}); err != nil {
		t.Fatal(err)
	}
	if err := p.SetNonceAndChainID("tx1", 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.SetAmountPrecisionMinimal("tx1"); err != nil {
		t.Fatal(err)
	}
	digest, err := p.MessageToSign("tx1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Sign("tx1", a.pub, signDigest(t, a, digest)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Sign("tx1", a.pub, signDigest(t, a, digest)); err == nil {
		t.Error("expected error re-signing with same signer")
	}

	strangerSig := signDigest(t, stranger, digest)
	if _, err := p.Sign("tx1", stranger.pub, strangerSig); err == nil {
		t.Error("expected error for signer not in allowed set, even with a valid signature")
	}
}

func TestCancel_RemovesProposal(t *testing.T) {
	p := New()
	if err := p.Propose("tx1", "0x1234", "1.0", "eth", 1, nil); err != nil {
		t.Fatal(err)
	}
	if err := p.Cancel("tx1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Cancel("tx1"); err == nil {
		t.Error("expected NotFound cancelling an already-cancelled proposal")
	}
	if _, err := p.Sign("tx1", PubKey{}, signer.Signature{}); err == nil {
		t.Error("expected NotFound signing a cancelled proposal")
	}
}
