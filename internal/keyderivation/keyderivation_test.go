package keyderivation

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/defisafe/hotwallet/internal/addresscodec"
)

func zeroSeed() []byte { return make([]byte, 32) }

// TestDerive_LockedVectors pins the two reference vectors from the
// specification: for the all-zero seed at the default path, the
// derived key and address must be bit-identical across runs,
// platforms, and library versions.
func TestDerive_LockedVectors(t *testing.T) {
	t.Run("eth", func(t *testing.T) {
		buf, err := Derive(zeroSeed(), ChainEthereum, DefaultPath())
		if err != nil {
			t.Fatal(err)
		}
		priv, err := buf.View()
		if err != nil {
			t.Fatal(err)
		}
		privHex := hex.EncodeToString(priv)
		if !strings.HasPrefix(privHex, "c43ab648") {
			t.Errorf("priv hex should start with c43ab648, got %s", privHex)
		}
		if !strings.HasSuffix(privHex, "9229953") {
			t.Errorf("priv hex should end with 9229953, got %s", privHex)
		}

		addr, err := addresscodec.EVMAddress(priv)
		if err != nil {
			t.Fatal(err)
		}
		const want = "0xaca6302ecbde40120cb8a08361d8bd461282bd18"
		if addr != want {
			t.Errorf("address = %s, want %s", addr, want)
		}
	})

	t.Run("solana", func(t *testing.T) {
		buf, err := Derive(zeroSeed(), ChainSolana, DefaultPath())
		if err != nil {
			t.Fatal(err)
		}
		seed, err := buf.View()
		if err != nil {
			t.Fatal(err)
		}
		addr, err := addresscodec.SolanaAddress(seed)
		if err != nil {
			t.Fatal(err)
		}
		const want = "HVEMhZbBXiAn7YnohXpLVdyFfGNvjFPpMgDGiWtu8BgZ"
		if addr != want {
			t.Errorf("address = %s, want %s", addr, want)
		}
	})
}

func TestDerive_Deterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	for _, chain := range []Chain{ChainEthereum, ChainSolana} {
		t.Run(string(chain), func(t *testing.T) {
			a, err := Derive(seed, chain, DefaultPath())
			if err != nil {
				t.Fatal(err)
			}
			b, err := Derive(seed, chain, DefaultPath())
			if err != nil {
				t.Fatal(err)
			}
			av, _ := a.View()
			bv, _ := b.View()
			if hex.EncodeToString(av) != hex.EncodeToString(bv) {
				t.Errorf("derivation is not deterministic for %s", chain)
			}
		})
	}
}

func TestDerive_DifferentIndicesDifferentKeys(t *testing.T) {
	seed := make([]byte, 32)
	for _, chain := range []Chain{ChainEthereum, ChainSolana} {
		a, err := Derive(seed, chain, Path{Index: 0})
		if err != nil {
			t.Fatal(err)
		}
		b, err := Derive(seed, chain, Path{Index: 1})
		if err != nil {
			t.Fatal(err)
		}
		av, _ := a.View()
		bv, _ := b.View()
		if hex.EncodeToString(av) == hex.EncodeToString(bv) {
			t.Errorf("%s: different indices produced identical key material", chain)
		}
	}
}

func TestDerive_UnsupportedChain(t *testing.T) {
	_, err := Derive(make([]byte, 32), Chain("dogecoin"), DefaultPath())
	if err == nil {
		t.Fatal("expected error for unsupported chain")
	}
}

func TestDerive_BadSeedLength(t *testing.T) {
	_, err := Derive(make([]byte, 16), ChainEthereum, DefaultPath())
	if err == nil {
		t.Fatal("expected error for short seed")
	}
}
