package envelope

import (
	"crypto/rand"
	"testing"

	"github.com/defisafe/hotwallet/internal/secretbuf"
)

type fakeKEKSource struct {
	keys map[string][]byte
}

func newFakeKEKSource() *fakeKEKSource {
	return &fakeKEKSource{keys: map[string][]byte{
		"":      bytes(0x11),
		"BLUE":  bytes(0x42),
		"GREEN": bytes(0x55),
	}}
}

func bytes(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}
	return out
}

func (f *fakeKEKSource) KEK(kekID string) ([]byte, error) {
	k, ok := f.keys[kekID]
	if !ok {
		return nil, errNoSuchKEK
	}
	out := make([]byte, len(k))
	copy(out, k)
	return out, nil
}

var errNoSuchKEK = &fakeErr{"no such kek"}

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }

func randomMasterKey(t *testing.T) *secretbuf.Buffer {
	t.Helper()
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return secretbuf.New(b)
}

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	c := New(newFakeKEKSource())
	mk := randomMasterKey(t)
	plain, _ := mk.View()
	want := append([]byte(nil), plain...)

	wrapped, err := c.Wrap(mk, "wallet-uuid-1", "")
	if err != nil {
		t.Fatal(err)
	}

	unwrapped, err := c.Unwrap(SealedKey{
		Ciphertext: wrapped.Ciphertext,
		Nonce:      wrapped.Nonce,
		Salt:       wrapped.Salt,
		KEKID:      "",
		Name:       "alice",
		ID:         "wallet-uuid-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := unwrapped.MasterKey.View()
	if string(got) != string(want) {
		t.Error("unwrap(wrap(mk)) != mk")
	}
	if unwrapped.UsedAADv1 {
		t.Error("fresh v2 wrap should not report v1 fallback")
	}
}

func TestUnwrap_FallsBackToAADv1(t *testing.T) {
	c := New(newFakeKEKSource())
	mk := randomMasterKey(t)
	plain, _ := mk.View()
	want := append([]byte(nil), plain...)

	// Simulate a legacy v1 record: wrap under the v1 (name-bound) AAD
	// directly, bypassing Wrap (which always produces v2).
	var salt [32]byte
	rand.Read(salt[:])
	var nonce [12]byte
	rand.Read(nonce[:])

	ek, err := c.deriveEK("", salt[:], aadV1("alice"))
	if err != nil {
		t.Fatal(err)
	}
	ekBytes, _ := ek.View()
	ct, err := seal(ekBytes, nonce[:], plain, aadV1("alice"))
	if err != nil {
		t.Fatal(err)
	}
	ek.Destroy()

	unwrapped, err := c.Unwrap(SealedKey{
		Ciphertext: ct,
		Nonce:      nonce,
		Salt:       salt,
		KEKID:      "",
		Name:       "alice",
		ID:         "wallet-uuid-legacy",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !unwrapped.UsedAADv1 {
		t.Error("expected legacy unwrap to report v1 fallback")
	}
	got, _ := unwrapped.MasterKey.View()
	if string(got) != string(want) {
		t.Error("v1 unwrap produced wrong plaintext")
	}
}

func TestUnwrap_WrongAADFails(t *testing.T) {
	c := New(newFakeKEKSource())
	mk := randomMasterKey(t)

	wrapped, err := c.Wrap(mk, "wallet-uuid-1", "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Unwrap(SealedKey{
		Ciphertext: wrapped.Ciphertext,
		Nonce:      wrapped.Nonce,
		Salt:       wrapped.Salt,
		KEKID:      "",
		Name:       "wrong-name",
		ID:         "wrong-id",
	})
	if err == nil {
		t.Error("expected unwrap failure for mismatched AAD binding")
	}
}

func TestRotate_Idempotent(t *testing.T) {
	c := New(newFakeKEKSource())
	mk := randomMasterKey(t)
	wrapped, err := c.Wrap(mk, "wallet-uuid-2", "")
	if err != nil {
		t.Fatal(err)
	}
	sk := SealedKey{
		Ciphertext: wrapped.Ciphertext,
		Nonce:      wrapped.Nonce,
		Salt:       wrapped.Salt,
		KEKID:      "",
		Name:       "bob",
		ID:         "wallet-uuid-2",
	}

	r1, err := c.Rotate(sk, "BLUE")
	if err != nil {
		t.Fatal(err)
	}
	if r1.AlreadyDone {
		t.Fatal("first rotation should not be a no-op")
	}
	sk.Ciphertext = r1.Wrap.Ciphertext
	sk.Nonce = r1.Wrap.Nonce
	sk.Salt = r1.Wrap.Salt
	sk.KEKID = "BLUE"

	r2, err := c.Rotate(sk, "BLUE")
	if err != nil {
		t.Fatal(err)
	}
	if !r2.AlreadyDone {
		t.Error("repeating rotation to the same KEK id should be a no-op")
	}

	// rotation preserved the master key
	unwrapped, err := c.Unwrap(sk)
	if err != nil {
		t.Fatal(err)
	}
	mkBytes, _ := mk.View()
	gotBytes, _ := unwrapped.MasterKey.View()
	if string(mkBytes) != string(gotBytes) {
		t.Error("rotation altered the master key")
	}
}

func TestRotate_RejectsEmptyKEKID(t *testing.T) {
	c := New(newFakeKEKSource())
	if _, err := c.Rotate(SealedKey{}, ""); err == nil {
		t.Error("expected error for empty new kek id")
	}
}

func TestRotate_RejectsUnknownKEKID(t *testing.T) {
	c := New(newFakeKEKSource())
	if _, err := c.Rotate(SealedKey{}, "NOPE"); err == nil {
		t.Error("expected error for unknown new kek id")
	}
}
