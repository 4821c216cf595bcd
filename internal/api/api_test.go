package api

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/defisafe/hotwallet/internal/bridge"
	"github.com/defisafe/hotwallet/internal/chain"
	"github.com/defisafe/hotwallet/internal/config"
	"github.com/defisafe/hotwallet/internal/envelope"
	"github.com/defisafe/hotwallet/internal/listener"
	"github.com/defisafe/hotwallet/internal/multisig"
	"github.com/defisafe/hotwallet/internal/nonceengine"
	"github.com/defisafe/hotwallet/internal/secretbuf"
	"github.com/defisafe/hotwallet/internal/signer"
	"github.com/defisafe/hotwallet/internal/storage"
	"github.com/defisafe/hotwallet/internal/tx"
	"github.com/defisafe/hotwallet/internal/walletmanager"
	"github.com/defisafe/hotwallet/internal/walletstore"
	"github.com/defisafe/hotwallet/pkg/models"
)

// fixtureKEKSource hands out a copy of a fixed key so tests don't depend
// on environment variables, mirroring walletmanager's own test fixture.
// It returns a fresh copy each call because envelope wipes the slice it
// receives.
type fixtureKEKSource struct{ key []byte }

func (f fixtureKEKSource) KEK(string) ([]byte, error) { return append([]byte(nil), f.key...), nil }

const testAPIKey = "test-api-key"

func newTestServer(t *testing.T) (*Server, *chain.FakeClient) {
	t.Helper()
	cfg := config.Default()
	cfg.Production = false
	cfg.BackupApproved = true
	cfg.APIKey = testAPIKey

	kek := make([]byte, 32)
	for i := range kek {
		kek[i] = byte(i)
	}
	crypto := envelope.New(fixtureKEKSource{key: kek})

	fake := chain.NewFakeClient(models.NetworkETH, 0)
	registry := chain.NewRegistry()
	registry.Register(fake)

	nonces, err := nonceengine.New(walletstore.NewMemoryStore(), registry, nil)
	if err != nil {
		t.Fatal(err)
	}

	builder := tx.NewBuilder(tx.BuilderConfig{MaxRetries: 2}, registry, storage.NewMemoryTxStore())
	ms := multisig.New()
	br := bridge.New(true)
	mgr := walletmanager.New(cfg, walletstore.NewMemoryStore(), crypto, registry, nonces, builder, ms, br,
		listener.NewManager(func(models.BlockEvent) error { return nil }), nil)

	srv := New(mgr, cfg, nil, NewMetrics())
	return srv, fake
}

func doRequest(t *testing.T, srv *Server, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleCreateWallet_RequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/wallets", "", createWalletRequest{Name: "alice"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/wallets", "wrong-key", createWalletRequest{Name: "alice"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandleCreateAndListWallet(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "alice", QuantumSafe: false})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created walletResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Name != "alice" || created.QuantumSafe {
		t.Errorf("unexpected wallet response: %+v", created)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/wallets", testAPIKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var names []string
	if err := json.NewDecoder(rec.Body).Decode(&names); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range names {
		if n == "alice" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q in wallet list, got %v", "alice", names)
	}
}

func TestHandleCreateWallet_DuplicateName(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "bob"})
	rec := doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "bob"})
	if rec.Code < 400 {
		t.Fatalf("expected a failure status creating a duplicate wallet, got %d", rec.Code)
	}
}

func TestHandleSendTransaction(t *testing.T) {
	srv, fake := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "alice"})

	rec := doRequest(t, srv, http.MethodPost, "/api/wallets/alice/send", testAPIKey, sendTransactionRequest{
		ToAddress: "0x1111111111111111111111111111111111111111",
		Amount:    "1000",
		Network:   string(models.NetworkETH),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var txResp transactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&txResp); err != nil {
		t.Fatal(err)
	}
	if txResp.TxHash == "" {
		t.Error("expected a non-empty tx hash")
	}
	if fake.SendCount() != 1 {
		t.Errorf("expected one broadcast, got %d", fake.SendCount())
	}
}

func TestHandleSendTransaction_MalformedAmount(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "alice"})

	rec := doRequest(t, srv, http.MethodPost, "/api/wallets/alice/send", testAPIKey, sendTransactionRequest{
		ToAddress: "0x1111111111111111111111111111111111111111",
		Amount:    "not-a-number",
		Network:   string(models.NetworkETH),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "alice"})
	doRequest(t, srv, http.MethodPost, "/api/wallets/alice/send", testAPIKey, sendTransactionRequest{
		ToAddress: "0x1111111111111111111111111111111111111111",
		Amount:    "1",
		Network:   string(models.NetworkETH),
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/wallets/alice/history", testAPIKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Transactions []interface{} `json:"transactions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Transactions) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(body.Transactions))
	}
}

func TestHandleRotateSigningKey(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "alice"})

	rec := doRequest(t, srv, http.MethodPost, "/api/wallets/alice/rotate-signing-key", testAPIKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp rotateSigningKeyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.OldVersion != 1 || resp.NewVersion != 2 {
		t.Errorf("expected version 1 -> 2, got %d -> %d", resp.OldVersion, resp.NewVersion)
	}
}

func TestHandleBackup_ReturnsEncryptedPayload(t *testing.T) {
	t.Setenv("WALLET_BACKUP_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))

	srv, _ := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "alice"})

	rec := doRequest(t, srv, http.MethodGet, "/api/wallets/alice/backup", testAPIKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp backupResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Ciphertext == "" || resp.Nonce == "" {
		t.Errorf("expected non-empty ciphertext and nonce, got %+v", resp)
	}
	if resp.Alg != "AES-256-GCM" {
		t.Errorf("alg = %q, want AES-256-GCM", resp.Alg)
	}
}

func TestHandleBackup_RequiresApproval(t *testing.T) {
	t.Setenv("WALLET_BACKUP_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))

	cfg := config.Default()
	cfg.Production = false
	cfg.BackupApproved = false // not approved
	cfg.APIKey = testAPIKey

	kek := make([]byte, 32)
	crypto := envelope.New(fixtureKEKSource{key: kek})
	registry := chain.NewRegistry()
	registry.Register(chain.NewFakeClient(models.NetworkETH, 0))
	nonces, err := nonceengine.New(walletstore.NewMemoryStore(), registry, nil)
	if err != nil {
		t.Fatal(err)
	}
	builder := tx.NewBuilder(tx.BuilderConfig{MaxRetries: 2}, registry, storage.NewMemoryTxStore())
	mgr := walletmanager.New(cfg, walletstore.NewMemoryStore(), crypto, registry, nonces, builder, multisig.New(), bridge.New(true),
		listener.NewManager(func(models.BlockEvent) error { return nil }), nil)
	srv := New(mgr, cfg, nil, NewMetrics())

	doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "alice"})
	rec := doRequest(t, srv, http.MethodGet, "/api/wallets/alice/backup", testAPIKey, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHandleSendMultiSig_RejectsInsufficientSignatures(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "treasury"})

	rec := doRequest(t, srv, http.MethodPost, "/api/wallets/treasury/send_multi_sig", testAPIKey, sendMultiSigRequest{
		ToAddress:  "0x3333333333333333333333333333333333333333",
		Amount:     "500",
		Network:    string(models.NetworkETH),
		Threshold:  1,
		Signatures: nil,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleDeleteWallet(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "alice"})

	rec := doRequest(t, srv, http.MethodDelete, "/api/wallets/alice", testAPIKey, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/wallets/alice/balance?network=eth", testAPIKey, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d after deletion", rec.Code, http.StatusNotFound)
	}
}

func TestRateLimiting(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.limiter = NewTokenBucketLimiter(0, 1)

	rec := doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "first"})
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/wallets", testAPIKey, createWalletRequest{Name: "second"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestTokenBucketLimiter_PerKey(t *testing.T) {
	lim := NewTokenBucketLimiter(0, 1)
	if !lim.Allow("a") {
		t.Error("expected first request for key a to be allowed")
	}
	if lim.Allow("a") {
		t.Error("expected second request for key a to be denied")
	}
	if !lim.Allow("b") {
		t.Error("expected first request for a distinct key b to be allowed")
	}
}

func TestDecodeSignedEntry(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	privBuf := secretbuf.New(ethcrypto.FromECDSA(priv))
	digest := [32]byte{1, 2, 3}
	sig, err := signer.SignECDSA(privBuf, digest)
	if err != nil {
		t.Fatal(err)
	}

	entry := signedEntry{
		PublicKey: "0x" + hex.EncodeToString(ethcrypto.CompressPubkey(&priv.PublicKey)),
		Signature: hex.EncodeToString(sig.Bytes[:]),
	}

	pubkey, decodedSig, err := decodeSignedEntry(entry)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pubkey[:], ethcrypto.CompressPubkey(&priv.PublicKey)) {
		t.Error("decoded public key does not match original")
	}
	if decodedSig.Bytes != sig.Bytes {
		t.Error("decoded signature does not match original")
	}
}

func TestDecodeSignedEntry_RejectsMalformedHex(t *testing.T) {
	_, _, err := decodeSignedEntry(signedEntry{PublicKey: "not-hex", Signature: "also-not-hex"})
	if err == nil {
		t.Error("expected an error decoding a malformed signed entry")
	}
}
