package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/defisafe/hotwallet/internal/addresscodec"
	"github.com/defisafe/hotwallet/pkg/models"
)

// FakeClient is a deterministic, in-memory Client used by tests: no
// network calls, fully inspectable state.
type FakeClient struct {
	mu           sync.Mutex
	network      models.Network
	balances     map[string]*big.Int
	nonces       map[string]uint64
	receipts     map[string]*Receipt
	sendCount    int
	defaultNonce uint64
}

// NewFakeClient returns a FakeClient for network with every address
// not otherwise seeded reporting startNonce on first GetNonce.
func NewFakeClient(network models.Network, startNonce uint64) *FakeClient {
	return &FakeClient{
		network:      network,
		balances:     make(map[string]*big.Int),
		nonces:       make(map[string]uint64),
		receipts:     make(map[string]*Receipt),
		defaultNonce: startNonce,
	}
}

// SeedNonce fixes the nonce FakeClient reports for address; sends do
// not change it.
func (f *FakeClient) SeedNonce(address string, nonce uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[address] = nonce
}

// SeedBalance fixes the balance FakeClient reports for address.
func (f *FakeClient) SeedBalance(address string, balance *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = balance
}

func (f *FakeClient) NetworkName() models.Network { return f.network }

// SendCount reports how many times SendSignedWithNonce has been
// called, for tests asserting broadcast counts.
func (f *FakeClient) SendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCount
}

func (f *FakeClient) ValidateAddress(address string) bool {
	if f.network == models.NetworkSolana {
		return addresscodec.ValidateSolanaAddress(address)
	}
	return addresscodec.ValidateEVMAddress(address)
}

func (f *FakeClient) GetBalance(_ context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *FakeClient) GetNonce(_ context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nonces[address]; ok {
		return n, nil
	}
	n := f.defaultNonce
	f.nonces[address] = n
	return n, nil
}

func (f *FakeClient) SendSignedWithNonce(_ context.Context, rawSigned []byte, nonce uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCount++
	prefixLen := len(rawSigned)
	if prefixLen > 4 {
		prefixLen = 4
	}
	txHash := fmt.Sprintf("0xfake%d%x", nonce, rawSigned[:prefixLen])
	f.receipts[txHash] = &Receipt{TxHash: txHash, BlockNumber: uint64(f.sendCount), Confirmed: true, Success: true}
	return txHash, nil
}

func (f *FakeClient) GetReceipt(_ context.Context, txHash string) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		cp := *r
		return &cp, nil
	}
	return &Receipt{TxHash: txHash, Confirmed: false}, nil
}
