package walletstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory RecordStore + ReservingStore + SeedingStore, suitable
// for tests and for a single-process deployment with no durability
// guarantees across restarts. Grounded on
// OKaluzny-wallet-demo's internal/storage/memory.go (mutex-guarded
// maps, same method shapes as the NonceStore/TxStore/WatchStore
// trio), generalized to the fuller Record/RotationState/nonce-counter
// surface spec.md §4.5 requires.
//
// By default it behaves as a durable linearizable backend (each
// (chain,address) nonce counter persists across calls). Setting
// SeedOnly true switches it to the fail-open fallback mode from
// spec.md's Open Questions: every reservation reseeds from the
// caller-supplied chain nonce, matching a chain client's live state
// rather than a durable floor. That mode exists purely as an explicit
// test configuration; production must use a linearizable backend.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	rotation map[string]RotationState
	nonces   map[string]uint64

	// seedOnly, when true, makes ReserveNextNonce always reseed from
	// the supplied chainSeed instead of tracking a durable floor, and
	// makes SeedOnly() report true. The type implements both
	// ReservingStore and SeedingStore in either mode.
	seedOnly bool
}

// SetSeedOnly switches the store between its default durable,
// linearizable behavior and the non-durable seed-from-chain fallback
// mode. Tests that want to exercise NonceEngine's SeedingStore path
// call this before use.
func (s *MemoryStore) SetSeedOnly(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seedOnly = v
}

// SeedOnly reports whether this store is running in non-durable
// seed-from-chain mode, satisfying walletstore.SeedingStore.
func (s *MemoryStore) SeedOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seedOnly
}

// NewMemoryStore returns an empty, durable-by-default in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]Record),
		rotation: make(map[string]RotationState),
		nonces:   make(map[string]uint64),
	}
}

func (s *MemoryStore) Get(_ context.Context, name string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Name] = rec.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return ErrNotFound
	}
	delete(s.records, name)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for name := range s.records {
		out = append(out, name)
	}
	return out, nil
}

func (s *MemoryStore) GetRotationState(_ context.Context, label string) (RotationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rotation[label]
	if !ok {
		return RotationState{}, ErrNotFound
	}
	return st, nil
}

func (s *MemoryStore) PutRotationState(_ context.Context, state RotationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotation[state.Label] = state
	return nil
}

func nonceKey(chain, address string) string { return chain + ":" + address }

// ReserveNextNonce implements ReservingStore when SeedOnly is false:
// if no row exists, it seeds from chainSeed and stores seeded+1; if a
// row exists, it returns the stored value and stores value+1. When
// SeedOnly is true it always reseeds from chainSeed (spec's fallback
// "seed-only from chain" mode).
func (s *MemoryStore) ReserveNextNonce(_ context.Context, chain, address string, chainSeed uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nonceKey(chain, address)
	if s.seedOnly {
		s.nonces[key] = chainSeed + 1
		return chainSeed, nil
	}

	if v, ok := s.nonces[key]; ok {
		s.nonces[key] = v + 1
		return v, nil
	}
	s.nonces[key] = chainSeed + 1
	return chainSeed, nil
}

// MarkUsed idempotently raises the durable floor for (chain, address)
// to at least nonce+1.
func (s *MemoryStore) MarkUsed(_ context.Context, chain, address string, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nonceKey(chain, address)
	if nonce+1 > s.nonces[key] {
		s.nonces[key] = nonce + 1
	}
	return nil
}

// NextNonce reports the current next-to-issue nonce for (chain,
// address), for tests that assert on post-state without going
// through a reservation.
func (s *MemoryStore) NextNonce(chain, address string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[nonceKey(chain, address)]
}
