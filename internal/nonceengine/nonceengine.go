// Package nonceengine serializes per-(chain, address) transaction
// nonce reservation across concurrent requests within one process and
// coordinates with a durable store across processes (spec §4.6, §5).
package nonceengine

import (
	"context"
	"sync"

	"github.com/defisafe/hotwallet/internal/walleterrors"
	"github.com/defisafe/hotwallet/internal/walletstore"
)

// ChainNonceSource is the narrow slice of ChainClient the engine
// needs: the chain's own view of the next nonce for an address, used
// to seed a fresh counter.
type ChainNonceSource interface {
	GetNonce(ctx context.Context, chain, address string) (uint64, error)
}

// GapReporter is notified when a reserved nonce is cancelled without
// being submitted, per Design Notes §9: gaps are surfaced to
// operators rather than silently replayed.
type GapReporter interface {
	ReportGap(chain, address string, nonce uint64)
}

// Engine holds the per-(chain, address) mutex set and in-process
// nonce tracker described in spec §4.6.
type Engine struct {
	reserving walletstore.ReservingStore
	seeding   walletstore.SeedingStore
	chain     ChainNonceSource
	gaps      GapReporter

	keyMu sync.Mutex
	locks map[string]*sync.Mutex

	trackMu sync.Mutex
	tracker map[string]uint64
}

// New builds an Engine over store, which must implement at least one
// of walletstore.ReservingStore or walletstore.SeedingStore. This
// capability query replaces a storage-specific downcast (Design Notes
// §9): the engine never inspects the store's concrete type.
func New(store interface{}, chain ChainNonceSource, gaps GapReporter) (*Engine, error) {
	e := &Engine{
		chain:   chain,
		gaps:    gaps,
		locks:   make(map[string]*sync.Mutex),
		tracker: make(map[string]uint64),
	}
	if rs, ok := store.(walletstore.ReservingStore); ok {
		e.reserving = rs
	}
	if ss, ok := store.(walletstore.SeedingStore); ok {
		e.seeding = ss
	}
	if e.reserving == nil && e.seeding == nil {
		return nil, walleterrors.New(walleterrors.KindConfig,
			"nonceengine: store implements neither ReservingStore nor SeedingStore")
	}
	return e, nil
}

func lockKey(chain, address string) string { return chain + ":" + address }

func (e *Engine) lockFor(key string) *sync.Mutex {
	e.keyMu.Lock()
	defer e.keyMu.Unlock()
	mu, ok := e.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[key] = mu
	}
	return mu
}

// isSeedOnly reports whether the durable store has been explicitly
// put into the non-linearizable, seed-from-chain-every-time fallback
// mode. A store implementing only SeedingStore is always seed-only.
func (e *Engine) isSeedOnly() bool {
	if e.reserving == nil {
		return true
	}
	return e.seeding != nil && e.seeding.SeedOnly()
}

// Reserve returns the next nonce to use for (chain, address),
// serialized against any other concurrent Reserve for the same pair.
// Reservations for a single address are totally ordered and
// contiguous starting from the chain's reported nonce; reservations
// for distinct addresses proceed in parallel.
func (e *Engine) Reserve(ctx context.Context, chain, address string) (uint64, error) {
	key := lockKey(chain, address)
	mu := e.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	e.trackMu.Lock()
	if v, ok := e.tracker[key]; ok {
		e.tracker[key] = v + 1
		e.trackMu.Unlock()
		return v, nil
	}
	e.trackMu.Unlock()

	if !e.isSeedOnly() {
		seed, err := e.chain.GetNonce(ctx, chain, address)
		if err != nil {
			return 0, walleterrors.Wrap(walleterrors.KindNetwork, "nonceengine: fetching chain nonce", err)
		}
		resv, err := e.reserving.ReserveNextNonce(ctx, chain, address, seed)
		if err != nil {
			return 0, walleterrors.Wrap(walleterrors.KindStorage, "nonceengine: reserving durable nonce", err)
		}
		e.trackMu.Lock()
		e.tracker[key] = resv + 1
		e.trackMu.Unlock()
		return resv, nil
	}

	v, err := e.chain.GetNonce(ctx, chain, address)
	if err != nil {
		return 0, walleterrors.Wrap(walleterrors.KindNetwork, "nonceengine: fetching chain nonce", err)
	}
	e.trackMu.Lock()
	e.tracker[key] = v + 1
	e.trackMu.Unlock()
	return v, nil
}

// Commit records that nonce was submitted successfully for (chain,
// address), raising the durable floor and the in-process tracker.
func (e *Engine) Commit(ctx context.Context, chain, address string, nonce uint64) error {
	key := lockKey(chain, address)
	e.trackMu.Lock()
	if nonce+1 > e.tracker[key] {
		e.tracker[key] = nonce + 1
	}
	e.trackMu.Unlock()

	if e.reserving != nil && !e.isSeedOnly() {
		if err := e.reserving.MarkUsed(ctx, chain, address, nonce); err != nil {
			return walleterrors.Wrap(walleterrors.KindStorage, "nonceengine: marking nonce used", err)
		}
	}
	return nil
}

// Cancel reports that a reserved nonce was never submitted, leaving a
// gap in the sequence. Per Design Notes §9 the engine does not
// attempt to auto-repair the gap; it only surfaces it.
func (e *Engine) Cancel(chain, address string, nonce uint64) {
	if e.gaps != nil {
		e.gaps.ReportGap(chain, address, nonce)
	}
}

// Peek reports the next nonce this engine would issue for (chain,
// address) without reserving it, for diagnostics and tests.
func (e *Engine) Peek(chain, address string) (uint64, bool) {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	v, ok := e.tracker[lockKey(chain, address)]
	return v, ok
}
