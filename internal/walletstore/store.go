package walletstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get/Load operations that find nothing.
var ErrNotFound = errors.New("walletstore: not found")

// ErrAlreadyExists reports a wallet name that is already taken.
// MemoryStore.Put replaces an existing record and does not return it.
var ErrAlreadyExists = errors.New("walletstore: already exists")

// RecordStore is the durable name -> Record mapping plus rotation
// metadata CRUD (spec §4.5).
type RecordStore interface {
	Get(ctx context.Context, name string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)

	GetRotationState(ctx context.Context, label string) (RotationState, error)
	PutRotationState(ctx context.Context, state RotationState) error
}

// ReservingStore durably, atomically reserves the next nonce for a
// (chain, address) pair. A backend satisfying this interface is
// linearizable across processes (a real database); see SeedingStore
// for the non-linearizable fallback. This split replaces the
// teacher-source's storage-specific downcast (Design Notes §9) with a
// capability query: NonceEngine type-asserts the store it is given
// against this interface instead of inspecting a concrete type.
type ReservingStore interface {
	ReserveNextNonce(ctx context.Context, chain, address string, chainSeed uint64) (uint64, error)
	MarkUsed(ctx context.Context, chain, address string, nonce uint64) error
}

// SeedingStore is the non-linearizable fallback capability: SeedOnly
// reports whether the store is in seed-from-chain mode, where it does
// not atomically reserve. MemoryStore implements it alongside
// ReservingStore.
type SeedingStore interface {
	SeedOnly() bool
}
