// Package storage holds the two supporting persistence interfaces the
// teacher's storage layer defined alongside per-address nonce
// tracking: idempotent transaction history (TxStore) and the watched-
// address set a confirmation listener polls against (WatchStore). The
// teacher's third store, NonceStore, is superseded here by
// internal/walletstore's richer ReservingStore/SeedingStore pair
// (spec §4.5, §4.6) and is not carried forward — see DESIGN.md.
package storage

import "github.com/defisafe/hotwallet/pkg/models"

// TxStore provides idempotent transaction storage keyed by
// idempotency key; tx.Builder uses it to answer a repeated submit.
type TxStore interface {
	// Get returns a previously stored transaction by idempotency key, or nil if not found.
	Get(idempotencyKey string) (*models.Transaction, error)
	// Put stores a transaction keyed by idempotency key.
	Put(idempotencyKey string, tx *models.Transaction) error
}

// WatchStore manages the set of watched addresses.
type WatchStore interface {
	// Add adds an address to the watch set.
	Add(address string) error
	// Remove removes an address from the watch set.
	Remove(address string) error
	// List returns all currently watched addresses.
	List() ([]string, error)
	// Contains checks if an address is in the watch set.
	Contains(address string) (bool, error)
}
