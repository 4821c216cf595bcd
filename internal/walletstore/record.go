// Package walletstore persists WalletRecords, their per-(chain,
// address) nonce counters, and signing-key rotation state. Grounded
// on OKaluzny-wallet-demo's internal/storage (interface + in-memory
// implementation split) generalized from the teacher's single
// NonceStore/TxStore/WatchStore trio to the richer record spec.md §3
// requires, and on the capability-query redesign of Design Notes §9
// (ReservingStore / SeedingStore replacing a storage-specific
// downcast).
package walletstore

import "time"

// SchemaVersion is the current WalletRecord encoding version.
const SchemaVersion = 2

// Record is the persisted entity for one wallet (spec §3).
type Record struct {
	Name                string
	ID                  string
	SchemaVersion       int
	EncryptedMasterKey  []byte
	Nonce               [12]byte
	Salt                [32]byte
	KEKID               string
	QuantumSafe         bool
	CreatedAt           time.Time
}

// Clone returns a deep copy so callers can mutate without racing the
// store's own copy.
func (r Record) Clone() Record {
	out := r
	out.EncryptedMasterKey = append([]byte(nil), r.EncryptedMasterKey...)
	return out
}

// RotationState tracks a signing-key rotation label, e.g.
// "wallet:alice:signing" (spec §3).
type RotationState struct {
	Label           string
	CurrentVersion  int
	CurrentKeyID    string
	RetiredVersions []int
}
