// Package bridge implements the archived cross-chain bridge facade
// named in spec.md §9 Design Notes: a deterministic mock gated by a
// test-only config flag, not a production bridge implementation.
// Grounded on original_source/src/blockchain/bridge/mod.rs (the
// `bridge_transfer`/`bridge_relay` facade functions that return
// simulated lock-tx ids when mocking is force-enabled and an explicit
// "archived" error otherwise) and its four named chain-pair bridge
// types, reshaped here as one parameterized Facade rather than four
// near-identical structs.
package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/defisafe/hotwallet/internal/walleterrors"
	"github.com/defisafe/hotwallet/pkg/models"
)

// Status mirrors the original's BridgeTransactionStatus enum.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Transaction is a cross-chain bridge transaction record, grounded on
// original_source's BridgeTransaction struct (trimmed to the fields
// this facade actually populates).
type Transaction struct {
	ID                string
	FromChain         models.Network
	ToChain           models.Network
	Token             string
	Amount            string
	Status            Status
	SourceTxHash      string
	DestinationTxHash string
}

// Facade implements the archived bridge behavior: it only ever
// produces deterministic mock results, and only when explicitly
// allowed. Production deployments never set MocksAllowed; every call
// then fails closed with a PolicyError, matching the original's
// "mock bridge disabled: bridge implementation moved to legacy" path.
type Facade struct {
	// MocksAllowed must only be true in a test build, per spec.md §6's
	// ALLOW_BRIDGE_MOCKS contract — internal/config rejects this
	// toggle outside Production == false.
	MocksAllowed bool
}

// New returns a Facade. mocksAllowed should come from
// config.Config.AllowBridgeMocks, which is itself only settable on a
// non-production build.
func New(mocksAllowed bool) *Facade {
	return &Facade{MocksAllowed: mocksAllowed}
}

// TransferAcrossChains initiates a simulated cross-chain transfer,
// mirroring bridge_transfer's amount validation and simulated-tx-hash
// generation. It never moves real funds.
func (f *Facade) TransferAcrossChains(_ context.Context, fromChain, toChain models.Network, token, amount string) (*Transaction, error) {
	if !f.MocksAllowed {
		return nil, walleterrors.New(walleterrors.KindPolicy,
			"bridge implementation is archived; mocks are disallowed in this build")
	}

	trimmed := strings.TrimSpace(amount)
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || v < 0 {
		return nil, walleterrors.New(walleterrors.KindValidation, fmt.Sprintf("invalid amount %q: must be a non-negative number", amount))
	}

	txID := "0x_simulated_lock_tx_" + uuid.NewString()
	return &Transaction{
		ID:           txID,
		FromChain:    fromChain,
		ToChain:      toChain,
		Token:        token,
		Amount:       amount,
		Status:       StatusInitiated,
		SourceTxHash: txID,
	}, nil
}

// CheckTransferStatus reports the simulated status of a bridge
// transaction previously returned by TransferAcrossChains, mirroring
// bridge_relay's tx-id-prefix dispatch.
func (f *Facade) CheckTransferStatus(_ context.Context, txID string) (Status, error) {
	if !f.MocksAllowed {
		return "", walleterrors.New(walleterrors.KindPolicy,
			"bridge relay implementation is archived; mocks are disallowed in this build")
	}
	if strings.Contains(txID, "failed") {
		return StatusFailed, nil
	}
	if strings.HasPrefix(txID, "0x_simulated_lock_tx_") || strings.HasPrefix(txID, "0x_simulated_tx_") {
		return StatusCompleted, nil
	}
	return "", walleterrors.New(walleterrors.KindNotFound, "bridge: unknown transaction id: "+txID)
}
