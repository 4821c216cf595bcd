package bridge

import (
	"context"
	"testing"

	"github.com/defisafe/hotwallet/internal/walleterrors"
	"github.com/defisafe/hotwallet/pkg/models"
)

func TestFacade_DisallowedByDefault(t *testing.T) {
	f := New(false)
	_, err := f.TransferAcrossChains(context.Background(), models.NetworkETH, models.NetworkSolana, "USDC", "1.0")
	if !walleterrors.Is(err, walleterrors.KindPolicy) {
		t.Fatalf("expected PolicyError, got %v", err)
	}
}

func TestFacade_MockTransferAndRelay(t *testing.T) {
	f := New(true)
	ctx := context.Background()

	tx, err := f.TransferAcrossChains(ctx, models.NetworkETH, models.NetworkSolana, "USDC", "1.5")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != StatusInitiated {
		t.Errorf("got status %v, want Initiated", tx.Status)
	}

	status, err := f.CheckTransferStatus(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusCompleted {
		t.Errorf("got status %v, want Completed", status)
	}
}

func TestFacade_RejectsNegativeAmount(t *testing.T) {
	f := New(true)
	_, err := f.TransferAcrossChains(context.Background(), models.NetworkETH, models.NetworkSolana, "USDC", "-1")
	if !walleterrors.Is(err, walleterrors.KindValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestFacade_ExplicitFailedMarker(t *testing.T) {
	f := New(true)
	status, err := f.CheckTransferStatus(context.Background(), "0x_simulated_lock_tx_failed-marker")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusFailed {
		t.Errorf("got %v, want Failed", status)
	}
}
