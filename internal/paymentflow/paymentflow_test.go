package paymentflow

import (
	"context"
	"errors"
	"testing"

	"github.com/chriszackpinto/galoy/internal/ledger"
)

func TestUsdEquivalent(t *testing.T) {
	tests := []struct {
		name string
		flow Flow
		sats ledger.BtcAmount
		want ledger.UsdAmount
	}{
		{
			name: "exact rate",
			flow: Flow{BtcAmount: 100_000, UsdAmount: 4_000},
			sats: 1_000,
			want: 40,
		},
		{
			name: "rounds half up",
			flow: Flow{BtcAmount: 100_000, UsdAmount: 4_000},
			sats: 13, // 0.52 cents
			want: 1,
		},
		{
			name: "rounds sub half down",
			flow: Flow{BtcAmount: 100_000, UsdAmount: 4_000},
			sats: 12, // 0.48 cents
			want: 0,
		},
		{
			name: "no crossing",
			flow: Flow{BtcAmount: 100_000, UsdAmount: 0},
			sats: 1_000,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flow.UsdEquivalent(tt.sats); got != tt.want {
				t.Errorf("UsdEquivalent(%d) = %d, want %d", tt.sats, got, tt.want)
			}
		})
	}
}

func TestMemoryStoreFindFlow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.AddFlow(&Flow{
		WalletID:    "wallet-1",
		PaymentHash: "hash-1",
		InputAmount: 100_000,
		BtcAmount:   100_000,
		BtcFee:      500,
	})

	flow, err := store.FindFlow(ctx, "wallet-1", "hash-1", 100_000)
	if err != nil {
		t.Fatalf("find flow: %v", err)
	}
	if flow.BtcFee != 500 {
		t.Errorf("expected quoted fee 500, got %d", flow.BtcFee)
	}

	// The key is the full triple: a different input amount is a miss.
	_, err = store.FindFlow(ctx, "wallet-1", "hash-1", 99_999)
	if !errors.Is(err, ErrFlowNotFound) {
		t.Fatalf("expected ErrFlowNotFound, got %v", err)
	}
}
