package paymentflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chriszackpinto/galoy/internal/paymentflow"
	"github.com/chriszackpinto/galoy/internal/testutil"
)

func TestPostgresStoreFindFlow(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := paymentflow.NewPostgresStore(db)

	_, err := db.Exec(`
		INSERT INTO payment_flows
			(wallet_id, payment_hash, input_amount, btc_amount, usd_amount, btc_fee, usd_fee)
		VALUES ('wallet-1', 'hash-1', 100000, 100000, 4000, 500, 20)
	`)
	if err != nil {
		t.Fatalf("insert flow: %v", err)
	}

	flow, err := store.FindFlow(ctx, "wallet-1", "hash-1", 100_000)
	if err != nil {
		t.Fatalf("find flow: %v", err)
	}
	if flow.BtcAmount != 100_000 || flow.UsdAmount != 4_000 || flow.BtcFee != 500 || flow.UsdFee != 20 {
		t.Errorf("unexpected flow: %+v", flow)
	}

	_, err = store.FindFlow(ctx, "wallet-1", "hash-1", 99_999)
	if !errors.Is(err, paymentflow.ErrFlowNotFound) {
		t.Fatalf("expected ErrFlowNotFound, got %v", err)
	}
}
