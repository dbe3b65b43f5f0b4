// Package paymentflow stores the quoted amounts a payment was initiated
// with, so settlement can reconstruct the original computation when truing
// up an estimated fee.
package paymentflow

import (
	"context"
	"errors"
	"time"

	"github.com/chriszackpinto/galoy/internal/ledger"
)

var ErrFlowNotFound = errors.New("paymentflow: flow not found")

// Flow is the frozen payment-time quote for one lightning payment, keyed by
// (walletID, paymentHash, inputAmount).
type Flow struct {
	WalletID    string             `json:"walletId"`
	PaymentHash ledger.PaymentHash `json:"paymentHash"`

	// InputAmount is the amount the user entered, in the wallet's
	// currency units.
	InputAmount int64 `json:"inputAmount"`

	// Quoted amounts on both sides of the crossing, fixed at the
	// payment-time exchange rate.
	BtcAmount ledger.BtcAmount `json:"btcAmount"`
	UsdAmount ledger.UsdAmount `json:"usdAmount"`
	BtcFee    ledger.BtcAmount `json:"btcFee"`
	UsdFee    ledger.UsdAmount `json:"usdFee"`

	CreatedAt time.Time `json:"createdAt"`
}

// UsdEquivalent converts a satoshi amount at this flow's quoted rate,
// rounding to the nearest cent. Zero when the flow has no crossing.
func (f *Flow) UsdEquivalent(sats ledger.BtcAmount) ledger.UsdAmount {
	if f.BtcAmount == 0 || f.UsdAmount == 0 {
		return 0
	}
	return ledger.UsdAmount((int64(sats)*int64(f.UsdAmount) + int64(f.BtcAmount)/2) / int64(f.BtcAmount))
}

// Store retrieves payment flows. Flows are written at payment initiation,
// outside this core.
type Store interface {
	FindFlow(ctx context.Context, walletID string, hash ledger.PaymentHash, inputAmount int64) (*Flow, error)
}
