// Package lnd talks to the lightning node that holds the hot wallet.
//
// The reconciler only needs one read path: the authoritative status of an
// outbound payment identified by (pubkey, payment hash).
package lnd

import (
	"context"
	"errors"

	"github.com/chriszackpinto/galoy/internal/ledger"
)

var (
	ErrPaymentNotFound = errors.New("lnd: payment not found")
	ErrNoNodeForPubkey = errors.New("lnd: no connected node for pubkey")
)

// PaymentStatus is the node's view of an outbound payment.
type PaymentStatus string

const (
	PaymentStatusSettled  PaymentStatus = "settled"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusInFlight PaymentStatus = "in_flight"

	// PaymentStatusPending is reported by nodes that have accepted the
	// payment but not yet attempted it. Callers treat it as in-flight.
	PaymentStatusPending PaymentStatus = "pending"
)

// Terminal reports whether the status can no longer change.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSettled || s == PaymentStatusFailed
}

// ConfirmedDetails arrive only once a payment settles.
type ConfirmedDetails struct {
	// RoundedUpFee is the network fee actually paid, rounded up to a
	// whole satoshi. Never below the fee quoted at initiation.
	RoundedUpFee ledger.BtcAmount

	// RevealedPreImage is the hex payment proof, when the node reveals it.
	RevealedPreImage string
}

// PaymentLookup is the result of a status query.
type PaymentLookup struct {
	Status           PaymentStatus
	ConfirmedDetails *ConfirmedDetails
}

// Client is the node read path the reconciler consumes.
type Client interface {
	LookupPayment(ctx context.Context, pubkey string, hash ledger.PaymentHash) (*PaymentLookup, error)
}
