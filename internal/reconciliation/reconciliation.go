// Package reconciliation settles in-flight lightning payments against the
// node's authoritative status.
//
// A pass discovers every wallet with unresolved outbound payments, fans the
// wallets out over a bounded worker pool, and walks each wallet's pending
// records in order. Each record is looked up on the node and, when the
// network has reached a terminal state, settled or reverted under a
// per-payment-hash distributed lock.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chriszackpinto/galoy/internal/ledger"
	"github.com/chriszackpinto/galoy/internal/lnd"
	"github.com/chriszackpinto/galoy/internal/lock"
	"github.com/chriszackpinto/galoy/internal/paymentflow"
	"github.com/chriszackpinto/galoy/internal/wallets"
)

// DefaultWorkers is the parallelism degree of a reconciliation pass.
const DefaultWorkers = 8

// InconsistentDataError marks a pending record missing fields that every
// outbound lightning payment must carry. It indicates an upstream recording
// bug and is never retried.
type InconsistentDataError struct {
	Field     string
	JournalID ledger.JournalID
}

func (e *InconsistentDataError) Error() string {
	return fmt.Sprintf("reconciliation: %s missing from payment transaction (journal %s)", e.Field, e.JournalID)
}

// Config wires the reconciler's collaborators.
type Config struct {
	Ledger     ledger.Store
	Lnd        lnd.Client
	Locker     lock.Locker
	Flows      paymentflow.Store
	Wallets    wallets.Repository
	Reimburser wallets.FeeReimburser
	Logger     *slog.Logger
	Workers    int
}

// Reconciler drives pending-payment settlement.
type Reconciler struct {
	ledger     ledger.Store
	lnd        lnd.Client
	locker     lock.Locker
	flows      paymentflow.Store
	wallets    wallets.Repository
	reimburser wallets.FeeReimburser
	logger     *slog.Logger
	workers    int
}

// New creates a reconciler.
func New(cfg Config) *Reconciler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		ledger:     cfg.Ledger,
		lnd:        cfg.Lnd,
		locker:     cfg.Locker,
		flows:      cfg.Flows,
		wallets:    cfg.Wallets,
		reimburser: cfg.Reimburser,
		logger:     logger,
		workers:    workers,
	}
}

// ReconcileAll runs one full pass. It never returns an error: the pass runs
// on a schedule, so failures are logged and retried naturally on the next
// invocation. Per-wallet failures do not affect other wallets.
func (r *Reconciler) ReconcileAll(ctx context.Context) {
	start := time.Now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	walletIDs, err := r.ledger.ListWalletIDsWithPendingPayments(ctx)
	if err != nil {
		runErrors.Inc()
		r.logger.Error("finish updating pending payments with error", "error", err)
		return
	}
	pendingWallets.Set(float64(len(walletIDs)))

	g := &errgroup.Group{}
	g.SetLimit(r.workers)
	for _, walletID := range walletIDs {
		g.Go(func() error {
			if err := r.ReconcileWallet(ctx, walletID); err != nil {
				outcomes.WithLabelValues("error").Inc()
				r.logger.Error("failed updating pending payments for wallet",
					"wallet_id", walletID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("finish updating pending payments")
}

// ReconcileWallet settles one wallet's pending payments sequentially, in the
// order the store returns them. Settlement mutates shared per-wallet ledger
// state, so there is no parallelism within a wallet. The loop stops at the
// first unresolved error; the next pass picks up the remainder.
func (r *Reconciler) ReconcileWallet(ctx context.Context, walletID string) error {
	count, err := r.ledger.PendingPaymentsCount(ctx, walletID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	pending, err := r.ledger.ListPendingPayments(ctx, walletID)
	if err != nil {
		return err
	}

	for _, payment := range pending {
		if err := r.updatePendingPayment(ctx, walletID, payment); err != nil {
			return err
		}
	}
	return nil
}

// updatePendingPayment runs the settlement state machine for one record.
func (r *Reconciler) updatePendingPayment(ctx context.Context, walletID string, pending *ledger.Transaction) error {
	logger := r.logger.With(
		"topic", "payment",
		"protocol", "lightning",
		"wallet_id", walletID,
		"payment_hash", string(pending.PaymentHash),
	)

	if pending.PaymentHash == "" {
		return &InconsistentDataError{Field: "paymentHash", JournalID: pending.JournalID}
	}
	if pending.Pubkey == "" {
		return &InconsistentDataError{Field: "pubkey", JournalID: pending.JournalID}
	}

	lookup, err := r.lnd.LookupPayment(ctx, pending.Pubkey, pending.PaymentHash)
	if err != nil {
		logger.Error("issue fetching payment", "error", err)
		return err
	}

	var roundedUpFee ledger.BtcAmount
	if lookup.Status != lnd.PaymentStatusFailed && lookup.ConfirmedDetails != nil {
		roundedUpFee = lookup.ConfirmedDetails.RoundedUpFee
	}

	if !lookup.Status.Terminal() {
		// Still in flight: leave the record untouched.
		outcomes.WithLabelValues("in_flight").Inc()
		return nil
	}

	return r.locker.WithLock(ctx, string(pending.PaymentHash), func(ctx context.Context) error {
		return r.settleUnderLock(ctx, walletID, pending, lookup, roundedUpFee, logger)
	})
}

// settleUnderLock applies the terminal status while holding the payment
// hash lock. The recorded check is the final backstop against double
// settlement, taken immediately before any mutation.
func (r *Reconciler) settleUnderLock(
	ctx context.Context,
	walletID string,
	pending *ledger.Transaction,
	lookup *lnd.PaymentLookup,
	roundedUpFee ledger.BtcAmount,
	logger *slog.Logger,
) error {
	recorded, err := r.ledger.IsPaymentRecorded(ctx, pending.PaymentHash)
	if err != nil {
		logger.Error("couldn't query pending transaction", "error", err)
		return err
	}
	if recorded {
		outcomes.WithLabelValues("already_recorded").Inc()
		logger.Info("payment has already been processed")
		return nil
	}

	if err := r.ledger.SettlePendingPayment(ctx, pending.PaymentHash); err != nil {
		logger.Error("no transaction to update", "error", err)
		return err
	}

	wallet, err := r.wallets.FindByID(ctx, walletID)
	if err != nil {
		return err
	}

	switch lookup.Status {
	case lnd.PaymentStatusSettled:
		logger.Info("payment has been confirmed", "success", true)
		outcomes.WithLabelValues("settled").Inc()

		var revealedPreImage string
		if lookup.ConfirmedDetails != nil {
			revealedPreImage = lookup.ConfirmedDetails.RevealedPreImage
		}
		if revealedPreImage != "" {
			if err := r.ledger.UpdateMetadataByHash(ctx, pending.PaymentHash, ledger.TxMetadata{
				"revealed_pre_image": revealedPreImage,
			}); err != nil {
				logger.Warn("failed to record revealed preimage", "error", err)
			}
		}

		if pending.FeeKnownInAdvance {
			return nil
		}

		flow, err := r.flows.FindFlow(ctx, walletID, pending.PaymentHash, pending.InputAmount())
		if err != nil {
			return err
		}

		return r.reimburser.ReimburseFee(ctx, wallets.ReimburseFeeArgs{
			Wallet:           wallet,
			Flow:             flow,
			JournalID:        pending.JournalID,
			PaymentHash:      pending.PaymentHash,
			ActualFee:        roundedUpFee,
			RevealedPreImage: revealedPreImage,
			PaymentAmount:    ledger.BtcAmount(pending.SettledAmount() - pending.Fee),
			UsdFee:           ledger.UsdAmount(pending.FeeUsd),
		})

	case lnd.PaymentStatusFailed:
		logger.Warn("payment has failed, reverting transaction", "success", false)

		if err := r.ledger.RevertPayment(ctx, pending.JournalID, pending.PaymentHash); err != nil {
			// Money has left the books' tracking with no safe
			// automatic remediation; an operator has to step in.
			logger.Error("error voiding payment entry",
				"severity", "critical", "error", err)
			return err
		}
		outcomes.WithLabelValues("reverted").Inc()
	}
	return nil
}
