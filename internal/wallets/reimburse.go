package wallets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chriszackpinto/galoy/internal/ledger"
	"github.com/chriszackpinto/galoy/internal/paymentflow"
)

// ReimburseFeeArgs carries everything needed to true up an estimated fee
// against the fee the network actually charged.
type ReimburseFeeArgs struct {
	Wallet           *Wallet
	Flow             *paymentflow.Flow
	JournalID        ledger.JournalID
	PaymentHash      ledger.PaymentHash
	ActualFee        ledger.BtcAmount
	RevealedPreImage string
	PaymentAmount    ledger.BtcAmount
	UsdFee           ledger.UsdAmount
}

// FeeReimburser issues the ledger movement that corrects an estimated fee.
type FeeReimburser interface {
	ReimburseFee(ctx context.Context, args ReimburseFeeArgs) error
}

// reimburseLedger is the slice of the ledger store reimbursement writes to.
type reimburseLedger interface {
	RecordEntry(ctx context.Context, entry *ledger.Entry) (ledger.JournalID, error)
	UpdateMetadataByHash(ctx context.Context, hash ledger.PaymentHash, fields ledger.TxMetadata) error
}

// Reimburser records fee true-up entries through the entry builder.
type Reimburser struct {
	store    reimburseLedger
	accounts ledger.StaticAccounts
	logger   *slog.Logger
}

// NewReimburser creates the fee reimbursement collaborator.
func NewReimburser(store reimburseLedger, accounts ledger.StaticAccounts, logger *slog.Logger) *Reimburser {
	return &Reimburser{store: store, accounts: accounts, logger: logger}
}

// ReimburseFee refunds the difference between the fee quoted at payment time
// and the fee the network actually charged. When the estimate was too low
// the difference is absorbed by the bank and only the metadata is corrected.
func (r *Reimburser) ReimburseFee(ctx context.Context, args ReimburseFeeArgs) error {
	estimated := args.Flow.BtcFee
	difference := estimated - args.ActualFee

	feeFields := ledger.TxMetadata{
		"fee_estimated": int64(estimated),
		"fee_actual":    int64(args.ActualFee),
	}
	if err := r.store.UpdateMetadataByHash(ctx, args.PaymentHash, feeFields); err != nil {
		return fmt.Errorf("failed to record fee metadata: %w", err)
	}

	if difference <= 0 {
		r.logger.Info("fee not over-estimated, nothing to reimburse",
			"payment_hash", string(args.PaymentHash),
			"estimated", int64(estimated),
			"actual", int64(args.ActualFee),
		)
		return nil
	}

	var usdDifference ledger.UsdAmount
	if args.Wallet.Currency == ledger.CurrencyUsd {
		usdDifference = args.Flow.UsdEquivalent(difference)
		if usdDifference == 0 {
			// Below one cent at the quoted rate; nothing to credit.
			return nil
		}
	}

	metadata := ledger.TxMetadata{
		"type":            "fee_reimbursement",
		"related_journal": string(args.JournalID),
		"payment_hash":    string(args.PaymentHash),
		"payment_amount":  int64(args.PaymentAmount),
	}
	if args.RevealedPreImage != "" {
		metadata["revealed_pre_image"] = args.RevealedPreImage
	}

	debit := ledger.NewEntryBuilder(r.accounts, metadata).
		WithoutFee().
		DebitLnd(difference)

	var entry *ledger.Entry
	if args.Wallet.Currency == ledger.CurrencyUsd {
		entry = debit.CreditAccountUsd(args.Wallet.AccountID, usdDifference)
	} else {
		entry = debit.CreditAccount(args.Wallet.AccountID)
	}

	journalID, err := r.store.RecordEntry(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to record fee reimbursement: %w", err)
	}

	r.logger.Info("fee reimbursed",
		"payment_hash", string(args.PaymentHash),
		"journal_id", string(journalID),
		"reimbursed_sats", int64(difference),
	)
	return nil
}
