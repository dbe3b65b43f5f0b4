package reconciliation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chriszackpinto/galoy/internal/ledger"
	"github.com/chriszackpinto/galoy/internal/lnd"
	"github.com/chriszackpinto/galoy/internal/lock"
	"github.com/chriszackpinto/galoy/internal/paymentflow"
	"github.com/chriszackpinto/galoy/internal/wallets"
)

// --- fakes ---

type fakeLnd struct {
	mu      sync.Mutex
	lookups map[ledger.PaymentHash]*lnd.PaymentLookup
	errs    map[ledger.PaymentHash]error
	calls   int
}

func newFakeLnd() *fakeLnd {
	return &fakeLnd{
		lookups: make(map[ledger.PaymentHash]*lnd.PaymentLookup),
		errs:    make(map[ledger.PaymentHash]error),
	}
}

func (f *fakeLnd) LookupPayment(_ context.Context, _ string, hash ledger.PaymentHash) (*lnd.PaymentLookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[hash]; ok {
		return nil, err
	}
	if lookup, ok := f.lookups[hash]; ok {
		return lookup, nil
	}
	return nil, lnd.ErrPaymentNotFound
}

func (f *fakeLnd) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingLocker struct {
	inner        lock.Locker
	acquisitions atomic.Int64
}

func (c *countingLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	c.acquisitions.Add(1)
	return c.inner.WithLock(ctx, key, fn)
}

type fakeReimburser struct {
	mu    sync.Mutex
	calls []wallets.ReimburseFeeArgs
	err   error
}

func (f *fakeReimburser) ReimburseFee(_ context.Context, args wallets.ReimburseFeeArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	return f.err
}

func (f *fakeReimburser) callArgs() []wallets.ReimburseFeeArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wallets.ReimburseFeeArgs(nil), f.calls...)
}

// settleCountingStore counts how many times the settle mutation runs.
type settleCountingStore struct {
	ledger.Store
	settles atomic.Int64
}

func (s *settleCountingStore) SettlePendingPayment(ctx context.Context, hash ledger.PaymentHash) error {
	s.settles.Add(1)
	return s.Store.SettlePendingPayment(ctx, hash)
}

type failingRevertStore struct {
	ledger.Store
	err error
}

func (s *failingRevertStore) RevertPayment(context.Context, ledger.JournalID, ledger.PaymentHash) error {
	return s.err
}

type failingListStore struct {
	ledger.Store
	err error
}

func (s *failingListStore) ListWalletIDsWithPendingPayments(context.Context) ([]string, error) {
	return nil, s.err
}

// --- test fixture ---

type fixture struct {
	store      *ledger.MemoryStore
	lnd        *fakeLnd
	locker     *countingLocker
	flows      *paymentflow.MemoryStore
	wallets    *wallets.MemoryRepository
	reimburser *fakeReimburser
}

func newFixture() *fixture {
	return &fixture{
		store:      ledger.NewMemoryStore(),
		lnd:        newFakeLnd(),
		locker:     &countingLocker{inner: lock.NewMemoryLocker()},
		flows:      paymentflow.NewMemoryStore(),
		wallets:    wallets.NewMemoryRepository(),
		reimburser: &fakeReimburser{},
	}
}

func (f *fixture) reconciler(store ledger.Store) *Reconciler {
	if store == nil {
		store = f.store
	}
	return New(Config{
		Ledger:     store,
		Lnd:        f.lnd,
		Locker:     f.locker,
		Flows:      f.flows,
		Wallets:    f.wallets,
		Reimburser: f.reimburser,
		Logger:     slog.Default(),
		Workers:    4,
	})
}

// seedPayment adds a wallet, a pending outbound payment and its flow.
func (f *fixture) seedPayment(walletID string, hash ledger.PaymentHash, feeKnown bool) *ledger.Transaction {
	f.wallets.Add(&wallets.Wallet{ID: walletID, AccountID: ledger.AccountID("acct_" + walletID), Currency: ledger.CurrencyBtc})

	tx := &ledger.Transaction{
		JournalID:         ledger.JournalID("journal_" + string(hash)),
		WalletID:          walletID,
		Currency:          ledger.CurrencyBtc,
		PaymentHash:       hash,
		Pubkey:            "02deadbeef",
		Debit:             100_500,
		Fee:               500,
		FeeUsd:            20,
		FeeKnownInAdvance: feeKnown,
		CreatedAt:         time.Now(),
	}
	f.store.AddPendingPayment(tx)
	f.flows.AddFlow(&paymentflow.Flow{
		WalletID:    walletID,
		PaymentHash: hash,
		InputAmount: 100_000,
		BtcAmount:   100_000,
		BtcFee:      500,
	})
	return tx
}

func settledLookup(fee ledger.BtcAmount, preimage string) *lnd.PaymentLookup {
	return &lnd.PaymentLookup{
		Status:           lnd.PaymentStatusSettled,
		ConfirmedDetails: &lnd.ConfirmedDetails{RoundedUpFee: fee, RevealedPreImage: preimage},
	}
}

// --- state machine ---

func TestUpdatePendingPayment_InFlightTouchesNothing(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", false)
	f.lnd.lookups["hash1"] = &lnd.PaymentLookup{Status: lnd.PaymentStatusInFlight}

	r := f.reconciler(nil)
	if err := r.updatePendingPayment(context.Background(), "wallet1", tx); err != nil {
		t.Fatalf("in-flight payment should be a no-op, got %v", err)
	}

	if got := f.locker.acquisitions.Load(); got != 0 {
		t.Errorf("in-flight payment acquired the lock %d times", got)
	}
	after, _ := f.store.Transaction("hash1")
	if !after.Pending {
		t.Error("in-flight payment must stay pending")
	}
}

func TestUpdatePendingPayment_PendingStatusTreatedAsInFlight(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", false)
	f.lnd.lookups["hash1"] = &lnd.PaymentLookup{Status: lnd.PaymentStatusPending}

	r := f.reconciler(nil)
	if err := r.updatePendingPayment(context.Background(), "wallet1", tx); err != nil {
		t.Fatalf("pending status should be a no-op, got %v", err)
	}
	if got := f.locker.acquisitions.Load(); got != 0 {
		t.Errorf("pending status acquired the lock %d times", got)
	}
}

func TestUpdatePendingPayment_SettledWithFeeKnownInAdvance(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", true)
	f.lnd.lookups["hash1"] = settledLookup(600, "preimage1")

	r := f.reconciler(nil)
	if err := r.updatePendingPayment(context.Background(), "wallet1", tx); err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	after, _ := f.store.Transaction("hash1")
	if after.Pending {
		t.Error("payment should be settled")
	}
	if after.Metadata["revealed_pre_image"] != "preimage1" {
		t.Errorf("preimage not recorded: %v", after.Metadata)
	}
	if calls := f.reimburser.callArgs(); len(calls) != 0 {
		t.Errorf("fee known in advance must not trigger reimbursement, got %d calls", len(calls))
	}
}

func TestUpdatePendingPayment_SettledReimbursesEstimatedFee(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", false)
	f.lnd.lookups["hash1"] = settledLookup(350, "preimage1")

	r := f.reconciler(nil)
	if err := r.updatePendingPayment(context.Background(), "wallet1", tx); err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	calls := f.reimburser.callArgs()
	if len(calls) != 1 {
		t.Fatalf("expected 1 reimbursement call, got %d", len(calls))
	}
	args := calls[0]
	if args.ActualFee != 350 {
		t.Errorf("actual fee = %d, want 350 (rounded up fee)", args.ActualFee)
	}
	if args.PaymentAmount != 100_000 {
		t.Errorf("payment amount = %d, want 100000 (|debit| - fee)", args.PaymentAmount)
	}
	if args.RevealedPreImage != "preimage1" {
		t.Errorf("preimage = %q", args.RevealedPreImage)
	}
	if args.UsdFee != 20 {
		t.Errorf("usd fee = %d, want 20", args.UsdFee)
	}
	if args.JournalID != tx.JournalID {
		t.Errorf("journal id = %s, want %s", args.JournalID, tx.JournalID)
	}
}

func TestUpdatePendingPayment_SettledWithoutDetailsDefaultsFeeToZero(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", false)
	f.lnd.lookups["hash1"] = &lnd.PaymentLookup{Status: lnd.PaymentStatusSettled}

	r := f.reconciler(nil)
	if err := r.updatePendingPayment(context.Background(), "wallet1", tx); err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	calls := f.reimburser.callArgs()
	if len(calls) != 1 {
		t.Fatalf("expected 1 reimbursement call, got %d", len(calls))
	}
	if calls[0].ActualFee != 0 {
		t.Errorf("actual fee = %d, want 0 when details absent", calls[0].ActualFee)
	}
}

func TestUpdatePendingPayment_FailedRevertsJournal(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", false)
	f.lnd.lookups["hash1"] = &lnd.PaymentLookup{Status: lnd.PaymentStatusFailed}

	r := f.reconciler(nil)
	if err := r.updatePendingPayment(context.Background(), "wallet1", tx); err != nil {
		t.Fatalf("revert path failed: %v", err)
	}

	if !f.store.Reverted("hash1") {
		t.Error("failed payment must be reverted")
	}
	if calls := f.reimburser.callArgs(); len(calls) != 0 {
		t.Errorf("failed payment must not trigger reimbursement")
	}
}

func TestUpdatePendingPayment_RevertFailureSurfaced(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", false)
	f.lnd.lookups["hash1"] = &lnd.PaymentLookup{Status: lnd.PaymentStatusFailed}

	revertErr := errors.New("store down")
	r := f.reconciler(&failingRevertStore{Store: f.store, err: revertErr})

	err := r.updatePendingPayment(context.Background(), "wallet1", tx)
	if !errors.Is(err, revertErr) {
		t.Fatalf("err = %v, want revert failure surfaced", err)
	}
}

func TestUpdatePendingPayment_AlreadyRecordedIsNoOp(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", false)
	f.lnd.lookups["hash1"] = settledLookup(500, "")

	// A previous attempt already finalized this hash.
	if err := f.store.SettlePendingPayment(context.Background(), "hash1"); err != nil {
		t.Fatal(err)
	}

	counting := &settleCountingStore{Store: f.store}
	r := f.reconciler(counting)
	if err := r.updatePendingPayment(context.Background(), "wallet1", tx); err != nil {
		t.Fatalf("already-recorded payment should report success, got %v", err)
	}
	if got := counting.settles.Load(); got != 0 {
		t.Errorf("already-recorded payment ran %d settle mutations", got)
	}
	if calls := f.reimburser.callArgs(); len(calls) != 0 {
		t.Error("already-recorded payment must not trigger reimbursement")
	}
}

func TestUpdatePendingPayment_MissingHashIsDataFault(t *testing.T) {
	f := newFixture()
	r := f.reconciler(nil)

	err := r.updatePendingPayment(context.Background(), "wallet1", &ledger.Transaction{
		JournalID: "journal1", Pubkey: "02deadbeef",
	})
	var inconsistent *InconsistentDataError
	if !errors.As(err, &inconsistent) {
		t.Fatalf("err = %v, want InconsistentDataError", err)
	}
	if inconsistent.Field != "paymentHash" {
		t.Errorf("field = %s, want paymentHash", inconsistent.Field)
	}
	if f.lnd.callCount() != 0 {
		t.Error("malformed record must not reach the node")
	}
}

func TestUpdatePendingPayment_MissingPubkeyIsDataFault(t *testing.T) {
	f := newFixture()
	r := f.reconciler(nil)

	err := r.updatePendingPayment(context.Background(), "wallet1", &ledger.Transaction{
		JournalID: "journal1", PaymentHash: "hash1",
	})
	var inconsistent *InconsistentDataError
	if !errors.As(err, &inconsistent) {
		t.Fatalf("err = %v, want InconsistentDataError", err)
	}
	if inconsistent.Field != "pubkey" {
		t.Errorf("field = %s, want pubkey", inconsistent.Field)
	}
}

func TestUpdatePendingPayment_LookupErrorLeavesRecordPending(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", false)
	lookupErr := errors.New("node unreachable")
	f.lnd.errs["hash1"] = lookupErr

	r := f.reconciler(nil)
	err := r.updatePendingPayment(context.Background(), "wallet1", tx)
	if !errors.Is(err, lookupErr) {
		t.Fatalf("err = %v, want lookup error", err)
	}

	after, _ := f.store.Transaction("hash1")
	if !after.Pending {
		t.Error("record must stay pending after a lookup failure")
	}
	if got := f.locker.acquisitions.Load(); got != 0 {
		t.Error("lookup failure must not acquire the lock")
	}
}

func TestUpdatePendingPayment_ConcurrentAttemptsSettleOnce(t *testing.T) {
	f := newFixture()
	tx := f.seedPayment("wallet1", "hash1", false)
	f.lnd.lookups["hash1"] = settledLookup(500, "")

	counting := &settleCountingStore{Store: f.store}
	r := f.reconciler(counting)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.updatePendingPayment(context.Background(), "wallet1", tx); err != nil {
				t.Errorf("concurrent attempt failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := counting.settles.Load(); got != 1 {
		t.Fatalf("settle mutation ran %d times, want exactly 1", got)
	}
}

// --- wallet loop ---

func TestReconcileWallet_ZeroPendingShortCircuits(t *testing.T) {
	f := newFixture()
	r := f.reconciler(nil)

	if err := r.ReconcileWallet(context.Background(), "empty_wallet"); err != nil {
		t.Fatalf("empty wallet should be a no-op, got %v", err)
	}
	if f.lnd.callCount() != 0 {
		t.Error("zero pending payments must perform no lookups")
	}
	if f.locker.acquisitions.Load() != 0 {
		t.Error("zero pending payments must acquire no locks")
	}
}

func TestReconcileWallet_StopsAtFirstError(t *testing.T) {
	f := newFixture()
	first := f.seedPayment("wallet1", "hash1", false)
	first.CreatedAt = time.Now().Add(-time.Hour)
	f.store.AddPendingPayment(first)
	f.seedPayment("wallet1", "hash2", false)

	f.lnd.errs["hash1"] = errors.New("node unreachable")
	f.lnd.lookups["hash2"] = settledLookup(500, "")

	r := f.reconciler(nil)
	if err := r.ReconcileWallet(context.Background(), "wallet1"); err == nil {
		t.Fatal("expected the first record's error to surface")
	}

	// The second record waits for the next pass.
	after, _ := f.store.Transaction("hash2")
	if !after.Pending {
		t.Error("records after the first error must stay pending")
	}
}

func TestReconcileWallet_ProcessesInOrder(t *testing.T) {
	f := newFixture()
	old := f.seedPayment("wallet1", "old_hash", true)
	old.CreatedAt = time.Now().Add(-time.Hour)
	f.store.AddPendingPayment(old)
	f.seedPayment("wallet1", "new_hash", true)

	var order []ledger.PaymentHash
	var mu sync.Mutex
	f.lnd.lookups["old_hash"] = &lnd.PaymentLookup{Status: lnd.PaymentStatusInFlight}
	f.lnd.lookups["new_hash"] = &lnd.PaymentLookup{Status: lnd.PaymentStatusInFlight}

	orderLnd := &orderTrackingLnd{inner: f.lnd, order: &order, mu: &mu}
	r := New(Config{
		Ledger: f.store, Lnd: orderLnd, Locker: f.locker, Flows: f.flows,
		Wallets: f.wallets, Reimburser: f.reimburser, Logger: slog.Default(),
	})

	if err := r.ReconcileWallet(context.Background(), "wallet1"); err != nil {
		t.Fatalf("ReconcileWallet failed: %v", err)
	}
	if len(order) != 2 || order[0] != "old_hash" || order[1] != "new_hash" {
		t.Errorf("lookup order = %v, want oldest first", order)
	}
}

type orderTrackingLnd struct {
	inner lnd.Client
	order *[]ledger.PaymentHash
	mu    *sync.Mutex
}

func (o *orderTrackingLnd) LookupPayment(ctx context.Context, pubkey string, hash ledger.PaymentHash) (*lnd.PaymentLookup, error) {
	o.mu.Lock()
	*o.order = append(*o.order, hash)
	o.mu.Unlock()
	return o.inner.LookupPayment(ctx, pubkey, hash)
}

// --- full pass ---

func TestReconcileAll_SettlesAcrossWallets(t *testing.T) {
	f := newFixture()
	f.seedPayment("wallet1", "hash1", true)
	f.seedPayment("wallet2", "hash2", true)
	f.lnd.lookups["hash1"] = settledLookup(500, "")
	f.lnd.lookups["hash2"] = settledLookup(500, "")

	r := f.reconciler(nil)
	r.ReconcileAll(context.Background())

	for _, hash := range []ledger.PaymentHash{"hash1", "hash2"} {
		after, _ := f.store.Transaction(hash)
		if after.Pending {
			t.Errorf("%s still pending after full pass", hash)
		}
	}
}

func TestReconcileAll_OneWalletFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture()
	f.seedPayment("wallet1", "hash1", true)
	f.seedPayment("wallet2", "hash2", true)
	f.lnd.errs["hash1"] = errors.New("node unreachable")
	f.lnd.lookups["hash2"] = settledLookup(500, "")

	r := f.reconciler(nil)
	r.ReconcileAll(context.Background())

	after, _ := f.store.Transaction("hash2")
	if after.Pending {
		t.Error("healthy wallet blocked by another wallet's failure")
	}
}

func TestReconcileAll_ListErrorLogsAndReturns(t *testing.T) {
	f := newFixture()
	r := f.reconciler(&failingListStore{Store: f.store, err: errors.New("store down")})

	// Must not panic and must not look anything up.
	r.ReconcileAll(context.Background())
	if f.lnd.callCount() != 0 {
		t.Error("pass with a failed wallet query must not reach the node")
	}
}
