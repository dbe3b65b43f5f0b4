package ledger

// EntryBuilder assembles one balanced ledger entry for a single economic
// event: a debit, an optional network fee, and an optional cross-currency
// conversion through the dealer pair.
//
// The builder moves through fixed stages:
//
//	NewEntryBuilder -> WithFee/WithoutFee -> DebitStage -> credit stage
//
// The credit stage's type depends on the debited currency, so only the
// credit operations valid for that currency are reachable. Every credit
// amount is derived from the paired debit amount and the fee, and every
// currency crossing writes both dealer legs, which is what keeps each
// currency's sub-ledger balanced by construction.
type EntryBuilder struct {
	accounts StaticAccounts
	entry    *Entry
	metadata TxMetadata
}

// NewEntryBuilder starts an entry carrying the given base metadata.
func NewEntryBuilder(accounts StaticAccounts, metadata TxMetadata) *EntryBuilder {
	return &EntryBuilder{
		accounts: accounts,
		entry:    &Entry{Metadata: metadata},
		metadata: metadata,
	}
}

// WithFee credits the bank owner account for the network fee before any
// debit/credit lines are added. A zero fee adds no line.
func (b *EntryBuilder) WithFee(fee BtcAmount) *DebitStage {
	if fee > 0 {
		b.entry.credit(b.accounts.BankOwner, int64(fee), CurrencyBtc, b.metadata)
	}
	return &DebitStage{
		accounts: b.accounts,
		entry:    b.entry,
		metadata: b.metadata,
		fee:      fee,
	}
}

// WithoutFee is WithFee with a zero fee.
func (b *EntryBuilder) WithoutFee() *DebitStage {
	return b.WithFee(0)
}

// DebitStage records the debited side of the entry.
type DebitStage struct {
	accounts StaticAccounts
	entry    *Entry
	metadata TxMetadata
	fee      BtcAmount
}

// DebitAccountBtc debits a satoshi amount from the account. Extra metadata
// merges over the entry's base metadata for the debit line only.
func (d *DebitStage) DebitAccountBtc(id AccountID, amount BtcAmount, extra TxMetadata) *BtcCreditStage {
	d.entry.debit(id, int64(amount), CurrencyBtc, d.metadata.merged(extra))
	return &BtcCreditStage{
		accounts:    d.accounts,
		entry:       d.entry,
		metadata:    d.metadata,
		fee:         d.fee,
		debitAmount: amount,
	}
}

// DebitAccountUsd debits a cent amount from the account.
func (d *DebitStage) DebitAccountUsd(id AccountID, amount UsdAmount, extra TxMetadata) *UsdCreditStage {
	d.entry.debit(id, int64(amount), CurrencyUsd, d.metadata.merged(extra))
	return &UsdCreditStage{
		accounts:    d.accounts,
		entry:       d.entry,
		metadata:    d.metadata,
		fee:         d.fee,
		debitAmount: amount,
	}
}

// DebitLnd debits the node's own account, used when the node receives value
// from the network. Lightning settles in satoshis, so the amount is BTC.
func (d *DebitStage) DebitLnd(amount BtcAmount) *BtcCreditStage {
	return d.DebitAccountBtc(d.accounts.Lnd, amount, nil)
}

// BtcCreditStage credits the counterpart of a satoshi debit.
type BtcCreditStage struct {
	accounts    StaticAccounts
	entry       *Entry
	metadata    TxMetadata
	fee         BtcAmount
	debitAmount BtcAmount
}

// CreditLnd credits the node account with the net-of-fee amount actually
// sent over the network.
func (s *BtcCreditStage) CreditLnd() *Entry {
	s.entry.credit(s.accounts.Lnd, int64(s.debitAmount-s.fee), CurrencyBtc, s.metadata)
	return s.entry
}

// CreditAccount credits the destination with the debited amount net of fee.
// Same-currency movement, no conversion.
func (s *BtcCreditStage) CreditAccount(id AccountID) *Entry {
	s.entry.credit(id, int64(s.debitAmount-s.fee), CurrencyBtc, s.metadata)
	return s.entry
}

// CreditAccountUsd converts the debited satoshis into cents through the
// dealer pair, then credits the destination with the cent amount. The dealer
// takes the debited satoshis net of fee: the fee line already consumed the
// rest of the debit.
func (s *BtcCreditStage) CreditAccountUsd(id AccountID, amount UsdAmount) *Entry {
	addUsdToDealer(s.entry, s.accounts, s.debitAmount-s.fee, amount, s.metadata)
	s.entry.credit(id, int64(amount), CurrencyUsd, s.metadata)
	return s.entry
}

// UsdCreditStage credits the counterpart of a cent debit.
type UsdCreditStage struct {
	accounts    StaticAccounts
	entry       *Entry
	metadata    TxMetadata
	fee         BtcAmount
	debitAmount UsdAmount
}

// CreditLnd converts the debited cents into the given satoshi amount through
// the dealer pair, then credits the node account net of fee.
func (s *UsdCreditStage) CreditLnd(btcCreditAmount BtcAmount) *Entry {
	withdrawUsdFromDealer(s.entry, s.accounts, btcCreditAmount, s.debitAmount, s.metadata)
	s.entry.credit(s.accounts.Lnd, int64(btcCreditAmount-s.fee), CurrencyBtc, s.metadata)
	return s.entry
}

// CreditAccount credits the destination directly with the debited cent
// amount. Same-currency movement, no conversion and no fee deduction; the
// fee is satoshi-denominated and never nets against a cent credit.
func (s *UsdCreditStage) CreditAccount(id AccountID) *Entry {
	s.entry.credit(id, int64(s.debitAmount), CurrencyUsd, s.metadata)
	return s.entry
}

// CreditAccountBtc converts the debited cents into the given satoshi amount
// through the dealer pair, then credits the destination net of fee.
func (s *UsdCreditStage) CreditAccountBtc(id AccountID, amount BtcAmount) *Entry {
	withdrawUsdFromDealer(s.entry, s.accounts, amount, s.debitAmount, s.metadata)
	s.entry.credit(id, int64(amount-s.fee), CurrencyBtc, s.metadata)
	return s.entry
}

// addUsdToDealer writes the conversion legs for a BTC->USD crossing: the
// dealer takes in satoshis and gives out cents.
func addUsdToDealer(e *Entry, a StaticAccounts, btc BtcAmount, usd UsdAmount, md TxMetadata) {
	e.credit(a.DealerBtc, int64(btc), CurrencyBtc, md)
	e.debit(a.DealerUsd, int64(usd), CurrencyUsd, md)
}

// withdrawUsdFromDealer writes the conversion legs for a USD->BTC crossing:
// the dealer takes in cents and gives out satoshis.
func withdrawUsdFromDealer(e *Entry, a StaticAccounts, btc BtcAmount, usd UsdAmount, md TxMetadata) {
	e.debit(a.DealerBtc, int64(btc), CurrencyBtc, md)
	e.credit(a.DealerUsd, int64(usd), CurrencyUsd, md)
}
