package ledger

// Fixed internal accounts. The dealer pair exists only to mediate
// cross-currency conversion: its two legs are always written together, so
// the pair's combined value nets to zero in a common unit.
const (
	BankOwnerAccountID AccountID = "bank_owner"
	DealerBtcAccountID AccountID = "dealer_btc"
	DealerUsdAccountID AccountID = "dealer_usd"
	LndAccountID       AccountID = "lnd"
)

// StaticAccounts carries the fixed account ids the entry builder writes to.
type StaticAccounts struct {
	BankOwner AccountID
	DealerBtc AccountID
	DealerUsd AccountID
	Lnd       AccountID
}

// DefaultStaticAccounts returns the production account set.
func DefaultStaticAccounts() StaticAccounts {
	return StaticAccounts{
		BankOwner: BankOwnerAccountID,
		DealerBtc: DealerBtcAccountID,
		DealerUsd: DealerUsdAccountID,
		Lnd:       LndAccountID,
	}
}
