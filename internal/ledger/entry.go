package ledger

// Line is a single debit or credit against one account. Exactly one of
// Debit/Credit is positive.
type Line struct {
	AccountID AccountID  `json:"accountId"`
	Debit     int64      `json:"debit"`
	Credit    int64      `json:"credit"`
	Currency  Currency   `json:"currency"`
	Metadata  TxMetadata `json:"metadata,omitempty"`
}

// Entry is one atomic ledger mutation: an ordered set of lines that balances
// per currency. Entries are built through EntryBuilder, which makes an
// unbalanced entry unrepresentable.
type Entry struct {
	Lines    []Line     `json:"lines"`
	Metadata TxMetadata `json:"metadata,omitempty"`
}

func (e *Entry) debit(id AccountID, amount int64, currency Currency, md TxMetadata) {
	e.Lines = append(e.Lines, Line{
		AccountID: id,
		Debit:     amount,
		Currency:  currency,
		Metadata:  md,
	})
}

func (e *Entry) credit(id AccountID, amount int64, currency Currency, md TxMetadata) {
	e.Lines = append(e.Lines, Line{
		AccountID: id,
		Credit:    amount,
		Currency:  currency,
		Metadata:  md,
	})
}

// DebitSum returns the total debited in the given currency.
func (e *Entry) DebitSum(currency Currency) int64 {
	var sum int64
	for _, l := range e.Lines {
		if l.Currency == currency {
			sum += l.Debit
		}
	}
	return sum
}

// CreditSum returns the total credited in the given currency.
func (e *Entry) CreditSum(currency Currency) int64 {
	var sum int64
	for _, l := range e.Lines {
		if l.Currency == currency {
			sum += l.Credit
		}
	}
	return sum
}

// Balanced reports whether debits equal credits in every currency present.
func (e *Entry) Balanced() bool {
	seen := map[Currency]bool{}
	for _, l := range e.Lines {
		if seen[l.Currency] {
			continue
		}
		seen[l.Currency] = true
		if e.DebitSum(l.Currency) != e.CreditSum(l.Currency) {
			return false
		}
	}
	return true
}
