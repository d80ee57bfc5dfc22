package ledger

import (
	"sort"

	"fintrack/internal/core"
)

// DayBucket is one point of the daily series: every income and expense
// amount recorded on one calendar date, both sides always present.
type DayBucket struct {
	Date     string  `json:"date"` // canonical YYYY-MM-DD
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
}

// The aggregation functions below are pure: they never mutate their input and
// depend on nothing but it. Whoever owns "when to recompute" calls them
// against the current snapshot, so aggregates always describe exactly what
// List() returned.

// TotalBalance is the sum of income amounts minus the sum of expense
// amounts. It may be negative and is invariant under reordering.
func TotalBalance(records []core.Transaction) float64 {
	var balance float64
	for _, t := range records {
		switch t.Type {
		case core.Income:
			balance += t.Amount
		case core.Expense:
			balance -= t.Amount
		}
	}
	return balance
}

// MonthlyIncome sums income amounts over whatever window the caller passes.
// Window selection is the caller's: passing the full loaded set gives the
// all-time total.
func MonthlyIncome(records []core.Transaction) float64 {
	return sumByType(records, core.Income)
}

// MonthlyExpenses sums expense amounts over whatever window the caller
// passes.
func MonthlyExpenses(records []core.Transaction) float64 {
	return sumByType(records, core.Expense)
}

func sumByType(records []core.Transaction, typ core.TransactionType) float64 {
	var total float64
	for _, t := range records {
		if t.Type == typ {
			total += t.Amount
		}
	}
	return total
}

// DailySeries buckets records by calendar date (UTC, time of day ignored) in
// a single pass and returns the buckets ordered by date ascending, one entry
// per distinct date present in the input. A date with no income or no
// expenses shows 0 for that side, not absence.
func DailySeries(records []core.Transaction) []DayBucket {
	if len(records) == 0 {
		return nil
	}

	buckets := make(map[string]*DayBucket, len(records))
	keys := make([]string, 0, len(records))
	for _, t := range records {
		key := t.DayKey()
		b, ok := buckets[key]
		if !ok {
			b = &DayBucket{Date: key}
			buckets[key] = b
			keys = append(keys, key)
		}
		switch t.Type {
		case core.Income:
			b.Income += t.Amount
		case core.Expense:
			b.Expenses += t.Amount
		}
	}

	// Canonical YYYY-MM-DD keys sort chronologically as strings.
	sort.Strings(keys)

	out := make([]DayBucket, len(keys))
	for i, key := range keys {
		out[i] = *buckets[key]
	}
	return out
}
