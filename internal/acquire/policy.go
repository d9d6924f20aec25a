// Package acquire decides how to refresh a symbol's price and fundamentals
// data and orchestrates the provider calls against storage, grounded on
// original_source/'s hybrid_downloader.py (new-stock-uses-bulk vs
// existing-stock-uses-incremental policy, fallback-to-bulk on incremental
// failure).
package acquire

import "time"

// Decision names which provider path a symbol should take.
type Decision string

const (
	DecisionBulk        Decision = "BULK"
	DecisionIncremental Decision = "INCREMENTAL"
)

// Policy is a pure function over a symbol's known state; it holds no I/O so
// it can be tested without a database or network.
type Policy struct {
	IncrementalThresholdDays int
	FinancialRefreshDays     int
}

// DecidePriceSource picks bulk download for a symbol seen for the first
// time (lastPriceDate == nil) or one whose last stored price is older than
// IncrementalThresholdDays; otherwise picks the incremental API path, the
// same new-vs-existing branch hybrid_downloader.py's download_stock_data
// makes.
func (p Policy) DecidePriceSource(lastPriceDate *time.Time, now time.Time) Decision {
	if lastPriceDate == nil {
		return DecisionBulk
	}
	age := now.Sub(*lastPriceDate)
	if age > time.Duration(p.IncrementalThresholdDays)*24*time.Hour {
		return DecisionBulk
	}
	return DecisionIncremental
}

// ShouldRefreshFundamentals reports whether a fundamentals refresh is due:
// never fetched, or the last refresh is older than FinancialRefreshDays.
func (p Policy) ShouldRefreshFundamentals(lastRefresh *time.Time, now time.Time) bool {
	if lastRefresh == nil {
		return true
	}
	return now.Sub(*lastRefresh) > time.Duration(p.FinancialRefreshDays)*24*time.Hour
}
