package acquire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecidePriceSource_NewSymbolUsesBulk(t *testing.T) {
	p := Policy{IncrementalThresholdDays: 100}
	decision := p.DecidePriceSource(nil, time.Now())
	assert.Equal(t, DecisionBulk, decision)
}

func TestDecidePriceSource_RecentSymbolUsesIncremental(t *testing.T) {
	p := Policy{IncrementalThresholdDays: 100}
	last := time.Now().AddDate(0, 0, -5)
	decision := p.DecidePriceSource(&last, time.Now())
	assert.Equal(t, DecisionIncremental, decision)
}

func TestDecidePriceSource_StaleSymbolUsesBulk(t *testing.T) {
	p := Policy{IncrementalThresholdDays: 100}
	last := time.Now().AddDate(0, 0, -150)
	decision := p.DecidePriceSource(&last, time.Now())
	assert.Equal(t, DecisionBulk, decision)
}

func TestShouldRefreshFundamentals_NeverFetched(t *testing.T) {
	p := Policy{FinancialRefreshDays: 90}
	assert.True(t, p.ShouldRefreshFundamentals(nil, time.Now()))
}

func TestShouldRefreshFundamentals_WithinWindow(t *testing.T) {
	p := Policy{FinancialRefreshDays: 90}
	last := time.Now().AddDate(0, 0, -10)
	assert.False(t, p.ShouldRefreshFundamentals(&last, time.Now()))
}

func TestShouldRefreshFundamentals_PastWindow(t *testing.T) {
	p := Policy{FinancialRefreshDays: 90}
	last := time.Now().AddDate(0, 0, -120)
	assert.True(t, p.ShouldRefreshFundamentals(&last, time.Now()))
}
