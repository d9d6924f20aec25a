// Package fundamentals fetches company metadata and key ratios through the
// same go-yfinance ticker API aristath-sentinel's
// NativeClient.GetFundamentalData uses, returned as a domain.Stock and a
// line-item map instead of that client's flat FundamentalData struct. It
// does not fetch balance-sheet or cash-flow statements.
package fundamentals

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
)

// Provider fetches company metadata and key fundamental ratios.
type Provider struct {
	log *logrus.Logger
}

func New(log *logrus.Logger) *Provider {
	return &Provider{log: log}
}

// FetchMetadata returns the mutable Stock metadata fields (company name,
// sector, industry) sourced from the ticker's Info call.
func (p *Provider) FetchMetadata(ctx context.Context, symbol string) (domain.Stock, error) {
	if err := ctx.Err(); err != nil {
		return domain.Stock{}, err
	}
	t, err := ticker.New(symbol)
	if err != nil {
		return domain.Stock{}, fmt.Errorf("create ticker: %w", err)
	}
	defer t.Close()

	info, err := t.Info()
	if err != nil {
		return domain.Stock{}, fmt.Errorf("fetch info: %w", err)
	}

	name := info.LongName
	if name == "" {
		name = info.ShortName
	}
	return domain.Stock{
		Symbol:      symbol,
		CompanyName: name,
		Sector:      info.Sector,
		Industry:    info.Industry,
	}, nil
}

// FetchRatios returns the subset of key-ratio line items the engine stores
// as a single period on the income_statement table, with period_end set by
// the caller to the refresh date, the way NativeClient.GetFundamentalData flattens PE,
// margins, and returns into one record rather than a dated statement.
func (p *Provider) FetchRatios(ctx context.Context, symbol string) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("create ticker: %w", err)
	}
	defer t.Close()

	info, err := t.Info()
	if err != nil {
		return nil, fmt.Errorf("fetch info: %w", err)
	}

	items := make(map[string]decimal.Decimal)
	addIfPositive(items, "trailing_pe", info.TrailingPE)
	addIfPositive(items, "forward_pe", info.ForwardPE)
	addIfPositive(items, "peg_ratio", info.PegRatio)
	addIfPositive(items, "price_to_book", info.PriceToBook)
	addIfPositive(items, "profit_margin", info.ProfitMargins)
	addIfPositive(items, "operating_margin", info.OperatingMargins)
	addIfPositive(items, "return_on_equity", info.ReturnOnEquity)
	addIfPositive(items, "debt_to_equity", info.DebtToEquity)
	addIfPositive(items, "current_ratio", info.CurrentRatio)
	addIfPositive(items, "market_cap", info.MarketCap)
	addIfPositive(items, "dividend_yield", info.DividendYield)
	return items, nil
}

func addIfPositive(m map[string]decimal.Decimal, key string, v float64) {
	if v > 0 {
		m[key] = decimal.NewFromFloat(v)
	}
}
