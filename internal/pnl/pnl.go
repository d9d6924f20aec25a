// Package pnl computes daily mark-to-market valuations from open lots and
// sale allocations, ported from original_source/'s lot_pnl_calculator.py
// (calculate_daily_pnl, calculate_unrealized_pnl_by_lots,
// calculate_weighted_avg_cost, batch_calculate_daily_pnl) into the
// teacher's service-struct idiom.
package pnl

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
	"github.com/solankidhruvraj/stocky-ledger/internal/config"
	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
	"github.com/solankidhruvraj/stocky-ledger/internal/storage"
)

// Calculator computes and persists DailyPnL rows.
type Calculator struct {
	store       *storage.Store
	log         *logrus.Logger
	cfg         config.MissingPriceStrategy
	priceSource config.PriceSource
}

func New(store *storage.Store, log *logrus.Logger, missingPriceStrategy config.MissingPriceStrategy, priceSource config.PriceSource) *Calculator {
	return &Calculator{store: store, log: log, cfg: missingPriceStrategy, priceSource: priceSource}
}

// priceOf picks the column named by the configured PRICE_SOURCE setting.
func (c *Calculator) priceOf(p domain.StockPrice) decimal.Decimal {
	if c.priceSource == config.PriceSourceClose {
		return p.Close
	}
	return p.AdjClose
}

// ComputeDaily values (owner, symbol) as of date: it snapshots every lot
// whose purchase_date <= date with remaining quantity computed by replaying
// allocations dated on or before date, prices the position with the
// configured missing-price strategy, and aggregates realized PnL booked by
// sells executed exactly on date. The result is written via UpsertDailyPnL
// as a completed row, replacing whatever placeholder internal/ledger's
// RecordSell may have written for the same (owner, symbol, date) — the
// placeholder-then-complete lifecycle described in lot_pnl_calculator.py.
func (c *Calculator) ComputeDaily(ctx context.Context, ownerID, symbol, date string) (domain.DailyPnL, error) {
	lots, err := c.store.GetAllLots(ctx, ownerID, symbol)
	if err != nil {
		return domain.DailyPnL{}, err
	}
	allocs, err := c.store.GetAllocationsForSymbol(ctx, ownerID, symbol)
	if err != nil {
		return domain.DailyPnL{}, err
	}

	quantity := decimal.Zero
	totalCost := decimal.Zero
	nonDripQty := decimal.Zero
	nonDripCost := decimal.Zero

	for _, lot := range lots {
		if lot.PurchaseDate > date {
			continue
		}
		consumedByDate := decimal.Zero
		for _, a := range allocs {
			sellDate, err := c.sellDateOf(ctx, a)
			if err != nil {
				return domain.DailyPnL{}, err
			}
			if a.LotID == lot.ID && sellDate <= date {
				consumedByDate = consumedByDate.Add(a.QuantitySold)
			}
		}
		remainingAsOf := lot.OriginalQuantity.Sub(consumedByDate)
		if remainingAsOf.IsZero() || remainingAsOf.IsNegative() {
			continue
		}
		quantity = quantity.Add(remainingAsOf)
		cost := lot.CostBasisPerShare.Mul(remainingAsOf)
		totalCost = totalCost.Add(cost)
		if !lot.IsDRIP() {
			nonDripQty = nonDripQty.Add(remainingAsOf)
			nonDripCost = nonDripCost.Add(cost)
		}
	}

	weightedAvgCost := decimal.Zero
	if nonDripQty.IsPositive() {
		weightedAvgCost = nonDripCost.Div(nonDripQty)
	} else if quantity.IsPositive() {
		weightedAvgCost = totalCost.Div(quantity)
	}

	price, isStale, err := c.marketPrice(ctx, symbol, date)
	if err != nil {
		return domain.DailyPnL{}, err
	}

	marketValue := price.Mul(quantity)
	unrealized := marketValue.Sub(totalCost)

	realizedDay := decimal.Zero
	dayAllocs, err := c.store.GetAllocationsForSellOnDate(ctx, ownerID, symbol, date)
	if err != nil {
		return domain.DailyPnL{}, err
	}
	for _, a := range dayAllocs {
		realizedDay = realizedDay.Add(a.RealizedPnL)
	}

	if existing, err := c.store.GetDailyPnL(ctx, ownerID, symbol, date); err != nil {
		return domain.DailyPnL{}, err
	} else if existing != nil && existing.IsStalePrice && !existing.RealizedPnLDay.Equal(realizedDay) {
		c.log.WithFields(logrus.Fields{
			"symbol": symbol, "date": date,
			"placeholder_realized": existing.RealizedPnLDay.String(), "recomputed_realized": realizedDay.String(),
		}).Warn("recomputed realized pnl disagrees with record_sell's placeholder")
	}

	row := domain.DailyPnL{
		OwnerID: ownerID, Symbol: symbol, ValuationDate: date,
		Quantity: quantity, WeightedAvgCost: weightedAvgCost,
		MarketPrice: price, MarketValue: marketValue, UnrealizedPnL: unrealized,
		RealizedPnLDay: realizedDay, TotalCost: totalCost, IsStalePrice: isStale,
	}
	if err := c.store.UpsertDailyPnL(ctx, row); err != nil {
		return domain.DailyPnL{}, err
	}
	return row, nil
}

// sellDateOf looks up the transaction date of the sell that produced a,
// needed because sale_allocations does not carry a date column directly.
func (c *Calculator) sellDateOf(ctx context.Context, a domain.SaleAllocation) (string, error) {
	txn, err := c.store.FindTransactionByID(ctx, a.SellTransactionID)
	if err != nil {
		return "", err
	}
	if txn == nil {
		return "", apperr.New(apperr.StorageError, "sell transaction not found: "+a.SellTransactionID)
	}
	return txn.TransactionDate, nil
}

// marketPrice resolves the pricing point for date per the configured
// strategy: "backfill" walks backward to the most recent available price
// row (valued from the configured PRICE_SOURCE column),
// matching _get_market_price's fallback behavior; "strict" requires an
// exact match and fails otherwise.
func (c *Calculator) marketPrice(ctx context.Context, symbol, date string) (decimal.Decimal, bool, error) {
	if c.cfg == config.MissingPriceStrict {
		prices, err := c.store.GetPrices(ctx, symbol, &date, &date)
		if err != nil {
			return decimal.Zero, false, err
		}
		if len(prices) == 0 {
			return decimal.Zero, false, apperr.New(apperr.NoPrice, "no price for "+symbol+" on "+date)
		}
		return c.priceOf(prices[0]), false, nil
	}

	price, err := c.store.GetPriceAtOrBefore(ctx, symbol, date)
	if err != nil {
		return decimal.Zero, false, err
	}
	if price == nil {
		return decimal.Zero, false, apperr.New(apperr.NoPrice, "no price at or before "+date+" for "+symbol)
	}
	return c.priceOf(*price), price.Date != date, nil
}

// BatchResult pairs a symbol with either its computed row or the error that
// prevented computation, so one bad symbol does not abort the batch.
type BatchResult struct {
	Symbol string
	Row    domain.DailyPnL
	Err    error
}

// BatchCalculateDailyPnL computes ComputeDaily for every symbol with an
// open position for ownerID as of date, matching
// batch_calculate_daily_pnl's per-symbol isolation.
func (c *Calculator) BatchCalculateDailyPnL(ctx context.Context, ownerID, date string) ([]BatchResult, error) {
	symbols, err := c.store.GetActiveSymbols(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	results := make([]BatchResult, 0, len(symbols))
	for _, symbol := range symbols {
		row, err := c.ComputeDaily(ctx, ownerID, symbol, date)
		if err != nil {
			c.log.WithError(err).WithField("symbol", symbol).Warn("daily pnl computation failed")
			results = append(results, BatchResult{Symbol: symbol, Err: err})
			continue
		}
		results = append(results, BatchResult{Symbol: symbol, Row: row})
	}
	return results, nil
}
