// Package ledger implements the lot-level trading ledger: record_buy and
// record_sell, open-lot/position queries, and the consistency audit,
// grounded on original_source/'s lot_transaction_service.py but rebuilt
// around storage.Store's transactional primitives the way the teacher's
// internal/database.Repo exposes one method per write path.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
	"github.com/solankidhruvraj/stocky-ledger/internal/costbasis"
	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
	"github.com/solankidhruvraj/stocky-ledger/internal/storage"
)

// validateTransactionInput applies the field-level checks spec.md §4.5
// requires before any BUY or SELL write: symbol present, price and
// commission non-negative, and a parseable transaction date, since
// purchase_date is later used in raw string comparisons for FIFO/LIFO
// ordering and PnL date replay.
func validateTransactionInput(symbol string, price, commission decimal.Decimal, transactionDate string) error {
	if strings.TrimSpace(symbol) == "" {
		return apperr.New(apperr.Validation, "symbol is required")
	}
	if price.IsNegative() {
		return apperr.New(apperr.Validation, "price must be non-negative")
	}
	if commission.IsNegative() {
		return apperr.New(apperr.Validation, "commission must be non-negative")
	}
	if _, err := time.Parse("2006-01-02", transactionDate); err != nil {
		return apperr.Wrap(apperr.Validation, "transaction date must be YYYY-MM-DD", err)
	}
	return nil
}

// Ledger is the trading engine's write path: every BUY creates a lot, every
// SELL consumes one or more lots atomically with its allocations.
type Ledger struct {
	store *storage.Store
	log   *logrus.Logger
}

func New(store *storage.Store, log *logrus.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// BuyRequest describes an incoming BUY transaction.
type BuyRequest struct {
	OwnerID         string
	Symbol          string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	Commission      decimal.Decimal
	TransactionDate string
	ExternalID      *string
	Notes           string
}

// RecordBuy inserts the transaction and opens a new lot sized at quantity,
// cost basis per share = (price*quantity + commission) / quantity — the
// commission-inclusive cost-basis rule from lot_transaction_service.py. If
// ExternalID already exists for this owner, the existing transaction/lot
// pairing is treated as already recorded and no new rows are written.
func (l *Ledger) RecordBuy(ctx context.Context, req BuyRequest) (domain.Transaction, domain.PositionLot, error) {
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return domain.Transaction{}, domain.PositionLot{}, apperr.New(apperr.Validation, "buy quantity must be positive")
	}
	if err := validateTransactionInput(req.Symbol, req.Price, req.Commission, req.TransactionDate); err != nil {
		return domain.Transaction{}, domain.PositionLot{}, err
	}
	if req.ExternalID != nil {
		if existing, err := l.store.FindTransactionByExternalID(ctx, req.OwnerID, *req.ExternalID); err != nil {
			return domain.Transaction{}, domain.PositionLot{}, err
		} else if existing != nil {
			lots, err := l.store.GetAllLots(ctx, req.OwnerID, req.Symbol)
			if err != nil {
				return domain.Transaction{}, domain.PositionLot{}, err
			}
			for _, lot := range lots {
				if lot.BuyTransactionID == existing.ID {
					return *existing, lot, nil
				}
			}
		}
	}

	txnID := uuid.NewString()
	lotID := uuid.NewString()
	grossCost := req.Price.Mul(req.Quantity).Add(req.Commission)
	costBasisPerShare := grossCost.Div(req.Quantity)

	txn := domain.Transaction{
		ID: txnID, OwnerID: req.OwnerID, Symbol: req.Symbol, Kind: domain.Buy,
		Quantity: req.Quantity, Price: req.Price, Commission: req.Commission,
		TransactionDate: req.TransactionDate, ExternalID: req.ExternalID, Notes: req.Notes,
	}
	lot := domain.PositionLot{
		ID: lotID, OwnerID: req.OwnerID, Symbol: req.Symbol, BuyTransactionID: txnID,
		OriginalQuantity: req.Quantity, RemainingQuantity: req.Quantity,
		CostBasisPerShare: costBasisPerShare, PurchaseDate: req.TransactionDate, Notes: req.Notes,
	}

	err := l.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := l.store.InsertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		return l.store.InsertLot(ctx, tx, lot)
	})
	if err != nil {
		return domain.Transaction{}, domain.PositionLot{}, err
	}
	l.log.WithFields(logrus.Fields{"symbol": req.Symbol, "quantity": req.Quantity.String()}).Info("recorded buy")
	return txn, lot, nil
}

// SellRequest describes an incoming SELL transaction.
type SellRequest struct {
	OwnerID         string
	Symbol          string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	Commission      decimal.Decimal
	TransactionDate string
	ExternalID      *string
	Notes           string
	Method          costbasis.Method
	LotQuantities   map[string]decimal.Decimal // only consulted when Method == costbasis.SpecificLot
}

// SellResult bundles the written transaction with its allocations and total
// realized PnL, the per-call result lot_transaction_service.py returns from
// record_sell_transaction.
type SellResult struct {
	Transaction domain.Transaction
	Allocations []domain.SaleAllocation
	RealizedPnL decimal.Decimal
}

// RecordSell consumes open lots per req.Method, writes one sale_allocations
// row per consumed lot, updates each lot's remaining_quantity, and computes
// realized PnL per allocation as (sale_price - cost_basis) * qty, minus a
// proportional share of commission allocated by quantity — all inside one
// transaction so a partial sell can never leave lots and allocations out of
// sync (Testable Property 2).
func (l *Ledger) RecordSell(ctx context.Context, req SellRequest) (SellResult, error) {
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return SellResult{}, apperr.New(apperr.Validation, "sell quantity must be positive")
	}
	if err := validateTransactionInput(req.Symbol, req.Price, req.Commission, req.TransactionDate); err != nil {
		return SellResult{}, err
	}
	if req.ExternalID != nil {
		if existing, err := l.store.FindTransactionByExternalID(ctx, req.OwnerID, *req.ExternalID); err != nil {
			return SellResult{}, err
		} else if existing != nil {
			allocs, err := l.store.GetAllocationsForSell(ctx, existing.ID)
			if err != nil {
				return SellResult{}, err
			}
			return SellResult{Transaction: *existing, Allocations: allocs, RealizedPnL: sumRealized(allocs)}, nil
		}
	}

	openLots, err := l.store.GetOpenLots(ctx, req.OwnerID, req.Symbol, storage.PurchaseDateAsc)
	if err != nil {
		return SellResult{}, err
	}

	matcher, err := costbasis.New(req.Method)
	if err != nil {
		return SellResult{}, err
	}
	matches, err := matcher.Match(openLots, req.Quantity, req.LotQuantities)
	if err != nil {
		return SellResult{}, err
	}

	txnID := uuid.NewString()
	txn := domain.Transaction{
		ID: txnID, OwnerID: req.OwnerID, Symbol: req.Symbol, Kind: domain.Sell,
		Quantity: req.Quantity, Price: req.Price, Commission: req.Commission,
		TransactionDate: req.TransactionDate, ExternalID: req.ExternalID, Notes: req.Notes,
	}

	allocations := make([]domain.SaleAllocation, 0, len(matches))
	realizedTotal := decimal.Zero

	err = l.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := l.store.InsertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		for _, m := range matches {
			// Commission is amortized across allocations proportional to the
			// quantity each lot contributes, so the sum of per-allocation
			// realized PnL equals price*qty - commission - totalCostBasis.
			commissionShare := req.Commission.Mul(m.Quantity).Div(req.Quantity)
			grossProceeds := req.Price.Mul(m.Quantity).Sub(commissionShare)
			costBasis := m.Lot.CostBasisPerShare.Mul(m.Quantity)
			realized := grossProceeds.Sub(costBasis)

			alloc := domain.SaleAllocation{
				ID: uuid.NewString(), SellTransactionID: txnID, LotID: m.Lot.ID,
				QuantitySold: m.Quantity, CostBasisPerShare: m.Lot.CostBasisPerShare,
				SalePricePerShare: req.Price, RealizedPnL: realized,
			}
			if err := l.store.InsertAllocation(ctx, tx, alloc); err != nil {
				return err
			}

			newRemaining := m.Lot.RemainingQuantity.Sub(m.Quantity)
			if err := l.store.UpdateLotRemaining(ctx, tx, m.Lot.ID, newRemaining, newRemaining.IsZero()); err != nil {
				return err
			}

			allocations = append(allocations, alloc)
			realizedTotal = realizedTotal.Add(realized)
		}

		// Upsert a placeholder daily_pnl row in the same transaction as the
		// sell, so the realized leg is visible immediately instead of
		// waiting for the next compute_daily run. Only the realized leg is
		// touched here; market_price/market_value/unrealized_pnl are left
		// at whatever compute_daily last computed (or zero, if none yet)
		// and is_stale_price is forced true since this write did not price
		// the position.
		existing, err := l.store.GetDailyPnLTx(ctx, tx, req.OwnerID, req.Symbol, req.TransactionDate)
		if err != nil {
			return err
		}
		placeholder := domain.DailyPnL{OwnerID: req.OwnerID, Symbol: req.Symbol, ValuationDate: req.TransactionDate}
		if existing != nil {
			placeholder = *existing
		}
		placeholder.IsStalePrice = true
		placeholder.RealizedPnLDay = placeholder.RealizedPnLDay.Add(realizedTotal)
		return l.store.UpsertDailyPnLTx(ctx, tx, placeholder)
	})
	if err != nil {
		return SellResult{}, err
	}

	l.log.WithFields(logrus.Fields{
		"symbol": req.Symbol, "quantity": req.Quantity.String(), "realized_pnl": realizedTotal.String(),
	}).Info("recorded sell")
	return SellResult{Transaction: txn, Allocations: allocations, RealizedPnL: realizedTotal}, nil
}

func sumRealized(allocs []domain.SaleAllocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.RealizedPnL)
	}
	return total
}

// GetPositionSummary aggregates every open lot for (owner, symbol) into a
// single weighted-average-cost position, excluding DRIP lots from the
// weighted average per original_source/'s DRIP-exclusion rule while still
// counting their shares toward quantity.
func (l *Ledger) GetPositionSummary(ctx context.Context, ownerID, symbol string) (domain.PositionSummary, error) {
	lots, err := l.store.GetOpenLots(ctx, ownerID, symbol, storage.PurchaseDateAsc)
	if err != nil {
		return domain.PositionSummary{}, err
	}
	summary := domain.PositionSummary{OwnerID: ownerID, Symbol: symbol, LotCount: len(lots)}
	if len(lots) == 0 {
		return summary, nil
	}

	totalQty := decimal.Zero
	nonDripQty := decimal.Zero
	nonDripCost := decimal.Zero
	totalCost := decimal.Zero
	first := lots[0].PurchaseDate

	for _, lot := range lots {
		totalQty = totalQty.Add(lot.RemainingQuantity)
		totalCost = totalCost.Add(lot.TotalCost())
		if !lot.IsDRIP() {
			nonDripQty = nonDripQty.Add(lot.RemainingQuantity)
			nonDripCost = nonDripCost.Add(lot.TotalCost())
		}
		if lot.PurchaseDate < first {
			first = lot.PurchaseDate
		}
	}

	summary.Quantity = totalQty
	summary.TotalCost = totalCost
	summary.FirstBuyDate = first
	if nonDripQty.IsPositive() {
		summary.WeightedAvgCost = nonDripCost.Div(nonDripQty)
	} else if totalQty.IsPositive() {
		summary.WeightedAvgCost = totalCost.Div(totalQty)
	}
	return summary, nil
}

// GetOpenLots exposes the ordered open-lot listing for callers (the CLI's
// trade lots command) that need the raw lots rather than the aggregate summary.
func (l *Ledger) GetOpenLots(ctx context.Context, ownerID, symbol string) ([]domain.PositionLot, error) {
	return l.store.GetOpenLots(ctx, ownerID, symbol, storage.PurchaseDateAsc)
}

// GetOpenLotsPage exposes the paginated open-lot listing, the SUPPLEMENTED
// batch-lot query original_source/'s get_position_lots_paginated provides.
func (l *Ledger) GetOpenLotsPage(ctx context.Context, ownerID, symbol string, pageSize, pageOffset int) ([]domain.PositionLot, int, error) {
	return l.store.GetOpenLotsPage(ctx, ownerID, symbol, pageSize, pageOffset)
}

// GetAllocationsForSymbol exposes the full sale history for a symbol.
func (l *Ledger) GetAllocationsForSymbol(ctx context.Context, ownerID, symbol string) ([]domain.SaleAllocation, error) {
	return l.store.GetAllocationsForSymbol(ctx, ownerID, symbol)
}

// ConsistencyReport summarizes a single (owner, symbol) pair's audit
// result, the SUPPLEMENTED feature grounded on
// lot_transaction_service.py's validate_data_consistency.
type ConsistencyReport struct {
	OwnerID              string
	Symbol               string
	Consistent           bool
	Issues               []string
	OpenLotQuantity      decimal.Decimal
	SumBuyMinusSellQuantity decimal.Decimal
}

// ValidateConsistency recomputes net position from the lot and allocation
// history (sum of lot original quantities minus sum of allocated quantities)
// and compares it against the sum of remaining quantities on the lots; it
// also checks each lot's remaining quantity against its original minus its
// allocations, and that zero-remaining lots are marked closed, flagging
// drift that would indicate a bug in record_buy/record_sell bookkeeping.
func (l *Ledger) ValidateConsistency(ctx context.Context, ownerID, symbol string) (ConsistencyReport, error) {
	report := ConsistencyReport{OwnerID: ownerID, Symbol: symbol, Consistent: true}

	lots, err := l.store.GetAllLots(ctx, ownerID, symbol)
	if err != nil {
		return report, err
	}
	openQty := decimal.Zero
	boughtQty := decimal.Zero
	for _, lot := range lots {
		openQty = openQty.Add(lot.RemainingQuantity)
		boughtQty = boughtQty.Add(lot.OriginalQuantity)
	}

	allocs, err := l.store.GetAllocationsForSymbol(ctx, ownerID, symbol)
	if err != nil {
		return report, err
	}
	soldQty := decimal.Zero
	for _, a := range allocs {
		soldQty = soldQty.Add(a.QuantitySold)
	}

	netFromHistory := boughtQty.Sub(soldQty)
	report.OpenLotQuantity = openQty
	report.SumBuyMinusSellQuantity = netFromHistory

	if !openQty.Equal(netFromHistory) {
		report.Consistent = false
		report.Issues = append(report.Issues, "open lot quantity "+openQty.String()+" does not match bought-minus-sold "+netFromHistory.String())
	}

	for _, lot := range lots {
		consumed := decimal.Zero
		for _, a := range allocs {
			if a.LotID == lot.ID {
				consumed = consumed.Add(a.QuantitySold)
			}
		}
		if !lot.OriginalQuantity.Sub(consumed).Equal(lot.RemainingQuantity) {
			report.Consistent = false
			report.Issues = append(report.Issues, "lot "+lot.ID+" remaining quantity diverges from original minus allocations")
		}
		if lot.RemainingQuantity.IsZero() && !lot.IsClosed {
			report.Consistent = false
			report.Issues = append(report.Issues, "lot "+lot.ID+" has zero remaining quantity but is not marked closed")
		}
	}

	return report, nil
}
