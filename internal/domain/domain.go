// Package domain holds the engine's entity types, shared by storage,
// acquisition, ledger, and PnL packages. Monetary and quantity fields use
// shopspring/decimal throughout, the way the teacher's internal/database
// types carry decimal.Decimal rather than float64.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind distinguishes a buy from a sell.
type TransactionKind string

const (
	Buy  TransactionKind = "BUY"
	Sell TransactionKind = "SELL"
)

// Stock is created on first reference to a symbol and is immutable
// thereafter except for metadata refresh from the fundamentals provider.
type Stock struct {
	Symbol      string    `db:"symbol" json:"symbol"`
	CompanyName string    `db:"company_name" json:"company_name"`
	Sector      string    `db:"sector" json:"sector"`
	Industry    string    `db:"industry" json:"industry"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// StockPrice is one OHLCV row, unique on (Symbol, Date).
type StockPrice struct {
	Symbol   string          `db:"symbol" json:"symbol"`
	Date     string          `db:"date" json:"date"`
	Open     decimal.Decimal `db:"open" json:"open"`
	High     decimal.Decimal `db:"high" json:"high"`
	Low      decimal.Decimal `db:"low" json:"low"`
	Close    decimal.Decimal `db:"close" json:"close"`
	AdjClose decimal.Decimal `db:"adj_close" json:"adj_close"`
	Volume   int64           `db:"volume" json:"volume"`
}

// StatementType names one of the three normalized financial-statement
// tables.
type StatementType string

const (
	IncomeStatement StatementType = "income_statement"
	BalanceSheet    StatementType = "balance_sheet"
	CashFlow        StatementType = "cash_flow"
)

// FinancialLineItem is one (symbol, period_end, line_item) -> value row in
// the normalized long-form financial-statement tables.
type FinancialLineItem struct {
	Symbol    string          `db:"symbol" json:"symbol"`
	PeriodEnd string          `db:"period_end" json:"period_end"`
	LineItem  string          `db:"line_item" json:"line_item"`
	Value     decimal.Decimal `db:"value" json:"value"`
}

// Transaction is an immutable BUY or SELL record.
type Transaction struct {
	ID              string          `db:"id" json:"id"`
	OwnerID         string          `db:"owner_id" json:"owner_id"`
	Symbol          string          `db:"symbol" json:"symbol"`
	Kind            TransactionKind `db:"kind" json:"kind"`
	Quantity        decimal.Decimal `db:"quantity" json:"quantity"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Commission      decimal.Decimal `db:"commission" json:"commission"`
	TransactionDate string          `db:"transaction_date" json:"transaction_date"`
	ExternalID      *string         `db:"external_id" json:"external_id,omitempty"`
	Notes           string          `db:"notes" json:"notes"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// PositionLot tracks one BUY's shares independently until fully sold.
type PositionLot struct {
	ID                 string          `db:"id" json:"id"`
	OwnerID             string          `db:"owner_id" json:"owner_id"`
	Symbol              string          `db:"symbol" json:"symbol"`
	BuyTransactionID    string          `db:"buy_transaction_id" json:"buy_transaction_id"`
	OriginalQuantity    decimal.Decimal `db:"original_quantity" json:"original_quantity"`
	RemainingQuantity   decimal.Decimal `db:"remaining_quantity" json:"remaining_quantity"`
	CostBasisPerShare   decimal.Decimal `db:"cost_basis_per_share" json:"cost_basis_per_share"`
	PurchaseDate        string          `db:"purchase_date" json:"purchase_date"`
	IsClosed            bool            `db:"is_closed" json:"is_closed"`
	Notes               string          `db:"notes" json:"notes"`
}

// TotalCost is the lot's cost basis carried by its remaining shares.
func (l PositionLot) TotalCost() decimal.Decimal {
	return l.CostBasisPerShare.Mul(l.RemainingQuantity)
}

// IsDRIP reports whether this lot originated from a dividend reinvestment,
// the convention original_source/ uses to exclude such lots from weighted
// average cost while still counting them toward market value.
func (l PositionLot) IsDRIP() bool {
	return strings.Contains(l.Notes, dripMarker)
}

const dripMarker = "Dividend Reinvestment"

// SaleAllocation binds a portion of a SELL to a specific lot; append-only.
type SaleAllocation struct {
	ID                 string          `db:"id" json:"id"`
	SellTransactionID  string          `db:"sell_transaction_id" json:"sell_transaction_id"`
	LotID              string          `db:"lot_id" json:"lot_id"`
	QuantitySold       decimal.Decimal `db:"quantity_sold" json:"quantity_sold"`
	CostBasisPerShare  decimal.Decimal `db:"cost_basis_per_share" json:"cost_basis_per_share"`
	SalePricePerShare  decimal.Decimal `db:"sale_price_per_share" json:"sale_price_per_share"`
	RealizedPnL        decimal.Decimal `db:"realized_pnl" json:"realized_pnl"`
}

// DailyPnL is the upsert-by-key (owner, symbol, date) valuation row.
type DailyPnL struct {
	OwnerID          string          `db:"owner_id" json:"owner_id"`
	Symbol           string          `db:"symbol" json:"symbol"`
	ValuationDate    string          `db:"valuation_date" json:"valuation_date"`
	Quantity         decimal.Decimal `db:"quantity" json:"quantity"`
	WeightedAvgCost  decimal.Decimal `db:"weighted_avg_cost" json:"weighted_avg_cost"`
	MarketPrice      decimal.Decimal `db:"market_price" json:"market_price"`
	MarketValue      decimal.Decimal `db:"market_value" json:"market_value"`
	UnrealizedPnL    decimal.Decimal `db:"unrealized_pnl" json:"unrealized_pnl"`
	RealizedPnLDay   decimal.Decimal `db:"realized_pnl_day" json:"realized_pnl_day"`
	TotalCost        decimal.Decimal `db:"total_cost" json:"total_cost"`
	IsStalePrice     bool            `db:"is_stale_price" json:"is_stale_price"`
}

// PositionSummary aggregates open lots for one (owner, symbol) pair.
type PositionSummary struct {
	OwnerID        string          `json:"owner_id"`
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	WeightedAvgCost decimal.Decimal `json:"weighted_avg_cost"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	LotCount       int             `json:"lot_count"`
	FirstBuyDate   string          `json:"first_buy_date"`
}
