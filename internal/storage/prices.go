package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
)

// EnsureStock idempotently inserts a stock row, matching the teacher's
// EnsureStockExists (INSERT ... ON CONFLICT DO NOTHING).
func (s *Store) EnsureStock(ctx context.Context, symbol string, meta domain.Stock) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (symbol, company_name, sector, industry, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO NOTHING`,
		symbol, meta.CompanyName, meta.Sector, meta.Industry, meta.Description)
	if err != nil {
		return classify("ensure stock", err)
	}
	return nil
}

// RefreshStockMetadata updates the mutable metadata fields of an existing
// stock row (company_name/sector/industry/description), the only permitted
// mutation per spec.md §3's Stock lifecycle.
func (s *Store) RefreshStockMetadata(ctx context.Context, symbol string, meta domain.Stock) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stocks SET company_name = ?, sector = ?, industry = ?, description = ?
		WHERE symbol = ?`,
		meta.CompanyName, meta.Sector, meta.Industry, meta.Description, symbol)
	if err != nil {
		return classify("refresh stock metadata", err)
	}
	return nil
}

// UpsertPrices writes rows keyed by date, conflict-replace, within a single
// transaction so a partial batch never lands half-written.
func (s *Store) UpsertPrices(ctx context.Context, symbol string, rows []domain.StockPrice) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	added := 0
	err := s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO stock_prices (symbol, date, open, high, low, close, adj_close, volume)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(symbol, date) DO UPDATE SET
					open=excluded.open, high=excluded.high, low=excluded.low,
					close=excluded.close, adj_close=excluded.adj_close, volume=excluded.volume`,
				symbol, r.Date, r.Open.String(), r.High.String(), r.Low.String(),
				r.Close.String(), r.AdjClose.String(), r.Volume)
			if err != nil {
				return classify("upsert price row", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	return added, err
}

// GetPrices returns rows for symbol in [start, end] (inclusive), both
// optional; dates ascending.
func (s *Store) GetPrices(ctx context.Context, symbol string, start, end *string) ([]domain.StockPrice, error) {
	query := `SELECT symbol, date, open, high, low, close, adj_close, volume FROM stock_prices WHERE symbol = ?`
	args := []interface{}{symbol}
	if start != nil {
		query += ` AND date >= ?`
		args = append(args, *start)
	}
	if end != nil {
		query += ` AND date <= ?`
		args = append(args, *end)
	}
	query += ` ORDER BY date ASC`

	var rawRows []rawPrice
	if err := s.db.SelectContext(ctx, &rawRows, query, args...); err != nil {
		return nil, classify("get prices", err)
	}
	out := make([]domain.StockPrice, 0, len(rawRows))
	for _, r := range rawRows {
		p, err := r.toDomain()
		if err != nil {
			return nil, classify("decode price row", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// GetLastPriceDate returns the most recent stored date for symbol, or nil if
// none exists.
func (s *Store) GetLastPriceDate(ctx context.Context, symbol string) (*string, error) {
	var date sql.NullString
	err := s.db.GetContext(ctx, &date, `SELECT MAX(date) FROM stock_prices WHERE symbol = ?`, symbol)
	if err != nil {
		return nil, classify("get last price date", err)
	}
	if !date.Valid {
		return nil, nil
	}
	d := date.String
	return &d, nil
}

// GetPriceAtOrBefore returns the most recent price row at or before date,
// used by the PnL calculator's backfill strategy for stale-price lookup.
func (s *Store) GetPriceAtOrBefore(ctx context.Context, symbol, date string) (*domain.StockPrice, error) {
	var raw rawPrice
	err := s.db.GetContext(ctx, &raw, `
		SELECT symbol, date, open, high, low, close, adj_close, volume
		FROM stock_prices WHERE symbol = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`, symbol, date)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, classify("get price at or before", err)
	}
	p, err := raw.toDomain()
	if err != nil {
		return nil, classify("decode price row", err)
	}
	return &p, nil
}

// rawPrice mirrors stock_prices' TEXT-encoded decimal columns for sqlx
// scanning, converted to domain.StockPrice by toDomain.
type rawPrice struct {
	Symbol   string `db:"symbol"`
	Date     string `db:"date"`
	Open     string `db:"open"`
	High     string `db:"high"`
	Low      string `db:"low"`
	Close    string `db:"close"`
	AdjClose string `db:"adj_close"`
	Volume   int64  `db:"volume"`
}

func (r rawPrice) toDomain() (domain.StockPrice, error) {
	open, err := decimal.NewFromString(r.Open)
	if err != nil {
		return domain.StockPrice{}, err
	}
	high, err := decimal.NewFromString(r.High)
	if err != nil {
		return domain.StockPrice{}, err
	}
	low, err := decimal.NewFromString(r.Low)
	if err != nil {
		return domain.StockPrice{}, err
	}
	closeP, err := decimal.NewFromString(r.Close)
	if err != nil {
		return domain.StockPrice{}, err
	}
	adj, err := decimal.NewFromString(r.AdjClose)
	if err != nil {
		return domain.StockPrice{}, err
	}
	return domain.StockPrice{
		Symbol: r.Symbol, Date: r.Date,
		Open: open, High: high, Low: low, Close: closeP, AdjClose: adj,
		Volume: r.Volume,
	}, nil
}

// UpsertFinancials writes one normalized long-form statement table
// (income_statement/balance_sheet/cash_flow) for a single period, conflict-
// replace on (symbol, period_end, line_item).
func (s *Store) UpsertFinancials(ctx context.Context, symbol string, statementType domain.StatementType, periodEnd string, items map[string]decimal.Decimal) error {
	table, err := financialsTable(statementType)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "upsert financials", err)
	}
	return s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for lineItem, value := range items {
			q := `INSERT INTO ` + table + ` (symbol, period_end, line_item, value) VALUES (?, ?, ?, ?)
				ON CONFLICT(symbol, period_end, line_item) DO UPDATE SET value=excluded.value`
			if _, err := tx.ExecContext(ctx, q, symbol, periodEnd, lineItem, value.String()); err != nil {
				return classify("upsert financial line item", err)
			}
		}
		return nil
	})
}

func financialsTable(t domain.StatementType) (string, error) {
	switch t {
	case domain.IncomeStatement:
		return "income_statement", nil
	case domain.BalanceSheet:
		return "balance_sheet", nil
	case domain.CashFlow:
		return "cash_flow", nil
	default:
		return "", apperr.New(apperr.Validation, "unknown statement type: "+string(t))
	}
}

// GetFinancials reads one statement type's most recent periods for symbol.
func (s *Store) GetFinancials(ctx context.Context, symbol string, statementType domain.StatementType, limit int) ([]domain.FinancialLineItem, error) {
	table, err := financialsTable(statementType)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "get financials", err)
	}
	q := `SELECT symbol, period_end, line_item, value FROM ` + table + `
		WHERE symbol = ? AND period_end IN (
			SELECT DISTINCT period_end FROM ` + table + ` WHERE symbol = ? ORDER BY period_end DESC LIMIT ?
		) ORDER BY period_end DESC, line_item ASC`
	var rows []struct {
		Symbol    string `db:"symbol"`
		PeriodEnd string `db:"period_end"`
		LineItem  string `db:"line_item"`
		Value     string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, symbol, symbol, limit); err != nil {
		return nil, classify("get financials", err)
	}
	out := make([]domain.FinancialLineItem, 0, len(rows))
	for _, r := range rows {
		v, err := decimal.NewFromString(r.Value)
		if err != nil {
			return nil, classify("decode financial value", err)
		}
		out = append(out, domain.FinancialLineItem{Symbol: r.Symbol, PeriodEnd: r.PeriodEnd, LineItem: r.LineItem, Value: v})
	}
	return out, nil
}

// GetLastFinancialsRefresh returns the most recent period_end stored across
// all three statement tables for symbol, used by the acquisition policy's
// fundamentals-freshness check.
func (s *Store) GetLastFinancialsRefresh(ctx context.Context, symbol string) (*string, error) {
	var latest sql.NullString
	err := s.db.GetContext(ctx, &latest, `
		SELECT MAX(period_end) FROM (
			SELECT period_end FROM income_statement WHERE symbol = ?
			UNION ALL
			SELECT period_end FROM balance_sheet WHERE symbol = ?
			UNION ALL
			SELECT period_end FROM cash_flow WHERE symbol = ?
		)`, symbol, symbol, symbol)
	if err != nil {
		return nil, classify("get last financials refresh", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	v := latest.String
	return &v, nil
}
