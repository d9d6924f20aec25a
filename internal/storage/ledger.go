package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
)

// LotOrder selects how GetOpenLots sorts the returned lots: by purchase
// date (ties by id) ascending or descending. The ledger asks for
// PurchaseDateAsc and the cost-basis matchers apply their own ordering;
// there is no insertion-order option.
type LotOrder int

const (
	PurchaseDateAsc LotOrder = iota
	PurchaseDateDesc
)

// InsertTransaction inserts txn, rejecting a duplicate (owner_id,
// external_id) with apperr.Duplicate so the ledger can return the existing
// record idempotently rather than erroring, per spec.md's Failure Taxonomy.
func (s *Store) InsertTransaction(ctx context.Context, tx *sqlx.Tx, txn domain.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, symbol, kind, quantity, price, commission, transaction_date, external_id, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.OwnerID, txn.Symbol, string(txn.Kind), txn.Quantity.String(), txn.Price.String(),
		txn.Commission.String(), txn.TransactionDate, txn.ExternalID, txn.Notes)
	if err != nil {
		if isConstraintViolation(err) {
			return apperr.Wrap(apperr.Duplicate, "duplicate external_id", err)
		}
		return classify("insert transaction", err)
	}
	return nil
}

// FindTransactionByExternalID looks up an existing transaction by (owner,
// external_id), used to make record_buy/record_sell idempotent on replay.
func (s *Store) FindTransactionByExternalID(ctx context.Context, ownerID, externalID string) (*domain.Transaction, error) {
	var raw rawTransaction
	err := s.db.GetContext(ctx, &raw, `
		SELECT id, owner_id, symbol, kind, quantity, price, commission, transaction_date, external_id, notes, created_at
		FROM transactions WHERE owner_id = ? AND external_id = ?`, ownerID, externalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, classify("find transaction by external id", err)
	}
	t, err := raw.toDomain()
	if err != nil {
		return nil, classify("decode transaction", err)
	}
	return &t, nil
}

// FindTransactionByID looks up a transaction by primary key, used by the
// PnL calculator to recover a sell's transaction_date from an allocation.
func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var raw rawTransaction
	err := s.db.GetContext(ctx, &raw, `
		SELECT id, owner_id, symbol, kind, quantity, price, commission, transaction_date, external_id, notes, created_at
		FROM transactions WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, classify("find transaction by id", err)
	}
	t, err := raw.toDomain()
	if err != nil {
		return nil, classify("decode transaction", err)
	}
	return &t, nil
}

type rawTransaction struct {
	ID              string         `db:"id"`
	OwnerID         string         `db:"owner_id"`
	Symbol          string         `db:"symbol"`
	Kind            string         `db:"kind"`
	Quantity        string         `db:"quantity"`
	Price           string         `db:"price"`
	Commission      string         `db:"commission"`
	TransactionDate string         `db:"transaction_date"`
	ExternalID      sql.NullString `db:"external_id"`
	Notes           string         `db:"notes"`
	CreatedAt       sql.NullTime   `db:"created_at"`
}

func (r rawTransaction) toDomain() (domain.Transaction, error) {
	q, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return domain.Transaction{}, err
	}
	p, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.Transaction{}, err
	}
	c, err := decimal.NewFromString(r.Commission)
	if err != nil {
		return domain.Transaction{}, err
	}
	t := domain.Transaction{
		ID: r.ID, OwnerID: r.OwnerID, Symbol: r.Symbol, Kind: domain.TransactionKind(r.Kind),
		Quantity: q, Price: p, Commission: c, TransactionDate: r.TransactionDate, Notes: r.Notes,
	}
	if r.ExternalID.Valid {
		v := r.ExternalID.String
		t.ExternalID = &v
	}
	if r.CreatedAt.Valid {
		t.CreatedAt = r.CreatedAt.Time
	}
	return t, nil
}

// InsertLot creates a new position lot, called exclusively by a BUY.
func (s *Store) InsertLot(ctx context.Context, tx *sqlx.Tx, lot domain.PositionLot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO position_lots (id, owner_id, symbol, buy_transaction_id, original_quantity, remaining_quantity, cost_basis_per_share, purchase_date, is_closed, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID, lot.OwnerID, lot.Symbol, lot.BuyTransactionID, lot.OriginalQuantity.String(),
		lot.RemainingQuantity.String(), lot.CostBasisPerShare.String(), lot.PurchaseDate, boolToInt(lot.IsClosed), lot.Notes)
	if err != nil {
		return classify("insert lot", err)
	}
	return nil
}

// UpdateLotRemaining mutates a lot's remaining_quantity and is_closed flag;
// only ever called from within the same transaction that recorded the SELL
// allocating against it.
func (s *Store) UpdateLotRemaining(ctx context.Context, tx *sqlx.Tx, lotID string, newRemaining decimal.Decimal, isClosed bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE position_lots SET remaining_quantity = ?, is_closed = ? WHERE id = ?`,
		newRemaining.String(), boolToInt(isClosed), lotID)
	if err != nil {
		return classify("update lot remaining", err)
	}
	return nil
}

// InsertAllocation appends a sale allocation row.
func (s *Store) InsertAllocation(ctx context.Context, tx *sqlx.Tx, alloc domain.SaleAllocation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sale_allocations (id, sell_transaction_id, lot_id, quantity_sold, cost_basis_per_share, sale_price_per_share, realized_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alloc.ID, alloc.SellTransactionID, alloc.LotID, alloc.QuantitySold.String(),
		alloc.CostBasisPerShare.String(), alloc.SalePricePerShare.String(), alloc.RealizedPnL.String())
	if err != nil {
		return classify("insert allocation", err)
	}
	return nil
}

// GetOpenLots returns lots with remaining > 0 for (owner, symbol), ordered
// per order.
func (s *Store) GetOpenLots(ctx context.Context, ownerID, symbol string, order LotOrder) ([]domain.PositionLot, error) {
	dir := "ASC"
	if order == PurchaseDateDesc {
		dir = "DESC"
	}
	q := `SELECT id, owner_id, symbol, buy_transaction_id, original_quantity, remaining_quantity, cost_basis_per_share, purchase_date, is_closed, notes
		FROM position_lots WHERE owner_id = ? AND symbol = ? AND remaining_quantity != '0'
		ORDER BY purchase_date ` + dir + `, id ` + dir
	var rows []rawLot
	if err := s.db.SelectContext(ctx, &rows, q, ownerID, symbol); err != nil {
		return nil, classify("get open lots", err)
	}
	return decodeLots(rows)
}

// GetOpenLotsPage paginates open lots for owners with many positions,
// grounded on original_source/'s get_position_lots_paginated.
func (s *Store) GetOpenLotsPage(ctx context.Context, ownerID, symbol string, pageSize, pageOffset int) ([]domain.PositionLot, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM position_lots WHERE owner_id = ? AND symbol = ? AND remaining_quantity != '0'`,
		ownerID, symbol); err != nil {
		return nil, 0, classify("count open lots", err)
	}
	var rows []rawLot
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, symbol, buy_transaction_id, original_quantity, remaining_quantity, cost_basis_per_share, purchase_date, is_closed, notes
		FROM position_lots WHERE owner_id = ? AND symbol = ? AND remaining_quantity != '0'
		ORDER BY purchase_date ASC, id ASC LIMIT ? OFFSET ?`, ownerID, symbol, pageSize, pageOffset)
	if err != nil {
		return nil, 0, classify("get open lots page", err)
	}
	lots, err := decodeLots(rows)
	return lots, total, err
}

// GetAllLots returns every lot (open and closed) for (owner, symbol),
// ordered by purchase date ascending then id, used by the PnL calculator to
// replay allocations up to a valuation date.
func (s *Store) GetAllLots(ctx context.Context, ownerID, symbol string) ([]domain.PositionLot, error) {
	var rows []rawLot
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, symbol, buy_transaction_id, original_quantity, remaining_quantity, cost_basis_per_share, purchase_date, is_closed, notes
		FROM position_lots WHERE owner_id = ? AND symbol = ? ORDER BY purchase_date ASC, id ASC`, ownerID, symbol)
	if err != nil {
		return nil, classify("get all lots", err)
	}
	return decodeLots(rows)
}

type rawLot struct {
	ID                string `db:"id"`
	OwnerID           string `db:"owner_id"`
	Symbol            string `db:"symbol"`
	BuyTransactionID  string `db:"buy_transaction_id"`
	OriginalQuantity  string `db:"original_quantity"`
	RemainingQuantity string `db:"remaining_quantity"`
	CostBasisPerShare string `db:"cost_basis_per_share"`
	PurchaseDate      string `db:"purchase_date"`
	IsClosed          int    `db:"is_closed"`
	Notes             string `db:"notes"`
}

func decodeLots(rows []rawLot) ([]domain.PositionLot, error) {
	out := make([]domain.PositionLot, 0, len(rows))
	for _, r := range rows {
		orig, err := decimal.NewFromString(r.OriginalQuantity)
		if err != nil {
			return nil, err
		}
		rem, err := decimal.NewFromString(r.RemainingQuantity)
		if err != nil {
			return nil, err
		}
		cb, err := decimal.NewFromString(r.CostBasisPerShare)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PositionLot{
			ID: r.ID, OwnerID: r.OwnerID, Symbol: r.Symbol, BuyTransactionID: r.BuyTransactionID,
			OriginalQuantity: orig, RemainingQuantity: rem, CostBasisPerShare: cb,
			PurchaseDate: r.PurchaseDate, IsClosed: r.IsClosed != 0, Notes: r.Notes,
		})
	}
	return out, nil
}

// GetAllocationsForSymbol returns every sale allocation for (owner, symbol),
// joined through sell transactions, ordered by transaction date ascending.
func (s *Store) GetAllocationsForSymbol(ctx context.Context, ownerID, symbol string) ([]domain.SaleAllocation, error) {
	var rows []rawAllocation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.sell_transaction_id, a.lot_id, a.quantity_sold, a.cost_basis_per_share, a.sale_price_per_share, a.realized_pnl
		FROM sale_allocations a
		JOIN transactions t ON t.id = a.sell_transaction_id
		WHERE t.owner_id = ? AND t.symbol = ?
		ORDER BY t.transaction_date ASC, a.id ASC`, ownerID, symbol)
	if err != nil {
		return nil, classify("get allocations for symbol", err)
	}
	return decodeAllocations(rows)
}

// GetAllocationsForSellOnDate returns the sale allocations belonging to
// sell transactions of (owner, symbol) dated exactly date, used by
// compute_daily's realized_pnl_day aggregation.
func (s *Store) GetAllocationsForSellOnDate(ctx context.Context, ownerID, symbol, date string) ([]domain.SaleAllocation, error) {
	var rows []rawAllocation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.sell_transaction_id, a.lot_id, a.quantity_sold, a.cost_basis_per_share, a.sale_price_per_share, a.realized_pnl
		FROM sale_allocations a
		JOIN transactions t ON t.id = a.sell_transaction_id
		WHERE t.owner_id = ? AND t.symbol = ? AND t.transaction_date = ?`, ownerID, symbol, date)
	if err != nil {
		return nil, classify("get allocations for sell on date", err)
	}
	return decodeAllocations(rows)
}

// GetAllocationsForSell returns the allocation ledger entries for one sell
// transaction, used by record_sell to return an already-recorded sell when
// its external_id is replayed.
func (s *Store) GetAllocationsForSell(ctx context.Context, sellTransactionID string) ([]domain.SaleAllocation, error) {
	var rows []rawAllocation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, sell_transaction_id, lot_id, quantity_sold, cost_basis_per_share, sale_price_per_share, realized_pnl
		FROM sale_allocations WHERE sell_transaction_id = ? ORDER BY id ASC`, sellTransactionID)
	if err != nil {
		return nil, classify("get allocations for sell", err)
	}
	return decodeAllocations(rows)
}

type rawAllocation struct {
	ID                string `db:"id"`
	SellTransactionID string `db:"sell_transaction_id"`
	LotID             string `db:"lot_id"`
	QuantitySold      string `db:"quantity_sold"`
	CostBasisPerShare string `db:"cost_basis_per_share"`
	SalePricePerShare string `db:"sale_price_per_share"`
	RealizedPnL       string `db:"realized_pnl"`
}

func decodeAllocations(rows []rawAllocation) ([]domain.SaleAllocation, error) {
	out := make([]domain.SaleAllocation, 0, len(rows))
	for _, r := range rows {
		qty, err := decimal.NewFromString(r.QuantitySold)
		if err != nil {
			return nil, err
		}
		cb, err := decimal.NewFromString(r.CostBasisPerShare)
		if err != nil {
			return nil, err
		}
		sp, err := decimal.NewFromString(r.SalePricePerShare)
		if err != nil {
			return nil, err
		}
		pnl, err := decimal.NewFromString(r.RealizedPnL)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SaleAllocation{
			ID: r.ID, SellTransactionID: r.SellTransactionID, LotID: r.LotID,
			QuantitySold: qty, CostBasisPerShare: cb, SalePricePerShare: sp, RealizedPnL: pnl,
		})
	}
	return out, nil
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx, letting the daily_pnl
// writers run either standalone or inside a caller's transaction (the Lot
// Ledger upserts a placeholder row in the same transaction as a SELL).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// queryer is the read-side counterpart of execer.
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// UpsertDailyPnL writes the (owner, symbol, valuation_date) row, replacing
// any existing row for that key whatever its date.
func (s *Store) UpsertDailyPnL(ctx context.Context, row domain.DailyPnL) error {
	return upsertDailyPnL(ctx, s.db, row)
}

// UpsertDailyPnLTx is UpsertDailyPnL scoped to an open transaction, used by
// record_sell to write its placeholder row atomically with the sell.
func (s *Store) UpsertDailyPnLTx(ctx context.Context, tx *sqlx.Tx, row domain.DailyPnL) error {
	return upsertDailyPnL(ctx, tx, row)
}

func upsertDailyPnL(ctx context.Context, ex execer, row domain.DailyPnL) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO daily_pnl (owner_id, symbol, valuation_date, quantity, weighted_avg_cost, market_price, market_value, unrealized_pnl, realized_pnl_day, total_cost, is_stale_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, symbol, valuation_date) DO UPDATE SET
			quantity=excluded.quantity, weighted_avg_cost=excluded.weighted_avg_cost,
			market_price=excluded.market_price, market_value=excluded.market_value,
			unrealized_pnl=excluded.unrealized_pnl, realized_pnl_day=excluded.realized_pnl_day,
			total_cost=excluded.total_cost, is_stale_price=excluded.is_stale_price`,
		row.OwnerID, row.Symbol, row.ValuationDate, row.Quantity.String(), row.WeightedAvgCost.String(),
		row.MarketPrice.String(), row.MarketValue.String(), row.UnrealizedPnL.String(),
		row.RealizedPnLDay.String(), row.TotalCost.String(), boolToInt(row.IsStalePrice))
	if err != nil {
		return classify("upsert daily pnl", err)
	}
	return nil
}

// GetDailyPnL reads the (owner, symbol, date) row if present.
func (s *Store) GetDailyPnL(ctx context.Context, ownerID, symbol, date string) (*domain.DailyPnL, error) {
	return getDailyPnL(ctx, s.db, ownerID, symbol, date)
}

// GetDailyPnLTx is GetDailyPnL scoped to an open transaction.
func (s *Store) GetDailyPnLTx(ctx context.Context, tx *sqlx.Tx, ownerID, symbol, date string) (*domain.DailyPnL, error) {
	return getDailyPnL(ctx, tx, ownerID, symbol, date)
}

func getDailyPnL(ctx context.Context, q queryer, ownerID, symbol, date string) (*domain.DailyPnL, error) {
	var raw rawDailyPnL
	err := q.GetContext(ctx, &raw, `
		SELECT owner_id, symbol, valuation_date, quantity, weighted_avg_cost, market_price, market_value, unrealized_pnl, realized_pnl_day, total_cost, is_stale_price
		FROM daily_pnl WHERE owner_id = ? AND symbol = ? AND valuation_date = ?`, ownerID, symbol, date)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, classify("get daily pnl", err)
	}
	d, err := raw.toDomain()
	if err != nil {
		return nil, classify("decode daily pnl", err)
	}
	return &d, nil
}

type rawDailyPnL struct {
	OwnerID         string `db:"owner_id"`
	Symbol          string `db:"symbol"`
	ValuationDate   string `db:"valuation_date"`
	Quantity        string `db:"quantity"`
	WeightedAvgCost string `db:"weighted_avg_cost"`
	MarketPrice     string `db:"market_price"`
	MarketValue     string `db:"market_value"`
	UnrealizedPnL   string `db:"unrealized_pnl"`
	RealizedPnLDay  string `db:"realized_pnl_day"`
	TotalCost       string `db:"total_cost"`
	IsStalePrice    int    `db:"is_stale_price"`
}

func (r rawDailyPnL) toDomain() (domain.DailyPnL, error) {
	qty, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return domain.DailyPnL{}, err
	}
	wac, err := decimal.NewFromString(r.WeightedAvgCost)
	if err != nil {
		return domain.DailyPnL{}, err
	}
	mp, err := decimal.NewFromString(r.MarketPrice)
	if err != nil {
		return domain.DailyPnL{}, err
	}
	mv, err := decimal.NewFromString(r.MarketValue)
	if err != nil {
		return domain.DailyPnL{}, err
	}
	up, err := decimal.NewFromString(r.UnrealizedPnL)
	if err != nil {
		return domain.DailyPnL{}, err
	}
	rp, err := decimal.NewFromString(r.RealizedPnLDay)
	if err != nil {
		return domain.DailyPnL{}, err
	}
	tc, err := decimal.NewFromString(r.TotalCost)
	if err != nil {
		return domain.DailyPnL{}, err
	}
	return domain.DailyPnL{
		OwnerID: r.OwnerID, Symbol: r.Symbol, ValuationDate: r.ValuationDate,
		Quantity: qty, WeightedAvgCost: wac, MarketPrice: mp, MarketValue: mv,
		UnrealizedPnL: up, RealizedPnLDay: rp, TotalCost: tc, IsStalePrice: r.IsStalePrice != 0,
	}, nil
}

// GetActiveSymbols returns every symbol with at least one open lot for
// owner.
func (s *Store) GetActiveSymbols(ctx context.Context, ownerID string) ([]string, error) {
	var symbols []string
	err := s.db.SelectContext(ctx, &symbols, `
		SELECT DISTINCT symbol FROM position_lots WHERE owner_id = ? AND remaining_quantity != '0' ORDER BY symbol`, ownerID)
	if err != nil {
		return nil, classify("get active symbols", err)
	}
	return symbols, nil
}

// GetAllSymbols returns every symbol known to the stocks table, used by
// batch acquisition.
func (s *Store) GetAllSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	if err := s.db.SelectContext(ctx, &symbols, `SELECT symbol FROM stocks ORDER BY symbol`); err != nil {
		return nil, classify("get all symbols", err)
	}
	return symbols, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
