package storage

// schema is applied with CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS so Open is idempotent, the same way the teacher's migrations are
// additive SQL files applied before tests run (repo_test.go's setupDB).
const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stocks (
	symbol TEXT PRIMARY KEY,
	company_name TEXT NOT NULL DEFAULT '',
	sector TEXT NOT NULL DEFAULT '',
	industry TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stock_prices (
	symbol TEXT NOT NULL,
	date TEXT NOT NULL,
	open TEXT NOT NULL,
	high TEXT NOT NULL,
	low TEXT NOT NULL,
	close TEXT NOT NULL,
	adj_close TEXT NOT NULL,
	volume INTEGER NOT NULL,
	PRIMARY KEY (symbol, date)
);
CREATE INDEX IF NOT EXISTS idx_stock_prices_symbol_date ON stock_prices(symbol, date);

CREATE TABLE IF NOT EXISTS income_statement (
	symbol TEXT NOT NULL,
	period_end TEXT NOT NULL,
	line_item TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (symbol, period_end, line_item)
);
CREATE TABLE IF NOT EXISTS balance_sheet (
	symbol TEXT NOT NULL,
	period_end TEXT NOT NULL,
	line_item TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (symbol, period_end, line_item)
);
CREATE TABLE IF NOT EXISTS cash_flow (
	symbol TEXT NOT NULL,
	period_end TEXT NOT NULL,
	line_item TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (symbol, period_end, line_item)
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	kind TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	commission TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	external_id TEXT,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_txn_owner_external
	ON transactions(owner_id, external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_txn_owner_symbol ON transactions(owner_id, symbol);

CREATE TABLE IF NOT EXISTS position_lots (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	buy_transaction_id TEXT NOT NULL,
	original_quantity TEXT NOT NULL,
	remaining_quantity TEXT NOT NULL,
	cost_basis_per_share TEXT NOT NULL,
	purchase_date TEXT NOT NULL,
	is_closed INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_lots_owner_symbol_date ON position_lots(owner_id, symbol, purchase_date);
CREATE INDEX IF NOT EXISTS idx_lots_owner_symbol_closed ON position_lots(owner_id, symbol, is_closed);

CREATE TABLE IF NOT EXISTS sale_allocations (
	id TEXT PRIMARY KEY,
	sell_transaction_id TEXT NOT NULL,
	lot_id TEXT NOT NULL,
	quantity_sold TEXT NOT NULL,
	cost_basis_per_share TEXT NOT NULL,
	sale_price_per_share TEXT NOT NULL,
	realized_pnl TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_allocations_sell_txn ON sale_allocations(sell_transaction_id);
CREATE INDEX IF NOT EXISTS idx_allocations_lot ON sale_allocations(lot_id);

CREATE TABLE IF NOT EXISTS daily_pnl (
	owner_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	valuation_date TEXT NOT NULL,
	quantity TEXT NOT NULL,
	weighted_avg_cost TEXT NOT NULL,
	market_price TEXT NOT NULL,
	market_value TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	realized_pnl_day TEXT NOT NULL,
	total_cost TEXT NOT NULL,
	is_stale_price INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (owner_id, symbol, valuation_date)
);
`
