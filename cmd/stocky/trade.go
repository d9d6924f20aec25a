package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
	"github.com/solankidhruvraj/stocky-ledger/internal/costbasis"
	"github.com/solankidhruvraj/stocky-ledger/internal/ledger"
)

type tradeBuyCmd struct {
	app        *app
	owner      string
	symbol     string
	quantity   string
	price      string
	date       string
	commission string
	externalID string
}

func (*tradeBuyCmd) Name() string     { return "buy" }
func (*tradeBuyCmd) Synopsis() string { return "record a buy transaction and open a new lot" }
func (*tradeBuyCmd) Usage() string {
	return "trade buy --owner OWNER -s SYMBOL -q QTY -p PRICE -d DATE [--commission C] [--external-id ID]\n"
}
func (c *tradeBuyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "owner id")
	f.StringVar(&c.symbol, "s", "", "symbol")
	f.StringVar(&c.quantity, "q", "", "quantity")
	f.StringVar(&c.price, "p", "", "price per share")
	f.StringVar(&c.date, "d", "", "transaction date (YYYY-MM-DD)")
	f.StringVar(&c.commission, "commission", "0", "commission")
	f.StringVar(&c.externalID, "external-id", "", "idempotency key")
}

func (c *tradeBuyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	qty, err := decimal.NewFromString(c.quantity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid quantity: %v\n", err)
		return subcommands.ExitUsageError
	}
	price, err := decimal.NewFromString(c.price)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid price: %v\n", err)
		return subcommands.ExitUsageError
	}
	commission, err := decimal.NewFromString(c.commission)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid commission: %v\n", err)
		return subcommands.ExitUsageError
	}
	if c.owner == "" || c.symbol == "" || c.date == "" {
		fmt.Fprintln(os.Stderr, "trade buy: --owner, -s, -d are required")
		return subcommands.ExitUsageError
	}

	var externalID *string
	if c.externalID != "" {
		externalID = &c.externalID
	}

	txn, lot, err := c.app.ledger.RecordBuy(ctx, ledger.BuyRequest{
		OwnerID: c.owner, Symbol: c.symbol, Quantity: qty, Price: price,
		Commission: commission, TransactionDate: c.date, ExternalID: externalID,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitForError(err)
	}
	fmt.Printf("buy recorded: transaction=%s lot=%s cost_basis_per_share=%s\n", txn.ID, lot.ID, lot.CostBasisPerShare)
	return subcommands.ExitSuccess
}

type tradeSellCmd struct {
	app           *app
	owner         string
	symbol        string
	quantity      string
	price         string
	date          string
	commission    string
	externalID    string
	basis         string
	specificLots  string
}

func (*tradeSellCmd) Name() string     { return "sell" }
func (*tradeSellCmd) Synopsis() string { return "record a sell transaction against open lots" }
func (*tradeSellCmd) Usage() string {
	return "trade sell --owner OWNER -s SYMBOL -q QTY -p PRICE -d DATE --basis fifo|lifo|specific|average [--specific-lots lot=<id>:<qty>,...]\n"
}
func (c *tradeSellCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "owner id")
	f.StringVar(&c.symbol, "s", "", "symbol")
	f.StringVar(&c.quantity, "q", "", "quantity")
	f.StringVar(&c.price, "p", "", "price per share")
	f.StringVar(&c.date, "d", "", "transaction date (YYYY-MM-DD)")
	f.StringVar(&c.commission, "commission", "0", "commission")
	f.StringVar(&c.externalID, "external-id", "", "idempotency key")
	f.StringVar(&c.basis, "basis", "fifo", "cost basis method: fifo|lifo|specific|average")
	f.StringVar(&c.specificLots, "specific-lots", "", "comma-separated lot=<id>:<qty> pairs, required when --basis=specific")
}

func (c *tradeSellCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	qty, err := decimal.NewFromString(c.quantity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid quantity: %v\n", err)
		return subcommands.ExitUsageError
	}
	price, err := decimal.NewFromString(c.price)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid price: %v\n", err)
		return subcommands.ExitUsageError
	}
	commission, err := decimal.NewFromString(c.commission)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid commission: %v\n", err)
		return subcommands.ExitUsageError
	}
	method, err := parseBasis(c.basis)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	var lotQuantities map[string]decimal.Decimal
	if method == costbasis.SpecificLot {
		lotQuantities, err = parseSpecificLots(c.specificLots)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}

	var externalID *string
	if c.externalID != "" {
		externalID = &c.externalID
	}

	result, err := c.app.ledger.RecordSell(ctx, ledger.SellRequest{
		OwnerID: c.owner, Symbol: c.symbol, Quantity: qty, Price: price,
		Commission: commission, TransactionDate: c.date, ExternalID: externalID,
		Method: method, LotQuantities: lotQuantities,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitForError(err)
	}
	fmt.Printf("sell recorded: transaction=%s realized_pnl=%s allocations=%d\n", result.Transaction.ID, result.RealizedPnL, len(result.Allocations))
	for _, a := range result.Allocations {
		fmt.Printf("  lot=%s qty=%s pnl=%s\n", a.LotID, a.QuantitySold, a.RealizedPnL)
	}
	return subcommands.ExitSuccess
}

// parseSpecificLots parses the comma-separated lot=<id>:<qty> syntax,
// rejecting malformed entries per spec's CLI contract.
func parseSpecificLots(raw string) (map[string]decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("--specific-lots is required when --basis=specific")
	}
	out := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.HasPrefix(pair, "lot=") {
			return nil, fmt.Errorf("malformed specific-lot entry %q: expected lot=<id>:<qty>", pair)
		}
		rest := strings.TrimPrefix(pair, "lot=")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed specific-lot entry %q: expected lot=<id>:<qty>", pair)
		}
		qty, err := decimal.NewFromString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("malformed specific-lot quantity in %q: %w", pair, err)
		}
		out[parts[0]] = qty
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("--specific-lots parsed to zero entries")
	}
	return out, nil
}

type tradePositionsCmd struct {
	app   *app
	owner string
}

func (*tradePositionsCmd) Name() string     { return "positions" }
func (*tradePositionsCmd) Synopsis() string { return "list aggregated open positions for an owner" }
func (*tradePositionsCmd) Usage() string    { return "trade positions --owner OWNER\n" }
func (c *tradePositionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "owner id")
}
func (c *tradePositionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" {
		fmt.Fprintln(os.Stderr, "trade positions: --owner is required")
		return subcommands.ExitUsageError
	}
	symbols, err := c.app.store.GetActiveSymbols(ctx, c.owner)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	for _, symbol := range symbols {
		summary, err := c.app.ledger.GetPositionSummary(ctx, c.owner, symbol)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s qty=%s weighted_avg_cost=%s total_cost=%s lots=%d first_buy=%s\n",
			summary.Symbol, summary.Quantity, summary.WeightedAvgCost, summary.TotalCost, summary.LotCount, summary.FirstBuyDate)
	}
	return subcommands.ExitSuccess
}

type tradeLotsCmd struct {
	app        *app
	owner      string
	symbol     string
	pageSize   int
	pageOffset int
}

func (*tradeLotsCmd) Name() string     { return "lots" }
func (*tradeLotsCmd) Synopsis() string { return "list open lots for a symbol" }
func (*tradeLotsCmd) Usage() string {
	return "trade lots --owner OWNER -s SYMBOL [--page-size N --page-offset N]\n"
}
func (c *tradeLotsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "owner id")
	f.StringVar(&c.symbol, "s", "", "symbol")
	f.IntVar(&c.pageSize, "page-size", 0, "page size; 0 lists every open lot")
	f.IntVar(&c.pageOffset, "page-offset", 0, "page offset, in lots, used with --page-size")
}
func (c *tradeLotsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" || c.symbol == "" {
		fmt.Fprintln(os.Stderr, "trade lots: --owner and -s are required")
		return subcommands.ExitUsageError
	}

	if c.pageSize > 0 {
		lots, total, err := c.app.ledger.GetOpenLotsPage(ctx, c.owner, c.symbol, c.pageSize, c.pageOffset)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		for _, lot := range lots {
			fmt.Printf("%s purchased=%s remaining=%s/%s cost_basis=%s closed=%v\n",
				lot.ID, lot.PurchaseDate, lot.RemainingQuantity, lot.OriginalQuantity, lot.CostBasisPerShare, lot.IsClosed)
		}
		fmt.Printf("-- showing %d of %d lots (offset %d) --\n", len(lots), total, c.pageOffset)
		return subcommands.ExitSuccess
	}

	lots, err := c.app.ledger.GetOpenLots(ctx, c.owner, c.symbol)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	for _, lot := range lots {
		fmt.Printf("%s purchased=%s remaining=%s/%s cost_basis=%s closed=%v\n",
			lot.ID, lot.PurchaseDate, lot.RemainingQuantity, lot.OriginalQuantity, lot.CostBasisPerShare, lot.IsClosed)
	}
	return subcommands.ExitSuccess
}

type tradeSalesCmd struct {
	app    *app
	owner  string
	symbol string
}

func (*tradeSalesCmd) Name() string     { return "sales" }
func (*tradeSalesCmd) Synopsis() string { return "list sale allocations for a symbol" }
func (*tradeSalesCmd) Usage() string    { return "trade sales --owner OWNER -s SYMBOL\n" }
func (c *tradeSalesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "owner id")
	f.StringVar(&c.symbol, "s", "", "symbol")
}
func (c *tradeSalesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" || c.symbol == "" {
		fmt.Fprintln(os.Stderr, "trade sales: --owner and -s are required")
		return subcommands.ExitUsageError
	}
	allocs, err := c.app.ledger.GetAllocationsForSymbol(ctx, c.owner, c.symbol)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	for _, a := range allocs {
		fmt.Printf("%s lot=%s qty=%s cost_basis=%s sale_price=%s realized_pnl=%s\n",
			a.ID, a.LotID, a.QuantitySold, a.CostBasisPerShare, a.SalePricePerShare, a.RealizedPnL)
	}
	return subcommands.ExitSuccess
}

type tradeCalculatePnLCmd struct {
	app   *app
	owner string
	date  string
}

func (*tradeCalculatePnLCmd) Name() string     { return "calculate-pnl" }
func (*tradeCalculatePnLCmd) Synopsis() string { return "compute and persist daily pnl for every open position" }
func (*tradeCalculatePnLCmd) Usage() string    { return "trade calculate-pnl --owner OWNER --date DATE\n" }
func (c *tradeCalculatePnLCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "owner id")
	f.StringVar(&c.date, "date", "", "valuation date (YYYY-MM-DD)")
}
func (c *tradeCalculatePnLCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" || c.date == "" {
		fmt.Fprintln(os.Stderr, "trade calculate-pnl: --owner and --date are required")
		return subcommands.ExitUsageError
	}
	results, err := c.app.pnl.BatchCalculateDailyPnL(ctx, c.owner, c.date)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	anyFailed := false
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Symbol, r.Err)
			anyFailed = true
			continue
		}
		fmt.Printf("%s unrealized=%s realized_day=%s market_value=%s stale=%v\n",
			r.Symbol, r.Row.UnrealizedPnL, r.Row.RealizedPnLDay, r.Row.MarketValue, r.Row.IsStalePrice)
	}
	if anyFailed {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type tradeBatchCalculateCmd struct {
	app             *app
	owner           string
	start           string
	end             string
	onlyTradingDays bool
}

func (*tradeBatchCalculateCmd) Name() string { return "batch-calculate" }
func (*tradeBatchCalculateCmd) Synopsis() string {
	return "compute and persist daily pnl across a date range"
}
func (*tradeBatchCalculateCmd) Usage() string {
	return "trade batch-calculate --owner OWNER --start DATE --end DATE [--only-trading-days]\n"
}
func (c *tradeBatchCalculateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "owner id")
	f.StringVar(&c.start, "start", "", "range start (YYYY-MM-DD)")
	f.StringVar(&c.end, "end", "", "range end (YYYY-MM-DD)")
	f.BoolVar(&c.onlyTradingDays, "only-trading-days", false, "skip weekends")
}
func (c *tradeBatchCalculateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" || c.start == "" || c.end == "" {
		fmt.Fprintln(os.Stderr, "trade batch-calculate: --owner, --start, --end are required")
		return subcommands.ExitUsageError
	}
	start, err := time.Parse("2006-01-02", c.start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --start: %v\n", err)
		return subcommands.ExitUsageError
	}
	end, err := time.Parse("2006-01-02", c.end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --end: %v\n", err)
		return subcommands.ExitUsageError
	}

	anyFailed := false
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.onlyTradingDays && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}
		results, err := c.app.pnl.BatchCalculateDailyPnL(ctx, c.owner, d.Format("2006-01-02"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", d.Format("2006-01-02"), r.Symbol, r.Err)
				anyFailed = true
				continue
			}
			count++
		}
	}
	fmt.Printf("batch-calculate: %d rows upserted\n", count)
	if anyFailed {
		return 2
	}
	return subcommands.ExitSuccess
}

// exitForError maps a ledger/storage failure category to an exit status,
// the CLI-level counterpart of the Failure Taxonomy's typed errors.
func exitForError(err error) subcommands.ExitStatus {
	cat, _ := apperr.CategoryOf(err)
	switch cat {
	case apperr.Validation, apperr.InsufficientShares, apperr.Duplicate:
		return subcommands.ExitUsageError
	default:
		return subcommands.ExitFailure
	}
}
