package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type dataDownloadCmd struct {
	app            *app
	startDate      string
	financialOnly  bool
	comprehensive  bool
}

func (*dataDownloadCmd) Name() string     { return "download" }
func (*dataDownloadCmd) Synopsis() string { return "download price and fundamentals data for symbols" }
func (*dataDownloadCmd) Usage() string {
	return "data download [--comprehensive] [--financial-only] [--start-date YYYY-MM-DD] symbol [symbol...]\n"
}
func (c *dataDownloadCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.startDate, "start-date", "", "accepted but ignored; bulk downloads start from HISTORY_START_DEFAULT")
	f.BoolVar(&c.financialOnly, "financial-only", false, "include fundamentals refresh; prices are refreshed as well")
	f.BoolVar(&c.comprehensive, "comprehensive", false, "include fundamentals refresh alongside prices")
}

func (c *dataDownloadCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	symbols := f.Args()
	if len(symbols) == 0 {
		fmt.Fprintln(os.Stderr, "data download: at least one symbol required")
		return subcommands.ExitUsageError
	}

	anyFailed := false
	for _, symbol := range symbols {
		result := c.app.acquire.Refresh(ctx, symbol, c.comprehensive || c.financialOnly)
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", symbol, result.Err)
			anyFailed = true
			continue
		}
		fmt.Printf("%s: source=%s rows=%d fundamentals=%v\n", symbol, result.PriceSource, result.RowsWritten, result.FundamentalsDone)
	}
	if anyFailed {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type dataQueryCmd struct {
	app       *app
	startDate string
	endDate   string
	limit     int
}

func (*dataQueryCmd) Name() string     { return "query" }
func (*dataQueryCmd) Synopsis() string { return "list stored price rows for a symbol" }
func (*dataQueryCmd) Usage() string {
	return "data query [--start-date YYYY-MM-DD] [--end-date YYYY-MM-DD] [--limit N] symbol\n"
}
func (c *dataQueryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.startDate, "start-date", "", "range start (inclusive)")
	f.StringVar(&c.endDate, "end-date", "", "range end (inclusive)")
	f.IntVar(&c.limit, "limit", 0, "limit rows returned (0 = unlimited)")
}

func (c *dataQueryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "data query: exactly one symbol required")
		return subcommands.ExitUsageError
	}
	symbol := args[0]

	var start, end *string
	if c.startDate != "" {
		start = &c.startDate
	}
	if c.endDate != "" {
		end = &c.endDate
	}

	rows, err := c.app.store.GetPrices(ctx, symbol, start, end)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stderr, "data query: no rows for %s\n", symbol)
		return subcommands.ExitFailure
	}
	if c.limit > 0 && len(rows) > c.limit {
		rows = rows[len(rows)-c.limit:]
	}

	for _, r := range rows {
		fmt.Printf("%s %s open=%s high=%s low=%s close=%s adj_close=%s volume=%d\n",
			r.Symbol, r.Date, r.Open, r.High, r.Low, r.Close, r.AdjClose, r.Volume)
	}
	return subcommands.ExitSuccess
}
