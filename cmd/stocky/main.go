// Command stocky is the engine's CLI entrypoint, registering the data and
// trade subcommand groups with google/subcommands the way etnz-portfolio's
// cmd/main.go registers its "securities" and "transactions" groups.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/solankidhruvraj/stocky-ledger/internal/acquire"
	"github.com/solankidhruvraj/stocky-ledger/internal/config"
	"github.com/solankidhruvraj/stocky-ledger/internal/costbasis"
	"github.com/solankidhruvraj/stocky-ledger/internal/ledger"
	"github.com/solankidhruvraj/stocky-ledger/internal/pnl"
	"github.com/solankidhruvraj/stocky-ledger/internal/providers/apiprice"
	"github.com/solankidhruvraj/stocky-ledger/internal/providers/bulk"
	"github.com/solankidhruvraj/stocky-ledger/internal/providers/fundamentals"
	"github.com/solankidhruvraj/stocky-ledger/internal/storage"
)

// app bundles the engine's wired components, built once in main and handed
// to every subcommand, mirroring the teacher's pattern of passing a single
// *database.Repo into each handler constructor.
type app struct {
	store   *storage.Store
	ledger  *ledger.Ledger
	pnl     *pnl.Calculator
	acquire *acquire.DataService
	log     *logrus.Logger
}

func buildApp() (*app, error) {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := storage.Open(cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bulkProvider := bulk.New(log, cfg.MaxRetries, cfg.BaseDelay)
	apiProvider := apiprice.New(log, cfg.MaxRetries, cfg.BaseDelay)
	fundProvider := fundamentals.New(log)

	return &app{
		store:   store,
		ledger:  ledger.New(store, log),
		pnl:     pnl.New(store, log, cfg.MissingPriceStrategy, cfg.PriceSource),
		acquire: acquire.New(store, bulkProvider, apiProvider, fundProvider, cfg, log),
		log:     log,
	}, nil
}

func main() {
	a, err := buildApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.store.Close()

	cmdr := subcommands.NewCommander(flag.CommandLine, "stocky")
	cmdr.Register(cmdr.HelpCommand(), "")
	cmdr.Register(cmdr.FlagsCommand(), "")
	cmdr.Register(cmdr.CommandsCommand(), "")

	cmdr.Register(&dataDownloadCmd{app: a}, "data")
	cmdr.Register(&dataQueryCmd{app: a}, "data")
	cmdr.Register(&tradeBuyCmd{app: a}, "trade")
	cmdr.Register(&tradeSellCmd{app: a}, "trade")
	cmdr.Register(&tradePositionsCmd{app: a}, "trade")
	cmdr.Register(&tradeLotsCmd{app: a}, "trade")
	cmdr.Register(&tradeSalesCmd{app: a}, "trade")
	cmdr.Register(&tradeCalculatePnLCmd{app: a}, "trade")
	cmdr.Register(&tradeBatchCalculateCmd{app: a}, "trade")

	flag.Parse()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	os.Exit(int(cmdr.Execute(ctx)))
}

func parseBasis(s string) (costbasis.Method, error) {
	switch s {
	case "fifo", "":
		return costbasis.FIFO, nil
	case "lifo":
		return costbasis.LIFO, nil
	case "specific":
		return costbasis.SpecificLot, nil
	case "average":
		return costbasis.AverageCost, nil
	default:
		return "", fmt.Errorf("unknown basis method %q", s)
	}
}
