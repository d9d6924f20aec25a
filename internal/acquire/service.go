package acquire

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
	"github.com/solankidhruvraj/stocky-ledger/internal/config"
	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
	"github.com/solankidhruvraj/stocky-ledger/internal/providers/apiprice"
	"github.com/solankidhruvraj/stocky-ledger/internal/providers/bulk"
	"github.com/solankidhruvraj/stocky-ledger/internal/providers/fundamentals"
	"github.com/solankidhruvraj/stocky-ledger/internal/storage"
)

// DataService is the acquisition orchestrator (C4): per-symbol
// fetch-normalize-dedupe-persist, plus a bounded-concurrency batch entry
// point. It mirrors the teacher's CleanPriceService in holding a store and
// logger, generalized from a single synthetic-price loop into the full
// policy-driven pipeline.
type DataService struct {
	store        *storage.Store
	bulk         *bulk.Provider
	apiprice     *apiprice.Provider
	fundamentals *fundamentals.Provider
	policy       Policy
	log          *logrus.Logger
	historyStart string
	poolSize     int
}

func New(store *storage.Store, bulkP *bulk.Provider, apiP *apiprice.Provider, fundP *fundamentals.Provider, cfg *config.Config, log *logrus.Logger) *DataService {
	return &DataService{
		store:        store,
		bulk:         bulkP,
		apiprice:     apiP,
		fundamentals: fundP,
		policy: Policy{
			IncrementalThresholdDays: cfg.IncrementalThresholdDays,
			FinancialRefreshDays:     cfg.FinancialRefreshDays,
		},
		log:          log,
		historyStart: cfg.HistoryStartDefault,
		poolSize:     cfg.WorkerPoolSize,
	}
}

// SymbolResult reports what happened for one symbol during acquisition.
type SymbolResult struct {
	Symbol           string
	PriceSource      Decision
	RowsWritten      int
	FundamentalsDone bool
	Err              error
}

// Refresh fetches and persists price data (and fundamentals, if
// includeFinancials) for a single symbol, applying the bulk-vs-incremental
// policy and falling back to bulk when the incremental fetch fails — the
// same fallback hybrid_downloader.py's _download_with_yfinance error path
// exercises in reverse.
func (d *DataService) Refresh(ctx context.Context, symbol string, includeFinancials bool) SymbolResult {
	result := SymbolResult{Symbol: symbol}

	if err := d.store.EnsureStock(ctx, symbol, domain.Stock{Symbol: symbol}); err != nil {
		result.Err = err
		return result
	}

	lastDateStr, err := d.store.GetLastPriceDate(ctx, symbol)
	if err != nil {
		result.Err = err
		return result
	}
	var lastDate *time.Time
	if lastDateStr != nil {
		t, err := time.Parse("2006-01-02", *lastDateStr)
		if err == nil {
			lastDate = &t
		}
	}

	decision := d.policy.DecidePriceSource(lastDate, time.Now())
	result.PriceSource = decision

	var rows []domain.StockPrice
	switch decision {
	case DecisionBulk:
		rows, err = d.bulk.FetchHistory(ctx, symbol, d.historyStart)
	case DecisionIncremental:
		rows, err = d.apiprice.FetchRecent(ctx, symbol, "3mo")
		if err != nil {
			d.log.WithError(err).WithField("symbol", symbol).Warn("incremental fetch failed, falling back to bulk")
			rows, err = d.bulk.FetchHistory(ctx, symbol, d.historyStart)
			result.PriceSource = DecisionBulk
		}
	}
	if err != nil {
		result.Err = err
		return result
	}

	valid := validate(rows)
	written, err := d.store.UpsertPrices(ctx, symbol, valid)
	if err != nil {
		result.Err = err
		return result
	}
	result.RowsWritten = written

	if includeFinancials {
		lastRefreshStr, err := d.store.GetLastFinancialsRefresh(ctx, symbol)
		if err != nil {
			result.Err = err
			return result
		}
		var lastRefresh *time.Time
		if lastRefreshStr != nil {
			t, err := time.Parse("2006-01-02", *lastRefreshStr)
			if err == nil {
				lastRefresh = &t
			}
		}
		if d.policy.ShouldRefreshFundamentals(lastRefresh, time.Now()) {
			if err := d.refreshFundamentals(ctx, symbol); err != nil {
				result.Err = err
				return result
			}
			result.FundamentalsDone = true
		}
	}

	return result
}

func (d *DataService) refreshFundamentals(ctx context.Context, symbol string) error {
	meta, err := d.fundamentals.FetchMetadata(ctx, symbol)
	if err != nil {
		return apperr.Wrap(apperr.ProviderError, "fetch fundamentals metadata", err)
	}
	if err := d.store.RefreshStockMetadata(ctx, symbol, meta); err != nil {
		return err
	}

	ratios, err := d.fundamentals.FetchRatios(ctx, symbol)
	if err != nil {
		return apperr.Wrap(apperr.ProviderError, "fetch fundamentals ratios", err)
	}
	if len(ratios) == 0 {
		return nil
	}
	return d.store.UpsertFinancials(ctx, symbol, domain.IncomeStatement, time.Now().Format("2006-01-02"), ratios)
}

// validate drops rows that violate basic OHLC sanity (high < low, negative
// prices) per the normalize-and-validate step of the acquisition pipeline.
func validate(rows []domain.StockPrice) []domain.StockPrice {
	out := make([]domain.StockPrice, 0, len(rows))
	for _, r := range rows {
		if r.High.LessThan(r.Low) {
			continue
		}
		if r.Open.IsNegative() || r.Close.IsNegative() || r.High.IsNegative() || r.Low.IsNegative() {
			continue
		}
		if r.Volume < 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Batch refreshes every symbol concurrently, bounded by poolSize, the way
// the teacher's price updater loops over GetAllSymbols but generalized into
// a parallel errgroup, grounded on aristath-sentinel's worker-pool-style
// scheduler jobs. A single symbol's failure does not cancel the others.
func (d *DataService) Batch(ctx context.Context, symbols []string, includeFinancials bool) []SymbolResult {
	results := make([]SymbolResult, len(symbols))
	sem := make(chan struct{}, d.poolSize)
	g, ctx := errgroup.WithContext(ctx)

	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = SymbolResult{Symbol: symbol, Err: ctx.Err()}
				return nil
			}
			defer func() { <-sem }()

			results[i] = d.Refresh(ctx, symbol, includeFinancials)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
