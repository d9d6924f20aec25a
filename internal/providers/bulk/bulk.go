// Package bulk is the bulk historical price provider used for a symbol's
// first download, grounded on original_source/'s stooq_downloader.py: a
// plain HTTP GET against Stooq's CSV export endpoint, retried with
// exponential backoff on transport errors and on the status codes
// classify_error treats as retryable (429, 5xx), the way
// _retry_with_backoff distinguishes transient failures from fatal ones.
package bulk

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
)

const stooqURL = "https://stooq.com/q/d/l/?s=%s.us&i=d"

// Provider downloads full historical daily bars for a symbol.
type Provider struct {
	client     *http.Client
	log        *logrus.Logger
	maxRetries int
	baseDelay  time.Duration
}

func New(log *logrus.Logger, maxRetries int, baseDelay time.Duration) *Provider {
	return &Provider{
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        log,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// FetchHistory downloads every bar Stooq has for symbol from startDate
// (inclusive, "YYYY-MM-DD") onward, filtering to rows at or after
// startDate since Stooq's export endpoint does not take a start-date
// parameter.
func (p *Provider) FetchHistory(ctx context.Context, symbol, startDate string) ([]domain.StockPrice, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		rows, err := p.fetchOnce(ctx, symbol)
		if err == nil {
			return filterFrom(rows, startDate), nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == p.maxRetries-1 {
			break
		}
		wait := p.baseDelay * time.Duration(1<<uint(attempt))
		p.log.WithError(err).WithField("symbol", symbol).WithField("attempt", attempt+1).Warn("bulk download failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	if _, ok := apperr.CategoryOf(lastErr); ok {
		return nil, lastErr
	}
	return nil, apperr.Wrap(apperr.ProviderError, "bulk download failed for "+symbol, lastErr)
}

// isRetryable classifies a fetchOnce error per classify_error's
// {retryable, fatal, no_data} taxonomy: a NoPrice error is a definitive
// no_data result and never retried; ProviderUnavailable marks a transport
// failure or a 429/5xx response and is retried; anything else (a fatal 4xx,
// or a CSV schema mismatch) is fatal and returned immediately.
func isRetryable(err error) bool {
	return apperr.Is(err, apperr.ProviderUnavailable)
}

func filterFrom(rows []domain.StockPrice, startDate string) []domain.StockPrice {
	if startDate == "" {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if r.Date >= startDate {
			out = append(out, r)
		}
	}
	return out
}

func (p *Provider) fetchOnce(ctx context.Context, symbol string) ([]domain.StockPrice, error) {
	url := fmt.Sprintf(stooqURL, strings.ToLower(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderError, "build request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "connection error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apperr.New(apperr.ProviderUnavailable, fmt.Sprintf("retryable status %d from stooq", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.ProviderError, fmt.Sprintf("fatal status %d from stooq", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "read body", err)
	}
	if strings.TrimSpace(string(body)) == "No data" {
		return nil, apperr.New(apperr.NoPrice, "no data available from bulk provider for "+symbol)
	}

	return parseCSV(symbol, body)
}

func parseCSV(symbol string, body []byte) ([]domain.StockPrice, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderError, "parse csv (schema mismatch)", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	out := make([]domain.StockPrice, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 6 {
			continue
		}
		open, err1 := decimal.NewFromString(rec[1])
		high, err2 := decimal.NewFromString(rec[2])
		low, err3 := decimal.NewFromString(rec[3])
		closeP, err4 := decimal.NewFromString(rec[4])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		volume, _ := strconv.ParseInt(rec[5], 10, 64)

		out = append(out, domain.StockPrice{
			Symbol: symbol, Date: rec[0],
			Open: open, High: high, Low: low, Close: closeP,
			AdjClose: closeP, Volume: volume,
		})
	}
	return out, nil
}
