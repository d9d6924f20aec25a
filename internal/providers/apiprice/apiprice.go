// Package apiprice is the incremental API price provider: it fetches a
// short trailing window of daily bars for one symbol at a time, grounded on
// aristath-sentinel's yahoo.NativeClient (ticker.New/t.History), wrapped in
// the exponential-backoff retry loop that client uses for GetCurrentPrice.
package apiprice

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
)

// Provider fetches recent daily bars through the go-yfinance ticker API.
type Provider struct {
	log        *logrus.Logger
	maxRetries int
	baseDelay  time.Duration
}

func New(log *logrus.Logger, maxRetries int, baseDelay time.Duration) *Provider {
	return &Provider{log: log, maxRetries: maxRetries, baseDelay: baseDelay}
}

// FetchRecent retrieves daily bars for symbol covering period (a
// go-yfinance period string like "1mo", "3mo", "1y"), retrying transient
// failures with exponential backoff the way NativeClient.GetCurrentPrice
// does.
func (p *Provider) FetchRecent(ctx context.Context, symbol, period string) ([]domain.StockPrice, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := p.fetchOnce(symbol, period)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if !apperr.Is(err, apperr.ProviderUnavailable) || attempt == p.maxRetries-1 {
			break
		}
		wait := time.Duration(1<<uint(attempt)) * p.baseDelay
		p.log.WithError(err).WithField("symbol", symbol).WithField("attempt", attempt+1).Warn("incremental fetch failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	if _, ok := apperr.CategoryOf(lastErr); ok {
		return nil, lastErr
	}
	return nil, apperr.Wrap(apperr.ProviderError, "incremental fetch failed after retries for "+symbol, lastErr)
}

// classifyFetchErr sorts a go-yfinance error into classify_error's
// {retryable, fatal, no_data} taxonomy. The client does not surface raw
// HTTP status codes, so this relies on net.Error timeout/temporary signals
// for transport failures and on the substrings go-yfinance and Yahoo's own
// API embed in their error text for rate limiting and missing symbols.
func classifyFetchErr(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && (netErr.Timeout() || netErr.Temporary()) {
		return apperr.Wrap(apperr.ProviderUnavailable, op, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no data"), strings.Contains(msg, "not found"), strings.Contains(msg, "no timestamp"):
		return apperr.Wrap(apperr.NoPrice, op, err)
	case strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"), strings.Contains(msg, "temporarily unavailable"),
		strings.Contains(msg, "503"), strings.Contains(msg, "502"), strings.Contains(msg, "500"):
		return apperr.Wrap(apperr.ProviderUnavailable, op, err)
	default:
		return apperr.Wrap(apperr.ProviderError, op, err)
	}
}

func (p *Provider) fetchOnce(symbol, period string) ([]domain.StockPrice, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, classifyFetchErr("create ticker", err)
	}
	defer t.Close()

	bars, err := t.History(models.HistoryParams{
		Period:     period,
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err != nil {
		return nil, classifyFetchErr("fetch history", err)
	}
	if len(bars) == 0 {
		return nil, apperr.New(apperr.NoPrice, "no bars returned for "+symbol)
	}

	out := make([]domain.StockPrice, 0, len(bars))
	for _, bar := range bars {
		out = append(out, domain.StockPrice{
			Symbol:   symbol,
			Date:     bar.Date.Format("2006-01-02"),
			Open:     decimal.NewFromFloat(bar.Open),
			High:     decimal.NewFromFloat(bar.High),
			Low:      decimal.NewFromFloat(bar.Low),
			Close:    decimal.NewFromFloat(bar.Close),
			AdjClose: decimal.NewFromFloat(bar.AdjClose),
			Volume:   int64(bar.Volume),
		})
	}
	return out, nil
}
