package pnl

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/solankidhruvraj/stocky-ledger/internal/config"
	"github.com/solankidhruvraj/stocky-ledger/internal/costbasis"
	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
	"github.com/solankidhruvraj/stocky-ledger/internal/ledger"
	"github.com/solankidhruvraj/stocky-ledger/internal/storage"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:", logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestComputeDaily_UnrealizedPnLFromOpenLots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	log := logrus.New()
	l := ledger.New(store, log)

	_, _, err := l.RecordBuy(ctx, ledger.BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("100"), Price: dec("150"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01",
	})
	require.NoError(t, err)

	_, err = store.UpsertPrices(ctx, "AAPL", []domain.StockPrice{
		{Symbol: "AAPL", Date: "2024-01-15", Open: dec("180"), High: dec("182"), Low: dec("179"), Close: dec("180"), AdjClose: dec("180"), Volume: 1000},
	})
	require.NoError(t, err)

	calc := New(store, log, config.MissingPriceBackfill, config.PriceSourceAdjClose)
	row, err := calc.ComputeDaily(ctx, "owner-1", "AAPL", "2024-01-15")
	require.NoError(t, err)

	require.True(t, row.Quantity.Equal(dec("100")))
	require.True(t, row.MarketValue.Equal(dec("18000")))
	require.True(t, row.UnrealizedPnL.Equal(dec("3000")))
	require.False(t, row.IsStalePrice)
}

func TestComputeDaily_BackfillUsesMostRecentPriorPrice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	log := logrus.New()
	l := ledger.New(store, log)

	_, _, err := l.RecordBuy(ctx, ledger.BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("10"), Price: dec("100"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01",
	})
	require.NoError(t, err)

	_, err = store.UpsertPrices(ctx, "AAPL", []domain.StockPrice{
		{Symbol: "AAPL", Date: "2024-01-10", Open: dec("110"), High: dec("111"), Low: dec("109"), Close: dec("110"), AdjClose: dec("110"), Volume: 500},
	})
	require.NoError(t, err)

	calc := New(store, log, config.MissingPriceBackfill, config.PriceSourceAdjClose)
	row, err := calc.ComputeDaily(ctx, "owner-1", "AAPL", "2024-01-20")
	require.NoError(t, err)
	require.True(t, row.IsStalePrice)
	require.True(t, row.MarketPrice.Equal(dec("110")))
}

func TestComputeDaily_StrictMissingPriceFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	log := logrus.New()
	l := ledger.New(store, log)

	_, _, err := l.RecordBuy(ctx, ledger.BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("10"), Price: dec("100"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01",
	})
	require.NoError(t, err)

	calc := New(store, log, config.MissingPriceStrict, config.PriceSourceAdjClose)
	_, err = calc.ComputeDaily(ctx, "owner-1", "AAPL", "2024-01-20")
	require.Error(t, err)
}

func TestComputeDaily_RealizedPnLDayFromSameDateSell(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	log := logrus.New()
	l := ledger.New(store, log)

	_, _, err := l.RecordBuy(ctx, ledger.BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("100"), Price: dec("150"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01",
	})
	require.NoError(t, err)

	_, err = l.RecordSell(ctx, ledger.SellRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("40"), Price: dec("170"),
		Commission: decimal.Zero, TransactionDate: "2024-02-01", Method: costbasis.FIFO,
	})
	require.NoError(t, err)

	_, err = store.UpsertPrices(ctx, "AAPL", []domain.StockPrice{
		{Symbol: "AAPL", Date: "2024-02-01", Open: dec("170"), High: dec("171"), Low: dec("169"), Close: dec("170"), AdjClose: dec("170"), Volume: 1000},
	})
	require.NoError(t, err)

	calc := New(store, log, config.MissingPriceBackfill, config.PriceSourceAdjClose)
	row, err := calc.ComputeDaily(ctx, "owner-1", "AAPL", "2024-02-01")
	require.NoError(t, err)

	require.True(t, row.Quantity.Equal(dec("60")))
	require.True(t, row.RealizedPnLDay.Equal(dec("800")))
}
