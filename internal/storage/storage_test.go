package storage

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesSchemaAndSeedsVersion(t *testing.T) {
	s := openTestStore(t)
	var version int
	require.NoError(t, s.db.Get(&version, `SELECT version FROM schema_version`))
	require.Equal(t, 1, version)
}

func TestUpsertAndGetPrices_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStock(ctx, "AAPL", domain.Stock{Symbol: "AAPL"}))

	rows := []domain.StockPrice{
		{Symbol: "AAPL", Date: "2024-01-01", Open: decimal.NewFromInt(100), High: decimal.NewFromInt(105), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(102), AdjClose: decimal.NewFromInt(102), Volume: 1000},
		{Symbol: "AAPL", Date: "2024-01-02", Open: decimal.NewFromInt(102), High: decimal.NewFromInt(110), Low: decimal.NewFromInt(101), Close: decimal.NewFromInt(108), AdjClose: decimal.NewFromInt(108), Volume: 1200},
	}
	written, err := s.UpsertPrices(ctx, "AAPL", rows)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	got, err := s.GetPrices(ctx, "AAPL", nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "2024-01-01", got[0].Date)
	require.True(t, got[1].Close.Equal(decimal.NewFromInt(108)))
}

func TestUpsertPrices_ConflictReplace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureStock(ctx, "AAPL", domain.Stock{Symbol: "AAPL"}))

	_, err := s.UpsertPrices(ctx, "AAPL", []domain.StockPrice{
		{Symbol: "AAPL", Date: "2024-01-01", Open: decimal.NewFromInt(100), High: decimal.NewFromInt(105), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(102), AdjClose: decimal.NewFromInt(102), Volume: 1000},
	})
	require.NoError(t, err)

	_, err = s.UpsertPrices(ctx, "AAPL", []domain.StockPrice{
		{Symbol: "AAPL", Date: "2024-01-01", Open: decimal.NewFromInt(100), High: decimal.NewFromInt(106), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(105), AdjClose: decimal.NewFromInt(105), Volume: 1500},
	})
	require.NoError(t, err)

	got, err := s.GetPrices(ctx, "AAPL", nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Close.Equal(decimal.NewFromInt(105)))
}

func TestGetPriceAtOrBefore_FindsMostRecentPriorRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureStock(ctx, "AAPL", domain.Stock{Symbol: "AAPL"}))

	_, err := s.UpsertPrices(ctx, "AAPL", []domain.StockPrice{
		{Symbol: "AAPL", Date: "2024-01-01", Open: decimal.NewFromInt(100), High: decimal.NewFromInt(105), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(102), AdjClose: decimal.NewFromInt(102), Volume: 1000},
		{Symbol: "AAPL", Date: "2024-01-10", Open: decimal.NewFromInt(110), High: decimal.NewFromInt(115), Low: decimal.NewFromInt(109), Close: decimal.NewFromInt(112), AdjClose: decimal.NewFromInt(112), Volume: 900},
	})
	require.NoError(t, err)

	price, err := s.GetPriceAtOrBefore(ctx, "AAPL", "2024-01-05")
	require.NoError(t, err)
	require.NotNil(t, price)
	require.Equal(t, "2024-01-01", price.Date)
}

func TestInsertTransaction_DuplicateExternalIDRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	extID := "dup-1"

	txn := domain.Transaction{
		ID: "t1", OwnerID: "owner-1", Symbol: "AAPL", Kind: domain.Buy,
		Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(100), Commission: decimal.Zero,
		TransactionDate: "2024-01-01", ExternalID: &extID,
	}

	err := s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		return s.InsertTransaction(ctx, tx, txn)
	})
	require.NoError(t, err)

	txn.ID = "t2"
	err = s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		return s.InsertTransaction(ctx, tx, txn)
	})
	require.Error(t, err)

	found, err := s.FindTransactionByExternalID(ctx, "owner-1", extID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "t1", found.ID)
}
