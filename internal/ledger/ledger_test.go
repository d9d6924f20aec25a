package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/solankidhruvraj/stocky-ledger/internal/costbasis"
	"github.com/solankidhruvraj/stocky-ledger/internal/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := storage.Open(":memory:", logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, logrus.New())
}

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

// TestFIFOSellAcrossTwoLots reproduces scenario S1: two buys at 150/share
// and 160/share, a FIFO sell of 120 shares at 170/share should close L1
// entirely and leave 30 remaining on L2, with total realized PnL 2200.
func TestFIFOSellAcrossTwoLots(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, lot1, err := l.RecordBuy(ctx, BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("100"), Price: dec("150"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01",
	})
	require.NoError(t, err)

	_, lot2, err := l.RecordBuy(ctx, BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("50"), Price: dec("160"),
		Commission: decimal.Zero, TransactionDate: "2024-02-01",
	})
	require.NoError(t, err)

	result, err := l.RecordSell(ctx, SellRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("120"), Price: dec("170"),
		Commission: decimal.Zero, TransactionDate: "2024-03-01", Method: costbasis.FIFO,
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 2)

	require.True(t, result.Allocations[0].LotID == lot1.ID)
	require.True(t, result.Allocations[0].QuantitySold.Equal(dec("100")))
	require.True(t, result.Allocations[0].RealizedPnL.Equal(dec("2000")))

	require.True(t, result.Allocations[1].LotID == lot2.ID)
	require.True(t, result.Allocations[1].QuantitySold.Equal(dec("20")))
	require.True(t, result.Allocations[1].RealizedPnL.Equal(dec("200")))

	require.True(t, result.RealizedPnL.Equal(dec("2200")))

	openLots, err := l.GetOpenLots(ctx, "owner-1", "AAPL")
	require.NoError(t, err)
	require.Len(t, openLots, 1)
	require.True(t, openLots[0].ID == lot2.ID)
	require.True(t, openLots[0].RemainingQuantity.Equal(dec("30")))
}

// TestSpecificLotSell reproduces scenario S2: the same buys, then a sell
// with an explicit lot=id:qty plan.
func TestSpecificLotSell(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, lot1, err := l.RecordBuy(ctx, BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("100"), Price: dec("150"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01",
	})
	require.NoError(t, err)
	_, lot2, err := l.RecordBuy(ctx, BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("50"), Price: dec("160"),
		Commission: decimal.Zero, TransactionDate: "2024-02-01",
	})
	require.NoError(t, err)

	result, err := l.RecordSell(ctx, SellRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("60"), Price: dec("170"),
		Commission: decimal.Zero, TransactionDate: "2024-03-01", Method: costbasis.SpecificLot,
		LotQuantities: map[string]decimal.Decimal{lot1.ID: dec("40"), lot2.ID: dec("20")},
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 2)

	openLots, err := l.GetOpenLots(ctx, "owner-1", "AAPL")
	require.NoError(t, err)
	require.Len(t, openLots, 2)
	for _, lot := range openLots {
		switch lot.ID {
		case lot1.ID:
			require.True(t, lot.RemainingQuantity.Equal(dec("60")))
		case lot2.ID:
			require.True(t, lot.RemainingQuantity.Equal(dec("30")))
		}
	}
}

func TestRecordSell_InsufficientShares(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, _, err := l.RecordBuy(ctx, BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("10"), Price: dec("100"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01",
	})
	require.NoError(t, err)

	_, err = l.RecordSell(ctx, SellRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("20"), Price: dec("100"),
		Commission: decimal.Zero, TransactionDate: "2024-01-02", Method: costbasis.FIFO,
	})
	require.Error(t, err)
}

func TestRecordBuy_IdempotentOnExternalID(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	externalID := "ext-1"

	txn1, lot1, err := l.RecordBuy(ctx, BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("10"), Price: dec("100"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01", ExternalID: &externalID,
	})
	require.NoError(t, err)

	txn2, lot2, err := l.RecordBuy(ctx, BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("10"), Price: dec("100"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01", ExternalID: &externalID,
	})
	require.NoError(t, err)
	require.Equal(t, txn1.ID, txn2.ID)
	require.Equal(t, lot1.ID, lot2.ID)

	openLots, err := l.GetOpenLots(ctx, "owner-1", "AAPL")
	require.NoError(t, err)
	require.Len(t, openLots, 1)
}

func TestValidateConsistency_CleanAfterFIFOSell(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, _, err := l.RecordBuy(ctx, BuyRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("100"), Price: dec("150"),
		Commission: decimal.Zero, TransactionDate: "2024-01-01",
	})
	require.NoError(t, err)

	_, err = l.RecordSell(ctx, SellRequest{
		OwnerID: "owner-1", Symbol: "AAPL", Quantity: dec("40"), Price: dec("170"),
		Commission: decimal.Zero, TransactionDate: "2024-02-01", Method: costbasis.FIFO,
	})
	require.NoError(t, err)

	report, err := l.ValidateConsistency(ctx, "owner-1", "AAPL")
	require.NoError(t, err)
	require.True(t, report.Consistent)
	require.Empty(t, report.Issues)
	require.True(t, report.OpenLotQuantity.Equal(dec("60")))
}
