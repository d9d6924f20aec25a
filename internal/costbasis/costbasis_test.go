package costbasis

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
)

func lot(id, date string, remaining, costBasis float64) domain.PositionLot {
	return domain.PositionLot{
		ID: id, OwnerID: "owner-1", Symbol: "AAPL", BuyTransactionID: "buy-" + id,
		OriginalQuantity: decimal.NewFromFloat(remaining), RemainingQuantity: decimal.NewFromFloat(remaining),
		CostBasisPerShare: decimal.NewFromFloat(costBasis), PurchaseDate: date,
	}
}

func TestFIFOMatcher_ConsumesOldestFirst(t *testing.T) {
	m, err := New(FIFO)
	require.NoError(t, err)

	lots := []domain.PositionLot{
		lot("L1", "2024-01-01", 100, 150),
		lot("L2", "2024-02-01", 50, 160),
	}

	allocs, err := m.Match(lots, decimal.NewFromFloat(120), nil)
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, "L1", allocs[0].Lot.ID)
	assert.True(t, allocs[0].Quantity.Equal(decimal.NewFromFloat(100)))
	assert.Equal(t, "L2", allocs[1].Lot.ID)
	assert.True(t, allocs[1].Quantity.Equal(decimal.NewFromFloat(20)))
}

func TestLIFOMatcher_ConsumesNewestFirst(t *testing.T) {
	m, err := New(LIFO)
	require.NoError(t, err)

	lots := []domain.PositionLot{
		lot("L1", "2024-01-01", 100, 150),
		lot("L2", "2024-02-01", 50, 160),
	}

	allocs, err := m.Match(lots, decimal.NewFromFloat(60), nil)
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, "L2", allocs[0].Lot.ID)
	assert.True(t, allocs[0].Quantity.Equal(decimal.NewFromFloat(50)))
	assert.Equal(t, "L1", allocs[1].Lot.ID)
	assert.True(t, allocs[1].Quantity.Equal(decimal.NewFromFloat(10)))
}

func TestSequentialMatcher_InsufficientShares(t *testing.T) {
	m, err := New(FIFO)
	require.NoError(t, err)

	lots := []domain.PositionLot{lot("L1", "2024-01-01", 10, 150)}
	_, err = m.Match(lots, decimal.NewFromFloat(20), nil)
	require.Error(t, err)
}

func TestSpecificLotMatcher_ExactQuantities(t *testing.T) {
	m, err := New(SpecificLot)
	require.NoError(t, err)

	lots := []domain.PositionLot{
		lot("L1", "2024-01-01", 100, 150),
		lot("L2", "2024-02-01", 50, 160),
	}
	plan := map[string]decimal.Decimal{"L1": decimal.NewFromFloat(40), "L2": decimal.NewFromFloat(20)}

	allocs, err := m.Match(lots, decimal.NewFromFloat(60), plan)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	byLot := map[string]decimal.Decimal{}
	for _, a := range allocs {
		byLot[a.Lot.ID] = a.Quantity
	}
	assert.True(t, byLot["L1"].Equal(decimal.NewFromFloat(40)))
	assert.True(t, byLot["L2"].Equal(decimal.NewFromFloat(20)))
}

func TestSpecificLotMatcher_RejectsMismatchedTotal(t *testing.T) {
	m, err := New(SpecificLot)
	require.NoError(t, err)

	lots := []domain.PositionLot{lot("L1", "2024-01-01", 100, 150)}
	plan := map[string]decimal.Decimal{"L1": decimal.NewFromFloat(40)}

	_, err = m.Match(lots, decimal.NewFromFloat(60), plan)
	require.Error(t, err)
}

func TestAverageCostMatcher_ProRataAllocation(t *testing.T) {
	m, err := New(AverageCost)
	require.NoError(t, err)

	lots := []domain.PositionLot{
		lot("L1", "2024-01-01", 100, 150),
		lot("L2", "2024-02-01", 100, 170),
	}

	allocs, err := m.Match(lots, decimal.NewFromFloat(100), nil)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Quantity)
	}
	assert.True(t, total.Equal(decimal.NewFromFloat(100)))
	// Pro-rata over equal-sized lots: each contributes half.
	assert.True(t, allocs[0].Quantity.Equal(decimal.NewFromFloat(50)))
}

func TestUnknownMethod_Errors(t *testing.T) {
	_, err := New(Method("bogus"))
	require.Error(t, err)
}
