package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPositionLot_TotalCost(t *testing.T) {
	lot := PositionLot{RemainingQuantity: decimal.NewFromInt(10), CostBasisPerShare: decimal.NewFromFloat(12.5)}
	assert.True(t, lot.TotalCost().Equal(decimal.NewFromFloat(125)))
}

func TestPositionLot_IsDRIP(t *testing.T) {
	assert.True(t, PositionLot{Notes: "Dividend Reinvestment for Q1"}.IsDRIP())
	assert.False(t, PositionLot{Notes: "regular purchase"}.IsDRIP())
	assert.False(t, PositionLot{}.IsDRIP())
}
