// Package costbasis implements the lot-selection matchers that decide which
// open lots absorb a SELL, ported from original_source/'s
// cost_basis_matcher.py (FIFOMatcher, LIFOMatcher, SpecificLotMatcher,
// AverageCostMatcher) into the teacher's struct-with-method idiom.
package costbasis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
	"github.com/solankidhruvraj/stocky-ledger/internal/domain"
)

// Method names one of the four matching strategies.
type Method string

const (
	FIFO         Method = "FIFO"
	LIFO         Method = "LIFO"
	SpecificLot  Method = "SPECIFIC_LOT"
	AverageCost  Method = "AVERAGE_COST"
)

// Allocation is one (lot, quantity) pairing a Matcher proposes for a sell;
// the caller (internal/ledger) turns each into a domain.SaleAllocation and
// a lot remaining-quantity update.
type Allocation struct {
	Lot      domain.PositionLot
	Quantity decimal.Decimal
}

// Matcher selects which open lots, and how much of each, cover sellQty
// shares. openLots must all belong to the same (owner, symbol) and carry
// RemainingQuantity > 0; lotQuantities, when non-nil, is the SpecificLot
// request (lot id -> quantity to take from it).
type Matcher interface {
	Match(openLots []domain.PositionLot, sellQty decimal.Decimal, lotQuantities map[string]decimal.Decimal) ([]Allocation, error)
}

// New builds the Matcher for method, the same dispatch
// create_cost_basis_matcher performs in the Python original.
func New(method Method) (Matcher, error) {
	switch method {
	case FIFO:
		return fifoMatcher{}, nil
	case LIFO:
		return lifoMatcher{}, nil
	case SpecificLot:
		return specificLotMatcher{}, nil
	case AverageCost:
		return averageCostMatcher{}, nil
	default:
		return nil, apperr.New(apperr.Validation, "unknown cost basis method: "+string(method))
	}
}

func sortedByPurchaseDate(lots []domain.PositionLot, ascending bool) []domain.PositionLot {
	out := make([]domain.PositionLot, len(lots))
	copy(out, lots)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PurchaseDate == out[j].PurchaseDate {
			if ascending {
				return out[i].ID < out[j].ID
			}
			return out[i].ID > out[j].ID
		}
		if ascending {
			return out[i].PurchaseDate < out[j].PurchaseDate
		}
		return out[i].PurchaseDate > out[j].PurchaseDate
	})
	return out
}

func totalRemaining(lots []domain.PositionLot) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		total = total.Add(l.RemainingQuantity)
	}
	return total
}

func insufficientSharesErr(available, requested decimal.Decimal) error {
	return apperr.New(apperr.InsufficientShares, "insufficient shares: have "+available.String()+", requested "+requested.String())
}

// fifoMatcher consumes the oldest lots first, the default strategy.
type fifoMatcher struct{}

func (fifoMatcher) Match(openLots []domain.PositionLot, sellQty decimal.Decimal, _ map[string]decimal.Decimal) ([]Allocation, error) {
	return sequentialMatch(openLots, sellQty, true)
}

// lifoMatcher consumes the newest lots first.
type lifoMatcher struct{}

func (lifoMatcher) Match(openLots []domain.PositionLot, sellQty decimal.Decimal, _ map[string]decimal.Decimal) ([]Allocation, error) {
	return sequentialMatch(openLots, sellQty, false)
}

func sequentialMatch(openLots []domain.PositionLot, sellQty decimal.Decimal, ascending bool) ([]Allocation, error) {
	available := totalRemaining(openLots)
	if available.LessThan(sellQty) {
		return nil, insufficientSharesErr(available, sellQty)
	}
	ordered := sortedByPurchaseDate(openLots, ascending)
	remaining := sellQty
	var out []Allocation
	for _, lot := range ordered {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(lot.RemainingQuantity, remaining)
		if take.IsZero() {
			continue
		}
		out = append(out, Allocation{Lot: lot, Quantity: take})
		remaining = remaining.Sub(take)
	}
	return out, nil
}

// specificLotMatcher takes exactly the quantities the caller named from
// named lots; every named lot must exist among openLots and carry enough
// remaining quantity.
type specificLotMatcher struct{}

func (specificLotMatcher) Match(openLots []domain.PositionLot, sellQty decimal.Decimal, lotQuantities map[string]decimal.Decimal) ([]Allocation, error) {
	if len(lotQuantities) == 0 {
		return nil, apperr.New(apperr.Validation, "specific lot method requires lot quantities")
	}
	byID := make(map[string]domain.PositionLot, len(openLots))
	for _, l := range openLots {
		byID[l.ID] = l
	}

	ids := make([]string, 0, len(lotQuantities))
	for id := range lotQuantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := decimal.Zero
	out := make([]Allocation, 0, len(ids))
	for _, id := range ids {
		qty := lotQuantities[id]
		lot, ok := byID[id]
		if !ok {
			return nil, apperr.New(apperr.Validation, "lot not found or not open: "+id)
		}
		if qty.GreaterThan(lot.RemainingQuantity) {
			return nil, insufficientSharesErr(lot.RemainingQuantity, qty)
		}
		if qty.IsZero() || qty.IsNegative() {
			return nil, apperr.New(apperr.Validation, "specific lot quantity must be positive: "+id)
		}
		out = append(out, Allocation{Lot: lot, Quantity: qty})
		total = total.Add(qty)
	}
	if !total.Equal(sellQty) {
		return nil, apperr.New(apperr.Validation, "specific lot quantities "+total.String()+" do not sum to sell quantity "+sellQty.String())
	}
	return out, nil
}

// averageCostMatcher spreads the sell across every open lot pro-rata to its
// share of total remaining quantity, with the last lot (in purchase-date
// order, ties by id) absorbing the rounding remainder so quantities sum exactly, matching
// AverageCostMatcher.match in the Python original.
type averageCostMatcher struct{}

func (averageCostMatcher) Match(openLots []domain.PositionLot, sellQty decimal.Decimal, _ map[string]decimal.Decimal) ([]Allocation, error) {
	available := totalRemaining(openLots)
	if available.LessThan(sellQty) {
		return nil, insufficientSharesErr(available, sellQty)
	}
	ordered := sortedByPurchaseDate(openLots, true)

	out := make([]Allocation, 0, len(ordered))
	allocated := decimal.Zero
	for i, lot := range ordered {
		if i == len(ordered)-1 {
			take := sellQty.Sub(allocated)
			if take.IsPositive() {
				out = append(out, Allocation{Lot: lot, Quantity: take})
			}
			break
		}
		ratio := lot.RemainingQuantity.Div(available)
		take := sellQty.Mul(ratio).Round(8)
		if take.GreaterThan(lot.RemainingQuantity) {
			take = lot.RemainingQuantity
		}
		if take.IsPositive() {
			out = append(out, Allocation{Lot: lot, Quantity: take})
		}
		allocated = allocated.Add(take)
	}
	return out, nil
}
