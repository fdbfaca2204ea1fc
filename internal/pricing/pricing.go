// Package pricing computes order totals from catalog prices. It never touches the database;
// the order store reuses LineSubtotal against locked rows so both sides agree on the numbers.
package pricing

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
)

const SpecialRequestSurchargeCents int64 = 200

var taxMultiplier = decimal.RequireFromString("1.08")

var ErrTotalTooLarge = apperr.New(apperr.KindValidation, "order total is too large")

type ProductLookup interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]catalog.Product, error)
}

type Line struct {
	ProductID       int64
	Quantity        int
	SpecialRequests *string
}

func (l Line) HasSpecialRequests() bool {
	return l.SpecialRequests != nil && strings.TrimSpace(*l.SpecialRequests) != ""
}

type QuotedLine struct {
	Line
	UnitPriceCents int64
	SubtotalCents  int64
}

type Quote struct {
	Lines      []QuotedLine
	TotalCents int64
}

// LineSubtotal is price*qty plus the surcharge for every unit that carries special requests.
// A result that does not fit in int64 is ErrTotalTooLarge, never a wrapped value.
func LineSubtotal(priceCents int64, quantity int, specialRequests bool) (int64, error) {
	unit := priceCents
	if specialRequests {
		if unit > math.MaxInt64-SpecialRequestSurchargeCents {
			return 0, ErrTotalTooLarge
		}
		unit += SpecialRequestSurchargeCents
	}
	if unit < 0 || quantity < 0 {
		return 0, apperr.New(apperr.KindValidation, "price and quantity must not be negative")
	}
	if quantity > 0 && unit > math.MaxInt64/int64(quantity) {
		return 0, ErrTotalTooLarge
	}
	return unit * int64(quantity), nil
}

// AddCents sums two non-negative amounts, failing instead of wrapping.
func AddCents(a, b int64) (int64, error) {
	if b > math.MaxInt64-a {
		return 0, ErrTotalTooLarge
	}
	return a + b, nil
}

// ChargeAmount is the tax-inclusive amount sent to the payment provider, rounded half away from zero.
func ChargeAmount(totalCents int64) int64 {
	return decimal.NewFromInt(totalCents).Mul(taxMultiplier).Round(0).IntPart()
}

// Calculate prices lines against current catalog state. Inventory is checked against the
// combined demand for each product, so two lines for the same product cannot oversell.
func Calculate(ctx context.Context, lookup ProductLookup, lines []Line) (Quote, error) {
	ids := make([]int64, 0, len(lines))
	demand := make(map[int64]int, len(lines))
	for _, l := range lines {
		if _, seen := demand[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		demand[l.ProductID] += l.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products, err := lookup.GetMany(ctx, ids)
	if err != nil {
		return Quote{}, apperr.Internal(err)
	}

	for _, id := range ids {
		p, ok := products[id]
		if !ok || !p.IsActive {
			return Quote{}, apperr.Newf(apperr.KindProductNotFound, "product %d not found", id)
		}
		if demand[id] > p.InventoryCount {
			return Quote{}, InsufficientInventory(p)
		}
	}

	q := Quote{Lines: make([]QuotedLine, 0, len(lines))}
	for _, l := range lines {
		p := products[l.ProductID]
		sub, err := LineSubtotal(p.PriceCents, l.Quantity, l.HasSpecialRequests())
		if err != nil {
			return Quote{}, err
		}
		if q.TotalCents, err = AddCents(q.TotalCents, sub); err != nil {
			return Quote{}, err
		}
		q.Lines = append(q.Lines, QuotedLine{Line: l, UnitPriceCents: p.PriceCents, SubtotalCents: sub})
	}
	return q, nil
}

func InsufficientInventory(p catalog.Product) error {
	return apperr.Newf(apperr.KindInsufficientInventory,
		"insufficient inventory for %s: %d available", p.Name, p.InventoryCount)
}
