// Package pricing derives unit and line prices from quantity-banded price tiers.
package pricing

import (
	"sort"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
)

// Resolve returns the unit price that applies to qty.
//
// The first tier (ascending by MinQty) containing qty wins. When no tier contains
// qty the first tier's price is returned as an indicative price. ok is false only
// for an empty tier list.
func Resolve(tiers []bom.PriceTier, qty int) (price float64, ok bool) {
	if len(tiers) == 0 {
		return 0, false
	}

	sorted := tiers
	if !sort.SliceIsSorted(tiers, func(i, j int) bool { return tiers[i].MinQty < tiers[j].MinQty }) {
		sorted = make([]bom.PriceTier, len(tiers))
		copy(sorted, tiers)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinQty < sorted[j].MinQty })
	}

	for _, t := range sorted {
		if t.Contains(qty) {
			return t.Price, true
		}
	}
	return sorted[0].Price, true
}

// Line returns the unit and total price for qty, or nils when no price resolves.
func Line(tiers []bom.PriceTier, qty int) (unit, total *float64) {
	p, ok := Resolve(tiers, qty)
	if !ok {
		return nil, nil
	}
	t := p * float64(qty)
	return &p, &t
}
