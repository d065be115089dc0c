package batch

import (
	"sort"

	"halonet-payments/internal/domain/company"

	"github.com/shopspring/decimal"
)

var cent = decimal.New(1, -2)

// sortOrders orders garnishments by ascending priority; equal priorities keep input order.
func sortOrders(orders []GarnishmentOrder) []GarnishmentOrder {
	out := append([]GarnishmentOrder(nil), orders...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// allocate splits net pay across orders already sorted by priority. The result
// is index-aligned with orders and never exceeds an order's amount or, in
// total, the net pay.
func allocate(net decimal.Decimal, orders []GarnishmentOrder, policy company.GarnishmentPolicy) []decimal.Decimal {
	out := make([]decimal.Decimal, len(orders))
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Amount)
	}
	if !net.IsPositive() || len(orders) == 0 {
		for i := range out {
			out[i] = decimal.Zero
		}
		return out
	}
	if total.LessThanOrEqual(net) {
		for i, o := range orders {
			out[i] = o.Amount
		}
		return out
	}

	if policy != company.PolicyProRata {
		remaining := net
		for i, o := range orders {
			take := decimal.Min(o.Amount, remaining)
			out[i] = take
			remaining = remaining.Sub(take)
		}
		return out
	}

	given := decimal.Zero
	for i, o := range orders {
		out[i] = net.Mul(o.Amount).Div(total).RoundFloor(2)
		given = given.Add(out[i])
	}
	// leftover cents go to the highest-priority orders first
	for i := 0; given.LessThan(net) && i < len(orders); i++ {
		if out[i].Add(cent).LessThanOrEqual(orders[i].Amount) {
			out[i] = out[i].Add(cent)
			given = given.Add(cent)
		}
	}
	return out
}
