// Package pricing recomputes order money fields from line items.
//
// All amounts are integer currency units. The order-level discount is kept at
// zero: discounts live on line items and the order total is derived from them.
package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
)

var (
	ErrInvalidDiscount = errors.New("invalid discount")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Line is the money view of one order line item.
type Line struct {
	ID       string
	Price    int64
	Quantity int64
	Discount int64
}

// Total is price × quantity.
func (l Line) Total() int64 {
	return l.Price * l.Quantity
}

type Totals struct {
	Subtotal      int64
	LineDiscounts int64
	// Discount is the order-level discount; always 0 on recomputed orders.
	Discount int64
	Total    int64
}

// Subtotal sums price × quantity over lines.
func Subtotal(lines []Line) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.Total()
	}
	return sum
}

func sumDiscounts(lines []Line) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.Discount
	}
	return sum
}

// Compute derives subtotal and total. Total is floored at 0.
func Compute(lines []Line, shippingFee int64) Totals {
	t := Totals{
		Subtotal:      Subtotal(lines),
		LineDiscounts: sumDiscounts(lines),
	}
	t.Total = t.Subtotal + shippingFee - t.LineDiscounts - t.Discount
	if t.Total < 0 {
		t.Total = 0
	}
	return t
}

// ValidateItemDiscount checks 0 ≤ discount ≤ price × quantity.
func ValidateItemDiscount(l Line, discount int64) error {
	if discount < 0 {
		return fmt.Errorf("%w: discount cannot be negative", ErrInvalidDiscount)
	}
	if discount > l.Total() {
		return fmt.Errorf("%w: discount %d exceeds item total %d", ErrInvalidDiscount, discount, l.Total())
	}
	return nil
}

// ApplyQuantity returns l with the new quantity. A discount larger than the new
// item total is clamped down to it.
func ApplyQuantity(l Line, quantity int64) (Line, error) {
	if quantity < 1 {
		return l, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidQuantity)
	}
	l.Quantity = quantity
	if l.Discount > l.Total() {
		l.Discount = l.Total()
	}
	return l, nil
}

// DistributeDiscount spreads an absolute order discount target across lines in
// proportion to each line's share of the subtotal. Lines are processed in ID
// order; every line but the last gets a rounded share and the last one absorbs
// the remainder. After clamping each discount to [0, line total] any residue is
// moved onto lines that still have room, last to first, so the discounts always
// sum to target.
//
// The returned slice is sorted by ID. changed is false when the current
// discounts already add up to target.
func DistributeDiscount(lines []Line, target int64) (out []Line, changed bool, err error) {
	subtotal := Subtotal(lines)
	if target < 0 {
		return nil, false, fmt.Errorf("%w: discount cannot be negative", ErrInvalidDiscount)
	}
	if target > subtotal {
		return nil, false, fmt.Errorf("%w: discount %d exceeds order subtotal %d", ErrInvalidDiscount, target, subtotal)
	}

	out = make([]Line, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	delta := target - sumDiscounts(out)
	if delta == 0 || len(out) == 0 || subtotal == 0 {
		return out, false, nil
	}

	var distributed int64
	for i := range out {
		share := delta - distributed
		if i < len(out)-1 {
			share = proportion(delta, out[i].Total(), subtotal)
			distributed += share
		}
		out[i].Discount = clamp(out[i].Discount+share, 0, out[i].Total())
	}

	residue := target - sumDiscounts(out)
	for i := len(out) - 1; i >= 0 && residue != 0; i-- {
		if residue > 0 {
			room := out[i].Total() - out[i].Discount
			step := min(room, residue)
			out[i].Discount += step
			residue -= step
		} else {
			step := min(out[i].Discount, -residue)
			out[i].Discount -= step
			residue += step
		}
	}
	return out, true, nil
}

// proportion returns delta*part/whole rounded half away from zero. The product
// may exceed int64; the result fits as long as |part| <= whole.
func proportion(delta, part, whole int64) int64 {
	n := new(big.Int).Mul(big.NewInt(delta), big.NewInt(part))
	d := big.NewInt(whole)
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	if new(big.Int).Lsh(r.Abs(r), 1).Cmp(d) >= 0 {
		if n.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
