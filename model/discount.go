// Package model implements the count→probability pipeline: modified
// Kneser-Ney discount estimation, interpolated probability and back-off
// computation, and the logbound (admissible-upper-bound) estimator
// (spec.md §4.9-§4.11).
package model

// CountsOfCounts holds, for one order, the number of n-grams occurring
// exactly 1, 2, 3, and 4-or-more times (spec.md §4.9, "counts-of-counts
// c_1..c_4").
type CountsOfCounts struct {
	C1, C2, C3, C4 uint64
}

// Discounts holds one order's modified Kneser-Ney discount mass for
// count-of-count buckets 1, 2, and 3-or-more, plus the Y statistic they
// were derived from.
type Discounts struct {
	Y      float64
	D1     float64
	D2     float64
	D3Plus float64
}

// defaultD1, defaultD2, defaultD3Plus are the fallback discounts used when
// the counts-of-counts are too sparse to produce a positive estimate
// (spec.md §4.9: "Invalid (non-positive) discounts fall back to 0.5, 1.0,
// 1.5 respectively").
const (
	defaultD1     = 0.5
	defaultD2     = 1.0
	defaultD3Plus = 1.5
)

// EstimateDiscounts computes the Chen-Goodman modified Kneser-Ney
// discounts for one order from its counts-of-counts.
func EstimateDiscounts(c CountsOfCounts) Discounts {
	var y float64
	if c.C1+2*c.C2 > 0 {
		y = float64(c.C1) / float64(c.C1+2*c.C2)
	}

	d := Discounts{Y: y, D1: defaultD1, D2: defaultD2, D3Plus: defaultD3Plus}

	if c.C1 > 0 {
		if d1 := 1 - 2*y*float64(c.C2)/float64(c.C1); d1 > 0 {
			d.D1 = d1
		}
	}
	if c.C2 > 0 {
		if d2 := 2 - 3*y*float64(c.C3)/float64(c.C2); d2 > 0 {
			d.D2 = d2
		}
	}
	if c.C3 > 0 {
		if d3 := 3 - 4*y*float64(c.C4)/float64(c.C3); d3 > 0 {
			d.D3Plus = d3
		}
	}
	return d
}

// For discounts at min(t, 3) buckets: t==1 -> D1, t==2 -> D2, t>=3 -> D3Plus.
func (d Discounts) ForCount(t uint64) float64 {
	switch {
	case t <= 0:
		return 0
	case t == 1:
		return d.D1
	case t == 2:
		return d.D2
	default:
		return d.D3Plus
	}
}
