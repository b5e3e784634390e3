// Package stats implements the small set of statistics the accumulation
// calculator needs: median, median absolute deviation, and the Gini
// coefficient. Median and MAD take and return decimal.Decimal; Gini
// takes *big.Int Wei balances and returns a decimal.Decimal.
package stats

import (
	"math/big"
	"sort"

	"github.com/shopspring/decimal"
)

// Median returns the median of values. The slice is not mutated; a copy
// is sorted internally. Returns decimal.Zero for an empty input.
func Median(values []decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, n)
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// MAD returns the median m of values and the median absolute deviation
// mad = median(|x - m|). A mad of zero means at least half of the
// values equal the median (or there is at most one value); callers must not declare an
// anomaly in that case, per the calculator's Step F rule.
func MAD(values []decimal.Decimal) (median, mad decimal.Decimal) {
	m := Median(values)
	deviations := make([]decimal.Decimal, len(values))
	for i, v := range values {
		deviations[i] = v.Sub(m).Abs()
	}
	return m, Median(deviations)
}

// Gini computes the Gini coefficient over non-negative balances:
//
//	gini = |2*sum((i+1)*b_i)/(n*sum(b_i)) - (n+1)/n|
//
// with b sorted ascending and i zero-based. Returns nil when the
// population is empty or every balance is zero, matching the
// calculator's "null if sum is zero" rule (Step G).
func Gini(balances []*big.Int) *decimal.Decimal {
	n := len(balances)
	if n == 0 {
		return nil
	}

	sorted := make([]*big.Int, n)
	copy(sorted, balances)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	total := new(big.Int)
	weighted := new(big.Int)
	for i, b := range sorted {
		total.Add(total, b)
		weighted.Add(weighted, new(big.Int).Mul(big.NewInt(int64(i+1)), b))
	}
	if total.Sign() == 0 {
		return nil
	}

	nDec := decimal.NewFromInt(int64(n))
	totalDec := decimal.NewFromBigInt(total, 0)
	weightedDec := decimal.NewFromBigInt(weighted, 0)

	ratio := weightedDec.Mul(decimal.NewFromInt(2)).Div(nDec.Mul(totalDec))
	offset := nDec.Add(decimal.NewFromInt(1)).Div(nDec)
	g := ratio.Sub(offset).Abs()
	return &g
}
