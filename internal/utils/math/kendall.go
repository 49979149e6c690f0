package math

import (
	"math"
	"sort"
)

// KendallTauB computes Kendall's tau-b rank correlation between x and y
// using Knight's O(n log n) algorithm. Ties are handled by the tau-b
// normalization. The result is 0 when either variable is constant or fewer
// than two observations are given.
func KendallTauB(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}

	type pair struct{ x, y float64 }
	pairs := make([]pair, n)
	for i := range x {
		pairs[i] = pair{x[i], y[i]}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].x != pairs[j].x {
			return pairs[i].x < pairs[j].x
		}
		return pairs[i].y < pairs[j].y
	})

	total := int64(n) * int64(n-1) / 2

	// Pairs tied in x, and pairs tied in both x and y.
	var xTies, jointTies int64
	for i := 0; i < n; {
		j := i + 1
		for j < n && pairs[j].x == pairs[i].x {
			j++
		}
		xTies += tiedPairs(j - i)
		for k := i; k < j; {
			l := k + 1
			for l < j && pairs[l].y == pairs[k].y {
				l++
			}
			jointTies += tiedPairs(l - k)
			k = l
		}
		i = j
	}

	ys := make([]float64, n)
	for i, p := range pairs {
		ys[i] = p.y
	}
	discordant := mergeSortCount(ys, make([]float64, n))

	var yTies int64
	for i := 0; i < n; {
		j := i + 1
		for j < n && ys[j] == ys[i] {
			j++
		}
		yTies += tiedPairs(j - i)
		i = j
	}

	denom := math.Sqrt(float64(total-xTies) * float64(total-yTies))
	if denom == 0 {
		return 0
	}
	numer := float64(total-xTies-yTies+jointTies) - 2*float64(discordant)
	tau := numer / denom
	return math.Max(-1, math.Min(1, tau))
}

// KendallTauMatrix returns the matrix of pairwise tau-b values between the
// given columns, with a unit diagonal.
func KendallTauMatrix(columns [][]float64) [][]float64 {
	d := len(columns)
	m := make([][]float64, d)
	for i := range m {
		m[i] = make([]float64, d)
		m[i][i] = 1.0
	}
	for i := 0; i < d; i++ {
		for j := i + 1; j < d; j++ {
			tau := KendallTauB(columns[i], columns[j])
			m[i][j] = tau
			m[j][i] = tau
		}
	}
	return m
}

func tiedPairs(t int) int64 {
	return int64(t) * int64(t-1) / 2
}

// mergeSortCount sorts a in place and returns the number of strict
// inversions (i < j with a[i] > a[j]).
func mergeSortCount(a, buf []float64) int64 {
	n := len(a)
	if n < 2 {
		return 0
	}
	mid := n / 2
	count := mergeSortCount(a[:mid], buf[:mid]) + mergeSortCount(a[mid:], buf[mid:])

	i, j, k := 0, mid, 0
	for i < mid && j < n {
		if a[j] < a[i] {
			buf[k] = a[j]
			count += int64(mid - i)
			j++
		} else {
			buf[k] = a[i]
			i++
		}
		k++
	}
	for i < mid {
		buf[k] = a[i]
		i++
		k++
	}
	for j < n {
		buf[k] = a[j]
		j++
		k++
	}
	copy(a, buf[:n])
	return count
}
