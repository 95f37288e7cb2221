package assign

import "math"

// SolveResult is the outcome of one matching. Every order index appears
// either in Pairs or in UnassignedOrders, never both.
type SolveResult struct {
	Pairs            []Pair
	UnassignedOrders []int
	TotalCost        float64
}

// Pair matches order index i to courier index j at the matrix cost.
type Pair struct {
	Order   int
	Courier int
	Cost    float64
}

// SolveMatrix runs the Kuhn–Munkres algorithm on the cycle's cost matrix.
// Rectangular inputs are padded to square with zero-cost dummy nodes that
// never yield a real assignment; orders whose only matches are at Sentinel
// are reported unassigned instead of forced into a degenerate pairing.
//
// The algorithm is deterministic: identical matrices produce identical
// output, with ties resolved by scan order (lowest order index, then
// lowest courier index). O(n^3) in max(|orders|, |couriers|).
func SolveMatrix(m Matrix) SolveResult {
	rows := len(m.Orders)
	cols := len(m.Couriers)
	res := SolveResult{}
	if rows == 0 {
		return res
	}
	if cols == 0 {
		for i := 0; i < rows; i++ {
			res.UnassignedOrders = append(res.UnassignedOrders, i)
		}
		return res
	}

	n := rows
	if cols > n {
		n = cols
	}
	at := func(i, j int) float64 {
		if i < rows && j < cols {
			return m.Cost[i][j]
		}
		return 0 // dummy padding
	}

	// Potentials-based Hungarian over the square n x n matrix.
	// u/v are dual potentials, match[j] is the row assigned to column j
	// (1-based with 0 as the virtual start column).
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	match := make([]int, n+1)
	way := make([]int, n+1)
	for i := 1; i <= n; i++ {
		match[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := 0; j <= n; j++ {
			minv[j] = math.Inf(1)
		}
		for {
			used[j0] = true
			i0 := match[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := at(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[match[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if match[j0] == 0 {
				break
			}
		}
		// augment along the alternating path
		for j0 != 0 {
			j1 := way[j0]
			match[j0] = match[j1]
			j0 = j1
		}
	}

	assignedCourier := make([]int, rows)
	for i := range assignedCourier {
		assignedCourier[i] = -1
	}
	for j := 1; j <= n; j++ {
		i := match[j] - 1
		if i >= 0 && i < rows && j-1 < cols {
			assignedCourier[i] = j - 1
		}
	}
	for i := 0; i < rows; i++ {
		j := assignedCourier[i]
		if j < 0 || m.Cost[i][j] >= Sentinel {
			res.UnassignedOrders = append(res.UnassignedOrders, i)
			continue
		}
		res.Pairs = append(res.Pairs, Pair{Order: i, Courier: j, Cost: m.Cost[i][j]})
		res.TotalCost += m.Cost[i][j]
	}
	return res
}
