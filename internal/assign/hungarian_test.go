package assign

import (
	"math"
	"reflect"
	"testing"

	"dispatchd/internal/model"
)

func matrixOf(cost [][]float64) Matrix {
	rows := len(cost)
	cols := 0
	if rows > 0 {
		cols = len(cost[0])
	}
	m := Matrix{
		Orders:   make([]model.Order, rows),
		Couriers: make([]model.Courier, cols),
		Cost:     cost,
		ETAMin:   make([][]float64, rows),
	}
	for i := range m.ETAMin {
		m.ETAMin[i] = make([]float64, cols)
	}
	return m
}

// bruteForceMin enumerates all order->courier injections and returns the
// minimum total cost over feasible full matchings.
func bruteForceMin(cost [][]float64) float64 {
	n := len(cost)
	cols := len(cost[0])
	used := make([]bool, cols)
	best := math.Inf(1)
	var rec func(i int, acc float64)
	rec = func(i int, acc float64) {
		if i == n {
			if acc < best {
				best = acc
			}
			return
		}
		for j := 0; j < cols; j++ {
			if used[j] {
				continue
			}
			used[j] = true
			rec(i+1, acc+cost[i][j])
			used[j] = false
		}
	}
	rec(0, 0)
	return best
}

func TestSolveMatrixOptimal(t *testing.T) {
	cost := [][]float64{
		{4, 1, 3},
		{2, 0, 5},
		{3, 2, 2},
	}
	res := SolveMatrix(matrixOf(cost))
	if len(res.Pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(res.Pairs))
	}
	want := bruteForceMin(cost)
	if math.Abs(res.TotalCost-want) > 1e-9 {
		t.Fatalf("total cost %v, brute force %v", res.TotalCost, want)
	}
	seen := map[int]bool{}
	for _, p := range res.Pairs {
		if seen[p.Courier] {
			t.Fatalf("courier %d assigned twice", p.Courier)
		}
		seen[p.Courier] = true
	}
}

func TestSolveMatrixDeterministic(t *testing.T) {
	// All-equal costs: ties everywhere, output must still be stable.
	cost := [][]float64{
		{1, 1, 1},
		{1, 1, 1},
		{1, 1, 1},
	}
	first := SolveMatrix(matrixOf(cost))
	for i := 0; i < 10; i++ {
		again := SolveMatrix(matrixOf(cost))
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestSolveMatrixMoreOrdersThanCouriers(t *testing.T) {
	cost := [][]float64{
		{5},
		{1},
		{3},
	}
	res := SolveMatrix(matrixOf(cost))
	if len(res.Pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(res.Pairs))
	}
	if res.Pairs[0].Order != 1 || res.Pairs[0].Cost != 1 {
		t.Fatalf("expected cheapest order to win the courier, got %+v", res.Pairs[0])
	}
	if len(res.UnassignedOrders) != 2 {
		t.Fatalf("expected 2 unassigned, got %v", res.UnassignedOrders)
	}
}

func TestSolveMatrixMoreCouriersThanOrders(t *testing.T) {
	cost := [][]float64{{7, 2, 9}}
	res := SolveMatrix(matrixOf(cost))
	if len(res.Pairs) != 1 || res.Pairs[0].Courier != 1 {
		t.Fatalf("expected courier 1 chosen, got %+v", res.Pairs)
	}
	if len(res.UnassignedOrders) != 0 {
		t.Fatalf("unexpected unassigned: %v", res.UnassignedOrders)
	}
}

func TestSolveMatrixInfeasiblePairs(t *testing.T) {
	cost := [][]float64{
		{Sentinel, 1},
		{Sentinel, Sentinel},
	}
	res := SolveMatrix(matrixOf(cost))
	if len(res.Pairs) != 1 || res.Pairs[0].Order != 0 || res.Pairs[0].Courier != 1 {
		t.Fatalf("expected only order 0 matched to courier 1, got %+v", res.Pairs)
	}
	if len(res.UnassignedOrders) != 1 || res.UnassignedOrders[0] != 1 {
		t.Fatalf("expected order 1 unassigned, got %v", res.UnassignedOrders)
	}
}

func TestSolveMatrixAllInfeasible(t *testing.T) {
	cost := [][]float64{
		{Sentinel, Sentinel},
		{Sentinel, Sentinel},
	}
	res := SolveMatrix(matrixOf(cost))
	if len(res.Pairs) != 0 {
		t.Fatalf("expected no pairs, got %+v", res.Pairs)
	}
	if len(res.UnassignedOrders) != 2 {
		t.Fatalf("expected all orders unassigned, got %v", res.UnassignedOrders)
	}
	if res.TotalCost != 0 {
		t.Fatalf("expected zero total cost, got %v", res.TotalCost)
	}
}

func TestSolveMatrixEmpty(t *testing.T) {
	res := SolveMatrix(Matrix{})
	if len(res.Pairs) != 0 || len(res.UnassignedOrders) != 0 {
		t.Fatalf("empty matrix should yield empty result: %+v", res)
	}
	res = SolveMatrix(Matrix{Orders: make([]model.Order, 2)})
	if len(res.UnassignedOrders) != 2 {
		t.Fatalf("no couriers: expected all unassigned, got %v", res.UnassignedOrders)
	}
}
