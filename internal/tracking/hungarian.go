package tracking

import "math"

// forbidden marks a cost matrix entry the solver must never select.
const forbidden = 1e18

// HungarianAssign solves the rectangular assignment problem for an n×m
// cost matrix with the Kuhn–Munkres algorithm in O(max(n,m)³). It returns
// assignments[i] = column assigned to row i, or -1. Entries ≥ 1e18 are
// treated as forbidden and never appear in the result.
func HungarianAssign(cost [][]float64) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])
	out := make([]int, rows)
	for i := range out {
		out[i] = -1
	}
	if cols == 0 {
		return out
	}

	dim := max(rows, cols)
	at := func(i, j int) float64 {
		if i < rows && j < cols {
			return cost[i][j]
		}
		return forbidden
	}

	// Potentials formulation, 1-indexed; column 0 is a virtual column.
	const inf = math.MaxFloat64 / 2
	rowPot := make([]float64, dim+1)
	colPot := make([]float64, dim+1)
	owner := make([]int, dim+1) // owner[j] = row matched to column j
	prev := make([]int, dim+1)  // previous column on the augmenting path
	slack := make([]float64, dim+1)
	seen := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		owner[0] = i
		col := 0
		for j := range slack {
			slack[j] = inf
			seen[j] = false
		}
		for {
			seen[col] = true
			row := owner[col]
			delta := inf
			next := -1
			for j := 1; j <= dim; j++ {
				if seen[j] {
					continue
				}
				reduced := at(row-1, j-1) - rowPot[row] - colPot[j]
				if reduced < slack[j] {
					slack[j] = reduced
					prev[j] = col
				}
				if slack[j] < delta {
					delta = slack[j]
					next = j
				}
			}
			if next < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if seen[j] {
					rowPot[owner[j]] += delta
					colPot[j] -= delta
				} else {
					slack[j] -= delta
				}
			}
			col = next
			if owner[col] == 0 {
				break
			}
		}
		for col != 0 {
			owner[col] = owner[prev[col]]
			col = prev[col]
		}
	}

	for j := 1; j <= dim; j++ {
		i := owner[j] - 1
		if i < 0 || i >= rows || j-1 >= cols {
			continue
		}
		if cost[i][j-1] >= forbidden {
			continue
		}
		out[i] = j - 1
	}
	return out
}

// linearAssign matches rows to columns minimising total cost, rejecting
// any pair whose cost exceeds gate. It returns the matched pairs and the
// unmatched row and column indices, each in ascending order.
func linearAssign(cost [][]float64, rows, cols int, gate float64) (matches [][2]int, freeRows, freeCols []int) {
	if rows == 0 || cols == 0 {
		for i := 0; i < rows; i++ {
			freeRows = append(freeRows, i)
		}
		for j := 0; j < cols; j++ {
			freeCols = append(freeCols, j)
		}
		return nil, freeRows, freeCols
	}

	gated := make([][]float64, rows)
	for i := range gated {
		gated[i] = make([]float64, cols)
		for j := range gated[i] {
			if cost[i][j] > gate {
				gated[i][j] = forbidden
			} else {
				gated[i][j] = cost[i][j]
			}
		}
	}

	assigned := HungarianAssign(gated)
	colTaken := make([]bool, cols)
	for i, j := range assigned {
		if j < 0 {
			freeRows = append(freeRows, i)
			continue
		}
		colTaken[j] = true
		matches = append(matches, [2]int{i, j})
	}
	for j, taken := range colTaken {
		if !taken {
			freeCols = append(freeCols, j)
		}
	}
	return matches, freeRows, freeCols
}
