// Package matutil holds the small dense-matrix helpers the importance and
// learner packages share: column selection, column complements and row
// permutation on gonum matrices.
package matutil

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TakeCols returns a copy of the selected columns of m, in the given order.
func TakeCols(m *mat.Dense, cols []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for j, c := range cols {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, c))
		}
	}
	return out
}

// DropCols returns a copy of m without the given columns. Column order of
// the remainder is preserved.
func DropCols(m *mat.Dense, cols []int) *mat.Dense {
	_, c := m.Dims()
	keep := ComplementCols(c, cols)
	return TakeCols(m, keep)
}

// ComplementCols returns all column indices of a width-n matrix that are not
// in cols, in ascending order.
func ComplementCols(n int, cols []int) []int {
	drop := make(map[int]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	keep := make([]int, 0, n-len(cols))
	for j := 0; j < n; j++ {
		if !drop[j] {
			keep = append(keep, j)
		}
	}
	return keep
}

// SetCols writes the columns of src into dst at the given column indices.
func SetCols(dst *mat.Dense, cols []int, src *mat.Dense) {
	r, _ := src.Dims()
	for j, c := range cols {
		for i := 0; i < r; i++ {
			dst.Set(i, c, src.At(i, j))
		}
	}
}

// PermuteRowsInto writes the rows of src reordered by perm into dst.
// perm[i] names the source row placed at destination row i.
func PermuteRowsInto(dst, src *mat.Dense, perm []int) {
	_, c := src.Dims()
	for i, p := range perm {
		for j := 0; j < c; j++ {
			dst.Set(i, j, src.At(p, j))
		}
	}
}

// ValidateCols checks that every index is a valid column of a width-n matrix
// and that no index repeats.
func ValidateCols(n int, cols []int) error {
	if len(cols) == 0 {
		return fmt.Errorf("empty column set")
	}
	seen := make(map[int]bool, len(cols))
	for _, c := range cols {
		if c < 0 || c >= n {
			return fmt.Errorf("column %d out of range [0, %d)", c, n)
		}
		if seen[c] {
			return fmt.Errorf("column %d listed twice", c)
		}
		seen[c] = true
	}
	return nil
}
