package learner

import (
	"fmt"
	"sort"
)

// LabelEncoder maps categorical outcome values to one-hot rows. It is fitted
// on training labels only; unseen labels at transform time are an error.
type LabelEncoder struct {
	classes []float64
	index   map[float64]int
}

// FitLabels collects the sorted unique label values.
func (e *LabelEncoder) FitLabels(y []float64) {
	seen := make(map[float64]bool)
	e.classes = e.classes[:0]
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			e.classes = append(e.classes, v)
		}
	}
	sort.Float64s(e.classes)
	e.index = make(map[float64]int, len(e.classes))
	for i, v := range e.classes {
		e.index[v] = i
	}
}

// OneHot encodes labels to one-hot rows.
func (e *LabelEncoder) OneHot(y []float64) ([][]float64, error) {
	if len(e.classes) == 0 {
		return nil, fmt.Errorf("label encoder is not fitted")
	}
	out := make([][]float64, len(y))
	for i, v := range y {
		idx, ok := e.index[v]
		if !ok {
			return nil, fmt.Errorf("unseen label %v", v)
		}
		row := make([]float64, len(e.classes))
		row[idx] = 1
		out[i] = row
	}
	return out, nil
}

// Classes returns the fitted label values in encoding order.
func (e *LabelEncoder) Classes() []float64 { return e.classes }

// Decode maps a class index back to its label value.
func (e *LabelEncoder) Decode(idx int) float64 { return e.classes[idx] }
