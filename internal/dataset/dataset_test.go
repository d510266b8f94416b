package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, "a,b,target\n1,2,3\n4,5,6\n")

	ds, err := LoadCSV(path, "target")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(ds.FeatureNames) != 2 || ds.FeatureNames[0] != "a" || ds.FeatureNames[1] != "b" {
		t.Errorf("feature names = %v, want [a b]", ds.FeatureNames)
	}
	n, d := ds.X.Dims()
	if n != 2 || d != 2 {
		t.Fatalf("X is %dx%d, want 2x2", n, d)
	}
	if ds.X.At(1, 0) != 4 || ds.X.At(1, 1) != 5 {
		t.Errorf("X row 1 = [%v %v], want [4 5]", ds.X.At(1, 0), ds.X.At(1, 1))
	}
	if ds.Y.At(0, 0) != 3 || ds.Y.At(1, 0) != 6 {
		t.Errorf("Y = [%v %v], want [3 6]", ds.Y.At(0, 0), ds.Y.At(1, 0))
	}
}

func TestLoadCSVTargetInMiddle(t *testing.T) {
	path := writeCSV(t, "a,target,b\n1,2,3\n")
	ds, err := LoadCSV(path, "target")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if ds.X.At(0, 0) != 1 || ds.X.At(0, 1) != 3 {
		t.Errorf("X row 0 = [%v %v], want [1 3]", ds.X.At(0, 0), ds.X.At(0, 1))
	}
	if ds.Y.At(0, 0) != 2 {
		t.Errorf("Y = %v, want 2", ds.Y.At(0, 0))
	}
}

func TestLoadCSVErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), "y"); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("missing target", func(t *testing.T) {
		path := writeCSV(t, "a,b\n1,2\n")
		if _, err := LoadCSV(path, "y"); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("no data rows", func(t *testing.T) {
		path := writeCSV(t, "a,y\n")
		if _, err := LoadCSV(path, "y"); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("non-numeric cell", func(t *testing.T) {
		path := writeCSV(t, "a,y\nhello,2\n")
		if _, err := LoadCSV(path, "y"); err == nil {
			t.Error("expected error")
		}
	})
}

func buildDataset(n int) *Dataset {
	x := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
		y.Set(i, 0, float64(i))
	}
	return &Dataset{FeatureNames: []string{"a"}, X: x, Y: y}
}

func TestSplit(t *testing.T) {
	ds := buildDataset(10)
	train, test, err := ds.Split(0.8, 1)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}

	tn, _ := train.X.Dims()
	sn, _ := test.X.Dims()
	if tn != 8 || sn != 2 {
		t.Fatalf("split sizes %d/%d, want 8/2", tn, sn)
	}

	// Every original row shows up exactly once across the two sides.
	seen := make(map[float64]int)
	for i := 0; i < tn; i++ {
		seen[train.X.At(i, 0)]++
	}
	for i := 0; i < sn; i++ {
		seen[test.X.At(i, 0)]++
	}
	for v, count := range seen {
		if count != 1 {
			t.Errorf("row %v appears %d times", v, count)
		}
	}

	// Rows keep their targets through the shuffle.
	for i := 0; i < tn; i++ {
		if train.X.At(i, 0) != train.Y.At(i, 0) {
			t.Errorf("row %d lost its target", i)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	ds := buildDataset(20)
	a, _, err := ds.Split(0.5, 7)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := ds.Split(0.5, 7)
	if err != nil {
		t.Fatal(err)
	}
	n, _ := a.X.Dims()
	for i := 0; i < n; i++ {
		if a.X.At(i, 0) != b.X.At(i, 0) {
			t.Fatal("same seed must give the same split")
		}
	}
}

func TestSplitValidation(t *testing.T) {
	ds := buildDataset(10)
	if _, _, err := ds.Split(0, 1); err == nil {
		t.Error("expected error for ratio 0")
	}
	if _, _, err := ds.Split(1, 1); err == nil {
		t.Error("expected error for ratio 1")
	}
	tiny := buildDataset(2)
	if _, _, err := tiny.Split(0.1, 1); err == nil {
		t.Error("expected error when one side ends up empty")
	}
}

func TestScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	s := FitScaler(X)
	out := s.Transform(X)

	// First column standardizes to zero mean, unit variance.
	var mean, variance float64
	for i := 0; i < 4; i++ {
		mean += out.At(i, 0)
	}
	mean /= 4
	for i := 0; i < 4; i++ {
		d := out.At(i, 0) - mean
		variance += d * d
	}
	variance /= 4
	if math.Abs(mean) > 1e-12 {
		t.Errorf("standardized mean = %v, want 0", mean)
	}
	if math.Abs(variance-1) > 1e-12 {
		t.Errorf("standardized variance = %v, want 1", variance)
	}

	// Constant column maps to all zeros rather than dividing by zero.
	for i := 0; i < 4; i++ {
		if out.At(i, 1) != 0 {
			t.Errorf("constant column row %d = %v, want 0", i, out.At(i, 1))
		}
	}
}

func TestScalerAppliesTrainStatistics(t *testing.T) {
	train := mat.NewDense(2, 1, []float64{0, 2}) // mean 1, std 1
	test := mat.NewDense(1, 1, []float64{3})

	s := FitScaler(train)
	out := s.Transform(test)
	if out.At(0, 0) != 2 {
		t.Errorf("transformed value = %v, want 2", out.At(0, 0))
	}
}
