package cpi

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"condimp/internal/estimator"
	"condimp/internal/estimator/linear"
	"condimp/internal/loss"
)

// syntheticData draws independent standard normal covariates and an outcome
// driven by the first column only.
func syntheticData(n, d int, seed int64) (X, y *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X = mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
	}
	y = mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		y.Set(i, 0, 4*X.At(i, 0)+0.1*rng.NormFloat64())
	}
	return X, y
}

func fittedModel(t *testing.T, X, y *mat.Dense) *linear.Ridge {
	t.Helper()
	model := linear.New(linear.WithAlpha(1e-6))
	if err := model.Fit(X, y); err != nil {
		t.Fatalf("fit model: %v", err)
	}
	return model
}

func TestScoreSeparatesInformativeFromNoise(t *testing.T) {
	X, y := syntheticData(300, 3, 7)
	model := fittedModel(t, X, y)

	scorer, err := New(model, linear.New(),
		WithPermutations(20),
		WithSeed(42),
	)
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}
	if err := scorer.Fit(context.Background(), X); err != nil {
		t.Fatalf("fit scorer: %v", err)
	}

	res, err := scorer.Score(context.Background(), X, y)
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	if res.Importance[0] < 1 {
		t.Errorf("informative covariate importance = %v, want a clear degradation", res.Importance[0])
	}
	for j := 1; j < 3; j++ {
		if math.Abs(res.Importance[j]) > 0.5 {
			t.Errorf("noise covariate %d importance = %v, want near zero", j, res.Importance[j])
		}
		if res.Importance[j] >= res.Importance[0] {
			t.Errorf("noise covariate %d outranks the informative one", j)
		}
	}
	if res.LossReference < 0 {
		t.Errorf("reference loss = %v, must be non-negative", res.LossReference)
	}
}

func TestScoreDeterministicAcrossWorkers(t *testing.T) {
	X, y := syntheticData(200, 4, 11)
	model := fittedModel(t, X, y)

	score := func(workers int) *Result {
		scorer, err := New(model, linear.New(),
			WithPermutations(10),
			WithSeed(99),
			WithWorkers(workers),
		)
		if err != nil {
			t.Fatalf("new scorer: %v", err)
		}
		if err := scorer.Fit(context.Background(), X); err != nil {
			t.Fatalf("fit scorer: %v", err)
		}
		res, err := scorer.Score(context.Background(), X, y)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		return res
	}

	serial := score(1)
	concurrent := score(4)

	for j := range serial.Importance {
		if serial.Importance[j] != concurrent.Importance[j] {
			t.Errorf("group %d: importance %v (1 worker) vs %v (4 workers)",
				j, serial.Importance[j], concurrent.Importance[j])
		}
		for p := range serial.LossPerm[j] {
			if serial.LossPerm[j][p] != concurrent.LossPerm[j][p] {
				t.Fatalf("group %d permutation %d losses differ across worker counts", j, p)
			}
		}
	}
}

func TestScoreGrouped(t *testing.T) {
	X, y := syntheticData(250, 4, 3)
	model := fittedModel(t, X, y)

	groups := []Group{
		{Name: "signal", Cols: []int{0, 1}},
		{Name: "noise", Cols: []int{2, 3}},
	}
	scorer, err := New(model, linear.New(),
		WithPermutations(15),
		WithGroups(groups),
		WithSeed(5),
	)
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}
	if err := scorer.Fit(context.Background(), X); err != nil {
		t.Fatalf("fit scorer: %v", err)
	}
	res, err := scorer.Score(context.Background(), X, y)
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	if len(res.Groups) != 2 || res.Groups[0] != "signal" || res.Groups[1] != "noise" {
		t.Fatalf("groups = %v, want [signal noise]", res.Groups)
	}
	if res.Importance[0] <= res.Importance[1] {
		t.Errorf("signal group importance %v not above noise group %v",
			res.Importance[0], res.Importance[1])
	}
}

func TestFitDefaultsToPerColumnGroups(t *testing.T) {
	X, y := syntheticData(100, 3, 1)
	scorer, err := New(fittedModel(t, X, y), linear.New(), WithPermutations(2))
	if err != nil {
		t.Fatal(err)
	}
	if err := scorer.Fit(context.Background(), X); err != nil {
		t.Fatal(err)
	}
	groups := scorer.Groups()
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	for j, g := range groups {
		if len(g.Cols) != 1 || g.Cols[0] != j {
			t.Errorf("group %d covers %v, want [%d]", j, g.Cols, j)
		}
		if !strings.HasPrefix(g.Name, "x") {
			t.Errorf("group %d name = %q, want a generated column name", j, g.Name)
		}
	}
}

func TestPermutationsShape(t *testing.T) {
	X, y := syntheticData(80, 3, 13)
	scorer, err := New(fittedModel(t, X, y), linear.New(), WithPermutations(4))
	if err != nil {
		t.Fatal(err)
	}
	if err := scorer.Fit(context.Background(), X); err != nil {
		t.Fatal(err)
	}
	perms, err := scorer.Permutations(context.Background(), X)
	if err != nil {
		t.Fatal(err)
	}
	if len(perms) != 3 {
		t.Fatalf("got %d groups, want 3", len(perms))
	}
	for j := range perms {
		if len(perms[j]) != 4 {
			t.Fatalf("group %d has %d permutations, want 4", j, len(perms[j]))
		}
		for p, pred := range perms[j] {
			r, c := pred.Dims()
			if r != 80 || c != 1 {
				t.Fatalf("group %d permutation %d prediction is %dx%d, want 80x1", j, p, r, c)
			}
		}
	}
}

func TestNewValidation(t *testing.T) {
	X, y := syntheticData(50, 2, 17)
	model := fittedModel(t, X, y)

	if _, err := New(nil, linear.New()); err == nil {
		t.Error("expected error for nil model")
	}
	if _, err := New(linear.New(), linear.New()); err == nil {
		t.Error("expected error for unfitted model")
	}
	if _, err := New(model, linear.New(), WithPermutations(0)); err == nil {
		t.Error("expected error for zero permutations")
	}
	if _, err := New(model, linear.New(), WithScoreProba()); err == nil {
		t.Error("expected error for score_proba on a model without PredictProba")
	}
	if _, err := New(model, nil); err == nil {
		t.Error("expected error when no imputation model is given")
	}
}

func TestFitValidation(t *testing.T) {
	X, y := syntheticData(50, 3, 19)
	model := fittedModel(t, X, y)
	ctx := context.Background()

	t.Run("column out of range", func(t *testing.T) {
		scorer, _ := New(model, linear.New(), WithGroups([]Group{{Name: "g", Cols: []int{5}}}))
		if err := scorer.Fit(ctx, X); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("group covers everything", func(t *testing.T) {
		scorer, _ := New(model, linear.New(), WithGroups([]Group{{Name: "g", Cols: []int{0, 1, 2}}}))
		if err := scorer.Fit(ctx, X); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("imputation count mismatch", func(t *testing.T) {
		scorer, _ := New(model, nil, WithImputations([]estimator.Estimator{linear.New()}))
		if err := scorer.Fit(ctx, X); err == nil {
			t.Error("expected error for one model over three groups")
		}
	})

	t.Run("prototype without Clone", func(t *testing.T) {
		scorer, _ := New(model, &noClone{})
		if err := scorer.Fit(ctx, X); err == nil {
			t.Error("expected error for a prototype that cannot be cloned")
		}
	})
}

func TestScoreBeforeFit(t *testing.T) {
	X, y := syntheticData(50, 2, 23)
	scorer, err := New(fittedModel(t, X, y), linear.New())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := scorer.Score(context.Background(), X, y); err == nil {
		t.Error("Score before Fit must fail")
	}
	if _, err := scorer.Permutations(context.Background(), X); err == nil {
		t.Error("Permutations before Fit must fail")
	}
}

func TestExplicitImputations(t *testing.T) {
	X, y := syntheticData(120, 2, 29)
	model := fittedModel(t, X, y)

	imps := []estimator.Estimator{linear.New(), linear.New(linear.WithAlpha(10))}
	scorer, err := New(model, nil,
		WithImputations(imps),
		WithPermutations(5),
		WithLoss(loss.MAE),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := scorer.Fit(context.Background(), X); err != nil {
		t.Fatal(err)
	}
	if _, err := scorer.Score(context.Background(), X, y); err != nil {
		t.Fatalf("score with explicit imputations: %v", err)
	}
}

func TestScoreCancelled(t *testing.T) {
	X, y := syntheticData(100, 3, 31)
	scorer, err := New(fittedModel(t, X, y), linear.New(), WithPermutations(50))
	if err != nil {
		t.Fatal(err)
	}
	if err := scorer.Fit(context.Background(), X); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := scorer.Permutations(ctx, X); err == nil {
		t.Error("expected error on a cancelled context")
	}
}

func TestScoreDoesNotMutateInputs(t *testing.T) {
	X, y := syntheticData(120, 3, 37)
	snapX := mat.DenseCopyOf(X)
	snapY := mat.DenseCopyOf(y)

	scorer, err := New(fittedModel(t, X, y), linear.New(), WithPermutations(8), WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := scorer.Fit(context.Background(), X); err != nil {
		t.Fatal(err)
	}
	if _, err := scorer.Score(context.Background(), X, y); err != nil {
		t.Fatal(err)
	}

	n, d := X.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			if X.At(i, j) != snapX.At(i, j) {
				t.Fatalf("X(%d,%d) changed from %v to %v", i, j, snapX.At(i, j), X.At(i, j))
			}
		}
		if y.At(i, 0) != snapY.At(i, 0) {
			t.Fatalf("y(%d) changed from %v to %v", i, snapY.At(i, 0), y.At(i, 0))
		}
	}
}

func TestPermutationCarriesComplementUnchanged(t *testing.T) {
	X, _ := syntheticData(60, 3, 41)

	// The model echoes column 2, which is outside the scored group, so every
	// permuted prediction exposes exactly what the scorer fed it there.
	echo := &columnEcho{col: 2}
	echo.SetFitted()

	scorer, err := New(echo, linear.New(),
		WithPermutations(6),
		WithGroups([]Group{{Name: "g0", Cols: []int{0}}}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := scorer.Fit(context.Background(), X); err != nil {
		t.Fatal(err)
	}
	perms, err := scorer.Permutations(context.Background(), X)
	if err != nil {
		t.Fatal(err)
	}

	n, _ := X.Dims()
	for p, pred := range perms[0] {
		for i := 0; i < n; i++ {
			if pred.At(i, 0) != X.At(i, 2) {
				t.Fatalf("permutation %d row %d: complement column value %v, want %v bit-identical",
					p, i, pred.At(i, 0), X.At(i, 2))
			}
		}
	}
}

// columnEcho predicts one input column unchanged, exposing what the scorer
// passes to the model.
type columnEcho struct {
	estimator.Base
	col int
}

func (m *columnEcho) Predict(X *mat.Dense) (*mat.Dense, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, X.At(i, m.col))
	}
	return out, nil
}

// noClone is an estimator without Clone, to exercise prototype validation.
type noClone struct {
	estimator.Base
}

func (n *noClone) Fit(X, Y *mat.Dense) error { n.SetFitted(); return nil }
func (n *noClone) Predict(X *mat.Dense) (*mat.Dense, error) {
	r, _ := X.Dims()
	return mat.NewDense(r, 1, nil), nil
}
