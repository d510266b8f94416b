package learner

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"condimp/internal/parallel"
)

// Single learns one output column. It trains NEnsemble sub-networks on
// resampled train/validation cuts of the data and keeps the MinKeep best by
// validation loss; predictions average over the kept sub-networks.
type Single struct {
	cfg      Config
	nClasses int // classification only

	kept []*mlp
}

// NewSingle creates an unfitted per-output learner.
func NewSingle(cfg Config) *Single {
	return &Single{cfg: cfg}
}

type subResult struct {
	net     *mlp
	valLoss float64
}

// Fit trains the sub-network ensemble. For classification Y must already be
// one-hot encoded.
func (s *Single) Fit(ctx context.Context, X, Y [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("learner: empty training set")
	}
	in := len(X[0])
	out := len(Y[0])
	if s.cfg.Task == TaskClassification {
		s.nClasses = out
	}

	results := make([]subResult, s.cfg.NEnsemble)
	err := parallel.ForEach(ctx, s.cfg.Workers, s.cfg.NEnsemble, func(_ context.Context, e int) error {
		rng := rand.New(rand.NewSource(s.cfg.Seed + int64(e+1)*7919))
		train, valid := s.splitIndices(len(X), rng)

		net := newMLP(in, s.cfg.Hidden, out, s.cfg.Task, rng)
		for ep := 0; ep < s.cfg.Epochs; ep++ {
			net.trainEpoch(X, Y, train, s.cfg.BatchSize, s.cfg, rng)
		}
		results[e] = subResult{net: net, valLoss: net.valLoss(X, Y, valid)}
		return nil
	})
	if err != nil {
		return err
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].valLoss < results[b].valLoss })
	keep := s.cfg.MinKeep
	if keep > len(results) {
		keep = len(results)
	}
	if keep < 1 {
		keep = 1
	}
	s.kept = make([]*mlp, keep)
	for i := 0; i < keep; i++ {
		s.kept[i] = results[i].net
	}
	return nil
}

// splitIndices draws the train/validation cut for one sub-network. With
// Bootstrap the training part is sampled with replacement, so sub-networks
// see different resamples of the same cut.
func (s *Single) splitIndices(n int, rng *rand.Rand) (train, valid []int) {
	perm := rng.Perm(n)
	cut := int(float64(n) * s.cfg.SplitRatio)
	if cut < 1 {
		cut = 1
	}
	if cut >= n && n > 1 {
		cut = n - 1
	}
	base := perm[:cut]
	valid = perm[cut:]
	if !s.cfg.Bootstrap {
		return base, valid
	}
	train = make([]int, len(base))
	for i := range train {
		train[i] = base[rng.Intn(len(base))]
	}
	return train, valid
}

// predictRows averages the kept sub-network outputs for each row.
func (s *Single) predictRows(X [][]float64) ([][]float64, error) {
	if len(s.kept) == 0 {
		return nil, fmt.Errorf("learner: single learner is not fitted")
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		var acc []float64
		for _, net := range s.kept {
			_, o := net.forward(x)
			if acc == nil {
				acc = make([]float64, len(o))
			}
			for j := range o {
				acc[j] += o[j]
			}
		}
		for j := range acc {
			acc[j] /= float64(len(s.kept))
		}
		out[i] = acc
	}
	return out, nil
}

func denseToRows(m *mat.Dense) [][]float64 {
	n, _ := m.Dims()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}

func rowsToDense(rows [][]float64) *mat.Dense {
	n := len(rows)
	c := len(rows[0])
	out := mat.NewDense(n, c, nil)
	for i, r := range rows {
		out.SetRow(i, r)
	}
	return out
}
