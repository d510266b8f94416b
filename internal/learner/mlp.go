package learner

import (
	"math"
	"math/rand"
)

// mlp is one sub-network: a single ReLU hidden layer trained with Adam.
// Regression uses a linear output and squared error; classification uses a
// softmax output and cross-entropy. The gradient of both at the output layer
// is prediction minus target, so training shares one code path.
type mlp struct {
	in, hidden, out int
	task            Task

	w1 [][]float64 // in x hidden
	b1 []float64
	w2 [][]float64 // hidden x out
	b2 []float64

	adam *adamState
}

func newMLP(in, hidden, out int, task Task, rng *rand.Rand) *mlp {
	m := &mlp{in: in, hidden: hidden, out: out, task: task}
	m.w1 = randMatrix(in, hidden, rng, math.Sqrt(2/float64(in)))
	m.b1 = make([]float64, hidden)
	m.w2 = randMatrix(hidden, out, rng, math.Sqrt(2/float64(hidden)))
	m.b2 = make([]float64, out)
	m.adam = newAdamState(m)
	return m
}

func randMatrix(r, c int, rng *rand.Rand, scale float64) [][]float64 {
	m := make([][]float64, r)
	for i := range m {
		m[i] = make([]float64, c)
		for j := range m[i] {
			m[i][j] = rng.NormFloat64() * scale
		}
	}
	return m
}

// forward returns the hidden activations and the output for one sample.
func (m *mlp) forward(x []float64) (hidden, out []float64) {
	hidden = make([]float64, m.hidden)
	for h := 0; h < m.hidden; h++ {
		s := m.b1[h]
		for i := 0; i < m.in; i++ {
			s += x[i] * m.w1[i][h]
		}
		if s > 0 {
			hidden[h] = s
		}
	}
	out = make([]float64, m.out)
	for o := 0; o < m.out; o++ {
		s := m.b2[o]
		for h := 0; h < m.hidden; h++ {
			s += hidden[h] * m.w2[h][o]
		}
		out[o] = s
	}
	if m.task == TaskClassification {
		softmaxInPlace(out)
	}
	return hidden, out
}

func softmaxInPlace(v []float64) {
	max := v[0]
	for _, x := range v[1:] {
		if x > max {
			max = x
		}
	}
	var sum float64
	for i := range v {
		v[i] = math.Exp(v[i] - max)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

// trainEpoch runs one pass of mini-batch Adam over the given sample indices.
func (m *mlp) trainEpoch(X, Y [][]float64, idx []int, batchSize int, cfg Config, rng *rand.Rand) {
	rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
	if batchSize < 1 {
		batchSize = 1
	}
	for start := 0; start < len(idx); start += batchSize {
		end := start + batchSize
		if end > len(idx) {
			end = len(idx)
		}
		m.step(X, Y, idx[start:end], cfg)
	}
}

// step accumulates gradients over one mini-batch and applies an Adam update.
func (m *mlp) step(X, Y [][]float64, batch []int, cfg Config) {
	gw1 := zeroMatrix(m.in, m.hidden)
	gb1 := make([]float64, m.hidden)
	gw2 := zeroMatrix(m.hidden, m.out)
	gb2 := make([]float64, m.out)

	inv := 1 / float64(len(batch))
	for _, s := range batch {
		x, y := X[s], Y[s]
		hidden, out := m.forward(x)

		// dL/dz at the output is (out - y) for both tasks.
		dOut := make([]float64, m.out)
		for o := 0; o < m.out; o++ {
			dOut[o] = (out[o] - y[o]) * inv
		}

		dHidden := make([]float64, m.hidden)
		for h := 0; h < m.hidden; h++ {
			if hidden[h] <= 0 {
				continue // ReLU gate
			}
			var acc float64
			for o := 0; o < m.out; o++ {
				acc += dOut[o] * m.w2[h][o]
			}
			dHidden[h] = acc
		}

		for o := 0; o < m.out; o++ {
			gb2[o] += dOut[o]
			for h := 0; h < m.hidden; h++ {
				gw2[h][o] += dOut[o] * hidden[h]
			}
		}
		for h := 0; h < m.hidden; h++ {
			if dHidden[h] == 0 {
				continue
			}
			gb1[h] += dHidden[h]
			for i := 0; i < m.in; i++ {
				gw1[i][h] += dHidden[h] * x[i]
			}
		}
	}

	addPenalty(gw1, m.w1, cfg.L1Weight, cfg.L2Weight)
	addPenalty(gw2, m.w2, cfg.L1Weight, cfg.L2Weight)

	m.adam.update(m, gw1, gb1, gw2, gb2, cfg)
}

func addPenalty(grad, w [][]float64, l1, l2 float64) {
	if l1 == 0 && l2 == 0 {
		return
	}
	for i := range w {
		for j := range w[i] {
			g := l2 * 2 * w[i][j]
			switch {
			case w[i][j] > 0:
				g += l1
			case w[i][j] < 0:
				g -= l1
			}
			grad[i][j] += g
		}
	}
}

func zeroMatrix(r, c int) [][]float64 {
	m := make([][]float64, r)
	for i := range m {
		m[i] = make([]float64, c)
	}
	return m
}

// valLoss is the mean per-sample loss over the given indices: squared error
// for regression, cross-entropy for classification.
func (m *mlp) valLoss(X, Y [][]float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var total float64
	for _, s := range idx {
		_, out := m.forward(X[s])
		y := Y[s]
		if m.task == TaskClassification {
			for o := range out {
				if y[o] == 1 {
					p := math.Max(out[o], 1e-15)
					total += -math.Log(p)
				}
			}
		} else {
			for o := range out {
				d := out[o] - y[o]
				total += d * d
			}
		}
	}
	return total / float64(len(idx))
}

// adamState holds the first and second moment estimates for every parameter.
type adamState struct {
	t                  int
	mw1, vw1, mw2, vw2 [][]float64
	mb1, vb1, mb2, vb2 []float64
}

func newAdamState(m *mlp) *adamState {
	return &adamState{
		mw1: zeroMatrix(m.in, m.hidden), vw1: zeroMatrix(m.in, m.hidden),
		mw2: zeroMatrix(m.hidden, m.out), vw2: zeroMatrix(m.hidden, m.out),
		mb1: make([]float64, m.hidden), vb1: make([]float64, m.hidden),
		mb2: make([]float64, m.out), vb2: make([]float64, m.out),
	}
}

func (a *adamState) update(m *mlp, gw1 [][]float64, gb1 []float64, gw2 [][]float64, gb2 []float64, cfg Config) {
	a.t++
	bc1 := 1 - math.Pow(cfg.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(cfg.Beta2, float64(a.t))

	adamMatrix(m.w1, gw1, a.mw1, a.vw1, cfg, bc1, bc2)
	adamMatrix(m.w2, gw2, a.mw2, a.vw2, cfg, bc1, bc2)
	adamVector(m.b1, gb1, a.mb1, a.vb1, cfg, bc1, bc2)
	adamVector(m.b2, gb2, a.mb2, a.vb2, cfg, bc1, bc2)
}

func adamMatrix(w, g, mm, vv [][]float64, cfg Config, bc1, bc2 float64) {
	for i := range w {
		for j := range w[i] {
			mm[i][j] = cfg.Beta1*mm[i][j] + (1-cfg.Beta1)*g[i][j]
			vv[i][j] = cfg.Beta2*vv[i][j] + (1-cfg.Beta2)*g[i][j]*g[i][j]
			w[i][j] -= cfg.LR * (mm[i][j] / bc1) / (math.Sqrt(vv[i][j]/bc2) + cfg.Epsilon)
		}
	}
}

func adamVector(w, g, mm, vv []float64, cfg Config, bc1, bc2 float64) {
	for i := range w {
		mm[i] = cfg.Beta1*mm[i] + (1-cfg.Beta1)*g[i]
		vv[i] = cfg.Beta2*vv[i] + (1-cfg.Beta2)*g[i]*g[i]
		w[i] -= cfg.LR * (mm[i] / bc1) / (math.Sqrt(vv[i]/bc2) + cfg.Epsilon)
	}
}
