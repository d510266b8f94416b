// Package remote adapts an HTTP model server to the estimator contract. The
// server owns fitting; this client only scores, which is exactly what the
// importance scorer needs from an already-fitted predictive model.
package remote

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"gonum.org/v1/gonum/mat"

	"condimp/internal/estimator"
)

var _ estimator.ProbaPredictor = (*Client)(nil)

// Client scores feature matrices against a remote model server.
type Client struct {
	base string
	rest *resty.Client
}

// New creates a client for the model server at base, e.g. "http://host:9000".
func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Client{base: base, rest: r}
}

type scoreReq struct {
	Features [][]float64 `json:"features"`
}

type scoreResp struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// Predict posts the feature rows to /predict.
func (c *Client) Predict(X *mat.Dense) (*mat.Dense, error) {
	return c.score("/predict", X)
}

// PredictProba posts the feature rows to /predict_proba.
func (c *Client) PredictProba(X *mat.Dense) (*mat.Dense, error) {
	return c.score("/predict_proba", X)
}

func (c *Client) score(path string, X *mat.Dense) (*mat.Dense, error) {
	n, _ := X.Dims()
	req := scoreReq{Features: make([][]float64, n)}
	for i := 0; i < n; i++ {
		req.Features[i] = mat.Row(nil, i, X)
	}

	resp := &scoreResp{}
	httpResp, err := c.rest.R().
		SetBody(req).
		SetResult(resp).
		ForceContentType("application/json").
		Post(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", path, err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("remote %s: status %s", path, httpResp.Status())
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote %s: %s", path, resp.Error)
	}
	if len(resp.Predictions) != n {
		return nil, fmt.Errorf("remote %s: expected %d prediction rows, got %d", path, n, len(resp.Predictions))
	}

	k := len(resp.Predictions[0])
	out := mat.NewDense(n, k, nil)
	for i, row := range resp.Predictions {
		if len(row) != k {
			return nil, fmt.Errorf("remote %s: ragged prediction row %d", path, i)
		}
		out.SetRow(i, row)
	}
	return out, nil
}
