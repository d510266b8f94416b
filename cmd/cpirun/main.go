// Command cpirun scores covariate importance for a tabular dataset with
// Conditional Permutation Importance. The predictive model is either an
// ensemble learner trained on a train split, or an already-fitted model
// behind a remote HTTP endpoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"condimp/internal/cfg"
	"condimp/internal/cpi"
	"condimp/internal/dataset"
	"condimp/internal/estimator"
	"condimp/internal/estimator/knn"
	"condimp/internal/estimator/linear"
	"condimp/internal/estimator/remote"
	"condimp/internal/learner"
	"condimp/internal/loss"
	"condimp/internal/metrics"
	"condimp/internal/report"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	startMetricsServer(ctx, c)

	if err := run(ctx, c, m); err != nil {
		m.ErrorsTotal.Inc()
		log.Fatal().Err(err).Msg("importance run failed")
	}
}

func run(ctx context.Context, c cfg.Settings, m *metrics.Metrics) error {
	ds, err := dataset.LoadCSV(c.DatasetPath, c.TargetColumn)
	if err != nil {
		return err
	}
	n, d := ds.X.Dims()
	log.Info().
		Str("dataset", c.DatasetPath).
		Int("samples", n).
		Int("features", d).
		Msg("dataset loaded")

	train, test, err := ds.Split(c.SplitRatio, c.Seed)
	if err != nil {
		return err
	}

	trainX, testX := train.X, test.X
	if c.Standardize {
		scaler := dataset.FitScaler(train.X)
		trainX = scaler.Transform(train.X)
		testX = scaler.Transform(test.X)
	}

	model, err := buildModel(ctx, c, m, trainX, train.Y)
	if err != nil {
		return err
	}

	groups, err := resolveGroups(c.Groups, ds.FeatureNames)
	if err != nil {
		return err
	}

	lossFn, err := loss.ByName(c.Loss)
	if err != nil {
		return err
	}
	if c.ScoreProba {
		// Probability columns are indexed by fitted class order, which only
		// matches raw label values when labels happen to be 0..k-1.
		if cl, ok := model.(interface{ Classes() []float64 }); ok {
			lossFn = loss.ForClasses(cl.Classes(), lossFn)
		}
	}

	opts := []cpi.Option{
		cpi.WithPermutations(c.NPerm),
		cpi.WithLoss(lossFn),
		cpi.WithSeed(c.Seed),
		cpi.WithWorkers(c.Workers),
		cpi.WithMetrics(metrics.NewRecorder(m)),
	}
	if len(groups) > 0 {
		opts = append(opts, cpi.WithGroups(groups))
	} else {
		opts = append(opts, cpi.WithGroups(perFeatureGroups(ds.FeatureNames)))
	}
	if c.ScoreProba {
		opts = append(opts, cpi.WithScoreProba())
	}

	scorer, err := cpi.New(model, buildImputation(c), opts...)
	if err != nil {
		return err
	}

	if err := scorer.Fit(ctx, testX); err != nil {
		return err
	}
	result, err := scorer.Score(ctx, testX, test.Y)
	if err != nil {
		return err
	}

	for j, name := range result.Groups {
		log.Info().
			Str("group", name).
			Float64("importance", result.Importance[j]).
			Msg("group scored")
	}
	log.Info().
		Float64("loss_reference", result.LossReference).
		Strs("top", result.Top(5)).
		Msg("importance run complete")

	runRecord := report.Run{
		Name:      c.RunName,
		CreatedAt: time.Now(),
		Loss:      c.Loss,
		NPerm:     c.NPerm,
		Seed:      c.Seed,
		Result:    result,
	}
	if c.ReportPath != "" {
		if err := report.WriteJSON(c.ReportPath, runRecord); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		log.Info().Str("path", c.ReportPath).Msg("report written")
	}
	if c.DataPath != "" {
		store, err := report.Open(c.DataPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Save(runRecord); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		log.Info().Str("data_path", c.DataPath).Msg("run stored")
	}
	return nil
}

// buildModel trains the ensemble learner, or wraps the configured remote
// endpoint when one is set.
func buildModel(ctx context.Context, c cfg.Settings, m *metrics.Metrics, X, Y *mat.Dense) (estimator.Predictor, error) {
	if c.RemoteURL != "" {
		log.Info().Str("url", c.RemoteURL).Msg("using remote model")
		return remote.New(c.RemoteURL, c.RESTTimeout), nil
	}

	lcfg := learner.DefaultConfig()
	lcfg.Workers = c.Workers
	lcfg.Seed = c.Seed
	if c.ScoreProba {
		lcfg.Task = learner.TaskClassification
	}

	ens := learner.NewEnsemble(lcfg)
	start := time.Now()
	if err := ens.FitContext(ctx, X, Y); err != nil {
		return nil, fmt.Errorf("train ensemble: %w", err)
	}
	m.LearnerFits.Inc()
	m.LearnerFitLatency.Observe(time.Since(start).Seconds())
	log.Info().Dur("elapsed", time.Since(start)).Msg("ensemble trained")
	return ens, nil
}

func buildImputation(c cfg.Settings) estimator.Estimator {
	if c.Imputation == "knn" {
		return knn.New(knn.WithK(c.KNNK))
	}
	return linear.New(linear.WithAlpha(c.RidgeAlpha))
}

// resolveGroups maps configured feature-name groups to column groups, in
// sorted name order so runs are reproducible.
func resolveGroups(groups map[string][]string, featureNames []string) ([]cpi.Group, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	index := make(map[string]int, len(featureNames))
	for i, name := range featureNames {
		index[name] = i
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]cpi.Group, 0, len(names))
	for _, name := range names {
		cols := make([]int, 0, len(groups[name]))
		for _, feature := range groups[name] {
			idx, ok := index[feature]
			if !ok {
				return nil, fmt.Errorf("group %q references unknown feature %q", name, feature)
			}
			cols = append(cols, idx)
		}
		out = append(out, cpi.Group{Name: name, Cols: cols})
	}
	return out, nil
}

func perFeatureGroups(featureNames []string) []cpi.Group {
	out := make([]cpi.Group, len(featureNames))
	for i, name := range featureNames {
		out[i] = cpi.Group{Name: name, Cols: []int{i}}
	}
	return out
}

func startMetricsServer(ctx context.Context, c cfg.Settings) {
	if c.MetricsPort == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Int("port", c.MetricsPort).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}()
}
