// Command ensemble trains the ensemble learner on a CSV dataset and reports
// the held-out loss. It is the standalone training entry point; cpirun uses
// the same learner internally when no remote model is configured.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"condimp/internal/cfg"
	"condimp/internal/dataset"
	"condimp/internal/learner"
	"condimp/internal/loss"
)

func main() {
	var (
		datasetPath = flag.String("data", "", "Path to CSV dataset (overrides config)")
		target      = flag.String("target", "", "Target column name (overrides config)")
		task        = flag.String("task", "", "Task: regression or classification (overrides config)")
		epochs      = flag.Int("epochs", 0, "Training epochs per sub-network (overrides default)")
		nEnsemble   = flag.Int("ensemble", 0, "Sub-networks trained per output (overrides default)")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *datasetPath != "" {
		c.DatasetPath = *datasetPath
	}
	if *target != "" {
		c.TargetColumn = *target
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, c, *task, *epochs, *nEnsemble); err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}
}

func run(ctx context.Context, c cfg.Settings, task string, epochs, nEnsemble int) error {
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

	lcfg := learner.DefaultConfig()
	lcfg.Workers = c.Workers
	lcfg.Seed = c.Seed
	switch task {
	case "":
		if c.ScoreProba {
			lcfg.Task = learner.TaskClassification
		}
	case "regression":
		lcfg.Task = learner.TaskRegression
	case "classification":
		lcfg.Task = learner.TaskClassification
	default:
		return fmt.Errorf("unknown task %q", task)
	}
	if epochs > 0 {
		lcfg.Epochs = epochs
	}
	if nEnsemble > 0 {
		lcfg.NEnsemble = nEnsemble
		if lcfg.MinKeep > nEnsemble {
			lcfg.MinKeep = nEnsemble
		}
	}

	ens := learner.NewEnsemble(lcfg)
	start := time.Now()
	if err := ens.FitContext(ctx, trainX, train.Y); err != nil {
		return fmt.Errorf("train ensemble: %w", err)
	}
	log.Info().
		Dur("elapsed", time.Since(start)).
		Int("ensemble", lcfg.NEnsemble).
		Int("epochs", lcfg.Epochs).
		Msg("ensemble trained")

	lossFn, err := loss.ByName(c.Loss)
	if err != nil {
		return err
	}

	var heldOut float64
	if lcfg.Task == learner.TaskClassification && c.Loss == "logloss" {
		probs, err := ens.PredictProba(testX)
		if err != nil {
			return err
		}
		heldOut = loss.ForClasses(ens.Classes(), lossFn)(test.Y, probs)
	} else {
		preds, err := ens.Predict(testX)
		if err != nil {
			return err
		}
		heldOut = lossFn(test.Y, preds)
	}

	trainPreds, err := ens.Predict(trainX)
	if err != nil {
		return err
	}
	log.Info().
		Str("loss", c.Loss).
		Float64("train", lossFn(train.Y, trainPreds)).
		Float64("held_out", heldOut).
		Msg("evaluation complete")
	return nil
}
