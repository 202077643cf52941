package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/dispatchml/pkg/baseline"
	"github.com/hed1ad/dispatchml/pkg/io/csv"
	"github.com/hed1ad/dispatchml/pkg/split"
)

const (
	reportFile  = "baseline_report.json"
	flaggedFile = "flagged_anomalies.csv"
)

var modelOut string

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run the walk-forward anomaly baselines and flag anomalies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := ingest(cfg)
		if err != nil {
			return err
		}

		splitter := split.NewTimeSegmented(cfg.NSplits, split.WithLogger(log))
		folds := splitter.Folds(ds)
		log.Info("fold plan", zap.Int("folds", len(folds)))

		runner := baseline.NewRunner(
			baseline.WithContamination(cfg.Contamination),
			baseline.WithZThreshold(cfg.ZThreshold),
			baseline.WithEstimators(cfg.Estimators),
			baseline.WithProductionEstimators(cfg.ProductionEstimators),
			baseline.WithSeed(cfg.Seed),
			baseline.WithMetricColumn(cfg.Schema.MetricColumn),
			baseline.WithTopN(cfg.TopN),
			baseline.WithLogger(log),
		)

		report, err := runner.Evaluate(ds, folds)
		if err != nil {
			return err
		}
		flagged, forest, err := runner.ScoreAll(ds)
		if err != nil {
			return err
		}

		w, err := csv.NewWriter(cfg.OutputDir)
		if err != nil {
			return err
		}
		if err := report.WriteFile(w.Path(reportFile)); err != nil {
			return err
		}
		if err := w.WriteFlagged(ds, flaggedFile, flagged); err != nil {
			return err
		}
		log.Info("wrote run artifacts",
			zap.String("report", w.Path(reportFile)),
			zap.String("flagged", w.Path(flaggedFile)),
			zap.Int("n_folds", report.NFolds))

		if modelOut != "" {
			blob, err := forest.Save()
			if err != nil {
				return err
			}
			if err := os.WriteFile(modelOut, blob, 0o644); err != nil {
				return err
			}
			log.Info("saved production model", zap.String("path", modelOut))
		}
		return nil
	},
}

func init() {
	trainCmd.Flags().StringVar(&modelOut, "model-out", "", "optional path to save the production isolation forest")
}
