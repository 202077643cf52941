package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/dispatchml/pkg/config"
	"github.com/hed1ad/dispatchml/pkg/dataset"
	"github.com/hed1ad/dispatchml/pkg/features"
	"github.com/hed1ad/dispatchml/pkg/io/csv"
)

const (
	featuresFile       = "dispatch_features.csv"
	featuresSampleFile = "dispatch_features_sample.csv"
	featuresSampleSize = 1000
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Derive windowed features and group z-scores from an event CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := ingest(cfg)
		if err != nil {
			return err
		}

		w, err := csv.NewWriter(cfg.OutputDir)
		if err != nil {
			return err
		}
		if err := w.WriteFeatures(ds, featuresFile); err != nil {
			return err
		}
		if err := w.WriteSample(ds, featuresSampleFile, featuresSampleSize); err != nil {
			return err
		}
		log.Info("wrote feature artifacts",
			zap.String("features", w.Path(featuresFile)),
			zap.String("sample", w.Path(featuresSampleFile)),
			zap.Int("events", ds.Len()),
			zap.Int("derived_columns", len(ds.FeatureColumns)))
		return nil
	},
}

// ingest loads the input CSV and attaches all derived columns.
func ingest(cfg config.Config) (*dataset.Dataset, error) {
	schema := dataset.Schema{
		IDColumn:     cfg.Schema.IDColumn,
		TimeColumn:   cfg.Schema.TimeColumn,
		KeyColumns:   cfg.Schema.KeyColumns,
		MetricColumn: cfg.Schema.MetricColumn,
		LabelColumn:  cfg.Schema.LabelColumn,
	}
	r, err := csv.NewReader(cfg.InputPath, schema)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer r.Close()

	ds, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	log.Info("loaded dataset",
		zap.String("path", cfg.InputPath),
		zap.Int("events", ds.Len()),
		zap.Bool("labeled", ds.Labeled()))

	windows := make([]features.WindowSpec, 0, len(cfg.WindowDays))
	for _, d := range cfg.WindowDays {
		windows = append(windows, features.Days(d))
	}
	builder := features.NewBuilder(
		features.WithWindows(windows...),
		features.WithKeys(cfg.Schema.KeyColumns...),
		features.WithDelayThreshold(cfg.DelayThresholdMinutes),
		features.WithTrailingZScore(cfg.TrailingZScore),
		features.WithLogger(log),
	)
	if err := builder.Run(ds); err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}
	return ds, nil
}
