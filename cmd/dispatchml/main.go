// Command dispatchml runs the delivery-delay anomaly pipeline: feature
// engineering over an event CSV and the cross-validated anomaly
// baselines with their artifacts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/dispatchml/pkg/config"
	"github.com/hed1ad/dispatchml/pkg/logging"
)

var (
	cfgFile string
	cfg     config.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "dispatchml",
	Short:         "Anomaly detection for delivery-delay events",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}
		log, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// applyFlags overlays explicitly-set CLI flags on the loaded config.
func applyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("input") {
		cfg.InputPath, _ = f.GetString("input")
	}
	if f.Changed("out-dir") {
		cfg.OutputDir, _ = f.GetString("out-dir")
	}
	if f.Changed("contamination") {
		cfg.Contamination, _ = f.GetFloat64("contamination")
	}
	if f.Changed("n-splits") {
		cfg.NSplits, _ = f.GetInt("n-splits")
	}
	if f.Changed("seed") {
		cfg.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("log-level") {
		cfg.Logging.Level, _ = f.GetString("log-level")
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "path to YAML config file")
	pf.String("input", "", "input event CSV")
	pf.String("out-dir", "", "artifact output directory")
	pf.Float64("contamination", 0.02, "expected anomaly fraction (0, 0.5)")
	pf.Int("n-splits", 5, "number of date segments for walk-forward folds")
	pf.Int64("seed", 42, "random seed")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(featuresCmd, trainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
