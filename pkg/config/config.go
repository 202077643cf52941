// Package config holds the explicit run configuration consumed by every
// pipeline component. Values come from built-in defaults, an optional
// YAML file, DISPATCHML_* environment variables and CLI flags, in rising
// priority.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full configuration surface of a pipeline run.
type Config struct {
	// InputPath is the event CSV to ingest.
	InputPath string `mapstructure:"input_path"`

	// OutputDir receives all artifacts.
	OutputDir string `mapstructure:"output_dir"`

	// Contamination is the expected anomaly fraction, in (0, 0.5).
	Contamination float64 `mapstructure:"contamination"`

	// NSplits is the number of date segments for walk-forward folds.
	NSplits int `mapstructure:"n_splits"`

	// ZThreshold is the |z| cutoff of the statistical baseline.
	ZThreshold float64 `mapstructure:"z_threshold"`

	// WindowDays are the trailing window lengths in days.
	WindowDays []int `mapstructure:"window_days"`

	// DelayThresholdMinutes is the is_delayed cutoff.
	DelayThresholdMinutes float64 `mapstructure:"delay_threshold_minutes"`

	// TopN bounds the flagged-anomalies artifact.
	TopN int `mapstructure:"top_n"`

	// Seed is the random seed; fixed by default for reproducible runs.
	Seed int64 `mapstructure:"seed"`

	// Estimators is the per-fold isolation forest size;
	// ProductionEstimators the full-dataset one.
	Estimators           int `mapstructure:"estimators"`
	ProductionEstimators int `mapstructure:"production_estimators"`

	// TrailingZScore additionally attaches the causal per-group z-score
	// column next to the global descriptive one.
	TrailingZScore bool `mapstructure:"trailing_zscore"`

	Schema  SchemaConfig  `mapstructure:"schema"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SchemaConfig names the input columns; resolved once at ingestion.
type SchemaConfig struct {
	IDColumn     string   `mapstructure:"id_column"`
	TimeColumn   string   `mapstructure:"time_column"`
	KeyColumns   []string `mapstructure:"key_columns"`
	MetricColumn string   `mapstructure:"metric_column"`
	LabelColumn  string   `mapstructure:"label_column"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // console | json
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		InputPath:             "data/processed/dispatch_dataset.csv",
		OutputDir:             "reports/models",
		Contamination:         0.02,
		NSplits:               5,
		ZThreshold:            3.0,
		WindowDays:            []int{7, 30},
		DelayThresholdMinutes: 15,
		TopN:                  1000,
		Seed:                  42,
		Estimators:            100,
		ProductionEstimators:  200,
		Schema: SchemaConfig{
			TimeColumn:   "timestamp",
			KeyColumns:   []string{"route_id", "plant_id"},
			MetricColumn: "dispatch_delay_minutes",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from the optional file path, the environment
// and defaults, and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("DISPATCHML")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("input_path", d.InputPath)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("contamination", d.Contamination)
	v.SetDefault("n_splits", d.NSplits)
	v.SetDefault("z_threshold", d.ZThreshold)
	v.SetDefault("window_days", d.WindowDays)
	v.SetDefault("delay_threshold_minutes", d.DelayThresholdMinutes)
	v.SetDefault("top_n", d.TopN)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("estimators", d.Estimators)
	v.SetDefault("production_estimators", d.ProductionEstimators)
	v.SetDefault("trailing_zscore", d.TrailingZScore)
	v.SetDefault("schema.id_column", d.Schema.IDColumn)
	v.SetDefault("schema.time_column", d.Schema.TimeColumn)
	v.SetDefault("schema.key_columns", d.Schema.KeyColumns)
	v.SetDefault("schema.metric_column", d.Schema.MetricColumn)
	v.SetDefault("schema.label_column", d.Schema.LabelColumn)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate rejects configurations the pipeline cannot honor.
func (c *Config) Validate() error {
	if c.Contamination <= 0 || c.Contamination >= 0.5 {
		return fmt.Errorf("config: contamination must be in (0, 0.5), got %v", c.Contamination)
	}
	if c.NSplits < 2 {
		return fmt.Errorf("config: n_splits must be >= 2, got %d", c.NSplits)
	}
	if c.ZThreshold <= 0 {
		return fmt.Errorf("config: z_threshold must be positive, got %v", c.ZThreshold)
	}
	for _, d := range c.WindowDays {
		if d <= 0 {
			return fmt.Errorf("config: window_days entries must be positive, got %d", d)
		}
	}
	if c.TopN <= 0 {
		return fmt.Errorf("config: top_n must be positive, got %d", c.TopN)
	}
	if c.Estimators <= 0 || c.ProductionEstimators <= 0 {
		return fmt.Errorf("config: estimator counts must be positive")
	}
	if c.Schema.MetricColumn == "" {
		return fmt.Errorf("config: schema.metric_column is required")
	}
	if len(c.Schema.KeyColumns) == 0 {
		return fmt.Errorf("config: schema.key_columns must name at least one grouping column")
	}
	return nil
}
