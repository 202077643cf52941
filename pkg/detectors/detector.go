// Package detectors provides the anomaly scoring strategies used by the
// baseline pipeline.
package detectors

// Method names for the scoring strategies. The two strategies are
// reported side by side and never merged into a single decision; any
// combination policy (union, intersection, vote) belongs in a separate
// layer on top of Strategy, not in the strategies themselves.
const (
	MethodIsolation = "isolation"
	MethodZScore    = "zscore"
)

// Detector is the common interface for anomaly scoring algorithms.
type Detector interface {
	// Fit trains the detector. data is a 2D slice where each row is a
	// sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns anomaly scores for the given samples. Higher values
	// indicate more anomalous samples.
	Predict(data [][]float64) ([]float64, error)

	// PredictOne returns the anomaly score for a single sample.
	PredictOne(sample []float64) (float64, error)

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Strategy is a named detector that can turn scores into boolean
// anomaly decisions using its own threshold policy.
type Strategy interface {
	Detector

	// Name identifies the strategy (MethodIsolation or MethodZScore).
	Name() string

	// Decide maps scores to anomaly decisions using the strategy's
	// fitted threshold.
	Decide(scores []float64) []bool
}

// Score represents one scored event.
type Score struct {
	// EventID identifies the scored event.
	EventID string
	// Method is the strategy that produced the score.
	Method string
	// Value is the anomaly score; higher means more anomalous.
	Value float64
	// Anomaly is the strategy's decision for this event.
	Anomaly bool
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies, in (0, 0.5).
	Contamination float64
	// ZThreshold is the |z| cutoff for the statistical strategy.
	ZThreshold float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.02,
		ZThreshold:    3.0,
		RandomSeed:    42,
	}
}
