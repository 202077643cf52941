// Package zscore implements the statistical baseline strategy: a
// univariate z-score of one designated feature column against the mean
// and standard deviation of the training partition only.
package zscore

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hed1ad/dispatchml/pkg/detectors"
)

// Scorer standardizes a single column of the feature matrix. The score is
// |z|, so higher is more anomalous; the decision is |z| > threshold.
type Scorer struct {
	mu sync.RWMutex

	column    int
	threshold float64

	mean    float64
	std     float64
	trained bool
}

var _ detectors.Strategy = (*Scorer)(nil)

// Option configures a Scorer.
type Option func(*Scorer)

// WithColumn sets the index of the designated metric column in the
// feature matrix. Defaults to 0.
func WithColumn(i int) Option {
	return func(s *Scorer) { s.column = i }
}

// WithThreshold sets the |z| decision cutoff.
func WithThreshold(t float64) Option {
	return func(s *Scorer) { s.threshold = t }
}

// New creates a Scorer with the given options.
func New(opts ...Option) *Scorer {
	s := &Scorer{threshold: detectors.DefaultConfig().ZThreshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the strategy.
func (s *Scorer) Name() string { return detectors.MethodZScore }

// Fit computes the mean and population standard deviation of the
// designated column. A zero or undefined standard deviation falls back to
// 1.0, so scoring degrades to centered deviations instead of NaN; a
// constant training column therefore never flags by itself.
func (s *Scorer) Fit(data [][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) == 0 {
		return errors.New("empty training data")
	}
	if s.column >= len(data[0]) {
		return fmt.Errorf("column %d out of range (%d features)", s.column, len(data[0]))
	}

	var sum, sumsq float64
	for _, row := range data {
		v := row[s.column]
		sum += v
		sumsq += v * v
	}
	n := float64(len(data))
	s.mean = sum / n
	variance := sumsq/n - s.mean*s.mean
	if variance > 0 {
		s.std = math.Sqrt(variance)
	} else {
		s.std = 1.0
	}
	s.trained = true
	return nil
}

// Predict returns |z| for each sample's designated column.
func (s *Scorer) Predict(data [][]float64) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.trained {
		return nil, errors.New("model not trained")
	}

	scores := make([]float64, len(data))
	for i, row := range data {
		if s.column >= len(row) {
			return nil, fmt.Errorf("column %d out of range (%d features)", s.column, len(row))
		}
		scores[i] = math.Abs((row[s.column] - s.mean) / s.std)
	}
	return scores, nil
}

// PredictOne returns |z| for a single sample.
func (s *Scorer) PredictOne(sample []float64) (float64, error) {
	scores, err := s.Predict([][]float64{sample})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// Decide maps scores to anomaly decisions using the |z| cutoff.
func (s *Scorer) Decide(scores []float64) []bool {
	s.mu.RLock()
	threshold := s.threshold
	s.mu.RUnlock()

	out := make([]bool, len(scores))
	for i, v := range scores {
		out[i] = v > threshold
	}
	return out
}

// Threshold returns the |z| decision cutoff.
func (s *Scorer) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// Save serializes the fitted parameters.
func (s *Scorer) Save() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.trained {
		return nil, errors.New("model not trained")
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, v := range []any{s.column, s.threshold, s.mean, s.std} {
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Load deserializes fitted parameters.
func (s *Scorer) Load(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dec := gob.NewDecoder(bytes.NewBuffer(data))
	for _, v := range []any{&s.column, &s.threshold, &s.mean, &s.std} {
		if err := dec.Decode(v); err != nil {
			return err
		}
	}
	s.trained = true
	return nil
}
