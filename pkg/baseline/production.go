package baseline

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/hed1ad/dispatchml/pkg/dataset"
	"github.com/hed1ad/dispatchml/pkg/detectors/iforest"
)

// Flagged is one row of the operational flagged-anomalies artifact.
type Flagged struct {
	Event *dataset.Event

	IFScore   float64
	IFAnomaly bool

	// DelayZ is the signed z-score of the delay metric against the
	// full-dataset mean/std; NaN when the event has no delay value.
	DelayZ   float64
	ZAnomaly bool
}

// ScoreAll trains a larger isolation forest on the entire dataset,
// including the rows it scores, and returns the rows sorted by
// descending isolation score, truncated to the configured top N. This is
// descriptive operational flagging, not a held-out evaluation; it must
// never be read as one. The fitted forest is returned so callers can
// persist the model artifact.
func (r *Runner) ScoreAll(ds *dataset.Dataset) ([]Flagged, *iforest.Forest, error) {
	registry := ds.BuildRegistry()
	if len(registry.Extractors) == 0 {
		return nil, nil, dataset.ErrNoNumericFeatures
	}

	idx := make([]int, ds.Len())
	for i := range idx {
		idx[i] = i
	}
	matrix, err := registry.Matrix(ds.Events, idx)
	if err != nil {
		return nil, nil, err
	}

	forest := iforest.New(
		iforest.WithTrees(r.prodEstimators),
		iforest.WithContamination(r.contamination),
		iforest.WithSeed(r.seed),
	)
	if err := forest.Fit(matrix); err != nil {
		return nil, nil, fmt.Errorf("production fit: %w", err)
	}
	scores, err := forest.Predict(matrix)
	if err != nil {
		return nil, nil, fmt.Errorf("production score: %w", err)
	}
	flags := forest.Decide(scores)

	mean, std := delayStats(ds)

	rows := make([]Flagged, ds.Len())
	for i, e := range ds.Events {
		row := Flagged{
			Event:     e,
			IFScore:   scores[i],
			IFAnomaly: flags[i],
			DelayZ:    math.NaN(),
		}
		if e.HasDelay() {
			row.DelayZ = (e.DelayMinutes - mean) / std
			row.ZAnomaly = math.Abs(row.DelayZ) > r.zThreshold
		}
		rows[i] = row
	}

	// Stable sort keeps input order for tied scores, so a fixed seed
	// yields byte-identical artifacts run to run.
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].IFScore > rows[b].IFScore })
	if r.topN > 0 && len(rows) > r.topN {
		rows = rows[:r.topN]
	}

	r.log.Info("production scoring complete",
		zap.Int("scored", ds.Len()),
		zap.Int("flagged", countTrue(flags)),
		zap.Int("kept", len(rows)))
	return rows, forest, nil
}

// delayStats returns the full-dataset mean and population standard
// deviation of the delay metric, with the zero-std fallback of 1.0 used
// by the statistical baseline.
func delayStats(ds *dataset.Dataset) (mean, std float64) {
	var n int
	var sum, sumsq float64
	for _, e := range ds.Events {
		if !e.HasDelay() {
			continue
		}
		n++
		sum += e.DelayMinutes
		sumsq += e.DelayMinutes * e.DelayMinutes
	}
	if n == 0 {
		return 0, 1
	}
	mean = sum / float64(n)
	variance := sumsq/float64(n) - mean*mean
	if variance > 0 {
		std = math.Sqrt(variance)
	} else {
		std = 1
	}
	return mean, std
}
