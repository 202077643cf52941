package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/hed1ad/dispatchml/pkg/dataset"
)

// attachGroupZScore computes the global z-score baseline for one entity
// key: group mean/std taken over every event carrying that key, without
// regard to temporal order. This is a descriptive baseline, deliberately
// distinct from the causal windowed features; a zero-std group yields NaN
// for every member rather than an error.
func attachGroupZScore(ds *dataset.Dataset, key string) {
	col := fmt.Sprintf("%s_zscore", key)
	ds.RegisterFeature(col)

	for _, idx := range ds.Group(key) {
		var n int
		var sum, sumsq float64
		for _, i := range idx {
			e := ds.Events[i]
			if !e.HasDelay() {
				continue
			}
			n++
			sum += e.DelayMinutes
			sumsq += e.DelayMinutes * e.DelayMinutes
		}

		mean, std := math.NaN(), math.NaN()
		if n > 0 {
			mean = sum / float64(n)
			variance := sumsq/float64(n) - mean*mean
			if variance < 0 {
				variance = 0
			}
			std = math.Sqrt(variance)
		}

		for _, i := range idx {
			e := ds.Events[i]
			if !e.HasDelay() || std == 0 || math.IsNaN(std) {
				e.SetFeature(col, math.NaN())
				continue
			}
			e.SetFeature(col, (e.DelayMinutes-mean)/std)
		}
	}
}

// attachTrailingZScore is the causal variant: each event is standardized
// against the expanding mean/std of its group up to and including itself,
// in timestamp order. Events without a timestamp or delay stay NaN.
func attachTrailingZScore(ds *dataset.Dataset, key string) {
	col := fmt.Sprintf("%s_zscore_trailing", key)
	ds.RegisterFeature(col)

	for _, idx := range ds.Group(key) {
		ordered := sortByTime(ds, idx)

		var n int
		var sum, sumsq float64
		for _, i := range ordered {
			e := ds.Events[i]
			if !e.HasDelay() {
				e.SetFeature(col, math.NaN())
				continue
			}
			n++
			sum += e.DelayMinutes
			sumsq += e.DelayMinutes * e.DelayMinutes

			mean := sum / float64(n)
			variance := sumsq/float64(n) - mean*mean
			if variance < 0 {
				variance = 0
			}
			std := math.Sqrt(variance)
			if std == 0 {
				e.SetFeature(col, math.NaN())
				continue
			}
			e.SetFeature(col, (e.DelayMinutes-mean)/std)
		}

		// No temporal order without timestamps; leave those members NaN.
		for _, i := range idx {
			e := ds.Events[i]
			if !e.HasTimestamp {
				e.SetFeature(col, math.NaN())
			}
		}
	}
}

func sortByTime(ds *dataset.Dataset, idx []int) []int {
	ordered := make([]int, 0, len(idx))
	for _, i := range idx {
		if ds.Events[i].HasTimestamp {
			ordered = append(ordered, i)
		}
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return ds.Events[ordered[a]].Timestamp.Before(ds.Events[ordered[b]].Timestamp)
	})
	return ordered
}
