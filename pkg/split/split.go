// Package split partitions a dataset into walk-forward cross-validation
// folds that respect temporal order.
package split

import (
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/dispatchml/pkg/dataset"
)

// Fold is one train/test partition. Train and Test hold event indices
// into the dataset, in dataset order. For time-segmented folds every
// train timestamp is strictly earlier than every test timestamp.
type Fold struct {
	Index int // 1-based, in emission order
	Train []int
	Test  []int
}

// TimeSegmented splits by calendar date: the distinct dates present are
// divided into n contiguous, near-equal segments, and each fold trains on
// an expanding union of earlier segments and tests on the next one. With
// k segments at most k-1 folds are emitted.
type TimeSegmented struct {
	nSplits int
	log     *zap.Logger
}

// Option configures a TimeSegmented splitter.
type Option func(*TimeSegmented)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *TimeSegmented) { s.log = log }
}

// NewTimeSegmented creates a splitter with the given number of segments.
// Values below 2 are raised to 2.
func NewTimeSegmented(nSplits int, opts ...Option) *TimeSegmented {
	if nSplits < 2 {
		nSplits = 2
	}
	s := &TimeSegmented{nSplits: nSplits, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Folds emits the walk-forward folds for the dataset. Folds with an empty
// train or test partition are skipped. When no event carries a timestamp
// the splitter degrades to contiguous row-index chunks, which preserves
// fold mechanics but gives no temporal-leakage protection.
func (s *TimeSegmented) Folds(ds *dataset.Dataset) []Fold {
	dates := ds.Dates()
	if len(dates) == 0 {
		s.log.Warn("no timestamps present; falling back to row-index splits (no leakage protection)")
		return s.rowFolds(ds)
	}

	k := s.nSplits
	if len(dates) < k {
		k = len(dates)
		if k < 2 {
			k = 2
		}
		s.log.Info("reducing split count to distinct date count",
			zap.Int("requested", s.nSplits), zap.Int("effective", k))
	}
	segments := chunkDates(dates, k)

	// Events indexed by date for fast membership lookup. Events without a
	// timestamp belong to no segment and to no fold.
	byDate := make(map[time.Time][]int)
	for i, e := range ds.Events {
		if e.HasTimestamp {
			d := e.Date()
			byDate[d] = append(byDate[d], i)
		}
	}

	var folds []Fold
	var train []int
	for i := 0; i < len(segments)-1; i++ {
		for _, d := range segments[i] {
			train = append(train, byDate[d]...)
		}
		var test []int
		for _, d := range segments[i+1] {
			test = append(test, byDate[d]...)
		}
		if len(train) == 0 || len(test) == 0 {
			s.log.Warn("skipping degenerate fold",
				zap.Int("segment", i+1), zap.Int("train", len(train)), zap.Int("test", len(test)))
			continue
		}
		fold := Fold{
			Index: len(folds) + 1,
			Train: append([]int(nil), train...),
			Test:  test,
		}
		folds = append(folds, fold)
	}
	return folds
}

// rowFolds is the reduced-guarantee fallback: contiguous chunks of the
// event list in input order, expanding train, next chunk as test.
func (s *TimeSegmented) rowFolds(ds *dataset.Dataset) []Fold {
	idx := make([]int, ds.Len())
	for i := range idx {
		idx[i] = i
	}
	chunks := chunkInts(idx, s.nSplits)

	var folds []Fold
	var train []int
	for i := 0; i < len(chunks)-1; i++ {
		train = append(train, chunks[i]...)
		test := chunks[i+1]
		if len(train) == 0 || len(test) == 0 {
			continue
		}
		folds = append(folds, Fold{
			Index: len(folds) + 1,
			Train: append([]int(nil), train...),
			Test:  append([]int(nil), test...),
		})
	}
	return folds
}

// chunkDates divides dates into k contiguous near-equal segments; the
// first len(dates)%k segments carry one extra element.
func chunkDates(dates []time.Time, k int) [][]time.Time {
	out := make([][]time.Time, 0, k)
	n := len(dates)
	base, extra := n/k, n%k
	pos := 0
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}
		out = append(out, dates[pos:pos+size])
		pos += size
	}
	return out
}

func chunkInts(idx []int, k int) [][]int {
	out := make([][]int, 0, k)
	n := len(idx)
	base, extra := n/k, n%k
	pos := 0
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}
		out = append(out, idx[pos:pos+size])
		pos += size
	}
	return out
}
