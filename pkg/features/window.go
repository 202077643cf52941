// Package features derives per-event columns used by the anomaly scorers:
// calendar fields, trailing-window aggregates per entity group, and group
// z-score baselines.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/dispatchml/pkg/dataset"
)

// WindowSpec describes one trailing look-back window. Label is used in
// derived column names, e.g. "7D" yields route_id_mean_7D.
type WindowSpec struct {
	Duration time.Duration
	Label    string
}

// Days returns a WindowSpec spanning n calendar days.
func Days(n int) WindowSpec {
	return WindowSpec{
		Duration: time.Duration(n) * 24 * time.Hour,
		Label:    fmt.Sprintf("%dD", n),
	}
}

// DefaultWindows are the trailing windows applied when none are configured.
func DefaultWindows() []WindowSpec {
	return []WindowSpec{Days(7), Days(30)}
}

// Builder attaches derived columns to a dataset. It never reorders events
// and never overwrites source fields.
type Builder struct {
	windows        []WindowSpec
	keys           []string
	delayThreshold float64 // minutes; above this an event counts as delayed
	trailingZScore bool
	log            *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithWindows sets the trailing windows to compute.
func WithWindows(ws ...WindowSpec) BuilderOption {
	return func(b *Builder) { b.windows = ws }
}

// WithKeys sets the entity-key columns to aggregate by.
func WithKeys(keys ...string) BuilderOption {
	return func(b *Builder) { b.keys = keys }
}

// WithDelayThreshold sets the is_delayed cutoff in minutes.
func WithDelayThreshold(minutes float64) BuilderOption {
	return func(b *Builder) { b.delayThreshold = minutes }
}

// WithTrailingZScore enables the causal trailing z-score column in
// addition to the global one.
func WithTrailingZScore(on bool) BuilderOption {
	return func(b *Builder) { b.trailingZScore = on }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) BuilderOption {
	return func(b *Builder) { b.log = log }
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		windows:        DefaultWindows(),
		delayThreshold: 15,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run derives all configured columns in place. Keys default to the
// dataset schema's key columns.
func (b *Builder) Run(ds *dataset.Dataset) error {
	keys := b.keys
	if len(keys) == 0 {
		keys = ds.Schema.KeyColumns
	}

	b.prepare(ds)

	noTime := 0
	for _, e := range ds.Events {
		if !e.HasTimestamp {
			noTime++
		}
	}
	if noTime > 0 {
		b.log.Warn("events without timestamp excluded from window computation",
			zap.Int("count", noTime))
	}
	if noTime == ds.Len() {
		b.log.Warn("no valid timestamps; skipping trailing-window features")
	} else {
		for _, key := range keys {
			b.windowByKey(ds, key)
		}
	}

	for _, key := range keys {
		attachGroupZScore(ds, key)
		if b.trailingZScore {
			attachTrailingZScore(ds, key)
		}
	}
	return nil
}

// prepare fills the calendar and delay-derived event fields.
func (b *Builder) prepare(ds *dataset.Dataset) {
	for _, e := range ds.Events {
		if e.HasTimestamp {
			t := e.Timestamp.UTC()
			e.Hour = t.Hour()
			e.Weekday = t.Weekday()
			e.IsWeekend = t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
		}
		if e.HasDelay() {
			e.AbsDelay = math.Abs(e.DelayMinutes)
			e.IsDelayed = e.DelayMinutes > b.delayThreshold
		} else {
			e.AbsDelay = math.NaN()
		}
	}
}

// windowByKey computes trailing aggregates of the delay metric for every
// configured window, partitioned by one entity key. Events lacking a
// timestamp are skipped entirely; their window columns stay unset.
func (b *Builder) windowByKey(ds *dataset.Dataset, key string) {
	for _, w := range b.windows {
		for _, stat := range []string{"mean", "median", "std", "count"} {
			ds.RegisterFeature(fmt.Sprintf("%s_%s_%s", key, stat, w.Label))
		}
	}

	for _, idx := range ds.Group(key) {
		ordered := make([]int, 0, len(idx))
		for _, i := range idx {
			if ds.Events[i].HasTimestamp {
				ordered = append(ordered, i)
			}
		}
		// Stable sort keeps input order for equal timestamps.
		sort.SliceStable(ordered, func(a, c int) bool {
			return ds.Events[ordered[a]].Timestamp.Before(ds.Events[ordered[c]].Timestamp)
		})
		for _, w := range b.windows {
			b.slideWindow(ds, key, w, ordered)
		}
	}
}

// slideWindow walks one sorted group partition with a two-pointer window,
// so the whole partition costs amortized O(n) pointer movement instead of
// a full-history rescan per event.
func (b *Builder) slideWindow(ds *dataset.Dataset, key string, w WindowSpec, ordered []int) {
	meanCol := fmt.Sprintf("%s_mean_%s", key, w.Label)
	medianCol := fmt.Sprintf("%s_median_%s", key, w.Label)
	stdCol := fmt.Sprintf("%s_std_%s", key, w.Label)
	countCol := fmt.Sprintf("%s_count_%s", key, w.Label)

	agg := newWindowAgg()
	lo := 0
	for hi, i := range ordered {
		e := ds.Events[i]
		if e.HasDelay() {
			agg.push(e.DelayMinutes)
		}
		lower := e.Timestamp.Add(-w.Duration)
		for lo < hi && ds.Events[ordered[lo]].Timestamp.Before(lower) {
			old := ds.Events[ordered[lo]]
			if old.HasDelay() {
				agg.evict(old.DelayMinutes)
			}
			lo++
		}

		e.SetFeature(countCol, float64(agg.n))
		if agg.n == 0 {
			e.SetFeature(meanCol, math.NaN())
			e.SetFeature(medianCol, math.NaN())
			e.SetFeature(stdCol, math.NaN())
			continue
		}
		e.SetFeature(meanCol, agg.mean())
		e.SetFeature(medianCol, agg.median())
		e.SetFeature(stdCol, agg.std())
	}
}

// windowAgg maintains the values currently inside a trailing window:
// running sum and sum of squares for mean/std, and a sorted slice for the
// median. Push and evict keep the slice sorted via binary search.
type windowAgg struct {
	n      int
	sum    float64
	sumsq  float64
	sorted []float64
}

func newWindowAgg() *windowAgg {
	return &windowAgg{}
}

func (a *windowAgg) push(v float64) {
	a.n++
	a.sum += v
	a.sumsq += v * v
	pos := sort.SearchFloat64s(a.sorted, v)
	a.sorted = append(a.sorted, 0)
	copy(a.sorted[pos+1:], a.sorted[pos:])
	a.sorted[pos] = v
}

func (a *windowAgg) evict(v float64) {
	a.n--
	a.sum -= v
	a.sumsq -= v * v
	pos := sort.SearchFloat64s(a.sorted, v)
	a.sorted = append(a.sorted[:pos], a.sorted[pos+1:]...)
}

func (a *windowAgg) mean() float64 {
	return a.sum / float64(a.n)
}

// std is the population standard deviation. A single-element window is 0
// by construction; floating error can drive the variance slightly
// negative, which is clamped.
func (a *windowAgg) std() float64 {
	m := a.mean()
	variance := a.sumsq/float64(a.n) - m*m
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (a *windowAgg) median() float64 {
	n := len(a.sorted)
	if n%2 == 1 {
		return a.sorted[n/2]
	}
	return (a.sorted[n/2-1] + a.sorted[n/2]) / 2
}
