package features

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/dispatchml/pkg/dataset"
)

var day0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func mkEvent(id, route string, dayOffset float64, delay float64) *dataset.Event {
	return &dataset.Event{
		ID:           id,
		Keys:         map[string]string{"route_id": route},
		Timestamp:    day0.Add(time.Duration(dayOffset * 24 * float64(time.Hour))),
		HasTimestamp: true,
		DelayMinutes: delay,
		AbsDelay:     math.NaN(),
	}
}

func mkDataset(events ...*dataset.Event) *dataset.Dataset {
	ds := dataset.New(dataset.Schema{
		TimeColumn:   "timestamp",
		KeyColumns:   []string{"route_id"},
		MetricColumn: "dispatch_delay_minutes",
	})
	for _, e := range events {
		ds.Append(e)
	}
	return ds
}

func feature(t *testing.T, e *dataset.Event, name string) float64 {
	t.Helper()
	v, ok := e.Features[name]
	require.True(t, ok, "feature %s missing", name)
	return v
}

func TestWindowStats(t *testing.T) {
	ds := mkDataset(
		mkEvent("e1", "R1", 0, 10),
		mkEvent("e2", "R1", 1, 20),
		mkEvent("e3", "R1", 2, 30),
	)
	builder := NewBuilder(WithWindows(Days(7)))
	require.NoError(t, builder.Run(ds))

	e3 := ds.Events[2]
	assert.InDelta(t, 20, feature(t, e3, "route_id_mean_7D"), 1e-9)
	assert.InDelta(t, 20, feature(t, e3, "route_id_median_7D"), 1e-9)
	assert.InDelta(t, math.Sqrt(200.0/3), feature(t, e3, "route_id_std_7D"), 1e-9)
	assert.Equal(t, 3.0, feature(t, e3, "route_id_count_7D"))

	// First event only sees itself.
	e1 := ds.Events[0]
	assert.Equal(t, 1.0, feature(t, e1, "route_id_count_7D"))
	assert.Equal(t, 0.0, feature(t, e1, "route_id_std_7D"))
	assert.InDelta(t, 10, feature(t, e1, "route_id_mean_7D"), 1e-9)
}

func TestWindowEvictsOutsideDuration(t *testing.T) {
	ds := mkDataset(
		mkEvent("e1", "R1", 0, 100),
		mkEvent("e2", "R1", 10, 20), // e1 is 10 days back, outside 7D
		mkEvent("e3", "R1", 17, 30), // e2 is exactly 7 days back, inclusive
	)
	builder := NewBuilder(WithWindows(Days(7)))
	require.NoError(t, builder.Run(ds))

	assert.Equal(t, 1.0, feature(t, ds.Events[1], "route_id_count_7D"))
	assert.InDelta(t, 20, feature(t, ds.Events[1], "route_id_mean_7D"), 1e-9)

	assert.Equal(t, 2.0, feature(t, ds.Events[2], "route_id_count_7D"))
	assert.InDelta(t, 25, feature(t, ds.Events[2], "route_id_mean_7D"), 1e-9)
}

func TestNoLookahead(t *testing.T) {
	base := []*dataset.Event{
		mkEvent("e1", "R1", 0, 10),
		mkEvent("e2", "R1", 1, 12),
		mkEvent("e3", "R1", 2, 11),
	}
	ds := mkDataset(base...)
	builder := NewBuilder(WithWindows(Days(7)))
	require.NoError(t, builder.Run(ds))
	wantMean := feature(t, ds.Events[1], "route_id_mean_7D")
	wantStd := feature(t, ds.Events[1], "route_id_std_7D")

	// Re-run with a massive future outlier in the same group.
	ds2 := mkDataset(
		mkEvent("e1", "R1", 0, 10),
		mkEvent("e2", "R1", 1, 12),
		mkEvent("e3", "R1", 2, 11),
		mkEvent("e4", "R1", 3, 10000),
	)
	require.NoError(t, builder.Run(ds2))

	assert.Equal(t, wantMean, feature(t, ds2.Events[1], "route_id_mean_7D"),
		"future events must not affect earlier windows")
	assert.Equal(t, wantStd, feature(t, ds2.Events[1], "route_id_std_7D"))
}

func TestEventsWithoutTimestampExcluded(t *testing.T) {
	noTime := &dataset.Event{
		ID:           "late",
		Keys:         map[string]string{"route_id": "R1"},
		DelayMinutes: 99999,
		AbsDelay:     math.NaN(),
	}
	ds := mkDataset(
		mkEvent("e1", "R1", 0, 10),
		noTime,
		mkEvent("e2", "R1", 1, 20),
	)
	builder := NewBuilder(WithWindows(Days(7)))
	require.NoError(t, builder.Run(ds))

	// The untimestamped event carries no window columns at all.
	_, ok := noTime.Features["route_id_mean_7D"]
	assert.False(t, ok)

	// And never contributes to anyone else's window.
	assert.Equal(t, 2.0, feature(t, ds.Events[2], "route_id_count_7D"))
	assert.InDelta(t, 15, feature(t, ds.Events[2], "route_id_mean_7D"), 1e-9)
}

func TestMedianEvenWindow(t *testing.T) {
	ds := mkDataset(
		mkEvent("e1", "R1", 0, 10),
		mkEvent("e2", "R1", 1, 40),
		mkEvent("e3", "R1", 2, 20),
		mkEvent("e4", "R1", 3, 30),
	)
	builder := NewBuilder(WithWindows(Days(7)))
	require.NoError(t, builder.Run(ds))

	assert.InDelta(t, 25, feature(t, ds.Events[3], "route_id_median_7D"), 1e-9)
}

func TestGroupsAreIndependent(t *testing.T) {
	ds := mkDataset(
		mkEvent("e1", "R1", 0, 10),
		mkEvent("e2", "R2", 0, 100000),
		mkEvent("e3", "R1", 1, 20),
	)
	builder := NewBuilder(WithWindows(Days(7)))
	require.NoError(t, builder.Run(ds))

	assert.InDelta(t, 15, feature(t, ds.Events[2], "route_id_mean_7D"), 1e-9)
}

func TestGlobalZScore(t *testing.T) {
	ds := mkDataset(
		mkEvent("e1", "R1", 0, 10),
		mkEvent("e2", "R1", 1, 20),
		mkEvent("e3", "R1", 2, 30),
	)
	require.NoError(t, NewBuilder(WithWindows(Days(7))).Run(ds))

	// mean 20, population std sqrt(200/3)
	std := math.Sqrt(200.0 / 3)
	assert.InDelta(t, (10-20)/std, feature(t, ds.Events[0], "route_id_zscore"), 1e-9)
	assert.InDelta(t, 0, feature(t, ds.Events[1], "route_id_zscore"), 1e-9)
}

func TestGlobalZScoreUsesFullGroup(t *testing.T) {
	// The global z-score is deliberately non-causal: the first event's
	// value reflects later events in the group.
	ds := mkDataset(
		mkEvent("e1", "R1", 0, 10),
		mkEvent("e2", "R1", 5, 500),
	)
	require.NoError(t, NewBuilder(WithWindows(Days(7))).Run(ds))
	assert.Less(t, feature(t, ds.Events[0], "route_id_zscore"), 0.0)
}

func TestZeroStdGroupYieldsNaN(t *testing.T) {
	ds := mkDataset(
		mkEvent("e1", "R1", 0, 15),
		mkEvent("e2", "R1", 1, 15),
		mkEvent("e3", "R1", 2, 15),
	)
	require.NoError(t, NewBuilder(WithWindows(Days(7))).Run(ds))

	for _, e := range ds.Events {
		v, ok := e.Features["route_id_zscore"]
		require.True(t, ok)
		assert.True(t, math.IsNaN(v), "zero-std group must yield NaN z-score")
	}
}

func TestTrailingZScoreIsCausal(t *testing.T) {
	ds := mkDataset(
		mkEvent("e1", "R1", 0, 10),
		mkEvent("e2", "R1", 1, 20),
		mkEvent("e3", "R1", 2, 10000),
	)
	require.NoError(t, NewBuilder(WithWindows(Days(7)), WithTrailingZScore(true)).Run(ds))

	// Only prior events (and itself) feed the trailing statistic: the
	// second event standardizes against {10, 20}, untouched by e3.
	got := feature(t, ds.Events[1], "route_id_zscore_trailing")
	assert.InDelta(t, 1, got, 1e-9) // (20-15)/5

	// First event has a single-value history: std 0, NaN.
	v, ok := ds.Events[0].Features["route_id_zscore_trailing"]
	require.True(t, ok)
	assert.True(t, math.IsNaN(v))
}

func TestCalendarAndDelayFields(t *testing.T) {
	saturday := &dataset.Event{
		ID:           "w",
		Keys:         map[string]string{"route_id": "R1"},
		Timestamp:    time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC), // a Saturday
		HasTimestamp: true,
		DelayMinutes: -20,
		AbsDelay:     math.NaN(),
	}
	late := mkEvent("l", "R1", 0, 45)
	ds := mkDataset(saturday, late)
	require.NoError(t, NewBuilder(WithWindows(Days(7))).Run(ds))

	assert.Equal(t, 9, saturday.Hour)
	assert.Equal(t, time.Saturday, saturday.Weekday)
	assert.True(t, saturday.IsWeekend)
	assert.Equal(t, 20.0, saturday.AbsDelay)
	assert.False(t, saturday.IsDelayed)

	assert.True(t, late.IsDelayed, "45min exceeds the 15min default threshold")
	assert.False(t, late.IsWeekend)
}

func TestOrderPreserved(t *testing.T) {
	// Input deliberately out of chronological order.
	ds := mkDataset(
		mkEvent("e2", "R1", 5, 20),
		mkEvent("e1", "R1", 0, 10),
		mkEvent("e3", "R1", 9, 30),
	)
	require.NoError(t, NewBuilder(WithWindows(Days(7))).Run(ds))

	ids := make([]string, ds.Len())
	for i, e := range ds.Events {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"e2", "e1", "e3"}, ids)

	// Windows were still computed chronologically.
	assert.Equal(t, 1.0, feature(t, ds.Events[1], "route_id_count_7D"))
	assert.Equal(t, 2.0, feature(t, ds.Events[0], "route_id_count_7D"))
}

func BenchmarkBuilder(b *testing.B) {
	events := make([]*dataset.Event, 0, 5000)
	for i := 0; i < 5000; i++ {
		route := fmt.Sprintf("R%d", i%10)
		events = append(events, mkEvent(fmt.Sprintf("e%d", i), route, float64(i)/50, float64(i%40)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ds := mkDataset(events...)
		builder := NewBuilder(WithWindows(Days(7), Days(30)))
		if err := builder.Run(ds); err != nil {
			b.Fatal(err)
		}
	}
}
