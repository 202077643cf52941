package dataset

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(id string, ts string, delay float64) *Event {
	e := &Event{
		ID:           id,
		Keys:         map[string]string{"route_id": "R1"},
		DelayMinutes: delay,
		AbsDelay:     math.NaN(),
	}
	if ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			panic(err)
		}
		e.Timestamp = t
		e.HasTimestamp = true
	}
	return e
}

func TestRegisterFeatureKeepsFirstOrder(t *testing.T) {
	ds := New(Schema{})
	ds.RegisterFeature("b")
	ds.RegisterFeature("a")
	ds.RegisterFeature("b")
	assert.Equal(t, []string{"b", "a"}, ds.FeatureColumns)
}

func TestDates(t *testing.T) {
	ds := New(Schema{})
	ds.Append(newEvent("e1", "2024-03-02T10:00:00Z", 1))
	ds.Append(newEvent("e2", "2024-03-01T23:00:00Z", 1))
	ds.Append(newEvent("e3", "2024-03-02T01:00:00Z", 1))
	ds.Append(newEvent("e4", "", 1)) // no timestamp, no date

	dates := ds.Dates()
	require.Len(t, dates, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), dates[1])
}

func TestLabeled(t *testing.T) {
	ds := New(Schema{})
	ds.Append(newEvent("e1", "", 1))
	assert.False(t, ds.Labeled())

	yes := true
	e := newEvent("e2", "", 2)
	e.Label = &yes
	ds.Append(e)
	assert.True(t, ds.Labeled())
}

func TestGroupPreservesOrder(t *testing.T) {
	ds := New(Schema{KeyColumns: []string{"route_id"}})
	a := newEvent("a", "", 1)
	b := newEvent("b", "", 2)
	c := newEvent("c", "", 3)
	b.Keys["route_id"] = "R2"
	ds.Append(a)
	ds.Append(b)
	ds.Append(c)

	groups := ds.Group("route_id")
	assert.Equal(t, []int{0, 2}, groups["R1"])
	assert.Equal(t, []int{1}, groups["R2"])
}

func TestRegistryMatrix(t *testing.T) {
	ds := New(Schema{KeyColumns: []string{"route_id"}})
	e1 := newEvent("e1", "2024-03-02T10:00:00Z", 20)
	e1.Hour = 10
	e1.AbsDelay = 20
	e1.IsDelayed = true
	e1.SetFeature("route_id_zscore", 1.5)
	e2 := newEvent("e2", "", math.NaN()) // missing delay and timestamp
	ds.Append(e1)
	ds.Append(e2)
	ds.RegisterFeature("route_id_zscore")

	registry := ds.BuildRegistry()
	names := registry.Names()
	assert.Contains(t, names, "dispatch_delay_minutes")
	assert.Contains(t, names, "route_id_zscore")

	matrix, err := registry.Matrix(ds.Events, []int{0, 1})
	require.NoError(t, err)
	require.Len(t, matrix, 2)
	require.Len(t, matrix[0], len(names))

	col := map[string]int{}
	for i, n := range names {
		col[n] = i
	}
	assert.Equal(t, 20.0, matrix[0][col["dispatch_delay_minutes"]])
	assert.Equal(t, 1.5, matrix[0][col["route_id_zscore"]])
	assert.Equal(t, 1.0, matrix[0][col["is_delayed"]])

	// Missing values fill with 0, never NaN.
	for _, v := range matrix[1] {
		assert.False(t, math.IsNaN(v))
		assert.Equal(t, 0.0, v)
	}
}

func TestRegistryMetricColumnFollowsSchema(t *testing.T) {
	ds := New(Schema{MetricColumn: "delay_min"})
	ds.Append(newEvent("e1", "", 7))

	names := ds.BuildRegistry().Names()
	assert.Equal(t, "delay_min", names[0])
	assert.NotContains(t, names, "dispatch_delay_minutes")
}

func TestSchemaMetricNameDefault(t *testing.T) {
	assert.Equal(t, "dispatch_delay_minutes", Schema{}.MetricName())
	assert.Equal(t, "delay_min", Schema{MetricColumn: "delay_min"}.MetricName())
}

func TestRegistryNaNFeatureFillsZero(t *testing.T) {
	ds := New(Schema{})
	e := newEvent("e1", "", 1)
	e.SetFeature("route_id_zscore", math.NaN())
	ds.Append(e)
	ds.RegisterFeature("route_id_zscore")

	registry := ds.BuildRegistry()
	matrix, err := registry.Matrix(ds.Events, []int{0})
	require.NoError(t, err)
	last := matrix[0][len(matrix[0])-1]
	assert.Equal(t, 0.0, last)
}
