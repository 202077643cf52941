// Package dataset defines the typed event schema shared by the feature
// builder, the splitter and the anomaly scorers.
package dataset

import (
	"errors"
	"math"
	"sort"
	"time"
)

// Event is a single operational record (e.g. one dispatch) after schema
// resolution. Raw column sniffing happens once at the ingestion boundary;
// everything downstream works with this struct.
type Event struct {
	// ID uniquely identifies the event within a run.
	ID string

	// Keys holds the grouping dimensions, e.g. {"route_id": "R7", "plant_id": "P2"}.
	Keys map[string]string

	// Timestamp is the event time. Valid only when HasTimestamp is true;
	// events without a timestamp never participate in window computation.
	Timestamp    time.Time
	HasTimestamp bool

	// DelayMinutes is the continuous anomaly-relevant metric. NaN when the
	// source row had no value.
	DelayMinutes float64

	// Label is the optional ground truth (true = anomaly). Nil when the
	// dataset is unlabeled.
	Label *bool

	// Calendar fields derived from Timestamp by the feature builder.
	Hour      int
	Weekday   time.Weekday
	IsWeekend bool

	// Delay-derived fields.
	AbsDelay  float64 // NaN when DelayMinutes is NaN
	IsDelayed bool    // DelayMinutes > delay threshold

	// Features holds derived numeric columns (windowed aggregates,
	// z-scores) keyed by column name. NaN means undefined; a missing key
	// means the column was never computed for this event.
	Features map[string]float64
}

// HasDelay reports whether the event carries a delay value.
func (e *Event) HasDelay() bool {
	return !math.IsNaN(e.DelayMinutes)
}

// Feature returns a derived column value and whether it is present and defined.
func (e *Event) Feature(name string) (float64, bool) {
	v, ok := e.Features[name]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// SetFeature attaches a derived column value to the event.
func (e *Event) SetFeature(name string, v float64) {
	if e.Features == nil {
		e.Features = make(map[string]float64)
	}
	e.Features[name] = v
}

// Date returns the calendar date (UTC, truncated to midnight) of the event.
// Only meaningful when HasTimestamp is true.
func (e *Event) Date() time.Time {
	y, m, d := e.Timestamp.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Schema declares how raw input columns map onto Event fields. It is
// resolved once when the dataset is read; no component re-sniffs columns
// at runtime.
type Schema struct {
	// IDColumn names the unique-id column. Empty means ids are minted.
	IDColumn string

	// TimeColumn names the timestamp column.
	TimeColumn string

	// KeyColumns name the grouping dimensions, in declaration order.
	KeyColumns []string

	// MetricColumn names the continuous delay metric.
	MetricColumn string

	// LabelColumn names the optional ground-truth column. Empty means
	// unlabeled.
	LabelColumn string
}

// MetricName returns the name under which the delay metric appears in the
// registry and the written artifacts. Datasets whose delay was derived
// rather than read from a column use the default name.
func (s Schema) MetricName() string {
	if s.MetricColumn != "" {
		return s.MetricColumn
	}
	return "dispatch_delay_minutes"
}

// Dataset is an ordered collection of events plus the registry of derived
// columns attached so far. Event order is the original input order and is
// preserved through feature building.
type Dataset struct {
	Events []*Event
	Schema Schema

	// FeatureColumns lists derived column names in registration order,
	// used for deterministic output and matrix layout.
	FeatureColumns []string

	seen map[string]bool
}

// New returns an empty dataset with the given schema.
func New(schema Schema) *Dataset {
	return &Dataset{Schema: schema, seen: make(map[string]bool)}
}

// Append adds an event, preserving input order.
func (d *Dataset) Append(e *Event) {
	d.Events = append(d.Events, e)
}

// Len returns the number of events.
func (d *Dataset) Len() int { return len(d.Events) }

// RegisterFeature records a derived column name. Registering the same name
// twice is a no-op; order of first registration is kept.
func (d *Dataset) RegisterFeature(name string) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[name] {
		return
	}
	d.seen[name] = true
	d.FeatureColumns = append(d.FeatureColumns, name)
}

// Labeled reports whether any event carries a ground-truth label.
func (d *Dataset) Labeled() bool {
	for _, e := range d.Events {
		if e.Label != nil {
			return true
		}
	}
	return false
}

// Group returns event indices partitioned by the value of one key column.
// Index slices keep the original event order.
func (d *Dataset) Group(key string) map[string][]int {
	groups := make(map[string][]int)
	for i, e := range d.Events {
		v, ok := e.Keys[key]
		if !ok {
			continue
		}
		groups[v] = append(groups[v], i)
	}
	return groups
}

// Dates returns the sorted distinct calendar dates of all timestamped events.
func (d *Dataset) Dates() []time.Time {
	set := make(map[time.Time]bool)
	for _, e := range d.Events {
		if e.HasTimestamp {
			set[e.Date()] = true
		}
	}
	dates := make([]time.Time, 0, len(set))
	for t := range set {
		dates = append(dates, t)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Extractor maps an event onto one numeric matrix column. ok=false means
// the value is missing for this event and is filled with 0 in the matrix,
// matching the fill policy of the scorers.
type Extractor struct {
	Name string
	Fn   func(e *Event) (v float64, ok bool)
}

// Registry is the fixed, declared list of numeric columns fed to the
// multivariate scorer. It is built once per run.
type Registry struct {
	Extractors []Extractor
}

// ErrNoNumericFeatures is returned when the registry resolves to zero
// columns; without any numeric feature the run cannot proceed.
var ErrNoNumericFeatures = errors.New("dataset: no numeric feature columns available")

// BuildRegistry assembles the numeric column registry for this dataset:
// the base delay-derived fields plus every registered derived column. The
// delay column is named after the schema's metric column so the registry
// agrees with the configuration surface.
func (d *Dataset) BuildRegistry() *Registry {
	r := &Registry{}
	r.Extractors = append(r.Extractors,
		Extractor{Name: d.Schema.MetricName(), Fn: func(e *Event) (float64, bool) {
			return e.DelayMinutes, e.HasDelay()
		}},
		Extractor{Name: "abs_delay", Fn: func(e *Event) (float64, bool) {
			return e.AbsDelay, !math.IsNaN(e.AbsDelay)
		}},
		Extractor{Name: "hour", Fn: func(e *Event) (float64, bool) {
			return float64(e.Hour), e.HasTimestamp
		}},
		Extractor{Name: "is_weekend", Fn: func(e *Event) (float64, bool) {
			return boolToFloat(e.IsWeekend), e.HasTimestamp
		}},
		Extractor{Name: "is_delayed", Fn: func(e *Event) (float64, bool) {
			return boolToFloat(e.IsDelayed), e.HasDelay()
		}},
	)
	for _, name := range d.FeatureColumns {
		name := name
		r.Extractors = append(r.Extractors, Extractor{Name: name, Fn: func(e *Event) (float64, bool) {
			return e.Feature(name)
		}})
	}
	return r
}

// Names returns the column names in matrix order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.Extractors))
	for i, ex := range r.Extractors {
		names[i] = ex.Name
	}
	return names
}

// Matrix materializes the numeric feature matrix for the given event
// indices. Missing or undefined values are filled with 0.
func (r *Registry) Matrix(events []*Event, idx []int) ([][]float64, error) {
	if len(r.Extractors) == 0 {
		return nil, ErrNoNumericFeatures
	}
	rows := make([][]float64, len(idx))
	for i, j := range idx {
		row := make([]float64, len(r.Extractors))
		for c, ex := range r.Extractors {
			if v, ok := ex.Fn(events[j]); ok {
				row[c] = v
			}
		}
		rows[i] = row
	}
	return rows, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
