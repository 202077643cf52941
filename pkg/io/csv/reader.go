// Package csv provides CSV reading and artifact writing for event tables.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hed1ad/dispatchml/pkg/dataset"
)

// timeLayouts are tried in order when parsing the timestamp column.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// labelCandidates are the column names checked, in order, when the schema
// does not name a label column.
var labelCandidates = []string{"anomaly", "label", "is_anomaly"}

// Reader reads event datasets from CSV files. The header row is resolved
// against the schema once, at open time.
type Reader struct {
	file   *os.File
	reader *csv.Reader
	schema dataset.Schema

	headers map[string]int

	idCol     int
	timeCol   int
	metricCol int
	labelCol  int
	keyCols   map[string]int

	// Fallback delay computation when the metric column is absent:
	// delay = actual arrival - expected arrival, in minutes.
	expectedCol int
	actualCol   int
}

// Option configures a CSV reader.
type Option func(*Reader)

// NewReader opens a CSV file and resolves its header against the schema.
func NewReader(filename string, schema dataset.Schema, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:   file,
		reader: csv.NewReader(file),
		schema: schema,
	}
	for _, opt := range opts {
		opt(r)
	}

	header, err := r.reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	r.headers = make(map[string]int, len(header))
	for i, name := range header {
		r.headers[strings.TrimSpace(name)] = i
	}
	r.resolve()

	return r, nil
}

// resolve binds schema columns to header positions. Missing columns
// resolve to -1 and degrade per field: no id column mints ids, no
// timestamp column leaves events untimestamped, no metric column falls
// back to arrival-difference computation or NaN.
func (r *Reader) resolve() {
	col := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := r.headers[name]; ok {
			return i
		}
		return -1
	}

	r.idCol = col(r.schema.IDColumn)
	r.timeCol = col(r.schema.TimeColumn)
	r.metricCol = col(r.schema.MetricColumn)
	r.expectedCol = col("expected_arrival")
	r.actualCol = col("actual_arrival")

	r.labelCol = col(r.schema.LabelColumn)
	if r.labelCol < 0 && r.schema.LabelColumn == "" {
		for _, cand := range labelCandidates {
			if i, ok := r.headers[cand]; ok {
				r.labelCol = i
				r.schema.LabelColumn = cand
				break
			}
		}
	}

	r.keyCols = make(map[string]int)
	for _, k := range r.schema.KeyColumns {
		if i, ok := r.headers[k]; ok {
			r.keyCols[k] = i
		}
	}
}

// Schema returns the schema after header resolution (label discovery may
// have filled in the label column).
func (r *Reader) Schema() dataset.Schema { return r.schema }

// Read returns the complete dataset in file order.
func (r *Reader) Read() (*dataset.Dataset, error) {
	ds := dataset.New(r.schema)

	for {
		record, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read row: %w", err)
		}
		ds.Append(r.parseEvent(record))
	}
	return ds, nil
}

func (r *Reader) parseEvent(record []string) *dataset.Event {
	e := &dataset.Event{
		DelayMinutes: math.NaN(),
		AbsDelay:     math.NaN(),
		Keys:         make(map[string]string, len(r.keyCols)),
	}

	if v := field(record, r.idCol); v != "" {
		e.ID = v
	} else {
		e.ID = uuid.NewString()
	}

	for k, i := range r.keyCols {
		e.Keys[k] = field(record, i)
	}

	if t, ok := parseTime(field(record, r.timeCol)); ok {
		e.Timestamp = t
		e.HasTimestamp = true
	}

	if v := field(record, r.metricCol); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			e.DelayMinutes = f
		}
	} else if r.metricCol < 0 {
		expected, okE := parseTime(field(record, r.expectedCol))
		actual, okA := parseTime(field(record, r.actualCol))
		if okE && okA {
			e.DelayMinutes = actual.Sub(expected).Minutes()
		}
	}

	if v := field(record, r.labelCol); v != "" {
		if b, ok := parseBool(v); ok {
			e.Label = &b
		}
	}
	return e
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes":
		return true, true
	case "0", "false", "f", "no":
		return false, true
	}
	return false, false
}
