package csv

import (
	"encoding/csv"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/hed1ad/dispatchml/pkg/baseline"
	"github.com/hed1ad/dispatchml/pkg/dataset"
)

// Writer writes the enriched feature table and the flagged-anomalies
// table as CSV. Column order is fixed by the schema and the dataset's
// feature registration order, so identical inputs produce identical
// bytes.
type Writer struct {
	dir string
}

// NewWriter creates a Writer that places artifacts in dir.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{dir: dir}, nil
}

// Path returns the full path of an artifact file.
func (w *Writer) Path(name string) string {
	return w.dir + string(os.PathSeparator) + name
}

// WriteFeatures writes every event with its derived columns.
func (w *Writer) WriteFeatures(ds *dataset.Dataset, name string) error {
	return w.writeRows(name, ds, len(ds.Events), nil)
}

// WriteSample writes the first n rows of the feature table.
func (w *Writer) WriteSample(ds *dataset.Dataset, name string, n int) error {
	if n > len(ds.Events) {
		n = len(ds.Events)
	}
	return w.writeRows(name, ds, n, nil)
}

// WriteFlagged writes the scored rows in the order given, with the four
// scoring columns appended.
func (w *Writer) WriteFlagged(ds *dataset.Dataset, name string, rows []baseline.Flagged) error {
	return w.writeRows(name, ds, len(rows), rows)
}

func (w *Writer) writeRows(name string, ds *dataset.Dataset, n int, flagged []baseline.Flagged) error {
	f, err := os.Create(w.Path(name))
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	header := baseColumns(ds)
	header = append(header, ds.FeatureColumns...)
	if flagged != nil {
		header = append(header, "if_score", "if_anomaly", "delay_zscore", "z_anomaly")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		var e *dataset.Event
		var row []string
		if flagged != nil {
			e = flagged[i].Event
		} else {
			e = ds.Events[i]
		}
		row = eventRow(ds, e)
		if flagged != nil {
			fl := flagged[i]
			row = append(row,
				formatFloat(fl.IFScore),
				strconv.FormatBool(fl.IFAnomaly),
				formatFloat(fl.DelayZ),
				strconv.FormatBool(fl.ZAnomaly),
			)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func baseColumns(ds *dataset.Dataset) []string {
	cols := []string{"id", "timestamp"}
	cols = append(cols, ds.Schema.KeyColumns...)
	cols = append(cols, ds.Schema.MetricName())
	if ds.Schema.LabelColumn != "" {
		cols = append(cols, ds.Schema.LabelColumn)
	}
	cols = append(cols, "hour", "dayofweek", "is_weekend", "abs_delay", "is_delayed")
	return cols
}

func eventRow(ds *dataset.Dataset, e *dataset.Event) []string {
	row := []string{e.ID, formatTime(e)}
	for _, k := range ds.Schema.KeyColumns {
		row = append(row, e.Keys[k])
	}
	row = append(row, formatFloat(e.DelayMinutes))
	if ds.Schema.LabelColumn != "" {
		row = append(row, formatLabel(e.Label))
	}
	if e.HasTimestamp {
		row = append(row,
			strconv.Itoa(e.Hour),
			e.Weekday.String(),
			strconv.FormatBool(e.IsWeekend),
		)
	} else {
		row = append(row, "", "", "")
	}
	row = append(row, formatFloat(e.AbsDelay), strconv.FormatBool(e.IsDelayed))

	for _, col := range ds.FeatureColumns {
		if v, ok := e.Features[col]; ok {
			row = append(row, formatFloat(v))
		} else {
			row = append(row, "")
		}
	}
	return row
}

// formatFloat renders NaN (undefined) as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatTime(e *dataset.Event) string {
	if !e.HasTimestamp {
		return ""
	}
	return e.Timestamp.UTC().Format(time.RFC3339)
}

func formatLabel(l *bool) string {
	if l == nil {
		return ""
	}
	return strconv.FormatBool(*l)
}
