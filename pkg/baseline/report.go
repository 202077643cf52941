// Package baseline runs the cross-validated anomaly baselines and the
// full-dataset production scoring pass, and assembles the run report.
package baseline

import (
	"encoding/json"
	"os"

	"github.com/hed1ad/dispatchml/pkg/detectors"
)

// FoldReport summarizes one evaluated fold. The metric fields are
// populated only when the dataset carries ground-truth labels; otherwise
// the descriptive fields (flag counts, score stats) are populated.
type FoldReport struct {
	Fold   int `json:"fold"`
	NTrain int `json:"n_train"`
	NTest  int `json:"n_test"`

	// Contamination is the expected anomaly fraction the isolation
	// strategy was configured with.
	Contamination float64 `json:"if_top_fraction"`

	// Labeled metrics for the isolation strategy.
	IFPrecision *float64 `json:"if_precision,omitempty"`
	IFRecall    *float64 `json:"if_recall,omitempty"`
	IFF1        *float64 `json:"if_f1,omitempty"`
	IFAUC       *float64 `json:"if_auc,omitempty"`

	// Labeled metrics for the statistical strategy.
	ZPrecision *float64 `json:"z_precision,omitempty"`
	ZRecall    *float64 `json:"z_recall,omitempty"`
	ZF1        *float64 `json:"z_f1,omitempty"`

	// Descriptive fields for unlabeled runs.
	IFAnomalies *int     `json:"if_anomalies,omitempty"`
	IFScoreMean *float64 `json:"if_score_mean,omitempty"`
	IFScoreStd  *float64 `json:"if_score_std,omitempty"`
	ZAnomalies  *int     `json:"z_anomalies,omitempty"`

	// Scores holds the per-event test-row scores for every strategy that
	// ran on this fold, in test-row order. They back the summary fields
	// above and stay queryable by method; the JSON artifact carries only
	// the summaries.
	Scores []detectors.Score `json:"-"`
}

// MethodScores returns this fold's scores for one strategy, in test-row
// order.
func (f *FoldReport) MethodScores(method string) []detectors.Score {
	var out []detectors.Score
	for _, s := range f.Scores {
		if s.Method == method {
			out = append(out, s)
		}
	}
	return out
}

// RunReport is the aggregate output of the fold evaluation: the ordered
// per-fold reports plus the total count. Cross-fold averaging is left to
// the report consumer.
type RunReport struct {
	NFolds int          `json:"n_folds"`
	Folds  []FoldReport `json:"folds"`
}

// WriteFile writes the report as indented JSON.
func (r *RunReport) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
