package baseline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hed1ad/dispatchml/pkg/dataset"
	"github.com/hed1ad/dispatchml/pkg/detectors"
	"github.com/hed1ad/dispatchml/pkg/detectors/iforest"
	"github.com/hed1ad/dispatchml/pkg/detectors/zscore"
	"github.com/hed1ad/dispatchml/pkg/split"
)

// Runner evaluates the two anomaly strategies fold by fold and scores the
// full dataset for operational flagging. The fold path and the production
// path are separate entry points on purpose: the production scorer trains
// on the rows it scores and its output is not a held-out metric.
type Runner struct {
	contamination  float64
	zThreshold     float64
	estimators     int
	prodEstimators int
	seed           int64
	metricColumn   string
	topN           int
	log            *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithContamination sets the expected anomaly fraction.
func WithContamination(c float64) RunnerOption {
	return func(r *Runner) { r.contamination = c }
}

// WithZThreshold sets the statistical strategy's |z| cutoff.
func WithZThreshold(t float64) RunnerOption {
	return func(r *Runner) { r.zThreshold = t }
}

// WithEstimators sets the per-fold forest size.
func WithEstimators(n int) RunnerOption {
	return func(r *Runner) { r.estimators = n }
}

// WithProductionEstimators sets the full-dataset forest size.
func WithProductionEstimators(n int) RunnerOption {
	return func(r *Runner) { r.prodEstimators = n }
}

// WithSeed sets the random seed for reproducible runs.
func WithSeed(seed int64) RunnerOption {
	return func(r *Runner) { r.seed = seed }
}

// WithMetricColumn sets the registry column the statistical strategy
// standardizes.
func WithMetricColumn(name string) RunnerOption {
	return func(r *Runner) { r.metricColumn = name }
}

// WithTopN bounds the flagged-anomalies artifact.
func WithTopN(n int) RunnerOption {
	return func(r *Runner) { r.topN = n }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// NewRunner creates a Runner with the given options.
func NewRunner(opts ...RunnerOption) *Runner {
	cfg := detectors.DefaultConfig()
	r := &Runner{
		contamination:  cfg.Contamination,
		zThreshold:     cfg.ZThreshold,
		estimators:     100,
		prodEstimators: 200,
		seed:           cfg.RandomSeed,
		metricColumn:   "dispatch_delay_minutes",
		topN:           1000,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluate fits and scores both strategies on every fold and returns the
// ordered fold reports. A fold whose fit or score step fails is logged
// and excluded; the statistical strategy is skipped (with a warning) when
// the designated metric column is absent from the registry. The only hard
// failure is a registry with no numeric columns at all.
func (r *Runner) Evaluate(ds *dataset.Dataset, folds []split.Fold) (*RunReport, error) {
	registry := ds.BuildRegistry()
	if len(registry.Extractors) == 0 {
		return nil, dataset.ErrNoNumericFeatures
	}
	r.log.Info("numeric feature columns", zap.Strings("columns", registry.Names()))

	metricName := r.metricColumn
	if metricName == "" {
		metricName = ds.Schema.MetricName()
	}
	metricCol := columnIndex(registry, metricName)
	if metricCol < 0 {
		r.log.Warn("metric column not in registry; statistical strategy skipped",
			zap.String("column", metricName))
	}

	labeled := ds.Labeled()
	report := &RunReport{Folds: []FoldReport{}}

	for _, fold := range folds {
		fr, err := r.evaluateFold(ds, registry, fold, metricCol, labeled)
		if err != nil {
			r.log.Warn("fold evaluation failed; excluding fold from report",
				zap.Int("fold", fold.Index), zap.Error(err))
			continue
		}
		report.Folds = append(report.Folds, *fr)
	}
	report.NFolds = len(report.Folds)
	return report, nil
}

func (r *Runner) evaluateFold(ds *dataset.Dataset, registry *dataset.Registry, fold split.Fold, metricCol int, labeled bool) (*FoldReport, error) {
	r.log.Info("evaluating fold",
		zap.Int("fold", fold.Index),
		zap.Int("train", len(fold.Train)),
		zap.Int("test", len(fold.Test)))

	trainX, err := registry.Matrix(ds.Events, fold.Train)
	if err != nil {
		return nil, err
	}
	testX, err := registry.Matrix(ds.Events, fold.Test)
	if err != nil {
		return nil, err
	}

	forest := iforest.New(
		iforest.WithTrees(r.estimators),
		iforest.WithContamination(r.contamination),
		iforest.WithSeed(r.seed),
	)
	if err := forest.Fit(trainX); err != nil {
		return nil, fmt.Errorf("isolation fit: %w", err)
	}
	ifScores, err := forest.Predict(testX)
	if err != nil {
		return nil, fmt.Errorf("isolation score: %w", err)
	}
	ifFlags := forest.Decide(ifScores)

	var zScores []float64
	var zFlags []bool
	if metricCol >= 0 {
		zs := zscore.New(zscore.WithColumn(metricCol), zscore.WithThreshold(r.zThreshold))
		if err := zs.Fit(trainX); err != nil {
			return nil, fmt.Errorf("zscore fit: %w", err)
		}
		zScores, err = zs.Predict(testX)
		if err != nil {
			return nil, fmt.Errorf("zscore score: %w", err)
		}
		zFlags = zs.Decide(zScores)
	}

	fr := &FoldReport{
		Fold:          fold.Index,
		NTrain:        len(fold.Train),
		NTest:         len(fold.Test),
		Contamination: r.contamination,
	}
	for i, j := range fold.Test {
		fr.Scores = append(fr.Scores, detectors.Score{
			EventID: ds.Events[j].ID,
			Method:  detectors.MethodIsolation,
			Value:   ifScores[i],
			Anomaly: ifFlags[i],
		})
	}
	if zFlags != nil {
		for i, j := range fold.Test {
			fr.Scores = append(fr.Scores, detectors.Score{
				EventID: ds.Events[j].ID,
				Method:  detectors.MethodZScore,
				Value:   zScores[i],
				Anomaly: zFlags[i],
			})
		}
	}

	if labeled {
		truth := make([]bool, len(fold.Test))
		for i, j := range fold.Test {
			if l := ds.Events[j].Label; l != nil {
				truth[i] = *l
			}
		}
		p, rc, f1 := PrecisionRecallF1(truth, ifFlags)
		fr.IFPrecision, fr.IFRecall, fr.IFF1 = floatPtr(p), floatPtr(rc), floatPtr(f1)
		if auc, err := ROCAUC(truth, ifScores); err == nil {
			fr.IFAUC = floatPtr(auc)
		} else {
			r.log.Warn("roc auc unavailable", zap.Int("fold", fold.Index), zap.Error(err))
		}
		if zFlags != nil {
			p, rc, f1 := PrecisionRecallF1(truth, zFlags)
			fr.ZPrecision, fr.ZRecall, fr.ZF1 = floatPtr(p), floatPtr(rc), floatPtr(f1)
		}
	} else {
		fr.IFAnomalies = intPtr(countTrue(ifFlags))
		mean, std := scoreStats(ifScores)
		fr.IFScoreMean, fr.IFScoreStd = floatPtr(mean), floatPtr(std)
		if zFlags != nil {
			fr.ZAnomalies = intPtr(countTrue(zFlags))
		}
	}
	return fr, nil
}

func columnIndex(registry *dataset.Registry, name string) int {
	for i, ex := range registry.Extractors {
		if ex.Name == name {
			return i
		}
	}
	return -1
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
