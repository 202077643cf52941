package baseline

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// PrecisionRecallF1 computes binary classification metrics of predicted
// decisions against ground truth. Undefined ratios (no predicted
// positives, no actual positives) resolve to 0 rather than NaN.
func PrecisionRecallF1(truth, pred []bool) (precision, recall, f1 float64) {
	var tp, fp, fn int
	for i := range truth {
		switch {
		case pred[i] && truth[i]:
			tp++
		case pred[i] && !truth[i]:
			fp++
		case !pred[i] && truth[i]:
			fn++
		}
	}
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// ErrSingleClass is returned by ROCAUC when the truth vector contains
// only one class, which makes the curve undefined.
var ErrSingleClass = errors.New("baseline: roc auc undefined for single-class truth")

// ROCAUC computes the area under the ROC curve of continuous scores
// against boolean truth, where higher scores should indicate anomalies.
func ROCAUC(truth []bool, scores []float64) (float64, error) {
	if len(truth) != len(scores) {
		return 0, errors.New("baseline: truth and scores length mismatch")
	}
	var pos, neg int
	for _, t := range truth {
		if t {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, ErrSingleClass
	}

	// stat.ROC wants scores ascending with classes in matching order.
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	y := make([]float64, len(scores))
	classes := make([]bool, len(scores))
	for i, j := range idx {
		y[i] = scores[j]
		classes[i] = truth[j]
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// scoreStats returns the mean and population standard deviation of the
// scores, for the descriptive report fields.
func scoreStats(scores []float64) (mean, std float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	return stat.Mean(scores, nil), stat.PopStdDev(scores, nil)
}
