package baseline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrecisionRecallF1(t *testing.T) {
	tests := []struct {
		name          string
		truth         []bool
		pred          []bool
		wantPrecision float64
		wantRecall    float64
		wantF1        float64
	}{
		{
			name:          "perfect",
			truth:         []bool{true, false, true, false},
			pred:          []bool{true, false, true, false},
			wantPrecision: 1, wantRecall: 1, wantF1: 1,
		},
		{
			name:          "half precision full recall",
			truth:         []bool{true, false, false, false},
			pred:          []bool{true, true, false, false},
			wantPrecision: 0.5, wantRecall: 1, wantF1: 2.0 / 3,
		},
		{
			name:          "no predicted positives resolves to zero",
			truth:         []bool{true, true},
			pred:          []bool{false, false},
			wantPrecision: 0, wantRecall: 0, wantF1: 0,
		},
		{
			name:          "no actual positives resolves to zero",
			truth:         []bool{false, false},
			pred:          []bool{true, false},
			wantPrecision: 0, wantRecall: 0, wantF1: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, r, f1 := PrecisionRecallF1(tt.truth, tt.pred)
			assert.InDelta(t, tt.wantPrecision, p, 1e-12)
			assert.InDelta(t, tt.wantRecall, r, 1e-12)
			assert.InDelta(t, tt.wantF1, f1, 1e-12)
		})
	}
}

func TestROCAUC(t *testing.T) {
	t.Run("perfect separation", func(t *testing.T) {
		auc, err := ROCAUC(
			[]bool{false, false, true, true},
			[]float64{0.1, 0.2, 0.8, 0.9},
		)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, auc, 1e-12)
	})

	t.Run("inverted scores", func(t *testing.T) {
		auc, err := ROCAUC(
			[]bool{true, true, false, false},
			[]float64{0.1, 0.2, 0.8, 0.9},
		)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, auc, 1e-12)
	})

	t.Run("single class is undefined", func(t *testing.T) {
		_, err := ROCAUC([]bool{true, true}, []float64{0.5, 0.6})
		assert.ErrorIs(t, err, ErrSingleClass)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := ROCAUC([]bool{true}, []float64{0.5, 0.6})
		assert.Error(t, err)
	})
}

func TestScoreStats(t *testing.T) {
	mean, std := scoreStats([]float64{2, 4, 6, 8})
	assert.InDelta(t, 5, mean, 1e-12)
	assert.InDelta(t, 2.23606797749979, std, 1e-12)

	mean, std = scoreStats(nil)
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 0.0, std)
}
