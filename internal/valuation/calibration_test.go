package valuation

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyagent/internal/money"
	"polyagent/internal/store"
)

func newCalibrator(t *testing.T) (*Calibrator, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewCalibrator(s), s
}

func prediction(prob string) Valuation {
	return Valuation{
		Probability: money.MustParse(prob),
		Confidence:  money.MustParse("0.8"),
	}
}

func TestFactorIsOneBelowMinimumSamples(t *testing.T) {
	c, _ := newCalibrator(t)
	assert.True(t, c.Factor().Equal(money.One))

	for i := 0; i < minCalibrationSamples-1; i++ {
		id := fmt.Sprintf("m%d", i)
		require.NoError(t, c.RecordPrediction(id, prediction("0.7"), money.MustParse("0.5")))
		require.NoError(t, c.RecordResolution(id, 0)) // every one wrong
	}
	// 19 resolved samples, all wrong — still pinned at 1.
	assert.True(t, c.Factor().Equal(money.One))
}

func TestFactorIsRollingAccuracy(t *testing.T) {
	c, _ := newCalibrator(t)
	for i := 0; i < minCalibrationSamples; i++ {
		id := fmt.Sprintf("m%d", i)
		require.NoError(t, c.RecordPrediction(id, prediction("0.7"), money.MustParse("0.5")))
		outcome := 1
		if i%4 == 0 { // 5 of 20 wrong
			outcome = 0
		}
		require.NoError(t, c.RecordResolution(id, outcome))
	}
	// 15/20 correct.
	assert.True(t, c.Factor().Equal(money.MustParse("0.75")), c.Factor().String())
}

func TestForecastDirectionScoring(t *testing.T) {
	c, s := newCalibrator(t)

	// fair >= 0.5 with YES outcome → correct.
	require.NoError(t, c.RecordPrediction("up", prediction("0.5"), money.MustParse("0.5")))
	require.NoError(t, c.RecordResolution("up", 1))
	// fair < 0.5 with YES outcome → incorrect.
	require.NoError(t, c.RecordPrediction("down", prediction("0.3"), money.MustParse("0.5")))
	require.NoError(t, c.RecordResolution("down", 1))

	total, correct, err := s.CalibrationStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), correct)
}
