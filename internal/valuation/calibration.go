package valuation

import (
	"polyagent/internal/logger"
	"polyagent/internal/money"
	"polyagent/internal/store"
)

// minCalibrationSamples is the resolved-trade count below which the
// calibration factor stays pinned at 1.
const minCalibrationSamples = 20

// CalibrationStore is the slice of the repository the calibrator uses.
type CalibrationStore interface {
	InsertCalibration(rec store.CalibrationRecord) error
	UpdateCalibrationOutcome(marketID string, outcome int) error
	CalibrationStats() (total int64, correct int64, err error)
}

// Calibrator tracks the oracle's directional accuracy and produces the
// confidence multiplier applied to every subsequent valuation.
type Calibrator struct {
	store CalibrationStore
}

func NewCalibrator(s CalibrationStore) *Calibrator {
	return &Calibrator{store: s}
}

// RecordPrediction files the oracle's claim for later scoring.
func (c *Calibrator) RecordPrediction(marketID string, v Valuation, entryPrice money.Money) error {
	return c.store.InsertCalibration(store.CalibrationRecord{
		MarketID:         marketID,
		ClaudeConfidence: v.Confidence,
		FairValue:        v.Probability,
		MarketPriceEntry: entryPrice,
	})
}

// RecordResolution scores the most recent open prediction for a market.
func (c *Calibrator) RecordResolution(marketID string, outcome int) error {
	return c.store.UpdateCalibrationOutcome(marketID, outcome)
}

// Factor is the rolling directional accuracy in [0, 1]. Below the
// minimum sample size it is 1: no adjustment until the evidence is in.
func (c *Calibrator) Factor() money.Money {
	total, correct, err := c.store.CalibrationStats()
	if err != nil {
		logger.Warnf("calibration: stats unavailable, factor=1: %v", err)
		return money.One
	}
	if total < minCalibrationSamples {
		return money.One
	}
	factor := money.FromInt(correct).Div(money.FromInt(total))
	logger.Infof("calibration: factor=%s (%d/%d correct)", factor, correct, total)
	return factor
}

// EffectiveConfidence applies the calibration factor to the oracle's
// self-reported confidence. Both inputs live in [0, 1], so the product
// does too.
func EffectiveConfidence(raw, factor money.Money) money.Money {
	return raw.Mul(factor)
}
