// Package store is the typed repository over the agent's SQLite
// database. Each method is a single atomic read or write; cross-call
// consistency is the cycle loop's job, which runs strictly serially.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"polyagent/internal/money"
	storemodel "polyagent/internal/store/model"
)

// ErrRepository marks any persistence failure. The lifecycle controller
// treats it as fatal: the agent must not continue without persistence.
var ErrRepository = errors.New("repository failure")

func storeErr(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, ErrRepository, err)
}

// Trade statuses.
const (
	TradeStatusOpen         = "OPEN"
	TradeStatusFilled       = "FILLED"
	TradeStatusResolvedWin  = "RESOLVED_WIN"
	TradeStatusResolvedLoss = "RESOLVED_LOSS"
	TradeStatusCancelled    = "CANCELLED"
)

// TradeRecord is one row of the trades table with typed money fields.
type TradeRecord struct {
	ID             int64
	Cycle          int64
	MarketID       string
	MarketQuestion string
	Direction      string
	EntryPrice     money.Money
	Size           money.Money
	EdgeAtEntry    money.Money
	FairValue      money.Money
	Confidence     money.Money
	KellyRaw       money.Money
	KellyAdjusted  money.Money
	Status         string
	PnL            *money.Money
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

type CycleRecord struct {
	CycleNumber        int64
	MarketsScanned     int64
	OpportunitiesFound int64
	TradesPlaced       int64
	APICost            money.Money
	Bankroll           money.Money
	UnrealizedPnL      money.Money
	AgentState         string
	DurationMs         int64
	CreatedAt          time.Time
}

type APICostRecord struct {
	Provider     string
	Endpoint     string
	InputTokens  int64
	OutputTokens int64
	Cost         money.Money
	Cycle        int64
	CreatedAt    time.Time
}

type CalibrationRecord struct {
	ID               int64
	MarketID         string
	ClaudeConfidence money.Money
	FairValue        money.Money
	MarketPriceEntry money.Money
	ActualOutcome    *int
	ForecastCorrect  *bool
	Resolved         bool
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// CachedValuation is a persisted oracle valuation used to short-circuit
// repeat calls inside the cache TTL.
type CachedValuation struct {
	ConditionID      string
	Probability      money.Money
	Confidence       money.Money
	ReasoningSummary string
	KeyFactors       []string
	DataQuality      string
	TimeSensitivity  string
	CachedAt         time.Time
}

// Store wraps the Gorm handle. A RepositoryError anywhere is fatal to
// the agent; the loop never runs without persistence.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeErr("create dir", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, storeErr("open", err)
	}
	if err := db.AutoMigrate(
		&storemodel.TradeModel{},
		&storemodel.CycleModel{},
		&storemodel.APICostModel{},
		&storemodel.CalibrationModel{},
		&storemodel.ValuationCacheModel{},
	); err != nil {
		return nil, storeErr("migrate", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// The cycle loop is the only writer; one connection keeps SQLite
	// lock contention at zero.
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- trades ----

func (s *Store) InsertTrade(rec TradeRecord) (int64, error) {
	m := tradeToModel(rec)
	if err := s.db.Create(&m).Error; err != nil {
		return 0, storeErr("insert trade", err)
	}
	return m.ID, nil
}

// UpdateTradeStatus closes out a trade. pnl may be nil for transitions
// that do not realize anything.
func (s *Store) UpdateTradeStatus(id int64, status string, pnl *money.Money) error {
	updates := map[string]any{"status": status}
	if pnl != nil {
		updates["pnl"] = pnl.String()
	}
	switch status {
	case TradeStatusResolvedWin, TradeStatusResolvedLoss, TradeStatusCancelled:
		updates["resolved_at"] = time.Now().Unix()
	}
	res := s.db.Model(&storemodel.TradeModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return storeErr(fmt.Sprintf("update trade %d", id), res.Error)
	}
	if res.RowsAffected == 0 {
		return storeErr(fmt.Sprintf("update trade %d", id), gorm.ErrRecordNotFound)
	}
	return nil
}

// ListOpenTrades returns trades still holding exposure (OPEN or FILLED).
func (s *Store) ListOpenTrades() ([]TradeRecord, error) {
	var models []storemodel.TradeModel
	err := s.db.
		Where("status IN ?", []string{TradeStatusOpen, TradeStatusFilled}).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, storeErr("list open trades", err)
	}
	return tradesToRecords(models)
}

func (s *Store) ListTradesByMarket(marketID string) ([]TradeRecord, error) {
	var models []storemodel.TradeModel
	err := s.db.Where("market_id = ?", marketID).Order("id ASC").Find(&models).Error
	if err != nil {
		return nil, storeErr("trades by market", err)
	}
	return tradesToRecords(models)
}

func (s *Store) ListResolvedTrades() ([]TradeRecord, error) {
	var models []storemodel.TradeModel
	err := s.db.
		Where("status IN ?", []string{TradeStatusResolvedWin, TradeStatusResolvedLoss}).
		Order("resolved_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, storeErr("list resolved trades", err)
	}
	return tradesToRecords(models)
}

// ---- cycles ----

func (s *Store) InsertCycle(rec CycleRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m := storemodel.CycleModel{
		CycleNumber:        rec.CycleNumber,
		MarketsScanned:     rec.MarketsScanned,
		OpportunitiesFound: rec.OpportunitiesFound,
		TradesPlaced:       rec.TradesPlaced,
		APICost:            rec.APICost.String(),
		Bankroll:           rec.Bankroll.String(),
		UnrealizedPnL:      rec.UnrealizedPnL.String(),
		AgentState:         rec.AgentState,
		DurationMs:         rec.DurationMs,
		CreatedAtUnix:      rec.CreatedAt.Unix(),
	}
	if err := s.db.Create(&m).Error; err != nil {
		return storeErr("insert cycle", err)
	}
	return nil
}

// MaxCycleNumber returns the highest recorded cycle number, ok=false
// when no cycle has run yet.
func (s *Store) MaxCycleNumber() (int64, bool, error) {
	var m storemodel.CycleModel
	err := s.db.Order("cycle_number DESC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeErr("max cycle", err)
	}
	return m.CycleNumber, true, nil
}

func (s *Store) CycleCount() (int64, error) {
	var count int64
	if err := s.db.Model(&storemodel.CycleModel{}).Count(&count).Error; err != nil {
		return 0, storeErr("cycle count", err)
	}
	return count, nil
}

// ---- api costs ----

func (s *Store) InsertAPICost(rec APICostRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m := storemodel.APICostModel{
		Provider:      rec.Provider,
		Endpoint:      rec.Endpoint,
		InputTokens:   rec.InputTokens,
		OutputTokens:  rec.OutputTokens,
		Cost:          rec.Cost.String(),
		Cycle:         rec.Cycle,
		CreatedAtUnix: rec.CreatedAt.Unix(),
	}
	if err := s.db.Create(&m).Error; err != nil {
		return storeErr("insert api cost", err)
	}
	return nil
}

// SumCostSince totals API spend recorded at or after t. Costs are
// decimal text, so the sum happens here rather than in SQL, keeping the
// result exact.
func (s *Store) SumCostSince(t time.Time) (money.Money, error) {
	var costs []string
	err := s.db.Model(&storemodel.APICostModel{}).
		Where("created_at >= ?", t.Unix()).
		Pluck("cost", &costs).Error
	if err != nil {
		return money.Zero, storeErr("sum cost", err)
	}
	return sumDecimalStrings(costs)
}

// RecentCosts returns up to limit most recent per-call costs, newest first.
func (s *Store) RecentCosts(limit int) ([]money.Money, error) {
	if limit <= 0 {
		limit = 20
	}
	var costs []string
	err := s.db.Model(&storemodel.APICostModel{}).
		Order("id DESC").
		Limit(limit).
		Pluck("cost", &costs).Error
	if err != nil {
		return nil, storeErr("recent costs", err)
	}
	out := make([]money.Money, 0, len(costs))
	for _, c := range costs {
		m, err := money.Parse(c)
		if err != nil {
			return nil, storeErr("corrupt cost row", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) TotalAPICost() (money.Money, error) {
	var costs []string
	if err := s.db.Model(&storemodel.APICostModel{}).Pluck("cost", &costs).Error; err != nil {
		return money.Zero, storeErr("total cost", err)
	}
	return sumDecimalStrings(costs)
}

// ---- calibration ----

func (s *Store) InsertCalibration(rec CalibrationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m := storemodel.CalibrationModel{
		MarketID:         rec.MarketID,
		ClaudeConfidence: rec.ClaudeConfidence.String(),
		FairValue:        rec.FairValue.String(),
		MarketPriceEntry: rec.MarketPriceEntry.String(),
		Resolved:         false,
		CreatedAtUnix:    rec.CreatedAt.Unix(),
	}
	if err := s.db.Create(&m).Error; err != nil {
		return storeErr("insert calibration", err)
	}
	return nil
}

// UpdateCalibrationOutcome closes the most recent unresolved prediction
// for a market. forecast_correct is (fair_value >= 0.5) == (outcome == 1).
func (s *Store) UpdateCalibrationOutcome(marketID string, outcome int) error {
	var m storemodel.CalibrationModel
	err := s.db.
		Where("market_id = ? AND resolved = ?", marketID, false).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("lookup calibration", err)
	}
	fair, err := money.Parse(m.FairValue)
	if err != nil {
		return storeErr(fmt.Sprintf("corrupt fair_value in calibration %d", m.ID), err)
	}
	half := money.MustParse("0.5")
	correct := fair.GreaterOrEqual(half) == (outcome == 1)
	outcomeStr := fmt.Sprintf("%d", outcome)
	now := time.Now().Unix()
	err = s.db.Model(&storemodel.CalibrationModel{}).
		Where("id = ?", m.ID).
		Updates(map[string]any{
			"actual_outcome":   outcomeStr,
			"forecast_correct": correct,
			"resolved":         true,
			"resolved_at":      now,
		}).Error
	if err != nil {
		return storeErr(fmt.Sprintf("update calibration %d", m.ID), err)
	}
	return nil
}

// CalibrationStats returns (resolved total, correct count).
func (s *Store) CalibrationStats() (int64, int64, error) {
	var total, correct int64
	if err := s.db.Model(&storemodel.CalibrationModel{}).
		Where("resolved = ?", true).
		Count(&total).Error; err != nil {
		return 0, 0, storeErr("calibration total", err)
	}
	if err := s.db.Model(&storemodel.CalibrationModel{}).
		Where("resolved = ? AND forecast_correct = ?", true, true).
		Count(&correct).Error; err != nil {
		return 0, 0, storeErr("calibration correct", err)
	}
	return total, correct, nil
}

// ---- valuation cache ----

// GetValuationCache returns the cached valuation for a market if it is
// younger than maxAge, else nil.
func (s *Store) GetValuationCache(conditionID string, maxAge time.Duration) (*CachedValuation, error) {
	var m storemodel.ValuationCacheModel
	err := s.db.Where("condition_id = ?", conditionID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("valuation cache get", err)
	}
	cachedAt := time.Unix(m.CachedAtUnix, 0)
	if time.Since(cachedAt) > maxAge {
		return nil, nil
	}
	prob, err := money.Parse(m.Probability)
	if err != nil {
		return nil, storeErr("corrupt cached probability", err)
	}
	conf, err := money.Parse(m.Confidence)
	if err != nil {
		return nil, storeErr("corrupt cached confidence", err)
	}
	var factors []string
	if len(m.KeyFactors) > 0 {
		if err := json.Unmarshal(m.KeyFactors, &factors); err != nil {
			factors = nil
		}
	}
	return &CachedValuation{
		ConditionID:      m.ConditionID,
		Probability:      prob,
		Confidence:       conf,
		ReasoningSummary: m.ReasoningSummary,
		KeyFactors:       factors,
		DataQuality:      m.DataQuality,
		TimeSensitivity:  m.TimeSensitivity,
		CachedAt:         cachedAt,
	}, nil
}

func (s *Store) PutValuationCache(v CachedValuation) error {
	if v.CachedAt.IsZero() {
		v.CachedAt = time.Now()
	}
	factors, _ := json.Marshal(v.KeyFactors)
	m := storemodel.ValuationCacheModel{
		ConditionID:      v.ConditionID,
		Probability:      v.Probability.String(),
		Confidence:       v.Confidence.String(),
		ReasoningSummary: v.ReasoningSummary,
		KeyFactors:       datatypes.JSON(factors),
		DataQuality:      v.DataQuality,
		TimeSensitivity:  v.TimeSensitivity,
		CachedAtUnix:     v.CachedAt.Unix(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "condition_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"probability", "confidence", "reasoning_summary", "key_factors",
			"data_quality", "time_sensitivity", "cached_at",
		}),
	}).Create(&m).Error
	if err != nil {
		return storeErr("valuation cache put", err)
	}
	return nil
}

// ---- conversion helpers ----

func tradeToModel(rec TradeRecord) storemodel.TradeModel {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m := storemodel.TradeModel{
		ID:             rec.ID,
		Cycle:          rec.Cycle,
		MarketID:       rec.MarketID,
		MarketQuestion: rec.MarketQuestion,
		Direction:      rec.Direction,
		EntryPrice:     rec.EntryPrice.String(),
		Size:           rec.Size.String(),
		EdgeAtEntry:    rec.EdgeAtEntry.String(),
		ClaudeFair:     rec.FairValue.String(),
		Confidence:     rec.Confidence.String(),
		KellyRaw:       rec.KellyRaw.String(),
		KellyAdjusted:  rec.KellyAdjusted.String(),
		Status:         rec.Status,
		CreatedAtUnix:  rec.CreatedAt.Unix(),
	}
	if rec.PnL != nil {
		s := rec.PnL.String()
		m.PnL = &s
	}
	if rec.ResolvedAt != nil {
		ts := rec.ResolvedAt.Unix()
		m.ResolvedAtUnix = &ts
	}
	return m
}

func tradesToRecords(models []storemodel.TradeModel) ([]TradeRecord, error) {
	out := make([]TradeRecord, 0, len(models))
	for _, m := range models {
		rec, err := tradeToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func tradeToRecord(m storemodel.TradeModel) (TradeRecord, error) {
	rec := TradeRecord{
		ID:             m.ID,
		Cycle:          m.Cycle,
		MarketID:       m.MarketID,
		MarketQuestion: m.MarketQuestion,
		Direction:      m.Direction,
		Status:         m.Status,
		CreatedAt:      time.Unix(m.CreatedAtUnix, 0),
	}
	var err error
	if rec.EntryPrice, err = money.Parse(m.EntryPrice); err != nil {
		return rec, storeErr(fmt.Sprintf("trade %d entry_price", m.ID), err)
	}
	if rec.Size, err = money.Parse(m.Size); err != nil {
		return rec, storeErr(fmt.Sprintf("trade %d size", m.ID), err)
	}
	if rec.EdgeAtEntry, err = money.Parse(m.EdgeAtEntry); err != nil {
		return rec, storeErr(fmt.Sprintf("trade %d edge", m.ID), err)
	}
	if rec.FairValue, err = money.Parse(m.ClaudeFair); err != nil {
		return rec, storeErr(fmt.Sprintf("trade %d fair_value", m.ID), err)
	}
	if rec.Confidence, err = money.Parse(m.Confidence); err != nil {
		return rec, storeErr(fmt.Sprintf("trade %d confidence", m.ID), err)
	}
	if rec.KellyRaw, err = money.Parse(m.KellyRaw); err != nil {
		return rec, storeErr(fmt.Sprintf("trade %d kelly_raw", m.ID), err)
	}
	if rec.KellyAdjusted, err = money.Parse(m.KellyAdjusted); err != nil {
		return rec, storeErr(fmt.Sprintf("trade %d kelly_adjusted", m.ID), err)
	}
	if m.PnL != nil {
		pnl, err := money.Parse(*m.PnL)
		if err != nil {
			return rec, storeErr(fmt.Sprintf("trade %d pnl", m.ID), err)
		}
		rec.PnL = &pnl
	}
	if m.ResolvedAtUnix != nil {
		ts := time.Unix(*m.ResolvedAtUnix, 0)
		rec.ResolvedAt = &ts
	}
	return rec, nil
}

func sumDecimalStrings(values []string) (money.Money, error) {
	total := money.Zero
	for _, v := range values {
		m, err := money.Parse(v)
		if err != nil {
			return money.Zero, storeErr(fmt.Sprintf("corrupt decimal %q", v), err)
		}
		total = total.Add(m)
	}
	return total, nil
}
