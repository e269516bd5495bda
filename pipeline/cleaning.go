package pipeline

import (
	"fmt"
	"math"
	"sync"
	"time"

	"flightdash/models"

	"go.uber.org/zap"
)

// CleaningRule 清洗规则
type CleaningRule interface {
	Apply(*models.FlightRecord) (*models.FlightRecord, error)
	Name() string
}

// resettable 带状态的规则在每次清洗前重置
type resettable interface {
	Reset()
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type        string    `json:"type"`
	Severity    string    `json:"severity"` // low, medium, high
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	PassengerID string    `json:"passenger_id"`
	Row         int       `json:"row"`
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner 创建数据清洗器
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		rules:  make([]CleaningRule, 0),
		logger: logger,
		stats: CleaningStats{
			Issues: make(map[string]int64),
		},
	}

	// 添加默认规则
	cleaner.AddRule(NewMagnitudeRule())
	cleaner.AddRule(NewFrequentFlyerFillRule())
	cleaner.AddRule(NewDuplicatePassengerRule())

	return cleaner
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean 清洗数据，输入顺序保持不变
func (dc *DataCleaner) Clean(records []models.FlightRecord) ([]models.FlightRecord, []QualityIssue) {
	cleaned := make([]models.FlightRecord, 0, len(records))
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	dc.stats = CleaningStats{Issues: make(map[string]int64)}
	for _, rule := range dc.rules {
		if r, ok := rule.(resettable); ok {
			r.Reset()
		}
	}

	for i := range records {
		dc.stats.TotalProcessed++

		original := records[i]
		current := records[i]
		point := &current
		rejected := false

		for _, rule := range dc.rules {
			before := *point
			next, err := rule.Apply(point)
			if err != nil {
				issues = append(issues, QualityIssue{
					Type:        rule.Name(),
					Severity:    "medium",
					Message:     err.Error(),
					Timestamp:   time.Now(),
					PassengerID: point.PassengerID,
					Row:         i + 1,
				})
				dc.stats.Issues[rule.Name()]++
				rejected = true
				break
			}
			if next != nil {
				point = next
			}
			if *point != before {
				dc.stats.Issues[rule.Name()]++
			}
		}

		if rejected {
			dc.stats.Rejected++
			continue
		}
		if *point != original {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, *point)
	}

	dc.stats.LastClean = time.Now()
	if len(issues) > 0 {
		dc.logger.Info("cleaning rejected records", zap.Int("count", len(issues)))
	}

	return cleaned, issues
}

// GetStats 获取统计信息
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// ============ 清洗规则实现 ============

// MagnitudeRule 时长和距离取绝对值（负值视为录入错误）
type MagnitudeRule struct{}

func NewMagnitudeRule() *MagnitudeRule {
	return &MagnitudeRule{}
}

func (r *MagnitudeRule) Name() string {
	return "magnitude_normalization"
}

func (r *MagnitudeRule) Apply(rec *models.FlightRecord) (*models.FlightRecord, error) {
	rec.DurationMinutes = math.Abs(rec.DurationMinutes)
	rec.DistanceMiles = math.Abs(rec.DistanceMiles)
	return rec, nil
}

// FrequentFlyerFillRule 常旅客等级缺失时填充 "None"
type FrequentFlyerFillRule struct {
	Fill string
}

func NewFrequentFlyerFillRule() *FrequentFlyerFillRule {
	return &FrequentFlyerFillRule{Fill: "None"}
}

func (r *FrequentFlyerFillRule) Name() string {
	return "frequent_flyer_fill"
}

func (r *FrequentFlyerFillRule) Apply(rec *models.FlightRecord) (*models.FlightRecord, error) {
	if rec.FrequentFlyerStatus == "" {
		rec.FrequentFlyerStatus = r.Fill
	}
	return rec, nil
}

// DuplicatePassengerRule 重复乘客检测，保留首次出现
type DuplicatePassengerRule struct {
	seen map[string]struct{}
}

func NewDuplicatePassengerRule() *DuplicatePassengerRule {
	return &DuplicatePassengerRule{
		seen: make(map[string]struct{}),
	}
}

func (r *DuplicatePassengerRule) Name() string {
	return "duplicate_passenger"
}

func (r *DuplicatePassengerRule) Reset() {
	r.seen = make(map[string]struct{})
}

func (r *DuplicatePassengerRule) Apply(rec *models.FlightRecord) (*models.FlightRecord, error) {
	if _, exists := r.seen[rec.PassengerID]; exists {
		return nil, fmt.Errorf("duplicate passenger %s", rec.PassengerID)
	}
	r.seen[rec.PassengerID] = struct{}{}
	return rec, nil
}
