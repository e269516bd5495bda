package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	Info     AlertLevel = "info"
	Warning  AlertLevel = "warning"
	Error    AlertLevel = "error"
	Critical AlertLevel = "critical"
)

// Alert 告警结构；同一 Rule 同时只有一条未解除的告警
type Alert struct {
	ID         string     `json:"id"`
	Rule       string     `json:"rule"`
	Level      AlertLevel `json:"level"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Value      float64    `json:"value,omitempty"`
	Threshold  float64    `json:"threshold,omitempty"`
	Source     string     `json:"source"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// AlertStats 告警统计
type AlertStats struct {
	TotalAlerts    int64                `json:"total_alerts"`
	ActiveAlerts   int64                `json:"active_alerts"`
	ResolvedAlerts int64                `json:"resolved_alerts"`
	Suppressed     int64                `json:"suppressed"`
	ByLevel        map[AlertLevel]int64 `json:"by_level"`
	LastAlert      time.Time            `json:"last_alert"`
}

// Broadcaster 告警推送渠道，*Hub 实现了它
type Broadcaster interface {
	Broadcast(kind MessageType, data interface{}) error
}

const alertHistorySize = 200

// AlertSystem 告警系统：按规则去重，冷却期内重复触发只更新不推送
type AlertSystem struct {
	mu       sync.RWMutex
	active   map[string]*Alert
	history  []Alert
	lastSent map[string]time.Time
	cooldown time.Duration
	channel  Broadcaster
	logger   *zap.Logger
	stats    AlertStats
}

// NewAlertSystem 创建告警系统；channel 可以为 nil
func NewAlertSystem(logger *zap.Logger, channel Broadcaster, cooldown time.Duration) *AlertSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertSystem{
		active:   make(map[string]*Alert),
		lastSent: make(map[string]time.Time),
		cooldown: cooldown,
		channel:  channel,
		logger:   logger.Named("alerts"),
		stats:    AlertStats{ByLevel: make(map[AlertLevel]int64)},
	}
}

// Raise 触发告警，返回是否推送
func (a *AlertSystem) Raise(alert Alert) bool {
	now := time.Now()
	if alert.Timestamp.IsZero() {
		alert.Timestamp = now
	}

	a.mu.Lock()
	if cur, ok := a.active[alert.Rule]; ok {
		cur.Level = alert.Level
		cur.Message = alert.Message
		cur.Value = alert.Value
		cur.Timestamp = alert.Timestamp
		alert = *cur
	} else {
		alert.ID = uuid.NewString()
		stored := alert
		a.active[alert.Rule] = &stored
		a.stats.TotalAlerts++
		a.stats.ActiveAlerts++
		a.stats.ByLevel[alert.Level]++
	}
	a.stats.LastAlert = now

	if last, ok := a.lastSent[alert.Rule]; ok && a.cooldown > 0 && now.Sub(last) < a.cooldown {
		a.stats.Suppressed++
		a.mu.Unlock()
		return false
	}
	a.lastSent[alert.Rule] = now
	a.mu.Unlock()

	a.logger.Warn("alert raised",
		zap.String("rule", alert.Rule),
		zap.String("level", string(alert.Level)),
		zap.String("message", alert.Message))
	a.push(alert)
	return true
}

// Resolve 解除规则对应的告警；没有活动告警时不做任何事
func (a *AlertSystem) Resolve(rule string) bool {
	a.mu.Lock()
	cur, ok := a.active[rule]
	if !ok {
		a.mu.Unlock()
		return false
	}
	delete(a.active, rule)
	delete(a.lastSent, rule)
	now := time.Now()
	cur.Resolved = true
	cur.ResolvedAt = &now
	a.history = append(a.history, *cur)
	if len(a.history) > alertHistorySize {
		a.history = a.history[len(a.history)-alertHistorySize:]
	}
	a.stats.ActiveAlerts--
	a.stats.ResolvedAlerts++
	resolved := *cur
	a.mu.Unlock()

	a.logger.Info("alert resolved", zap.String("rule", rule))
	a.push(resolved)
	return true
}

func (a *AlertSystem) push(alert Alert) {
	if a.channel == nil {
		return
	}
	if err := a.channel.Broadcast(SystemStatus, alert); err != nil {
		a.logger.Debug("alert broadcast dropped", zap.String("rule", alert.Rule), zap.Error(err))
	}
}

// Active 返回未解除的告警，按触发时间排序
func (a *AlertSystem) Active() []Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Alert, 0, len(a.active))
	for _, alert := range a.active {
		out = append(out, *alert)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Rule < out[j].Rule
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// History 返回最近解除的告警，最新的在前
func (a *AlertSystem) History() []Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Alert, len(a.history))
	for i := range a.history {
		out[i] = a.history[len(a.history)-1-i]
	}
	return out
}

// GetStats 获取统计信息
func (a *AlertSystem) GetStats() AlertStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	stats.ByLevel = make(map[AlertLevel]int64, len(a.stats.ByLevel))
	for k, v := range a.stats.ByLevel {
		stats.ByLevel[k] = v
	}
	return stats
}
