package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"flightdash/app"
	"flightdash/models"
	"flightdash/monitoring"
	"flightdash/predictor"
	"flightdash/store"
)

const (
	defaultRouteLimit = 10
	maxRouteLimit     = 100
	maxListedIssues   = 100
)

// Handlers 仪表盘接口处理器，依赖由 main 注入
type Handlers struct {
	svc     *app.Service
	hub     *monitoring.Hub
	metrics *monitoring.Metrics
	alerts  *monitoring.AlertSystem
	logger  *zap.Logger

	delayPolicy        DefaultsPolicy
	satisfactionPolicy DefaultsPolicy
	noShowPolicy       DefaultsPolicy
}

// NewHandlers 创建处理器；hub、metrics 与 alerts 可以为 nil
func NewHandlers(svc *app.Service, hub *monitoring.Hub, metrics *monitoring.Metrics, alerts *monitoring.AlertSystem, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		svc:                svc,
		hub:                hub,
		metrics:            metrics,
		alerts:             alerts,
		logger:             logger.Named("http"),
		delayPolicy:        DelayPolicy(),
		satisfactionPolicy: SatisfactionPolicy(),
		noShowPolicy:       NoShowPolicy(),
	}
}

// Register 注册所有路由
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.handleHealth)

	// 看板数据
	mux.HandleFunc("GET /api/kpi-data", h.view(func(s *app.Snapshot, _ *http.Request) (interface{}, error) {
		return s.Store.SummaryStats(), nil
	}))
	mux.HandleFunc("GET /api/airline-performance", h.view(func(s *app.Snapshot, _ *http.Request) (interface{}, error) {
		return s.Store.AirlinePerformance(), nil
	}))
	mux.HandleFunc("GET /api/delay-distribution", h.view(func(s *app.Snapshot, _ *http.Request) (interface{}, error) {
		return s.Store.DelayDistribution(), nil
	}))
	mux.HandleFunc("GET /api/route-analysis", h.view(handleRouteAnalysis))
	mux.HandleFunc("GET /api/time-series", h.view(func(s *app.Snapshot, _ *http.Request) (interface{}, error) {
		return s.Store.DailySeries(), nil
	}))
	mux.HandleFunc("GET /api/temporal-trends", h.view(func(s *app.Snapshot, _ *http.Request) (interface{}, error) {
		return s.Store.TemporalTrends(), nil
	}))
	mux.HandleFunc("GET /api/satisfaction-factors", h.view(func(s *app.Snapshot, _ *http.Request) (interface{}, error) {
		return s.Store.SatisfactionFactors(), nil
	}))
	mux.HandleFunc("GET /api/revenue-analysis", h.view(func(s *app.Snapshot, _ *http.Request) (interface{}, error) {
		return s.Store.RevenueAnalysis(), nil
	}))
	mux.HandleFunc("GET /api/customer-segments", h.view(func(s *app.Snapshot, _ *http.Request) (interface{}, error) {
		return s.Store.CustomerSegments(), nil
	}))
	mux.HandleFunc("GET /api/delay-breakdown", h.view(handleDelayBreakdown))
	mux.HandleFunc("GET /api/data-quality", h.view(h.handleDataQuality))
	mux.HandleFunc("POST /api/group-by", h.view(handleGroupBy))

	// 预测
	mux.HandleFunc("POST /api/predict-delay", predictHandler(h, h.delayPolicy, h.svc.PredictDelay))
	mux.HandleFunc("POST /api/predict-satisfaction", predictHandler(h, h.satisfactionPolicy, h.svc.PredictSatisfaction))
	mux.HandleFunc("POST /api/predict-noshow", predictHandler(h, h.noShowPolicy, h.svc.PredictNoShow))

	// 训练与运维
	mux.HandleFunc("GET /api/training/report", h.view(func(s *app.Snapshot, _ *http.Request) (interface{}, error) {
		return s.Status(), nil
	}))
	mux.HandleFunc("GET /api/training/history", h.handleTrainingHistory)
	mux.HandleFunc("GET /api/predictions/stats", h.handlePredictionStats)
	mux.HandleFunc("POST /api/admin/reload", h.handleReload)
	mux.HandleFunc("GET /api/alerts", h.handleAlerts)

	// 导出
	mux.HandleFunc("GET /api/export/{file}", h.handleExport)

	if h.hub != nil {
		mux.HandleFunc("GET /api/ws/dashboard", h.hub.HandleWebSocket)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

// view 在当前快照上执行只读查询并以JSON返回
func (h *Handlers) view(fn func(*app.Snapshot, *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.svc.Snapshot()
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		data, err := fn(snap, r)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, data)
	}
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"ready":  h.svc.Current() != nil,
	}
	if h.metrics != nil {
		resp["uptime_seconds"] = int64(h.metrics.GetUptime().Seconds())
	}
	if h.hub != nil {
		resp["clients"] = h.hub.Clients()
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func handleRouteAnalysis(s *app.Snapshot, r *http.Request) (interface{}, error) {
	limit := defaultRouteLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, badRequest("limit must be a positive integer")
		}
		limit = min(n, maxRouteLimit)
	}
	return s.Store.TopRoutes(limit), nil
}

func handleDelayBreakdown(s *app.Snapshot, r *http.Request) (interface{}, error) {
	by := r.URL.Query().Get("by")
	if by == "" {
		by = models.ColAirline
	}
	out, err := s.Store.DelayedAverage(by)
	if err != nil {
		return nil, badRequest(err.Error())
	}
	return map[string]interface{}{"by": by, "avg_delay": out}, nil
}

func (h *Handlers) handleDataQuality(s *app.Snapshot, r *http.Request) (interface{}, error) {
	issues := s.Store.Issues()
	listed := issues
	if len(listed) > maxListedIssues {
		listed = listed[:maxListedIssues]
	}
	stored, err := h.svc.StoredIssueCounts(r.Context(), s.Store.Source())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"source":        s.Store.Source(),
		"stats":         s.Store.CleaningStats(),
		"total_issues":  len(issues),
		"issues":        listed,
		"stored_counts": stored,
	}, nil
}

// groupByRequest 通用分组聚合请求
type groupByRequest struct {
	Keys         []string            `json:"keys"`
	Aggregations []store.Aggregation `json:"aggregations"`
	Top          int                 `json:"top,omitempty"`
	RankBy       string              `json:"rank_by,omitempty"`
}

func handleGroupBy(s *app.Snapshot, r *http.Request) (interface{}, error) {
	var req groupByRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if len(req.Keys) == 0 {
		return nil, badRequest("keys must name at least one column")
	}
	if req.Top < 0 {
		return nil, badRequest("top must not be negative")
	}

	rows, err := s.Store.GroupBy(req.Keys, req.Aggregations)
	if err != nil {
		return nil, badRequest(err.Error())
	}
	if req.Top > 0 || req.RankBy != "" {
		rankBy := req.RankBy
		if rankBy == "" {
			rankBy = string(store.AggCount)
		}
		if !rankable(rankBy, req.Aggregations) {
			return nil, badRequest(fmt.Sprintf("rank_by %q is not one of the aggregations", rankBy))
		}
		rows = store.TopN(rows, rankBy, req.Top)
	}
	return map[string]interface{}{
		"success": true,
		"keys":    req.Keys,
		"rows":    store.Flatten(req.Keys, rows),
	}, nil
}

func rankable(name string, aggs []store.Aggregation) bool {
	if name == string(store.AggCount) {
		return true
	}
	for _, a := range aggs {
		if a.Name() == name {
			return true
		}
	}
	return false
}

type predictionResponse struct {
	Success    bool        `json:"success"`
	Prediction interface{} `json:"prediction"`
}

// predictHandler 按补全策略构造特征记录并调用对应模型
func predictHandler[T any](h *Handlers, policy DefaultsPolicy,
	fn func(context.Context, predictor.FeatureRecord) (T, error)) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {
		body := make(map[string]interface{})
		if err := decodeBody(r, &body); err != nil {
			h.respondError(w, r, err)
			return
		}
		rec, err := policy.Apply(body)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		res, err := fn(r.Context(), rec)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, predictionResponse{Success: true, Prediction: res})
	}
}

func (h *Handlers) handleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, r, badRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}
	logs, err := h.svc.TrainingHistory(r.Context(), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, logs)
}

// handlePredictionStats 各模型已审计的预测次数
func (h *Handlers) handlePredictionStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.PredictionCounts(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"by_target": counts,
		"total":     total,
	})
}

func (h *Handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	// 客户端断开不应中断重建
	ctx := context.WithoutCancel(r.Context())
	if err := h.svc.Reload(ctx, app.TriggerAdmin); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  h.svc.Current().Status(),
	})
}

func (h *Handlers) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{
			"active":  []monitoring.Alert{},
			"history": []monitoring.Alert{},
		})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"active":  h.alerts.Active(),
		"history": h.alerts.History(),
		"stats":   h.alerts.GetStats(),
	})
}

func (h *Handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	file := r.PathValue("file")

	if file == "dashboard.xlsx" {
		buf, err := buildWorkbook(snap.Store)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="dashboard.xlsx"`)
		if _, err := buf.WriteTo(w); err != nil {
			h.logger.Warn("write xlsx export failed", zap.Error(err))
		}
		return
	}

	name, ok := strings.CutSuffix(file, ".csv")
	write, known := csvReports[name]
	if !ok || !known {
		h.respondError(w, r, &notFoundError{
			msg: fmt.Sprintf("unknown export %q, expected dashboard.xlsx or one of %s (.csv)", file, strings.Join(reportNames(), ", ")),
		})
		return
	}

	var buf strings.Builder
	if err := write(snap.Store, &buf); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file))
	if _, err := io.WriteString(w, buf.String()); err != nil {
		h.logger.Warn("write csv export failed", zap.Error(err))
	}
}

// decodeBody 解析JSON请求体；空请求体视为空对象
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
