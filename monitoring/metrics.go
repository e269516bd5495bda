package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 仪表盘的 Prometheus 指标，挂在独立的 registry 上
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	predictions     *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	trainingSeconds *prometheus.HistogramVec
	modelScore      *prometheus.GaugeVec
	reloads         *prometheus.CounterVec
	datasetRows     prometheus.Gauge
	wsClients       prometheus.Gauge
	startTime       time.Time
}

// NewMetrics 创建指标收集器
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightdash_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightdash_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightdash_predictions_total",
			Help: "Predictions served by target and outcome",
		}, []string{"target", "outcome"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightdash_prediction_cache_total",
			Help: "Prediction cache lookups by result",
		}, []string{"result"}),
		trainingSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightdash_training_duration_seconds",
			Help:    "Wall time of a full training run",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"result"}),
		modelScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flightdash_model_score",
			Help: "Held-out score of each model (r2 or accuracy)",
		}, []string{"target", "metric"}),
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightdash_snapshot_reloads_total",
			Help: "Snapshot rebuilds by trigger and result",
		}, []string{"trigger", "result"}),
		datasetRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flightdash_dataset_rows",
			Help: "Rows in the current snapshot",
		}),
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flightdash_ws_clients",
			Help: "Connected dashboard websocket clients",
		}),
		startTime: time.Now(),
	}
}

// Registry 返回底层 registry，测试中用来读取指标
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 导出 Prometheus 格式
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest 记录一次 HTTP 请求
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordPrediction outcome 为 ok 或错误的 kind
func (m *Metrics) RecordPrediction(target, outcome string) {
	m.predictions.WithLabelValues(target, outcome).Inc()
}

func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.cacheHits.WithLabelValues("hit").Inc()
		return
	}
	m.cacheHits.WithLabelValues("miss").Inc()
}

// RecordTraining 记录训练耗时
func (m *Metrics) RecordTraining(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.trainingSeconds.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) SetModelScore(target, metric string, score float64) {
	m.modelScore.WithLabelValues(target, metric).Set(score)
}

// RecordReload 记录快照重建
func (m *Metrics) RecordReload(trigger string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) SetDatasetRows(n int) {
	m.datasetRows.Set(float64(n))
}

func (m *Metrics) SetClients(n int) {
	m.wsClients.Set(float64(n))
}

// GetUptime 获取运行时间
func (m *Metrics) GetUptime() time.Duration {
	return time.Since(m.startTime)
}
