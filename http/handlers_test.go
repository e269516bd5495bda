package http

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"flightdash/app"
	"flightdash/config"
	"flightdash/db"
	"flightdash/internal/fixture"
	"flightdash/monitoring"
)

type testServer struct {
	handler http.Handler
	svc     *app.Service
	dataset string
}

func newTestServer(t *testing.T, rows, delayed int, bootstrap bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	dataset := filepath.Join(dir, "flights.csv")
	require.NoError(t, fixture.WriteCSV(dataset, fixture.Flights(rows, delayed)))

	store, err := db.Open(filepath.Join(dir, "flightdash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	metrics := monitoring.NewMetrics()
	alerts := monitoring.NewAlertSystem(zap.NewNop(), nil, 0)
	svc := app.New(app.Options{
		Dataset: config.DatasetConfig{Path: dataset},
		ML: config.MLConfig{
			NumTrees:       5,
			MaxDepth:       4,
			TestRatio:      0.2,
			Seed:           42,
			MinDelayedRows: 100,
		},
		CacheSize: 16,
		Logger:    zap.NewNop(),
		Metrics:   metrics,
		Recorder:  store,
		Alerts:    alerts,
		AlertRules: config.AlertConfig{
			MaxRejectedRatio: 1,
			MinR2:            -1e9,
		},
	})
	if bootstrap {
		require.NoError(t, svc.Bootstrap(context.Background()))
	}

	h := NewHandlers(svc, nil, metrics, alerts, zap.NewNop())
	srv := NewServer(DefaultServerConfig(), h)
	return &testServer{handler: srv.Handler(), svc: svc, dataset: dataset}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, kind, body["kind"])
	assert.NotEmpty(t, body["error"])
}

func TestHealthBeforeReady(t *testing.T) {
	s := newTestServer(t, 60, 10, false)

	rr := s.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["ready"])

	assertError(t, s.do(t, http.MethodGet, "/api/kpi-data", nil), http.StatusServiceUnavailable, "not_ready")
	assertError(t, s.do(t, http.MethodPost, "/api/predict-delay", "{}"), http.StatusServiceUnavailable, "not_ready")
}

func TestDashboardViews(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	rr := s.do(t, http.MethodGet, "/api/kpi-data", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.EqualValues(t, 240, decode(t, rr)["total_flights"])

	var airlines []map[string]interface{}
	rr = s.do(t, http.MethodGet, "/api/airline-performance", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &airlines))
	assert.Len(t, airlines, len(fixture.Airlines))

	for _, path := range []string{
		"/api/delay-distribution",
		"/api/time-series",
		"/api/temporal-trends",
		"/api/satisfaction-factors",
		"/api/revenue-analysis",
		"/api/customer-segments",
		"/api/data-quality",
		"/api/training/report",
	} {
		rr := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestRouteAnalysisLimit(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	var routes []map[string]interface{}
	rr := s.do(t, http.MethodGet, "/api/route-analysis?limit=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &routes))
	assert.Len(t, routes, 3)

	rr = s.do(t, http.MethodGet, "/api/route-analysis", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &routes))
	assert.Len(t, routes, 10)

	rr = s.do(t, http.MethodGet, "/api/route-analysis?limit=5000", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &routes))
	assert.LessOrEqual(t, len(routes), maxRouteLimit)

	assertError(t, s.do(t, http.MethodGet, "/api/route-analysis?limit=abc", nil), http.StatusBadRequest, "invalid_request")
	assertError(t, s.do(t, http.MethodGet, "/api/route-analysis?limit=0", nil), http.StatusBadRequest, "invalid_request")
}

func TestDelayBreakdown(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	rr := s.do(t, http.MethodGet, "/api/delay-breakdown?by=Seat_Class", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "Seat_Class", body["by"])
	assert.Len(t, body["avg_delay"], 3)

	assertError(t, s.do(t, http.MethodGet, "/api/delay-breakdown?by=Nope", nil), http.StatusBadRequest, "invalid_request")
}

func TestGroupBy(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	rr := s.do(t, http.MethodPost, "/api/group-by", map[string]interface{}{
		"keys": []string{"Airline"},
		"aggregations": []map[string]string{
			{"column": "Price_USD", "func": "mean", "alias": "avg_price"},
			{"column": "Passenger_ID", "func": "count"},
		},
		"top":     2,
		"rank_by": "avg_price",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	rows := body["rows"].([]interface{})
	require.Len(t, rows, 2)
	first, second := rows[0].(map[string]interface{}), rows[1].(map[string]interface{})
	assert.GreaterOrEqual(t, first["avg_price"], second["avg_price"])
	assert.Contains(t, fixture.Airlines, first["Airline"])

	assertError(t, s.do(t, http.MethodPost, "/api/group-by", map[string]interface{}{
		"keys":         []string{"Airline"},
		"aggregations": []map[string]string{{"column": "Airline", "func": "mean"}},
	}), http.StatusBadRequest, "invalid_request")

	assertError(t, s.do(t, http.MethodPost, "/api/group-by", map[string]interface{}{
		"keys": []string{},
	}), http.StatusBadRequest, "invalid_request")

	assertError(t, s.do(t, http.MethodPost, "/api/group-by", map[string]interface{}{
		"keys":    []string{"Airline"},
		"rank_by": "missing",
	}), http.StatusBadRequest, "invalid_request")
}

func TestPredictEndpoints(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	rr := s.do(t, http.MethodPost, "/api/predict-delay", map[string]interface{}{
		"Airline":        "United",
		"Weather_Impact": true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	prediction := body["prediction"].(map[string]interface{})
	assert.Contains(t, []interface{}{"Short", "Medium", "Long"}, prediction["delay_category"])

	rr = s.do(t, http.MethodPost, "/api/predict-satisfaction", "{}")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	prediction = decode(t, rr)["prediction"].(map[string]interface{})
	score := prediction["predicted_satisfaction"].(float64)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 10.0)

	rr = s.do(t, http.MethodPost, "/api/predict-noshow", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	prediction = decode(t, rr)["prediction"].(map[string]interface{})
	assert.Contains(t, []interface{}{"Low", "Medium", "High"}, prediction["risk_level"])
}

func TestPredictErrors(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	assertError(t, s.do(t, http.MethodPost, "/api/predict-delay", map[string]string{"Airline": "Aeroflot"}),
		http.StatusUnprocessableEntity, "unknown_category")
	assertError(t, s.do(t, http.MethodPost, "/api/predict-delay", map[string]string{"Price_USD": "cheap"}),
		http.StatusBadRequest, "missing_feature")
	assertError(t, s.do(t, http.MethodPost, "/api/predict-delay", "not json"),
		http.StatusBadRequest, "invalid_request")

	// Airline is fixed for the no-show endpoint, so the unknown value is ignored
	rr := s.do(t, http.MethodPost, "/api/predict-noshow", map[string]string{"Airline": "Aeroflot"})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestPredictDelayNotTrained(t *testing.T) {
	s := newTestServer(t, 240, 20, true)

	assertError(t, s.do(t, http.MethodPost, "/api/predict-delay", "{}"),
		http.StatusServiceUnavailable, "model_not_trained")

	rr := s.do(t, http.MethodPost, "/api/predict-satisfaction", "{}")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	active := decode(t, rr)["active"].([]interface{})
	require.Len(t, active, 1)
	assert.Equal(t, "delay_model_skipped", active[0].(map[string]interface{})["rule"])
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	rr := s.do(t, http.MethodGet, "/api/export/airlines.csv", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "Airline,"), lines[0])
	assert.Len(t, lines, 1+len(fixture.Airlines))

	rr = s.do(t, http.MethodGet, "/api/export/flights.csv", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	lines = strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "Passenger_ID,"))
	assert.Len(t, lines, 241)

	assertError(t, s.do(t, http.MethodGet, "/api/export/nope.csv", nil), http.StatusNotFound, "not_found")
	assertError(t, s.do(t, http.MethodGet, "/api/export/airlines.json", nil), http.StatusNotFound, "not_found")
}

func TestExportWorkbook(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	rr := s.do(t, http.MethodGet, "/api/export/dashboard.xlsx", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"KPIs", "Airlines", "Routes", "Segments"}, f.GetSheetList())
	rows, err := f.GetRows("Airlines")
	require.NoError(t, err)
	assert.Len(t, rows, 1+len(fixture.Airlines))

	value, err := f.GetCellValue("KPIs", "B2")
	require.NoError(t, err)
	assert.Equal(t, "240", value)
}

func TestAdminReloadAndHistory(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	require.NoError(t, fixture.WriteCSV(s.dataset, fixture.Flights(300, 150)))
	rr := s.do(t, http.MethodPost, "/api/admin/reload", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	status := decode(t, rr)["status"].(map[string]interface{})
	assert.Equal(t, app.TriggerAdmin, status["trigger"])
	assert.EqualValues(t, 300, status["rows"])

	assert.EqualValues(t, 300, decode(t, s.do(t, http.MethodGet, "/api/kpi-data", nil))["total_flights"])

	var logs []map[string]interface{}
	rr = s.do(t, http.MethodGet, "/api/training/history?limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &logs))
	assert.Len(t, logs, 6, "two runs of three models")

	assertError(t, s.do(t, http.MethodGet, "/api/training/history?limit=-1", nil), http.StatusBadRequest, "invalid_request")
}

func TestPredictionStatsAndStoredIssues(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	for i := 0; i < 2; i++ {
		rr := s.do(t, http.MethodPost, "/api/predict-satisfaction", map[string]interface{}{})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	rr := s.do(t, http.MethodPost, "/api/predict-noshow", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	stats := decode(t, s.do(t, http.MethodGet, "/api/predictions/stats", nil))
	byTarget := stats["by_target"].(map[string]interface{})
	assert.EqualValues(t, 2, byTarget["satisfaction"], "cache hits are audited too")
	assert.EqualValues(t, 1, byTarget["noshow"])
	assert.EqualValues(t, 0, byTarget["delay"])
	assert.EqualValues(t, 3, stats["total"])

	flights := fixture.Flights(240, 120)
	require.NoError(t, fixture.WriteCSV(s.dataset, append(flights, flights[0])))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/admin/reload", nil).Code)

	quality := decode(t, s.do(t, http.MethodGet, "/api/data-quality", nil))
	stored := quality["stored_counts"].(map[string]interface{})
	assert.EqualValues(t, 1, stored["duplicate_passenger"])
	assert.EqualValues(t, 1, quality["total_issues"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 240, 120, true)
	s.do(t, http.MethodGet, "/api/kpi-data", nil)

	rr := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `flightdash_http_requests_total{method="GET",route="GET /api/kpi-data",status="200"} 1`)
	assert.Contains(t, body, "flightdash_dataset_rows 240")
}

func TestMiddlewareHeaders(t *testing.T) {
	s := newTestServer(t, 60, 10, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/predict-delay", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = s.do(t, http.MethodGet, "/api/health", nil)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestRequestBodyLimit(t *testing.T) {
	s := newTestServer(t, 240, 120, true)
	big := `{"Airline":"` + strings.Repeat("x", 2<<20) + `"}`
	assertError(t, s.do(t, http.MethodPost, "/api/predict-delay", big), http.StatusBadRequest, "invalid_request")
}

func TestDashboardWebSocketThroughMiddleware(t *testing.T) {
	s := newTestServer(t, 240, 120, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := monitoring.NewHub(zap.NewNop(), nil, nil)
	hub.SetGreeting(func() (monitoring.MessageType, interface{}, bool) {
		return monitoring.KPIUpdate, s.svc.Current().Store.SummaryStats(), true
	})
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer(DefaultServerConfig(), NewHandlers(s.svc, hub, nil, nil, zap.NewNop())).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/dashboard"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg monitoring.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, monitoring.KPIUpdate, msg.Type)

	var kpi map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &kpi))
	assert.EqualValues(t, 240, kpi["total_flights"])
}

func TestRespondJSONLogsThroughHandlerLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := NewHandlers(nil, nil, nil, nil, zap.New(core))

	rr := httptest.NewRecorder()
	h.respondJSON(rr, http.StatusOK, map[string]float64{"score": math.Inf(1)})

	assert.Equal(t, http.StatusOK, rr.Code)
	entries := logs.FilterMessage("encode response failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "http", entries[0].LoggerName)
}
