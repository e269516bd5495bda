package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest(http.MethodGet, "/api/kpi-data", 200, 3*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/kpi-data", 200, time.Millisecond)
	m.RecordPrediction("delay", "ok")
	m.RecordPrediction("delay", "unknown_category")
	m.RecordReload("fsnotify", errors.New("bad file"))
	m.SetDatasetRows(1234)

	assert.Equal(t, 2.0, counterValue(t, m, "flightdash_http_requests_total", map[string]string{"route": "/api/kpi-data", "status": "200"}))
	assert.Equal(t, 1.0, counterValue(t, m, "flightdash_predictions_total", map[string]string{"target": "delay", "outcome": "unknown_category"}))
	assert.Equal(t, 1.0, counterValue(t, m, "flightdash_snapshot_reloads_total", map[string]string{"trigger": "fsnotify", "result": "error"}))
	assert.Equal(t, 1234.0, counterValue(t, m, "flightdash_dataset_rows", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flightdash_http_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func startHub(t *testing.T, greeting Greeting) (*Hub, string) {
	t.Helper()
	hub := NewHub(zap.NewNop(), NewMetrics(), []string{"*"})
	if greeting != nil {
		hub.SetGreeting(greeting)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcast(t *testing.T) {
	hub, url := startHub(t, func() (MessageType, interface{}, bool) {
		return SystemStatus, map[string]string{"status": "ready"}, true
	})
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	greeting := readMessage(t, conn)
	assert.Equal(t, SystemStatus, greeting.Type)

	require.NoError(t, hub.Broadcast(KPIUpdate, map[string]int{"total_flights": 42}))
	msg := readMessage(t, conn)
	assert.Equal(t, KPIUpdate, msg.Type)
	assert.NotEmpty(t, msg.ID)

	var data map[string]int
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, 42, data["total_flights"])
}

func TestHubSubscriptions(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe", Topic: string(ModelUpdate)}))
	// the subscription is applied by the read pump; give it a moment
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.wants(KPIUpdate) {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(KPIUpdate, "skipped"))
	require.NoError(t, hub.Broadcast(ModelUpdate, "delivered"))

	msg := readMessage(t, conn)
	assert.Equal(t, ModelUpdate, msg.Type)
}

func TestHubDisconnect(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://dash.local"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://dash.local")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
