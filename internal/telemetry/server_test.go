package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sniperbot/engine/internal/eventbus"
	"github.com/sniperbot/engine/pkg/models"
)

type fakeHealth struct {
	healthy bool
	detail  string
}

func (f fakeHealth) Healthy() (bool, string) { return f.healthy, f.detail }

func TestHandleHealthReportsOK(t *testing.T) {
	s := NewServer(eventbus.New(), fakeHealth{healthy: true, detail: "ok"}, "0")
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleHealthReportsUnavailableWhenUnhealthy(t *testing.T) {
	s := NewServer(eventbus.New(), fakeHealth{healthy: false, detail: "rpc pool exhausted"}, "0")
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHandleMetricsServesPrometheusFormat(t *testing.T) {
	s := NewServer(eventbus.New(), nil, "0")
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("expected a text/plain prometheus exposition, got %s", ct)
	}
}

func TestHandleStreamForwardsPublishedEvents(t *testing.T) {
	bus := eventbus.New()
	s := NewServer(bus, nil, "0")
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial /stream: %v", err)
	}
	defer conn.Close()

	// Give the subscribe loop a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	alert := models.AlertEvent{Kind: "sell_failed", Message: "timed out", PositionID: "pos-1"}
	bus.Publish(models.TopicAlert, alert)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, body, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read stream message: %v", err)
	}

	var got models.AlertEvent
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal stream payload: %v", err)
	}
	if got.Kind != "sell_failed" || got.PositionID != "pos-1" {
		t.Fatalf("expected forwarded alert event, got %+v", got)
	}
}
