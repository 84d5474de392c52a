package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/aryan877/sre-sentinel/internal/eventbus"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContainers struct{ samples []domain.ContainerSample }

func (f fakeContainers) Snapshot() []domain.ContainerSample { return f.samples }

type fakeIncidents struct{ incidents []domain.Incident }

func (f fakeIncidents) Snapshot() []domain.Incident { return f.incidents }

func TestServer_Healthz(t *testing.T) {
	bus := eventbus.New(eventbus.NewMemoryStore(0), 8, zerolog.Nop())
	srv := New(fakeContainers{}, fakeIncidents{}, bus, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Containers(t *testing.T) {
	bus := eventbus.New(eventbus.NewMemoryStore(0), 8, zerolog.Nop())
	samples := []domain.ContainerSample{{ID: "c1", Name: "web"}}
	srv := New(fakeContainers{samples: samples}, fakeIncidents{}, bus, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/containers", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"c1"`)
}

func TestServer_WebSocket_SendsBootstrapThenForwards(t *testing.T) {
	bus := eventbus.New(eventbus.NewMemoryStore(0), 8, zerolog.Nop())
	samples := []domain.ContainerSample{{ID: "c1", Name: "web"}}
	incidents := []domain.Incident{{ID: "INC-1"}}
	srv := New(fakeContainers{samples: samples}, fakeIncidents{incidents: incidents}, bus, zerolog.Nop())

	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var bootstrap map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &bootstrap))
	assert.Equal(t, "bootstrap", bootstrap["type"])

	bus.Publish(context.Background(), domain.Event{Type: domain.EventLog, LogMessage: "hello"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err = conn.ReadMessage()
	require.NoError(t, err)
	var logEvent map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &logEvent))
	assert.Equal(t, "log", logEvent["type"])
	assert.Equal(t, "hello", logEvent["message"])
}
