package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseWrite(w http.ResponseWriter, result string) {
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprintf(w, "data: {\"result\":%s}\n\n", result)
}

func newTestServer(t *testing.T, sessionID string, toolsJSON string, callHandler func(args map[string]interface{}) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Method {
		case "initialize":
			w.Header().Set(sessionHeader, sessionID)
			w.WriteHeader(http.StatusOK)
		case "tools/list":
			sseWrite(w, toolsJSON)
		case "tools/call":
			params, _ := req.Params.(map[string]interface{})
			args, _ := params["arguments"].(map[string]interface{})
			sseWrite(w, callHandler(args))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestClient_InitializeAndListTools(t *testing.T) {
	toolsJSON := `{"tools":[{"name":"restart_container","description":"restarts a container","inputSchema":{"container_name":{}}}]}`
	srv := newTestServer(t, "sess-1", toolsJSON, nil)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, true, zerolog.Nop())
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.ListTools(context.Background()))

	assert.True(t, c.VerifyGatewayHealth())
	assert.Contains(t, c.ToolCatalog(), "restart_container")
}

func TestClient_Initialize_MissingSessionHeaderFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, true, zerolog.Nop())
	err := c.Initialize(context.Background())
	assert.Error(t, err)
	assert.False(t, c.VerifyGatewayHealth())
}

func TestClient_ExecuteFix_DisabledAutoHeal(t *testing.T) {
	c := NewClient("http://unused", 5*time.Second, false, zerolog.Nop())
	result := c.ExecuteFix(context.Background(), domain.FixAction{ToolName: "restart_container", Target: "web"})
	assert.False(t, result.Success)
	assert.Equal(t, disabledMessage, result.Message)
}

func TestClient_ExecuteFix_Success(t *testing.T) {
	toolsJSON := `{"tools":[{"name":"restart_container","description":"restart","inputSchema":{"container_name":{}}}]}`
	srv := newTestServer(t, "sess-1", toolsJSON, func(args map[string]interface{}) string {
		assert.Equal(t, "web", args["container_name"])
		return `{"content":[{"text":"{\"success\":true,\"message\":\"restarted\"}"}]}`
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, true, zerolog.Nop())
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.ListTools(context.Background()))

	result := c.ExecuteFix(context.Background(), domain.FixAction{
		ToolName: "restart_container",
		Target:   "web",
		ArgsJSON: `{"container_name":"web"}`,
	})
	assert.True(t, result.Success)
	assert.Equal(t, "restarted", result.Message)
}

func TestClient_ExecuteFix_UnknownTool(t *testing.T) {
	toolsJSON := `{"tools":[]}`
	srv := newTestServer(t, "sess-1", toolsJSON, nil)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, true, zerolog.Nop())
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.ListTools(context.Background()))

	result := c.ExecuteFix(context.Background(), domain.FixAction{ToolName: "nope", Target: "web"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestClient_ProbeContainerHealth_SucceedsWhenHealthy(t *testing.T) {
	toolsJSON := `{"tools":[{"name":"health_check","description":"probe","inputSchema":{"container_name":{}}}]}`
	calls := 0
	srv := newTestServer(t, "sess-1", toolsJSON, func(args map[string]interface{}) string {
		calls++
		if calls < 2 {
			return `{"content":[{"text":"{\"success\":false,\"status\":\"starting\"}"}]}`
		}
		return `{"content":[{"text":"{\"success\":true,\"status\":\"healthy\"}"}]}`
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, true, zerolog.Nop())
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.ListTools(context.Background()))

	ok := c.ProbeContainerHealth(context.Background(), "web")
	assert.True(t, ok)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestClient_ProbeContainerHealth_NoHealthCheckTool(t *testing.T) {
	srv := newTestServer(t, "sess-1", `{"tools":[]}`, nil)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, true, zerolog.Nop())
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.ListTools(context.Background()))

	assert.False(t, c.ProbeContainerHealth(context.Background(), "web"))
}
