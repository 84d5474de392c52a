// Package gateway implements the C3 tool gateway client: a session-
// oriented client over HTTP-with-SSE-framing that discovers remediation
// tools and invokes them (§4.3).
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/aryan877/sre-sentinel/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	sessionHeader = "Mcp-Session-Id"
	protocolVersion = "2024-11-05"
	clientName      = "sre-sentinel"
	clientVersion   = "1.0.0"

	healthProbeInterval = 2 * time.Second
	healthProbeMaxWait  = 30 * time.Second

	disabledMessage = "Auto-heal disabled"
)

// jsonRPCRequest is the JSON-RPC 2.0 envelope sent on every request.
type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type jsonRPCEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolDescriptorWire struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type listToolsResult struct {
	Tools []toolDescriptorWire `json:"tools"`
}

type callToolContent struct {
	Text string `json:"text"`
}

type callToolResult struct {
	Content []callToolContent `json:"content"`
	IsError bool               `json:"isError"`
}

// toolResultPayload is the stringly-typed JSON inside result.content[0].text.
type toolResultPayload struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Error       string `json:"error"`
	Status      string `json:"status"`
	Health      string `json:"health"`
	Details     map[string]interface{} `json:"details"`
}

// Client is the tool gateway session client.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	autoHealEnabled bool
	log             zerolog.Logger

	mu        sync.RWMutex
	sessionID string
	tools     map[string]domain.ToolDescriptor
	nextID    int

	metrics *metrics.Registry
}

// WithMetrics attaches a Prometheus registry for recording tools/call
// latency. Optional.
func (c *Client) WithMetrics(reg *metrics.Registry) *Client {
	c.metrics = reg
	return c
}

// NewClient constructs a gateway client. baseURL is the gateway root
// (e.g. http://localhost:8811); /mcp is appended.
func NewClient(baseURL string, timeout time.Duration, autoHealEnabled bool, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimSuffix(baseURL, "/") + "/mcp",
		httpClient:      &http.Client{Timeout: timeout},
		autoHealEnabled: autoHealEnabled,
		log:             log,
		tools:           make(map[string]domain.ToolDescriptor),
	}
}

// Initialize performs the first phase of the session protocol. A missing
// session id in the response is fatal to initialization (§4.3 item 1).
func (c *Client) Initialize(ctx context.Context) error {
	resp, _, err := c.postJSONRPC(ctx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]string{"name": clientName, "version": clientVersion},
	}, false)
	if err != nil {
		return fmt.Errorf("gateway initialize: %w", err)
	}

	sessionID := resp.Header.Get(sessionHeader)
	resp.Body.Close()
	if sessionID == "" {
		return fmt.Errorf("gateway initialize: response missing %s header", sessionHeader)
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
	return nil
}

// ListTools performs the second phase: discovers and caches the tool
// catalog. An empty tool list makes the gateway unhealthy (§4.3 item 2).
func (c *Client) ListTools(ctx context.Context) error {
	_, body, err := c.postJSONRPC(ctx, "tools/list", nil, true)
	if err != nil {
		return fmt.Errorf("gateway tools/list: %w", err)
	}

	var result listToolsResult
	if err := parseSSEResult(body, &result); err != nil {
		return fmt.Errorf("gateway tools/list: %w", err)
	}

	tools := make(map[string]domain.ToolDescriptor, len(result.Tools))
	for _, t := range result.Tools {
		tools[t.Name] = domain.ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return nil
}

// VerifyGatewayHealth succeeds iff a session exists and the cached tool
// list is non-empty (§4.3 "Health check").
func (c *Client) VerifyGatewayHealth() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID != "" && len(c.tools) > 0
}

// ToolCatalog renders the discovered tools as a descriptor string for the
// deep analyzer prompt (§4.6 stage 3).
func (c *Client) ToolCatalog() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder
	for _, t := range c.tools {
		fmt.Fprintf(&b, "- %s: %s", t.Name, t.Description)
		for param := range t.InputSchema {
			fmt.Fprintf(&b, " [%s]", param)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ExecuteFix dispatches one suggested fix. Under auto-heal disabled, it
// short-circuits to a failed result with zero transport calls (§4.3
// "Disabled mode").
func (c *Client) ExecuteFix(ctx context.Context, fix domain.FixAction) domain.FixExecutionResult {
	if !c.autoHealEnabled {
		return domain.FixExecutionResult{ToolName: fix.ToolName, Success: false, Message: disabledMessage}
	}

	c.mu.RLock()
	tool, known := c.tools[fix.ToolName]
	c.mu.RUnlock()
	if !known {
		return domain.FixExecutionResult{ToolName: fix.ToolName, Success: false, Error: fmt.Sprintf("unknown tool %q", fix.ToolName)}
	}

	args := buildToolArguments(fix, tool)

	payload, err := c.callTool(ctx, fix.ToolName, args)
	if err != nil {
		return domain.FixExecutionResult{ToolName: fix.ToolName, Success: false, Error: err.Error()}
	}

	return domain.FixExecutionResult{
		ToolName:    fix.ToolName,
		Success:     payload.Success,
		Message:     payload.Message,
		Error:       payload.Error,
		ToolStatus:  payload.Status,
	}
}

// ProbeContainerHealth polls the health_check tool every 2s for up to 30s
// (§4.3 "Container health probe").
func (c *Client) ProbeContainerHealth(ctx context.Context, containerName string) bool {
	c.mu.RLock()
	_, hasHealthCheck := c.tools["health_check"]
	c.mu.RUnlock()
	if !hasHealthCheck {
		return false
	}

	deadline := time.Now().Add(healthProbeMaxWait)
	for {
		payload, err := c.callTool(ctx, "health_check", map[string]interface{}{"container_name": containerName})
		if err == nil && probeSatisfied(payload) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(healthProbeInterval):
		}
	}
}

func probeSatisfied(payload *toolResultPayload) bool {
	if payload.Success {
		return true
	}
	status := strings.ToLower(payload.Status)
	if status == "healthy" || status == "running" {
		return true
	}
	health := strings.ToLower(payload.Health)
	if health == "healthy" || health == "running" {
		return true
	}
	if payload.Details != nil {
		if h, ok := payload.Details["health"].(string); ok {
			h = strings.ToLower(h)
			if h == "healthy" || h == "running" {
				return true
			}
		}
	}
	return false
}

// buildToolArguments attempts to parse the fix's opaque ArgsJSON; on parse
// failure it constructs arguments opportunistically from the tool's
// declared schema (§4.3 "Fix execution contract").
func buildToolArguments(fix domain.FixAction, tool domain.ToolDescriptor) map[string]interface{} {
	if fix.ArgsJSON != "" {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(fix.ArgsJSON), &parsed); err == nil {
			return parsed
		}
	}

	args := map[string]interface{}{}
	if _, ok := tool.InputSchema["container_name"]; ok {
		args["container_name"] = fix.Target
	}
	if _, ok := tool.InputSchema["details"]; ok {
		args["details"] = fix.ArgsJSON
	}
	return args
}

func (c *Client) callTool(ctx context.Context, name string, args map[string]interface{}) (*toolResultPayload, error) {
	if c.metrics != nil {
		start := time.Now()
		defer func() {
			c.metrics.GatewayCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}()
	}
	_, body, err := c.postJSONRPC(ctx, "tools/call", map[string]interface{}{"name": name, "arguments": args}, true)
	if err != nil {
		return nil, err
	}

	var result callToolResult
	if err := parseSSEResult(body, &result); err != nil {
		return nil, err
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("tool %q returned no content", name)
	}

	var payload toolResultPayload
	if err := json.Unmarshal([]byte(result.Content[0].Text), &payload); err != nil {
		return nil, fmt.Errorf("tool %q returned malformed result: %w", name, err)
	}
	if result.IsError && payload.Error == "" {
		payload.Error = result.Content[0].Text
	}
	return &payload, nil
}

// postJSONRPC issues one JSON-RPC request. When sse is true the body is
// read and closed here and returned as bytes for parseSSEResult;
// otherwise the caller owns the raw response and must close its body
// (used only by Initialize, which needs response headers, not a body).
func (c *Client) postJSONRPC(ctx context.Context, method string, params interface{}, sse bool) (*http.Response, []byte, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	sessionID := c.sessionID
	c.mu.Unlock()

	reqBody, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		httpReq.Header.Set(sessionHeader, sessionID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		return nil, nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, buf.String())
	}

	if !sse {
		return resp, nil, nil
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, nil, fmt.Errorf("read gateway response: %w", err)
	}
	return resp, buf.Bytes(), nil
}

// parseSSEResult extracts the first "data: " line of an SSE response body
// and unmarshals its JSON-RPC result into out (§4.3 "Response framing is
// SSE; the first data: line is parsed").
func parseSSEResult(body []byte, out interface{}) error {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var envelope jsonRPCEnvelope
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			return fmt.Errorf("unmarshal SSE envelope: %w", err)
		}
		if envelope.Error != nil {
			return fmt.Errorf("gateway error %d: %s", envelope.Error.Code, envelope.Error.Message)
		}
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("unmarshal SSE result: %w", err)
		}
		return nil
	}
	return fmt.Errorf("no data line in SSE response")
}
