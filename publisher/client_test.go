package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// mcpServer is a minimal JSON-RPC endpoint that assigns a session id on
// initialize and records the methods and session headers it sees.
type mcpServer struct {
	mu       sync.Mutex
	methods  []string
	sessions []string
	toolOut  string
	toolErr  bool
}

func (m *mcpServer) handler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64           `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	m.methods = append(m.methods, req.Method)
	m.sessions = append(m.sessions, r.Header.Get("Mcp-Session-Id"))
	m.mu.Unlock()

	switch req.Method {
	case "initialize":
		w.Header().Set("Mcp-Session-Id", "sess-42")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"serverInfo": map[string]any{"name": "xhs-automation", "version": "0.3"},
			},
		})
	case "notifications/initialized":
		w.WriteHeader(http.StatusAccepted)
	case "tools/call":
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"content": []map[string]any{{"type": "text", "text": m.toolOut}},
				"isError": m.toolErr,
			},
		})
	default:
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32601, "message": "method not found"},
		})
	}
}

func newMCPFixture(t *testing.T) (*MCPClient, *mcpServer) {
	t.Helper()
	ms := &mcpServer{toolOut: "发布成功"}
	srv := httptest.NewServer(http.HandlerFunc(ms.handler))
	t.Cleanup(srv.Close)

	c, err := NewMCPClient(srv.URL, srv.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return c, ms
}

func TestCallTool_HandshakesOnceAndReplaysSession(t *testing.T) {
	c, ms := newMCPFixture(t)

	out, err := c.CallTool(context.Background(), "publish_content", map[string]any{"title": "t"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "发布成功" {
		t.Errorf("tool output = %q", out)
	}

	if _, err := c.CallTool(context.Background(), "check_login_status", nil); err != nil {
		t.Fatal(err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	want := []string{"initialize", "notifications/initialized", "tools/call", "tools/call"}
	if len(ms.methods) != len(want) {
		t.Fatalf("methods = %v, want %v", ms.methods, want)
	}
	for i := range want {
		if ms.methods[i] != want[i] {
			t.Fatalf("methods = %v, want %v", ms.methods, want)
		}
	}

	// Every request after initialize carries the assigned session id.
	for i, sid := range ms.sessions[1:] {
		if sid != "sess-42" {
			t.Errorf("request %d session = %q, want sess-42", i+1, sid)
		}
	}
}

func TestCallTool_ToolErrorSurfacesText(t *testing.T) {
	c, ms := newMCPFixture(t)
	ms.toolOut = "操作失败：浏览器未就绪"
	ms.toolErr = true

	out, err := c.CallTool(context.Background(), "publish_content", nil)
	if err == nil {
		t.Fatal("isError result returned no error")
	}
	if !strings.Contains(out, "浏览器未就绪") {
		t.Errorf("error text lost: %q", out)
	}
}

func TestCall_RPCError(t *testing.T) {
	c, _ := newMCPFixture(t)

	if err := c.EnsureInitialized(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := c.call(context.Background(), "tools/list", nil)
	if err == nil || !strings.Contains(err.Error(), "method not found") {
		t.Fatalf("error = %v, want rpc method-not-found", err)
	}
}

func TestEnsureInitialized_FailureIsRetryable(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service starting", http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	c, _ := NewMCPClient(down.URL, down.Client(), nil)
	if err := c.EnsureInitialized(context.Background()); err == nil {
		t.Fatal("handshake against a warming service should fail")
	}
	// A later attempt still goes through the handshake.
	if err := c.EnsureInitialized(context.Background()); err == nil {
		t.Fatal("initialized flag must not be set by a failed handshake")
	}
}
