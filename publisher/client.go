// Package publisher submits finished notes to the browser-automation
// collaborator. The collaborator speaks plain JSON-RPC 2.0 over HTTP
// POST with a session header, and owns its own login lifecycle.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"auto_xhs_publisher/logger"
)

const protocolVersion = "2024-11-05"

// sessionHeader carries the collaborator's session id once assigned.
const sessionHeader = "Mcp-Session-Id"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// MCPClient is a JSON-RPC POST client for the automation service.
type MCPClient struct {
	url    string
	client *http.Client
	log    *logger.Logger

	mu          sync.Mutex
	sessionID   string
	requestID   int64
	initialized bool
}

func NewMCPClient(url string, client *http.Client, log *logger.Logger) (*MCPClient, error) {
	if url == "" {
		return nil, errors.New("mcp url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = logger.New("info")
	}
	return &MCPClient{url: url, client: client, log: log}, nil
}

// EnsureInitialized performs the handshake once. The collaborator may
// still be completing its own startup, so failures here are retryable.
func (c *MCPClient) EnsureInitialized(ctx context.Context) error {
	c.mu.Lock()
	done := c.initialized
	c.mu.Unlock()
	if done {
		return nil
	}

	result, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "auto-xhs-publisher",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}

	var info struct {
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	_ = json.Unmarshal(result, &info)
	c.log.Info("mcp handshake successful",
		"server", info.ServerInfo.Name, "version", info.ServerInfo.Version)

	if err := c.notify(ctx, "notifications/initialized", map[string]any{}); err != nil {
		c.log.Warn("initialized notification failed", "error", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	return nil
}

// CallTool invokes a named tool and returns its text content.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return "", err
	}

	result, err := c.call(ctx, "tools/call", toolCallParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}

	var tr toolCallResult
	if err := json.Unmarshal(result, &tr); err != nil {
		// 有的实现直接返回字符串结果。
		var plain string
		if json.Unmarshal(result, &plain) == nil {
			return plain, nil
		}
		return string(result), nil
	}

	var sb bytes.Buffer
	for _, item := range tr.Content {
		if item.Type == "text" {
			sb.WriteString(item.Text)
		}
	}
	text := sb.String()
	if tr.IsError {
		return text, fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

func (c *MCPClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	c.requestID++
	id := c.requestID
	c.mu.Unlock()

	resp, err := c.post(ctx, rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func (c *MCPClient) notify(ctx context.Context, method string, params any) error {
	_, err := c.post(ctx, rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
	return err
}

func (c *MCPClient) post(ctx context.Context, payload rpcRequest) (*rpcResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	if c.sessionID != "" {
		req.Header.Set(sessionHeader, c.sessionID)
	}
	c.mu.Unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(sessionHeader); sid != "" {
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
	}

	// Notifications may come back 202/204 with no body.
	if payload.ID == 0 {
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("notification returned status %d", resp.StatusCode)
		}
		return &rpcResponse{}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mcp returned status %d", resp.StatusCode)
	}

	var data rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode mcp response: %w", err)
	}
	return &data, nil
}
