package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"resty.dev/v3"

	"jan-server/services/orchestrator-api/internal/domain/tool"
	"jan-server/services/orchestrator-api/internal/utils/httpclients"
)

const rpcPath = "/v1/mcp"

// RemoteTool is a tool advertised by the MCP server.
type RemoteTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Content is one block of a tools/call result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Client speaks JSON-RPC to an MCP tools server. It doubles as the executor
// of every tool it registers.
type Client struct {
	httpClient *resty.Client
	nextID     atomic.Int64
}

var _ tool.Executor = (*Client)(nil)

// NewClient constructs the MCP client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{httpClient: httpclients.NewClient("mcp-tools", baseURL, timeout)}
}

// ListTools fetches the tools via tools/list.
func (c *Client) ListTools(ctx context.Context) ([]RemoteTool, error) {
	raw, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []RemoteTool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	return result.Tools, nil
}

// Execute runs a remote tool via tools/call and returns its text content.
func (c *Client) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	raw, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var result struct {
		Content []Content `json:"content"`
		IsError bool      `json:"isError"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call: %w", err)
	}
	text := joinText(result.Content)
	if result.IsError {
		if text == "" {
			text = "remote tool failed"
		}
		return nil, errors.New(text)
	}
	return text, nil
}

// Tools lists the remote tools as registry entries in the search class.
func (c *Client) Tools(ctx context.Context) ([]tool.Tool, error) {
	remote, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tool.Tool, 0, len(remote))
	for _, r := range remote {
		if strings.TrimSpace(r.Name) == "" {
			continue
		}
		out = append(out, tool.Tool{
			Descriptor: tool.Descriptor{
				Name:        r.Name,
				Description: r.Description,
				Class:       tool.ClassSearch,
				Parameters:  r.InputSchema,
			},
			Executor: c,
		})
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      c.nextID.Add(1),
	}

	var rpcResp rpcResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&rpcResp).
		Post(rpcPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("mcp %s: %w", method, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("mcp %s error: %s", method, resp.String())
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func joinText(blocks []Content) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      any             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r *rpcError) Error() string {
	return fmt.Sprintf("mcp error (%d): %s", r.Code, r.Message)
}
