// Package jsonrpc is a JSON-RPC 2.0 client for a tenant's MCP tool endpoint.
package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
)

// Ensure Client implements ToolClient
var _ driven.ToolClient = (*Client)(nil)

const (
	// DefaultTimeout bounds every tool endpoint call.
	DefaultTimeout = 30 * time.Second

	methodListTools = "tools/list"
	methodCallTool  = "tools/call"

	maxResponseBytes = 16 << 20
	maxErrorBody     = 2048
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CallToolParams are the params of tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Config holds configuration for the client.
type Config struct {
	// HTTPClient is shared across calls for connection reuse. Defaults to a new client.
	HTTPClient *http.Client
	// Timeout bounds each call. Defaults to DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client sends one request per call; nothing is batched or retried.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates a new Client.
func New(cfg Config) *Client {
	c := &Client{
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "jsonrpc")
	return c
}

// ListTools calls tools/list. Result shapes other than {"tools":[...]} or a
// bare array produce an empty list and a warning.
func (c *Client) ListTools(ctx context.Context, target driven.ToolTarget) ([]domain.ToolDescriptor, error) {
	result, err := c.do(ctx, target, methodListTools, struct{}{})
	if err != nil {
		return nil, err
	}
	return c.decodeTools(target.UserID, result), nil
}

// CallTool calls tools/call with the provider's original tool name.
func (c *Client) CallTool(ctx context.Context, target driven.ToolTarget, name string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	return c.do(ctx, target, methodCallTool, CallToolParams{Name: name, Arguments: args})
}

func (c *Client) do(ctx context.Context, target driven.ToolTarget, method string, params any) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := uuid.NewString()
	payload, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, target.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Authorization", "Bearer "+target.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.contextError(ctx, callCtx, method, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.contextError(ctx, callCtx, method, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.ToolHTTPError{Status: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	rpcResp, err := c.decodeResponse(body, isEventStream(resp.Header.Get("Content-Type")), id)
	if err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, &domain.ToolRPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if responseID(rpcResp.ID) != id {
		c.logger.Warn("response id does not match request", "method", method, "user_id", target.UserID)
	}
	return rpcResp.Result, nil
}

// decodeResponse extracts the response to request id. An event stream may
// interleave notifications and other messages with the response, so only a
// frame carrying id and a result or error counts.
func (c *Client) decodeResponse(body []byte, eventStream bool, id string) (*Response, error) {
	if !eventStream {
		var rpcResp Response
		if err := json.Unmarshal(body, &rpcResp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if !rpcResp.complete() {
			return nil, errors.New("decode response: response has neither result nor error")
		}
		return &rpcResp, nil
	}

	frames, err := eventData(body)
	if err != nil {
		return nil, err
	}
	for _, frame := range frames {
		var rpcResp Response
		if err := json.Unmarshal(frame, &rpcResp); err != nil {
			continue
		}
		if responseID(rpcResp.ID) == id && rpcResp.complete() {
			return &rpcResp, nil
		}
	}
	return nil, fmt.Errorf("decode response: event stream has no response to request %s", id)
}

// complete reports whether the envelope answers a request.
func (r *Response) complete() bool {
	return r.Error != nil || len(r.Result) > 0
}

// responseID renders a string or numeric id for comparison.
func responseID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// contextError maps our own deadline to ErrToolTimeout and keeps the caller's cancellation.
func (c *Client) contextError(parent, callCtx context.Context, method string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", method, parent.Err())
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s after %s: %w", method, c.timeout, domain.ErrToolTimeout)
	}
	return err
}

func (c *Client) decodeTools(userID string, result json.RawMessage) []domain.ToolDescriptor {
	trimmed := bytes.TrimSpace(result)

	var raw []json.RawMessage
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			c.logger.Warn("tools/list returned an unreadable array", "user_id", userID, "error", err)
			return []domain.ToolDescriptor{}
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var wrapped struct {
			Tools json.RawMessage `json:"tools"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil || !bytes.HasPrefix(bytes.TrimSpace(wrapped.Tools), []byte("[")) {
			c.logger.Warn("tools/list result has no tools array", "user_id", userID)
			return []domain.ToolDescriptor{}
		}
		if err := json.Unmarshal(wrapped.Tools, &raw); err != nil {
			c.logger.Warn("tools/list returned an unreadable tools array", "user_id", userID, "error", err)
			return []domain.ToolDescriptor{}
		}
	default:
		c.logger.Warn("tools/list returned an unexpected result shape", "user_id", userID)
		return []domain.ToolDescriptor{}
	}

	tools := make([]domain.ToolDescriptor, 0, len(raw))
	for _, item := range raw {
		var d domain.ToolDescriptor
		if err := json.Unmarshal(item, &d); err != nil || d.Name == "" {
			c.logger.Warn("skipping malformed tool descriptor", "user_id", userID)
			continue
		}
		tools = append(tools, d)
	}
	return tools
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/event-stream"
}

// eventData returns the data of every server-sent event in body, in order.
// Multi-line data fields are joined with newlines.
func eventData(body []byte) ([][]byte, error) {
	var (
		frames [][]byte
		data   []string
	)
	flush := func() {
		if len(data) > 0 {
			frames = append(frames, []byte(strings.Join(data, "\n")))
			data = data[:0]
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBytes)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	flush()

	if len(frames) == 0 {
		return nil, errors.New("decode response: event stream has no data")
	}
	return frames, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
