// Package mcp is a minimal Model Context Protocol client that talks to a server
// subprocess over stdio using line-delimited JSON-RPC 2.0.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"backoffice/pkg/logx"
)

// ErrClosed is returned for calls on a client whose server has gone away.
var ErrClosed = errors.New("mcp client closed")

const defaultCloseTimeout = 5 * time.Second

// Options describes the server subprocess.
type Options struct {
	Command string
	Args    []string
	// Env is appended to the current process environment.
	Env []string
	// Stderr receives the server's stderr. Nil discards it.
	Stderr io.Writer
	// CloseTimeout bounds how long Close waits before killing the server.
	CloseTimeout time.Duration
	ClientInfo   Implementation
	Logger       *logx.Logger
}

// Client is a connected MCP server.
type Client struct {
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	logger       *logx.Logger
	closeTimeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Response
	closed  bool

	done    chan struct{}
	readErr error

	server InitializeResult
}

// Start launches the server and performs the initialize handshake. ctx bounds the
// handshake only; the subprocess lives until Close.
func Start(ctx context.Context, opts *Options) (*Client, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("mcp server command is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logx.NewLogger("mcp")
	}
	closeTimeout := opts.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = defaultCloseTimeout
	}

	cmd := exec.Command(opts.Command, opts.Args...) //nolint:gosec // command comes from operator config
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Stderr = opts.Stderr
	cmd.WaitDelay = closeTimeout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open server stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mcp server %s: %w", opts.Command, err)
	}

	c := &Client{
		cmd:          cmd,
		stdin:        stdin,
		logger:       logger,
		closeTimeout: closeTimeout,
		pending:      make(map[string]chan *Response),
		done:         make(chan struct{}),
	}
	go c.readLoop(stdout)

	info := opts.ClientInfo
	if info.Name == "" {
		info = Implementation{Name: "backoffice", Version: "1.0.0"}
	}
	if err := c.initialize(ctx, info); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) initialize(ctx context.Context, info Implementation) error {
	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      info,
	}
	if err := c.call(ctx, "initialize", params, &c.server); err != nil {
		return fmt.Errorf("mcp initialize failed: %w", err)
	}
	if err := c.notify("notifications/initialized", nil); err != nil {
		return fmt.Errorf("mcp initialized notification failed: %w", err)
	}
	c.logger.Info("Connected to MCP server %s %s (protocol %s)",
		c.server.ServerInfo.Name, c.server.ServerInfo.Version, c.server.ProtocolVersion)
	return nil
}

// ServerInfo returns what the server reported during initialize.
func (c *Client) ServerInfo() InitializeResult {
	return c.server
}

// ListTools returns every tool the server offers, following pagination cursors.
func (c *Client) ListTools(ctx context.Context) ([]RemoteTool, error) {
	var all []RemoteTool
	cursor := ""
	for {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		var page listToolsResult
		if err := c.call(ctx, "tools/list", params, &page); err != nil {
			return nil, fmt.Errorf("tools/list failed: %w", err)
		}
		all = append(all, page.Tools...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool invokes a tool. A tool-level failure comes back as IsError, not as err.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	var result CallToolResult
	if err := c.call(ctx, "tools/call", callToolParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, fmt.Errorf("tools/call %s failed: %w", name, err)
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	id := uuid.NewString()
	ch := make(chan *Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(&Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("invalid %s result: %w", method, err)
		}
		return nil
	case <-c.done:
		if c.readErr != nil {
			return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		}
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (c *Client) notify(method string, params any) error {
	return c.write(&Request{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Client) write(req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", req.Method, err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrClosed, req.Method, err)
	}
	return nil
}

func (c *Client) readLoop(stdout io.Reader) {
	defer close(c.done)

	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.readErr = err
			} else {
				c.readErr = io.ErrUnexpectedEOF
			}
			return
		}
	}
}

func (c *Client) dispatch(line []byte) {
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		// Servers sometimes print banners on stdout.
		c.logger.Debug("Ignoring non-JSON line from server: %.200s", line)
		return
	}

	if resp.Method != "" {
		if len(resp.ID) == 0 {
			c.logger.Debug("Server notification: %s", resp.Method)
			return
		}
		c.answerServerRequest(&resp)
		return
	}

	id := decodeID(resp.ID)
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("Dropping response for unknown request %s", id)
		return
	}
	ch <- &resp
}

// answerServerRequest replies to requests the server sends us. Only ping is supported.
func (c *Client) answerServerRequest(req *Response) {
	reply := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if req.Method == "ping" {
		reply["result"] = map[string]any{}
	} else {
		reply["error"] = &RPCError{Code: CodeMethodNotFound, Message: "Method not found", Data: req.Method}
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	data = append(data, '\n')
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, _ = c.stdin.Write(data)
}

func decodeID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Close stops the server: stdin is closed, then the process is killed if it
// has not exited within the close timeout. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.stdin.Close()

	select {
	case <-c.done:
	case <-time.After(c.closeTimeout):
		c.logger.Warn("MCP server did not exit within %s, killing it", c.closeTimeout)
		_ = c.cmd.Process.Kill()
	}

	err := c.cmd.Wait()
	<-c.done

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Errorf("failed to stop mcp server: %w", err)
	}
	return nil
}
