// Package mcp implements the client side of the Model Context Protocol:
// it spawns a tool server as a subprocess, speaks line-delimited
// JSON-RPC 2.0 over its standard input/output, and correlates
// concurrent calls by request id.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

const (
	defaultCallTimeout = 30 * time.Second

	// maxLineBytes bounds a single JSON-RPC frame from the peer.
	maxLineBytes = 4 * 1024 * 1024
)

// Client manages one MCP tool server subprocess. All methods are safe
// for concurrent use: writes to the peer's stdin are serialized, while
// each caller blocks only on its own response id.
type Client struct {
	name string
	cmd  *exec.Cmd

	stdin   io.WriteCloser
	writeMu sync.Mutex

	nextID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan *Response

	// closed by the read loop when the peer exits or its pipe closes
	done     chan struct{}
	deadOnce sync.Once

	closeOnce sync.Once

	initialized atomic.Bool

	toolsMu sync.Mutex
	tools   []Tool

	callTimeout time.Duration
	log         *logger.Logger
}

// Spawn starts the tool server described by cfg and takes ownership of
// its pipes. The returned client must be Closed; Close kills the
// subprocess on every path, so a crashing caller cannot leak it.
func Spawn(name string, cfg config.MCPServerConfig, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.ConfigError("mcp server command is empty")
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.InternalError("opening stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.InternalError("opening stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.InternalError("opening stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(errors.CodeProcessDied, "starting tool server", err)
	}

	timeout := defaultCallTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	c := newClient(name, stdin, stdout, stderr, timeout, log)
	c.cmd = cmd

	c.log.Info("tool server spawned", "command", cfg.Command, "pid", cmd.Process.Pid)
	return c, nil
}

// newClient wires a client over explicit pipes. Spawn uses it with the
// subprocess pipes; tests use it with in-process ones.
func newClient(name string, stdin io.WriteCloser, stdout, stderr io.Reader, timeout time.Duration, log *logger.Logger) *Client {
	c := &Client{
		name:        name,
		stdin:       stdin,
		pending:     make(map[int64]chan *Response),
		done:        make(chan struct{}),
		callTimeout: timeout,
		log:         &logger.Logger{Logger: log.WithComponent("mcp").With("server", name)},
	}

	go c.readLoop(stdout)
	go c.drainStderr(stderr)
	return c
}

// readLoop demultiplexes inbound frames. One JSON value per line; lines
// that do not parse as JSON are diagnostic noise from the peer and are
// skipped. When the pipe closes every pending call fails with
// ProcessDied rather than hanging.
func (c *Client) readLoop(stdout io.Reader) {
	defer c.markDead()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			c.log.Debug("skipping non-JSON output", "line", truncate(line, 200))
			continue
		}

		switch {
		case msg.Method != "":
			// Peer-initiated request or notification. We advertise no
			// server-facing capabilities, so log and drop.
			c.log.Debug("ignoring peer message", "method", msg.Method)

		case msg.ID != nil:
			c.dispatch(&Response{
				JSONRPC: msg.JSONRPC,
				ID:      msg.ID,
				Result:  msg.Result,
				Error:   msg.Error,
			})

		default:
			c.log.Debug("dropping frame with neither id nor method")
		}
	}

	if err := scanner.Err(); err != nil {
		c.log.Debug("stdout closed", "error", err)
	}
}

func (c *Client) dispatch(resp *Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[*resp.ID]
	if ok {
		delete(c.pending, *resp.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.log.Debug("response for unknown id", "id", *resp.ID)
		return
	}
	ch <- resp
}

func (c *Client) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		c.log.Debug("peer stderr", "line", truncate(scanner.Text(), 500))
	}
}

// markDead closes done exactly once, failing all in-flight calls.
func (c *Client) markDead() {
	c.deadOnce.Do(func() {
		close(c.done)
	})
}

// Alive reports whether the subprocess is still usable. After the
// process exits or a pipe closes, calls fail fast with ProcessDied.
func (c *Client) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Initialize performs the MCP handshake: an initialize request carrying
// the protocol version and capability flags, then the initialized
// notification once the peer has answered.
func (c *Client) Initialize(ctx context.Context) error {
	params, err := json.Marshal(initializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo: clientInfo{
			Name:    "zeteo",
			Version: "1.0.0",
		},
	})
	if err != nil {
		return errors.InternalError("encoding initialize params", err)
	}

	resp, err := c.call(ctx, "initialize", params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.Newf(errors.CodeProtocol, "initialize rejected: %s", resp.Error.Message)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return errors.ProtocolError("malformed initialize result", err)
	}
	if result.ProtocolVersion == "" {
		return errors.New(errors.CodeProtocol, "initialize result missing protocolVersion")
	}

	if err := c.notify("notifications/initialized", nil); err != nil {
		return err
	}

	c.initialized.Store(true)
	c.log.Info("handshake complete",
		"peer", result.ServerInfo.Name,
		"peer_version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)
	return nil
}

// ListTools returns the peer's tool descriptors, fetched once and
// cached for the life of the process.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	if !c.initialized.Load() {
		return nil, errors.New(errors.CodeProtocol, "client not initialized")
	}

	c.toolsMu.Lock()
	defer c.toolsMu.Unlock()

	if c.tools != nil {
		return c.tools, nil
	}

	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Newf(errors.CodeProtocol, "tools/list failed: %s", resp.Error.Message)
	}

	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, errors.ProtocolError("malformed tools/list result", err)
	}

	c.tools = result.Tools
	return c.tools, nil
}

// CallTool invokes a named tool and returns the raw result payload.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (json.RawMessage, error) {
	if !c.initialized.Load() {
		return nil, errors.New(errors.CodeProtocol, "client not initialized")
	}

	args, err := json.Marshal(arguments)
	if err != nil {
		return nil, errors.InternalError("encoding tool arguments", err)
	}
	params, err := json.Marshal(callToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, errors.InternalError("encoding tools/call params", err)
	}

	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Newf(errors.CodeProtocol, "tool %s failed: %s", name, resp.Error.Message)
	}
	return resp.Result, nil
}

// CallToolText invokes a tool and flattens its text content blocks.
func (c *Client) CallToolText(ctx context.Context, name string, arguments any) (string, error) {
	raw, err := c.CallTool(ctx, name, arguments)
	if err != nil {
		return "", err
	}

	var result toolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errors.ProtocolError("malformed tool result", err)
	}
	if result.IsError {
		return "", errors.Newf(errors.CodeProtocol, "tool %s reported an error", name)
	}

	var parts []string
	for _, content := range result.Content {
		if content.Type == "text" {
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// call sends one request and blocks until its response arrives, the
// deadline passes or the process dies. Each id gets a freshly allocated
// monotonically increasing value; ids are retired when the response
// arrives or the wait is abandoned.
func (c *Client) call(ctx context.Context, method string, params json.RawMessage) (*Response, error) {
	if !c.Alive() {
		return nil, errors.ProcessDiedError("tool server is not running")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	id := c.nextID.Add(1)
	ch := make(chan *Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := Request{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	if err := c.write(&req); err != nil {
		c.abandon(id)
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-c.done:
		c.abandon(id)
		return nil, errors.ProcessDiedError("tool server exited mid-call")
	case <-ctx.Done():
		c.abandon(id)
		if context.Cause(ctx) == context.Canceled {
			return nil, errors.Wrap(errors.CodeTimeout, method+" canceled", ctx.Err())
		}
		return nil, errors.TimeoutError(method)
	}
}

// notify sends a request without an id; no response is expected.
func (c *Client) notify(method string, params json.RawMessage) error {
	return c.write(&Request{JSONRPC: "2.0", Method: method, Params: params})
}

// write serializes a frame onto the peer's single stdin. The mutex
// makes concurrent writes atomic at line granularity.
func (c *Client) write(req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return errors.InternalError("encoding request", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		c.markDead()
		return errors.ProcessDiedError("writing to tool server: " + err.Error())
	}
	return nil
}

func (c *Client) abandon(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Close terminates the subprocess and reaps it. Safe to call multiple
// times and on every exit path.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.markDead()
		_ = c.stdin.Close()
		if c.cmd != nil {
			if c.cmd.Process != nil {
				_ = c.cmd.Process.Kill()
			}
			_ = c.cmd.Wait()
		}
		c.log.Info("tool server stopped")
	})
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
