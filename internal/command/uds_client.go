package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"firestige.xyz/stallwatch/internal/tracker"
)

var requestSeq atomic.Uint64

// UDSClient is a JSON-RPC client over Unix Domain Socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second // Default timeout
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// rawResponse keeps the result undecoded until the caller's type is known.
type rawResponse struct {
	ID     any             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *ErrorInfo      `json:"error"`
}

// Call sends one request and decodes its result into out, which may be nil.
// A JSON-RPC error is returned as *ErrorInfo.
func (c *UDSClient) Call(ctx context.Context, method string, params, out any) error {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      "req-" + strconv.FormatUint(requestSeq.Add(1), 10),
	}
	if params != nil {
		if req.Params, err = json.Marshal(params); err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 4*maxRequestSize)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		return fmt.Errorf("connection closed without response")
	}

	var resp rawResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if got := fmt.Sprintf("%v", resp.ID); got != req.ID {
		return fmt.Errorf("response ID mismatch: expected %v, got %v", req.ID, got)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return nil
}

// DaemonStatus fetches uptime and network states.
func (c *UDSClient) DaemonStatus(ctx context.Context) (*DaemonStatus, error) {
	var st DaemonStatus
	if err := c.Call(ctx, MethodDaemonStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// NetworkStatus fetches the state of one network.
func (c *UDSClient) NetworkStatus(ctx context.Context, network string) (*tracker.NetworkStatus, error) {
	var st tracker.NetworkStatus
	if err := c.Call(ctx, MethodNetworkStatus, NetworkStatusParams{Network: network}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ConfigReload asks the daemon to re-read its configuration file.
func (c *UDSClient) ConfigReload(ctx context.Context) error {
	return c.Call(ctx, MethodConfigReload, nil, nil)
}

// DaemonShutdown asks the daemon to stop.
func (c *UDSClient) DaemonShutdown(ctx context.Context) error {
	return c.Call(ctx, MethodDaemonShutdown, nil, nil)
}

// Ping checks that the daemon answers.
func (c *UDSClient) Ping(ctx context.Context) error {
	return c.Call(ctx, MethodDaemonStatus, nil, nil)
}
