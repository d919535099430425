// Package command implements the local control channel of the daemon.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/stallwatch/internal/tracker"
)

// Version is reported by daemon_status.
const Version = "0.1.0"

// Methods served by CommandHandler.
const (
	MethodDaemonStatus   = "daemon_status"
	MethodNetworkStatus  = "network_status"
	MethodConfigReload   = "config_reload"
	MethodDaemonShutdown = "daemon_shutdown"
)

// StatusProvider reports the state of every tracked network.
type StatusProvider interface {
	Status() []tracker.NetworkStatus
}

// ConfigReloader is the interface for reloading global configuration.
type ConfigReloader interface {
	Reload() error
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	status         StatusProvider
	configReloader ConfigReloader
	shutdownFunc   func() // Called by daemon_shutdown to trigger graceful stop
	startTime      time.Time
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(status StatusProvider, reloader ConfigReloader) *CommandHandler {
	return &CommandHandler{
		status:         status,
		configReloader: reloader,
		startTime:      time.Now(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response represents a command response.
type Response struct {
	ID     string     `json:"id"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// DaemonStatus is the result of daemon_status.
type DaemonStatus struct {
	Version   string                  `json:"version" yaml:"version"`
	UptimeSec int64                   `json:"uptime_sec" yaml:"uptime_sec"`
	Networks  []tracker.NetworkStatus `json:"networks" yaml:"networks"`
}

// NetworkStatusParams selects the network of network_status.
type NetworkStatusParams struct {
	Network string `json:"network"`
}

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Debug("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case MethodDaemonStatus:
		return h.handleDaemonStatus(ctx, cmd)
	case MethodNetworkStatus:
		return h.handleNetworkStatus(ctx, cmd)
	case MethodConfigReload:
		return h.handleConfigReload(ctx, cmd)
	case MethodDaemonShutdown:
		return h.handleDaemonShutdown(ctx, cmd)
	default:
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", cmd.Method))
	}
}

func errorResponse(id string, code int, msg string) Response {
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: msg}}
}

func (h *CommandHandler) statuses() []tracker.NetworkStatus {
	if h.status == nil {
		return nil
	}
	return h.status.Status()
}

// handleDaemonStatus returns uptime and the state of every network.
func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	return Response{
		ID: cmd.ID,
		Result: DaemonStatus{
			Version:   Version,
			UptimeSec: int64(time.Since(h.startTime).Seconds()),
			Networks:  h.statuses(),
		},
	}
}

// handleNetworkStatus returns the state of one network.
func (h *CommandHandler) handleNetworkStatus(_ context.Context, cmd Command) Response {
	var params NetworkStatusParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	if params.Network == "" {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "network is required")
	}

	for _, s := range h.statuses() {
		if s.Network == params.Network {
			return Response{ID: cmd.ID, Result: s}
		}
	}
	return errorResponse(cmd.ID, ErrCodeInvalidParams, fmt.Sprintf("network %q not tracked", params.Network))
}

// handleConfigReload handles config_reload command.
func (h *CommandHandler) handleConfigReload(_ context.Context, cmd Command) Response {
	if h.configReloader == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "config reloader not available")
	}

	if err := h.configReloader.Reload(); err != nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, fmt.Sprintf("reload config failed: %v", err))
	}

	return Response{
		ID:     cmd.ID,
		Result: map[string]any{"status": "reloaded"},
	}
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "shutdown handler not registered")
	}

	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID:     cmd.ID,
		Result: map[string]any{"status": "shutting_down"},
	}
}
