// Package mcp implements the MCP JSON-RPC method surface as a
// transport-free dispatcher plus stdio and HTTP transports that feed it.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"smart-mcp/internal/domain"
	"smart-mcp/internal/semsync"
)

// Dispatcher maps JSON-RPC methods to handlers. The only state carried
// across requests is the initialization gate; everything else is
// per-request.
type Dispatcher struct {
	svc    *semsync.Service
	topK   int
	logger *slog.Logger

	sessionMu   sync.RWMutex
	initialized bool
}

func NewDispatcher(svc *semsync.Service, topK int) *Dispatcher {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Dispatcher{
		svc:    svc,
		topK:   topK,
		logger: slog.Default().With("component", "mcp"),
	}
}

// TopK is the default search result count for callers that do not pass k.
func (d *Dispatcher) TopK() int {
	return d.topK
}

// DispatchRaw parses one JSON-RPC message and dispatches it. The returned
// response is nil for notifications; a parse failure yields an error
// envelope with a null id.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw []byte) *jsonRPCResponse {
	var req jsonRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, &jsonRPCError{Code: codeParseError, Message: "Parse error"})
	}
	if req.Method == "" {
		// Not a valid request object. Answered with the request's id, or
		// null when none could be read, per JSON-RPC 2.0.
		return errorResponse(req.ID, &jsonRPCError{Code: codeInvalidRequest, Message: "Invalid Request"})
	}
	return d.Dispatch(ctx, req)
}

// Dispatch routes one request. Notifications never produce a response,
// even when they fail. Downstream errors are converted to structured
// error objects at this boundary; nothing escapes as a transport error.
func (d *Dispatcher) Dispatch(ctx context.Context, req jsonRPCRequest) *jsonRPCResponse {
	if req.isNotification() {
		d.handleNotification(req)
		return nil
	}

	if !d.isInitialized() && req.Method != "initialize" {
		return errorResponse(req.ID, &jsonRPCError{
			Code:    codeNotInitialized,
			Message: fmt.Sprintf("server not initialized: call initialize before %s", req.Method),
		})
	}

	var (
		result any
		rpcErr *jsonRPCError
	)
	switch req.Method {
	case "initialize":
		result = initializeResponse()
	case "ping":
		result = map[string]any{}
	case "resources/list":
		result, rpcErr = d.handleResourcesList(ctx)
	case "resources/read":
		result, rpcErr = d.handleResourcesRead(ctx, req.Params)
	case "prompts/list":
		result, rpcErr = d.handlePromptsList(ctx)
	case "prompts/get":
		result, rpcErr = d.handlePromptsGet(ctx, req.Params)
	case "tools/list":
		result, rpcErr = d.handleToolsList(ctx)
	case "tools/call":
		result, rpcErr = d.handleToolsCall(ctx, req.Params)
	default:
		rpcErr = &jsonRPCError{Code: codeMethodNotFound, Message: "Method not found: " + req.Method}
	}

	if rpcErr != nil {
		d.logger.Debug("request failed", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		return errorResponse(req.ID, rpcErr)
	}
	return successResponse(req.ID, result)
}

func (d *Dispatcher) handleNotification(req jsonRPCRequest) {
	switch req.Method {
	case "notifications/initialized":
		d.setInitialized(true)
	default:
		// Unknown notifications are dropped; notifications carry no id,
		// so there is nothing to reply to.
		d.logger.Debug("notification ignored", "method", req.Method)
	}
}

func (d *Dispatcher) isInitialized() bool {
	d.sessionMu.RLock()
	defer d.sessionMu.RUnlock()
	return d.initialized
}

func (d *Dispatcher) setInitialized(v bool) {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()
	d.initialized = v
}

// rpcErrorFromErr converts domain errors into structured JSON-RPC errors.
func rpcErrorFromErr(err error) *jsonRPCError {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return &jsonRPCError{Code: codeInvalidParams, Message: "not found"}
	case errors.Is(err, domain.ErrInvalidInput):
		return &jsonRPCError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, domain.ErrSearchNotReady):
		return &jsonRPCError{Code: codeInternal, Message: "search index not ready"}
	default:
		return &jsonRPCError{Code: codeInternal, Message: err.Error()}
	}
}
