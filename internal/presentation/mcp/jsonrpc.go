package mcp

import "encoding/json"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeNotInitialized = -32002
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r jsonRPCRequest) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func successResponse(id json.RawMessage, result any) *jsonRPCResponse {
	resp := &jsonRPCResponse{JSONRPC: "2.0", ID: normalizeID(id)}
	b, err := json.Marshal(result)
	if err != nil {
		resp.Error = &jsonRPCError{Code: codeInternal, Message: "encoding result: " + err.Error()}
		return resp
	}
	resp.Result = b
	return resp
}

func errorResponse(id json.RawMessage, rpcErr *jsonRPCError) *jsonRPCResponse {
	return &jsonRPCResponse{JSONRPC: "2.0", ID: normalizeID(id), Error: rpcErr}
}

// normalizeID keeps the original request id, or null when it was absent or
// unparseable, so error envelopes always carry an explicit id field.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
