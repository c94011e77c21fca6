package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"smart-mcp/internal/domain"
)

const (
	resourceURIPrefix = "resource:///"
	resourceMIMEType  = "text/markdown"
)

func (d *Dispatcher) handleResourcesList(ctx context.Context) (any, *jsonRPCError) {
	resources, err := d.svc.List(ctx, domain.KindResource)
	if err != nil {
		return nil, rpcErrorFromErr(err)
	}

	items := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		items = append(items, map[string]any{
			"uri":         r.URI(),
			"name":        r.Name,
			"description": r.Description,
			"mimeType":    resourceMIMEType,
		})
	}
	return map[string]any{"resources": items}, nil
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, *jsonRPCError) {
	var p struct {
		URI string `json:"uri"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	id := strings.TrimPrefix(p.URI, resourceURIPrefix)
	a, err := d.svc.Get(ctx, id)
	if err != nil || a.Kind != domain.KindResource {
		return nil, &jsonRPCError{Code: codeInvalidParams, Message: "Resource not found: " + id}
	}

	return map[string]any{
		"contents": []map[string]any{{
			"uri":      p.URI,
			"mimeType": resourceMIMEType,
			"text":     a.Content,
		}},
	}, nil
}

func (d *Dispatcher) handlePromptsList(ctx context.Context) (any, *jsonRPCError) {
	prompts, err := d.svc.List(ctx, domain.KindPrompt)
	if err != nil {
		return nil, rpcErrorFromErr(err)
	}

	items := make([]map[string]any, 0, len(prompts))
	for _, p := range prompts {
		items = append(items, map[string]any{
			"name":        p.Name,
			"description": truncate(p.Content, 100),
			"arguments":   []any{},
		})
	}
	return map[string]any{"prompts": items}, nil
}

// handlePromptsGet looks a prompt up by name, not by id; that is what MCP
// clients send. Ids stay an internal and meta-tool concern.
func (d *Dispatcher) handlePromptsGet(ctx context.Context, params json.RawMessage) (any, *jsonRPCError) {
	var p struct {
		Name string `json:"name"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	prompts, err := d.svc.List(ctx, domain.KindPrompt)
	if err != nil {
		return nil, rpcErrorFromErr(err)
	}
	for _, prompt := range prompts {
		if prompt.Name != p.Name {
			continue
		}
		return map[string]any{
			"description": fmt.Sprintf("%s prompt", prompt.Role),
			"messages": []map[string]any{{
				"role":    string(prompt.Role),
				"content": textContent(prompt.Content),
			}},
		}, nil
	}
	return nil, &jsonRPCError{Code: codeInvalidParams, Message: "Prompt not found: " + p.Name}
}

// handleToolsList advertises the fixed meta tools first, then every stored
// tool record. Stored tools carry an empty argument schema: calling one
// returns its code rather than executing it.
func (d *Dispatcher) handleToolsList(ctx context.Context) (any, *jsonRPCError) {
	defs := metaToolDefinitions()
	items := make([]toolDef, 0, len(defs))
	items = append(items, defs...)

	stored, err := d.svc.List(ctx, domain.KindTool)
	if err != nil {
		return nil, rpcErrorFromErr(err)
	}
	for _, t := range stored {
		items = append(items, toolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}
	return map[string]any{"tools": items}, nil
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *jsonRPCError) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	if mt, ok := metaToolRegistry()[p.Name]; ok {
		return d.callMetaTool(ctx, mt, p.Arguments)
	}

	stored, err := d.svc.List(ctx, domain.KindTool)
	if err != nil {
		return nil, rpcErrorFromErr(err)
	}
	for _, t := range stored {
		if t.Name != p.Name {
			continue
		}
		return toolResult(fmt.Sprintf("Tool '%s' code:\n\n```\n%s\n```", t.Name, t.Code)), nil
	}
	return nil, &jsonRPCError{Code: codeInvalidParams, Message: "Tool not found: " + p.Name}
}

func unmarshalParams(params json.RawMessage, dst any) *jsonRPCError {
	if len(params) == 0 {
		return &jsonRPCError{Code: codeInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return &jsonRPCError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func textContent(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

func toolResult(text string) map[string]any {
	return map[string]any{
		"content": []map[string]any{textContent(text)},
		"isError": false,
	}
}

// truncate shortens s to at most n bytes plus an ellipsis, backing up so
// the cut never lands inside a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
