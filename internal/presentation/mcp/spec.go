package mcp

import "smart-mcp/internal/domain"

const ProtocolVersion = "2024-11-05"

const (
	serverName    = "smart-mcp"
	serverVersion = "2.0.0"

	defaultTopK = 5
)

const (
	toolMetaCreatePrompt    = "meta.createPrompt"
	toolMetaUpdatePrompt    = "meta.updatePrompt"
	toolMetaDeletePrompt    = "meta.deletePrompt"
	toolMetaCreateResource  = "meta.createResource"
	toolMetaUpdateResource  = "meta.updateResource"
	toolMetaDeleteResource  = "meta.deleteResource"
	toolMetaCreateTool      = "meta.createTool"
	toolMetaUpdateTool      = "meta.updateTool"
	toolMetaDeleteTool      = "meta.deleteTool"
	toolMetaSearchPrompts   = "meta.searchPrompts"
	toolMetaSearchResources = "meta.searchResources"
	toolMetaSearchTools     = "meta.searchTools"
)

type toolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func initializeResponse() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"resources": map[string]any{},
			"prompts":   map[string]any{},
			"tools":     map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	}
}

// metaToolDefinitions lists the fixed CRUD and search proxy tools. These
// are always advertised by tools/list, independent of store content.
func metaToolDefinitions() []toolDef {
	roleEnum := map[string]any{"type": "string", "enum": domain.PromptRoles()}
	tags := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

	return []toolDef{
		{
			Name:        toolMetaCreatePrompt,
			Description: "Create a prompt without using the REST API.",
			InputSchema: objectSchema(map[string]any{
				"name":    stringProp("Prompt name."),
				"role":    roleEnum,
				"content": stringProp("Prompt body."),
				"tags":    tags,
			}, "name", "role", "content"),
		},
		{
			Name:        toolMetaUpdatePrompt,
			Description: "Update an existing prompt by ID.",
			InputSchema: objectSchema(map[string]any{
				"id":      stringProp("Prompt ID."),
				"name":    stringProp(""),
				"role":    roleEnum,
				"content": stringProp(""),
				"tags":    tags,
			}, "id"),
		},
		{
			Name:        toolMetaDeletePrompt,
			Description: "Delete a prompt by ID.",
			InputSchema: objectSchema(map[string]any{
				"id": stringProp("Prompt ID."),
			}, "id"),
		},
		{
			Name:        toolMetaCreateResource,
			Description: "Create a resource via MCP meta tool.",
			InputSchema: objectSchema(map[string]any{
				"name":        stringProp("Resource name."),
				"description": stringProp("Short summary."),
				"content":     stringProp("Resource body."),
				"category":    stringProp("Free-form category."),
				"tags":        tags,
			}, "name", "description", "content", "category"),
		},
		{
			Name:        toolMetaUpdateResource,
			Description: "Update a resource by ID.",
			InputSchema: objectSchema(map[string]any{
				"id":          stringProp("Resource ID."),
				"name":        stringProp(""),
				"description": stringProp(""),
				"content":     stringProp(""),
				"category":    stringProp(""),
				"tags":        tags,
			}, "id"),
		},
		{
			Name:        toolMetaDeleteResource,
			Description: "Delete a resource by ID.",
			InputSchema: objectSchema(map[string]any{
				"id": stringProp("Resource ID."),
			}, "id"),
		},
		{
			Name:        toolMetaCreateTool,
			Description: "Create a tool record through MCP.",
			InputSchema: objectSchema(map[string]any{
				"name":        stringProp("Tool name."),
				"description": stringProp("What the tool does."),
				"code":        stringProp("Tool source code."),
				"tags":        tags,
			}, "name", "description", "code"),
		},
		{
			Name:        toolMetaUpdateTool,
			Description: "Update a stored tool by ID.",
			InputSchema: objectSchema(map[string]any{
				"id":          stringProp("Tool ID."),
				"name":        stringProp(""),
				"description": stringProp(""),
				"code":        stringProp(""),
				"tags":        tags,
			}, "id"),
		},
		{
			Name:        toolMetaDeleteTool,
			Description: "Delete a stored tool by ID.",
			InputSchema: objectSchema(map[string]any{
				"id": stringProp("Tool ID."),
			}, "id"),
		},
		{
			Name:        toolMetaSearchPrompts,
			Description: "Semantic search over prompts.",
			InputSchema: searchSchema(),
		},
		{
			Name:        toolMetaSearchResources,
			Description: "Semantic search over resources.",
			InputSchema: searchSchema(),
		},
		{
			Name:        toolMetaSearchTools,
			Description: "Semantic search over stored tools.",
			InputSchema: searchSchema(),
		},
	}
}

func searchSchema() map[string]any {
	return objectSchema(map[string]any{
		"q": stringProp("Query text."),
		"k": map[string]any{"type": "integer", "minimum": 1, "description": "Max results (default 5)."},
	}, "q")
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
	}
	if len(properties) > 0 {
		schema["properties"] = properties
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	prop := map[string]any{"type": "string"}
	if description != "" {
		prop["description"] = description
	}
	return prop
}
