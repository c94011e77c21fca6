package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"smart-mcp/internal/domain"
)

// metaTool bundles an advertised definition with its compiled argument
// schema and handler. Arguments are schema-validated before the handler
// runs, so handlers can assume required fields are present and well typed.
type metaTool struct {
	def     toolDef
	schema  *jsonschema.Schema
	handler func(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error)
}

var (
	metaRegistryOnce sync.Once
	metaRegistry     map[string]*metaTool
)

func metaToolRegistry() map[string]*metaTool {
	metaRegistryOnce.Do(func() {
		metaRegistry = buildMetaRegistry()
	})
	return metaRegistry
}

func buildMetaRegistry() map[string]*metaTool {
	handlers := map[string]func(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error){
		toolMetaCreatePrompt:    metaCreatePrompt,
		toolMetaUpdatePrompt:    metaUpdatePrompt,
		toolMetaDeletePrompt:    metaDelete(domain.KindPrompt),
		toolMetaCreateResource:  metaCreateResource,
		toolMetaUpdateResource:  metaUpdateResource,
		toolMetaDeleteResource:  metaDelete(domain.KindResource),
		toolMetaCreateTool:      metaCreateTool,
		toolMetaUpdateTool:      metaUpdateTool,
		toolMetaDeleteTool:      metaDelete(domain.KindTool),
		toolMetaSearchPrompts:   metaSearch(domain.KindPrompt),
		toolMetaSearchResources: metaSearch(domain.KindResource),
		toolMetaSearchTools:     metaSearch(domain.KindTool),
	}

	registry := make(map[string]*metaTool, len(handlers))
	compiler := jsonschema.NewCompiler()
	for _, def := range metaToolDefinitions() {
		handler, ok := handlers[def.Name]
		if !ok {
			panic("meta tool without handler: " + def.Name)
		}

		b, err := json.Marshal(def.InputSchema)
		if err != nil {
			panic("marshal schema for " + def.Name + ": " + err.Error())
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
		if err != nil {
			panic("decode schema for " + def.Name + ": " + err.Error())
		}
		url := def.Name + ".schema.json"
		if err := compiler.AddResource(url, doc); err != nil {
			panic("add schema for " + def.Name + ": " + err.Error())
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			panic("compile schema for " + def.Name + ": " + err.Error())
		}

		registry[def.Name] = &metaTool{def: def, schema: schema, handler: handler}
	}
	return registry
}

// callMetaTool validates the arguments against the tool's schema, runs the
// handler, and packages the payload as pretty-printed JSON text content.
func (d *Dispatcher) callMetaTool(ctx context.Context, mt *metaTool, args json.RawMessage) (any, *jsonRPCError) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return nil, &jsonRPCError{Code: codeInvalidParams, Message: "invalid arguments: " + err.Error()}
	}
	if err := mt.schema.Validate(inst); err != nil {
		return nil, &jsonRPCError{
			Code:    codeInvalidParams,
			Message: fmt.Sprintf("invalid arguments for %s: %v", mt.def.Name, err),
		}
	}

	payload, err := mt.handler(ctx, d, args)
	if err != nil {
		return nil, rpcErrorFromErr(err)
	}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, &jsonRPCError{Code: codeInternal, Message: "encoding tool result: " + err.Error()}
	}
	return toolResult(string(b)), nil
}

func metaCreatePrompt(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
	var in struct {
		Name    string   `json:"name"`
		Role    string   `json:"role"`
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	a, err := d.svc.Create(ctx, domain.CreateInput{
		Kind:    domain.KindPrompt,
		Name:    in.Name,
		Role:    domain.PromptRole(in.Role),
		Content: in.Content,
		Tags:    in.Tags,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"prompt": a}, nil
}

func metaUpdatePrompt(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
	var in struct {
		ID      string             `json:"id"`
		Name    *string            `json:"name"`
		Role    *domain.PromptRole `json:"role"`
		Content *string            `json:"content"`
		Tags    *[]string          `json:"tags"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := d.requireKind(ctx, in.ID, domain.KindPrompt); err != nil {
		return nil, err
	}
	a, err := d.svc.Update(ctx, in.ID, domain.UpdateInput{
		Name: in.Name, Role: in.Role, Content: in.Content, Tags: in.Tags,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"prompt": a}, nil
}

func metaCreateResource(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
	var in struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Content     string   `json:"content"`
		Category    string   `json:"category"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	a, err := d.svc.Create(ctx, domain.CreateInput{
		Kind:        domain.KindResource,
		Name:        in.Name,
		Description: in.Description,
		Content:     in.Content,
		Category:    in.Category,
		Tags:        in.Tags,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"resource": a}, nil
}

func metaUpdateResource(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
	var in struct {
		ID          string    `json:"id"`
		Name        *string   `json:"name"`
		Description *string   `json:"description"`
		Content     *string   `json:"content"`
		Category    *string   `json:"category"`
		Tags        *[]string `json:"tags"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := d.requireKind(ctx, in.ID, domain.KindResource); err != nil {
		return nil, err
	}
	a, err := d.svc.Update(ctx, in.ID, domain.UpdateInput{
		Name: in.Name, Description: in.Description, Content: in.Content,
		Category: in.Category, Tags: in.Tags,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"resource": a}, nil
}

func metaCreateTool(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
	var in struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Code        string   `json:"code"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	a, err := d.svc.Create(ctx, domain.CreateInput{
		Kind:        domain.KindTool,
		Name:        in.Name,
		Description: in.Description,
		Code:        in.Code,
		Tags:        in.Tags,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"tool": a}, nil
}

func metaUpdateTool(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
	var in struct {
		ID          string    `json:"id"`
		Name        *string   `json:"name"`
		Description *string   `json:"description"`
		Code        *string   `json:"code"`
		Tags        *[]string `json:"tags"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := d.requireKind(ctx, in.ID, domain.KindTool); err != nil {
		return nil, err
	}
	a, err := d.svc.Update(ctx, in.ID, domain.UpdateInput{
		Name: in.Name, Description: in.Description, Code: in.Code, Tags: in.Tags,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"tool": a}, nil
}

func metaDelete(kind domain.Kind) func(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
	return func(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
		var in struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if err := d.requireKind(ctx, in.ID, kind); err != nil {
			return nil, err
		}
		if err := d.svc.Delete(ctx, in.ID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": in.ID}, nil
	}
}

func metaSearch(kind domain.Kind) func(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
	return func(ctx context.Context, d *Dispatcher, args json.RawMessage) (any, error) {
		var in struct {
			Q string `json:"q"`
			K int    `json:"k"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		k := in.K
		if k <= 0 {
			k = d.topK
		}
		hits, err := d.svc.Search(ctx, in.Q, k, kind)
		if err != nil {
			return nil, err
		}

		results := make([]map[string]any, 0, len(hits))
		for _, h := range hits {
			results = append(results, map[string]any{
				"id":       h.Artifact.ID,
				"kind":     h.Artifact.Kind,
				"score":    h.Score,
				"artifact": h.Artifact,
			})
		}
		return map[string]any{"q": in.Q, "results": results}, nil
	}
}

// requireKind rejects meta-tool calls whose id points at a record of a
// different kind, so meta.deletePrompt cannot remove a resource.
func (d *Dispatcher) requireKind(ctx context.Context, id string, kind domain.Kind) error {
	a, err := d.svc.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Kind != kind {
		return fmt.Errorf("%w: %s is a %s, not a %s", domain.ErrInvalidInput, id, a.Kind, kind)
	}
	return nil
}
