package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"smart-mcp/internal/domain"
	"smart-mcp/internal/embedding"
	"smart-mcp/internal/semsync"
	"smart-mcp/internal/vecindex"
)

type memRepo struct {
	mu    sync.Mutex
	items map[string]domain.Artifact
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[string]domain.Artifact{}}
}

func (r *memRepo) Insert(_ context.Context, a domain.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID]; ok {
		return fmt.Errorf("duplicate id %s", a.ID)
	}
	r.items[a.ID] = a
	return nil
}

func (r *memRepo) Update(_ context.Context, a domain.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID]; !ok {
		return domain.ErrNotFound
	}
	r.items[a.ID] = a
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return domain.Artifact{}, domain.ErrNotFound
	}
	return a, nil
}

func (r *memRepo) List(_ context.Context, kind domain.Kind) ([]domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Artifact, 0, len(r.items))
	for _, a := range r.items {
		if kind != "" && a.Kind != kind {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memRepo) Close() error { return nil }

func newTestDispatcher(t *testing.T) (*Dispatcher, *semsync.Service) {
	t.Helper()
	provider := embedding.NewHasher(32, "")
	svc := semsync.NewService(newMemRepo(), provider, vecindex.New(32),
		filepath.Join(t.TempDir(), "index.snapshot.json"))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return NewDispatcher(svc, 5), svc
}

// initializedDispatcher runs the MCP handshake so method calls pass the
// session gate.
func initializedDispatcher(t *testing.T) (*Dispatcher, *semsync.Service) {
	t.Helper()
	d, svc := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), request(1, "initialize", nil))
	if resp == nil || resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp)
	}
	if resp := d.Dispatch(context.Background(), request(0, "notifications/initialized", nil)); resp != nil {
		t.Fatalf("notification must not produce a response, got %+v", resp)
	}
	return d, svc
}

func request(id int, method string, params any) jsonRPCRequest {
	req := jsonRPCRequest{JSONRPC: "2.0", Method: method}
	if id != 0 {
		req.ID = json.RawMessage(fmt.Sprintf("%d", id))
	}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			panic(err)
		}
		req.Params = b
	}
	return req
}

func resultMap(t *testing.T, resp *jsonRPCResponse) map[string]any {
	t.Helper()
	if resp == nil {
		t.Fatal("nil response")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var m map[string]any
	if err := json.Unmarshal(resp.Result, &m); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	return m
}

func TestInitializeHandshake(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), request(1, "initialize", nil))
	result := resultMap(t, resp)
	if result["protocolVersion"] != ProtocolVersion {
		t.Fatalf("protocolVersion = %v", result["protocolVersion"])
	}
	info, ok := result["serverInfo"].(map[string]any)
	if !ok || info["name"] != serverName {
		t.Fatalf("serverInfo = %v", result["serverInfo"])
	}
	caps, ok := result["capabilities"].(map[string]any)
	if !ok {
		t.Fatalf("capabilities = %v", result["capabilities"])
	}
	for _, key := range []string{"prompts", "resources", "tools"} {
		if _, ok := caps[key]; !ok {
			t.Fatalf("capability %q missing: %v", key, caps)
		}
	}
}

func TestRequestsBeforeInitializeAreRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), request(7, "tools/list", nil))
	if resp.Error == nil || resp.Error.Code != codeNotInitialized {
		t.Fatalf("want code %d, got %+v", codeNotInitialized, resp.Error)
	}
	if string(resp.ID) != "7" {
		t.Fatalf("error must echo the request id, got %s", resp.ID)
	}

	// initialize itself must pass the gate.
	if resp := d.Dispatch(context.Background(), request(8, "initialize", nil)); resp.Error != nil {
		t.Fatalf("initialize blocked: %+v", resp.Error)
	}
}

func TestPing(t *testing.T) {
	d, _ := initializedDispatcher(t)

	resp := d.Dispatch(context.Background(), request(2, "ping", nil))
	if got := resultMap(t, resp); len(got) != 0 {
		t.Fatalf("ping result should be empty, got %v", got)
	}
}

func TestUnknownMethod(t *testing.T) {
	d, _ := initializedDispatcher(t)

	resp := d.Dispatch(context.Background(), request(3, "resources/subscribe", nil))
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("want -32601, got %+v", resp.Error)
	}
}

func TestUnknownNotificationIsDropped(t *testing.T) {
	d, _ := initializedDispatcher(t)

	if resp := d.Dispatch(context.Background(), request(0, "notifications/cancelled", nil)); resp != nil {
		t.Fatalf("notifications never get responses, got %+v", resp)
	}
}

func TestDispatchRawParseError(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.DispatchRaw(context.Background(), []byte("{broken"))
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("want -32700, got %+v", resp.Error)
	}
	if string(resp.ID) != "null" {
		t.Fatalf("parse errors carry a null id, got %s", resp.ID)
	}
}

func TestDispatchRawMissingMethod(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	resp := d.DispatchRaw(ctx, []byte(`{"jsonrpc":"2.0","id":9,"params":{}}`))
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("want -32600, got %+v", resp.Error)
	}
	if string(resp.ID) != "9" {
		t.Fatalf("error must echo the request id, got %s", resp.ID)
	}

	resp = d.DispatchRaw(ctx, []byte(`{"jsonrpc":"2.0","params":{}}`))
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("want -32600, got %+v", resp.Error)
	}
	if string(resp.ID) != "null" {
		t.Fatalf("invalid requests without an id carry a null id, got %s", resp.ID)
	}
}

func TestResourcesListAndRead(t *testing.T) {
	d, svc := initializedDispatcher(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateInput{
		Kind: domain.KindResource, Name: "HTTP API Conventions",
		Description: "House rules for REST endpoints", Category: "Guides",
		Content: "# Conventions\nUse plural nouns.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list := resultMap(t, d.Dispatch(ctx, request(4, "resources/list", nil)))
	resources, ok := list["resources"].([]any)
	if !ok || len(resources) != 1 {
		t.Fatalf("resources = %v", list["resources"])
	}
	entry := resources[0].(map[string]any)
	if entry["uri"] != "resource:///"+created.ID {
		t.Fatalf("uri = %v", entry["uri"])
	}
	if entry["mimeType"] != resourceMIMEType {
		t.Fatalf("mimeType = %v", entry["mimeType"])
	}

	read := resultMap(t, d.Dispatch(ctx, request(5, "resources/read",
		map[string]any{"uri": "resource:///" + created.ID})))
	contents := read["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("contents = %v", contents)
	}
	if got := contents[0].(map[string]any)["text"]; got != created.Content {
		t.Fatalf("text = %v", got)
	}

	resp := d.Dispatch(ctx, request(6, "resources/read", map[string]any{"uri": "resource:///resource_absent1"}))
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("missing resource: want -32602, got %+v", resp.Error)
	}
}

func TestPromptsListAndGet(t *testing.T) {
	d, svc := initializedDispatcher(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateInput{
		Kind: domain.KindPrompt, Name: "Bug Analyzer", Role: domain.RoleUser,
		Content: "Help me find the bug.",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list := resultMap(t, d.Dispatch(ctx, request(4, "prompts/list", nil)))
	prompts := list["prompts"].([]any)
	if len(prompts) != 1 {
		t.Fatalf("prompts = %v", prompts)
	}
	if name := prompts[0].(map[string]any)["name"]; name != "Bug Analyzer" {
		t.Fatalf("name = %v", name)
	}

	got := resultMap(t, d.Dispatch(ctx, request(5, "prompts/get", map[string]any{"name": "Bug Analyzer"})))
	messages := got["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("messages = %v", messages)
	}
	msg := messages[0].(map[string]any)
	if msg["role"] != "user" {
		t.Fatalf("role = %v", msg["role"])
	}
	content := msg["content"].(map[string]any)
	if content["type"] != "text" || content["text"] != "Help me find the bug." {
		t.Fatalf("content = %v", content)
	}

	resp := d.Dispatch(ctx, request(6, "prompts/get", map[string]any{"name": "Nope"}))
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("missing prompt: want -32602, got %+v", resp.Error)
	}
}

func TestPromptsListTruncatesLongContent(t *testing.T) {
	d, svc := initializedDispatcher(t)
	ctx := context.Background()

	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := svc.Create(ctx, domain.CreateInput{
		Kind: domain.KindPrompt, Name: "Long", Role: domain.RoleSystem, Content: string(long),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list := resultMap(t, d.Dispatch(ctx, request(4, "prompts/list", nil)))
	desc := list["prompts"].([]any)[0].(map[string]any)["description"].(string)
	if len(desc) != 103 || desc[100:] != "..." {
		t.Fatalf("description not truncated to 100+ellipsis: len=%d", len(desc))
	}
}

// A multi-byte rune straddling the truncation point must not be cut in
// half; the description has to stay valid UTF-8.
func TestPromptsListTruncationKeepsRunesWhole(t *testing.T) {
	d, svc := initializedDispatcher(t)
	ctx := context.Background()

	content := strings.Repeat("a", 99) + strings.Repeat("é", 30)
	if _, err := svc.Create(ctx, domain.CreateInput{
		Kind: domain.KindPrompt, Name: "Accented", Role: domain.RoleSystem, Content: content,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list := resultMap(t, d.Dispatch(ctx, request(4, "prompts/list", nil)))
	desc := list["prompts"].([]any)[0].(map[string]any)["description"].(string)
	if !utf8.ValidString(desc) {
		t.Fatalf("description is not valid UTF-8: %q", desc)
	}
	if !strings.HasSuffix(desc, "...") {
		t.Fatalf("long description should end with ellipsis, got %q", desc)
	}
	if want := strings.Repeat("a", 99) + "..."; desc != want {
		t.Fatalf("description = %q, want %q", desc, want)
	}
}

func TestToolsListIncludesMetaAndStored(t *testing.T) {
	d, svc := initializedDispatcher(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateInput{
		Kind: domain.KindTool, Name: "slugify",
		Description: "Turn a title into a slug", Code: "def slugify(): pass",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list := resultMap(t, d.Dispatch(ctx, request(4, "tools/list", nil)))
	tools := list["tools"].([]any)

	names := map[string]bool{}
	for _, raw := range tools {
		names[raw.(map[string]any)["name"].(string)] = true
	}
	for _, want := range []string{
		toolMetaCreatePrompt, toolMetaDeleteResource, toolMetaSearchPrompts, "slugify",
	} {
		if !names[want] {
			t.Fatalf("tools/list missing %q: %v", want, names)
		}
	}

	// Meta tools come first; the stored tool is last.
	last := tools[len(tools)-1].(map[string]any)
	if last["name"] != "slugify" {
		t.Fatalf("stored tools should follow meta tools, last = %v", last["name"])
	}
}

func TestToolsCallStoredToolReturnsCode(t *testing.T) {
	d, svc := initializedDispatcher(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateInput{
		Kind: domain.KindTool, Name: "slugify",
		Description: "Turn a title into a slug", Code: "def slugify(): pass",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	result := resultMap(t, d.Dispatch(ctx, request(5, "tools/call", map[string]any{"name": "slugify"})))
	if result["isError"] != false {
		t.Fatalf("isError = %v", result["isError"])
	}
	text := result["content"].([]any)[0].(map[string]any)["text"].(string)
	if text != "Tool 'slugify' code:\n\n```\ndef slugify(): pass\n```" {
		t.Fatalf("text = %q", text)
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	d, _ := initializedDispatcher(t)

	resp := d.Dispatch(context.Background(), request(5, "tools/call", map[string]any{"name": "nope"}))
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("want -32602, got %+v", resp.Error)
	}
}
