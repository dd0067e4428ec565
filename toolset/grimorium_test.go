package toolset

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/magetools/grimorium/config"
	"github.com/magetools/grimorium/vectorstore"
)

type fakeCollection struct {
	mu    sync.Mutex
	name  string
	docs  map[string]string
	metas map[string]vectorstore.Metadata
}

func (c *fakeCollection) Name() string { return c.name }

// Query matches entries whose document contains the query text, so tests
// drive the real pipeline with predictable relevance.
func (c *fakeCollection) Query(ctx context.Context, text string, k int) (vectorstore.QueryResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out vectorstore.QueryResult
	needle := strings.ToLower(text)
	for id, doc := range c.docs {
		if !strings.Contains(strings.ToLower(doc), needle) {
			continue
		}
		out.IDs = append(out.IDs, id)
		out.Distances = append(out.Distances, 0.1)
		out.Documents = append(out.Documents, doc)
		out.Metadatas = append(out.Metadatas, c.metas[id])
		if len(out.IDs) == k {
			break
		}
	}
	return out, nil
}

func (c *fakeCollection) Get(ctx context.Context, ids []string) (vectorstore.GetResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out vectorstore.GetResult
	if ids == nil {
		for id, meta := range c.metas {
			out.IDs = append(out.IDs, id)
			out.Metadatas = append(out.Metadatas, meta)
		}
		return out, nil
	}
	for _, id := range ids {
		if meta, ok := c.metas[id]; ok {
			out.IDs = append(out.IDs, id)
			out.Metadatas = append(out.Metadatas, meta)
		}
	}
	return out, nil
}

func (c *fakeCollection) Upsert(ctx context.Context, ids []string, documents []string, metadatas []vectorstore.Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range ids {
		c.docs[id] = documents[i]
		c.metas[id] = metadatas[i]
	}
	return nil
}

type fakeStore struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: make(map[string]*fakeCollection)}
}

func (s *fakeStore) GetOrCreate(ctx context.Context, name string) (vectorstore.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c := &fakeCollection{
		name:  name,
		docs:  make(map[string]string),
		metas: make(map[string]vectorstore.Metadata),
	}
	s.collections[name] = c
	return c, nil
}

func (s *fakeStore) Get(ctx context.Context, name string) (vectorstore.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	return nil, vectorstore.ErrCollectionNotFound
}

func (s *fakeStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakeStore) Close(ctx context.Context) error { return nil }

type fakeProvider struct {
	summary string
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0, 0, 0}, nil
}

func (p *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.summary != "" {
		return p.summary, nil
	}
	return "Fire utilities for offensive casting.", nil
}

func (p *fakeProvider) Close(ctx context.Context) error { return nil }

const fireballUnit = `/** Offensive fire magic. */

/** Casts a ball of fire at the target. */
spell({name: "fireball", doc: "Casts a ball of fire at the target."}, function(args) {
    return {outcome: "scorched", target: args.target};
});

/** Freezes the target solid. */
spell({name: "frost", doc: "Freezes the target solid."}, function(args) {
    return "frozen";
});
`

func testConfig(root string) config.Config {
	return config.Config{
		RootDir:           root,
		MagetoolsDir:      ".magetools",
		DBFolder:          ".spellbook",
		Strict:            true,
		TopSpells:         5,
		DistanceThreshold: 0.4,
		Concurrency:       5,
		Store:             config.StoreConfig{Kind: config.StoreEmbedding},
	}
}

func newTestGrimorium(t *testing.T, opts Options) (*Grimorium, *fakeStore) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, ".magetools", "arcane")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fire.js"), []byte(fireballUnit), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(`{"enabled": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	if opts.Store == nil {
		opts.Store = store
	}
	if opts.Provider == nil {
		opts.Provider = &fakeProvider{}
	}
	g, err := New(testConfig(root), opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return g, store
}

func TestOperationsRequireInitialize(t *testing.T) {
	g, _ := newTestGrimorium(t, Options{})

	if _, err := g.DiscoverGrimoriums(context.Background(), "fire"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("DiscoverGrimoriums before Initialize: %v", err)
	}
	if _, err := g.ExecuteSpell(context.Background(), "arcane.fireball", nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ExecuteSpell before Initialize: %v", err)
	}
}

func TestInitializePipeline(t *testing.T) {
	g, store := newTestGrimorium(t, Options{})
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if g.Registry().Len() != 2 {
		t.Errorf("registry has %d spells, want 2: %v", g.Registry().Len(), g.Registry().IDs())
	}

	arcane := store.collections["arcane"]
	if arcane == nil {
		t.Fatal("spell collection not synced")
	}
	if _, ok := arcane.metas["arcane.fireball"]; !ok {
		t.Errorf("arcane.fireball not in index: %v", arcane.metas)
	}

	master := store.collections["grimoriums_index"]
	if master == nil {
		t.Fatal("master index not synced")
	}
	if master.metas["arcane"].SpellCount != 1 {
		t.Errorf("master metadata = %+v", master.metas["arcane"])
	}
}

func TestDiscoverGrimoriums(t *testing.T) {
	long := "Fire utilities. " + strings.Repeat("More detail. ", 30)
	g, _ := newTestGrimorium(t, Options{Provider: &fakeProvider{summary: long}})
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	res, err := g.DiscoverGrimoriums(context.Background(), "fire")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusSuccess || len(res.Grimoriums) != 1 {
		t.Fatalf("result = %+v", res)
	}
	info := res.Grimoriums[0]
	if info.ID != "arcane" {
		t.Errorf("id = %q", info.ID)
	}
	if len(info.Description) != descriptionPreview+3 || !strings.HasSuffix(info.Description, "...") {
		t.Errorf("description not truncated: %d chars", len(info.Description))
	}

	miss, err := g.DiscoverGrimoriums(context.Background(), "no such topic anywhere")
	if err != nil {
		t.Fatal(err)
	}
	if miss.Status != StatusNotFound {
		t.Errorf("miss = %+v", miss)
	}
}

func TestDiscoverSpells(t *testing.T) {
	g, _ := newTestGrimorium(t, Options{})
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	res, err := g.DiscoverSpells(context.Background(), "arcane", "fire")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusSuccess || res.Grimorium != "arcane" {
		t.Fatalf("result = %+v", res)
	}
	info, ok := res.Spells["arcane.fireball"]
	if !ok {
		t.Fatalf("spells = %v", res.Spells)
	}
	if info.Description != "Casts a ball of fire at the target." {
		t.Errorf("description = %q", info.Description)
	}
	if _, ok := res.Spells["arcane.frost"]; ok {
		t.Error("frost matched a fire query")
	}
}

func TestExecuteSpell(t *testing.T) {
	g, _ := newTestGrimorium(t, Options{})
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	res, err := g.ExecuteSpell(context.Background(), "arcane.fireball", map[string]any{"target": "goblin"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("result = %+v", res)
	}
	m, ok := res.Result.(map[string]any)
	if !ok || m["target"] != "goblin" {
		t.Errorf("result = %v", res.Result)
	}
}

func TestExecuteSpellUnknown(t *testing.T) {
	g, _ := newTestGrimorium(t, Options{})
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	res, err := g.ExecuteSpell(context.Background(), "arcane.ghost", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusError || !strings.Contains(res.Message, "not found") {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteSpellAccessDenied(t *testing.T) {
	g, _ := newTestGrimorium(t, Options{Allowed: []string{"other"}})
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	res, err := g.ExecuteSpell(context.Background(), "arcane.fireball", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusError || !strings.Contains(res.Message, "Permission denied") {
		t.Errorf("result = %+v", res)
	}
}

func TestTools(t *testing.T) {
	g, _ := newTestGrimorium(t, Options{})
	tools := g.Tools()
	if len(tools) != 3 {
		t.Fatalf("Tools() returned %d tools", len(tools))
	}
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
		if tool.Namespace != "magetools" {
			t.Errorf("tool %s namespace = %q", tool.Name, tool.Namespace)
		}
	}
	for _, want := range []string{ToolDiscoverGrimoriums, ToolDiscoverSpells, ToolExecuteSpell} {
		if !names[want] {
			t.Errorf("missing tool %q", want)
		}
	}
}

func TestHandleRequest(t *testing.T) {
	g, _ := newTestGrimorium(t, Options{})
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	var init struct {
		Result struct {
			ProtocolVersion string `json:"protocolVersion"`
			Instructions    string `json:"instructions"`
		} `json:"result"`
	}
	resp := g.HandleRequest(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	if err := json.Unmarshal(resp, &init); err != nil {
		t.Fatal(err)
	}
	if init.Result.ProtocolVersion != protocolVersion || init.Result.Instructions == "" {
		t.Errorf("initialize result = %+v", init.Result)
	}

	var list struct {
		Result struct {
			Tools []json.RawMessage `json:"tools"`
		} `json:"result"`
	}
	resp = g.HandleRequest(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	if err := json.Unmarshal(resp, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Result.Tools) != 3 {
		t.Errorf("tools/list returned %d tools", len(list.Result.Tools))
	}

	call := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"magetools_discover_spells","arguments":{"grimorium_id":"arcane","query":"fire"}}}`
	resp = g.HandleRequest(context.Background(), []byte(call))
	if !strings.Contains(string(resp), "arcane.fireball") {
		t.Errorf("tools/call response = %s", resp)
	}

	resp = g.HandleRequest(context.Background(), []byte(`{"jsonrpc":"2.0","id":4,"method":"nope"}`))
	if !strings.Contains(string(resp), "method not found") {
		t.Errorf("unknown method response = %s", resp)
	}

	resp = g.HandleRequest(context.Background(), []byte(`{not json`))
	if !strings.Contains(string(resp), "parse error") {
		t.Errorf("malformed request response = %s", resp)
	}
}

func TestServeStdio(t *testing.T) {
	g, _ := newTestGrimorium(t, Options{})
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n",
	)
	var out strings.Builder
	if err := g.ServeStdio(context.Background(), in, &out); err != nil {
		t.Fatalf("ServeStdio: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d response lines", len(lines))
	}
	if !strings.Contains(lines[0], protocolVersion) {
		t.Errorf("first response = %s", lines[0])
	}
	if !strings.Contains(lines[1], ToolExecuteSpell) {
		t.Errorf("second response = %s", lines[1])
	}
}
