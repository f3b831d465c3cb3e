package hostconfig_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
	domainconfig "github.com/felixgeelhaar/agent-phoenix/domain/config"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/hostconfig"
)

const csvAgent = `---
name: csv-analyzer
description: Computes summary statistics for CSV files
tools: Read, Bash
model: sonnet
---

You analyze CSV files.
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func artifactsConfig(t *testing.T) domainconfig.ArtifactsConfig {
	t.Helper()
	root := t.TempDir()
	cfg := domainconfig.Default().Artifacts
	cfg.AgentsDir = filepath.Join(root, "agents")
	cfg.ServersDir = filepath.Join(root, "servers")
	cfg.MCPConfig = filepath.Join(root, ".mcp.json")
	cfg.SettingsFile = filepath.Join(root, "settings.json")
	return cfg
}

func TestParseAgent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		tools   []string
		wantErr bool
	}{
		{"comma list", csvAgent, []string{"Read", "Bash"}, false},
		{"yaml list", "---\nname: a\ndescription: d\ntools:\n  - Read\n  - Write\n---\nbody", []string{"Read", "Write"}, false},
		{"no tools", "---\nname: a\ndescription: d\n---\n", nil, false},
		{"wildcard tools", "---\nname: a\ndescription: d\ntools: \"*\"\n---\n", nil, true},
		{"no header", "name: a\n", nil, true},
		{"unterminated", "---\nname: a\ndescription: d\n", nil, true},
		{"bad name", "---\nname: Not A Slug\ndescription: d\n---\n", nil, true},
		{"no description", "---\nname: a\n---\n", nil, true},
		{"bad yaml", "---\nname: [a\n---\n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := hostconfig.ParseAgent([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAgent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if diff := cmp.Diff(tt.tools, a.Tools); diff != "" {
					t.Errorf("Tools mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestLoadAgent(t *testing.T) {
	t.Parallel()

	cfg := artifactsConfig(t)
	writeFile(t, hostconfig.AgentPath(cfg.AgentsDir, "csv-analyzer"), csvAgent)
	writeFile(t, hostconfig.AgentPath(cfg.AgentsDir, "renamed"), csvAgent)

	a, err := hostconfig.LoadAgent(cfg.AgentsDir, "csv-analyzer")
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}
	if a.Model != "sonnet" || a.Prompt != "You analyze CSV files." {
		t.Errorf("artifact = %+v", a)
	}
	d := a.Descriptor("CSV statistics")
	if err := d.Validate(); err != nil {
		t.Errorf("descriptor invalid: %v", err)
	}
	if d.Source != a.Path || d.Purpose != "CSV statistics" {
		t.Errorf("descriptor = %+v", d)
	}

	if _, err := hostconfig.LoadAgent(cfg.AgentsDir, "missing"); !errors.Is(err, capability.ErrArtifactMissing) {
		t.Errorf("missing: error = %v, want ErrArtifactMissing", err)
	}
	if _, err := hostconfig.LoadAgent(cfg.AgentsDir, "renamed"); !errors.Is(err, capability.ErrMalformedArtifact) {
		t.Errorf("name mismatch: error = %v, want ErrMalformedArtifact", err)
	}
}

func TestFindServer(t *testing.T) {
	t.Parallel()

	cfg := artifactsConfig(t)
	writeFile(t, filepath.Join(cfg.ServersDir, "weather_api.py"), "print('hi')\n")
	writeFile(t, filepath.Join(cfg.ServersDir, "empty.js"), "")
	writeFile(t, filepath.Join(cfg.ServersDir, "ruby.rb"), "puts 1\n")
	writeFile(t, filepath.Join(cfg.ServersDir, "tsserver.ts"), "export {}\n")

	s, err := hostconfig.FindServer(cfg, "weather-api")
	if err != nil {
		t.Fatalf("FindServer() error = %v", err)
	}
	want := hostconfig.ServerArtifact{
		Name:    "weather-api",
		Path:    filepath.Join(cfg.ServersDir, "weather_api.py"),
		Command: "python3",
		Args:    []string{filepath.Join(cfg.ServersDir, "weather_api.py")},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("FindServer() mismatch (-want +got):\n%s", diff)
	}

	ts, err := hostconfig.FindServer(cfg, "tsserver")
	if err != nil {
		t.Fatalf("FindServer(tsserver) error = %v", err)
	}
	if ts.Command != "npx" || len(ts.Args) != 2 || ts.Args[0] != "tsx" {
		t.Errorf("tsserver = %+v", ts)
	}

	tests := []struct {
		name string
		want error
	}{
		{"absent", capability.ErrArtifactMissing},
		{"empty", capability.ErrMalformedArtifact},
		{"ruby", capability.ErrMalformedArtifact},
	}
	for _, tt := range tests {
		if _, err := hostconfig.FindServer(cfg, tt.name); !errors.Is(err, tt.want) {
			t.Errorf("FindServer(%s) error = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestRegistry_Upsert(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".mcp.json")
	writeFile(t, path, `{"mcpServers":{"db":{"command":"node","args":["db.js"]}},"other":true}`)
	r := hostconfig.NewRegistry(path)
	ctx := context.Background()

	if err := r.Upsert(ctx, "weather", hostconfig.ServerEntry{Command: "python3", Args: []string{"w.py"}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	servers, err := r.Servers()
	if err != nil {
		t.Fatalf("Servers() error = %v", err)
	}
	want := map[string]hostconfig.ServerEntry{
		"db":      {Command: "node", Args: []string{"db.js"}},
		"weather": {Command: "python3", Args: []string{"w.py"}},
	}
	if diff := cmp.Diff(want, servers); diff != "" {
		t.Errorf("Servers() mismatch (-want +got):\n%s", diff)
	}

	var doc map[string]any
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["other"] != true {
		t.Error("unrelated keys should be preserved")
	}
}

func TestRegistry_UpsertKeepsRemoteServers(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".mcp.json")
	remote := `{"type":"http","url":"https://example.com/mcp","headers":{"Authorization":"Bearer ${TOKEN}"}}`
	writeFile(t, path, `{"mcpServers":{"remote":`+remote+`}}`)

	err := hostconfig.NewRegistry(path).Upsert(context.Background(), "weather", hostconfig.ServerEntry{Command: "python3"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	var doc struct {
		MCPServers map[string]json.RawMessage `json:"mcpServers"`
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	var want, got map[string]any
	if err := json.Unmarshal([]byte(remote), &want); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(doc.MCPServers["remote"], &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("remote server changed (-want +got):\n%s", diff)
	}
	if _, ok := doc.MCPServers["weather"]; !ok {
		t.Error("weather server not registered")
	}
}

func TestRegistry_ConcurrentUpserts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", ".mcp.json")
	names := []string{"a", "b", "c", "d", "e", "f"}

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate handles contend on the file lock.
			if err := hostconfig.NewRegistry(path).Upsert(context.Background(), n, hostconfig.ServerEntry{Command: n}); err != nil {
				t.Errorf("Upsert(%s) error = %v", n, err)
			}
		}()
	}
	wg.Wait()

	servers, err := hostconfig.NewRegistry(path).Servers()
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != len(names) {
		t.Errorf("got %d servers, want %d: %v", len(servers), len(names), servers)
	}
}

func TestRegistry_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".mcp.json")
	writeFile(t, path, "{not json")
	err := hostconfig.NewRegistry(path).Upsert(context.Background(), "x", hostconfig.ServerEntry{Command: "x"})
	if !errors.Is(err, hostconfig.ErrRegistryCorrupt) {
		t.Errorf("Upsert() error = %v, want ErrRegistryCorrupt", err)
	}
}

func TestAllowedTools(t *testing.T) {
	t.Parallel()

	active := []capability.Descriptor{
		{Name: "csv-analyzer", Kind: capability.KindAgent, Agent: &capability.AgentSpec{}},
		{Name: "weather", Kind: capability.KindToolServer, ToolServer: &capability.ToolServerSpec{
			Command: "python3", Tools: []string{"forecast", "alerts"},
		}},
		{Name: "db", Kind: capability.KindToolServer, ToolServer: &capability.ToolServerSpec{Command: "node"}},
	}
	got := hostconfig.AllowedTools([]string{"Task", "mcp__db"}, active)
	want := []string{"Task", "mcp__db", "mcp__weather__forecast", "mcp__weather__alerts"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AllowedTools() mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallHook(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".claude", "settings.json")
	writeFile(t, path, `{"model":"opus","hooks":{"PreToolUse":[{"matcher":"Bash","hooks":[{"type":"command","command":"lint"}]}]}}`)

	changed, err := hostconfig.InstallHook(path, "phoenix hook")
	if err != nil || !changed {
		t.Fatalf("InstallHook() = %v, %v", changed, err)
	}
	changed, err = hostconfig.InstallHook(path, "phoenix hook")
	if err != nil || changed {
		t.Fatalf("second InstallHook() = %v, %v, want unchanged", changed, err)
	}

	var doc struct {
		Model string `json:"model"`
		Hooks map[string][]struct {
			Hooks []struct {
				Command string `json:"command"`
			} `json:"hooks"`
		} `json:"hooks"`
	}
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Model != "opus" || len(doc.Hooks["PreToolUse"]) != 1 {
		t.Errorf("existing settings lost: %s", data)
	}
	stop := doc.Hooks[hostconfig.HookEvent]
	if len(stop) != 1 || stop[0].Hooks[0].Command != "phoenix hook" {
		t.Errorf("SubagentStop hooks = %+v", stop)
	}
}

type fakeProber struct {
	tools []string
	err   error
}

func (f fakeProber) Probe(context.Context, hostconfig.ServerArtifact) ([]string, error) {
	return f.tools, f.err
}

func TestArtifacts_Resolve(t *testing.T) {
	t.Parallel()

	cfg := artifactsConfig(t)
	writeFile(t, hostconfig.AgentPath(cfg.AgentsDir, "csv-analyzer"), csvAgent)
	writeFile(t, filepath.Join(cfg.ServersDir, "weather.py"), "print(1)\n")
	ctx := context.Background()

	a := hostconfig.NewArtifacts(cfg, hostconfig.WithProber(fakeProber{tools: []string{"forecast"}}))

	agent, err := a.Resolve(ctx, capability.Key{Kind: capability.KindAgent, Name: "csv-analyzer"}, "stats")
	if err != nil {
		t.Fatalf("Resolve(agent) error = %v", err)
	}
	if agent.Kind != capability.KindAgent || agent.Agent == nil {
		t.Errorf("agent descriptor = %+v", agent)
	}
	if err := a.Publish(ctx, agent); err != nil {
		t.Fatalf("Publish(agent) error = %v", err)
	}
	if _, err := os.Stat(cfg.MCPConfig); !os.IsNotExist(err) {
		t.Error("publishing an agent should not write the server registry")
	}

	server, err := a.Resolve(ctx, capability.Key{Kind: capability.KindToolServer, Name: "weather"}, "forecasts")
	if err != nil {
		t.Fatalf("Resolve(server) error = %v", err)
	}
	if diff := cmp.Diff([]string{"mcp__weather__forecast"}, server.Permissions); diff != "" {
		t.Errorf("Permissions mismatch (-want +got):\n%s", diff)
	}
	if err := a.Publish(ctx, server); err != nil {
		t.Fatalf("Publish(server) error = %v", err)
	}
	servers, err := a.Registry().Servers()
	if err != nil || servers["weather"].Command != "python3" {
		t.Errorf("registry = %v, %v", servers, err)
	}

	failing := hostconfig.NewArtifacts(cfg, hostconfig.WithProber(fakeProber{err: capability.ErrMalformedArtifact}))
	if _, err := failing.Resolve(ctx, capability.Key{Kind: capability.KindToolServer, Name: "weather"}, ""); !errors.Is(err, capability.ErrMalformedArtifact) {
		t.Errorf("probe failure: error = %v", err)
	}
	if _, err := a.Resolve(ctx, capability.Key{Kind: capability.KindAgent, Name: "../x"}, ""); !errors.Is(err, capability.ErrMalformedArtifact) {
		t.Errorf("bad name: error = %v", err)
	}
}
