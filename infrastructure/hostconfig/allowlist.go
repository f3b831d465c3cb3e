package hostconfig

import (
	"slices"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

// ToolPermission names one tool of a server in the host's allowlist.
func ToolPermission(server, tool string) string {
	return "mcp__" + server + "__" + tool
}

// ServerPermission names every tool of a server.
func ServerPermission(server string) string {
	return "mcp__" + server
}

// AllowedTools computes the allowlist for a launch: base, then each active
// tool server's tools, or the whole server when its tools are unknown.
// The result has no duplicates and keeps first-seen order.
func AllowedTools(base []string, active []capability.Descriptor) []string {
	out := make([]string, 0, len(base)+len(active))
	add := func(name string) {
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	for _, b := range base {
		add(b)
	}
	for _, d := range active {
		if d.Kind != capability.KindToolServer || !d.Active() || d.ToolServer == nil {
			continue
		}
		if len(d.ToolServer.Tools) == 0 {
			add(ServerPermission(d.Name))
			continue
		}
		for _, t := range d.ToolServer.Tools {
			add(ToolPermission(d.Name, t))
		}
	}
	return out
}
