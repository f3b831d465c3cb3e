package mcp

import (
	"encoding/json"

	mcpgo "github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
)

// emptyObjectSchema is advertised for descriptors without a schema.
var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// listing converts a tool descriptor into its tools/list entry.
func listing(d tool.Descriptor) map[string]any {
	schema := d.InputSchema
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}
	item := map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"inputSchema": schema,
	}
	ann := d.Metadata.Annotations
	if ann.ReadOnly || ann.Idempotent || ann.Destructive {
		item["annotations"] = &mcpgo.ToolAnnotations{
			ReadOnlyHint:    mcpgo.Bool(ann.ReadOnly),
			IdempotentHint:  mcpgo.Bool(ann.Idempotent),
			DestructiveHint: mcpgo.Bool(ann.Destructive),
		}
	}
	return item
}

// callResult converts a tool result into its tools/call payload.
func callResult(r tool.Result) map[string]any {
	content := make([]map[string]any, 0, len(r.Content))
	for _, c := range r.Content {
		content = append(content, map[string]any{"type": "text", "text": c.Text})
	}
	return map[string]any{"content": content, "isError": r.IsError}
}
