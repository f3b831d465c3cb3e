package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/mcp"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/telemetry"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/toolstore"
)

// newServeToolsCmd creates the serve-tools command.
func (a *App) newServeToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-tools",
		Short: "Serve the tool registry over MCP on stdio",
		Long: `Serve the tool registry store as an MCP server over stdin/stdout.

The store is re-read on every tools/list and tools/call request, so tools
added while the server runs are available to the next request.

Register it with the host, for example in .mcp.json:
  {"mcpServers": {"phoenix-tools": {"command": "phoenix", "args": ["serve-tools"]}}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serveTools(cmd.Context())
		},
	}
}

// serveTools runs the MCP server until the client disconnects.
func (a *App) serveTools(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	tp, flushTraces := a.tracing()
	defer func() { _ = flushTraces(context.WithoutCancel(ctx)) }()
	ts, closeExec, err := newToolServer(ctx, cfg.Tools, metrics(), telemetry.NewTracer(tp))
	if err != nil {
		return err
	}
	defer func() { _ = closeExec(context.WithoutCancel(ctx)) }()

	srv, err := mcp.NewServer(mcp.ServerConfig{
		Name:           cfg.Tools.ServerName,
		Version:        Version,
		Handler:        ts,
		TracerProvider: tp,
	})
	if err != nil {
		return err
	}
	if err := srv.ServeStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tool server stopped: %w", err)
	}
	return nil
}

// newToolsCmd creates the tools command group.
func (a *App) newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage the tool registry store",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered tools by category",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.listTools(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "add <descriptor.json>",
			Short: "Validate a tool descriptor and add it to the store",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.addTool(args[0])
			},
		},
		&cobra.Command{
			Use:   "remove <name>",
			Short: "Remove a tool from the store",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.removeTool(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "call <name> [arguments-json]",
			Short: "Call a tool the way the tool server would",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				raw := "{}"
				if len(args) == 2 {
					raw = args[1]
				}
				return a.callTool(cmd.Context(), args[0], json.RawMessage(raw))
			},
		},
	)
	return cmd
}

func (a *App) openToolStore() (*toolstore.Store, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return toolstore.New(cfg.Tools.Dir, toolstore.WithPattern(cfg.Tools.Pattern)), nil
}

// sortByCategory orders tools by category, uncategorized last, then by name.
func sortByCategory(tools []tool.Descriptor) {
	sort.SliceStable(tools, func(i, j int) bool {
		ci, cj := tools[i].Metadata.Category, tools[j].Metadata.Category
		if ci != cj {
			if ci == "" || cj == "" {
				return cj == ""
			}
			return ci < cj
		}
		return tools[i].Name < tools[j].Name
	})
}

func (a *App) listTools(ctx context.Context) error {
	store, err := a.openToolStore()
	if err != nil {
		return err
	}
	snap, err := store.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan tool store: %w", err)
	}

	yellow := color.New(color.FgYellow)
	for _, p := range snap.Problems {
		_, _ = yellow.Fprintf(a.stderr, "skipped %s: %v\n", p.Path, p.Err)
	}
	if len(snap.Tools) == 0 {
		_, _ = fmt.Fprintf(a.stdout, "No tools in %s\n", store.Dir())
		return nil
	}

	tools := append([]tool.Descriptor(nil), snap.Tools...)
	sortByCategory(tools)

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tNAME\tTYPE\tVERSION\tDESCRIPTION")
	for _, t := range tools {
		category := t.Metadata.Category
		if category == "" {
			category = "-"
		}
		version := t.Metadata.Version
		if version == "" {
			version = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", category, t.Name, t.Implementation.Type, version, t.Description)
	}
	return w.Flush()
}

func (a *App) addTool(path string) error {
	store, err := a.openToolStore()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- descriptor path is chosen by the operator
	if err != nil {
		return fmt.Errorf("failed to read descriptor: %w", err)
	}
	var d tool.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("%w: %v", tool.ErrInvalidDescriptor, err)
	}
	written, err := store.Put(d)
	if err != nil {
		return fmt.Errorf("failed to add tool: %w", err)
	}
	_, _ = color.New(color.FgGreen).Fprint(a.stdout, "✓ ")
	_, _ = fmt.Fprintf(a.stdout, "Added %s to %s\n", d.Name, written)
	return nil
}

func (a *App) removeTool(ctx context.Context, name string) error {
	store, err := a.openToolStore()
	if err != nil {
		return err
	}
	removed, err := store.Remove(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to remove tool: %w", err)
	}
	_, _ = fmt.Fprintf(a.stdout, "Removed %s (%s)\n", name, removed)
	return nil
}

func (a *App) callTool(ctx context.Context, name string, args json.RawMessage) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	tp, flushTraces := a.tracing()
	defer func() { _ = flushTraces(context.WithoutCancel(ctx)) }()
	ts, closeExec, err := newToolServer(ctx, cfg.Tools, metrics(), telemetry.NewTracer(tp))
	if err != nil {
		return err
	}
	defer func() { _ = closeExec(context.WithoutCancel(ctx)) }()

	res, err := ts.Call(ctx, name, args)
	if err != nil {
		return err
	}
	if res.IsError {
		if res.Error != nil {
			return res.Error
		}
		return fmt.Errorf("%w: %s", tool.ErrToolExecution, res.Text())
	}
	_, _ = fmt.Fprintln(a.stdout, res.Text())
	return nil
}
