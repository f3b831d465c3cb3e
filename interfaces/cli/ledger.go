package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

// ledgerListOptions holds options for the ledger list command.
type ledgerListOptions struct {
	all        bool
	jsonOutput bool
}

// newLedgerCmd creates the ledger command group.
func (a *App) newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the capability registration ledger",
	}

	opts := &ledgerListOptions{}
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listLedger(cmd.Context(), opts)
		},
	}
	list.Flags().BoolVar(&opts.all, "all", false, "Include superseded capabilities")
	list.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	generation := &cobra.Command{
		Use:   "generation",
		Short: "Print the current ledger generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printGeneration(cmd.Context())
		},
	}

	cmd.AddCommand(list, generation)
	return cmd
}

func (a *App) listLedger(ctx context.Context, opts *ledgerListOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	led, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer led.Close()

	var entries []capability.Descriptor
	if opts.all {
		entries, err = led.History(ctx)
	} else {
		entries, err = led.ListActive(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	if opts.jsonOutput {
		if entries == nil {
			entries = []capability.Descriptor{}
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No capabilities registered.")
		return nil
	}
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GEN\tKIND\tNAME\tSTATUS\tREGISTERED\tPURPOSE")
	for _, d := range entries {
		status := "active"
		if !d.Active() {
			status = "superseded"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			d.Generation, d.Kind, d.Name, status, d.RegisteredAt.Format(time.RFC3339), d.Purpose)
	}
	return w.Flush()
}

func (a *App) printGeneration(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	led, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer led.Close()

	gen, err := led.CurrentGeneration(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	_, _ = fmt.Fprintln(a.stdout, gen)
	return nil
}
