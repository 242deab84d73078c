package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kbukum/dataflow/executor"
)

func newRunCommand(load func(context.Context) (*app, error)) *cobra.Command {
	var (
		recipePath string
		runID      string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a recipe",
		Long: `Run loads the recipe, ingests and formats its dataset, applies every
operator in order and exports the result.

An interrupt stops the run once the operator in flight completes; with
use_checkpoint set, the next run resumes from there.

Examples:
  dataflow run --recipe recipe.yaml
  dataflow run --recipe recipe.yaml --json
  dataflow run --recipe recipe.yaml --run-id nightly`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := load(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			e, _, err := a.executor(recipePath, runID)
			if err != nil {
				return err
			}
			report, runErr := runUntilInterrupted(ctx, e)
			if report == nil {
				return runErr
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&recipePath, "recipe", "", "recipe file")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (generated when empty)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	_ = cmd.MarkFlagRequired("recipe")
	return cmd
}

// runUntilInterrupted runs e detached from ctx cancellation, turning it into
// a stop request so the operator in flight completes.
func runUntilInterrupted(ctx context.Context, e *executor.Executor) (*executor.Report, error) {
	if ctx.Err() != nil {
		e.Stop()
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-done:
		}
	}()
	return e.Run(context.WithoutCancel(ctx))
}

func printReport(w io.Writer, r *executor.Report) {
	fmt.Fprintf(w, "run %s: %s\n", r.RunID, r.State)
	if r.Failure != nil {
		fmt.Fprintf(w, "  failed in %s", r.Failure.Phase)
		if r.Failure.Operator != "" {
			fmt.Fprintf(w, " at %d:%s", r.Failure.Index, r.Failure.Operator)
		}
		fmt.Fprintf(w, ": %s\n", r.Failure.Message)
	}
	if r.State == executor.StateFinished {
		fmt.Fprintf(w, "  %s records exported (branch %s)\n", humanize.Comma(int64(r.Records)), r.Branch)
	}
	for _, o := range r.Operators {
		fmt.Fprintf(w, "  %3d %-40s %-10s in=%s out=%s dropped=%s np=%d %s\n",
			o.Index, o.Name, o.Status,
			humanize.Comma(o.Counters.In), humanize.Comma(o.Counters.Out), humanize.Comma(o.Counters.Dropped),
			o.NumProc, o.Duration.Round(time.Millisecond))
	}
	phases := make([]string, 0, len(r.Phases))
	for p := range r.Phases {
		phases = append(phases, p)
	}
	sort.Strings(phases)
	for _, p := range phases {
		fmt.Fprintf(w, "  phase %-10s %s\n", p, r.Phases[p].Round(time.Millisecond))
	}
}
