package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kbukum/dataflow/version"
)

// NewRootCommand returns the dataflow command tree.
func NewRootCommand() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:   "dataflow",
		Short: "Run batch data-processing recipes",
		Long: `dataflow applies an ordered list of operators (mappers, filters,
deduplicators and selectors) to a dataset described by a recipe, and
exports the result.`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "service config file (default: search standard locations)")

	load := func(ctx context.Context) (*app, error) { return newApp(ctx, configFile) }
	root.AddCommand(
		newRunCommand(load),
		newSampleCommand(load),
		newOpsCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree with ctx. Cancelling ctx asks a running
// recipe to stop at the next operator boundary.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
