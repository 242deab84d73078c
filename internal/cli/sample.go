package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/executor"
)

func newSampleCommand(load func(context.Context) (*app, error)) *cobra.Command {
	var (
		recipePath string
		out        string
		sc         executor.SampleConfig
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Sample a recipe's dataset without running its operators",
		Long: `Sample ingests and formats the recipe's dataset, then keeps a subset.

Algorithms:
  uniform                              seeded random subset of --ratio
  topk_specified_field_selector        records with the top values of --field
  frequency_specified_field_selector   records whose --field value is most frequent

Examples:
  dataflow sample --recipe recipe.yaml --ratio 0.1 --out sample.jsonl
  dataflow sample --recipe recipe.yaml --algo topk_specified_field_selector --field score --topk 100`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := load(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			e, _, err := a.executor(recipePath, "")
			if err != nil {
				return err
			}
			ds, err := e.SampleSource(ctx, sc)
			if err != nil {
				return err
			}
			return writeSample(cmd.OutOrStdout(), out, ds)
		},
	}
	cmd.Flags().StringVar(&recipePath, "recipe", "", "recipe file")
	cmd.Flags().StringVar(&sc.Algorithm, "algo", executor.SampleUniform, "sampling algorithm")
	cmd.Flags().Float64Var(&sc.Ratio, "ratio", 1.0, "fraction of records or groups to keep")
	cmd.Flags().StringVar(&sc.FieldKey, "field", "", "field for the topk and frequency algorithms")
	cmd.Flags().IntVar(&sc.TopK, "topk", 0, "number of records or groups to keep")
	cmd.Flags().BoolVar(&sc.Reverse, "reverse", true, "keep the largest values first")
	cmd.Flags().Int64Var(&sc.Seed, "seed", 42, "seed for uniform sampling")
	cmd.Flags().StringVar(&out, "out", "", "output JSONL file (default: stdout)")
	_ = cmd.MarkFlagRequired("recipe")
	return cmd
}

func writeSample(stdout io.Writer, path string, ds *dataset.Dataset) error {
	if path == "" {
		return dataset.WriteJSONL(stdout, ds)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteJSONL(f, ds); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d records written to %s\n", ds.Len(), path)
	return nil
}
