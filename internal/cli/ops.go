package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kbukum/dataflow/op"
	"github.com/kbukum/dataflow/ops"
)

func newOpsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ops [name]",
		Short: "List the built-in operators or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := op.NewRegistry()
			if err := ops.RegisterBuiltins(reg); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				info, ok := reg.Info(args[0])
				if !ok {
					return fmt.Errorf("unknown operator %q", args[0])
				}
				if asJSON {
					return json.NewEncoder(w).Encode(info)
				}
				fmt.Fprintf(w, "%s (%s)\n  %s\n", args[0], info.Kind, info.Description)
				for _, p := range info.Params {
					fmt.Fprintf(w, "  --%s (default %v): %s\n", p.Name, p.Default, p.Doc)
				}
				return nil
			}
			if asJSON {
				all := map[string]op.Info{}
				for _, name := range reg.Names() {
					all[name], _ = reg.Info(name)
				}
				return json.NewEncoder(w).Encode(all)
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, name := range reg.Names() {
				info, _ := reg.Info(name)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, info.Kind, info.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
