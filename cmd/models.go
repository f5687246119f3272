package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	llmclient "consortium-core/llm-client"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the catalogued models by provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PROVIDER\tMODEL")
			for _, m := range llmclient.ListModels() {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", m.Provider, m.Model)
			}
			return w.Flush()
		},
	}
}
