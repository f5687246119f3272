package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func Execute() error {
	return ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "consortium [prompt]",
		Short:         "Run a prompt through a consortium of language models",
		Long:          "consortium sends one prompt to several models in parallel, has an arbiter model merge, pick or rank their answers, and refines the result until the arbiter is confident enough.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	runCmd := newRunCmd(app)

	// a bare prompt runs the consortium
	rootCmd.Args = runCmd.Args
	rootCmd.RunE = runCmd.RunE
	rootCmd.Flags().AddFlagSet(runCmd.Flags())

	rootCmd.AddCommand(
		runCmd,
		newSaveCmd(app),
		newListCmd(app),
		newRemoveCmd(app),
		newModelsCmd(),
		newServeCmd(app),
	)

	return rootCmd
}
