package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"consortium-core/core"
)

const systemPromptDisplayLimit = 60

func newSaveCmd(app *app) *cobra.Command {
	var (
		models              []string
		count               int
		arbiter             string
		confidenceThreshold float64
		maxIterations       int
		minIterations       int
		system              string
		judgingMethod       string
	)

	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a consortium configuration under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			systemPrompt, err := core.ResolveSystemPrompt(system)
			if err != nil {
				return err
			}

			spec := core.ConsortiumSpec{
				Models:              models,
				Count:               count,
				Arbiter:             arbiter,
				ConfidenceThreshold: &confidenceThreshold,
				MaxIterations:       &maxIterations,
				MinIterations:       &minIterations,
				System:              systemPrompt,
				JudgingMethod:       judgingMethod,
			}
			cfg, err := spec.ToConfig(core.SpecDefaults{})
			if err != nil {
				return err
			}

			if err := app.store.Save(cmd.Context(), name, cfg); err != nil {
				return fmt.Errorf("Error saving consortium '%s': %w", name, err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Consortium configuration '%s' saved.\n", name)
			_, _ = fmt.Fprintf(out, "You can now use it like: consortium run --consortium %s \"Your prompt here\"\n", name)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&models, "model", "m", nil, "Model to include (format 'model:count' or 'model'). Repeatable")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Default number of instances when a model has no count")
	cmd.Flags().StringVar(&arbiter, "arbiter", "", "Model to use as arbiter")
	cmd.Flags().Float64Var(&confidenceThreshold, "confidence-threshold", 0.8, "Minimum confidence threshold (0.0-1.0 or 0-100)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 3, "Maximum number of iteration rounds")
	cmd.Flags().IntVar(&minIterations, "min-iterations", 1, "Minimum number of iterations to perform")
	cmd.Flags().StringVar(&system, "system", "", "System prompt text or path to a system prompt file")
	cmd.Flags().StringVar(&judgingMethod, "judging-method", string(core.JudgingDefault), "Judging method for the arbiter (default, pick-one, rank)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("arbiter")

	return cmd
}

func newListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved consortium configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			saved, err := app.store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("Error reading consortium configurations: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(saved) == 0 {
				_, _ = fmt.Fprintln(out, "No saved consortiums found.")
				return nil
			}

			_, _ = fmt.Fprintln(out, "Available saved consortiums:")
			_, _ = fmt.Fprintln(out)
			for _, consortium := range saved {
				printConsortium(out, consortium)
			}
			return nil
		},
	}
}

func newRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a saved consortium configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := app.store.Remove(cmd.Context(), name); err != nil {
				if errors.Is(err, core.ErrConsortiumNotFound) {
					return notFoundError(name)
				}
				return fmt.Errorf("Error removing consortium '%s': %w", name, err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Consortium configuration '%s' removed.\n", name)
			return nil
		},
	}
}

func printConsortium(out io.Writer, saved core.SavedConsortium) {
	cfg := saved.Config

	names := make([]string, 0, len(cfg.Models))
	for model := range cfg.Models {
		names = append(names, model)
	}
	sort.Strings(names)
	models := make([]string, 0, len(names))
	for _, model := range names {
		models = append(models, fmt.Sprintf("%s:%d", model, cfg.Models[model]))
	}

	system := cfg.SystemPrompt
	if system == "" {
		system = "Default"
	} else if runes := []rune(system); len(runes) > systemPromptDisplayLimit {
		system = string(runes[:systemPromptDisplayLimit-3]) + "..."
	}

	_, _ = fmt.Fprintf(out, "Name: %s\n", saved.Name)
	_, _ = fmt.Fprintf(out, "  Models: %s\n", strings.Join(models, ", "))
	_, _ = fmt.Fprintf(out, "  Arbiter: %s\n", cfg.Arbiter)
	_, _ = fmt.Fprintf(out, "  Confidence Threshold: %s\n", core.FormatFloat(cfg.ConfidenceThreshold))
	_, _ = fmt.Fprintf(out, "  Max Iterations: %d\n", cfg.MaxIterations)
	_, _ = fmt.Fprintf(out, "  Min Iterations: %d\n", cfg.MinIterations)
	_, _ = fmt.Fprintf(out, "  System Prompt: %s\n", system)
	_, _ = fmt.Fprintf(out, "  Judging Method: %s\n", cfg.JudgingMethod)
	_, _ = fmt.Fprintln(out)
}
