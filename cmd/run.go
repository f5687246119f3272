package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"consortium-core/core"
	"consortium-core/observability"
)

var (
	errNoPrompt         = errors.New("No prompt provided via argument or stdin.")
	errNoPromptNoStdin  = errors.New("No prompt provided via argument and stdin reading is disabled.")
	errConsortiumSource = errors.New("--consortium and --file cannot be combined")
)

type runOptions struct {
	models              []string
	count               int
	arbiter             string
	confidenceThreshold float64
	maxIterations       int
	minIterations       int
	system              string
	judgingMethod       string
	output              string
	readStdin           bool
	raw                 bool
	historyFile         string
	consortium          string
	file                string
}

func newRunCmd(app *app) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a prompt through a consortium of models",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := resolvePrompt(cmd, args, opts.readStdin)
			if err != nil {
				return err
			}

			cfg, err := opts.consortiumConfig(cmd, app)
			if err != nil {
				return err
			}

			history, err := opts.readHistory()
			if err != nil {
				return err
			}

			observability.Component("CLI").Info().
				Int("models", len(cfg.Models)).
				Str("arbiter", cfg.Arbiter).
				Str("judging_method", string(cfg.JudgingMethod)).
				Msg("Starting consortium run")

			orch, err := core.NewOrchestrator(cfg, app.dispatcher, core.WithTemplates(app.templates))
			if err != nil {
				return err
			}

			result, err := orch.Orchestrate(cmd.Context(), prompt, history)
			if err != nil {
				return fmt.Errorf("Consortium run failed: %w", err)
			}

			if opts.output != "" {
				if err := writeResult(opts.output, result); err != nil {
					return err
				}
			}

			if opts.raw {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.Synthesis.RawArbiterResponse)
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.Synthesis.Synthesis)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&opts.models, "model", "m", nil, "Model to include (format 'model:count' or 'model'). Repeatable")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Default number of instances when a model has no count")
	cmd.Flags().StringVar(&opts.arbiter, "arbiter", app.cfg.DefaultArbiter, "Model to use as arbiter")
	cmd.Flags().Float64Var(&opts.confidenceThreshold, "confidence-threshold", 0.8, "Minimum confidence threshold (0.0-1.0 or 0-100)")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 3, "Maximum number of iteration rounds")
	cmd.Flags().IntVar(&opts.minIterations, "min-iterations", 1, "Minimum number of iterations to perform")
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt text or path to a system prompt file")
	cmd.Flags().StringVar(&opts.judgingMethod, "judging-method", string(core.JudgingDefault), "Judging method for the arbiter (default, pick-one, rank)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Save the full result as JSON to this file")
	cmd.Flags().BoolVar(&opts.readStdin, "stdin", true, "Read the prompt from stdin when no prompt argument is given")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print the raw arbiter response instead of the synthesis")
	cmd.Flags().StringVar(&opts.historyFile, "history", "", "File with conversation history to prepend to the prompt")
	cmd.Flags().StringVar(&opts.consortium, "consortium", "", "Run a saved consortium by name")
	cmd.Flags().StringVar(&opts.file, "file", "", "Run a consortium defined in a YAML file")

	return cmd
}

func (o runOptions) consortiumConfig(cmd *cobra.Command, app *app) (core.ConsortiumConfig, error) {
	if o.consortium != "" && o.file != "" {
		return core.ConsortiumConfig{}, errConsortiumSource
	}

	if o.consortium != "" {
		saved, err := app.store.Get(cmd.Context(), o.consortium)
		if err != nil {
			if errors.Is(err, core.ErrConsortiumNotFound) {
				return core.ConsortiumConfig{}, notFoundError(o.consortium)
			}
			return core.ConsortiumConfig{}, err
		}
		return saved.Config, nil
	}

	if o.file != "" {
		return core.LoadConsortiumFile(o.file)
	}

	system, err := core.ResolveSystemPrompt(o.system)
	if err != nil {
		return core.ConsortiumConfig{}, err
	}

	spec := core.ConsortiumSpec{
		Models:              o.models,
		Count:               o.count,
		Arbiter:             o.arbiter,
		ConfidenceThreshold: &o.confidenceThreshold,
		MaxIterations:       &o.maxIterations,
		MinIterations:       &o.minIterations,
		System:              system,
		JudgingMethod:       o.judgingMethod,
	}
	return spec.ToConfig(app.specDefaults())
}

func (o runOptions) readHistory() (string, error) {
	if o.historyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(o.historyFile)
	if err != nil {
		return "", fmt.Errorf("read history file: %w", err)
	}
	return string(data), nil
}

// resolvePrompt takes the prompt argument, or reads stdin when it is not a terminal.
func resolvePrompt(cmd *cobra.Command, args []string, readStdin bool) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if !readStdin {
		return "", errNoPromptNoStdin
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		info, err := f.Stat()
		if err != nil || info.Mode()&os.ModeCharDevice != 0 {
			return "", errNoPrompt
		}
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		observability.Component("CLI").Warn().Msg("Reading from stdin enabled, but stdin was empty")
		return "", errNoPrompt
	}
	return prompt, nil
}

func writeResult(path string, result *core.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("Error saving results to '%s': %w", path, err)
	}
	observability.Component("CLI").Info().Str("path", path).Msg("Full results saved")
	return nil
}

func notFoundError(name string) error {
	return fmt.Errorf("Consortium with name '%s' not found.", name)
}
