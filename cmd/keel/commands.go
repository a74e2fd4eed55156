package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xraph/keel/scenarios"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, s := range scenarios.All() {
				fmt.Fprintf(w, "%s\t%s\n", s.Name, s.Summary)
			}
			return w.Flush()
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run one or more scenarios",
		Long: `Run scenarios by name, or every scenario with --all.

Examples:
  keel run base
  keel run configuration --obey-speed-limit=false
  keel run --all --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := selectScenarios(args, all)
			if err != nil {
				return err
			}

			logger, err := newLogger(a.cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			out, closeOut, err := openOutput(cmd, a.cfg.Output)
			if err != nil {
				return err
			}
			defer func() { _ = closeOut() }()

			for i, s := range selected {
				if len(selected) > 1 {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "== %s ==\n", s.Name)
				}

				env := scenarios.Env{
					Out:    out,
					Logger: logger.Named(s.Name),
					Config: a.cfg,
				}
				if err := s.Run(cmd.Context(), env); err != nil {
					logger.Error("scenario failed", zap.String("scenario", s.Name), zap.Error(err))
					return fmt.Errorf("scenario %s: %w", s.Name, err)
				}
			}
			return closeOut()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "run every scenario")

	return cmd
}

func selectScenarios(names []string, all bool) ([]scenarios.Scenario, error) {
	if all {
		if len(names) > 0 {
			return nil, fmt.Errorf("--all cannot be combined with scenario names")
		}
		return scenarios.All(), nil
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no scenario given; use --all or one of the names from 'keel list'")
	}

	selected := make([]scenarios.Scenario, 0, len(names))
	for _, name := range names {
		s, ok := scenarios.Find(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		selected = append(selected, s)
	}
	return selected, nil
}
