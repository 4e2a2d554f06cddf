// Command planctl runs the goal planner once from the terminal and prints
// the result as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"goal_planner/internal/app"
	"goal_planner/internal/config"
	"goal_planner/internal/logging"
	"goal_planner/internal/metrics"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	density  int
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "planctl",
		Short:        "Break goals and tasks down with the GLM planner",
		SilenceUsage: true,
	}
	root.PersistentFlags().IntVar(&opts.density, "tasks-per-milestone", 0, "3 or 7; overrides TASKS_PER_MILESTONE")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "overrides LOG_LEVEL")

	root.AddCommand(newDecomposeCmd(opts), newSplitCmd(opts))
	return root
}

func newDecomposeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decompose <goal>",
		Short: "Decompose a goal into a 4-week plan",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planning, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			d, err := planning.Planner.Decompose(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"source": d.Source,
				"reason": d.Reason,
				"plan":   d.Plan,
			})
		},
	}
}

func newSplitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "split <task>",
		Short: "Split a task into 3-5 subtasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planning, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			split, err := planning.Splitter.Split(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"source":   split.Source,
				"reason":   split.Reason,
				"subtasks": split.Subtasks,
			})
		},
	}
}

func setup(opts *rootOptions) (*app.Planning, *zap.Logger, error) {
	cfg := config.Load()
	if opts.density != 0 {
		cfg.TasksPerMilestone = opts.density
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}

	logger, err := logging.New(level)
	if err != nil {
		return nil, nil, err
	}
	planning, err := app.NewPlanning(cfg, logger, metrics.Nop{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure planner: %w", err)
	}
	return planning, logger, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
