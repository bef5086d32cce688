package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/souptikmandal/lineagekit/internal/cli/output"
	"github.com/souptikmandal/lineagekit/internal/impact"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

// GuardFailedError is returned when at least one change reaches the guard
// threshold. The CLI exits non-zero on it.
type GuardFailedError struct {
	Violations int
	Threshold  core.Severity
}

func (e *GuardFailedError) Error() string {
	return fmt.Sprintf("guard failed: %d change(s) with downstream impact at or above %s", e.Violations, e.Threshold)
}

// NewGuardCommand creates the guard command.
func NewGuardCommand() *cobra.Command {
	var base, current, threshold string

	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Fail when a change has high downstream impact",
		Long: `Detect changes between a base run and the current run, propagate each
one through the lineage graph and fail when the highest downstream severity
of any change reaches the threshold.

Intended for CI: the command exits non-zero when the guard fails.`,
		Example: `  # Guard the latest run against a baseline
  lineagekit guard --base run_0190a...

  # Only fail on critical impact
  lineagekit guard --base run_0190a... --threshold CRITICAL`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if threshold == "" {
				threshold = cctx.Cfg.Guard.Threshold
			}
			th, err := core.ParseSeverity(threshold)
			if err != nil {
				return err
			}
			cur, err := resolveRun(cmd.Context(), cctx.Store, current)
			if err != nil {
				return err
			}

			report, err := impact.Guard(cmd.Context(), cctx.Store, base, cur, impact.GuardOptions{
				Thresholds: cctx.Cfg.Detect,
				Threshold:  th,
				Logger:     cctx.Logger,
			})
			if err != nil {
				return err
			}
			if err := renderGuard(cctx.Renderer, report); err != nil {
				return err
			}
			if !report.Passed() {
				return &GuardFailedError{Violations: len(report.Violations), Threshold: th}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "Baseline run id")
	cmd.Flags().StringVar(&current, "current", "", "Run to check (default: latest)")
	cmd.Flags().StringVar(&threshold, "threshold", "", "Minimum failing severity (default from config: HIGH)")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.RegisterFlagCompletionFunc("threshold", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func renderGuard(r *output.Renderer, report *impact.GuardReport) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(report)
	}

	r.Header(1, fmt.Sprintf("Guard %s → %s", report.BaseRunID, report.CurrentRunID))
	r.KeyValue("Threshold", report.Threshold)
	r.KeyValue("Changes", len(report.Changes))
	r.Println()

	if report.Passed() {
		r.Success("no change reaches " + string(report.Threshold))
		return nil
	}

	rows := make([][]any, len(report.Violations))
	for i, v := range report.Violations {
		rows[i] = []any{v.Change.DatasetID, v.Change.Column, v.Change.ChangeType, v.MaxSeverity, len(v.Hits)}
	}
	r.Table([]string{"Dataset", "Column", "Change", "Max severity", "Hits"}, rows)
	return nil
}
