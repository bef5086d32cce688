package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/souptikmandal/lineagekit/internal/cli/output"
	"github.com/souptikmandal/lineagekit/internal/diff"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "diff <base-run> [current-run]",
		Short: "Detect changes between two runs",
		Long: `Compare the column statistics of two runs and report typed changes:
schema_add, schema_drop, type_change, null_spike and value_shift.

The current run defaults to the latest run. Thresholds come from the
detect section of the configuration.`,
		Example: `  # Compare a baseline with the latest run
  lineagekit diff run_0190a...

  # Compare two runs and record the changes on the current run
  lineagekit diff run_0190a... run_0190b... --save`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			base := args[0]
			var current string
			if len(args) == 2 {
				current = args[1]
			}
			current, err = resolveRun(cmd.Context(), cctx.Store, current)
			if err != nil {
				return err
			}

			changes, err := diff.Detect(cmd.Context(), cctx.Store, base, current, cctx.Cfg.Detect)
			if err != nil {
				return err
			}
			if save {
				if err := cctx.Store.SaveChanges(cmd.Context(), changes); err != nil {
					return err
				}
				cctx.Logger.Debug("saved changes", "run_id", current, "count", len(changes))
			}
			return renderChanges(cctx.Renderer, fmt.Sprintf("Changes %s → %s", base, current), changes)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Persist detected changes on the current run")

	return cmd
}

// NewChangesCommand creates the changes command.
func NewChangesCommand() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List changes saved on a run",
		Long:  `List the change records previously saved with 'lineagekit diff --save'.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := resolveRun(cmd.Context(), cctx.Store, runID)
			if err != nil {
				return err
			}
			changes, err := cctx.Store.ListChanges(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderChanges(cctx.Renderer, "Saved changes for "+id, changes)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run to list changes for (default: latest)")

	return cmd
}

func renderChanges(r *output.Renderer, title string, changes []core.Change) error {
	if r.EffectiveMode() == output.ModeJSON {
		if changes == nil {
			changes = []core.Change{}
		}
		return r.JSON(changes)
	}

	r.Header(1, fmt.Sprintf("%s (%d)", title, len(changes)))
	if len(changes) == 0 {
		r.Println("No changes detected.")
		return nil
	}
	rows := make([][]any, len(changes))
	for i, ch := range changes {
		rows[i] = []any{ch.DatasetID, ch.Column, ch.ChangeType, ch.Severity, formatDetail(ch.Detail)}
	}
	r.Table([]string{"Dataset", "Column", "Change", "Severity", "Detail"}, rows)
	return nil
}

func formatDetail(detail map[string]any) string {
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		v := detail[k]
		if f, ok := v.(float64); ok {
			parts[i] = fmt.Sprintf("%s=%.4g", k, f)
			continue
		}
		parts[i] = fmt.Sprintf("%s=%v", k, v)
	}
	return strings.Join(parts, " ")
}
