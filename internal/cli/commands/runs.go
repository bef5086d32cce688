package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/souptikmandal/lineagekit/internal/cli/output"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted runs",
		Long:  `List persisted runs, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := cctx.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderRuns(cctx.Renderer, runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")

	return cmd
}

func renderRuns(r *output.Renderer, runs []core.Run) error {
	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []core.Run{}
		}
		return r.JSON(runs)
	}

	r.Header(1, fmt.Sprintf("Runs (%d)", len(runs)))
	if len(runs) == 0 {
		r.Println("No runs recorded.")
		return nil
	}
	rows := make([][]any, len(runs))
	for i, run := range runs {
		rows[i] = []any{run.ID, run.CreatedAt.Local().Format(time.DateTime)}
	}
	r.Table([]string{"Run", "Created"}, rows)
	return nil
}
