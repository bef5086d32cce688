package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/souptikmandal/lineagekit/internal/cli/output"
	"github.com/souptikmandal/lineagekit/internal/impact"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

type impactResult struct {
	RunID       string           `json:"run_id"`
	Column      string           `json:"column"`
	ChangeType  core.ChangeType  `json:"change_type"`
	MaxSeverity core.Severity    `json:"max_severity"`
	Hits        []core.ImpactHit `json:"hits"`
}

// NewImpactCommand creates the impact command.
func NewImpactCommand() *cobra.Command {
	var runID, change string

	cmd := &cobra.Command{
		Use:   "impact <column-id>",
		Short: "Show the downstream impact of a column change",
		Long: `Propagate a hypothetical change of one column through the run's
column-level lineage and list every downstream node it reaches, with the
highest severity it is reached at.`,
		Example: `  # Impact of a value shift on a column of the latest run
  lineagekit impact 3f2a... --change value_shift`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := core.ParseChangeType(change)
			if err != nil {
				return err
			}

			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := resolveRun(cmd.Context(), cctx.Store, runID)
			if err != nil {
				return err
			}
			hits, err := impact.Propagate(cmd.Context(), cctx.Store, id, args[0], ct)
			if err != nil {
				return err
			}
			hits = impact.Collapse(hits)

			return renderImpact(cctx.Renderer, impactResult{
				RunID:       id,
				Column:      args[0],
				ChangeType:  ct,
				MaxSeverity: impact.MaxSeverity(hits),
				Hits:        hits,
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run whose lineage to use (default: latest)")
	cmd.Flags().StringVar(&change, "change", string(core.ChangeValueShift), "Change type to propagate")
	_ = cmd.RegisterFlagCompletionFunc("change", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{
			string(core.ChangeSchemaAdd), string(core.ChangeSchemaDrop), string(core.ChangeTypeChange),
			string(core.ChangeNullSpike), string(core.ChangeValueShift),
		}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func renderImpact(r *output.Renderer, res impactResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		if res.Hits == nil {
			res.Hits = []core.ImpactHit{}
		}
		return r.JSON(res)
	}

	r.Header(1, fmt.Sprintf("Impact of %s on %s", res.ChangeType, res.Column))
	if len(res.Hits) == 0 {
		r.Println("No downstream nodes affected.")
		return nil
	}
	rows := make([][]any, len(res.Hits))
	for i, h := range res.Hits {
		rows[i] = []any{h.NodeKind, h.NodeID, h.Severity}
	}
	r.Table([]string{"Kind", "Node", "Severity"}, rows)
	r.Println()
	r.KeyValue("Max severity", res.MaxSeverity)
	return nil
}
