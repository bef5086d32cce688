package commands

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/souptikmandal/lineagekit/internal/archive"
	"github.com/souptikmandal/lineagekit/internal/state"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	var runID, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a run's lineage graph as JSON",
		Long: `Export the nodes and edges of a persisted run as JSON for archival or
visualization. Defaults to the latest run and standard output.`,
		Example: `  # Export the latest run to stdout
  lineagekit export

  # Export a run to a file
  lineagekit export --run run_0190... --out lineage.json

  # Archive to Google Cloud Storage
  lineagekit export --out gs://lineage-archive/orders/latest.json`,
		Args: cobra.NoArgs,
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
			exp, err := state.LoadExport(cmd.Context(), cctx.Store, id)
			if err != nil {
				return err
			}

			if out == "" {
				return exp.WriteJSON(cctx.Renderer.Writer())
			}

			var buf bytes.Buffer
			if err := exp.WriteJSON(&buf); err != nil {
				return err
			}
			if err := archive.Write(cmd.Context(), out, buf.Bytes(), cctx.Cfg.Archive); err != nil {
				return err
			}
			cctx.Renderer.Success("exported run " + id + " to " + out)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run to export (default: latest)")
	cmd.Flags().StringVar(&out, "out", "", "Destination file or s3://, gs://, azblob:// URL (default: stdout)")

	return cmd
}
