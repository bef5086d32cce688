package commands

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/souptikmandal/lineagekit/internal/archive"
	"github.com/souptikmandal/lineagekit/internal/cli/output"
	"github.com/souptikmandal/lineagekit/internal/engine"
	"github.com/souptikmandal/lineagekit/internal/state"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	// JSONOut is an export destination written after the run.
	JSONOut string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [pipeline.yaml]",
		Short: "Execute a pipeline and record its lineage",
		Long: `Execute a declarative pipeline on DuckDB and record column-level lineage
and statistics for every dataset it reads, produces and writes.

The run is persisted to the snapshot store so it can be diffed against
later runs. Without an argument the configured pipeline file is used.`,
		Example: `  # Run ./pipeline.yaml
  lineagekit run

  # Run a specific pipeline and export the run
  lineagekit run etl/orders.yaml --json out/run.json

  # Export straight to object storage
  lineagekit run --json s3://lineage/runs/latest.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.JSONOut, "json", "", "Write the run export to a file or s3://, gs://, azblob:// URL")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *RunOptions) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	path := cctx.Cfg.Pipeline
	if len(args) == 1 {
		path = args[0]
	}
	p, err := engine.LoadPipeline(path)
	if err != nil {
		return err
	}

	start := time.Now()
	eng := engine.New(engine.Config{Store: cctx.Store, Logger: cctx.Logger})
	snap, err := eng.Run(cmd.Context(), p)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if opts.JSONOut != "" {
		var buf bytes.Buffer
		if err := state.NewExport(snap).WriteJSON(&buf); err != nil {
			return err
		}
		if err := archive.Write(cmd.Context(), opts.JSONOut, buf.Bytes(), cctx.Cfg.Archive); err != nil {
			return err
		}
	}

	return renderRun(cctx.Renderer, p, snap, opts.JSONOut, time.Since(start))
}

type runSummary struct {
	Pipeline   string        `json:"pipeline"`
	Run        core.Run      `json:"run"`
	Datasets   int           `json:"datasets"`
	Columns    int           `json:"columns"`
	Transforms int           `json:"transforms"`
	Export     string        `json:"export,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

func renderRun(r *output.Renderer, p *engine.Pipeline, snap *core.Snapshot, export string, elapsed time.Duration) error {
	summary := runSummary{
		Pipeline:   p.Name,
		Run:        snap.Run,
		Datasets:   len(snap.Datasets),
		Columns:    len(snap.Columns),
		Transforms: len(snap.Transforms),
		Export:     export,
		Duration:   elapsed,
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(summary)
	}

	r.Header(1, fmt.Sprintf("Run %s", snap.Run.ID))
	rows := make([][]any, 0, len(snap.Datasets))
	for _, ds := range snap.Datasets {
		rows = append(rows, []any{ds.Name, ds.Kind, ds.Rows, ds.Path})
	}
	r.Table([]string{"Dataset", "Kind", "Rows", "Path"}, rows)
	r.Println()
	r.KeyValue("Columns", summary.Columns)
	r.KeyValue("Transforms", summary.Transforms)
	if export != "" {
		r.KeyValue("Export", export)
	}
	r.Success(fmt.Sprintf("pipeline %s completed in %s", p.Name, elapsed.Round(time.Millisecond)))
	return nil
}
