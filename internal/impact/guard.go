package impact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/souptikmandal/lineagekit/internal/diff"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

// Reader is what Guard needs from the snapshot store.
type Reader interface {
	core.StatsReader
	core.GraphReader
}

// Violation is a change whose downstream impact meets the guard threshold.
type Violation struct {
	Change      core.Change      `json:"change"`
	MaxSeverity core.Severity    `json:"max_severity"`
	Hits        []core.ImpactHit `json:"hits"`
}

// GuardReport is the outcome of a guard check.
type GuardReport struct {
	BaseRunID    string        `json:"base_run_id"`
	CurrentRunID string        `json:"current_run_id"`
	Threshold    core.Severity `json:"threshold"`
	Changes      []core.Change `json:"changes"`
	Violations   []Violation   `json:"violations"`
}

// Passed reports whether no change reached the threshold.
func (r *GuardReport) Passed() bool {
	return len(r.Violations) == 0
}

// GuardOptions configures Guard.
type GuardOptions struct {
	Thresholds diff.Thresholds
	Threshold  core.Severity
	Logger     *slog.Logger
}

// Guard detects changes between base and current and propagates each one.
// A change fails the guard when the maximum severity of its downstream hits
// is at least opts.Threshold; a change with no downstream hits never fails.
//
// Dropped columns only exist in the base run, so they are propagated over
// the base run's graph. All other changes use the current run's graph.
func Guard(ctx context.Context, reader Reader, baseRun, currentRun string, opts GuardOptions) (*GuardReport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Threshold.Rank() == 0 {
		return nil, fmt.Errorf("invalid guard threshold %q", opts.Threshold)
	}

	changes, err := diff.Detect(ctx, reader, baseRun, currentRun, opts.Thresholds)
	if err != nil {
		return nil, err
	}

	report := &GuardReport{
		BaseRunID:    baseRun,
		CurrentRunID: currentRun,
		Threshold:    opts.Threshold,
		Changes:      changes,
	}
	if len(changes) == 0 {
		return report, nil
	}

	graphs := map[string]*graph{}
	graphFor := func(runID string) (*graph, error) {
		if g, ok := graphs[runID]; ok {
			return g, nil
		}
		g, err := loadGraph(ctx, reader, runID)
		if err != nil {
			return nil, err
		}
		graphs[runID] = g
		return g, nil
	}

	for _, ch := range changes {
		runID := currentRun
		if ch.ChangeType == core.ChangeSchemaDrop {
			runID = baseRun
		}
		g, err := graphFor(runID)
		if err != nil {
			return nil, err
		}

		hits := Collapse(g.propagate(ch.NodeID, ch.ChangeType))
		worst := MaxSeverity(hits)
		logger.Debug("guard checked change",
			slog.String("change_type", string(ch.ChangeType)),
			slog.String("node_id", ch.NodeID),
			slog.Int("hits", len(hits)),
			slog.String("max_severity", string(worst)))

		if worst.Rank() >= opts.Threshold.Rank() {
			report.Violations = append(report.Violations, Violation{Change: ch, MaxSeverity: worst, Hits: hits})
		}
	}
	return report, nil
}
