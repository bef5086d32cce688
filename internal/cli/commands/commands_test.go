package commands

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souptikmandal/lineagekit/internal/cli/testutil"
	"github.com/souptikmandal/lineagekit/internal/impact"
	"github.com/souptikmandal/lineagekit/internal/state"
	tu "github.com/souptikmandal/lineagekit/internal/testutil"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

func TestCommandConstructors(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewRunCommand(), "run [pipeline.yaml]", []string{"json"}},
		{NewExportCommand(), "export", []string{"run", "out"}},
		{NewRunsCommand(), "runs", []string{"limit"}},
		{NewDiffCommand(), "diff <base-run> [current-run]", []string{"save"}},
		{NewChangesCommand(), "changes", []string{"run"}},
		{NewImpactCommand(), "impact <column-id>", []string{"run", "change"}},
		{NewGuardCommand(), "guard", []string{"base", "current", "threshold"}},
		{NewServeCommand(), "serve", []string{"port", "watch"}},
		{NewVersionCommand("1.2.3"), "version", nil},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestRenderChanges(t *testing.T) {
	changes := []core.Change{
		{
			DatasetID:  "ds1",
			Column:     "qty",
			ChangeType: core.ChangeValueShift,
			Severity:   core.SeverityMedium,
			Detail:     map[string]any{"old_mean": 2.5, "new_mean": 25.0},
		},
	}

	t.Run("markdown", func(t *testing.T) {
		tr := testutil.NewTestRendererMarkdown()
		require.NoError(t, renderChanges(tr.Renderer, "Changes", changes))

		out := tr.Output()
		assert.Contains(t, out, "# Changes (1)")
		assert.Contains(t, out, "| ds1 | qty | value_shift | MEDIUM | new_mean=25 old_mean=2.5 |")
		testutil.AssertNoANSI(t, out)
		testutil.AssertValidMarkdown(t, out)
	})

	t.Run("json empty is array", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		require.NoError(t, renderChanges(tr.Renderer, "Changes", nil))
		assert.JSONEq(t, "[]", tr.Output())
	})

	t.Run("text empty", func(t *testing.T) {
		tr := testutil.NewTestRendererText()
		require.NoError(t, renderChanges(tr.Renderer, "Changes", nil))
		assert.Contains(t, tr.Output(), "No changes detected.")
	})
}

func TestFormatDetail(t *testing.T) {
	tests := []struct {
		name   string
		detail map[string]any
		want   string
	}{
		{"empty", nil, ""},
		{"sorted keys", map[string]any{"to": "DOUBLE", "from": "BIGINT"}, "from=BIGINT to=DOUBLE"},
		{"floats compact", map[string]any{"delta": 0.123456789}, "delta=0.1235"},
		{"nil value", map[string]any{"old_mean": nil}, "old_mean=<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDetail(tt.detail))
		})
	}
}

func TestRenderImpact(t *testing.T) {
	res := impactResult{
		RunID:       "run_1",
		Column:      "col_qty",
		ChangeType:  core.ChangeValueShift,
		MaxSeverity: core.SeverityHigh,
		Hits: []core.ImpactHit{
			{NodeID: "col_total", NodeKind: core.NodeColumn, Severity: core.SeverityHigh},
			{NodeID: "tr_enrich", NodeKind: core.NodeTransform, Severity: core.SeverityMedium},
		},
	}

	tr := testutil.NewTestRendererMarkdown()
	require.NoError(t, renderImpact(tr.Renderer, res))
	out := tr.Output()
	assert.Contains(t, out, "# Impact of value_shift on col_qty")
	assert.Contains(t, out, "col_total")
	assert.Contains(t, out, "- **Max severity**: HIGH")

	tr = testutil.NewTestRendererJSON()
	require.NoError(t, renderImpact(tr.Renderer, impactResult{RunID: "run_1", Column: "c"}))
	var got map[string]any
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &got))
	assert.Equal(t, []any{}, got["hits"])
}

func TestRenderGuard(t *testing.T) {
	passed := &impact.GuardReport{BaseRunID: "a", CurrentRunID: "b", Threshold: core.SeverityHigh}
	tr := testutil.NewTestRendererMarkdown()
	require.NoError(t, renderGuard(tr.Renderer, passed))
	assert.Contains(t, tr.Output(), "✓ no change reaches HIGH")

	failed := &impact.GuardReport{
		BaseRunID:    "a",
		CurrentRunID: "b",
		Threshold:    core.SeverityLow,
		Violations: []impact.Violation{{
			Change:      core.Change{DatasetID: "ds1", Column: "qty", ChangeType: core.ChangeNullSpike},
			MaxSeverity: core.SeverityMedium,
			Hits:        []core.ImpactHit{{NodeID: "x"}},
		}},
	}
	tr = testutil.NewTestRendererMarkdown()
	require.NoError(t, renderGuard(tr.Renderer, failed))
	assert.Contains(t, tr.Output(), "| ds1 | qty | null_spike | MEDIUM | 1 |")
	assert.NotContains(t, tr.Output(), "✓")
}

func TestGuardFailedError(t *testing.T) {
	var err error = &GuardFailedError{Violations: 2, Threshold: core.SeverityHigh}
	assert.Equal(t, "guard failed: 2 change(s) with downstream impact at or above HIGH", err.Error())

	var target *GuardFailedError
	assert.True(t, errors.As(err, &target))
}

func TestRenderRuns(t *testing.T) {
	runs := []core.Run{
		{ID: "run_2", CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "run_1", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	tr := testutil.NewTestRendererMarkdown()
	require.NoError(t, renderRuns(tr.Renderer, runs))
	assert.Contains(t, tr.Output(), "# Runs (2)")
	assert.Contains(t, tr.Output(), "run_2")

	tr = testutil.NewTestRendererJSON()
	require.NoError(t, renderRuns(tr.Renderer, nil))
	assert.JSONEq(t, "[]", tr.Output())
}

func TestResolveRun(t *testing.T) {
	ctx := context.Background()
	store := state.NewSQLiteStore(tu.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })

	_, err := resolveRun(ctx, store, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runs recorded yet")

	id, err := resolveRun(ctx, store, "run_explicit")
	require.NoError(t, err)
	assert.Equal(t, "run_explicit", id)

	require.NoError(t, store.Persist(ctx, &core.Snapshot{Run: core.Run{ID: "run_1", CreatedAt: time.Now()}}))
	id, err = resolveRun(ctx, store, "")
	require.NoError(t, err)
	assert.Equal(t, "run_1", id)
}
