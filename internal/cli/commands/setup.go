// Package commands implements the lineagekit CLI commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/souptikmandal/lineagekit/internal/cli/config"
	"github.com/souptikmandal/lineagekit/internal/cli/output"
	"github.com/souptikmandal/lineagekit/internal/state"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

// CommandContext holds the common dependencies of a command.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    *state.SQLiteStore
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an open snapshot store.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cctx := NewCommandContextWithoutStore(cmd)

	store, err := openStore(cctx.Cfg.StatePath, cctx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cctx.Store = store

	cleanup := func() {
		_ = store.Close()
	}
	return cctx, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext without a store.
// Useful for commands that don't need the snapshot database.
func NewCommandContextWithoutStore(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or the defaults when no
// configuration has been loaded (commands executed outside the root).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		return &config.Config{
			StatePath:    config.DefaultStateFile,
			Pipeline:     config.DefaultPipeline,
			OutputFormat: config.DefaultOutput,
			Guard:        config.GuardConfig{Threshold: config.DefaultGuardThreshold},
			Serve:        config.ServeConfig{Port: config.DefaultServePort},
		}
	}
	return cfg
}

func openStore(path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	// Ensure state directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return store, nil
}

// resolveRun returns runID, or the latest persisted run when runID is empty.
func resolveRun(ctx context.Context, store core.Store, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	latest, err := store.LatestRunID(ctx)
	if err != nil {
		return "", err
	}
	if latest == "" {
		return "", fmt.Errorf("no runs recorded yet\nHint: execute a pipeline with 'lineagekit run' first")
	}
	return latest, nil
}
