package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souptikmandal/lineagekit/internal/diff"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("state", "", "")
	flags.BoolP("verbose", "v", false, "")
	flags.StringP("output", "o", "", "")
	return flags
}

// chdir switches to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Cleanup(ResetConfig)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(".", DefaultStateFile), cfg.StatePath)
	assert.Equal(t, DefaultPipeline, cfg.Pipeline)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Equal(t, diff.DefaultThresholds(), cfg.Detect)
	assert.Equal(t, DefaultGuardThreshold, cfg.Guard.Threshold)
	assert.Equal(t, DefaultServePort, cfg.Serve.Port)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Cleanup(ResetConfig)

	yamlCfg := `state_path: state/lineage.db
output: markdown
detect:
  null_spike: 0.5
  mean_tolerance: 0.4
guard:
  threshold: medium
serve:
  port: 9000
archive:
  s3:
    region: eu-central-1
    path_style: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lineagekit.yaml"), []byte(yamlCfg), 0o600))

	tests := []struct {
		name   string
		env    map[string]string
		args   []string
		verify func(t *testing.T, cfg *Config)
	}{
		{
			name: "config file",
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, filepath.Join(".", "state", "lineage.db"), cfg.StatePath)
				assert.Equal(t, "markdown", cfg.OutputFormat)
				assert.InDelta(t, 0.5, cfg.Detect.NullSpike, 1e-9)
				assert.InDelta(t, 0.4, cfg.Detect.MeanTolerance, 1e-9)
				assert.InDelta(t, diff.DefaultStdTolerance, cfg.Detect.StdTolerance, 1e-9, "unset keys keep defaults")
				assert.Equal(t, "medium", cfg.Guard.Threshold)
				assert.Equal(t, 9000, cfg.Serve.Port)
				assert.Equal(t, "eu-central-1", cfg.Archive.S3.Region)
				assert.True(t, cfg.Archive.S3.PathStyle)
			},
		},
		{
			name: "env overrides file",
			env: map[string]string{
				"LINEAGEKIT_OUTPUT":                 "json",
				"LINEAGEKIT_DETECT__NULL_SPIKE":     "0.25",
				"LINEAGEKIT_GUARD__THRESHOLD":       "CRITICAL",
				"LINEAGEKIT_ARCHIVE__S3__ENDPOINT": "minio:9000",
			},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "json", cfg.OutputFormat)
				assert.InDelta(t, 0.25, cfg.Detect.NullSpike, 1e-9)
				assert.Equal(t, "CRITICAL", cfg.Guard.Threshold)
				assert.Equal(t, "minio:9000", cfg.Archive.S3.Endpoint)
			},
		},
		{
			name: "flags override env",
			env:  map[string]string{"LINEAGEKIT_OUTPUT": "json"},
			args: []string{"--output", "text", "--state", "other.db", "-v"},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "text", cfg.OutputFormat)
				assert.True(t, cfg.Verbose)
				abs, err := filepath.Abs("other.db")
				require.NoError(t, err)
				assert.Equal(t, abs, cfg.StatePath)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			flags := newFlags()
			require.NoError(t, flags.Parse(tt.args))

			cfg, err := LoadConfig("", flags)
			require.NoError(t, err)
			assert.Equal(t, "lineagekit.yaml", GetConfigFileUsed())
			tt.verify(t, cfg)
		})
	}
}

func TestLoadConfig_ExplicitFileResolvesRelativeToFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Cleanup(ResetConfig)

	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state_path: s.db\npipeline: p.yaml\n"), 0o600))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "s.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, "p.yaml"), cfg.Pipeline)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		errSubstr string
	}{
		{"bad output", "output: html\n", "invalid output format"},
		{"bad threshold", "guard:\n  threshold: severe\n", "invalid guard.threshold"},
		{"negative tolerance", "detect:\n  mean_tolerance: -1\n", "must not be negative"},
		{"bad yaml", "detect: [\n", "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(ResetConfig)
			path := filepath.Join(t.TempDir(), "lineagekit.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := LoadConfig(path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Cleanup(ResetConfig)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()), "falls back to a discard logger")

	logger := GetLogger(WithLogger(context.Background(), nil))
	assert.NotNil(t, logger)
}
