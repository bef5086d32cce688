package output

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{"auto tty", ModeAuto, true, ModeText},
		{"auto pipe", ModeAuto, false, ModeMarkdown},
		{"empty is auto", "", false, ModeMarkdown},
		{"explicit json", ModeJSON, true, ModeJSON},
		{"explicit text on pipe", ModeText, false, ModeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, tt.isTTY, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestNewRenderer_BufferIsNotTTY(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestRenderer_TableMarkdown(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRendererWithTTY(out, &bytes.Buffer{}, false, ModeMarkdown)

	r.Header(2, "Runs")
	r.Table([]string{"Run", "Created"}, [][]any{{"run_1", "2024-01-01"}})

	s := out.String()
	assert.Contains(t, s, "## Runs")
	assert.Contains(t, s, "| Run | Created |")
	assert.Contains(t, s, "| run_1 | 2024-01-01 |")
	assert.False(t, ansiPattern.MatchString(s))
}

func TestRenderer_TableText(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRendererWithTTY(out, &bytes.Buffer{}, false, ModeText)

	r.Table([]string{"Node", "Severity"}, [][]any{{"abc", "HIGH"}})

	s := out.String()
	assert.Contains(t, s, "NODE")
	assert.Contains(t, s, "HIGH")
	assert.Contains(t, s, "┌")
}

func TestRenderer_JSON(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRendererWithTTY(out, &bytes.Buffer{}, false, ModeJSON)

	require.NoError(t, r.JSON(map[string]int{"changes": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 2, got["changes"])
}

func TestRenderer_StatusLines(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	r := NewRendererWithTTY(out, errOut, false, ModeText)

	r.Success("done")
	r.Warning("careful")
	r.Error("failed")

	assert.Equal(t, "✓ done\n", out.String())
	assert.Equal(t, "! careful\n✗ failed\n", errOut.String())
}

func TestRenderer_KeyValue(t *testing.T) {
	out := &bytes.Buffer{}
	NewRendererWithTTY(out, &bytes.Buffer{}, false, ModeMarkdown).KeyValue("Run", "run_1")
	assert.Equal(t, "- **Run**: run_1\n", out.String())
}
