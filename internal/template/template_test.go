package template

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

func testSnapshot() *types.SnapshotFile {
	id, _ := types.ParseID("0123456789abcdef" + strings.Repeat("00", 24))
	return &types.SnapshotFile{
		ID:       id,
		Time:     time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
		Hostname: "h1",
		Username: "alice",
		Label:    "default",
		Tags:     types.TagList{"daily", "db"},
	}
}

func mustCompile(t *testing.T, path, timeFmt string) *Template {
	t.Helper()
	tmpl, err := Compile(path, timeFmt)
	require.NoError(t, err)
	return tmpl
}

func TestRender(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		name     string
		path     string
		timeFmt  string
		expected string
	}{
		{"default", DefaultPathTemplate, DefaultTimeTemplate, "[h1]/[default]/2023-01-02_03-04-05"},
		{"short id", "{id}", DefaultTimeTemplate, "01234567"},
		{"long id", "{long_id}", DefaultTimeTemplate, snap.ID.String()},
		{"user and tags", "{username}/{tags}", DefaultTimeTemplate, "alice/daily,db"},
		{"date only", "{hostname}/{time}", "%Y-%m-%d", "h1/2023-01-02"},
		{"no summary", "{backup_start}-{backup_end}", DefaultTimeTemplate, "no_backup_start-no_backup_end"},
		{"escaped braces", "{{{hostname}}}", DefaultTimeTemplate, "{h1}"},
		{"literal only", "snapshots", DefaultTimeTemplate, "snapshots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Compile(tt.path, tt.timeFmt)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tmpl.Render(snap))
		})
	}
}

func TestRenderSummary(t *testing.T) {
	snap := testSnapshot()
	snap.Summary = &types.Summary{
		BackupStart: time.Date(2023, 1, 2, 3, 0, 0, 0, time.UTC),
		BackupEnd:   time.Date(2023, 1, 2, 3, 30, 0, 0, time.UTC),
	}

	tmpl := mustCompile(t, "{backup_start}/{backup_end}", "%H:%M")
	assert.Equal(t, []string{"03:00", "03:30"}, tmpl.Segments(snap))
}

func TestSegments(t *testing.T) {
	snap := testSnapshot()
	snap.Label = ""

	tmpl := mustCompile(t, "{label}/./{hostname}//{time}", "%Y")
	assert.Equal(t, []string{"h1", "2023"}, tmpl.Segments(snap))

	tmpl = mustCompile(t, DefaultPathTemplate, "%Y-%m-%d")
	assert.Equal(t, []string{"[h1]", "[]", "2023-01-02"}, tmpl.Segments(snap))
}

func TestSegmentsDotValues(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		label    string
		path     string
		expected []string
	}{
		{"dot dot label", "h1", "..", "{hostname}/{label}/{id}", []string{"h1", "%2E%2E", "01234567"}},
		{"dot hostname", ".", "l", "{hostname}/{label}", []string{"%2E", "l"}},
		{"dot dot inside value", "a/../b", "l", "{hostname}", []string{"a", "%2E%2E", "b"}},
		{"dots with text", "..h", "l", "{hostname}", []string{"..h"}},
		{"empty value next to dots", "", "l", "{hostname}../{label}", []string{"%2E%2E", "l"}},
		{"value next to literal dot", ".", "l", ".{hostname}", []string{"%2E%2E"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := testSnapshot()
			snap.Hostname = tt.hostname
			snap.Label = tt.label
			segments := mustCompile(t, tt.path, DefaultTimeTemplate).Segments(snap)
			assert.Equal(t, tt.expected, segments)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []string{
		"{hostname}/{nonexistent}",
		"{hostname",
		"hostname}",
		"{}",
		"{hostname}/../{time}",
		"..",
	}

	for _, source := range tests {
		t.Run(source, func(t *testing.T) {
			_, err := Compile(source, DefaultTimeTemplate)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeConfigurationError, errors.CodeOf(err))
		})
	}
}

func TestAccessors(t *testing.T) {
	tmpl := mustCompile(t, DefaultPathTemplate, "%Y")
	assert.Equal(t, DefaultPathTemplate, tmpl.String())
	assert.Equal(t, "%Y", tmpl.TimeFormat())
}
