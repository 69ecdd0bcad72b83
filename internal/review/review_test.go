package review

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareText(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     Stats
		empty    bool
	}{
		{name: "identical", from: "a\nb\n", to: "a\nb\n", empty: true},
		{name: "both empty", empty: true},
		{name: "trailing newline only", from: "a\nb", to: "a\nb\n", empty: true},
		{name: "added line", from: "a\n", to: "a\nb\n", want: Stats{Added: 1}},
		{name: "removed line", from: "a\nb\nc\n", to: "a\nc\n", want: Stats{Removed: 1}},
		{name: "rewritten line", from: "a\nold\nc\n", to: "a\nnew\nc\n", want: Stats{Added: 1, Removed: 1, Modified: 1}},
		{name: "new document", to: "x\ny\n", want: Stats{Added: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := CompareText(tt.from, tt.to, "live.md", "staging.md")
			require.NoError(t, err)
			assert.Equal(t, tt.empty, d.Empty())
			assert.Equal(t, tt.want, d.Stats)
		})
	}
}

func TestRender_Plain(t *testing.T) {
	d, err := CompareText("a\nold\n", "a\nnew\n", "live.md", "staging.md")
	require.NoError(t, err)

	out := d.Render(false)
	assert.Contains(t, out, "--- live.md")
	assert.Contains(t, out, "+++ staging.md")
	assert.Contains(t, out, "-old")
	assert.Contains(t, out, "+new")
	assert.Contains(t, out, "@@")
}

func TestRender_ColorKeepsText(t *testing.T) {
	d, err := CompareText("a\n", "b\n", "live.md", "staging.md")
	require.NoError(t, err)
	assert.Contains(t, d.Render(true), "+b")
}

func TestCompare_MissingLive(t *testing.T) {
	dir := t.TempDir()
	staging := filepath.Join(dir, "staging.md")
	require.NoError(t, os.WriteFile(staging, []byte("# Title\n\nBody\n"), 0o644))

	d, err := Compare(staging, filepath.Join(dir, "live.md"))
	require.NoError(t, err)
	assert.Equal(t, Stats{Added: 3}, d.Stats)
}
