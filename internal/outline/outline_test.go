package outline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutline = `{
  "_meta": {
    "name": "Auth Guide",
    "document_instruction": "Write for operators.",
    "model": "gpt-4o",
    "max_response_tokens": 2000,
    "temperature": 0.5
  },
  "document": {
    "title": "Authentication",
    "output": "docs/auth.md",
    "sections": [
      {
        "heading": "# Overview",
        "level": 1,
        "prompt": "Introduce auth.",
        "sources": [
          {"file": "https://github.com/acme/api/blob/abc123/auth.go", "reasoning": "core", "commit": "abc123"}
        ],
        "sections": [
          {"heading": "## Tokens", "level": 2, "prompt": "Explain tokens.", "sources": [], "sections": []}
        ]
      },
      {"heading": "# Setup", "level": 1, "prompt": "Setup steps.", "sources": [], "sections": []}
    ]
  },
  "_commit_hashes": {"api/auth.go": "abc123"}
}`

func TestParse_ReadsAllFields(t *testing.T) {
	o, err := Parse([]byte(sampleOutline))
	require.NoError(t, err)

	assert.Equal(t, "Auth Guide", o.Name)
	assert.Equal(t, "Write for operators.", o.DocumentInstruction)
	assert.Equal(t, "gpt-4o", o.Model)
	assert.Equal(t, 2000, o.MaxTokens)
	assert.InDelta(t, 0.5, o.Temperature, 1e-9)
	assert.Equal(t, "docs/auth.md", o.Output)
	require.Len(t, o.Sections, 2)
	require.Len(t, o.Sections[0].Sources, 1)
	assert.True(t, o.Sections[0].Sources[0].Pinned())
	assert.Equal(t, map[string]string{"api/auth.go": "abc123"}, o.CommitHashes)
}

func TestParse_AppliesDefaults(t *testing.T) {
	o, err := Parse([]byte(`{"_meta": {}, "document": {"title": "T", "output": "out.md", "sections": []}}`))
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, o.Model)
	assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
	assert.InDelta(t, DefaultTemperature, o.Temperature, 1e-9)
	assert.Empty(t, o.Sections)
}

func TestParse_RejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing document", `{"_meta": {}}`},
		{"section without heading", `{"_meta": {}, "document": {"title": "T", "output": "o", "sections": [{"prompt": "p"}]}}`},
		{"bad level", `{"_meta": {}, "document": {"title": "T", "output": "o", "sections": [{"heading": "# H", "level": 9}]}}`},
		{"source without file", `{"_meta": {}, "document": {"title": "T", "output": "o", "sections": [{"heading": "# H", "sources": [{"reasoning": "r"}]}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	o, err := Parse([]byte(sampleOutline))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "meta", "outline.json")
	require.NoError(t, o.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded.Path)

	loaded.Path = ""
	assert.Equal(t, o, loaded)
}

func TestMarshal_OmitsAbsentCommitAndEmptySnapshot(t *testing.T) {
	o := &Outline{
		Title:  "T",
		Output: "out.md",
		Sections: []Section{
			{Heading: "# A", Level: 1, Sources: []SourceReference{{File: "local.go", Reasoning: "r"}}},
		},
	}
	data, err := o.Marshal()
	require.NoError(t, err)

	text := string(data)
	assert.NotContains(t, text, `"commit"`)
	assert.NotContains(t, text, "_commit_hashes")
	assert.Contains(t, text, `"sections": []`)
	assert.True(t, strings.HasSuffix(text, "\n"))
	assert.Contains(t, text, "\n  \"document\"")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outline not found")
}

func TestLoad_InvalidFileNamesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"document": 3}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestWalk_PreOrderWithDepth(t *testing.T) {
	o, err := Parse([]byte(sampleOutline))
	require.NoError(t, err)

	var got []string
	err = Walk(o.Sections, func(s *Section, depth int) error {
		got = append(got, strings.Repeat(">", depth)+s.Heading)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"# Overview", ">## Tokens", "# Setup"}, got)
	assert.Equal(t, 3, CountSections(o.Sections))
	assert.Equal(t, []string{"# Overview", "## Tokens", "# Setup"}, o.Headings())
}

func TestSourceFiles_Deduplicates(t *testing.T) {
	o := &Outline{Sections: []Section{
		{Heading: "# A", Sources: []SourceReference{{File: "x"}, {File: "y"}}},
		{Heading: "# B", Sources: []SourceReference{{File: "x"}, {File: "z"}}},
	}}

	var files []string
	for _, s := range o.SourceFiles() {
		files = append(files, s.File)
	}
	assert.Equal(t, []string{"x", "y", "z"}, files)
}

func TestSaveLoad_ZeroValueParametersUseDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outline.json")
	o := &Outline{
		Title:    "Bare",
		Output:   "docs/bare.md",
		Sections: []Section{{Heading: "# Intro", Level: 1}},
	}
	require.NoError(t, o.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "max_response_tokens")
	assert.NotContains(t, string(data), `"model"`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTokens, loaded.MaxTokens)
	assert.Equal(t, DefaultModel, loaded.Model)
	assert.Equal(t, 0.0, loaded.Temperature)
}
