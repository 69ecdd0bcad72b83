package generator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/apperr"
	"docsync/internal/llm"
	"docsync/internal/logging"
	"docsync/internal/outline"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, url string) (string, error) {
	body, ok := m[url]
	if !ok {
		return "", errors.New("404")
	}
	return body, nil
}

type fixedPins map[string]string

func (f fixedPins) ResolvePin(_ context.Context, locator string) (string, error) {
	c, ok := f[locator]
	if !ok {
		return "", errors.New("unknown")
	}
	return c, nil
}

func treeOutline() *outline.Outline {
	return &outline.Outline{
		Name:                "guide",
		DocumentInstruction: "Audience: operators.",
		Model:               "m-1",
		MaxTokens:           1234,
		Temperature:         0.3,
		Sections: []outline.Section{
			{Heading: "# A", Level: 1, Prompt: "pa", Sections: []outline.Section{
				{Heading: "## A1", Level: 2, Prompt: "pa1", Sections: []outline.Section{
					{Heading: "### A1a", Level: 3, Prompt: "pa1a"},
				}},
				{Heading: "## A2", Level: 2, Prompt: "pa2"},
			}},
			{Heading: "# B", Level: 1, Prompt: "pb"},
		},
	}
}

func scripted(bodies ...string) *llm.Scripted {
	var rs []llm.ScriptedResponse
	for _, b := range bodies {
		rs = append(rs, llm.ScriptedResponse{Content: b, Tokens: 10})
	}
	return llm.NewScripted(rs...)
}

func TestGenerateFromOutline_ZeroSectionsMakesNoCalls(t *testing.T) {
	client := scripted("unused")
	g := NewGenerator(client, mapFetcher{}, logging.Discard(), Options{})
	out := filepath.Join(t.TempDir(), "docs", "empty.md")

	res, err := g.GenerateFromOutline(context.Background(), &outline.Outline{Output: out}, "")
	require.NoError(t, err)

	assert.Equal(t, 0, client.Calls())
	assert.Equal(t, "", res.Content)
	assert.FileExists(t, out)
}

func TestGenerateFromOutline_PreOrderAssembly(t *testing.T) {
	client := scripted(" body-A ", "body-A1", "body-A1a", "body-A2", "body-B")
	g := NewGenerator(client, mapFetcher{}, logging.Discard(), Options{})
	out := filepath.Join(t.TempDir(), "nested", "dir", "doc.md")

	res, err := g.GenerateFromOutline(context.Background(), treeOutline(), out)
	require.NoError(t, err)

	want := strings.Join([]string{
		"# A", "body-A",
		"## A1", "body-A1",
		"### A1a", "body-A1a",
		"## A2", "body-A2",
		"# B", "body-B",
	}, "\n\n")
	assert.Equal(t, want, res.Content)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, string(written))

	assert.Equal(t, 5, res.Stats.Sections)
	assert.Equal(t, 5, res.Stats.Calls)
	assert.Equal(t, 50, res.Stats.TokensUsed)

	require.Len(t, client.Requests, 5)
	for _, req := range client.Requests {
		assert.Equal(t, "m-1", req.Model)
		assert.Equal(t, 1234, req.MaxTokens)
		assert.InDelta(t, 0.3, req.Temperature, 1e-9)
		assert.Contains(t, req.Prompt, "Audience: operators.")
	}

	// Each section's own heading is already in the context it is asked to continue.
	assert.Contains(t, client.Requests[0].Prompt, "# A\n\n")
	assert.Contains(t, client.Requests[1].Prompt, "# A\n\nbody-A\n\n## A1")
	assert.Contains(t, client.Requests[4].Prompt, "## A2\n\nbody-A2\n\n# B")
	assert.NotContains(t, client.Requests[1].Prompt, "body-A1a")
}

func TestGenerateFromOutline_StructureConstraint(t *testing.T) {
	client := scripted("x")
	g := NewGenerator(client, mapFetcher{}, logging.Discard(), Options{})

	_, err := g.GenerateFromOutline(context.Background(), treeOutline(), filepath.Join(t.TempDir(), "d.md"))
	require.NoError(t, err)

	first := client.Requests[0].Prompt
	assert.Contains(t, first, "exactly 3 subsection(s)")
	assert.Contains(t, first, "## A1\n  ### A1a\n## A2")

	leaf := client.Requests[4].Prompt
	assert.Contains(t, leaf, "ZERO SUBSECTIONS")
	assert.Contains(t, leaf, `"# B" has no subsections`)
}

func TestGenerateFromOutline_ContextWindowKeepsTail(t *testing.T) {
	long := strings.Repeat("a", 100) + "TAIL-MARK"
	client := scripted(long, "second")
	o := &outline.Outline{Sections: []outline.Section{
		{Heading: "# One", Prompt: "p1"},
		{Heading: "# Two", Prompt: "p2"},
	}}
	g := NewGenerator(client, mapFetcher{}, logging.Discard(), Options{ContextWindow: 30})

	_, err := g.GenerateFromOutline(context.Background(), o, filepath.Join(t.TempDir(), "d.md"))
	require.NoError(t, err)

	second := client.Requests[1].Prompt
	assert.Contains(t, second, "...\n\n"+strings.Repeat("a", 14)+"TAIL-MARK\n\n# Two")
	assert.NotContains(t, second, "# One")
}

func TestGenerateFromOutline_SourcePlaceholders(t *testing.T) {
	fetcher := mapFetcher{
		"https://raw.githubusercontent.com/acme/api/c0ffee/auth.go": "package auth",
	}
	o := &outline.Outline{Sections: []outline.Section{{
		Heading: "# Auth",
		Prompt:  "p",
		Sources: []outline.SourceReference{
			{File: "src/local.go", Reasoning: "r"},
			{File: "https://github.com/acme/api/blob/main/unpinned.go"},
			{File: "https://gitlab.com/acme/api/blob/main/x.go", Commit: "abc"},
			{File: "https://github.com/acme/api/blob/main/gone.go", Commit: "c0ffee"},
			{File: "https://github.com/acme/api/blob/main/auth.go", Reasoning: "token checks", Commit: "c0ffee"},
		},
	}}}
	client := scripted("body")
	g := NewGenerator(client, fetcher, logging.Discard(), Options{})

	res, err := g.GenerateFromOutline(context.Background(), o, filepath.Join(t.TempDir(), "d.md"))
	require.NoError(t, err)

	prompt := client.Requests[0].Prompt
	assert.Contains(t, prompt, "**src/local.go** (must be a GitHub URL)")
	assert.Contains(t, prompt, "**https://github.com/acme/api/blob/main/unpinned.go** (requires commit hash)")
	assert.Contains(t, prompt, "**https://gitlab.com/acme/api/blob/main/x.go** (invalid GitHub URL)")
	assert.Contains(t, prompt, "**https://github.com/acme/api/blob/main/gone.go** (failed to fetch from GitHub)")
	assert.Contains(t, prompt, "**File: https://github.com/acme/api/blob/main/auth.go**\n**Why this file is relevant:** token checks\n```\npackage auth\n```")
	assert.Equal(t, 4, res.Stats.Placeholders)
	require.Len(t, res.Report.Signals, 1)
	assert.Equal(t, "source_unavailable", res.Report.Signals[0].Code)
}

func TestGenerateFromOutline_NoSourcesNote(t *testing.T) {
	client := scripted("body")
	o := &outline.Outline{Sections: []outline.Section{{Heading: "# X", Prompt: "p"}}}
	g := NewGenerator(client, mapFetcher{}, logging.Discard(), Options{})

	_, err := g.GenerateFromOutline(context.Background(), o, filepath.Join(t.TempDir(), "d.md"))
	require.NoError(t, err)
	assert.Contains(t, client.Requests[0].Prompt, noSources)
}

func TestGenerateFromOutline_ResolvedPinsSavedBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	outlinePath := filepath.Join(dir, "outline.json")
	locator := "https://github.com/acme/api/blob/main/auth.go"
	o := &outline.Outline{
		Title:  "T",
		Output: filepath.Join(dir, "doc.md"),
		Sections: []outline.Section{{
			Heading: "# Auth", Level: 1, Prompt: "p",
			Sources: []outline.SourceReference{{File: locator, Reasoning: "r"}},
		}},
	}
	require.NoError(t, o.Save(outlinePath))
	loaded, err := outline.Load(outlinePath)
	require.NoError(t, err)

	fetcher := mapFetcher{"https://raw.githubusercontent.com/acme/api/beef/auth.go": "package auth"}
	client := scripted("body")
	g := NewGenerator(client, fetcher, logging.Discard(), Options{Pins: fixedPins{locator: "beef"}})

	res, err := g.GenerateFromOutline(context.Background(), loaded, "")
	require.NoError(t, err)
	assert.True(t, res.OutlineUpdated)
	assert.Contains(t, client.Requests[0].Prompt, "package auth")

	reloaded, err := outline.Load(outlinePath)
	require.NoError(t, err)
	assert.Equal(t, "beef", reloaded.Sections[0].Sources[0].Commit)
	assert.FileExists(t, o.Output)
}

func TestGenerateFromOutline_ServiceFailureAbortsDocument(t *testing.T) {
	client := llm.NewScripted(
		llm.ScriptedResponse{Content: "ok"},
		llm.ScriptedResponse{Err: llm.ErrRateLimit},
	)
	dir := t.TempDir()
	out := filepath.Join(dir, "doc.md")
	g := NewGenerator(client, mapFetcher{}, logging.Discard(), Options{ReportPath: filepath.Join(dir, "report.json")})

	_, err := g.GenerateFromOutline(context.Background(), treeOutline(), out)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindLLM))
	assert.ErrorIs(t, err, llm.ErrRateLimit)
	assert.NoFileExists(t, out)

	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(data, &rep))
	require.NotEmpty(t, rep.Stages)
	assert.Equal(t, "error", rep.Stages[len(rep.Stages)-1].Status)
	assert.Equal(t, 1, rep.Summary.FailedStages)
}
