package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/apperr"
	"docsync/internal/outline"
)

func TestManager_Paths(t *testing.T) {
	m := New("/proj", "docs/modules/providers/openai.md")

	assert.Equal(t, "/proj/.docsync/metadata/docs/modules/providers/openai", m.Dir())
	assert.Equal(t, "/proj/.docsync/metadata/docs/modules/providers/openai/sources.yaml", m.SourcesPath())
	assert.Equal(t, "/proj/.docsync/metadata/docs/modules/providers/openai/outline.json", m.OutlinePath())
	assert.Equal(t, "/proj/.docsync/metadata/docs/modules/providers/openai/staging/openai.md", m.StagingPath())
	assert.Equal(t, "/proj/docs/modules/providers/openai.md", m.LivePath())
}

func TestManager_InitAndRead(t *testing.T) {
	root := t.TempDir()
	m := New(root, "docs/auth.md")

	_, err := m.ReadSources()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docsync init docs/auth.md")

	require.NoError(t, m.InitSources(""))
	spec, err := m.ReadSources()
	require.NoError(t, err)
	assert.Equal(t, "Document the auth functionality", spec.Metadata.Purpose)

	_, err = m.ReadOutline()
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Contains(t, err.Error(), "docsync generate-outline docs/auth.md")

	o := &outline.Outline{Title: "Auth", Output: "docs/auth.md", Sections: []outline.Section{}}
	require.NoError(t, m.SaveOutline(o))
	assert.Equal(t, m.OutlinePath(), o.Path)

	loaded, err := m.ReadOutline()
	require.NoError(t, err)
	assert.Equal(t, "Auth", loaded.Title)

	assert.False(t, m.HasStaging())
	require.NoError(t, os.MkdirAll(m.StagingDir(), 0o755))
	require.NoError(t, os.WriteFile(m.StagingPath(), []byte("# Auth"), 0o644))
	assert.True(t, m.HasStaging())
}

func TestFindAllDocs(t *testing.T) {
	root := t.TempDir()
	docs, err := FindAllDocs(root)
	require.NoError(t, err)
	assert.Empty(t, docs)

	for _, d := range []string{"docs/b.md", "docs/guides/a.md", "README.md"} {
		require.NoError(t, New(root, d).InitSources("x"))
	}
	// A stray sources.yaml in staging is not a document.
	stray := filepath.Join(New(root, "docs/b.md").StagingDir(), "sources.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(stray), 0o755))
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))

	docs, err = FindAllDocs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "docs/b.md", "docs/guides/a.md"}, docs)
}
